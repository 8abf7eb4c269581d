package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const importLockPrefix = "results:import-lock:"

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type localLock struct {
	token   string
	expires time.Time
}

// ImportLockRepository hands out per-batch import locks. With a Redis client the
// lock is shared across instances; without one it only guards this process.
type ImportLockRepository struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	local map[string]localLock
}

// NewImportLockRepository builds the lock store.
func NewImportLockRepository(client *redis.Client, ttl time.Duration) *ImportLockRepository {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ImportLockRepository{client: client, ttl: ttl, local: map[string]localLock{}}
}

// TryLock attempts to take the lock of a batch. It reports false when another
// import holds it.
func (r *ImportLockRepository) TryLock(ctx context.Context, batchID string) (string, bool, error) {
	token := uuid.NewString()
	if r.client != nil {
		ok, err := r.client.SetNX(ctx, importLockPrefix+batchID, token, r.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("acquire import lock: %w", err)
		}
		return token, ok, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.local[batchID]; ok && time.Now().Before(held.expires) {
		return "", false, nil
	}
	r.local[batchID] = localLock{token: token, expires: time.Now().Add(r.ttl)}
	return token, true, nil
}

// Unlock releases the lock if token still owns it.
func (r *ImportLockRepository) Unlock(ctx context.Context, batchID, token string) error {
	if r.client != nil {
		if err := releaseLockScript.Run(ctx, r.client, []string{importLockPrefix + batchID}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release import lock: %w", err)
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if held, ok := r.local[batchID]; ok && held.token == token {
		delete(r.local, batchID)
	}
	return nil
}
