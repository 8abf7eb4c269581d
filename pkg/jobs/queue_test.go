package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueueRetriesUntilSuccess(t *testing.T) {
	var calls int32
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	}, QueueConfig{Workers: 1, MaxRetries: 5, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1", Type: "delete"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestQueueGivesUpAfterMaxRetries(t *testing.T) {
	var mu sync.Mutex
	var gaveUp []Job
	done := make(chan struct{})
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		return errors.New("permanent")
	}, QueueConfig{Workers: 2, MaxRetries: 1, RetryDelay: time.Millisecond, OnGiveUp: func(j Job, err error) {
		mu.Lock()
		gaveUp = append(gaveUp, j)
		mu.Unlock()
		close(done)
	}})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job{ID: "1"}))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("give-up callback not invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, gaveUp, 1)
	require.Equal(t, 2, gaveUp[0].Attempt)
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	require.Error(t, q.Enqueue(Job{ID: "1"}))
}
