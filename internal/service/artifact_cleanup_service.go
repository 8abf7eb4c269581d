package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/pkg/jobs"
)

// ArtifactCleanupJobType tags storage deletion jobs.
const ArtifactCleanupJobType = "artifact.delete"

type artifactDeleter interface {
	DeleteFile(ctx context.Context, key string) error
	KeyFromURL(rawURL string) (string, bool)
}

type artifactQueue interface {
	Enqueue(job jobs.Job) error
}

// ArtifactCleanupService deletes stored artifacts in the background. Failures
// are retried by the queue, then logged and counted; callers never see them.
type ArtifactCleanupService struct {
	store   artifactDeleter
	queue   artifactQueue
	metrics *MetricsService
	logger  *zap.Logger
}

// NewArtifactCleanupService constructs the service. AttachQueue must be called
// before scheduling for deletions to run asynchronously.
func NewArtifactCleanupService(store artifactDeleter, metrics *MetricsService, logger *zap.Logger) *ArtifactCleanupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtifactCleanupService{store: store, metrics: metrics, logger: logger}
}

// AttachQueue sets the queue jobs are dispatched to.
func (s *ArtifactCleanupService) AttachQueue(queue artifactQueue) {
	s.queue = queue
}

// ScheduleURLs enqueues a deletion for every URL issued by the object store.
// Empty URLs and URLs outside the store's public prefix are ignored.
func (s *ArtifactCleanupService) ScheduleURLs(ctx context.Context, urls ...*string) int {
	scheduled := 0
	for _, u := range urls {
		if u == nil || *u == "" {
			continue
		}
		key, ok := s.store.KeyFromURL(*u)
		if !ok {
			s.logger.Debug("skipping foreign artifact url", zap.String("url", *u))
			continue
		}
		job := jobs.Job{ID: uuid.NewString(), Type: ArtifactCleanupJobType, Payload: key}
		if s.queue == nil {
			if err := s.Handle(ctx, job); err != nil {
				s.OnGiveUp(job, err)
			}
			scheduled++
			continue
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.OnGiveUp(job, err)
			continue
		}
		scheduled++
	}
	return scheduled
}

// Handle deletes the artifact referenced by a job.
func (s *ArtifactCleanupService) Handle(ctx context.Context, job jobs.Job) error {
	key, ok := job.Payload.(string)
	if !ok || key == "" {
		return fmt.Errorf("artifact cleanup: unexpected payload %T", job.Payload)
	}
	if err := s.store.DeleteFile(ctx, key); err != nil {
		return fmt.Errorf("delete artifact %s: %w", key, err)
	}
	s.logger.Debug("artifact deleted", zap.String("key", key))
	return nil
}

// OnGiveUp records an artifact that could not be deleted.
func (s *ArtifactCleanupService) OnGiveUp(job jobs.Job, err error) {
	s.metrics.RecordCleanupFailure()
	s.logger.Error("artifact cleanup failed",
		zap.String("job_id", job.ID),
		zap.Any("key", job.Payload),
		zap.Int("attempt", job.Attempt),
		zap.Error(err),
	)
}
