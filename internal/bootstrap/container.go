package bootstrap

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-results-api/internal/repository"
	"github.com/noah-isme/sma-results-api/internal/service"
	"github.com/noah-isme/sma-results-api/pkg/cache"
	"github.com/noah-isme/sma-results-api/pkg/config"
	"github.com/noah-isme/sma-results-api/pkg/database"
	"github.com/noah-isme/sma-results-api/pkg/export"
	"github.com/noah-isme/sma-results-api/pkg/jobs"
	"github.com/noah-isme/sma-results-api/pkg/storage"
)

// cleanupBuffer bounds pending artifact deletions.
const cleanupBuffer = 256

// Container holds the wired services shared by the server and the CLI.
type Container struct {
	DB      *sqlx.DB
	Redis   *redis.Client
	Store   *storage.ObjectStore
	Metrics *service.MetricsService
	Auth    *service.AuthService

	Batches       *service.ResultBatchService
	Importer      *service.ResultImportService
	Queries       *service.ResultQueryService
	SubjectGroups *service.SubjectGroupService
	GradingScales *service.GradingScaleService
	Cleanup       *service.ArtifactCleanupService

	cleanupQueue *jobs.Queue
}

// New connects the backing stores and builds every service. The cleanup
// queue is started with ctx; Close stops it and releases connections.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	store, err := storage.NewObjectStore(cfg.Storage.Dir, cfg.Storage.PublicURL)
	if err != nil {
		_ = db.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("open object store: %w", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	batchRepo := repository.NewResultBatchRepository(db)
	resultRepo := repository.NewStudentResultRepository(db)
	groupRepo := repository.NewSubjectGroupRepository(db)
	scaleRepo := repository.NewGradingScaleRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	classroomRepo := repository.NewClassroomRepository(db)
	userRepo := repository.NewUserRepository(db)
	lockRepo := repository.NewImportLockRepository(redisClient, cfg.Results.ImportLockTTL)

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheRepo := repository.NewCacheRepository(redisClient, logger)
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Results.CacheTTL, logger, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metrics, cfg.Results.CacheTTL, logger, false)
	}

	cleanupSvc := service.NewArtifactCleanupService(store, metrics, logger)
	queue := jobs.NewQueue("artifact-cleanup", cleanupSvc.Handle, jobs.QueueConfig{
		Workers:    cfg.Cleanup.Workers,
		BufferSize: cleanupBuffer,
		MaxRetries: cfg.Cleanup.Retries,
		RetryDelay: cfg.Cleanup.RetryDelay,
		Logger:     logger,
		OnGiveUp:   cleanupSvc.OnGiveUp,
	})
	queue.Start(ctx)
	cleanupSvc.AttachQueue(queue)

	c := &Container{
		DB:      db,
		Redis:   redisClient,
		Store:   store,
		Metrics: metrics,
		Auth: service.NewAuthService(service.AuthConfig{
			AccessTokenSecret: cfg.JWT.Secret,
			Issuer:            cfg.JWT.Issuer,
			Audience:          cfg.JWT.Audience,
		}),
		Cleanup:      cleanupSvc,
		cleanupQueue: queue,
	}

	c.Batches = service.NewResultBatchService(service.ResultBatchDeps{
		Batches:    batchRepo,
		Classrooms: classroomRepo,
		Groups:     groupRepo,
		Scales:     scaleRepo,
		Results:    resultRepo,
		Signatures: store,
		Cleanup:    cleanupSvc,
		Exporter:   export.NewCSVExporter(),
		Cache:      cacheSvc,
		Validator:  validate,
		Logger:     logger,
		CodePrefix: cfg.Results.BatchCodePrefix,
	})
	c.Importer = service.NewResultImportService(service.ResultImportDeps{
		Batches:  batchRepo,
		Results:  resultRepo,
		Groups:   groupRepo,
		Scales:   scaleRepo,
		Students: userRepo,
		Rosters:  classroomRepo,
		Subjects: subjectRepo,
		Locks:    lockRepo,
		Store:    store,
		Parser:   service.NewResultCSVParser(cfg.Results.ImportTimeout),
		Cleanup:  cleanupSvc,
		Cache:    cacheSvc,
		Metrics:  metrics,
		Logger:   logger,
	})
	c.Queries = service.NewResultQueryService(resultRepo, batchRepo, classroomRepo, userRepo, export.NewPDFExporter(), cacheSvc, logger, cfg.Results.SchoolName)
	c.SubjectGroups = service.NewSubjectGroupService(groupRepo, subjectRepo, validate, logger)
	c.GradingScales = service.NewGradingScaleService(scaleRepo, validate, logger)

	return c, nil
}

// Close drains the cleanup queue and closes connections.
func (c *Container) Close() {
	if c.cleanupQueue != nil {
		c.cleanupQueue.Stop()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
