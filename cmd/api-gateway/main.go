package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-results-api/api/swagger"
	"github.com/noah-isme/sma-results-api/internal/bootstrap"
	"github.com/noah-isme/sma-results-api/internal/handler"
	"github.com/noah-isme/sma-results-api/internal/middleware"
	"github.com/noah-isme/sma-results-api/internal/models"
	"github.com/noah-isme/sma-results-api/pkg/config"
	"github.com/noah-isme/sma-results-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-results-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-results-api/pkg/middleware/requestid"
)

// @title SMA Results API
// @version 1.0.0
// @description Result batch CSV import, grading and report cards
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to build services", zap.Error(err))
	}
	defer app.Close()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.Metrics))

	registerRoutes(r, cfg, app)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server shutdown incomplete", zap.Error(err))
	}
}

func registerRoutes(r *gin.Engine, cfg *config.Config, app *bootstrap.Container) {
	metricsHandler := handler.NewMetricsHandler(app.Metrics, app.DB)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	if cfg.Storage.PublicPath != "" {
		r.Static(cfg.Storage.PublicPath, app.Store.Dir())
	}

	batchHandler := handler.NewResultBatchHandler(app.Batches, app.Importer, cfg.Results.MaxUploadBytes)
	queryHandler := handler.NewResultQueryHandler(app.Queries)
	groupHandler := handler.NewSubjectGroupHandler(app.SubjectGroups)
	scaleHandler := handler.NewGradingScaleHandler(app.GradingScales)

	staff := middleware.RequireStaff()
	admin := middleware.RequireAdmin()
	staffOrSelf := middleware.RBAC(
		string(models.RoleSuperAdmin),
		string(models.RoleAdmin),
		string(models.RoleTeacher),
		middleware.SelfRole,
	)

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(app.Auth))

	batches := api.Group("/result-batches")
	batches.POST("", staff, batchHandler.Create)
	batches.GET("", staff, batchHandler.List)
	batches.GET("/:id", staff, batchHandler.Get)
	batches.POST("/:id/upload", staff, batchHandler.Upload)
	batches.POST("/:id/publish", admin, batchHandler.Publish)
	batches.PATCH("/:id/status", admin, batchHandler.OverrideStatus)
	batches.PATCH("/:id/signatures", staff, batchHandler.UpdateSignatures)
	batches.POST("/:id/signatures/:kind", staff, batchHandler.UploadSignature)
	batches.GET("/:id/template", staff, batchHandler.Template)
	batches.DELETE("/:id", admin, batchHandler.Delete)

	results := api.Group("/results")
	results.GET("/classrooms/:classroomId", staff, queryHandler.ClassResults)
	results.GET("/students/:studentId/report-card", staffOrSelf, queryHandler.ReportCard)
	results.GET("/students/:studentId/report-card.pdf", staffOrSelf, queryHandler.ReportCardPDF)

	groups := api.Group("/subject-groups")
	groups.GET("", staff, groupHandler.List)
	groups.GET("/:id", staff, groupHandler.Get)
	groups.POST("", admin, groupHandler.Create)
	groups.PUT("/:id", admin, groupHandler.Update)
	groups.DELETE("/:id", admin, groupHandler.Delete)

	scales := api.Group("/grading-scales")
	scales.GET("", staff, scaleHandler.List)
	scales.GET("/:id", staff, scaleHandler.Get)
	scales.POST("", admin, scaleHandler.Create)
	scales.PUT("/:id", admin, scaleHandler.Update)
	scales.DELETE("/:id", admin, scaleHandler.Delete)
}
