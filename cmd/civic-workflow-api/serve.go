package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/civic-workflow-api/api/swagger"
	"github.com/noah-isme/civic-workflow-api/internal/handler"
	"github.com/noah-isme/civic-workflow-api/internal/middleware"
	"github.com/noah-isme/civic-workflow-api/internal/repository"
	"github.com/noah-isme/civic-workflow-api/internal/service"
	"github.com/noah-isme/civic-workflow-api/pkg/cache"
	"github.com/noah-isme/civic-workflow-api/pkg/config"
	"github.com/noah-isme/civic-workflow-api/pkg/database"
	"github.com/noah-isme/civic-workflow-api/pkg/jobs"
	"github.com/noah-isme/civic-workflow-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/civic-workflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/civic-workflow-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

type serveFlags struct {
	Port    int
	Migrate bool
}

// NewServeCommand runs the HTTP API.
func NewServeCommand() *cobra.Command {
	f := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the workflow API over HTTP.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logr, err := bootstrap()
			if err != nil {
				return err
			}
			defer logr.Sync() //nolint:errcheck

			if f.Port > 0 {
				cfg.Port = f.Port
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logr, f.Migrate)
		},
	}

	cmd.Flags().IntVar(&f.Port, "port", 0, "Listen port (overrides PORT)")
	cmd.Flags().BoolVar(&f.Migrate, "migrate", false, "Apply pending migrations before serving")
	return cmd
}

type application struct {
	queue    *jobs.Queue
	cache    *repository.CacheRepository
	handlers handler.Handlers
	tokens   middleware.TokenValidator
	metrics  *service.MetricsService
}

func serve(ctx context.Context, cfg *config.Config, logr *zap.Logger, migrate bool) error {
	if migrate {
		status, err := database.Migrate(ctx, cfg.Database, cfg.Database.MigrationsDir, logr)
		if err != nil {
			return fmt.Errorf("could not migrate db: %w", err)
		}
		logr.Info("schema ready", zap.Uint("version", status.Version))
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("could not connect to db: %w", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, directory cache and realtime push disabled", zap.Error(err))
	}

	app := build(cfg, db, rdb, logr)
	if app.queue != nil {
		app.queue.Start(ctx)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(app.metrics))

	handler.RegisterRoutes(r, cfg.APIPrefix, app.handlers, app.tokens)

	if cfg.Docs.Enabled && cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logr.Info("shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	if app.queue != nil {
		app.queue.Stop(shutdownCtx)
	}
	if err := app.cache.Close(); err != nil {
		logr.Warn("redis close", zap.Error(err))
	}
	return nil
}

// build wires repositories, services and handlers. rdb may be nil.
func build(cfg *config.Config, db *sqlx.DB, rdb *redis.Client, logr *zap.Logger) *application {
	metrics := service.NewMetricsService()
	validate := validator.New()

	effects := service.NewSideEffects(logr, metrics)
	var queue *jobs.Queue
	if cfg.SideEffects.Async {
		queue = jobs.NewQueue("side-effects", effects.Handle,
			effects.QueueConfig(cfg.SideEffects.Workers, cfg.SideEffects.Retries, cfg.SideEffects.RetryDelay))
		effects.UseQueue(queue)
	}

	userRepo := repository.NewUserRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	historyRepo := repository.NewStatusHistoryRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	cacheRepo := repository.NewCacheRepository(rdb, logr)

	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Notifications.DirectoryCacheTTL, logr,
		cfg.Notifications.DirectoryCacheEnabled && rdb != nil)
	directory := service.NewDepartmentDirectory(userRepo, cacheSvc, cfg.Notifications.DirectoryCacheTTL)
	publisher := service.NewNotificationPublisher(cacheRepo, cfg.Notifications.RealtimeEnabled && rdb != nil)
	dispatcher := service.NewNotificationDispatcher(notificationRepo, directory, publisher, metrics, logr,
		cfg.Notifications.FanoutConcurrency)

	scope := service.NewAccessScopeResolver(cfg.Workflow.ExecutiveDepartment)
	audit := service.NewAuditLogger(activityRepo, scope, effects, logr)
	recorder := service.NewWorkflowRecorder(historyRepo, metrics, logr)
	tx := database.NewTxRunner(db)

	requests := service.NewRequestService(requestRepo, tx, scope, recorder, audit, dispatcher, effects, validate, logr)
	tasks := service.NewTaskService(taskRepo, userRepo, scope, audit, dispatcher, effects, validate, logr)
	auth := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	inbox := service.NewNotificationService(notificationRepo, logr)
	exporter := service.NewActivityExportService(audit, 0, logr)

	dependents := map[string]handler.Pinger{"postgres": handler.PingFunc(db.PingContext)}
	if rdb != nil {
		dependents["redis"] = cacheRepo
	}

	return &application{
		queue:   queue,
		cache:   cacheRepo,
		tokens:  auth,
		metrics: metrics,
		handlers: handler.Handlers{
			Auth:          handler.NewAuthHandler(auth),
			Requests:      handler.NewRequestHandler(requests),
			Tasks:         handler.NewTaskHandler(tasks),
			Activity:      handler.NewActivityHandler(audit, exporter),
			Notifications: handler.NewNotificationHandler(inbox),
			Metrics:       handler.NewMetricsHandler(metrics, dependents),
		},
	}
}
