// Package main runs the merit tracker HTTP server with WebSocket notifications and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meritrack/backend/config"
	"github.com/meritrack/backend/internal/auth"
	"github.com/meritrack/backend/internal/events"
	"github.com/meritrack/backend/internal/merits"
	"github.com/meritrack/backend/internal/middleware"
	"github.com/meritrack/backend/internal/notifications"
	"github.com/meritrack/backend/internal/realtime"
	"github.com/meritrack/backend/internal/registrations"
	"github.com/meritrack/backend/internal/reports"
	"github.com/meritrack/backend/internal/students"
	"github.com/meritrack/backend/internal/worker"
	"github.com/meritrack/backend/pkg/cache"
	"github.com/meritrack/backend/pkg/database"
	"github.com/meritrack/backend/pkg/queue"
	"github.com/meritrack/backend/pkg/redis"
	"github.com/meritrack/backend/pkg/response"
	"github.com/meritrack/backend/pkg/storage"
	"github.com/meritrack/backend/pkg/validation"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database.DSN(), logger); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client := newS3(ctx, cfg, logger)

	if err := validation.RegisterGin(); err != nil {
		logger.Fatal("validation", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// Notifications
	notificationRepo := notifications.NewRepository(pool)
	notificationSvc := notifications.NewService(notificationRepo, hub, logger)
	notificationHandler := notifications.NewHandler(notificationSvc, logger)

	// Auth & students
	userRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(userRepo, jwtService, cfg.Auth.AllowedDomains, logger)
	studentHandler := students.NewHandler(userRepo, logger)

	// Merits
	meritRepo := merits.NewRepository(pool)
	meritSvc := merits.NewService(meritRepo, cache.New(rdb.Client, "merits:"), notificationSvc, merits.Options{
		TargetPoints:   cfg.Merit.TargetPoints,
		DefaultLimit:   cfg.Merit.LeaderboardLimit,
		RecentWindow:   cfg.Merit.RecentWindow,
		LeaderboardTTL: cfg.Cache.LeaderboardTTL,
	}, logger)
	meritHandler := merits.NewHandler(meritSvc, logger)

	// Events & registrations
	eventRepo := events.NewRepository(pool)
	eventCache := events.NewListCache(cache.New(rdb.Client, "events:"), cfg.Cache.EventsTTL, cfg.Cache.EventsStaleTTL, logger)
	registrationRepo := registrations.NewRepository(pool)
	registrationSvc := registrations.NewService(registrationRepo, notificationSvc, logger, eventCache, meritSvc)
	registrationHandler := registrations.NewHandler(registrationSvc, logger)
	var images events.ImageStore
	if s3Client != nil {
		images = s3Client
	}
	eventHandler := events.NewHandler(eventRepo, registrationSvc, eventCache, images, logger)

	// Reports
	jobQueue := queue.NewQueue(rdb.Client, logger)
	reportRepo := reports.NewRepository(pool)
	var links reports.Linker
	if s3Client != nil {
		links = s3Client
	}
	reportHandler := reports.NewHandler(reports.NewService(reportRepo, jobQueue, links, logger), logger)

	validateToken := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		dbErr := pool.Ping(c.Request.Context())
		redisOK := rdb.Healthy(c.Request.Context())
		status := gin.H{"status": "ok", "database": dbErr == nil, "redis": redisOK}
		if redisOK {
			if stats, err := jobQueue.Stats(c.Request.Context()); err == nil {
				status["reportQueue"] = stats
			}
		}
		if dbErr != nil {
			status["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, response.Body{Success: false, Data: status, Error: "database unavailable"})
			return
		}
		response.OK(c, status)
	})

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		if cfg.DevLoginEnabled() {
			authGroup.POST("/dev-login", authHandler.DevLogin)
			logger.Warn("development sign-in enabled")
		}
	}

	admin := middleware.RequireAdmin()

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService), middleware.Timeout(cfg.Server.RequestTimeout))
	{
		// Events
		api.GET("/events", eventHandler.List)
		api.GET("/events/:id", eventHandler.GetByID)
		api.POST("/events", admin, eventHandler.Create)
		api.PATCH("/events/:id", admin, eventHandler.Update)
		api.DELETE("/events/:id", admin, eventHandler.Delete)
		api.POST("/events/:id/image", admin, eventHandler.UploadImage)

		// Registrations
		api.POST("/events/:id/register", middleware.RequireStudent(), registrationHandler.Register)
		api.POST("/events/:id/cancel", registrationHandler.Cancel)
		api.POST("/events/:id/attendance", admin, registrationHandler.MarkAttendance)
		api.GET("/registrations", registrationHandler.List)

		// Merits
		api.POST("/events/:id/merits", admin, meritHandler.BulkAward)
		api.GET("/merits/summary", meritHandler.Summary)
		api.GET("/merits/records", meritHandler.Records)
		api.POST("/merits/records", admin, meritHandler.Award)
		api.GET("/leaderboard", meritHandler.Leaderboard)

		// Students
		api.GET("/students/me", studentHandler.Me)
		api.GET("/students/by-id/:id", studentHandler.ByID)
		api.GET("/students/:studentId", studentHandler.ByStudentID)

		// Notifications
		api.GET("/notifications", notificationHandler.List)
		api.POST("/notifications/read-all", notificationHandler.MarkAllRead)
		api.POST("/notifications/:id/read", notificationHandler.MarkRead)

		// Reports
		api.POST("/reports/merits", admin, reportHandler.RequestMerits)
		api.GET("/reports/:id", admin, reportHandler.Get)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, validateToken, cfg.Server.CORSAllowedOrigins))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Background worker (merit report export to S3)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if cfg.Worker.InProcess && s3Client != nil {
		processor := worker.NewReportProcessor(reportRepo, meritSvc, s3Client, jobQueue, notificationSvc, logger)
		processor.SetPollTimeout(cfg.Worker.PollTimeout)
		go func() {
			defer close(workerDone)
			processor.Run(workerCtx)
		}()
	} else {
		close(workerDone)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("env", cfg.Server.Environment))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("report worker did not stop in time")
	}
	logger.Info("server stopped")
}

// newS3 returns nil when credentials are missing or the client cannot be built;
// image upload and report export are then unavailable.
func newS3(ctx context.Context, cfg *config.Config, logger *zap.Logger) *storage.S3 {
	if !cfg.AWS.Enabled() {
		logger.Warn("s3 disabled: no credentials configured")
		return nil
	}
	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ImagesBucket:         cfg.AWS.ImagesBucket,
		ReportsBucket:        cfg.AWS.ReportsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Warn("s3 disabled", zap.Error(err))
		return nil
	}
	return s3Client
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
