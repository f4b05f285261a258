// Package main runs the background report worker (merit standings export to S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meritrack/backend/config"
	"github.com/meritrack/backend/internal/merits"
	"github.com/meritrack/backend/internal/notifications"
	"github.com/meritrack/backend/internal/realtime"
	"github.com/meritrack/backend/internal/reports"
	"github.com/meritrack/backend/internal/worker"
	"github.com/meritrack/backend/pkg/cache"
	"github.com/meritrack/backend/pkg/database"
	"github.com/meritrack/backend/pkg/queue"
	"github.com/meritrack/backend/pkg/redis"
	"github.com/meritrack/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.PoolOptions(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		ImagesBucket:         cfg.AWS.ImagesBucket,
		ReportsBucket:        cfg.AWS.ReportsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	// Notifications reach sockets held by API instances through Redis pub/sub.
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub, nil)
	notifier := notifications.NewService(notifications.NewRepository(pool), hub, logger)

	meritSvc := merits.NewService(merits.NewRepository(pool), cache.New(rdb.Client, "merits:"), nil, merits.Options{
		TargetPoints:   cfg.Merit.TargetPoints,
		DefaultLimit:   cfg.Merit.LeaderboardLimit,
		RecentWindow:   cfg.Merit.RecentWindow,
		LeaderboardTTL: cfg.Cache.LeaderboardTTL,
	}, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	if dead, err := jobQueue.DeadLetters(ctx); err != nil {
		logger.Warn("read dlq", zap.Error(err))
	} else if len(dead) > 0 {
		ids := make([]string, 0, len(dead))
		for _, job := range dead {
			ids = append(ids, job.ID)
		}
		logger.Warn("report jobs parked in dlq", zap.Int("count", len(dead)), zap.Strings("job_ids", ids))
	}
	processor := worker.NewReportProcessor(reports.NewRepository(pool), meritSvc, s3Client, jobQueue, notifier, logger)
	processor.SetPollTimeout(cfg.Worker.PollTimeout)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		processor.Run(workerCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	select {
	case <-done:
	case <-time.After(cfg.Worker.PollTimeout + 5*time.Second):
		logger.Warn("worker did not stop in time")
	}
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
