package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/powerdeck/powerdeck/internal/app"
	"github.com/powerdeck/powerdeck/internal/audit"
	"github.com/powerdeck/powerdeck/internal/cache"
	"github.com/powerdeck/powerdeck/internal/kvstore"
	"github.com/powerdeck/powerdeck/internal/observability"
	platformcache "github.com/powerdeck/powerdeck/internal/platform/cache"
	"github.com/powerdeck/powerdeck/internal/platform/db"
	"github.com/powerdeck/powerdeck/internal/powerunits"
	"github.com/powerdeck/powerdeck/internal/reports"
	"github.com/powerdeck/powerdeck/internal/resilience"
	"github.com/powerdeck/powerdeck/internal/users"
	"github.com/powerdeck/powerdeck/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := platformcache.New(ctx, platformcache.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("redis unavailable at startup", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := kvstore.New(redisClient, logger)
	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
	}, logger)
	retry := resilience.NewExecutor(logger)
	cacheLayer := cache.New(store, breakers.Get("cache-redis"), retry, cache.Config{
		Prefix:              cfg.CachePrefix,
		MaxMemoryEntries:    cfg.CacheMemoryEntries,
		DefaultTTL:          cfg.CacheDefaultTTL,
		BackgroundQueueSize: cfg.CacheQueueSize,
	}, logger)
	defer cacheLayer.Close()

	metrics := observability.NewMetrics()
	auditService := audit.NewService(audit.NewRepository(pool), logger)

	usersService := users.NewService(users.NewRepository(pool), cacheLayer, auditService, logger)
	reportsService := reports.NewService(reports.NewRepository(pool), cacheLayer, auditService, logger)
	unitsService := powerunits.NewService(powerunits.NewRepository(pool), cacheLayer, auditService, logger)

	warmup := jobs.NewCacheWarmupJob(map[string]jobs.Warmer{
		"users": func(ctx context.Context) error {
			_, err := usersService.List(ctx)
			return err
		},
		"reports": func(ctx context.Context) error {
			_, err := reportsService.List(ctx)
			return err
		},
		"power-units": func(ctx context.Context) error {
			_, err := unitsService.List(ctx)
			return err
		},
	}, logger, metrics)
	prune := jobs.NewSessionPruneJob(pool, logger, metrics)

	warmupTask, err := jobs.NewCacheWarmupTask(jobs.CacheWarmupPayload{})
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskCacheWarmup, Handler: warmup.Handle},
			{Type: jobs.TaskSessionPrune, Handler: prune.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "0 3 * * *", Task: jobs.NewSessionPruneTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
