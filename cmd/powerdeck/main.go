package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/powerdeck/powerdeck/internal/app"
	"github.com/powerdeck/powerdeck/internal/audit"
	audithttp "github.com/powerdeck/powerdeck/internal/audit/http"
	"github.com/powerdeck/powerdeck/internal/auth"
	"github.com/powerdeck/powerdeck/internal/authz"
	"github.com/powerdeck/powerdeck/internal/cache"
	cachehttp "github.com/powerdeck/powerdeck/internal/cache/http"
	"github.com/powerdeck/powerdeck/internal/kvstore"
	"github.com/powerdeck/powerdeck/internal/observability"
	platformcache "github.com/powerdeck/powerdeck/internal/platform/cache"
	"github.com/powerdeck/powerdeck/internal/platform/db"
	"github.com/powerdeck/powerdeck/internal/powerunits"
	"github.com/powerdeck/powerdeck/internal/reports"
	"github.com/powerdeck/powerdeck/internal/resilience"
	"github.com/powerdeck/powerdeck/internal/shared"
	"github.com/powerdeck/powerdeck/internal/users"
	"github.com/powerdeck/powerdeck/internal/voicebot"
	"github.com/powerdeck/powerdeck/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	sessionManager := shared.NewSessionManager(redisClient, "powerdeck_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	store := kvstore.New(redisClient, logger)
	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.BreakerFailureThreshold,
		RecoveryTimeout:  cfg.BreakerRecoveryTimeout,
	}, logger)
	cacheBreaker := breakers.Get("cache-redis")
	retry := resilience.NewExecutor(logger)

	cacheLayer := cache.New(store, cacheBreaker, retry, cache.Config{
		Prefix:              cfg.CachePrefix,
		MaxMemoryEntries:    cfg.CacheMemoryEntries,
		DefaultTTL:          cfg.CacheDefaultTTL,
		BackgroundQueueSize: cfg.CacheQueueSize,
	}, logger)
	defer cacheLayer.Close()

	auditService := audit.NewService(audit.NewRepository(dbpool), logger)

	authService := auth.NewService(auth.NewRepository(dbpool), auditService, logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo, cacheLayer, auditService, logger)
	usersHandler := users.NewHandler(logger, usersService)

	gate := authz.NewGate(authz.SharedSessionProvider(), users.NewGateStore(usersRepo), audit.NewSink(auditService), logger)
	guard := authz.Middleware{Gate: gate}

	reportsService := reports.NewService(reports.NewRepository(dbpool), cacheLayer, auditService, logger)
	reportsHandler := reports.NewHandler(logger, reportsService, guard)

	unitsService := powerunits.NewService(powerunits.NewRepository(dbpool), cacheLayer, auditService, logger)
	unitsHandler := powerunits.NewHandler(logger, unitsService, guard)

	voicebotService := voicebot.NewService(voicebot.NewRepository(dbpool), cacheLayer, auditService, logger)
	voicebotHandler := voicebot.NewHandler(logger, voicebotService, guard)

	metrics := observability.NewMetrics()
	stats := cacheLayer.Stats
	metrics.RegisterCacheGauges(
		func() float64 {
			s := stats()
			total := s.Hits + s.Misses
			if total == 0 {
				return 0
			}
			return float64(s.Hits) / float64(total)
		},
		func() float64 { return float64(stats().MemoryEntries) },
		func() float64 {
			if cacheBreaker.State() == resilience.StateOpen {
				return 1
			}
			return 0
		},
	)

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

	cacheHandler := cachehttp.NewHandler(logger, cacheLayer, store, breakers, retry, warmup.WarmAll)
	auditHandler := audithttp.NewHandler(logger, auditService)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		Authz:             guard,
		AuthHandler:       authHandler,
		UsersHandler:      usersHandler,
		ReportsHandler:    reportsHandler,
		PowerUnitsHandler: unitsHandler,
		VoicebotHandler:   voicebotHandler,
		CacheHandler:      cacheHandler,
		AuditHandler:      auditHandler,
		Pool:              dbpool,
		Redis:             redisClient,
		Metrics:           metrics,
	})

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	if err != nil {
		logger.Warn("init job client", slog.Any("error", err))
	} else {
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		if _, err := jobClient.EnqueueCacheWarmup(ctx, jobs.CacheWarmupPayload{}); err != nil {
			logger.Warn("enqueue startup warmup", slog.Any("error", err))
		}
	}

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
