package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	httpAdapter "github.com/lorrc/support-redistributor/internal/adapters/primary/http"
	mw "github.com/lorrc/support-redistributor/internal/adapters/primary/http/middleware"
	"github.com/lorrc/support-redistributor/internal/adapters/primary/scheduler"
	"github.com/lorrc/support-redistributor/internal/adapters/primary/websocket"
	"github.com/lorrc/support-redistributor/internal/adapters/secondary/memory"
	"github.com/lorrc/support-redistributor/internal/adapters/secondary/postgres"
	redisAdapter "github.com/lorrc/support-redistributor/internal/adapters/secondary/redis"
	"github.com/lorrc/support-redistributor/internal/auth"
	"github.com/lorrc/support-redistributor/internal/config"
	"github.com/lorrc/support-redistributor/internal/core/domain"
	"github.com/lorrc/support-redistributor/internal/core/ports"
	"github.com/lorrc/support-redistributor/internal/core/services"
	"github.com/lorrc/support-redistributor/internal/infrastructure/logging"
	"github.com/lorrc/support-redistributor/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting service",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	// 3. Initialize Database Pool
	ctx := context.Background()
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	// 4. Run Lock (Redis when configured, in-process otherwise)
	var (
		runLock     ports.RunLocker
		redisHealth httpAdapter.HealthChecker
	)
	if cfg.Redis.URL != "" {
		redisOpts, err := goredis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Error("failed to parse redis URL", "error", err)
			os.Exit(1)
		}
		redisOpts.DialTimeout = cfg.Redis.DialTimeout
		redisClient := goredis.NewClient(redisOpts)
		defer redisClient.Close()

		lock := redisAdapter.NewRunLock(redisClient, logger)
		if err := lock.Ping(ctx); err != nil {
			// Not fatal: runs continue unlocked until redis comes back.
			logger.Warn("redis ping failed", "error", err)
		}
		runLock, redisHealth = lock, lock
		logger.Info("using redis run lock")
	} else {
		runLock = memory.NewRunLock()
		logger.Info("using in-process run lock")
	}

	// 5. Initialize Security, Metrics & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	appMetrics := metrics.New()
	hub := websocket.NewHub(logger)
	go hub.Run()

	// 6. Initialize Rate Limiters
	var (
		generalLimiter, triggerLimiter *mw.RateLimiter
		heartbeatLimiter               *mw.RateLimitByKey
	)
	if cfg.RateLimit.Enabled {
		trusted, err := mw.ParseTrustedProxies(cfg.RateLimit.TrustedProxies)
		if err != nil {
			logger.Error("invalid RATE_LIMIT_TRUSTED_PROXIES", "error", err)
			os.Exit(1)
		}

		generalLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
			TrustedProxies:    trusted,
		})
		defer generalLimiter.Stop()

		triggerLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.TriggerRPS,
			BurstSize:         cfg.RateLimit.TriggerBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
			TrustedProxies:    trusted,
		})
		defer triggerLimiter.Stop()

		heartbeatLimiter = mw.NewRateLimitByKey(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.HeartbeatRPS,
			BurstSize:         cfg.RateLimit.HeartbeatBurst,
			CleanupInterval:   time.Minute,
			TTL:               5 * time.Minute,
			TrustedProxies:    trusted,
		})
		defer heartbeatLimiter.Stop()
	}

	// 7. Dependency Injection (Wiring the Hexagon)
	errorHandler := httpAdapter.NewErrorHandler(logger)

	// Repositories (Secondary Adapters)
	supportRepo := postgres.NewSupportRepository(pool)
	roleRepo := postgres.NewRoleRepository(pool)
	txManager := postgres.NewTransactionManager(pool)

	// Services (Core)
	authzService := services.NewAuthorizationService(roleRepo)
	presenceService := services.NewPresenceService(supportRepo, authzService, nil)
	redistributionService := services.NewRedistributionService(
		supportRepo, txManager, authzService, runLock, logger,
		services.WithPolicy(domain.RedistributionPolicy{
			InactivityTimeout: cfg.Redistribution.InactivityTimeout,
			PresenceWindow:    cfg.Redistribution.PresenceWindow,
		}),
		services.WithLockTTL(cfg.Redistribution.LockTTL),
		services.WithRunRecorder(appMetrics),
		services.WithBroadcaster(hub),
	)

	// Handlers (Primary Adapters)
	healthHandler := httpAdapter.NewHealthHandler(pool, cfg.App.Version)
	if redisHealth != nil {
		healthHandler.WithDependency("redis", redisHealth)
	}

	// 8. Setup Router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Logger:           logger,
		TokenManager:     tokenManager,
		Redistribute:     httpAdapter.NewRedistributeHandler(redistributionService, errorHandler, logger),
		Presence:         httpAdapter.NewPresenceHandler(presenceService, errorHandler, logger),
		WebSocket:        httpAdapter.NewWebSocketHandler(hub, tokenManager, authzService, presenceService, errorHandler, cfg, logger),
		Health:           healthHandler,
		Metrics:          appMetrics.Handler(),
		Instrument:       appMetrics.Instrument,
		GeneralLimiter:   generalLimiter,
		TriggerLimiter:   triggerLimiter,
		HeartbeatLimiter: heartbeatLimiter,
	})

	// 9. Scheduled Trigger
	var sched *scheduler.Scheduler
	if cfg.SchedulerEnabled() {
		sched, err = scheduler.New(cfg.Redistribution.Schedule, redistributionService, cfg.Redistribution.RunTimeout, logger)
		if err != nil {
			logger.Error("failed to create scheduler", "error", err)
			os.Exit(1)
		}
		sched.Start()
		logger.Info("redistribution scheduled", "schedule", cfg.Redistribution.Schedule)
	} else {
		logger.Info("scheduler disabled; redistribution runs on request only")
	}

	// 10. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			logger.Error("scheduler shutdown error", "error", err)
		}
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}
	hub.Stop()

	logger.Info("server shutdown complete")
}
