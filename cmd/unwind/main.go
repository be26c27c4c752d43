package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/api"
	"github.com/platinummonkey/unwind/pkg/auth"
	"github.com/platinummonkey/unwind/pkg/cache"
	"github.com/platinummonkey/unwind/pkg/config"
	"github.com/platinummonkey/unwind/pkg/middleware"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage/postgres"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "unwind: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout).
		WithField("service", "unwind-api").
		WithField("version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otelCfg := cfg.Observability.OTel()
	if otelCfg.ServiceVersion == "" {
		otelCfg.ServiceVersion = version
	}
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	cm, err := postgres.NewConnectionManager(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if err := postgres.EnsureSchema(ctx, cm.Primary()); err != nil {
		cm.Close()
		return err
	}
	cm.StartHealthCheckRoutine(ctx, 30*time.Second)
	logger.WithField("replicas", cm.ReplicaCount()).Info("Connected to PostgreSQL")

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing with in-process cache only")
			redisClient = nil
		} else {
			logger.Info("Connected to Redis")
		}
	}
	dashboards := cache.NewTiered(cfg.Cache, redisClient)
	dashboards.OnError(func(op string, err error) {
		logger.WithError(err).WithField("op", op).Warn("Redis cache operation failed")
	})
	stopInvalidations, err := dashboards.Subscribe(ctx)
	if err != nil {
		logger.WithError(err).Warn("Cache invalidation channel unavailable, relying on L1 expiry")
		stopInvalidations = func() error { return nil }
	}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}
	var otelMetrics *observability.OTelMetrics
	if providers != nil {
		otelMetrics, err = observability.NewOTelMetrics()
		if err != nil {
			return fmt.Errorf("failed to create OpenTelemetry instruments: %w", err)
		}
	}

	var service *analytics.Service
	engine := analytics.NewEngine(analytics.DefaultPolicy())
	var watcher *analytics.PolicyWatcher
	if cfg.Analytics.PolicyFile != "" {
		watcher, err = analytics.NewPolicyWatcher(cfg.Analytics.PolicyFile, func(p analytics.Policy) {
			if err := service.SetPolicy(ctx, p); err != nil {
				logger.WithError(err).Error("Failed to apply reloaded policy")
			}
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to load policy: %w", err)
		}
		engine = analytics.NewEngine(watcher.Policy())
	}

	snapshots := postgres.NewSnapshotSource(cm)
	opts := []analytics.Option{
		analytics.WithCache(dashboards, cfg.Cache.L1TTL),
		analytics.WithSnapshots(snapshots),
		analytics.WithLogger(logger.WithField("component", "analytics")),
	}
	if metrics != nil {
		opts = append(opts, analytics.WithRecorder(metrics))
	}
	if otelMetrics != nil {
		opts = append(opts, analytics.WithRecorder(otelMetrics))
	}
	service = analytics.NewService(engine, snapshots.UsageRepository, opts...)

	if watcher != nil {
		go func() {
			defer observability.RecoverPanic(logger, "policy watcher")
			if err := watcher.Run(ctx); err != nil {
				logger.WithError(err).Error("Policy watcher stopped")
			}
		}()
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.Auth.AccessSecret,
		RefreshSecret: cfg.Auth.RefreshSecret,
		AccessTTL:     cfg.Auth.AccessTTL,
		RefreshTTL:    cfg.Auth.RefreshTTL,
	})
	if err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(middleware.RateLimitConfig{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		}, metrics)
		limiter.StartCleanup(ctx, time.Minute)
	}

	serverCfg := api.Config{
		Users:          postgres.NewUserRepository(cm.Primary()),
		Usage:          snapshots.UsageRepository,
		Analytics:      service,
		Issuer:         issuer,
		Hasher:         auth.NewPasswordHasher(cfg.Auth.BcryptCost),
		Limiter:        limiter,
		Health:         observability.NewHealthChecker(cm.Primary(), redisClient, version),
		Metrics:        metrics,
		OTelMetrics:    otelMetrics,
		Tracing:        providers != nil,
		Logger:         logger,
		Clock:          api.ClockIn(cfg.Analytics.Location()),
		ComputeTimeout: cfg.Analytics.ComputeTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
	}
	if metrics != nil {
		serverCfg.Registry = registry
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewServer(serverCfg),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, httpServer, cfg.Server.ShutdownTimeout)
	shutdown.Register("background", func(context.Context) error {
		cancel()
		return nil
	})
	shutdown.Register("database", func(context.Context) error { return cm.Close() })
	shutdown.Register("cache", func(context.Context) error {
		if err := stopInvalidations(); err != nil {
			logger.WithError(err).Warn("Failed to close cache invalidation subscription")
		}
		return dashboards.Close()
	})
	if redisClient != nil {
		shutdown.Register("redis", func(context.Context) error { return redisClient.Close() })
	}
	shutdown.Register("otel", func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	waitCtx, stop := context.WithCancel(ctx)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.WithField("addr", httpServer.Addr).Info("Starting Unwind API server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
			stop()
		}
	}()

	shutdownErr := shutdown.WaitForShutdown(waitCtx)
	select {
	case err := <-serverErr:
		return errors.Join(fmt.Errorf("http server: %w", err), shutdownErr)
	default:
		return shutdownErr
	}
}
