package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stakehouse/platform/internal/app"
	"github.com/stakehouse/platform/internal/auth"
	"github.com/stakehouse/platform/internal/guard"
	"github.com/stakehouse/platform/internal/infra"
	"github.com/stakehouse/platform/internal/projection"
)

func main() {
	mintRole := flag.String("mint-operator", "", "print an operator token with this role (viewer, operator, superadmin) and exit")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if *mintRole != "" {
		if err := mintOperator(cfg, *mintRole); err != nil {
			logger.Error("mint operator token", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func mintOperator(cfg *infra.Config, role string) error {
	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTOperatorExpiry)
	token, err := jwtMgr.GenerateToken(auth.RealmOperator, uuid.New(), role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(cfg *infra.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	runner := app.NewRunner(store, cfg, logger)
	services := app.NewServices(runner, app.PolicyFromConfig(cfg), nil, logger)

	// Redis backs projections and rate limiting when enabled.
	var (
		redisClient *redis.Client
		projections projection.Store = projection.NewInMemoryStore()
		limiter     guard.Guard      = guard.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	)
	if cfg.RedisEnabled {
		redisClient, err = infra.NewRedisClient(ctx, cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
		projections = projection.NewRedisStore(redisClient)
		limiter = guard.NewRedisRateLimiter(redisClient, cfg.RateLimitPerMinute, time.Minute, logger)
	}

	sinks, closeSinks, err := app.BuildSinks(ctx, cfg, projection.NewProjector(projections), redisClient, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	relay := infra.NewOutboxRelay(runner, sinks, guard.NewCircuitBreaker(5, 30*time.Second), logger).
		WithPolling(cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	relay.Start(ctx)

	sweeper := infra.NewEventSweeper(services.Events, cfg.EventSweepInterval, logger)
	sweeper.Start(ctx)

	router := app.NewRouter(app.RouterDeps{
		Store:       store,
		Services:    services,
		JWTMgr:      auth.NewJWTManager(cfg.JWTSecret, cfg.JWTPlayerExpiry, cfg.JWTOperatorExpiry),
		Limiter:     limiter,
		Dedup:       guard.NewIdempotencyGuard(24 * time.Hour),
		Projections: projections,
		CORSOrigins: cfg.CORSAllowedOrigins,
		Logger:      logger,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	// Flush what the last requests committed.
	if err := relay.Drain(shutdownCtx); err != nil {
		logger.Warn("final outbox drain incomplete", "error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
