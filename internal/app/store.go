package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stakehouse/platform/internal/infra"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/repository/memory"
	"github.com/stakehouse/platform/internal/repository/postgres"
	"github.com/stakehouse/platform/internal/repository/sqlite"
)

// OpenStore connects the backend named by STORE_BACKEND. Postgres runs the
// migrations first when RUN_MIGRATIONS is set.
func OpenStore(ctx context.Context, cfg *infra.Config, logger *slog.Logger) (repository.Store, error) {
	switch cfg.StoreBackend {
	case infra.BackendPostgres:
		if cfg.RunMigrations {
			if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info("connected to postgres")
		return postgres.New(pool), nil

	case infra.BackendSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("opened sqlite store", "path", cfg.SQLitePath)
		return s, nil

	case infra.BackendMemory:
		logger.Warn("using in-memory store; state is lost on exit")
		return memory.New(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}

// NewRunner wraps store with the configured retry policy.
func NewRunner(store repository.Store, cfg *infra.Config, logger *slog.Logger) *repository.TxRunner {
	return repository.NewTxRunner(store, repository.RetryPolicy{
		MaxAttempts: cfg.TxMaxAttempts,
		BaseDelay:   cfg.TxBackoffBase,
		MaxDelay:    cfg.TxBackoffMax,
	}, logger)
}
