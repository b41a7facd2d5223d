// Command outbox-consumer runs the outbox side of the platform apart from
// the API:
//
//	-mode relay    drain the outbox table into the configured sinks
//	-mode project  consume the Kafka topics into the projection store
//	-mode audit    replay the ledger of the given accounts and report drift
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stakehouse/platform/internal/app"
	"github.com/stakehouse/platform/internal/guard"
	"github.com/stakehouse/platform/internal/infra"
	"github.com/stakehouse/platform/internal/projection"
)

func main() {
	mode := flag.String("mode", "relay", "relay, project or audit")
	group := flag.String("group", "stakehouse-projector", "Kafka consumer group for project mode")
	accounts := flag.String("accounts", "", "comma-separated account ids for audit mode")
	flag.Parse()

	cfg, err := infra.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := infra.NewLogger(cfg.LogLevel).With("mode", *mode)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "relay":
		err = runRelay(ctx, cfg, logger)
	case "project":
		err = runProjector(ctx, cfg, *group, logger)
	case "audit":
		err = runAudit(ctx, cfg, *accounts, logger)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("outbox consumer failed", "error", err)
		os.Exit(1)
	}
}

func connectRedis(ctx context.Context, cfg *infra.Config, logger *slog.Logger) (*redis.Client, projection.Store, error) {
	if !cfg.RedisEnabled {
		logger.Warn("redis disabled; projections are kept in process memory")
		return nil, projection.NewInMemoryStore(), nil
	}
	client, err := infra.NewRedisClient(ctx, cfg.RedisURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, projection.NewRedisStore(client), nil
}

func runRelay(ctx context.Context, cfg *infra.Config, logger *slog.Logger) error {
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	runner := app.NewRunner(store, cfg, logger)

	client, projections, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}

	sinks, closeSinks, err := app.BuildSinks(ctx, cfg, projection.NewProjector(projections), client, logger)
	if err != nil {
		return err
	}
	defer closeSinks()

	relay := infra.NewOutboxRelay(runner, sinks, guard.NewCircuitBreaker(5, 30*time.Second), logger).
		WithPolling(cfg.OutboxPollInterval, cfg.OutboxBatchSize)
	relay.Start(ctx)
	<-ctx.Done()
	logger.Info("outbox relay shutting down")
	return nil
}

func runProjector(ctx context.Context, cfg *infra.Config, group string, logger *slog.Logger) error {
	if !cfg.KafkaEnabled {
		return errors.New("project mode needs KAFKA_ENABLED=true")
	}
	client, projections, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if client != nil {
		defer client.Close()
	}

	projector := projection.NewProjector(projections)
	consumer := infra.NewKafkaConsumer(cfg.Brokers(), group, infra.OutboxTopics(), logger)
	defer consumer.Close()

	logger.Info("projector consuming", "group", group, "topics", infra.OutboxTopics())
	for {
		err := consumer.Next(ctx, projector.Apply)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			logger.Info("projector shutting down")
			return nil
		default:
			logger.Error("project record", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func runAudit(ctx context.Context, cfg *infra.Config, raw string, logger *slog.Logger) error {
	var ids []uuid.UUID
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return fmt.Errorf("account id %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return errors.New("audit mode needs -accounts")
	}

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	services := app.NewServices(app.NewRunner(store, cfg, logger), app.PolicyFromConfig(cfg), nil, logger)

	failed := 0
	for _, id := range ids {
		res, err := services.Accounts.VerifyLedger(ctx, id)
		if err != nil {
			return fmt.Errorf("verify %s: %w", id, err)
		}
		if !res.AllPassed {
			failed++
			logger.Error("ledger drift", "account_id", id, "replayed", res.Replayed, "stored", res.Stored, "invariants", res.Invariants)
			continue
		}
		logger.Info("ledger verified", "account_id", id, "entries", res.EntryCount)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed verification", failed, len(ids))
	}
	return nil
}
