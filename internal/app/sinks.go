package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/stakehouse/platform/internal/infra"
	"github.com/stakehouse/platform/internal/projection"
)

// BuildSinks returns the outbox sinks enabled by cfg. The projector sink is
// added when projector is non-nil, the Redis sink when client is non-nil.
// The returned func closes whatever the sinks opened.
func BuildSinks(ctx context.Context, cfg *infra.Config, projector *projection.Projector, client *redis.Client, logger *slog.Logger) ([]infra.Sink, func(), error) {
	sinks := []infra.Sink{infra.NewLogSink(logger)}
	closers := []func() error{}

	if projector != nil {
		sinks = append(sinks, infra.NewProjectionSink(projector))
	}
	if client != nil {
		sinks = append(sinks, infra.NewRedisSink(client))
	}
	if cfg.KafkaEnabled {
		producer := infra.NewKafkaProducer(cfg.Brokers(), logger)
		sinks = append(sinks, producer)
		closers = append(closers, producer.Close)
	}
	if cfg.ElasticsearchEnabled {
		es, err := infra.NewElasticsearchSink(ctx, cfg.ElasticsearchURL, cfg.ElasticsearchIndex)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, fmt.Errorf("elasticsearch sink: %w", err)
		}
		sinks = append(sinks, es)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("close sink", "error", err)
			}
		}
	}
	return sinks, closeAll, nil
}
