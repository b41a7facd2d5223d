package infra

import (
	"context"
	"log/slog"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/projection"
)

//go:generate mockgen -source=$GOFILE -destination=mock/sink.go -package=mock_infra

// Sink receives committed outbox records from the relay. Delivery is at
// least once, so sinks must tolerate replays of the same EventID.
type Sink interface {
	Name() string
	Publish(ctx context.Context, records []domain.OutboxRecord) error
}

// LogSink writes each record to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs at info level.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Publish(_ context.Context, records []domain.OutboxRecord) error {
	for _, r := range records {
		s.logger.Info("outbox event",
			"seq", r.Seq,
			"event_id", r.EventID,
			"aggregate_type", r.AggregateType,
			"aggregate_id", r.AggregateID,
			"event_type", r.EventType,
		)
	}
	return nil
}

// ProjectionSink folds records into the read-model cache.
type ProjectionSink struct {
	projector *projection.Projector
}

// NewProjectionSink wraps a projector.
func NewProjectionSink(p *projection.Projector) *ProjectionSink {
	return &ProjectionSink{projector: p}
}

func (s *ProjectionSink) Name() string { return "projection" }

func (s *ProjectionSink) Publish(ctx context.Context, records []domain.OutboxRecord) error {
	for _, r := range records {
		if err := s.projector.Apply(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
