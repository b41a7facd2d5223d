package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/guard"
	"github.com/stakehouse/platform/internal/repository"
)

// ErrSinkUnavailable is returned when a batch could not reach every sink.
var ErrSinkUnavailable = errors.New("outbox sink unavailable")

// OutboxRelay polls committed outbox records and fans them out to sinks. A
// batch is marked published only after every sink accepted it; otherwise the
// whole batch is retried on the next poll.
type OutboxRelay struct {
	runner    *repository.TxRunner
	sinks     []Sink
	breaker   *guard.CircuitBreaker
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxRelay creates a relay. Each sink gets its own circuit.
func NewOutboxRelay(runner *repository.TxRunner, sinks []Sink, breaker *guard.CircuitBreaker, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		runner:    runner,
		sinks:     sinks,
		breaker:   breaker,
		logger:    logger,
		interval:  500 * time.Millisecond,
		batchSize: 100,
	}
}

// WithPolling overrides the poll interval and batch size.
func (r *OutboxRelay) WithPolling(interval time.Duration, batchSize int) *OutboxRelay {
	if interval > 0 {
		r.interval = interval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	return r
}

// Start begins polling in a goroutine. Stops when ctx is cancelled.
func (r *OutboxRelay) Start(ctx context.Context) {
	names := make([]string, len(r.sinks))
	for i, s := range r.sinks {
		names[i] = s.Name()
	}
	r.logger.Info("outbox relay started", "interval", r.interval, "batch_size", r.batchSize, "sinks", names)

	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				r.logger.Info("outbox relay stopped")
				return
			case <-ticker.C:
				if err := r.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
					r.logger.Error("outbox relay error", "error", err)
				}
			}
		}
	}()
}

// Drain relays full batches until the queue is empty or a batch fails.
func (r *OutboxRelay) Drain(ctx context.Context) error {
	for {
		n, err := r.RelayOnce(ctx)
		if err != nil {
			return err
		}
		if n < r.batchSize {
			return nil
		}
	}
}

// RelayOnce moves one batch and reports how many records were published.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	var batch []domain.OutboxRecord
	err := r.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		batch, err = tx.Outbox().FetchUnpublished(ctx, r.batchSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("fetch outbox: %w", err)
	}
	if len(batch) == 0 {
		return 0, nil
	}

	var failed []string
	for _, s := range r.sinks {
		name := s.Name()
		if res := r.breaker.Check(ctx, name); !res.Allowed {
			r.logger.Debug("sink skipped", "sink", name, "reason", res.Reason)
			failed = append(failed, name)
			continue
		}
		if err := s.Publish(ctx, batch); err != nil {
			r.breaker.RecordFailure(name)
			r.logger.Warn("sink publish failed", "sink", name, "records", len(batch), "error", err)
			failed = append(failed, name)
			continue
		}
		r.breaker.RecordSuccess(name)
	}
	if len(failed) > 0 {
		return 0, fmt.Errorf("%w: %v", ErrSinkUnavailable, failed)
	}

	seqs := make([]int64, len(batch))
	for i, rec := range batch {
		seqs[i] = rec.Seq
	}
	err = r.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Outbox().MarkPublished(ctx, seqs)
	})
	if err != nil {
		return 0, fmt.Errorf("mark published: %w", err)
	}

	r.logger.Debug("outbox batch relayed", "published", len(batch), "first_seq", seqs[0], "last_seq", seqs[len(seqs)-1])
	return len(batch), nil
}
