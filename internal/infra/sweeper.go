package infra

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredEventLocker locks events whose end time has passed.
type ExpiredEventLocker interface {
	LockExpired(ctx context.Context) (int, error)
}

// EventSweeper periodically persists the implicit lock of expired events.
// Betting is already refused past the end time; the sweeper just makes the
// stored status catch up.
type EventSweeper struct {
	locker   ExpiredEventLocker
	interval time.Duration
	logger   *slog.Logger
}

// NewEventSweeper creates a sweeper running every interval.
func NewEventSweeper(locker ExpiredEventLocker, interval time.Duration, logger *slog.Logger) *EventSweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &EventSweeper{locker: locker, interval: interval, logger: logger}
}

// Start runs the sweep loop in a goroutine until ctx is cancelled.
func (s *EventSweeper) Start(ctx context.Context) {
	s.logger.Info("event sweeper started", "interval", s.interval)
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("event sweeper stopped")
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep runs one pass and returns the number of events locked.
func (s *EventSweeper) Sweep(ctx context.Context) int {
	n, err := s.locker.LockExpired(ctx)
	if err != nil {
		s.logger.Error("event sweep failed", "error", err)
		return n
	}
	if n > 0 {
		s.logger.Info("expired events locked", "count", n)
	}
	return n
}
