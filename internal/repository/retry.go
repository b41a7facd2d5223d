package repository

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/stakehouse/platform/internal/domain"
)

// RetryPolicy bounds how often a conflicting transaction is rerun.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy suits interactive requests.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 8, BaseDelay: 2 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
}

// TxRunner runs units of work against a Store, rerunning them on
// ErrConflict with exponential backoff and jitter. Once the attempts are
// exhausted it returns a CONTENTION error.
type TxRunner struct {
	store  Store
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewTxRunner creates a runner over store.
func NewTxRunner(store Store, policy RetryPolicy, logger *slog.Logger) *TxRunner {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.MaxDelay < policy.BaseDelay {
		policy.MaxDelay = policy.BaseDelay
	}
	return &TxRunner{store: store, policy: policy, logger: logger, sleep: sleepCtx}
}

// Store returns the underlying backend.
func (r *TxRunner) Store() Store { return r.store }

// Run executes fn until it commits, fails with a non-conflict error, or the
// attempts run out.
func (r *TxRunner) Run(ctx context.Context, fn TxFunc) error {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		err := r.store.RunTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}
		lastErr = err
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.backoff(attempt)
		r.logger.Debug("transaction conflict, retrying", "attempt", attempt, "delay", delay)
		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	r.logger.Warn("transaction abandoned after conflicts", "attempts", r.policy.MaxAttempts)
	return domain.ErrContention(r.policy.MaxAttempts, lastErr)
}

// backoff doubles BaseDelay per attempt up to MaxDelay, then picks a random
// point in the upper half of that window.
func (r *TxRunner) backoff(attempt int) time.Duration {
	d := r.policy.BaseDelay
	for i := 1; i < attempt && d < r.policy.MaxDelay; i++ {
		d *= 2
	}
	if d > r.policy.MaxDelay {
		d = r.policy.MaxDelay
	}
	if d <= 1 {
		return d
	}
	half := d / 2
	return half + rand.N(half+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
