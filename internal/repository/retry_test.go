package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedStore struct {
	results []error
	calls   int
}

func (s *scriptedStore) RunTx(ctx context.Context, fn TxFunc) error {
	s.calls++
	if err := fn(ctx, nil); err != nil {
		return err
	}
	if s.calls <= len(s.results) {
		return s.results[s.calls-1]
	}
	return nil
}

func (s *scriptedStore) Ping(context.Context) error { return nil }
func (s *scriptedStore) Close() error               { return nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner(store Store, attempts int) (*TxRunner, *[]time.Duration) {
	r := NewTxRunner(store, RetryPolicy{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 8 * time.Millisecond}, quietLogger())
	var slept []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func noop(context.Context, Tx) error { return nil }

func TestTxRunner_CommitsFirstTry(t *testing.T) {
	store := &scriptedStore{}
	r, slept := newTestRunner(store, 5)

	require.NoError(t, r.Run(context.Background(), noop))
	assert.Equal(t, 1, store.calls)
	assert.Empty(t, *slept)
}

func TestTxRunner_RetriesConflicts(t *testing.T) {
	store := &scriptedStore{results: []error{ErrConflict, fmt.Errorf("update room: %w", ErrConflict), nil}}
	r, slept := newTestRunner(store, 5)

	require.NoError(t, r.Run(context.Background(), noop))
	assert.Equal(t, 3, store.calls)
	assert.Len(t, *slept, 2)
}

func TestTxRunner_ContentionAfterBound(t *testing.T) {
	store := &scriptedStore{results: []error{ErrConflict, ErrConflict, ErrConflict}}
	r, slept := newTestRunner(store, 3)

	err := r.Run(context.Background(), noop)
	require.Error(t, err)
	assert.Equal(t, domain.CodeContention, domain.CodeOf(err))
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, 3, store.calls)
	assert.Len(t, *slept, 2)
}

func TestTxRunner_DomainErrorsNotRetried(t *testing.T) {
	store := &scriptedStore{}
	r, _ := newTestRunner(store, 5)

	err := r.Run(context.Background(), func(context.Context, Tx) error {
		return domain.ErrRoomClosed("r1")
	})
	assert.Equal(t, domain.CodeRoomClosed, domain.CodeOf(err))
	assert.Equal(t, 1, store.calls)
}

func TestTxRunner_CancelledDuringBackoff(t *testing.T) {
	store := &scriptedStore{results: []error{ErrConflict, ErrConflict}}
	r := NewTxRunner(store, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, noop)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.calls)
}

func TestTxRunner_BackoffBounded(t *testing.T) {
	r, _ := newTestRunner(&scriptedStore{}, 10)
	for attempt := 1; attempt <= 10; attempt++ {
		d := r.backoff(attempt)
		assert.LessOrEqual(t, d, 8*time.Millisecond)
		assert.GreaterOrEqual(t, d, time.Millisecond/2)
	}
}

func TestNewTxRunner_NormalizesPolicy(t *testing.T) {
	r := NewTxRunner(&scriptedStore{}, RetryPolicy{MaxAttempts: 0, BaseDelay: 5 * time.Millisecond}, quietLogger())
	assert.Equal(t, 1, r.policy.MaxAttempts)
	assert.Equal(t, 5*time.Millisecond, r.policy.MaxDelay)
}
