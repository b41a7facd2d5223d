package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/repository/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(*testing.T) repository.Store { return New() }, storetest.Options{Interleaved: true})
}

func TestFindReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := &domain.Account{ID: uuid.New(), PointsBalance: 10, CreatedAt: time.Now()}
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Create(ctx, a)
	}))

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Accounts().FindByID(ctx, a.ID)
		require.NoError(t, err)
		got.PointsBalance = 999

		again, err := tx.Accounts().FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(10), again.PointsBalance, "unsaved edits must not leak")
		return nil
	}))
}

func TestConcurrentIncrementsSerialize(t *testing.T) {
	s := New()
	ctx := context.Background()
	a := &domain.Account{ID: uuid.New(), CreatedAt: time.Now()}
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Create(ctx, a)
	}))

	runner := repository.NewTxRunner(s, repository.RetryPolicy{MaxAttempts: 1000, BaseDelay: time.Microsecond, MaxDelay: 50 * time.Microsecond}, quiet())

	const workers = 16
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
				cur, err := tx.Accounts().FindByID(ctx, a.ID)
				if err != nil {
					return err
				}
				cur.PointsBalance++
				return tx.Accounts().Update(ctx, cur)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Accounts().FindByID(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(workers), got.PointsBalance)
		assert.Equal(t, int64(workers+1), got.Version)
		return nil
	}))
}

func TestPendingLedgerVisibleInsideTx(t *testing.T) {
	s := New()
	ctx := context.Background()
	id := uuid.New()
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		e := &domain.LedgerEntry{AccountID: id, Currency: domain.CurrencyPoints, Delta: 5, IdempotencyKey: "k1"}
		require.NoError(t, tx.Ledger().Insert(ctx, e))

		found, err := tx.Ledger().FindByIdempotencyKey(ctx, "k1")
		require.NoError(t, err)
		require.NotNil(t, found)

		assert.ErrorIs(t, tx.Ledger().Insert(ctx, &domain.LedgerEntry{IdempotencyKey: "k1"}), repository.ErrConflict)
		return nil
	}))
}
