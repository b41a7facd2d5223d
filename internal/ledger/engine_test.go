package ledger

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) (*memory.Store, *Engine) {
	t.Helper()
	return memory.New(), NewEngine(func() time.Time { return fixedNow })
}

func seed(t *testing.T, s repository.Store, points, cash int64) *domain.Account {
	t.Helper()
	a := &domain.Account{ID: uuid.New(), PointsBalance: 0, CashBalance: 0, Status: domain.AccountActive, CreatedAt: fixedNow, UpdatedAt: fixedNow}
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Create(ctx, a)
	}))
	if points == 0 && cash == 0 {
		return a
	}
	eng := NewEngine(func() time.Time { return fixedNow })
	ref := domain.Ref{Kind: domain.RelatedAdjustment, ID: uuid.New()}
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := eng.Apply(ctx, tx, ref, []domain.Delta{
			{AccountID: a.ID, Currency: domain.CurrencyPoints, Amount: points, Reason: domain.ReasonOperatorAdjustment},
			{AccountID: a.ID, Currency: domain.CurrencyCash, Amount: cash, Reason: domain.ReasonOperatorAdjustment},
		})
		return err
	}))
	funded, _ := load(t, s, a.ID)
	return funded
}

func apply(s repository.Store, e *Engine, ref domain.Ref, deltas ...domain.Delta) (*Posting, error) {
	var p *Posting
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		p, err = e.Apply(ctx, tx, ref, deltas)
		return err
	})
	return p, err
}

func load(t *testing.T, s repository.Store, id uuid.UUID) (*domain.Account, []domain.LedgerEntry) {
	t.Helper()
	var acct *domain.Account
	var hist []domain.LedgerEntry
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		if acct, err = tx.Accounts().FindByID(ctx, id); err != nil {
			return err
		}
		hist, err = tx.Ledger().History(ctx, id)
		return err
	}))
	return acct, hist
}

func TestApply_CreditAndDebit(t *testing.T) {
	s, eng := newFixture(t)
	a := seed(t, s, 100, 0)
	room := domain.Ref{Kind: domain.RelatedRoom, ID: uuid.New(), Scope: "round:1"}

	p, err := apply(s, eng, room, domain.Delta{AccountID: a.ID, Currency: domain.CurrencyPoints, Amount: -40, Reason: domain.ReasonRoomStake})
	require.NoError(t, err)
	require.Len(t, p.Entries, 1)
	assert.Equal(t, int64(60), p.Entries[0].ResultingBalance)
	assert.Equal(t, domain.RelatedRoom, p.Entries[0].RelatedKind)
	assert.Equal(t, room.ID, p.Entries[0].RelatedID)
	assert.Equal(t, int64(60), p.Account(a.ID).PointsBalance)

	acct, hist := load(t, s, a.ID)
	assert.Equal(t, int64(60), acct.PointsBalance)
	require.Len(t, hist, 2)
	assert.Equal(t, domain.ReasonRoomStake, hist[1].Reason)
}

func TestApply_Errors(t *testing.T) {
	tests := []struct {
		name     string
		disabled bool
		account  func(a *domain.Account) uuid.UUID
		amount   int64
		code     string
	}{
		{"insufficient funds", false, func(a *domain.Account) uuid.UUID { return a.ID }, -101, domain.CodeInsufficientFunds},
		{"missing account", false, func(*domain.Account) uuid.UUID { return uuid.New() }, 10, domain.CodeAccountNotFound},
		{"debit on disabled account", true, func(a *domain.Account) uuid.UUID { return a.ID }, -1, domain.CodeAccountDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, eng := newFixture(t)
			a := seed(t, s, 100, 0)
			if tt.disabled {
				require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
					cur, _ := tx.Accounts().FindByID(ctx, a.ID)
					cur.Disabled = true
					return tx.Accounts().Update(ctx, cur)
				}))
			}

			_, err := apply(s, eng, domain.Ref{Kind: domain.RelatedRoom, ID: uuid.New()},
				domain.Delta{AccountID: tt.account(a), Currency: domain.CurrencyPoints, Amount: tt.amount, Reason: domain.ReasonRoomStake})
			require.Error(t, err)
			assert.Equal(t, tt.code, domain.CodeOf(err))

			acct, hist := load(t, s, a.ID)
			assert.Equal(t, int64(100), acct.PointsBalance)
			assert.Len(t, hist, 1, "no entry written on failure")
		})
	}
}

func TestApply_CreditAllowedOnDisabledAccount(t *testing.T) {
	s, eng := newFixture(t)
	a := seed(t, s, 0, 0)
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		cur, _ := tx.Accounts().FindByID(ctx, a.ID)
		cur.Disabled = true
		return tx.Accounts().Update(ctx, cur)
	}))

	_, err := apply(s, eng, domain.Ref{Kind: domain.RelatedRoom, ID: uuid.New()},
		domain.Delta{AccountID: a.ID, Currency: domain.CurrencyPoints, Amount: 5, Reason: domain.ReasonRoomRefund})
	require.NoError(t, err)
}

func TestApply_CreditOverflowRejected(t *testing.T) {
	s, eng := newFixture(t)
	a := seed(t, s, math.MaxInt64-10, 0)

	_, err := apply(s, eng, domain.Ref{Kind: domain.RelatedAdjustment, ID: uuid.New()},
		domain.Delta{AccountID: a.ID, Currency: domain.CurrencyPoints, Amount: 11, Reason: domain.ReasonOperatorAdjustment})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	got, hist := load(t, s, a.ID)
	assert.Equal(t, int64(math.MaxInt64-10), got.PointsBalance)
	assert.Len(t, hist, 1)
}

func TestApply_BatchIsAllOrNothing(t *testing.T) {
	s, eng := newFixture(t)
	rich := seed(t, s, 100, 0)
	poor := seed(t, s, 10, 0)

	_, err := apply(s, eng, domain.Ref{Kind: domain.RelatedRoom, ID: uuid.New()},
		domain.Delta{AccountID: rich.ID, Currency: domain.CurrencyPoints, Amount: -50, Reason: domain.ReasonRoomStake},
		domain.Delta{AccountID: poor.ID, Currency: domain.CurrencyPoints, Amount: -50, Reason: domain.ReasonRoomStake},
	)
	assert.Equal(t, domain.CodeInsufficientFunds, domain.CodeOf(err))

	acct, hist := load(t, s, rich.ID)
	assert.Equal(t, int64(100), acct.PointsBalance)
	assert.Len(t, hist, 1)
}

func TestApply_IdempotentReplay(t *testing.T) {
	s, eng := newFixture(t)
	a := seed(t, s, 0, 0)
	ref := domain.Ref{Kind: domain.RelatedRequest, ID: uuid.New(), Scope: "decision"}
	credit := domain.Delta{AccountID: a.ID, Currency: domain.CurrencyPoints, Amount: 500, Reason: domain.ReasonLoanCredit}

	_, err := apply(s, eng, ref, credit)
	require.NoError(t, err)
	p, err := apply(s, eng, ref, credit)
	require.NoError(t, err)
	assert.Empty(t, p.Entries)
	assert.Equal(t, 1, p.Replayed)

	acct, hist := load(t, s, a.ID)
	assert.Equal(t, int64(500), acct.PointsBalance)
	assert.Len(t, hist, 1)
}

func TestApply_HouseEntries(t *testing.T) {
	s, eng := newFixture(t)
	winner := seed(t, s, 0, 0)
	ref := domain.Ref{Kind: domain.RelatedRoom, ID: uuid.New(), Scope: "round:1"}

	p, err := apply(s, eng, ref,
		domain.Delta{AccountID: winner.ID, Currency: domain.CurrencyPoints, Amount: 190, Reason: domain.ReasonRoomPayout},
		domain.Delta{AccountID: domain.HouseAccountID, Currency: domain.CurrencyPoints, Amount: 10, Reason: domain.ReasonHouseFee},
	)
	require.NoError(t, err)
	require.Len(t, p.Entries, 2)
	assert.True(t, p.Entries[1].IsHouse())
	assert.Zero(t, p.Entries[1].ResultingBalance)

	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		sum, err := tx.Ledger().SumHouse(ctx, domain.CurrencyPoints)
		assert.Equal(t, int64(10), sum)

		events, _ := tx.Outbox().FetchUnpublished(ctx, 0)
		var house int
		for _, ev := range events {
			if ev.AggregateType == domain.AggregateHouse {
				house++
			}
		}
		assert.Equal(t, 1, house)
		return err
	}))
}

func TestApply_ZeroDeltaSkipped(t *testing.T) {
	s, eng := newFixture(t)
	a := seed(t, s, 0, 0)
	p, err := apply(s, eng, domain.Ref{Kind: domain.RelatedBet, ID: uuid.New()},
		domain.Delta{AccountID: a.ID, Currency: domain.CurrencyCash, Amount: 0, Reason: domain.ReasonBetPayout})
	require.NoError(t, err)
	assert.Empty(t, p.Entries)
}

func TestSeal(t *testing.T) {
	s, eng := newFixture(t)
	a := seed(t, s, 0, 0)

	var entries []domain.LedgerEntry
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		entries, err = eng.Seal(ctx, tx, a)
		return err
	}))
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, domain.ReasonAccountSealed, e.Reason)
		assert.Zero(t, e.Delta)
	}

	again := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := eng.Seal(ctx, tx, a)
		return err
	})
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(again), "a sealed history is not sealed twice")

	funded := seed(t, s, 1, 0)
	require.Equal(t, int64(1), funded.PointsBalance)
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := eng.Seal(ctx, tx, funded)
		return err
	})
	assert.Equal(t, domain.CodeConflict, domain.CodeOf(err))
}

func TestVerify(t *testing.T) {
	s, eng := newFixture(t)
	a := seed(t, s, 100, 20)
	_, err := apply(s, eng, domain.Ref{Kind: domain.RelatedRoom, ID: uuid.New()},
		domain.Delta{AccountID: a.ID, Currency: domain.CurrencyPoints, Amount: -30, Reason: domain.ReasonRoomStake})
	require.NoError(t, err)

	var res *ReplayResult
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		res, err = Verify(ctx, tx, a.ID)
		return err
	}))
	assert.True(t, res.AllPassed, "%+v", res.Invariants)
	assert.Equal(t, 3, res.EntryCount)
	assert.Equal(t, int64(70), res.Replayed[domain.CurrencyPoints])
	assert.Equal(t, int64(20), res.Replayed[domain.CurrencyCash])

	// A direct row write bypassing the engine breaks parity.
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		cur, _ := tx.Accounts().FindByID(ctx, a.ID)
		cur.PointsBalance = 1000
		return tx.Accounts().Update(ctx, cur)
	}))
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		res, err = Verify(ctx, tx, a.ID)
		return err
	}))
	assert.False(t, res.AllPassed)
	assert.False(t, res.Invariants[1].Passed)
	assert.True(t, res.Invariants[2].Passed)
}

func TestVerify_MissingAccount(t *testing.T) {
	s, _ := newFixture(t)
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		_, err := Verify(ctx, tx, uuid.New())
		return err
	})
	assert.Equal(t, domain.CodeAccountNotFound, domain.CodeOf(err))
}
