package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/ledger"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	now      time.Time
	operator uuid.UUID

	accounts *AccountService
	rooms    *RoomService
	events   *EventService
	requests *RequestService
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, DefaultPolicy())
}

func newFixtureWith(t *testing.T, pol Policy) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), now: fixedNow, operator: uuid.New()}
	clock := Clock(func() time.Time { return f.now })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	runner := repository.NewTxRunner(f.store, repository.RetryPolicy{
		MaxAttempts: 200,
		BaseDelay:   50 * time.Microsecond,
		MaxDelay:    2 * time.Millisecond,
	}, logger)
	engine := ledger.NewEngine(clock)

	f.accounts = NewAccountService(runner, engine, pol, clock, logger)
	f.rooms = NewRoomService(runner, engine, pol, clock, logger)
	f.events = NewEventService(runner, engine, pol, clock, logger)
	f.requests = NewRequestService(runner, engine, pol, clock, logger)
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

// player creates an approved account funded through operator adjustments.
func (f *fixture) player(t *testing.T, points, cash int64) *domain.Account {
	t.Helper()
	ctx := context.Background()
	acct, err := f.accounts.CreateAccount(ctx, CreateAccountInput{DisplayName: "player"})
	require.NoError(t, err)
	_, err = f.accounts.ApproveAccount(ctx, acct.ID)
	require.NoError(t, err)
	f.grant(t, acct.ID, domain.CurrencyPoints, points)
	f.grant(t, acct.ID, domain.CurrencyCash, cash)
	return acct
}

func (f *fixture) grant(t *testing.T, id uuid.UUID, c domain.Currency, amount int64) {
	t.Helper()
	if amount == 0 {
		return
	}
	_, err := f.accounts.AdjustBalance(context.Background(), AdjustInput{
		AccountID: id, Currency: c, Amount: amount, Note: "seed", OperatorID: f.operator,
	})
	require.NoError(t, err)
}

func (f *fixture) balances(t *testing.T, id uuid.UUID) (points, cash int64) {
	t.Helper()
	acct, err := f.accounts.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return acct.PointsBalance, acct.CashBalance
}

func (f *fixture) points(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	p, _ := f.balances(t, id)
	return p
}

func (f *fixture) house(t *testing.T, c domain.Currency) int64 {
	t.Helper()
	rev, err := f.accounts.HouseRevenue(context.Background())
	require.NoError(t, err)
	return rev[c]
}

// verified asserts every ledger invariant holds for each account.
func (f *fixture) verified(t *testing.T, ids ...uuid.UUID) {
	t.Helper()
	for _, id := range ids {
		res, err := f.accounts.VerifyLedger(context.Background(), id)
		require.NoError(t, err)
		assert.True(t, res.AllPassed, "ledger of %s: %+v", id, res.Invariants)
	}
}

func (f *fixture) related(t *testing.T, kind domain.RelatedKind, id uuid.UUID) []domain.LedgerEntry {
	t.Helper()
	var out []domain.LedgerEntry
	require.NoError(t, f.store.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Ledger().ListByRelated(ctx, kind, id)
		return err
	}))
	return out
}

func countReason(entries []domain.LedgerEntry, r domain.Reason) int {
	n := 0
	for _, e := range entries {
		if e.Reason == r {
			n++
		}
	}
	return n
}

func assertCode(t *testing.T, code string, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, domain.CodeOf(err), "error: %v", err)
}
