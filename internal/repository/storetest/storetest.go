// Package storetest is a conformance suite run against every Store backend.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Options describe backend capabilities the suite must respect.
type Options struct {
	// Interleaved is true when a second transaction can commit while another
	// is still open. Backends that serialize writers skip the race tests.
	Interleaved bool
}

// Run exercises open's Store against the repository contract.
func Run(t *testing.T, open func(t *testing.T) repository.Store, opts Options) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s repository.Store)
	}{
		{"AccountVersioning", testAccountVersioning},
		{"CreateExistingConflicts", testCreateExistingConflicts},
		{"RollbackOnError", testRollbackOnError},
		{"Referrals", testReferrals},
		{"LedgerAppend", testLedgerAppend},
		{"LedgerIdempotencyKey", testLedgerIdempotencyKey},
		{"LedgerPaging", testLedgerPaging},
		{"RoomsByState", testRoomsByState},
		{"EventsAndBets", testEventsAndBets},
		{"RequestsQueue", testRequestsQueue},
		{"Adjustments", testAdjustments},
		{"Outbox", testOutbox},
	}
	if opts.Interleaved {
		cases = append(cases, struct {
			name string
			fn   func(t *testing.T, s repository.Store)
		}{"InterleavedUpdateConflicts", testInterleavedUpdateConflicts})
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func newAccount(points, cash int64) *domain.Account {
	at := now()
	return &domain.Account{
		ID:            uuid.New(),
		DisplayName:   "player",
		PointsBalance: points,
		CashBalance:   cash,
		Status:        domain.AccountActive,
		CreatedAt:     at,
		UpdatedAt:     at,
	}
}

func seedAccount(t *testing.T, s repository.Store, points, cash int64) *domain.Account {
	t.Helper()
	a := newAccount(points, cash)
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Create(ctx, a)
	}))
	return a
}

func findAccount(t *testing.T, s repository.Store, id uuid.UUID) *domain.Account {
	t.Helper()
	var out *domain.Account
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Accounts().FindByID(ctx, id)
		return err
	}))
	return out
}

func entry(accountID uuid.UUID, delta, resulting int64, key string) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:               uuid.New(),
		AccountID:        accountID,
		Currency:         domain.CurrencyPoints,
		Delta:            delta,
		Reason:           domain.ReasonOperatorAdjustment,
		RelatedKind:      domain.RelatedAdjustment,
		RelatedID:        uuid.New(),
		IdempotencyKey:   key,
		ResultingBalance: resulting,
		CreatedAt:        now(),
	}
}

func insertEntry(t *testing.T, s repository.Store, e *domain.LedgerEntry) {
	t.Helper()
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Ledger().Insert(ctx, e)
	}))
}

func testAccountVersioning(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := seedAccount(t, s, 100, 50)
	assert.Equal(t, int64(1), a.Version)

	got := findAccount(t, s, a.ID)
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.PointsBalance)
	assert.Equal(t, int64(50), got.CashBalance)
	assert.Equal(t, int64(1), got.Version)

	got.PointsBalance = 80
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Update(ctx, got)
	}))
	assert.Equal(t, int64(2), got.Version)

	stale := *a
	stale.PointsBalance = 0
	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Update(ctx, &stale)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
	assert.Equal(t, int64(80), findAccount(t, s, a.ID).PointsBalance)

	err = s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Delete(ctx, a)
	})
	assert.ErrorIs(t, err, repository.ErrConflict, "delete with stale version")

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Delete(ctx, got)
	}))
	assert.Nil(t, findAccount(t, s, a.ID))
}

func testCreateExistingConflicts(t *testing.T, s repository.Store) {
	a := seedAccount(t, s, 0, 0)
	dup := *a
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Accounts().Create(ctx, &dup)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func testRollbackOnError(t *testing.T, s repository.Store) {
	boom := errors.New("boom")
	a := newAccount(10, 0)
	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Accounts().Create(ctx, a); err != nil {
			return err
		}
		if err := tx.Ledger().Insert(ctx, entry(a.ID, 10, 10, "rollback:"+a.ID.String())); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, findAccount(t, s, a.ID))

	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		e, err := tx.Ledger().FindByIdempotencyKey(ctx, "rollback:"+a.ID.String())
		assert.Nil(t, e)
		return err
	}))
}

func testReferrals(t *testing.T, s repository.Store) {
	ctx := context.Background()
	referrer := seedAccount(t, s, 0, 0)
	first := seedAccount(t, s, 0, 0)
	second := seedAccount(t, s, 0, 0)

	for _, referred := range []uuid.UUID{first.ID, second.ID} {
		require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			return tx.Accounts().AddReferral(ctx, domain.Referral{ReferrerID: referrer.ID, ReferredID: referred, CreatedAt: now()})
		}))
	}

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		refs, err := tx.Accounts().ListReferrals(ctx, referrer.ID)
		require.NoError(t, err)
		require.Len(t, refs, 2)
		assert.Equal(t, first.ID, refs[0].ReferredID)
		assert.Equal(t, second.ID, refs[1].ReferredID)

		none, err := tx.Accounts().ListReferrals(ctx, first.ID)
		assert.Empty(t, none)
		return err
	}))
}

func testLedgerAppend(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := seedAccount(t, s, 0, 0)
	related := uuid.New()

	stake := entry(a.ID, -10, 90, "a:"+uuid.NewString())
	stake.RelatedKind, stake.RelatedID = domain.RelatedRoom, related
	fee := entry(domain.HouseAccountID, 1, 0, "h:"+uuid.NewString())
	fee.RelatedKind, fee.RelatedID = domain.RelatedRoom, related
	fee.Reason = domain.ReasonHouseFee

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Ledger().Insert(ctx, stake); err != nil {
			return err
		}
		return tx.Ledger().Insert(ctx, fee)
	}))
	assert.Positive(t, stake.Seq)
	assert.Greater(t, fee.Seq, stake.Seq)

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		found, err := tx.Ledger().FindByIdempotencyKey(ctx, stake.IdempotencyKey)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, stake.ID, found.ID)
		assert.Equal(t, int64(-10), found.Delta)
		assert.Equal(t, int64(90), found.ResultingBalance)
		assert.Equal(t, domain.RelatedRoom, found.RelatedKind)

		byRoom, err := tx.Ledger().ListByRelated(ctx, domain.RelatedRoom, related)
		require.NoError(t, err)
		require.Len(t, byRoom, 2)
		assert.Equal(t, stake.ID, byRoom[0].ID)
		assert.True(t, byRoom[1].IsHouse())

		house, err := tx.Ledger().SumHouse(ctx, domain.CurrencyPoints)
		require.NoError(t, err)
		assert.Equal(t, int64(1), house)

		cash, err := tx.Ledger().SumHouse(ctx, domain.CurrencyCash)
		assert.Zero(t, cash)
		return err
	}))
}

func testLedgerIdempotencyKey(t *testing.T, s repository.Store) {
	a := seedAccount(t, s, 0, 0)
	key := "dup:" + a.ID.String()
	insertEntry(t, s, entry(a.ID, 5, 5, key))

	err := s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Ledger().Insert(ctx, entry(a.ID, 5, 10, key))
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		hist, err := tx.Ledger().History(ctx, a.ID)
		assert.Len(t, hist, 1)
		return err
	}))
}

func testLedgerPaging(t *testing.T, s repository.Store) {
	a := seedAccount(t, s, 0, 0)
	var inserted []*domain.LedgerEntry
	for i := int64(1); i <= 3; i++ {
		e := entry(a.ID, 1, i, uuid.NewString())
		insertEntry(t, s, e)
		inserted = append(inserted, e)
	}

	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		page, err := tx.Ledger().ListByAccount(ctx, a.ID, nil, 2)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, inserted[2].ID, page[0].ID)
		assert.Equal(t, inserted[1].ID, page[1].ID)

		cursor := page[1].Seq
		rest, err := tx.Ledger().ListByAccount(ctx, a.ID, &cursor, 2)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, inserted[0].ID, rest[0].ID)

		hist, err := tx.Ledger().History(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, hist, 3)
		for i, e := range hist {
			assert.Equal(t, int64(i+1), e.ResultingBalance)
		}
		return nil
	}))
}

func testRoomsByState(t *testing.T, s repository.Store) {
	ctx := context.Background()
	host := uuid.New()
	at := now()
	room := &domain.Room{
		ID: uuid.New(), HostID: host, Stake: 25, Currency: domain.CurrencyPoints,
		State: domain.RoomWaiting, HostReserved: true, CreatedAt: at, UpdatedAt: at,
	}
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Rooms().Create(ctx, room)
	}))

	guest := uuid.New()
	rock := domain.ChoiceRock
	room.GuestID = &guest
	room.GuestReserved = true
	room.State = domain.RoomPlaying
	room.HostChoice = &rock
	room.Round = 1
	room.LastRoundResult = domain.RoundDraw
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Rooms().Update(ctx, room)
	}))

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Rooms().FindByID(ctx, room.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.RoomPlaying, got.State)
		require.NotNil(t, got.GuestID)
		assert.Equal(t, guest, *got.GuestID)
		require.NotNil(t, got.HostChoice)
		assert.Equal(t, domain.ChoiceRock, *got.HostChoice)
		assert.Nil(t, got.GuestChoice)
		assert.Equal(t, 1, got.Round)
		assert.Equal(t, domain.RoundDraw, got.LastRoundResult)
		assert.Equal(t, int64(2), got.Version)

		playing, err := tx.Rooms().ListByState(ctx, domain.RoomPlaying, 10)
		require.NoError(t, err)
		assert.Len(t, playing, 1)

		waiting, err := tx.Rooms().ListByState(ctx, domain.RoomWaiting, 10)
		assert.Empty(t, waiting)
		return err
	}))
}

func testEventsAndBets(t *testing.T, s repository.Store) {
	ctx := context.Background()
	at := now()
	past := &domain.EventPool{
		ID: uuid.New(), Title: "final", OutcomeA: "red", OutcomeB: "blue",
		OddsA: decimal.RequireFromString("1.85"), OddsB: decimal.RequireFromString("2.1"),
		Currency: domain.CurrencyPoints, PrizePool: 1000, OperatorFunded: 1000,
		BettingOpen: true, EndTime: at.Add(-time.Minute), Status: domain.EventOpen,
		CreatedAt: at, UpdatedAt: at,
	}
	future := *past
	future.ID = uuid.New()
	future.EndTime = at.Add(time.Hour)

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Events().Create(ctx, past); err != nil {
			return err
		}
		return tx.Events().Create(ctx, &future)
	}))

	bettor := uuid.New()
	bet := &domain.Bet{ID: uuid.New(), EventID: future.ID, AccountID: bettor, Outcome: domain.OutcomeB, Stake: 10, PotentialPayout: 21, CreatedAt: at}
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Bets().Insert(ctx, bet)
	}))

	won := domain.OutcomeA
	past.Status = domain.EventResolved
	past.WinningOutcome = &won
	past.SettledAt = &at
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Events().Update(ctx, past)
	}))

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Events().FindByID(ctx, past.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, decimal.RequireFromString("1.85").Equal(got.OddsA))
		assert.True(t, decimal.RequireFromString("2.1").Equal(got.OddsB))
		assert.Equal(t, domain.EventResolved, got.Status)
		require.NotNil(t, got.WinningOutcome)
		assert.Equal(t, domain.OutcomeA, *got.WinningOutcome)
		assert.Equal(t, int64(1000), got.PrizePool)

		due, err := tx.Events().ListDue(ctx, at, 10)
		require.NoError(t, err)
		assert.Empty(t, due, "resolved events are never due")

		due, err = tx.Events().ListDue(ctx, at.Add(2*time.Hour), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, future.ID, due[0].ID)

		open, err := tx.Events().ListByStatus(ctx, domain.EventOpen, 10)
		require.NoError(t, err)
		assert.Len(t, open, 1)

		bets, err := tx.Bets().ListByEvent(ctx, future.ID)
		require.NoError(t, err)
		require.Len(t, bets, 1)
		assert.Equal(t, int64(21), bets[0].PotentialPayout)
		assert.Equal(t, domain.OutcomeB, bets[0].Outcome)

		mine, err := tx.Bets().ListByAccount(ctx, bettor, 10)
		assert.Len(t, mine, 1)
		return err
	}))
}

func testRequestsQueue(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := seedAccount(t, s, 0, 100)
	base := now()
	older := &domain.Request{ID: uuid.New(), AccountID: a.ID, Type: domain.RequestWithdrawal, Currency: domain.CurrencyCash, Amount: 40, Status: domain.RequestPending, CreatedAt: base.Add(-time.Second)}
	newer := &domain.Request{ID: uuid.New(), AccountID: a.ID, Type: domain.RequestLoan, Currency: domain.CurrencyPoints, Amount: 500, Status: domain.RequestPending, CreatedAt: base}

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.Requests().Create(ctx, newer); err != nil {
			return err
		}
		return tx.Requests().Create(ctx, older)
	}))

	operator := uuid.New()
	newer.Status = domain.RequestApproved
	newer.ProcessedBy = &operator
	newer.ProcessedAt = &base
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Requests().Update(ctx, newer)
	}))

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		pending, err := tx.Requests().ListByStatus(ctx, domain.RequestPending, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, older.ID, pending[0].ID)

		mine, err := tx.Requests().ListByAccount(ctx, a.ID, 10)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, newer.ID, mine[0].ID, "newest first")
		require.NotNil(t, mine[0].ProcessedBy)
		assert.Equal(t, operator, *mine[0].ProcessedBy)
		return nil
	}))
}

func testAdjustments(t *testing.T, s repository.Store) {
	a := seedAccount(t, s, 0, 0)
	adj := &domain.Adjustment{ID: uuid.New(), AccountID: a.ID, Currency: domain.CurrencyCash, Amount: -5, Note: "chargeback", OperatorID: uuid.New(), CreatedAt: now()}
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		return tx.Adjustments().Insert(ctx, adj)
	}))
	require.NoError(t, s.RunTx(context.Background(), func(ctx context.Context, tx repository.Tx) error {
		got, err := tx.Adjustments().ListByAccount(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "chargeback", got[0].Note)
		assert.Equal(t, int64(-5), got[0].Amount)
		return nil
	}))
}

func testOutbox(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := newAccount(3, 0)
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for range 3 {
			if err := tx.Outbox().Insert(ctx, domain.NewAccountUpdatedEvent(a)); err != nil {
				return err
			}
		}
		return nil
	}))

	var first []domain.OutboxRecord
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		first, err = tx.Outbox().FetchUnpublished(ctx, 2)
		return err
	}))
	require.Len(t, first, 2)
	assert.Less(t, first[0].Seq, first[1].Seq)
	assert.Equal(t, domain.EventAccountUpdated, first[0].EventType)
	assert.Equal(t, a.ID.String(), first[0].AggregateID)
	assert.JSONEq(t, string(first[0].Payload), string(first[1].Payload))

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return tx.Outbox().MarkPublished(ctx, []int64{first[0].Seq, first[1].Seq})
	}))

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		rest, err := tx.Outbox().FetchUnpublished(ctx, 10)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Greater(t, rest[0].Seq, first[1].Seq)
		return nil
	}))
}

func testInterleavedUpdateConflicts(t *testing.T, s repository.Store) {
	ctx := context.Background()
	a := seedAccount(t, s, 100, 0)

	err := s.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		mine, err := tx.Accounts().FindByID(ctx, a.ID)
		if err != nil {
			return err
		}

		// A competing writer commits first.
		require.NoError(t, s.RunTx(ctx, func(ctx context.Context, other repository.Tx) error {
			theirs, err := other.Accounts().FindByID(ctx, a.ID)
			if err != nil {
				return err
			}
			theirs.PointsBalance -= 30
			return other.Accounts().Update(ctx, theirs)
		}))

		mine.PointsBalance -= 80
		return tx.Accounts().Update(ctx, mine)
	})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got := findAccount(t, s, a.ID)
	assert.Equal(t, int64(70), got.PointsBalance)
	assert.Equal(t, int64(2), got.Version)
}
