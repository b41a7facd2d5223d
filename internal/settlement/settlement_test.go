package settlement

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoom(stake int64) *domain.Room {
	guest := uuid.New()
	return &domain.Room{
		ID:       uuid.New(),
		HostID:   uuid.New(),
		GuestID:  &guest,
		Stake:    stake,
		Currency: domain.CurrencyPoints,
		State:    domain.RoomPlaying,
	}
}

func sumDeltas(ds []domain.Delta) int64 {
	var total int64
	for _, d := range ds {
		total += d.Amount
	}
	return total
}

// --- Choice Game Tests ---

func TestBeats(t *testing.T) {
	tests := []struct {
		a, b domain.Choice
		want bool
	}{
		{domain.ChoiceRock, domain.ChoiceScissors, true},
		{domain.ChoicePaper, domain.ChoiceRock, true},
		{domain.ChoiceScissors, domain.ChoicePaper, true},
		{domain.ChoiceScissors, domain.ChoiceRock, false},
		{domain.ChoiceRock, domain.ChoicePaper, false},
		{domain.ChoicePaper, domain.ChoiceScissors, false},
		{domain.ChoiceRock, domain.ChoiceRock, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.a)+"_vs_"+string(tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, Beats(tt.a, tt.b))
		})
	}
}

func TestHouseFee(t *testing.T) {
	tests := []struct {
		pool int64
		want int64
	}{
		{200, 10},
		{2, 0},
		{38, 1}, // 1.9 floors to 1
		{39, 1}, // 1.95 floors to 1
		{40, 2},
		{1_000_001, 50_000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HouseFee(tt.pool), "pool %d", tt.pool)
	}
}

func TestSettleRound_HostWins(t *testing.T) {
	room := newRoom(100)
	out := SettleRound(room, domain.ChoiceRock, domain.ChoiceScissors)

	assert.Equal(t, domain.RoundHostWon, out.Result)
	assert.Equal(t, int64(200), out.Pool)
	assert.Equal(t, int64(10), out.Fee)
	assert.Equal(t, int64(190), out.Payout)

	require.Len(t, out.Deltas, 2)
	assert.Equal(t, room.HostID, out.Deltas[0].AccountID)
	assert.Equal(t, int64(190), out.Deltas[0].Amount)
	assert.Equal(t, domain.ReasonRoomPayout, out.Deltas[0].Reason)
	assert.Equal(t, domain.HouseAccountID, out.Deltas[1].AccountID)
	assert.Equal(t, int64(10), out.Deltas[1].Amount)
	assert.Equal(t, domain.ReasonHouseFee, out.Deltas[1].Reason)

	// winner + house account for the whole pool
	assert.Equal(t, out.Pool, sumDeltas(out.Deltas))
}

func TestSettleRound_GuestWins(t *testing.T) {
	room := newRoom(100)
	out := SettleRound(room, domain.ChoiceRock, domain.ChoicePaper)

	assert.Equal(t, domain.RoundGuestWon, out.Result)
	assert.Equal(t, *room.GuestID, out.Deltas[0].AccountID)
	assert.Equal(t, int64(190), out.Deltas[0].Amount)
}

func TestSettleRound_Draw(t *testing.T) {
	room := newRoom(100)
	out := SettleRound(room, domain.ChoiceRock, domain.ChoiceRock)

	assert.Equal(t, domain.RoundDraw, out.Result)
	assert.Zero(t, out.Fee)
	require.Len(t, out.Deltas, 2)
	for _, d := range out.Deltas {
		assert.Equal(t, int64(100), d.Amount)
		assert.Equal(t, domain.ReasonRoomRefund, d.Reason)
	}
	assert.Equal(t, room.HostID, out.Deltas[0].AccountID)
	assert.Equal(t, *room.GuestID, out.Deltas[1].AccountID)
}

func TestSettleRound_TinyStakeHasNoFeeEntry(t *testing.T) {
	room := newRoom(1)
	out := SettleRound(room, domain.ChoicePaper, domain.ChoiceRock)

	assert.Zero(t, out.Fee)
	require.Len(t, out.Deltas, 1)
	assert.Equal(t, int64(2), out.Deltas[0].Amount)
}

func TestReleaseReservations(t *testing.T) {
	room := newRoom(50)

	assert.Empty(t, ReleaseReservations(room))

	room.HostReserved = true
	ds := ReleaseReservations(room)
	require.Len(t, ds, 1)
	assert.Equal(t, room.HostID, ds[0].AccountID)
	assert.Equal(t, int64(50), ds[0].Amount)

	room.GuestReserved = true
	assert.Len(t, ReleaseReservations(room), 2)
}

func TestStakeDebit(t *testing.T) {
	room := newRoom(25)
	d := StakeDebit(room, room.HostID)
	assert.Equal(t, int64(-25), d.Amount)
	assert.Equal(t, domain.ReasonRoomStake, d.Reason)
	assert.Equal(t, domain.CurrencyPoints, d.Currency)
}

// --- Pool Tests ---

func newPool(prize int64) *domain.EventPool {
	return &domain.EventPool{
		ID:        uuid.New(),
		OddsA:     decimal.RequireFromString("3.0"),
		OddsB:     decimal.RequireFromString("1.5"),
		Currency:  domain.CurrencyPoints,
		PrizePool: prize,
		Status:    domain.EventLocked,
	}
}

func TestPotentialPayout(t *testing.T) {
	tests := []struct {
		stake int64
		odds  string
		want  int64
	}{
		{100, "3.0", 300},
		{101, "1.51", 152}, // 152.51
		{7, "1", 7},
	}
	for _, tt := range tests {
		got, err := PotentialPayout(tt.stake, decimal.RequireFromString(tt.odds))
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := PotentialPayout(domain.MaxAmount, decimal.NewFromInt(5))
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
}

func TestResolvePool_PayoutSumOverflowIsUnderfunded(t *testing.T) {
	event := newPool(1000)
	huge := domain.MaxAmount * 3
	bets := []domain.Bet{
		{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 1, PotentialPayout: huge},
		{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 1, PotentialPayout: huge},
	}
	_, err := ResolvePool(event, bets, domain.OutcomeA)
	assert.Equal(t, domain.CodePoolUnderfunded, domain.CodeOf(err))
}

func TestResolvePool_WinnerPaid(t *testing.T) {
	event := newPool(1000)
	winner := domain.Bet{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 100, PotentialPayout: 300}
	loser := domain.Bet{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeB, Stake: 100, PotentialPayout: 150}

	res, err := ResolvePool(event, []domain.Bet{winner, loser}, domain.OutcomeA)
	require.NoError(t, err)

	assert.Equal(t, int64(300), res.TotalPayout)
	require.Len(t, res.Deltas, 1)
	assert.Equal(t, winner.ID, res.Deltas[0].BetID)
	assert.Equal(t, int64(300), res.Deltas[0].Delta.Amount)
	assert.Equal(t, domain.ReasonBetPayout, res.Deltas[0].Delta.Reason)

	require.Len(t, res.Settled, 2)
	assert.Equal(t, domain.BetWon, res.Settled[0].Result)
	assert.Equal(t, domain.BetLost, res.Settled[1].Result)
	assert.Zero(t, res.Settled[1].Payout)
}

func TestResolvePool_LosingSideOnly(t *testing.T) {
	event := newPool(1000)
	bet := domain.Bet{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 100, PotentialPayout: 300}

	res, err := ResolvePool(event, []domain.Bet{bet}, domain.OutcomeB)
	require.NoError(t, err)
	assert.Zero(t, res.TotalPayout)
	assert.Empty(t, res.Deltas)
}

func TestResolvePool_Underfunded(t *testing.T) {
	event := newPool(500)
	bets := []domain.Bet{
		{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 100, PotentialPayout: 300},
		{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 100, PotentialPayout: 300},
	}

	res, err := ResolvePool(event, bets, domain.OutcomeA)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, domain.CodePoolUnderfunded, domain.CodeOf(err))
}

func TestResolvePool_ExactlyFunded(t *testing.T) {
	event := newPool(600)
	bets := []domain.Bet{
		{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 100, PotentialPayout: 300},
		{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 100, PotentialPayout: 300},
	}
	res, err := ResolvePool(event, bets, domain.OutcomeA)
	require.NoError(t, err)
	assert.Equal(t, int64(600), res.TotalPayout)
}

func TestRefundPool(t *testing.T) {
	event := newPool(1000)
	bets := []domain.Bet{
		{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeA, Stake: 100},
		{ID: uuid.New(), AccountID: uuid.New(), Outcome: domain.OutcomeB, Stake: 40},
	}
	res := RefundPool(event, bets)
	assert.Equal(t, int64(140), res.TotalPayout)
	require.Len(t, res.Deltas, 2)
	for i, d := range res.Deltas {
		assert.Equal(t, bets[i].Stake, d.Delta.Amount)
		assert.Equal(t, domain.ReasonBetRefund, d.Delta.Reason)
		assert.Equal(t, domain.BetRefunded, res.Settled[i].Result)
	}
}

// --- Request Tests ---

func TestRequestFiling(t *testing.T) {
	w := &domain.Request{AccountID: uuid.New(), Type: domain.RequestWithdrawal, Currency: domain.CurrencyCash, Amount: 70}
	ds := RequestFiling(w)
	require.Len(t, ds, 1)
	assert.Equal(t, int64(-70), ds[0].Amount)
	assert.Equal(t, domain.ReasonWithdrawalReserve, ds[0].Reason)

	loan := &domain.Request{AccountID: uuid.New(), Type: domain.RequestLoan, Currency: domain.CurrencyPoints, Amount: 70}
	assert.Empty(t, RequestFiling(loan))
}

func TestRequestDecision(t *testing.T) {
	tests := []struct {
		name       string
		reqType    domain.RequestType
		approve    bool
		wantAmount int64
		wantReason domain.Reason
	}{
		{"loan approved", domain.RequestLoan, true, 500, domain.ReasonLoanCredit},
		{"loan declined", domain.RequestLoan, false, 0, ""},
		{"withdrawal approved", domain.RequestWithdrawal, true, 0, ""},
		{"withdrawal declined", domain.RequestWithdrawal, false, 500, domain.ReasonWithdrawalRestore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &domain.Request{AccountID: uuid.New(), Type: tt.reqType, Currency: tt.reqType.Currency(), Amount: 500}
			ds := RequestDecision(req, tt.approve)
			if tt.wantAmount == 0 {
				assert.Empty(t, ds)
				return
			}
			require.Len(t, ds, 1)
			assert.Equal(t, tt.wantAmount, ds[0].Amount)
			assert.Equal(t, tt.wantReason, ds[0].Reason)
			assert.Equal(t, req.Currency, ds[0].Currency)
		})
	}
}

// --- Referral Tests ---

func TestReferralBonus(t *testing.T) {
	cfg := domain.ReferralSettings{Enabled: true, Bonus: 250, Currency: domain.CurrencyPoints, MaxPerReferrer: 2}

	t.Run("under cap pays bonus", func(t *testing.T) {
		ref := &domain.Account{ID: uuid.New(), ReferralCount: 1}
		out := ReferralBonus(cfg, ref)
		assert.True(t, out.AppendReferral)
		require.Len(t, out.Deltas, 1)
		assert.Equal(t, int64(250), out.Deltas[0].Amount)
		assert.Equal(t, domain.ReasonReferralBonus, out.Deltas[0].Reason)
	})

	t.Run("at cap skips silently", func(t *testing.T) {
		ref := &domain.Account{ID: uuid.New(), ReferralCount: 2}
		out := ReferralBonus(cfg, ref)
		assert.False(t, out.AppendReferral)
		assert.Empty(t, out.Deltas)
		assert.Equal(t, "referral cap reached", out.SkippedReason)
	})

	t.Run("disabled", func(t *testing.T) {
		off := cfg
		off.Enabled = false
		out := ReferralBonus(off, &domain.Account{ID: uuid.New()})
		assert.False(t, out.AppendReferral)
		assert.Empty(t, out.Deltas)
	})

	t.Run("unknown referrer", func(t *testing.T) {
		out := ReferralBonus(cfg, nil)
		assert.False(t, out.AppendReferral)
	})

	t.Run("zero cap means unlimited", func(t *testing.T) {
		unlimited := cfg
		unlimited.MaxPerReferrer = 0
		out := ReferralBonus(unlimited, &domain.Account{ID: uuid.New(), ReferralCount: 1000})
		assert.True(t, out.AppendReferral)
	})
}
