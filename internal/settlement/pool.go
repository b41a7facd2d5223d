package settlement

import (
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakehouse/platform/internal/domain"
)

var maxPayout = decimal.NewFromInt(math.MaxInt64)

// PotentialPayout is floor(stake × odds), fixed when a bet is placed. A
// payout that would not fit an int64 is a validation error.
func PotentialPayout(stake int64, odds decimal.Decimal) (int64, error) {
	payout := decimal.NewFromInt(stake).Mul(odds).Floor()
	if payout.GreaterThan(maxPayout) {
		return 0, domain.ErrValidation(fmt.Sprintf("payout of %s at odds %s is out of range", payout, odds))
	}
	return payout.IntPart(), nil
}

// BetDelta is a ledger delta owed to the placer of one bet.
type BetDelta struct {
	BetID uuid.UUID
	Delta domain.Delta
}

// PoolResolution is the full settlement of an event pool.
type PoolResolution struct {
	Settled     []domain.SettledBet
	TotalPayout int64
	Deltas      []BetDelta
}

// ResolvePool settles every bet against the winning outcome. Winning bets pay
// their fixed PotentialPayout; losing stakes stay in the pool. The whole
// resolution is rejected with PoolUnderfunded when the total owed exceeds the
// prize pool, which already includes stakes and operator funding.
func ResolvePool(event *domain.EventPool, bets []domain.Bet, winning domain.Outcome) (*PoolResolution, error) {
	res := &PoolResolution{Settled: make([]domain.SettledBet, 0, len(bets))}

	for _, b := range bets {
		sb := domain.SettledBet{Bet: b, Result: domain.BetLost}
		if b.Outcome == winning {
			sb.Result = domain.BetWon
			sb.Payout = b.PotentialPayout
			total, err := domain.CheckedAdd(res.TotalPayout, sb.Payout)
			if err != nil {
				return nil, domain.ErrPoolUnderfunded(event.PrizePool, math.MaxInt64)
			}
			res.TotalPayout = total
			if sb.Payout > 0 {
				res.Deltas = append(res.Deltas, BetDelta{BetID: b.ID, Delta: domain.Delta{
					AccountID: b.AccountID,
					Currency:  event.Currency,
					Amount:    sb.Payout,
					Reason:    domain.ReasonBetPayout,
				}})
			}
		}
		res.Settled = append(res.Settled, sb)
	}

	if res.TotalPayout > event.PrizePool {
		return nil, domain.ErrPoolUnderfunded(event.PrizePool, res.TotalPayout)
	}
	return res, nil
}

// RefundPool returns every stake of a cancelled event.
func RefundPool(event *domain.EventPool, bets []domain.Bet) *PoolResolution {
	res := &PoolResolution{Settled: make([]domain.SettledBet, 0, len(bets))}
	for _, b := range bets {
		res.Settled = append(res.Settled, domain.SettledBet{Bet: b, Result: domain.BetRefunded, Payout: b.Stake})
		res.TotalPayout += b.Stake
		res.Deltas = append(res.Deltas, BetDelta{BetID: b.ID, Delta: domain.Delta{
			AccountID: b.AccountID,
			Currency:  event.Currency,
			Amount:    b.Stake,
			Reason:    domain.ReasonBetRefund,
		}})
	}
	return res
}

// BetStake is the debit taken when a bet is placed.
func BetStake(event *domain.EventPool, account uuid.UUID, stake int64) domain.Delta {
	return domain.Delta{AccountID: account, Currency: event.Currency, Amount: -stake, Reason: domain.ReasonBetStake}
}
