// Package settlement holds the pure rules that turn game, event and request
// outcomes into ledger deltas. Nothing here touches storage.
package settlement

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakehouse/platform/internal/domain"
)

// HouseFeeRate is the share of a decisive round's pool kept by the house.
var HouseFeeRate = decimal.RequireFromString("0.05")

// beats maps each hand to the hand it defeats.
var beats = map[domain.Choice]domain.Choice{
	domain.ChoiceRock:     domain.ChoiceScissors,
	domain.ChoicePaper:    domain.ChoiceRock,
	domain.ChoiceScissors: domain.ChoicePaper,
}

// Beats reports whether a defeats b.
func Beats(a, b domain.Choice) bool {
	return beats[a] == b
}

// HouseFee is floor(pool × HouseFeeRate).
func HouseFee(pool int64) int64 {
	return decimal.NewFromInt(pool).Mul(HouseFeeRate).Floor().IntPart()
}

// RoundOutcome is the settlement of one round.
type RoundOutcome struct {
	Result domain.RoundResult `json:"result"`
	Pool   int64              `json:"pool"`
	Fee    int64              `json:"fee"`
	Payout int64              `json:"payout"`
	Deltas []domain.Delta     `json:"deltas"`
}

// SettleRound computes the deltas for a round in which both parties have
// staked room.Stake. A draw returns each stake; a decisive round pays the
// winner pool−fee and books the fee to the house.
func SettleRound(room *domain.Room, host, guest domain.Choice) RoundOutcome {
	guestID := *room.GuestID
	stake := room.Stake
	cur := room.Currency

	if host == guest {
		return RoundOutcome{
			Result: domain.RoundDraw,
			Deltas: []domain.Delta{
				{AccountID: room.HostID, Currency: cur, Amount: stake, Reason: domain.ReasonRoomRefund},
				{AccountID: guestID, Currency: cur, Amount: stake, Reason: domain.ReasonRoomRefund},
			},
		}
	}

	pool := 2 * stake
	fee := HouseFee(pool)
	out := RoundOutcome{Pool: pool, Fee: fee, Payout: pool - fee}

	winner := guestID
	out.Result = domain.RoundGuestWon
	if Beats(host, guest) {
		winner = room.HostID
		out.Result = domain.RoundHostWon
	}

	out.Deltas = append(out.Deltas, domain.Delta{
		AccountID: winner, Currency: cur, Amount: out.Payout, Reason: domain.ReasonRoomPayout,
	})
	if fee > 0 {
		out.Deltas = append(out.Deltas, domain.Delta{
			AccountID: domain.HouseAccountID, Currency: cur, Amount: fee, Reason: domain.ReasonHouseFee,
		})
	}
	return out
}

// ReleaseReservations returns the stakes still held by the room when it is
// ended or quit.
func ReleaseReservations(room *domain.Room) []domain.Delta {
	var out []domain.Delta
	if room.HostReserved {
		out = append(out, domain.Delta{
			AccountID: room.HostID, Currency: room.Currency, Amount: room.Stake, Reason: domain.ReasonRoomRefund,
		})
	}
	if room.GuestReserved && room.GuestID != nil {
		out = append(out, domain.Delta{
			AccountID: *room.GuestID, Currency: room.Currency, Amount: room.Stake, Reason: domain.ReasonRoomRefund,
		})
	}
	return out
}

// StakeDebit is the reservation taken from a party entering a round.
func StakeDebit(room *domain.Room, party uuid.UUID) domain.Delta {
	return domain.Delta{AccountID: party, Currency: room.Currency, Amount: -room.Stake, Reason: domain.ReasonRoomStake}
}
