package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventStatus is the lifecycle of a pooled-odds event.
type EventStatus string

const (
	EventOpen      EventStatus = "open"
	EventLocked    EventStatus = "locked"
	EventResolved  EventStatus = "resolved"
	EventCancelled EventStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s EventStatus) Terminal() bool {
	return s == EventResolved || s == EventCancelled
}

// Outcome is one side of a two-outcome event.
type Outcome string

const (
	OutcomeA Outcome = "A"
	OutcomeB Outcome = "B"
)

// Valid reports whether o names a side.
func (o Outcome) Valid() bool { return o == OutcomeA || o == OutcomeB }

// EventPool is a team-vs-team event with fixed decimal odds and a prize pool
// fed by stakes and operator funding.
type EventPool struct {
	ID             uuid.UUID       `json:"id"`
	Title          string          `json:"title"`
	OutcomeA       string          `json:"outcome_a"`
	OutcomeB       string          `json:"outcome_b"`
	OddsA          decimal.Decimal `json:"odds_a"`
	OddsB          decimal.Decimal `json:"odds_b"`
	Currency       Currency        `json:"currency"`
	PrizePool      int64           `json:"prize_pool"`
	OperatorFunded int64           `json:"operator_funded"`
	BettingOpen    bool            `json:"betting_open"`
	EndTime        time.Time       `json:"end_time"`
	Status         EventStatus     `json:"status"`
	WinningOutcome *Outcome        `json:"winning_outcome,omitempty"`
	BetCount       int             `json:"bet_count"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	LockedAt       *time.Time      `json:"locked_at,omitempty"`
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
}

// Odds returns the decimal odds of outcome o.
func (e *EventPool) Odds(o Outcome) decimal.Decimal {
	if o == OutcomeB {
		return e.OddsB
	}
	return e.OddsA
}

// EffectiveStatus evaluates the time boundary: an open event whose end time
// has passed is locked, whether or not the transition was persisted.
func (e *EventPool) EffectiveStatus(now time.Time) EventStatus {
	if e.Status == EventOpen && !now.Before(e.EndTime) {
		return EventLocked
	}
	return e.Status
}

// AcceptsBets reports whether a bet placed at now is admissible.
func (e *EventPool) AcceptsBets(now time.Time) bool {
	return e.EffectiveStatus(now) == EventOpen && e.BettingOpen
}

// Lock closes betting. It reports false when the event was already past open.
func (e *EventPool) Lock(now time.Time) bool {
	if e.Status != EventOpen {
		return false
	}
	e.Status = EventLocked
	e.BettingOpen = false
	e.LockedAt = &now
	e.UpdatedAt = now
	return true
}

// BetResult is the settled outcome of a bet.
type BetResult string

const (
	BetWon      BetResult = "won"
	BetLost     BetResult = "lost"
	BetRefunded BetResult = "refunded"
	BetPending  BetResult = "pending"
)

// Bet is a stake on one outcome. Immutable once placed; PotentialPayout is
// fixed from the odds at placement.
type Bet struct {
	ID              uuid.UUID `json:"id"`
	EventID         uuid.UUID `json:"event_id"`
	AccountID       uuid.UUID `json:"account_id"`
	Outcome         Outcome   `json:"outcome"`
	Stake           int64     `json:"stake"`
	PotentialPayout int64     `json:"potential_payout"`
	CreatedAt       time.Time `json:"created_at"`
}

// SettledBet pairs a bet with what it paid.
type SettledBet struct {
	Bet
	Result BetResult `json:"result"`
	Payout int64     `json:"payout"`
}

// SettledView derives a bet's result from its event without touching the ledger.
func (b Bet) SettledView(e *EventPool) SettledBet {
	sb := SettledBet{Bet: b, Result: BetPending}
	switch e.Status {
	case EventCancelled:
		sb.Result = BetRefunded
		sb.Payout = b.Stake
	case EventResolved:
		if e.WinningOutcome != nil && *e.WinningOutcome == b.Outcome {
			sb.Result = BetWon
			sb.Payout = b.PotentialPayout
		} else {
			sb.Result = BetLost
		}
	}
	return sb
}
