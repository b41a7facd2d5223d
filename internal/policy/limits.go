package policy

import (
	"fmt"

	"github.com/stakehouse/platform/internal/domain"
)

// Kinds of amounts checked against StakeLimits.
const (
	KindRoomStake = "room_stake"
	KindBetStake  = "bet_stake"
	KindRequest   = "request"
)

// StakeLimits bounds the amounts a single action may move.
type StakeLimits struct {
	MinStake         int64 `json:"min_stake"`
	MaxStake         int64 `json:"max_stake"`          // 0 = domain.MaxAmount
	MaxRequestAmount int64 `json:"max_request_amount"` // 0 = domain.MaxAmount
}

// DefaultStakeLimits returns the limits used when nothing is configured.
func DefaultStakeLimits() StakeLimits {
	return StakeLimits{
		MinStake:         1,
		MaxStake:         1_000_000,
		MaxRequestAmount: 10_000_000,
	}
}

// LimitEvaluation holds the result of a limits check.
type LimitEvaluation struct {
	Allowed       bool   `json:"allowed"`
	BreachedLimit string `json:"breached_limit,omitempty"`
	LimitValue    int64  `json:"limit_value,omitempty"`
	RequestedAmt  int64  `json:"requested_amount,omitempty"`
}

// EvaluateStakeLimits checks one amount of the given kind.
func EvaluateStakeLimits(limits StakeLimits, amount int64, kind string) LimitEvaluation {
	if amount <= 0 {
		return LimitEvaluation{BreachedLimit: "positive_amount", RequestedAmt: amount}
	}
	if amount > domain.MaxAmount {
		return LimitEvaluation{BreachedLimit: "amount_ceiling", LimitValue: domain.MaxAmount, RequestedAmt: amount}
	}

	if kind == KindRequest {
		if limits.MaxRequestAmount > 0 && amount > limits.MaxRequestAmount {
			return LimitEvaluation{BreachedLimit: "max_request_amount", LimitValue: limits.MaxRequestAmount, RequestedAmt: amount}
		}
		return LimitEvaluation{Allowed: true}
	}

	if amount < limits.MinStake {
		return LimitEvaluation{BreachedLimit: "min_stake", LimitValue: limits.MinStake, RequestedAmt: amount}
	}
	if limits.MaxStake > 0 && amount > limits.MaxStake {
		return LimitEvaluation{BreachedLimit: "max_stake", LimitValue: limits.MaxStake, RequestedAmt: amount}
	}
	return LimitEvaluation{Allowed: true}
}

// Err converts a failed evaluation to a validation error.
func (e LimitEvaluation) Err() error {
	if e.Allowed {
		return nil
	}
	if e.BreachedLimit == "positive_amount" {
		return domain.ErrValidation("amount must be positive")
	}
	return domain.ErrValidation(fmt.Sprintf("amount %d breaches %s (%d)", e.RequestedAmt, e.BreachedLimit, e.LimitValue))
}
