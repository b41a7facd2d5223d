package policy

import "github.com/stakehouse/platform/internal/domain"

// CurrencyRouting lists which currencies each game accepts.
type CurrencyRouting struct {
	Rooms  []domain.Currency `json:"rooms,omitempty"`  // empty = all
	Events []domain.Currency `json:"events,omitempty"` // empty = all
}

// DefaultCurrencyRouting allows every currency everywhere.
func DefaultCurrencyRouting() CurrencyRouting {
	return CurrencyRouting{}
}

// RouteEvaluation holds the result of a routing check.
type RouteEvaluation struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// EvaluateCurrencyRoute checks that game accepts currency.
func EvaluateCurrencyRoute(policy CurrencyRouting, game string, currency domain.Currency) RouteEvaluation {
	if !currency.Valid() {
		return RouteEvaluation{Reason: "unknown currency: " + string(currency)}
	}

	allowed := policy.Rooms
	if game == KindBetStake {
		allowed = policy.Events
	}
	if len(allowed) == 0 {
		return RouteEvaluation{Allowed: true}
	}
	for _, c := range allowed {
		if c == currency {
			return RouteEvaluation{Allowed: true}
		}
	}
	return RouteEvaluation{Reason: "currency not accepted: " + string(currency)}
}

// Err converts a failed evaluation to a validation error.
func (e RouteEvaluation) Err() error {
	if e.Allowed {
		return nil
	}
	return domain.ErrValidation(e.Reason)
}
