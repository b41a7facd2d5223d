package policy

import "github.com/stakehouse/platform/internal/domain"

// Standing holds the results of the account checks every wager passes.
type Standing struct {
	Active   bool `json:"active"`
	Disabled bool `json:"disabled"`
}

// EvaluateStanding reports whether an account may put funds at risk.
func EvaluateStanding(acct *domain.Account) Standing {
	return Standing{
		Active:   acct.Status == domain.AccountActive,
		Disabled: acct.Disabled,
	}
}

// Err returns the error blocking the account, or nil when it is cleared.
func (s Standing) Err(id string) error {
	if s.Disabled {
		return domain.ErrAccountDisabled(id)
	}
	if !s.Active {
		return domain.ErrForbidden("account " + id + " is pending approval")
	}
	return nil
}
