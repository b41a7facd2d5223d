package settlement

import (
	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
)

// RequestFiling returns the deltas applied when a request is filed: a
// withdrawal reserves its amount immediately, a loan moves nothing.
func RequestFiling(req *domain.Request) []domain.Delta {
	if req.Type != domain.RequestWithdrawal {
		return nil
	}
	return []domain.Delta{{
		AccountID: req.AccountID,
		Currency:  req.Currency,
		Amount:    -req.Amount,
		Reason:    domain.ReasonWithdrawalReserve,
	}}
}

// RequestDecision returns the deltas of an operator decision.
//
//	loan, approve        credit the amount
//	loan, decline        nothing
//	withdrawal, approve  nothing; the reservation is final
//	withdrawal, decline  restore the reservation
func RequestDecision(req *domain.Request, approve bool) []domain.Delta {
	switch {
	case req.Type == domain.RequestLoan && approve:
		return []domain.Delta{{
			AccountID: req.AccountID, Currency: req.Currency, Amount: req.Amount, Reason: domain.ReasonLoanCredit,
		}}
	case req.Type == domain.RequestWithdrawal && !approve:
		return []domain.Delta{{
			AccountID: req.AccountID, Currency: req.Currency, Amount: req.Amount, Reason: domain.ReasonWithdrawalRestore,
		}}
	default:
		return nil
	}
}

// ReferralOutcome says what approving a referred account does for its referrer.
type ReferralOutcome struct {
	Deltas         []domain.Delta
	AppendReferral bool
	SkippedReason  string
}

// ReferralBonus applies the referral rule to a referrer. Past the cap the
// bonus and the referral are skipped without failing the approval.
func ReferralBonus(cfg domain.ReferralSettings, referrer *domain.Account) ReferralOutcome {
	if !cfg.Enabled {
		return ReferralOutcome{SkippedReason: "referrals disabled"}
	}
	if referrer == nil || referrer.ID == uuid.Nil {
		return ReferralOutcome{SkippedReason: "referrer unknown"}
	}
	if cfg.MaxPerReferrer > 0 && referrer.ReferralCount >= cfg.MaxPerReferrer {
		return ReferralOutcome{SkippedReason: "referral cap reached"}
	}

	out := ReferralOutcome{AppendReferral: true}
	if cfg.Bonus > 0 {
		out.Deltas = []domain.Delta{{
			AccountID: referrer.ID,
			Currency:  cfg.Currency,
			Amount:    cfg.Bonus,
			Reason:    domain.ReasonReferralBonus,
		}}
	}
	return out
}
