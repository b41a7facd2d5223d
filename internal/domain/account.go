package domain

import (
	"time"

	"github.com/google/uuid"
)

// Currency identifies one of the two balances every account holds.
type Currency string

const (
	CurrencyPoints Currency = "points"
	CurrencyCash   Currency = "cash"
)

// Valid reports whether c is a known currency.
func (c Currency) Valid() bool {
	return c == CurrencyPoints || c == CurrencyCash
}

// Currencies lists every currency in a stable order.
func Currencies() []Currency {
	return []Currency{CurrencyPoints, CurrencyCash}
}

// AccountStatus tracks operator approval of an account.
type AccountStatus string

const (
	AccountPending AccountStatus = "pending"
	AccountActive  AccountStatus = "active"
)

// Account holds a user's balances. Balances change only through the ledger
// engine; Version guards every write.
type Account struct {
	ID            uuid.UUID     `json:"id"`
	DisplayName   string        `json:"display_name"`
	PointsBalance int64         `json:"points_balance"`
	CashBalance   int64         `json:"cash_balance"`
	ReferrerID    *uuid.UUID    `json:"referrer_id,omitempty"`
	ReferralCount int           `json:"referral_count"`
	Status        AccountStatus `json:"status"`
	Disabled      bool          `json:"disabled"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Balance returns the balance held in currency c.
func (a *Account) Balance(c Currency) int64 {
	if c == CurrencyCash {
		return a.CashBalance
	}
	return a.PointsBalance
}

// SetBalance overwrites the balance held in currency c.
func (a *Account) SetBalance(c Currency, v int64) {
	if c == CurrencyCash {
		a.CashBalance = v
		return
	}
	a.PointsBalance = v
}

// Referral records that ReferredID signed up through ReferrerID.
type Referral struct {
	ReferrerID uuid.UUID `json:"referrer_id"`
	ReferredID uuid.UUID `json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// Adjustment is an operator-initiated balance correction or grant. It is the
// causal record behind operator_adjustment ledger entries.
type Adjustment struct {
	ID         uuid.UUID `json:"id"`
	AccountID  uuid.UUID `json:"account_id"`
	Currency   Currency  `json:"currency"`
	Amount     int64     `json:"amount"`
	Note       string    `json:"note"`
	OperatorID uuid.UUID `json:"operator_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReferralSettings gate the referral bonus paid on account approval.
type ReferralSettings struct {
	Enabled        bool
	Bonus          int64
	Currency       Currency
	MaxPerReferrer int
}
