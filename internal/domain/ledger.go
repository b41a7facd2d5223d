package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HouseAccountID is the owner of house-revenue entries. The house has no
// account row and no balance.
var HouseAccountID = uuid.Nil

// Reason enumerates why a ledger entry exists.
type Reason string

const (
	ReasonRoomStake          Reason = "room_stake"
	ReasonRoomRefund         Reason = "room_refund"
	ReasonRoomPayout         Reason = "room_payout"
	ReasonHouseFee           Reason = "house_fee"
	ReasonBetStake           Reason = "bet_stake"
	ReasonBetPayout          Reason = "bet_payout"
	ReasonBetRefund          Reason = "bet_refund"
	ReasonWithdrawalReserve  Reason = "withdrawal_reserve"
	ReasonWithdrawalRestore  Reason = "withdrawal_restore"
	ReasonLoanCredit         Reason = "loan_credit"
	ReasonReferralBonus      Reason = "referral_bonus"
	ReasonOperatorAdjustment Reason = "operator_adjustment"
	ReasonAccountSealed      Reason = "account_sealed"
	ReasonPoolFunding        Reason = "pool_funding"
	ReasonPoolRetained       Reason = "pool_retained"
)

// RelatedKind names the collection a ledger entry's RelatedID points into.
type RelatedKind string

const (
	RelatedRoom       RelatedKind = "room"
	RelatedEvent      RelatedKind = "event"
	RelatedBet        RelatedKind = "bet"
	RelatedRequest    RelatedKind = "request"
	RelatedAccount    RelatedKind = "account"
	RelatedAdjustment RelatedKind = "adjustment"
)

// LedgerEntry is an immutable record of one balance change.
type LedgerEntry struct {
	ID               uuid.UUID   `json:"id"`
	Seq              int64       `json:"seq"`
	AccountID        uuid.UUID   `json:"account_id"`
	Currency         Currency    `json:"currency"`
	Delta            int64       `json:"delta"`
	Reason           Reason      `json:"reason"`
	RelatedKind      RelatedKind `json:"related_kind"`
	RelatedID        uuid.UUID   `json:"related_id"`
	IdempotencyKey   string      `json:"idempotency_key"`
	ResultingBalance int64       `json:"resulting_balance"`
	CreatedAt        time.Time   `json:"created_at"`
}

// IsHouse reports whether the entry is house revenue rather than an account change.
func (e *LedgerEntry) IsHouse() bool { return e.AccountID == HouseAccountID }

// Delta is one balance change computed by the settlement rules.
type Delta struct {
	AccountID uuid.UUID `json:"account_id"`
	Currency  Currency  `json:"currency"`
	Amount    int64     `json:"amount"`
	Reason    Reason    `json:"reason"`
}

// Ref identifies the causal record a batch of deltas belongs to. Scope
// distinguishes repeated settlements of the same record, e.g. room rounds.
type Ref struct {
	Kind  RelatedKind
	ID    uuid.UUID
	Scope string
}

// IdempotencyKey derives the unique key of the entry produced by d under r.
func (r Ref) IdempotencyKey(d Delta) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s", r.Kind, r.ID, r.Scope, d.Reason, d.AccountID, d.Currency)
}

// LedgerPage is a page of entries with an opaque continuation cursor.
type LedgerPage struct {
	Entries    []LedgerEntry `json:"entries"`
	NextCursor *int64        `json:"next_cursor,omitempty"`
}
