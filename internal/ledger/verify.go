package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/repository"
)

// InvariantCheck records a single invariant validation.
type InvariantCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// ReplayResult is the outcome of replaying one account's ledger.
type ReplayResult struct {
	AccountID  uuid.UUID                 `json:"account_id"`
	EntryCount int                       `json:"entry_count"`
	Replayed   map[domain.Currency]int64 `json:"replayed"`
	Stored     map[domain.Currency]int64 `json:"stored"`
	Invariants []InvariantCheck          `json:"invariants"`
	AllPassed  bool                      `json:"all_passed"`
}

// Verify replays every entry of an account in creation order and checks it
// against the stored row.
//
// Invariants:
//  1. Balance non-negativity: both currencies >= 0, at every step
//  2. Sum parity: the sum of deltas equals the stored balance
//  3. Snapshot parity: each entry's resulting balance equals the running sum
func Verify(ctx context.Context, tx repository.Tx, accountID uuid.UUID) (*ReplayResult, error) {
	acct, err := tx.Accounts().FindByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound(accountID.String())
	}

	history, err := tx.Ledger().History(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	res := &ReplayResult{
		AccountID:  accountID,
		EntryCount: len(history),
		Replayed:   make(map[domain.Currency]int64),
		Stored:     make(map[domain.Currency]int64),
	}

	neverNegative := true
	snapshotsMatch := true
	var firstMismatch string
	for _, e := range history {
		res.Replayed[e.Currency] += e.Delta
		running := res.Replayed[e.Currency]
		if running < 0 {
			neverNegative = false
		}
		if e.ResultingBalance != running && snapshotsMatch {
			snapshotsMatch = false
			firstMismatch = fmt.Sprintf("seq=%d resulting=%d running=%d", e.Seq, e.ResultingBalance, running)
		}
	}

	sumsMatch := true
	for _, c := range domain.Currencies() {
		res.Stored[c] = acct.Balance(c)
		if res.Stored[c] < 0 {
			neverNegative = false
		}
		if res.Replayed[c] != res.Stored[c] {
			sumsMatch = false
		}
	}

	res.Invariants = []InvariantCheck{
		{
			Name:   "balance_non_negative",
			Passed: neverNegative,
			Detail: fmt.Sprintf("points=%d cash=%d", acct.PointsBalance, acct.CashBalance),
		},
		{
			Name:   "ledger_sum_parity",
			Passed: sumsMatch,
			Detail: fmt.Sprintf("stored=%v replayed=%v", res.Stored, res.Replayed),
		},
		{
			Name:   "resulting_balance_parity",
			Passed: snapshotsMatch,
			Detail: firstMismatch,
		},
	}
	res.AllPassed = neverNegative && sumsMatch && snapshotsMatch
	return res, nil
}
