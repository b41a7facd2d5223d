// Package ledger is the only writer of account balances. Every balance
// change goes through Engine.Apply, which moves the balance and appends the
// matching ledger entry and outbox event inside the caller's transaction.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/repository"
)

// Engine applies settlement deltas to accounts.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine. A nil clock means time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Posting is what one Apply call did.
type Posting struct {
	// Entries are the ledger entries appended, in delta order.
	Entries []domain.LedgerEntry

	// Accounts holds the post-change snapshot of every account touched.
	Accounts map[uuid.UUID]*domain.Account

	// Replayed counts deltas skipped because their entry already existed.
	Replayed int
}

// Account returns the post-change snapshot of id, if Apply touched it.
func (p *Posting) Account(id uuid.UUID) *domain.Account {
	return p.Accounts[id]
}

// Apply posts deltas in order under ref. A delta whose idempotency key is
// already recorded is skipped. Any failure leaves the caller's transaction
// to be rolled back, so the batch is all-or-nothing.
func (e *Engine) Apply(ctx context.Context, tx repository.Tx, ref domain.Ref, deltas []domain.Delta) (*Posting, error) {
	p := &Posting{Accounts: make(map[uuid.UUID]*domain.Account)}
	at := e.now().UTC()

	for _, d := range deltas {
		if d.Amount == 0 {
			continue
		}
		if !d.Currency.Valid() {
			return nil, domain.ErrValidation(fmt.Sprintf("unknown currency %q", d.Currency))
		}

		key := ref.IdempotencyKey(d)
		existing, err := tx.Ledger().FindByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("find ledger entry: %w", err)
		}
		if existing != nil {
			p.Replayed++
			continue
		}

		entry := domain.LedgerEntry{
			ID:             uuid.New(),
			AccountID:      d.AccountID,
			Currency:       d.Currency,
			Delta:          d.Amount,
			Reason:         d.Reason,
			RelatedKind:    ref.Kind,
			RelatedID:      ref.ID,
			IdempotencyKey: key,
			CreatedAt:      at,
		}

		if d.AccountID != domain.HouseAccountID {
			acct, err := e.adjust(ctx, tx, p, d, at)
			if err != nil {
				return nil, err
			}
			entry.ResultingBalance = acct.Balance(d.Currency)
		}

		if err := e.post(ctx, tx, &entry); err != nil {
			return nil, err
		}
		p.Entries = append(p.Entries, entry)
	}
	return p, nil
}

// adjust moves one balance and persists the account with a version check.
func (e *Engine) adjust(ctx context.Context, tx repository.Tx, p *Posting, d domain.Delta, at time.Time) (*domain.Account, error) {
	acct := p.Accounts[d.AccountID]
	if acct == nil {
		var err error
		acct, err = tx.Accounts().FindByID(ctx, d.AccountID)
		if err != nil {
			return nil, fmt.Errorf("load account: %w", err)
		}
		if acct == nil {
			return nil, domain.ErrAccountNotFound(d.AccountID.String())
		}
	}

	balance := acct.Balance(d.Currency)
	if d.Amount < 0 {
		if acct.Disabled {
			return nil, domain.ErrAccountDisabled(acct.ID.String())
		}
		if balance+d.Amount < 0 {
			return nil, domain.ErrInsufficientFunds(d.Currency, balance, -d.Amount)
		}
	}

	next, err := domain.CheckedAdd(balance, d.Amount)
	if err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	acct.SetBalance(d.Currency, next)
	acct.UpdatedAt = at
	if err := tx.Accounts().Update(ctx, acct); err != nil {
		return nil, fmt.Errorf("update account balance: %w", err)
	}
	p.Accounts[acct.ID] = acct
	return acct, nil
}

func (e *Engine) post(ctx context.Context, tx repository.Tx, entry *domain.LedgerEntry) error {
	if err := tx.Ledger().Insert(ctx, entry); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	if err := tx.Outbox().Insert(ctx, domain.NewLedgerEntryPostedEvent(entry)); err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// Seal closes an account's history before its row is deleted: one
// zero-delta account_sealed entry per currency, then a sealed event. The
// balances must already be zero.
func (e *Engine) Seal(ctx context.Context, tx repository.Tx, acct *domain.Account) ([]domain.LedgerEntry, error) {
	at := e.now().UTC()
	ref := domain.Ref{Kind: domain.RelatedAccount, ID: acct.ID, Scope: "seal"}

	var entries []domain.LedgerEntry
	for _, c := range domain.Currencies() {
		if bal := acct.Balance(c); bal != 0 {
			return nil, domain.ErrConflict(fmt.Sprintf("account %s still holds %d %s", acct.ID, bal, c))
		}
		d := domain.Delta{AccountID: acct.ID, Currency: c, Reason: domain.ReasonAccountSealed}
		key := ref.IdempotencyKey(d)
		sealed, err := tx.Ledger().FindByIdempotencyKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("find ledger entry: %w", err)
		}
		if sealed != nil {
			return nil, domain.ErrConflict(fmt.Sprintf("account %s is already sealed", acct.ID))
		}
		entry := domain.LedgerEntry{
			ID:             uuid.New(),
			AccountID:      acct.ID,
			Currency:       c,
			Reason:         domain.ReasonAccountSealed,
			RelatedKind:    ref.Kind,
			RelatedID:      ref.ID,
			IdempotencyKey: key,
			CreatedAt:      at,
		}
		if err := e.post(ctx, tx, &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := tx.Outbox().Insert(ctx, domain.NewAccountSealedEvent(acct.ID, at)); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}
	return entries, nil
}
