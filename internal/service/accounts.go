package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/ledger"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/settlement"
)

// AccountService handles the account lifecycle, operator adjustments and
// ledger queries.
type AccountService struct {
	runner *repository.TxRunner
	engine *ledger.Engine
	policy Policy
	clock  Clock
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(runner *repository.TxRunner, engine *ledger.Engine, policy Policy, clock Clock, logger *slog.Logger) *AccountService {
	return &AccountService{runner: runner, engine: engine, policy: policy, clock: clock, logger: logger}
}

// CreateAccountInput describes a new account. A zero ID is generated.
type CreateAccountInput struct {
	ID          uuid.UUID
	DisplayName string
	ReferrerID  *uuid.UUID
}

// GetAccount returns one account.
func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var acct *domain.Account
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		acct, err = mustAccount(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fail("get account", err)
	}
	return acct, nil
}

// CreateAccount opens a pending account with zero balances.
func (s *AccountService) CreateAccount(ctx context.Context, in CreateAccountInput) (*domain.Account, error) {
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, domain.ErrValidation("display name is required")
	}
	id := in.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	if in.ReferrerID != nil && *in.ReferrerID == id {
		return nil, domain.ErrValidation("an account cannot refer itself")
	}

	var acct *domain.Account
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		if in.ReferrerID != nil {
			ref, err := tx.Accounts().FindByID(ctx, *in.ReferrerID)
			if err != nil {
				return fmt.Errorf("load referrer: %w", err)
			}
			if ref == nil {
				return domain.ErrValidation("referrer does not exist")
			}
		}
		existing, err := tx.Accounts().FindByID(ctx, id)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		if existing != nil {
			return domain.ErrConflict(fmt.Sprintf("account %s already exists", id))
		}
		// A deleted account keeps its sealed history; its ID is never reissued.
		history, err := tx.Ledger().ListByAccount(ctx, id, nil, 1)
		if err != nil {
			return fmt.Errorf("list ledger: %w", err)
		}
		if len(history) > 0 {
			return domain.ErrConflict(fmt.Sprintf("account %s was sealed", id))
		}

		now := s.clock.now()
		acct = &domain.Account{
			ID:          id,
			DisplayName: name,
			ReferrerID:  in.ReferrerID,
			Status:      domain.AccountPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Accounts().Create(ctx, acct); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return tx.Outbox().Insert(ctx, domain.NewAccountUpdatedEvent(acct))
	})
	if err != nil {
		return nil, fail("create account", err)
	}
	s.logger.Info("account created", "account_id", acct.ID)
	return acct, nil
}

// ReferralResult says what an approval did for the referrer.
type ReferralResult struct {
	ReferrerID    *uuid.UUID `json:"referrer_id,omitempty"`
	Credited      int64      `json:"credited"`
	SkippedReason string     `json:"skipped_reason,omitempty"`
}

// ApprovalResult is the outcome of ApproveAccount.
type ApprovalResult struct {
	Account  *domain.Account `json:"account"`
	Referral ReferralResult  `json:"referral"`
}

// ApproveAccount activates a pending account and applies the referral rule
// to its referrer. A skipped referral never fails the approval.
func (s *AccountService) ApproveAccount(ctx context.Context, id uuid.UUID) (*ApprovalResult, error) {
	var res *ApprovalResult
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		acct, err := mustAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if acct.Status != domain.AccountPending {
			return domain.ErrConflict(fmt.Sprintf("account %s is already %s", id, acct.Status))
		}

		now := s.clock.now()
		acct.Status = domain.AccountActive
		acct.UpdatedAt = now
		if err := tx.Accounts().Update(ctx, acct); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		if err := tx.Outbox().Insert(ctx, domain.NewAccountUpdatedEvent(acct)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		res = &ApprovalResult{Account: acct}

		if acct.ReferrerID == nil {
			res.Referral.SkippedReason = "no referrer"
			return nil
		}
		res.Referral.ReferrerID = acct.ReferrerID
		referrer, err := tx.Accounts().FindByID(ctx, *acct.ReferrerID)
		if err != nil {
			return fmt.Errorf("load referrer: %w", err)
		}

		outcome := settlement.ReferralBonus(s.policy.Referral, referrer)
		if !outcome.AppendReferral {
			res.Referral.SkippedReason = outcome.SkippedReason
			return nil
		}

		referrer.ReferralCount++
		referrer.UpdatedAt = now
		if err := tx.Accounts().Update(ctx, referrer); err != nil {
			return fmt.Errorf("update referrer: %w", err)
		}
		if err := tx.Accounts().AddReferral(ctx, domain.Referral{
			ReferrerID: referrer.ID,
			ReferredID: acct.ID,
			CreatedAt:  now,
		}); err != nil {
			return fmt.Errorf("add referral: %w", err)
		}

		ref := domain.Ref{Kind: domain.RelatedAccount, ID: acct.ID, Scope: "referral"}
		posting, err := s.engine.Apply(ctx, tx, ref, outcome.Deltas)
		if err != nil {
			return err
		}
		for _, e := range posting.Entries {
			res.Referral.Credited += e.Delta
		}
		return nil
	})
	if err != nil {
		return nil, fail("approve account", err)
	}
	s.logger.Info("account approved",
		"account_id", id,
		"referral_credited", res.Referral.Credited,
		"referral_skipped", res.Referral.SkippedReason,
	)
	return res, nil
}

// DisableAccount blocks debits from an account. Credits still land.
func (s *AccountService) DisableAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.setDisabled(ctx, id, true)
}

// EnableAccount lifts a disable.
func (s *AccountService) EnableAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.setDisabled(ctx, id, false)
}

func (s *AccountService) setDisabled(ctx context.Context, id uuid.UUID, disabled bool) (*domain.Account, error) {
	var acct *domain.Account
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		acct, err = mustAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if acct.Disabled == disabled {
			return nil
		}
		acct.Disabled = disabled
		acct.UpdatedAt = s.clock.now()
		if err := tx.Accounts().Update(ctx, acct); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		return tx.Outbox().Insert(ctx, domain.NewAccountUpdatedEvent(acct))
	})
	if err != nil {
		return nil, fail("update account", err)
	}
	s.logger.Info("account standing changed", "account_id", id, "disabled", disabled)
	return acct, nil
}

// DeleteAccount seals the ledger history of an account and removes its row.
// Both balances must be zero and no request may be pending.
func (s *AccountService) DeleteAccount(ctx context.Context, id uuid.UUID) error {
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		acct, err := mustAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		reqs, err := tx.Requests().ListByAccount(ctx, id, 0)
		if err != nil {
			return fmt.Errorf("list requests: %w", err)
		}
		for _, r := range reqs {
			if r.Status == domain.RequestPending {
				return domain.ErrConflict(fmt.Sprintf("account %s has pending request %s", id, r.ID))
			}
		}
		if _, err := s.engine.Seal(ctx, tx, acct); err != nil {
			return err
		}
		if err := tx.Accounts().Delete(ctx, acct); err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		return nil
	})
	if err != nil {
		return fail("delete account", err)
	}
	s.logger.Info("account deleted", "account_id", id)
	return nil
}

// AdjustInput is an operator grant or correction.
type AdjustInput struct {
	AccountID  uuid.UUID
	Currency   domain.Currency
	Amount     int64
	Note       string
	OperatorID uuid.UUID
}

// AdjustmentResult pairs the adjustment record with the entry it caused.
type AdjustmentResult struct {
	Adjustment domain.Adjustment  `json:"adjustment"`
	Entry      domain.LedgerEntry `json:"entry"`
	Account    *domain.Account    `json:"account"`
}

// AdjustBalance records an operator adjustment and posts it to the ledger.
func (s *AccountService) AdjustBalance(ctx context.Context, in AdjustInput) (*AdjustmentResult, error) {
	if err := domain.ValidateCurrency(in.Currency); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if in.Amount == 0 {
		return nil, domain.ErrValidation("amount must be non-zero")
	}
	if strings.TrimSpace(in.Note) == "" {
		return nil, domain.ErrValidation("note is required")
	}
	adjID := uuid.New()

	var res *AdjustmentResult
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		adj := domain.Adjustment{
			ID:         adjID,
			AccountID:  in.AccountID,
			Currency:   in.Currency,
			Amount:     in.Amount,
			Note:       in.Note,
			OperatorID: in.OperatorID,
			CreatedAt:  s.clock.now(),
		}
		if err := tx.Adjustments().Insert(ctx, &adj); err != nil {
			return fmt.Errorf("insert adjustment: %w", err)
		}
		ref := domain.Ref{Kind: domain.RelatedAdjustment, ID: adj.ID}
		posting, err := s.engine.Apply(ctx, tx, ref, []domain.Delta{{
			AccountID: in.AccountID,
			Currency:  in.Currency,
			Amount:    in.Amount,
			Reason:    domain.ReasonOperatorAdjustment,
		}})
		if err != nil {
			return err
		}
		res = &AdjustmentResult{Adjustment: adj, Account: posting.Account(in.AccountID)}
		if len(posting.Entries) > 0 {
			res.Entry = posting.Entries[0]
		}
		return nil
	})
	if err != nil {
		return nil, fail("adjust balance", err)
	}
	s.logger.Info("balance adjusted",
		"account_id", in.AccountID,
		"currency", in.Currency,
		"amount", in.Amount,
		"operator_id", in.OperatorID,
	)
	return res, nil
}

// ListLedger pages through an account's entries, newest first. Pass the
// previous page's NextCursor to continue.
func (s *AccountService) ListLedger(ctx context.Context, id uuid.UUID, cursor *int64, limit int) (*domain.LedgerPage, error) {
	limit = pageSize(limit)
	var page *domain.LedgerPage
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		entries, err := tx.Ledger().ListByAccount(ctx, id, cursor, limit)
		if err != nil {
			return fmt.Errorf("list ledger: %w", err)
		}
		if len(entries) == 0 {
			// A deleted account keeps its history, so only reject ids
			// that never had any.
			if cursor == nil {
				acct, err := tx.Accounts().FindByID(ctx, id)
				if err != nil {
					return fmt.Errorf("load account: %w", err)
				}
				if acct == nil {
					return domain.ErrAccountNotFound(id.String())
				}
			}
			entries = []domain.LedgerEntry{}
		}
		page = &domain.LedgerPage{Entries: entries}
		if len(entries) == limit {
			next := entries[len(entries)-1].Seq
			page.NextCursor = &next
		}
		return nil
	})
	if err != nil {
		return nil, fail("list ledger", err)
	}
	return page, nil
}

// VerifyLedger replays an account's history against its stored balances.
func (s *AccountService) VerifyLedger(ctx context.Context, id uuid.UUID) (*ledger.ReplayResult, error) {
	var res *ledger.ReplayResult
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		res, err = ledger.Verify(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, fail("verify ledger", err)
	}
	if !res.AllPassed {
		s.logger.Warn("ledger verification failed", "account_id", id)
	}
	return res, nil
}

// HouseRevenue totals house entries per currency.
func (s *AccountService) HouseRevenue(ctx context.Context) (map[domain.Currency]int64, error) {
	out := make(map[domain.Currency]int64)
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		for _, c := range domain.Currencies() {
			total, err := tx.Ledger().SumHouse(ctx, c)
			if err != nil {
				return fmt.Errorf("sum house %s: %w", c, err)
			}
			out[c] = total
		}
		return nil
	})
	if err != nil {
		return nil, fail("house revenue", err)
	}
	return out, nil
}

// ListAdjustments returns an account's adjustments in creation order.
func (s *AccountService) ListAdjustments(ctx context.Context, id uuid.UUID) ([]domain.Adjustment, error) {
	var out []domain.Adjustment
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Adjustments().ListByAccount(ctx, id)
		return err
	})
	if err != nil {
		return nil, fail("list adjustments", err)
	}
	return out, nil
}

func mustAccount(ctx context.Context, tx repository.Tx, id uuid.UUID) (*domain.Account, error) {
	acct, err := tx.Accounts().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct == nil {
		return nil, domain.ErrAccountNotFound(id.String())
	}
	return acct, nil
}
