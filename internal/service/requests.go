package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/ledger"
	"github.com/stakehouse/platform/internal/policy"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/settlement"
)

// RequestService handles withdrawal and loan requests and their single
// operator decision.
type RequestService struct {
	runner *repository.TxRunner
	engine *ledger.Engine
	policy Policy
	clock  Clock
	logger *slog.Logger
}

// NewRequestService creates a RequestService.
func NewRequestService(runner *repository.TxRunner, engine *ledger.Engine, policy Policy, clock Clock, logger *slog.Logger) *RequestService {
	return &RequestService{runner: runner, engine: engine, policy: policy, clock: clock, logger: logger}
}

func requestRef(id uuid.UUID, scope string) domain.Ref {
	return domain.Ref{Kind: domain.RelatedRequest, ID: id, Scope: scope}
}

// FileRequest records a pending request. A withdrawal reserves its cash at
// once; a loan moves nothing until approved.
func (s *RequestService) FileRequest(ctx context.Context, accountID uuid.UUID, typ domain.RequestType, amount int64) (*domain.Request, error) {
	if !typ.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("invalid request type %q", typ))
	}
	if err := policy.EvaluateStakeLimits(s.policy.Limits, amount, policy.KindRequest).Err(); err != nil {
		return nil, err
	}
	reqID := uuid.New()

	var req *domain.Request
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		acct, err := mustAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := policy.EvaluateStanding(acct).Err(accountID.String()); err != nil {
			return err
		}

		req = &domain.Request{
			ID:        reqID,
			AccountID: accountID,
			Type:      typ,
			Currency:  typ.Currency(),
			Amount:    amount,
			Status:    domain.RequestPending,
			CreatedAt: s.clock.now(),
		}
		if err := tx.Requests().Create(ctx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		if _, err := s.engine.Apply(ctx, tx, requestRef(reqID, "filing"), settlement.RequestFiling(req)); err != nil {
			return err
		}
		return tx.Outbox().Insert(ctx, domain.NewRequestUpdatedEvent(req))
	})
	if err != nil {
		return nil, fail("file request", err)
	}
	s.logger.Info("request filed", "request_id", reqID, "account_id", accountID, "type", typ, "amount", amount)
	return req, nil
}

// ProcessRequest applies the operator's decision. A request leaves pending
// exactly once; later decisions fail with RequestAlreadyProcessed.
func (s *RequestService) ProcessRequest(ctx context.Context, requestID, operatorID uuid.UUID, approve bool) (*domain.Request, error) {
	var req *domain.Request
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		req, err = mustRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestPending {
			return domain.ErrRequestAlreadyProcessed(requestID.String(), req.Status)
		}

		now := s.clock.now()
		req.Status = domain.RequestDeclined
		if approve {
			req.Status = domain.RequestApproved
		}
		req.ProcessedBy = &operatorID
		req.ProcessedAt = &now
		if err := tx.Requests().Update(ctx, req); err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		if _, err := s.engine.Apply(ctx, tx, requestRef(requestID, "decision"), settlement.RequestDecision(req, approve)); err != nil {
			return err
		}
		return tx.Outbox().Insert(ctx, domain.NewRequestUpdatedEvent(req))
	})
	if err != nil {
		return nil, fail("process request", err)
	}
	s.logger.Info("request processed",
		"request_id", requestID,
		"type", req.Type,
		"status", req.Status,
		"operator_id", operatorID,
	)
	return req, nil
}

// GetRequest returns one request.
func (s *RequestService) GetRequest(ctx context.Context, requestID uuid.UUID) (*domain.Request, error) {
	var req *domain.Request
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		req, err = mustRequest(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, fail("get request", err)
	}
	return req, nil
}

// ListRequests returns requests in one status, oldest first.
func (s *RequestService) ListRequests(ctx context.Context, status domain.RequestStatus, limit int) ([]domain.Request, error) {
	switch status {
	case domain.RequestPending, domain.RequestApproved, domain.RequestDeclined:
	default:
		return nil, domain.ErrValidation(fmt.Sprintf("unknown request status %q", status))
	}
	var out []domain.Request
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Requests().ListByStatus(ctx, status, pageSize(limit))
		return err
	})
	if err != nil {
		return nil, fail("list requests", err)
	}
	return out, nil
}

// ListAccountRequests returns an account's requests, newest first.
func (s *RequestService) ListAccountRequests(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Request, error) {
	var out []domain.Request
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		out, err = tx.Requests().ListByAccount(ctx, accountID, pageSize(limit))
		return err
	})
	if err != nil {
		return nil, fail("list account requests", err)
	}
	return out, nil
}

func mustRequest(ctx context.Context, tx repository.Tx, id uuid.UUID) (*domain.Request, error) {
	req, err := tx.Requests().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load request: %w", err)
	}
	if req == nil {
		return nil, domain.ErrNotFound("request", id.String())
	}
	return req, nil
}
