package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/ledger"
	"github.com/stakehouse/platform/internal/policy"
	"github.com/stakehouse/platform/internal/repository"
	"github.com/stakehouse/platform/internal/settlement"
)

// sweepBatch caps how many due events one LockExpired pass touches.
const sweepBatch = 100

// EventService runs pooled-odds events from creation to settlement.
type EventService struct {
	runner *repository.TxRunner
	engine *ledger.Engine
	policy Policy
	clock  Clock
	logger *slog.Logger
}

// NewEventService creates an EventService.
func NewEventService(runner *repository.TxRunner, engine *ledger.Engine, policy Policy, clock Clock, logger *slog.Logger) *EventService {
	return &EventService{runner: runner, engine: engine, policy: policy, clock: clock, logger: logger}
}

func eventRef(id uuid.UUID, scope string) domain.Ref {
	return domain.Ref{Kind: domain.RelatedEvent, ID: id, Scope: scope}
}

func betRef(id uuid.UUID, scope string) domain.Ref {
	return domain.Ref{Kind: domain.RelatedBet, ID: id, Scope: scope}
}

// CreateEventInput describes a new event.
type CreateEventInput struct {
	Title          string
	OutcomeA       string
	OutcomeB       string
	OddsA          decimal.Decimal
	OddsB          decimal.Decimal
	Currency       domain.Currency
	EndTime        time.Time
	InitialFunding int64
}

func (in CreateEventInput) validate(now time.Time) error {
	if err := domain.ValidateEventLabels(in.Title, in.OutcomeA, in.OutcomeB); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateOdds(in.OddsA); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if err := domain.ValidateOdds(in.OddsB); err != nil {
		return domain.ErrValidation(err.Error())
	}
	if !in.EndTime.After(now) {
		return domain.ErrValidation("end time must be in the future")
	}
	if in.InitialFunding < 0 {
		return domain.ErrValidation("initial funding cannot be negative")
	}
	if in.InitialFunding > domain.MaxAmount {
		return domain.ErrValidation(fmt.Sprintf("initial funding exceeds the ceiling of %d", domain.MaxAmount))
	}
	return nil
}

// CreateEvent opens an event for betting until its end time. Initial
// funding is drawn from the house.
func (s *EventService) CreateEvent(ctx context.Context, in CreateEventInput) (*domain.EventPool, error) {
	now := s.clock.now()
	if err := in.validate(now); err != nil {
		return nil, err
	}
	if err := policy.EvaluateCurrencyRoute(s.policy.Routing, policy.KindBetStake, in.Currency).Err(); err != nil {
		return nil, err
	}
	eventID := uuid.New()

	var event *domain.EventPool
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		event = &domain.EventPool{
			ID:             eventID,
			Title:          strings.TrimSpace(in.Title),
			OutcomeA:       strings.TrimSpace(in.OutcomeA),
			OutcomeB:       strings.TrimSpace(in.OutcomeB),
			OddsA:          in.OddsA,
			OddsB:          in.OddsB,
			Currency:       in.Currency,
			PrizePool:      in.InitialFunding,
			OperatorFunded: in.InitialFunding,
			BettingOpen:    true,
			EndTime:        in.EndTime.UTC(),
			Status:         domain.EventOpen,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Events().Create(ctx, event); err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		if _, err := s.engine.Apply(ctx, tx, eventRef(eventID, "fund:initial"), []domain.Delta{
			houseDelta(event.Currency, -in.InitialFunding, domain.ReasonPoolFunding),
		}); err != nil {
			return err
		}
		return tx.Outbox().Insert(ctx, domain.NewPoolUpdatedEvent(event))
	})
	if err != nil {
		return nil, fail("create event", err)
	}
	s.logger.Info("event created", "event_id", eventID, "end_time", event.EndTime, "funding", in.InitialFunding)
	return event, nil
}

// FundEvent adds operator money to an unsettled event's prize pool.
func (s *EventService) FundEvent(ctx context.Context, eventID uuid.UUID, amount int64) (*domain.EventPool, error) {
	if err := domain.ValidatePositiveAmount(amount); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	// One key per call, stable across retries.
	scope := "fund:" + uuid.NewString()

	var event *domain.EventPool
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		event, err = mustEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if event.Status.Terminal() {
			return domain.ErrConflict(fmt.Sprintf("event %s is already %s", eventID, event.Status))
		}
		if event.PrizePool, err = domain.CheckedAdd(event.PrizePool, amount); err != nil {
			return domain.ErrValidation(err.Error())
		}
		if event.OperatorFunded, err = domain.CheckedAdd(event.OperatorFunded, amount); err != nil {
			return domain.ErrValidation(err.Error())
		}
		event.UpdatedAt = s.clock.now()
		if err := tx.Events().Update(ctx, event); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if _, err := s.engine.Apply(ctx, tx, eventRef(eventID, scope), []domain.Delta{
			houseDelta(event.Currency, -amount, domain.ReasonPoolFunding),
		}); err != nil {
			return err
		}
		return tx.Outbox().Insert(ctx, domain.NewPoolUpdatedEvent(event))
	})
	if err != nil {
		return nil, fail("fund event", err)
	}
	s.logger.Info("event funded", "event_id", eventID, "amount", amount, "prize_pool", event.PrizePool)
	return s.present(event), nil
}

// PlaceBetInput is a stake on one outcome.
type PlaceBetInput struct {
	Outcome domain.Outcome
	Stake   int64
}

// BetResult is a placed bet and the pool it joined.
type BetResult struct {
	Bet   domain.Bet       `json:"bet"`
	Event domain.EventPool `json:"event"`
}

// PlaceBet debits the stake and adds it to the prize pool. The payout is
// fixed from the odds at placement.
func (s *EventService) PlaceBet(ctx context.Context, accountID, eventID uuid.UUID, in PlaceBetInput) (*BetResult, error) {
	if !in.Outcome.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("invalid outcome %q", in.Outcome))
	}
	if err := policy.EvaluateStakeLimits(s.policy.Limits, in.Stake, policy.KindBetStake).Err(); err != nil {
		return nil, err
	}
	betID := uuid.New()

	var res *BetResult
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		event, err := mustEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		now := s.clock.now()
		if !event.AcceptsBets(now) {
			return domain.ErrBettingClosed(eventID.String())
		}
		acct, err := mustAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := policy.EvaluateStanding(acct).Err(accountID.String()); err != nil {
			return err
		}

		payout, err := settlement.PotentialPayout(in.Stake, event.Odds(in.Outcome))
		if err != nil {
			return err
		}
		pool, err := domain.CheckedAdd(event.PrizePool, in.Stake)
		if err != nil {
			return domain.ErrValidation(err.Error())
		}

		bet := domain.Bet{
			ID:              betID,
			EventID:         eventID,
			AccountID:       accountID,
			Outcome:         in.Outcome,
			Stake:           in.Stake,
			PotentialPayout: payout,
			CreatedAt:       now,
		}
		event.PrizePool = pool
		event.BetCount++
		event.UpdatedAt = now
		if err := tx.Events().Update(ctx, event); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if err := tx.Bets().Insert(ctx, &bet); err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		if _, err := s.engine.Apply(ctx, tx, betRef(betID, "stake"), []domain.Delta{
			settlement.BetStake(event, accountID, in.Stake),
		}); err != nil {
			return err
		}
		if err := tx.Outbox().Insert(ctx, domain.NewBetPlacedEvent(&bet)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		if err := tx.Outbox().Insert(ctx, domain.NewPoolUpdatedEvent(event)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		res = &BetResult{Bet: bet, Event: *event}
		return nil
	})
	if err != nil {
		return nil, fail("place bet", err)
	}
	s.logger.Info("bet placed",
		"event_id", eventID,
		"bet_id", betID,
		"account_id", accountID,
		"outcome", in.Outcome,
		"stake", in.Stake,
	)
	return res, nil
}

// LockEvent closes betting. Locking an event that is already past open is a
// no-op returning its current state, so timers and operators may race.
func (s *EventService) LockEvent(ctx context.Context, eventID uuid.UUID) (*domain.EventPool, error) {
	event, _, err := s.lock(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.present(event), nil
}

func (s *EventService) lock(ctx context.Context, eventID uuid.UUID) (*domain.EventPool, bool, error) {
	var (
		event  *domain.EventPool
		locked bool
	)
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		event, err = mustEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		locked = event.Lock(s.clock.now())
		if !locked {
			return nil
		}
		if err := tx.Events().Update(ctx, event); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		return tx.Outbox().Insert(ctx, domain.NewPoolUpdatedEvent(event))
	})
	if err != nil {
		return nil, false, fail("lock event", err)
	}
	if locked {
		s.logger.Info("event locked", "event_id", eventID, "prize_pool", event.PrizePool, "bets", event.BetCount)
	}
	return event, locked, nil
}

// LockExpired persists the lock of every open event whose end time has
// passed and returns how many this call locked.
func (s *EventService) LockExpired(ctx context.Context) (int, error) {
	var due []domain.EventPool
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		due, err = tx.Events().ListDue(ctx, s.clock.now(), sweepBatch)
		return err
	})
	if err != nil {
		return 0, fail("list due events", err)
	}

	count := 0
	for _, e := range due {
		_, locked, err := s.lock(ctx, e.ID)
		if err != nil {
			return count, err
		}
		if locked {
			count++
		}
	}
	return count, nil
}

// ResolveResult is a resolved event with every bet's settlement.
type ResolveResult struct {
	Event       domain.EventPool    `json:"event"`
	Settled     []domain.SettledBet `json:"settled"`
	TotalPayout int64               `json:"total_payout"`
	Retained    int64               `json:"retained"`
}

// ResolveEvent settles every bet against the winning outcome and returns
// what the pool still holds to the house. An event still open before its
// end time must be locked first. PoolUnderfunded rejects the whole
// resolution and leaves the event locked.
func (s *EventService) ResolveEvent(ctx context.Context, eventID uuid.UUID, winning domain.Outcome) (*ResolveResult, error) {
	if !winning.Valid() {
		return nil, domain.ErrValidation(fmt.Sprintf("invalid outcome %q", winning))
	}

	var res *ResolveResult
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		event, err := mustEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		now := s.clock.now()
		switch event.EffectiveStatus(now) {
		case domain.EventResolved, domain.EventCancelled:
			return domain.ErrConflict(fmt.Sprintf("event %s is already %s", eventID, event.Status))
		case domain.EventOpen:
			return domain.ErrConflict(fmt.Sprintf("event %s is still open for betting", eventID))
		}
		event.Lock(now)

		bets, err := tx.Bets().ListByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("list bets: %w", err)
		}
		resolution, err := settlement.ResolvePool(event, bets, winning)
		if err != nil {
			return err
		}

		w := winning
		event.Status = domain.EventResolved
		event.WinningOutcome = &w
		event.BettingOpen = false
		event.SettledAt = &now
		event.UpdatedAt = now
		if err := tx.Events().Update(ctx, event); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		for _, bd := range resolution.Deltas {
			if _, err := s.engine.Apply(ctx, tx, betRef(bd.BetID, "settle"), []domain.Delta{bd.Delta}); err != nil {
				return err
			}
		}
		retained := event.PrizePool - resolution.TotalPayout
		if _, err := s.engine.Apply(ctx, tx, eventRef(eventID, "settle"), []domain.Delta{
			houseDelta(event.Currency, retained, domain.ReasonPoolRetained),
		}); err != nil {
			return err
		}
		if err := tx.Outbox().Insert(ctx, domain.NewPoolUpdatedEvent(event)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		res = &ResolveResult{
			Event:       *event,
			Settled:     resolution.Settled,
			TotalPayout: resolution.TotalPayout,
			Retained:    retained,
		}
		return nil
	})
	if err != nil {
		return nil, fail("resolve event", err)
	}
	s.logger.Info("event resolved",
		"event_id", eventID,
		"winning", winning,
		"bets", len(res.Settled),
		"total_payout", res.TotalPayout,
		"retained", res.Retained,
	)
	return res, nil
}

// CancelEvent refunds every stake and returns the operator funding to the
// house. Cancelled is terminal.
func (s *EventService) CancelEvent(ctx context.Context, eventID uuid.UUID) (*ResolveResult, error) {
	var res *ResolveResult
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		event, err := mustEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		if event.Status.Terminal() {
			return domain.ErrConflict(fmt.Sprintf("event %s is already %s", eventID, event.Status))
		}
		bets, err := tx.Bets().ListByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("list bets: %w", err)
		}
		refund := settlement.RefundPool(event, bets)

		now := s.clock.now()
		event.Status = domain.EventCancelled
		event.BettingOpen = false
		event.SettledAt = &now
		event.UpdatedAt = now
		if err := tx.Events().Update(ctx, event); err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		for _, bd := range refund.Deltas {
			if _, err := s.engine.Apply(ctx, tx, betRef(bd.BetID, "refund"), []domain.Delta{bd.Delta}); err != nil {
				return err
			}
		}
		retained := event.PrizePool - refund.TotalPayout
		if _, err := s.engine.Apply(ctx, tx, eventRef(eventID, "settle"), []domain.Delta{
			houseDelta(event.Currency, retained, domain.ReasonPoolRetained),
		}); err != nil {
			return err
		}
		if err := tx.Outbox().Insert(ctx, domain.NewPoolUpdatedEvent(event)); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		res = &ResolveResult{
			Event:       *event,
			Settled:     refund.Settled,
			TotalPayout: refund.TotalPayout,
			Retained:    retained,
		}
		return nil
	})
	if err != nil {
		return nil, fail("cancel event", err)
	}
	s.logger.Info("event cancelled", "event_id", eventID, "refunded", res.TotalPayout, "bets", len(res.Settled))
	return res, nil
}

// GetEvent returns an event with its time boundary applied.
func (s *EventService) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.EventPool, error) {
	var event *domain.EventPool
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		event, err = mustEvent(ctx, tx, eventID)
		return err
	})
	if err != nil {
		return nil, fail("get event", err)
	}
	return s.present(event), nil
}

// ListEvents returns events by effective status, soonest end time first. An
// open event past its end time lists as locked.
func (s *EventService) ListEvents(ctx context.Context, status domain.EventStatus, limit int) ([]domain.EventPool, error) {
	var stored []domain.EventStatus
	switch status {
	case domain.EventOpen:
		stored = []domain.EventStatus{domain.EventOpen}
	case domain.EventLocked:
		stored = []domain.EventStatus{domain.EventLocked, domain.EventOpen}
	case domain.EventResolved, domain.EventCancelled:
		stored = []domain.EventStatus{status}
	default:
		return nil, domain.ErrValidation(fmt.Sprintf("unknown event status %q", status))
	}
	limit = pageSize(limit)

	var rows []domain.EventPool
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		rows = rows[:0]
		for _, st := range stored {
			page, err := tx.Events().ListByStatus(ctx, st, 0)
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}
			rows = append(rows, page...)
		}
		return nil
	})
	if err != nil {
		return nil, fail("list events", err)
	}

	now := s.clock.now()
	out := make([]domain.EventPool, 0, len(rows))
	for i := range rows {
		if rows[i].EffectiveStatus(now) != status {
			continue
		}
		out = append(out, *s.presentAt(&rows[i], now))
	}
	slices.SortFunc(out, func(a, b domain.EventPool) int { return a.EndTime.Compare(b.EndTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBets returns an event's bets with their settled view.
func (s *EventService) ListBets(ctx context.Context, eventID uuid.UUID) ([]domain.SettledBet, error) {
	var (
		event *domain.EventPool
		bets  []domain.Bet
	)
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		event, err = mustEvent(ctx, tx, eventID)
		if err != nil {
			return err
		}
		bets, err = tx.Bets().ListByEvent(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, fail("list bets", err)
	}
	out := make([]domain.SettledBet, 0, len(bets))
	for _, b := range bets {
		out = append(out, b.SettledView(event))
	}
	return out, nil
}

// ListAccountBets returns an account's bets, newest first.
func (s *EventService) ListAccountBets(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Bet, error) {
	var bets []domain.Bet
	err := s.runner.Run(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		bets, err = tx.Bets().ListByAccount(ctx, accountID, pageSize(limit))
		return err
	})
	if err != nil {
		return nil, fail("list account bets", err)
	}
	return bets, nil
}

func (s *EventService) present(e *domain.EventPool) *domain.EventPool {
	return s.presentAt(e, s.clock.now())
}

// presentAt reports the status collaborators should see without persisting it.
func (s *EventService) presentAt(e *domain.EventPool, now time.Time) *domain.EventPool {
	out := *e
	out.Status = e.EffectiveStatus(now)
	out.BettingOpen = e.AcceptsBets(now)
	return &out
}

func houseDelta(c domain.Currency, amount int64, reason domain.Reason) domain.Delta {
	return domain.Delta{AccountID: domain.HouseAccountID, Currency: c, Amount: amount, Reason: reason}
}

func mustEvent(ctx context.Context, tx repository.Tx, id uuid.UUID) (*domain.EventPool, error) {
	e, err := tx.Events().FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load event: %w", err)
	}
	if e == nil {
		return nil, domain.ErrNotFound("event", id.String())
	}
	return e, nil
}
