package projection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
)

// Projector folds outbox records into cached read models.
type Projector struct {
	store Store
}

// NewProjector creates a projector writing to store.
func NewProjector(store Store) *Projector {
	return &Projector{store: store}
}

// Store returns the backing store so readers can share it.
func (p *Projector) Store() Store { return p.store }

// Apply updates the read models touched by rec. Unknown event types are ignored.
func (p *Projector) Apply(ctx context.Context, rec domain.OutboxRecord) error {
	switch rec.EventType {
	case domain.EventLedgerEntryPosted:
		var e domain.LedgerEntry
		if err := json.Unmarshal(rec.Payload, &e); err != nil {
			return fmt.Errorf("decode ledger entry %s: %w", rec.EventID, err)
		}
		return p.applyEntry(ctx, &e)

	case domain.EventAccountUpdated:
		var a domain.Account
		if err := json.Unmarshal(rec.Payload, &a); err != nil {
			return fmt.Errorf("decode account %s: %w", rec.EventID, err)
		}
		bp, err := loadBalance(ctx, p.store, a.ID)
		if err != nil {
			return err
		}
		bp.Points, bp.Cash = a.PointsBalance, a.CashBalance
		bp.Status, bp.Disabled = a.Status, a.Disabled
		bp.UpdatedAt = a.UpdatedAt
		return UpdateBalance(ctx, p.store, bp)

	case domain.EventAccountSealed:
		id, err := uuid.Parse(rec.AggregateID)
		if err != nil {
			return fmt.Errorf("sealed account id %q: %w", rec.AggregateID, err)
		}
		return InvalidateBalance(ctx, p.store, id)

	case domain.EventRoomUpdated:
		var r domain.Room
		if err := json.Unmarshal(rec.Payload, &r); err != nil {
			return fmt.Errorf("decode room %s: %w", rec.EventID, err)
		}
		return UpdateRoom(ctx, p.store, &r)
	}
	return nil
}

func (p *Projector) applyEntry(ctx context.Context, e *domain.LedgerEntry) error {
	if e.IsHouse() || e.Reason == domain.ReasonAccountSealed {
		return nil
	}
	bp, err := loadBalance(ctx, p.store, e.AccountID)
	if err != nil {
		return err
	}
	if e.Seq <= bp.Seq {
		return nil
	}
	bp.set(e.Currency, e.ResultingBalance)
	bp.Seq = e.Seq
	bp.UpdatedAt = e.CreatedAt
	return UpdateBalance(ctx, p.store, bp)
}
