package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

func newDraft(agg AggregateType, aggID string, evt EventType, v interface{}, at time.Time) OutboxDraft {
	payload, _ := json.Marshal(v)
	return OutboxDraft{
		EventID:       uuid.New(),
		AggregateType: agg,
		AggregateID:   aggID,
		EventType:     evt,
		PartitionKey:  aggID,
		Headers:       json.RawMessage(`{}`),
		Payload:       payload,
		OccurredAt:    at,
	}
}

// NewLedgerEntryPostedEvent creates the standard event for a ledger entry.
func NewLedgerEntryPostedEvent(e *LedgerEntry) OutboxDraft {
	agg := AggregateAccount
	if e.IsHouse() {
		agg = AggregateHouse
	}
	return newDraft(agg, e.AccountID.String(), EventLedgerEntryPosted, e, e.CreatedAt)
}

// NewAccountUpdatedEvent carries the account snapshot after a change.
func NewAccountUpdatedEvent(a *Account) OutboxDraft {
	return newDraft(AggregateAccount, a.ID.String(), EventAccountUpdated, a, a.UpdatedAt)
}

// NewAccountSealedEvent marks an account as deleted with its history retained.
func NewAccountSealedEvent(id uuid.UUID, at time.Time) OutboxDraft {
	return newDraft(AggregateAccount, id.String(), EventAccountSealed, map[string]string{
		"account_id": id.String(),
	}, at)
}

// NewRoomUpdatedEvent carries the public room snapshot after a transition.
// Sinks fan it out to every listener, so pending choices never ride along.
func NewRoomUpdatedEvent(r *Room) OutboxDraft {
	public := r.Public()
	return newDraft(AggregateRoom, r.ID.String(), EventRoomUpdated, public, r.UpdatedAt)
}

// NewPoolUpdatedEvent carries the event pool snapshot after a transition.
func NewPoolUpdatedEvent(e *EventPool) OutboxDraft {
	return newDraft(AggregatePool, e.ID.String(), EventPoolUpdated, e, e.UpdatedAt)
}

// NewBetPlacedEvent is keyed by the event so bets on one pool stay ordered.
func NewBetPlacedEvent(b *Bet) OutboxDraft {
	return newDraft(AggregatePool, b.EventID.String(), EventBetPlaced, b, b.CreatedAt)
}

// NewRequestUpdatedEvent carries the request snapshot after filing or a decision.
func NewRequestUpdatedEvent(r *Request) OutboxDraft {
	at := r.CreatedAt
	if r.ProcessedAt != nil {
		at = *r.ProcessedAt
	}
	return newDraft(AggregateRequest, r.ID.String(), EventRequestUpdated, r, at)
}
