package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates all domain event types.
type EventType string

const (
	EventLedgerEntryPosted EventType = "stakehouse.ledger.entry.posted"
	EventAccountUpdated    EventType = "stakehouse.account.updated"
	EventAccountSealed     EventType = "stakehouse.account.sealed"
	EventRoomUpdated       EventType = "stakehouse.room.updated"
	EventPoolUpdated       EventType = "stakehouse.pool.updated"
	EventBetPlaced         EventType = "stakehouse.pool.bet.placed"
	EventRequestUpdated    EventType = "stakehouse.request.updated"
)

// AggregateType enumerates the aggregate root types for outbox events.
type AggregateType string

const (
	AggregateAccount AggregateType = "account"
	AggregateHouse   AggregateType = "house"
	AggregateRoom    AggregateType = "room"
	AggregatePool    AggregateType = "pool"
	AggregateRequest AggregateType = "request"
)

// OutboxDraft is the payload written to the outbox in the same transaction
// as the state change it describes.
type OutboxDraft struct {
	EventID       uuid.UUID       `json:"eventId"`
	AggregateType AggregateType   `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	EventType     EventType       `json:"eventType"`
	PartitionKey  string          `json:"partitionKey"`
	Headers       json.RawMessage `json:"headers"`
	Payload       json.RawMessage `json:"payload"`
	OccurredAt    time.Time       `json:"occurredAt"`
}

// OutboxRecord is a stored draft with its relay sequence number.
type OutboxRecord struct {
	Seq int64 `json:"seq"`
	OutboxDraft
}

// GuardResult is the verdict of a request guard.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Guard   string `json:"guard,omitempty"` // which guard blocked
}
