package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
)

// ErrConflict reports that a transaction lost an optimistic race: a versioned
// row changed underneath it, a unique key was taken, or the database aborted
// it for serialization. The whole transaction is safe to rerun.
var ErrConflict = errors.New("optimistic concurrency conflict")

// TxFunc is a unit of work. It may run more than once and must not keep
// side effects outside tx between attempts.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a storage backend able to run atomic units of work.
type Store interface {
	// RunTx runs fn in one transaction and commits iff fn returns nil.
	RunTx(ctx context.Context, fn TxFunc) error

	// Ping checks backend reachability.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Accounts() AccountRepository
	Ledger() LedgerRepository
	Rooms() RoomRepository
	Events() EventRepository
	Bets() BetRepository
	Requests() RequestRepository
	Adjustments() AdjustmentRepository
	Outbox() OutboxRepository
}

// Versioned writes: Create sets Version to 1; Update and Delete succeed only
// when the stored version equals the caller's Version, and Update increments
// it. A mismatch returns ErrConflict. Finders return nil, nil when missing.

// AccountRepository provides access to accounts and referrals.
type AccountRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, a *domain.Account) error
	Delete(ctx context.Context, a *domain.Account) error

	// AddReferral appends to a referrer's referral list.
	AddReferral(ctx context.Context, r domain.Referral) error

	// ListReferrals returns a referrer's referrals, oldest first.
	ListReferrals(ctx context.Context, referrerID uuid.UUID) ([]domain.Referral, error)
}

// LedgerRepository provides append-only access to ledger entries.
type LedgerRepository interface {
	// FindByIdempotencyKey checks the unique key index for an existing entry.
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error)

	// Insert appends an entry and assigns its Seq. A taken idempotency key
	// returns ErrConflict.
	Insert(ctx context.Context, e *domain.LedgerEntry) error

	// ListByAccount returns entries newest first, starting below the
	// before cursor when set.
	ListByAccount(ctx context.Context, accountID uuid.UUID, before *int64, limit int) ([]domain.LedgerEntry, error)

	// History returns every entry of an account in creation order.
	History(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error)

	// ListByRelated returns all entries caused by one record, in creation order.
	ListByRelated(ctx context.Context, kind domain.RelatedKind, id uuid.UUID) ([]domain.LedgerEntry, error)

	// SumHouse totals house-revenue entries in a currency.
	SumHouse(ctx context.Context, currency domain.Currency) (int64, error)
}

// RoomRepository provides access to rooms.
type RoomRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Room, error)
	Create(ctx context.Context, r *domain.Room) error
	Update(ctx context.Context, r *domain.Room) error
	ListByState(ctx context.Context, state domain.RoomState, limit int) ([]domain.Room, error)
}

// EventRepository provides access to event pools.
type EventRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.EventPool, error)
	Create(ctx context.Context, e *domain.EventPool) error
	Update(ctx context.Context, e *domain.EventPool) error
	ListByStatus(ctx context.Context, status domain.EventStatus, limit int) ([]domain.EventPool, error)

	// ListDue returns open events whose end time is at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.EventPool, error)
}

// BetRepository provides append-only access to bets.
type BetRepository interface {
	Insert(ctx context.Context, b *domain.Bet) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Bet, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Bet, error)
}

// RequestRepository provides access to withdrawal and loan requests.
type RequestRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Request, error)
	Create(ctx context.Context, r *domain.Request) error
	Update(ctx context.Context, r *domain.Request) error
	ListByStatus(ctx context.Context, status domain.RequestStatus, limit int) ([]domain.Request, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Request, error)
}

// AdjustmentRepository records operator adjustments.
type AdjustmentRepository interface {
	Insert(ctx context.Context, a *domain.Adjustment) error
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Adjustment, error)
}

// OutboxRepository provides access to the event outbox.
type OutboxRepository interface {
	// Insert writes an outbox event (within the same transaction as the state change).
	Insert(ctx context.Context, draft domain.OutboxDraft) error

	// FetchUnpublished returns unpublished events in sequence order.
	FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRecord, error)

	// MarkPublished removes events from the relay queue.
	MarkPublished(ctx context.Context, seqs []int64) error
}
