// Package memory is an in-process Store with optimistic concurrency. A
// transaction buffers its reads and writes, then validates the versions it
// observed and publishes its writes under a short commit lock. Lists read
// committed rows only.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/repository"
)

// Store is the in-memory backend. The zero value is not usable; call New.
type Store struct {
	mu sync.RWMutex

	accounts *table[domain.Account]
	rooms    *table[domain.Room]
	events   *table[domain.EventPool]
	requests *table[domain.Request]

	referrals   []domain.Referral
	ledger      []domain.LedgerEntry
	ledgerKeys  map[string]int
	bets        []domain.Bet
	adjustments []domain.Adjustment
	outbox      []domain.OutboxRecord

	ledgerSeq atomic.Int64
	outboxSeq atomic.Int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts:   newTable(func(a *domain.Account) *int64 { return &a.Version }),
		rooms:      newTable(func(r *domain.Room) *int64 { return &r.Version }),
		events:     newTable(func(e *domain.EventPool) *int64 { return &e.Version }),
		requests:   newTable(func(r *domain.Request) *int64 { return &r.Version }),
		ledgerKeys: make(map[string]int),
	}
}

var _ repository.Store = (*Store)(nil)

// RunTx runs fn against a fresh transaction and commits its buffered writes.
func (s *Store) RunTx(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := newTx(s)
	if err := fn(ctx, t); err != nil {
		return err
	}
	return t.commit()
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }

type tx struct {
	s *Store

	accounts *txTable[domain.Account]
	rooms    *txTable[domain.Room]
	events   *txTable[domain.EventPool]
	requests *txTable[domain.Request]

	referrals   []domain.Referral
	ledger      []domain.LedgerEntry
	bets        []domain.Bet
	adjustments []domain.Adjustment
	outbox      []domain.OutboxRecord
	published   []int64
}

func newTx(s *Store) *tx {
	return &tx{
		s:        s,
		accounts: newTxTable(s, s.accounts),
		rooms:    newTxTable(s, s.rooms),
		events:   newTxTable(s, s.events),
		requests: newTxTable(s, s.requests),
	}
}

func (t *tx) commit() error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := t.accounts.validate(); err != nil {
		return err
	}
	if err := t.rooms.validate(); err != nil {
		return err
	}
	if err := t.events.validate(); err != nil {
		return err
	}
	if err := t.requests.validate(); err != nil {
		return err
	}
	for _, e := range t.ledger {
		if _, taken := s.ledgerKeys[e.IdempotencyKey]; taken {
			return repository.ErrConflict
		}
	}

	t.accounts.apply()
	t.rooms.apply()
	t.events.apply()
	t.requests.apply()

	for _, e := range t.ledger {
		s.ledgerKeys[e.IdempotencyKey] = len(s.ledger)
		s.ledger = append(s.ledger, e)
	}
	s.referrals = append(s.referrals, t.referrals...)
	s.bets = append(s.bets, t.bets...)
	s.adjustments = append(s.adjustments, t.adjustments...)
	s.outbox = append(s.outbox, t.outbox...)

	if len(t.published) > 0 {
		done := make(map[int64]bool, len(t.published))
		for _, seq := range t.published {
			done[seq] = true
		}
		kept := s.outbox[:0]
		for _, rec := range s.outbox {
			if !done[rec.Seq] {
				kept = append(kept, rec)
			}
		}
		s.outbox = kept
	}
	return nil
}

func (t *tx) Accounts() repository.AccountRepository { return accountRepo{t} }
func (t *tx) Ledger() repository.LedgerRepository { return ledgerRepo{t} }
func (t *tx) Rooms() repository.RoomRepository { return roomRepo{t} }
func (t *tx) Events() repository.EventRepository { return eventRepo{t} }
func (t *tx) Bets() repository.BetRepository { return betRepo{t} }
func (t *tx) Requests() repository.RequestRepository { return requestRepo{t} }
func (t *tx) Adjustments() repository.AdjustmentRepository { return adjustmentRepo{t} }
func (t *tx) Outbox() repository.OutboxRepository { return outboxRepo{t} }
