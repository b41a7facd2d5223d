package memory

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/repository"
)

func capped[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func newestFirst(a, b time.Time, ida, idb uuid.UUID) int {
	if c := b.Compare(a); c != 0 {
		return c
	}
	return cmp.Compare(ida.String(), idb.String())
}

// --- accounts ---

type accountRepo struct{ t *tx }

func (r accountRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	return r.t.accounts.get(id), nil
}

func (r accountRepo) Create(_ context.Context, a *domain.Account) error {
	return r.t.accounts.create(a.ID, a)
}

func (r accountRepo) Update(_ context.Context, a *domain.Account) error {
	return r.t.accounts.update(a.ID, a)
}

func (r accountRepo) Delete(_ context.Context, a *domain.Account) error {
	return r.t.accounts.remove(a.ID, a)
}

func (r accountRepo) AddReferral(_ context.Context, ref domain.Referral) error {
	r.t.referrals = append(r.t.referrals, ref)
	return nil
}

func (r accountRepo) ListReferrals(_ context.Context, referrerID uuid.UUID) ([]domain.Referral, error) {
	s := r.t.s
	s.mu.RLock()
	var out []domain.Referral
	for _, ref := range s.referrals {
		if ref.ReferrerID == referrerID {
			out = append(out, ref)
		}
	}
	s.mu.RUnlock()
	for _, ref := range r.t.referrals {
		if ref.ReferrerID == referrerID {
			out = append(out, ref)
		}
	}
	return out, nil
}

// --- ledger ---

type ledgerRepo struct{ t *tx }

// entries returns committed entries followed by this transaction's pending
// ones, filtered by keep.
func (r ledgerRepo) entries(keep func(*domain.LedgerEntry) bool) []domain.LedgerEntry {
	s := r.t.s
	var out []domain.LedgerEntry
	s.mu.RLock()
	for i := range s.ledger {
		if keep(&s.ledger[i]) {
			out = append(out, s.ledger[i])
		}
	}
	s.mu.RUnlock()
	for i := range r.t.ledger {
		if keep(&r.t.ledger[i]) {
			out = append(out, r.t.ledger[i])
		}
	}
	slices.SortFunc(out, func(a, b domain.LedgerEntry) int { return cmp.Compare(a.Seq, b.Seq) })
	return out
}

func (r ledgerRepo) FindByIdempotencyKey(_ context.Context, key string) (*domain.LedgerEntry, error) {
	for i := range r.t.ledger {
		if r.t.ledger[i].IdempotencyKey == key {
			e := r.t.ledger[i]
			return &e, nil
		}
	}
	s := r.t.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx, ok := s.ledgerKeys[key]; ok {
		e := s.ledger[idx]
		return &e, nil
	}
	return nil, nil
}

func (r ledgerRepo) Insert(ctx context.Context, e *domain.LedgerEntry) error {
	existing, _ := r.FindByIdempotencyKey(ctx, e.IdempotencyKey)
	if existing != nil {
		return repository.ErrConflict
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Seq = r.t.s.ledgerSeq.Add(1)
	r.t.ledger = append(r.t.ledger, *e)
	return nil
}

func (r ledgerRepo) ListByAccount(_ context.Context, accountID uuid.UUID, before *int64, limit int) ([]domain.LedgerEntry, error) {
	out := r.entries(func(e *domain.LedgerEntry) bool {
		return e.AccountID == accountID && (before == nil || e.Seq < *before)
	})
	slices.Reverse(out)
	return capped(out, limit), nil
}

func (r ledgerRepo) History(_ context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	return r.entries(func(e *domain.LedgerEntry) bool { return e.AccountID == accountID }), nil
}

func (r ledgerRepo) ListByRelated(_ context.Context, kind domain.RelatedKind, id uuid.UUID) ([]domain.LedgerEntry, error) {
	return r.entries(func(e *domain.LedgerEntry) bool {
		return e.RelatedKind == kind && e.RelatedID == id
	}), nil
}

func (r ledgerRepo) SumHouse(_ context.Context, currency domain.Currency) (int64, error) {
	var total int64
	for _, e := range r.entries(func(e *domain.LedgerEntry) bool {
		return e.IsHouse() && e.Currency == currency
	}) {
		total += e.Delta
	}
	return total, nil
}

// --- rooms ---

type roomRepo struct{ t *tx }

func (r roomRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Room, error) {
	return r.t.rooms.get(id), nil
}

func (r roomRepo) Create(_ context.Context, room *domain.Room) error {
	return r.t.rooms.create(room.ID, room)
}

func (r roomRepo) Update(_ context.Context, room *domain.Room) error {
	return r.t.rooms.update(room.ID, room)
}

func (r roomRepo) ListByState(_ context.Context, state domain.RoomState, limit int) ([]domain.Room, error) {
	out := r.t.rooms.snapshot(func(room *domain.Room) bool { return room.State == state })
	slices.SortFunc(out, func(a, b domain.Room) int { return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return capped(out, limit), nil
}

// --- events ---

type eventRepo struct{ t *tx }

func (r eventRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.EventPool, error) {
	return r.t.events.get(id), nil
}

func (r eventRepo) Create(_ context.Context, e *domain.EventPool) error {
	return r.t.events.create(e.ID, e)
}

func (r eventRepo) Update(_ context.Context, e *domain.EventPool) error {
	return r.t.events.update(e.ID, e)
}

func byEndTime(a, b domain.EventPool) int {
	if c := a.EndTime.Compare(b.EndTime); c != 0 {
		return c
	}
	return cmp.Compare(a.ID.String(), b.ID.String())
}

func (r eventRepo) ListByStatus(_ context.Context, status domain.EventStatus, limit int) ([]domain.EventPool, error) {
	out := r.t.events.snapshot(func(e *domain.EventPool) bool { return e.Status == status })
	slices.SortFunc(out, byEndTime)
	return capped(out, limit), nil
}

func (r eventRepo) ListDue(_ context.Context, now time.Time, limit int) ([]domain.EventPool, error) {
	out := r.t.events.snapshot(func(e *domain.EventPool) bool {
		return e.Status == domain.EventOpen && !e.EndTime.After(now)
	})
	slices.SortFunc(out, byEndTime)
	return capped(out, limit), nil
}

// --- bets ---

type betRepo struct{ t *tx }

func (r betRepo) Insert(_ context.Context, b *domain.Bet) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	r.t.bets = append(r.t.bets, *b)
	return nil
}

func (r betRepo) collect(keep func(*domain.Bet) bool) []domain.Bet {
	s := r.t.s
	var out []domain.Bet
	s.mu.RLock()
	for i := range s.bets {
		if keep(&s.bets[i]) {
			out = append(out, s.bets[i])
		}
	}
	s.mu.RUnlock()
	for i := range r.t.bets {
		if keep(&r.t.bets[i]) {
			out = append(out, r.t.bets[i])
		}
	}
	return out
}

func (r betRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]domain.Bet, error) {
	return r.collect(func(b *domain.Bet) bool { return b.EventID == eventID }), nil
}

func (r betRepo) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]domain.Bet, error) {
	out := r.collect(func(b *domain.Bet) bool { return b.AccountID == accountID })
	slices.Reverse(out)
	return capped(out, limit), nil
}

// --- requests ---

type requestRepo struct{ t *tx }

func (r requestRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Request, error) {
	return r.t.requests.get(id), nil
}

func (r requestRepo) Create(_ context.Context, req *domain.Request) error {
	return r.t.requests.create(req.ID, req)
}

func (r requestRepo) Update(_ context.Context, req *domain.Request) error {
	return r.t.requests.update(req.ID, req)
}

func (r requestRepo) ListByStatus(_ context.Context, status domain.RequestStatus, limit int) ([]domain.Request, error) {
	out := r.t.requests.snapshot(func(req *domain.Request) bool { return req.Status == status })
	// Operators work the queue oldest first.
	slices.SortFunc(out, func(a, b domain.Request) int { return -newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return capped(out, limit), nil
}

func (r requestRepo) ListByAccount(_ context.Context, accountID uuid.UUID, limit int) ([]domain.Request, error) {
	out := r.t.requests.snapshot(func(req *domain.Request) bool { return req.AccountID == accountID })
	slices.SortFunc(out, func(a, b domain.Request) int { return newestFirst(a.CreatedAt, b.CreatedAt, a.ID, b.ID) })
	return capped(out, limit), nil
}

// --- adjustments ---

type adjustmentRepo struct{ t *tx }

func (r adjustmentRepo) Insert(_ context.Context, a *domain.Adjustment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	r.t.adjustments = append(r.t.adjustments, *a)
	return nil
}

func (r adjustmentRepo) ListByAccount(_ context.Context, accountID uuid.UUID) ([]domain.Adjustment, error) {
	s := r.t.s
	var out []domain.Adjustment
	s.mu.RLock()
	for _, a := range s.adjustments {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	for _, a := range r.t.adjustments {
		if a.AccountID == accountID {
			out = append(out, a)
		}
	}
	return out, nil
}

// --- outbox ---

type outboxRepo struct{ t *tx }

func (r outboxRepo) Insert(_ context.Context, draft domain.OutboxDraft) error {
	seq := r.t.s.outboxSeq.Add(1)
	r.t.outbox = append(r.t.outbox, domain.OutboxRecord{Seq: seq, OutboxDraft: draft})
	return nil
}

func (r outboxRepo) FetchUnpublished(_ context.Context, limit int) ([]domain.OutboxRecord, error) {
	s := r.t.s
	s.mu.RLock()
	out := slices.Clone(s.outbox)
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b domain.OutboxRecord) int { return cmp.Compare(a.Seq, b.Seq) })
	return capped(out, limit), nil
}

func (r outboxRepo) MarkPublished(_ context.Context, seqs []int64) error {
	r.t.published = append(r.t.published, seqs...)
	return nil
}
