package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stakehouse/platform/internal/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

// --- accounts ---

type accountRepo struct{ db DBTX }

const accountColumns = `id, display_name, points_balance, cash_balance, referrer_id, referral_count,
	status, disabled, version, created_at, updated_at`

func (r accountRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var a domain.Account
	var referrer sql.NullString
	var created, updated int64
	err := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String()).Scan(
		&a.ID, &a.DisplayName, &a.PointsBalance, &a.CashBalance, &referrer, &a.ReferralCount,
		&a.Status, &a.Disabled, &a.Version, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if a.ReferrerID, err = uuidPtr(referrer); err != nil {
		return nil, fmt.Errorf("parse referrer: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = fromNanos(created), fromNanos(updated)
	return &a, nil
}

func (r accountRepo) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		a.ID.String(), a.DisplayName, a.PointsBalance, a.CashBalance, uuidArg(a.ReferrerID),
		a.ReferralCount, string(a.Status), a.Disabled, nanos(a.CreatedAt), nanos(a.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert account: %w", classify(err))
	}
	a.Version = 1
	return nil
}

func (r accountRepo) Update(ctx context.Context, a *domain.Account) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
		  display_name = ?, points_balance = ?, cash_balance = ?, referrer_id = ?,
		  referral_count = ?, status = ?, disabled = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		a.DisplayName, a.PointsBalance, a.CashBalance, uuidArg(a.ReferrerID),
		a.ReferralCount, string(a.Status), a.Disabled, nanos(a.UpdatedAt),
		a.ID.String(), a.Version)
	if err := casResult(res, err, "update account"); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (r accountRepo) Delete(ctx context.Context, a *domain.Account) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ? AND version = ?`, a.ID.String(), a.Version)
	return casResult(res, err, "delete account")
}

func (r accountRepo) AddReferral(ctx context.Context, ref domain.Referral) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO referrals (referrer_id, referred_id, created_at) VALUES (?, ?, ?)`,
		ref.ReferrerID.String(), ref.ReferredID.String(), nanos(ref.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert referral: %w", classify(err))
	}
	return nil
}

func (r accountRepo) ListReferrals(ctx context.Context, referrerID uuid.UUID) ([]domain.Referral, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT referrer_id, referred_id, created_at FROM referrals
		WHERE referrer_id = ? ORDER BY id`, referrerID.String())
	if err != nil {
		return nil, fmt.Errorf("query referrals: %w", err)
	}
	defer rows.Close()

	var out []domain.Referral
	for rows.Next() {
		var ref domain.Referral
		var created int64
		if err := rows.Scan(&ref.ReferrerID, &ref.ReferredID, &created); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		ref.CreatedAt = fromNanos(created)
		out = append(out, ref)
	}
	return out, rows.Err()
}

// --- ledger ---

type ledgerRepo struct{ db DBTX }

const ledgerColumns = `seq, id, account_id, currency, delta, reason, related_kind, related_id,
	idempotency_key, resulting_balance, created_at`

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var created int64
	if err := s.Scan(&e.Seq, &e.ID, &e.AccountID, &e.Currency, &e.Delta, &e.Reason,
		&e.RelatedKind, &e.RelatedID, &e.IdempotencyKey, &e.ResultingBalance, &created); err != nil {
		return nil, err
	}
	e.CreatedAt = fromNanos(created)
	return &e, nil
}

func (r ledgerRepo) query(ctx context.Context, q string, args ...any) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries `+q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r ledgerRepo) FindByIdempotencyKey(ctx context.Context, key string) (*domain.LedgerEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE idempotency_key = ?`, key)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}
	return e, nil
}

func (r ledgerRepo) Insert(ctx context.Context, e *domain.LedgerEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		  (id, account_id, currency, delta, reason, related_kind, related_id,
		   idempotency_key, resulting_balance, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.AccountID.String(), string(e.Currency), e.Delta, string(e.Reason),
		string(e.RelatedKind), e.RelatedID.String(), e.IdempotencyKey, e.ResultingBalance,
		nanos(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", classify(err))
	}
	if e.Seq, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("ledger seq: %w", err)
	}
	return nil
}

func (r ledgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, before *int64, limit int) ([]domain.LedgerEntry, error) {
	if before != nil {
		return r.query(ctx, `WHERE account_id = ? AND seq < ? ORDER BY seq DESC LIMIT ?`,
			accountID.String(), *before, limitArg(limit))
	}
	return r.query(ctx, `WHERE account_id = ? ORDER BY seq DESC LIMIT ?`, accountID.String(), limitArg(limit))
}

func (r ledgerRepo) History(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	return r.query(ctx, `WHERE account_id = ? ORDER BY seq`, accountID.String())
}

func (r ledgerRepo) ListByRelated(ctx context.Context, kind domain.RelatedKind, id uuid.UUID) ([]domain.LedgerEntry, error) {
	return r.query(ctx, `WHERE related_kind = ? AND related_id = ? ORDER BY seq`, string(kind), id.String())
}

func (r ledgerRepo) SumHouse(ctx context.Context, currency domain.Currency) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(delta), 0) FROM ledger_entries WHERE account_id = ? AND currency = ?`,
		domain.HouseAccountID.String(), string(currency)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum house revenue: %w", err)
	}
	return sum, nil
}

// --- rooms ---

type roomRepo struct{ db DBTX }

const roomColumns = `id, host_id, guest_id, stake, currency, state, host_choice, guest_choice,
	host_reserved, guest_reserved, round, last_round_winner, last_round_result,
	version, created_at, updated_at, completed_at`

func scanRoom(s scanner) (*domain.Room, error) {
	var r domain.Room
	var guest, lastWinner, hostChoice, guestChoice sql.NullString
	var created, updated int64
	var completed sql.NullInt64
	err := s.Scan(&r.ID, &r.HostID, &guest, &r.Stake, &r.Currency, &r.State, &hostChoice, &guestChoice,
		&r.HostReserved, &r.GuestReserved, &r.Round, &lastWinner, &r.LastRoundResult,
		&r.Version, &created, &updated, &completed)
	if err != nil {
		return nil, err
	}
	if r.GuestID, err = uuidPtr(guest); err != nil {
		return nil, fmt.Errorf("parse guest: %w", err)
	}
	if r.LastRoundWinner, err = uuidPtr(lastWinner); err != nil {
		return nil, fmt.Errorf("parse last winner: %w", err)
	}
	r.HostChoice = textPtr[domain.Choice](hostChoice)
	r.GuestChoice = textPtr[domain.Choice](guestChoice)
	r.CreatedAt, r.UpdatedAt = fromNanos(created), fromNanos(updated)
	r.CompletedAt = timePtr(completed)
	return &r, nil
}

func (r roomRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan room: %w", err)
	}
	return room, nil
}

func (r roomRepo) Create(ctx context.Context, room *domain.Room) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		room.ID.String(), room.HostID.String(), uuidArg(room.GuestID), room.Stake,
		string(room.Currency), string(room.State), textArg(room.HostChoice), textArg(room.GuestChoice),
		room.HostReserved, room.GuestReserved, room.Round, uuidArg(room.LastRoundWinner),
		string(room.LastRoundResult), nanos(room.CreatedAt), nanos(room.UpdatedAt), nanosPtr(room.CompletedAt))
	if err != nil {
		return fmt.Errorf("insert room: %w", classify(err))
	}
	room.Version = 1
	return nil
}

func (r roomRepo) Update(ctx context.Context, room *domain.Room) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET
		  guest_id = ?, state = ?, host_choice = ?, guest_choice = ?, host_reserved = ?,
		  guest_reserved = ?, round = ?, last_round_winner = ?, last_round_result = ?,
		  updated_at = ?, completed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		uuidArg(room.GuestID), string(room.State), textArg(room.HostChoice), textArg(room.GuestChoice),
		room.HostReserved, room.GuestReserved, room.Round, uuidArg(room.LastRoundWinner),
		string(room.LastRoundResult), nanos(room.UpdatedAt), nanosPtr(room.CompletedAt),
		room.ID.String(), room.Version)
	if err := casResult(res, err, "update room"); err != nil {
		return err
	}
	room.Version++
	return nil
}

func (r roomRepo) ListByState(ctx context.Context, state domain.RoomState, limit int) ([]domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+roomColumns+` FROM rooms WHERE state = ?
		ORDER BY created_at DESC, id LIMIT ?`, string(state), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room row: %w", err)
		}
		out = append(out, *room)
	}
	return out, rows.Err()
}

// --- events ---

type eventRepo struct{ db DBTX }

const eventColumns = `id, title, outcome_a, outcome_b, odds_a, odds_b, currency,
	prize_pool, operator_funded, betting_open, end_time, status, winning_outcome,
	bet_count, version, created_at, updated_at, locked_at, settled_at`

func scanEvent(s scanner) (*domain.EventPool, error) {
	var e domain.EventPool
	var oddsA, oddsB string
	var winning sql.NullString
	var endTime, created, updated int64
	var locked, settled sql.NullInt64
	err := s.Scan(&e.ID, &e.Title, &e.OutcomeA, &e.OutcomeB, &oddsA, &oddsB, &e.Currency,
		&e.PrizePool, &e.OperatorFunded, &e.BettingOpen, &endTime, &e.Status, &winning,
		&e.BetCount, &e.Version, &created, &updated, &locked, &settled)
	if err != nil {
		return nil, err
	}
	if e.OddsA, err = decimal.NewFromString(oddsA); err != nil {
		return nil, fmt.Errorf("parse odds_a: %w", err)
	}
	if e.OddsB, err = decimal.NewFromString(oddsB); err != nil {
		return nil, fmt.Errorf("parse odds_b: %w", err)
	}
	e.WinningOutcome = textPtr[domain.Outcome](winning)
	e.EndTime, e.CreatedAt, e.UpdatedAt = fromNanos(endTime), fromNanos(created), fromNanos(updated)
	e.LockedAt, e.SettledAt = timePtr(locked), timePtr(settled)
	return &e, nil
}

func (r eventRepo) query(ctx context.Context, q string, args ...any) ([]domain.EventPool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM event_pools `+q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []domain.EventPool
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (r eventRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.EventPool, error) {
	e, err := scanEvent(r.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM event_pools WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

func (r eventRepo) Create(ctx context.Context, e *domain.EventPool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_pools (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		e.ID.String(), e.Title, e.OutcomeA, e.OutcomeB, e.OddsA.String(), e.OddsB.String(),
		string(e.Currency), e.PrizePool, e.OperatorFunded, e.BettingOpen, nanos(e.EndTime),
		string(e.Status), textArg(e.WinningOutcome), e.BetCount,
		nanos(e.CreatedAt), nanos(e.UpdatedAt), nanosPtr(e.LockedAt), nanosPtr(e.SettledAt))
	if err != nil {
		return fmt.Errorf("insert event: %w", classify(err))
	}
	e.Version = 1
	return nil
}

func (r eventRepo) Update(ctx context.Context, e *domain.EventPool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE event_pools SET
		  prize_pool = ?, operator_funded = ?, betting_open = ?, end_time = ?, status = ?,
		  winning_outcome = ?, bet_count = ?, updated_at = ?, locked_at = ?, settled_at = ?,
		  version = version + 1
		WHERE id = ? AND version = ?`,
		e.PrizePool, e.OperatorFunded, e.BettingOpen, nanos(e.EndTime), string(e.Status),
		textArg(e.WinningOutcome), e.BetCount, nanos(e.UpdatedAt), nanosPtr(e.LockedAt), nanosPtr(e.SettledAt),
		e.ID.String(), e.Version)
	if err := casResult(res, err, "update event"); err != nil {
		return err
	}
	e.Version++
	return nil
}

func (r eventRepo) ListByStatus(ctx context.Context, status domain.EventStatus, limit int) ([]domain.EventPool, error) {
	return r.query(ctx, `WHERE status = ? ORDER BY end_time, id LIMIT ?`, string(status), limitArg(limit))
}

func (r eventRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.EventPool, error) {
	return r.query(ctx, `WHERE status = ? AND end_time <= ? ORDER BY end_time, id LIMIT ?`,
		string(domain.EventOpen), nanos(now), limitArg(limit))
}

// --- bets ---

type betRepo struct{ db DBTX }

const betColumns = `id, event_id, account_id, outcome, stake, potential_payout, created_at`

func (r betRepo) Insert(ctx context.Context, b *domain.Bet) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO bets (`+betColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.ID.String(), b.EventID.String(), b.AccountID.String(), string(b.Outcome),
		b.Stake, b.PotentialPayout, nanos(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert bet: %w", classify(err))
	}
	return nil
}

func (r betRepo) query(ctx context.Context, q string, args ...any) ([]domain.Bet, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+betColumns+` FROM bets `+q, args...)
	if err != nil {
		return nil, fmt.Errorf("query bets: %w", err)
	}
	defer rows.Close()

	var out []domain.Bet
	for rows.Next() {
		var b domain.Bet
		var created int64
		if err := rows.Scan(&b.ID, &b.EventID, &b.AccountID, &b.Outcome, &b.Stake, &b.PotentialPayout, &created); err != nil {
			return nil, fmt.Errorf("scan bet row: %w", err)
		}
		b.CreatedAt = fromNanos(created)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r betRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Bet, error) {
	return r.query(ctx, `WHERE event_id = ? ORDER BY seq`, eventID.String())
}

func (r betRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Bet, error) {
	return r.query(ctx, `WHERE account_id = ? ORDER BY seq DESC LIMIT ?`, accountID.String(), limitArg(limit))
}

// --- requests ---

type requestRepo struct{ db DBTX }

const requestColumns = `id, account_id, type, currency, amount, status, processed_by,
	version, created_at, processed_at`

func scanRequest(s scanner) (*domain.Request, error) {
	var req domain.Request
	var processedBy sql.NullString
	var created int64
	var processedAt sql.NullInt64
	err := s.Scan(&req.ID, &req.AccountID, &req.Type, &req.Currency, &req.Amount, &req.Status,
		&processedBy, &req.Version, &created, &processedAt)
	if err != nil {
		return nil, err
	}
	if req.ProcessedBy, err = uuidPtr(processedBy); err != nil {
		return nil, fmt.Errorf("parse processed_by: %w", err)
	}
	req.CreatedAt = fromNanos(created)
	req.ProcessedAt = timePtr(processedAt)
	return &req, nil
}

func (r requestRepo) query(ctx context.Context, q string, args ...any) ([]domain.Request, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+requestColumns+` FROM requests `+q, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var out []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request row: %w", err)
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func (r requestRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Request, error) {
	req, err := scanRequest(r.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan request: %w", err)
	}
	return req, nil
}

func (r requestRepo) Create(ctx context.Context, req *domain.Request) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		req.ID.String(), req.AccountID.String(), string(req.Type), string(req.Currency), req.Amount,
		string(req.Status), uuidArg(req.ProcessedBy), nanos(req.CreatedAt), nanosPtr(req.ProcessedAt))
	if err != nil {
		return fmt.Errorf("insert request: %w", classify(err))
	}
	req.Version = 1
	return nil
}

func (r requestRepo) Update(ctx context.Context, req *domain.Request) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE requests SET status = ?, processed_by = ?, processed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(req.Status), uuidArg(req.ProcessedBy), nanosPtr(req.ProcessedAt), req.ID.String(), req.Version)
	if err := casResult(res, err, "update request"); err != nil {
		return err
	}
	req.Version++
	return nil
}

func (r requestRepo) ListByStatus(ctx context.Context, status domain.RequestStatus, limit int) ([]domain.Request, error) {
	return r.query(ctx, `WHERE status = ? ORDER BY created_at, id LIMIT ?`, string(status), limitArg(limit))
}

func (r requestRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Request, error) {
	return r.query(ctx, `WHERE account_id = ? ORDER BY created_at DESC, id LIMIT ?`, accountID.String(), limitArg(limit))
}

// --- adjustments ---

type adjustmentRepo struct{ db DBTX }

func (r adjustmentRepo) Insert(ctx context.Context, a *domain.Adjustment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO adjustments (id, account_id, currency, amount, note, operator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.AccountID.String(), string(a.Currency), a.Amount, a.Note,
		a.OperatorID.String(), nanos(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", classify(err))
	}
	return nil
}

func (r adjustmentRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Adjustment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, currency, amount, note, operator_id, created_at
		FROM adjustments WHERE account_id = ? ORDER BY seq`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	var out []domain.Adjustment
	for rows.Next() {
		var a domain.Adjustment
		var created int64
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Currency, &a.Amount, &a.Note, &a.OperatorID, &created); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		a.CreatedAt = fromNanos(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- outbox ---

type outboxRepo struct{ db DBTX }

func (r outboxRepo) Insert(ctx context.Context, d domain.OutboxDraft) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO event_outbox
		  (event_id, aggregate_type, aggregate_id, event_type, partition_key, headers, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.EventID.String(), string(d.AggregateType), d.AggregateID, string(d.EventType),
		d.PartitionKey, string(d.Headers), string(d.Payload), nanos(d.OccurredAt))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", classify(err))
	}
	return nil
}

func (r outboxRepo) FetchUnpublished(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, partition_key, headers, payload, occurred_at
		FROM event_outbox ORDER BY id LIMIT ?`, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("fetch unpublished events: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		var headers, payload string
		var occurred int64
		if err := rows.Scan(&rec.Seq, &rec.EventID, &rec.AggregateType, &rec.AggregateID, &rec.EventType,
			&rec.PartitionKey, &headers, &payload, &occurred); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		rec.Headers = json.RawMessage(headers)
		rec.Payload = json.RawMessage(payload)
		rec.OccurredAt = fromNanos(occurred)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r outboxRepo) MarkPublished(ctx context.Context, seqs []int64) error {
	for _, seq := range seqs {
		if _, err := r.db.ExecContext(ctx, `DELETE FROM event_outbox WHERE id = ?`, seq); err != nil {
			return fmt.Errorf("mark published: %w", err)
		}
	}
	return nil
}
