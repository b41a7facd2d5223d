package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/infra"
)

type eventRepo struct{ db DBTX }

const eventColumns = `id, title, outcome_a, outcome_b, odds_a, odds_b, currency,
	prize_pool, operator_funded, betting_open, end_time, status, winning_outcome,
	bet_count, version, created_at, updated_at, locked_at, settled_at`

func scanEvent(row pgx.Row) (*domain.EventPool, error) {
	var e domain.EventPool
	var oddsA, oddsB pgtype.Numeric
	var pool, funded pgtype.Numeric
	var winning pgtype.Text
	var locked, settled pgtype.Timestamptz
	err := row.Scan(&e.ID, &e.Title, &e.OutcomeA, &e.OutcomeB, &oddsA, &oddsB, &e.Currency,
		&pool, &funded, &e.BettingOpen, &e.EndTime, &e.Status, &winning,
		&e.BetCount, &e.Version, &e.CreatedAt, &e.UpdatedAt, &locked, &settled)
	if err != nil {
		return nil, err
	}
	if e.OddsA, err = infra.NumericToDecimal(oddsA); err != nil {
		return nil, fmt.Errorf("convert odds_a: %w", err)
	}
	if e.OddsB, err = infra.NumericToDecimal(oddsB); err != nil {
		return nil, fmt.Errorf("convert odds_b: %w", err)
	}
	if err := numerics([]*int64{&e.PrizePool, &e.OperatorFunded}, []pgtype.Numeric{pool, funded}); err != nil {
		return nil, fmt.Errorf("convert pool amounts: %w", err)
	}
	e.WinningOutcome = textPtr[domain.Outcome](winning)
	if locked.Valid {
		t := locked.Time
		e.LockedAt = &t
	}
	if settled.Valid {
		t := settled.Time
		e.SettledAt = &t
	}
	return &e, nil
}

func collectEvents(rows pgx.Rows) ([]domain.EventPool, error) {
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
	e, err := scanEvent(r.db.QueryRow(ctx, `SELECT `+eventColumns+` FROM event_pools WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	return e, nil
}

func (r eventRepo) Create(ctx context.Context, e *domain.EventPool) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_pools
		  (id, title, outcome_a, outcome_b, odds_a, odds_b, currency, prize_pool, operator_funded,
		   betting_open, end_time, status, winning_outcome, bet_count, version,
		   created_at, updated_at, locked_at, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, 1, $15, $16, $17, $18)`,
		e.ID, e.Title, e.OutcomeA, e.OutcomeB, infra.DecimalToNumeric(e.OddsA), infra.DecimalToNumeric(e.OddsB),
		string(e.Currency), infra.Int64ToNumeric(e.PrizePool), infra.Int64ToNumeric(e.OperatorFunded),
		e.BettingOpen, e.EndTime, string(e.Status), textArg(e.WinningOutcome), e.BetCount,
		e.CreatedAt, e.UpdatedAt, e.LockedAt, e.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", classify(err))
	}
	e.Version = 1
	return nil
}

// Update leaves title, outcomes, odds and currency alone: they are fixed
// when the event is created.
func (r eventRepo) Update(ctx context.Context, e *domain.EventPool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE event_pools SET
		  prize_pool = $2, operator_funded = $3, betting_open = $4, end_time = $5,
		  status = $6, winning_outcome = $7, bet_count = $8, updated_at = $9,
		  locked_at = $10, settled_at = $11, version = version + 1
		WHERE id = $1 AND version = $12`,
		e.ID, infra.Int64ToNumeric(e.PrizePool), infra.Int64ToNumeric(e.OperatorFunded),
		e.BettingOpen, e.EndTime, string(e.Status), textArg(e.WinningOutcome), e.BetCount,
		e.UpdatedAt, e.LockedAt, e.SettledAt, e.Version,
	)
	if err := casResult(tag, err, "update event"); err != nil {
		return err
	}
	e.Version++
	return nil
}

func (r eventRepo) ListByStatus(ctx context.Context, status domain.EventStatus, limit int) ([]domain.EventPool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM event_pools WHERE status = $1
		ORDER BY end_time ASC, id
		LIMIT $2`, string(status), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}

func (r eventRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.EventPool, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM event_pools WHERE status = $1 AND end_time <= $2
		ORDER BY end_time ASC, id
		LIMIT $3`, string(domain.EventOpen), now, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query due events: %w", err)
	}
	return collectEvents(rows)
}

type betRepo struct{ db DBTX }

const betColumns = `id, event_id, account_id, outcome, stake, potential_payout, created_at`

func (r betRepo) Insert(ctx context.Context, b *domain.Bet) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO bets (`+betColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		b.ID, b.EventID, b.AccountID, string(b.Outcome),
		infra.Int64ToNumeric(b.Stake), infra.Int64ToNumeric(b.PotentialPayout), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bet: %w", classify(err))
	}
	return nil
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	defer rows.Close()
	var out []domain.Bet
	for rows.Next() {
		var b domain.Bet
		var stake, payout pgtype.Numeric
		if err := rows.Scan(&b.ID, &b.EventID, &b.AccountID, &b.Outcome, &stake, &payout, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bet row: %w", err)
		}
		if err := numerics([]*int64{&b.Stake, &b.PotentialPayout}, []pgtype.Numeric{stake, payout}); err != nil {
			return nil, fmt.Errorf("convert bet amounts: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r betRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.Bet, error) {
	rows, err := r.db.Query(ctx, `SELECT `+betColumns+` FROM bets WHERE event_id = $1 ORDER BY seq ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("query event bets: %w", err)
	}
	return collectBets(rows)
}

func (r betRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Bet, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+betColumns+` FROM bets WHERE account_id = $1
		ORDER BY seq DESC LIMIT $2`, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query account bets: %w", err)
	}
	return collectBets(rows)
}
