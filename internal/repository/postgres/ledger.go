package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stakehouse/platform/internal/domain"
	"github.com/stakehouse/platform/internal/infra"
)

type ledgerRepo struct{ db DBTX }

const ledgerColumns = `seq, id, account_id, currency, delta, reason, related_kind, related_id,
	idempotency_key, resulting_balance, created_at`

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var delta, resulting pgtype.Numeric
	err := row.Scan(&e.Seq, &e.ID, &e.AccountID, &e.Currency, &delta, &e.Reason,
		&e.RelatedKind, &e.RelatedID, &e.IdempotencyKey, &resulting, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if err := numerics([]*int64{&e.Delta, &e.ResultingBalance}, []pgtype.Numeric{delta, resulting}); err != nil {
		return nil, fmt.Errorf("convert ledger amounts: %w", err)
	}
	return &e, nil
}

func collectLedgerEntries(rows pgx.Rows) ([]domain.LedgerEntry, error) {
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
	row := r.db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries WHERE idempotency_key = $1`, key)
	e, err := scanLedgerEntry(row)
	if err != nil {
		if err == pgx.ErrNoRows {
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
	err := r.db.QueryRow(ctx, `
		INSERT INTO ledger_entries
		  (id, account_id, currency, delta, reason, related_kind, related_id,
		   idempotency_key, resulting_balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING seq`,
		e.ID, e.AccountID, string(e.Currency), infra.Int64ToNumeric(e.Delta),
		string(e.Reason), string(e.RelatedKind), e.RelatedID,
		e.IdempotencyKey, infra.Int64ToNumeric(e.ResultingBalance), e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", classify(err))
	}
	return nil
}

func (r ledgerRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, before *int64, limit int) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries
		WHERE account_id = $1 AND ($2::bigint IS NULL OR seq < $2)
		ORDER BY seq DESC
		LIMIT $3`, accountID, before, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query account ledger: %w", err)
	}
	return collectLedgerEntries(rows)
}

func (r ledgerRepo) History(ctx context.Context, accountID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries WHERE account_id = $1
		ORDER BY seq ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query account history: %w", err)
	}
	return collectLedgerEntries(rows)
}

func (r ledgerRepo) ListByRelated(ctx context.Context, kind domain.RelatedKind, id uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+ledgerColumns+`
		FROM ledger_entries WHERE related_kind = $1 AND related_id = $2
		ORDER BY seq ASC`, string(kind), id)
	if err != nil {
		return nil, fmt.Errorf("query related ledger: %w", err)
	}
	return collectLedgerEntries(rows)
}

func (r ledgerRepo) SumHouse(ctx context.Context, currency domain.Currency) (int64, error) {
	var sum pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(delta), 0)::numeric(15,0)
		FROM ledger_entries WHERE account_id = $1 AND currency = $2`,
		domain.HouseAccountID, string(currency)).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum house revenue: %w", err)
	}
	return infra.NumericToInt64(sum)
}
