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

type requestRepo struct{ db DBTX }

const requestColumns = `id, account_id, type, currency, amount, status, processed_by,
	version, created_at, processed_at`

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	var amount pgtype.Numeric
	var processedBy pgtype.UUID
	var processedAt pgtype.Timestamptz
	err := row.Scan(&req.ID, &req.AccountID, &req.Type, &req.Currency, &amount, &req.Status,
		&processedBy, &req.Version, &req.CreatedAt, &processedAt)
	if err != nil {
		return nil, err
	}
	if req.Amount, err = infra.NumericToInt64(amount); err != nil {
		return nil, fmt.Errorf("convert request amount: %w", err)
	}
	req.ProcessedBy = uuidPtr(processedBy)
	if processedAt.Valid {
		t := processedAt.Time
		req.ProcessedAt = &t
	}
	return &req, nil
}

func collectRequests(rows pgx.Rows) ([]domain.Request, error) {
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
	req, err := scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = $1`, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan request: %w", err)
	}
	return req, nil
}

func (r requestRepo) Create(ctx context.Context, req *domain.Request) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1, $8, $9)`,
		req.ID, req.AccountID, string(req.Type), string(req.Currency),
		infra.Int64ToNumeric(req.Amount), string(req.Status), req.ProcessedBy,
		req.CreatedAt, req.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", classify(err))
	}
	req.Version = 1
	return nil
}

func (r requestRepo) Update(ctx context.Context, req *domain.Request) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE requests SET status = $2, processed_by = $3, processed_at = $4, version = version + 1
		WHERE id = $1 AND version = $5`,
		req.ID, string(req.Status), req.ProcessedBy, req.ProcessedAt, req.Version)
	if err := casResult(tag, err, "update request"); err != nil {
		return err
	}
	req.Version++
	return nil
}

func (r requestRepo) ListByStatus(ctx context.Context, status domain.RequestStatus, limit int) ([]domain.Request, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE status = $1
		ORDER BY created_at ASC, id LIMIT $2`, string(status), limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	return collectRequests(rows)
}

func (r requestRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, limit int) ([]domain.Request, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+requestColumns+` FROM requests WHERE account_id = $1
		ORDER BY created_at DESC, id LIMIT $2`, accountID, limitArg(limit))
	if err != nil {
		return nil, fmt.Errorf("query account requests: %w", err)
	}
	return collectRequests(rows)
}

type adjustmentRepo struct{ db DBTX }

func (r adjustmentRepo) Insert(ctx context.Context, a *domain.Adjustment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO adjustments (id, account_id, currency, amount, note, operator_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.AccountID, string(a.Currency), infra.Int64ToNumeric(a.Amount),
		a.Note, a.OperatorID, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert adjustment: %w", classify(err))
	}
	return nil
}

func (r adjustmentRepo) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]domain.Adjustment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, account_id, currency, amount, note, operator_id, created_at
		FROM adjustments WHERE account_id = $1 ORDER BY seq ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query adjustments: %w", err)
	}
	defer rows.Close()

	var out []domain.Adjustment
	for rows.Next() {
		var a domain.Adjustment
		var amount pgtype.Numeric
		if err := rows.Scan(&a.ID, &a.AccountID, &a.Currency, &amount, &a.Note, &a.OperatorID, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan adjustment: %w", err)
		}
		if a.Amount, err = infra.NumericToInt64(amount); err != nil {
			return nil, fmt.Errorf("convert adjustment amount: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
