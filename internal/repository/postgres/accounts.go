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

type accountRepo struct{ db DBTX }

const accountColumns = `id, display_name, points_balance, cash_balance, referrer_id, referral_count,
	status, disabled, version, created_at, updated_at`

func (r accountRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)

	var a domain.Account
	var points, cash pgtype.Numeric
	var referrer pgtype.UUID
	err := row.Scan(&a.ID, &a.DisplayName, &points, &cash, &referrer, &a.ReferralCount,
		&a.Status, &a.Disabled, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	if err := numerics([]*int64{&a.PointsBalance, &a.CashBalance}, []pgtype.Numeric{points, cash}); err != nil {
		return nil, fmt.Errorf("convert account balances: %w", err)
	}
	a.ReferrerID = uuidPtr(referrer)
	return &a, nil
}

func (r accountRepo) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $10)`,
		a.ID, a.DisplayName,
		infra.Int64ToNumeric(a.PointsBalance), infra.Int64ToNumeric(a.CashBalance),
		a.ReferrerID, a.ReferralCount, string(a.Status), a.Disabled,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", classify(err))
	}
	a.Version = 1
	return nil
}

func (r accountRepo) Update(ctx context.Context, a *domain.Account) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE accounts SET
		  display_name = $2, points_balance = $3, cash_balance = $4, referrer_id = $5,
		  referral_count = $6, status = $7, disabled = $8, updated_at = $9,
		  version = version + 1
		WHERE id = $1 AND version = $10`,
		a.ID, a.DisplayName,
		infra.Int64ToNumeric(a.PointsBalance), infra.Int64ToNumeric(a.CashBalance),
		a.ReferrerID, a.ReferralCount, string(a.Status), a.Disabled, a.UpdatedAt,
		a.Version,
	)
	if err := casResult(tag, err, "update account"); err != nil {
		return err
	}
	a.Version++
	return nil
}

func (r accountRepo) Delete(ctx context.Context, a *domain.Account) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND version = $2`, a.ID, a.Version)
	return casResult(tag, err, "delete account")
}

func (r accountRepo) AddReferral(ctx context.Context, ref domain.Referral) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO referrals (referrer_id, referred_id, created_at) VALUES ($1, $2, $3)`,
		ref.ReferrerID, ref.ReferredID, ref.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert referral: %w", classify(err))
	}
	return nil
}

func (r accountRepo) ListReferrals(ctx context.Context, referrerID uuid.UUID) ([]domain.Referral, error) {
	rows, err := r.db.Query(ctx, `
		SELECT referrer_id, referred_id, created_at
		FROM referrals WHERE referrer_id = $1
		ORDER BY id ASC`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("query referrals: %w", err)
	}
	defer rows.Close()

	var out []domain.Referral
	for rows.Next() {
		var ref domain.Referral
		if err := rows.Scan(&ref.ReferrerID, &ref.ReferredID, &ref.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan referral: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}
