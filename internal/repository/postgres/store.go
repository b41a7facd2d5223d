// Package postgres implements repository.Store on PostgreSQL via pgx.
// Versioned rows are written with compare-and-set UPDATEs, so transactions
// run at READ COMMITTED and never hold row locks across a read.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stakehouse/platform/internal/infra"
	"github.com/stakehouse/platform/internal/repository"
)

// DBTX is the subset of pgx shared by pools and transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Store is the PostgreSQL backend.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an open pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ repository.Store = (*Store)(nil)

// RunTx runs fn in a READ COMMITTED transaction.
func (s *Store) RunTx(ctx context.Context, fn repository.TxFunc) error {
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ptx pgx.Tx) error {
		return fn(ctx, &tx{db: ptx})
	})
	return classify(err)
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return infra.HealthCheck(ctx, s.pool)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Serialization failures, deadlocks and unique violations all mean another
// writer won; the unit of work can be rerun.
var conflictCodes = map[string]bool{
	"40001": true,
	"40P01": true,
	"23505": true,
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && conflictCodes[pgErr.Code] {
		return fmt.Errorf("%w: %s (%s)", repository.ErrConflict, pgErr.Message, pgErr.Code)
	}
	return err
}

// casResult turns the outcome of a versioned write into ErrConflict when
// no row matched.
func casResult(tag pgconn.CommandTag, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, classify(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, repository.ErrConflict)
	}
	return nil
}

type tx struct {
	db DBTX
}

func (t *tx) Accounts() repository.AccountRepository { return accountRepo{t.db} }
func (t *tx) Ledger() repository.LedgerRepository { return ledgerRepo{t.db} }
func (t *tx) Rooms() repository.RoomRepository { return roomRepo{t.db} }
func (t *tx) Events() repository.EventRepository { return eventRepo{t.db} }
func (t *tx) Bets() repository.BetRepository { return betRepo{t.db} }
func (t *tx) Requests() repository.RequestRepository { return requestRepo{t.db} }
func (t *tx) Adjustments() repository.AdjustmentRepository { return adjustmentRepo{t.db} }
func (t *tx) Outbox() repository.OutboxRepository { return outboxRepo{t.db} }

func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func uuidPtr(u pgtype.UUID) *uuid.UUID {
	if !u.Valid {
		return nil
	}
	id := uuid.UUID(u.Bytes)
	return &id
}

func textArg[T ~string](p *T) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func textPtr[T ~string](t pgtype.Text) *T {
	if !t.Valid {
		return nil
	}
	v := T(t.String)
	return &v
}

func numerics(dst []*int64, src []pgtype.Numeric) error {
	for i := range src {
		v, err := infra.NumericToInt64(src[i])
		if err != nil {
			return err
		}
		*dst[i] = v
	}
	return nil
}
