// Package sqlite implements repository.Store on a single SQLite file.
// Transactions begin IMMEDIATE, so writers are serialized by the database
// lock; the versioned CAS writes still apply and busy timeouts surface as
// repository.ErrConflict.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/stakehouse/platform/internal/repository"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite backend.
type Store struct {
	db *sql.DB
}

var _ repository.Store = (*Store)(nil)

// Open creates the database file and its tables if needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("create %s: %w", stmt.name, err)
		}
	}
	return &Store{db: db}, nil
}

// RunTx runs fn in an IMMEDIATE transaction.
func (s *Store) RunTx(ctx context.Context, fn repository.TxFunc) error {
	stx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	if err := fn(ctx, &tx{db: stx}); err != nil {
		_ = stx.Rollback()
		return classify(err)
	}
	if err := stx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Ping checks the database file is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func classify(err error) error {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == sqlite3.ErrBusy, se.Code == sqlite3.ErrLocked,
		se.ExtendedCode == sqlite3.ErrConstraintUnique,
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %s", repository.ErrConflict, se.Error())
	}
	return err
}

func casResult(res sql.Result, err error, what string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", what, classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if n == 0 {
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

// SQLite treats a negative LIMIT as unbounded.
func limitArg(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nanos(t time.Time) int64 { return t.UnixNano() }

func fromNanos(n int64) time.Time { return time.Unix(0, n).UTC() }

func nanosPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func uuidArg(u *uuid.UUID) any {
	if u == nil {
		return nil
	}
	return u.String()
}

func uuidPtr(s sql.NullString) (*uuid.UUID, error) {
	if !s.Valid {
		return nil, nil
	}
	id, err := uuid.Parse(s.String)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func textArg[T ~string](p *T) any {
	if p == nil {
		return nil
	}
	return string(*p)
}

func textPtr[T ~string](s sql.NullString) *T {
	if !s.Valid {
		return nil
	}
	v := T(s.String)
	return &v
}
