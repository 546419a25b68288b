package sqlite

import (
	"context"
	"database/sql"
	"errors"
)

// dbExecutor is satisfied by both *sql.DB and *sql.Tx, the pattern this
// package uses so a query can run standalone against the database or
// inside a caller-owned transaction without duplicating its SQL.
type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is one raw item's database transaction. The orchestrator begins one
// per item and threads it through canonicalization, event persistence,
// correlation, and the evidence-reference update, committing only after
// every write for that item has succeeded (§4.6, §4.8). A failure at any
// step leaves the whole item unwritten once Rollback runs.
type Tx struct {
	tx *sql.Tx
}

// BeginTx starts a new per-item transaction. The caller must eventually
// Commit or Rollback it; Rollback after a successful Commit is a no-op, so
// callers can defer it unconditionally.
func (s *SQLiteStorage) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapDBError("begin item transaction", err)
	}
	return &Tx{tx: tx}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return wrapDBError("commit item transaction", t.tx.Commit())
}

// Rollback rolls back the transaction. Calling it after Commit (or after an
// earlier Rollback) is a no-op.
func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if err != nil && errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return wrapDBError("rollback item transaction", err)
}
