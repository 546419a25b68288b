// Package sqlite is the embedded relational store backing the ingestion
// pipeline: raw items, canonical events, alerts, and the read-only network
// inventory, all in one SQLite file via the pure-Go modernc.org/sqlite
// driver. Migrations are additive-only (see migrations/001_base_schema.go).
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sentinelrisk/hardstop/internal/storage/sqlite/migrations"
)

// SQLiteStorage is the single handle through which the orchestrator and
// every pipeline component read and write the embedded database. Per §5,
// only one logical worker drives the pipeline at a time, but its per-item
// transaction (*Tx) can be open on one connection while the same item's
// read-only inventory lookups run on another, so the pool keeps a small
// handful of connections rather than one; WAL mode (connString) is what
// actually keeps that safe against the transaction's writes.
type SQLiteStorage struct {
	db *sql.DB
}

// New opens (creating if necessary) the SQLite database at path and runs
// all migrations. path may be a plain filesystem path, a file: URI, or
// ":memory:"/"file::memory:?..." for tests.
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", connString(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

// migrate runs every migration in order. Migrations are idempotent, so
// re-running New against an already-current database is always safe.
func (s *SQLiteStorage) migrate() error {
	steps := []func(*sql.DB) error{
		migrations.MigrateBaseSchema,
		migrations.MigrateCanonicalizationRuns,
	}
	for _, step := range steps {
		if err := step(s.db); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for components that need to run their
// own statements or transactions (rawstore, inventory, ingest).
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}
