package migrations

import "database/sql"

// MigrateCanonicalizationRuns adds the append-only run-record table that
// links a raw item's content hash to the event hash the canonicalizer
// produced from it, under the operator id that did the normalizing. This
// gives an audit trail independent of the events table itself, which only
// ever holds the current event row.
func MigrateCanonicalizationRuns(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS canonicalization_runs (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			raw_item_hash   TEXT NOT NULL,
			event_hash      TEXT NOT NULL,
			operator_id     TEXT NOT NULL,
			created_at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_canonicalization_runs_raw_hash ON canonicalization_runs(raw_item_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_canonicalization_runs_event_hash ON canonicalization_runs(event_hash)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
