// Package migrations holds additive-only SQLite schema migrations. Each
// migration is idempotent: it may be re-run against an already-migrated
// database without error. New columns are always added with NULL/default
// values; existing columns are never renamed or dropped.
package migrations

import "database/sql"

// MigrateBaseSchema creates the core tables: the read-only network
// inventory (facilities, lanes, shipments), the pipeline tables
// (raw_items, events, alerts), and the generic key-value tables
// (config, metadata) the rest of the storage package relies on.
func MigrateBaseSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS config (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS facilities (
			facility_id TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			city        TEXT NOT NULL DEFAULT '',
			state       TEXT NOT NULL DEFAULT '',
			country     TEXT NOT NULL DEFAULT '',
			criticality INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS lanes (
			lane_id      TEXT PRIMARY KEY,
			origin_id    TEXT NOT NULL,
			dest_id      TEXT NOT NULL,
			volume_score INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lanes_origin ON lanes(origin_id)`,
		`CREATE INDEX IF NOT EXISTS idx_lanes_dest ON lanes(dest_id)`,
		`CREATE TABLE IF NOT EXISTS shipments (
			shipment_id   TEXT PRIMARY KEY,
			lane_id       TEXT NOT NULL,
			ship_date     TEXT,
			eta_date      TEXT,
			status        TEXT NOT NULL DEFAULT '',
			priority_flag INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_shipments_lane ON shipments(lane_id)`,
		`CREATE TABLE IF NOT EXISTS raw_items (
			raw_id       TEXT PRIMARY KEY,
			source_id    TEXT NOT NULL,
			tier         TEXT NOT NULL,
			fetched_at   TEXT NOT NULL,
			published_at TEXT,
			canonical_id TEXT,
			url          TEXT NOT NULL DEFAULT '',
			title        TEXT NOT NULL DEFAULT '',
			payload      TEXT NOT NULL DEFAULT '{}',
			content_hash TEXT NOT NULL,
			status       TEXT NOT NULL DEFAULT 'NEW',
			error        TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_items_source_id ON raw_items(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_items_canonical_id ON raw_items(canonical_id)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_items_content_hash ON raw_items(content_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_items_status ON raw_items(status)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_items_fetched_at ON raw_items(fetched_at)`,
		// Matching order from §4.1: (source_id, canonical_id) when canonical_id
		// is present, else (source_id, content_hash). Partial unique indexes
		// enforce both halves of the invariant at once.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_items_source_canonical_uniq
			ON raw_items(source_id, canonical_id)
			WHERE canonical_id IS NOT NULL AND canonical_id != ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_items_source_hash_uniq
			ON raw_items(source_id, content_hash)
			WHERE canonical_id IS NULL OR canonical_id = ''`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id               TEXT PRIMARY KEY,
			source_id              TEXT NOT NULL,
			raw_id                 TEXT NOT NULL,
			tier                   TEXT NOT NULL,
			trust_tier             INTEGER NOT NULL DEFAULT 2,
			classification_floor   INTEGER NOT NULL DEFAULT 0,
			weighting_bias         INTEGER NOT NULL DEFAULT 0,
			event_type             TEXT NOT NULL DEFAULT 'OTHER',
			title                  TEXT NOT NULL DEFAULT '',
			raw_text               TEXT NOT NULL DEFAULT '',
			location_hint          TEXT NOT NULL DEFAULT '',
			facilities             TEXT NOT NULL DEFAULT '[]',
			lanes                  TEXT NOT NULL DEFAULT '[]',
			shipments              TEXT NOT NULL DEFAULT '[]',
			shipments_total_linked INTEGER NOT NULL DEFAULT 0,
			shipments_truncated    INTEGER NOT NULL DEFAULT 0,
			link_confidence        TEXT NOT NULL DEFAULT '{}',
			link_provenance        TEXT NOT NULL DEFAULT '{}',
			linking_notes          TEXT NOT NULL DEFAULT '[]',
			event_hash             TEXT NOT NULL DEFAULT '',
			created_at             TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_raw_id ON events(raw_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_source_id ON events(source_id)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			alert_id           TEXT PRIMARY KEY,
			risk_type          TEXT NOT NULL DEFAULT '',
			classification     INTEGER NOT NULL DEFAULT 0,
			status             TEXT NOT NULL DEFAULT 'OPEN',
			summary            TEXT NOT NULL DEFAULT '',
			root_event_id      TEXT NOT NULL,
			correlation_key    TEXT NOT NULL,
			scope              TEXT NOT NULL DEFAULT '{}',
			impact_score       INTEGER NOT NULL DEFAULT 0,
			diagnostics        TEXT NOT NULL DEFAULT '{}',
			reasoning          TEXT NOT NULL DEFAULT '[]',
			first_seen_utc     TEXT NOT NULL,
			last_seen_utc      TEXT NOT NULL,
			update_count       INTEGER NOT NULL DEFAULT 1,
			tier               TEXT NOT NULL DEFAULT '',
			source_id          TEXT NOT NULL DEFAULT '',
			trust_tier         INTEGER NOT NULL DEFAULT 2,
			correlation_action TEXT NOT NULL DEFAULT 'CREATED',
			evidence_path      TEXT NOT NULL DEFAULT '',
			evidence_hash      TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_correlation_key ON alerts(correlation_key)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_last_seen_utc ON alerts(last_seen_utc)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
