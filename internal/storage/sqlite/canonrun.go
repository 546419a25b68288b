package sqlite

import "context"

const canonicalizationOperator = "canonicalization.normalize@1.0.0"

// RecordCanonicalizationRun inserts an audit row linking a raw item's
// content hash to the event hash it canonicalized to.
func (s *SQLiteStorage) RecordCanonicalizationRun(ctx context.Context, rawHash, eventHash string) error {
	return recordCanonicalizationRun(ctx, s.db, rawHash, eventHash)
}

// RecordCanonicalizationRun inserts the audit row inside the item's
// transaction, so it lands in the database only if the rest of the item's
// processing also commits.
func (t *Tx) RecordCanonicalizationRun(ctx context.Context, rawHash, eventHash string) error {
	return recordCanonicalizationRun(ctx, t.tx, rawHash, eventHash)
}

func recordCanonicalizationRun(ctx context.Context, exec dbExecutor, rawHash, eventHash string) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO canonicalization_runs (raw_item_hash, event_hash, operator_id, created_at)
		VALUES (?, ?, ?, datetime('now'))
	`, rawHash, eventHash, canonicalizationOperator)
	return wrapDBError("record canonicalization run", err)
}
