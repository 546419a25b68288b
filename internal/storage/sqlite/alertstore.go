package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/sentinelrisk/hardstop/internal/types"
)

// FindRecentAlertByKey returns the most recent alert whose correlation_key
// equals key and whose last_seen_utc is within windowDays of now (§4.6).
// The second return value is false when no such alert exists.
func (s *SQLiteStorage) FindRecentAlertByKey(ctx context.Context, key string, windowDays int, now time.Time) (types.Alert, bool, error) {
	return findRecentAlertByKey(ctx, s.db, key, windowDays, now)
}

// FindRecentAlertByKey looks up the candidate alert to merge into inside the
// item's transaction, so the read and the subsequent insert/update it
// decides between are never split across two separate commits.
func (t *Tx) FindRecentAlertByKey(ctx context.Context, key string, windowDays int, now time.Time) (types.Alert, bool, error) {
	return findRecentAlertByKey(ctx, t.tx, key, windowDays, now)
}

func findRecentAlertByKey(ctx context.Context, exec dbExecutor, key string, windowDays int, now time.Time) (types.Alert, bool, error) {
	cutoff := now.AddDate(0, 0, -windowDays)
	row := exec.QueryRowContext(ctx, `
		SELECT alert_id, risk_type, classification, status, summary, root_event_id,
			correlation_key, scope, impact_score, diagnostics, reasoning,
			first_seen_utc, last_seen_utc, update_count, tier, source_id, trust_tier,
			correlation_action, evidence_path, evidence_hash
		FROM alerts
		WHERE correlation_key = ? AND last_seen_utc >= ?
		ORDER BY last_seen_utc DESC
		LIMIT 1
	`, key, cutoff.UTC().Format(time.RFC3339))

	alert, err := scanAlert(row)
	if err != nil {
		if isNotFound(err) {
			return types.Alert{}, false, nil
		}
		return types.Alert{}, false, err
	}
	return alert, true, nil
}

func scanAlert(row *sql.Row) (types.Alert, error) {
	var a types.Alert
	var status, tier, correlationAction string
	var scopeJSON, diagnosticsJSON, reasoningJSON string
	var firstSeen, lastSeen string

	err := row.Scan(
		&a.AlertID, &a.RiskType, &a.Classification, &status, &a.Summary, &a.RootEventID,
		&a.CorrelationKey, &scopeJSON, &a.ImpactScore, &diagnosticsJSON, &reasoningJSON,
		&firstSeen, &lastSeen, &a.UpdateCount, &tier, &a.SourceID, &a.TrustTier,
		&correlationAction, &a.EvidencePath, &a.EvidenceHash,
	)
	if err != nil {
		return types.Alert{}, wrapDBError("scan alert", err)
	}
	a.Status = types.AlertStatus(status)
	a.Tier = types.Tier(tier)
	a.CorrelationAction = types.CorrelationAction(correlationAction)
	_ = json.Unmarshal([]byte(scopeJSON), &a.Scope)
	_ = json.Unmarshal([]byte(diagnosticsJSON), &a.Diagnostics)
	_ = json.Unmarshal([]byte(reasoningJSON), &a.Reasoning)
	if t, perr := time.Parse(time.RFC3339, firstSeen); perr == nil {
		a.FirstSeenUTC = t
	}
	if t, perr := time.Parse(time.RFC3339, lastSeen); perr == nil {
		a.LastSeenUTC = t
	}
	return a, nil
}

// InsertAlert inserts a newly created alert row (the CREATED path of §4.6).
func (s *SQLiteStorage) InsertAlert(ctx context.Context, a types.Alert) error {
	return insertAlert(ctx, s.db, a)
}

// InsertAlert inserts a newly created alert row inside the item's
// transaction.
func (t *Tx) InsertAlert(ctx context.Context, a types.Alert) error {
	return insertAlert(ctx, t.tx, a)
}

func insertAlert(ctx context.Context, exec dbExecutor, a types.Alert) error {
	scope, err := json.Marshal(a.Scope)
	if err != nil {
		return err
	}
	diagnostics, err := json.Marshal(a.Diagnostics)
	if err != nil {
		return err
	}
	reasoning, err := json.Marshal(a.Reasoning)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO alerts (
			alert_id, risk_type, classification, status, summary, root_event_id,
			correlation_key, scope, impact_score, diagnostics, reasoning,
			first_seen_utc, last_seen_utc, update_count, tier, source_id, trust_tier,
			correlation_action, evidence_path, evidence_hash
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.AlertID, a.RiskType, a.Classification, string(a.Status), a.Summary, a.RootEventID,
		a.CorrelationKey, string(scope), a.ImpactScore, string(diagnostics), string(reasoning),
		a.FirstSeenUTC.UTC().Format(time.RFC3339), a.LastSeenUTC.UTC().Format(time.RFC3339),
		a.UpdateCount, string(a.Tier), a.SourceID, a.TrustTier,
		string(a.CorrelationAction), a.EvidencePath, a.EvidenceHash,
	)
	return wrapDBError("insert alert", err)
}

// UpdateAlert persists the merged state of an existing alert (the UPDATED
// path of §4.6). The alert id and first_seen_utc are never modified here.
func (s *SQLiteStorage) UpdateAlert(ctx context.Context, a types.Alert) error {
	return updateAlert(ctx, s.db, a)
}

// UpdateAlert persists the merged state of an existing alert inside the
// item's transaction.
func (t *Tx) UpdateAlert(ctx context.Context, a types.Alert) error {
	return updateAlert(ctx, t.tx, a)
}

func updateAlert(ctx context.Context, exec dbExecutor, a types.Alert) error {
	scope, err := json.Marshal(a.Scope)
	if err != nil {
		return err
	}
	diagnostics, err := json.Marshal(a.Diagnostics)
	if err != nil {
		return err
	}
	reasoning, err := json.Marshal(a.Reasoning)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		UPDATE alerts SET
			risk_type = ?, classification = ?, status = ?, summary = ?, root_event_id = ?,
			scope = ?, impact_score = ?, diagnostics = ?, reasoning = ?,
			last_seen_utc = ?, update_count = ?, tier = ?, source_id = ?, trust_tier = ?,
			correlation_action = ?, evidence_path = ?, evidence_hash = ?
		WHERE alert_id = ?
	`,
		a.RiskType, a.Classification, string(a.Status), a.Summary, a.RootEventID,
		string(scope), a.ImpactScore, string(diagnostics), string(reasoning),
		a.LastSeenUTC.UTC().Format(time.RFC3339), a.UpdateCount, string(a.Tier), a.SourceID, a.TrustTier,
		string(a.CorrelationAction), a.EvidencePath, a.EvidenceHash, a.AlertID,
	)
	return wrapDBError("update alert", err)
}

// GetAlert fetches an alert by id, primarily for tests.
func (s *SQLiteStorage) GetAlert(ctx context.Context, alertID string) (types.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT alert_id, risk_type, classification, status, summary, root_event_id,
			correlation_key, scope, impact_score, diagnostics, reasoning,
			first_seen_utc, last_seen_utc, update_count, tier, source_id, trust_tier,
			correlation_action, evidence_path, evidence_hash
		FROM alerts WHERE alert_id = ?
	`, alertID)
	return scanAlert(row)
}
