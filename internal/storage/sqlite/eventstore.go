package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/sentinelrisk/hardstop/internal/types"
)

// SaveEvent persists ev, replacing any prior row with the same event id
// (an event is recomputed, never partially patched, so a plain upsert is
// sufficient).
func (s *SQLiteStorage) SaveEvent(ctx context.Context, ev types.Event, eventHash string) error {
	return saveEvent(ctx, s.db, ev, eventHash)
}

// SaveEvent persists ev inside the item's transaction.
func (t *Tx) SaveEvent(ctx context.Context, ev types.Event, eventHash string) error {
	return saveEvent(ctx, t.tx, ev, eventHash)
}

func saveEvent(ctx context.Context, exec dbExecutor, ev types.Event, eventHash string) error {
	facilities, err := json.Marshal(ev.Facilities)
	if err != nil {
		return err
	}
	lanes, err := json.Marshal(ev.Lanes)
	if err != nil {
		return err
	}
	shipments, err := json.Marshal(ev.Shipments)
	if err != nil {
		return err
	}
	linkConfidence, err := json.Marshal(ev.LinkConfidence)
	if err != nil {
		return err
	}
	linkProvenance, err := json.Marshal(ev.LinkProvenance)
	if err != nil {
		return err
	}
	linkingNotes, err := json.Marshal(ev.LinkingNotes)
	if err != nil {
		return err
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO events (
			event_id, source_id, raw_id, tier, trust_tier, classification_floor,
			weighting_bias, event_type, title, raw_text, location_hint,
			facilities, lanes, shipments, shipments_total_linked, shipments_truncated,
			link_confidence, link_provenance, linking_notes, event_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT (event_id) DO UPDATE SET
			source_id = excluded.source_id, raw_id = excluded.raw_id, tier = excluded.tier,
			trust_tier = excluded.trust_tier, classification_floor = excluded.classification_floor,
			weighting_bias = excluded.weighting_bias, event_type = excluded.event_type,
			title = excluded.title, raw_text = excluded.raw_text, location_hint = excluded.location_hint,
			facilities = excluded.facilities, lanes = excluded.lanes, shipments = excluded.shipments,
			shipments_total_linked = excluded.shipments_total_linked, shipments_truncated = excluded.shipments_truncated,
			link_confidence = excluded.link_confidence, link_provenance = excluded.link_provenance,
			linking_notes = excluded.linking_notes, event_hash = excluded.event_hash
	`,
		ev.EventID, ev.SourceID, ev.RawID, string(ev.Tier), ev.TrustTier, ev.ClassificationFloor,
		ev.WeightingBias, string(ev.EventType), ev.Title, ev.RawText, ev.LocationHint,
		string(facilities), string(lanes), string(shipments), ev.ShipmentsTotalLinked, ev.ShipmentsTruncated,
		string(linkConfidence), string(linkProvenance), string(linkingNotes), eventHash,
	)
	return wrapDBError("save event", err)
}

// GetEvent fetches an event by id.
func (s *SQLiteStorage) GetEvent(ctx context.Context, eventID string) (types.Event, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, source_id, raw_id, tier, trust_tier, classification_floor,
			weighting_bias, event_type, title, raw_text, location_hint,
			facilities, lanes, shipments, shipments_total_linked, shipments_truncated,
			link_confidence, link_provenance, linking_notes
		FROM events WHERE event_id = ?
	`, eventID)
	return scanEvent(row)
}

func scanEvent(row *sql.Row) (types.Event, error) {
	var ev types.Event
	var tier, eventType string
	var facilities, lanes, shipments, linkConfidence, linkProvenance, linkingNotes string

	err := row.Scan(
		&ev.EventID, &ev.SourceID, &ev.RawID, &tier, &ev.TrustTier, &ev.ClassificationFloor,
		&ev.WeightingBias, &eventType, &ev.Title, &ev.RawText, &ev.LocationHint,
		&facilities, &lanes, &shipments, &ev.ShipmentsTotalLinked, &ev.ShipmentsTruncated,
		&linkConfidence, &linkProvenance, &linkingNotes,
	)
	if err != nil {
		return types.Event{}, wrapDBError("scan event", err)
	}
	ev.Tier = types.Tier(tier)
	ev.EventType = types.EventType(eventType)
	_ = json.Unmarshal([]byte(facilities), &ev.Facilities)
	_ = json.Unmarshal([]byte(lanes), &ev.Lanes)
	_ = json.Unmarshal([]byte(shipments), &ev.Shipments)
	_ = json.Unmarshal([]byte(linkConfidence), &ev.LinkConfidence)
	_ = json.Unmarshal([]byte(linkProvenance), &ev.LinkProvenance)
	_ = json.Unmarshal([]byte(linkingNotes), &ev.LinkingNotes)
	return ev, nil
}
