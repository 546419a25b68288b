// Package rawstore implements C1 (the dedupe index) and the raw-item half
// of C2 (staged persistence with a status lifecycle) from §4.1.
package rawstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/sentinelerr"
	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
	"github.com/sentinelrisk/hardstop/internal/types"
)

// Store is the raw-item store. One Store wraps one SQLiteStorage; its
// flight group collapses concurrent inserts of the same dedupe key into a
// single database round trip, satisfying §5's "the store is the arbiter"
// requirement for concurrent fetchers.
type Store struct {
	db     *sqlite.SQLiteStorage
	idgen  *determinism.IDGenerator
	flight singleflight.Group
}

// New returns a Store backed by db, allocating new raw ids from idgen.
func New(db *sqlite.SQLiteStorage, idgen *determinism.IDGenerator) *Store {
	return &Store{db: db, idgen: idgen}
}

// stableProjection is the {canonical_id, title, url, published_at_utc,
// payload} projection hashed for content_hash (§4.1).
type stableProjection struct {
	CanonicalID    string         `json:"canonical_id"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	PublishedAtUTC *time.Time     `json:"published_at_utc"`
	Payload        map[string]any `json:"payload"`
}

// ContentHash computes the SHA-256 canonical-JSON hash of a candidate's
// stable projection.
func ContentHash(c types.RawItemCandidate) (string, error) {
	proj := stableProjection{
		CanonicalID:    c.CanonicalID,
		Title:          c.Title,
		URL:            c.URL,
		PublishedAtUTC: c.PublishedAtUTC,
		Payload:        c.Payload,
	}
	return determinism.ArtifactHash(proj)
}

// SaveRawItem implements save_raw_item(source_id, tier, candidate,
// fetched_at): on a dedupe match it updates only the fetch timestamp and
// returns the existing row; otherwise it inserts a new NEW row and returns
// it. It takes no trust tier, and raw rows store none.
func (s *Store) SaveRawItem(ctx context.Context, sourceID string, tier types.Tier, candidate types.RawItemCandidate, fetchedAt time.Time) (types.RawItem, error) {
	hash, err := ContentHash(candidate)
	if err != nil {
		return types.RawItem{}, &sentinelerr.ItemParseError{RawID: candidate.CanonicalID, Cause: err}
	}

	flightKey := sourceID + "|" + candidate.CanonicalID
	if candidate.CanonicalID == "" {
		flightKey = sourceID + "||" + hash
	}
	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		var item types.RawItem
		retryErr := s.withRetry(ctx, func() error {
			got, insertErr := s.upsertRawItem(ctx, sourceID, tier, candidate, hash, fetchedAt)
			if insertErr != nil {
				return insertErr
			}
			item = got
			return nil
		})
		return item, retryErr
	})
	if err != nil {
		return types.RawItem{}, &sentinelerr.StoreError{Op: "save raw item", Cause: err}
	}
	return v.(types.RawItem), nil
}

func (s *Store) upsertRawItem(ctx context.Context, sourceID string, tier types.Tier, candidate types.RawItemCandidate, hash string, fetchedAt time.Time) (types.RawItem, error) {
	existing, found, err := s.findExisting(ctx, sourceID, candidate.CanonicalID, hash)
	if err != nil {
		return types.RawItem{}, err
	}
	if found {
		if _, err := s.db.DB().ExecContext(ctx,
			`UPDATE raw_items SET fetched_at = ? WHERE raw_id = ?`,
			fetchedAt.UTC().Format(time.RFC3339Nano), existing.RawID,
		); err != nil {
			return types.RawItem{}, fmt.Errorf("update fetched_at: %w", err)
		}
		existing.FetchedAt = fetchedAt.UTC()
		return existing, nil
	}

	payload, err := json.Marshal(candidate.Payload)
	if err != nil {
		return types.RawItem{}, fmt.Errorf("marshal payload: %w", err)
	}

	item := types.RawItem{
		RawID:       s.idgen.RawID(),
		SourceID:    sourceID,
		Tier:        tier,
		FetchedAt:   fetchedAt.UTC(),
		PublishedAt: candidate.PublishedAtUTC,
		CanonicalID: candidate.CanonicalID,
		URL:         candidate.URL,
		Title:       candidate.Title,
		Payload:     candidate.Payload,
		ContentHash: hash,
		Status:      types.RawStatusNew,
	}

	var publishedAt any
	if item.PublishedAt != nil {
		publishedAt = item.PublishedAt.UTC().Format(time.RFC3339Nano)
	}
	var canonicalID any
	if item.CanonicalID != "" {
		canonicalID = item.CanonicalID
	}

	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO raw_items (raw_id, source_id, tier, fetched_at, published_at, canonical_id, url, title, payload, content_hash, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, '')
	`, item.RawID, item.SourceID, string(item.Tier), item.FetchedAt.Format(time.RFC3339Nano), publishedAt, canonicalID, item.URL, item.Title, string(payload), item.ContentHash, string(item.Status))
	if err != nil {
		if sqlite.IsConflict(err) {
			return types.RawItem{}, &sentinelerr.StoreError{Op: "insert raw item", Cause: sqlite.ErrConflict}
		}
		return types.RawItem{}, fmt.Errorf("insert raw item: %w", err)
	}
	return item, nil
}

func (s *Store) findExisting(ctx context.Context, sourceID, canonicalID, hash string) (types.RawItem, bool, error) {
	var row *sql.Row
	if canonicalID != "" {
		row = s.db.DB().QueryRowContext(ctx, `
			SELECT raw_id, source_id, tier, fetched_at, published_at, canonical_id, url, title, payload, content_hash, status, error
			FROM raw_items WHERE source_id = ? AND canonical_id = ?
		`, sourceID, canonicalID)
	} else {
		row = s.db.DB().QueryRowContext(ctx, `
			SELECT raw_id, source_id, tier, fetched_at, published_at, canonical_id, url, title, payload, content_hash, status, error
			FROM raw_items WHERE source_id = ? AND content_hash = ? AND (canonical_id IS NULL OR canonical_id = '')
		`, sourceID, hash)
	}
	item, err := scanRawItem(row)
	if err == sql.ErrNoRows {
		return types.RawItem{}, false, nil
	}
	if err != nil {
		return types.RawItem{}, false, err
	}
	return item, true, nil
}

func scanRawItem(row *sql.Row) (types.RawItem, error) {
	var item types.RawItem
	var publishedAt, canonicalID sql.NullString
	var payload string
	var fetchedAt string

	err := row.Scan(&item.RawID, &item.SourceID, &item.Tier, &fetchedAt, &publishedAt,
		&canonicalID, &item.URL, &item.Title, &payload, &item.ContentHash, &item.Status, &item.Error)
	if err != nil {
		return types.RawItem{}, err
	}

	item.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return types.RawItem{}, fmt.Errorf("parse fetched_at: %w", err)
	}
	if publishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, publishedAt.String)
		if err != nil {
			return types.RawItem{}, fmt.Errorf("parse published_at: %w", err)
		}
		item.PublishedAt = &t
	}
	if canonicalID.Valid {
		item.CanonicalID = canonicalID.String
	}
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &item.Payload); err != nil {
			return types.RawItem{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return item, nil
}

// GetRawItemsForIngest implements get_raw_items_for_ingest(limit, min_tier,
// source_id, since_hours): NEW rows ordered by fetch timestamp ascending,
// tier-filtered (global > regional > local), optionally scoped to one
// source, and optionally windowed to the last since_hours.
func (s *Store) GetRawItemsForIngest(ctx context.Context, limit int, minTier types.Tier, sourceID string, sinceHours int, now time.Time) ([]types.RawItem, error) {
	query := `SELECT raw_id, source_id, tier, fetched_at, published_at, canonical_id, url, title, payload, content_hash, status, error
		FROM raw_items WHERE status = ?`
	args := []any{string(types.RawStatusNew)}

	if sourceID != "" {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}

	if sinceHours > 0 {
		cutoff := now.Add(-time.Duration(sinceHours) * time.Hour)
		query += ` AND fetched_at >= ? AND (published_at IS NULL OR published_at >= ?)`
		cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)
		args = append(args, cutoffStr, cutoffStr)
	}

	query += ` ORDER BY fetched_at ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit*4) // over-fetch; tier filter happens in Go below
	}

	rows, err := s.db.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &sentinelerr.StoreError{Op: "get raw items for ingest", Cause: err}
	}
	defer func() { _ = rows.Close() }()

	var out []types.RawItem
	for rows.Next() {
		var item types.RawItem
		var publishedAt, canonicalID sql.NullString
		var payload, fetchedAt string
		if err := rows.Scan(&item.RawID, &item.SourceID, &item.Tier, &fetchedAt, &publishedAt,
			&canonicalID, &item.URL, &item.Title, &payload, &item.ContentHash, &item.Status, &item.Error); err != nil {
			return nil, &sentinelerr.StoreError{Op: "scan raw item", Cause: err}
		}
		if minTier != "" && !item.Tier.AtLeast(minTier) {
			continue
		}
		item.FetchedAt, err = time.Parse(time.RFC3339Nano, fetchedAt)
		if err != nil {
			return nil, &sentinelerr.StoreError{Op: "parse fetched_at", Cause: err}
		}
		if publishedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, publishedAt.String)
			if err != nil {
				return nil, &sentinelerr.StoreError{Op: "parse published_at", Cause: err}
			}
			item.PublishedAt = &t
		}
		if canonicalID.Valid {
			item.CanonicalID = canonicalID.String
		}
		if payload != "" {
			if err := json.Unmarshal([]byte(payload), &item.Payload); err != nil {
				return nil, &sentinelerr.StoreError{Op: "unmarshal payload", Cause: err}
			}
		}
		out = append(out, item)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, rows.Err()
}

// terminalStatuses are the states mark_raw_item_status cannot transition
// away from (§4.1: "setting a new status from a terminal state is an
// error").
var terminalStatuses = map[types.RawItemStatus]bool{
	types.RawStatusNormalized: true,
	types.RawStatusFailed:     true,
	types.RawStatusSuppressed: true,
}

// MarkRawItemStatus implements mark_raw_item_status(raw_id, status, error?):
// idempotent for the same status; an error to transition away from a
// terminal status to a different one.
func (s *Store) MarkRawItemStatus(ctx context.Context, rawID string, status types.RawItemStatus, errMsg string) error {
	var current types.RawItemStatus
	err := s.db.DB().QueryRowContext(ctx, `SELECT status FROM raw_items WHERE raw_id = ?`, rawID).Scan(&current)
	if err == sql.ErrNoRows {
		return &sentinelerr.StoreError{Op: "mark raw item status", Cause: fmt.Errorf("raw item %s not found", rawID)}
	}
	if err != nil {
		return &sentinelerr.StoreError{Op: "mark raw item status", Cause: err}
	}

	if current == status {
		return nil
	}
	if terminalStatuses[current] {
		return &sentinelerr.StoreError{Op: "mark raw item status", Cause: fmt.Errorf("raw item %s already terminal at %s, cannot move to %s", rawID, current, status)}
	}

	_, err = s.db.DB().ExecContext(ctx, `UPDATE raw_items SET status = ?, error = ? WHERE raw_id = ?`, string(status), errMsg, rawID)
	if err != nil {
		return &sentinelerr.StoreError{Op: "mark raw item status", Cause: err}
	}
	return nil
}

// withRetry bounds transient SQLite busy/locked errors to a single item's
// operation, never crossing item boundaries (§5).
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Second
	return backoff.Retry(func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err == nil || !isTransient(err) {
			if err != nil {
				return backoff.Permanent(err)
			}
			return nil
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

func isTransient(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}
