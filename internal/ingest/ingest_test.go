package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelrisk/hardstop/internal/canon"
	"github.com/sentinelrisk/hardstop/internal/correlate"
	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/evidence"
	"github.com/sentinelrisk/hardstop/internal/linker"
	"github.com/sentinelrisk/hardstop/internal/rawstore"
	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
	"github.com/sentinelrisk/hardstop/internal/types"
)

func newTestStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	store, err := sqlite.New(context.Background(), t.TempDir()+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedPlant(t *testing.T, db *sqlite.SQLiteStorage, criticality int) {
	t.Helper()
	ctx := context.Background()
	_, err := db.DB().ExecContext(ctx, `INSERT INTO facilities (facility_id, name, city, state, country, criticality) VALUES
		('PLANT-01', 'Plant One', 'Houston', 'TX', 'US', ?)`, criticality)
	require.NoError(t, err)
	_, err = db.DB().ExecContext(ctx, `INSERT INTO lanes (lane_id, origin_id, dest_id, volume_score) VALUES
		('LANE-001', 'PLANT-01', 'DC-01', 8)`)
	require.NoError(t, err)
	_, err = db.DB().ExecContext(ctx, `INSERT INTO shipments (shipment_id, lane_id, ship_date, eta_date, status, priority_flag) VALUES
		('SHIP-001', 'LANE-001', '2026-01-01', '2026-01-03', 'IN_TRANSIT', 1)`)
	require.NoError(t, err)
}

type staticSources struct {
	sources map[string]types.SourceConfig
}

func (s staticSources) Resolve(sourceID string) (types.SourceConfig, bool) {
	cfg, ok := s.sources[sourceID]
	return cfg, ok
}

func newOrchestrator(t *testing.T, db *sqlite.SQLiteStorage, scope *determinism.Scope, sources map[string]types.SourceConfig) (*Orchestrator, *rawstore.Store) {
	t.Helper()
	raw := rawstore.New(db, scope.IDGen)
	dir := t.TempDir()
	orch := New(Deps{
		DB:            db,
		RawStore:      raw,
		Canonicalizer: canon.New(scope.IDGen, true),
		Linker:        linker.New(db, linker.Options{}),
		Correlate:     correlate.New(),
		Evidence:      evidence.New(dir),
		Sources:       staticSources{sources: sources},
		Scope:         scope,
		QualityConfig: func(ctx context.Context) (types.QualityConfig, error) {
			return types.DefaultQualityConfig(), nil
		},
	})
	return orch, raw
}

// TestIngest_SpillAtCriticalPlantProducesOpenAlert mirrors §8's S1 scenario:
// a spill at a high-criticality, city/state-resolved facility should clear
// the quality cap and produce a fresh, open, class-2 alert.
func TestIngest_SpillAtCriticalPlantProducesOpenAlert(t *testing.T) {
	db := newTestStore(t)
	seedPlant(t, db, 8)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	scope := determinism.NewPinnedScope(determinism.Context{Seed: 1, TimestampUTC: now, RunID: "R1"})
	orch, raw := newOrchestrator(t, db, scope, map[string]types.SourceConfig{
		"reuters": {ID: "reuters", TrustTier: 3},
	})

	_, err := raw.SaveRawItem(context.Background(), "reuters", types.TierGlobal, types.RawItemCandidate{
		CanonicalID: "item-1",
		Title:       "Chemical spill reported at Houston, TX plant",
		Payload:     map[string]any{"body": "A hazardous material spill was reported at the PLANT-01 facility today."},
	}, now)
	require.NoError(t, err)

	summary, err := orch.Ingest(context.Background(), 10, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Events)
	assert.Equal(t, 1, summary.Alerts)
	assert.Equal(t, 0, summary.Errors)

	row := db.DB().QueryRowContext(context.Background(), `SELECT status FROM raw_items WHERE canonical_id = 'item-1'`)
	var status string
	require.NoError(t, row.Scan(&status))
	assert.Equal(t, string(types.RawStatusNormalized), status)

	var alertID string
	require.NoError(t, db.DB().QueryRowContext(context.Background(), `SELECT alert_id FROM alerts LIMIT 1`).Scan(&alertID))
	alert, err := db.GetAlert(context.Background(), alertID)
	require.NoError(t, err)
	assert.Equal(t, types.AlertOpen, alert.Status)
	assert.NotEmpty(t, alert.EvidencePath)
	assert.NotEmpty(t, alert.EvidenceHash)
}

// TestIngest_MalformedPayloadFailsItemWithoutBlockingBatch mirrors §7's
// per-item isolation requirement: one item whose body is not a string must
// not prevent the rest of the batch from normalizing.
func TestIngest_MalformedPayloadFailsItemWithoutBlockingBatch(t *testing.T) {
	db := newTestStore(t)
	seedPlant(t, db, 8)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	scope := determinism.NewPinnedScope(determinism.Context{Seed: 1, TimestampUTC: now, RunID: "R1"})
	orch, raw := newOrchestrator(t, db, scope, map[string]types.SourceConfig{
		"reuters": {ID: "reuters", TrustTier: 3},
	})

	_, err := raw.SaveRawItem(context.Background(), "reuters", types.TierGlobal, types.RawItemCandidate{
		CanonicalID: "bad-item",
		Title:       "Malformed",
		Payload:     map[string]any{"body": 12345},
	}, now)
	require.NoError(t, err)
	_, err = raw.SaveRawItem(context.Background(), "reuters", types.TierGlobal, types.RawItemCandidate{
		CanonicalID: "good-item",
		Title:       "Strike halts operations at Houston, TX plant",
		Payload:     map[string]any{"body": "Workers staged a walkout at the PLANT-01 facility."},
	}, now)
	require.NoError(t, err)

	summary, err := orch.Ingest(context.Background(), 10, "", "", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.Events)

	var badStatus, goodStatus string
	require.NoError(t, db.DB().QueryRowContext(context.Background(), `SELECT status FROM raw_items WHERE canonical_id = 'bad-item'`).Scan(&badStatus))
	require.NoError(t, db.DB().QueryRowContext(context.Background(), `SELECT status FROM raw_items WHERE canonical_id = 'good-item'`).Scan(&goodStatus))
	assert.Equal(t, string(types.RawStatusFailed), badStatus)
	assert.Equal(t, string(types.RawStatusNormalized), goodStatus)
}

// TestIngest_SecondRelatedEventUpdatesSameAlert mirrors §8's S5 scenario:
// two events that correlate to the same key should produce one CREATED then
// one UPDATED alert, not two separate alerts.
func TestIngest_SecondRelatedEventUpdatesSameAlert(t *testing.T) {
	db := newTestStore(t)
	seedPlant(t, db, 8)

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	scope := determinism.NewPinnedScope(determinism.Context{Seed: 1, TimestampUTC: t0, RunID: "R1"})
	orch, raw := newOrchestrator(t, db, scope, map[string]types.SourceConfig{
		"reuters": {ID: "reuters", TrustTier: 3},
	})

	_, err := raw.SaveRawItem(context.Background(), "reuters", types.TierGlobal, types.RawItemCandidate{
		CanonicalID: "item-1",
		Title:       "Chemical spill at Houston, TX plant",
		Payload:     map[string]any{"body": "A spill was reported at the PLANT-01 facility."},
	}, t0)
	require.NoError(t, err)
	_, err = orch.Ingest(context.Background(), 10, "", "", 0)
	require.NoError(t, err)

	t1 := t0.Add(time.Hour)
	_, err = raw.SaveRawItem(context.Background(), "reuters", types.TierGlobal, types.RawItemCandidate{
		CanonicalID: "item-2",
		Title:       "Follow-up: spill at Houston, TX plant contained",
		Payload:     map[string]any{"body": "The spill at the PLANT-01 facility has been contained."},
	}, t1)
	require.NoError(t, err)

	scope2 := determinism.NewPinnedScope(determinism.Context{Seed: 1, TimestampUTC: t1, RunID: "R1"})
	orch.scope = scope2
	_, err = orch.Ingest(context.Background(), 10, "", "", 0)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.DB().QueryRowContext(context.Background(), `SELECT COUNT(*) FROM alerts`).Scan(&count))
	assert.Equal(t, 1, count, "both events should correlate into a single alert")

	var updateCount int
	require.NoError(t, db.DB().QueryRowContext(context.Background(), `SELECT update_count FROM alerts LIMIT 1`).Scan(&updateCount))
	assert.Equal(t, 2, updateCount)
}

func TestBriefQuery_ReturnsAlertsWithinWindow(t *testing.T) {
	db := newTestStore(t)
	seedPlant(t, db, 8)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	scope := determinism.NewPinnedScope(determinism.Context{Seed: 1, TimestampUTC: now, RunID: "R1"})
	orch, raw := newOrchestrator(t, db, scope, map[string]types.SourceConfig{
		"reuters": {ID: "reuters", TrustTier: 3},
	})

	_, err := raw.SaveRawItem(context.Background(), "reuters", types.TierGlobal, types.RawItemCandidate{
		CanonicalID: "item-1",
		Title:       "Chemical spill at Houston, TX plant",
		Payload:     map[string]any{"body": "A spill was reported at the PLANT-01 facility."},
	}, now)
	require.NoError(t, err)
	_, err = orch.Ingest(context.Background(), 10, "", "", 0)
	require.NoError(t, err)

	brief, err := BriefQuery(context.Background(), db, 24, "json", scope.Clock)
	require.NoError(t, err)
	assert.Len(t, brief.Alerts, 1)
}
