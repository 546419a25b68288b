package correlate

import (
	"context"
	"testing"
	"time"

	"github.com/mitchellh/hashstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelrisk/hardstop/internal/determinism"
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

func TestBuildCorrelationKey_StableAcrossFacilityOrdering(t *testing.T) {
	a := types.Event{EventType: types.EventSpill, Facilities: []string{"PLANT-02", "PLANT-01"}, Lanes: []string{"LANE-001"}}
	b := types.Event{EventType: types.EventSpill, Facilities: []string{"PLANT-01", "PLANT-02"}, Lanes: []string{"LANE-001"}}
	assert.Equal(t, BuildCorrelationKey(a), BuildCorrelationKey(b))
	assert.Equal(t, "SPILL|PLANT-01|LANE-001", BuildCorrelationKey(a))
}

func TestBuildCorrelationKey_InfersBucketFromKeywordsWhenTypeMissing(t *testing.T) {
	ev := types.Event{EventType: types.EventOther, Title: "Workers walkout at facility"}
	assert.Equal(t, "STRIKE|NONE|NONE", BuildCorrelationKey(ev))
}

func TestBuildCorrelationKey_DefaultsToGeneralBucket(t *testing.T) {
	ev := types.Event{EventType: types.EventOther, Title: "Quarterly earnings"}
	assert.Equal(t, "GENERAL|NONE|NONE", BuildCorrelationKey(ev))
}

func TestUpsert_FirstEventCreatesAlert(t *testing.T) {
	store := newTestStore(t)
	engine := New()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := determinism.NewPinnedClock(now)
	idgen := determinism.NewPinnedIDGenerator(1)

	in := BuildInput{
		Event:          types.Event{EventType: types.EventSpill, EventID: "EVT-1", Facilities: []string{"PLANT-01"}, Lanes: []string{"LANE-001"}},
		Classification: 2,
		ImpactScore:    6,
	}
	alert, err := engine.Upsert(context.Background(), store, in, clock, idgen, now)
	require.NoError(t, err)
	assert.Equal(t, types.CorrelationCreated, alert.CorrelationAction)
	assert.Equal(t, 1, alert.UpdateCount)
	assert.True(t, alert.FirstSeenUTC.Equal(alert.LastSeenUTC))
}

func TestUpsert_SecondEventWithSameKeyUpdatesAndMergesScope(t *testing.T) {
	store := newTestStore(t)
	engine := New()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	idgen := determinism.NewPinnedIDGenerator(1)

	first := BuildInput{
		Event:          types.Event{EventType: types.EventSpill, EventID: "EVT-1", Facilities: []string{"PLANT-01"}, Lanes: []string{"LANE-001"}},
		Classification: 2,
		ImpactScore:    6,
	}
	_, err := engine.Upsert(context.Background(), store, first, determinism.NewPinnedClock(t0), idgen, t0)
	require.NoError(t, err)

	t1 := t0.Add(time.Hour)
	second := BuildInput{
		Event:          types.Event{EventType: types.EventSpill, EventID: "EVT-2", Facilities: []string{"PLANT-01", "PLANT-02"}, Lanes: []string{"LANE-001"}},
		Classification: 1,
		ImpactScore:    3,
	}
	alert, err := engine.Upsert(context.Background(), store, second, determinism.NewPinnedClock(t1), idgen, t1)
	require.NoError(t, err)

	assert.Equal(t, types.CorrelationUpdated, alert.CorrelationAction)
	assert.Equal(t, 2, alert.UpdateCount)
	assert.True(t, alert.FirstSeenUTC.Before(alert.LastSeenUTC))
	assert.ElementsMatch(t, []string{"PLANT-01", "PLANT-02"}, alert.Scope.Facilities)
	assert.Equal(t, "EVT-2", alert.RootEventID)
}

func TestUpsert_ScopeIsMonotonicAcrossThreeEvents(t *testing.T) {
	store := newTestStore(t)
	engine := New()
	idgen := determinism.NewPinnedIDGenerator(1)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	facilitySets := [][]string{{"PLANT-01"}, {"PLANT-01", "PLANT-02"}, {"PLANT-01", "PLANT-03"}}
	var prevHash uint64
	for i, facilities := range facilitySets {
		ts := t0.Add(time.Duration(i) * time.Hour)
		in := BuildInput{Event: types.Event{EventType: types.EventSpill, EventID: "EVT", Facilities: facilities, Lanes: []string{"LANE-001"}}}
		alert, err := engine.Upsert(context.Background(), store, in, determinism.NewPinnedClock(ts), idgen, ts)
		require.NoError(t, err)

		hash, err := hashstructure.Hash(alert.Scope.Facilities, hashstructure.FormatV2, nil)
		require.NoError(t, err)
		if i > 0 {
			assert.NotEqual(t, prevHash, hash, "scope should grow with each new facility set")
		}
		prevHash = hash

		for _, prevSet := range facilitySets[:i] {
			for _, f := range prevSet {
				assert.Contains(t, alert.Scope.Facilities, f)
			}
		}
	}
}
