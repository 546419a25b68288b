package rawstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
	"github.com/sentinelrisk/hardstop/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.New(context.Background(), t.TempDir()+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, determinism.NewPinnedIDGenerator(1))
}

func TestSaveRawItem_DedupeIdempotence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	candidate := types.RawItemCandidate{
		CanonicalID: "wx-001",
		Title:       "Severe storm warning",
		URL:         "https://example.test/wx-001",
		Payload:     map[string]any{"area": "Dallas, TX"},
	}

	first, err := store.SaveRawItem(ctx, "source-a", types.TierGlobal, candidate, time.Unix(1000, 0))
	require.NoError(t, err)

	second, err := store.SaveRawItem(ctx, "source-a", types.TierGlobal, candidate, time.Unix(2000, 0))
	require.NoError(t, err)

	assert.Equal(t, first.RawID, second.RawID)
	assert.Equal(t, types.RawStatusNew, second.Status)

	items, err := store.GetRawItemsForIngest(ctx, 0, "", "", 0, time.Unix(3000, 0))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, time.Unix(2000, 0).UTC(), items[0].FetchedAt)
}

func TestSaveRawItem_DedupeByContentHashWhenNoCanonicalID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	candidate := types.RawItemCandidate{
		Title:   "Port closure notice",
		URL:     "https://example.test/a",
		Payload: map[string]any{"k": "v"},
	}

	first, err := store.SaveRawItem(ctx, "source-b", types.TierRegional, candidate, time.Unix(10, 0))
	require.NoError(t, err)
	second, err := store.SaveRawItem(ctx, "source-b", types.TierRegional, candidate, time.Unix(20, 0))
	require.NoError(t, err)

	assert.Equal(t, first.RawID, second.RawID)
}

func TestGetRawItemsForIngest_TierFilterRespectsRank(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.SaveRawItem(ctx, "s1", types.TierLocal, types.RawItemCandidate{CanonicalID: "a"}, time.Unix(1, 0))
	require.NoError(t, err)
	_, err = store.SaveRawItem(ctx, "s1", types.TierGlobal, types.RawItemCandidate{CanonicalID: "b"}, time.Unix(2, 0))
	require.NoError(t, err)

	items, err := store.GetRawItemsForIngest(ctx, 0, types.TierRegional, "", 0, time.Unix(100, 0))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, types.TierGlobal, items[0].Tier)
}

func TestMarkRawItemStatus_IdempotentForSameStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	item, err := store.SaveRawItem(ctx, "s1", types.TierGlobal, types.RawItemCandidate{CanonicalID: "a"}, time.Unix(1, 0))
	require.NoError(t, err)

	require.NoError(t, store.MarkRawItemStatus(ctx, item.RawID, types.RawStatusNormalized, ""))
	require.NoError(t, store.MarkRawItemStatus(ctx, item.RawID, types.RawStatusNormalized, ""))
}

func TestMarkRawItemStatus_ErrorsFromTerminalState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	item, err := store.SaveRawItem(ctx, "s1", types.TierGlobal, types.RawItemCandidate{CanonicalID: "a"}, time.Unix(1, 0))
	require.NoError(t, err)

	require.NoError(t, store.MarkRawItemStatus(ctx, item.RawID, types.RawStatusFailed, "boom"))
	err = store.MarkRawItemStatus(ctx, item.RawID, types.RawStatusNormalized, "")
	assert.Error(t, err)
}
