package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
)

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV_PopulatesInventoryTables(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.New(context.Background(), dir+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	facilities := writeCSV(t, dir, "facilities.csv",
		"facility_id,name,city,state,country,criticality\nPLANT-01,Plant One,Houston,TX,US,8\n")
	lanes := writeCSV(t, dir, "lanes.csv",
		"lane_id,origin_id,dest_id,volume_score\nLANE-001,PLANT-01,DC-01,8\n")
	shipments := writeCSV(t, dir, "shipments.csv",
		"shipment_id,lane_id,ship_date,eta_date,status,priority_flag\nSHIP-001,LANE-001,2026-01-01,2026-01-03,IN_TRANSIT,true\n")

	require.NoError(t, LoadCSV(context.Background(), db, facilities, lanes, shipments))

	var criticality int
	require.NoError(t, db.DB().QueryRow(`SELECT criticality FROM facilities WHERE facility_id = ?`, "PLANT-01").Scan(&criticality))
	assert.Equal(t, 8, criticality)

	var volume int
	require.NoError(t, db.DB().QueryRow(`SELECT volume_score FROM lanes WHERE lane_id = ?`, "LANE-001").Scan(&volume))
	assert.Equal(t, 8, volume)

	var priority bool
	require.NoError(t, db.DB().QueryRow(`SELECT priority_flag FROM shipments WHERE shipment_id = ?`, "SHIP-001").Scan(&priority))
	assert.True(t, priority)
}

func TestLoadCSV_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := sqlite.New(context.Background(), dir+"/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	facilities := writeCSV(t, dir, "facilities.csv",
		"facility_id,name,city,state,country,criticality\nPLANT-01,Plant One,Houston,TX,US,8\n")

	require.NoError(t, LoadCSV(context.Background(), db, facilities, "", ""))
	require.NoError(t, LoadCSV(context.Background(), db, facilities, "", ""))

	var count int
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM facilities`).Scan(&count))
	assert.Equal(t, 1, count)
}
