package sqlite

import (
	"context"
	"testing"
)

func seedInventory(t *testing.T, s *SQLiteStorage) {
	t.Helper()
	ctx := context.Background()
	_, err := s.db.ExecContext(ctx, `INSERT INTO facilities (facility_id, name, city, state, country, criticality) VALUES
		('PLANT-01', 'Plant One', 'Houston', 'TX', 'US', 8),
		('PLANT-02', 'Plant Two', 'Houston', 'TX', 'US', 5)`)
	if err != nil {
		t.Fatalf("seed facilities: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO lanes (lane_id, origin_id, dest_id, volume_score) VALUES
		('LANE-001', 'PLANT-01', 'DC-01', 8)`)
	if err != nil {
		t.Fatalf("seed lanes: %v", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO shipments (shipment_id, lane_id, ship_date, eta_date, status, priority_flag) VALUES
		('SHIP-001', 'LANE-001', '2026-01-01', '2026-01-03', 'IN_TRANSIT', 1)`)
	if err != nil {
		t.Fatalf("seed shipments: %v", err)
	}
}

func TestFindFacilitiesByCityState_MatchesCaseInsensitively(t *testing.T) {
	store := newTestStore(t)
	seedInventory(t, store)

	got, err := store.FindFacilitiesByCityState(context.Background(), "houston", []string{"TX"})
	if err != nil {
		t.Fatalf("FindFacilitiesByCityState: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d facilities, want 2 (ambiguous case)", len(got))
	}
}

func TestFacilityIDsExist_FiltersUnknownIDs(t *testing.T) {
	store := newTestStore(t)
	seedInventory(t, store)

	got, err := store.FacilityIDsExist(context.Background(), []string{"PLANT-01", "PLANT-99"})
	if err != nil {
		t.Fatalf("FacilityIDsExist: %v", err)
	}
	if !got["PLANT-01"] || got["PLANT-99"] {
		t.Errorf("FacilityIDsExist() = %v, want PLANT-01 only", got)
	}
}

func TestGetLanesByFacilityIDs_MatchesOriginOrDest(t *testing.T) {
	store := newTestStore(t)
	seedInventory(t, store)

	got, err := store.GetLanesByFacilityIDs(context.Background(), []string{"PLANT-01"})
	if err != nil {
		t.Fatalf("GetLanesByFacilityIDs: %v", err)
	}
	if len(got) != 1 || got[0].LaneID != "LANE-001" {
		t.Errorf("GetLanesByFacilityIDs() = %+v, want [LANE-001]", got)
	}
}

func TestGetShipmentsByLaneIDs_ParsesDates(t *testing.T) {
	store := newTestStore(t)
	seedInventory(t, store)

	got, err := store.GetShipmentsByLaneIDs(context.Background(), []string{"LANE-001"})
	if err != nil {
		t.Fatalf("GetShipmentsByLaneIDs: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d shipments, want 1", len(got))
	}
	if got[0].ShipDate == nil || got[0].ETADate == nil {
		t.Error("expected ship_date and eta_date to parse")
	}
	if !got[0].PriorityFlag {
		t.Error("expected priority_flag true")
	}
}
