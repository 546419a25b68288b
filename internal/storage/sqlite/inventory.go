package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sentinelrisk/hardstop/internal/types"
)

// inClause builds a "(?, ?, ...)" placeholder group and its args for an IN
// query over ids. Returns ("(NULL)", nil) for an empty id set so the
// resulting query matches nothing instead of erroring on empty IN().
func inClause(ids []string) (string, []any) {
	if len(ids) == 0 {
		return "(NULL)", nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return "(" + strings.Join(placeholders, ",") + ")", args
}

func scanFacility(rows interface{ Scan(...any) error }) (types.Facility, error) {
	var f types.Facility
	err := rows.Scan(&f.FacilityID, &f.Name, &f.City, &f.State, &f.Country, &f.Criticality)
	return f, err
}

// GetFacilitiesByIDs returns the facility rows matching ids, in no
// particular order; missing ids are silently omitted.
func (s *SQLiteStorage) GetFacilitiesByIDs(ctx context.Context, ids []string) ([]types.Facility, error) {
	clause, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT facility_id, name, city, state, country, criticality FROM facilities WHERE facility_id IN %s`, clause,
	), args...)
	if err != nil {
		return nil, wrapDBError("get facilities by ids", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, wrapDBError("scan facility", err)
		}
		out = append(out, f)
	}
	return out, wrapDBError("iterate facilities", rows.Err())
}

// FindFacilitiesByCityState resolves facilities by case-insensitive city
// equality combined with state matching against any of stateForms (the
// 2-letter code and any full name that maps to it), per §4.3 step 2.
func (s *SQLiteStorage) FindFacilitiesByCityState(ctx context.Context, city string, stateForms []string) ([]types.Facility, error) {
	upperForms := make([]string, len(stateForms))
	for i, f := range stateForms {
		upperForms[i] = strings.ToUpper(f)
	}
	stateClause, stateArgs := inClause(upperForms)
	args := append([]any{city}, stateArgs...)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT facility_id, name, city, state, country, criticality
		 FROM facilities WHERE LOWER(city) = LOWER(?) AND UPPER(state) IN %s`, stateClause),
		args...)
	if err != nil {
		return nil, wrapDBError("find facilities by city/state", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, wrapDBError("scan facility", err)
		}
		out = append(out, f)
	}
	return out, wrapDBError("iterate facilities", rows.Err())
}

// FacilityIDsExist returns the subset of ids that exist in the facility
// table, preserving no particular order (§4.3 step 3: facility-id token
// scan keeps only tokens that exist in the facility table).
func (s *SQLiteStorage) FacilityIDsExist(ctx context.Context, ids []string) (map[string]bool, error) {
	clause, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT facility_id FROM facilities WHERE facility_id IN %s`, clause), args...)
	if err != nil {
		return nil, wrapDBError("check facility ids exist", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapDBError("scan facility id", err)
		}
		out[id] = true
	}
	return out, wrapDBError("iterate facility ids", rows.Err())
}

// GetLanesByFacilityIDs returns every lane whose origin or destination is
// in facilityIDs (§4.3: lane resolution).
func (s *SQLiteStorage) GetLanesByFacilityIDs(ctx context.Context, facilityIDs []string) ([]types.Lane, error) {
	clause, args := inClause(facilityIDs)
	fullArgs := append(append([]any{}, args...), args...)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT lane_id, origin_id, dest_id, volume_score FROM lanes
		 WHERE origin_id IN %s OR dest_id IN %s`, clause, clause), fullArgs...)
	if err != nil {
		return nil, wrapDBError("get lanes by facility ids", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Lane
	for rows.Next() {
		var l types.Lane
		if err := rows.Scan(&l.LaneID, &l.OriginID, &l.DestID, &l.VolumeScore); err != nil {
			return nil, wrapDBError("scan lane", err)
		}
		out = append(out, l)
	}
	return out, wrapDBError("iterate lanes", rows.Err())
}

// GetLanesByIDs returns lane rows matching ids.
func (s *SQLiteStorage) GetLanesByIDs(ctx context.Context, ids []string) ([]types.Lane, error) {
	clause, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT lane_id, origin_id, dest_id, volume_score FROM lanes WHERE lane_id IN %s`, clause), args...)
	if err != nil {
		return nil, wrapDBError("get lanes by ids", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Lane
	for rows.Next() {
		var l types.Lane
		if err := rows.Scan(&l.LaneID, &l.OriginID, &l.DestID, &l.VolumeScore); err != nil {
			return nil, wrapDBError("scan lane", err)
		}
		out = append(out, l)
	}
	return out, wrapDBError("iterate lanes", rows.Err())
}

func scanShipment(row interface{ Scan(...any) error }) (types.Shipment, error) {
	var sh types.Shipment
	var shipDate, etaDate sql.NullString
	err := row.Scan(&sh.ShipmentID, &sh.LaneID, &shipDate, &etaDate, &sh.Status, &sh.PriorityFlag)
	if err != nil {
		return types.Shipment{}, err
	}
	if shipDate.Valid {
		if t, perr := time.Parse("2006-01-02", shipDate.String); perr == nil {
			sh.ShipDate = &t
		}
	}
	if etaDate.Valid {
		if t, perr := time.Parse("2006-01-02", etaDate.String); perr == nil {
			sh.ETADate = &t
		}
	}
	return sh, nil
}

// GetShipmentsByLaneIDs returns every shipment whose lane id is in
// laneIDs (§4.3: shipment resolution, pre-filter stage).
func (s *SQLiteStorage) GetShipmentsByLaneIDs(ctx context.Context, laneIDs []string) ([]types.Shipment, error) {
	clause, args := inClause(laneIDs)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT shipment_id, lane_id, ship_date, eta_date, status, priority_flag
		 FROM shipments WHERE lane_id IN %s`, clause), args...)
	if err != nil {
		return nil, wrapDBError("get shipments by lane ids", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, wrapDBError("scan shipment", err)
		}
		out = append(out, sh)
	}
	return out, wrapDBError("iterate shipments", rows.Err())
}

// GetShipmentsByIDs returns shipment rows matching ids, used by the impact
// scorer to re-fetch priority/eta details for an event's linked shipments.
func (s *SQLiteStorage) GetShipmentsByIDs(ctx context.Context, ids []string) ([]types.Shipment, error) {
	clause, args := inClause(ids)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT shipment_id, lane_id, ship_date, eta_date, status, priority_flag
		 FROM shipments WHERE shipment_id IN %s`, clause), args...)
	if err != nil {
		return nil, wrapDBError("get shipments by ids", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Shipment
	for rows.Next() {
		sh, err := scanShipment(rows)
		if err != nil {
			return nil, wrapDBError("scan shipment", err)
		}
		out = append(out, sh)
	}
	return out, wrapDBError("iterate shipments", rows.Err())
}
