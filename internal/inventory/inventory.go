// Package inventory bootstraps the read-only network inventory (facilities,
// lanes, shipments) from CSV files, the way the original sentinel CLI's
// "ingest" subcommand loaded network data before any event ever arrived.
// Loading is idempotent. Neither the ingest pipeline nor the sentinel CLI
// calls it, so it never runs during a pipeline run (§5: inventory tables
// are read-only during ingest).
package inventory

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
)

// LoadCSV loads facilities, lanes, and shipments from the three given CSV
// paths into db, upserting by primary key so a repeated load is a no-op
// when the files are unchanged and an update when they are not.
func LoadCSV(ctx context.Context, db *sqlite.SQLiteStorage, facilitiesPath, lanesPath, shipmentsPath string) error {
	if facilitiesPath != "" {
		if err := loadFacilities(ctx, db, facilitiesPath); err != nil {
			return fmt.Errorf("load facilities: %w", err)
		}
	}
	if lanesPath != "" {
		if err := loadLanes(ctx, db, lanesPath); err != nil {
			return fmt.Errorf("load lanes: %w", err)
		}
	}
	if shipmentsPath != "" {
		if err := loadShipments(ctx, db, shipmentsPath); err != nil {
			return fmt.Errorf("load shipments: %w", err)
		}
	}
	return nil
}

// openCSV returns a csv.Reader over path along with its header->index map.
func openCSV(path string) (*csv.Reader, map[string]int, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		_ = f.Close()
		return nil, nil, nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	return r, idx, f, nil
}

func loadFacilities(ctx context.Context, db *sqlite.SQLiteStorage, path string) error {
	r, idx, f, err := openCSV(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		criticality, _ := strconv.Atoi(strings.TrimSpace(row[idx["criticality"]]))
		_, err = db.DB().ExecContext(ctx, `
			INSERT INTO facilities (facility_id, name, city, state, country, criticality)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (facility_id) DO UPDATE SET
				name = excluded.name, city = excluded.city, state = excluded.state,
				country = excluded.country, criticality = excluded.criticality
		`, row[idx["facility_id"]], row[idx["name"]], row[idx["city"]], row[idx["state"]], row[idx["country"]], criticality)
		if err != nil {
			return err
		}
	}
	return nil
}

func loadLanes(ctx context.Context, db *sqlite.SQLiteStorage, path string) error {
	r, idx, f, err := openCSV(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		volume, _ := strconv.Atoi(strings.TrimSpace(row[idx["volume_score"]]))
		_, err = db.DB().ExecContext(ctx, `
			INSERT INTO lanes (lane_id, origin_id, dest_id, volume_score)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (lane_id) DO UPDATE SET
				origin_id = excluded.origin_id, dest_id = excluded.dest_id, volume_score = excluded.volume_score
		`, row[idx["lane_id"]], row[idx["origin_id"]], row[idx["dest_id"]], volume)
		if err != nil {
			return err
		}
	}
	return nil
}

func loadShipments(ctx context.Context, db *sqlite.SQLiteStorage, path string) error {
	r, idx, f, err := openCSV(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		priority := strings.EqualFold(strings.TrimSpace(row[idx["priority_flag"]]), "true") || row[idx["priority_flag"]] == "1"

		var shipDate, etaDate any
		if v := strings.TrimSpace(row[idx["ship_date"]]); v != "" {
			if _, err := time.Parse("2006-01-02", v); err == nil {
				shipDate = v
			}
		}
		if v := strings.TrimSpace(row[idx["eta_date"]]); v != "" {
			if _, err := time.Parse("2006-01-02", v); err == nil {
				etaDate = v
			}
		}

		_, err = db.DB().ExecContext(ctx, `
			INSERT INTO shipments (shipment_id, lane_id, ship_date, eta_date, status, priority_flag)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (shipment_id) DO UPDATE SET
				lane_id = excluded.lane_id, ship_date = excluded.ship_date, eta_date = excluded.eta_date,
				status = excluded.status, priority_flag = excluded.priority_flag
		`, row[idx["shipment_id"]], row[idx["lane_id"]], shipDate, etaDate, row[idx["status"]], priority)
		if err != nil {
			return err
		}
	}
	return nil
}
