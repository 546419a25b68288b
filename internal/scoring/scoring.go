// Package scoring implements C5 (§4.4): the integer impact score derived
// from an event's linked network state and text, and the classification
// that score maps to before any quality cap is applied.
package scoring

import (
	"context"
	"strings"
	"time"

	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
	"github.com/sentinelrisk/hardstop/internal/types"
)

// Result is the scorer's output: the clamped score, the rules that fired
// in rule order, and a short rationale joining them.
type Result struct {
	Score     int
	Breakdown []string
	Rationale string
}

var highImpactTextTokens = []string{"SPILL", "STRIKE", "CLOSURE", "CLOSED", "SHUTDOWN"}

// Score computes the impact score for ev using linked facilities, lanes,
// and shipments fetched from db, and clock for the R5 eta-proximity rule.
func Score(ctx context.Context, db *sqlite.SQLiteStorage, ev types.Event, clock determinism.Clock) (Result, error) {
	var breakdown []string
	score := 0

	facilities, err := db.GetFacilitiesByIDs(ctx, ev.Facilities)
	if err != nil {
		return Result{}, err
	}
	lanes, err := db.GetLanesByIDs(ctx, ev.Lanes)
	if err != nil {
		return Result{}, err
	}
	shipments, err := db.GetShipmentsByIDs(ctx, ev.Shipments)
	if err != nil {
		return Result{}, err
	}

	// R1: any linked facility has criticality >= 7.
	for _, f := range facilities {
		if f.Criticality >= 7 {
			score += 2
			breakdown = append(breakdown, "R1: linked facility criticality >= 7 (+2)")
			break
		}
	}

	// R2: any linked lane has volume >= 7.
	for _, l := range lanes {
		if l.VolumeScore >= 7 {
			score += 1
			breakdown = append(breakdown, "R2: linked lane volume >= 7 (+1)")
			break
		}
	}

	// R3: any linked shipment has priority_flag set.
	priorityCount := 0
	for _, s := range shipments {
		if s.PriorityFlag {
			priorityCount++
		}
	}
	if priorityCount > 0 {
		score += 1
		breakdown = append(breakdown, "R3: priority shipment linked (+1)")
	}

	// R4: >= 5 priority shipments.
	if priorityCount >= 5 {
		score += 1
		breakdown = append(breakdown, "R4: >= 5 priority shipments (+1)")
	}

	// R5: any priority shipment eta within 48h of injected clock.
	now := clock.Now()
	for _, s := range shipments {
		if s.PriorityFlag && s.ETADate != nil {
			delta := s.ETADate.Sub(now)
			if delta >= 0 && delta <= 48*time.Hour {
				score += 1
				breakdown = append(breakdown, "R5: priority shipment eta within 48h (+1)")
				break
			}
		}
	}

	// R6: linked shipment count >= 10.
	if len(shipments) >= 10 {
		score += 1
		breakdown = append(breakdown, "R6: linked shipment count >= 10 (+1)")
	}

	// R7: event_type in {SPILL, STRIKE, CLOSURE} or uppercased text contains
	// any of {SPILL, STRIKE, CLOSURE, CLOSED, SHUTDOWN}.
	switch ev.EventType {
	case types.EventSpill, types.EventStrike, types.EventClosure:
		score += 1
		breakdown = append(breakdown, "R7: event_type is high-impact (+1)")
	default:
		upper := strings.ToUpper(ev.Title + " " + ev.RawText)
		matched := false
		for _, tok := range highImpactTextTokens {
			if strings.Contains(upper, tok) {
				matched = true
				break
			}
		}
		if matched {
			score += 1
			breakdown = append(breakdown, "R7: text contains high-impact keyword (+1)")
		}
	}

	score += ev.WeightingBias + tierBonus(ev.TrustTier)

	if score < 0 {
		score = 0
	}
	if score > 10 {
		score = 10
	}

	return Result{
		Score:     score,
		Breakdown: breakdown,
		Rationale: strings.Join(breakdown, "; "),
	}, nil
}

func tierBonus(trustTier int) int {
	switch trustTier {
	case 3:
		return 1
	case 1:
		return -1
	default:
		return 0
	}
}

// MapToClassification maps a raw impact score to its unclamped
// classification, before any quality cap is applied (§4.4).
func MapToClassification(score int) int {
	switch {
	case score >= 4:
		return 2
	case score == 2 || score == 3:
		return 1
	default:
		return 0
	}
}
