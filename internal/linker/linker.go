// Package linker implements C4 (§4.3): resolving an event's location hints
// and facility hints to concrete facility, lane, and shipment ids in the
// read-only network inventory, with link-confidence and link-provenance
// recorded for each channel.
package linker

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/sentinelerr"
	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
	"github.com/sentinelrisk/hardstop/internal/types"
)

// usStateToAbbr maps full US state names to their 2-letter code. Extensible
// by adding entries; unknown full names simply fail to normalize.
var usStateToAbbr = map[string]string{
	"indiana":  "IN",
	"illinois": "IL",
	"ohio":     "OH",
	"michigan": "MI",
	"kentucky": "KY",
	"texas":    "TX",
	"georgia":  "GA",
	"florida":  "FL",
}

var abbrToFullNames = func() map[string][]string {
	m := map[string][]string{}
	for full, abbr := range usStateToAbbr {
		m[abbr] = append(m[abbr], full)
	}
	return m
}()

// normalizeState uppercases 2-letter tokens and maps full names to their
// 2-letter code via usStateToAbbr (§4.3 step 2).
func normalizeState(s string) string {
	s = strings.TrimSpace(s)
	if len(s) == 2 {
		return strings.ToUpper(s)
	}
	if abbr, ok := usStateToAbbr[strings.ToLower(s)]; ok {
		return abbr
	}
	return strings.ToUpper(s)
}

// stateForms returns the 2-letter code plus any full name that maps to it,
// so a facility row storing either form still matches.
func stateForms(normalized string) []string {
	forms := []string{normalized}
	forms = append(forms, abbrToFullNames[normalized]...)
	return forms
}

var cityStateRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*),\s+([A-Z]{2}|[A-Z][a-z]+)\b`)
var facilityIDRe = regexp.MustCompile(`\b([A-Z]+-\d+)\b`)

const (
	confidenceProvided           = 1.0
	confidenceCityStateUnique    = 0.75
	confidenceCityStateAmbiguous = 0.55
	confidenceFacilityIDExact    = 1.0
	confidenceLaneFound          = 0.75
	confidenceShipmentFound      = 0.60
)

// Options configures the linker's tunable bounds. Zero-value Options uses
// the default bounds (30 days ahead, cap 50).
type Options struct {
	DaysAhead   int
	ShipmentCap int
}

func (o Options) withDefaults() Options {
	if o.DaysAhead == 0 {
		o.DaysAhead = 30
	}
	if o.ShipmentCap == 0 {
		o.ShipmentCap = 50
	}
	return o
}

// Linker resolves events against the inventory held in db.
type Linker struct {
	db   *sqlite.SQLiteStorage
	opts Options
}

// New returns a Linker with the given options (zero value uses defaults).
func New(db *sqlite.SQLiteStorage, opts Options) *Linker {
	return &Linker{db: db, opts: opts.withDefaults()}
}

// Link resolves facilities, lanes, and shipments for ev in place, using
// clock for "today" (§4.3: "today must be taken from the injected clock,
// never from wall time").
func (l *Linker) Link(ctx context.Context, ev *types.Event, clock determinism.Clock) error {
	if ev.LinkConfidence == nil {
		ev.LinkConfidence = map[string]float64{}
	}
	if ev.LinkProvenance == nil {
		ev.LinkProvenance = map[string]string{}
	}

	if err := l.resolveFacilities(ctx, ev); err != nil {
		return &sentinelerr.StoreError{Op: "resolve facilities", Cause: err}
	}
	if err := l.resolveLanes(ctx, ev); err != nil {
		return &sentinelerr.StoreError{Op: "resolve lanes", Cause: err}
	}
	if err := l.resolveShipments(ctx, ev, clock); err != nil {
		return &sentinelerr.StoreError{Op: "resolve shipments", Cause: err}
	}
	return nil
}

func (l *Linker) resolveFacilities(ctx context.Context, ev *types.Event) error {
	// Step 1: already-provided facility ids are accepted as-is.
	if len(ev.Facilities) > 0 {
		ev.Facilities = dedupeSorted(ev.Facilities)
		ev.LinkProvenance["facility"] = types.ProvenanceProvided
		ev.LinkConfidence["facility"] = confidenceProvided
		ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("facility", "using pre-specified facilities"))
		return nil
	}

	text := ev.Title + " " + ev.RawText

	// Step 2: city/state extraction.
	city, state := extractCityState(ev.LocationHint, text)
	if city != "" && state != "" {
		forms := stateForms(normalizeState(state))
		facilities, err := l.db.FindFacilitiesByCityState(ctx, city, forms)
		if err != nil {
			return err
		}
		if len(facilities) == 1 {
			ev.Facilities = []string{facilities[0].FacilityID}
			ev.LinkProvenance["facility"] = types.ProvenanceCityState
			ev.LinkConfidence["facility"] = confidenceCityStateUnique
			ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("facility", "matched by city/state: "+city+", "+state))
			return nil
		}
		if len(facilities) > 1 {
			ids := make([]string, len(facilities))
			for i, f := range facilities {
				ids[i] = f.FacilityID
			}
			ev.Facilities = dedupeSorted(ids)
			ev.LinkProvenance["facility"] = types.ProvenanceCityStateAmbiguous
			ev.LinkConfidence["facility"] = confidenceCityStateAmbiguous
			ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("facility", "ambiguous city/state match: "+city+", "+state))
			return nil
		}
		ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("facility", "no facility match for city/state: "+city+", "+state))
	}

	// Step 3: facility-id token scan.
	tokens := facilityIDRe.FindAllString(strings.ToUpper(text), -1)
	if len(tokens) > 0 {
		exists, err := l.db.FacilityIDsExist(ctx, dedupeSorted(tokens))
		if err != nil {
			return err
		}
		var matched []string
		for _, tok := range tokens {
			if exists[tok] {
				matched = append(matched, tok)
			}
		}
		if len(matched) > 0 {
			ev.Facilities = dedupeSorted(matched)
			ev.LinkProvenance["facility"] = types.ProvenanceFacilityIDExact
			ev.LinkConfidence["facility"] = confidenceFacilityIDExact
			ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("facility", "matched facility id tokens in text"))
			return nil
		}
	}

	// Step 4: no match.
	ev.Facilities = nil
	ev.LinkProvenance["facility"] = ""
	ev.LinkConfidence["facility"] = 0.0
	ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("facility", "no facility resolution possible"))
	return nil
}

func (l *Linker) resolveLanes(ctx context.Context, ev *types.Event) error {
	if len(ev.Facilities) == 0 {
		ev.LinkConfidence["lanes"] = 0.0
		return nil
	}
	lanes, err := l.db.GetLanesByFacilityIDs(ctx, ev.Facilities)
	if err != nil {
		return err
	}
	if len(lanes) == 0 {
		ev.LinkConfidence["lanes"] = 0.0
		ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("lanes", "no lanes found for linked facilities"))
		return nil
	}
	ids := make([]string, len(lanes))
	for i, ln := range lanes {
		ids[i] = ln.LaneID
	}
	ev.Lanes = dedupeSorted(ids)
	ev.LinkConfidence["lanes"] = confidenceLaneFound
	ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("lanes", "linked lanes via facility match"))
	return nil
}

func (l *Linker) resolveShipments(ctx context.Context, ev *types.Event, clock determinism.Clock) error {
	if len(ev.Lanes) == 0 {
		ev.LinkConfidence["shipments"] = 0.0
		return nil
	}
	shipments, err := l.db.GetShipmentsByLaneIDs(ctx, ev.Lanes)
	if err != nil {
		return err
	}

	today := clock.Now().UTC()
	windowEnd := today.AddDate(0, 0, l.opts.DaysAhead)

	var eligible []types.Shipment
	for _, sh := range shipments {
		if inWindow(sh.ShipDate, today, windowEnd) || inWindow(sh.ETADate, today, windowEnd) {
			eligible = append(eligible, sh)
			continue
		}
		if sh.ShipDate == nil && sh.ETADate == nil {
			switch sh.Status {
			case "PENDING", "IN_TRANSIT", "SCHEDULED":
				eligible = append(eligible, sh)
			}
		}
	}

	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ShipmentID < eligible[j].ShipmentID })

	total := len(eligible)
	truncated := false
	if len(eligible) > l.opts.ShipmentCap {
		eligible = eligible[:l.opts.ShipmentCap]
		truncated = true
	}

	ids := make([]string, len(eligible))
	for i, sh := range eligible {
		ids[i] = sh.ShipmentID
	}
	ev.Shipments = ids
	ev.ShipmentsTotalLinked = total
	ev.ShipmentsTruncated = truncated

	if len(ids) > 0 {
		ev.LinkConfidence["shipments"] = confidenceShipmentFound
		ev.LinkingNotes = append(ev.LinkingNotes, sentinelerr.LinkingNote("shipments", "linked shipments via lanes"))
	} else {
		ev.LinkConfidence["shipments"] = 0.0
	}
	return nil
}

func inWindow(t *time.Time, start, end time.Time) bool {
	if t == nil {
		return false
	}
	return !t.Before(start) && !t.After(end)
}

func extractCityState(hint, text string) (string, string) {
	if hint != "" {
		if m := cityStateRe.FindStringSubmatch(hint); m != nil {
			return m[1], m[2]
		}
	}
	if m := cityStateRe.FindStringSubmatch(text); m != nil {
		return m[1], m[2]
	}
	return "", ""
}

func dedupeSorted(items []string) []string {
	seen := make(map[string]bool, len(items))
	var out []string
	for _, item := range items {
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	sort.Strings(out)
	return out
}
