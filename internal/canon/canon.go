// Package canon implements C3 (§4.2): turning a raw item plus its source
// configuration into a canonical Event, injecting trust metadata and
// recording a canonicalization run record for audit.
package canon

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/sentinelerr"
	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
	"github.com/sentinelrisk/hardstop/internal/types"
)

var errNonStringBodyField = errors.New("canon: body field is not a string")

// keywordGroup pairs an event type with its ordered keyword set (§4.2).
type keywordGroup struct {
	eventType types.EventType
	keywords  []string
}

var keywordGroups = []keywordGroup{
	{types.EventWeather, []string{
		"hurricane", "tornado", "flood", "storm", "blizzard", "snow", "ice", "warning",
		"watch", "alert", "severe weather", "thunderstorm", "wind", "hail", "freeze", "frost",
		"heat", "drought",
	}},
	{types.EventSpill, []string{
		"spill", "leak", "contamination", "chemical release", "hazardous material",
		"oil spill", "toxic", "pollution",
	}},
	{types.EventStrike, []string{
		"strike", "labor dispute", "work stoppage", "union", "walkout", "picketing", "lockout",
	}},
	{types.EventClosure, []string{
		"closure", "closed", "shutdown", "shut down", "suspended", "halted", "blocked",
		"barricade", "evacuation", "emergency closure",
	}},
	{types.EventReg, []string{
		"regulation", "regulatory", "compliance", "violation", "fine", "penalty",
		"inspection", "audit", "sanction", "ban", "prohibition",
	}},
	{types.EventRecall, []string{
		"recall", "recalled", "withdrawal", "removed from market", "voluntary recall",
	}},
}

var locationRe = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*),\s+([A-Z]{2}|[A-Z][a-z]+)\b`)

var payloadLocationFields = []string{"areaDesc", "location", "area", "region", "city", "state"}

// Canonicalizer turns raw items into canonical events.
type Canonicalizer struct {
	idgen  *determinism.IDGenerator
	record bool
}

// New returns a Canonicalizer. record controls whether a canonicalization
// run row is written per event (disabled in tests that don't need audit).
func New(idgen *determinism.IDGenerator, record bool) *Canonicalizer {
	return &Canonicalizer{idgen: idgen, record: record}
}

// Canonicalize builds an Event from item and src (§4.2), recording the
// canonicalization run inside tx when auditing is enabled. A structural
// payload error is returned as an *sentinelerr.ItemParseError.
func (c *Canonicalizer) Canonicalize(ctx context.Context, tx *sqlite.Tx, item types.RawItem, src types.SourceConfig) (types.Event, error) {
	body, err := extractBody(item.Payload)
	if err != nil {
		return types.Event{}, &sentinelerr.ItemParseError{RawID: item.RawID, Cause: err}
	}

	ev := types.Event{
		SourceID:            src.ID,
		RawID:               item.RawID,
		Tier:                item.Tier,
		TrustTier:           defaultInt(src.TrustTier, 2),
		ClassificationFloor: src.ClassificationFloor,
		WeightingBias:       src.WeightingBias,
		Title:               item.Title,
		RawText:             body,
	}

	ev.EventType = classify(ev.Title, ev.RawText)
	ev.LocationHint = locationHint(src, item.Payload, ev.Title, ev.RawText)
	ev.EventID = c.assignEventID(item)

	hash, err := determinism.ArtifactHash(ev)
	if err != nil {
		return types.Event{}, &sentinelerr.ItemParseError{RawID: item.RawID, Cause: err}
	}

	if c.record {
		if err := tx.RecordCanonicalizationRun(ctx, item.ContentHash, hash); err != nil {
			return types.Event{}, &sentinelerr.StoreError{Op: "record canonicalization run", Cause: err}
		}
	}

	return ev, nil
}

func (c *Canonicalizer) assignEventID(item types.RawItem) string {
	if item.CanonicalID != "" {
		return item.CanonicalID
	}
	if item.RawID != "" {
		return item.RawID
	}
	return c.idgen.EventID()
}

// classify scans lowercased title+body against keywordGroups in order;
// first match wins (§4.2 step 1).
func classify(title, body string) types.EventType {
	text := strings.ToLower(title + " " + body)
	for _, group := range keywordGroups {
		for _, kw := range group.keywords {
			if strings.Contains(text, kw) {
				return group.eventType
			}
		}
	}
	return types.EventOther
}

// locationHint builds the location hint from geo config, then payload
// fields, then a text regex scan (§4.2 step 2).
func locationHint(src types.SourceConfig, payload map[string]any, title, body string) string {
	if src.GeoCity != "" || src.GeoState != "" {
		parts := []string{src.GeoCity, src.GeoState, src.GeoCountry}
		var nonEmpty []string
		for _, p := range parts {
			if p != "" {
				nonEmpty = append(nonEmpty, p)
			}
		}
		return strings.Join(nonEmpty, ", ")
	}

	for _, field := range payloadLocationFields {
		if v, ok := payload[field]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}

	if m := locationRe.FindString(title); m != "" {
		return m
	}
	if m := locationRe.FindString(body); m != "" {
		return m
	}
	return ""
}

// extractBody pulls a best-effort text body out of an item's payload,
// surfacing a structural error when the first body field present is not a
// string.
func extractBody(payload map[string]any) (string, error) {
	if payload == nil {
		return "", nil
	}
	for _, field := range []string{"body", "description", "summary", "text"} {
		if v, ok := payload[field]; ok {
			s, ok := v.(string)
			if !ok {
				return "", errNonStringBodyField
			}
			return s, nil
		}
	}
	return "", nil
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
