// Package correlate implements C7 (§4.6): building the correlation key for
// an event, finding a recent alert sharing that key, and upserting the
// alert with a monotonically-growing scope.
package correlate

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/types"
)

const correlationWindowDays = 7

// BuildCorrelationKey forms "{risk_bucket}|{first_facility}|{first_lane}"
// (§4.6). Permuting ev.Facilities/ev.Lanes never changes the result, since
// both are reduced to their lexicographic minimum.
func BuildCorrelationKey(ev types.Event) string {
	bucket := riskBucket(ev)
	facility := firstOrNone(ev.Facilities)
	lane := firstOrNone(ev.Lanes)
	return bucket + "|" + facility + "|" + lane
}

func riskBucket(ev types.Event) string {
	if ev.EventType != "" && ev.EventType != types.EventOther {
		return string(ev.EventType)
	}
	text := strings.ToLower(ev.Title + " " + ev.RawText)
	switch {
	case strings.Contains(text, "spill"):
		return "SPILL"
	case strings.Contains(text, "strike") || strings.Contains(text, "walkout"):
		return "STRIKE"
	case strings.Contains(text, "closure") || strings.Contains(text, "closed") ||
		strings.Contains(text, "shutdown") || strings.Contains(text, "shut down"):
		return "CLOSURE"
	default:
		return "GENERAL"
	}
}

func firstOrNone(ids []string) string {
	if len(ids) == 0 {
		return "NONE"
	}
	sorted := append([]string{}, ids...)
	sort.Strings(sorted)
	return sorted[0]
}

// mergeScope implements §4.6's `_merge_scope`: union-preserve-order per
// field (existing first, new appended, first occurrence wins), total-linked
// as the max of the two counts, and truncated as their logical OR.
func mergeScope(existing, incoming types.AlertScope) types.AlertScope {
	return types.AlertScope{
		Facilities:           unionPreserveOrder(existing.Facilities, incoming.Facilities),
		Lanes:                unionPreserveOrder(existing.Lanes, incoming.Lanes),
		Shipments:            unionPreserveOrder(existing.Shipments, incoming.Shipments),
		ShipmentsTotalLinked: maxInt(existing.ShipmentsTotalLinked, incoming.ShipmentsTotalLinked),
		ShipmentsTruncated:   existing.ShipmentsTruncated || incoming.ShipmentsTruncated,
	}
}

func unionPreserveOrder(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, id := range append(append([]string{}, a...), b...) {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// BuildInput is everything correlate.Upsert needs to produce an alert,
// already computed by the earlier pipeline stages.
type BuildInput struct {
	Event          types.Event
	Classification int
	ImpactScore    int
	Diagnostics    types.AlertDiagnostics
	Reasoning      []string
}

// alertStore is the slice of storage operations Upsert needs, satisfied by
// both *sqlite.SQLiteStorage and *sqlite.Tx so the caller can run a lookup
// and its matching insert/update inside one transaction.
type alertStore interface {
	FindRecentAlertByKey(ctx context.Context, key string, windowDays int, now time.Time) (types.Alert, bool, error)
	InsertAlert(ctx context.Context, a types.Alert) error
	UpdateAlert(ctx context.Context, a types.Alert) error
}

// Engine drives the correlation engine. It holds no state of its own; the
// store to operate against is supplied per call so it can be the item's
// transaction rather than a connection bound at construction time.
type Engine struct{}

// New returns a correlation Engine.
func New() *Engine {
	return &Engine{}
}

// Upsert finds a recent alert sharing in.Event's correlation key and
// either creates a new alert or merges in.Event's scope into the existing
// one (§4.6). All work happens against store, which the caller passes in
// as its per-item transaction so the lookup and the insert/update it
// decides between commit or roll back together.
func (e *Engine) Upsert(ctx context.Context, store alertStore, in BuildInput, clock determinism.Clock, idgen *determinism.IDGenerator, fetchedAt time.Time) (types.Alert, error) {
	key := BuildCorrelationKey(in.Event)
	now := clock.Now()

	existing, found, err := store.FindRecentAlertByKey(ctx, key, correlationWindowDays, now)
	if err != nil {
		return types.Alert{}, err
	}

	incomingScope := types.AlertScope{
		Facilities:           in.Event.Facilities,
		Lanes:                in.Event.Lanes,
		Shipments:            in.Event.Shipments,
		ShipmentsTotalLinked: in.Event.ShipmentsTotalLinked,
		ShipmentsTruncated:   in.Event.ShipmentsTruncated,
	}

	if !found {
		alert := types.Alert{
			AlertID:           idgen.AlertID(clock),
			RiskType:          riskBucket(in.Event),
			Classification:    in.Classification,
			Status:            types.AlertOpen,
			Summary:           in.Event.Title,
			RootEventID:       in.Event.EventID,
			CorrelationKey:    key,
			Scope:             incomingScope,
			ImpactScore:       in.ImpactScore,
			Diagnostics:       in.Diagnostics,
			Reasoning:         in.Reasoning,
			FirstSeenUTC:      fetchedAt,
			LastSeenUTC:       fetchedAt,
			UpdateCount:       1,
			Tier:              in.Event.Tier,
			SourceID:          in.Event.SourceID,
			TrustTier:         in.Event.TrustTier,
			CorrelationAction: types.CorrelationCreated,
		}
		if err := store.InsertAlert(ctx, alert); err != nil {
			return types.Alert{}, err
		}
		return alert, nil
	}

	existing.Scope = mergeScope(existing.Scope, incomingScope)
	existing.Summary = in.Event.Title
	existing.Classification = in.Classification
	existing.RootEventID = in.Event.EventID
	existing.ImpactScore = in.ImpactScore
	existing.Diagnostics = in.Diagnostics
	existing.Reasoning = in.Reasoning
	existing.Tier = in.Event.Tier
	existing.SourceID = in.Event.SourceID
	existing.TrustTier = in.Event.TrustTier
	existing.LastSeenUTC = fetchedAt
	existing.UpdateCount++
	existing.CorrelationAction = types.CorrelationUpdated
	existing.Status = types.AlertUpdated

	if err := store.UpdateAlert(ctx, existing); err != nil {
		return types.Alert{}, err
	}
	return existing, nil
}
