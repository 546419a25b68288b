// Package evidence implements C8 (§4.7): assembling per-alert diagnostics
// and the immutable incident-evidence JSON artifact that backs an alert.
package evidence

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/sentinelerr"
	"github.com/sentinelrisk/hardstop/internal/types"
)

// Correlation mirrors §4.7's evidence.correlation sub-record.
type Correlation struct {
	Key     string `json:"key"`
	Action  string `json:"action,omitempty"`
	AlertID string `json:"alert_id"`
}

// Source mirrors §4.7's evidence.source sub-record, present only when a
// source id is available.
type Source struct {
	ID        string     `json:"id"`
	Tier      types.Tier `json:"tier"`
	RawID     string     `json:"raw_id"`
	URL       string     `json:"url,omitempty"`
	TrustTier int        `json:"trust_tier"`
}

// IncidentArtifact is the self-contained JSON document written to disk,
// pairing the merged inputs with merge reasons and, in pinned mode, the
// determinism context (§4.7).
type IncidentArtifact struct {
	AlertID            string                 `json:"alert_id"`
	EventID            string                 `json:"event_id"`
	CorrelationKey     string                 `json:"correlation_key"`
	Event              types.Event            `json:"event"`
	Scope              types.AlertScope       `json:"scope"`
	Diagnostics        types.AlertDiagnostics `json:"diagnostics"`
	MergeReasons       []string               `json:"merge_reasons"`
	MergeSummary       string                 `json:"merge_summary"`
	DeterminismMode    string                 `json:"determinism_mode"`
	DeterminismContext *determinism.Context   `json:"determinism_context,omitempty"`
	Hash               string                 `json:"hash"`
}

// Builder assembles evidence artifacts under dir.
type Builder struct {
	dir string
}

// New returns a Builder writing artifacts under dir.
func New(dir string) *Builder {
	return &Builder{dir: dir}
}

// Filename implements §4.7's naming scheme.
func Filename(alertID, eventID, correlationKey string) string {
	safeKey := strings.ReplaceAll(correlationKey, "|", "_")
	return fmt.Sprintf("%s__%s__%s.json", alertID, eventID, safeKey)
}

// BuildDiagnostics assembles the diagnostics sub-record (§4.7).
func BuildDiagnostics(ev types.Event, impactScore int, breakdown []string, rationale string, qv types.QualityValidation) types.AlertDiagnostics {
	return types.AlertDiagnostics{
		LinkConfidence:       ev.LinkConfidence,
		LinkProvenance:       ev.LinkProvenance,
		ShipmentsTotalLinked: ev.ShipmentsTotalLinked,
		ShipmentsTruncated:   ev.ShipmentsTruncated,
		ImpactScore:          impactScore,
		ImpactScoreBreakdown: breakdown,
		ImpactScoreRationale: rationale,
		QualityValidation:    qv,
	}
}

// Write builds and persists the incident artifact for alert/event, scoped
// to the correlation key and merge reasons supplied by the caller. It
// returns the artifact's canonical-JSON SHA-256 hash and the path it wrote
// to. Re-writing identical content yields the same path and hash (§5:
// evidence files are write-once by filename).
func (b *Builder) Write(alert types.Alert, ev types.Event, mergeReasons []string, mergeSummary string, scope *determinism.Scope) (string, string, error) {
	artifact := IncidentArtifact{
		AlertID:        alert.AlertID,
		EventID:        ev.EventID,
		CorrelationKey: alert.CorrelationKey,
		Event:          ev,
		Scope:          alert.Scope,
		Diagnostics:    alert.Diagnostics,
		MergeReasons:   mergeReasons,
		MergeSummary:   mergeSummary,
	}
	if scope.Pinned {
		artifact.DeterminismMode = "pinned"
		artifact.DeterminismContext = scope.DeterminismContext()
	} else {
		artifact.DeterminismMode = "live"
	}

	hash, err := determinism.ArtifactHash(artifact)
	if err != nil {
		return "", "", err
	}
	artifact.Hash = hash

	body, err := determinism.CanonicalJSON(artifact)
	if err != nil {
		return "", "", err
	}

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", "", err
	}
	filename := Filename(alert.AlertID, ev.EventID, alert.CorrelationKey)
	path := filepath.Join(b.dir, filename)

	if err := writeIfAbsentOrIdentical(path, body, scope.Pinned); err != nil {
		return "", "", err
	}

	return path, hash, nil
}

// writeIfAbsentOrIdentical writes body to path unless a file already exists
// there with identical content, honoring the write-once-by-filename rule
// from §5. In a pinned scope, a file already present at path with different
// content means this replay diverged from the run it was pinned against;
// that is reported as a *sentinelerr.DeterminismViolation rather than
// silently overwritten. Live-mode divergence (clock/inputs genuinely
// changed between calls) is expected and still overwrites.
func writeIfAbsentOrIdentical(path string, body []byte, pinned bool) error {
	existing, err := os.ReadFile(path)
	if err == nil {
		if string(existing) == string(body) {
			return nil
		}
		if pinned {
			return &sentinelerr.DeterminismViolation{
				Reason: fmt.Sprintf("pinned replay wrote different content for existing evidence file %s", path),
			}
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, body, 0o644)
}
