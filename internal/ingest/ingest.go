// Package ingest implements C10 (§4.8): the pipeline orchestrator that
// drives a batch of raw items through C3 -> C7, with per-item failure
// isolation so one bad item never blocks the rest of the batch.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sentinelrisk/hardstop/internal/canon"
	"github.com/sentinelrisk/hardstop/internal/correlate"
	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/evidence"
	"github.com/sentinelrisk/hardstop/internal/linker"
	"github.com/sentinelrisk/hardstop/internal/metrics"
	"github.com/sentinelrisk/hardstop/internal/quality"
	"github.com/sentinelrisk/hardstop/internal/rawstore"
	"github.com/sentinelrisk/hardstop/internal/scoring"
	"github.com/sentinelrisk/hardstop/internal/sentinelerr"
	"github.com/sentinelrisk/hardstop/internal/storage/sqlite"
	"github.com/sentinelrisk/hardstop/internal/types"
)

// tracer emits one span per C3->C8 pipeline stage per item. With no
// TracerProvider registered (the default outside cmd/sentinel's otel setup)
// otel.Tracer returns a no-op implementation, so spans cost nothing in tests.
var tracer = otel.Tracer("github.com/sentinelrisk/hardstop/internal/ingest")

// endSpan records err on span (if any) and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// FetchError is a distinct, typed condition an adapter raises when it
// cannot parse what it fetched from a source, carrying the source id and
// the underlying cause so the fetcher can attribute failures per source
// without corrupting the raw-item store (§6 adapter contract).
type FetchError struct {
	SourceID string
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch error for source %s: %v", e.SourceID, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// SourceResolver looks up a source's configuration by id, the orchestrator's
// only dependency on the config layer.
type SourceResolver interface {
	Resolve(sourceID string) (types.SourceConfig, bool)
}

// Orchestrator drives raw items through the full pipeline.
type Orchestrator struct {
	db         *sqlite.SQLiteStorage
	raw        *rawstore.Store
	canon      *canon.Canonicalizer
	linker     *linker.Linker
	correlate  *correlate.Engine
	evidence   *evidence.Builder
	sources    SourceResolver
	scope      *determinism.Scope
	qualityCfg func(ctx context.Context) (types.QualityConfig, error)
	metrics    *metrics.Metrics
	log        *zap.Logger
}

// Deps bundles everything the orchestrator needs, already constructed.
type Deps struct {
	DB            *sqlite.SQLiteStorage
	RawStore      *rawstore.Store
	Canonicalizer *canon.Canonicalizer
	Linker        *linker.Linker
	Correlate     *correlate.Engine
	Evidence      *evidence.Builder
	Sources       SourceResolver
	Scope         *determinism.Scope
	QualityConfig func(ctx context.Context) (types.QualityConfig, error)
	Metrics       *metrics.Metrics
	Logger        *zap.Logger
}

// New returns an Orchestrator wired from deps.
func New(deps Deps) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		db:         deps.DB,
		raw:        deps.RawStore,
		canon:      deps.Canonicalizer,
		linker:     deps.Linker,
		correlate:  deps.Correlate,
		evidence:   deps.Evidence,
		sources:    deps.Sources,
		scope:      deps.Scope,
		qualityCfg: deps.QualityConfig,
		metrics:    deps.Metrics,
		log:        log,
	}
}

// Ingest implements `ingest(limit, min_tier, source_id, since_hours)`
// (§4.8): fetch a batch of NEW raw items and drive each through
// canonicalize -> link -> score -> quality -> correlate -> evidence in
// isolation, marking it NORMALIZED on success or FAILED on any error.
func (o *Orchestrator) Ingest(ctx context.Context, limit int, minTier types.Tier, sourceID string, sinceHours int) (types.IngestSummary, error) {
	var summary types.IngestSummary

	items, err := o.raw.GetRawItemsForIngest(ctx, limit, minTier, sourceID, sinceHours, o.scope.Clock.Now())
	if err != nil {
		return summary, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Processed++
		log := o.log.With(zap.String("run_id", o.scope.RunID), zap.String("source_id", item.SourceID), zap.String("raw_id", item.RawID))
		if o.metrics != nil {
			o.metrics.RawItemsIngested.Inc()
		}

		if err := o.processItem(ctx, item); err != nil {
			summary.Errors++
			if o.metrics != nil {
				o.metrics.IngestErrors.Inc()
			}
			log.Warn("item processing failed", zap.Error(err))
			if markErr := o.raw.MarkRawItemStatus(ctx, item.RawID, types.RawStatusFailed, err.Error()); markErr != nil {
				log.Error("failed to mark item failed", zap.Error(markErr))
			}
			continue
		}

		summary.Events++
		summary.Alerts++
		if err := o.raw.MarkRawItemStatus(ctx, item.RawID, types.RawStatusNormalized, ""); err != nil {
			log.Error("failed to mark item normalized", zap.Error(err))
			summary.Errors++
		}
	}

	return summary, nil
}

// processItem runs one raw item through C3->C8. Any error here is caught
// by Ingest at the item boundary and converted to a FAILED status (§7).
func (o *Orchestrator) processItem(ctx context.Context, item types.RawItem) error {
	ctx, itemSpan := tracer.Start(ctx, "ingest.process_item",
		trace.WithAttributes(attribute.String("raw_id", item.RawID), attribute.String("source_id", item.SourceID)))
	var itemErr error
	defer func() { endSpan(itemSpan, itemErr) }()

	src, ok := o.sources.Resolve(item.SourceID)
	if !ok {
		src = types.SourceConfig{ID: item.SourceID, TrustTier: 2}
	}

	tx, err := o.db.BeginTx(ctx)
	if err != nil {
		itemErr = &sentinelerr.StoreError{Op: "begin item transaction", Cause: err}
		return itemErr
	}
	defer func() { _ = tx.Rollback() }()

	canonCtx, canonSpan := tracer.Start(ctx, "ingest.canonicalize")
	ev, err := o.canon.Canonicalize(canonCtx, tx, item, src)
	endSpan(canonSpan, err)
	if err != nil {
		itemErr = err
		return err
	}

	linkCtx, linkSpan := tracer.Start(ctx, "ingest.link")
	err = o.linker.Link(linkCtx, &ev, o.scope.Clock)
	endSpan(linkSpan, err)
	if err != nil {
		itemErr = err
		return err
	}

	saveCtx, saveSpan := tracer.Start(ctx, "ingest.save_event")
	err = tx.SaveEvent(saveCtx, ev, eventHash(ev))
	endSpan(saveSpan, err)
	if err != nil {
		itemErr = &sentinelerr.StoreError{Op: "save event", Cause: err}
		return itemErr
	}

	scoreCtx, scoreSpan := tracer.Start(ctx, "ingest.score")
	scoreResult, err := scoring.Score(scoreCtx, o.db, ev, o.scope.Clock)
	endSpan(scoreSpan, err)
	if err != nil {
		itemErr = err
		return err
	}
	rawClass := scoring.MapToClassification(scoreResult.Score)

	qcfg, err := o.qualityCfg(ctx)
	if err != nil {
		itemErr = &sentinelerr.ConfigError{Field: "quality_config", Cause: err}
		return itemErr
	}

	_, qualitySpan := tracer.Start(ctx, "ingest.quality_evaluate")
	qresult := quality.Evaluate(ev, scoreResult.Score, scoreResult.Breakdown, ev.TrustTier, qcfg)
	endSpan(qualitySpan, nil)

	finalClass, notes := quality.ApplyPolicy(rawClass, qresult.MaxAllowedClass, ev.ClassificationFloor, qcfg.AllowQualityOverrideFloor)

	appliedPolicy := "B"
	if !qcfg.AllowQualityOverrideFloor {
		appliedPolicy = "A"
	}
	diagnostics := evidence.BuildDiagnostics(ev, scoreResult.Score, scoreResult.Breakdown, scoreResult.Rationale, types.QualityValidation{
		MaxAllowedClassification: qresult.MaxAllowedClass,
		HighImpactFactorsCount:   qresult.HighImpactFactors,
		FacilityConfidence:       qresult.FacilityConfidence,
		FacilityProvenance:       qresult.FacilityProvenance,
		AppliedPolicy:            appliedPolicy,
	})

	reasoning := append(append([]string{}, qresult.Reasoning...), notes...)

	correlateCtx, correlateSpan := tracer.Start(ctx, "ingest.correlate_upsert")
	alert, err := o.correlate.Upsert(correlateCtx, tx, correlate.BuildInput{
		Event:          ev,
		Classification: finalClass,
		ImpactScore:    scoreResult.Score,
		Diagnostics:    diagnostics,
		Reasoning:      reasoning,
	}, o.scope.Clock, o.scope.IDGen, item.FetchedAt)
	endSpan(correlateSpan, err)
	if err != nil {
		itemErr = &sentinelerr.StoreError{Op: "correlate alert", Cause: err}
		return itemErr
	}
	if o.metrics != nil {
		switch alert.CorrelationAction {
		case types.CorrelationCreated:
			o.metrics.AlertsCreated.Inc()
		case types.CorrelationUpdated:
			o.metrics.AlertsUpdated.Inc()
		}
	}

	_, evidenceSpan := tracer.Start(ctx, "ingest.evidence_write")
	mergeSummary := fmt.Sprintf("correlated event %s into alert %s", ev.EventID, alert.AlertID)
	path, hash, err := o.evidence.Write(alert, ev, ev.LinkingNotes, mergeSummary, o.scope)
	endSpan(evidenceSpan, err)
	if err != nil {
		itemErr = &sentinelerr.StoreError{Op: "write evidence", Cause: err}
		return itemErr
	}
	alert.EvidencePath = path
	alert.EvidenceHash = hash
	if err := tx.UpdateAlert(ctx, alert); err != nil {
		itemErr = &sentinelerr.StoreError{Op: "save evidence reference", Cause: err}
		return itemErr
	}

	if err := tx.Commit(); err != nil {
		itemErr = &sentinelerr.StoreError{Op: "commit item transaction", Cause: err}
		return itemErr
	}

	return nil
}

func eventHash(ev types.Event) string {
	hash, err := determinism.ArtifactHash(ev)
	if err != nil {
		return ""
	}
	return hash
}

// BriefDay is the data a daily-brief renderer needs: every alert touched
// within the window, plus the format the caller asked for. Rendering the
// Markdown or JSON output itself stays outside this package; this is only
// the query surface a renderer would consume.
type BriefDay struct {
	Alerts []types.Alert `json:"alerts"`
	Since  string        `json:"since"`
	Format string        `json:"format"`
}

// BriefQuery implements `brief_query(since, format)`: every alert whose
// last_seen_utc falls within since, annotated with the requested output
// format so a renderer can pick Markdown vs JSON without a second query.
func BriefQuery(ctx context.Context, db *sqlite.SQLiteStorage, sinceHours int, format string, now determinism.Clock) (BriefDay, error) {
	cutoff := now.Now().Add(-time.Duration(sinceHours) * time.Hour)
	rows, err := db.DB().QueryContext(ctx, `
		SELECT alert_id FROM alerts WHERE last_seen_utc >= ? ORDER BY last_seen_utc DESC
	`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return BriefDay{}, &sentinelerr.StoreError{Op: "brief query", Cause: err}
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return BriefDay{}, &sentinelerr.StoreError{Op: "scan brief row", Cause: err}
		}
		ids = append(ids, id)
	}

	var alerts []types.Alert
	for _, id := range ids {
		a, err := db.GetAlert(ctx, id)
		if err != nil {
			return BriefDay{}, &sentinelerr.StoreError{Op: "load brief alert", Cause: err}
		}
		alerts = append(alerts, a)
	}

	return BriefDay{Alerts: alerts, Since: fmt.Sprintf("%dh", sinceHours), Format: format}, rows.Err()
}
