package main

import (
	"github.com/google/uuid"

	"github.com/sentinelrisk/hardstop/internal/canon"
	"github.com/sentinelrisk/hardstop/internal/config"
	"github.com/sentinelrisk/hardstop/internal/correlate"
	"github.com/sentinelrisk/hardstop/internal/determinism"
	"github.com/sentinelrisk/hardstop/internal/evidence"
	"github.com/sentinelrisk/hardstop/internal/ingest"
	"github.com/sentinelrisk/hardstop/internal/linker"
	"github.com/sentinelrisk/hardstop/internal/rawstore"
	"github.com/sentinelrisk/hardstop/internal/types"
)

// watcherResolver satisfies ingest.SourceResolver against the registry the
// process's config watcher had staged when the orchestrator was built (§5:
// reloads apply only between ingest batches, never mid-batch; each CLI
// invocation is itself one batch boundary).
type watcherResolver struct {
	reg *config.SourceRegistry
}

func (r watcherResolver) Resolve(sourceID string) (types.SourceConfig, bool) {
	return r.reg.Resolve(sourceID)
}

// newOrchestrator wires a fresh determinism.Scope (live mode, with a
// uuid-generated run id since no caller-supplied one exists on this path)
// together with the shared db/metrics/watcher state into an
// ingest.Orchestrator.
func newOrchestrator() *ingest.Orchestrator {
	scope := determinism.NewLiveScope()
	scope.RunID = uuid.NewString()

	idgen := scope.IDGen
	raw := rawstore.New(db, idgen)

	return ingest.New(ingest.Deps{
		DB:            db,
		RawStore:      raw,
		Canonicalizer: canon.New(idgen, true),
		Linker:        linker.New(db, linker.Options{}),
		Correlate:     correlate.New(),
		Evidence:      evidence.New(evidenceDir),
		Sources:       watcherResolver{reg: watcher.Swap()},
		Scope:         scope,
		QualityConfig: db.GetQualityConfig,
		Metrics:       metricsSet,
		Logger:        log,
	})
}
