package determinism

import "time"

// Context is the `determinism_context` of §4.9: {seed, timestamp_utc,
// run_id}. Supplying one to an ingest run pins its clock and id stream;
// omitting it runs in live mode.
type Context struct {
	Seed         int64
	TimestampUTC time.Time
	RunID        string
}

// Scope bundles the clock and id generator a single ingest run uses. It is
// built once per run and threaded through every component that needs "now"
// or a new id, never constructed ad hoc inside a component.
type Scope struct {
	Clock   Clock
	IDGen   *IDGenerator
	Pinned  bool
	RunID   string
	context *Context
}

// NewLiveScope returns a Scope backed by wall-clock time and crypto/rand ids.
func NewLiveScope() *Scope {
	return &Scope{
		Clock:  NewLiveClock(),
		IDGen:  NewLiveIDGenerator(),
		Pinned: false,
	}
}

// NewPinnedScope returns a Scope fixed to dc: every clock read returns
// dc.TimestampUTC and every allocated id derives from dc.Seed and an
// internal counter, making two runs with the same dc byte-identical.
func NewPinnedScope(dc Context) *Scope {
	return &Scope{
		Clock:   NewPinnedClock(dc.TimestampUTC),
		IDGen:   NewPinnedIDGenerator(dc.Seed),
		Pinned:  true,
		RunID:   dc.RunID,
		context: &dc,
	}
}

// DeterminismContext returns the context a pinned scope was built from, or
// nil for a live scope. Used when assembling incident evidence artifacts,
// which embed the context only in pinned mode (§4.7).
func (s *Scope) DeterminismContext() *Context {
	return s.context
}
