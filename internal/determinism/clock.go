package determinism

import "time"

// Clock is the only source of "now" the pipeline is allowed to read.
// Components must take a Clock as a dependency rather than calling
// time.Now() directly, so that pinned replay (§4.9) can fix every read.
type Clock interface {
	Now() time.Time
}

// liveClock reads wall-clock time, always normalized to UTC.
type liveClock struct{}

// NewLiveClock returns a Clock backed by wall-clock time.
func NewLiveClock() Clock { return liveClock{} }

func (liveClock) Now() time.Time { return time.Now().UTC() }

// pinnedClock always returns the same instant, for deterministic replay.
type pinnedClock struct {
	t time.Time
}

// NewPinnedClock returns a Clock that always reports t (normalized to UTC).
func NewPinnedClock(t time.Time) Clock {
	return pinnedClock{t: t.UTC()}
}

func (c pinnedClock) Now() time.Time { return c.t }
