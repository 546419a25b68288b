// Package sentinelerr is the pipeline's typed error taxonomy (§7). Callers
// use errors.As to branch on kind the same way the storage package uses
// errors.Is against ErrNotFound/ErrConflict.
package sentinelerr

import "fmt"

// ConfigError wraps a malformed or missing configuration value. Fatal at
// startup; never recovered mid-run.
type ConfigError struct {
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s: %v", e.Field, e.Cause)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// StoreError wraps a database-unavailable or constraint-violation failure.
// Fatal for the current batch; the orchestrator does not retry past it.
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error: %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error { return e.Cause }

// ItemParseError wraps a single raw item that could not be canonicalized.
// The orchestrator catches this at the item boundary, marks the item
// FAILED, and continues with the rest of the batch (§4.8, §7).
type ItemParseError struct {
	RawID string
	Cause error
}

func (e *ItemParseError) Error() string {
	return fmt.Sprintf("item parse error for %s: %v", e.RawID, e.Cause)
}

func (e *ItemParseError) Unwrap() error { return e.Cause }

// DeterminismViolation signals that a pinned-mode replay produced content
// that does not match a prior run pinned against the same determinism
// context — most concretely, an evidence artifact whose freshly computed
// bytes differ from what is already on disk at its deterministic filename
// (§4.9). Always fatal; never recovered mid-run.
type DeterminismViolation struct {
	Reason string
}

func (e *DeterminismViolation) Error() string {
	return fmt.Sprintf("determinism violation: %s", e.Reason)
}

// LinkingNote is not an error — it records that a linking step (§4.3)
// produced no matches. It is appended to an event's linking_notes rather
// than returned as an error.
func LinkingNote(step, detail string) string {
	return fmt.Sprintf("%s: %s", step, detail)
}

// QualityCapNote is not an error — it records that an alert's
// classification was capped below its raw score (§4.5). It is appended to
// an alert's reasoning rather than returned as an error.
func QualityCapNote(rawClass, cap int, reason string) string {
	return fmt.Sprintf("classification capped %d -> %d: %s", rawClass, cap, reason)
}
