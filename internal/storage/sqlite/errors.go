package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for common database conditions
var (
	// ErrNotFound indicates the requested resource was not found in the database
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a unique constraint violation: two fetchers raced
	// to insert the same raw item's dedupe key (source_id, canonical_id) or
	// (source_id, content_hash) outside the in-process singleflight group.
	ErrConflict = errors.New("conflict")
)

// wrapDBError wraps a database error with operation context. It converts
// sql.ErrNoRows to ErrNotFound and a unique-constraint violation to
// ErrConflict, so callers can branch with errors.Is instead of matching
// driver-specific strings.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if IsConflict(err) {
		return fmt.Errorf("%s: %w", op, ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isNotFound checks if an error is or wraps ErrNotFound
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is, wraps, or represents a unique-
// constraint violation raised by the underlying SQLite driver. Exported so
// callers outside this package (rawstore's dedupe insert) can classify a
// raw driver error without depending on wrapDBError.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
