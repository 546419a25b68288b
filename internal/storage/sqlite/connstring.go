package sqlite

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// connString builds a modernc.org/sqlite DSN with the standard pragmas:
// busy_timeout (avoids "database is locked" under the single-writer model
// of §5), foreign_keys, and WAL journaling for reader/writer concurrency.
// Honors SENTINEL_LOCK_TIMEOUT for the busy timeout (default 30s).
func connString(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if path == ":memory:" || strings.HasPrefix(path, "file::memory:") {
		return path
	}

	busy := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("SENTINEL_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := int64(busy / time.Millisecond)

	if strings.HasPrefix(path, "file:") {
		conn := path
		sep := "?"
		if strings.Contains(conn, "?") {
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=busy_timeout") {
			conn += fmt.Sprintf("%s_pragma=busy_timeout(%d)", sep, busyMs)
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=foreign_keys") {
			conn += sep + "_pragma=foreign_keys(ON)"
			sep = "&"
		}
		if !strings.Contains(conn, "_pragma=journal_mode") {
			conn += sep + "_pragma=journal_mode(WAL)"
		}
		return conn
	}

	return fmt.Sprintf("file:%s?_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)", path, busyMs)
}
