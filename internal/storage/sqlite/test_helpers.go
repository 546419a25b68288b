package sqlite

import (
	"context"
	"testing"
)

// newTestStore creates a SQLiteStorage backed by a private temp-file
// database. Each test gets its own isolated file so migrations and writes
// never interfere across tests in the same package.
func newTestStore(t *testing.T) *SQLiteStorage {
	t.Helper()

	ctx := context.Background()
	store, err := New(ctx, t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("failed to close test database: %v", cerr)
		}
	})
	return store
}
