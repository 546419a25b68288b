package sqlite

import (
	"context"
	"testing"

	"github.com/sentinelrisk/hardstop/internal/types"
)

func TestTx_CommitPersistsWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	ev := types.Event{EventID: "EVT-1", SourceID: "src1", RawID: "RAW-1"}
	if err := tx.SaveEvent(ctx, ev, "hash1"); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	got, err := store.GetEvent(ctx, "EVT-1")
	if err != nil {
		t.Fatalf("GetEvent after commit: %v", err)
	}
	if got.EventID != "EVT-1" {
		t.Errorf("GetEvent returned %q, want EVT-1", got.EventID)
	}
}

func TestTx_RollbackDiscardsWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	ev := types.Event{EventID: "EVT-2", SourceID: "src1", RawID: "RAW-2"}
	if err := tx.SaveEvent(ctx, ev, "hash1"); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := store.GetEvent(ctx, "EVT-2"); !isNotFound(err) {
		t.Errorf("GetEvent after rollback = %v, want ErrNotFound", err)
	}
}

func TestTx_RollbackAfterCommitIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Errorf("Rollback after Commit should be a no-op, got: %v", err)
	}
}

func TestTx_PartialItemFailureLeavesNoAlertOrEvent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tx, err := store.BeginTx(ctx)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	ev := types.Event{EventID: "EVT-3", SourceID: "src1", RawID: "RAW-3"}
	if err := tx.SaveEvent(ctx, ev, "hash1"); err != nil {
		t.Fatalf("SaveEvent: %v", err)
	}
	alert := types.Alert{AlertID: "ALERT-1", CorrelationKey: "SPILL|PLANT-01|NONE", Status: types.AlertOpen}
	if err := tx.InsertAlert(ctx, alert); err != nil {
		t.Fatalf("InsertAlert: %v", err)
	}
	// evidence write fails downstream; orchestrator rolls back instead of committing.
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if _, err := store.GetEvent(ctx, "EVT-3"); !isNotFound(err) {
		t.Errorf("GetEvent after rollback = %v, want ErrNotFound", err)
	}
	if _, err := store.GetAlert(ctx, "ALERT-1"); !isNotFound(err) {
		t.Errorf("GetAlert after rollback = %v, want ErrNotFound", err)
	}
}
