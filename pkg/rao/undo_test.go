package rao

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
)

func TestLedger_UndoRestoresConstraints(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	before, err := store.Load(ctx, testProject)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	constraints := gate.Constraints{NeverTouch: []string{".env"}}
	if _, err := store.Save(ctx, testProject, &pm.Update{Constraints: &constraints}, nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if _, err := ledger.AppendRun(ctx, "write_file", []string{"a.go"}, true); err != nil {
		t.Fatalf("AppendRun() failed: %v", err)
	}

	result, err := ledger.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() failed: %v", err)
	}
	if result == nil {
		t.Fatal("Expected an undo result")
	}
	if diff := cmp.Diff([]string{"constraints.never_touch"}, result.ChangedKeys); diff != "" {
		t.Errorf("changed keys mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(before.Constraints, result.State.Constraints); diff != "" {
		t.Errorf("constraints not restored (-want +got):\n%s", diff)
	}

	override, ok := result.Override.Override()
	if !ok {
		t.Fatalf("Expected override snapshot, got %s", result.Override.Kind())
	}
	if override.EventID != result.EventID || override.Command != CommandUndo {
		t.Errorf("Unexpected override %+v", override)
	}

	// The run appended after the change survives the undo.
	if len(result.State.Rao.History) != 2 {
		t.Errorf("Expected run and override in history, got %d entries", len(result.State.Rao.History))
	}
}

func TestLedger_UndoNothing(t *testing.T) {
	ledger, _ := newTestLedger(t)

	result, err := ledger.Undo(context.Background())
	if err != nil {
		t.Fatalf("Undo() failed: %v", err)
	}
	if result != nil {
		t.Errorf("Expected nil result, got %+v", result)
	}
}

func TestStatusFromHistory(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.AppendRun(ctx, "read_file", nil, true); err != nil {
		t.Fatalf("AppendRun() failed: %v", err)
	}
	if _, err := ledger.AppendAudit(ctx, gate.Verdict{NeedsApproval: true, Warnings: []gate.Warning{approvalWarning("src/**")}}); err != nil {
		t.Fatalf("AppendAudit() failed: %v", err)
	}
	if _, err := ledger.AppendRun(ctx, "write_file", nil, false); err != nil {
		t.Fatalf("AppendRun() failed: %v", err)
	}

	history, err := ledger.History(ctx, 0)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	// History is newest first; rebuild from oldest.
	oldestFirst := make([]pm.Snapshot, len(history))
	for i, s := range history {
		oldestFirst[len(history)-1-i] = s
	}

	status := StatusFromHistory(oldestFirst)
	if status.LastRun == nil || status.LastAudit == nil {
		t.Fatalf("Expected run and audit, got %+v", status)
	}
	if run, _ := status.LastRun.Run(); run.Tool != "write_file" {
		t.Errorf("Expected last run write_file, got %s", run.Tool)
	}
	if status.LastOverride != nil {
		t.Error("Expected no override")
	}
	if live := ledger.Status(); live.LastRun.ID != status.LastRun.ID || live.LastAudit.ID != status.LastAudit.ID {
		t.Errorf("Expected rebuilt status to match live status, got %+v", status)
	}
}
