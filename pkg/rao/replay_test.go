package rao

import (
	"context"
	"encoding/json"
	"testing"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
)

func TestSimulateReplay_UsesCurrentConstraints(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	ledger.AppendRun(ctx, "write_file", []string{"secrets/prod.env"}, true)
	ledger.AppendAudit(ctx, gate.Verdict{Warnings: []gate.Warning{approvalWarning("x")}})
	ledger.AppendRun(ctx, "read_file", []string{"README.md"}, true)

	constraints := gate.Constraints{NeverTouch: []string{"secrets/**"}}
	if _, err := store.Save(ctx, testProject, &pm.Update{Constraints: &constraints}, nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	results, err := ledger.SimulateReplay(ctx, 0)
	if err != nil {
		t.Fatalf("SimulateReplay() failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	readme := results[0]
	if !readme.Simulate.Available || readme.Simulate.Blocked || readme.Simulate.NeedsApproval {
		t.Errorf("Expected README run to replay clean, got %+v", readme.Simulate)
	}

	audit := results[1]
	if audit.Simulate.Available {
		t.Error("Expected audit entry to be unavailable for replay")
	}
	if audit.Simulate.Warnings == nil {
		t.Error("Expected unavailable entries to carry an empty warning list")
	}

	secret := results[2]
	if !secret.Simulate.Available || !secret.Simulate.Blocked {
		t.Errorf("Expected secrets run to be blocked under current constraints, got %+v", secret.Simulate)
	}
	if len(secret.Simulate.Warnings) != 1 || secret.Simulate.Warnings[0].Code != gate.CodeNeverTouchPath {
		t.Errorf("Expected one never_touch warning, got %+v", secret.Simulate.Warnings)
	}
}

func TestSimulateReplay_NeverWrites(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		ledger.AppendRun(ctx, "write_file", []string{"src/main.go"}, i%2 == 0)
	}
	constraints := gate.Constraints{RequireApprovalFor: []string{"src/**", "write_file"}}
	store.Save(ctx, testProject, &pm.Update{Constraints: &constraints}, nil)

	before, _ := store.Load(ctx, testProject)
	beforeJSON, _ := json.Marshal(before)
	writes := store.Writes()
	eventCount := store.EventCount(testProject)

	for _, limit := range []int{0, 1, 5, 100} {
		results, err := ledger.SimulateReplay(ctx, limit)
		if err != nil {
			t.Fatalf("SimulateReplay(%d) failed: %v", limit, err)
		}
		if limit > 0 && limit < 20 && len(results) != limit {
			t.Errorf("Expected %d results, got %d", limit, len(results))
		}
		for _, r := range results {
			if !r.Simulate.NeedsApproval {
				t.Errorf("Expected replayed run to need approval, got %+v", r.Simulate)
			}
		}
	}

	after, _ := store.Load(ctx, testProject)
	afterJSON, _ := json.Marshal(after)
	if string(beforeJSON) != string(afterJSON) {
		t.Error("Expected state to be unchanged by replay")
	}
	if store.Writes() != writes {
		t.Errorf("Expected write count %d, got %d", writes, store.Writes())
	}
	if store.EventCount(testProject) != eventCount {
		t.Errorf("Expected %d events, got %d", eventCount, store.EventCount(testProject))
	}
}

func TestSameAudit(t *testing.T) {
	a := &pm.AuditEntry{Warnings: []gate.Warning{approvalWarning("a")}}
	b := &pm.AuditEntry{Warnings: []gate.Warning{approvalWarning("a")}}
	c := &pm.AuditEntry{Warnings: []gate.Warning{approvalWarning("c")}}

	if !SameAudit(a, b) {
		t.Error("Expected equal audits")
	}
	if SameAudit(a, c) {
		t.Error("Expected different audits")
	}
	if SameAudit(a, nil) {
		t.Error("Expected nil audit to differ")
	}
}
