package rao

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/pm/storage"
)

const testProject = "pm_test"

func newTestLedger(t *testing.T, opts ...Option) (*Ledger, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	seq := 0
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	defaults := []Option{
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("snap-%d", seq)
		}),
		WithClock(func() time.Time {
			return base.Add(time.Duration(seq) * time.Second)
		}),
	}
	return New(store, testProject, append(defaults, opts...)...), store
}

func approvalWarning(subject string) gate.Warning {
	return gate.Warning{
		Kind:    gate.WarningRequireApproval,
		Code:    gate.CodeRequireApprovalPath,
		Subject: subject,
		Message: "approval required for " + subject,
	}
}

func TestLedger_AppendRunAndHistory(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for _, tool := range []string{"read_file", "write_file", "run_shell"} {
		if _, err := ledger.AppendRun(ctx, tool, []string{"a.go"}, true); err != nil {
			t.Fatalf("AppendRun() failed: %v", err)
		}
	}

	history, err := ledger.History(ctx, 2)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(history))
	}
	run, ok := history[0].Run()
	if !ok || run.Tool != "run_shell" {
		t.Errorf("Expected newest entry run_shell, got %+v", history[0])
	}
	if history[1].ID != "snap-2" {
		t.Errorf("Expected second entry snap-2, got %s", history[1].ID)
	}

	all, _ := ledger.History(ctx, 0)
	if len(all) != 3 {
		t.Errorf("Expected full history of 3, got %d", len(all))
	}
}

func TestLedger_AppendWritesOneEventPerEntry(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	if _, err := ledger.AppendRun(ctx, "write_file", []string{"a.go"}, true); err != nil {
		t.Fatalf("AppendRun() failed: %v", err)
	}

	events, err := store.ListEvents(ctx, testProject, 0)
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(events))
	}
	if events[0].EventType != pm.EventRaoAppend {
		t.Errorf("Expected event type rao_append, got %s", events[0].EventType)
	}
	if events[0].Command != CommandAppend {
		t.Errorf("Expected command %s, got %s", CommandAppend, events[0].Command)
	}
}

func TestLedger_DeduplicatesConsecutiveEqualAudits(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	first := gate.Verdict{NeedsApproval: true, Warnings: []gate.Warning{approvalWarning("a"), approvalWarning("b")}}
	reordered := gate.Verdict{NeedsApproval: true, Warnings: []gate.Warning{approvalWarning("b"), approvalWarning("a")}}

	res, err := ledger.AppendAudit(ctx, first)
	if err != nil {
		t.Fatalf("AppendAudit() failed: %v", err)
	}
	if res.Deduplicated {
		t.Fatal("Expected first audit to be appended")
	}
	writes := store.Writes()

	res, err = ledger.AppendAudit(ctx, reordered)
	if err != nil {
		t.Fatalf("AppendAudit() failed: %v", err)
	}
	if !res.Deduplicated {
		t.Error("Expected reordered audit to be deduplicated")
	}
	if res.Snapshot.ID != "snap-1" {
		t.Errorf("Expected deduplicated result to carry the existing entry, got %s", res.Snapshot.ID)
	}
	if store.Writes() != writes {
		t.Errorf("Expected no write for a duplicate, writes went %d -> %d", writes, store.Writes())
	}

	history, _ := ledger.History(ctx, 0)
	if len(history) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(history))
	}
}

func TestLedger_BlockedFlagBreaksDedup(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	warnings := []gate.Warning{approvalWarning("a")}
	if _, err := ledger.AppendAudit(ctx, gate.Verdict{Warnings: warnings}); err != nil {
		t.Fatalf("AppendAudit() failed: %v", err)
	}
	res, err := ledger.AppendAudit(ctx, gate.Verdict{Blocked: true, Warnings: warnings})
	if err != nil {
		t.Fatalf("AppendAudit() failed: %v", err)
	}
	if res.Deduplicated {
		t.Error("Expected differing blocked flag to append")
	}
}

func TestLedger_DedupOnlyAgainstLastEntry(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	audit := gate.Verdict{Warnings: []gate.Warning{approvalWarning("a")}}

	if _, err := ledger.AppendAudit(ctx, audit); err != nil {
		t.Fatalf("AppendAudit() failed: %v", err)
	}
	if _, err := ledger.AppendRun(ctx, "write_file", []string{"a"}, true); err != nil {
		t.Fatalf("AppendRun() failed: %v", err)
	}
	res, err := ledger.AppendAudit(ctx, audit)
	if err != nil {
		t.Fatalf("AppendAudit() failed: %v", err)
	}
	if res.Deduplicated {
		t.Error("Expected audit after a run to be appended")
	}

	history, _ := ledger.History(ctx, 0)
	if len(history) != 3 {
		t.Errorf("Expected 3 entries, got %d", len(history))
	}
}

func TestLedger_RunsAndOverridesNeverDeduplicated(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res, err := ledger.AppendRun(ctx, "write_file", []string{"a"}, true); err != nil || res.Deduplicated {
			t.Fatalf("AppendRun() = %+v, %v", res, err)
		}
		if res, err := ledger.AppendOverride(ctx, "ev-1", []string{"charter"}, "undo"); err != nil || res.Deduplicated {
			t.Fatalf("AppendOverride() = %+v, %v", res, err)
		}
	}

	history, _ := ledger.History(ctx, 0)
	if len(history) != 4 {
		t.Errorf("Expected 4 entries, got %d", len(history))
	}
}

func TestLedger_HistoryBounded(t *testing.T) {
	ledger, _ := newTestLedger(t, WithMaxHistory(3))
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		res, err := ledger.AppendRun(ctx, fmt.Sprintf("tool-%d", i), nil, true)
		if err != nil {
			t.Fatalf("AppendRun() failed: %v", err)
		}
		if got := len(res.State.Rao.History); got > 3 {
			t.Fatalf("History length %d exceeds bound after append %d", got, i)
		}
	}

	history, _ := ledger.History(ctx, 0)
	var tools []string
	for _, snap := range history {
		run, _ := snap.Run()
		tools = append(tools, run.Tool)
	}
	want := []string{"tool-6", "tool-5", "tool-4"}
	if diff := cmp.Diff(want, tools); diff != "" {
		t.Errorf("History mismatch (-want +got):\n%s", diff)
	}
}

func TestLedger_AppendNilEntry(t *testing.T) {
	ledger, _ := newTestLedger(t)
	if _, err := ledger.Append(context.Background(), nil); !errors.Is(err, ErrNilEntry) {
		t.Errorf("Expected ErrNilEntry, got %v", err)
	}
}

func TestLedger_Status(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	if st := ledger.Status(); st.LastRun != nil || st.LastAudit != nil || st.LastOverride != nil {
		t.Fatalf("Expected empty status, got %+v", st)
	}

	ledger.AppendRun(ctx, "write_file", []string{"a"}, false)
	ledger.AppendAudit(ctx, gate.Verdict{Warnings: []gate.Warning{approvalWarning("a")}})
	ledger.AppendOverride(ctx, "ev-1", []string{"constraints.always_allow"}, "undo")

	st := ledger.Status()
	if st.LastRun == nil || st.LastRun.ID != "snap-1" {
		t.Errorf("Expected last run snap-1, got %+v", st.LastRun)
	}
	if st.LastAudit == nil || st.LastAudit.ID != "snap-2" {
		t.Errorf("Expected last audit snap-2, got %+v", st.LastAudit)
	}
	if st.LastOverride == nil || st.LastOverride.ID != "snap-3" {
		t.Errorf("Expected last override snap-3, got %+v", st.LastOverride)
	}
}

func TestLedger_Purge(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	ledger.AppendRun(ctx, "write_file", []string{"a"}, true)
	ledger.AppendAudit(ctx, gate.Verdict{Warnings: []gate.Warning{approvalWarning("a")}})

	if _, err := ledger.Purge(ctx); err != nil {
		t.Fatalf("Purge() failed: %v", err)
	}

	history, err := ledger.History(ctx, 0)
	if err != nil {
		t.Fatalf("History() failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(history))
	}

	st := ledger.Status()
	if st.LastRun != nil || st.LastAudit != nil {
		t.Errorf("Expected status reset, got %+v", st)
	}

	events, _ := store.ListEvents(ctx, testProject, 0)
	purges := 0
	for _, ev := range events {
		if ev.EventType == pm.EventRaoPurge {
			purges++
		}
	}
	if purges != 1 {
		t.Errorf("Expected 1 rao_purge event, got %d", purges)
	}
	if events[0].EventType != pm.EventRaoPurge {
		t.Errorf("Expected newest event to be the purge, got %s", events[0].EventType)
	}
}

func TestLedger_PurgeIsUndoable(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()

	ledger.AppendRun(ctx, "write_file", []string{"a"}, true)
	ledger.Purge(ctx)

	res, err := store.UndoLast(ctx, testProject)
	if err != nil {
		t.Fatalf("UndoLast() failed: %v", err)
	}
	if res == nil {
		t.Fatal("Expected an undo result")
	}
	if len(res.State.Rao.History) != 1 {
		t.Errorf("Expected purged history restored, got %d entries", len(res.State.Rao.History))
	}
}

// conflictingStore fails the first n saves with a version conflict.
type conflictingStore struct {
	pm.Store
	failures int
}

func (s *conflictingStore) Save(ctx context.Context, projectID string, update *pm.Update, meta *pm.EventMeta) (*pm.State, error) {
	if s.failures > 0 {
		s.failures--
		return nil, pm.NewStorageError("memory", "save", pm.ErrVersionConflict)
	}
	return s.Store.Save(ctx, projectID, update, meta)
}

func TestLedger_RetriesVersionConflicts(t *testing.T) {
	store := &conflictingStore{Store: storage.NewMemoryStore(), failures: 2}
	ledger := New(store, testProject)

	res, err := ledger.AppendRun(context.Background(), "write_file", nil, true)
	if err != nil {
		t.Fatalf("AppendRun() failed: %v", err)
	}
	if len(res.State.Rao.History) != 1 {
		t.Errorf("Expected 1 entry, got %d", len(res.State.Rao.History))
	}
}

func TestLedger_GivesUpAfterRepeatedConflicts(t *testing.T) {
	store := &conflictingStore{Store: storage.NewMemoryStore(), failures: maxConflictRetries}
	ledger := New(store, testProject)

	_, err := ledger.AppendRun(context.Background(), "write_file", nil, true)
	if !errors.Is(err, ErrConflictRetries) {
		t.Errorf("Expected ErrConflictRetries, got %v", err)
	}
}

func TestLedger_ConcurrentAppendsBothLand(t *testing.T) {
	store := storage.NewMemoryStore()
	a := New(store, testProject)
	b := New(store, testProject)
	ctx := context.Background()

	done := make(chan error, 2)
	for _, l := range []*Ledger{a, b} {
		go func(l *Ledger) {
			for i := 0; i < 10; i++ {
				if _, err := l.AppendRun(ctx, "write_file", nil, true); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}(l)
	}
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil && !errors.Is(err, ErrConflictRetries) {
			t.Fatalf("AppendRun() failed: %v", err)
		}
	}

	state, _ := store.Load(ctx, testProject)
	events, _ := store.ListEvents(ctx, testProject, 0)
	if len(state.Rao.History) != len(events) {
		t.Errorf("Expected one history entry per event, got %d entries and %d events", len(state.Rao.History), len(events))
	}
}
