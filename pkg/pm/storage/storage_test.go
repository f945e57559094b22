package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
)

type storeFactory func(t *testing.T) pm.Store

func newMemory(t *testing.T) pm.Store {
	return NewMemoryStore()
}

func newSQLite(t *testing.T) pm.Store {
	cfg := DefaultSQLiteConfig()
	cfg.Path = filepath.Join(t.TempDir(), "pm.db")
	s, err := NewSQLiteStore(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var factories = map[string]storeFactory{
	"memory": newMemory,
	"sqlite": newSQLite,
}

func forEachStore(t *testing.T, fn func(t *testing.T, store pm.Store)) {
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestStore_LoadCreatesDefaultLazily(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		ctx := context.Background()

		state, err := store.Load(ctx, "proj")
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if state.ProjectID != "proj" {
			t.Errorf("Expected project id 'proj', got '%s'", state.ProjectID)
		}
		if state.Version != 0 {
			t.Errorf("Expected version 0, got %d", state.Version)
		}
		if state.Preferences.Risk != pm.DefaultRisk {
			t.Errorf("Expected default risk, got '%s'", state.Preferences.Risk)
		}

		events, err := store.ListEvents(ctx, "proj", 0)
		if err != nil {
			t.Fatalf("ListEvents() failed: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("Expected no events after Load, got %d", len(events))
		}
	})
}

func TestStore_SaveWritesOneEvent(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		ctx := context.Background()
		constraints := gate.Constraints{NeverTouch: []string{"secrets/**"}}

		state, err := store.Save(ctx, "proj", &pm.Update{Constraints: &constraints}, &pm.EventMeta{Actor: "alice", Command: "policy.set"})
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		if state.Version != 1 {
			t.Errorf("Expected version 1, got %d", state.Version)
		}

		events, err := store.ListEvents(ctx, "proj", 10)
		if err != nil {
			t.Fatalf("ListEvents() failed: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(events))
		}

		ev := events[0]
		if ev.Actor != "alice" || ev.Command != "policy.set" || ev.EventType != pm.EventUpdate {
			t.Errorf("Unexpected event metadata: %+v", ev)
		}

		before, err := ev.BeforeState()
		if err != nil {
			t.Fatalf("BeforeState() failed: %v", err)
		}
		after, err := ev.AfterState()
		if err != nil {
			t.Fatalf("AfterState() failed: %v", err)
		}
		if len(before.Constraints.NeverTouch) != 0 {
			t.Errorf("Expected empty before never_touch, got %v", before.Constraints.NeverTouch)
		}
		if diff := cmp.Diff([]string{"secrets/**"}, after.Constraints.NeverTouch); diff != "" {
			t.Errorf("After never_touch mismatch (-want +got):\n%s", diff)
		}

		got, err := store.GetEvent(ctx, "proj", ev.ID)
		if err != nil {
			t.Fatalf("GetEvent() failed: %v", err)
		}
		if got.ID != ev.ID {
			t.Errorf("Expected event %s, got %s", ev.ID, got.ID)
		}

		loaded, err := store.Load(ctx, "proj")
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if diff := cmp.Diff(state, loaded); diff != "" {
			t.Errorf("Loaded state differs from saved (-saved +loaded):\n%s", diff)
		}
	})
}

func TestStore_SaveExpectVersion(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		ctx := context.Background()
		charter := "v1"

		stale := int64(0)
		if _, err := store.Save(ctx, "proj", &pm.Update{Charter: &charter, ExpectVersion: &stale}, nil); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}

		charter = "v2"
		_, err := store.Save(ctx, "proj", &pm.Update{Charter: &charter, ExpectVersion: &stale}, nil)
		if !errors.Is(err, pm.ErrVersionConflict) {
			t.Fatalf("Expected ErrVersionConflict, got %v", err)
		}
		var serr *pm.StorageError
		if !errors.As(err, &serr) {
			t.Errorf("Expected *pm.StorageError, got %T", err)
		}

		state, err := store.Load(ctx, "proj")
		if err != nil {
			t.Fatalf("Load() failed: %v", err)
		}
		if state.Charter != "v1" || state.Version != 1 {
			t.Errorf("Expected rejected save to leave v1 at version 1, got %q at %d", state.Charter, state.Version)
		}
		events, _ := store.ListEvents(ctx, "proj", 0)
		if len(events) != 1 {
			t.Errorf("Expected 1 event, got %d", len(events))
		}
	})
}

func TestStore_GetEventNotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		_, err := store.GetEvent(context.Background(), "proj", "missing")
		if !errors.Is(err, pm.ErrEventNotFound) {
			t.Errorf("Expected ErrEventNotFound, got %v", err)
		}
	})
}

func TestStore_ListEventsNewestFirstWithLimit(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		ctx := context.Background()
		for _, charter := range []string{"one", "two", "three"} {
			c := charter
			if _, err := store.Save(ctx, "proj", &pm.Update{Charter: &c}, &pm.EventMeta{Command: c}); err != nil {
				t.Fatalf("Save() failed: %v", err)
			}
		}

		events, err := store.ListEvents(ctx, "proj", 2)
		if err != nil {
			t.Fatalf("ListEvents() failed: %v", err)
		}
		if len(events) != 2 {
			t.Fatalf("Expected 2 events, got %d", len(events))
		}
		if events[0].Command != "three" || events[1].Command != "two" {
			t.Errorf("Expected newest first, got %s, %s", events[0].Command, events[1].Command)
		}
	})
}

func TestStore_UndoRestoresExactPriorState(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		ctx := context.Background()
		base := gate.Constraints{RequireApprovalFor: []string{"write_file"}}
		prior, err := store.Save(ctx, "proj", &pm.Update{Constraints: &base}, nil)
		if err != nil {
			t.Fatalf("Save() failed: %v", err)
		}

		widened := base.WithAllowRules(gate.ToolRule("write_file"))
		if _, err := store.Save(ctx, "proj", &pm.Update{Constraints: &widened}, nil); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}

		result, err := store.UndoLast(ctx, "proj")
		if err != nil {
			t.Fatalf("UndoLast() failed: %v", err)
		}
		if result == nil {
			t.Fatal("Expected undo result")
		}

		if diff := cmp.Diff(prior, result.State, cmpopts.IgnoreFields(pm.State{}, "Version")); diff != "" {
			t.Errorf("Restored state differs from prior (-prior +restored):\n%s", diff)
		}
		if !result.Popped.Undone {
			t.Error("Expected popped event to be marked undone")
		}
		if result.Event.EventType != pm.EventUndo {
			t.Errorf("Expected undo event type, got %s", result.Event.EventType)
		}

		events, err := store.ListEvents(ctx, "proj", 0)
		if err != nil {
			t.Fatalf("ListEvents() failed: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("Expected 3 events (2 saves + undo), got %d", len(events))
		}
		if events[0].EventType != pm.EventUndo {
			t.Errorf("Expected newest event to be the undo, got %s", events[0].EventType)
		}
		if !events[1].Undone {
			t.Error("Expected the popped save to be listed as undone")
		}

		// A second undo pops the first save.
		result, err = store.UndoLast(ctx, "proj")
		if err != nil {
			t.Fatalf("UndoLast() failed: %v", err)
		}
		if result == nil || len(result.State.Constraints.RequireApprovalFor) != 0 {
			t.Errorf("Expected second undo to restore empty constraints, got %+v", result)
		}

		// Nothing left to undo.
		result, err = store.UndoLast(ctx, "proj")
		if err != nil {
			t.Fatalf("UndoLast() failed: %v", err)
		}
		if result != nil {
			t.Errorf("Expected nil result with nothing to undo, got %+v", result)
		}
	})
}

func TestStore_UndoWithNoEvents(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		result, err := store.UndoLast(context.Background(), "fresh")
		if err != nil {
			t.Fatalf("UndoLast() failed: %v", err)
		}
		if result != nil {
			t.Errorf("Expected nil result, got %+v", result)
		}
	})
}

func TestStore_UndoSkipsLedgerEvents(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		ctx := context.Background()
		c := gate.Constraints{AlwaysAllow: []gate.AllowRule{gate.ToolRule("write_file")}}
		if _, err := store.Save(ctx, "proj", &pm.Update{Constraints: &c}, nil); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}

		history := pm.RaoState{History: []pm.Snapshot{{ID: "r1", TS: time.Now().UTC(), Entry: &pm.RunEntry{Tool: "write_file", Targets: []string{"a"}, OK: true}}}}
		if _, err := store.Save(ctx, "proj", &pm.Update{Rao: &history}, &pm.EventMeta{EventType: pm.EventRaoAppend}); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}

		result, err := store.UndoLast(ctx, "proj")
		if err != nil {
			t.Fatalf("UndoLast() failed: %v", err)
		}
		if result == nil {
			t.Fatal("Expected undo result")
		}
		if len(result.State.Constraints.AlwaysAllow) != 0 {
			t.Errorf("Expected always_allow undone, got %v", result.State.Constraints.AlwaysAllow)
		}
		if len(result.State.Rao.History) != 1 {
			t.Errorf("Expected ledger entry kept, got %d", len(result.State.Rao.History))
		}
	})
}

func TestStore_PruneEventsKeepsNewest(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			c := "v"
			if _, err := store.Save(ctx, "proj", &pm.Update{Charter: &c}, nil); err != nil {
				t.Fatalf("Save() failed: %v", err)
			}
		}

		deleted, err := store.PruneEvents(ctx, "", time.Now().Add(time.Hour), 2)
		if err != nil {
			t.Fatalf("PruneEvents() failed: %v", err)
		}
		if deleted != 3 {
			t.Errorf("Expected 3 deleted, got %d", deleted)
		}

		events, err := store.ListEvents(ctx, "proj", 0)
		if err != nil {
			t.Fatalf("ListEvents() failed: %v", err)
		}
		if len(events) != 2 {
			t.Errorf("Expected 2 events left, got %d", len(events))
		}

		deleted, err = store.PruneEvents(ctx, "proj", time.Now().Add(-time.Hour), 0)
		if err != nil {
			t.Fatalf("PruneEvents() failed: %v", err)
		}
		if deleted != 0 {
			t.Errorf("Expected recent events to survive, got %d deleted", deleted)
		}
	})
}

func TestStore_ListProjects(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		ctx := context.Background()
		for _, id := range []string{"b", "a"} {
			c := id
			if _, err := store.Save(ctx, id, &pm.Update{Charter: &c}, nil); err != nil {
				t.Fatalf("Save() failed: %v", err)
			}
		}

		ids, err := store.ListProjects(ctx)
		if err != nil {
			t.Fatalf("ListProjects() failed: %v", err)
		}
		if diff := cmp.Diff([]string{"a", "b"}, ids); diff != "" {
			t.Errorf("ListProjects() mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestStore_EmptyProjectID(t *testing.T) {
	forEachStore(t, func(t *testing.T, store pm.Store) {
		_, err := store.Load(context.Background(), "")
		if !errors.Is(err, pm.ErrEmptyProjectID) {
			t.Errorf("Expected ErrEmptyProjectID, got %v", err)
		}
		var storageErr *pm.StorageError
		if !errors.As(err, &storageErr) {
			t.Errorf("Expected *pm.StorageError, got %T", err)
		}
	})
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pm.db")
	ctx := context.Background()

	cfg := DefaultSQLiteConfig()
	cfg.Path = path
	store, err := NewSQLiteStore(cfg)
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	charter := "durable"
	if _, err := store.Save(ctx, "proj", &pm.Update{Charter: &charter}, nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(&SQLiteConfig{Path: path, WALMode: true})
	if err != nil {
		t.Fatalf("NewSQLiteStore() reopen failed: %v", err)
	}
	defer reopened.Close()

	state, err := reopened.Load(ctx, "proj")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if state.Charter != "durable" || state.Version != 1 {
		t.Errorf("Expected persisted charter at version 1, got '%s' at %d", state.Charter, state.Version)
	}
}

func TestSQLiteStore_DetectsConcurrentWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pm.db")
	ctx := context.Background()

	first, err := NewSQLiteStore(&SQLiteConfig{Path: path, WALMode: true})
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	defer first.Close()
	second, err := NewSQLiteStore(&SQLiteConfig{Path: path, WALMode: true})
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	defer second.Close()

	c := "a"
	if _, err := first.Save(ctx, "proj", &pm.Update{Charter: &c}, nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// The second handle sees the first writer's version through Load.
	state, err := second.Load(ctx, "proj")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if state.Charter != "a" {
		t.Errorf("Expected second handle to observe charter 'a', got '%s'", state.Charter)
	}

	c2 := "b"
	if _, err := second.Save(ctx, "proj", &pm.Update{Charter: &c2}, nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	// The first handle's cache must not hide the second writer.
	state, err = first.Load(ctx, "proj")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if state.Charter != "b" || state.Version != 2 {
		t.Errorf("Expected charter 'b' at version 2, got '%s' at %d", state.Charter, state.Version)
	}
}

func TestMemoryStore_WritesCounter(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Load(ctx, "proj"); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if store.Writes() != 0 {
		t.Errorf("Expected 0 writes after Load, got %d", store.Writes())
	}

	c := "x"
	if _, err := store.Save(ctx, "proj", &pm.Update{Charter: &c}, nil); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if store.Writes() != 1 {
		t.Errorf("Expected 1 write, got %d", store.Writes())
	}
}
