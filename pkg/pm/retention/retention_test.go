package retention

import (
	"context"
	"testing"
	"time"

	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/pm/storage"
)

func seed(t *testing.T, store *storage.MemoryStore, project string, n int, at time.Time) {
	t.Helper()
	store.SetClock(func() time.Time { return at })
	for i := 0; i < n; i++ {
		c := "charter"
		if _, err := store.Save(context.Background(), project, &pm.Update{Charter: &c}, nil); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}
}

func TestPruner_PrunesOldEventsKeepingNewest(t *testing.T) {
	store := storage.NewMemoryStore()
	now := time.Now()
	seed(t, store, "a", 5, now.AddDate(0, 0, -100))
	seed(t, store, "b", 3, now.AddDate(0, 0, -100))
	seed(t, store, "b", 2, now)

	pruner := NewPruner(store, &Config{MaxAgeDays: 30, KeepEvents: 2})
	deleted, err := pruner.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}

	// a: 5 old, keep 2 -> 3 deleted. b: 3 old + 2 new, newest 2 kept -> 3 old deleted.
	if deleted != 6 {
		t.Errorf("Expected 6 deleted, got %d", deleted)
	}
	if n := store.EventCount("a"); n != 2 {
		t.Errorf("Expected 2 events left for a, got %d", n)
	}
	if n := store.EventCount("b"); n != 2 {
		t.Errorf("Expected 2 events left for b, got %d", n)
	}
}

func TestPruner_PruneProjectLeavesOthers(t *testing.T) {
	store := storage.NewMemoryStore()
	old := time.Now().AddDate(0, 0, -100)
	seed(t, store, "a", 4, old)
	seed(t, store, "b", 4, old)

	pruner := NewPruner(store, &Config{MaxAgeDays: 30, KeepEvents: 1})
	deleted, err := pruner.PruneProject(context.Background(), "a")
	if err != nil {
		t.Fatalf("PruneProject() failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted, got %d", deleted)
	}
	if n := store.EventCount("b"); n != 4 {
		t.Errorf("Expected project b untouched, got %d events", n)
	}

	if _, err := pruner.PruneProject(context.Background(), ""); err == nil {
		t.Error("Expected error for empty project id")
	}
}

func TestPruner_DisabledKeepsEverything(t *testing.T) {
	store := storage.NewMemoryStore()
	seed(t, store, "a", 3, time.Now().AddDate(-1, 0, 0))

	deleted, err := NewPruner(store, &Config{MaxAgeDays: 0}).Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 0 || store.EventCount("a") != 3 {
		t.Errorf("Expected nothing pruned, got %d deleted and %d left", deleted, store.EventCount("a"))
	}
}

func TestScheduler_StartStop(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStore(), &Config{MaxAgeDays: 30, Schedule: "0 3 * * *"})
	scheduler := NewScheduler(pruner)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if !scheduler.IsRunning() {
		t.Error("Expected scheduler to be running")
	}
	if next := scheduler.NextRun(); next == nil || next.Hour() != 3 {
		t.Errorf("Expected next run at 3 AM, got %v", next)
	}

	scheduler.Stop()
	if scheduler.IsRunning() {
		t.Error("Expected scheduler to be stopped")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStore(), &Config{MaxAgeDays: 30, Schedule: "not a cron"})
	if err := NewScheduler(pruner).Start(context.Background()); err == nil {
		t.Error("Expected error for invalid schedule")
	}
}

func TestScheduler_EmptyScheduleIsIdle(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStore(), &Config{MaxAgeDays: 30})
	scheduler := NewScheduler(pruner)
	if err := scheduler.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if scheduler.IsRunning() {
		t.Error("Expected idle scheduler")
	}
}
