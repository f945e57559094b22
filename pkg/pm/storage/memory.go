package storage

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/keel/pkg/pm"
)

// MemoryStore implements pm.Store in memory. Copies are returned from
// every read so callers cannot mutate stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*pm.State
	events map[string][]*pm.Event // oldest first
	writes atomic.Int64
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*pm.State),
		events: make(map[string][]*pm.Event),
		now:    time.Now,
	}
}

// SetClock replaces the time source (testing helper).
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Load returns a copy of the current state, or a fresh default state.
func (m *MemoryStore) Load(ctx context.Context, projectID string) (*pm.State, error) {
	if projectID == "" {
		return nil, pm.NewStorageError("memory", "load", pm.ErrEmptyProjectID)
	}
	if err := ctx.Err(); err != nil {
		return nil, pm.NewStorageError("memory", "load", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.states[projectID]; ok {
		return s.Clone(), nil
	}
	return pm.NewState(projectID, m.now()), nil
}

// Save applies update and logs one event.
func (m *MemoryStore) Save(ctx context.Context, projectID string, update *pm.Update, meta *pm.EventMeta) (*pm.State, error) {
	if projectID == "" {
		return nil, pm.NewStorageError("memory", "save", pm.ErrEmptyProjectID)
	}
	if err := ctx.Err(); err != nil {
		return nil, pm.NewStorageError("memory", "save", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	current := m.currentLocked(projectID, now)
	if err := update.CheckVersion(current); err != nil {
		return nil, pm.NewStorageError("memory", "save", err)
	}
	next := pm.Commit(current, update, now)

	ev, err := pm.NewEvent(projectID, current, next, meta, now)
	if err != nil {
		return nil, pm.NewStorageError("memory", "encode_event", err)
	}

	m.states[projectID] = next
	m.events[projectID] = append(m.events[projectID], ev)
	m.writes.Add(1)

	return next.Clone(), nil
}

// ListEvents returns events newest first.
func (m *MemoryStore) ListEvents(ctx context.Context, projectID string, limit int) ([]*pm.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, pm.NewStorageError("memory", "list_events", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.listLocked(projectID, limit), nil
}

// GetEvent returns a single event.
func (m *MemoryStore) GetEvent(ctx context.Context, projectID, id string) (*pm.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, pm.NewStorageError("memory", "get_event", err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, ev := range m.events[projectID] {
		if ev.ID == id {
			return copyEvent(ev), nil
		}
	}
	return nil, pm.ErrEventNotFound
}

// UndoLast restores the before snapshot of the newest undoable event.
func (m *MemoryStore) UndoLast(ctx context.Context, projectID string) (*pm.UndoResult, error) {
	if projectID == "" {
		return nil, pm.NewStorageError("memory", "undo", pm.ErrEmptyProjectID)
	}
	if err := ctx.Err(); err != nil {
		return nil, pm.NewStorageError("memory", "undo", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	events := m.events[projectID]
	var popped *pm.Event
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EventType.Undoable() && !events[i].Undone {
			popped = events[i]
			break
		}
	}
	if popped == nil {
		return nil, nil
	}

	now := m.now()
	current := m.currentLocked(projectID, now)
	restored, err := pm.Restore(current, popped)
	if err != nil {
		return nil, pm.NewStorageError("memory", "restore", err)
	}

	undoEv, err := pm.NewEvent(projectID, current, restored, &pm.EventMeta{
		Command:   "pm.undo",
		Note:      "undo of " + popped.ID,
		EventType: pm.EventUndo,
	}, now)
	if err != nil {
		return nil, pm.NewStorageError("memory", "encode_event", err)
	}

	popped.Undone = true
	m.states[projectID] = restored
	m.events[projectID] = append(events, undoEv)
	m.writes.Add(1)

	return &pm.UndoResult{
		Previous: current,
		State:    restored.Clone(),
		Popped:   copyEvent(popped),
		Event:    copyEvent(undoEv),
	}, nil
}

// PruneEvents deletes old events while keeping the newest keep per project.
func (m *MemoryStore) PruneEvents(ctx context.Context, projectID string, olderThan time.Time, keep int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, pm.NewStorageError("memory", "prune", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for pid, events := range m.events {
		if projectID != "" && pid != projectID {
			continue
		}
		protected := len(events) - keep
		kept := events[:0]
		for i, ev := range events {
			if i < protected && ev.TS.Before(olderThan) {
				deleted++
				continue
			}
			kept = append(kept, ev)
		}
		m.events[pid] = kept
	}
	return deleted, nil
}

// ListProjects returns the ids of all projects with persisted state.
func (m *MemoryStore) ListProjects(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}

// Writes returns the number of successful writes (testing helper).
func (m *MemoryStore) Writes() int64 {
	return m.writes.Load()
}

// EventCount returns the number of events stored for a project (testing helper).
func (m *MemoryStore) EventCount(projectID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events[projectID])
}

func (m *MemoryStore) currentLocked(projectID string, now time.Time) *pm.State {
	if s, ok := m.states[projectID]; ok {
		return s.Clone()
	}
	return pm.NewState(projectID, now)
}

func (m *MemoryStore) listLocked(projectID string, limit int) []*pm.Event {
	events := m.events[projectID]
	out := make([]*pm.Event, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, copyEvent(events[i]))
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func copyEvent(ev *pm.Event) *pm.Event {
	c := *ev
	c.Before = append([]byte(nil), ev.Before...)
	c.After = append([]byte(nil), ev.After...)
	return &c
}
