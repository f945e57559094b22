package pm

import (
	"context"
	"encoding/json"
	"time"

	"mercator-hq/keel/pkg/gate"
)

// Store is the persistence contract for project memory.
//
// Implementations must write exactly one Event per Save and per UndoLast,
// and must return a *StorageError (or ErrVersionConflict) on any failure.
type Store interface {
	// Load returns the current state, creating the default state in memory
	// when the project has never been written.
	Load(ctx context.Context, projectID string) (*State, error)

	// Save applies update, logs one event with full before/after
	// snapshots and returns the new state.
	Save(ctx context.Context, projectID string, update *Update, meta *EventMeta) (*State, error)

	// ListEvents returns up to limit events, newest first. limit <= 0 means all.
	ListEvents(ctx context.Context, projectID string, limit int) ([]*Event, error)

	// GetEvent returns a single event or ErrEventNotFound.
	GetEvent(ctx context.Context, projectID, id string) (*Event, error)

	// UndoLast restores the before snapshot of the most recent undoable
	// event. It returns nil, nil when there is nothing to undo.
	UndoLast(ctx context.Context, projectID string) (*UndoResult, error)

	// PruneEvents deletes events older than olderThan, always keeping the
	// newest keep events of each project. An empty projectID prunes all projects.
	PruneEvents(ctx context.Context, projectID string, olderThan time.Time, keep int) (int64, error)

	// ListProjects returns the ids of every project with persisted state.
	ListProjects(ctx context.Context) ([]string, error)

	// Close releases resources held by the store.
	Close() error
}

// Update is a partial, top-level update. Each non-nil field replaces the
// whole section.
type Update struct {
	Charter        *string
	Constraints    *gate.Constraints
	Preferences    *Preferences
	RecentOutcomes *[]Outcome
	Rao            *RaoState

	// ExpectVersion, when set, makes Save fail with ErrVersionConflict
	// unless the stored version still equals it. Read-modify-write callers
	// set it to the version they loaded.
	ExpectVersion *int64
}

// CheckVersion returns ErrVersionConflict when update expects a version
// other than current's.
func (u *Update) CheckVersion(current *State) error {
	if u == nil || u.ExpectVersion == nil {
		return nil
	}
	if *u.ExpectVersion != current.Version {
		return ErrVersionConflict
	}
	return nil
}

// IsEmpty reports whether the update changes no section.
func (u *Update) IsEmpty() bool {
	return u == nil || (u.Charter == nil && u.Constraints == nil && u.Preferences == nil &&
		u.RecentOutcomes == nil && u.Rao == nil)
}

// Apply returns a copy of s with the update applied. Version and
// LastUpdated are left to the store.
func (u *Update) Apply(s *State) *State {
	out := s.Clone()
	if u == nil {
		return out
	}
	if u.Charter != nil {
		out.Charter = *u.Charter
	}
	if u.Constraints != nil {
		out.Constraints = u.Constraints.Clone()
	}
	if u.Preferences != nil {
		out.Preferences = *u.Preferences
	}
	if u.RecentOutcomes != nil {
		tmp := &State{RecentOutcomes: *u.RecentOutcomes}
		out.RecentOutcomes = tmp.Clone().RecentOutcomes
	}
	if u.Rao != nil {
		tmp := &State{Rao: *u.Rao}
		out.Rao = tmp.Clone().Rao
	}
	out.Normalize()
	return out
}

// EventType classifies PM events.
type EventType string

const (
	EventUpdate    EventType = "update"
	EventImport    EventType = "import"
	EventRaoAppend EventType = "rao_append"
	EventOutcome   EventType = "outcome"
	EventRaoPurge  EventType = "rao_purge"
	EventUndo      EventType = "undo"
)

// Undoable reports whether UndoLast may pop events of this type. Ledger
// bookkeeping and undo events themselves are skipped.
func (t EventType) Undoable() bool {
	switch t {
	case EventUpdate, EventImport, EventRaoPurge:
		return true
	default:
		return false
	}
}

// Default event metadata.
const (
	DefaultActor   = "keel"
	DefaultCommand = "pm.save"
)

// EventMeta describes who changed project memory and why.
type EventMeta struct {
	Actor     string
	Command   string
	Note      string
	EventType EventType
}

// Event is an immutable record of one state mutation.
type Event struct {
	ID        string          `json:"id"`
	ProjectID string          `json:"project_id"`
	TS        time.Time       `json:"ts"`
	Actor     string          `json:"actor"`
	Command   string          `json:"command"`
	Before    json.RawMessage `json:"before_json"`
	After     json.RawMessage `json:"after_json"`
	Note      string          `json:"note,omitempty"`
	EventType EventType       `json:"event_type"`

	// Undone is set once UndoLast has restored this event's before snapshot.
	Undone bool `json:"undone"`
}

// BeforeState decodes the before snapshot.
func (e *Event) BeforeState() (*State, error) {
	return decodeState(e.Before)
}

// AfterState decodes the after snapshot.
func (e *Event) AfterState() (*State, error) {
	return decodeState(e.After)
}

// UndoResult describes a successful undo.
type UndoResult struct {
	// Previous is the state immediately before the undo.
	Previous *State

	// State is the restored state.
	State *State

	// Popped is the event whose before snapshot was restored.
	Popped *Event

	// Event is the undo event that was logged.
	Event *Event
}
