package pm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResolveMeta fills defaults into meta.
func ResolveMeta(meta *EventMeta) EventMeta {
	out := EventMeta{}
	if meta != nil {
		out = *meta
	}
	if out.Actor == "" {
		out.Actor = DefaultActor
	}
	if out.Command == "" {
		out.Command = DefaultCommand
	}
	if out.EventType == "" {
		out.EventType = EventUpdate
	}
	return out
}

// NewEvent builds an event recording the transition from before to after.
func NewEvent(projectID string, before, after *State, meta *EventMeta, now time.Time) (*Event, error) {
	m := ResolveMeta(meta)

	beforeJSON, err := json.Marshal(before)
	if err != nil {
		return nil, fmt.Errorf("failed to encode before snapshot: %w", err)
	}
	afterJSON, err := json.Marshal(after)
	if err != nil {
		return nil, fmt.Errorf("failed to encode after snapshot: %w", err)
	}

	return &Event{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		TS:        now.UTC(),
		Actor:     m.Actor,
		Command:   m.Command,
		Before:    beforeJSON,
		After:     afterJSON,
		Note:      m.Note,
		EventType: m.EventType,
	}, nil
}

// Commit applies update to current and stamps the result. It is the write
// path shared by every store.
func Commit(current *State, update *Update, now time.Time) *State {
	next := update.Apply(current)
	next.ProjectID = current.ProjectID
	next.Version = current.Version + 1
	next.LastUpdated = now.UTC()
	return next
}

// Restore computes the state that undoing ev yields on top of current.
//
// The before snapshot of ev becomes the state, except that the append-only
// ledger sections (rao history and recent outcomes) keep their current
// contents; a rao_purge undo restores the purged history. Version keeps
// increasing so concurrent writers still detect the change.
func Restore(current *State, ev *Event) (*State, error) {
	restored, err := ev.BeforeState()
	if err != nil {
		return nil, err
	}

	restored.ProjectID = current.ProjectID
	restored.RecentOutcomes = current.Clone().RecentOutcomes
	if ev.EventType != EventRaoPurge {
		restored.Rao = current.Clone().Rao
	}
	restored.Version = current.Version + 1
	restored.Normalize()
	return restored, nil
}

// PickUndoable returns the newest event that may be undone, or nil.
// events must be ordered newest first.
func PickUndoable(events []*Event) *Event {
	for _, ev := range events {
		if ev.EventType.Undoable() && !ev.Undone {
			return ev
		}
	}
	return nil
}

func decodeState(raw json.RawMessage) (*State, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty state snapshot")
	}
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode state snapshot: %w", err)
	}
	s.Normalize()
	return &s, nil
}
