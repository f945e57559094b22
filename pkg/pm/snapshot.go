package pm

import (
	"encoding/json"
	"fmt"
	"time"

	"mercator-hq/keel/pkg/gate"
)

// SnapshotKind discriminates RAO ledger entries.
type SnapshotKind string

const (
	KindRun      SnapshotKind = "run"
	KindAudit    SnapshotKind = "audit"
	KindOverride SnapshotKind = "override"
)

// Entry is the payload of a Snapshot: *RunEntry, *AuditEntry or *OverrideEntry.
type Entry interface {
	Kind() SnapshotKind
}

// RunEntry records one executed tool call.
type RunEntry struct {
	Tool    string   `json:"tool"`
	Targets []string `json:"targets"`
	OK      bool     `json:"ok"`
}

// Kind implements Entry.
func (*RunEntry) Kind() SnapshotKind { return KindRun }

// AuditEntry records a gate evaluation that produced warnings.
type AuditEntry struct {
	Blocked  bool           `json:"blocked"`
	Warnings []gate.Warning `json:"warnings"`
}

// Kind implements Entry.
func (*AuditEntry) Kind() SnapshotKind { return KindAudit }

// OverrideEntry records a policy change made by undo.
type OverrideEntry struct {
	EventID     string   `json:"event_id"`
	ChangedKeys []string `json:"changed_keys"`
	Command     string   `json:"command"`
}

// Kind implements Entry.
func (*OverrideEntry) Kind() SnapshotKind { return KindOverride }

// Snapshot is one RAO ledger entry.
type Snapshot struct {
	ID    string
	TS    time.Time
	Entry Entry
}

// Kind returns the kind of the wrapped entry, or "" when empty.
func (s Snapshot) Kind() SnapshotKind {
	if s.Entry == nil {
		return ""
	}
	return s.Entry.Kind()
}

// Run returns the run payload when s is a run entry.
func (s Snapshot) Run() (*RunEntry, bool) {
	e, ok := s.Entry.(*RunEntry)
	return e, ok
}

// Audit returns the audit payload when s is an audit entry.
func (s Snapshot) Audit() (*AuditEntry, bool) {
	e, ok := s.Entry.(*AuditEntry)
	return e, ok
}

// Override returns the override payload when s is an override entry.
func (s Snapshot) Override() (*OverrideEntry, bool) {
	e, ok := s.Entry.(*OverrideEntry)
	return e, ok
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{ID: s.ID, TS: s.TS}
	switch e := s.Entry.(type) {
	case *RunEntry:
		c := *e
		c.Targets = append([]string{}, e.Targets...)
		out.Entry = &c
	case *AuditEntry:
		c := *e
		c.Warnings = make([]gate.Warning, len(e.Warnings))
		for i, w := range e.Warnings {
			if w.Matches != nil {
				w.Matches = append([]string{}, w.Matches...)
			}
			c.Warnings[i] = w
		}
		out.Entry = &c
	case *OverrideEntry:
		c := *e
		c.ChangedKeys = append([]string{}, e.ChangedKeys...)
		out.Entry = &c
	}
	return out
}

// snapshotJSON is the tagged wire form of a Snapshot.
type snapshotJSON struct {
	ID       string         `json:"id"`
	TS       time.Time      `json:"ts"`
	Kind     SnapshotKind   `json:"kind"`
	Run      *RunEntry      `json:"run,omitempty"`
	Audit    *AuditEntry    `json:"audit,omitempty"`
	Override *OverrideEntry `json:"override,omitempty"`
}

// MarshalJSON encodes the snapshot as {id, ts, kind, run|audit|override}.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	w := snapshotJSON{ID: s.ID, TS: s.TS, Kind: s.Kind()}
	switch e := s.Entry.(type) {
	case *RunEntry:
		w.Run = e
	case *AuditEntry:
		w.Audit = e
	case *OverrideEntry:
		w.Override = e
	case nil:
		return nil, fmt.Errorf("snapshot %s has no entry", s.ID)
	default:
		return nil, fmt.Errorf("snapshot %s has unsupported entry %T", s.ID, e)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the tagged wire form.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	s.ID = w.ID
	s.TS = w.TS
	switch w.Kind {
	case KindRun:
		if w.Run == nil {
			w.Run = &RunEntry{}
		}
		if w.Run.Targets == nil {
			w.Run.Targets = []string{}
		}
		s.Entry = w.Run
	case KindAudit:
		if w.Audit == nil {
			w.Audit = &AuditEntry{}
		}
		if w.Audit.Warnings == nil {
			w.Audit.Warnings = []gate.Warning{}
		}
		s.Entry = w.Audit
	case KindOverride:
		if w.Override == nil {
			w.Override = &OverrideEntry{}
		}
		if w.Override.ChangedKeys == nil {
			w.Override.ChangedKeys = []string{}
		}
		s.Entry = w.Override
	default:
		return fmt.Errorf("snapshot %s: unknown kind %q", w.ID, w.Kind)
	}
	return nil
}
