package pm

import (
	"time"

	"mercator-hq/keel/pkg/gate"
)

// MaxRecentOutcomes bounds the recent_outcomes ring.
const MaxRecentOutcomes = 12

// State is the project-memory record for one (user, working directory) pair.
type State struct {
	ProjectID      string           `json:"project_id"`
	Charter        string           `json:"charter"`
	Constraints    gate.Constraints `json:"constraints"`
	Preferences    Preferences      `json:"preferences"`
	RecentOutcomes []Outcome        `json:"recent_outcomes"`
	Rao            RaoState         `json:"rao"`
	LastUpdated    time.Time        `json:"last_updated"`

	// Version increases by one on every write and guards concurrent writers.
	Version int64 `json:"version"`
}

// Preferences tune how the agent behaves.
type Preferences struct {
	Risk      string `json:"risk" yaml:"risk"`
	Verbosity string `json:"verbosity" yaml:"verbosity"`
}

// Outcome is one executed tool call in the recent_outcomes ring.
type Outcome struct {
	TS      time.Time `json:"ts"`
	Tool    string    `json:"tool"`
	Targets []string  `json:"targets"`
	OK      bool      `json:"ok"`
	Summary string    `json:"summary,omitempty"`
}

// RaoState holds the bounded RAO ledger.
type RaoState struct {
	History []Snapshot `json:"history"`
}

// Default preference values for a fresh state.
const (
	DefaultRisk      = "medium"
	DefaultVerbosity = "normal"
)

// NewState returns the default state created lazily on first access.
func NewState(projectID string, now time.Time) *State {
	s := &State{
		ProjectID: projectID,
		Preferences: Preferences{
			Risk:      DefaultRisk,
			Verbosity: DefaultVerbosity,
		},
		LastUpdated: now.UTC(),
	}
	s.Normalize()
	return s
}

// Normalize replaces nil slices with empty ones so that equal states
// serialise identically.
func (s *State) Normalize() {
	if s.Constraints.NeverTouch == nil {
		s.Constraints.NeverTouch = []string{}
	}
	if s.Constraints.RequireApprovalFor == nil {
		s.Constraints.RequireApprovalFor = []string{}
	}
	if s.Constraints.AlwaysAllow == nil {
		s.Constraints.AlwaysAllow = []gate.AllowRule{}
	}
	if s.RecentOutcomes == nil {
		s.RecentOutcomes = []Outcome{}
	}
	for i := range s.RecentOutcomes {
		if s.RecentOutcomes[i].Targets == nil {
			s.RecentOutcomes[i].Targets = []string{}
		}
	}
	if s.Rao.History == nil {
		s.Rao.History = []Snapshot{}
	}
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Constraints = s.Constraints.Clone()
	out.RecentOutcomes = make([]Outcome, len(s.RecentOutcomes))
	for i, o := range s.RecentOutcomes {
		o.Targets = append([]string{}, o.Targets...)
		out.RecentOutcomes[i] = o
	}
	out.Rao.History = make([]Snapshot, len(s.Rao.History))
	for i, snap := range s.Rao.History {
		out.Rao.History[i] = snap.Clone()
	}
	return &out
}

// AppendOutcome returns ring with o appended, keeping the last max entries.
func AppendOutcome(ring []Outcome, o Outcome, max int) []Outcome {
	out := make([]Outcome, 0, len(ring)+1)
	out = append(out, ring...)
	out = append(out, o)
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}
