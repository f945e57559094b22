package rao

import "mercator-hq/keel/pkg/pm"

// Status holds the most recent snapshot of each kind. Nil fields mean
// no entry of that kind has been seen.
type Status struct {
	LastRun      *pm.Snapshot `json:"last_run"`
	LastAudit    *pm.Snapshot `json:"last_audit"`
	LastOverride *pm.Snapshot `json:"last_override"`
}

func (s *Status) record(snap pm.Snapshot) {
	c := snap.Clone()
	switch snap.Kind() {
	case pm.KindRun:
		s.LastRun = &c
	case pm.KindAudit:
		s.LastAudit = &c
	case pm.KindOverride:
		s.LastOverride = &c
	}
}

func (s Status) clone() Status {
	out := Status{}
	for _, p := range []*pm.Snapshot{s.LastRun, s.LastAudit, s.LastOverride} {
		if p != nil {
			out.record(*p)
		}
	}
	return out
}

// StatusFromHistory rebuilds a Status from persisted history, for
// callers that did not observe the appends themselves.
func StatusFromHistory(history []pm.Snapshot) Status {
	out := Status{}
	for _, snap := range history {
		out.record(snap)
	}
	return out
}
