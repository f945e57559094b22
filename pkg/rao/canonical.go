package rao

import (
	"bytes"
	"encoding/json"
	"sort"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
)

// canonicalAudit is the comparison form of an audit entry.
type canonicalAudit struct {
	Blocked  bool           `json:"blocked"`
	Warnings []gate.Warning `json:"warnings"`
}

func canonicalize(a *pm.AuditEntry) canonicalAudit {
	warnings := make([]gate.Warning, len(a.Warnings))
	copy(warnings, a.Warnings)
	sort.SliceStable(warnings, func(i, j int) bool {
		return warnings[i].SortKey() < warnings[j].SortKey()
	})
	return canonicalAudit{Blocked: a.Blocked, Warnings: warnings}
}

// SameAudit reports whether two audit entries have equal canonical forms.
func SameAudit(a, b *pm.AuditEntry) bool {
	if a == nil || b == nil {
		return a == b
	}
	ja, errA := json.Marshal(canonicalize(a))
	jb, errB := json.Marshal(canonicalize(b))
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// isDuplicate reports whether next repeats the last history entry.
func isDuplicate(history []pm.Snapshot, next pm.Entry) bool {
	if len(history) == 0 {
		return false
	}
	nextAudit, ok := next.(*pm.AuditEntry)
	if !ok {
		return false
	}
	lastAudit, ok := history[len(history)-1].Audit()
	if !ok {
		return false
	}
	return SameAudit(lastAudit, nextAudit)
}

// trim keeps the newest max entries.
func trim(history []pm.Snapshot, max int) []pm.Snapshot {
	if max > 0 && len(history) > max {
		return history[len(history)-max:]
	}
	return history
}
