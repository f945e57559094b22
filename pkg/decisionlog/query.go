package decisionlog

import (
	"fmt"
	"sort"
)

const (
	// DefaultLimit is applied when a query sets no limit.
	DefaultLimit = 100

	// MaxLimit caps a single query.
	MaxLimit = 10000
)

// Validate checks q for out-of-range values.
func Validate(q *Query) error {
	if q.Limit < 0 {
		return NewQueryError(q, fmt.Errorf("limit must be >= 0, got %d", q.Limit))
	}
	if q.Limit > MaxLimit {
		return NewQueryError(q, fmt.Errorf("limit must be <= %d, got %d", MaxLimit, q.Limit))
	}
	if q.Offset < 0 {
		return NewQueryError(q, fmt.Errorf("offset must be >= 0, got %d", q.Offset))
	}
	if q.SortOrder != "" && q.SortOrder != "asc" && q.SortOrder != "desc" {
		return NewQueryError(q, fmt.Errorf("invalid sort order: %s (must be 'asc' or 'desc')", q.SortOrder))
	}
	if q.StartTime != nil && q.EndTime != nil && q.StartTime.After(*q.EndTime) {
		return NewQueryError(q, fmt.Errorf("start_time must be before end_time"))
	}
	return nil
}

// ApplyDefaults fills in the limit and sort order.
func ApplyDefaults(q *Query) {
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.SortOrder == "" {
		q.SortOrder = "desc"
	}
}

// SortAndPage orders decisions by timestamp (ties by id) and applies
// q's offset and limit.
func SortAndPage(decisions []*Decision, q *Query) []*Decision {
	desc := q.SortOrder != "asc"
	sort.SliceStable(decisions, func(i, j int) bool {
		a, b := decisions[i], decisions[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			if desc {
				return a.Timestamp.After(b.Timestamp)
			}
			return a.Timestamp.Before(b.Timestamp)
		}
		if desc {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})

	if q.Offset >= len(decisions) {
		return []*Decision{}
	}
	decisions = decisions[q.Offset:]
	if q.Limit > 0 && q.Limit < len(decisions) {
		decisions = decisions[:q.Limit]
	}
	return decisions
}
