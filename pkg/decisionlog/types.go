package decisionlog

import (
	"context"
	"io"
	"time"
)

// Decision is one executed tool call.
type Decision struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	TaskID      string    `json:"task_id"`
	Timestamp   time.Time `json:"ts"`
	Tool        string    `json:"tool"`
	Targets     []string  `json:"targets"`
	Summary     string    `json:"summary,omitempty"`
	OutputHash  string    `json:"output_hash"`
	OutputBytes int       `json:"output_bytes"`
}

// Query filters stored decisions. Zero-valued fields do not filter.
type Query struct {
	ProjectID string     `json:"project_id,omitempty"`
	TaskID    string     `json:"task_id,omitempty"`
	Tool      string     `json:"tool,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"` // inclusive
	EndTime   *time.Time `json:"end_time,omitempty"`   // inclusive

	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
	SortOrder string `json:"sort_order,omitempty"` // "asc" or "desc" by timestamp
}

// Matches reports whether d passes every filter in q.
func (q *Query) Matches(d *Decision) bool {
	if q == nil {
		return true
	}
	if q.ProjectID != "" && d.ProjectID != q.ProjectID {
		return false
	}
	if q.TaskID != "" && d.TaskID != q.TaskID {
		return false
	}
	if q.Tool != "" && d.Tool != q.Tool {
		return false
	}
	if q.StartTime != nil && d.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && d.Timestamp.After(*q.EndTime) {
		return false
	}
	return true
}

// Storage persists decisions. Implementations must be safe for
// concurrent use.
type Storage interface {
	// Store persists a decision.
	Store(ctx context.Context, d *Decision) error

	// Query returns matching decisions ordered by timestamp.
	// It returns an empty slice when nothing matches.
	Query(ctx context.Context, q *Query) ([]*Decision, error)

	// Count returns the number of matching decisions, ignoring pagination.
	Count(ctx context.Context, q *Query) (int64, error)

	// Delete removes matching decisions and returns how many were removed.
	Delete(ctx context.Context, q *Query) (int64, error)

	// Close releases resources held by the backend.
	Close() error
}

// Exporter writes decisions in some format.
type Exporter interface {
	Export(ctx context.Context, decisions []*Decision, w io.Writer) error
}
