package storage

import (
	"context"
	"sync"

	"mercator-hq/keel/pkg/decisionlog"
)

// MemoryStorage keeps decisions in a map.
type MemoryStorage struct {
	records map[string]*decisionlog.Decision
	mu      sync.RWMutex
}

// NewMemoryStorage creates an empty in-memory backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*decisionlog.Decision)}
}

// Store saves a copy of d.
func (s *MemoryStorage) Store(ctx context.Context, d *decisionlog.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[d.ID] = clone(d)
	return nil
}

// Query returns copies of the matching decisions.
func (s *MemoryStorage) Query(ctx context.Context, q *decisionlog.Query) ([]*decisionlog.Decision, error) {
	if q == nil {
		q = &decisionlog.Query{}
	}
	if err := decisionlog.Validate(q); err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make([]*decisionlog.Decision, 0)
	for _, d := range s.records {
		if q.Matches(d) {
			results = append(results, clone(d))
		}
	}
	s.mu.RUnlock()

	return decisionlog.SortAndPage(results, q), nil
}

// Count returns the number of matching decisions.
func (s *MemoryStorage) Count(ctx context.Context, q *decisionlog.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, d := range s.records {
		if q.Matches(d) {
			n++
		}
	}
	return n, nil
}

// Delete removes matching decisions.
func (s *MemoryStorage) Delete(ctx context.Context, q *decisionlog.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, d := range s.records {
		if q.Matches(d) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

// Size returns the number of stored decisions.
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func clone(d *decisionlog.Decision) *decisionlog.Decision {
	out := *d
	out.Targets = append([]string{}, d.Targets...)
	return &out
}
