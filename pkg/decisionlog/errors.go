package decisionlog

import (
	"errors"
	"fmt"
)

// ErrRecorderClosed is returned by Record after Close.
var ErrRecorderClosed = errors.New("decision recorder closed")

// StorageError represents a storage backend failure.
type StorageError struct {
	Backend   string // "memory", "sqlite"
	Operation string // "store", "query", "delete"
	Cause     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("decision storage error (%s.%s): %v", e.Backend, e.Operation, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{Backend: backend, Operation: operation, Cause: cause}
}

// QueryError represents an invalid query.
type QueryError struct {
	Query *Query
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("decision query error: %v", e.Cause)
}

func (e *QueryError) Unwrap() error {
	return e.Cause
}

// NewQueryError creates a new QueryError.
func NewQueryError(q *Query, cause error) *QueryError {
	return &QueryError{Query: q, Cause: cause}
}

// RecorderError represents a decision that could not be enqueued.
type RecorderError struct {
	DecisionID string
	Cause      error
}

func (e *RecorderError) Error() string {
	if e.DecisionID != "" {
		return fmt.Sprintf("decision recorder error (decision %s): %v", e.DecisionID, e.Cause)
	}
	return fmt.Sprintf("decision recorder error: %v", e.Cause)
}

func (e *RecorderError) Unwrap() error {
	return e.Cause
}

// ExportError represents an export failure.
type ExportError struct {
	Format string
	Count  int
	Cause  error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("decision export error (format: %s, decisions: %d): %v", e.Format, e.Count, e.Cause)
}

func (e *ExportError) Unwrap() error {
	return e.Cause
}

// NewExportError creates a new ExportError.
func NewExportError(format string, count int, cause error) *ExportError {
	return &ExportError{Format: format, Count: count, Cause: cause}
}
