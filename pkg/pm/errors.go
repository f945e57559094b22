package pm

import (
	"errors"
	"fmt"
)

var (
	// ErrEventNotFound indicates no event with the requested id exists for the project.
	ErrEventNotFound = errors.New("pm event not found")

	// ErrVersionConflict indicates another writer changed the state since it was loaded.
	ErrVersionConflict = errors.New("pm state version conflict")

	// ErrEmptyProjectID indicates an operation was called without a project id.
	ErrEmptyProjectID = errors.New("project id is required")
)

// StorageError represents a failure reading or writing project memory.
// Persistence failures are fatal to the caller: audit and undo depend on
// every state change being durably logged.
type StorageError struct {
	Backend   string
	Operation string
	Cause     error
}

// Error returns the error message.
func (e *StorageError) Error() string {
	return fmt.Sprintf("pm storage error (%s, %s): %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new storage error.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}
