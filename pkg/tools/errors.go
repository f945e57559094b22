package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrToolNotFound indicates a lookup for an unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrDuplicateTool indicates a second registration under the same name.
	ErrDuplicateTool = errors.New("tool already registered")
)

// RegistryError describes a failed registry operation.
type RegistryError struct {
	Operation string
	Tool      string
	Err       error
}

// Error implements the error interface.
func (e *RegistryError) Error() string {
	if e.Tool == "" {
		return fmt.Sprintf("tool registry %s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("tool registry %s %q: %v", e.Operation, e.Tool, e.Err)
}

// Unwrap returns the underlying error.
func (e *RegistryError) Unwrap() error {
	return e.Err
}
