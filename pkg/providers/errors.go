package providers

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrFirstTokenTimeout indicates the stream produced nothing before the first-token deadline.
	ErrFirstTokenTimeout = errors.New("stream first-token timeout")

	// ErrStreamTimeout indicates the stream did not finish before the overall deadline.
	ErrStreamTimeout = errors.New("stream overall timeout")
)

// ProviderError represents a general provider error.
type ProviderError struct {
	// Provider is the name of the provider that returned the error
	Provider string

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("provider %q error: %s: %v", e.Provider, e.Message, e.Cause)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, message string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Cause:    cause,
	}
}

// StreamTimeoutError reports which streaming deadline fired and how much
// output had been collected by then.
type StreamTimeoutError struct {
	// Phase is "first_token" or "overall"
	Phase string

	// After is the deadline that elapsed
	After time.Duration

	// Received is the number of chunks delivered before the deadline
	Received int
}

// Error implements the error interface.
func (e *StreamTimeoutError) Error() string {
	return fmt.Sprintf("stream %s timeout after %v (%d chunks received)", e.Phase, e.After, e.Received)
}

// Unwrap maps the phase onto the matching sentinel error.
func (e *StreamTimeoutError) Unwrap() error {
	if e.Phase == "first_token" {
		return ErrFirstTokenTimeout
	}
	return ErrStreamTimeout
}
