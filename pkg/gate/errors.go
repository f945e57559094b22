package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyPattern indicates a constraint pattern is blank.
	ErrEmptyPattern = errors.New("empty pattern")

	// ErrUnknownRuleKind indicates an always_allow rule kind other than tool or path.
	ErrUnknownRuleKind = errors.New("unknown rule kind")
)

// PatternError describes a constraint pattern that can never match.
// Evaluation treats such patterns as non-matching; the error exists so that
// policy sources can reject them up front.
type PatternError struct {
	// Field is the constraint list holding the pattern (e.g., "never_touch").
	Field string

	// Pattern is the offending pattern.
	Pattern string

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *PatternError) Error() string {
	return fmt.Sprintf("%s pattern %q: %v", e.Field, e.Pattern, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *PatternError) Unwrap() error {
	return e.Cause
}
