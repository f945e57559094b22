package policyfile

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyFile indicates a policy file with no recognised sections.
var ErrEmptyFile = errors.New("policy file sets no sections")

// LoadError reports a policy file that could not be read or parsed.
type LoadError struct {
	Path  string
	Cause error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load policy file %q: %v", e.Path, e.Cause)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ValidationError lists every malformed pattern in a policy file.
type ValidationError struct {
	Path   string
	Errors []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("invalid policy file %q: %s", e.Path, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() []error {
	return e.Errors
}
