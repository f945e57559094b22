package cli

import (
	"errors"
	"fmt"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := &ConfigError{
		Field:   "memory.backend",
		Message: "must be memory or sqlite",
	}

	expected := "config error in memory.backend: must be memory or sqlite"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}

	bare := NewConfigError("", "file not found")
	if bare.Error() != "config error: file not found" {
		t.Errorf("Error() = %q, want %q", bare.Error(), "config error: file not found")
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	underlyingErr := errors.New("underlying error")
	err := NewCommandError("pm undo", underlyingErr)

	expected := "command pm undo failed: underlying error"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
	if !errors.Is(err, underlyingErr) {
		t.Error("errors.Is() should work with CommandError.Unwrap()")
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", fmt.Errorf("load: %w", NewConfigError("agent.mode", "bad")), ExitConfig},
		{"confirmation", NewCommandError("rao purge", ErrConfirmationRequired), ExitUsage},
		{"other", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
