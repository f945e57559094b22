package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTask is returned by Continue before StartTask.
	ErrNoTask = errors.New("no task started")

	// ErrGatePending is returned when a proposal awaits resolution.
	ErrGatePending = errors.New("a proposal is awaiting approval")

	// ErrNoPendingGate is returned by the resolution methods when nothing is pending.
	ErrNoPendingGate = errors.New("no pending gate")

	// ErrGateBlocked is returned when approving a proposal that touches a never_touch path.
	ErrGateBlocked = errors.New("pending proposal is blocked by never_touch")

	// ErrNoCommonPrefix is returned when no path rule can be inferred from the pending targets.
	ErrNoCommonPrefix = errors.New("pending targets share no common path prefix")

	// ErrUnknownRuleKind is returned for always-allow kinds other than tool and path.
	ErrUnknownRuleKind = errors.New("unknown always-allow kind")
)

// ToolError wraps a failure returned by a tool's Execute. It is reported
// to the model, never returned from the loop.
type ToolError struct {
	Tool   string
	CallID string
	Cause  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %q (call %s) failed: %v", e.Tool, e.CallID, e.Cause)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// ConfigError reports an unusable agent construction.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("agent config error: %s: %s", e.Field, e.Message)
}
