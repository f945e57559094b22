package tools

import (
	"context"
	"encoding/json"
)

// Tool is an executable capability offered to the model.
type Tool interface {
	// Name is the identifier the model uses in tool calls.
	Name() string

	// Description is shown to the model.
	Description() string

	// Parameters is the JSON schema of the arguments object.
	Parameters() map[string]any

	// Execute runs the tool. A returned error is a recoverable failure
	// and is reported back to the model.
	Execute(ctx context.Context, args json.RawMessage, env Env) (*Result, error)
}

// TargetDeclarer is implemented by tools whose arguments name files.
type TargetDeclarer interface {
	// TargetKeys lists the argument keys that hold file paths.
	TargetKeys() []string
}

// Env is the execution environment handed to a tool.
type Env struct {
	WorkDir string
	Scope   []string
}

// Result is the outcome of one tool execution.
type Result struct {
	Success  bool           `json:"success"`
	Output   string         `json:"output"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Failure returns an unsuccessful result carrying msg.
func Failure(msg string) *Result {
	return &Result{Success: false, Error: msg}
}

// Content renders the result as the text fed back to the model.
func (r *Result) Content() string {
	if r == nil {
		return ""
	}
	if r.Success {
		return r.Output
	}
	if r.Output == "" {
		return "error: " + r.Error
	}
	return "error: " + r.Error + "\n" + r.Output
}
