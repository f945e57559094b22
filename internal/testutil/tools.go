package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"mercator-hq/keel/pkg/tools"
)

// FakeTool records its invocations and returns a canned result.
type FakeTool struct {
	ToolName string
	Keys     []string

	// Result is returned on success. Nil means {Success: true, Output: "ok"}.
	Result *tools.Result

	// Err, when set, is returned from Execute.
	Err error

	mu    sync.Mutex
	calls []json.RawMessage
}

// NewFakeTool returns a tool named name that declares keys as target keys.
func NewFakeTool(name string, keys ...string) *FakeTool {
	return &FakeTool{ToolName: name, Keys: keys}
}

// Name implements tools.Tool.
func (f *FakeTool) Name() string { return f.ToolName }

// Description implements tools.Tool.
func (f *FakeTool) Description() string { return "fake " + f.ToolName }

// Parameters implements tools.Tool.
func (f *FakeTool) Parameters() map[string]any {
	props := map[string]any{}
	for _, k := range f.Keys {
		props[k] = map[string]any{"type": "string"}
	}
	return map[string]any{"type": "object", "properties": props}
}

// TargetKeys implements tools.TargetDeclarer.
func (f *FakeTool) TargetKeys() []string { return f.Keys }

// Execute records args and returns the canned outcome.
func (f *FakeTool) Execute(ctx context.Context, args json.RawMessage, env tools.Env) (*tools.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append(json.RawMessage(nil), args...))
	f.mu.Unlock()

	if f.Err != nil {
		return nil, f.Err
	}
	if f.Result != nil {
		r := *f.Result
		return &r, nil
	}
	return &tools.Result{Success: true, Output: "ok"}, nil
}

// Calls returns the raw arguments of every invocation.
func (f *FakeTool) Calls() []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage(nil), f.calls...)
}

// CallCount returns how many times Execute ran.
func (f *FakeTool) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
