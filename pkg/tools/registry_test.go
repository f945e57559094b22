package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/providers"
)

type stubTool struct {
	name string
	keys []string
}

func (s stubTool) Name() string        { return s.name }
func (s stubTool) Description() string { return "stub " + s.name }
func (s stubTool) Parameters() map[string]any {
	return map[string]any{"type": "object"}
}
func (s stubTool) Execute(ctx context.Context, args json.RawMessage, env Env) (*Result, error) {
	return &Result{Success: true, Output: s.name}, nil
}

type pathTool struct{ stubTool }

func (p pathTool) TargetKeys() []string { return p.keys }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r, err := NewRegistry(stubTool{name: "read_file"}, stubTool{name: "grep"})
	if err != nil {
		t.Fatalf("NewRegistry() failed: %v", err)
	}

	tool, err := r.Get("grep")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if tool.Name() != "grep" {
		t.Errorf("Expected grep, got %s", tool.Name())
	}

	_, err = r.Get("missing")
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}

	if diff := cmp.Diff([]string{"grep", "read_file"}, r.List()); diff != "" {
		t.Errorf("List() mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry_RegisterErrors(t *testing.T) {
	r, _ := NewRegistry()

	if err := r.Register(nil); err == nil {
		t.Error("Expected error for nil tool")
	}
	if err := r.Register(stubTool{}); err == nil {
		t.Error("Expected error for empty name")
	}
	if err := r.Register(stubTool{name: "a"}); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if err := r.Register(stubTool{name: "a"}); !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("Expected ErrDuplicateTool, got %v", err)
	}
}

func TestRegistry_Definitions(t *testing.T) {
	r, _ := NewRegistry(stubTool{name: "write_file"}, stubTool{name: "read_file"})

	defs := r.Definitions()
	if len(defs) != 2 {
		t.Fatalf("Expected 2 definitions, got %d", len(defs))
	}
	if defs[0].Function.Name != "read_file" || defs[1].Function.Name != "write_file" {
		t.Errorf("Expected definitions sorted by name, got %s, %s", defs[0].Function.Name, defs[1].Function.Name)
	}
	if defs[0].Type != providers.ToolTypeFunction {
		t.Errorf("Expected type %q, got %q", providers.ToolTypeFunction, defs[0].Type)
	}
}

func TestRegistry_TargetKeysFeedGate(t *testing.T) {
	r, _ := NewRegistry(
		pathTool{stubTool{name: "patch", keys: []string{"file"}}},
		stubTool{name: "shell"},
	)

	if diff := cmp.Diff([]string{"file"}, r.TargetKeys("patch")); diff != "" {
		t.Errorf("TargetKeys() mismatch (-want +got):\n%s", diff)
	}
	if keys := r.TargetKeys("shell"); keys != nil {
		t.Errorf("Expected nil keys for non-declaring tool, got %v", keys)
	}

	ev := gate.New(gate.WithTargetResolver(r))
	verdict := ev.Evaluate([]providers.ToolCall{{
		ID:       "c1",
		Function: providers.FunctionCall{Name: "patch", Arguments: `{"file":"secrets/key.pem"}`},
	}}, gate.Constraints{NeverTouch: []string{"secrets/**"}})

	if !verdict.Blocked {
		t.Error("Expected declared target key to be matched by never_touch")
	}
}

func TestResult_Content(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   string
	}{
		{"nil", nil, ""},
		{"success", &Result{Success: true, Output: "done"}, "done"},
		{"failure", Failure("boom"), "error: boom"},
		{"failure with output", &Result{Error: "exit 1", Output: "stderr"}, "error: exit 1\nstderr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.result.Content(); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
