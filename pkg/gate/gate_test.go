package gate

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/keel/pkg/providers"
)

func call(id, name, args string) providers.ToolCall {
	return providers.ToolCall{
		ID:       id,
		Type:     providers.ToolTypeFunction,
		Function: providers.FunctionCall{Name: name, Arguments: args},
	}
}

type staticResolver map[string][]string

func (r staticResolver) TargetKeys(tool string) []string {
	return r[tool]
}

func TestEvaluate_NoConstraints(t *testing.T) {
	v := Evaluate([]providers.ToolCall{call("1", "write_file", `{"path":"src/a.ts"}`)}, Constraints{})

	if !v.Allowed() {
		t.Errorf("Expected call to be allowed, got %s", v)
	}
	if v.Warnings == nil {
		t.Error("Expected non-nil warnings slice")
	}
}

func TestEvaluate_NeverTouchBlocks(t *testing.T) {
	c := Constraints{NeverTouch: []string{"secrets/**"}}
	v := Evaluate([]providers.ToolCall{call("1", "write_file", `{"path":"secrets/key.txt"}`)}, c)

	if !v.Blocked {
		t.Fatal("Expected blocked verdict")
	}
	if !v.NeedsApproval {
		t.Error("Expected needs_approval when a warning fired")
	}
	if len(v.Warnings) != 1 {
		t.Fatalf("Expected 1 warning, got %d", len(v.Warnings))
	}

	w := v.Warnings[0]
	if w.Code != CodeNeverTouchPath || w.Kind != WarningNeverTouch {
		t.Errorf("Expected never_touch.path warning, got %s/%s", w.Kind, w.Code)
	}
	if w.Subject != "secrets/**" {
		t.Errorf("Expected subject 'secrets/**', got '%s'", w.Subject)
	}
	if diff := cmp.Diff([]string{"secrets/key.txt"}, w.Matches); diff != "" {
		t.Errorf("Matches mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_NeverTouchResolvesDotDot(t *testing.T) {
	c := Constraints{
		NeverTouch:  []string{"secrets/**"},
		AlwaysAllow: []AllowRule{PathRule("src/**")},
	}
	tc := call("1", "write_file", `{"path":"src/../secrets/key.txt"}`)

	if diff := cmp.Diff([]string{"secrets/key.txt"}, New().Targets(tc)); diff != "" {
		t.Errorf("Targets mismatch (-want +got):\n%s", diff)
	}

	v := Evaluate([]providers.ToolCall{tc}, c)
	if !v.Blocked {
		t.Fatal("Expected a path escaping through .. to be blocked")
	}
	if diff := cmp.Diff([]string{"secrets/key.txt"}, v.Warnings[0].Matches); diff != "" {
		t.Errorf("Matches mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_NeverTouchNotOverridableByAlwaysAllow(t *testing.T) {
	c := Constraints{
		NeverTouch:  []string{"secrets/**"},
		AlwaysAllow: []AllowRule{ToolRule("write_file"), PathRule("secrets/**")},
	}
	v := Evaluate([]providers.ToolCall{call("1", "write_file", `{"path":"secrets/key.txt"}`)}, c)

	if !v.Blocked {
		t.Error("Expected never_touch to win over always_allow")
	}
}

func TestEvaluate_NeverTouchShortCircuitsRequireApproval(t *testing.T) {
	c := Constraints{
		NeverTouch:         []string{"secrets/**"},
		RequireApprovalFor: []string{"write", "secrets/**"},
	}
	v := Evaluate([]providers.ToolCall{call("1", "write_file", `{"path":"secrets/key.txt"}`)}, c)

	if len(v.Warnings) != 1 {
		t.Fatalf("Expected only the never_touch warning, got %d: %+v", len(v.Warnings), v.Warnings)
	}
	if v.Warnings[0].Code != CodeNeverTouchPath {
		t.Errorf("Expected never_touch.path, got %s", v.Warnings[0].Code)
	}
}

func TestEvaluate_RequireApprovalToolAndPath(t *testing.T) {
	c := Constraints{RequireApprovalFor: []string{"write_file", "src/**"}}
	v := Evaluate([]providers.ToolCall{call("1", "write_file", `{"path":"src/a.ts"}`)}, c)

	if v.Blocked {
		t.Error("Expected not blocked")
	}
	if !v.NeedsApproval {
		t.Fatal("Expected needs_approval")
	}

	var codes []string
	for _, w := range v.Warnings {
		codes = append(codes, w.Code+"|"+w.Subject)
	}
	want := []string{
		"require_approval.tool|write_file",
		"require_approval.path|src/** -> src/a.ts",
	}
	if diff := cmp.Diff(want, codes); diff != "" {
		t.Errorf("Warnings mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_BothPathAndToolForSamePattern(t *testing.T) {
	// "deploy" is a substring of both the tool name and the target.
	c := Constraints{RequireApprovalFor: []string{"deploy"}}
	v := Evaluate([]providers.ToolCall{call("1", "deploy_service", `{"target":"deploy/prod.yaml"}`)}, c)

	if len(v.Warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %d", len(v.Warnings))
	}
	if v.Warnings[0].Code != CodeRequireApprovalPath || v.Warnings[1].Code != CodeRequireApprovalTool {
		t.Errorf("Expected path then tool warning, got %s, %s", v.Warnings[0].Code, v.Warnings[1].Code)
	}
}

func TestEvaluate_AlwaysAllowToolExempts(t *testing.T) {
	c := Constraints{
		RequireApprovalFor: []string{"write_file", "src/**"},
		AlwaysAllow:        []AllowRule{ToolRule("write_file")},
	}

	for _, args := range []string{`{"path":"src/a.ts"}`, `{"path":"docs/x.md"}`, `{}`, `not-json`} {
		v := Evaluate([]providers.ToolCall{call("1", "write_file", args)}, c)
		if !v.Allowed() {
			t.Errorf("Expected write_file(%s) to be exempt, got %s", args, v)
		}
	}
}

func TestEvaluate_AlwaysAllowPathRequiresEveryTarget(t *testing.T) {
	c := Constraints{
		RequireApprovalFor: []string{"write_file"},
		AlwaysAllow:        []AllowRule{PathRule("src/**")},
	}

	v := Evaluate([]providers.ToolCall{call("1", "write_file", `{"files":["src/a.ts","src/b/c.ts"]}`)}, c)
	if !v.Allowed() {
		t.Errorf("Expected all-covered targets to be exempt, got %s", v)
	}

	v = Evaluate([]providers.ToolCall{call("2", "write_file", `{"files":["src/a.ts","docs/x.md"]}`)}, c)
	if !v.NeedsApproval {
		t.Error("Expected partially covered targets to need approval")
	}

	v = Evaluate([]providers.ToolCall{call("3", "write_file", `{}`)}, c)
	if !v.NeedsApproval {
		t.Error("Expected a call without targets not to be exempted by path rules")
	}
}

func TestEvaluate_WarningsAccumulateInCallOrder(t *testing.T) {
	c := Constraints{
		NeverTouch:         []string{".env"},
		RequireApprovalFor: []string{"shell"},
	}
	calls := []providers.ToolCall{
		call("1", "run_shell", `{"command":"ls"}`),
		call("2", "read_file", `{"path":"src/a.ts"}`),
		call("3", "write_file", `{"path":"config/.env"}`),
	}

	v := Evaluate(calls, c)
	if !v.Blocked || !v.NeedsApproval {
		t.Fatalf("Expected blocked and needs_approval, got %+v", v)
	}
	if len(v.Warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %d", len(v.Warnings))
	}
	if v.Warnings[0].Code != CodeRequireApprovalTool {
		t.Errorf("Expected first warning from first call, got %s", v.Warnings[0].Code)
	}
	if v.Warnings[1].Code != CodeNeverTouchPath {
		t.Errorf("Expected second warning from third call, got %s", v.Warnings[1].Code)
	}
}

func TestEvaluate_MalformedArgumentsNeverFail(t *testing.T) {
	c := Constraints{NeverTouch: []string{"**"}, RequireApprovalFor: []string{"write"}}
	v := Evaluate([]providers.ToolCall{call("1", "write_file", `{"path": `)}, c)

	if v.Blocked {
		t.Error("Expected malformed arguments to yield no targets, not a block")
	}
	if !v.NeedsApproval {
		t.Error("Expected tool-name approval to still apply")
	}
}

func TestEvaluator_DeclaredTargetKeys(t *testing.T) {
	e := New(WithTargetResolver(staticResolver{"copy_file": {"destination"}}))
	c := Constraints{NeverTouch: []string{"secrets/**"}}

	// "path" is not declared by copy_file, so only destination is inspected.
	v := e.Evaluate([]providers.ToolCall{call("1", "copy_file", `{"path":"secrets/a","destination":"tmp/a"}`)}, c)
	if v.Blocked {
		t.Error("Expected undeclared key to be ignored")
	}

	v = e.Evaluate([]providers.ToolCall{call("2", "copy_file", `{"destination":"secrets/a"}`)}, c)
	if !v.Blocked {
		t.Error("Expected declared key to be checked")
	}

	// Tools without declarations use the default keys.
	v = e.Evaluate([]providers.ToolCall{call("3", "write_file", `{"path":"secrets/a"}`)}, c)
	if !v.Blocked {
		t.Error("Expected default keys for undeclared tool")
	}
}

func TestEvaluator_WorkDirRelativises(t *testing.T) {
	e := New(WithWorkDir("/home/dev/project"))
	c := Constraints{NeverTouch: []string{"secrets/**"}}

	v := e.Evaluate([]providers.ToolCall{call("1", "write_file", `{"path":"/home/dev/project/secrets/k"}`)}, c)
	if !v.Blocked {
		t.Error("Expected absolute target inside work dir to match relative pattern")
	}
}

func TestEvaluateTargets_Deterministic(t *testing.T) {
	c := Constraints{RequireApprovalFor: []string{"src/**", "write"}}
	calls := []Call{{Name: "write_file", Targets: []string{"src/a.ts", "src/b.ts"}}}

	first := EvaluateTargets(calls, c)
	for i := 0; i < 10; i++ {
		if diff := cmp.Diff(first, EvaluateTargets(calls, c)); diff != "" {
			t.Fatalf("Evaluation not deterministic (-first +got):\n%s", diff)
		}
	}
}

func TestConstraints_WithAllowRulesSkipsDuplicates(t *testing.T) {
	c := Constraints{AlwaysAllow: []AllowRule{ToolRule("a")}}
	out := c.WithAllowRules(ToolRule("a"), ToolRule("b"), ToolRule("b"))

	want := []AllowRule{ToolRule("a"), ToolRule("b")}
	if diff := cmp.Diff(want, out.AlwaysAllow); diff != "" {
		t.Errorf("AlwaysAllow mismatch (-want +got):\n%s", diff)
	}
	if len(c.AlwaysAllow) != 1 {
		t.Errorf("Expected original constraints untouched, got %d rules", len(c.AlwaysAllow))
	}
}
