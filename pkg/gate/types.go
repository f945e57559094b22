package gate

import (
	"slices"
	"strings"
)

// RuleKind discriminates the AllowRule variants.
type RuleKind string

const (
	// RuleKindTool matches a call by tool name.
	RuleKindTool RuleKind = "tool"

	// RuleKindPath matches a call when every file target matches the glob.
	RuleKindPath RuleKind = "path"
)

// AllowRule is an operator-granted exemption from require_approval.
// It never overrides never_touch.
type AllowRule struct {
	Kind    RuleKind `json:"kind" yaml:"kind"`
	Pattern string   `json:"pattern" yaml:"pattern"`
}

// ToolRule returns an always-allow rule for a tool name.
func ToolRule(name string) AllowRule {
	return AllowRule{Kind: RuleKindTool, Pattern: name}
}

// PathRule returns an always-allow rule for a path glob.
func PathRule(glob string) AllowRule {
	return AllowRule{Kind: RuleKindPath, Pattern: glob}
}

// String renders the rule as kind:pattern.
func (r AllowRule) String() string {
	return string(r.Kind) + ":" + r.Pattern
}

// Constraints is the policy section of project memory.
type Constraints struct {
	// NeverTouch is an unconditional deny-list of path patterns.
	NeverTouch []string `json:"never_touch" yaml:"never_touch"`

	// RequireApprovalFor lists tool-name substrings and path patterns
	// that need a human sign-off before execution.
	RequireApprovalFor []string `json:"require_approval_for" yaml:"require_approval_for"`

	// AlwaysAllow lists exemptions from RequireApprovalFor.
	AlwaysAllow []AllowRule `json:"always_allow" yaml:"always_allow"`
}

// Clone returns a deep copy with non-nil slices.
func (c Constraints) Clone() Constraints {
	out := Constraints{
		NeverTouch:         make([]string, len(c.NeverTouch)),
		RequireApprovalFor: make([]string, len(c.RequireApprovalFor)),
		AlwaysAllow:        make([]AllowRule, len(c.AlwaysAllow)),
	}
	copy(out.NeverTouch, c.NeverTouch)
	copy(out.RequireApprovalFor, c.RequireApprovalFor)
	copy(out.AlwaysAllow, c.AlwaysAllow)
	return out
}

// HasAllowRule reports whether an identical rule is already present.
func (c Constraints) HasAllowRule(rule AllowRule) bool {
	return slices.Contains(c.AlwaysAllow, rule)
}

// WithAllowRules returns a copy with the given rules appended, skipping duplicates.
func (c Constraints) WithAllowRules(rules ...AllowRule) Constraints {
	out := c.Clone()
	for _, rule := range rules {
		if !out.HasAllowRule(rule) {
			out.AlwaysAllow = append(out.AlwaysAllow, rule)
		}
	}
	return out
}

// WarningKind classifies a gate warning.
type WarningKind string

const (
	WarningNeverTouch      WarningKind = "never_touch"
	WarningRequireApproval WarningKind = "require_approval"
)

// Warning codes.
const (
	CodeNeverTouchPath      = "never_touch.path"
	CodeRequireApprovalPath = "require_approval.path"
	CodeRequireApprovalTool = "require_approval.tool"
)

// Warning explains one rule that matched a proposed call.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Code    string      `json:"code"`
	Subject string      `json:"subject"`
	Message string      `json:"message"`
	Matches []string    `json:"matches,omitempty"`
}

// SortKey is the key used to order warnings canonically.
func (w Warning) SortKey() string {
	return w.Code + "\x00" + w.Subject + "\x00" + w.Message
}

// Verdict is the aggregated result of evaluating a batch of calls.
type Verdict struct {
	// NeedsApproval is true whenever any warning was emitted.
	NeedsApproval bool `json:"needs_approval"`

	// Blocked is true when any never_touch warning was emitted.
	Blocked bool `json:"blocked"`

	// Warnings accumulate in call order.
	Warnings []Warning `json:"warnings"`
}

// Allowed reports whether the calls may run without human input.
func (v Verdict) Allowed() bool {
	return !v.NeedsApproval && !v.Blocked
}

// Messages returns the human-readable warning messages in order.
func (v Verdict) Messages() []string {
	out := make([]string, 0, len(v.Warnings))
	for _, w := range v.Warnings {
		out = append(out, w.Message)
	}
	return out
}

// String summarises the verdict on one line.
func (v Verdict) String() string {
	switch {
	case v.Blocked:
		return "blocked: " + strings.Join(v.Messages(), "; ")
	case v.NeedsApproval:
		return "needs approval: " + strings.Join(v.Messages(), "; ")
	default:
		return "allowed"
	}
}

// Call is a proposed call whose file targets are already known.
type Call struct {
	ID      string
	Name    string
	Targets []string
}
