package gate

import (
	"fmt"
	"strings"

	"mercator-hq/keel/pkg/providers"
)

// TargetResolver reports which argument keys of a tool carry file targets.
// A nil or empty result falls back to DefaultTargetKeys.
type TargetResolver interface {
	TargetKeys(tool string) []string
}

// Evaluator classifies proposed tool calls. The zero value is usable and
// reads DefaultTargetKeys for every tool.
type Evaluator struct {
	resolver TargetResolver
	workDir  string
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithTargetResolver sets the source of per-tool target keys.
func WithTargetResolver(r TargetResolver) Option {
	return func(e *Evaluator) {
		e.resolver = r
	}
}

// WithWorkDir makes absolute targets under dir relative before matching.
func WithWorkDir(dir string) Option {
	return func(e *Evaluator) {
		e.workDir = dir
	}
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate classifies calls with a default Evaluator.
func Evaluate(calls []providers.ToolCall, c Constraints) Verdict {
	return New().Evaluate(calls, c)
}

// Targets returns the normalised file targets of a single call.
func (e *Evaluator) Targets(call providers.ToolCall) []string {
	args := ParseArguments(call.Function.Arguments)
	return ExtractTargets(args, e.targetKeys(call.Function.Name), e.workDir)
}

// Evaluate classifies calls against c. Call order is preserved in the
// accumulated warnings.
func (e *Evaluator) Evaluate(calls []providers.ToolCall, c Constraints) Verdict {
	resolved := make([]Call, 0, len(calls))
	for _, call := range calls {
		resolved = append(resolved, Call{
			ID:      call.ID,
			Name:    call.Function.Name,
			Targets: e.Targets(call),
		})
	}
	return e.EvaluateTargets(resolved, c)
}

// EvaluateTargets classifies calls whose targets are already extracted.
func (e *Evaluator) EvaluateTargets(calls []Call, c Constraints) Verdict {
	v := Verdict{Warnings: []Warning{}}
	for _, call := range calls {
		warnings, blocked := evaluateCall(call, c)
		v.Warnings = append(v.Warnings, warnings...)
		if blocked {
			v.Blocked = true
		}
	}
	v.NeedsApproval = len(v.Warnings) > 0
	return v
}

// EvaluateTargets classifies pre-resolved calls with a default Evaluator.
func EvaluateTargets(calls []Call, c Constraints) Verdict {
	return New().EvaluateTargets(calls, c)
}

func (e *Evaluator) targetKeys(tool string) []string {
	if e.resolver != nil {
		if keys := e.resolver.TargetKeys(tool); len(keys) > 0 {
			return keys
		}
	}
	return DefaultTargetKeys
}

func evaluateCall(call Call, c Constraints) ([]Warning, bool) {
	var warnings []Warning

	// never_touch short-circuits everything else for this call.
	for _, pattern := range c.NeverTouch {
		var matches []string
		for _, target := range call.Targets {
			if MatchPath(pattern, target) {
				matches = append(matches, target)
			}
		}
		if len(matches) == 0 {
			continue
		}
		warnings = append(warnings, Warning{
			Kind:    WarningNeverTouch,
			Code:    CodeNeverTouchPath,
			Subject: pattern,
			Message: fmt.Sprintf("%s would touch %s, which matches never_touch pattern %q", call.Name, strings.Join(matches, ", "), pattern),
			Matches: matches,
		})
	}
	if len(warnings) > 0 {
		return warnings, true
	}

	if isExempt(call, c.AlwaysAllow) {
		return nil, false
	}

	for _, pattern := range c.RequireApprovalFor {
		if pattern == "" {
			continue
		}
		for _, target := range call.Targets {
			if !MatchPath(pattern, target) {
				continue
			}
			warnings = append(warnings, Warning{
				Kind:    WarningRequireApproval,
				Code:    CodeRequireApprovalPath,
				Subject: pattern + " -> " + target,
				Message: fmt.Sprintf("%s would touch %s, which requires approval (%q)", call.Name, target, pattern),
				Matches: []string{target},
			})
		}
		if strings.Contains(call.Name, pattern) {
			warnings = append(warnings, Warning{
				Kind:    WarningRequireApproval,
				Code:    CodeRequireApprovalTool,
				Subject: call.Name,
				Message: fmt.Sprintf("tool %s requires approval (%q)", call.Name, pattern),
			})
		}
	}
	return warnings, false
}

// isExempt reports whether an always_allow rule covers the call. A path
// exemption needs at least one target and every target covered.
func isExempt(call Call, rules []AllowRule) bool {
	var pathRules []string
	for _, rule := range rules {
		switch rule.Kind {
		case RuleKindTool:
			if matchToolName(rule.Pattern, call.Name) {
				return true
			}
		case RuleKindPath:
			pathRules = append(pathRules, rule.Pattern)
		}
	}

	if len(pathRules) == 0 || len(call.Targets) == 0 {
		return false
	}
	for _, target := range call.Targets {
		covered := false
		for _, pattern := range pathRules {
			if MatchPath(pattern, target) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}
