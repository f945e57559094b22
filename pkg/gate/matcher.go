package gate

import (
	"encoding/json"
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar"
)

// DefaultTargetKeys are the argument keys read for tools that do not
// declare their own.
var DefaultTargetKeys = []string{"path", "file", "target", "baseline_file", "proposed_file", "files"}

// MatchPath reports whether target matches pattern.
//
// Patterns without glob meta characters match by substring. A pattern
// ending in "/**" also matches the directory it names. Malformed
// patterns never match.
func MatchPath(pattern, target string) bool {
	if pattern == "" || target == "" {
		return false
	}
	if !hasMeta(pattern) {
		return strings.Contains(target, pattern)
	}
	if dir, ok := strings.CutSuffix(pattern, "/**"); ok && dir != "" {
		if !hasMeta(dir) && target == dir {
			return true
		}
		if hasMeta(dir) {
			if ok, err := doublestar.Match(dir, target); err == nil && ok {
				return true
			}
		}
	}
	ok, err := doublestar.Match(pattern, target)
	return err == nil && ok
}

// matchToolName reports whether a tool rule pattern names the tool.
func matchToolName(pattern, name string) bool {
	if pattern == "" {
		return false
	}
	if !hasMeta(pattern) {
		return pattern == name
	}
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// ParseArguments decodes a tool call's JSON arguments.
// Malformed or non-object input yields an empty map.
func ParseArguments(arguments string) map[string]any {
	args := map[string]any{}
	if strings.TrimSpace(arguments) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args == nil {
		return map[string]any{}
	}
	return args
}

// ExtractTargets reads file targets from args under keys, flattening strings
// and string arrays. The result is normalised, de-duplicated and in key order.
func ExtractTargets(args map[string]any, keys []string, workDir string) []string {
	var targets []string
	seen := make(map[string]bool)

	add := func(raw string) {
		t := NormalizeTarget(raw, workDir)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		targets = append(targets, t)
	}

	for _, key := range keys {
		switch v := args[key].(type) {
		case string:
			add(v)
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case []string:
			for _, s := range v {
				add(s)
			}
		}
	}
	return targets
}

// NormalizeTarget converts a raw target to a clean slash-separated path,
// relative to workDir when it lies inside it. Cleaning resolves "." and
// ".." segments so "src/../secrets/x" is matched as "secrets/x".
func NormalizeTarget(raw, workDir string) string {
	t := strings.TrimSpace(raw)
	if t == "" {
		return ""
	}
	t = path.Clean(strings.ReplaceAll(t, "\\", "/"))

	if workDir != "" && path.IsAbs(t) {
		root := strings.TrimSuffix(filepath.ToSlash(filepath.Clean(workDir)), "/")
		if t == root {
			return "."
		}
		if strings.HasPrefix(t, root+"/") {
			t = t[len(root)+1:]
		}
	}

	return t
}

// ValidatePatterns reports malformed or blank patterns in c.
func ValidatePatterns(c Constraints) []error {
	var errs []error
	check := func(field, pattern string) {
		if strings.TrimSpace(pattern) == "" {
			errs = append(errs, &PatternError{Field: field, Pattern: pattern, Cause: ErrEmptyPattern})
			return
		}
		if !hasMeta(pattern) {
			return
		}
		if _, err := path.Match(pattern, ""); err != nil {
			errs = append(errs, &PatternError{Field: field, Pattern: pattern, Cause: err})
			return
		}
		if strings.Count(pattern, "{") != strings.Count(pattern, "}") {
			errs = append(errs, &PatternError{Field: field, Pattern: pattern, Cause: doublestar.ErrBadPattern})
		}
	}

	for _, p := range c.NeverTouch {
		check("never_touch", p)
	}
	for _, p := range c.RequireApprovalFor {
		check("require_approval_for", p)
	}
	for _, rule := range c.AlwaysAllow {
		switch rule.Kind {
		case RuleKindTool, RuleKindPath:
			check("always_allow", rule.Pattern)
		default:
			errs = append(errs, &PatternError{Field: "always_allow", Pattern: rule.Pattern, Cause: ErrUnknownRuleKind})
		}
	}
	return errs
}
