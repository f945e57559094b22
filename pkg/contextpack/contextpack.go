// Package contextpack renders project memory into the bounded text block
// that is prepended to every model request.
package contextpack

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/worknotes"
)

// DefaultBudget is the character budget used when Builder.Budget is zero.
const DefaultBudget = 4000

// Modes understood by Build.
const (
	ModePlan  = "plan"
	ModeBuild = "build"
)

// Builder renders context packs. The zero value uses DefaultBudget.
type Builder struct {
	// Budget is the soft character limit for the rendered pack.
	// Only recent outcomes are dropped to meet it.
	Budget int
}

// Build renders state, mode and notes. It is pure: the same inputs always
// produce the same text.
func (b Builder) Build(state *pm.State, mode string, notes *worknotes.Notes) string {
	budget := b.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}
	if state == nil {
		state = &pm.State{}
	}

	head := renderPreferences(state.Preferences) + renderConstraints(state.Constraints)
	tail := renderInstructions(mode, notes)

	outcomes := state.RecentOutcomes
	for {
		text := head + renderOutcomes(outcomes) + tail
		if utf8.RuneCountInString(text) <= budget || len(outcomes) == 0 {
			return text
		}
		outcomes = outcomes[1:]
	}
}

func renderPreferences(p pm.Preferences) string {
	var sb strings.Builder
	sb.WriteString("## Preferences\n")
	fmt.Fprintf(&sb, "risk: %s\n", orNone(p.Risk))
	fmt.Fprintf(&sb, "verbosity: %s\n", orNone(p.Verbosity))
	sb.WriteString("\n")
	return sb.String()
}

func renderConstraints(c gate.Constraints) string {
	var sb strings.Builder
	sb.WriteString("## Constraints\n")
	writeList(&sb, "never_touch", c.NeverTouch)
	writeList(&sb, "require_approval_for", c.RequireApprovalFor)

	rules := make([]string, len(c.AlwaysAllow))
	for i, r := range c.AlwaysAllow {
		rules[i] = r.String()
	}
	writeList(&sb, "always_allow", rules)
	sb.WriteString("\n")
	return sb.String()
}

func renderOutcomes(outcomes []pm.Outcome) string {
	var sb strings.Builder
	sb.WriteString("## Recent outcomes\n")
	if len(outcomes) == 0 {
		sb.WriteString("(none)\n")
	}
	for _, o := range outcomes {
		status := "ok"
		if !o.OK {
			status = "failed"
		}
		fmt.Fprintf(&sb, "- %s %s [%s] %s", o.TS.UTC().Format(time.RFC3339), o.Tool, strings.Join(o.Targets, ", "), status)
		if o.Summary != "" {
			fmt.Fprintf(&sb, ": %s", o.Summary)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

func renderInstructions(mode string, notes *worknotes.Notes) string {
	var sb strings.Builder
	sb.WriteString("## Instructions\n")
	switch mode {
	case ModePlan:
		sb.WriteString("Mode: plan. Describe the tool calls you would make. Nothing will be executed.\n")
	default:
		sb.WriteString("Mode: build. Propose tool calls to complete the task. Calls are checked against the constraints above before they run. Say \"task complete\" when done.\n")
	}
	sb.WriteString("Never propose changes to paths listed under never_touch.\n")

	if notes.Empty() {
		return sb.String()
	}

	if notes.Intent.What != "" {
		fmt.Fprintf(&sb, "Intent: %s", notes.Intent.What)
		if notes.Intent.Why != "" {
			fmt.Fprintf(&sb, " (why: %s)", notes.Intent.Why)
		}
		sb.WriteString("\n")
	}
	if len(notes.Plan.Steps) > 0 {
		sb.WriteString("Plan:\n")
		for i, step := range notes.Plan.Steps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
		}
	}
	if len(notes.Scope.Files) > 0 || notes.Scope.MaxFiles > 0 || notes.Scope.MaxLOC > 0 {
		fmt.Fprintf(&sb, "Scope: %s", strings.Join(notes.Scope.Files, ", "))
		if notes.Scope.MaxFiles > 0 {
			fmt.Fprintf(&sb, " (max_files %d)", notes.Scope.MaxFiles)
		}
		if notes.Scope.MaxLOC > 0 {
			fmt.Fprintf(&sb, " (max_loc %d)", notes.Scope.MaxLOC)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func writeList(sb *strings.Builder, name string, items []string) {
	fmt.Fprintf(sb, "%s:", name)
	if len(items) == 0 {
		sb.WriteString(" (none)\n")
		return
	}
	sb.WriteString("\n")
	for _, item := range items {
		fmt.Fprintf(sb, "- %s\n", item)
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
