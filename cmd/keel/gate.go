package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/keel/pkg/cli"
	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/providers"
)

var gateFlags struct {
	tool       string
	args       string
	targetKeys []string
}

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate tool calls against the project constraints",
}

var gateCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Dry-run the gate for one tool call",
	Long: `Evaluate one proposed tool call against the current constraints
without executing it or writing to the ledger.

Examples:
  keel gate check --tool write_file --args '{"path":"src/main.go"}'
  keel gate check --tool deploy --args '{"dest":"prod/"}' --target-key dest`,
	Args: cobra.NoArgs,
	RunE: runGateCheck,
}

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.AddCommand(gateCheckCmd)

	gateCheckCmd.Flags().StringVar(&gateFlags.tool, "tool", "", "tool name (required)")
	gateCheckCmd.Flags().StringVar(&gateFlags.args, "args", "{}", "tool arguments as a JSON object")
	gateCheckCmd.Flags().StringSliceVar(&gateFlags.targetKeys, "target-key", nil, "argument keys carrying file targets (default: path, file, target, files and friends)")
	_ = gateCheckCmd.MarkFlagRequired("tool")
}

// staticTargets resolves every tool to the same keys.
type staticTargets []string

func (s staticTargets) TargetKeys(string) []string { return s }

// gateCheckResult is the printable outcome of gate check.
type gateCheckResult struct {
	Tool    string       `json:"tool"`
	Targets []string     `json:"targets"`
	Verdict gate.Verdict `json:"verdict"`
}

func runGateCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.store.Load(a.withProject(cmd.Context()), a.project.ID)
	if err != nil {
		return cli.NewCommandError("gate check", err)
	}

	evaluator := gate.New(
		gate.WithTargetResolver(staticTargets(gateFlags.targetKeys)),
		gate.WithWorkDir(a.project.Root),
	)
	call := providers.ToolCall{
		ID:   "check",
		Type: "function",
		Function: providers.FunctionCall{
			Name:      gateFlags.tool,
			Arguments: gateFlags.args,
		},
	}
	verdict := evaluator.Evaluate([]providers.ToolCall{call}, state.Constraints)
	result := gateCheckResult{
		Tool:    gateFlags.tool,
		Targets: evaluator.Targets(call),
		Verdict: verdict,
	}

	return a.print(result, func(w io.Writer) error {
		fmt.Fprintf(w, "Tool:     %s\n", result.Tool)
		fmt.Fprintf(w, "Targets:  %s\n", listOrNone(result.Targets))
		fmt.Fprintf(w, "Verdict:  %s\n", verdict.String())
		for _, msg := range verdict.Messages() {
			fmt.Fprintf(w, "  - %s\n", msg)
		}
		return nil
	})
}
