package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/keel/pkg/cli"
	"mercator-hq/keel/pkg/decisionlog"
	"mercator-hq/keel/pkg/decisionlog/export"
)

var decisionsFlags struct {
	tool   string
	task   string
	since  string
	until  string
	limit  int
	as     string
	output string
	pretty bool
}

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Query the decision log of executed tool calls",
}

var decisionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded decisions, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDecisionsList,
}

var decisionsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decisions as JSON or CSV",
	Long: `Export recorded decisions of the current project.

Examples:
  keel decisions export --as csv --file decisions.csv
  keel decisions export --since 2026-01-01 --tool write_file`,
	Args: cobra.NoArgs,
	RunE: runDecisionsExport,
}

func init() {
	rootCmd.AddCommand(decisionsCmd)
	decisionsCmd.AddCommand(decisionsListCmd, decisionsExportCmd)

	for _, c := range []*cobra.Command{decisionsListCmd, decisionsExportCmd} {
		c.Flags().StringVar(&decisionsFlags.tool, "tool", "", "filter by tool name")
		c.Flags().StringVar(&decisionsFlags.task, "task", "", "filter by task id")
		c.Flags().StringVar(&decisionsFlags.since, "since", "", "start time (RFC3339 or YYYY-MM-DD)")
		c.Flags().StringVar(&decisionsFlags.until, "until", "", "end time (RFC3339 or YYYY-MM-DD)")
	}
	decisionsListCmd.Flags().IntVarP(&decisionsFlags.limit, "limit", "n", 20, "max decisions")
	decisionsExportCmd.Flags().IntVarP(&decisionsFlags.limit, "limit", "n", 0, "max decisions (0 = all)")
	decisionsExportCmd.Flags().StringVar(&decisionsFlags.as, "as", "json", "export format: json, csv")
	decisionsExportCmd.Flags().StringVarP(&decisionsFlags.output, "file", "f", "", "output file (default: stdout)")
	decisionsExportCmd.Flags().BoolVar(&decisionsFlags.pretty, "pretty", false, "indent JSON output")
}

func decisionsQuery(projectID string) (*decisionlog.Query, error) {
	q := &decisionlog.Query{
		ProjectID: projectID,
		TaskID:    decisionsFlags.task,
		Tool:      decisionsFlags.tool,
		Limit:     decisionsFlags.limit,
		SortOrder: "desc",
	}
	if decisionsFlags.since != "" {
		t, err := parseTime(decisionsFlags.since)
		if err != nil {
			return nil, fmt.Errorf("invalid --since: %w", err)
		}
		q.StartTime = &t
	}
	if decisionsFlags.until != "" {
		t, err := parseTime(decisionsFlags.until)
		if err != nil {
			return nil, fmt.Errorf("invalid --until: %w", err)
		}
		q.EndTime = &t
	}
	return q, nil
}

// parseTime accepts RFC3339 or a bare date.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateOnly, s, time.Local)
}

func queryDecisions(cmd *cobra.Command, a *app) ([]*decisionlog.Decision, error) {
	q, err := decisionsQuery(a.project.ID)
	if err != nil {
		return nil, cli.NewCommandError(cmd.CommandPath(), err)
	}

	storage, err := openDecisions(a.cfg)
	if err != nil {
		return nil, cli.NewCommandError(cmd.CommandPath(), err)
	}
	defer storage.Close()

	decisions, err := storage.Query(a.withProject(cmd.Context()), q)
	if err != nil {
		return nil, cli.NewCommandError(cmd.CommandPath(), err)
	}
	return decisions, nil
}

func runDecisionsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	decisions, err := queryDecisions(cmd, a)
	if err != nil {
		return err
	}

	return a.print(decisions, func(w io.Writer) error {
		if len(decisions) == 0 {
			fmt.Fprintln(w, "No decisions recorded.")
			return nil
		}
		table := cli.NewTable(w, "TS", "TOOL", "TARGETS", "TASK", "SUMMARY")
		for _, d := range decisions {
			table.Row(d.Timestamp.Local().Format(time.DateTime), d.Tool, strings.Join(d.Targets, ","), d.TaskID, d.Summary)
		}
		return table.Flush()
	})
}

func runDecisionsExport(cmd *cobra.Command, args []string) error {
	exporter, ok := export.ForFormat(decisionsFlags.as, decisionsFlags.pretty)
	if !ok {
		return cli.NewConfigError("--as", fmt.Sprintf("unsupported export format %q (supported: json, csv)", decisionsFlags.as))
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	decisions, err := queryDecisions(cmd, a)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if decisionsFlags.output != "" {
		f, err := os.Create(decisionsFlags.output)
		if err != nil {
			return cli.NewCommandError("decisions export", err)
		}
		defer f.Close()
		w = f
	}

	if err := exporter.Export(cmd.Context(), decisions, w); err != nil {
		return cli.NewCommandError("decisions export", decisionlog.NewExportError(decisionsFlags.as, len(decisions), err))
	}
	if decisionsFlags.output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d decisions to %s\n", len(decisions), decisionsFlags.output)
	}
	return nil
}
