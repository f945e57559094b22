package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/keel/pkg/cli"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/rao"
)

var raoFlags struct {
	limit int
	yes   bool
}

var raoCmd = &cobra.Command{
	Use:   "rao",
	Short: "Inspect the RAO ledger",
	Long: `Inspect the Run / Audit / Override ledger of the current project.

Subcommands:
  status   - Latest run, audit and override entries
  history  - Ledger entries, newest first
  replay   - Re-evaluate recent runs against the current constraints
  purge    - Clear the ledger (undoable with "keel pm undo")`,
}

var raoStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest run, audit and override",
	Args:  cobra.NoArgs,
	RunE:  runRaoStatus,
}

var raoHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List ledger entries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRaoHistory,
}

var raoReplayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Simulate recent runs against the current constraints",
	Long: `Re-evaluate the run entries among the newest --limit ledger entries
against the current constraints. Nothing is executed or written.`,
	Args: cobra.NoArgs,
	RunE: runRaoReplay,
}

var raoPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Clear the ledger history",
	Args:  cobra.NoArgs,
	RunE:  runRaoPurge,
}

func init() {
	rootCmd.AddCommand(raoCmd)
	raoCmd.AddCommand(raoStatusCmd, raoHistoryCmd, raoReplayCmd, raoPurgeCmd)

	raoHistoryCmd.Flags().IntVarP(&raoFlags.limit, "limit", "n", 20, "max entries (0 = all)")
	raoReplayCmd.Flags().IntVarP(&raoFlags.limit, "limit", "n", 20, "entries to consider (0 = all)")
	raoPurgeCmd.Flags().BoolVar(&raoFlags.yes, "yes", false, "confirm the purge")
}

func runRaoStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.store.Load(a.withProject(cmd.Context()), a.project.ID)
	if err != nil {
		return cli.NewCommandError("rao status", err)
	}
	status := rao.StatusFromHistory(state.Rao.History)

	return a.print(status, func(w io.Writer) error {
		fmt.Fprintf(w, "Project: %s (%s)\n", a.project.ID, a.project.Root)
		fmt.Fprintf(w, "Entries: %d/%d\n\n", len(state.Rao.History), a.ledger.MaxHistory())
		printStatusLine(w, "Last run", status.LastRun)
		printStatusLine(w, "Last audit", status.LastAudit)
		printStatusLine(w, "Last override", status.LastOverride)
		return nil
	})
}

func printStatusLine(w io.Writer, label string, snap *pm.Snapshot) {
	if snap == nil {
		fmt.Fprintf(w, "%-14s (none)\n", label+":")
		return
	}
	fmt.Fprintf(w, "%-14s %s  %s\n", label+":", snap.TS.Local().Format(time.DateTime), describeSnapshot(*snap))
}

func runRaoHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	history, err := a.ledger.History(a.withProject(cmd.Context()), raoFlags.limit)
	if err != nil {
		return cli.NewCommandError("rao history", err)
	}

	return a.print(history, func(w io.Writer) error {
		if len(history) == 0 {
			fmt.Fprintln(w, "No ledger entries.")
			return nil
		}
		table := cli.NewTable(w, "TS", "KIND", "ID", "DETAIL")
		for _, snap := range history {
			table.Row(snap.TS.Local().Format(time.DateTime), string(snap.Kind()), snap.ID, describeSnapshot(snap))
		}
		return table.Flush()
	})
}

func runRaoReplay(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.ledger.SimulateReplay(a.withProject(cmd.Context()), raoFlags.limit)
	if err != nil {
		return cli.NewCommandError("rao replay", err)
	}

	return a.print(results, func(w io.Writer) error {
		if len(results) == 0 {
			fmt.Fprintln(w, "No run entries to replay.")
			return nil
		}
		table := cli.NewTable(w, "TS", "RUN", "TODAY")
		for _, r := range results {
			table.Row(r.Snapshot.TS.Local().Format(time.DateTime), describeSnapshot(r.Snapshot), describeSimulation(r.Simulate))
		}
		return table.Flush()
	})
}

func runRaoPurge(cmd *cobra.Command, args []string) error {
	if !raoFlags.yes {
		return cli.NewCommandError("rao purge", cli.ErrConfirmationRequired)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.ledger.Purge(a.withProject(cmd.Context()))
	if err != nil {
		return cli.NewCommandError("rao purge", err)
	}

	return a.print(map[string]any{"purged": true, "version": state.Version}, func(w io.Writer) error {
		fmt.Fprintln(w, "RAO history purged. Run \"keel pm undo\" to restore it.")
		return nil
	})
}

func describeSnapshot(s pm.Snapshot) string {
	switch e := s.Entry.(type) {
	case *pm.RunEntry:
		result := "ok"
		if !e.OK {
			result = "failed"
		}
		return fmt.Sprintf("%s [%s] %s", e.Tool, strings.Join(e.Targets, ", "), result)
	case *pm.AuditEntry:
		verdict := "needs approval"
		if e.Blocked {
			verdict = "blocked"
		}
		subjects := make([]string, len(e.Warnings))
		for i, w := range e.Warnings {
			subjects[i] = w.Subject
		}
		return fmt.Sprintf("%s: %s", verdict, strings.Join(subjects, "; "))
	case *pm.OverrideEntry:
		return fmt.Sprintf("%s of %s: %s", e.Command, e.EventID, strings.Join(e.ChangedKeys, ", "))
	default:
		return ""
	}
}

func describeSimulation(s rao.Simulation) string {
	switch {
	case !s.Available:
		return "n/a"
	case s.Blocked:
		return "would be blocked"
	case s.NeedsApproval:
		return fmt.Sprintf("would need approval (%d warnings)", len(s.Warnings))
	default:
		return "would be allowed"
	}
}
