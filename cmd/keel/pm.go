package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/keel/pkg/cli"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/pm/retention"
)

var pmFlags struct {
	limit       int
	maxAgeDays  int
	keepEvents  int
	allProjects bool
}

var pmCmd = &cobra.Command{
	Use:   "pm",
	Short: "Inspect and manage project memory",
	Long: `Inspect and manage the project memory of the current project.

Subcommands:
  show     - Print the current state
  history  - List recorded events, newest first
  event    - Show one event and the keys it changed
  undo     - Restore the state before the last undoable event
  prune    - Apply event-log retention`,
}

var pmShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current project memory",
	Args:  cobra.NoArgs,
	RunE:  runPMShow,
}

var pmHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List events, newest first",
	Args:  cobra.NoArgs,
	RunE:  runPMHistory,
}

var pmEventCmd = &cobra.Command{
	Use:   "event <id>",
	Short: "Show one event",
	Args:  cobra.ExactArgs(1),
	RunE:  runPMEvent,
}

var pmUndoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the last update, import or purge",
	Args:  cobra.NoArgs,
	RunE:  runPMUndo,
}

var pmPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete old events from the event log",
	Long: `Delete events older than --max-age-days, always keeping the newest
--keep events of each project. Current state is never modified.`,
	Args: cobra.NoArgs,
	RunE: runPMPrune,
}

func init() {
	rootCmd.AddCommand(pmCmd)
	pmCmd.AddCommand(pmShowCmd, pmHistoryCmd, pmEventCmd, pmUndoCmd, pmPruneCmd)

	pmHistoryCmd.Flags().IntVarP(&pmFlags.limit, "limit", "n", 20, "max events (0 = all)")

	pmPruneCmd.Flags().IntVar(&pmFlags.maxAgeDays, "max-age-days", -1, "override memory.retention.max_age_days")
	pmPruneCmd.Flags().IntVar(&pmFlags.keepEvents, "keep", -1, "override memory.retention.keep_events")
	pmPruneCmd.Flags().BoolVar(&pmFlags.allProjects, "all-projects", false, "prune every project in the store")
}

func runPMShow(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.store.Load(a.withProject(cmd.Context()), a.project.ID)
	if err != nil {
		return cli.NewCommandError("pm show", err)
	}

	return a.print(state, func(w io.Writer) error {
		fmt.Fprintf(w, "Project:  %s\n", state.ProjectID)
		fmt.Fprintf(w, "Root:     %s\n", a.project.Root)
		fmt.Fprintf(w, "Version:  %d\n", state.Version)
		fmt.Fprintf(w, "Updated:  %s\n", state.LastUpdated.Local().Format(time.DateTime))
		if state.Charter != "" {
			fmt.Fprintf(w, "\nCharter:\n  %s\n", strings.ReplaceAll(strings.TrimSpace(state.Charter), "\n", "\n  "))
		}

		c := state.Constraints
		fmt.Fprintln(w, "\nConstraints:")
		fmt.Fprintf(w, "  never_touch:          %s\n", listOrNone(c.NeverTouch))
		fmt.Fprintf(w, "  require_approval_for: %s\n", listOrNone(c.RequireApprovalFor))
		rules := make([]string, len(c.AlwaysAllow))
		for i, r := range c.AlwaysAllow {
			rules[i] = r.String()
		}
		fmt.Fprintf(w, "  always_allow:         %s\n", listOrNone(rules))

		fmt.Fprintf(w, "\nPreferences: risk=%s verbosity=%s\n", state.Preferences.Risk, state.Preferences.Verbosity)
		fmt.Fprintf(w, "Recent outcomes: %d\n", len(state.RecentOutcomes))
		fmt.Fprintf(w, "RAO entries: %d\n", len(state.Rao.History))
		return nil
	})
}

func runPMHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	events, err := a.store.ListEvents(a.withProject(cmd.Context()), a.project.ID, pmFlags.limit)
	if err != nil {
		return cli.NewCommandError("pm history", err)
	}

	return a.print(events, func(w io.Writer) error {
		if len(events) == 0 {
			fmt.Fprintln(w, "No events recorded.")
			return nil
		}
		table := cli.NewTable(w, "ID", "TS", "TYPE", "COMMAND", "ACTOR", "UNDONE")
		for _, ev := range events {
			undone := ""
			if ev.Undone {
				undone = "yes"
			}
			table.Row(ev.ID, ev.TS.Local().Format(time.DateTime), string(ev.EventType), ev.Command, ev.Actor, undone)
		}
		return table.Flush()
	})
}

// eventView is the printable form of one event.
type eventView struct {
	*pm.Event
	ChangedKeys []string `json:"changed_keys"`
}

func runPMEvent(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ev, err := a.store.GetEvent(a.withProject(cmd.Context()), a.project.ID, args[0])
	if err != nil {
		return cli.NewCommandError("pm event", err)
	}
	before, err := ev.BeforeState()
	if err != nil {
		return cli.NewCommandError("pm event", err)
	}
	after, err := ev.AfterState()
	if err != nil {
		return cli.NewCommandError("pm event", err)
	}
	changed, err := pm.ChangedKeys(before, after)
	if err != nil {
		return cli.NewCommandError("pm event", err)
	}

	view := eventView{Event: ev, ChangedKeys: changed}
	return a.print(view, func(w io.Writer) error {
		fmt.Fprintf(w, "Event:    %s\n", ev.ID)
		fmt.Fprintf(w, "Time:     %s\n", ev.TS.Local().Format(time.DateTime))
		fmt.Fprintf(w, "Type:     %s\n", ev.EventType)
		fmt.Fprintf(w, "Command:  %s\n", ev.Command)
		fmt.Fprintf(w, "Actor:    %s\n", ev.Actor)
		if ev.Note != "" {
			fmt.Fprintf(w, "Note:     %s\n", ev.Note)
		}
		fmt.Fprintf(w, "Undone:   %t\n", ev.Undone)
		fmt.Fprintf(w, "Changed:  %s\n", listOrNone(changed))
		return nil
	})
}

func runPMUndo(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.ledger.Undo(a.withProject(cmd.Context()))
	if err != nil {
		return cli.NewCommandError("pm undo", err)
	}

	if res == nil {
		return a.print(map[string]any{"undone": false}, func(w io.Writer) error {
			fmt.Fprintln(w, "Nothing to undo.")
			return nil
		})
	}

	out := map[string]any{
		"undone":       true,
		"event_id":     res.EventID,
		"changed_keys": res.ChangedKeys,
		"version":      res.State.Version,
	}
	return a.print(out, func(w io.Writer) error {
		fmt.Fprintf(w, "Undid %s\n", res.EventID)
		fmt.Fprintf(w, "Changed: %s\n", listOrNone(res.ChangedKeys))
		return nil
	})
}

func runPMPrune(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	pruner := retention.NewPruner(a.store, retentionConfig(a))
	pruner.SetLogger(a.logger)
	ctx := a.withProject(cmd.Context())

	if !pmFlags.allProjects {
		deleted, err := pruner.PruneProject(ctx, a.project.ID)
		if err != nil {
			return cli.NewCommandError("pm prune", err)
		}
		return printPruned(a, deleted, 1)
	}

	projects, err := a.store.ListProjects(ctx)
	if err != nil {
		return cli.NewCommandError("pm prune", err)
	}

	var progress cli.ProgressReporter
	if a.format == cli.FormatText {
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
		progress.Start(int64(len(projects)))
	}

	var total int64
	for i, id := range projects {
		deleted, err := pruner.PruneProject(ctx, id)
		if err != nil {
			if progress != nil {
				progress.Error(err)
			}
			return cli.NewCommandError("pm prune", err)
		}
		total += deleted
		if progress != nil {
			progress.Step(id)
			progress.Update(int64(i + 1))
		}
	}
	if progress != nil {
		progress.Finish()
	}
	return printPruned(a, total, len(projects))
}

func retentionConfig(a *app) *retention.Config {
	rc := a.cfg.Memory.Retention
	out := &retention.Config{
		MaxAgeDays: rc.MaxAgeDays,
		KeepEvents: rc.KeepEvents,
		Schedule:   rc.Schedule,
	}
	if pmFlags.maxAgeDays >= 0 {
		out.MaxAgeDays = pmFlags.maxAgeDays
	}
	if pmFlags.keepEvents >= 0 {
		out.KeepEvents = pmFlags.keepEvents
	}
	return out
}

func printPruned(a *app, deleted int64, projects int) error {
	out := map[string]any{"deleted": deleted, "projects": projects}
	return a.print(out, func(w io.Writer) error {
		fmt.Fprintf(w, "Pruned %d events across %d project(s).\n", deleted, projects)
		return nil
	})
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}
