package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"mercator-hq/keel/pkg/cli"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/pm/retention"
	"mercator-hq/keel/pkg/policyfile"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Import policy files into project memory",
}

var policyImportCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import a YAML policy file (charter, constraints, preferences)",
	Long: `Import a YAML policy file into project memory. Sections present in the
file replace the matching sections of project memory; the import is logged
as one undoable event. A file that changes nothing writes nothing.

The file defaults to policy.file from the configuration.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyImport,
}

var policyWatchCmd = &cobra.Command{
	Use:   "watch [file]",
	Short: "Re-import a policy file whenever it changes",
	Long: `Watch a policy file and re-import it on every change until interrupted.

While watching, scheduled event-log retention runs when
memory.retention.enabled is set, and Prometheus metrics are served when
telemetry.metrics.listen_address is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyWatch,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyImportCmd, policyWatchCmd)
}

func policyPath(a *app, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if a.cfg.Policy.File == "" {
		return "", cli.NewConfigError("policy.file", "no policy file given and none configured")
	}
	return a.cfg.Policy.File, nil
}

func (a *app) actor() string {
	if a.project.User != "" {
		return a.project.User
	}
	return pm.DefaultActor
}

func runPolicyImport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := policyPath(a, args)
	if err != nil {
		return err
	}

	res, err := policyfile.ImportFile(a.withProject(cmd.Context()), a.store, a.project.ID, path, a.actor())
	if err != nil {
		return cli.NewCommandError("policy import", err)
	}
	return printImport(a, path, res)
}

func printImport(a *app, path string, res *policyfile.Result) error {
	out := map[string]any{
		"file":         path,
		"skipped":      res.Skipped,
		"changed_keys": res.ChangedKeys,
		"version":      res.State.Version,
	}
	return a.print(out, func(w io.Writer) error {
		if res.Skipped {
			fmt.Fprintf(w, "%s: no changes\n", path)
			return nil
		}
		fmt.Fprintf(w, "%s: imported (version %d)\n", path, res.State.Version)
		fmt.Fprintf(w, "Changed: %s\n", listOrNone(res.ChangedKeys))
		return nil
	})
}

func runPolicyWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := policyPath(a, args)
	if err != nil {
		return err
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
	ctx = a.withProject(ctx)

	if a.cfg.Memory.Retention.Enabled {
		pruner := retention.NewPruner(a.store, &retention.Config{
			MaxAgeDays: a.cfg.Memory.Retention.MaxAgeDays,
			KeepEvents: a.cfg.Memory.Retention.KeepEvents,
			Schedule:   a.cfg.Memory.Retention.Schedule,
		})
		pruner.SetLogger(a.logger)
		scheduler := retention.NewScheduler(pruner)
		if err := scheduler.Start(ctx); err != nil {
			return cli.NewConfigError("memory.retention.schedule", err.Error())
		}
		defer scheduler.Stop()
	}

	if addr := a.cfg.Telemetry.Metrics.ListenAddress; addr != "" && a.metrics != nil {
		go func() {
			if err := a.metrics.Serve(ctx, addr, a.logger); err != nil {
				a.logger.Error("metrics server failed", "address", addr, "error", err)
			}
		}()
	}

	// Bring memory in line with the file before waiting for changes.
	res, err := policyfile.ImportFile(ctx, a.store, a.project.ID, path, a.actor())
	if err != nil {
		return cli.NewCommandError("policy watch", err)
	}
	if err := printImport(a, path, res); err != nil {
		return err
	}

	watcher := policyfile.NewWatcher(path, a.store, a.project.ID, a.actor(), a.cfg.Policy.Debounce, a.logger)
	watcher.OnImport = func(res *policyfile.Result, err error) {
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: import failed: %v\n", path, err)
			return
		}
		if perr := printImport(a, path, res); perr != nil {
			a.logger.Warn("failed to print import result", "error", perr)
		}
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl-C to stop)\n", path)
	if err := watcher.Watch(ctx); err != nil {
		return cli.NewCommandError("policy watch", err)
	}
	return nil
}
