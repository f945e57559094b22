/*
Package cli provides command-line utilities shared by the keel commands.

Output Formatting:

Commands print either human-readable text or JSON:

	format, err := cli.ParseFormat(flagValue)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Text output that is tabular goes through a Table, which aligns columns
with text/tabwriter:

	table := cli.NewTable(os.Stdout, "ID", "KIND", "TS")
	table.Row(id, kind, ts)
	return table.Flush()

Progress Reporting:

Commands that walk every project (pm prune --all-projects) report
progress per project:

	progress := cli.NewProgressReporter(os.Stderr)
	progress.Start(int64(len(projects)))
	for i, id := range projects {
		progress.Step(id)
		progress.Update(int64(i + 1))
	}
	progress.Finish()

Signal Handling:

Long-running commands (policy watch) stop on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
