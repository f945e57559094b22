package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/keel/pkg/cli"
)

var (
	// Global flags
	cfgFile  string
	verbose  bool
	workDir  string
	userName string
	format   string
)

// defaultConfigFile is read when --config is not given and the file exists.
const defaultConfigFile = "keel.yaml"

var rootCmd = &cobra.Command{
	Use:   "keel",
	Short: "keel - decision governance for an autonomous coding agent",
	Long: `keel keeps the policy, memory and audit trail of a coding agent.

Every tool call the agent proposes is checked against the project's
constraints (never_touch, require_approval_for, always_allow) before it runs.
Runs, gate audits and policy overrides are recorded in the RAO ledger, and
every change to project memory is logged with full before/after snapshots so
it can be undone exactly.

Project memory is keyed by user and repository root; run keel inside the
repository you want to inspect, or pass --dir.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default: ./keel.yaml when present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", "", "working directory of the project (default: current directory)")
	rootCmd.PersistentFlags().StringVar(&userName, "user", "", "user the project memory belongs to (default: current OS user)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "o", "text", "output format: text, json")
}

// configPath resolves --config, falling back to defaultConfigFile when it
// exists and to built-in defaults otherwise.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	} else if !errors.Is(err, os.ErrNotExist) {
		return defaultConfigFile
	}
	return ""
}
