package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mercator-hq/keel/pkg/cli"
	"mercator-hq/keel/pkg/config"
	"mercator-hq/keel/pkg/decisionlog"
	dstorage "mercator-hq/keel/pkg/decisionlog/storage"
	"mercator-hq/keel/pkg/gate"
	"mercator-hq/keel/pkg/pm"
	"mercator-hq/keel/pkg/pm/storage"
	"mercator-hq/keel/pkg/project"
	"mercator-hq/keel/pkg/rao"
	"mercator-hq/keel/pkg/telemetry/logging"
	"mercator-hq/keel/pkg/telemetry/metrics"
	"mercator-hq/keel/pkg/telemetry/tracing"
)

// app bundles what a command needs for one project.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	project   *project.Project
	store     pm.Store
	metrics   *metrics.Collector
	tracer    *tracing.Tracer
	evaluator *gate.Evaluator
	ledger    *rao.Ledger
	format    cli.OutputFormat
	out       io.Writer
}

// newApp loads configuration, resolves the project and opens its store.
// The caller must Close the app.
func newApp(cmd *cobra.Command) (*app, error) {
	outFormat, err := cli.ParseFormat(format)
	if err != nil {
		return nil, err
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger)

	proj, err := project.Resolve(userName, workDir)
	if err != nil {
		return nil, cli.NewCommandError(cmd.CommandPath(), err)
	}

	store, err := openStore(cfg)
	if err != nil {
		return nil, cli.NewCommandError(cmd.CommandPath(), err)
	}

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		store.Close()
		return nil, cli.NewConfigError("telemetry.tracing", err.Error())
	}

	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	evaluator := gate.New(gate.WithWorkDir(proj.Root))

	a := &app{
		cfg:       cfg,
		logger:    logger,
		project:   proj,
		store:     store,
		metrics:   collector,
		tracer:    tracer,
		evaluator: evaluator,
		format:    outFormat,
		out:       cmd.OutOrStdout(),
	}
	a.ledger = rao.New(store, proj.ID,
		rao.WithMaxHistory(cfg.Ledger.MaxHistory),
		rao.WithEvaluator(evaluator),
		rao.WithMetrics(collector),
		rao.WithTracer(tracer),
		rao.WithLogger(logger),
	)

	logger.Debug("project resolved",
		"project_id", proj.ID,
		"root", proj.Root,
		"in_repo", proj.InRepo,
		"backend", cfg.Memory.Backend,
	)
	return a, nil
}

// Close releases the store and flushes spans.
func (a *app) Close() error {
	if err := a.tracer.Shutdown(context.Background()); err != nil {
		a.logger.Warn("tracer shutdown failed", "error", err)
	}
	return a.store.Close()
}

// withProject returns ctx tagged with the project id for logging.
func (a *app) withProject(ctx context.Context) context.Context {
	return logging.WithProjectID(ctx, a.project.ID)
}

// print writes data as JSON, or calls text for the text format.
func (a *app) print(data any, text func(w io.Writer) error) error {
	if a.format == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(a.out, data)
	}
	return text(a.out)
}

func loadConfig() (*config.Config, error) {
	if err := config.Initialize(configPath()); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, cli.NewConfigError("", "configuration not initialized")
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	lc := logging.FromConfig(cfg.Telemetry.Logging, w)
	if verbose {
		lc.Level = "debug"
	}
	return logging.New(lc)
}

func openStore(cfg *config.Config) (pm.Store, error) {
	switch cfg.Memory.Backend {
	case "memory":
		return storage.NewMemoryStore(), nil
	case "sqlite":
		if err := ensureDir(cfg.Memory.SQLite.Path); err != nil {
			return nil, err
		}
		return storage.NewSQLiteStore(&storage.SQLiteConfig{
			Path:        cfg.Memory.SQLite.Path,
			WALMode:     cfg.Memory.SQLite.WALMode,
			BusyTimeout: cfg.Memory.SQLite.BusyTimeout,
			CacheSize:   cfg.Memory.CacheSize,
		})
	default:
		return nil, cli.NewConfigError("memory.backend", fmt.Sprintf("unsupported backend %q (supported: memory, sqlite)", cfg.Memory.Backend))
	}
}

func openDecisions(cfg *config.Config) (decisionlog.Storage, error) {
	switch cfg.Decisions.Backend {
	case "memory":
		return dstorage.NewMemoryStorage(), nil
	case "sqlite":
		if err := ensureDir(cfg.Decisions.SQLite.Path); err != nil {
			return nil, err
		}
		return dstorage.NewSQLiteStorage(&dstorage.SQLiteConfig{
			Path:        cfg.Decisions.SQLite.Path,
			WALMode:     cfg.Decisions.SQLite.WALMode,
			BusyTimeout: cfg.Decisions.SQLite.BusyTimeout,
		})
	default:
		return nil, cli.NewConfigError("decisions.backend", fmt.Sprintf("unsupported backend %q (supported: memory, sqlite)", cfg.Decisions.Backend))
	}
}

func ensureDir(dbPath string) error {
	if dbPath == "" || dbPath == ":memory:" {
		return nil
	}
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
