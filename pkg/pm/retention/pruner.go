package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/keel/pkg/pm"
)

// Config contains configuration for PM event-log retention.
type Config struct {
	// MaxAgeDays is the age after which events become prunable.
	// 0 means events are kept forever.
	MaxAgeDays int

	// KeepEvents is the number of newest events always kept per project,
	// whatever their age, so recent changes stay undoable.
	KeepEvents int

	// Schedule is a cron expression for scheduled pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxAgeDays: 90,
		KeepEvents: 200,
		Schedule:   "0 3 * * *",
	}
}

// Pruner enforces retention on the PM event log. Current state is never
// touched; only the history behind it is trimmed.
type Pruner struct {
	store  pm.Store
	config *Config
	now    func() time.Time
	logger *slog.Logger
}

// NewPruner creates a new retention pruner.
func NewPruner(store pm.Store, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}

	return &Pruner{
		store:  store,
		config: config,
		now:    time.Now,
		logger: slog.Default().With("component", "pm.retention"),
	}
}

// Prune deletes events older than MaxAgeDays across all projects, keeping
// the newest KeepEvents of each. Returns the number of events deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.MaxAgeDays <= 0 {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -p.config.MaxAgeDays)

	p.logger.Debug("pruning pm events",
		"cutoff_time", cutoff,
		"keep_events", p.config.KeepEvents,
	)

	deleted, err := p.store.PruneEvents(ctx, "", cutoff, p.config.KeepEvents)
	if err != nil {
		return 0, fmt.Errorf("prune pm events: %w", err)
	}

	if deleted == 0 {
		p.logger.Debug("no events pruned", "max_age_days", p.config.MaxAgeDays)
	} else {
		p.logger.Info("pm event pruning completed",
			"deleted_count", deleted,
			"max_age_days", p.config.MaxAgeDays,
			"keep_events", p.config.KeepEvents,
		)
	}

	return deleted, nil
}

// PruneProject applies the retention policy to a single project.
func (p *Pruner) PruneProject(ctx context.Context, projectID string) (int64, error) {
	if projectID == "" {
		return 0, pm.ErrEmptyProjectID
	}
	if p.config.MaxAgeDays <= 0 {
		return 0, nil
	}

	cutoff := p.now().AddDate(0, 0, -p.config.MaxAgeDays)
	deleted, err := p.store.PruneEvents(ctx, projectID, cutoff, p.config.KeepEvents)
	if err != nil {
		return 0, fmt.Errorf("prune pm events of %s: %w", projectID, err)
	}
	if deleted > 0 {
		p.logger.Info("pm events pruned", "project_id", projectID, "deleted_count", deleted)
	}
	return deleted, nil
}

// SetLogger replaces the pruner's logger.
func (p *Pruner) SetLogger(logger *slog.Logger) {
	if logger != nil {
		p.logger = logger.With("component", "pm.retention")
	}
}
