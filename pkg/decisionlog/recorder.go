package decisionlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config contains configuration for the decision recorder.
type Config struct {
	// Enabled turns recording on. A disabled recorder accepts and drops
	// every entry.
	// Default: true
	Enabled bool

	// BufferSize is the length of the async write queue.
	// Default: 256
	BufferSize int

	// WriteTimeout bounds both enqueueing and a single storage write.
	// Default: 5 seconds
	WriteTimeout time.Duration

	// MaxSummaryLength truncates summaries.
	// Default: 200
	MaxSummaryLength int
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:          true,
		BufferSize:       256,
		WriteTimeout:     5 * time.Second,
		MaxSummaryLength: 200,
	}
}

// Entry is what the agent hands to Record.
type Entry struct {
	ProjectID string
	TaskID    string
	Tool      string
	Targets   []string
	Summary   string
	Output    string
}

// Recorder writes decisions to storage from a single background worker.
type Recorder struct {
	storage Storage
	config  *Config
	ch      chan *Decision
	done    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
	now     func() time.Time

	closeOnce sync.Once
}

// NewRecorder starts a recorder writing to storage.
func NewRecorder(storage Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.MaxSummaryLength <= 0 {
		config.MaxSummaryLength = 200
	}

	r := &Recorder{
		storage: storage,
		config:  config,
		ch:      make(chan *Decision, config.BufferSize),
		done:    make(chan struct{}),
		logger:  slog.Default().With("component", "decisionlog.recorder"),
		now:     time.Now,
	}

	r.wg.Add(1)
	go r.worker()

	r.logger.Debug("decision recorder initialized",
		"buffer_size", config.BufferSize,
		"write_timeout", config.WriteTimeout,
	)
	return r
}

// SetLogger replaces the recorder's logger.
func (r *Recorder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		r.logger = logger.With("component", "decisionlog.recorder")
	}
}

// Record builds a decision from e and enqueues it. It returns once the
// decision is queued, not when it is written.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if r == nil || !r.config.Enabled {
		return nil
	}

	d := &Decision{
		ID:          uuid.NewString(),
		ProjectID:   e.ProjectID,
		TaskID:      e.TaskID,
		Timestamp:   r.now().UTC(),
		Tool:        e.Tool,
		Targets:     append([]string{}, e.Targets...),
		Summary:     truncate(e.Summary, r.config.MaxSummaryLength),
		OutputHash:  HashOutput([]byte(e.Output)),
		OutputBytes: len(e.Output),
	}

	select {
	case <-r.done:
		return &RecorderError{DecisionID: d.ID, Cause: ErrRecorderClosed}
	default:
	}

	timer := time.NewTimer(r.config.WriteTimeout)
	defer timer.Stop()

	select {
	case r.ch <- d:
		return nil
	case <-timer.C:
		r.logger.Error("decision queue full, dropping decision",
			"decision_id", d.ID,
			"tool", d.Tool,
			"capacity", r.config.BufferSize,
		)
		return &RecorderError{DecisionID: d.ID, Cause: context.DeadlineExceeded}
	case <-ctx.Done():
		return &RecorderError{DecisionID: d.ID, Cause: ctx.Err()}
	case <-r.done:
		return &RecorderError{DecisionID: d.ID, Cause: ErrRecorderClosed}
	}
}

// Close stops accepting decisions, drains the queue and waits for the
// worker. It is safe to call more than once.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.logger.Debug("decision recorder closed")
	})
	return nil
}

func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case d := <-r.ch:
			r.write(d)
		case <-r.done:
			for {
				select {
				case d := <-r.ch:
					r.write(d)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) write(d *Decision) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := r.storage.Store(ctx, d); err != nil {
		r.logger.Error("failed to store decision",
			"decision_id", d.ID,
			"tool", d.Tool,
			"error", err,
		)
		return
	}

	if elapsed := time.Since(start); elapsed > r.config.WriteTimeout/2 {
		r.logger.Warn("slow decision write",
			"decision_id", d.ID,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
