package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// ProgressReporter reports progress for operations that walk many items.
type ProgressReporter interface {
	Start(total int64)
	Step(label string)
	Update(current int64)
	Finish()
	Error(err error)
}

// SimpleProgress implements a single-line text progress reporter.
type SimpleProgress struct {
	mu      sync.Mutex
	total   int64
	current int64
	label   string
	writer  io.Writer
}

// NewProgressReporter creates a new progress reporter that writes to w.
// If w is nil, it defaults to os.Stderr.
func NewProgressReporter(w io.Writer) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	return &SimpleProgress{
		writer: w,
	}
}

// Start initializes the progress reporter with the total number of items.
func (p *SimpleProgress) Start(total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = total
	p.current = 0
	p.label = ""
	p.render()
}

// Step names the item being processed.
func (p *SimpleProgress) Step(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.label = label
	p.render()
}

// Update updates the current progress.
func (p *SimpleProgress) Update(current int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = current
	p.render()
}

// Finish marks the progress as complete.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current = p.total
	p.label = ""
	p.render()
	fmt.Fprintln(p.writer)
}

// Error reports an error during progress.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.writer, "\nerror: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total == 0 {
		return
	}

	const barWidth = 30
	filled := int(int64(barWidth) * p.current / p.total)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)

	fmt.Fprintf(p.writer, "\r[%s] %d/%d %s", bar, p.current, p.total, p.label)
}
