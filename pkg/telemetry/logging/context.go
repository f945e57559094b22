package logging

import (
	"context"
	"log/slog"
)

// Context keys for common log fields.
type contextKey string

const (
	// ProjectIDKey is the context key for project-memory identifiers.
	ProjectIDKey contextKey = "project_id"

	// TaskIDKey is the context key for agent task identifiers.
	TaskIDKey contextKey = "task_id"
)

// WithProjectID adds a project ID to the context.
func WithProjectID(ctx context.Context, projectID string) context.Context {
	return context.WithValue(ctx, ProjectIDKey, projectID)
}

// GetProjectID retrieves the project ID from the context.
func GetProjectID(ctx context.Context) string {
	if projectID, ok := ctx.Value(ProjectIDKey).(string); ok {
		return projectID
	}
	return ""
}

// WithTaskID adds a task ID to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskID retrieves the task ID from the context.
func GetTaskID(ctx context.Context) string {
	if taskID, ok := ctx.Value(TaskIDKey).(string); ok {
		return taskID
	}
	return ""
}

// contextAttrs extracts the identifiers carried on ctx.
func contextAttrs(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}

	var attrs []slog.Attr
	if v := GetProjectID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(ProjectIDKey), v))
	}
	if v := GetTaskID(ctx); v != "" {
		attrs = append(attrs, slog.String(string(TaskIDKey), v))
	}
	return attrs
}

// contextHandler adds context identifiers to every record it handles.
type contextHandler struct {
	next slog.Handler
}

// NewContextHandler wraps next so that records logged with a context
// carry its project and task identifiers.
func NewContextHandler(next slog.Handler) slog.Handler {
	return &contextHandler{next: next}
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if attrs := contextAttrs(ctx); len(attrs) > 0 {
		r = r.Clone()
		r.AddAttrs(attrs...)
	}
	return h.next.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{next: h.next.WithGroup(name)}
}
