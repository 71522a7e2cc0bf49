package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey contextKey = "storyline.logger"
	saveIDKey contextKey = "storyline.save_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the context logger or slog.Default.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// WithSaveID tags the context with a playthrough's save ID.
func WithSaveID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, saveIDKey, id)
}

// SaveIDFromContext returns the save ID, or "".
func SaveIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(saveIDKey).(string)
	return id
}

// L returns the context logger with the save ID attached when present.
func L(ctx context.Context) *slog.Logger {
	l := FromContext(ctx)
	if id := SaveIDFromContext(ctx); id != "" {
		l = l.With("save_id", id)
	}
	return l
}
