package pcedit

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with editor-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithDataset adds a dataset field to the logger.
func (l *Logger) WithDataset(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dataset", id),
	}
}

// WithSession adds a session field to the logger.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("session", id),
	}
}

// LogLoad logs the start of a dataset load.
func (l *Logger) LogLoad(ctx context.Context, datasetID string, tiles, points int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"dataset", datasetID,
			"tiles", tiles,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "load started",
			"dataset", datasetID,
			"tiles", tiles,
			"points", points,
		)
	}
}

// LogCommit logs a commit attempt.
func (l *Logger) LogCommit(ctx context.Context, sessionID string, accepted, remaining int, version uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"session", sessionID,
			"accepted", accepted,
			"remaining", remaining,
			"version", version,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "commit completed",
			"session", sessionID,
			"operations", accepted,
			"version", version,
		)
	}
}

// LogCompaction logs a compaction pass.
func (l *Logger) LogCompaction(ctx context.Context, removed, kept int, took time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "compaction failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "compaction completed",
			"removed", removed,
			"kept", kept,
			"took", took,
		)
	}
}

// LogOverlay logs an ML preview.
func (l *Logger) LogOverlay(ctx context.Context, previewID string, points int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "preview failed",
			"preview", previewID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "preview painted",
			"preview", previewID,
			"points", points,
		)
	}
}
