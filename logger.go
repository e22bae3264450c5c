package pagecache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with cache-specific helpers.
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
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithPath adds a path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithHandle adds a handle field to the logger.
func (l *Logger) WithHandle(h Handle) *Logger {
	return &Logger{
		Logger: l.Logger.With("handle", uint64(h)),
	}
}

// LogOpen logs an open operation.
func (l *Logger) LogOpen(ctx context.Context, path string, h Handle, shared bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"path", path,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "opened",
		"path", path,
		"handle", uint64(h),
		"shared", shared,
	)
}

// LogClose logs a close operation.
func (l *Logger) LogClose(ctx context.Context, path string, h Handle, last bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"path", path,
			"handle", uint64(h),
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "closed",
		"path", path,
		"handle", uint64(h),
		"released", last,
	)
}

// LogFault logs a page brought in from the device.
func (l *Logger) LogFault(ctx context.Context, path string, offset int64, n int) {
	l.DebugContext(ctx, "page fault",
		"path", path,
		"offset", offset,
		"bytes", n,
	)
}

// LogEvict logs a page leaving the cache.
func (l *Logger) LogEvict(ctx context.Context, path string, offset int64, dirty bool) {
	l.DebugContext(ctx, "page evicted",
		"path", path,
		"offset", offset,
		"dirty", dirty,
	)
}

// LogFlush logs a flush of one resource.
func (l *Logger) LogFlush(ctx context.Context, path string, pages int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"path", path,
			"written", pages,
			"error", err,
		)
		return
	}
	if pages > 0 {
		l.DebugContext(ctx, "flushed",
			"path", path,
			"pages", pages,
		)
	}
}

// LogEOF logs a sequential reader reaching the end of a resource.
func (l *Logger) LogEOF(ctx context.Context, path string, total int64) {
	l.DebugContext(ctx, "end of resource",
		"path", path,
		"bytes", total,
	)
}

// LogDrain logs the outcome of a sequential drain.
func (l *Logger) LogDrain(ctx context.Context, path string, total int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "drain failed",
			"path", path,
			"bytes", total,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "drain completed",
		"path", path,
		"bytes", total,
	)
}
