// Package logger configures the process-wide slog logger and carries
// document coordinates through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

// Setup installs the default logger writing to stdout.
func Setup(level string, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter installs the default logger writing to w.
func SetupWriter(w io.Writer, level string, format string) {
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithAttrs returns a context whose logger carries args in addition to the
// attributes already stored in ctx.
func WithAttrs(ctx context.Context, args ...any) context.Context {
	prev, _ := ctx.Value(contextKey{}).([]any)
	attrs := make([]any, 0, len(prev)+len(args))
	attrs = append(attrs, prev...)
	attrs = append(attrs, args...)
	return context.WithValue(ctx, contextKey{}, attrs)
}

// WithDocument returns a context whose logger is tagged with the coordinates
// of the document being processed.
func WithDocument(ctx context.Context, index, docType, id string) context.Context {
	return WithAttrs(ctx, "index", index, "type", docType, "doc_id", id)
}

// FromContext returns the default logger extended with the attributes
// stored in ctx.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if attrs, ok := ctx.Value(contextKey{}).([]any); ok {
		logger = logger.With(attrs...)
	}
	return logger
}

func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
