// Package tracing records span trees for single documents moving through
// the ingest pipeline. Spans travel in the context and are written to slog
// when the root ends.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type contextKey string

const spanKey contextKey = "trace_span"

// Span is a timed step of a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any

	mu sync.Mutex
}

// StartSpan starts a root span and stores it in the returned context.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	span := &Span{Name: name, TraceID: traceID, StartTime: time.Now(), Attrs: make(map[string]any)}
	return context.WithValue(ctx, spanKey, span), span
}

// StartChildSpan starts a span under the one in ctx. Without a parent the
// span is detached and never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	child := &Span{Name: name, StartTime: time.Now(), Attrs: make(map[string]any)}
	if parent := SpanFromContext(ctx); parent != nil {
		child.TraceID = parent.TraceID
		parent.mu.Lock()
		parent.Children = append(parent.Children, child)
		parent.mu.Unlock()
	}
	return context.WithValue(ctx, spanKey, child), child
}

// SpanFromContext returns the current span, or nil.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanKey).(*Span); ok {
		return span
	}
	return nil
}

func (s *Span) End() {
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// Log writes the tree to log, one record per span. Trees slower than slow
// are logged at warn, the rest at debug. A zero slow logs everything at
// debug.
func (s *Span) Log(ctx context.Context, log *slog.Logger, slow time.Duration) {
	level := slog.LevelDebug
	if slow > 0 && s.Duration >= slow {
		level = slog.LevelWarn
	}
	if !log.Enabled(ctx, level) {
		return
	}
	s.log(ctx, log, level, 0)
}

func (s *Span) log(ctx context.Context, log *slog.Logger, level slog.Level, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()

	log.Log(ctx, level, "span", attrs...)
	for _, child := range children {
		child.log(ctx, log, level, depth+1)
	}
}
