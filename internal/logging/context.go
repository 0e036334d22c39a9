package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	batchIDKey ctxKey = iota
	diagramIDKey
	presetKey
)

// WithBatchID returns a context with the batch ID set.
func WithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

// WithDiagramID returns a context with the diagram ID set.
func WithDiagramID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, diagramIDKey, id)
}

// WithPreset returns a context with the preset ID set.
func WithPreset(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, presetKey, id)
}

// BatchID extracts the batch ID from the context, or "" if absent.
func BatchID(ctx context.Context) string {
	v, _ := ctx.Value(batchIDKey).(string)
	return v
}

// DiagramID extracts the diagram ID from the context, or "" if absent.
func DiagramID(ctx context.Context) string {
	v, _ := ctx.Value(diagramIDKey).(string)
	return v
}

// Preset extracts the preset ID from the context, or "" if absent.
func Preset(ctx context.Context) string {
	v, _ := ctx.Value(presetKey).(string)
	return v
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if bID := BatchID(ctx); bID != "" {
		logger = logger.With(slog.String("batch_id", bID))
	}
	if dID := DiagramID(ctx); dID != "" {
		logger = logger.With(slog.String("diagram_id", dID))
	}
	if pID := Preset(ctx); pID != "" {
		logger = logger.With(slog.String("preset", pID))
	}
	return logger
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically. IDs already
// bound through WithAttrs, as LogWith does, are not repeated.
type CorrelationHandler struct {
	inner slog.Handler
	bound map[string]bool
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := BatchID(ctx); v != "" && !h.bound["batch_id"] {
		r.AddAttrs(slog.String("batch_id", v))
	}
	if v := DiagramID(ctx); v != "" && !h.bound["diagram_id"] {
		r.AddAttrs(slog.String("diagram_id", v))
	}
	if v := Preset(ctx); v != "" && !h.bound["preset"] {
		r.AddAttrs(slog.String("preset", v))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]bool, len(h.bound)+len(attrs))
	for k := range h.bound {
		bound[k] = true
	}
	for _, a := range attrs {
		switch a.Key {
		case "batch_id", "diagram_id", "preset":
			bound[a.Key] = true
		}
	}
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs), bound: bound}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name), bound: h.bound}
}
