package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullContext() context.Context {
	ctx := WithBatchID(context.Background(), "batch-9")
	ctx = WithDiagramID(ctx, "diag-3")
	return WithPreset(ctx, "ocean")
}

// decode parses one JSON log line.
func decode(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	return rec
}

func TestContextAccessors(t *testing.T) {
	empty := context.Background()
	assert.Empty(t, BatchID(empty))
	assert.Empty(t, DiagramID(empty))
	assert.Empty(t, Preset(empty))

	ctx := fullContext()
	assert.Equal(t, "batch-9", BatchID(ctx))
	assert.Equal(t, "diag-3", DiagramID(ctx))
	assert.Equal(t, "ocean", Preset(ctx))

	// Inner values shadow outer ones.
	assert.Equal(t, "forest", Preset(WithPreset(ctx, "forest")))
}

func TestLogWith(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		want    map[string]string
		missing []string
	}{
		{
			name: "all ids",
			ctx:  fullContext(),
			want: map[string]string{"batch_id": "batch-9", "diagram_id": "diag-3", "preset": "ocean"},
		},
		{
			name:    "batch only",
			ctx:     WithBatchID(context.Background(), "batch-1"),
			want:    map[string]string{"batch_id": "batch-1"},
			missing: []string{"diagram_id", "preset"},
		},
		{
			name:    "empty",
			ctx:     context.Background(),
			missing: []string{"batch_id", "diagram_id", "preset"},
		},
		{
			name:    "blank values skipped",
			ctx:     WithPreset(WithDiagramID(context.Background(), ""), ""),
			missing: []string{"diagram_id", "preset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))

			LogWith(tt.ctx, logger).Info("diagram rendered")

			rec := decode(t, &buf)
			assert.Equal(t, "diagram rendered", rec["msg"])
			for k, v := range tt.want {
				assert.Equal(t, v, rec[k], k)
			}
			for _, k := range tt.missing {
				assert.NotContains(t, rec, k)
			}
		})
	}
}

func TestCorrelationHandler(t *testing.T) {
	tests := []struct {
		name    string
		ctx     context.Context
		want    map[string]string
		missing []string
	}{
		{
			name: "all ids",
			ctx:  fullContext(),
			want: map[string]string{"batch_id": "batch-9", "diagram_id": "diag-3", "preset": "ocean"},
		},
		{
			name:    "diagram only",
			ctx:     WithDiagramID(context.Background(), "diag-1"),
			want:    map[string]string{"diagram_id": "diag-1"},
			missing: []string{"batch_id", "preset"},
		},
		{
			name:    "empty",
			ctx:     context.Background(),
			missing: []string{"batch_id", "diagram_id", "preset"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

			logger.InfoContext(tt.ctx, "batch started")

			rec := decode(t, &buf)
			for k, v := range tt.want {
				assert.Equal(t, v, rec[k], k)
			}
			for _, k := range tt.missing {
				assert.NotContains(t, rec, k)
			}
		})
	}
}

func TestCorrelationHandlerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	logger := slog.New(NewCorrelationHandler(inner))

	logger.DebugContext(fullContext(), "hidden")
	assert.Empty(t, buf.String())

	logger.WarnContext(fullContext(), "shown")
	assert.Contains(t, buf.String(), "batch_id=batch-9")
}

func TestCorrelationHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithAttrs([]slog.Attr{slog.String("component", "render")}))

	logger.InfoContext(WithBatchID(context.Background(), "batch-attr"), "with attrs")

	rec := decode(t, &buf)
	assert.Equal(t, "batch-attr", rec["batch_id"])
	assert.Equal(t, "render", rec["component"])
}

func TestCorrelationHandlerWithGroup(t *testing.T) {
	var buf bytes.Buffer
	handler := NewCorrelationHandler(slog.NewJSONHandler(&buf, nil))
	logger := slog.New(handler.WithGroup("render"))

	logger.InfoContext(WithBatchID(context.Background(), "batch-grp"), "grouped", "key", "val")

	out := buf.String()
	assert.Contains(t, out, "batch-grp")
	assert.Contains(t, out, `"render":{`)
}

func TestCorrelationHandlerSkipsBoundIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := fullContext()
	LogWith(ctx, logger).InfoContext(ctx, "bound")

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, `"batch_id"`))
	assert.Equal(t, 1, strings.Count(out, `"diagram_id"`))
	assert.Equal(t, 1, strings.Count(out, `"preset"`))
}
