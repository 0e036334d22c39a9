package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/diagen/internal/diagram"
	"github.com/rendis/diagen/internal/theme"
	"github.com/rendis/diagen/pkg/schema"
)

// stubRenderer records calls and delegates to optional funcs. The default
// render returns "<svg>" plus the source.
type stubRenderer struct {
	render   func(ctx context.Context, source string, th theme.Theme) (string, error)
	validate func(ctx context.Context, source string) error

	mu      sync.Mutex
	sources []string
	themes  []theme.Theme
}

func (s *stubRenderer) Render(ctx context.Context, source string, th theme.Theme) (string, error) {
	s.mu.Lock()
	s.sources = append(s.sources, source)
	s.themes = append(s.themes, th)
	s.mu.Unlock()
	if s.render != nil {
		return s.render(ctx, source, th)
	}
	return "<svg>" + source + "</svg>", nil
}

func (s *stubRenderer) Validate(ctx context.Context, source string) error {
	s.mu.Lock()
	s.sources = append(s.sources, source)
	s.mu.Unlock()
	if s.validate != nil {
		return s.validate(ctx, source)
	}
	return nil
}

func (s *stubRenderer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

func newTestCoordinator(r Renderer) *Coordinator {
	return NewCoordinator(r, CoordinatorConfig{
		Logger: slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
}

const okSource = "flowchart TD\n    A[Start] --> B[Done]"

func TestCoordinator_RenderSuccess(t *testing.T) {
	stub := &stubRenderer{}
	c := newTestCoordinator(stub)

	res := c.Render(context.Background(),
		schema.DiagramSpec{Title: "Flow", Source: "```mermaid\n" + okSource + "\n```"},
		schema.ThemeRequest{PresetID: "ocean"})

	assert.True(t, res.OK)
	assert.Equal(t, schema.RenderStateRendered, res.State)
	assert.Equal(t, "Flow", res.Title)
	assert.NotEmpty(t, res.DiagramID)
	assert.Equal(t, okSource, res.SanitizedSource)
	assert.Equal(t, "<svg>"+okSource+"</svg>", res.Artifact)
	assert.Empty(t, res.ErrorMessage)
	assert.Empty(t, res.ErrorCode)
	assert.True(t, strings.HasPrefix(res.ThemedSource, "%%{init: "))
	assert.True(t, strings.HasSuffix(res.ThemedSource, okSource))

	require.Len(t, stub.themes, 1)
	want := theme.Resolve(schema.ThemeRequest{PresetID: "ocean"})
	assert.Equal(t, want.NodeFill, stub.themes[0].NodeFill)
	assert.Equal(t, want.NodeText, stub.themes[0].NodeText)
}

func TestCoordinator_RenderRepairsSource(t *testing.T) {
	stub := &stubRenderer{}
	c := newTestCoordinator(stub)

	res := c.Render(context.Background(),
		schema.DiagramSpec{Title: "Repair", Source: "flowchart TD\n    A[Load (cached)] --> B[Done]"},
		schema.ThemeRequest{})

	require.True(t, res.OK)
	assert.NotContains(t, res.SanitizedSource, "(")
	assert.Equal(t, []string{res.SanitizedSource}, stub.sources)
}

func TestCoordinator_RenderCodedError(t *testing.T) {
	stub := &stubRenderer{render: func(context.Context, string, theme.Theme) (string, error) {
		return "", schema.NewError(schema.ErrCodeSyntax, "line 2: unclosed label")
	}}
	c := newTestCoordinator(stub)

	res := c.Render(context.Background(), schema.DiagramSpec{Title: "Bad", Source: okSource}, schema.ThemeRequest{})

	assert.False(t, res.OK)
	assert.Equal(t, schema.RenderStateFailed, res.State)
	assert.Equal(t, schema.ErrCodeSyntax, res.ErrorCode)
	assert.Equal(t, "line 2: unclosed label", res.ErrorMessage)
	assert.Empty(t, res.Artifact)
	assert.Equal(t, okSource, res.SanitizedSource)
}

func TestCoordinator_RenderPlainError(t *testing.T) {
	stub := &stubRenderer{render: func(context.Context, string, theme.Theme) (string, error) {
		return "partial", errors.New("layout engine crashed")
	}}
	c := newTestCoordinator(stub)

	res := c.Render(context.Background(), schema.DiagramSpec{Source: okSource}, schema.ThemeRequest{})

	assert.False(t, res.OK)
	assert.Equal(t, schema.ErrCodeRender, res.ErrorCode)
	assert.Equal(t, "layout engine crashed", res.ErrorMessage)
	assert.Empty(t, res.Artifact)
}

func TestCoordinator_RenderPanicRecovered(t *testing.T) {
	stub := &stubRenderer{render: func(context.Context, string, theme.Theme) (string, error) {
		panic("nil layout")
	}}
	c := newTestCoordinator(stub)

	res := c.Render(context.Background(), schema.DiagramSpec{Source: okSource}, schema.ThemeRequest{})

	assert.False(t, res.OK)
	assert.Equal(t, schema.RenderStateFailed, res.State)
	assert.Equal(t, schema.ErrCodeRender, res.ErrorCode)
	assert.Contains(t, res.ErrorMessage, "nil layout")
}

func TestCoordinator_RenderEmptySource(t *testing.T) {
	stub := &stubRenderer{}
	c := newTestCoordinator(stub)

	res := c.Render(context.Background(), schema.DiagramSpec{Title: "Empty", Source: "```\n\n```"}, schema.ThemeRequest{})

	assert.False(t, res.OK)
	assert.Equal(t, schema.ErrCodeEmptySource, res.ErrorCode)
	assert.Equal(t, schema.RenderStateFailed, res.State)
	assert.Zero(t, stub.Calls())
}

func TestCoordinator_RenderCancelled(t *testing.T) {
	stub := &stubRenderer{}
	c := newTestCoordinator(stub)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := c.Render(ctx, schema.DiagramSpec{Source: okSource}, schema.ThemeRequest{})

	assert.False(t, res.OK)
	assert.Equal(t, schema.ErrCodeCancelled, res.ErrorCode)
	assert.Equal(t, okSource, res.SanitizedSource)
	assert.Zero(t, stub.Calls())
}

func TestCoordinator_RenderTransitions(t *testing.T) {
	rec := &transitionRecorder{}
	c := newTestCoordinator(&stubRenderer{})
	c.FSM().OnTransition(rec.hook)

	c.Render(context.Background(), schema.DiagramSpec{Source: okSource}, schema.ThemeRequest{})

	assert.Equal(t, []string{
		"pending->sanitized",
		"sanitized->theme_resolved",
		"theme_resolved->rendered",
	}, rec.Steps())
}

func TestCoordinator_FailedTransitions(t *testing.T) {
	rec := &transitionRecorder{}
	c := newTestCoordinator(&stubRenderer{render: func(context.Context, string, theme.Theme) (string, error) {
		return "", errors.New("boom")
	}})
	c.FSM().OnTransition(rec.hook)

	c.Render(context.Background(), schema.DiagramSpec{Source: okSource}, schema.ThemeRequest{})

	assert.Equal(t, []string{
		"pending->sanitized",
		"sanitized->theme_resolved",
		"theme_resolved->failed",
	}, rec.Steps())
}

func TestCoordinator_HookErrorFailsDiagram(t *testing.T) {
	c := newTestCoordinator(&stubRenderer{})
	c.FSM().OnTransition(func(_ context.Context, _ string, _, to schema.RenderState) error {
		if to == schema.RenderStateThemeResolved {
			return errors.New("audit sink down")
		}
		return nil
	})

	res := c.Render(context.Background(), schema.DiagramSpec{Source: okSource}, schema.ThemeRequest{})

	assert.False(t, res.OK)
	assert.Equal(t, schema.RenderStateFailed, res.State)
	assert.Equal(t, "audit sink down", res.ErrorMessage)
}

func TestCoordinator_Validate(t *testing.T) {
	rec := &transitionRecorder{}
	stub := &stubRenderer{render: func(context.Context, string, theme.Theme) (string, error) {
		t.Fatal("validate must not render")
		return "", nil
	}}
	c := newTestCoordinator(stub)
	c.FSM().OnTransition(rec.hook)

	res := c.Validate(context.Background(), schema.DiagramSpec{Title: "Check", Source: okSource})

	assert.True(t, res.OK)
	assert.Equal(t, schema.RenderStateValidated, res.State)
	assert.Empty(t, res.Artifact)
	assert.Empty(t, res.ThemedSource)
	assert.Equal(t, okSource, res.SanitizedSource)
	assert.Equal(t, []string{"pending->sanitized", "sanitized->validated"}, rec.Steps())
}

func TestCoordinator_ValidateFailure(t *testing.T) {
	stub := &stubRenderer{validate: func(context.Context, string) error {
		return schema.NewError(schema.ErrCodeUnsupported, "sequenceDiagram diagrams are not supported")
	}}
	c := newTestCoordinator(stub)

	res := c.Validate(context.Background(), schema.DiagramSpec{Source: "sequenceDiagram\nA->>B: hi"})

	assert.False(t, res.OK)
	assert.Equal(t, schema.RenderStateFailed, res.State)
	assert.Equal(t, schema.ErrCodeUnsupported, res.ErrorCode)
}

func TestCoordinator_ValidatePanicRecovered(t *testing.T) {
	c := newTestCoordinator(&stubRenderer{validate: func(context.Context, string) error {
		panic("parser bug")
	}})

	res := c.Validate(context.Background(), schema.DiagramSpec{Source: okSource})

	assert.False(t, res.OK)
	assert.Equal(t, schema.ErrCodeRender, res.ErrorCode)
}

func TestCoordinator_RenderWithSVGRenderer(t *testing.T) {
	c := newTestCoordinator(diagram.NewSVGRenderer())

	res := c.Render(context.Background(), schema.DiagramSpec{Title: "Real", Source: okSource}, schema.ThemeRequest{PresetID: "forest"})
	require.True(t, res.OK, res.ErrorMessage)
	assert.Contains(t, res.Artifact, "<svg")

	bad := c.Render(context.Background(), schema.DiagramSpec{Source: "sequenceDiagram\n    A->>B: hi"}, schema.ThemeRequest{})
	assert.False(t, bad.OK)
	assert.Equal(t, schema.ErrCodeUnsupported, bad.ErrorCode)
}

func batchSpecs(n int) []schema.DiagramSpec {
	specs := make([]schema.DiagramSpec, n)
	for i := range specs {
		specs[i] = schema.DiagramSpec{
			Title:  fmt.Sprintf("D%d", i),
			Source: fmt.Sprintf("flowchart TD\n    N%d --> M%d", i, i),
		}
	}
	return specs
}

func TestCoordinator_RenderBatchPreservesOrder(t *testing.T) {
	const n = 8
	stub := &stubRenderer{render: func(_ context.Context, source string, _ theme.Theme) (string, error) {
		var i int
		_, _ = fmt.Sscanf(source[strings.Index(source, "N"):], "N%d", &i)
		// Later diagrams finish first.
		time.Sleep(time.Duration(n-i) * 3 * time.Millisecond)
		return source, nil
	}}
	c := newTestCoordinator(stub)

	results := c.RenderBatch(context.Background(), batchSpecs(n), schema.ThemeRequest{}, n)

	require.Len(t, results, n)
	for i, res := range results {
		assert.Equal(t, fmt.Sprintf("D%d", i), res.Title)
		assert.True(t, res.OK)
		assert.Contains(t, res.Artifact, fmt.Sprintf("N%d", i))
	}
}

func TestCoordinator_RenderBatchIndependence(t *testing.T) {
	stub := &stubRenderer{render: func(_ context.Context, source string, _ theme.Theme) (string, error) {
		if strings.Contains(source, "N2 ") {
			return "", schema.NewError(schema.ErrCodeSyntax, "line 2: bad edge")
		}
		if strings.Contains(source, "N4 ") {
			panic("renderer bug")
		}
		return "svg:" + source, nil
	}}
	c := newTestCoordinator(stub)
	specs := batchSpecs(6)
	req := schema.ThemeRequest{PresetID: "dark"}

	batch := c.RenderBatch(context.Background(), specs, req, 3)

	require.Len(t, batch, len(specs))
	for i, spec := range specs {
		alone := c.Render(context.Background(), spec, req)
		got := batch[i]
		alone.DiagramID, got.DiagramID = "", ""
		assert.Equal(t, alone, got, "diagram %d", i)
	}
	assert.False(t, batch[2].OK)
	assert.False(t, batch[4].OK)
	assert.True(t, batch[5].OK)
}

func TestCoordinator_RenderBatchBoundsParallelism(t *testing.T) {
	var current, peak int64
	stub := &stubRenderer{render: func(context.Context, string, theme.Theme) (string, error) {
		c := atomic.AddInt64(&current, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if c <= p || atomic.CompareAndSwapInt64(&peak, p, c) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return "ok", nil
	}}
	c := newTestCoordinator(stub)

	results := c.RenderBatch(context.Background(), batchSpecs(12), schema.ThemeRequest{}, 2)

	assert.Len(t, results, 12)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(2))
}

func TestCoordinator_RenderBatchCancelledBeforeStart(t *testing.T) {
	stub := &stubRenderer{}
	c := newTestCoordinator(stub)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := c.RenderBatch(ctx, batchSpecs(3), schema.ThemeRequest{}, 2)

	require.Len(t, results, 3)
	for _, res := range results {
		assert.False(t, res.OK)
		assert.Equal(t, schema.RenderStateFailed, res.State)
		assert.Equal(t, schema.ErrCodeCancelled, res.ErrorCode)
		assert.NotEmpty(t, res.SanitizedSource)
	}
	assert.Zero(t, stub.Calls())
}

func TestCoordinator_RenderBatchCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stub := &stubRenderer{render: func(context.Context, string, theme.Theme) (string, error) {
		cancel()
		return "first", nil
	}}
	c := newTestCoordinator(stub)

	results := c.RenderBatch(ctx, batchSpecs(4), schema.ThemeRequest{}, 1)

	require.Len(t, results, 4)
	assert.True(t, results[0].OK)
	for _, res := range results[1:] {
		assert.Equal(t, schema.ErrCodeCancelled, res.ErrorCode)
	}
	assert.Equal(t, 1, stub.Calls())
}

func TestCoordinator_RenderBatchEmpty(t *testing.T) {
	c := newTestCoordinator(&stubRenderer{})

	results := c.RenderBatch(context.Background(), nil, schema.ThemeRequest{}, 4)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestCoordinator_RenderBatchDefaultParallelism(t *testing.T) {
	c := NewCoordinator(&stubRenderer{}, CoordinatorConfig{})
	assert.Equal(t, DefaultPoolSize, c.config.PoolSize)

	results := c.RenderBatch(context.Background(), batchSpecs(5), schema.ThemeRequest{}, 0)
	for _, res := range results {
		assert.True(t, res.OK)
	}
}

func TestCoordinator_ValidateBatch(t *testing.T) {
	stub := &stubRenderer{validate: func(_ context.Context, source string) error {
		if strings.Contains(source, "N1 ") {
			return schema.NewError(schema.ErrCodeSyntax, "line 2: bad")
		}
		return nil
	}}
	c := newTestCoordinator(stub)

	results := c.ValidateBatch(context.Background(), batchSpecs(3), 2)

	require.Len(t, results, 3)
	assert.Equal(t, schema.RenderStateValidated, results[0].State)
	assert.Equal(t, schema.RenderStateFailed, results[1].State)
	assert.Equal(t, schema.RenderStateValidated, results[2].State)
}

func TestCoordinator_LogsCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	c := NewCoordinator(&stubRenderer{render: func(context.Context, string, theme.Theme) (string, error) {
		return "", errors.New("boom")
	}}, CoordinatorConfig{Logger: slog.New(slog.NewJSONHandler(&buf, nil))})

	results := c.RenderBatch(context.Background(), batchSpecs(1), schema.ThemeRequest{PresetID: "sunset"}, 1)

	out := buf.String()
	assert.Contains(t, out, `"msg":"diagram failed"`)
	assert.Contains(t, out, `"batch_id":`)
	assert.Contains(t, out, `"diagram_id":"`+results[0].DiagramID+`"`)
	assert.Contains(t, out, `"preset":"sunset"`)
	assert.Contains(t, out, `"msg":"batch finished"`)
}

func TestCoordinator_CustomThemeResolver(t *testing.T) {
	reg := theme.NewRegistry(theme.Preset{ID: "brand", Background: "#000000", NodeFill: "#ff6600", NodeBorder: "#ffffff", Line: "#ffffff"})
	stub := &stubRenderer{}
	c := NewCoordinator(stub, CoordinatorConfig{Themes: theme.NewResolver(reg)})

	res := c.Render(context.Background(), schema.DiagramSpec{Source: okSource}, schema.ThemeRequest{PresetID: "brand"})

	require.True(t, res.OK)
	require.Len(t, stub.themes, 1)
	assert.Equal(t, "brand", stub.themes[0].PresetID)
	assert.Equal(t, "#ff6600", stub.themes[0].NodeFill)
}
