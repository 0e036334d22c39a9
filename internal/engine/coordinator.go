package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rendis/diagen/internal/diagram"
	"github.com/rendis/diagen/internal/logging"
	"github.com/rendis/diagen/internal/sanitize"
	"github.com/rendis/diagen/internal/theme"
	"github.com/rendis/diagen/pkg/schema"
)

// DefaultPoolSize is the batch parallelism used when a caller passes none.
const DefaultPoolSize = 4

// Renderer turns sanitized diagram source into an artifact. The theme is
// passed on every call; implementations keep no per-diagram state.
type Renderer interface {
	Render(ctx context.Context, source string, th theme.Theme) (string, error)
	Validate(ctx context.Context, source string) error
}

// CoordinatorConfig holds configuration for the coordinator.
type CoordinatorConfig struct {
	PoolSize int                 // default batch parallelism
	Themes   theme.ThemeResolver // nil = built-in presets behind an LRU
	Logger   *slog.Logger        // nil = slog.Default()
}

// Coordinator drives diagrams through sanitize, theme resolution and
// rendering, one state machine per diagram.
type Coordinator struct {
	renderer Renderer
	themes   theme.ThemeResolver
	fsm      *RenderFSM
	logger   *slog.Logger
	config   CoordinatorConfig
}

// NewCoordinator creates a Coordinator rendering through renderer.
func NewCoordinator(renderer Renderer, cfg CoordinatorConfig) *Coordinator {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.Themes == nil {
		cfg.Themes = theme.NewCachedResolver(nil, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Coordinator{
		renderer: renderer,
		themes:   cfg.Themes,
		fsm:      NewRenderFSM(cfg.Logger),
		logger:   cfg.Logger,
		config:   cfg,
	}
}

// FSM returns the state machine every diagram goes through, for registering
// transition hooks.
func (c *Coordinator) FSM() *RenderFSM {
	return c.fsm
}

// Render sanitizes spec, resolves req and renders the result. Every failure,
// including a renderer panic, is reported in the result rather than returned.
func (c *Coordinator) Render(ctx context.Context, spec schema.DiagramSpec, req schema.ThemeRequest) schema.RenderResult {
	return c.render(ctx, spec, req)
}

// Validate sanitizes spec and parse-checks it without rendering.
func (c *Coordinator) Validate(ctx context.Context, spec schema.DiagramSpec) schema.RenderResult {
	return c.validate(ctx, spec)
}

// RenderBatch renders specs independently with at most parallelism in
// flight. Results are in input order. A non-positive parallelism uses the
// configured pool size.
func (c *Coordinator) RenderBatch(ctx context.Context, specs []schema.DiagramSpec, req schema.ThemeRequest, parallelism int) []schema.RenderResult {
	return c.batch(ctx, specs, req.PresetID, parallelism, func(ctx context.Context, spec schema.DiagramSpec) schema.RenderResult {
		return c.render(ctx, spec, req)
	})
}

// ValidateBatch validates specs the way RenderBatch renders them.
func (c *Coordinator) ValidateBatch(ctx context.Context, specs []schema.DiagramSpec, parallelism int) []schema.RenderResult {
	return c.batch(ctx, specs, "", parallelism, c.validate)
}

var errDiagramFailed = errors.New("diagram failed")

func (c *Coordinator) batch(ctx context.Context, specs []schema.DiagramSpec, preset string, parallelism int,
	fn func(context.Context, schema.DiagramSpec) schema.RenderResult) []schema.RenderResult {
	results := make([]schema.RenderResult, len(specs))
	if len(specs) == 0 {
		return results
	}
	if parallelism <= 0 {
		parallelism = c.config.PoolSize
	}

	ctx = logging.WithBatchID(ctx, uuid.NewString())
	log := logging.LogWith(ctx, c.logger)
	log.Info("batch started",
		slog.Int("diagrams", len(specs)),
		slog.Int("parallelism", parallelism),
	)

	pool := NewWorkerPool(parallelism, func(v any) {
		log.Error("batch task panicked", slog.String("panic", fmt.Sprint(v)))
	})
	for i, spec := range specs {
		err := pool.Submit(ctx, func(ctx context.Context) error {
			results[i] = fn(ctx, spec)
			if !results[i].OK {
				return errDiagramFailed
			}
			return nil
		})
		if err != nil {
			results[i] = c.abort(ctx, spec, preset,
				schema.NewError(schema.ErrCodeCancelled, "diagram not started: batch cancelled").WithCause(err))
		}
	}
	pool.Shutdown()

	for i, res := range results {
		if res.State == "" {
			results[i] = c.abort(ctx, specs[i], preset,
				schema.NewError(schema.ErrCodeRender, "diagram processing panicked"))
		}
	}

	m := pool.Metrics()
	log.Info("batch finished",
		slog.Int64("ok", m.Completed),
		slog.Int64("failed", int64(len(specs))-m.Completed),
	)
	return results
}

func (c *Coordinator) render(ctx context.Context, spec schema.DiagramSpec, req schema.ThemeRequest) schema.RenderResult {
	r := c.start(ctx, spec, req.PresetID)
	if res, ok := r.sanitize(spec); !ok {
		return res
	}

	th := c.themes.Resolve(req)
	r.ctx = logging.WithPreset(r.ctx, th.PresetID)
	if len(th.Ignored) > 0 {
		r.log().Debug("unknown theme overrides ignored", slog.Any("keys", th.Ignored))
	}
	r.result.ThemedSource = diagram.ThemedMermaid(r.result.SanitizedSource, th)
	if err := r.advance(schema.RenderStateThemeResolved); err != nil {
		return r.fail(err)
	}

	artifact, err := c.safeRender(r.ctx, r.result.SanitizedSource, th)
	if err != nil {
		return r.fail(err)
	}
	r.result.Artifact = artifact
	r.result.OK = true
	if err := r.advance(schema.RenderStateRendered); err != nil {
		return r.fail(err)
	}
	r.log().Debug("diagram rendered", slog.Int("bytes", len(artifact)))
	return r.result
}

func (c *Coordinator) validate(ctx context.Context, spec schema.DiagramSpec) schema.RenderResult {
	r := c.start(ctx, spec, "")
	if res, ok := r.sanitize(spec); !ok {
		return res
	}
	if err := c.safeValidate(r.ctx, r.result.SanitizedSource); err != nil {
		return r.fail(err)
	}
	r.result.OK = true
	if err := r.advance(schema.RenderStateValidated); err != nil {
		return r.fail(err)
	}
	return r.result
}

// abort reports a diagram that never reached the renderer. It still passes
// through sanitized so the result carries the cleaned source.
func (c *Coordinator) abort(ctx context.Context, spec schema.DiagramSpec, preset string, cause error) schema.RenderResult {
	r := c.start(ctx, spec, preset)
	r.result.SanitizedSource = sanitize.Sanitize(spec.Source)
	if err := r.advance(schema.RenderStateSanitized); err != nil {
		return r.fail(err)
	}
	return r.fail(cause)
}

func (c *Coordinator) safeRender(ctx context.Context, source string, th theme.Theme) (artifact string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = schema.NewErrorf(schema.ErrCodeRender, "renderer panicked: %v", rec)
		}
	}()
	return c.renderer.Render(ctx, source, th)
}

func (c *Coordinator) safeValidate(ctx context.Context, source string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = schema.NewErrorf(schema.ErrCodeRender, "validator panicked: %v", rec)
		}
	}()
	return c.renderer.Validate(ctx, source)
}

// run is the in-flight state of one diagram.
type run struct {
	c      *Coordinator
	ctx    context.Context
	id     string
	state  schema.RenderState
	result schema.RenderResult
}

func (c *Coordinator) start(ctx context.Context, spec schema.DiagramSpec, preset string) *run {
	id := uuid.NewString()
	ctx = logging.WithDiagramID(ctx, id)
	if preset != "" {
		ctx = logging.WithPreset(ctx, preset)
	}
	return &run{
		c:     c,
		ctx:   ctx,
		id:    id,
		state: schema.RenderStatePending,
		result: schema.RenderResult{
			DiagramID: id,
			Title:     spec.Title,
			State:     schema.RenderStatePending,
		},
	}
}

func (r *run) log() *slog.Logger {
	return logging.LogWith(r.ctx, r.c.logger)
}

// sanitize runs the defensive sanitize pass. ok is false when the diagram
// has already failed.
func (r *run) sanitize(spec schema.DiagramSpec) (schema.RenderResult, bool) {
	r.result.SanitizedSource = sanitize.Sanitize(spec.Source)
	if err := r.advance(schema.RenderStateSanitized); err != nil {
		return r.fail(err), false
	}
	if r.result.SanitizedSource == "" {
		return r.fail(schema.NewError(schema.ErrCodeEmptySource, "diagram source is empty after sanitizing")), false
	}
	if err := r.ctx.Err(); err != nil {
		return r.fail(schema.NewError(schema.ErrCodeCancelled, "diagram cancelled").WithCause(err)), false
	}
	return schema.RenderResult{}, true
}

// advance moves the diagram to state to. A hook error after a valid
// transition still leaves the diagram in to.
func (r *run) advance(to schema.RenderState) error {
	err := r.c.fsm.Transition(r.ctx, r.id, r.state, to)
	if schema.CodeOf(err) != schema.ErrCodeInvalidTransition {
		r.state = to
		r.result.State = to
	}
	return err
}

// fail records err on the result and moves the diagram to failed. The result
// is failed even when the state machine rejects the move.
func (r *run) fail(err error) schema.RenderResult {
	code := schema.CodeOf(err)
	if code == "" {
		code = schema.ErrCodeRender
		if r.ctx.Err() != nil {
			code = schema.ErrCodeCancelled
		}
	}

	if r.state != schema.RenderStateFailed {
		if tErr := r.advance(schema.RenderStateFailed); tErr != nil {
			r.log().Error("failed transition rejected",
				slog.String("from", string(r.state)),
				slog.String("error", tErr.Error()),
			)
		}
	}

	r.state = schema.RenderStateFailed
	r.result.State = schema.RenderStateFailed
	r.result.OK = false
	r.result.Artifact = ""
	r.result.ErrorCode = code
	r.result.ErrorMessage = errorMessage(err)
	r.log().Warn("diagram failed",
		slog.String("title", r.result.Title),
		slog.String("code", code),
		slog.String("error", err.Error()),
	)
	return r.result
}

// errorMessage returns the message of a coded error without its code prefix.
func errorMessage(err error) string {
	var de *schema.DiagenError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}
