package engine

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/rendis/diagen/internal/logging"
	"github.com/rendis/diagen/pkg/schema"
)

// TransitionHook is called after a diagram changes state. A hook error does
// not undo the transition; it is returned to the caller.
type TransitionHook func(ctx context.Context, diagramID string, from, to schema.RenderState) error

// RenderFSM validates diagram lifecycle transitions against
// ValidRenderTransitions and notifies registered hooks.
type RenderFSM struct {
	mu     sync.RWMutex
	logger *slog.Logger
	after  []TransitionHook
}

// NewRenderFSM creates a RenderFSM that logs transitions at debug level.
func NewRenderFSM(logger *slog.Logger) *RenderFSM {
	if logger == nil {
		logger = slog.Default()
	}
	return &RenderFSM{logger: logger}
}

// OnTransition registers a hook run after every valid transition.
func (f *RenderFSM) OnTransition(hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after = append(f.after, hook)
}

// Transition checks from -> to and runs the hooks. Hooks run outside the lock
// so they may drive other diagrams through the same FSM.
func (f *RenderFSM) Transition(ctx context.Context, diagramID string, from, to schema.RenderState) error {
	if !IsValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid render transition: %s -> %s", from, to).
			WithDetails(map[string]any{"diagram_id": diagramID, "from": string(from), "to": string(to)})
	}

	logging.LogWith(ctx, f.logger).Debug("diagram transition",
		slog.String("from", string(from)),
		slog.String("to", string(to)),
	)

	f.mu.RLock()
	hooks := slices.Clone(f.after)
	f.mu.RUnlock()

	for _, hook := range hooks {
		if err := hook(ctx, diagramID, from, to); err != nil {
			return err
		}
	}
	return nil
}

// IsValidTransition reports whether ValidRenderTransitions allows from -> to.
func IsValidTransition(from, to schema.RenderState) bool {
	return slices.Contains(ValidRenderTransitions[from], to)
}

// ValidRenderTransitions defines the allowed state transitions for a diagram.
// Failure is reachable from every non-terminal state except pending;
// validate-only runs end in validated instead of resolving a theme.
var ValidRenderTransitions = map[schema.RenderState][]schema.RenderState{
	schema.RenderStatePending:       {schema.RenderStateSanitized},
	schema.RenderStateSanitized:     {schema.RenderStateThemeResolved, schema.RenderStateValidated, schema.RenderStateFailed},
	schema.RenderStateThemeResolved: {schema.RenderStateRendered, schema.RenderStateFailed},
	schema.RenderStateRendered:      {},
	schema.RenderStateValidated:     {},
	schema.RenderStateFailed:        {},
}
