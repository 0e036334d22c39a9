package schema

// DiagramSpec is one diagram extracted from a model response.
// Source is the diagram definition before the coordinator's defensive sanitize pass.
type DiagramSpec struct {
	Title  string `json:"title"`
	Source string `json:"source"`
}

// ThemeRequest selects a preset and optional per-variable overrides.
// An empty PresetID means ad-hoc styling on top of the default preset.
// Blank override values are treated as unset.
type ThemeRequest struct {
	PresetID  string            `json:"preset_id,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// RenderState enumerates the lifecycle states of a single diagram.
type RenderState string

const (
	RenderStatePending       RenderState = "pending"
	RenderStateSanitized     RenderState = "sanitized"
	RenderStateThemeResolved RenderState = "theme_resolved"
	RenderStateRendered      RenderState = "rendered"
	RenderStateValidated     RenderState = "validated"
	RenderStateFailed        RenderState = "failed"
)

// Terminal reports whether no further transition is possible from s.
func (s RenderState) Terminal() bool {
	return s == RenderStateRendered || s == RenderStateValidated || s == RenderStateFailed
}

// RenderResult is the outcome of rendering (or validating) one DiagramSpec.
type RenderResult struct {
	DiagramID       string      `json:"diagram_id,omitempty"`
	Title           string      `json:"title"`
	OK              bool        `json:"ok"`
	Artifact        string      `json:"artifact,omitempty"`      // SVG markup, set iff OK on a full render
	ErrorMessage    string      `json:"error_message,omitempty"` // set iff !OK
	ErrorCode       string      `json:"error_code,omitempty"`
	SanitizedSource string      `json:"sanitized_source"`
	ThemedSource    string      `json:"themed_source,omitempty"` // sanitized source with an init directive
	State           RenderState `json:"state"`
}
