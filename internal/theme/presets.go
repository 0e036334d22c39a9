package theme

import (
	"sort"
	"strings"
)

// DefaultPresetID is used when a request names no preset or an unknown one.
const DefaultPresetID = "default"

// Preset is a named color scheme. Text is optional; when empty the resolver
// derives the node text color from the node fill.
type Preset struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Background  string `json:"background"`
	NodeFill    string `json:"node_fill"`
	NodeBorder  string `json:"node_border"`
	Line        string `json:"line"`
	Text        string `json:"text,omitempty"`
}

var builtinPresets = []Preset{
	{
		ID:          "default",
		Label:       "Default",
		Description: "Light canvas with soft indigo nodes.",
		Background:  "#ffffff",
		NodeFill:    "#eef2ff",
		NodeBorder:  "#6366f1",
		Line:        "#4b5563",
		Text:        "#1f2937",
	},
	{
		ID:          "ocean",
		Label:       "Ocean",
		Description: "Pale blue canvas with deep sea nodes.",
		Background:  "#f0f9ff",
		NodeFill:    "#0369a1",
		NodeBorder:  "#075985",
		Line:        "#0c4a6e",
	},
	{
		ID:          "sunset",
		Label:       "Sunset",
		Description: "Warm cream canvas with orange nodes.",
		Background:  "#fff7ed",
		NodeFill:    "#fdba74",
		NodeBorder:  "#ea580c",
		Line:        "#9a3412",
	},
	{
		ID:          "forest",
		Label:       "Forest",
		Description: "Mint canvas with pine green nodes.",
		Background:  "#f0fdf4",
		NodeFill:    "#166534",
		NodeBorder:  "#14532d",
		Line:        "#15803d",
	},
	{
		ID:          "dark",
		Label:       "Dark",
		Description: "Charcoal canvas with slate nodes.",
		Background:  "#111827",
		NodeFill:    "#1f2937",
		NodeBorder:  "#9ca3af",
		Line:        "#d1d5db",
		Text:        "#f9fafb",
	},
	{
		ID:          "lavender",
		Label:       "Lavender",
		Description: "Lilac canvas with violet nodes.",
		Background:  "#faf5ff",
		NodeFill:    "#ddd6fe",
		NodeBorder:  "#7c3aed",
		Line:        "#5b21b6",
	},
	{
		ID:          "monochrome",
		Label:       "Monochrome",
		Description: "Grayscale, print friendly.",
		Background:  "#ffffff",
		NodeFill:    "#e5e7eb",
		NodeBorder:  "#374151",
		Line:        "#111827",
		Text:        "#111827",
	},
}

// Registry is an immutable set of presets keyed by ID.
type Registry struct {
	presets map[string]Preset
}

// NewRegistry returns a registry holding the built-in presets plus extra.
// An extra preset with a built-in ID replaces the built-in.
func NewRegistry(extra ...Preset) *Registry {
	r := &Registry{presets: make(map[string]Preset, len(builtinPresets)+len(extra))}
	for _, p := range builtinPresets {
		r.presets[p.ID] = p
	}
	for _, p := range extra {
		id := normalizeID(p.ID)
		if id == "" {
			continue
		}
		p.ID = id
		r.presets[id] = p
	}
	return r
}

// Lookup returns the preset with the given ID. ok is false when the ID is
// unknown, in which case the default preset is returned.
func (r *Registry) Lookup(id string) (p Preset, ok bool) {
	if p, ok := r.presets[normalizeID(id)]; ok {
		return p, true
	}
	return r.presets[DefaultPresetID], false
}

// Presets returns all presets sorted by ID.
func (r *Registry) Presets() []Preset {
	out := make([]Preset, 0, len(r.presets))
	for _, p := range r.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
