package theme

import (
	"sort"
	"strings"

	"github.com/rendis/diagen/pkg/schema"
)

// Base values used when neither the preset nor an override sets a field.
const (
	baseBackground = "#ffffff"
	baseNodeFill   = "#eef2ff"
	baseNodeBorder = "#6366f1"
	baseLine       = "#4b5563"
	baseFontFamily = "trebuchet ms, verdana, arial, sans-serif"
	baseFontSize   = "16px"
)

// Theme is a fully resolved set of rendering variables. Every field is set.
type Theme struct {
	PresetID            string
	Background          string
	NodeFill            string
	NodeBorder          string
	NodeText            string
	Line                string
	ClusterFill         string
	ClusterBorder       string
	EdgeLabelBackground string
	TitleColor          string
	FontFamily          string
	FontSize            string

	// Ignored lists override keys that name no known variable.
	Ignored []string
}

// Variables flattens the theme into renderer variable names. Folded concepts
// fan out to every name the renderer may consult.
func (t Theme) Variables() map[string]string {
	return map[string]string{
		"background":          t.Background,
		"nodeBkg":             t.NodeFill,
		"mainBkg":             t.NodeFill,
		"primaryColor":        t.NodeFill,
		"nodeBorder":          t.NodeBorder,
		"primaryBorderColor":  t.NodeBorder,
		"nodeTextColor":       t.NodeText,
		"primaryTextColor":    t.NodeText,
		"textColor":           t.NodeText,
		"lineColor":           t.Line,
		"defaultLinkColor":    t.Line,
		"clusterBkg":          t.ClusterFill,
		"secondaryColor":      t.ClusterFill,
		"clusterBorder":       t.ClusterBorder,
		"edgeLabelBackground": t.EdgeLabelBackground,
		"titleColor":          t.TitleColor,
		"fontFamily":          t.FontFamily,
		"fontSize":            t.FontSize,
	}
}

type field int

const (
	fieldBackground field = iota
	fieldNodeFill
	fieldNodeBorder
	fieldNodeText
	fieldLine
	fieldClusterFill
	fieldClusterBorder
	fieldEdgeLabelBackground
	fieldTitleColor
	fieldFontFamily
	fieldFontSize
	fieldCount
)

// synonyms lists accepted override names per field, highest priority first.
var synonyms = [fieldCount][]string{
	fieldBackground:          {"background"},
	fieldNodeFill:            {"nodeBkg", "mainBkg", "primaryColor"},
	fieldNodeBorder:          {"nodeBorder", "primaryBorderColor"},
	fieldNodeText:            {"nodeTextColor", "primaryTextColor", "textColor"},
	fieldLine:                {"lineColor", "defaultLinkColor"},
	fieldClusterFill:         {"clusterBkg", "secondaryColor"},
	fieldClusterBorder:       {"clusterBorder"},
	fieldEdgeLabelBackground: {"edgeLabelBackground"},
	fieldTitleColor:          {"titleColor"},
	fieldFontFamily:          {"fontFamily"},
	fieldFontSize:            {"fontSize"},
}

type synonymRank struct {
	field field
	rank  int
}

var synonymIndex = func() map[string]synonymRank {
	idx := make(map[string]synonymRank)
	for f, names := range synonyms {
		for rank, name := range names {
			idx[strings.ToLower(name)] = synonymRank{field: field(f), rank: rank}
		}
	}
	return idx
}()

// VariableNames returns every override name the resolver understands, sorted.
func VariableNames() []string {
	var names []string
	for _, group := range synonyms {
		names = append(names, group...)
	}
	sort.Strings(names)
	return names
}

// overrides holds folded, non-blank override values.
type overrides struct {
	values [fieldCount]string
	set    [fieldCount]bool
}

func (o *overrides) get(f field) (string, bool) {
	return o.values[f], o.set[f]
}

// foldOverrides maps raw override names onto fields. For each field the
// highest-priority non-blank synonym wins. Unknown names are returned sorted.
func foldOverrides(raw map[string]string) (overrides, []string) {
	var o overrides
	var ranks [fieldCount]int
	var ignored []string
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := strings.TrimSpace(raw[name])
		if value == "" {
			continue
		}
		sr, ok := synonymIndex[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			ignored = append(ignored, name)
			continue
		}
		if o.set[sr.field] && ranks[sr.field] <= sr.rank {
			continue
		}
		o.values[sr.field] = value
		o.set[sr.field] = true
		ranks[sr.field] = sr.rank
	}
	return o, ignored
}

// Resolver merges base defaults, a preset, and caller overrides into a Theme.
// It is safe for concurrent use.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver backed by reg. A nil reg means built-ins only.
func NewResolver(reg *Registry) *Resolver {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Resolver{registry: reg}
}

// Registry returns the preset registry the resolver reads from.
func (r *Resolver) Registry() *Registry {
	return r.registry
}

var defaultResolver = NewResolver(nil)

// Resolve resolves req against the built-in presets.
func Resolve(req schema.ThemeRequest) Theme {
	return defaultResolver.Resolve(req)
}

// Resolve produces a complete Theme for req.
//
// Precedence per field: override > preset > computed > base. The node text
// color is computed from the effective node fill unless the text family is
// overridden, or the fill is not overridden and the preset names a text color.
func (r *Resolver) Resolve(req schema.ThemeRequest) Theme {
	preset, _ := r.registry.Lookup(req.PresetID)
	ov, ignored := foldOverrides(req.Overrides)

	t := Theme{
		PresetID:   preset.ID,
		Background: firstNonBlank(preset.Background, baseBackground),
		NodeFill:   firstNonBlank(preset.NodeFill, baseNodeFill),
		NodeBorder: firstNonBlank(preset.NodeBorder, baseNodeBorder),
		Line:       firstNonBlank(preset.Line, baseLine),
		FontFamily: baseFontFamily,
		FontSize:   baseFontSize,
		Ignored:    ignored,
	}

	apply := func(f field, dst *string) {
		if v, ok := ov.get(f); ok {
			*dst = v
		}
	}
	apply(fieldBackground, &t.Background)
	apply(fieldNodeFill, &t.NodeFill)
	apply(fieldNodeBorder, &t.NodeBorder)
	apply(fieldLine, &t.Line)
	apply(fieldFontFamily, &t.FontFamily)
	if v, ok := ov.get(fieldFontSize); ok {
		t.FontSize = normalizeFontSize(v)
	}

	_, fillOverridden := ov.get(fieldNodeFill)
	switch text, ok := ov.get(fieldNodeText); {
	case ok:
		t.NodeText = text
	case !fillOverridden && strings.TrimSpace(preset.Text) != "":
		t.NodeText = preset.Text
	default:
		t.NodeText = PickReadableTextColor(t.NodeFill)
	}

	t.ClusterFill = t.Background
	t.ClusterBorder = t.NodeBorder
	t.EdgeLabelBackground = t.Background
	t.TitleColor = PickReadableTextColor(t.Background)
	apply(fieldClusterFill, &t.ClusterFill)
	apply(fieldClusterBorder, &t.ClusterBorder)
	apply(fieldEdgeLabelBackground, &t.EdgeLabelBackground)
	apply(fieldTitleColor, &t.TitleColor)

	return t
}

// normalizeFontSize appends "px" to bare numbers.
func normalizeFontSize(v string) string {
	if v == "" {
		return baseFontSize
	}
	for _, c := range v {
		if (c < '0' || c > '9') && c != '.' {
			return v
		}
	}
	return v + "px"
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
