package diagram

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rendis/diagen/internal/theme"
)

// initConfig is the payload of a Mermaid %%{init: ...}%% directive.
type initConfig struct {
	Theme          string            `json:"theme"`
	ThemeVariables map[string]string `json:"themeVariables"`
}

// InitDirective returns a Mermaid init directive carrying every variable of th
// on top of Mermaid's "base" theme.
func InitDirective(th theme.Theme) string {
	// Marshalling a string map cannot fail.
	payload, _ := json.Marshal(initConfig{Theme: "base", ThemeVariables: th.Variables()})
	return "%%{init: " + string(payload) + "}%%"
}

// ThemedMermaid prefixes source with the init directive for th so browser
// renderers draw the diagram with the same resolved theme.
func ThemedMermaid(source string, th theme.Theme) string {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}
	return InitDirective(th) + "\n" + source
}

// RenderMermaid re-emits a DiagramModel as canonical Mermaid flowchart source.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("flowchart " + string(model.Direction) + "\n")

	written := make(map[string]bool, len(model.Nodes))
	writeNode := func(indent string, n *Node) {
		b.WriteString(indent + mermaidNodeDef(n) + "\n")
		written[n.ID] = true
	}

	// Subgraphs, nested by parent.
	var writeSubGraph func(indent string, sg *SubGraph)
	writeSubGraph = func(indent string, sg *SubGraph) {
		b.WriteString(indent + "subgraph " + mermaidSafeID(sg.ID) + "[" + quoteLabel(sg.Label) + "]\n")
		if sg.Direction != "" {
			b.WriteString(indent + "    direction " + string(sg.Direction) + "\n")
		}
		for _, child := range model.SubGraphs {
			if child.Parent == sg.ID {
				writeSubGraph(indent+"    ", child)
			}
		}
		for _, id := range sg.NodeIDs {
			if n := model.Node(id); n != nil && n.SubGraph == sg.ID && !written[id] {
				writeNode(indent+"    ", n)
			}
		}
		b.WriteString(indent + "end\n")
	}
	for _, sg := range model.SubGraphs {
		if sg.Parent == "" {
			writeSubGraph("    ", sg)
		}
	}

	for _, n := range model.Nodes {
		if !written[n.ID] {
			writeNode("    ", n)
		}
	}

	for _, e := range model.Edges {
		b.WriteString("    " + mermaidSafeID(e.From) + " " + mermaidEdge(e) + " " + mermaidSafeID(e.To) + "\n")
	}

	for _, name := range sortedKeys(model.Classes) {
		b.WriteString("    classDef " + name + " " + styleString(model.Classes[name]) + "\n")
	}
	for _, n := range model.Nodes {
		for _, cls := range n.Classes {
			b.WriteString("    class " + mermaidSafeID(n.ID) + " " + cls + "\n")
		}
		if !n.Style.IsZero() {
			b.WriteString("    style " + mermaidSafeID(n.ID) + " " + styleString(n.Style) + "\n")
		}
	}

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the node's shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := quoteLabel(node.Label)

	switch node.Shape {
	case ShapeRound:
		return id + "(" + label + ")"
	case ShapeStadium:
		return id + "([" + label + "])"
	case ShapeSubroutine:
		return id + "[[" + label + "]]"
	case ShapeCylinder:
		return id + "[(" + label + ")]"
	case ShapeCircle:
		return id + "((" + label + "))"
	case ShapeDoubleCircle:
		return id + "(((" + label + ")))"
	case ShapeAsymmetric:
		return id + ">" + label + "]"
	case ShapeDiamond:
		return id + "{" + label + "}"
	case ShapeHexagon:
		return id + "{{" + label + "}}"
	case ShapeParallelogram:
		return id + "[/" + label + "/]"
	case ShapeParallelogramAlt:
		return id + `[\` + label + `\]`
	case ShapeTrapezoid:
		return id + "[/" + label + `\]`
	case ShapeTrapezoidAlt:
		return id + `[\` + label + "/]"
	default:
		return id + "[" + label + "]"
	}
}

func mermaidEdge(e Edge) string {
	var line string
	switch e.Line {
	case LineThick:
		line = "=="
	case LineDotted:
		line = "-.-"
	case LineInvisible:
		return "~~~"
	default:
		line = "--"
	}
	head := map[ArrowHead]string{ArrowNormal: ">", ArrowCircle: "o", ArrowCross: "x"}[e.Head]
	tail := map[ArrowHead]string{ArrowNormal: "<", ArrowCircle: "o", ArrowCross: "x"}[e.Tail]
	if head == "" && e.Line != LineDotted {
		line += line[len(line)-1:]
	}
	out := tail + line + head
	if e.Label != "" {
		out += "|" + strings.ReplaceAll(e.Label, "\n", "<br/>") + "|"
	}
	return out
}

func styleString(s Style) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+":"+v)
		}
	}
	add("fill", s.Fill)
	add("stroke", s.Stroke)
	add("color", s.Color)
	add("stroke-width", s.StrokeWidth)
	add("stroke-dasharray", s.StrokeDash)
	return strings.Join(parts, ",")
}

// quoteLabel wraps a label in quotes and escapes characters Mermaid treats
// as syntax.
func quoteLabel(s string) string {
	s = strings.NewReplacer(`"`, "#quot;", "\n", "<br/>").Replace(s)
	return `"` + s + `"`
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Replaces dots, dashes and spaces with underscores.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

func sortedKeys(m map[string]Style) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
