package diagram

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/diagen/internal/theme"
)

// RenderSVG lays out a DiagramModel with graphviz and returns SVG markup
// styled from th. classDef and style directives override theme colors; a
// directive fill without a text color gets a readable one computed from it.
func RenderSVG(ctx context.Context, model *DiagramModel, th theme.Theme) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	fontName := primaryFont(th.FontFamily)
	fontSize := fontPoints(th.FontSize)

	graph.SetRankDir(rankDir(model.Direction))
	graph.SetBackgroundColor(gvColor(th.Background))
	setAttr(graph.SafeSet, "compound", "true", "false")
	setAttr(graph.SafeSet, "fontname", fontName, "")
	if model.Title != "" {
		graph.SetLabel(model.Title)
		setAttr(graph.SafeSet, "labelloc", "t", "")
		setAttr(graph.SafeSet, "fontcolor", gvColor(th.TitleColor), "")
		setAttr(graph.SafeSet, "fontsize", formatFloat(fontSize*1.25), "")
	}

	// Create subgraph clusters, parents first.
	clusters := make(map[string]*cgraph.Graph, len(model.SubGraphs))
	for _, sg := range model.SubGraphs {
		parent := graph
		if sg.Parent != "" {
			if p, ok := clusters[sg.Parent]; ok {
				parent = p
			}
		}
		sub, subErr := parent.CreateSubGraphByName("cluster_" + sg.ID)
		if subErr != nil {
			return nil, fmt.Errorf("diagram: create subgraph %s: %w", sg.ID, subErr)
		}
		applyClusterStyle(sub, sg, th, fontName, fontSize)
		clusters[sg.ID] = sub
	}

	// Create nodes inside their innermost cluster.
	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		owner := graph
		if c, ok := clusters[node.SubGraph]; ok {
			owner = c
		}
		gvNode, nErr := owner.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		gvNode.SetLabel(node.Label)
		applyNodeStyle(gvNode, node, model.EffectiveStyle(node), th)
		gvNode.SetFontName(fontName)
		gvNode.SetFontSize(fontSize)
		gvNodes[node.ID] = gvNode
	}

	// Create edges. Subgraph endpoints attach to the cluster's first node.
	for i, edge := range model.Edges {
		from, ltail := endpoint(model, gvNodes, edge.From)
		to, lhead := endpoint(model, gvNodes, edge.To)
		if from == nil || to == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName(fmt.Sprintf("e%d", i), from, to)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s->%s: %w", edge.From, edge.To, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		applyEdgeStyle(e, edge, th, fontName, fontSize)
		if ltail != "" {
			setAttr(e.SafeSet, "ltail", ltail, "")
		}
		if lhead != "" {
			setAttr(e.SafeSet, "lhead", lhead, "")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render SVG: %w", err)
	}
	return buf.Bytes(), nil
}

// endpoint resolves an edge end to a graphviz node. For a subgraph ID it
// returns the cluster's first node plus the cluster name for lhead/ltail.
func endpoint(model *DiagramModel, nodes map[string]*cgraph.Node, id string) (*cgraph.Node, string) {
	if n, ok := nodes[id]; ok {
		return n, ""
	}
	if sg := model.SubGraph(id); sg != nil {
		for _, member := range sg.NodeIDs {
			if n, ok := nodes[member]; ok {
				return n, "cluster_" + sg.ID
			}
		}
	}
	return nil, ""
}

// applyNodeStyle sets shape and colors from the node shape, its resolved
// directive style, and the theme.
func applyNodeStyle(gvNode *cgraph.Node, node *Node, style Style, th theme.Theme) {
	styles := []string{"filled"}
	switch node.Shape {
	case ShapeRound, ShapeStadium:
		gvNode.SetShape(cgraph.BoxShape)
		styles = append(styles, "rounded")
	case ShapeSubroutine:
		gvNode.SetShape(cgraph.BoxShape)
		setAttr(gvNode.SafeSet, "peripheries", "2", "1")
	case ShapeCylinder:
		gvNode.SetShape(cgraph.Shape("cylinder"))
	case ShapeCircle:
		gvNode.SetShape(cgraph.CircleShape)
	case ShapeDoubleCircle:
		gvNode.SetShape(cgraph.Shape("doublecircle"))
	case ShapeDiamond:
		gvNode.SetShape(cgraph.DiamondShape)
	case ShapeHexagon:
		gvNode.SetShape(cgraph.HexagonShape)
	case ShapeAsymmetric:
		gvNode.SetShape(cgraph.Shape("cds"))
	case ShapeParallelogram, ShapeParallelogramAlt:
		gvNode.SetShape(cgraph.Shape("parallelogram"))
	case ShapeTrapezoid:
		gvNode.SetShape(cgraph.Shape("trapezium"))
	case ShapeTrapezoidAlt:
		gvNode.SetShape(cgraph.Shape("invtrapezium"))
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}
	if style.StrokeDash != "" {
		styles = append(styles, "dashed")
	}
	gvNode.SetStyle(cgraph.NodeStyle(strings.Join(styles, ",")))

	fill := firstSet(style.Fill, th.NodeFill)
	gvNode.SetFillColor(gvColor(fill))
	gvNode.SetColor(gvColor(firstSet(style.Stroke, th.NodeBorder)))
	gvNode.SetFontColor(gvColor(textColor(style, th)))
	if w := strokeWidth(style.StrokeWidth); w != "" {
		setAttr(gvNode.SafeSet, "penwidth", w, "1")
	}
}

// textColor picks the label color for a node: an explicit color directive,
// then a contrast pick against a directive fill, then the theme text color.
func textColor(style Style, th theme.Theme) string {
	switch {
	case style.Color != "":
		return style.Color
	case style.Fill != "":
		return theme.PickReadableTextColor(style.Fill)
	default:
		return th.NodeText
	}
}

func applyClusterStyle(sub *cgraph.Graph, sg *SubGraph, th theme.Theme, fontName string, fontSize float64) {
	fill := firstSet(sg.Style.Fill, th.ClusterFill)
	title := th.TitleColor
	switch {
	case sg.Style.Color != "":
		title = sg.Style.Color
	case sg.Style.Fill != "":
		title = theme.PickReadableTextColor(sg.Style.Fill)
	}
	sub.SetLabel(sg.Label)
	styles := "filled,rounded"
	if sg.Style.StrokeDash != "" {
		styles += ",dashed"
	}
	setAttr(sub.SafeSet, "style", styles, "")
	setAttr(sub.SafeSet, "fillcolor", gvColor(fill), "")
	setAttr(sub.SafeSet, "color", gvColor(firstSet(sg.Style.Stroke, th.ClusterBorder)), "")
	setAttr(sub.SafeSet, "fontcolor", gvColor(title), "")
	setAttr(sub.SafeSet, "fontname", fontName, "")
	setAttr(sub.SafeSet, "fontsize", formatFloat(fontSize), "")
}

func applyEdgeStyle(e *cgraph.Edge, edge Edge, th theme.Theme, fontName string, fontSize float64) {
	setAttr(e.SafeSet, "color", gvColor(th.Line), "")
	setAttr(e.SafeSet, "fontcolor", gvColor(th.TitleColor), "")
	setAttr(e.SafeSet, "fontname", fontName, "")
	setAttr(e.SafeSet, "fontsize", formatFloat(fontSize*0.85), "")

	switch edge.Line {
	case LineDotted:
		setAttr(e.SafeSet, "style", "dashed", "")
	case LineThick:
		setAttr(e.SafeSet, "penwidth", "2.5", "1")
	case LineInvisible:
		setAttr(e.SafeSet, "style", "invis", "")
	}

	setAttr(e.SafeSet, "arrowhead", gvArrow(edge.Head), "normal")
	if edge.Tail != ArrowNone {
		setAttr(e.SafeSet, "arrowtail", gvArrow(edge.Tail), "normal")
		setAttr(e.SafeSet, "dir", "both", "forward")
	}
}

func gvArrow(a ArrowHead) string {
	switch a {
	case ArrowNormal:
		return "normal"
	case ArrowCircle:
		return "odot"
	case ArrowCross:
		return "tee"
	}
	return "none"
}

func rankDir(d Direction) cgraph.RankDir {
	switch d {
	case DirectionLR:
		return cgraph.LRRank
	case DirectionRL:
		return cgraph.RLRank
	case DirectionBT:
		return cgraph.BTRank
	}
	return cgraph.TBRank
}

// setAttr applies a graphviz attribute. Attribute writes only fail for
// invalid graph handles, which RenderSVG never holds.
func setAttr(set func(name, value, def string) error, name, value, def string) {
	_ = set(name, value, def)
}

// gvColor expands 3-digit hex colors, which graphviz does not accept.
func gvColor(c string) string {
	c = strings.TrimSpace(c)
	if len(c) == 4 && c[0] == '#' && theme.IsHexColor(c) {
		return "#" + strings.Repeat(c[1:2], 2) + strings.Repeat(c[2:3], 2) + strings.Repeat(c[3:4], 2)
	}
	return c
}

// primaryFont returns the first family in a CSS font-family list.
func primaryFont(family string) string {
	first, _, _ := strings.Cut(family, ",")
	return strings.Trim(strings.TrimSpace(first), `"'`)
}

// fontPoints converts a CSS font size to graphviz points.
func fontPoints(size string) float64 {
	const defaultPoints = 12
	size = strings.TrimSpace(size)
	scale := 0.75
	switch {
	case strings.HasSuffix(size, "px"):
		size = strings.TrimSuffix(size, "px")
	case strings.HasSuffix(size, "pt"):
		size, scale = strings.TrimSuffix(size, "pt"), 1
	case strings.HasSuffix(size, "em"), strings.HasSuffix(size, "rem"):
		size = strings.TrimSuffix(strings.TrimSuffix(size, "em"), "r")
		scale = 12
	}
	v, err := strconv.ParseFloat(size, 64)
	if err != nil || v <= 0 {
		return defaultPoints
	}
	return v * scale
}

func strokeWidth(w string) string {
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(w), "px"), 64)
	if err != nil || v <= 0 {
		return ""
	}
	return formatFloat(v)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
