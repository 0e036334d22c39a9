package diagram

// Direction is the flow direction of a flowchart or subgraph.
type Direction string

const (
	DirectionTB Direction = "TB"
	DirectionBT Direction = "BT"
	DirectionLR Direction = "LR"
	DirectionRL Direction = "RL"
)

// Shape is the outline drawn for a node.
type Shape string

const (
	ShapeRect             Shape = "rect"
	ShapeRound            Shape = "round"
	ShapeStadium          Shape = "stadium"
	ShapeSubroutine       Shape = "subroutine"
	ShapeCylinder         Shape = "cylinder"
	ShapeCircle           Shape = "circle"
	ShapeDoubleCircle     Shape = "double_circle"
	ShapeAsymmetric       Shape = "asymmetric"
	ShapeDiamond          Shape = "diamond"
	ShapeHexagon          Shape = "hexagon"
	ShapeParallelogram    Shape = "parallelogram"
	ShapeParallelogramAlt Shape = "parallelogram_alt"
	ShapeTrapezoid        Shape = "trapezoid"
	ShapeTrapezoidAlt     Shape = "trapezoid_alt"
)

// LineStyle is the stroke of an edge.
type LineStyle string

const (
	LineSolid     LineStyle = "solid"
	LineDotted    LineStyle = "dotted"
	LineThick     LineStyle = "thick"
	LineInvisible LineStyle = "invisible"
)

// ArrowHead is the marker drawn at one end of an edge.
type ArrowHead string

const (
	ArrowNone   ArrowHead = "none"
	ArrowNormal ArrowHead = "arrow"
	ArrowCircle ArrowHead = "circle"
	ArrowCross  ArrowHead = "cross"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title     string
	Direction Direction
	Nodes     []*Node
	Edges     []Edge
	SubGraphs []*SubGraph
	Classes   map[string]Style
	Levels    [][]string

	index map[string]*Node
}

// Node is a single vertex of the flowchart.
type Node struct {
	ID       string
	Label    string
	Shape    Shape
	Classes  []string
	Style    Style
	SubGraph string // innermost enclosing subgraph ID, "" at top level

	// implicit is set while the node has only been referenced, never defined
	// with a shape.
	implicit bool
}

// SubGraph groups nodes into a titled cluster. Subgraphs nest via Parent.
type SubGraph struct {
	ID        string
	Label     string
	Direction Direction
	Parent    string
	NodeIDs   []string
	Style     Style
}

// Edge connects two nodes.
type Edge struct {
	From  string
	To    string
	Label string
	Line  LineStyle
	Head  ArrowHead
	Tail  ArrowHead
}

// Style holds the CSS-like properties accepted by classDef and style.
type Style struct {
	Fill        string
	Stroke      string
	Color       string
	StrokeWidth string
	StrokeDash  string
}

// merge returns s with every non-empty field of o applied on top.
func (s Style) merge(o Style) Style {
	if o.Fill != "" {
		s.Fill = o.Fill
	}
	if o.Stroke != "" {
		s.Stroke = o.Stroke
	}
	if o.Color != "" {
		s.Color = o.Color
	}
	if o.StrokeWidth != "" {
		s.StrokeWidth = o.StrokeWidth
	}
	if o.StrokeDash != "" {
		s.StrokeDash = o.StrokeDash
	}
	return s
}

// IsZero reports whether no property is set.
func (s Style) IsZero() bool {
	return s == Style{}
}

// Node returns the node with the given ID, or nil.
func (m *DiagramModel) Node(id string) *Node {
	if m.index != nil {
		return m.index[id]
	}
	return findNode(m.Nodes, id)
}

// SubGraph returns the subgraph with the given ID, or nil.
func (m *DiagramModel) SubGraph(id string) *SubGraph {
	for _, sg := range m.SubGraphs {
		if sg.ID == id {
			return sg
		}
	}
	return nil
}

// EffectiveStyle resolves the style of n: the "default" class, then each
// class in order, then inline style statements.
func (m *DiagramModel) EffectiveStyle(n *Node) Style {
	var s Style
	if def, ok := m.Classes["default"]; ok {
		s = s.merge(def)
	}
	for _, cls := range n.Classes {
		s = s.merge(m.Classes[cls])
	}
	return s.merge(n.Style)
}
