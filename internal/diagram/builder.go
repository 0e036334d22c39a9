package diagram

import "strings"

// builder accumulates parsed statements into a DiagramModel. It tracks the
// open subgraph stack so nodes land in their innermost cluster.
type builder struct {
	model *DiagramModel
	stack []*SubGraph
}

func newBuilder() *builder {
	return &builder{model: &DiagramModel{
		Direction: DirectionTB,
		Classes:   make(map[string]Style),
		index:     make(map[string]*Node),
	}}
}

// current returns the innermost open subgraph, or nil at top level.
func (b *builder) current() *SubGraph {
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

// reference returns the node with id, creating an implicit one if needed.
// A node joins the subgraph it is first mentioned in.
func (b *builder) reference(id string) *Node {
	if n, ok := b.model.index[id]; ok {
		return n
	}
	n := &Node{ID: id, Label: id, Shape: ShapeRect, implicit: true}
	b.model.index[id] = n
	b.model.Nodes = append(b.model.Nodes, n)
	b.adopt(n)
	return n
}

func (b *builder) adopt(n *Node) {
	sg := b.current()
	if sg == nil {
		return
	}
	n.SubGraph = sg.ID
	sg.NodeIDs = append(sg.NodeIDs, n.ID)
}

// define records an explicit shape and label for id.
func (b *builder) define(id string, shape Shape, label string) *Node {
	n := b.reference(id)
	n.Shape = shape
	n.Label = label
	n.implicit = false
	return n
}

// connect adds an edge from every node in from to every node in to.
func (b *builder) connect(from, to []string, proto Edge) {
	for _, f := range from {
		for _, t := range to {
			e := proto
			e.From, e.To = f, t
			b.model.Edges = append(b.model.Edges, e)
		}
	}
}

func (b *builder) openSubGraph(id, label string) {
	sg := &SubGraph{ID: id, Label: label}
	if parent := b.current(); parent != nil {
		sg.Parent = parent.ID
	}
	b.model.SubGraphs = append(b.model.SubGraphs, sg)
	b.stack = append(b.stack, sg)
}

func (b *builder) closeSubGraph() bool {
	if len(b.stack) == 0 {
		return false
	}
	b.stack = b.stack[:len(b.stack)-1]
	return true
}

func (b *builder) setDirection(d Direction) {
	if sg := b.current(); sg != nil {
		sg.Direction = d
		return
	}
	b.model.Direction = d
}

func (b *builder) defineClass(names []string, s Style) {
	for _, name := range names {
		b.model.Classes[name] = b.model.Classes[name].merge(s)
	}
}

func (b *builder) assignClass(ids []string, class string) {
	for _, id := range ids {
		n := b.reference(id)
		n.Classes = append(n.Classes, class)
	}
}

// applyStyle attaches an inline style to a subgraph or node.
func (b *builder) applyStyle(id string, s Style) {
	if sg := b.model.SubGraph(id); sg != nil {
		sg.Style = sg.Style.merge(s)
		return
	}
	n := b.reference(id)
	n.Style = n.Style.merge(s)
}

// finish drops implicit nodes that only stood in for subgraph endpoints and
// computes the layout levels.
func (b *builder) finish() *DiagramModel {
	m := b.model
	subgraphs := make(map[string]bool, len(m.SubGraphs))
	for _, sg := range m.SubGraphs {
		subgraphs[sg.ID] = true
	}
	kept := m.Nodes[:0]
	for _, n := range m.Nodes {
		if n.implicit && subgraphs[n.ID] && len(n.Classes) == 0 && n.Style.IsZero() {
			delete(m.index, n.ID)
			for _, sg := range m.SubGraphs {
				sg.NodeIDs = removeID(sg.NodeIDs, n.ID)
			}
			continue
		}
		kept = append(kept, n)
	}
	m.Nodes = kept
	m.Levels = buildLevels(m)
	return m
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// buildLevels layers nodes by longest path from a source. Nodes on a cycle
// that cannot be layered go into a final level in declaration order. Edges
// touching subgraphs are ignored.
func buildLevels(m *DiagramModel) [][]string {
	indeg := make(map[string]int, len(m.Nodes))
	out := make(map[string][]string, len(m.Nodes))
	for _, n := range m.Nodes {
		indeg[n.ID] = 0
	}
	for _, e := range m.Edges {
		if _, ok := indeg[e.From]; !ok {
			continue
		}
		if _, ok := indeg[e.To]; !ok || e.From == e.To {
			continue
		}
		out[e.From] = append(out[e.From], e.To)
		indeg[e.To]++
	}

	level := make(map[string]int, len(m.Nodes))
	var queue []string
	for _, n := range m.Nodes {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	placed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		placed++
		for _, next := range out[id] {
			if level[id]+1 > level[next] {
				level[next] = level[id] + 1
			}
			indeg[next]--
			if indeg[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	var levels [][]string
	var cyclic []string
	for _, n := range m.Nodes {
		if indeg[n.ID] > 0 {
			cyclic = append(cyclic, n.ID)
			continue
		}
		l := level[n.ID]
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], n.ID)
	}
	if placed < len(m.Nodes) && len(cyclic) > 0 {
		levels = append(levels, cyclic)
	}
	return levels
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// findNode looks up a node by ID in a node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
