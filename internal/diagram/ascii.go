package diagram

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// shapeTag returns a short ASCII marker for shapes a plain box cannot show.
func shapeTag(shape Shape) string {
	switch shape {
	case ShapeDiamond:
		return "<?>"
	case ShapeCircle, ShapeDoubleCircle:
		return "(o)"
	case ShapeCylinder:
		return "[db]"
	case ShapeHexagon:
		return "<#>"
	case ShapeSubroutine:
		return "[[ ]]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses the model's level layout with box-drawing characters.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	// Title.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	// Render each level.
	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := model.Node(nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		// Draw connectors between levels (except after last level).
		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	// Subgraph membership.
	for _, sg := range model.SubGraphs {
		renderSubGraph(&b, model, sg)
	}

	// Labelled or non-default edges that the level layout cannot show.
	var notes []string
	for _, e := range model.Edges {
		if e.Label == "" && e.Line == LineSolid {
			continue
		}
		arrow := "─→"
		switch e.Line {
		case LineDotted:
			arrow = "┄→"
		case LineThick:
			arrow = "═→"
		case LineInvisible:
			continue
		}
		note := fmt.Sprintf("  %s %s %s", e.From, arrow, e.To)
		if e.Label != "" {
			note += fmt.Sprintf(" : %s", firstLine(e.Label))
		}
		notes = append(notes, note)
	}
	if len(notes) > 0 {
		b.WriteString("\n--- links ---\n")
		b.WriteString(strings.Join(notes, "\n"))
		b.WriteByte('\n')
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{firstLine(node.Label)}
	if tag := shapeTag(node.Shape); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := utf8.RuneCountInString(line); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-utf8.RuneCountInString(content))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ") // gap between boxes
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}

// renderSubGraph lists the members of a subgraph.
func renderSubGraph(b *strings.Builder, model *DiagramModel, sg *SubGraph) {
	b.WriteString(fmt.Sprintf("\n--- %s ---\n", firstLine(sg.Label)))
	for _, id := range sg.NodeIDs {
		label := id
		if n := model.Node(id); n != nil {
			label = firstLine(n.Label)
		}
		b.WriteString(fmt.Sprintf("    %s\n", label))
	}
}
