package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RenderASCIIAuto tries to render using the mermaid-ascii CLI binary if available,
// falling back to the built-in RenderASCII renderer.
func RenderASCIIAuto(ctx context.Context, model *DiagramModel, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			result, err := RenderASCIIViaCLI(ctx, model, binPath)
			if err == nil {
				return result
			}
		}
	}
	return RenderASCII(model)
}

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, binPath string) (string, error) {
	mermaid := RenderMermaidForCLI(model)

	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(mermaid)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI generates simplified Mermaid syntax compatible with the
// mermaid-ascii CLI tool. It avoids node declarations with ["label"] syntax,
// which mermaid-ascii cannot parse, and uses label-derived node IDs instead.
// Subgraphs are flattened since mermaid-ascii ignores subgraph blocks; edges
// that target a subgraph attach to its first member.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	direction := "TD"
	if model.Direction == DirectionLR || model.Direction == DirectionRL {
		direction = "LR"
	}
	b.WriteString("graph " + direction + "\n")

	displayID := make(map[string]string, len(model.Nodes))
	used := make(map[string]bool, len(model.Nodes))
	for _, node := range model.Nodes {
		id := cliNodeID(node)
		for base, n := id, 2; used[id]; n++ {
			id = fmt.Sprintf("%s-%d", base, n)
		}
		used[id] = true
		displayID[node.ID] = id
	}

	resolve := func(id string) string {
		if d, ok := displayID[id]; ok {
			return d
		}
		if sg := model.SubGraph(id); sg != nil && len(sg.NodeIDs) > 0 {
			if d, ok := displayID[sg.NodeIDs[0]]; ok {
				return d
			}
		}
		return mermaidSafeID(id)
	}

	connected := make(map[string]bool, len(model.Nodes))
	for _, edge := range model.Edges {
		if edge.Line == LineInvisible {
			continue
		}
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", firstLine(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n", resolve(edge.From), label, resolve(edge.To)))
		connected[edge.From], connected[edge.To] = true, true
	}

	// Isolated nodes still need a line to appear.
	for _, node := range model.Nodes {
		if !connected[node.ID] {
			b.WriteString("    " + displayID[node.ID] + "\n")
		}
	}

	return b.String()
}

// cliNodeID builds a display ID for the mermaid-ascii CLI from the node label.
func cliNodeID(node *Node) string {
	id := strings.TrimSpace(firstLine(node.Label))
	if id == "" {
		id = node.ID
	}
	id = strings.Map(func(r rune) rune {
		switch r {
		case '[', ']', '(', ')', '{', '}', '|', '"', '<', '>', ';', '&', ':':
			return -1
		case ' ', '\t':
			return '-'
		}
		return r
	}, id)
	if id == "" {
		return mermaidSafeID(node.ID)
	}
	return id
}
