// gen-diagrams renders a sample model response under every preset for the
// README gallery.
// Run: go run ./cmd/gen-diagrams
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rendis/diagen/internal/diagram"
	"github.com/rendis/diagen/internal/engine"
	"github.com/rendis/diagen/internal/extract"
	"github.com/rendis/diagen/internal/theme"
	"github.com/rendis/diagen/pkg/schema"
)

// sampleResponse is a typical model answer: a stray fence, a label with
// parentheses and two delimited diagrams.
const sampleResponse = "```\n" + `---DIAGRAM: Checkout flow---
flowchart LR
    cart([Cart]) --> check{Stock available?}
    check -->|yes| pay[Payment (card or wallet)]
    check -->|no| restock[Notify restock]
    pay ==> ship[[Ship order]]
    subgraph fulfil [Fulfilment]
        ship --> track[/Track parcel/]
    end

---DIAGRAM: Background jobs---
flowchart TD
    queue[(Job queue)] --> w1[Worker 1]
    queue --> w2[Worker 2]
    w1 & w2 --> store[(Results)]
` + "```\n"

func main() {
	ctx := context.Background()

	specs := extract.Diagrams(sampleResponse).Specs
	if len(specs) == 0 {
		fmt.Fprintln(os.Stderr, "sample response yielded no diagrams")
		os.Exit(1)
	}

	outDir := filepath.Join("docs", "assets")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", outDir, err)
		os.Exit(1)
	}

	coord := engine.NewCoordinator(diagram.NewSVGRenderer(), engine.CoordinatorConfig{})
	failed := 0
	for _, p := range theme.NewRegistry().Presets() {
		results := coord.RenderBatch(ctx, specs, schema.ThemeRequest{PresetID: p.ID}, 0)
		for i, r := range results {
			if !r.OK {
				fmt.Fprintf(os.Stderr, "%s / %s: [%s] %s\n", p.ID, r.Title, r.ErrorCode, r.ErrorMessage)
				failed++
				continue
			}
			path := filepath.Join(outDir, fmt.Sprintf("%s-%d.svg", p.ID, i+1))
			if err := os.WriteFile(path, []byte(r.Artifact), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
				os.Exit(1)
			}
			fmt.Printf("%-12s %-18s %s\n", p.ID, r.Title, path)
		}
	}

	// ASCII (mermaid-ascii with hand-rolled fallback)
	home, _ := os.UserHomeDir()
	ascii := &diagram.ASCIIRenderer{BinDir: filepath.Join(home, ".diagen", "bin")}
	for i, spec := range specs {
		text, err := ascii.Render(ctx, spec.Source, theme.Resolve(schema.ThemeRequest{}))
		if err != nil {
			fmt.Fprintf(os.Stderr, "ascii %s: %v\n", spec.Title, err)
			failed++
			continue
		}
		path := filepath.Join(outDir, fmt.Sprintf("ascii-%d.txt", i+1))
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("=== %s (ASCII) ===\n%s\n", spec.Title, text)
	}

	if failed > 0 {
		os.Exit(1)
	}
}
