// Package prompt builds the instruction sent to the language model so its
// answer follows the diagram delimiter protocol.
package prompt

import (
	"fmt"
	"strings"

	"github.com/rendis/diagen/internal/extract"
	"github.com/rendis/diagen/pkg/schema"
)

// DefaultMaxDiagrams caps the diagrams requested when the caller sets none.
const DefaultMaxDiagrams = 3

// MaxDiagramsLimit is the largest diagram count a caller may request.
const MaxDiagramsLimit = 10

// systemPrompt states the output protocol. The %s placeholders take two
// example delimiter lines.
const systemPrompt = `You are a technical illustrator. You read an article and draw the diagrams that best explain it, written in Mermaid flowchart syntax.

Output format (mandatory):
- Start every diagram with a delimiter line of the form
  %s
  followed by the diagram source on the next lines.
- Separate diagrams with one blank line, for example:

%s
flowchart TD
    A[Request] --> B[Validate]

%s
flowchart LR
    C[Queue] --> D[Worker]

- Titles are short and human readable and never contain "---".
- Output nothing but delimiter lines and diagram source. No prose, no explanations, no Markdown code fences.

Diagram rules:
- Use only "flowchart" or "graph" diagrams with a direction (TD, LR, BT or RL).
- Put node labels in square brackets, e.g. A[Load data]. Keep labels short.
- Do not use parentheses inside labels.
- Do not add %%%%{init}%%%% directives, classDef, style or linkStyle lines; styling is applied after rendering.`

// Request describes what to ask the model for.
type Request struct {
	Article string
	// MaxDiagrams caps how many diagrams the model may produce. Zero means
	// DefaultMaxDiagrams.
	MaxDiagrams int
	// ThemeInstructions is free text from the caller about visual intent.
	// It is passed through to the model verbatim.
	ThemeInstructions string
}

// Prompt is a system and user message pair.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Build renders the system and user messages for req.
func Build(req Request) (Prompt, error) {
	article := strings.TrimSpace(req.Article)
	if article == "" {
		return Prompt{}, schema.NewError(schema.ErrCodeValidation, "article text is required")
	}
	count := req.MaxDiagrams
	switch {
	case count == 0:
		count = DefaultMaxDiagrams
	case count < 0 || count > MaxDiagramsLimit:
		return Prompt{}, schema.NewErrorf(schema.ErrCodeValidation,
			"max diagrams must be between 1 and %d, got %d", MaxDiagramsLimit, req.MaxDiagrams).
			WithDetails(map[string]any{"max_diagrams": req.MaxDiagrams})
	}

	return Prompt{
		System: System(),
		User:   userMessage(article, count, strings.TrimSpace(req.ThemeInstructions)),
	}, nil
}

// System returns the protocol-enforcing system message.
func System() string {
	return fmt.Sprintf(systemPrompt,
		extract.Delimiter("<title>"),
		extract.Delimiter("Request handling"),
		extract.Delimiter("Background processing"),
	)
}

func userMessage(article string, count int, themeInstructions string) string {
	var b strings.Builder
	if count == 1 {
		b.WriteString("Draw exactly one diagram for the article below.\n")
	} else {
		fmt.Fprintf(&b, "Draw between 1 and %d diagrams for the article below. Prefer fewer, clearer diagrams.\n", count)
	}
	if themeInstructions != "" {
		b.WriteString("\nVisual intent from the author (affects structure and emphasis only):\n")
		b.WriteString(themeInstructions)
		b.WriteString("\n")
	}
	b.WriteString("\nArticle:\n<<<\n")
	b.WriteString(article)
	b.WriteString("\n>>>\n")
	return b.String()
}
