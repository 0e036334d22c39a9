// Package extract splits a model response into diagram specs using the
// ---DIAGRAM: <title>--- delimiter protocol.
package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rendis/diagen/internal/sanitize"
	"github.com/rendis/diagen/pkg/schema"
)

// FallbackTitle names the single spec produced when a response carries no
// delimiter at all.
const FallbackTitle = "Diagram"

var delimiter = regexp.MustCompile(`(?m)^[ \t]*---DIAGRAM:[ \t]*(.*?)[ \t]*---[ \t]*$`)

// Delimiter returns the line that opens a diagram titled title. Any "---"
// inside the title is collapsed so the line still parses.
func Delimiter(title string) string {
	for strings.Contains(title, "---") {
		title = strings.ReplaceAll(title, "---", "-")
	}
	return "---DIAGRAM: " + strings.TrimSpace(title) + "---"
}

// Result is the outcome of an extraction.
type Result struct {
	Specs []schema.DiagramSpec
	// ProtocolMiss is set when no delimiter was found and the whole response
	// became one spec.
	ProtocolMiss bool
}

// Extractor splits responses and reports protocol misses to its logger.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor. A nil logger uses slog.Default.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Diagrams extracts with the default logger.
func Diagrams(raw string) Result {
	return New(nil).Extract(context.Background(), raw)
}

// Extract splits raw into diagram specs in response order. It never fails:
// an empty response yields no specs and a response without delimiters yields
// a single spec titled FallbackTitle.
func (e *Extractor) Extract(ctx context.Context, raw string) Result {
	cleaned := sanitize.StripOuterFence(sanitize.NormalizeLineEndings(strings.TrimSpace(raw)))
	if cleaned == "" {
		return Result{}
	}

	matches := delimiter.FindAllStringSubmatchIndex(cleaned, -1)
	if len(matches) == 0 {
		return e.fallback(ctx, cleaned)
	}

	var specs []schema.DiagramSpec
	dropped := 0
	for i, m := range matches {
		title := strings.TrimSpace(cleaned[m[2]:m[3]])
		end := len(cleaned)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		body := strings.TrimSpace(cleaned[m[1]:end])
		if title == "" || body == "" {
			dropped++
			continue
		}
		source := cleanBody(body)
		if source == "" {
			dropped++
			continue
		}
		specs = append(specs, schema.DiagramSpec{Title: title, Source: source})
	}

	e.logger.DebugContext(ctx, "diagrams extracted",
		slog.Int("delimiters", len(matches)),
		slog.Int("specs", len(specs)),
		slog.Int("dropped", dropped),
	)
	return Result{Specs: specs}
}

func (e *Extractor) fallback(ctx context.Context, cleaned string) Result {
	source := cleanBody(cleaned)
	if source == "" {
		return Result{ProtocolMiss: true}
	}
	e.logger.WarnContext(ctx, "response has no diagram delimiters, using whole response",
		slog.String("code", schema.ErrCodeProtocolMiss),
		slog.Int("length", len(cleaned)),
	)
	return Result{
		Specs:        []schema.DiagramSpec{{Title: FallbackTitle, Source: source}},
		ProtocolMiss: true,
	}
}

// cleanBody sanitizes one body. Fence lines left at the end of a body by
// per-block fencing belong to the block boundary and are dropped.
func cleanBody(body string) string {
	return trimTrailingFences(sanitize.Sanitize(trimTrailingFences(body)))
}

func trimTrailingFences(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	n := len(lines)
	for n > 0 {
		line := strings.TrimSpace(lines[n-1])
		if line != "" && !sanitize.IsFenceLine(line) {
			break
		}
		n--
	}
	return strings.Join(lines[:n], "\n")
}
