package diagram

import (
	"context"
	"strings"

	"github.com/rendis/diagen/internal/theme"
	"github.com/rendis/diagen/pkg/schema"
)

// SVGRenderer parses Mermaid flowcharts and renders them to SVG through
// graphviz. It holds no state; the theme arrives with each call.
type SVGRenderer struct{}

// NewSVGRenderer creates an SVGRenderer.
func NewSVGRenderer() *SVGRenderer {
	return &SVGRenderer{}
}

// Validate parse-checks source without laying it out.
func (r *SVGRenderer) Validate(ctx context.Context, source string) error {
	if err := ctx.Err(); err != nil {
		return schema.NewError(schema.ErrCodeCancelled, "validation cancelled").WithCause(err)
	}
	_, err := ParseMermaid(source)
	return err
}

// Render parses source and returns SVG markup styled with th.
func (r *SVGRenderer) Render(ctx context.Context, source string, th theme.Theme) (string, error) {
	model, err := ParseMermaid(source)
	if err != nil {
		return "", err
	}
	svg, err := RenderSVG(ctx, model, th)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", schema.NewError(schema.ErrCodeCancelled, "render cancelled").WithCause(ctxErr)
		}
		return "", schema.NewErrorf(schema.ErrCodeRender, "layout failed: %v", err).WithCause(err)
	}
	return string(svg), nil
}

// Renderer is implemented by every output format.
type Renderer interface {
	Render(ctx context.Context, source string, th theme.Theme) (string, error)
	Validate(ctx context.Context, source string) error
}

// Output formats accepted by ForFormat.
const (
	FormatSVG     = "svg"
	FormatASCII   = "ascii"
	FormatMermaid = "mermaid"
)

// Formats lists the accepted output formats.
func Formats() []string {
	return []string{FormatSVG, FormatASCII, FormatMermaid}
}

// ForFormat returns the renderer for format. binDir is where the ascii
// renderer looks for the mermaid-ascii binary; empty means built-in only.
func ForFormat(format, binDir string) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatSVG:
		return NewSVGRenderer(), nil
	case FormatASCII:
		return &ASCIIRenderer{BinDir: binDir}, nil
	case FormatMermaid:
		return &MermaidRenderer{}, nil
	}
	return nil, schema.NewErrorf(schema.ErrCodeValidation, "unknown format %q", format).
		WithDetails(map[string]any{"formats": Formats()})
}

// ASCIIRenderer renders box-drawing text. Themes do not apply to text output.
type ASCIIRenderer struct {
	BinDir string
}

// Validate parse-checks source.
func (r *ASCIIRenderer) Validate(ctx context.Context, source string) error {
	return NewSVGRenderer().Validate(ctx, source)
}

// Render parses source and draws it, through mermaid-ascii when available.
func (r *ASCIIRenderer) Render(ctx context.Context, source string, _ theme.Theme) (string, error) {
	model, err := ParseMermaid(source)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", schema.NewError(schema.ErrCodeCancelled, "render cancelled").WithCause(err)
	}
	return RenderASCIIAuto(ctx, model, r.BinDir), nil
}

// MermaidRenderer re-emits the parsed flowchart as canonical Mermaid carrying
// the theme in an init directive.
type MermaidRenderer struct{}

// Validate parse-checks source.
func (r *MermaidRenderer) Validate(ctx context.Context, source string) error {
	return NewSVGRenderer().Validate(ctx, source)
}

// Render parses source and prints it back with th applied.
func (r *MermaidRenderer) Render(ctx context.Context, source string, th theme.Theme) (string, error) {
	model, err := ParseMermaid(source)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", schema.NewError(schema.ErrCodeCancelled, "render cancelled").WithCause(err)
	}
	return ThemedMermaid(RenderMermaid(model), th), nil
}
