package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/diagen/internal/diagram"
	"github.com/rendis/diagen/internal/logging"
	"github.com/rendis/diagen/internal/prompt"
	"github.com/rendis/diagen/internal/theme"
	"github.com/rendis/diagen/pkg/schema"
)

// handleExtract splits a model response into diagram specs.
func (s *DiagenServer) handleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	response, err := req.RequireString("response")
	if err != nil {
		return mcp.NewToolResultError("response is required"), nil
	}

	text, envErr := s.envelope.Completion(ctx, response)
	if envErr != nil {
		return errorResult(envErr), nil
	}
	res := s.extractor.Extract(ctx, text)

	return marshalResult(map[string]any{
		"diagrams":      nonNilSpecs(res.Specs),
		"count":         len(res.Specs),
		"protocol_miss": res.ProtocolMiss,
	})
}

// handleRender renders diagrams from a response or an explicit list.
func (s *DiagenServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format := strings.ToLower(req.GetString("format", diagram.FormatSVG))
	coord, ok := s.coordinators[format]
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("format must be one of %s", strings.Join(diagram.Formats(), ", "))), nil
	}

	specs, specErr := s.diagramsFromRequest(ctx, req)
	if specErr != nil {
		return errorResult(specErr), nil
	}

	overrides, ovErr := stringOverrides(mcp.ParseStringMap(req, "overrides", nil))
	if ovErr != nil {
		return errorResult(ovErr), nil
	}
	themeReq := schema.ThemeRequest{
		PresetID:  req.GetString("preset", ""),
		Overrides: overrides,
	}
	parallelism := req.GetInt("parallelism", s.parallelism)

	results := coord.RenderBatch(ctx, specs, themeReq, parallelism)
	s.logSummary(ctx, "render", results)
	return marshalResult(batchResponse(results))
}

// handleValidate syntax-checks diagrams from a response or an explicit list.
func (s *DiagenServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	specs, specErr := s.diagramsFromRequest(ctx, req)
	if specErr != nil {
		return errorResult(specErr), nil
	}

	results := s.coordinators[diagram.FormatSVG].ValidateBatch(ctx, specs, s.parallelism)
	s.logSummary(ctx, "validate", results)
	return marshalResult(batchResponse(results))
}

// presetView is one entry of the themes listing.
type presetView struct {
	theme.Preset
	NodeText         string  `json:"node_text"`
	TextContrast     float64 `json:"text_contrast"`
	TitleColor       string  `json:"title_color"`
	LineContrast     float64 `json:"line_contrast"`
}

// handleThemes lists every preset with its resolved text colors.
func (s *DiagenServer) handleThemes(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resolver := theme.NewResolver(s.registry)
	presets := s.registry.Presets()
	views := make([]presetView, 0, len(presets))
	for _, p := range presets {
		th := resolver.Resolve(schema.ThemeRequest{PresetID: p.ID})
		views = append(views, presetView{
			Preset:           p,
			NodeText:         th.NodeText,
			TextContrast:     round2(theme.ContrastRatio(th.NodeText, th.NodeFill)),
			TitleColor:       th.TitleColor,
			LineContrast:     round2(theme.ContrastRatio(th.Line, th.Background)),
		})
	}
	return marshalResult(map[string]any{
		"default": theme.DefaultPresetID,
		"presets": views,
	})
}

// handlePrompt builds the model instruction for an article.
func (s *DiagenServer) handlePrompt(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	article, err := req.RequireString("article")
	if err != nil {
		return mcp.NewToolResultError("article is required"), nil
	}

	p, buildErr := prompt.Build(prompt.Request{
		Article:           article,
		MaxDiagrams:       req.GetInt("max_diagrams", 0),
		ThemeInstructions: req.GetString("theme_instructions", ""),
	})
	if buildErr != nil {
		return errorResult(buildErr), nil
	}
	return marshalResult(p)
}

// --- Internal helpers ---

// diagramsFromRequest returns the explicit diagrams argument when present,
// otherwise the diagrams extracted from the response argument. No diagrams
// at all is an EMPTY_RESPONSE error.
func (s *DiagenServer) diagramsFromRequest(ctx context.Context, req mcp.CallToolRequest) ([]schema.DiagramSpec, error) {
	args := req.GetArguments()
	if raw, ok := args["diagrams"]; ok && raw != nil {
		specs, err := decodeSpecs(raw)
		if err != nil {
			return nil, err
		}
		if len(specs) == 0 {
			return nil, schema.NewError(schema.ErrCodeEmptyResponse, "diagrams list is empty")
		}
		return specs, nil
	}

	response := req.GetString("response", "")
	if strings.TrimSpace(response) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "one of response or diagrams is required")
	}
	text, err := s.envelope.Completion(ctx, response)
	if err != nil {
		return nil, err
	}
	res := s.extractor.Extract(ctx, text)
	if len(res.Specs) == 0 {
		return nil, schema.NewError(schema.ErrCodeEmptyResponse, "response contains no diagrams").
			WithDetails(map[string]any{"protocol_miss": res.ProtocolMiss})
	}
	return res.Specs, nil
}

// decodeSpecs converts the loosely typed diagrams argument into specs.
// A diagram without a title gets the extractor's fallback title.
func decodeSpecs(raw any) ([]schema.DiagramSpec, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid diagrams: %v", err).WithCause(err)
	}
	var specs []schema.DiagramSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid diagrams: %v", err).WithCause(err)
	}
	for i := range specs {
		if strings.TrimSpace(specs[i].Title) == "" {
			specs[i].Title = fmt.Sprintf("Diagram %d", i+1)
		}
	}
	return specs, nil
}

// stringOverrides keeps override values that are strings. Numbers are
// formatted so font sizes may be passed bare.
func stringOverrides(raw map[string]any) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case float64:
			out[k] = fmt.Sprintf("%g", val)
		case nil:
		default:
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "override %q must be a string", k).
				WithDetails(map[string]any{"key": k})
		}
	}
	return out, nil
}

type batchSummary struct {
	Results []schema.RenderResult `json:"results"`
	OK      int                   `json:"ok"`
	Failed  int                   `json:"failed"`
}

func batchResponse(results []schema.RenderResult) batchSummary {
	sum := batchSummary{Results: results}
	for _, r := range results {
		if r.OK {
			sum.OK++
		} else {
			sum.Failed++
		}
	}
	return sum
}

func (s *DiagenServer) logSummary(ctx context.Context, op string, results []schema.RenderResult) {
	sum := batchResponse(results)
	logging.LogWith(ctx, s.logger).Info("tool call finished",
		slog.String("tool", op),
		slog.Int("ok", sum.OK),
		slog.Int("failed", sum.Failed),
	)
}

func nonNilSpecs(specs []schema.DiagramSpec) []schema.DiagramSpec {
	if specs == nil {
		return []schema.DiagramSpec{}
	}
	return specs
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// errorResult reports err as a tool error. Coded errors keep their code.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
