// Package validation checks user-supplied preset files against an embedded
// JSON Schema before they reach the theme registry.
package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/diagen/internal/theme"
	"github.com/rendis/diagen/pkg/schema"
)

const presetSchemaURL = "https://diagen.dev/schemas/presets.json"

// presetSchemaJSON is the JSON Schema for preset files.
const presetSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://diagen.dev/schemas/presets.json",
  "type": "object",
  "required": ["presets"],
  "properties": {
    "presets": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/preset" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "color": {
      "type": "string",
      "pattern": "^#([0-9a-fA-F]{3}|[0-9a-fA-F]{6})$"
    },
    "preset": {
      "type": "object",
      "required": ["id", "background", "node_fill", "node_border", "line"],
      "properties": {
        "id": {
          "type": "string",
          "pattern": "^[A-Za-z0-9][A-Za-z0-9_-]*$",
          "maxLength": 64
        },
        "label": { "type": "string", "maxLength": 80 },
        "description": { "type": "string", "maxLength": 200 },
        "background": { "$ref": "#/$defs/color" },
        "node_fill": { "$ref": "#/$defs/color" },
        "node_border": { "$ref": "#/$defs/color" },
        "line": { "$ref": "#/$defs/color" },
        "text": { "$ref": "#/$defs/color" }
      },
      "additionalProperties": false
    }
  }
}`

// PresetValidator validates preset files. It is safe for concurrent use.
type PresetValidator struct {
	schema *jsonschema.Schema
}

// NewPresetValidator compiles the embedded preset schema.
func NewPresetValidator() (*PresetValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(presetSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("parse preset schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(presetSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add preset schema resource: %w", err)
	}
	compiled, err := c.Compile(presetSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile preset schema: %w", err)
	}
	return &PresetValidator{schema: compiled}, nil
}

type presetFile struct {
	Presets []theme.Preset `json:"presets"`
}

// ValidatePresets checks data against the preset schema and returns the
// presets it declares. IDs are compared case-insensitively for duplicates.
// A preset without a label is labelled with its ID.
func (v *PresetValidator) ValidatePresets(data []byte) ([]theme.Preset, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "preset file is empty")
	}

	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(string(data)))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "preset file is not valid JSON: %s", err.Error()).
			WithCause(err)
	}
	if err := v.schema.Validate(inst); err != nil {
		return nil, toDiagenError(err)
	}

	var file presetFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode preset file: %s", err.Error()).
			WithCause(err)
	}

	seen := make(map[string]int, len(file.Presets))
	for i := range file.Presets {
		p := &file.Presets[i]
		key := strings.ToLower(p.ID)
		if prev, dup := seen[key]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate preset id %q", p.ID).
				WithDetails(map[string]any{"id": p.ID, "first": prev, "second": i})
		}
		seen[key] = i
		if strings.TrimSpace(p.Label) == "" {
			p.Label = p.ID
		}
	}
	return file.Presets, nil
}

// LoadPresetFile reads and validates the preset file at path.
func (v *PresetValidator) LoadPresetFile(path string) ([]theme.Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "read preset file: %s", err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"path": path})
	}
	presets, err := v.ValidatePresets(data)
	if err != nil {
		if de, ok := err.(*schema.DiagenError); ok {
			if de.Details == nil {
				de.Details = map[string]any{}
			}
			de.Details["path"] = path
		}
		return nil, err
	}
	return presets, nil
}

// toDiagenError converts a jsonschema.ValidationError into a DiagenError
// listing every leaf violation.
func toDiagenError(err error) *schema.DiagenError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	msg := fmt.Sprintf("preset file has %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and returns leaf messages
// prefixed with their instance location.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
