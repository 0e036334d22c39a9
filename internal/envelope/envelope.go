// Package envelope pulls the completion text out of a provider JSON response
// using jq paths.
package envelope

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/rendis/diagen/pkg/schema"
)

// DefaultPaths are tried in order when no path is configured. They cover the
// Anthropic messages, OpenAI chat, Gemini and legacy completion shapes.
var DefaultPaths = []string{
	`[.content[]? | select(.type == "text" or .type == null) | .text | strings] | join("")`,
	`.choices[0].message.content`,
	`.candidates[0].content.parts | map(.text | strings) | join("")`,
	`.choices[0].text`,
	`.output_text`,
	`.completion`,
}

// Extractor evaluates compiled jq paths against envelopes. It is safe for
// concurrent use.
type Extractor struct {
	paths []string
	codes []*gojq.Code
}

// New compiles paths, or DefaultPaths when none are given. Blank paths are
// skipped.
func New(paths ...string) (*Extractor, error) {
	var kept []string
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		kept = DefaultPaths
	}

	e := &Extractor{paths: kept}
	for _, p := range kept {
		code, err := compile(p)
		if err != nil {
			return nil, err
		}
		e.codes = append(e.codes, code)
	}
	return e, nil
}

// Paths returns the jq paths in evaluation order.
func (e *Extractor) Paths() []string {
	return append([]string(nil), e.paths...)
}

// Completion returns the completion text carried by raw. Input that is not
// a JSON object is returned trimmed, as plain completion text. For objects
// the first path yielding a non-blank string wins.
func (e *Extractor) Completion(ctx context.Context, raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") {
		return trimmed, nil
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		// Braces without valid JSON are model text, not an envelope.
		return trimmed, nil
	}

	for _, code := range e.codes {
		text, err := first(ctx, code, doc)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", schema.NewError(schema.ErrCodeCancelled, "envelope extraction cancelled").WithCause(ctxErr)
			}
			continue
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}

	return "", schema.NewError(schema.ErrCodeEnvelope, "no completion text found in response envelope").
		WithDetails(map[string]any{"paths": e.Paths(), "keys": topKeys(doc)})
}

// first returns the first string output of code, or "" if it yields none.
func first(ctx context.Context, code *gojq.Code, doc map[string]any) (string, error) {
	iter := code.RunWithContext(ctx, doc)
	for {
		v, ok := iter.Next()
		if !ok {
			return "", nil
		}
		switch val := v.(type) {
		case error:
			return "", val
		case string:
			return val, nil
		}
	}
}

func compile(path string) (*gojq.Code, error) {
	query, err := gojq.Parse(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq parse error in %q: %s", path, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"path": path})
	}
	code, err := gojq.Compile(query,
		// No $ENV access from user-configured paths.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"jq compile error in %q: %s", path, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"path": path})
	}
	return code, nil
}

func topKeys(doc map[string]any) []string {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
