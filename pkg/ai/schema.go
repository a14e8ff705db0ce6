package ai

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// schemaCache caches compiled JSON schemas by name.
var schemaCache sync.Map // map[string]*jsonschema.Schema

// decodeStructured strips an optional markdown code fence from raw, parses
// it as JSON, validates it against the named schema and decodes it into out.
// A syntactically valid response with missing or renamed fields fails here
// the same way malformed JSON does, so callers have a single fallback path.
func decodeStructured(raw, schemaName string, definition map[string]any, out any) error {
	cleaned := stripCodeFences(raw)

	var parsed any
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	compiled, err := compiledSchema(schemaName, definition)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", schemaName, err)
	}
	if err := compiled.Validate(parsed); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func compiledSchema(name string, definition map[string]any) (*jsonschema.Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*jsonschema.Schema), nil
	}

	// The compiler wants a parsed JSON value, not Go maps with typed
	// values. Round-trip through encoding/json to normalize.
	defBytes, err := json.Marshal(definition)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	var defParsed any
	if err := json.Unmarshal(defBytes, &defParsed); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}

	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, defParsed); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	schemaCache.Store(name, compiled)
	return compiled, nil
}

// stripCodeFences removes a leading ```json (or bare ```) line and a
// trailing ``` so fenced model output parses as plain JSON.
func stripCodeFences(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSpace(text)
	}
	if strings.HasSuffix(text, "```") {
		text = strings.TrimSuffix(text, "```")
		text = strings.TrimSpace(text)
	}
	return text
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// planDocumentSchema is shared by the reviser: a revision must be a full
// replacement plan document, not a diff.
var planDocumentSchema = map[string]any{
	"type": "object",
	"required": []string{
		"title", "objectives", "structure", "resources",
		"materials_needed", "differentiation",
	},
	"properties": map[string]any{
		"title": map[string]any{"type": "string"},
		"objectives": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"type": "string"},
		},
		"structure":        lessonStructureSchema,
		"resources":        map[string]any{"type": "array"},
		"materials_needed": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"differentiation":  map[string]any{"type": "string"},
	},
}

var lessonStructureSchema = map[string]any{
	"type":     "object",
	"required": []string{"introduction", "main_activity", "assessment", "timing"},
	"properties": map[string]any{
		"introduction":  map[string]any{"type": "string"},
		"main_activity": map[string]any{"type": "string"},
		"assessment":    map[string]any{"type": "string"},
		"timing":        map[string]any{"type": "string"},
	},
}
