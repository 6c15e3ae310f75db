package util

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ReflectSchema derives a JSON schema map for T from its struct tags (json,
// jsonschema). The root type is inlined so the result can be handed to
// providers as a tool parameter schema.
func ReflectSchema[T any]() map[string]any {
	var zero T
	r := &jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	s := extractRoot(r.Reflect(&zero))

	raw, err := json.Marshal(s)
	if err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// extractRoot resolves the root schema, following $ref to $defs if needed.
func extractRoot(s *jsonschema.Schema) *jsonschema.Schema {
	if s.Ref != "" && s.Definitions != nil {
		name := strings.TrimPrefix(s.Ref, "#/$defs/")
		if def, ok := s.Definitions[name]; ok {
			return def
		}
	}
	return s
}

// CompileSchema compiles a schema map for repeated validation. A nil or empty
// schema compiles to nil, which accepts any document.
func CompileSchema(schema map[string]any) (*gojsonschema.Schema, error) {
	if len(schema) == 0 {
		return nil, nil
	}
	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
}

// Validate checks a Go value against a compiled schema. The first violation
// is reported as a *ValidationError.
func Validate(schema *gojsonschema.Schema, value any) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(value))
	if err != nil {
		return &ValidationError{Field: "(root)", Message: err.Error()}
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	field := first.Field()
	if first.Type() == "required" {
		if p, ok := first.Details()["property"].(string); ok {
			field = p
		}
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}

	return &ValidationError{
		Field:   field,
		Value:   first.Value(),
		Message: strings.Join(msgs, "; "),
	}
}

// ValidateParameters validates parameters against a schema map.
func ValidateParameters(params map[string]any, schema map[string]any) error {
	compiled, err := CompileSchema(schema)
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}
	if params == nil {
		params = map[string]any{}
	}
	return Validate(compiled, params)
}
