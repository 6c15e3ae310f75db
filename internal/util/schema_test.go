package util

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleArgs struct {
	A string `json:"a" jsonschema:"description=Field A"`
	B *int   `json:"b,omitempty"`
	C int    `json:"c,omitempty"`
}

func TestReflectSchema(t *testing.T) {
	schema := ReflectSchema[sampleArgs]()

	assert.Equal(t, "object", schema["type"])
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "b")
	assert.Contains(t, props, "c")
	assert.Equal(t, []any{"a"}, schema["required"])
	assert.NotContains(t, schema, "$schema")
}

func TestValidateParameters(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"x": map[string]any{"type": "integer"},
		},
		"required": []any{"x"},
	}

	assert.NoError(t, ValidateParameters(map[string]any{"x": 5}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"x": float64(5)}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "x", vErr.Field)

	err = ValidateParameters(map[string]any{"x": "nope"}, schema)
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "x", vErr.Field)
}

func TestValidateParameters_EmptySchemaAcceptsAnything(t *testing.T) {
	assert.NoError(t, ValidateParameters(map[string]any{"anything": true}, nil))
}

func TestValidate_RoundTripReflectedSchema(t *testing.T) {
	compiled, err := CompileSchema(ReflectSchema[sampleArgs]())
	require.NoError(t, err)

	assert.NoError(t, Validate(compiled, map[string]any{"a": "hi", "c": 3}))
	assert.Error(t, Validate(compiled, map[string]any{"c": 3}))
}
