package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newToolContext(name string) *core.ToolContext {
	return core.NewToolContext(context.Background(), "run-1", core.ToolCall{ID: "fc-1", Name: name}, nil, logging.NoOpLogger{})
}

var sumSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"a": map[string]any{"type": "number"},
		"b": map[string]any{"type": "number"},
	},
	"required": []string{"a", "b"},
}

// -------------------- FunctionTool --------------------

func TestFunctionTool_Success(t *testing.T) {
	ft := NewFunctionTool("sum", "adds", sumSchema, func(tc *core.ToolContext, args map[string]any) (any, error) {
		return args["a"].(float64) + args["b"].(float64), nil
	})

	res, err := ft.Call(newToolContext("sum"), map[string]any{"a": 1.0, "b": 2.0})
	require.NoError(t, err)
	assert.Equal(t, 3.0, res)
}

func TestFunctionTool_ValidationError(t *testing.T) {
	called := false
	ft := NewFunctionTool("sum", "adds", sumSchema, func(tc *core.ToolContext, args map[string]any) (any, error) {
		called = true
		return nil, nil
	})

	_, err := ft.Call(newToolContext("sum"), map[string]any{"a": 1.0})
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, IsValidationError(err))

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, CodeValidation, te.Code)

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "b", ve.Field)
}

func TestFunctionTool_ExecutionError(t *testing.T) {
	boom := errors.New("boom")
	ft := NewFunctionTool("fail", "fails", nil, func(tc *core.ToolContext, args map[string]any) (any, error) {
		return nil, boom
	})

	_, err := ft.Call(newToolContext("fail"), nil)
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
	assert.ErrorIs(t, err, boom)

	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, CodeExecution, te.Code)
}

func TestFunctionTool_CustomToolErrorPassesThrough(t *testing.T) {
	ft := NewFunctionTool("custom", "", nil, func(tc *core.ToolContext, args map[string]any) (any, error) {
		return nil, NewToolError("custom", "rate limited", "RATE_LIMIT")
	})

	_, err := ft.Call(newToolContext("custom"), nil)
	var te *ToolError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "RATE_LIMIT", te.Code)
}

// -------------------- TypedTool --------------------

type calcArgs struct {
	A int    `json:"a" jsonschema:"description=Left operand"`
	B int    `json:"b" jsonschema:"description=Right operand"`
	Op string `json:"op,omitempty" jsonschema:"enum=add,enum=mul"`
}

func TestTypedTool(t *testing.T) {
	calc := NewTypedTool("calc", "integer arithmetic", func(tc *core.ToolContext, in calcArgs) (int, error) {
		if in.Op == "mul" {
			return in.A * in.B, nil
		}
		return in.A + in.B, nil
	})

	props, ok := calc.Parameters()["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "a")
	assert.Contains(t, props, "op")

	res, err := calc.Call(newToolContext("calc"), map[string]any{"a": 6.0, "b": 7.0, "op": "mul"})
	require.NoError(t, err)
	assert.Equal(t, 42, res)

	_, err = calc.Call(newToolContext("calc"), map[string]any{"a": "six", "b": 7.0})
	assert.True(t, IsValidationError(err))
}

// -------------------- StoreTool --------------------

func TestStoreTool(t *testing.T) {
	store := core.NewKeyValueStore()
	tc := core.NewToolContext(context.Background(), "run-1", core.ToolCall{Name: "run_store"}, store, nil)
	st := NewStoreTool()

	_, err := st.Call(tc, map[string]any{"operation": "set", "key": "foo", "value": "bar"})
	require.NoError(t, err)

	v, ok := core.Get(store, core.NewKey[string]("foo"))
	require.True(t, ok)
	assert.Equal(t, "bar", v)

	res, err := st.Call(tc, map[string]any{"operation": "get", "key": "foo"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"key": "foo", "exists": true, "value": "bar"}, res)

	res, err = st.Call(tc, map[string]any{"operation": "list"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"keys": []string{"foo"}}, res)

	res, err = st.Call(tc, map[string]any{"operation": "remove", "key": "foo"})
	require.NoError(t, err)
	assert.Equal(t, true, res.(map[string]any)["removed"])
	assert.Equal(t, 0, store.Len())

	_, err = st.Call(tc, map[string]any{"operation": "get"})
	assert.True(t, IsValidationError(err))
}

// -------------------- ToolError --------------------

func TestToolErrorFormatting(t *testing.T) {
	err := NewToolError("demo", "something failed", "E123")
	assert.Contains(t, err.Error(), "E123")
	assert.Contains(t, err.Error(), "demo")

	assert.Equal(t, "tool error in demo: x", (&ToolError{Tool: "demo", Message: "x"}).Error())
}
