package tool

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/xeipuuv/gojsonschema"
)

// FunctionTool exposes a Go function taking raw JSON arguments as a tool.
//
// Arguments are checked against the declared JSON schema before fn runs.
// Schema mismatches become *ToolError with CodeValidation; other errors from
// fn become CodeExecution unless fn already returned a *ToolError. The schema
// is compiled on first use and shared by concurrent calls.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(toolCtx *core.ToolContext, args map[string]any) (any, error)

	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
}

// NewFunctionTool builds a tool from a name, a description, a JSON schema for
// the arguments and the function to run. A nil schema accepts any object.
//
//	sum := NewFunctionTool("sum", "Adds a and b", map[string]any{
//	  "type":       "object",
//	  "properties": map[string]any{"a": map[string]any{"type": "number"}, "b": map[string]any{"type": "number"}},
//	  "required":   []string{"a", "b"},
//	}, func(_ *core.ToolContext, args map[string]any) (any, error) {
//	  return args["a"].(float64) + args["b"].(float64), nil
//	})
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(toolCtx *core.ToolContext, args map[string]any) (any, error),
) *FunctionTool {
	if parameters == nil {
		parameters = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return &FunctionTool{name: name, description: description, parameters: parameters, fn: fn}
}

// Name implements Tool.
func (t *FunctionTool) Name() string { return t.name }

// Description implements Tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters implements Tool.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call implements Tool.
func (t *FunctionTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	if args == nil {
		args = map[string]any{}
	}
	if err := t.checkArgs(args); err != nil {
		toolCtx.LogWarn("tool.function.invalid_args", "error", err)
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
			Details: err,
		}
	}

	start := time.Now()
	result, err := t.fn(toolCtx, args)
	if err != nil {
		return nil, t.asToolError(err)
	}
	toolCtx.LogDebug("tool.function.done", "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (t *FunctionTool) asToolError(err error) *ToolError {
	var te *ToolError
	if errors.As(err, &te) {
		return te
	}
	return &ToolError{Tool: t.name, Message: err.Error(), Code: CodeExecution, Details: err}
}

func (t *FunctionTool) checkArgs(args map[string]any) error {
	t.schemaOnce.Do(func() {
		t.schema, t.schemaErr = util.CompileSchema(t.parameters)
	})
	if t.schemaErr != nil {
		return &ValidationError{Field: "(schema)", Message: t.schemaErr.Error()}
	}
	return util.Validate(t.schema, args)
}
