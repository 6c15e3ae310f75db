package tool

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
)

// TypedTool exposes a function taking a Go struct as a tool. The parameter
// schema is reflected from A (json and jsonschema struct tags), arguments are
// validated and decoded into A, and the function's R becomes the result.
type TypedTool[A, R any] struct {
	*FunctionTool
}

// NewTypedTool reflects the argument schema from A and wraps fn.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" jsonschema:"description=First addend"`
//	  B float64 `json:"b" jsonschema:"description=Second addend"`
//	}
//
//	sum := NewTypedTool("calculate_sum", "Add two numbers",
//	  func(tc *core.ToolContext, in SumArgs) (float64, error) { return in.A + in.B, nil })
func NewTypedTool[A, R any](name, description string, fn func(toolCtx *core.ToolContext, args A) (R, error)) *TypedTool[A, R] {
	schema := util.ReflectSchema[A]()
	return &TypedTool[A, R]{
		FunctionTool: NewFunctionTool(name, description, schema, func(tc *core.ToolContext, raw map[string]any) (any, error) {
			var args A
			if err := decodeArgs(raw, &args); err != nil {
				return nil, &ToolError{
					Tool:    name,
					Message: fmt.Sprintf("cannot decode arguments: %v", err),
					Code:    CodeValidation,
					Details: err,
				}
			}
			return fn(tc, args)
		}),
	}
}

func decodeArgs(raw map[string]any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
