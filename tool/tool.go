// Package tool implements the callable-tool subsystem: the Tool contract,
// schema validated function tools, typed tools whose schema is reflected
// from Go types, and a staged Registry the dispatcher resolves calls against.
package tool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
)

// Tool is an external callable action exposed to the model.
//
// Implementations must be safe for concurrent use: the dispatcher runs the
// calls of one batch in parallel.
type Tool interface {
	// Name returns the unique identifier for this tool within its stage.
	Name() string

	// Description is shown to the model to explain when to use the tool.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the tool with decoded arguments. Returning a *ToolError
	// with CodeValidation classifies the failure as a validation failure.
	Call(toolCtx *core.ToolContext, args map[string]any) (any, error)
}

// Descriptor returns the model-facing description of a tool.
func Descriptor(t Tool) core.ToolDescriptor {
	return core.ToolDescriptor{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  t.Parameters(),
	}
}

// Error codes used by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// Unwrap exposes an error carried in Details.
func (e *ToolError) Unwrap() error {
	if err, ok := e.Details.(error); ok {
		return err
	}
	return nil
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// IsValidationError reports whether err is a validation-class tool failure:
// a *ToolError with CodeValidation or a bare *ValidationError.
func IsValidationError(err error) bool {
	var te *ToolError
	if errors.As(err, &te) && te.Code == CodeValidation {
		return true
	}
	var ve *ValidationError
	return errors.As(err, &ve)
}
