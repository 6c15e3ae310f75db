package core

// ToolCall is a single tool invocation request issued by the model.
// Arguments holds the raw JSON payload; Stage optionally names the tool
// registry stage the call targets.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Stage     string `json:"stage,omitempty"`
}

// ToolResultStatus classifies how a tool call ended.
type ToolResultStatus string

const (
	ToolResultSuccess         ToolResultStatus = "success"
	ToolResultNotFound        ToolResultStatus = "not_found"
	ToolResultParseError      ToolResultStatus = "parse_error"
	ToolResultValidationError ToolResultStatus = "validation_error"
	ToolResultFailure         ToolResultStatus = "failure"
)

// ToolResult is the outcome of a ToolCall. Content is the serialized message
// shown to the model; Result carries the structured value on success.
type ToolResult struct {
	ID      string           `json:"id,omitempty"`
	Name    string           `json:"name"`
	Content string           `json:"content"`
	Result  any              `json:"result,omitempty"`
	Status  ToolResultStatus `json:"status"`
}

// Failed reports whether the call did not complete successfully.
func (r ToolResult) Failed() bool { return r.Status != ToolResultSuccess }

// ToolDescriptor describes a tool to the model: its name, a natural language
// description and a JSON schema for its parameters.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}
