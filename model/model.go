package model

import (
	"context"
	"strings"

	"github.com/hupe1980/agentgraph/core"
)

// ToolChoiceMode selects how the model may use the tools offered in a Request.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide between text and tool calls.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceNone forbids tool calls.
	ToolChoiceNone ToolChoiceMode = "none"
	// ToolChoiceRequired forces at least one tool call.
	ToolChoiceRequired ToolChoiceMode = "required"
	// ToolChoiceNamed forces a call of the tool named in ToolChoice.Name.
	ToolChoiceNamed ToolChoiceMode = "named"
)

// ToolChoice is the normalized tool choice constraint.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode"`
	Name string         `json:"name,omitempty"`
}

// ForceTool returns a ToolChoice forcing a call of the named tool.
func ForceTool(name string) ToolChoice { return ToolChoice{Mode: ToolChoiceNamed, Name: name} }

// Request captures the normalized model input produced by sessions.
type Request struct {
	Messages   []core.Message        `json:"messages"`
	Model      string                `json:"model,omitempty"` // empty selects the executor default
	Tools      []core.ToolDescriptor `json:"tools,omitempty"`
	ToolChoice ToolChoice            `json:"tool_choice"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is one message produced by the model. A single request may yield
// several responses (for example a text message plus tool calls).
type Response struct {
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
	Model        string       `json:"model,omitempty"`
}

// Executor is the boundary to a text generation service.
type Executor interface {
	// Execute runs a request to completion and returns the produced messages.
	Execute(ctx context.Context, req Request) ([]Response, error)

	// ExecuteStreaming streams text chunks. Both channels are closed when the
	// stream ends; at most one error is delivered.
	ExecuteStreaming(ctx context.Context, req Request) (<-chan string, <-chan error)
}

// Collect drains a streaming result into a single string.
func Collect(chunks <-chan string, errs <-chan error) (string, error) {
	var b strings.Builder
	for c := range chunks {
		b.WriteString(c)
	}
	if err, ok := <-errs; ok && err != nil {
		return b.String(), err
	}
	return b.String(), nil
}

// TextResponse builds a Response carrying an assistant text message.
func TextResponse(text string) Response {
	return Response{Message: core.NewAssistantMessage(text), FinishReason: "stop"}
}

// ToolCallResponse builds a Response carrying tool call requests.
func ToolCallResponse(calls ...core.ToolCall) Response {
	return Response{Message: core.NewToolCallMessage(calls...), FinishReason: "tool_calls"}
}

// Messages extracts the messages of a response list in order.
func Messages(responses []Response) []core.Message {
	out := make([]core.Message, 0, len(responses))
	for _, r := range responses {
		out = append(out, r.Message)
	}
	return out
}
