package core

import "strings"

// Role identifies the author of a Message within a transcript.
type Role string

const (
	// RoleSystem marks instructions that frame the conversation.
	RoleSystem Role = "system"
	// RoleUser marks human (or caller) input.
	RoleUser Role = "user"
	// RoleAssistant marks model output, including tool call requests.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool results fed back to the model.
	RoleTool Role = "tool"
)

// Part represents a polymorphic segment of a Message. Concrete part types
// implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (TextPart) isPart() {}

// ToolCallPart wraps a tool invocation request issued by the model.
type ToolCallPart struct {
	Call     ToolCall       `json:"call"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (ToolCallPart) isPart() {}

// ToolResultPart wraps the outcome of a tool invocation.
type ToolResultPart struct {
	Result   ToolResult     `json:"result"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func (ToolResultPart) isPart() {}

// Message holds role + ordered parts.
type Message struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// NewSystemMessage builds a system message with a single text part.
func NewSystemMessage(text string) Message {
	return Message{Role: RoleSystem, Parts: []Part{TextPart{Text: text}}}
}

// NewUserMessage builds a user message with a single text part.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// NewAssistantMessage builds an assistant message with a single text part.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{TextPart{Text: text}}}
}

// NewToolCallMessage builds an assistant message carrying tool call requests.
func NewToolCallMessage(calls ...ToolCall) Message {
	parts := make([]Part, 0, len(calls))
	for _, c := range calls {
		parts = append(parts, ToolCallPart{Call: c})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}

// NewToolResultMessage builds a tool message carrying tool results.
func NewToolResultMessage(results ...ToolResult) Message {
	parts := make([]Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, ToolResultPart{Result: r})
	}
	return Message{Role: RoleTool, Parts: parts}
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// ToolCalls returns the tool calls carried by the message in order.
func (m Message) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, p := range m.Parts {
		if cp, ok := p.(ToolCallPart); ok {
			calls = append(calls, cp.Call)
		}
	}
	return calls
}

// ToolResults returns the tool results carried by the message in order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if rp, ok := p.(ToolResultPart); ok {
			results = append(results, rp.Result)
		}
	}
	return results
}

// HasToolCalls reports whether the message requests at least one tool call.
func (m Message) HasToolCalls() bool {
	for _, p := range m.Parts {
		if _, ok := p.(ToolCallPart); ok {
			return true
		}
	}
	return false
}

// CloneMessages returns a copy of the transcript slice. Parts are immutable
// values and are shared.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
