package testutil

import (
	"github.com/hupe1980/agentgraph/core"
)

// TranscriptBuilder constructs message histories with fluent chaining.
// Example:
//
//	msgs := NewTranscript().System("be brief").User("hi").Assistant("hello").Build()
type TranscriptBuilder struct {
	msgs []core.Message
}

// NewTranscript creates an empty builder.
func NewTranscript() *TranscriptBuilder { return &TranscriptBuilder{} }

// System appends a system message (chainable).
func (b *TranscriptBuilder) System(text string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewSystemMessage(text))
	return b
}

// User appends a user message (chainable).
func (b *TranscriptBuilder) User(text string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewUserMessage(text))
	return b
}

// Assistant appends an assistant text message (chainable).
func (b *TranscriptBuilder) Assistant(text string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage(text))
	return b
}

// ToolCall appends an assistant message requesting one tool call (chainable).
func (b *TranscriptBuilder) ToolCall(id, name, args string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewToolCallMessage(core.ToolCall{ID: id, Name: name, Arguments: args}))
	return b
}

// ToolResult appends a successful tool result message (chainable).
func (b *TranscriptBuilder) ToolResult(id, name, content string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.NewToolResultMessage(core.ToolResult{
		ID:      id,
		Name:    name,
		Content: content,
		Status:  core.ToolResultSuccess,
	}))
	return b
}

// Build returns a copy of the accumulated messages.
func (b *TranscriptBuilder) Build() []core.Message {
	return core.CloneMessages(b.msgs)
}
