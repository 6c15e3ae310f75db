package testutil

import (
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
)

// ResponseBuilder provides a fluent helper for scripting model responses.
// Example:
//
//	r := NewResponse().Text("hi").Usage(10, 5).Build()
//
// Chain only the parts you need.
type ResponseBuilder struct {
	text   string
	calls  []core.ToolCall
	usage  *model.TokenUsage
	model  string
}

// NewResponse creates an empty builder.
func NewResponse() *ResponseBuilder { return &ResponseBuilder{} }

// Text sets the assistant text (chainable).
func (b *ResponseBuilder) Text(t string) *ResponseBuilder { b.text = t; return b }

// ToolCall adds a tool call request (chainable).
func (b *ResponseBuilder) ToolCall(id, name, args string) *ResponseBuilder {
	b.calls = append(b.calls, core.ToolCall{ID: id, Name: name, Arguments: args})
	return b
}

// Usage attaches token usage (chainable).
func (b *ResponseBuilder) Usage(prompt, completion int) *ResponseBuilder {
	b.usage = &model.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	return b
}

// Model sets the reported model name (chainable).
func (b *ResponseBuilder) Model(name string) *ResponseBuilder { b.model = name; return b }

// Build returns the response. Tool calls take precedence over text.
func (b *ResponseBuilder) Build() model.Response {
	var r model.Response
	if len(b.calls) > 0 {
		r = model.ToolCallResponse(b.calls...)
	} else {
		r = model.TextResponse(b.text)
	}
	r.Usage = b.usage
	r.Model = b.model
	return r
}
