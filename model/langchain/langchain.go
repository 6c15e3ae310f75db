// Package langchain adapts any langchaingo llms.Model (OpenAI, Ollama,
// Bedrock, ...) to model.Executor.
package langchain

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/tmc/langchaingo/llms"
)

// Options configure the langchaingo executor.
type Options struct {
	// CallOptions are appended to every GenerateContent call.
	CallOptions []llms.CallOption
}

// Executor wraps an llms.Model behind model.Executor.
type Executor struct {
	llm  llms.Model
	opts Options
}

var _ model.Executor = (*Executor)(nil)

// NewExecutor creates an executor over the given langchaingo model.
func NewExecutor(llm llms.Model, optFns ...func(o *Options)) *Executor {
	var opts Options
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{llm: llm, opts: opts}
}

// Execute implements model.Executor. Each content choice becomes a Response.
func (e *Executor) Execute(ctx context.Context, req model.Request) ([]model.Response, error) {
	resp, err := e.llm.GenerateContent(ctx, ConvertMessages(req.Messages), e.callOptions(req)...)
	if err != nil {
		return nil, fmt.Errorf("langchain generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	out := make([]model.Response, 0, len(resp.Choices))
	for _, ch := range resp.Choices {
		var parts []core.Part
		if ch.Content != "" {
			parts = append(parts, core.TextPart{Text: ch.Content})
		}
		for _, tc := range ch.ToolCalls {
			if tc.FunctionCall == nil {
				continue
			}
			parts = append(parts, core.ToolCallPart{Call: core.ToolCall{
				ID:        tc.ID,
				Name:      tc.FunctionCall.Name,
				Arguments: tc.FunctionCall.Arguments,
			}})
		}
		out = append(out, model.Response{
			Message:      core.Message{Role: core.RoleAssistant, Parts: parts},
			FinishReason: ch.StopReason,
			Model:        req.Model,
			Usage:        usageFrom(ch.GenerationInfo),
		})
	}
	return out, nil
}

// ExecuteStreaming implements model.Executor via llms.WithStreamingFunc.
func (e *Executor) ExecuteStreaming(ctx context.Context, req model.Request) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		req.Tools = nil
		opts := append(e.callOptions(req), llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case out <- string(chunk):
				return nil
			}
		}))

		if _, err := e.llm.GenerateContent(ctx, ConvertMessages(req.Messages), opts...); err != nil {
			errCh <- fmt.Errorf("langchain streaming: %w", err)
		}
	}()

	return out, errCh
}

func (e *Executor) callOptions(req model.Request) []llms.CallOption {
	opts := make([]llms.CallOption, 0, len(e.opts.CallOptions)+3)
	opts = append(opts, e.opts.CallOptions...)
	if req.Model != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}
	if len(req.Tools) == 0 {
		return opts
	}

	opts = append(opts, llms.WithTools(ConvertTools(req.Tools)))
	switch req.ToolChoice.Mode {
	case model.ToolChoiceNone:
		opts = append(opts, llms.WithToolChoice("none"))
	case model.ToolChoiceRequired:
		opts = append(opts, llms.WithToolChoice("required"))
	case model.ToolChoiceNamed:
		opts = append(opts, llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: req.ToolChoice.Name},
		}))
	default:
		opts = append(opts, llms.WithToolChoice("auto"))
	}
	return opts
}

// ConvertMessages maps a transcript onto langchaingo message contents.
func ConvertMessages(msgs []core.Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		mc := llms.MessageContent{Role: chatRole(m.Role)}
		for _, p := range m.Parts {
			switch part := p.(type) {
			case core.TextPart:
				mc.Parts = append(mc.Parts, llms.TextPart(part.Text))
			case core.ToolCallPart:
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   part.Call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      part.Call.Name,
						Arguments: part.Call.Arguments,
					},
				})
			case core.ToolResultPart:
				mc.Parts = append(mc.Parts, llms.ToolCallResponse{
					ToolCallID: part.Result.ID,
					Name:       part.Result.Name,
					Content:    part.Result.Content,
				})
			}
		}
		out = append(out, mc)
	}
	return out
}

// ConvertTools maps tool descriptors onto langchaingo function tools.
func ConvertTools(tools []core.ToolDescriptor) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, td := range tools {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}
	return out
}

func chatRole(r core.Role) llms.ChatMessageType {
	switch r {
	case core.RoleSystem:
		return llms.ChatMessageTypeSystem
	case core.RoleAssistant:
		return llms.ChatMessageTypeAI
	case core.RoleTool:
		return llms.ChatMessageTypeTool
	default:
		return llms.ChatMessageTypeHuman
	}
}

// usageFrom reads the token counters most langchaingo providers report in
// GenerationInfo. It returns nil when none are present.
func usageFrom(info map[string]any) *model.TokenUsage {
	prompt, okP := intValue(info["PromptTokens"])
	completion, okC := intValue(info["CompletionTokens"])
	if !okP && !okC {
		return nil
	}
	total, ok := intValue(info["TotalTokens"])
	if !ok {
		total = prompt + completion
	}
	return &model.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
