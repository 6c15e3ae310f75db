// Package openai provides an implementation of model.Executor using the OpenAI
// Chat Completions API (including streaming and function/tool calling). It
// adapts agentgraph's normalized transcript into the SDK's message format and
// back.
package openai

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI executor.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Executor wraps the OpenAI Chat Completions API behind model.Executor.
type Executor struct {
	client *openai.Client
	opts   Options
}

var _ model.Executor = (*Executor)(nil)

// NewExecutor creates a new OpenAI executor using the official client
// (configured from OPENAI_API_KEY and friends).
func NewExecutor(optFns ...func(o *Options)) *Executor {
	client := openai.NewClient()
	return NewExecutorFromClient(&client, optFns...)
}

// NewExecutorFromClient creates a new OpenAI executor from an existing client.
func NewExecutorFromClient(client *openai.Client, optFns ...func(o *Options)) *Executor {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{client: client, opts: opts}
}

// Execute implements model.Executor. Every returned choice becomes one
// Response.
func (e *Executor) Execute(ctx context.Context, req model.Request) ([]model.Response, error) {
	params := e.buildParams(req)

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned")
	}

	usage := &model.TokenUsage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}

	out := make([]model.Response, 0, len(resp.Choices))
	for i, ch := range resp.Choices {
		parts := make([]core.Part, 0, len(ch.Message.ToolCalls)+1)
		if ch.Message.Content != "" {
			parts = append(parts, core.TextPart{Text: ch.Message.Content})
		}
		for _, tc := range ch.Message.ToolCalls {
			parts = append(parts, core.ToolCallPart{Call: core.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}})
		}
		r := model.Response{
			Message:      core.Message{Role: core.RoleAssistant, Parts: parts},
			FinishReason: ch.FinishReason,
			Model:        resp.Model,
		}
		if i == 0 {
			r.Usage = usage
		}
		out = append(out, r)
	}
	return out, nil
}

// ExecuteStreaming implements model.Executor, forwarding content deltas.
func (e *Executor) ExecuteStreaming(ctx context.Context, req model.Request) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		req.Tools = nil
		stream := e.client.Chat.Completions.NewStreaming(ctx, e.buildParams(req))
		defer stream.Close()

		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content == "" {
					continue
				}
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- ch.Delta.Content:
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("openai streaming error: %w", err)
		}
	}()

	return out, errCh
}

func (e *Executor) buildParams(req model.Request) openai.ChatCompletionNewParams {
	modelID := req.Model
	if modelID == "" {
		modelID = e.opts.Model
	}
	params := openai.ChatCompletionNewParams{
		Messages:            buildMessages(req.Messages),
		Model:               modelID,
		Temperature:         openai.Float(e.opts.Temperature),
		MaxCompletionTokens: openai.Int(e.opts.MaxCompletionTokens),
	}
	if len(req.Tools) == 0 {
		return params
	}

	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, td := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        td.Name,
				Description: openai.String(td.Description),
				Parameters:  td.Parameters,
			},
		}
	}
	params.Tools = tools

	switch req.ToolChoice.Mode {
	case model.ToolChoiceNone:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("none")}
	case model.ToolChoiceRequired:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("required")}
	case model.ToolChoiceNamed:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionParamOfChatCompletionNamedToolChoice(
			openai.ChatCompletionNamedToolChoiceFunctionParam{Name: req.ToolChoice.Name},
		)
	default:
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: openai.String("auto")}
	}
	return params
}

// buildMessages converts the transcript into OpenAI chat messages. Tool
// result messages expand into one tool message per result.
func buildMessages(msgs []core.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			messages = append(messages, openai.SystemMessage(m.Text()))
		case core.RoleUser:
			messages = append(messages, openai.UserMessage(m.Text()))
		case core.RoleAssistant:
			calls := m.ToolCalls()
			if len(calls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Text()))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
			for _, c := range calls {
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: c.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      c.Name,
						Arguments: c.Arguments,
					},
				})
			}
			asst := &openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text := m.Text(); text != "" {
				asst.Content.OfString = openai.String(text)
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: asst})
		case core.RoleTool:
			for _, r := range m.ToolResults() {
				messages = append(messages, openai.ToolMessage(r.Content, r.ID))
			}
		}
	}
	return messages
}
