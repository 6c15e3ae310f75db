// Package anthropic provides a model.Executor for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
)

// Options configures the Anthropic executor (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Executor wraps the Anthropic Messages API behind model.Executor.
type Executor struct {
	client *anthropic.Client
	opts   Options
}

var _ model.Executor = (*Executor)(nil)

func defaultOptions() Options {
	return Options{
		Model:       anthropic.Model("claude-sonnet-4-5"),
		Temperature: 0.7,
		MaxTokens:   4096,
	}
}

// NewExecutor creates a new Anthropic executor using the official client.
func NewExecutor(optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)

	return &Executor{client: &client, opts: opts}
}

// NewExecutorFromClient creates a new Anthropic executor from an existing client.
func NewExecutorFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Executor {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Executor{client: client, opts: opts}
}

// Execute implements model.Executor. Text and tool_use blocks of the reply
// are folded into a single assistant message.
func (e *Executor) Execute(ctx context.Context, req model.Request) ([]model.Response, error) {
	resp, err := e.client.Messages.New(ctx, e.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var parts []core.Part
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			if text := block.AsText().Text; text != "" {
				parts = append(parts, core.TextPart{Text: text})
			}
		case "tool_use":
			tu := block.AsToolUse()
			args := string(tu.Input)
			if args == "" {
				args = "{}"
			}
			parts = append(parts, core.ToolCallPart{Call: core.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: args,
			}})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return []model.Response{{
		Message:      core.Message{Role: core.RoleAssistant, Parts: parts},
		FinishReason: finishReason,
		Model:        string(resp.Model),
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}}, nil
}

// ExecuteStreaming implements model.Executor, forwarding text deltas.
func (e *Executor) ExecuteStreaming(ctx context.Context, req model.Request) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		req.Tools = nil
		stream := e.client.Messages.NewStreaming(ctx, e.buildParams(req))
		defer stream.Close()

		for stream.Next() {
			ev := stream.Current()
			if ev.Type != "content_block_delta" || ev.Delta.Type != "text_delta" {
				continue
			}
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- ev.Delta.Text:
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return out, errCh
}

func (e *Executor) buildParams(req model.Request) anthropic.MessageNewParams {
	modelID := e.opts.Model
	if req.Model != "" {
		modelID = anthropic.Model(req.Model)
	}

	params := anthropic.MessageNewParams{
		Model:       modelID,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   e.opts.MaxTokens,
		Temperature: anthropic.Float(e.opts.Temperature),
	}
	if system := systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}

	// The Messages API has no "none" tool choice; omitting tools is equivalent.
	if len(req.Tools) == 0 || req.ToolChoice.Mode == model.ToolChoiceNone {
		return params
	}
	params.Tools = buildTools(req.Tools)

	switch req.ToolChoice.Mode {
	case model.ToolChoiceRequired:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case model.ToolChoiceNamed:
		params.ToolChoice = anthropic.ToolChoiceParamOfTool(req.ToolChoice.Name)
	default:
		params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
	return params
}

// buildMessages converts the transcript into Anthropic messages. System
// messages travel separately; tool results are sent as user tool_result blocks.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var messages []anthropic.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case core.RoleSystem:
			continue
		case core.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			for _, p := range m.Parts {
				switch part := p.(type) {
				case core.TextPart:
					if part.Text != "" {
						content = append(content, anthropic.NewTextBlock(part.Text))
					}
				case core.ToolCallPart:
					var input any = map[string]any{}
					if part.Call.Arguments != "" {
						if err := json.Unmarshal([]byte(part.Call.Arguments), &input); err != nil {
							input = part.Call.Arguments
						}
					}
					content = append(content, anthropic.NewToolUseBlock(part.Call.ID, input, part.Call.Name))
				}
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			var content []anthropic.ContentBlockParamUnion
			for _, r := range m.ToolResults() {
				content = append(content, anthropic.NewToolResultBlock(r.ID, r.Content, r.Failed()))
			}
			if len(content) > 0 {
				messages = append(messages, anthropic.NewUserMessage(content...))
			}
		default:
			if text := m.Text(); text != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
			}
		}
	}
	return messages
}

func systemBlocks(msgs []core.Message) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range msgs {
		if m.Role != core.RoleSystem {
			continue
		}
		if text := m.Text(); text != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: text})
		}
	}
	return blocks
}

func buildTools(tools []core.ToolDescriptor) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, td := range tools {
		schema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if props, ok := td.Parameters["properties"]; ok {
			schema.Properties = props
		}
		switch req := td.Parameters["required"].(type) {
		case []string:
			schema.Required = req
		case []any:
			for _, r := range req {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		u := anthropic.ToolUnionParamOfTool(schema, td.Name)
		if td.Description != "" {
			u.OfTool.Description = anthropic.String(td.Description)
		}
		out[i] = u
	}
	return out
}
