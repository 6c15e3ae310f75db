// Package tracing forwards every lifecycle event of an agent run to message
// processors: a logger, a Redis stream, a SQL table.
//
// The feature never fails a run: processor errors are logged and dropped.
package tracing

import (
	"context"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/pipeline"
)

// Key identifies the tracing feature.
const Key pipeline.FeatureKey = "tracing"

// Message types emitted by the feature.
const (
	TypeAgentCreated        = "agent.created"
	TypeAgentStarted        = "agent.started"
	TypeAgentFinished       = "agent.finished"
	TypeAgentRunError       = "agent.run_error"
	TypeStrategyStarted     = "strategy.started"
	TypeStrategyFinished    = "strategy.finished"
	TypeNodeStarted         = "node.started"
	TypeNodeFinished        = "node.finished"
	TypeLLMCallStarted      = "llm.call.started"
	TypeLLMCallFinished     = "llm.call.finished"
	TypeToolBatchStarted    = "tool.batch.started"
	TypeToolBatchFinished   = "tool.batch.finished"
	TypeToolCallStarted     = "tool.call.started"
	TypeToolValidationError = "tool.call.validation_error"
	TypeToolCallFailed      = "tool.call.failed"
	TypeToolCallFinished    = "tool.call.finished"
)

// Config configures the tracing feature.
type Config struct {
	pipeline.FeatureConfig

	// Filter drops messages it returns false for. Nil keeps everything.
	Filter func(msg pipeline.FeatureMessage) bool
	// IncludeContent adds inputs, outputs and transcripts to payloads.
	IncludeContent bool
	Logger         logging.Logger
}

// Feature is the tracing feature.
type Feature struct{}

var _ pipeline.Feature[Config] = Feature{}

// Key implements pipeline.Feature.
func (Feature) Key() pipeline.FeatureKey { return Key }

// NewConfig implements pipeline.Feature.
func (Feature) NewConfig() Config {
	return Config{Logger: logging.NoOpLogger{}}
}

// Install implements pipeline.Feature.
func (Feature) Install(cfg Config, p *pipeline.Pipeline) error {
	t := &tracer{cfg: cfg, logger: logging.OrNoOp(cfg.Logger)}

	p.InterceptAgentCreated(Key, func(ctx context.Context, ev pipeline.AgentCreatedEvent) error {
		t.emit(ctx, TypeAgentCreated, "", map[string]any{"agent_id": ev.AgentID, "strategy": ev.Strategy})
		return nil
	})
	p.InterceptAgentStarted(Key, func(ctx context.Context, ev pipeline.AgentStartedEvent) error {
		payload := map[string]any{"agent_id": ev.AgentID, "strategy": ev.Strategy}
		t.content(payload, "input", ev.Input)
		t.emit(ctx, TypeAgentStarted, ev.RunID, payload)
		return nil
	})
	p.InterceptAgentFinished(Key, func(ctx context.Context, ev pipeline.AgentFinishedEvent) error {
		payload := map[string]any{"agent_id": ev.AgentID, "strategy": ev.Strategy, "duration_ms": ev.Duration.Milliseconds()}
		t.content(payload, "result", ev.Result)
		t.emit(ctx, TypeAgentFinished, ev.RunID, payload)
		return nil
	})
	p.InterceptAgentRunError(Key, func(ctx context.Context, ev pipeline.AgentRunErrorEvent) (bool, error) {
		t.emit(ctx, TypeAgentRunError, ev.RunID, map[string]any{"agent_id": ev.AgentID, "error": errString(ev.Err)})
		return false, nil
	})

	p.InterceptStrategyStarted(Key, func(ctx context.Context, ev pipeline.StrategyStartedEvent) error {
		t.emit(ctx, TypeStrategyStarted, ev.RunID, map[string]any{"strategy": ev.Strategy})
		return nil
	})
	p.InterceptStrategyFinished(Key, func(ctx context.Context, ev pipeline.StrategyFinishedEvent) error {
		payload := map[string]any{"strategy": ev.Strategy}
		t.content(payload, "result", ev.Result)
		t.emit(ctx, TypeStrategyFinished, ev.RunID, payload)
		return nil
	})

	p.InterceptBeforeNode(Key, func(ctx context.Context, ev pipeline.BeforeNodeEvent) error {
		payload := map[string]any{"node": ev.Node, "iteration": ev.Iteration}
		t.content(payload, "input", ev.Input)
		t.emit(ctx, TypeNodeStarted, ev.RunID, payload)
		return nil
	})
	p.InterceptAfterNode(Key, func(ctx context.Context, ev pipeline.AfterNodeEvent) error {
		payload := map[string]any{"node": ev.Node, "iteration": ev.Iteration, "duration_ms": ev.Duration.Milliseconds()}
		t.content(payload, "output", ev.Output)
		t.emit(ctx, TypeNodeFinished, ev.RunID, payload)
		return nil
	})

	beforeLLM := func(ctx context.Context, ev pipeline.BeforeLLMCallEvent) error {
		payload := map[string]any{
			"model":       ev.Request.Model,
			"tools":       len(ev.Request.Tools),
			"tool_choice": string(ev.Request.ToolChoice.Mode),
			"messages":    len(ev.Request.Messages),
		}
		t.content(payload, "transcript", ev.Request.Messages)
		t.emit(ctx, TypeLLMCallStarted, ev.RunID, payload)
		return nil
	}
	afterLLM := func(ctx context.Context, ev pipeline.AfterLLMCallEvent) error {
		payload := map[string]any{
			"model":       ev.Request.Model,
			"responses":   len(ev.Responses),
			"duration_ms": ev.Duration.Milliseconds(),
		}
		var prompt, completion int
		for _, r := range ev.Responses {
			if r.Usage != nil {
				prompt += r.Usage.PromptTokens
				completion += r.Usage.CompletionTokens
			}
		}
		payload["prompt_tokens"] = prompt
		payload["completion_tokens"] = completion
		if t.cfg.IncludeContent {
			texts := make([]string, 0, len(ev.Responses))
			for _, r := range ev.Responses {
				texts = append(texts, r.Message.Text())
			}
			payload["responses_text"] = texts
		}
		t.emit(ctx, TypeLLMCallFinished, ev.RunID, payload)
		return nil
	}
	p.InterceptBeforeLLMCall(Key, beforeLLM)
	p.InterceptBeforeLLMCallWithTools(Key, beforeLLM)
	p.InterceptAfterLLMCall(Key, afterLLM)
	p.InterceptAfterLLMCallWithTools(Key, afterLLM)

	p.InterceptBeforeToolCalls(Key, func(ctx context.Context, ev pipeline.BeforeToolCallsEvent) error {
		t.emit(ctx, TypeToolBatchStarted, ev.RunID, map[string]any{"calls": toolNames(ev.Calls)})
		return nil
	})
	p.InterceptAfterToolCalls(Key, func(ctx context.Context, ev pipeline.AfterToolCallsEvent) error {
		failed := 0
		for _, r := range ev.Results {
			if r.Failed() {
				failed++
			}
		}
		t.emit(ctx, TypeToolBatchFinished, ev.RunID, map[string]any{"calls": len(ev.Calls), "failed": failed})
		return nil
	})
	p.InterceptToolCall(Key, func(ctx context.Context, ev pipeline.ToolCallEvent) error {
		payload := map[string]any{"tool": ev.Call.Name, "call_id": ev.Call.ID, "stage": ev.Stage}
		t.content(payload, "arguments", ev.Call.Arguments)
		t.emit(ctx, TypeToolCallStarted, ev.RunID, payload)
		return nil
	})
	p.InterceptToolValidationError(Key, func(ctx context.Context, ev pipeline.ToolValidationErrorEvent) error {
		t.emit(ctx, TypeToolValidationError, ev.RunID, map[string]any{
			"tool": ev.Call.Name, "call_id": ev.Call.ID, "error": errString(ev.Err),
		})
		return nil
	})
	p.InterceptToolCallFailure(Key, func(ctx context.Context, ev pipeline.ToolCallFailureEvent) error {
		t.emit(ctx, TypeToolCallFailed, ev.RunID, map[string]any{
			"tool": ev.Call.Name, "call_id": ev.Call.ID, "error": errString(ev.Err),
		})
		return nil
	})
	p.InterceptToolCallResult(Key, func(ctx context.Context, ev pipeline.ToolCallResultEvent) error {
		payload := map[string]any{"tool": ev.Call.Name, "call_id": ev.Call.ID, "duration_ms": ev.Duration.Milliseconds()}
		t.content(payload, "result", ev.Result.Content)
		t.emit(ctx, TypeToolCallFinished, ev.RunID, payload)
		return nil
	})

	return nil
}

type tracer struct {
	cfg    Config
	logger logging.Logger
}

func (t *tracer) content(payload map[string]any, key string, v any) {
	if t.cfg.IncludeContent {
		payload[key] = v
	}
}

func (t *tracer) emit(ctx context.Context, typ, runID string, payload map[string]any) {
	msg := pipeline.NewFeatureMessage(typ, runID, payload)
	if t.cfg.Filter != nil && !t.cfg.Filter(msg) {
		return
	}

	start := time.Now()
	if err := pipeline.Broadcast(ctx, t.cfg.Processors(), msg); err != nil {
		t.logger.Warn("tracing.process.failed", "type", typ, "run_id", runID, "error", err)
		return
	}
	t.logger.Debug("tracing.message.sent", "type", typ, "run_id", runID, "duration_ms", time.Since(start).Milliseconds())
}

func toolNames(calls []core.ToolCall) []string {
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Name
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
