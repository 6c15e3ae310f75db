package pipeline

import (
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
)

// AgentCreatedEvent is dispatched once per agent, on its first run.
type AgentCreatedEvent struct {
	AgentID  string
	Strategy string
}

// AgentStartedEvent is dispatched when a run begins.
type AgentStartedEvent struct {
	RunID    string
	AgentID  string
	Strategy string
	Input    string
}

// AgentFinishedEvent is dispatched when a run completes successfully.
type AgentFinishedEvent struct {
	RunID    string
	AgentID  string
	Strategy string
	Result   string
	Duration time.Duration
}

// AgentRunErrorEvent is dispatched when a run fails.
type AgentRunErrorEvent struct {
	RunID   string
	AgentID string
	Err     error
}

// StrategyStartedEvent is dispatched before the top-level subgraph runs.
type StrategyStartedEvent struct {
	RunID    string
	Strategy string
}

// StrategyFinishedEvent is dispatched after the top-level subgraph returns.
type StrategyFinishedEvent struct {
	RunID    string
	Strategy string
	Result   any
}

// BeforeNodeEvent is dispatched before a node body runs.
type BeforeNodeEvent struct {
	RunID     string
	Node      string
	Iteration int
	Input     any
}

// AfterNodeEvent is dispatched after a node body returned successfully.
type AfterNodeEvent struct {
	RunID     string
	Node      string
	Iteration int
	Input     any
	Output    any
	Duration  time.Duration
}

// BeforeLLMCallEvent is dispatched before a model request.
type BeforeLLMCallEvent struct {
	RunID   string
	Request model.Request
}

// AfterLLMCallEvent is dispatched after a model request succeeded.
type AfterLLMCallEvent struct {
	RunID     string
	Request   model.Request
	Responses []model.Response
	Duration  time.Duration
}

// BeforeToolCallsEvent is dispatched before a batch of tool calls executes.
type BeforeToolCallsEvent struct {
	RunID string
	Calls []core.ToolCall
}

// AfterToolCallsEvent is dispatched after a batch of tool calls completed.
type AfterToolCallsEvent struct {
	RunID   string
	Calls   []core.ToolCall
	Results []core.ToolResult
}

// ToolCallEvent is dispatched right before a resolved tool executes.
type ToolCallEvent struct {
	RunID string
	Stage string
	Call  core.ToolCall
}

// ToolValidationErrorEvent is dispatched when a tool rejects its arguments.
type ToolValidationErrorEvent struct {
	RunID string
	Stage string
	Call  core.ToolCall
	Err   error
}

// ToolCallFailureEvent is dispatched when a tool fails or panics.
type ToolCallFailureEvent struct {
	RunID string
	Stage string
	Call  core.ToolCall
	Err   error
}

// ToolCallResultEvent is dispatched when a tool returned successfully.
type ToolCallResultEvent struct {
	RunID    string
	Stage    string
	Call     core.ToolCall
	Result   core.ToolResult
	Duration time.Duration
}
