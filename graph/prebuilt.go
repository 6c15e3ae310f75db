package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/session"
)

// errNoEnvironment is returned by tool nodes running without an environment.
var errNoEnvironment = errors.New("graph: run context has no environment")

// NodeDoNothing adds a node forwarding its input unchanged.
func NodeDoNothing[T any](b Builder, name string) Node[T, T] {
	return AddNode(b, name, func(_ context.Context, _ *RunContext, in T) (T, error) {
		return in, nil
	})
}

// NodeLLMRequest appends the input as a user message and requests a reply
// with the session's tools offered.
func NodeLLMRequest(b Builder, name string) Node[string, core.Message] {
	return AddNode(b, name, func(ctx context.Context, rc *RunContext, in string) (core.Message, error) {
		return session.Write(ctx, rc.LLM, func(ws *session.WriteSession) (core.Message, error) {
			ws.AppendUser(in)
			return ws.RequestWithTools(ctx)
		})
	})
}

// NodeLLMRequestWithoutTools is NodeLLMRequest with no tools offered.
func NodeLLMRequestWithoutTools(b Builder, name string) Node[string, core.Message] {
	return AddNode(b, name, func(ctx context.Context, rc *RunContext, in string) (core.Message, error) {
		return session.Write(ctx, rc.LLM, func(ws *session.WriteSession) (core.Message, error) {
			ws.AppendUser(in)
			return ws.RequestWithoutTools(ctx)
		})
	})
}

// NodeExecuteTool executes one tool call through the environment.
func NodeExecuteTool(b Builder, name string) Node[core.ToolCall, core.ToolResult] {
	return AddNode(b, name, func(ctx context.Context, rc *RunContext, call core.ToolCall) (core.ToolResult, error) {
		results, err := executeTools(ctx, rc, []core.ToolCall{call})
		if err != nil {
			return core.ToolResult{}, err
		}
		return results[0], nil
	})
}

// NodeExecuteMultipleTools executes a batch of tool calls through the
// environment. Results keep the order of the calls.
func NodeExecuteMultipleTools(b Builder, name string) Node[[]core.ToolCall, []core.ToolResult] {
	return AddNode(b, name, func(ctx context.Context, rc *RunContext, calls []core.ToolCall) ([]core.ToolResult, error) {
		return executeTools(ctx, rc, calls)
	})
}

// NodeLLMSendToolResult appends a tool result and requests the next reply.
func NodeLLMSendToolResult(b Builder, name string) Node[core.ToolResult, core.Message] {
	return AddNode(b, name, func(ctx context.Context, rc *RunContext, result core.ToolResult) (core.Message, error) {
		return sendToolResults(ctx, rc, []core.ToolResult{result})
	})
}

// NodeLLMSendMultipleToolResults appends a batch of tool results and requests
// the next reply.
func NodeLLMSendMultipleToolResults(b Builder, name string) Node[[]core.ToolResult, core.Message] {
	return AddNode(b, name, func(ctx context.Context, rc *RunContext, results []core.ToolResult) (core.Message, error) {
		return sendToolResults(ctx, rc, results)
	})
}

func executeTools(ctx context.Context, rc *RunContext, calls []core.ToolCall) ([]core.ToolResult, error) {
	if rc.Environment == nil {
		return nil, errNoEnvironment
	}
	results, err := rc.Environment.ExecuteTools(ctx, calls)
	if err != nil {
		return nil, err
	}
	if len(results) != len(calls) {
		return nil, fmt.Errorf("environment returned %d results for %d calls: %w", len(results), len(calls), ErrInternalConsistency)
	}
	return results, nil
}

func sendToolResults(ctx context.Context, rc *RunContext, results []core.ToolResult) (core.Message, error) {
	return session.Write(ctx, rc.LLM, func(ws *session.WriteSession) (core.Message, error) {
		ws.AppendToolResults(results...)
		return ws.RequestWithTools(ctx)
	})
}

// SingleRunStrategy returns the classic tool loop: the input goes to the
// model; tool calls are executed and their results sent back until the model
// answers with plain text, which becomes the result.
func SingleRunStrategy(name string) *Subgraph[string, string] {
	sg := NewSubgraph[string, string](name)

	callLLM := NodeLLMRequest(sg, "call_llm")
	execTools := NodeExecuteMultipleTools(sg, "execute_tools")
	sendResults := NodeLLMSendMultipleToolResults(sg, "send_tool_results")

	// Edges into fresh nodes of a new subgraph cannot fail.
	_ = Connect(sg.Start(), callLLM, Identity[string]())
	_ = Connect(callLLM, execTools, OnToolCalls())
	_ = Connect(callLLM, sg.Finish(), OnAssistantMessage())
	_ = Connect(execTools, sendResults, Identity[[]core.ToolResult]())
	_ = Connect(sendResults, execTools, OnToolCalls())
	_ = Connect(sendResults, sg.Finish(), OnAssistantMessage())

	return sg
}
