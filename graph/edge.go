package graph

import (
	"context"

	"github.com/hupe1980/agentgraph/core"
)

// Forward decides whether an edge matches a node output and, if so, which
// input the target node receives.
type Forward[O, N any] func(ctx context.Context, rc *RunContext, out O) (N, bool)

// Identity always matches and forwards the output unchanged.
func Identity[T any]() Forward[T, T] {
	return func(_ context.Context, _ *RunContext, out T) (T, bool) {
		return out, true
	}
}

// OnCondition matches when pred holds and forwards the output unchanged.
func OnCondition[T any](pred func(ctx context.Context, rc *RunContext, out T) bool) Forward[T, T] {
	return func(ctx context.Context, rc *RunContext, out T) (T, bool) {
		if !pred(ctx, rc, out) {
			var zero T
			return zero, false
		}
		return out, true
	}
}

// Transformed always matches and forwards fn(out).
func Transformed[O, N any](fn func(out O) N) Forward[O, N] {
	return func(_ context.Context, _ *RunContext, out O) (N, bool) {
		return fn(out), true
	}
}

// Chain matches when both first and then match, feeding first's result into
// then.
func Chain[A, B, C any](first Forward[A, B], then Forward[B, C]) Forward[A, C] {
	return func(ctx context.Context, rc *RunContext, out A) (C, bool) {
		mid, ok := first(ctx, rc, out)
		if !ok {
			var zero C
			return zero, false
		}
		return then(ctx, rc, mid)
	}
}

// OnToolCall matches messages carrying at least one tool call and forwards
// the first one.
func OnToolCall() Forward[core.Message, core.ToolCall] {
	return func(_ context.Context, _ *RunContext, msg core.Message) (core.ToolCall, bool) {
		calls := msg.ToolCalls()
		if len(calls) == 0 {
			return core.ToolCall{}, false
		}
		return calls[0], true
	}
}

// OnToolCalls matches messages carrying tool calls and forwards all of them.
func OnToolCalls() Forward[core.Message, []core.ToolCall] {
	return func(_ context.Context, _ *RunContext, msg core.Message) ([]core.ToolCall, bool) {
		calls := msg.ToolCalls()
		return calls, len(calls) > 0
	}
}

// OnNamedToolCall matches messages whose first tool call targets name.
func OnNamedToolCall(name string) Forward[core.Message, core.ToolCall] {
	return Chain(OnToolCall(), OnCondition(func(_ context.Context, _ *RunContext, c core.ToolCall) bool {
		return c.Name == name
	}))
}

// OnAssistantMessage matches assistant messages without tool calls and
// forwards their text.
func OnAssistantMessage() Forward[core.Message, string] {
	return func(_ context.Context, _ *RunContext, msg core.Message) (string, bool) {
		if msg.Role != core.RoleAssistant || msg.HasToolCalls() {
			return "", false
		}
		return msg.Text(), true
	}
}
