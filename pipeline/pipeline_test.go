package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeline_RegistrationOrderAndReplacement(t *testing.T) {
	p := New()
	var calls []string

	p.InterceptBeforeNode("a", func(ctx context.Context, ev BeforeNodeEvent) error {
		calls = append(calls, "a1:"+ev.Node)
		return nil
	})
	p.InterceptBeforeNode("b", func(ctx context.Context, ev BeforeNodeEvent) error {
		calls = append(calls, "b:"+ev.Node)
		return nil
	})
	// Same key replaces in place and keeps the original position.
	p.InterceptBeforeNode("a", func(ctx context.Context, ev BeforeNodeEvent) error {
		calls = append(calls, "a2:"+ev.Node)
		return nil
	})

	require.NoError(t, p.OnBeforeNode(context.Background(), BeforeNodeEvent{Node: "n"}))
	assert.Equal(t, []string{"a2:n", "b:n"}, calls)
	assert.Equal(t, 2, p.beforeNode.len())
}

func TestPipeline_AllHandlersRunAndErrorsJoin(t *testing.T) {
	p := New()
	e1, e2 := errors.New("first"), errors.New("second")
	ran := 0

	p.InterceptAfterNode("a", func(ctx context.Context, ev AfterNodeEvent) error { ran++; return e1 })
	p.InterceptAfterNode("b", func(ctx context.Context, ev AfterNodeEvent) error { ran++; return nil })
	p.InterceptAfterNode("c", func(ctx context.Context, ev AfterNodeEvent) error { ran++; return e2 })

	err := p.OnAfterNode(context.Background(), AfterNodeEvent{})
	assert.Equal(t, 3, ran)
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
}

func TestPipeline_NoHandlers(t *testing.T) {
	p := New()
	assert.NoError(t, p.OnAgentStarted(context.Background(), AgentStartedEvent{}))
	claimed, err := p.OnAgentRunError(context.Background(), AgentRunErrorEvent{Err: errors.New("x")})
	assert.False(t, claimed)
	assert.NoError(t, err)
}

func TestPipeline_RunErrorClaim(t *testing.T) {
	p := New()
	seen := 0
	p.InterceptAgentRunError("observer", func(ctx context.Context, ev AgentRunErrorEvent) (bool, error) {
		seen++
		return false, nil
	})
	p.InterceptAgentRunError("claimer", func(ctx context.Context, ev AgentRunErrorEvent) (bool, error) {
		seen++
		return true, nil
	})

	claimed, err := p.OnAgentRunError(context.Background(), AgentRunErrorEvent{Err: errors.New("boom")})
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Equal(t, 2, seen)
}

type taggedEnv struct {
	core.Environment
	tags []string
}

func (e *taggedEnv) ReportProblem(ctx context.Context, err error) error { return nil }

func TestPipeline_TransformEnvironmentLeftFold(t *testing.T) {
	p := New()
	wrap := func(tag string) EnvironmentTransformer {
		return func(env core.Environment) core.Environment {
			inner, _ := env.(*taggedEnv)
			var tags []string
			if inner != nil {
				tags = append(tags, inner.tags...)
			}
			return &taggedEnv{Environment: env, tags: append(tags, tag)}
		}
	}
	p.InterceptEnvironment("first", wrap("first"))
	p.InterceptEnvironment("second", wrap("second"))

	env := p.TransformEnvironment(&taggedEnv{})
	assert.Equal(t, []string{"first", "second"}, env.(*taggedEnv).tags)
}

func TestPipeline_LLMCallRoutingByTools(t *testing.T) {
	p := New()
	var plain, withTools int
	p.InterceptBeforeLLMCall("f", func(ctx context.Context, ev BeforeLLMCallEvent) error { plain++; return nil })
	p.InterceptBeforeLLMCallWithTools("f", func(ctx context.Context, ev BeforeLLMCallEvent) error { withTools++; return nil })

	ctx := context.Background()
	require.NoError(t, p.OnBeforeLLMCall(ctx, BeforeLLMCallEvent{Request: model.Request{}}))
	require.NoError(t, p.OnBeforeLLMCall(ctx, BeforeLLMCallEvent{Request: model.Request{
		Tools: []core.ToolDescriptor{{Name: "calc"}},
	}}))

	assert.Equal(t, 1, plain)
	assert.Equal(t, 1, withTools)
}

func TestPipeline_Uninstall(t *testing.T) {
	p := New()
	n := 0
	p.InterceptToolCall("f", func(ctx context.Context, ev ToolCallEvent) error { n++; return nil })
	p.Uninstall("f")
	require.NoError(t, p.OnToolCall(context.Background(), ToolCallEvent{}))
	assert.Zero(t, n)
}

func TestPipeline_ConcurrentDispatch(t *testing.T) {
	p := New()
	var mu sync.Mutex
	count := 0
	p.InterceptToolCallResult("f", func(ctx context.Context, ev ToolCallResultEvent) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.OnToolCallResult(context.Background(), ToolCallResultEvent{})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, count)
}
