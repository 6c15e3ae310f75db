package graph

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/pipeline"
	"github.com/hupe1980/agentgraph/session"
)

// nodeRecorder collects before/after node events.
type nodeRecorder struct {
	mu     sync.Mutex
	before []string
	after  []string
}

func (r *nodeRecorder) install(p *pipeline.Pipeline) {
	p.InterceptBeforeNode("recorder", func(_ context.Context, ev pipeline.BeforeNodeEvent) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.before = append(r.before, ev.Node)
		return nil
	})
	p.InterceptAfterNode("recorder", func(_ context.Context, ev pipeline.AfterNodeEvent) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.after = append(r.after, ev.Node)
		return nil
	})
}

func count(names []string, name string) int {
	n := 0
	for _, v := range names {
		if v == name {
			n++
		}
	}
	return n
}

func newRunContext(exec model.Executor, optFns ...func(rc *RunContext)) *RunContext {
	if exec == nil {
		exec = model.NewMockExecutor()
	}
	rc := &RunContext{
		RunID:    "run-1",
		AgentID:  "agent",
		Strategy: "test",
		LLM:      session.NewLLMContext(exec, "test-model"),
		Pipeline: pipeline.New(),
		State:    core.NewStateManager(),
		Store:    core.NewKeyValueStore(),
	}
	for _, fn := range optFns {
		fn(rc)
	}
	return rc
}

func TestEndToEndPassThrough(t *testing.T) {
	sg := NewSubgraph[string, string]("echo")
	nodeA := AddNode(sg, "nodeA", func(_ context.Context, _ *RunContext, in string) (string, error) {
		return in, nil
	})
	require.NoError(t, Connect(sg.Start(), nodeA, Identity[string]()))
	require.NoError(t, Connect(nodeA, sg.Finish(), Identity[string]()))

	rc := newRunContext(nil)
	rec := &nodeRecorder{}
	rec.install(rc.Pipeline)

	out, err := sg.Execute(context.Background(), rc, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)
	assert.Equal(t, 1, count(rec.before, "nodeA"))
	assert.Equal(t, 1, count(rec.after, "nodeA"))
	assert.Equal(t, 2, rc.State.Iterations())
}

func TestSelfLoopHitsMaxIterations(t *testing.T) {
	const maxIter = 5

	sg := NewSubgraph[int, int]("loop")
	runs := 0
	loop := AddNode(sg, "loop", func(_ context.Context, _ *RunContext, in int) (int, error) {
		runs++
		return in + 1, nil
	})
	require.NoError(t, Connect(sg.Start(), loop, Identity[int]()))
	require.NoError(t, Connect(loop, loop, Identity[int]()))

	rc := newRunContext(nil, func(rc *RunContext) { rc.MaxIterations = maxIter })
	rec := &nodeRecorder{}
	rec.install(rc.Pipeline)

	_, err := sg.Execute(context.Background(), rc, 0)

	var maxErr *MaxIterationsReachedError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, maxIter, maxErr.Max)
	assert.Len(t, rec.before, maxIter)
	assert.Len(t, rec.after, maxIter)
	assert.Equal(t, maxIter-1, runs)
}

func TestDefaultMaxIterations(t *testing.T) {
	sg := NewSubgraph[int, int]("loop")
	loop := NodeDoNothing[int](sg, "loop")
	require.NoError(t, Connect(sg.Start(), loop, Identity[int]()))
	require.NoError(t, Connect(loop, loop, Identity[int]()))

	rc := newRunContext(nil)
	_, err := sg.Execute(context.Background(), rc, 0)

	var maxErr *MaxIterationsReachedError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, DefaultMaxIterations, maxErr.Max)
}

func TestFirstDeclaredEdgeWins(t *testing.T) {
	for _, input := range []int{-10, 0, 1, 42} {
		sg := NewSubgraph[int, string]("order")
		first := AddNode(sg, "first", func(_ context.Context, _ *RunContext, _ int) (string, error) {
			return "first", nil
		})
		second := AddNode(sg, "second", func(_ context.Context, _ *RunContext, _ int) (string, error) {
			return "second", nil
		})
		always := OnCondition(func(context.Context, *RunContext, int) bool { return true })

		require.NoError(t, Connect(sg.Start(), first, always))
		require.NoError(t, Connect(sg.Start(), second, Identity[int]()))
		require.NoError(t, Connect(first, sg.Finish(), Identity[string]()))
		require.NoError(t, Connect(second, sg.Finish(), Identity[string]()))

		out, err := sg.Execute(context.Background(), newRunContext(nil), input)
		require.NoError(t, err)
		assert.Equal(t, "first", out, "input %d", input)
	}
}

func TestConditionalEdges(t *testing.T) {
	sg := NewSubgraph[int, string]("parity")
	even := AddNode(sg, "even", func(context.Context, *RunContext, int) (string, error) { return "even", nil })
	odd := AddNode(sg, "odd", func(context.Context, *RunContext, int) (string, error) { return "odd", nil })

	isEven := func(_ context.Context, _ *RunContext, v int) bool { return v%2 == 0 }
	require.NoError(t, Connect(sg.Start(), even, OnCondition(isEven)))
	require.NoError(t, Connect(sg.Start(), odd, Identity[int]()))
	require.NoError(t, Connect(even, sg.Finish(), Identity[string]()))
	require.NoError(t, Connect(odd, sg.Finish(), Identity[string]()))

	out, err := sg.Execute(context.Background(), newRunContext(nil), 4)
	require.NoError(t, err)
	assert.Equal(t, "even", out)

	out, err = sg.Execute(context.Background(), newRunContext(nil), 3)
	require.NoError(t, err)
	assert.Equal(t, "odd", out)
}

func TestStuckInNode(t *testing.T) {
	sg := NewSubgraph[int, int]("stuck")
	a := NodeDoNothing[int](sg, "a")
	require.NoError(t, Connect(sg.Start(), a, Identity[int]()))
	require.NoError(t, Connect(a, sg.Finish(), OnCondition(func(_ context.Context, _ *RunContext, v int) bool {
		return v > 100
	})))

	_, err := sg.Execute(context.Background(), newRunContext(nil), 7)

	var stuck *StuckInNodeError
	require.ErrorAs(t, err, &stuck)
	assert.Equal(t, "a", stuck.Node)
	assert.Equal(t, 7, stuck.Output)
}

func TestNodeErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	sg := NewSubgraph[string, string]("fail")
	a := AddNode(sg, "a", func(context.Context, *RunContext, string) (string, error) { return "", boom })
	require.NoError(t, Connect(sg.Start(), a, Identity[string]()))
	require.NoError(t, Connect(a, sg.Finish(), Identity[string]()))

	rc := newRunContext(nil)
	rec := &nodeRecorder{}
	rec.install(rc.Pipeline)

	_, err := sg.Execute(context.Background(), rc, "x")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, count(rec.before, "a"))
	assert.Zero(t, count(rec.after, "a"))
}

func TestBeforeNodeHookErrorAborts(t *testing.T) {
	sg := NewSubgraph[string, string]("hooked")
	ran := false
	a := AddNode(sg, "a", func(_ context.Context, _ *RunContext, in string) (string, error) {
		ran = true
		return in, nil
	})
	require.NoError(t, Connect(sg.Start(), a, Identity[string]()))
	require.NoError(t, Connect(a, sg.Finish(), Identity[string]()))

	denied := errors.New("denied")
	rc := newRunContext(nil)
	rc.Pipeline.InterceptBeforeNode("guard", func(_ context.Context, ev pipeline.BeforeNodeEvent) error {
		if ev.Node == "a" {
			return denied
		}
		return nil
	})

	_, err := sg.Execute(context.Background(), rc, "x")
	require.ErrorIs(t, err, denied)
	assert.False(t, ran)
}

func TestBuildErrors(t *testing.T) {
	sg := NewSubgraph[string, string]("build")
	a := NodeDoNothing[string](sg, "a")

	err := Connect(sg.Finish(), a, Identity[string]())
	require.ErrorIs(t, err, ErrFinishNodeEdge)

	dup := NodeDoNothing[string](sg, "a")
	assert.False(t, dup.Valid())
	assert.ErrorIs(t, sg.Validate(), ErrDuplicateNode)

	other := NewSubgraph[string, string]("other")
	err = Connect(other.Start(), a, Identity[string]())
	require.ErrorIs(t, err, ErrForeignNode)

	_, err = sg.Execute(context.Background(), newRunContext(nil), "x")
	require.ErrorIs(t, err, ErrDuplicateNode)
}

func TestSealedAfterExecution(t *testing.T) {
	sg := NewSubgraph[string, string]("sealed")
	require.NoError(t, Connect(sg.Start(), sg.Finish(), Identity[string]()))

	out, err := sg.Execute(context.Background(), newRunContext(nil), "x")
	require.NoError(t, err)
	assert.Equal(t, "x", out)

	late := NodeDoNothing[string](sg, "late")
	assert.False(t, late.Valid())
	assert.ErrorIs(t, Connect(sg.Start(), sg.Finish(), Identity[string]()), ErrGraphSealed)

	// Rejected modifications surface on the next execution.
	_, err = sg.Execute(context.Background(), newRunContext(nil), "x")
	assert.ErrorIs(t, err, ErrGraphSealed)
}

func TestNestedSubgraphSharesIterations(t *testing.T) {
	inner := NewSubgraph[string, string]("inner")
	upper := AddNode(inner, "upper", func(_ context.Context, _ *RunContext, in string) (string, error) {
		return strings.ToUpper(in), nil
	})
	require.NoError(t, Connect(inner.Start(), upper, Identity[string]()))
	require.NoError(t, Connect(upper, inner.Finish(), Identity[string]()))

	outer := NewSubgraph[string, string]("outer")
	nested := AddSubgraph(outer, inner)
	require.NoError(t, Connect(outer.Start(), nested, Identity[string]()))
	require.NoError(t, Connect(nested, outer.Finish(), Transformed(func(s string) string { return s + "!" })))

	rc := newRunContext(nil)
	out, err := outer.Execute(context.Background(), rc, "hi")
	require.NoError(t, err)
	assert.Equal(t, "HI!", out)
	// outer start, inner node, inner start, upper
	assert.Equal(t, 4, rc.State.Iterations())
}

func TestNestedSubgraphCountsTowardsLimit(t *testing.T) {
	inner := NewSubgraph[int, int]("inner")
	step := NodeDoNothing[int](inner, "step")
	require.NoError(t, Connect(inner.Start(), step, Identity[int]()))
	require.NoError(t, Connect(step, inner.Finish(), Identity[int]()))

	outer := NewSubgraph[int, int]("outer")
	nested := AddSubgraph(outer, inner)
	require.NoError(t, Connect(outer.Start(), nested, Identity[int]()))
	require.NoError(t, Connect(nested, nested, Identity[int]()))

	rc := newRunContext(nil, func(rc *RunContext) { rc.MaxIterations = 10 })
	_, err := outer.Execute(context.Background(), rc, 0)

	var maxErr *MaxIterationsReachedError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 10, maxErr.Max)
}

func TestCanceledContext(t *testing.T) {
	sg := NewSubgraph[string, string]("cancel")
	require.NoError(t, Connect(sg.Start(), sg.Finish(), Identity[string]()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := sg.Execute(ctx, newRunContext(nil), "x")
	assert.ErrorIs(t, err, context.Canceled)
}
