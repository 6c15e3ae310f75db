package agent

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/pipeline"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

type calcArgs struct {
	A int `json:"a"`
	B int `json:"b"`
}

func calcRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg, err := tool.NewRegistry(tool.NewTypedTool("calc", "add two numbers",
		func(_ *core.ToolContext, in calcArgs) (int, error) { return in.A + in.B, nil }))
	require.NoError(t, err)
	return reg
}

// mockExecutor is a model.Executor backed by testify's mock.
type mockExecutor struct {
	mock.Mock
}

func (m *mockExecutor) Execute(ctx context.Context, req model.Request) ([]model.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).([]model.Response)
	return resp, args.Error(1)
}

func (m *mockExecutor) ExecuteStreaming(ctx context.Context, req model.Request) (<-chan string, <-chan error) {
	m.Called(ctx, req)
	chunks, errs := make(chan string), make(chan error)
	close(chunks)
	close(errs)
	return chunks, errs
}

// lastHasToolResults matches requests whose last message carries tool results.
func lastHasToolResults(want bool) func(model.Request) bool {
	return func(req model.Request) bool {
		if len(req.Messages) == 0 {
			return false
		}
		return (len(req.Messages[len(req.Messages)-1].ToolResults()) > 0) == want
	}
}

// recorder is a feature logging the lifecycle events it observes.
type recorder struct {
	mu     sync.Mutex
	events []string
	claim  bool
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) Key() pipeline.FeatureKey { return "recorder" }

func (r *recorder) NewConfig() pipeline.FeatureConfig { return pipeline.FeatureConfig{} }

func (r *recorder) Install(_ pipeline.FeatureConfig, p *pipeline.Pipeline) error {
	p.InterceptAgentCreated(r.Key(), func(context.Context, pipeline.AgentCreatedEvent) error {
		r.add("created")
		return nil
	})
	p.InterceptAgentStarted(r.Key(), func(context.Context, pipeline.AgentStartedEvent) error {
		r.add("started")
		return nil
	})
	p.InterceptStrategyStarted(r.Key(), func(context.Context, pipeline.StrategyStartedEvent) error {
		r.add("strategy_started")
		return nil
	})
	p.InterceptBeforeNode(r.Key(), func(_ context.Context, ev pipeline.BeforeNodeEvent) error {
		r.add("before:" + ev.Node)
		return nil
	})
	p.InterceptAfterNode(r.Key(), func(_ context.Context, ev pipeline.AfterNodeEvent) error {
		r.add("after:" + ev.Node)
		return nil
	})
	p.InterceptStrategyFinished(r.Key(), func(context.Context, pipeline.StrategyFinishedEvent) error {
		r.add("strategy_finished")
		return nil
	})
	p.InterceptAgentFinished(r.Key(), func(_ context.Context, ev pipeline.AgentFinishedEvent) error {
		r.add("finished:" + ev.Result)
		return nil
	})
	p.InterceptAgentRunError(r.Key(), func(context.Context, pipeline.AgentRunErrorEvent) (bool, error) {
		r.add("run_error")
		return r.claim, nil
	})
	return nil
}

func echoStrategy() *graph.Subgraph[string, string] {
	sg := graph.NewSubgraph[string, string]("echo")
	nodeA := graph.NodeDoNothing[string](sg, "nodeA")
	_ = graph.Connect(sg.Start(), nodeA, graph.Identity[string]())
	_ = graph.Connect(nodeA, sg.Finish(), graph.Identity[string]())
	return sg
}

func stuckStrategy() *graph.Subgraph[string, string] {
	sg := graph.NewSubgraph[string, string]("stuck")
	nodeA := graph.NodeDoNothing[string](sg, "nodeA")
	_ = graph.Connect(sg.Start(), nodeA, graph.Identity[string]())
	_ = graph.Connect(nodeA, sg.Finish(), graph.OnCondition(func(context.Context, *graph.RunContext, string) bool {
		return false
	}))
	return sg
}

func TestRunAndGetResultLifecycle(t *testing.T) {
	ctx := context.Background()
	a := New(echoStrategy(), model.NewMockExecutor())

	rec := &recorder{}
	require.NoError(t, Install[pipeline.FeatureConfig](a, rec, nil))

	out, ok, err := a.RunAndGetResult(ctx, "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", out)

	assert.Equal(t, []string{
		"created",
		"started",
		"strategy_started",
		"before:__start__",
		"after:__start__",
		"before:nodeA",
		"after:nodeA",
		"strategy_finished",
		"finished:x",
	}, rec.Events())
}

func TestAgentCreatedFiresOnce(t *testing.T) {
	ctx := context.Background()
	a := New(echoStrategy(), model.NewMockExecutor())
	rec := &recorder{}
	require.NoError(t, Install[pipeline.FeatureConfig](a, rec, nil))

	require.NoError(t, a.Run(ctx, "one"))
	require.NoError(t, a.Run(ctx, "two"))

	created := 0
	for _, ev := range rec.Events() {
		if ev == "created" {
			created++
		}
	}
	assert.Equal(t, 1, created)
}

func TestRunIsSingleFlight(t *testing.T) {
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	sg := graph.NewSubgraph[string, string]("blocking")
	block := graph.AddNode(sg, "block", func(_ context.Context, _ *graph.RunContext, in string) (string, error) {
		close(entered)
		<-release
		return in, nil
	})
	_ = graph.Connect(sg.Start(), block, graph.Identity[string]())
	_ = graph.Connect(block, sg.Finish(), graph.Identity[string]())

	a := New(sg, model.NewMockExecutor())

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, "first") }()
	<-entered

	assert.ErrorIs(t, a.Run(ctx, "second"), ErrAgentRunning)
	assert.ErrorIs(t, Install[pipeline.FeatureConfig](a, &recorder{}, nil), ErrAgentRunning)

	close(release)
	require.NoError(t, <-done)
}

func TestUnclaimedFailurePropagates(t *testing.T) {
	ctx := context.Background()
	a := New(stuckStrategy(), model.NewMockExecutor())
	rec := &recorder{}
	require.NoError(t, Install[pipeline.FeatureConfig](a, rec, nil))

	out, ok, err := a.RunAndGetResult(ctx, "x")

	var stuck *graph.StuckInNodeError
	require.ErrorAs(t, err, &stuck)
	assert.False(t, ok)
	assert.Empty(t, out)
	assert.Contains(t, rec.Events(), "run_error")
	assert.NotContains(t, rec.Events(), "finished:")
}

func TestClaimedFailureResolvesWithoutResult(t *testing.T) {
	ctx := context.Background()
	a := New(stuckStrategy(), model.NewMockExecutor())
	require.NoError(t, Install[pipeline.FeatureConfig](a, &recorder{claim: true}, nil))

	out, ok, err := a.RunAndGetResult(ctx, "x")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, out)
}

func TestMaxIterationsFromConfig(t *testing.T) {
	sg := graph.NewSubgraph[string, string]("loop")
	loop := graph.NodeDoNothing[string](sg, "loop")
	_ = graph.Connect(sg.Start(), loop, graph.Identity[string]())
	_ = graph.Connect(loop, loop, graph.Identity[string]())

	a := New(sg, model.NewMockExecutor(), func(o *Options) { o.Config.MaxIterations = 3 })
	err := a.Run(context.Background(), "x")

	var maxErr *graph.MaxIterationsReachedError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 3, maxErr.Max)
}

func TestCalcToolEndToEnd(t *testing.T) {
	ctx := context.Background()
	exec := model.NewMockExecutor()
	exec.Enqueue(model.ToolCallResponse(
		core.ToolCall{ID: "1", Name: "calc", Arguments: `{"a":20,"b":22}`},
		core.ToolCall{ID: "2", Name: "missing", Arguments: `{}`},
	))
	exec.Enqueue(model.TextResponse("The answer is 42"))

	store := session.NewInMemoryStore()
	a := New(graph.SingleRunStrategy("calc"), exec, func(o *Options) {
		o.Registry = calcRegistry(t)
		o.Config.Model = "mock-model"
		o.SessionStore = store
		o.SessionID = "conv-1"
	})

	out, ok, err := a.RunAndGetResult(ctx, "what is 20+22?")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "The answer is 42", out)

	transcript, err := store.Load(ctx, "conv-1")
	require.NoError(t, err)
	require.Len(t, transcript, 4)

	results := transcript[2].ToolResults()
	require.Len(t, results, 2)
	assert.Equal(t, core.ToolResultSuccess, results[0].Status)
	assert.Equal(t, "42", results[0].Content)
	assert.Equal(t, core.ToolResultNotFound, results[1].Status)
	assert.Contains(t, results[1].Content, `Tool "missing" not found`)

	reqs := exec.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "mock-model", reqs[0].Model)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "calc", reqs[0].Tools[0].Name)
}

func TestInstructionAndSessionContinuity(t *testing.T) {
	ctx := context.Background()
	exec := model.NewMockExecutor()
	store := session.NewInMemoryStore()

	a := New(graph.SingleRunStrategy("chat"), exec, func(o *Options) {
		o.Instruction = NewInstructionFromText("You are {{.name}}.")
		o.PromptVars = map[string]any{"name": "Calcy"}
		o.SessionStore = store
		o.SessionID = "conv"
	})

	_, _, err := a.RunAndGetResult(ctx, "hi")
	require.NoError(t, err)
	_, _, err = a.RunAndGetResult(ctx, "again")
	require.NoError(t, err)

	reqs := exec.Requests()
	require.Len(t, reqs, 2)
	first := reqs[0].Messages
	require.Len(t, first, 2)
	assert.Equal(t, core.RoleSystem, first[0].Role)
	assert.Equal(t, "You are Calcy.", first[0].Text())

	// The second run continues the stored conversation with a single
	// system message.
	second := reqs[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, "You are Calcy.", second[0].Text())
	assert.Equal(t, "again", second[3].Text())
}

func TestEnvironmentTransform(t *testing.T) {
	ctx := context.Background()
	exec := model.NewMockExecutor()
	exec.Enqueue(model.ToolCallResponse(core.ToolCall{ID: "1", Name: "calc", Arguments: `{"a":1,"b":1}`}))
	exec.Enqueue(model.TextResponse("2"))

	a := New(graph.SingleRunStrategy("calc"), exec, func(o *Options) { o.Registry = calcRegistry(t) })

	counter := &countingEnv{}
	a.Pipeline().InterceptEnvironment("counter", func(env core.Environment) core.Environment {
		counter.Environment = env
		return counter
	})

	out, _, err := a.RunAndGetResult(ctx, "1+1")
	require.NoError(t, err)
	assert.Equal(t, "2", out)
	assert.Equal(t, 1, counter.calls)
	assert.Equal(t, 1, counter.terminations)
}

type countingEnv struct {
	core.Environment
	calls        int
	terminations int
}

func (c *countingEnv) ExecuteTools(ctx context.Context, calls []core.ToolCall) ([]core.ToolResult, error) {
	c.calls++
	return c.Environment.ExecuteTools(ctx, calls)
}

func (c *countingEnv) SendTermination(ctx context.Context, result string) error {
	c.terminations++
	return c.Environment.SendTermination(ctx, result)
}

// closingProcessor records its lifecycle.
type closingProcessor struct {
	mu          sync.Mutex
	initialized bool
	closed      bool
}

func (p *closingProcessor) Initialize(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.initialized = true
	return nil
}

func (p *closingProcessor) Process(context.Context, pipeline.FeatureMessage) error { return nil }

func (p *closingProcessor) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestCloseReleasesFeatures(t *testing.T) {
	ctx := context.Background()
	a := New(echoStrategy(), model.NewMockExecutor())

	proc := &closingProcessor{}
	require.NoError(t, Install[pipeline.FeatureConfig](a, &recorder{}, func(cfg *pipeline.FeatureConfig) {
		cfg.AddProcessor(proc)
	}))

	require.NoError(t, a.Run(ctx, "x"))
	proc.mu.Lock()
	assert.True(t, proc.initialized)
	proc.mu.Unlock()

	require.NoError(t, a.Close(ctx))
	require.NoError(t, a.Close(ctx))
	proc.mu.Lock()
	assert.True(t, proc.closed)
	proc.mu.Unlock()

	assert.ErrorIs(t, a.Run(ctx, "x"), ErrAgentClosed)
}

// failingProcessor never becomes ready.
type failingProcessor struct{ closingProcessor }

func (p *failingProcessor) Initialize(context.Context) error { return errors.New("unreachable backend") }

func TestRunWaitsForFeatures(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	a := New(echoStrategy(), model.NewMockExecutor())
	require.NoError(t, Install[pipeline.FeatureConfig](a, &recorder{}, func(cfg *pipeline.FeatureConfig) {
		cfg.AddProcessor(&failingProcessor{})
	}))

	err := a.Run(ctx, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unreachable backend")
}

func TestGenericEnvironmentTerminatesOnce(t *testing.T) {
	env := NewGenericEnvironment(nil, "run", nil)
	require.NoError(t, env.SendTermination(context.Background(), "a"))
	assert.ErrorIs(t, env.SendTermination(context.Background(), "b"), ErrAlreadyTerminated)

	res, ok := env.Result()
	assert.True(t, ok)
	assert.Equal(t, "a", res)

	require.NoError(t, env.ReportProblem(context.Background(), errors.New("x")))
	assert.Len(t, env.Problems(), 1)
}

func TestSingleRunCallsModelTwicePerToolRound(t *testing.T) {
	ctx := context.Background()
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.MatchedBy(lastHasToolResults(false))).
		Return([]model.Response{model.ToolCallResponse(core.ToolCall{Name: "calc", Arguments: `{"a":2,"b":3}`})}, nil).
		Once()
	exec.On("Execute", mock.Anything, mock.MatchedBy(lastHasToolResults(true))).
		Return([]model.Response{model.TextResponse("5")}, nil).
		Once()

	a := New(graph.SingleRunStrategy("calc"), exec, func(o *Options) { o.Registry = calcRegistry(t) })
	out, ok, err := a.RunAndGetResult(ctx, "2+3?")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", out)

	exec.AssertExpectations(t)
	exec.AssertNumberOfCalls(t, "Execute", 2)
	exec.AssertNotCalled(t, "ExecuteStreaming", mock.Anything, mock.Anything)
}

func TestFailingRunStopsCallingModel(t *testing.T) {
	ctx := context.Background()
	exec := &mockExecutor{}
	exec.On("Execute", mock.Anything, mock.Anything).
		Return(nil, errors.New("rate limited")).
		Once()

	a := New(graph.SingleRunStrategy("calc"), exec, func(o *Options) { o.Registry = calcRegistry(t) })
	_, ok, err := a.RunAndGetResult(ctx, "2+3?")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "rate limited")

	exec.AssertNumberOfCalls(t, "Execute", 1)
}

func TestStuckStrategyNeverCallsModel(t *testing.T) {
	exec := &mockExecutor{}
	a := New(stuckStrategy(), exec)

	_, _, err := a.RunAndGetResult(context.Background(), "x")
	require.Error(t, err)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}
