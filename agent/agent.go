package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/dispatch"
	"github.com/hupe1980/agentgraph/graph"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/pipeline"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

var (
	// ErrAgentRunning is returned when Run is called while a run is active.
	ErrAgentRunning = errors.New("agent: a run is already in progress")
	// ErrAgentClosed is returned by Run after Close.
	ErrAgentClosed = errors.New("agent: closed")
)

// Config defines the tuning parameters of an Agent.
type Config struct {
	// ID identifies the agent on pipeline events. Defaults to a random UUID.
	ID string
	// Model is the model id passed to the executor.
	Model string
	// FixingModel repairs malformed structured output. Empty means Model.
	FixingModel string
	// MaxIterations bounds node executions per run.
	MaxIterations int
	// StructuredRetries bounds structured-output repair attempts.
	StructuredRetries int
	// ToolConcurrency bounds streaming tool dispatch.
	ToolConcurrency int
	// MaxParallelTools bounds one tool batch; 0 runs the whole batch at once.
	MaxParallelTools int
}

// DefaultConfig holds the defaults applied by New.
var DefaultConfig = Config{
	MaxIterations:     graph.DefaultMaxIterations,
	StructuredRetries: session.DefaultStructuredRetries,
	ToolConcurrency:   dispatch.DefaultStreamConcurrency,
}

// Options configure an Agent.
type Options struct {
	Config Config

	// Registry holds the tools offered to the model. Defaults to an empty
	// registry.
	Registry *tool.Registry

	// Pipeline receives every lifecycle event. Defaults to a new pipeline
	// sharing the agent's logger.
	Pipeline *pipeline.Pipeline

	// Instruction becomes the leading system message of a new conversation.
	Instruction Instruction
	// PromptVars are available to the instruction template.
	PromptVars map[string]any

	// SessionStore persists the transcript between runs under SessionID.
	// Without a store every run starts with an empty conversation.
	SessionStore session.Store
	SessionID    string

	Logger logging.Logger
}

// Agent executes a strategy graph. Runs are single-flight.
type Agent struct {
	id       string
	strategy *graph.Subgraph[string, string]
	executor model.Executor
	registry *tool.Registry
	pipeline *pipeline.Pipeline
	opts     Options
	logger   logging.Logger

	runMu   sync.Mutex
	created bool
	closed  atomic.Bool
}

// New creates an agent running strategy against executor.
func New(strategy *graph.Subgraph[string, string], executor model.Executor, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	if opts.Config.ID == "" {
		opts.Config.ID = uuid.NewString()
	}
	if opts.Config.MaxIterations <= 0 {
		opts.Config.MaxIterations = DefaultConfig.MaxIterations
	}
	if opts.Registry == nil {
		opts.Registry = tool.MustNewRegistry()
	}
	if opts.Pipeline == nil {
		logger := opts.Logger
		opts.Pipeline = pipeline.New(func(o *pipeline.Options) { o.Logger = logger })
	}

	return &Agent{
		id:       opts.Config.ID,
		strategy: strategy,
		executor: executor,
		registry: opts.Registry,
		pipeline: opts.Pipeline,
		opts:     opts,
		logger:   logging.With(opts.Logger, "agent_id", opts.Config.ID),
	}
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// Pipeline returns the agent's pipeline.
func (a *Agent) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *tool.Registry { return a.registry }

// Install registers a feature with the agent's pipeline. Features must be
// installed before a run starts; installing during a run fails with
// ErrAgentRunning.
func Install[C any](a *Agent, f pipeline.Feature[C], configure func(cfg *C)) error {
	if !a.runMu.TryLock() {
		return ErrAgentRunning
	}
	defer a.runMu.Unlock()

	return pipeline.Install(a.pipeline, f, configure)
}

// Run executes the strategy once with input. The result is delivered to the
// environment through SendTermination and to OnAgentFinished handlers.
func (a *Agent) Run(ctx context.Context, input string) error {
	_, _, err := a.run(ctx, input)
	return err
}

// RunAndGetResult executes the strategy once and returns its result. ok is
// false when the run failed and a run-error handler claimed the failure.
func (a *Agent) RunAndGetResult(ctx context.Context, input string) (result string, ok bool, err error) {
	return a.run(ctx, input)
}

// Close releases the processors of installed features. Runs fail with
// ErrAgentClosed afterwards.
func (a *Agent) Close(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.closed.Swap(true) {
		return nil
	}
	return a.pipeline.CloseFeatures(ctx)
}

func (a *Agent) run(ctx context.Context, input string) (string, bool, error) {
	if !a.runMu.TryLock() {
		return "", false, ErrAgentRunning
	}
	defer a.runMu.Unlock()

	if a.closed.Load() {
		return "", false, ErrAgentClosed
	}

	if err := a.pipeline.AwaitFeaturesReady(ctx); err != nil {
		return "", false, fmt.Errorf("features not ready: %w", err)
	}

	if !a.created {
		if err := a.pipeline.OnAgentCreated(ctx, pipeline.AgentCreatedEvent{
			AgentID:  a.id,
			Strategy: a.strategy.Name(),
		}); err != nil {
			return "", false, err
		}
		a.created = true
	}

	runID := uuid.NewString()
	log := logging.With(a.logger, "run_id", runID)
	start := time.Now()

	scope, err := a.newScope(ctx, runID, log)
	if err != nil {
		return "", false, err
	}
	defer scope.rc.State.Close()

	log.Info("agent.run.start", "strategy", a.strategy.Name())

	result, err := a.execute(ctx, scope, input)
	if err != nil {
		return a.fail(ctx, scope, err)
	}

	dur := time.Since(start)
	log.Info("agent.run.finished", "duration_ms", dur.Milliseconds())

	if err := a.pipeline.OnAgentFinished(ctx, pipeline.AgentFinishedEvent{
		RunID:    runID,
		AgentID:  a.id,
		Strategy: a.strategy.Name(),
		Result:   result,
		Duration: dur,
	}); err != nil {
		return "", false, err
	}
	return result, true, nil
}

// runScope holds the per-run collaborators.
type runScope struct {
	rc  *graph.RunContext
	env *GenericEnvironment
	log logging.Logger
}

func (a *Agent) newScope(ctx context.Context, runID string, log logging.Logger) (*runScope, error) {
	cfg := a.opts.Config
	store := core.NewKeyValueStore()

	d := dispatch.New(a.registry, func(o *dispatch.Options) {
		o.Pipeline = a.pipeline
		o.Store = store
		o.Logger = log
		o.MaxParallel = cfg.MaxParallelTools
		o.StreamConcurrency = cfg.ToolConcurrency
	})
	env := NewGenericEnvironment(d, runID, log)

	transcript, err := a.initialTranscript(ctx)
	if err != nil {
		return nil, err
	}

	tools := a.registry.Descriptors()
	llm := session.NewLLMContext(a.executor, cfg.Model, func(o *session.Options) {
		o.RunID = runID
		o.Transcript = transcript
		o.Tools = tools
		o.FixingModel = cfg.FixingModel
		o.StructuredRetries = cfg.StructuredRetries
		o.Pipeline = a.pipeline
		o.Logger = log
	})

	rc := &graph.RunContext{
		RunID:         runID,
		AgentID:       a.id,
		Strategy:      a.strategy.Name(),
		LLM:           llm,
		Environment:   a.pipeline.TransformEnvironment(env),
		Pipeline:      a.pipeline,
		State:         core.NewStateManager(),
		Store:         store,
		Tools:         tools,
		MaxIterations: cfg.MaxIterations,
		Logger:        log,
	}
	return &runScope{rc: rc, env: env, log: log}, nil
}

// initialTranscript loads the stored conversation and prepends the rendered
// instruction when the conversation has no system message yet.
func (a *Agent) initialTranscript(ctx context.Context) ([]core.Message, error) {
	var transcript []core.Message
	if a.opts.SessionStore != nil && a.opts.SessionID != "" {
		msgs, err := a.opts.SessionStore.Load(ctx, a.opts.SessionID)
		if err != nil {
			return nil, fmt.Errorf("load session %q: %w", a.opts.SessionID, err)
		}
		transcript = msgs
	}

	if a.opts.Instruction.IsZero() || hasSystemMessage(transcript) {
		return transcript, nil
	}
	text, err := a.opts.Instruction.Resolve(ctx, a.opts.PromptVars)
	if err != nil {
		return nil, fmt.Errorf("resolve instruction: %w", err)
	}
	if text == "" {
		return transcript, nil
	}
	return append([]core.Message{core.NewSystemMessage(text)}, transcript...), nil
}

func (a *Agent) execute(ctx context.Context, s *runScope, input string) (string, error) {
	rc := s.rc

	if err := a.pipeline.OnAgentStarted(ctx, pipeline.AgentStartedEvent{
		RunID:    rc.RunID,
		AgentID:  a.id,
		Strategy: rc.Strategy,
		Input:    input,
	}); err != nil {
		return "", err
	}
	if err := a.pipeline.OnStrategyStarted(ctx, pipeline.StrategyStartedEvent{
		RunID:    rc.RunID,
		Strategy: rc.Strategy,
	}); err != nil {
		return "", err
	}

	result, err := a.strategy.Execute(ctx, rc, input)
	if err != nil {
		return "", err
	}

	if err := rc.Environment.SendTermination(ctx, result); err != nil {
		return "", err
	}
	if err := a.pipeline.OnStrategyFinished(ctx, pipeline.StrategyFinishedEvent{
		RunID:    rc.RunID,
		Strategy: rc.Strategy,
		Result:   result,
	}); err != nil {
		return "", err
	}

	if a.opts.SessionStore != nil && a.opts.SessionID != "" {
		if err := a.opts.SessionStore.Save(ctx, a.opts.SessionID, rc.LLM.Transcript()); err != nil {
			return "", fmt.Errorf("save session %q: %w", a.opts.SessionID, err)
		}
	}
	return result, nil
}

// fail reports err to the environment and the run-error handlers. A claimed
// failure ends the run without result and without error.
func (a *Agent) fail(ctx context.Context, s *runScope, err error) (string, bool, error) {
	if rerr := s.rc.Environment.ReportProblem(ctx, err); rerr != nil {
		s.log.Warn("agent.run.report_failed", "error", rerr)
	}

	claimed, herr := a.pipeline.OnAgentRunError(ctx, pipeline.AgentRunErrorEvent{
		RunID:   s.rc.RunID,
		AgentID: a.id,
		Err:     err,
	})
	if herr != nil {
		s.log.Warn("agent.run.error_handler_failed", "error", herr)
	}
	if claimed {
		s.log.Info("agent.run.error_claimed", "error", err)
		return "", false, nil
	}

	s.log.Error("agent.run.failed", "error", err)
	return "", false, errors.Join(err, herr)
}

func hasSystemMessage(msgs []core.Message) bool {
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			return true
		}
	}
	return false
}
