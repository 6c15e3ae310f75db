package pipeline

import (
	"context"
	"errors"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// RunErrorHandler observes a failed run. Returning claimed=true swallows the
// error: the run then resolves without a result instead of failing.
type RunErrorHandler func(ctx context.Context, ev AgentRunErrorEvent) (claimed bool, err error)

// EnvironmentTransformer wraps an environment with a decorator.
type EnvironmentTransformer func(env core.Environment) core.Environment

// Pipeline is the central typed-handler registry. The zero value is not
// usable; create one with New.
//
// Registration is safe for concurrent use, but handlers registered after a
// run started are not guaranteed to observe events that already passed.
type Pipeline struct {
	logger logging.Logger

	agentCreated  slot[Handler[AgentCreatedEvent]]
	agentStarted  slot[Handler[AgentStartedEvent]]
	agentFinished slot[Handler[AgentFinishedEvent]]
	agentRunError slot[RunErrorHandler]
	envTransform  slot[EnvironmentTransformer]

	strategyStarted  slot[Handler[StrategyStartedEvent]]
	strategyFinished slot[Handler[StrategyFinishedEvent]]

	beforeNode slot[Handler[BeforeNodeEvent]]
	afterNode  slot[Handler[AfterNodeEvent]]

	beforeLLMCall          slot[Handler[BeforeLLMCallEvent]]
	afterLLMCall           slot[Handler[AfterLLMCallEvent]]
	beforeLLMCallWithTools slot[Handler[BeforeLLMCallEvent]]
	afterLLMCallWithTools  slot[Handler[AfterLLMCallEvent]]

	beforeToolCalls slot[Handler[BeforeToolCallsEvent]]
	afterToolCalls  slot[Handler[AfterToolCallsEvent]]

	toolCall            slot[Handler[ToolCallEvent]]
	toolValidationError slot[Handler[ToolValidationErrorEvent]]
	toolCallFailure     slot[Handler[ToolCallFailureEvent]]
	toolCallResult      slot[Handler[ToolCallResultEvent]]

	features *featureSet
}

// Options configure a Pipeline.
type Options struct {
	Logger logging.Logger
}

// New creates an empty pipeline.
func New(optFns ...func(o *Options)) *Pipeline {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{
		logger:   logging.OrNoOp(opts.Logger),
		features: &featureSet{installed: orderedmap.New[FeatureKey, *installedFeature]()},
	}
}

// Logger returns the pipeline logger.
func (p *Pipeline) Logger() logging.Logger { return p.logger }

// -------------------- agent --------------------

// InterceptAgentCreated registers the agent-created handler for key.
func (p *Pipeline) InterceptAgentCreated(key FeatureKey, h Handler[AgentCreatedEvent]) {
	p.agentCreated.set(key, h)
}

// InterceptAgentStarted registers the agent-started handler for key.
func (p *Pipeline) InterceptAgentStarted(key FeatureKey, h Handler[AgentStartedEvent]) {
	p.agentStarted.set(key, h)
}

// InterceptAgentFinished registers the agent-finished handler for key.
func (p *Pipeline) InterceptAgentFinished(key FeatureKey, h Handler[AgentFinishedEvent]) {
	p.agentFinished.set(key, h)
}

// InterceptAgentRunError registers the run-error handler for key.
func (p *Pipeline) InterceptAgentRunError(key FeatureKey, h RunErrorHandler) {
	p.agentRunError.set(key, h)
}

// InterceptEnvironment registers an environment decorator for key.
func (p *Pipeline) InterceptEnvironment(key FeatureKey, t EnvironmentTransformer) {
	p.envTransform.set(key, t)
}

// OnAgentCreated dispatches an AgentCreatedEvent.
func (p *Pipeline) OnAgentCreated(ctx context.Context, ev AgentCreatedEvent) error {
	return fire(ctx, &p.agentCreated, ev)
}

// OnAgentStarted dispatches an AgentStartedEvent.
func (p *Pipeline) OnAgentStarted(ctx context.Context, ev AgentStartedEvent) error {
	return fire(ctx, &p.agentStarted, ev)
}

// OnAgentFinished dispatches an AgentFinishedEvent.
func (p *Pipeline) OnAgentFinished(ctx context.Context, ev AgentFinishedEvent) error {
	return fire(ctx, &p.agentFinished, ev)
}

// OnAgentRunError dispatches a run error to every handler. The error counts
// as claimed when at least one handler claimed it.
func (p *Pipeline) OnAgentRunError(ctx context.Context, ev AgentRunErrorEvent) (bool, error) {
	claimed := false
	var errs []error
	for _, h := range p.agentRunError.snapshot() {
		c, err := h(ctx, ev)
		if err != nil {
			errs = append(errs, err)
		}
		claimed = claimed || c
	}
	return claimed, errors.Join(errs...)
}

// TransformEnvironment folds every registered decorator over env, in
// registration order: the last registered decorator is the outermost.
func (p *Pipeline) TransformEnvironment(env core.Environment) core.Environment {
	for _, t := range p.envTransform.snapshot() {
		env = t(env)
	}
	return env
}

// -------------------- strategy --------------------

// InterceptStrategyStarted registers the strategy-started handler for key.
func (p *Pipeline) InterceptStrategyStarted(key FeatureKey, h Handler[StrategyStartedEvent]) {
	p.strategyStarted.set(key, h)
}

// InterceptStrategyFinished registers the strategy-finished handler for key.
func (p *Pipeline) InterceptStrategyFinished(key FeatureKey, h Handler[StrategyFinishedEvent]) {
	p.strategyFinished.set(key, h)
}

// OnStrategyStarted dispatches a StrategyStartedEvent.
func (p *Pipeline) OnStrategyStarted(ctx context.Context, ev StrategyStartedEvent) error {
	return fire(ctx, &p.strategyStarted, ev)
}

// OnStrategyFinished dispatches a StrategyFinishedEvent.
func (p *Pipeline) OnStrategyFinished(ctx context.Context, ev StrategyFinishedEvent) error {
	return fire(ctx, &p.strategyFinished, ev)
}

// -------------------- node --------------------

// InterceptBeforeNode registers the before-node handler for key.
func (p *Pipeline) InterceptBeforeNode(key FeatureKey, h Handler[BeforeNodeEvent]) {
	p.beforeNode.set(key, h)
}

// InterceptAfterNode registers the after-node handler for key.
func (p *Pipeline) InterceptAfterNode(key FeatureKey, h Handler[AfterNodeEvent]) {
	p.afterNode.set(key, h)
}

// OnBeforeNode dispatches a BeforeNodeEvent.
func (p *Pipeline) OnBeforeNode(ctx context.Context, ev BeforeNodeEvent) error {
	return fire(ctx, &p.beforeNode, ev)
}

// OnAfterNode dispatches an AfterNodeEvent.
func (p *Pipeline) OnAfterNode(ctx context.Context, ev AfterNodeEvent) error {
	return fire(ctx, &p.afterNode, ev)
}

// -------------------- model calls --------------------

// InterceptBeforeLLMCall registers the handler for model requests without tools.
func (p *Pipeline) InterceptBeforeLLMCall(key FeatureKey, h Handler[BeforeLLMCallEvent]) {
	p.beforeLLMCall.set(key, h)
}

// InterceptAfterLLMCall registers the handler for model replies to requests without tools.
func (p *Pipeline) InterceptAfterLLMCall(key FeatureKey, h Handler[AfterLLMCallEvent]) {
	p.afterLLMCall.set(key, h)
}

// InterceptBeforeLLMCallWithTools registers the handler for model requests offering tools.
func (p *Pipeline) InterceptBeforeLLMCallWithTools(key FeatureKey, h Handler[BeforeLLMCallEvent]) {
	p.beforeLLMCallWithTools.set(key, h)
}

// InterceptAfterLLMCallWithTools registers the handler for model replies to requests offering tools.
func (p *Pipeline) InterceptAfterLLMCallWithTools(key FeatureKey, h Handler[AfterLLMCallEvent]) {
	p.afterLLMCallWithTools.set(key, h)
}

// OnBeforeLLMCall dispatches to the category matching the request: the
// with-tools handlers when the request offers tools, the plain handlers
// otherwise.
func (p *Pipeline) OnBeforeLLMCall(ctx context.Context, ev BeforeLLMCallEvent) error {
	if len(ev.Request.Tools) > 0 {
		return fire(ctx, &p.beforeLLMCallWithTools, ev)
	}
	return fire(ctx, &p.beforeLLMCall, ev)
}

// OnAfterLLMCall dispatches like OnBeforeLLMCall.
func (p *Pipeline) OnAfterLLMCall(ctx context.Context, ev AfterLLMCallEvent) error {
	if len(ev.Request.Tools) > 0 {
		return fire(ctx, &p.afterLLMCallWithTools, ev)
	}
	return fire(ctx, &p.afterLLMCall, ev)
}

// -------------------- tool batches --------------------

// InterceptBeforeToolCalls registers the before-batch handler for key.
func (p *Pipeline) InterceptBeforeToolCalls(key FeatureKey, h Handler[BeforeToolCallsEvent]) {
	p.beforeToolCalls.set(key, h)
}

// InterceptAfterToolCalls registers the after-batch handler for key.
func (p *Pipeline) InterceptAfterToolCalls(key FeatureKey, h Handler[AfterToolCallsEvent]) {
	p.afterToolCalls.set(key, h)
}

// OnBeforeToolCalls dispatches a BeforeToolCallsEvent.
func (p *Pipeline) OnBeforeToolCalls(ctx context.Context, ev BeforeToolCallsEvent) error {
	return fire(ctx, &p.beforeToolCalls, ev)
}

// OnAfterToolCalls dispatches an AfterToolCallsEvent.
func (p *Pipeline) OnAfterToolCalls(ctx context.Context, ev AfterToolCallsEvent) error {
	return fire(ctx, &p.afterToolCalls, ev)
}

// -------------------- tool calls --------------------

// InterceptToolCall registers the per-call handler for key.
func (p *Pipeline) InterceptToolCall(key FeatureKey, h Handler[ToolCallEvent]) {
	p.toolCall.set(key, h)
}

// InterceptToolValidationError registers the validation-failure handler for key.
func (p *Pipeline) InterceptToolValidationError(key FeatureKey, h Handler[ToolValidationErrorEvent]) {
	p.toolValidationError.set(key, h)
}

// InterceptToolCallFailure registers the execution-failure handler for key.
func (p *Pipeline) InterceptToolCallFailure(key FeatureKey, h Handler[ToolCallFailureEvent]) {
	p.toolCallFailure.set(key, h)
}

// InterceptToolCallResult registers the success handler for key.
func (p *Pipeline) InterceptToolCallResult(key FeatureKey, h Handler[ToolCallResultEvent]) {
	p.toolCallResult.set(key, h)
}

// OnToolCall dispatches a ToolCallEvent.
func (p *Pipeline) OnToolCall(ctx context.Context, ev ToolCallEvent) error {
	return fire(ctx, &p.toolCall, ev)
}

// OnToolValidationError dispatches a ToolValidationErrorEvent.
func (p *Pipeline) OnToolValidationError(ctx context.Context, ev ToolValidationErrorEvent) error {
	return fire(ctx, &p.toolValidationError, ev)
}

// OnToolCallFailure dispatches a ToolCallFailureEvent.
func (p *Pipeline) OnToolCallFailure(ctx context.Context, ev ToolCallFailureEvent) error {
	return fire(ctx, &p.toolCallFailure, ev)
}

// OnToolCallResult dispatches a ToolCallResultEvent.
func (p *Pipeline) OnToolCallResult(ctx context.Context, ev ToolCallResultEvent) error {
	return fire(ctx, &p.toolCallResult, ev)
}

// Uninstall removes every handler registered under key.
func (p *Pipeline) Uninstall(key FeatureKey) {
	for _, s := range p.slots() {
		s.remove(key)
	}
}

func (p *Pipeline) slots() []keyedSlot {
	return []keyedSlot{
		&p.agentCreated, &p.agentStarted, &p.agentFinished, &p.agentRunError, &p.envTransform,
		&p.strategyStarted, &p.strategyFinished,
		&p.beforeNode, &p.afterNode,
		&p.beforeLLMCall, &p.afterLLMCall, &p.beforeLLMCallWithTools, &p.afterLLMCallWithTools,
		&p.beforeToolCalls, &p.afterToolCalls,
		&p.toolCall, &p.toolValidationError, &p.toolCallFailure, &p.toolCallResult,
	}
}

// versions snapshots the write count of key in every slot.
func (p *Pipeline) versions(key FeatureKey) []uint64 {
	slots := p.slots()
	out := make([]uint64, len(slots))
	for i, s := range slots {
		out[i], _ = s.version(key)
	}
	return out
}

// dropStale removes key from every slot it was not set in since before.
func (p *Pipeline) dropStale(key FeatureKey, before []uint64) {
	for i, s := range p.slots() {
		if v, ok := s.version(key); ok && v == before[i] {
			s.remove(key)
		}
	}
}
