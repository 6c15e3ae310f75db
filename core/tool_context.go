package core

import (
	"context"

	"github.com/hupe1980/agentgraph/logging"
)

// ToolContext provides a constrained surface for tool implementations invoked
// by the dispatcher: the cancellation context, correlation identifiers, the
// run's KeyValueStore and a logger. It is created per call and must not be
// retained after the tool returns.
type ToolContext struct {
	ctx   context.Context
	runID string
	call  ToolCall
	store *KeyValueStore

	*loggerAdapter
}

// NewToolContext constructs a tool context for one call. A nil store is
// replaced with an empty one so tools never observe a nil store.
func NewToolContext(ctx context.Context, runID string, call ToolCall, store *KeyValueStore, logger logging.Logger) *ToolContext {
	if store == nil {
		store = NewKeyValueStore()
	}
	return &ToolContext{
		ctx:   ctx,
		runID: runID,
		call:  call,
		store: store,
		loggerAdapter: newLoggerAdapter(logging.With(logger,
			"run_id", runID, "tool", call.Name, "tool_call_id", call.ID)),
	}
}

// Context returns the context associated with the tool invocation.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// RunID returns the agent run the call belongs to.
func (tc *ToolContext) RunID() string { return tc.runID }

// CallID returns the tool call identifier (correlates model request and result).
func (tc *ToolContext) CallID() string { return tc.call.ID }

// ToolName returns the name the call was addressed to.
func (tc *ToolContext) ToolName() string { return tc.call.Name }

// Store returns the run's key/value store.
func (tc *ToolContext) Store() *KeyValueStore { return tc.store }

// Logger returns the logger associated with the tool invocation.
func (tc *ToolContext) Logger() logging.Logger { return tc.loggerAdapter.Logger() }
