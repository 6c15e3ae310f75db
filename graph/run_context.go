package graph

import (
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/pipeline"
	"github.com/hupe1980/agentgraph/session"
)

// DefaultMaxIterations bounds node executions per run when RunContext leaves
// MaxIterations unset.
const DefaultMaxIterations = 50

// RunContext carries everything a node body may need during one agent run.
// The agent builds it once per run; subgraphs derive copies with a different
// LLM context when they restrict the visible tools.
type RunContext struct {
	RunID    string
	AgentID  string
	Strategy string

	// LLM holds the conversation state of the run.
	LLM *session.LLMContext
	// Environment executes tools and receives problems and termination.
	Environment core.Environment
	// Pipeline receives the node hooks. Optional.
	Pipeline *pipeline.Pipeline
	// State is the run-wide iteration counter shared by nested subgraphs.
	State *core.StateManager
	// Store is the run-scoped key/value store.
	Store *core.KeyValueStore
	// Tools is the full tool list of the agent. Tool selections filter the
	// tools of LLM instead, which may already be restricted.
	Tools []core.ToolDescriptor

	MaxIterations int
	Logger        logging.Logger
}

// withLLM returns a shallow copy bound to another LLM context.
func (rc *RunContext) withLLM(llm *session.LLMContext) *RunContext {
	cp := *rc
	cp.LLM = llm
	return &cp
}

func (rc *RunContext) maxIterations() int {
	if rc.MaxIterations <= 0 {
		return DefaultMaxIterations
	}
	return rc.MaxIterations
}

func (rc *RunContext) logger() logging.Logger {
	return logging.OrNoOp(rc.Logger)
}
