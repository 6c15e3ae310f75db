package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/dispatch"
	"github.com/hupe1980/agentgraph/logging"
)

// ErrAlreadyTerminated is returned when a run signals termination twice.
var ErrAlreadyTerminated = errors.New("agent: termination already sent")

// GenericEnvironment executes tools through a dispatcher, records reported
// problems and captures the termination result of one run.
type GenericEnvironment struct {
	dispatcher *dispatch.Dispatcher
	runID      string
	logger     logging.Logger

	mu         sync.Mutex
	problems   []error
	result     string
	terminated bool
}

var _ core.Environment = (*GenericEnvironment)(nil)

// NewGenericEnvironment creates the environment of one run.
func NewGenericEnvironment(d *dispatch.Dispatcher, runID string, logger logging.Logger) *GenericEnvironment {
	return &GenericEnvironment{
		dispatcher: d,
		runID:      runID,
		logger:     logging.OrNoOp(logger),
	}
}

// ExecuteTools dispatches the calls. Tool failures are results, never errors.
func (e *GenericEnvironment) ExecuteTools(ctx context.Context, calls []core.ToolCall) ([]core.ToolResult, error) {
	return e.dispatcher.ExecuteTools(ctx, e.runID, calls), nil
}

// ReportProblem records a run failure.
func (e *GenericEnvironment) ReportProblem(_ context.Context, err error) error {
	e.mu.Lock()
	e.problems = append(e.problems, err)
	e.mu.Unlock()

	e.logger.Error("agent.run.problem", "run_id", e.runID, "error", err)
	return nil
}

// SendTermination records the run result. It may be called once.
func (e *GenericEnvironment) SendTermination(_ context.Context, result string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.terminated {
		return ErrAlreadyTerminated
	}
	e.terminated = true
	e.result = result
	return nil
}

// Result returns the termination result, if any.
func (e *GenericEnvironment) Result() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.result, e.terminated
}

// Problems returns the reported failures.
func (e *GenericEnvironment) Problems() []error {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]error, len(e.problems))
	copy(out, e.problems)
	return out
}
