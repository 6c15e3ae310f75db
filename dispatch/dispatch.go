// Package dispatch executes model-issued tool calls against a staged tool
// registry. Every call is resolved, decoded and executed independently: a
// failing, missing or panicking tool produces a failed core.ToolResult and
// never cancels or fails its siblings.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/pipeline"
	"github.com/hupe1980/agentgraph/tool"
	"golang.org/x/sync/semaphore"
)

// DefaultStreamConcurrency bounds ExecuteStream when no limit is configured.
const DefaultStreamConcurrency = 16

// Options configure a Dispatcher.
type Options struct {
	// Pipeline receives the tool hooks. Optional.
	Pipeline *pipeline.Pipeline
	// Store is handed to every tool through its ToolContext. Optional.
	Store *core.KeyValueStore
	// Logger defaults to a NoOpLogger.
	Logger logging.Logger
	// MaxParallel bounds a batch; 0 runs every call of the batch at once.
	MaxParallel int
	// StreamConcurrency bounds ExecuteStream (default 16).
	StreamConcurrency int
}

// Dispatcher resolves and executes tool calls.
type Dispatcher struct {
	registry *tool.Registry
	opts     Options
}

// New creates a dispatcher over registry.
func New(registry *tool.Registry, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		Logger:            logging.NoOpLogger{},
		StreamConcurrency: DefaultStreamConcurrency,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.StreamConcurrency <= 0 {
		opts.StreamConcurrency = DefaultStreamConcurrency
	}
	if opts.Store == nil {
		opts.Store = core.NewKeyValueStore()
	}
	if registry == nil {
		registry = tool.MustNewRegistry()
	}
	return &Dispatcher{registry: registry, opts: opts}
}

// Registry returns the registry calls are resolved against.
func (d *Dispatcher) Registry() *tool.Registry { return d.registry }

// ExecuteTools runs a batch of calls in parallel and returns one result per
// call, in call order.
func (d *Dispatcher) ExecuteTools(ctx context.Context, runID string, calls []core.ToolCall) []core.ToolResult {
	n := len(calls)
	if n == 0 {
		return nil
	}

	calls = withIDs(calls)
	d.hook("dispatch.batch.before.hook_failed", d.firePipeline(func(p *pipeline.Pipeline) error {
		return p.OnBeforeToolCalls(ctx, pipeline.BeforeToolCallsEvent{RunID: runID, Calls: calls})
	}))

	results := make([]core.ToolResult, n)
	batchStart := time.Now()

	if n == 1 {
		results[0] = d.Execute(ctx, runID, calls[0])
	} else {
		maxPar := d.opts.MaxParallel
		if maxPar <= 0 || maxPar > n {
			maxPar = n
		}
		sem := make(chan struct{}, maxPar)

		var wg sync.WaitGroup
		for i := range calls {
			wg.Add(1)
			sem <- struct{}{}
			go func(idx int, call core.ToolCall) {
				defer wg.Done()
				defer func() { <-sem }()
				results[idx] = d.Execute(ctx, runID, call)
			}(i, calls[i])
		}
		wg.Wait()
	}

	d.opts.Logger.Debug("dispatch.batch.complete",
		"run_id", runID,
		"count", n,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	d.hook("dispatch.batch.after.hook_failed", d.firePipeline(func(p *pipeline.Pipeline) error {
		return p.OnAfterToolCalls(ctx, pipeline.AfterToolCallsEvent{RunID: runID, Calls: calls, Results: results})
	}))

	return results
}

// ExecuteStream executes calls as they arrive with at most
// StreamConcurrency calls in flight. Results are delivered in completion
// order; the output channel closes once the input is drained and every
// started call finished, or the context is canceled.
func (d *Dispatcher) ExecuteStream(ctx context.Context, runID string, calls <-chan core.ToolCall) <-chan core.ToolResult {
	out := make(chan core.ToolResult)
	sem := semaphore.NewWeighted(int64(d.opts.StreamConcurrency))

	go func() {
		defer close(out)

		var wg sync.WaitGroup
		defer wg.Wait()

		for {
			var (
				call core.ToolCall
				ok   bool
			)
			select {
			case <-ctx.Done():
				return
			case call, ok = <-calls:
				if !ok {
					return
				}
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			if call.ID == "" {
				call.ID = uuid.NewString()
			}

			wg.Add(1)
			go func(c core.ToolCall) {
				defer wg.Done()
				defer sem.Release(1)

				res := d.Execute(ctx, runID, c)
				select {
				case out <- res:
				case <-ctx.Done():
				}
			}(call)
		}
	}()

	return out
}

// Execute runs a single call and converts every failure into a result.
func (d *Dispatcher) Execute(ctx context.Context, runID string, call core.ToolCall) core.ToolResult {
	impl, stage, ok := d.registry.Resolve(call)
	if !ok {
		d.opts.Logger.Warn("dispatch.tool.not_found", "run_id", runID, "tool", call.Name, "stage", stage)
		return failed(call, core.ToolResultNotFound,
			fmt.Sprintf("Tool %q not found in stage %q", call.Name, stage))
	}

	args, err := decodeArgs(call.Arguments)
	if err != nil {
		d.opts.Logger.Warn("dispatch.tool.parse_failed", "run_id", runID, "tool", call.Name, "error", err)
		return failed(call, core.ToolResultParseError,
			fmt.Sprintf("Failed to parse arguments for tool %q: %v", call.Name, err))
	}

	d.hook("dispatch.tool.hook_failed", d.firePipeline(func(p *pipeline.Pipeline) error {
		return p.OnToolCall(ctx, pipeline.ToolCallEvent{RunID: runID, Stage: stage, Call: call})
	}))

	tc := core.NewToolContext(ctx, runID, call, d.opts.Store, d.opts.Logger)

	start := time.Now()
	result, err := invoke(impl, tc, args)
	dur := time.Since(start)

	d.opts.Logger.Info("dispatch.tool.executed",
		"run_id", runID,
		"tool", call.Name,
		"stage", stage,
		"duration_ms", dur.Milliseconds(),
		"error", err != nil,
	)

	if err != nil {
		if tool.IsValidationError(err) {
			d.hook("dispatch.tool.hook_failed", d.firePipeline(func(p *pipeline.Pipeline) error {
				return p.OnToolValidationError(ctx, pipeline.ToolValidationErrorEvent{RunID: runID, Stage: stage, Call: call, Err: err})
			}))
			return failed(call, core.ToolResultValidationError,
				fmt.Sprintf("Tool %q failed to validate arguments: %v", call.Name, err))
		}

		d.opts.Logger.Error("dispatch.tool.failed", "run_id", runID, "tool", call.Name, "error", err)
		d.hook("dispatch.tool.hook_failed", d.firePipeline(func(p *pipeline.Pipeline) error {
			return p.OnToolCallFailure(ctx, pipeline.ToolCallFailureEvent{RunID: runID, Stage: stage, Call: call, Err: err})
		}))
		return failed(call, core.ToolResultFailure,
			fmt.Sprintf("Tool %q failed to execute: %v", call.Name, err))
	}

	res := core.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: serialize(result),
		Result:  result,
		Status:  core.ToolResultSuccess,
	}
	d.hook("dispatch.tool.hook_failed", d.firePipeline(func(p *pipeline.Pipeline) error {
		return p.OnToolCallResult(ctx, pipeline.ToolCallResultEvent{RunID: runID, Stage: stage, Call: call, Result: res, Duration: dur})
	}))
	return res
}

func (d *Dispatcher) firePipeline(fn func(p *pipeline.Pipeline) error) error {
	if d.opts.Pipeline == nil {
		return nil
	}
	return fn(d.opts.Pipeline)
}

// hook logs and swallows handler errors: tool failures never escape the
// dispatcher, and neither do the handlers observing them.
func (d *Dispatcher) hook(event string, err error) {
	if err != nil {
		d.opts.Logger.Warn(event, "error", err)
	}
}

// invoke calls the tool, converting a panic into an error.
func invoke(impl tool.Tool, tc *core.ToolContext, args map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
			tc.LogError("dispatch.tool.panic", "recover", r)
		}
	}()
	return impl.Call(tc, args)
}

func decodeArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil { // "null"
		args = map[string]any{}
	}
	return args, nil
}

func serialize(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func failed(call core.ToolCall, status core.ToolResultStatus, msg string) core.ToolResult {
	return core.ToolResult{ID: call.ID, Name: call.Name, Content: msg, Status: status}
}

// withIDs backfills IDs for calls handed to the dispatcher directly. Calls
// that came out of a session already carry the ID stored in its transcript.
func withIDs(calls []core.ToolCall) []core.ToolCall {
	out := make([]core.ToolCall, len(calls))
	for i, c := range calls {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		out[i] = c
	}
	return out
}

// panicError converts a recovered panic value to an error.
func panicError(r any) error { return &PanicError{Value: r, Stack: debug.Stack()} }

// PanicError carries a value recovered from a panicking tool.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", p.Value) }
