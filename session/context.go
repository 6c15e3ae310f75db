package session

import (
	"context"
	"sync"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/pipeline"
)

// DefaultStructuredRetries bounds the repair loop of RequestStructured.
const DefaultStructuredRetries = 3

// Options configure an LLMContext.
type Options struct {
	// RunID is reported on pipeline events.
	RunID string
	// Transcript seeds the conversation.
	Transcript []core.Message
	// Tools is the initial active tool list.
	Tools []core.ToolDescriptor
	// FixingModel is used to repair malformed structured output. Empty
	// means the session's model.
	FixingModel string
	// StructuredRetries bounds repair attempts (default 3).
	StructuredRetries int
	// Pipeline receives the model-call hooks. Optional.
	Pipeline *pipeline.Pipeline
	Logger   logging.Logger
}

// LLMContext holds the conversation state of a run.
type LLMContext struct {
	mu sync.RWMutex

	executor   model.Executor
	modelID    string
	transcript []core.Message
	tools      []core.ToolDescriptor

	opts Options
}

// NewLLMContext creates a context bound to an executor and model id.
func NewLLMContext(executor model.Executor, modelID string, optFns ...func(o *Options)) *LLMContext {
	opts := Options{
		StructuredRetries: DefaultStructuredRetries,
		Logger:            logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	if opts.StructuredRetries < 0 {
		opts.StructuredRetries = 0
	}

	return &LLMContext{
		executor:   executor,
		modelID:    modelID,
		transcript: core.CloneMessages(opts.Transcript),
		tools:      cloneTools(opts.Tools),
		opts:       opts,
	}
}

// WriteSession runs fn with exclusive access to the conversation state. When
// fn returns nil the session's transcript, tools and model replace the
// context's; on error they are discarded.
func (c *LLMContext) WriteSession(ctx context.Context, fn func(ws *WriteSession) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ws := &WriteSession{session: c.newSession(true)}
	defer ws.closed.Store(true)
	if err := fn(ws); err != nil {
		return err
	}

	c.transcript = ws.transcript
	c.tools = ws.tools
	c.modelID = ws.modelID
	return nil
}

// ReadSession runs fn with shared access to a frozen snapshot of the
// conversation state. Concurrent read sessions are allowed; a pending writer
// blocks new readers.
func (c *LLMContext) ReadSession(ctx context.Context, fn func(rs *ReadSession) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rs := &ReadSession{session: c.newSession(false)}
	defer rs.closed.Store(true)
	return fn(rs)
}

// Write is WriteSession for callbacks producing a value.
func Write[T any](ctx context.Context, c *LLMContext, fn func(ws *WriteSession) (T, error)) (T, error) {
	var out T
	err := c.WriteSession(ctx, func(ws *WriteSession) error {
		v, err := fn(ws)
		out = v
		return err
	})
	return out, err
}

// Read is ReadSession for callbacks producing a value.
func Read[T any](ctx context.Context, c *LLMContext, fn func(rs *ReadSession) (T, error)) (T, error) {
	var out T
	err := c.ReadSession(ctx, func(rs *ReadSession) error {
		v, err := fn(rs)
		out = v
		return err
	})
	return out, err
}

// Fork returns an independent context sharing the executor, model and
// options, seeded with a snapshot of the transcript and the given tools.
func (c *LLMContext) Fork(tools []core.ToolDescriptor) *LLMContext {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return &LLMContext{
		executor:   c.executor,
		modelID:    c.modelID,
		transcript: core.CloneMessages(c.transcript),
		tools:      cloneTools(tools),
		opts:       c.opts,
	}
}

// Transcript returns a snapshot of the committed transcript.
func (c *LLMContext) Transcript() []core.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return core.CloneMessages(c.transcript)
}

// Tools returns a snapshot of the committed tool list.
func (c *LLMContext) Tools() []core.ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTools(c.tools)
}

// Model returns the committed model id.
func (c *LLMContext) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelID
}

// Executor returns the model executor.
func (c *LLMContext) Executor() model.Executor { return c.executor }

func (c *LLMContext) newSession(write bool) *session {
	return &session{
		llm:        c,
		write:      write,
		transcript: core.CloneMessages(c.transcript),
		tools:      cloneTools(c.tools),
		modelID:    c.modelID,
	}
}

func cloneTools(tools []core.ToolDescriptor) []core.ToolDescriptor {
	if tools == nil {
		return nil
	}
	out := make([]core.ToolDescriptor, len(tools))
	copy(out, tools)
	return out
}
