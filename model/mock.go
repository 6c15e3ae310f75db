package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentgraph/core"
)

// MockExecutor is a lightweight in-memory Executor useful for tests & examples.
// Responses are resolved in this order: scripted queue, request handler,
// canned response keyed by the last message text, echo fallback.
type MockExecutor struct {
	mu        sync.Mutex
	queue     [][]Response
	handler   func(req Request) ([]Response, error)
	responses map[string]string
	requests  []Request
}

// NewMockExecutor constructs an empty MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{responses: make(map[string]string)}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockExecutor) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Enqueue scripts the responses returned by the next Execute call. Calls
// consume the queue in FIFO order.
func (m *MockExecutor) Enqueue(responses ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, responses)
}

// OnRequest installs a handler consulted when the queue is empty.
func (m *MockExecutor) OnRequest(fn func(req Request) ([]Response, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
}

// Requests returns every request received so far.
func (m *MockExecutor) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Execute implements Executor.
func (m *MockExecutor) Execute(ctx context.Context, req Request) ([]Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	req.Messages = core.CloneMessages(req.Messages)
	m.requests = append(m.requests, req)
	if len(m.queue) > 0 {
		next := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()
		return next, nil
	}
	handler := m.handler
	m.mu.Unlock()

	if handler != nil {
		return handler(req)
	}

	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	input := req.Messages[len(req.Messages)-1].Text()

	m.mu.Lock()
	full := m.responses[input]
	m.mu.Unlock()
	if full == "" {
		full = fmt.Sprintf("Mock response to: %s", input)
	}
	return []Response{TextResponse(full)}, nil
}

// ExecuteStreaming implements Executor; it streams the text of Execute's
// responses one rune at a time.
func (m *MockExecutor) ExecuteStreaming(ctx context.Context, req Request) (<-chan string, <-chan error) {
	out := make(chan string, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		responses, err := m.Execute(ctx, req)
		if err != nil {
			errCh <- err
			return
		}
		for _, r := range responses {
			for _, ch := range r.Message.Text() {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case out <- string(ch):
				}
			}
		}
	}()

	return out, errCh
}
