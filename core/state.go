package core

import (
	"errors"
	"sync"
)

// ErrStateClosed is returned by WithStateLock once the manager is closed.
var ErrStateClosed = errors.New("execution state closed")

// ExecutionState is the run-wide iteration counter handed to WithStateLock
// callbacks. It is only valid for the duration of the callback: any use after
// the callback returned panics.
type ExecutionState struct {
	iterations int
	active     bool
}

func (s *ExecutionState) mustBeActive() {
	if !s.active {
		panic("core: execution state used outside of WithStateLock")
	}
}

// Iterations returns the current counter value.
func (s *ExecutionState) Iterations() int {
	s.mustBeActive()
	return s.iterations
}

// Increment bumps the counter and returns the new value.
func (s *ExecutionState) Increment() int {
	s.mustBeActive()
	s.iterations++
	return s.iterations
}

// StateManager serializes access to the ExecutionState of one agent run.
// All subgraphs of a run share the same manager, so increments are monotonic
// and loss-free regardless of how many subgraphs run concurrently.
type StateManager struct {
	mu         sync.Mutex
	iterations int
	closed     bool
}

// NewStateManager creates a manager with a zero iteration counter.
func NewStateManager() *StateManager {
	return &StateManager{}
}

// WithStateLock acquires the manager's mutex, passes a fresh ExecutionState
// view to fn, carries the (possibly mutated) counter forward, deactivates the
// view and releases the mutex. fn's result is returned unchanged.
func WithStateLock[T any](m *StateManager, fn func(s *ExecutionState) (T, error)) (T, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		var zero T
		return zero, ErrStateClosed
	}

	state := &ExecutionState{iterations: m.iterations, active: true}
	defer func() {
		m.iterations = state.iterations
		state.active = false
	}()

	return fn(state)
}

// Iterations returns the committed counter value.
func (m *StateManager) Iterations() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.iterations
}

// Close marks the manager closed. Subsequent WithStateLock calls fail.
func (m *StateManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
}
