package session

import (
	"context"
	"sync"

	"github.com/hupe1980/agentgraph/core"
)

// Store persists conversation transcripts between runs, keyed by a
// conversation id.
type Store interface {
	// Load returns the stored transcript. An unknown id yields an empty
	// transcript and no error.
	Load(ctx context.Context, id string) ([]core.Message, error)
	// Save replaces the stored transcript.
	Save(ctx context.Context, id string, transcript []core.Message) error
	// Delete forgets a conversation.
	Delete(ctx context.Context, id string) error
}

// InMemoryStore is a volatile Store backed by a process local map. It is safe
// for concurrent access and best suited for tests or ephemeral servers.
// Transcripts are cloned on the way in and out.
type InMemoryStore struct {
	mu          sync.RWMutex
	transcripts map[string][]core.Message
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{transcripts: make(map[string][]core.Message)}
}

// Load returns a clone of the stored transcript.
func (s *InMemoryStore) Load(_ context.Context, id string) ([]core.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.CloneMessages(s.transcripts[id]), nil
}

// Save stores a clone of the transcript.
func (s *InMemoryStore) Save(_ context.Context, id string, transcript []core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcripts[id] = core.CloneMessages(transcript)
	return nil
}

// Delete removes a conversation. Unknown ids are ignored.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transcripts, id)
	return nil
}

// IDs lists the stored conversation ids in no particular order.
func (s *InMemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.transcripts))
	for id := range s.transcripts {
		out = append(out, id)
	}
	return out
}
