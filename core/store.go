package core

import (
	"maps"
	"sync"
)

// Key is a typed handle into a KeyValueStore. Two keys with the same name
// address the same slot; retrieval through a key of the wrong type reports
// the value as absent rather than panicking.
type Key[T any] struct {
	name string
}

// NewKey creates a typed key.
func NewKey[T any](name string) Key[T] { return Key[T]{name: name} }

// Name returns the key's name.
func (k Key[T]) Name() string { return k.name }

// KeyValueStore is a heterogeneous, concurrency safe store created per agent
// run. Every operation is atomic under a single lock.
type KeyValueStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewKeyValueStore creates an empty store.
func NewKeyValueStore() *KeyValueStore {
	return &KeyValueStore{values: map[string]any{}}
}

// Get returns the value stored under k if present and of type T.
func Get[T any](s *KeyValueStore, k Key[T]) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, ok := s.values[k.name]
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// Set stores v under k, replacing any previous value.
func Set[T any](s *KeyValueStore, k Key[T], v T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[k.name] = v
}

// Remove deletes the value stored under k and returns it if it had type T.
func Remove[T any](s *KeyValueStore, k Key[T]) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.values[k.name]
	if !ok {
		var zero T
		return zero, false
	}
	delete(s.values, k.name)
	v, ok := raw.(T)
	return v, ok
}

// ToMap returns a snapshot of all stored values keyed by name.
func (s *KeyValueStore) ToMap() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.values)
}

// PutAll merges the given values into the store.
func (s *KeyValueStore) PutAll(values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	maps.Copy(s.values, values)
}

// Clear removes every value.
func (s *KeyValueStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.values)
}

// Len returns the number of stored values.
func (s *KeyValueStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}
