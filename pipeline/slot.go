package pipeline

import (
	"context"
	"errors"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// FeatureKey identifies a feature. Handlers are stored per key so that
// re-registration replaces instead of accumulating.
type FeatureKey string

// Handler observes one event category.
type Handler[E any] func(ctx context.Context, ev E) error

type slot[H any] struct {
	mu       sync.RWMutex
	handlers *orderedmap.OrderedMap[FeatureKey, H]
	// writes counts set calls per key; Install uses it to find handlers a
	// reinstall did not register again.
	writes map[FeatureKey]uint64
}

// keyedSlot is the type-erased view Install and Uninstall work on.
type keyedSlot interface {
	version(key FeatureKey) (uint64, bool)
	remove(key FeatureKey)
}

func (s *slot[H]) set(key FeatureKey, h H) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handlers == nil {
		s.handlers = orderedmap.New[FeatureKey, H]()
		s.writes = make(map[FeatureKey]uint64)
	}
	s.handlers.Set(key, h) // existing keys keep their position
	s.writes[key]++
}

// version reports how often key was set and whether it is registered.
func (s *slot[H]) version(key FeatureKey) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.handlers == nil {
		return 0, false
	}
	_, ok := s.handlers.Get(key)
	return s.writes[key], ok
}

func (s *slot[H]) remove(key FeatureKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handlers != nil {
		s.handlers.Delete(key)
	}
}

func (s *slot[H]) snapshot() []H {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.handlers == nil {
		return nil
	}
	out := make([]H, 0, s.handlers.Len())
	for pair := s.handlers.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

func (s *slot[H]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.handlers == nil {
		return 0
	}
	return s.handlers.Len()
}

// fire runs every handler in registration order and joins their errors.
func fire[E any](ctx context.Context, s *slot[Handler[E]], ev E) error {
	var errs []error
	for _, h := range s.snapshot() {
		if err := h(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
