package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Feature is an installable bundle of handlers with a typed configuration.
type Feature[C any] interface {
	// Key identifies the feature; handlers are registered under it.
	Key() FeatureKey
	// NewConfig returns the default configuration.
	NewConfig() C
	// Install registers the feature's handlers.
	Install(cfg C, p *Pipeline) error
}

// FeatureMessage is the unit a feature hands to its message processors.
type FeatureMessage struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// NewFeatureMessage stamps a message with a fresh id and the current time.
func NewFeatureMessage(typ, runID string, payload map[string]any) FeatureMessage {
	return FeatureMessage{
		ID:        uuid.NewString(),
		Type:      typ,
		RunID:     runID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// MessageProcessor consumes feature messages (logs, streams, databases).
type MessageProcessor interface {
	// Initialize prepares the processor; it runs asynchronously after install.
	Initialize(ctx context.Context) error
	// Process handles one message.
	Process(ctx context.Context, msg FeatureMessage) error
	// Close releases the processor's resources.
	Close(ctx context.Context) error
}

// ProcessorProvider is implemented by configurations that attach processors.
type ProcessorProvider interface {
	Processors() []MessageProcessor
}

// FeatureConfig is an embeddable configuration base holding processors.
type FeatureConfig struct {
	processors []MessageProcessor
}

// AddProcessor attaches a message processor.
func (c *FeatureConfig) AddProcessor(mp MessageProcessor) {
	c.processors = append(c.processors, mp)
}

// Processors returns the attached processors.
func (c *FeatureConfig) Processors() []MessageProcessor { return c.processors }

// Broadcast hands msg to every processor and joins their errors.
func Broadcast(ctx context.Context, processors []MessageProcessor, msg FeatureMessage) error {
	var errs []error
	for _, mp := range processors {
		if err := mp.Process(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type installedFeature struct {
	key        FeatureKey
	processors []MessageProcessor
	ready      chan struct{}
	initErr    error
}

type featureSet struct {
	mu        sync.Mutex
	installed *orderedmap.OrderedMap[FeatureKey, *installedFeature]
}

// Install creates the feature's configuration, applies configure, starts the
// asynchronous initialization of the configured processors and registers the
// feature's handlers.
//
// Installing a key again replaces the earlier feature in place: handlers keep
// their slot position, handlers the new install does not register are
// removed, and the earlier processors are closed once initialized. A failed
// install leaves the key uninstalled.
func Install[C any](p *Pipeline, f Feature[C], configure func(cfg *C)) error {
	cfg := f.NewConfig()
	if configure != nil {
		configure(&cfg)
	}

	var processors []MessageProcessor
	if pp, ok := any(&cfg).(ProcessorProvider); ok {
		processors = pp.Processors()
	} else if pp, ok := any(cfg).(ProcessorProvider); ok {
		processors = pp.Processors()
	}

	key := f.Key()
	inst := &installedFeature{key: key, processors: processors, ready: make(chan struct{})}
	go func() {
		defer close(inst.ready)
		var errs []error
		for _, mp := range processors {
			if err := mp.Initialize(context.Background()); err != nil {
				errs = append(errs, err)
			}
		}
		inst.initErr = errors.Join(errs...)
	}()

	before := p.versions(key)
	if err := f.Install(cfg, p); err != nil {
		p.Uninstall(key)
		p.release(inst)
		if prev := p.forget(key); prev != nil {
			p.release(prev)
		}
		return fmt.Errorf("install feature %s: %w", key, err)
	}
	p.dropStale(key, before)

	p.features.mu.Lock()
	prev, _ := p.features.installed.Get(key)
	p.features.installed.Set(key, inst)
	p.features.mu.Unlock()

	if prev != nil {
		p.release(prev)
	}

	p.logger.Debug("pipeline.feature.installed", "feature", string(key), "processors", len(processors))
	return nil
}

// forget removes the installed entry for key and returns it.
func (p *Pipeline) forget(key FeatureKey) *installedFeature {
	p.features.mu.Lock()
	defer p.features.mu.Unlock()

	prev, ok := p.features.installed.Delete(key)
	if !ok {
		return nil
	}
	return prev
}

// release waits for f's initialization and closes its processors. Errors are
// logged; the feature is already detached from the pipeline.
func (p *Pipeline) release(f *installedFeature) {
	<-f.ready
	if err := f.close(context.Background()); err != nil {
		p.logger.Warn("pipeline.feature.close_failed", "feature", string(f.key), "error", err)
	}
}

func (f *installedFeature) close(ctx context.Context) error {
	var errs []error
	for _, mp := range f.processors {
		if err := mp.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("feature %s: %w", f.key, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Pipeline) installed() []*installedFeature {
	p.features.mu.Lock()
	defer p.features.mu.Unlock()

	out := make([]*installedFeature, 0, p.features.installed.Len())
	for pair := p.features.installed.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Features returns the keys of installed features in installation order.
func (p *Pipeline) Features() []FeatureKey {
	feats := p.installed()
	out := make([]FeatureKey, len(feats))
	for i, f := range feats {
		out[i] = f.key
	}
	return out
}

// AwaitFeaturesReady blocks until every installed feature's processors
// finished initializing, and returns their joined initialization errors.
func (p *Pipeline) AwaitFeaturesReady(ctx context.Context) error {
	var errs []error
	for _, f := range p.installed() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.ready:
		}
		if f.initErr != nil {
			errs = append(errs, fmt.Errorf("feature %s: %w", f.key, f.initErr))
		}
	}
	return errors.Join(errs...)
}

// CloseFeatures waits for pending initialization, closes every processor and
// forgets the installed features. Handlers stay registered.
func (p *Pipeline) CloseFeatures(ctx context.Context) error {
	feats := p.installed()

	var errs []error
	for _, f := range feats {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.ready:
		}
		if err := f.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	p.features.mu.Lock()
	p.features.installed = orderedmap.New[FeatureKey, *installedFeature]()
	p.features.mu.Unlock()

	return errors.Join(errs...)
}
