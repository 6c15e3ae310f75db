package tool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hupe1980/agentgraph/core"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// DefaultStage is the stage tools are registered into when none is named.
const DefaultStage = "default"

// ErrDuplicateTool is returned when a stage already holds a tool of the same name.
var ErrDuplicateTool = errors.New("tool already registered in stage")

type stage = orderedmap.OrderedMap[string, Tool]

// Registry groups tools into named stages. Stages and the tools within them
// keep registration order, which determines stage resolution and the order
// tools are presented to the model. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stages *orderedmap.OrderedMap[string, *stage]
}

// NewRegistry creates a registry holding the (empty) default stage.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{stages: orderedmap.New[string, *stage]()}
	r.stages.Set(DefaultStage, orderedmap.New[string, Tool]())
	if err := r.Register(tools...); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on duplicate tools.
func MustNewRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Register adds tools to the default stage.
func (r *Registry) Register(tools ...Tool) error {
	return r.RegisterStage(DefaultStage, tools...)
}

// RegisterStage adds tools to the named stage, creating it on first use.
func (r *Registry) RegisterStage(name string, tools ...Tool) error {
	if name == "" {
		name = DefaultStage
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.stages.Get(name)
	if !ok {
		st = orderedmap.New[string, Tool]()
		r.stages.Set(name, st)
	}
	for _, t := range tools {
		if _, exists := st.Get(t.Name()); exists {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateTool, name, t.Name())
		}
		st.Set(t.Name(), t)
	}
	return nil
}

// Lookup finds a tool by stage and name.
func (r *Registry) Lookup(stageName, name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.stages.Get(stageName)
	if !ok {
		return nil, false
	}
	return st.Get(name)
}

// StageOf returns the first stage (in registration order) holding a tool
// named name, or DefaultStage when none does.
func (r *Registry) StageOf(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for pair := r.stages.Oldest(); pair != nil; pair = pair.Next() {
		if _, ok := pair.Value.Get(name); ok {
			return pair.Key
		}
	}
	return DefaultStage
}

// Resolve determines the stage for a call (explicit hint, else StageOf) and
// looks the tool up in it.
func (r *Registry) Resolve(call core.ToolCall) (Tool, string, bool) {
	stageName := call.Stage
	if stageName == "" {
		stageName = r.StageOf(call.Name)
	}
	t, ok := r.Lookup(stageName, call.Name)
	return t, stageName, ok
}

// Stages returns the stage names in registration order.
func (r *Registry) Stages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, r.stages.Len())
	for pair := r.stages.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Tools returns every registered tool. A name present in several stages is
// listed once, from the first stage holding it.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	var out []Tool
	for sp := r.stages.Oldest(); sp != nil; sp = sp.Next() {
		for tp := sp.Value.Oldest(); tp != nil; tp = tp.Next() {
			if seen[tp.Key] {
				continue
			}
			seen[tp.Key] = true
			out = append(out, tp.Value)
		}
	}
	return out
}

// Descriptors enumerates tool descriptors (name, description, parameter
// schema) in the order of Tools.
func (r *Registry) Descriptors() []core.ToolDescriptor {
	tools := r.Tools()
	out := make([]core.ToolDescriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, Descriptor(t))
	}
	return out
}

// FilterDescriptors keeps the descriptors whose name matches at least one of
// the doublestar glob patterns (for example "fs_*" or "calc"). Order is
// preserved.
func FilterDescriptors(descs []core.ToolDescriptor, patterns ...string) ([]core.ToolDescriptor, error) {
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool pattern %q", p)
		}
	}

	out := make([]core.ToolDescriptor, 0, len(descs))
	for _, d := range descs {
		for _, p := range patterns {
			if ok, _ := doublestar.Match(p, d.Name); ok {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}
