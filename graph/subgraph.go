package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/pipeline"
	"github.com/hupe1980/agentgraph/session"
)

// SubgraphOptions configure a Subgraph.
type SubgraphOptions struct {
	// ToolSelection restricts the tools visible while the subgraph runs.
	// Defaults to AllTools.
	ToolSelection ToolSelection
}

// Subgraph is a composite node: a start node, a finish node and the graph in
// between. It runs its own traversal loop and may restrict the visible tools.
type Subgraph[I, O any] struct {
	name  string
	nodes *arena
	opts  SubgraphOptions
}

var _ Builder = (*Subgraph[string, string])(nil)

// NewSubgraph creates an empty subgraph with its start and finish nodes.
func NewSubgraph[I, O any](name string, optFns ...func(o *SubgraphOptions)) *Subgraph[I, O] {
	opts := SubgraphOptions{ToolSelection: AllTools}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.ToolSelection == nil {
		opts.ToolSelection = AllTools
	}

	a := newArena()
	a.start = a.add(&node{
		name: "__start__",
		kind: kindStart,
		run: func(_ context.Context, _ *RunContext, in any) (any, error) {
			return in, nil
		},
	})
	a.finish = a.add(&node{name: "__finish__", kind: kindFinish})

	return &Subgraph[I, O]{name: name, nodes: a, opts: opts}
}

func (s *Subgraph[I, O]) builderArena() *arena { return s.nodes }

// Name returns the subgraph name.
func (s *Subgraph[I, O]) Name() string { return s.name }

// Start returns the start node. Its output is the subgraph input.
func (s *Subgraph[I, O]) Start() Node[I, I] { return Node[I, I]{a: s.nodes, id: s.nodes.start} }

// Finish returns the finish node. Edges into it must carry the subgraph output.
func (s *Subgraph[I, O]) Finish() Node[O, O] { return Node[O, O]{a: s.nodes, id: s.nodes.finish} }

// Validate reports errors recorded while building the subgraph.
func (s *Subgraph[I, O]) Validate() error {
	s.nodes.mu.Lock()
	defer s.nodes.mu.Unlock()

	return errors.Join(s.nodes.errs...)
}

// AddSubgraph adds sub as a node of the builder's subgraph. The nested
// subgraph shares the run's iteration counter.
func AddSubgraph[I, O any](b Builder, sub *Subgraph[I, O]) Node[I, O] {
	return AddNode(b, sub.name, sub.Execute)
}

// Execute runs the subgraph. The first execution seals it; later
// modifications fail with ErrGraphSealed.
func (s *Subgraph[I, O]) Execute(ctx context.Context, rc *RunContext, in I) (O, error) {
	var zero O

	if err := s.nodes.seal(); err != nil {
		return zero, fmt.Errorf("subgraph %q: %w", s.name, err)
	}
	if rc.State == nil {
		cp := *rc
		cp.State = core.NewStateManager()
		rc = &cp
	}

	out, err := s.executeWithTools(ctx, rc, in)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	v, ok := out.(O)
	if !ok {
		return zero, fmt.Errorf("subgraph %q: finish reached with %T: %w", s.name, out, ErrInternalConsistency)
	}
	return v, nil
}

// executeWithTools applies the tool selection, runs the traversal against the
// restricted view and writes the resulting transcript back.
func (s *Subgraph[I, O]) executeWithTools(ctx context.Context, rc *RunContext, in I) (any, error) {
	if rc.LLM == nil {
		return s.traverse(ctx, rc, in)
	}

	tools, restrict, err := s.opts.ToolSelection.selectTools(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("subgraph %q: select tools: %w", s.name, err)
	}
	if !restrict {
		return s.traverse(ctx, rc, in)
	}

	rc.logger().Debug("graph.tools.selected",
		"run_id", rc.RunID,
		"subgraph", s.name,
		"tools", descriptorNames(tools),
	)

	inner := rc.LLM.Fork(tools)
	out, err := s.traverse(ctx, rc.withLLM(inner), in)
	if err != nil {
		return nil, err
	}

	transcript := inner.Transcript()
	err = rc.LLM.WriteSession(ctx, func(ws *session.WriteSession) error {
		ws.SetTranscript(transcript)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Subgraph[I, O]) traverse(ctx context.Context, rc *RunContext, in any) (any, error) {
	a := s.nodes
	current, input := a.start, in
	log := rc.logger()
	maxIter := rc.maxIterations()

	for current != a.finish {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := a.nodes[current]

		iteration, err := core.WithStateLock(rc.State, func(st *core.ExecutionState) (int, error) {
			v := st.Increment()
			if v > maxIter {
				return v, &MaxIterationsReachedError{Max: maxIter}
			}
			return v, nil
		})
		if err != nil {
			log.Warn("graph.iterations.exceeded", "run_id", rc.RunID, "node", n.name, "max", maxIter)
			return nil, err
		}

		if rc.Pipeline != nil {
			if err := rc.Pipeline.OnBeforeNode(ctx, pipeline.BeforeNodeEvent{
				RunID:     rc.RunID,
				Node:      n.name,
				Iteration: iteration,
				Input:     input,
			}); err != nil {
				return nil, err
			}
		}

		start := time.Now()
		output, err := n.run(ctx, rc, input)
		if err != nil {
			log.Error("graph.node.failed", "run_id", rc.RunID, "node", n.name, "error", err)
			return nil, err
		}
		dur := time.Since(start)

		if rc.Pipeline != nil {
			if err := rc.Pipeline.OnAfterNode(ctx, pipeline.AfterNodeEvent{
				RunID:     rc.RunID,
				Node:      n.name,
				Iteration: iteration,
				Input:     input,
				Output:    output,
				Duration:  dur,
			}); err != nil {
				return nil, err
			}
		}

		log.Debug("graph.node.executed",
			"run_id", rc.RunID,
			"subgraph", s.name,
			"node", n.name,
			"iteration", iteration,
			"duration_ms", dur.Milliseconds(),
		)

		next, nextInput, ok := resolve(ctx, rc, n, output)
		if !ok {
			return nil, &StuckInNodeError{Node: n.name, Output: output}
		}
		current, input = next, nextInput
	}

	return input, nil
}

// resolve picks the first matching edge in declaration order.
func resolve(ctx context.Context, rc *RunContext, n *node, output any) (nodeID, any, bool) {
	for _, e := range n.edges {
		if v, ok := e.forward(ctx, rc, output); ok {
			return e.target, v, true
		}
	}
	return 0, nil, false
}
