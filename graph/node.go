package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// NodeFunc is the body of a node.
type NodeFunc[I, O any] func(ctx context.Context, rc *RunContext, in I) (O, error)

type nodeID int

type nodeKind int

const (
	kindNode nodeKind = iota
	kindStart
	kindFinish
)

// node is the type-erased arena entry behind a Node handle.
type node struct {
	name  string
	kind  nodeKind
	run   func(ctx context.Context, rc *RunContext, in any) (any, error)
	edges []edge
}

type edge struct {
	target  nodeID
	forward func(ctx context.Context, rc *RunContext, out any) (any, bool)
}

// arena owns the nodes and edges of one subgraph. It is append-only until
// sealed by the first execution and read-only afterwards.
type arena struct {
	mu     sync.Mutex
	nodes  []*node
	names  map[string]nodeID
	sealed bool
	errs   []error
	start  nodeID
	finish nodeID
}

func newArena() *arena {
	return &arena{names: make(map[string]nodeID)}
}

func (a *arena) add(n *node) nodeID {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sealed {
		a.errs = append(a.errs, fmt.Errorf("add node %q: %w", n.name, ErrGraphSealed))
		return -1
	}
	if _, ok := a.names[n.name]; ok {
		a.errs = append(a.errs, fmt.Errorf("%w: %q", ErrDuplicateNode, n.name))
		return -1
	}

	id := nodeID(len(a.nodes))
	a.nodes = append(a.nodes, n)
	a.names[n.name] = id
	return id
}

func (a *arena) connect(from, to nodeID, fwd func(ctx context.Context, rc *RunContext, out any) (any, bool)) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.checkConnect(from, to)
	if err != nil {
		a.errs = append(a.errs, err)
		return err
	}
	n := a.nodes[from]
	n.edges = append(n.edges, edge{target: to, forward: fwd})
	return nil
}

func (a *arena) checkConnect(from, to nodeID) error {
	switch {
	case a.sealed:
		return ErrGraphSealed
	case from < 0 || to < 0 || int(from) >= len(a.nodes) || int(to) >= len(a.nodes):
		return fmt.Errorf("graph: connect: invalid node handle")
	case a.nodes[from].kind == kindFinish:
		return fmt.Errorf("connect %q -> %q: %w", a.nodes[from].name, a.nodes[to].name, ErrFinishNodeEdge)
	}
	return nil
}

// seal freezes the arena and reports accumulated build errors.
func (a *arena) seal() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sealed = true
	return errors.Join(a.errs...)
}

// Builder is implemented by subgraphs; nodes are added to a builder's arena.
type Builder interface {
	builderArena() *arena
}

// Node is a typed handle to a node of a subgraph.
type Node[I, O any] struct {
	a  *arena
	id nodeID
}

// Name returns the node name, or "" for an invalid handle.
func (n Node[I, O]) Name() string {
	if n.a == nil || n.id < 0 {
		return ""
	}
	return n.a.nodes[n.id].name
}

// Valid reports whether the handle refers to a node. AddNode returns an
// invalid handle when the node could not be added; the cause is reported by
// Validate and by the first execution.
func (n Node[I, O]) Valid() bool {
	return n.a != nil && n.id >= 0
}

// AddNode adds a node running fn to the builder's subgraph.
func AddNode[I, O any](b Builder, name string, fn NodeFunc[I, O]) Node[I, O] {
	a := b.builderArena()
	id := a.add(&node{
		name: name,
		kind: kindNode,
		run: func(ctx context.Context, rc *RunContext, in any) (any, error) {
			v, err := assertInput[I](name, in)
			if err != nil {
				return nil, err
			}
			return fn(ctx, rc, v)
		},
	})
	return Node[I, O]{a: a, id: id}
}

// Connect appends an edge from -> to. Edges are evaluated in the order they
// were connected; the first one whose forward matches is taken.
func Connect[A, B, C, D any](from Node[A, B], to Node[C, D], forward Forward[B, C]) error {
	if from.a == nil || to.a == nil {
		return fmt.Errorf("graph: connect: invalid node handle")
	}
	if from.a != to.a {
		return fmt.Errorf("connect %q -> %q: %w", from.Name(), to.Name(), ErrForeignNode)
	}
	return from.a.connect(from.id, to.id, func(ctx context.Context, rc *RunContext, out any) (any, bool) {
		v, ok := out.(B)
		if !ok && out != nil {
			return nil, false
		}
		return forward(ctx, rc, v)
	})
}

func assertInput[T any](node string, in any) (T, error) {
	if in == nil {
		var zero T
		return zero, nil
	}
	v, ok := in.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("node %q: input of type %T: %w", node, in, ErrInternalConsistency)
	}
	return v, nil
}
