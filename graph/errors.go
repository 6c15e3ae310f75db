package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrFinishNodeEdge is returned when an edge would leave a finish node.
	ErrFinishNodeEdge = errors.New("graph: finish node cannot have outgoing edges")
	// ErrGraphSealed is returned when a subgraph is modified after it ran.
	ErrGraphSealed = errors.New("graph: subgraph is sealed")
	// ErrDuplicateNode is returned when two nodes of a subgraph share a name.
	ErrDuplicateNode = errors.New("graph: duplicate node name")
	// ErrForeignNode is returned when an edge connects nodes of different subgraphs.
	ErrForeignNode = errors.New("graph: node belongs to another subgraph")
	// ErrInternalConsistency reports a value reaching the finish node with a
	// type the subgraph cannot return. Correctly built graphs never produce it.
	ErrInternalConsistency = errors.New("graph: internal consistency violation")
)

// StuckInNodeError is returned when no outgoing edge of a node matched its
// output.
type StuckInNodeError struct {
	Node   string
	Output any
}

func (e *StuckInNodeError) Error() string {
	return fmt.Sprintf("graph: stuck in node %q: no edge matched output %v", e.Node, e.Output)
}

// MaxIterationsReachedError is returned when a run executed more nodes than
// allowed.
type MaxIterationsReachedError struct {
	Max int
}

func (e *MaxIterationsReachedError) Error() string {
	return fmt.Sprintf("graph: maximum number of iterations (%d) reached", e.Max)
}
