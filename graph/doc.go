// Package graph implements the strategy graphs an agent executes.
//
// A strategy is a Subgraph: a start node, a finish node and the nodes and
// edges between them. Nodes live in an arena owned by the subgraph and are
// addressed through typed handles (Node[I, O]); edges store the target's
// arena index together with a Forward function deciding whether the edge
// matches a node's output and what input the target receives.
//
// Traversal starts at the start node with the subgraph's input and repeats
// until the finish node is reached:
//
//  1. The run-wide iteration counter is incremented under the StateManager
//     lock. Exceeding the configured maximum fails the run with
//     MaxIterationsReachedError.
//  2. The before-node hooks fire, the node body runs, the after-node hooks
//     fire.
//  3. The node's edges are evaluated in declaration order and the first one
//     whose Forward matches is taken. No match fails the run with
//     StuckInNodeError.
//
// Building a graph:
//
//	sg := graph.NewSubgraph[string, string]("echo")
//	upper := graph.AddNode(sg, "upper", func(ctx context.Context, rc *graph.RunContext, in string) (string, error) {
//		return strings.ToUpper(in), nil
//	})
//	_ = graph.Connect(sg.Start(), upper, graph.Identity[string]())
//	_ = graph.Connect(upper, sg.Finish(), graph.Identity[string]())
//
// A subgraph may restrict the tools visible to the model while it runs (see
// ToolSelection) and may itself be added as a node of another subgraph with
// AddSubgraph. Nested subgraphs share the run's iteration counter.
package graph
