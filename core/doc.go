// Package core provides the foundational domain types and small concurrency
// primitives shared by every other agentgraph package:
//
//   - Messages and parts (text, tool calls, tool results) forming a transcript
//   - ToolCall / ToolResult records exchanged with the tool dispatcher
//   - ToolDescriptor, the model-facing description of a tool
//   - Environment, the boundary through which a run executes tools, reports
//     problems and signals termination
//   - StateManager, the mutex guarded iteration counter of a run
//   - KeyValueStore, a typed per-run key/value store
//   - ToolContext, the scoped surface handed to tool implementations
//
// Implementation concerns (graph traversal, model sessions, feature dispatch)
// live in their own packages and depend on core, never the other way round.
package core
