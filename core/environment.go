package core

import "context"

// Environment is the boundary between a running graph and the outside world.
// Nodes execute tools through it, the agent reports run failures through it,
// and a successful run ends with SendTermination.
//
// Features may wrap an Environment with decorators via the pipeline's
// environment transform hook; decorators must forward every method.
type Environment interface {
	ExecuteTools(ctx context.Context, calls []ToolCall) ([]ToolResult, error)
	ReportProblem(ctx context.Context, err error) error
	SendTermination(ctx context.Context, result string) error
}
