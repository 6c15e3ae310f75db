package tracing

import (
	"context"

	"github.com/hupe1980/agentgraph/logging"
	"github.com/hupe1980/agentgraph/pipeline"
)

// LogProcessor writes feature messages to a logger.
type LogProcessor struct {
	logger logging.Logger
}

var _ pipeline.MessageProcessor = (*LogProcessor)(nil)

// NewLogProcessor creates a processor logging at info level.
func NewLogProcessor(logger logging.Logger) *LogProcessor {
	return &LogProcessor{logger: logging.OrNoOp(logger)}
}

// Initialize implements pipeline.MessageProcessor.
func (p *LogProcessor) Initialize(context.Context) error { return nil }

// Process implements pipeline.MessageProcessor.
func (p *LogProcessor) Process(_ context.Context, msg pipeline.FeatureMessage) error {
	args := []any{"id", msg.ID, "run_id", msg.RunID}
	for k, v := range msg.Payload {
		args = append(args, k, v)
	}
	p.logger.Info("trace."+msg.Type, args...)
	return nil
}

// Close implements pipeline.MessageProcessor.
func (p *LogProcessor) Close(context.Context) error { return nil }
