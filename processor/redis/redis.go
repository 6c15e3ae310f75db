// Package redis appends feature messages to a Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentgraph/pipeline"
)

// DefaultStream is the stream used when Options.Stream is empty.
const DefaultStream = "agentgraph:trace"

// Options configures the Redis processor.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Stream is the stream key; a run's messages are also mirrored to
	// "<Stream>:<run_id>" when PerRun is set.
	Stream string
	PerRun bool
	// MaxLen caps the stream approximately. Zero keeps everything.
	MaxLen int64
	// TTL expires per-run streams. Zero disables expiry.
	TTL time.Duration
}

// Processor implements pipeline.MessageProcessor on top of XADD.
type Processor struct {
	client *redis.Client
	owned  bool
	opts   Options
}

var _ pipeline.MessageProcessor = (*Processor)(nil)

// New connects a processor to the configured server.
func New(opts Options) *Processor {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	p := NewWithClient(client, opts)
	p.owned = true
	return p
}

// NewWithClient uses an existing client. Close leaves the client open.
func NewWithClient(client *redis.Client, opts Options) *Processor {
	if opts.Stream == "" {
		opts.Stream = DefaultStream
	}
	return &Processor{client: client, opts: opts}
}

// Initialize verifies the connection.
func (p *Processor) Initialize(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Process appends msg to the stream.
func (p *Processor) Process(ctx context.Context, msg pipeline.FeatureMessage) error {
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	values := map[string]any{
		"id":        msg.ID,
		"type":      msg.Type,
		"run_id":    msg.RunID,
		"timestamp": msg.Timestamp.Format(time.RFC3339Nano),
		"payload":   string(payload),
	}

	pipe := p.client.TxPipeline()
	pipe.XAdd(ctx, p.xadd(p.opts.Stream, values))
	if p.opts.PerRun && msg.RunID != "" {
		key := p.RunStream(msg.RunID)
		pipe.XAdd(ctx, p.xadd(key, values))
		if p.opts.TTL > 0 {
			pipe.Expire(ctx, key, p.opts.TTL)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis xadd: %w", err)
	}
	return nil
}

// RunStream returns the per-run stream key.
func (p *Processor) RunStream(runID string) string {
	return fmt.Sprintf("%s:%s", p.opts.Stream, runID)
}

// Close closes the client when the processor created it.
func (p *Processor) Close(context.Context) error {
	if !p.owned {
		return nil
	}
	return p.client.Close()
}

func (p *Processor) xadd(stream string, values map[string]any) *redis.XAddArgs {
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if p.opts.MaxLen > 0 {
		args.MaxLen = p.opts.MaxLen
		args.Approx = true
	}
	return args
}
