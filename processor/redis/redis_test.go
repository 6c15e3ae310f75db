package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentgraph/pipeline"
)

func TestProcessorAppendsToStream(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	p := New(Options{Addr: mr.Addr(), PerRun: true, TTL: time.Minute})
	require.NoError(t, p.Initialize(ctx))

	msg := pipeline.NewFeatureMessage("node.started", "run-1", map[string]any{"node": "a"})
	require.NoError(t, p.Process(ctx, msg))
	require.NoError(t, p.Process(ctx, pipeline.NewFeatureMessage("agent.created", "", nil)))

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	entries, err := client.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, msg.ID, entries[0].Values["id"])
	assert.Equal(t, "node.started", entries[0].Values["type"])

	var payload map[string]any
	require.NoError(t, json.Unmarshal([]byte(entries[0].Values["payload"].(string)), &payload))
	assert.Equal(t, "a", payload["node"])

	perRun, err := client.XRange(ctx, p.RunStream("run-1"), "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, perRun, 1)
	assert.True(t, mr.TTL(p.RunStream("run-1")) > 0)

	require.NoError(t, p.Close(ctx))
}

func TestProcessorSharedClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	p := NewWithClient(client, Options{Stream: "custom"})
	require.NoError(t, p.Process(ctx, pipeline.NewFeatureMessage("x", "r", nil)))
	require.NoError(t, p.Close(ctx))

	// The shared client stays usable.
	n, err := client.XLen(ctx, "custom").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProcessorInitializeFails(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	p := New(Options{Addr: addr})
	defer p.Close(context.Background())
	require.Error(t, p.Initialize(context.Background()))
}
