package tool

import (
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func namedTool(name string) Tool {
	return NewFunctionTool(name, name+" tool", nil, func(tc *core.ToolContext, args map[string]any) (any, error) {
		return name, nil
	})
}

func TestRegistry_StageResolution(t *testing.T) {
	r := MustNewRegistry(namedTool("calc"))
	require.NoError(t, r.RegisterStage("files", namedTool("read"), namedTool("write")))
	require.NoError(t, r.RegisterStage("git", namedTool("read")))

	assert.Equal(t, []string{DefaultStage, "files", "git"}, r.Stages())
	assert.Equal(t, DefaultStage, r.StageOf("calc"))
	assert.Equal(t, "files", r.StageOf("read"))
	assert.Equal(t, DefaultStage, r.StageOf("missing"))

	_, stage, ok := r.Resolve(core.ToolCall{Name: "read", Stage: "git"})
	assert.True(t, ok)
	assert.Equal(t, "git", stage)

	_, stage, ok = r.Resolve(core.ToolCall{Name: "read"})
	assert.True(t, ok)
	assert.Equal(t, "files", stage)

	_, _, ok = r.Resolve(core.ToolCall{Name: "missing"})
	assert.False(t, ok)

	_, ok = r.Lookup("nope", "calc")
	assert.False(t, ok)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	r := MustNewRegistry(namedTool("calc"))
	err := r.Register(namedTool("calc"))
	assert.ErrorIs(t, err, ErrDuplicateTool)

	assert.Panics(t, func() { MustNewRegistry(namedTool("x"), namedTool("x")) })
}

func TestRegistry_DescriptorsDeduplicated(t *testing.T) {
	r := MustNewRegistry(namedTool("a"))
	require.NoError(t, r.RegisterStage("s1", namedTool("b"), namedTool("a")))

	var names []string
	for _, d := range r.Descriptors() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestFilterDescriptors(t *testing.T) {
	descs := []core.ToolDescriptor{{Name: "fs_read"}, {Name: "fs_write"}, {Name: "calc"}, {Name: "git_log"}}

	out, err := FilterDescriptors(descs, "fs_*", "calc")
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "fs_read", out[0].Name)
	assert.Equal(t, "calc", out[2].Name)

	out, err = FilterDescriptors(descs)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = FilterDescriptors(descs, "[")
	assert.Error(t, err)
}
