package openai

import (
	"testing"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildMessages_ExpandsToolResults(t *testing.T) {
	msgs := buildMessages([]core.Message{
		core.NewSystemMessage("sys"),
		core.NewUserMessage("hi"),
		core.NewToolCallMessage(core.ToolCall{ID: "a", Name: "calc"}, core.ToolCall{ID: "b", Name: "calc"}),
		core.NewToolResultMessage(
			core.ToolResult{ID: "a", Name: "calc", Content: "1"},
			core.ToolResult{ID: "b", Name: "calc", Content: "2"},
		),
		core.NewAssistantMessage("done"),
	})
	require.Len(t, msgs, 6)
	assert.NotNil(t, msgs[0].OfSystem)
	assert.NotNil(t, msgs[1].OfUser)
	require.NotNil(t, msgs[2].OfAssistant)
	assert.Len(t, msgs[2].OfAssistant.ToolCalls, 2)
	require.NotNil(t, msgs[3].OfTool)
	assert.Equal(t, "a", msgs[3].OfTool.ToolCallID)
	assert.Equal(t, "b", msgs[4].OfTool.ToolCallID)
	assert.NotNil(t, msgs[5].OfAssistant)
}

func TestBuildParams_ToolChoice(t *testing.T) {
	client := openai.NewClient()
	e := NewExecutorFromClient(&client, func(o *Options) { o.Model = "gpt-test" })

	tools := []core.ToolDescriptor{{Name: "calc", Parameters: map[string]any{"type": "object"}}}

	p := e.buildParams(model.Request{Tools: tools, ToolChoice: model.ToolChoice{Mode: model.ToolChoiceRequired}})
	assert.Equal(t, "gpt-test", p.Model)
	require.Len(t, p.Tools, 1)
	assert.Equal(t, "required", p.ToolChoice.OfAuto.Value)

	p = e.buildParams(model.Request{Model: "override", Tools: tools, ToolChoice: model.ForceTool("calc")})
	assert.Equal(t, "override", p.Model)
	require.NotNil(t, p.ToolChoice.OfChatCompletionNamedToolChoice)
	assert.Equal(t, "calc", p.ToolChoice.OfChatCompletionNamedToolChoice.Function.Name)

	p = e.buildParams(model.Request{})
	assert.Empty(t, p.Tools)
}
