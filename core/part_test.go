package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessage_Accessors(t *testing.T) {
	call := ToolCall{ID: "c1", Name: "calc", Arguments: `{"a":1}`}
	msg := Message{Role: RoleAssistant, Parts: []Part{
		TextPart{Text: "let me "},
		TextPart{Text: "check"},
		ToolCallPart{Call: call},
	}}

	assert.Equal(t, "let me check", msg.Text())
	assert.True(t, msg.HasToolCalls())
	assert.Equal(t, []ToolCall{call}, msg.ToolCalls())
	assert.Empty(t, msg.ToolResults())

	res := NewToolResultMessage(ToolResult{ID: "c1", Name: "calc", Content: "2", Status: ToolResultSuccess})
	assert.Equal(t, RoleTool, res.Role)
	assert.False(t, res.ToolResults()[0].Failed())
	assert.False(t, NewUserMessage("hi").HasToolCalls())
}

func TestCloneMessages(t *testing.T) {
	orig := []Message{NewUserMessage("a")}
	cp := CloneMessages(orig)
	cp[0] = NewUserMessage("b")

	assert.Equal(t, "a", orig[0].Text())
	assert.Nil(t, CloneMessages(nil))
}
