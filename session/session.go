package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/model"
	"github.com/hupe1980/agentgraph/pipeline"
)

// ErrSessionClosed reports use of a session outside its callback.
var ErrSessionClosed = errors.New("session closed")

// ErrNoResponse is returned when the executor produced no message.
var ErrNoResponse = errors.New("model returned no response")

// Session is implemented by *ReadSession and *WriteSession.
type Session interface {
	Transcript() []core.Message
	Tools() []core.ToolDescriptor
	Model() string

	base() *session
}

type session struct {
	llm    *LLMContext
	write  bool
	closed atomic.Bool

	transcript []core.Message
	tools      []core.ToolDescriptor
	modelID    string
}

func (s *session) base() *session { return s }

func (s *session) mustBeOpen() {
	if s.closed.Load() {
		panic(ErrSessionClosed)
	}
}

// Transcript returns a copy of the session's transcript.
func (s *session) Transcript() []core.Message {
	s.mustBeOpen()
	return core.CloneMessages(s.transcript)
}

// Tools returns a copy of the session's tool list.
func (s *session) Tools() []core.ToolDescriptor {
	s.mustBeOpen()
	return cloneTools(s.tools)
}

// Model returns the session's model id.
func (s *session) Model() string {
	s.mustBeOpen()
	return s.modelID
}

// LastMessage returns the final transcript message, if any.
func (s *session) LastMessage() (core.Message, bool) {
	s.mustBeOpen()
	if len(s.transcript) == 0 {
		return core.Message{}, false
	}
	return s.transcript[len(s.transcript)-1], true
}

// RequestWithoutTools asks the model for a plain reply; no tools are offered.
func (s *session) RequestWithoutTools(ctx context.Context) (core.Message, error) {
	return s.requestOne(ctx, model.Request{ToolChoice: model.ToolChoice{Mode: model.ToolChoiceNone}}, false)
}

// RequestWithTools offers the session's tools and lets the model choose.
func (s *session) RequestWithTools(ctx context.Context) (core.Message, error) {
	return s.requestOne(ctx, model.Request{ToolChoice: model.ToolChoice{Mode: model.ToolChoiceAuto}}, true)
}

// RequestForceTools offers the session's tools and requires a tool call.
func (s *session) RequestForceTools(ctx context.Context) (core.Message, error) {
	return s.requestOne(ctx, model.Request{ToolChoice: model.ToolChoice{Mode: model.ToolChoiceRequired}}, true)
}

// RequestForceOneTool requires a call of the named tool, which must be part
// of the session's tool list.
func (s *session) RequestForceOneTool(ctx context.Context, name string) (core.Message, error) {
	if s.closed.Load() {
		return core.Message{}, ErrSessionClosed
	}
	var found *core.ToolDescriptor
	for i := range s.tools {
		if s.tools[i].Name == name {
			found = &s.tools[i]
			break
		}
	}
	if found == nil {
		return core.Message{}, fmt.Errorf("tool %q is not available in this session", name)
	}
	return s.requestOne(ctx, model.Request{
		Tools:      []core.ToolDescriptor{*found},
		ToolChoice: model.ForceTool(name),
	}, false)
}

// RequestMultiple offers the session's tools and returns every message the
// model produced.
func (s *session) RequestMultiple(ctx context.Context) ([]core.Message, error) {
	resp, err := s.request(ctx, model.Request{
		Tools:      cloneTools(s.tools),
		ToolChoice: model.ToolChoice{Mode: model.ToolChoiceAuto},
	})
	if err != nil {
		return nil, err
	}
	return model.Messages(resp), nil
}

// RequestStreaming streams a plain reply. Streamed text is not appended to
// the transcript.
func (s *session) RequestStreaming(ctx context.Context) (<-chan string, <-chan error) {
	if s.closed.Load() {
		out := make(chan string)
		errCh := make(chan error, 1)
		close(out)
		errCh <- ErrSessionClosed
		close(errCh)
		return out, errCh
	}
	return s.llm.executor.ExecuteStreaming(ctx, model.Request{
		Messages: core.CloneMessages(s.transcript),
		Model:    s.modelID,
	})
}

// requestOne issues a request and folds the responses into one message.
func (s *session) requestOne(ctx context.Context, req model.Request, withTools bool) (core.Message, error) {
	if withTools {
		req.Tools = cloneTools(s.tools)
	}
	resp, err := s.request(ctx, req)
	if err != nil {
		return core.Message{}, err
	}
	return merge(model.Messages(resp)), nil
}

// request runs one model call around the pipeline hooks. On write sessions
// the produced messages are appended to the transcript.
func (s *session) request(ctx context.Context, req model.Request) ([]model.Response, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	req.Messages = core.CloneMessages(s.transcript)
	if req.Model == "" {
		req.Model = s.modelID
	}

	resp, err := s.llm.call(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, ErrNoResponse
	}
	resp = withCallIDs(resp)

	if s.write {
		s.transcript = append(s.transcript, model.Messages(resp)...)
	}
	return resp, nil
}

// withCallIDs gives every tool call without an ID a fresh one, so the
// transcript and later results refer to the same call.
func withCallIDs(resp []model.Response) []model.Response {
	out := resp
	for i, r := range resp {
		var parts []core.Part
		for j, p := range r.Message.Parts {
			cp, ok := p.(core.ToolCallPart)
			if !ok || cp.Call.ID != "" {
				continue
			}
			if parts == nil {
				parts = append([]core.Part(nil), r.Message.Parts...)
			}
			cp.Call.ID = uuid.NewString()
			parts[j] = cp
		}
		if parts == nil {
			continue
		}
		if &out[0] == &resp[0] {
			out = append([]model.Response(nil), resp...)
		}
		out[i].Message.Parts = parts
	}
	return out
}

// call executes a request around the before/after model-call hooks. Hook
// errors abort the call.
func (c *LLMContext) call(ctx context.Context, req model.Request) ([]model.Response, error) {
	p := c.opts.Pipeline
	if p != nil {
		if err := p.OnBeforeLLMCall(ctx, pipeline.BeforeLLMCallEvent{RunID: c.opts.RunID, Request: req}); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	resp, err := c.executor.Execute(ctx, req)
	dur := time.Since(start)
	if err != nil {
		c.opts.Logger.Error("session.request.failed", "run_id", c.opts.RunID, "model", req.Model, "error", err)
		return nil, fmt.Errorf("model request: %w", err)
	}

	c.opts.Logger.Debug("session.request",
		"run_id", c.opts.RunID,
		"model", req.Model,
		"tools", len(req.Tools),
		"responses", len(resp),
		"duration_ms", dur.Milliseconds(),
	)

	if p != nil {
		if err := p.OnAfterLLMCall(ctx, pipeline.AfterLLMCallEvent{
			RunID:     c.opts.RunID,
			Request:   req,
			Responses: resp,
			Duration:  dur,
		}); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// merge folds several assistant messages into one, keeping part order.
func merge(msgs []core.Message) core.Message {
	if len(msgs) == 1 {
		return msgs[0]
	}
	out := core.Message{Role: core.RoleAssistant}
	for _, m := range msgs {
		out.Parts = append(out.Parts, m.Parts...)
	}
	return out
}

// ReadSession is a frozen, shared view of the conversation state.
type ReadSession struct {
	*session
}

// WriteSession is an exclusive, mutable view of the conversation state.
type WriteSession struct {
	*session
}

// AppendMessages appends messages to the transcript.
func (ws *WriteSession) AppendMessages(msgs ...core.Message) {
	ws.mustBeOpen()
	ws.transcript = append(ws.transcript, msgs...)
}

// AppendUser appends a user text message.
func (ws *WriteSession) AppendUser(text string) {
	ws.AppendMessages(core.NewUserMessage(text))
}

// AppendSystem appends a system text message.
func (ws *WriteSession) AppendSystem(text string) {
	ws.AppendMessages(core.NewSystemMessage(text))
}

// AppendToolResults appends a tool message carrying the results.
func (ws *WriteSession) AppendToolResults(results ...core.ToolResult) {
	ws.AppendMessages(core.NewToolResultMessage(results...))
}

// SetTranscript replaces the transcript.
func (ws *WriteSession) SetTranscript(msgs []core.Message) {
	ws.mustBeOpen()
	ws.transcript = core.CloneMessages(msgs)
}

// ClearHistory removes every message but the system messages.
func (ws *WriteSession) ClearHistory() {
	ws.mustBeOpen()
	ws.transcript = systemMessages(ws.transcript)
}

// SetTools replaces the active tool list.
func (ws *WriteSession) SetTools(tools []core.ToolDescriptor) {
	ws.mustBeOpen()
	ws.tools = cloneTools(tools)
}

// SetModel switches the model id used by subsequent requests.
func (ws *WriteSession) SetModel(id string) {
	ws.mustBeOpen()
	ws.modelID = id
}

// tldrPrompt asks the model to compress the conversation.
const tldrPrompt = "Summarize the conversation so far as a concise TL;DR. " +
	"Keep every fact, decision and open task needed to continue the work. Reply with the summary only."

// ReplaceHistoryWithTLDR asks the model to summarize the conversation and
// replaces the transcript with the system messages followed by the summary.
func (ws *WriteSession) ReplaceHistoryWithTLDR(ctx context.Context) error {
	if ws.closed.Load() {
		return ErrSessionClosed
	}
	if len(ws.transcript) == 0 {
		return nil
	}

	req := model.Request{
		Messages:   append(core.CloneMessages(ws.transcript), core.NewUserMessage(tldrPrompt)),
		Model:      ws.modelID,
		ToolChoice: model.ToolChoice{Mode: model.ToolChoiceNone},
	}
	resp, err := ws.llm.call(ctx, req)
	if err != nil {
		return fmt.Errorf("compress history: %w", err)
	}
	if len(resp) == 0 {
		return ErrNoResponse
	}

	summary := merge(model.Messages(resp)).Text()
	ws.transcript = append(systemMessages(ws.transcript), core.NewAssistantMessage(summary))
	return nil
}

func systemMessages(msgs []core.Message) []core.Message {
	var out []core.Message
	for _, m := range msgs {
		if m.Role == core.RoleSystem {
			out = append(out, m)
		}
	}
	return out
}
