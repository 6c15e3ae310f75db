package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/internal/util"
	"github.com/hupe1980/agentgraph/model"
	"github.com/xeipuuv/gojsonschema"
)

// StructuredOutputError is returned when the model output could not be
// turned into the requested type within the retry budget.
type StructuredOutputError struct {
	Attempts int
	Output   string
	Err      error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("structured output invalid after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

// StructuredOptions tune one RequestStructured call.
type StructuredOptions struct {
	// Instruction precedes the schema in the request appended to the transcript.
	Instruction string
	// Retries overrides the context's StructuredRetries when >= 0.
	Retries int
	// FixingModel overrides the context's FixingModel.
	FixingModel string
}

// RequestStructured asks the model for a JSON document matching the schema
// reflected from T. Invalid output goes through a repair loop against the
// fixing model, at most Retries times. On a write session the instruction and
// the final valid JSON reply are appended to the transcript.
func RequestStructured[T any](ctx context.Context, s Session, optFns ...func(o *StructuredOptions)) (T, error) {
	var zero T
	b := s.base()
	if b.closed.Load() {
		return zero, ErrSessionClosed
	}

	llm := b.llm
	opts := StructuredOptions{
		Instruction: "Respond with a single JSON document matching this JSON schema. Do not add any other text.",
		Retries:     -1,
		FixingModel: llm.opts.FixingModel,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Retries < 0 {
		opts.Retries = llm.opts.StructuredRetries
	}
	fixingModel := opts.FixingModel
	if fixingModel == "" {
		fixingModel = b.modelID
	}

	schema := util.ReflectSchema[T]()
	compiled, err := util.CompileSchema(schema)
	if err != nil {
		return zero, fmt.Errorf("compile structured schema: %w", err)
	}
	rawSchema, _ := json.Marshal(schema)

	instruction := core.NewUserMessage(opts.Instruction + "\n\n" + string(rawSchema))
	resp, err := llm.call(ctx, model.Request{
		Messages:   append(core.CloneMessages(b.transcript), instruction),
		Model:      b.modelID,
		ToolChoice: model.ToolChoice{Mode: model.ToolChoiceNone},
	})
	if err != nil {
		return zero, err
	}
	if len(resp) == 0 {
		return zero, ErrNoResponse
	}

	output := merge(model.Messages(resp)).Text()
	attempts := 1
	value, parseErr := parseStructured[T](output, compiled)

	for parseErr != nil && attempts <= opts.Retries {
		llm.opts.Logger.Warn("session.request.structured.retry",
			"run_id", llm.opts.RunID,
			"attempt", attempts,
			"model", fixingModel,
			"error", parseErr,
		)

		fixResp, err := llm.call(ctx, model.Request{
			Messages: []core.Message{
				core.NewSystemMessage("You repair JSON documents so that they satisfy a JSON schema. Reply with the corrected JSON only."),
				core.NewUserMessage(fmt.Sprintf("Schema:\n%s\n\nDocument:\n%s\n\nProblem:\n%v", rawSchema, output, parseErr)),
			},
			Model:      fixingModel,
			ToolChoice: model.ToolChoice{Mode: model.ToolChoiceNone},
		})
		if err != nil {
			return zero, err
		}
		attempts++
		if len(fixResp) == 0 {
			parseErr = ErrNoResponse
			continue
		}
		output = merge(model.Messages(fixResp)).Text()
		value, parseErr = parseStructured[T](output, compiled)
	}

	if parseErr != nil {
		return zero, &StructuredOutputError{Attempts: attempts, Output: output, Err: parseErr}
	}

	if b.write {
		b.transcript = append(b.transcript, instruction, core.NewAssistantMessage(extractJSON(output)))
	}
	return value, nil
}

func parseStructured[T any](output string, compiled *gojsonschema.Schema) (T, error) {
	var zero T
	doc := extractJSON(output)

	var raw any
	if err := json.Unmarshal([]byte(doc), &raw); err != nil {
		return zero, fmt.Errorf("not valid JSON: %w", err)
	}
	if err := util.Validate(compiled, raw); err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return zero, err
	}
	return out, nil
}

// extractJSON strips markdown code fences and surrounding prose.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if i := strings.LastIndex(s, "```"); i >= 0 {
			s = s[:i]
		}
		s = strings.TrimSpace(s)
	}
	if start := strings.IndexAny(s, "{["); start > 0 {
		s = s[start:]
	}
	if end := strings.LastIndexAny(s, "}]"); end >= 0 && end < len(s)-1 {
		s = s[:end+1]
	}
	return s
}
