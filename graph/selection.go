package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/agentgraph/core"
	"github.com/hupe1980/agentgraph/session"
	"github.com/hupe1980/agentgraph/tool"
)

// ToolSelection decides which tools the model sees while a subgraph runs.
// Implementations are AllTools, NoTools, ExplicitTools and AutoSelectForTask.
// Selections narrow the tools visible where the subgraph runs, so a nested
// subgraph never sees a tool its parent hid.
type ToolSelection interface {
	// selectTools returns the restricted list, or restrict=false to run
	// against the context unchanged.
	selectTools(ctx context.Context, rc *RunContext) (tools []core.ToolDescriptor, restrict bool, err error)
}

type allTools struct{}

func (allTools) selectTools(context.Context, *RunContext) ([]core.ToolDescriptor, bool, error) {
	return nil, false, nil
}

type noTools struct{}

func (noTools) selectTools(context.Context, *RunContext) ([]core.ToolDescriptor, bool, error) {
	return []core.ToolDescriptor{}, true, nil
}

var (
	// AllTools leaves the tool list unchanged.
	AllTools ToolSelection = allTools{}
	// NoTools hides every tool.
	NoTools ToolSelection = noTools{}
)

type explicitTools struct {
	patterns []string
}

// ExplicitTools restricts the tools to those whose name matches one of the
// patterns. Patterns use doublestar glob syntax; a plain name matches itself.
func ExplicitTools(patterns ...string) ToolSelection {
	return explicitTools{patterns: patterns}
}

func (e explicitTools) selectTools(_ context.Context, rc *RunContext) ([]core.ToolDescriptor, bool, error) {
	out, err := tool.FilterDescriptors(rc.LLM.Tools(), e.patterns...)
	if err != nil {
		return nil, false, err
	}
	if out == nil {
		out = []core.ToolDescriptor{}
	}
	return out, true, nil
}

type autoSelect struct {
	task       string
	maxRetries int
}

// AutoSelectForTask lets the model pick the tools relevant for task. The
// selection exchange runs on a compressed copy of the conversation and is
// removed from the transcript afterwards. maxRetries bounds the repair
// attempts for a malformed selection.
func AutoSelectForTask(task string, maxRetries int) ToolSelection {
	return autoSelect{task: task, maxRetries: maxRetries}
}

// toolSelectionResult is the structured reply of the selection request.
type toolSelectionResult struct {
	Tools []string `json:"tools" jsonschema:"description=Names of the tools needed for the task"`
}

func (a autoSelect) selectTools(ctx context.Context, rc *RunContext) ([]core.ToolDescriptor, bool, error) {
	available := rc.LLM.Tools()
	if len(available) == 0 {
		return []core.ToolDescriptor{}, true, nil
	}

	selected, err := session.Write(ctx, rc.LLM, func(ws *session.WriteSession) ([]string, error) {
		saved := ws.Transcript()
		defer ws.SetTranscript(saved)

		if err := ws.ReplaceHistoryWithTLDR(ctx); err != nil {
			return nil, err
		}
		ws.AppendUser(selectionPrompt(a.task, available))

		res, err := session.RequestStructured[toolSelectionResult](ctx, ws, func(o *session.StructuredOptions) {
			o.Retries = a.maxRetries
		})
		if err != nil {
			return nil, err
		}
		return res.Tools, nil
	})
	if err != nil {
		return nil, false, err
	}

	wanted := make(map[string]struct{}, len(selected))
	for _, name := range selected {
		wanted[name] = struct{}{}
	}
	out := make([]core.ToolDescriptor, 0, len(selected))
	for _, d := range available {
		if _, ok := wanted[d.Name]; ok {
			out = append(out, d)
		}
	}

	rc.logger().Info("graph.tools.auto_selected",
		"run_id", rc.RunID,
		"requested", len(selected),
		"selected", len(out),
	)
	return out, true, nil
}

func selectionPrompt(task string, tools []core.ToolDescriptor) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Select the tools needed to accomplish the following task.\n\nTask: %s\n\nAvailable tools:\n", task)
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
	}
	b.WriteString("\nOnly select tools from this list.")
	return b.String()
}

func descriptorNames(tools []core.ToolDescriptor) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = t.Name
	}
	return out
}
