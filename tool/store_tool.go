package tool

import (
	"fmt"
	"sort"

	"github.com/hupe1980/agentgraph/core"
)

// StoreTool lets the model read and write the run's key/value store through
// the ToolContext. Values written by the model are stored under untyped keys
// (core.Key[any]).
type StoreTool struct {
	name        string
	description string
}

var _ Tool = (*StoreTool)(nil)

// NewStoreTool creates the run store tool. Supported operations are
// get, set, remove and list.
func NewStoreTool() *StoreTool {
	return &StoreTool{
		name: "run_store",
		description: "Reads and writes values shared across the current run. " +
			"Supports operations: get, set, remove, list.",
	}
}

// Name returns the tool identifier.
func (t *StoreTool) Name() string { return t.name }

// Description returns the tool description.
func (t *StoreTool) Description() string { return t.description }

// Parameters returns the JSON schema for tool parameters.
func (t *StoreTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"enum":        []string{"get", "set", "remove", "list"},
				"description": "The store operation to perform",
			},
			"key": map[string]any{
				"type":        "string",
				"description": "Key for get/set/remove operations",
			},
			"value": map[string]any{
				"description": "Value for set operations (any JSON value)",
			},
		},
		"required": []string{"operation"},
	}
}

// Call implements the Tool interface.
func (t *StoreTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	operation, _ := args["operation"].(string)
	store := toolCtx.Store()

	if operation == "list" {
		keys := make([]string, 0, store.Len())
		for k := range store.ToMap() {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return map[string]any{"keys": keys}, nil
	}

	key, ok := args["key"].(string)
	if !ok || key == "" {
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("key parameter is required for %s operation", operation),
			Code:    CodeValidation,
		}
	}
	k := core.NewKey[any](key)

	switch operation {
	case "get":
		value, exists := core.Get(store, k)
		return map[string]any{"key": key, "exists": exists, "value": value}, nil
	case "set":
		core.Set(store, k, args["value"])
		return map[string]any{"key": key, "success": true}, nil
	case "remove":
		_, existed := core.Remove(store, k)
		return map[string]any{"key": key, "removed": existed}, nil
	default:
		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("unknown operation: %s", operation),
			Code:    CodeValidation,
		}
	}
}
