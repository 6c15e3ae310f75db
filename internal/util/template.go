package util

import (
	"bytes"
	"fmt"
	"maps"
	"strings"
	"text/template"
	"text/template/parse"
)

// RenderPrompt expands template markers in a prompt with the given variables
// (typically a snapshot of the run's key/value store). Missing keys render as
// empty strings.
func RenderPrompt(text string, vars map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("prompt").Option("missingkey=zero").Funcs(template.FuncMap{
		"default": func(defaultVal any, val any) any {
			if val == nil || val == "" {
				return defaultVal
			}
			return val
		},
		"upper": strings.ToUpper,
		"lower": strings.ToLower,
		"join": func(sep string, items []any) string {
			strItems := make([]string, len(items))
			for i, item := range items {
				strItems[i] = fmt.Sprintf("%v", item)
			}
			return strings.Join(strItems, sep)
		},
	}).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse prompt template: %w", err)
	}

	data := vars
	for _, path := range rootFields(tmpl.Root) {
		data, _ = fillMissing(data, path)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt template: %w", err)
	}
	return buf.String(), nil
}

// fillMissing returns m with an empty string at path when the key is absent.
// Maps on the way are copied before they are changed; m itself is never
// modified.
func fillMissing(m map[string]any, path []string) (map[string]any, bool) {
	v, ok := m[path[0]]
	if len(path) == 1 {
		if ok {
			return m, false
		}
		return with(m, path[0], ""), true
	}

	sub, isMap := v.(map[string]any)
	if ok && !isMap {
		return m, false
	}
	sub, changed := fillMissing(sub, path[1:])
	if !changed {
		return m, false
	}
	return with(m, path[0], sub), true
}

func with(m map[string]any, key string, v any) map[string]any {
	out := maps.Clone(m)
	if out == nil {
		out = make(map[string]any, 1)
	}
	out[key] = v
	return out
}

// rootFields lists the field chains evaluated against the top-level data,
// such as [name] for {{.name}} or [user id] for {{$.user.id}}. Bodies of
// range and with are skipped since dot is rebound there.
func rootFields(root *parse.ListNode) [][]string {
	var out [][]string
	var walk func(n parse.Node)
	walk = func(n parse.Node) {
		switch n := n.(type) {
		case *parse.ListNode:
			if n == nil {
				return
			}
			for _, c := range n.Nodes {
				walk(c)
			}
		case *parse.ActionNode:
			walk(n.Pipe)
		case *parse.IfNode:
			walk(n.Pipe)
			walk(n.List)
			walk(n.ElseList)
		case *parse.RangeNode:
			walk(n.Pipe)
			walk(n.ElseList)
		case *parse.WithNode:
			walk(n.Pipe)
			walk(n.ElseList)
		case *parse.PipeNode:
			if n == nil {
				return
			}
			for _, cmd := range n.Cmds {
				walk(cmd)
			}
		case *parse.CommandNode:
			for _, arg := range n.Args {
				walk(arg)
			}
		case *parse.FieldNode:
			out = append(out, n.Ident)
		case *parse.VariableNode:
			if len(n.Ident) > 1 && n.Ident[0] == "$" {
				out = append(out, n.Ident[1:])
			}
		}
	}
	walk(root)
	return out
}
