package toolbox

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// ToolBox is a registry of tools keyed by name.
type ToolBox struct {
	tools map[string]Tool
}

// New creates an empty ToolBox.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]Tool),
	}
}

// Register adds tools, replacing any registered under the same name.
func (tb *ToolBox) Register(tools ...Tool) {
	for _, t := range tools {
		tb.tools[t.Name] = t
	}
}

// Tools returns the registered tools ordered by name.
func (tb *ToolBox) Tools() []Tool {
	result := make([]Tool, 0, len(tb.tools))
	for _, t := range tb.tools {
		result = append(result, t)
	}

	slices.SortFunc(result, func(a, b Tool) int { return cmp.Compare(a.Name, b.Name) })

	return result
}

// Names returns the registered tool names in order.
func (tb *ToolBox) Names() []string {
	tools := tb.Tools()

	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}

	return names
}

// Call runs the tool registered as name. Empty input is passed as "{}".
func (tb *ToolBox) Call(ctx context.Context, name string, input json.RawMessage) Result {
	t, ok := tb.tools[name]
	if !ok {
		return Result{
			Content: fmt.Sprintf("tool not found: %s", name),
			IsError: true,
		}
	}

	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	out, err := t.Handler(ctx, input)
	if err != nil {
		return Result{Content: err.Error(), IsError: true}
	}

	return Result{Content: out}
}
