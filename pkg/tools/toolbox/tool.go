package toolbox

import (
	"context"
	"encoding/json"
)

// Handler runs a tool with the given JSON arguments and returns a text result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is a named device operation with a JSON Schema for its arguments.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Result is the outcome of ToolBox.Call. Failures are reported in Content
// with IsError set rather than as a Go error, so that callers can relay them.
type Result struct {
	Content string
	IsError bool
}
