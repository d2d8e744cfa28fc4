// Package tools provides the agent's tool surface: a registry of invocable
// tools, a dispatcher that turns raw model tool calls into result strings,
// and adapters for static built-ins and remote MCP servers.
package tools

import (
	"context"
	"encoding/json"
)

// Spec describes a tool to the model. InputSchema is a JSON Schema document.
type Spec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// Tool is a single invocable capability. Validate rejects malformed input
// before Invoke runs; Invoke returns either a plain string or a value that
// marshals to a JSON object.
type Tool interface {
	Name() string
	Spec() Spec
	Validate(input json.RawMessage) error
	Invoke(ctx context.Context, input json.RawMessage) (any, error)
}
