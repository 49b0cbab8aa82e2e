// Package mcptools connects to a fleet of MCP servers, merges their tools
// into one namespaced catalog, and routes invocations back to the owning
// server.
package mcptools

import (
	"fmt"
)

// Capability describes one invokable tool. Before registration Name is the
// server's original tool name; the Registry stores copies under the
// namespaced name.
type Capability struct {
	Name        string
	Description string
	// InputSchema is a JSON-schema-shaped value. Tools discovered over MCP
	// carry *jsonschema.Schema from the SDK; locally defined tools may use
	// any value that marshals to a schema object.
	InputSchema any
	// Builtin marks capabilities that are not backed by an MCP session and
	// therefore cannot be dispatched through the registry.
	Builtin bool
}

// Outcome is the structured result of a tool dispatch. Dispatch never
// fails with an error; transport and routing problems become failure
// outcomes so the caller can feed them back to the model.
type Outcome struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func Succeeded(result any) *Outcome {
	return &Outcome{Success: true, Result: result}
}

func Failed(format string, args ...any) *Outcome {
	return &Outcome{Success: false, Error: fmt.Sprintf(format, args...)}
}
