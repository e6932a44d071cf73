// Package tools provides the tool registry and dispatcher behind /mcp/run.
package tools

import "context"

// Tool is the interface that all tools must implement
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a human-readable description for callers
	Description() string

	// Schema returns the JSON Schema for the tool's parameters
	Schema() map[string]any

	// Execute runs the tool. Failures are reported in the Result, never as panics
	// or Go errors; the registry still recovers if a tool misbehaves.
	Execute(ctx context.Context, params Params) Result
}

// ToolDefinition is the advertised shape of a registered tool.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToDefinition converts a Tool to its advertised form
func ToDefinition(t Tool) ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}

// objectSchema builds a JSON Schema object with string properties.
func objectSchema(required []string, props map[string]string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, desc := range props {
		properties[name] = map[string]any{
			"type":        "string",
			"description": desc,
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
