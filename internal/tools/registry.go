package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	. "github.com/roelfdiedericks/wamcp/internal/logging"
)

// Registry holds all registered tools
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Has returns true if a tool with the given name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Dispatch routes req to the tool named by exact match and returns its result.
// Unknown names and handler panics come back as failed results, so callers
// always get an envelope.
func (r *Registry) Dispatch(ctx context.Context, req Request) (res Result) {
	name := req.ToolName
	if strings.TrimSpace(name) == "" {
		return Fail("tool_name is required")
	}

	tool, ok := r.Get(name)
	if !ok {
		L_warn("tools: unknown tool", "tool", name)
		return Failf("Unknown tool: %s", name)
	}

	params := req.Parameters
	if params == nil {
		params = Params{}
	}

	defer func() {
		if p := recover(); p != nil {
			L_error("tools: handler panic", "tool", name, "panic", p)
			res = Fail(fmt.Sprintf("%s failed: internal error", name))
		}
	}()

	L_debug("tools: dispatch", "tool", name, "params", len(params))
	return tool.Execute(ctx, params)
}

// List returns all registered tool names, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Definitions returns all tools in advertised form, sorted by name
func (r *Registry) Definitions() []ToolDefinition {
	names := r.List()

	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		if tool, ok := r.tools[name]; ok {
			defs = append(defs, ToDefinition(tool))
		}
	}
	return defs
}

// Count returns the number of registered tools
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Summary returns one line per tool, "name - first sentence of description".
func (r *Registry) Summary() []string {
	defs := r.Definitions()
	lines := make([]string, 0, len(defs))
	for _, d := range defs {
		lines = append(lines, fmt.Sprintf("%s - %s", d.Name, truncateDescription(d.Description, 80)))
	}
	return lines
}

// truncateDescription shortens a description for the summary view
func truncateDescription(desc string, maxLen int) string {
	if idx := strings.Index(desc, ". "); idx > 0 && idx < maxLen {
		return desc[:idx+1]
	}
	if len(desc) <= maxLen {
		return desc
	}

	// Avoid cutting words
	truncated := desc[:maxLen]
	if idx := strings.LastIndex(truncated, " "); idx > maxLen/2 {
		truncated = truncated[:idx]
	}
	return truncated + "..."
}
