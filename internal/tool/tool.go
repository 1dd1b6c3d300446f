// Package tool defines the capability contract agents call during task
// execution and the registry tool names resolve against. Built-in tools
// cover file and HTTP access; operators declare more in troupe.yaml.
package tool

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

// Tool is one callable capability. Execute receives the raw JSON arguments
// the model produced; the returned string goes back to the model verbatim.
type Tool interface {
	// Name returns the name agents reference in their tools list.
	Name() string

	// Description tells the model when to call this tool.
	Description() string

	// Parameters returns the JSON schema properties for the arguments.
	Parameters() map[string]interface{}

	// Execute runs the tool.
	Execute(ctx context.Context, args json.RawMessage) (string, error)

	// Test verifies the tool is usable in this environment.
	Test(ctx context.Context) (string, error)
}

// ToolInfo is the name and description pair shown in listings.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry resolves tool names to implementations.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, replacing any previous tool with the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name. Unknown names return a TOOL_NOT_FOUND error
// whose suggestion lists what is registered.
func (r *Registry) Get(name string) (Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, troupeErrors.Newf(troupeErrors.CodeToolNotFound, "tool not found: %s", name).
			WithSuggestion("Available tools: " + strings.Join(r.Names(), ", "))
	}
	return t, nil
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered tools, sorted by name.
func (r *Registry) List() []Tool {
	tools := make([]Tool, 0, len(r.tools))
	for _, name := range r.Names() {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// DefaultRegistry is the process-wide registry agents resolve against.
var DefaultRegistry = NewRegistry()

// Register registers a tool in the default registry.
func Register(t Tool) {
	DefaultRegistry.Register(t)
}

// Get retrieves a tool from the default registry.
func Get(name string) (Tool, error) {
	return DefaultRegistry.Get(name)
}

// List returns all tools in the default registry, sorted by name.
func List() []Tool {
	return DefaultRegistry.List()
}
