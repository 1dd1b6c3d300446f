package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stxkxs/troupe/internal/memory"
)

// MemorySearchTool searches a memory store. Crews register one per kickoff so
// agents can recall what earlier tasks stored.
type MemorySearchTool struct {
	store *memory.Store
}

// NewMemorySearchTool creates a new memory_search tool over store.
func NewMemorySearchTool(store *memory.Store) *MemorySearchTool {
	return &MemorySearchTool{store: store}
}

// Name returns the tool name
func (t *MemorySearchTool) Name() string {
	return "memory_search"
}

// Description returns the tool description
func (t *MemorySearchTool) Description() string {
	return "Search shared memory for entries matching a query. Matches keys and values, most frequently used first."
}

// Parameters returns the JSON schema for the tool parameters
func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"query": map[string]interface{}{
			"type":        "string",
			"description": "Text to search for in memory keys and values",
		},
		"limit": map[string]interface{}{
			"type":        "integer",
			"description": "Maximum number of entries to return (default: 5)",
		},
	}
}

// MemorySearchArgs represents the arguments for memory_search
type MemorySearchArgs struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// Execute searches the store
func (t *MemorySearchTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args MemorySearchArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	if args.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	if args.Limit <= 0 {
		args.Limit = 5
	}

	items := t.store.Search(args.Query, args.Limit)
	if len(items) == 0 {
		return "No matching memory entries.", nil
	}

	var out strings.Builder
	for _, item := range items {
		value, err := json.Marshal(item.Value)
		if err != nil {
			value = []byte(fmt.Sprintf("%v", item.Value))
		}
		out.WriteString(fmt.Sprintf("%s: %s\n", item.Key, value))
	}
	return out.String(), nil
}

// Test verifies the tool works
func (t *MemorySearchTool) Test(ctx context.Context) (string, error) {
	return fmt.Sprintf("memory_search tool operational, store holds %d entries", t.store.Len()), nil
}
