package tool

import (
	"context"
	"sort"

	"github.com/stxkxs/troupe/internal/tool/builtin"
)

// builtinTools tracks which registered tools ship with the runtime, as
// opposed to those declared in troupe.yaml.
var builtinTools = map[string]Tool{}

func init() {
	// Scope file access to the process working directory until a
	// workspace is configured.
	RegisterBuiltins("")
}

// RegisterBuiltins registers the built-in tools, scoping file access to
// workspace. Calling it again with a different workspace re-registers them.
func RegisterBuiltins(workspace string) {
	builtinTools["file_read"] = builtin.NewFileReadTool(workspace)
	builtinTools["file_write"] = builtin.NewFileWriteTool(workspace)
	builtinTools["http_get"] = builtin.NewHTTPGetTool()

	for _, t := range builtinTools {
		DefaultRegistry.Register(t)
	}
}

// IsBuiltin reports whether name is one of the built-in tools.
func IsBuiltin(name string) bool {
	_, ok := builtinTools[name]
	return ok
}

// ListBuiltins returns the built-in tools in name order.
func ListBuiltins() []ToolInfo {
	infos := make([]ToolInfo, 0, len(builtinTools))
	for name, t := range builtinTools {
		infos = append(infos, ToolInfo{
			Name:        name,
			Description: t.Description(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// ExecuteTool resolves name in the default registry and invokes it with the
// raw JSON arguments.
func ExecuteTool(ctx context.Context, name string, args string) (string, error) {
	t, err := Get(name)
	if err != nil {
		return "", err
	}
	return t.Execute(ctx, []byte(args))
}
