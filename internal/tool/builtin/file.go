package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// maxFileBytes caps file_read output the same way http_get caps response
// bodies, so one large file cannot blow the model context.
const maxFileBytes = 256 * 1024

// resolvePath resolves p under baseDir and rejects paths that escape it.
// Agents run server-side, so file access stays inside the configured workspace.
func resolvePath(baseDir, p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is required")
	}

	base := baseDir
	if base == "" {
		base, _ = os.Getwd()
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("invalid workspace: %w", err)
	}

	abs := p
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(base, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", p)
	}
	return abs, nil
}

// lineRange trims content to the 1-based inclusive window [start, end].
// A zero value leaves that edge open.
func lineRange(content string, start, end int) string {
	lines := strings.Split(content, "\n")
	lo, hi := 0, len(lines)
	if start > 0 {
		lo = start - 1
	}
	if end > 0 && end < hi {
		hi = end
	}
	if lo >= hi || lo >= len(lines) {
		return ""
	}
	return strings.Join(lines[lo:hi], "\n")
}

// FileReadTool reads file contents from the workspace
type FileReadTool struct {
	baseDir string
}

// NewFileReadTool creates a file_read tool scoped to baseDir. An empty
// baseDir scopes to the process working directory.
func NewFileReadTool(baseDir string) *FileReadTool {
	return &FileReadTool{baseDir: baseDir}
}

// Name returns the tool name
func (t *FileReadTool) Name() string {
	return "file_read"
}

// Description returns the tool description
func (t *FileReadTool) Description() string {
	return "Read a file from the workspace, optionally limited to a line range. Returns the content as text, truncated to 256KB."
}

// Parameters returns the JSON schema for the tool parameters
func (t *FileReadTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "File path, relative to the workspace root",
		},
		"start_line": map[string]interface{}{
			"type":        "integer",
			"description": "First line to include, 1-based (optional)",
		},
		"end_line": map[string]interface{}{
			"type":        "integer",
			"description": "Last line to include, inclusive (optional)",
		},
	}
}

// FileReadArgs represents the arguments for file_read
type FileReadArgs struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// Execute reads a file
func (t *FileReadTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args FileReadArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	path, err := resolvePath(t.baseDir, args.Path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("file not found: %s", args.Path)
	}
	if info.IsDir() {
		return "", fmt.Errorf("path is a directory: %s", args.Path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	content := string(raw)
	if args.StartLine > 0 || args.EndLine > 0 {
		content = lineRange(content, args.StartLine, args.EndLine)
	}
	if len(content) > maxFileBytes {
		content = content[:maxFileBytes] + "\n... (truncated at 256KB)"
	}
	return content, nil
}

// Test verifies the tool works
func (t *FileReadTool) Test(ctx context.Context) (string, error) {
	dir := t.baseDir
	if dir == "" {
		dir = "."
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read workspace: %w", err)
	}
	return fmt.Sprintf("file_read tool operational, workspace has %d entries", len(entries)), nil
}

// FileWriteTool writes file contents inside the workspace
type FileWriteTool struct {
	baseDir string
}

// NewFileWriteTool creates a file_write tool scoped to baseDir.
func NewFileWriteTool(baseDir string) *FileWriteTool {
	return &FileWriteTool{baseDir: baseDir}
}

// Name returns the tool name
func (t *FileWriteTool) Name() string {
	return "file_write"
}

// Description returns the tool description
func (t *FileWriteTool) Description() string {
	return "Write text to a file in the workspace, creating parent directories as needed. Overwrites unless append is set."
}

// Parameters returns the JSON schema for the tool parameters
func (t *FileWriteTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "File path, relative to the workspace root",
		},
		"content": map[string]interface{}{
			"type":        "string",
			"description": "Text to write",
		},
		"append": map[string]interface{}{
			"type":        "boolean",
			"description": "Append instead of overwriting (optional)",
		},
	}
}

// FileWriteArgs represents the arguments for file_write
type FileWriteArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append,omitempty"`
}

// Execute writes to a file
func (t *FileWriteTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args FileWriteArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	path, err := resolvePath(t.baseDir, args.Path)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if args.Append {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(args.Content); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	return fmt.Sprintf("Wrote %d bytes to %s", len(args.Content), args.Path), nil
}

// Test verifies the tool works
func (t *FileWriteTool) Test(ctx context.Context) (string, error) {
	dir := t.baseDir
	if dir == "" {
		dir = os.TempDir()
	}
	probe := filepath.Join(dir, ".troupe_write_check")
	if err := os.WriteFile(probe, []byte("ok"), 0644); err != nil {
		return "", fmt.Errorf("write test failed: %w", err)
	}
	os.Remove(probe)
	return "file_write tool operational", nil
}
