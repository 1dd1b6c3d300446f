package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/stxkxs/troupe/internal/config"
)

// Configured tools are declared in troupe.yaml under tools:. Two providers
// exist: "exec" wraps an operator-declared command, "http" wraps an endpoint.
// Both substitute {{input}} with the agent-supplied argument.

// ExecTool wraps a declared shell command as a tool.
type ExecTool struct {
	name        string
	description string
	command     string
	timeout     time.Duration
	workingDir  string
}

// NewExecTool creates a new exec tool.
func NewExecTool(name, description, command string) *ExecTool {
	return &ExecTool{
		name:        name,
		description: description,
		command:     command,
		timeout:     2 * time.Minute,
	}
}

func (t *ExecTool) Name() string        { return t.name }
func (t *ExecTool) Description() string { return t.description }

func (t *ExecTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"input": map[string]interface{}{
			"type":        "string",
			"description": "Input to the command (substituted for {{input}} in the command template)",
		},
	}
}

type inputArgs struct {
	Input string `json:"input"`
}

func (t *ExecTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args inputArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	cmd := strings.ReplaceAll(t.command, "{{input}}", args.Input)

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	command := exec.CommandContext(ctx, "sh", "-c", cmd)
	if t.workingDir != "" {
		command.Dir = t.workingDir
	}
	command.Env = os.Environ()

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	err := command.Run()

	var result strings.Builder
	if stdout.Len() > 0 {
		result.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if result.Len() > 0 {
			result.WriteString("\n")
		}
		result.WriteString("STDERR:\n")
		result.WriteString(stderr.String())
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result.String(), fmt.Errorf("command timed out after %v", t.timeout)
		}
		result.WriteString(fmt.Sprintf("\nExit error: %v", err))
	}

	return result.String(), nil
}

func (t *ExecTool) Test(ctx context.Context) (string, error) {
	_, err := t.Execute(ctx, []byte(`{"input":"test"}`))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("exec tool %q operational", t.name), nil
}

// SetWorkingDir sets the working directory for the command.
func (t *ExecTool) SetWorkingDir(dir string) {
	t.workingDir = dir
}

// SetTimeout sets the execution timeout.
func (t *ExecTool) SetTimeout(d time.Duration) {
	t.timeout = d
}

// HTTPTool calls a declared HTTP endpoint as a tool.
type HTTPTool struct {
	name        string
	description string
	url         string
	method      string
	headers     map[string]string
	timeout     time.Duration
}

// NewHTTPTool creates a new HTTP tool.
func NewHTTPTool(name, description, url, method string, headers map[string]string) *HTTPTool {
	if method == "" {
		method = "POST"
	}
	return &HTTPTool{
		name:        name,
		description: description,
		url:         url,
		method:      strings.ToUpper(method),
		headers:     headers,
		timeout:     30 * time.Second,
	}
}

func (t *HTTPTool) Name() string        { return t.name }
func (t *HTTPTool) Description() string { return t.description }

func (t *HTTPTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"input": map[string]interface{}{
			"type":        "string",
			"description": "Input data sent as the request body (JSON string)",
		},
	}
}

func (t *HTTPTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args inputArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	url := strings.ReplaceAll(t.url, "{{input}}", args.Input)

	var body io.Reader
	if t.method == "POST" || t.method == "PUT" || t.method == "PATCH" {
		body = bytes.NewBufferString(args.Input)
	}

	req, err := http.NewRequestWithContext(ctx, t.method, url, body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: t.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return string(respBody), fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	return string(respBody), nil
}

func (t *HTTPTool) Test(ctx context.Context) (string, error) {
	return fmt.Sprintf("http tool %q configured for %s %s", t.name, t.method, t.url), nil
}

// SetTimeout sets the HTTP request timeout.
func (t *HTTPTool) SetTimeout(d time.Duration) {
	t.timeout = d
}

// LoadToolsFromConfig creates tools from YAML tool configurations. Exec
// tools run in workspace when it is set.
func LoadToolsFromConfig(configs []config.ToolConfig, workspace string) ([]Tool, error) {
	var tools []Tool
	for _, cfg := range configs {
		t, err := createToolFromConfig(&cfg, workspace)
		if err != nil {
			return nil, fmt.Errorf("failed to create tool %s: %w", cfg.Name, err)
		}
		tools = append(tools, t)
	}
	return tools, nil
}

// createToolFromConfig creates a single tool from config.
func createToolFromConfig(cfg *config.ToolConfig, workspace string) (Tool, error) {
	switch cfg.Provider {
	case "exec":
		command, _ := cfg.Config["command"].(string)
		if command == "" {
			return nil, fmt.Errorf("exec tool %q requires a 'command' in config", cfg.Name)
		}
		t := NewExecTool(cfg.Name, cfg.Description, command)
		if workspace != "" {
			t.SetWorkingDir(workspace)
		}
		if d, ok := configTimeout(cfg.Config["timeout"]); ok {
			t.SetTimeout(d)
		}
		return t, nil

	case "http":
		url, _ := cfg.Config["url"].(string)
		if url == "" {
			return nil, fmt.Errorf("http tool %q requires a 'url' in config", cfg.Name)
		}
		method, _ := cfg.Config["method"].(string)

		headers := make(map[string]string)
		if hdr, ok := cfg.Config["headers"].(map[string]interface{}); ok {
			for k, v := range hdr {
				if s, ok := v.(string); ok {
					headers[k] = s
				}
			}
		}

		t := NewHTTPTool(cfg.Name, cfg.Description, url, method, headers)
		if d, ok := configTimeout(cfg.Config["timeout"]); ok {
			t.SetTimeout(d)
		}
		return t, nil

	case "builtin":
		return Get(cfg.Name)

	default:
		return nil, fmt.Errorf("unknown tool provider: %s", cfg.Provider)
	}
}

// configTimeout reads a timeout from the tool's config map. Bare numbers are
// seconds; strings use Go duration syntax ("90s", "2m").
func configTimeout(raw interface{}) (time.Duration, bool) {
	switch v := raw.(type) {
	case int:
		return time.Duration(v) * time.Second, v > 0
	case float64:
		return time.Duration(v * float64(time.Second)), v > 0
	case string:
		d, err := time.ParseDuration(v)
		return d, err == nil && d > 0
	}
	return 0, false
}

// RegisterFromConfig loads tools from config and registers them in the
// default registry.
func RegisterFromConfig(configs []config.ToolConfig, workspace string) error {
	tools, err := LoadToolsFromConfig(configs, workspace)
	if err != nil {
		return err
	}
	for _, t := range tools {
		DefaultRegistry.Register(t)
	}
	return nil
}
