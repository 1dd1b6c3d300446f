package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes caps tool output so a large page cannot blow the model context.
const maxResponseBytes = 64 * 1024

// HTTPGetTool fetches a URL over HTTP GET
type HTTPGetTool struct {
	client *http.Client
}

// NewHTTPGetTool creates a new http_get tool
func NewHTTPGetTool() *HTTPGetTool {
	return &HTTPGetTool{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the tool name
func (t *HTTPGetTool) Name() string {
	return "http_get"
}

// Description returns the tool description
func (t *HTTPGetTool) Description() string {
	return "Fetch the contents of a URL over HTTP GET. Returns the response body as text, truncated to 64KB."
}

// Parameters returns the JSON schema for the tool parameters
func (t *HTTPGetTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"url": map[string]interface{}{
			"type":        "string",
			"description": "The URL to fetch (http or https)",
		},
	}
}

// HTTPGetArgs represents the arguments for http_get
type HTTPGetArgs struct {
	URL string `json:"url"`
}

// Execute fetches the URL
func (t *HTTPGetTool) Execute(ctx context.Context, argsJSON json.RawMessage) (string, error) {
	var args HTTPGetArgs
	if err := json.Unmarshal(argsJSON, &args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	if args.URL == "" {
		return "", fmt.Errorf("url is required")
	}
	if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
		return "", fmt.Errorf("unsupported URL scheme: %s", args.URL)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", args.URL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	truncated := false
	if len(body) > maxResponseBytes {
		body = body[:maxResponseBytes]
		truncated = true
	}

	if resp.StatusCode >= 400 {
		return string(body), fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	out := string(body)
	if truncated {
		out += "\n... (truncated at 64KB)"
	}
	return out, nil
}

// Test verifies the tool works
func (t *HTTPGetTool) Test(ctx context.Context) (string, error) {
	// No network call here: keep doctor checks offline-safe.
	return "http_get tool operational", nil
}
