// Package provider defines the language model contract the runtime consumes
// and ships one reference implementation speaking the OpenAI-compatible chat
// completions protocol.
package provider

import (
	"context"
	"fmt"
	"net/http"
)

// Message represents a conversation message.
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant messages echoing requested calls
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool messages answering a call
}

// ToolCall represents a tool invocation request.
type ToolCall struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input string `json:"input"` // JSON string
}

// ToolResult represents the result of a tool execution.
type ToolResult struct {
	ID     string `json:"tool_call_id"`
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}

// Response represents a provider response.
type Response struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// Usage tracks token usage.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Tool represents a tool definition for the provider.
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Provider is the language model contract. Implementations perform the
// actual inference; the runtime only composes prompts and consumes text.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Complete sends a completion request.
	Complete(ctx context.Context, req *CompletionRequest) (*Response, error)
}

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string    `json:"model"`
	System      string    `json:"system"`
	Messages    []Message `json:"messages"`
	Tools       []Tool    `json:"tools,omitempty"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	StopSeqs    []string  `json:"stop_sequences,omitempty"`
}

// APIError is a non-2xx response from the model endpoint.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.Status, e.Body)
}

// Temporary reports whether the status signals a transient condition worth
// retrying: rate limits, server errors, and overload.
func (e *APIError) Temporary() bool {
	switch e.Status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		529: // overloaded, used by some OpenAI-compatible endpoints
		return true
	}
	return false
}
