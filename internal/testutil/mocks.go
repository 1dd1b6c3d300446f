package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/provider"
	"github.com/stxkxs/troupe/internal/telemetry"
)

// MockProvider implements provider.Provider for testing.
type MockProvider struct {
	mu         sync.Mutex
	Responses  []*provider.Response // queued responses, consumed in order
	Calls      []*provider.CompletionRequest
	ShouldFail bool
	FailErr    error
	Delay      time.Duration
	idx        int
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Complete(ctx context.Context, req *provider.CompletionRequest) (*provider.Response, error) {
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	if m.ShouldFail {
		if m.FailErr != nil {
			return nil, m.FailErr
		}
		return nil, fmt.Errorf("mock provider error")
	}

	if m.idx >= len(m.Responses) {
		return &provider.Response{
			Content:    "default mock response",
			StopReason: "stop",
		}, nil
	}

	resp := m.Responses[m.idx]
	m.idx++
	return resp, nil
}

// CallCount returns the number of Complete calls made (thread-safe).
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// TextResponse builds a plain completion response.
func TextResponse(content string) *provider.Response {
	return &provider.Response{Content: content, StopReason: "stop"}
}

// ToolCallResponse builds a response that requests a single tool call.
func ToolCallResponse(id, name, input string) *provider.Response {
	return &provider.Response{
		StopReason: "tool_calls",
		ToolCalls: []provider.ToolCall{
			{ID: id, Name: name, Input: input},
		},
	}
}

// MockTool implements tool.Tool for testing.
type MockTool struct {
	Name_      string
	Desc       string
	Result     string
	ShouldFail bool
	mu         sync.Mutex
	Executions int
	LastInput  string
}

func (t *MockTool) Name() string        { return t.Name_ }
func (t *MockTool) Description() string { return t.Desc }
func (t *MockTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"input": map[string]interface{}{
			"type":        "string",
			"description": "test input",
		},
	}
}

func (t *MockTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	t.mu.Lock()
	t.Executions++
	t.LastInput = string(args)
	t.mu.Unlock()

	if t.ShouldFail {
		return "", fmt.Errorf("mock tool error")
	}
	return t.Result, nil
}

func (t *MockTool) Test(ctx context.Context) (string, error) {
	return "mock tool operational", nil
}

// ExecutionCount returns the number of times Execute was called (thread-safe).
func (t *MockTool) ExecutionCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Executions
}

// MockEmbedder implements the vector embedder interface for testing, with
// optional failure injection.
type MockEmbedder struct {
	Dim        int // vector width, 8 when unset
	ShouldFail bool
	mu         sync.Mutex
	Batches    [][]string // every EmbedBatch input, in call order
}

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.Batches = append(m.Batches, texts)
	m.mu.Unlock()

	if m.ShouldFail {
		return nil, fmt.Errorf("mock embedder error")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, m.Dimensions())
		vec[0] = 1
		out[i] = vec
	}
	return out, nil
}

func (m *MockEmbedder) Dimensions() int {
	if m.Dim > 0 {
		return m.Dim
	}
	return 8
}

// TestLogger returns a logger suitable for tests (verbose, no file output).
func TestLogger() *telemetry.Logger {
	return telemetry.NewLogger(true)
}

// TestConfig returns a minimal config for testing.
func TestConfig() *config.Config {
	return &config.Config{
		Name:    "test-project",
		Version: "1.0",
		Provider: config.ProviderConfig{
			Name:   "openai",
			Model:  "mock-model",
			APIKey: "test-key",
		},
		Queue: config.QueueConfig{
			Driver:      "memory",
			Prefix:      "test",
			Concurrency: 2,
		},
		Defaults: config.DefaultsConfig{
			Timeout:       "5m",
			MaxRetries:    1,
			MaxIterations: 10,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
		State: config.StateStoreConfig{
			Driver: "memory",
		},
	}
}

// TestAgentConfig returns a minimal agent config for testing.
func TestAgentConfig(id string) *config.AgentConfig {
	return &config.AgentConfig{
		ID:        id,
		Role:      "Test Agent",
		Goal:      "Complete test tasks",
		Backstory: "A test agent.",
		Tools:     []string{},
	}
}

// TestTaskConfig returns a minimal task config bound to an agent.
func TestTaskConfig(id, agentID string) *config.TaskConfig {
	return &config.TaskConfig{
		ID:             id,
		Description:    "Do the " + id + " work",
		ExpectedOutput: "The " + id + " result",
		Agent:          agentID,
	}
}
