package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stxkxs/troupe/internal/config"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/memory"
	"github.com/stxkxs/troupe/internal/provider"
	"github.com/stxkxs/troupe/internal/provider/openai"
	"github.com/stxkxs/troupe/internal/telemetry"
	"github.com/stxkxs/troupe/internal/tool"
)

const (
	defaultMaxIterations = 10
	defaultMaxTokens     = 4096
)

// ExecutionContext carries everything an agent needs for one execution.
type ExecutionContext struct {
	TaskDescription string
	ExpectedOutput  string

	// Context holds prior task outputs in dependency-declaration order.
	Context []string

	// AvailableTools narrows the agent's declared tools when non-empty.
	AvailableTools []string

	// SharedState is advisory crew-level state; it is not injected into
	// prompts.
	SharedState map[string]interface{}

	Iteration     int
	MaxIterations int
}

// ToolCallRecord is one tool invocation made during an execution.
type ToolCallRecord struct {
	Tool       string `json:"tool"`
	Input      string `json:"input"`
	Output     string `json:"output,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Metadata describes how an execution went.
type Metadata struct {
	Iterations      int       `json:"iterations"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	LLMCalls        int       `json:"llm_calls"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Result is the outcome of a successful execution. Reasoning holds the
// model's intermediate text and is populated only for verbose agents.
type Result struct {
	Output    string           `json:"output"`
	ToolCalls []ToolCallRecord `json:"tool_calls"`
	Reasoning string           `json:"reasoning,omitempty"`
	Metadata  Metadata         `json:"metadata"`
}

// Executor runs an agent against a language model, dispatching tool calls
// until the model produces a final answer. Failures are reported, never
// retried here: transport retries live in the provider wrapper and task
// retries in the crew executor.
type Executor struct {
	agent    *Agent
	provider provider.Provider
	tools    map[string]tool.Tool
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	events   *event.Bus

	maxIterations int
}

// NewExecutor creates an executor with a provider resolved from the project
// config. The agent's model name, when set, overrides the project default.
func NewExecutor(cfg *config.Config, agentCfg *config.AgentConfig, logger *telemetry.Logger) (*Executor, error) {
	var p provider.Provider
	switch cfg.Provider.Name {
	case "", "openai":
		model := agentCfg.LLM
		if model == "" {
			model = cfg.Provider.Model
		}
		p = openai.NewClient(cfg.Provider.APIKey, model, cfg.Provider.BaseURL)
	default:
		return nil, troupeErrors.Newf(troupeErrors.CodeConfigInvalid,
			"unknown provider %q", cfg.Provider.Name).
			WithSuggestion("Supported providers: openai (set provider.base_url for OpenAI-compatible endpoints)")
	}
	rc := provider.DefaultRetryConfig()
	if cfg.Defaults.MaxRetries > 0 {
		rc.MaxRetries = cfg.Defaults.MaxRetries
	}
	rp := provider.NewRetryProvider(p, rc)
	return NewExecutorWithProvider(agentCfg, rp, logger)
}

// NewExecutorWithProvider creates an executor with an injected provider.
// This enables testing with mock providers.
func NewExecutorWithProvider(agentCfg *config.AgentConfig, p provider.Provider, logger *telemetry.Logger) (*Executor, error) {
	a := New(agentCfg)

	tools := make(map[string]tool.Tool)
	for _, toolName := range agentCfg.Tools {
		t, err := tool.Get(toolName)
		if err != nil {
			logger.Warn("Tool not found", "tool", toolName, "error", err)
			continue
		}
		tools[toolName] = t
	}

	e := &Executor{
		agent:         a,
		provider:      p,
		tools:         tools,
		logger:        logger,
		metrics:       telemetry.NewMetrics(),
		maxIterations: defaultMaxIterations,
	}
	if agentCfg.MaxIter > 0 {
		e.maxIterations = agentCfg.MaxIter
	}

	// Swap in a persistent store for agents that ask for one.
	if agentCfg.Memory != nil && agentCfg.Memory.Persist {
		store, err := memory.OpenStore(memory.Config{
			Type:          agentCfg.Memory.Type,
			MaxItems:      agentCfg.Memory.MaxItems,
			UseEmbeddings: agentCfg.Memory.UseEmbeddings,
			TTLSeconds:    agentCfg.Memory.TTLSeconds,
			Persist:       true,
			StoragePath:   agentCfg.Memory.StoragePath,
		}, agentCfg.ID)
		if err != nil {
			logger.Warn("Failed to open memory store, falling back to in-memory", "error", err)
		} else {
			a.AttachMemory(store)
		}
	}

	return e, nil
}

// Execute runs the agent once for the given context.
func (e *Executor) Execute(ctx context.Context, ec *ExecutionContext) (*Result, error) {
	startedAt := time.Now()
	e.logger.Debug("Starting agent execution", "agent", e.agent.ID())

	if t := e.agent.MaxExecutionTime(); t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
		defer cancel()
	}

	maxIter := e.maxIterations
	if ec.MaxIterations > 0 {
		maxIter = ec.MaxIterations
	}

	system := e.agent.SystemPrompt()
	available := e.tools
	if len(ec.AvailableTools) > 0 {
		system = e.agent.SystemPromptWithTools(ec.AvailableTools)
		available = e.resolveTools(ec.AvailableTools)
	}
	toolDefs := toolDefinitions(ec.AvailableTools, e.agent.Tools(), available)

	maxTokens := e.agent.MaxTokens()
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	messages := []provider.Message{
		{Role: "user", Content: e.agent.UserPrompt(ec)},
	}

	var records []ToolCallRecord
	var reasoning []string
	llmCalls := 0

	for i := 0; i < maxIter; i++ {
		e.logger.Debug("Agent iteration", "iteration", i+1)

		req := &provider.CompletionRequest{
			Model:       e.agent.Model(),
			System:      system,
			Messages:    messages,
			Tools:       toolDefs,
			MaxTokens:   maxTokens,
			Temperature: e.agent.Temperature(),
		}

		e.metrics.IncModelCalls()
		resp, err := e.provider.Complete(ctx, req)
		llmCalls++
		if err != nil {
			return nil, troupeErrors.Wrap(troupeErrors.CodeModelError, "model call failed", err)
		}

		e.logger.Debug("Provider response",
			"stop_reason", resp.StopReason,
			"tool_calls", len(resp.ToolCalls),
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
		)

		if len(resp.ToolCalls) == 0 {
			completedAt := time.Now()
			result := &Result{
				Output:    resp.Content,
				ToolCalls: records,
				Metadata: Metadata{
					Iterations:      i + 1,
					ExecutionTimeMs: completedAt.Sub(startedAt).Milliseconds(),
					LLMCalls:        llmCalls,
					StartedAt:       startedAt,
					CompletedAt:     completedAt,
				},
			}
			if e.agent.Verbose() {
				result.Reasoning = strings.Join(reasoning, "\n")
			}
			e.remember(ec, result)
			return result, nil
		}

		if e.agent.Verbose() && resp.Content != "" {
			reasoning = append(reasoning, resp.Content)
		}

		messages = append(messages, provider.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			msg, record, err := e.runTool(ctx, available, call)
			if err != nil {
				return nil, err
			}
			records = append(records, record)
			messages = append(messages, msg)
		}
	}

	return nil, troupeErrors.New(troupeErrors.CodeMaxIterations,
		fmt.Sprintf("max iterations (%d) exceeded", maxIter)).
		WithSuggestion("Raise the agent's max_iter or simplify the task to require fewer tool calls")
}

// runTool dispatches one tool call. A call to an unregistered tool or a tool
// failure aborts the execution; the surrounding task records the error.
func (e *Executor) runTool(ctx context.Context, available map[string]tool.Tool, call provider.ToolCall) (provider.Message, ToolCallRecord, error) {
	e.logger.Debug("Executing tool", "tool", call.Name, "id", call.ID)
	e.metrics.IncToolCalls()
	// Emitted before the registry lookup so hooks see calls to unknown tools.
	e.emit(event.AgentToolCall, map[string]interface{}{
		"agent": e.agent.ID(),
		"tool":  call.Name,
	})

	t, ok := available[call.Name]
	if !ok {
		return provider.Message{}, ToolCallRecord{}, troupeErrors.Newf(troupeErrors.CodeToolNotFound,
			"tool %q is not registered", call.Name).
			WithSuggestion("Declare the tool in the agent's tools list and register it at startup")
	}

	start := time.Now()
	output, err := t.Execute(ctx, json.RawMessage(call.Input))
	if err != nil {
		e.logger.Warn("Tool execution failed", "tool", call.Name, "error", err)
		e.emit(event.AgentToolResult, map[string]interface{}{
			"agent": e.agent.ID(),
			"tool":  call.Name,
			"error": err.Error(),
		})
		return provider.Message{}, ToolCallRecord{}, troupeErrors.Wrap(troupeErrors.CodeToolFailed,
			fmt.Sprintf("tool %q failed", call.Name), err)
	}

	record := ToolCallRecord{
		Tool:       call.Name,
		Input:      call.Input,
		Output:     output,
		DurationMs: time.Since(start).Milliseconds(),
	}
	e.emit(event.AgentToolResult, map[string]interface{}{
		"agent":       e.agent.ID(),
		"tool":        call.Name,
		"duration_ms": record.DurationMs,
	})
	msg := provider.Message{
		Role:       "tool",
		Content:    output,
		ToolCallID: call.ID,
	}
	return msg, record, nil
}

func (e *Executor) emit(t event.EventType, data map[string]interface{}) {
	if err := e.events.EmitData(t, data); err != nil {
		e.logger.Warn("Event hook failed", "event", string(t), "error", err)
	}
}

// resolveTools looks up task-level tool overrides, preferring the agent's
// own map and falling back to the registry.
func (e *Executor) resolveTools(names []string) map[string]tool.Tool {
	resolved := make(map[string]tool.Tool, len(names))
	for _, name := range names {
		if t, ok := e.tools[name]; ok {
			resolved[name] = t
			continue
		}
		t, err := tool.Get(name)
		if err != nil {
			e.logger.Warn("Tool not found", "tool", name, "error", err)
			continue
		}
		resolved[name] = t
	}
	return resolved
}

// toolDefinitions converts resolved tools to provider format, keeping
// declaration order.
func toolDefinitions(override, declared []string, resolved map[string]tool.Tool) []provider.Tool {
	names := override
	if len(names) == 0 {
		names = declared
	}
	defs := make([]provider.Tool, 0, len(names))
	for _, name := range names {
		t, ok := resolved[name]
		if !ok {
			continue
		}
		defs = append(defs, provider.Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": t.Parameters(),
			},
		})
	}
	return defs
}

// remember records the outcome in the agent's memory store, best-effort.
func (e *Executor) remember(ec *ExecutionContext, result *Result) {
	store := e.agent.Memory()
	if store == nil {
		return
	}
	key := "task:" + truncateKey(ec.TaskDescription, 80)
	err := store.StoreWithMetadata(key, result.Output, map[string]interface{}{
		"expected_output": ec.ExpectedOutput,
		"completed_at":    result.Metadata.CompletedAt.Format(time.RFC3339),
	})
	if err != nil {
		e.logger.Warn("Failed to record execution in memory", "error", err)
	}
}

func truncateKey(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Agent returns the underlying agent.
func (e *Executor) Agent() *Agent {
	return e.agent
}

// Metrics returns the executor metrics.
func (e *Executor) Metrics() *telemetry.Metrics {
	return e.metrics
}

// SetMaxIterations sets the maximum number of tool use iterations.
func (e *Executor) SetMaxIterations(n int) {
	e.maxIterations = n
}

// SetEvents attaches an event bus. Crew executors share theirs so hooks
// observe tool usage across all agents; without a bus tool events are
// dropped.
func (e *Executor) SetEvents(bus *event.Bus) {
	e.events = bus
}

// AddTools merges additional tools into the executor's tool map. Used to
// inject delegation tools for hierarchical execution.
func (e *Executor) AddTools(tools map[string]tool.Tool) {
	for name, t := range tools {
		e.tools[name] = t
	}
}

// Close releases resources held by the executor, such as the memory store.
func (e *Executor) Close() error {
	if store := e.agent.Memory(); store != nil {
		return store.Close()
	}
	return nil
}
