package agent

import (
	"fmt"
	"strings"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/memory"
)

// Agent is a configured persona: role, goal, backstory, model settings, and
// declared tool names. It is immutable after construction; the enclosing crew
// shares one instance across tasks. The agent owns its memory store.
type Agent struct {
	cfg    *config.AgentConfig
	memory *memory.Store
}

// New creates an agent from configuration. When the config declares memory,
// an in-process store is created; persistent backends are attached by the
// executor via AttachMemory.
func New(cfg *config.AgentConfig) *Agent {
	a := &Agent{cfg: cfg}
	if cfg.Memory != nil {
		a.memory = memory.NewStore(memory.Config{
			Type:          cfg.Memory.Type,
			MaxItems:      cfg.Memory.MaxItems,
			UseEmbeddings: cfg.Memory.UseEmbeddings,
			TTLSeconds:    cfg.Memory.TTLSeconds,
			Persist:       cfg.Memory.Persist,
			StoragePath:   cfg.Memory.StoragePath,
		})
	}
	return a
}

// ID returns the agent id (the key under which it was declared).
func (a *Agent) ID() string { return a.cfg.ID }

// Role returns the agent role.
func (a *Agent) Role() string { return a.cfg.Role }

// Goal returns the agent goal.
func (a *Agent) Goal() string { return a.cfg.Goal }

// Backstory returns the agent backstory.
func (a *Agent) Backstory() string { return a.cfg.Backstory }

// Model returns the model identifier, empty when the project default applies.
func (a *Agent) Model() string { return a.cfg.LLM }

// Tools returns the declared tool names in declaration order.
func (a *Agent) Tools() []string { return a.cfg.Tools }

// AllowDelegation reports whether the agent may delegate to other agents.
func (a *Agent) AllowDelegation() bool { return a.cfg.AllowDelegation }

// Verbose reports whether intermediate reasoning should be captured.
func (a *Agent) Verbose() bool { return a.cfg.Verbose }

// MaxIterations returns the tool-loop cap, 0 meaning the executor default.
func (a *Agent) MaxIterations() int { return a.cfg.MaxIter }

// MaxExecutionTime returns the per-execution wall-clock cap in seconds.
func (a *Agent) MaxExecutionTime() int { return a.cfg.MaxExecutionTime }

// Temperature returns the sampling temperature.
func (a *Agent) Temperature() float64 { return a.cfg.Temperature }

// MaxTokens returns the completion token cap, 0 meaning the executor default.
func (a *Agent) MaxTokens() int { return a.cfg.MaxTokens }

// Memory returns the agent's memory store, nil when memory is not configured.
func (a *Agent) Memory() *memory.Store { return a.memory }

// AttachMemory replaces the agent's memory store. Call before the first
// execution; used to wire persistent or crew-scoped stores.
func (a *Agent) AttachMemory(store *memory.Store) {
	a.memory = store
}

// SystemPrompt composes the persona prompt: role, goal, backstory, the
// declared tool list, and the optional suffix, with one blank line between
// sections.
func (a *Agent) SystemPrompt() string {
	return a.systemPrompt(a.cfg.Tools)
}

// SystemPromptWithTools composes the persona prompt with an overridden tool
// list, used when a task narrows the tools available to the agent.
func (a *Agent) SystemPromptWithTools(tools []string) string {
	return a.systemPrompt(tools)
}

func (a *Agent) systemPrompt(tools []string) string {
	sections := []string{
		"You are " + a.cfg.Role + ".",
		"Your goal: " + a.cfg.Goal,
		"Background: " + a.cfg.Backstory,
	}

	if len(tools) > 0 {
		var b strings.Builder
		b.WriteString("You have access to the following tools:")
		for _, name := range tools {
			b.WriteString("\n- " + name)
		}
		sections = append(sections, b.String())
	}

	if a.cfg.SystemSuffix != "" {
		sections = append(sections, a.cfg.SystemSuffix)
	}

	return strings.Join(sections, "\n\n")
}

// UserPrompt composes the task prompt: the task description, the expected
// output, and the numbered outputs of prior tasks when present.
func (a *Agent) UserPrompt(ec *ExecutionContext) string {
	var b strings.Builder
	b.WriteString("Task: " + ec.TaskDescription + "\n")
	b.WriteString("Expected Output: " + ec.ExpectedOutput)

	if len(ec.Context) > 0 {
		b.WriteString("\n\nContext from previous tasks:\n")
		for i, c := range ec.Context {
			fmt.Fprintf(&b, "\n--- Context %d ---\n%s\n", i+1, c)
		}
	}

	return b.String()
}
