package agent

import (
	"strings"
	"testing"

	"github.com/stxkxs/troupe/internal/config"
)

func TestAgent_SystemPrompt(t *testing.T) {
	a := New(&config.AgentConfig{
		ID:        "researcher",
		Role:      "Senior Researcher",
		Goal:      "Find accurate answers",
		Backstory: "Ten years in the field.",
		Tools:     []string{"http_get", "memory_search"},
	})

	want := "You are Senior Researcher.\n\n" +
		"Your goal: Find accurate answers\n\n" +
		"Background: Ten years in the field.\n\n" +
		"You have access to the following tools:\n" +
		"- http_get\n" +
		"- memory_search"

	if got := a.SystemPrompt(); got != want {
		t.Errorf("SystemPrompt() =\n%q\nwant\n%q", got, want)
	}
}

func TestAgent_SystemPrompt_NoTools(t *testing.T) {
	a := New(&config.AgentConfig{
		ID:        "writer",
		Role:      "Writer",
		Goal:      "Write well",
		Backstory: "Prolific.",
	})

	got := a.SystemPrompt()
	if strings.Contains(got, "You have access to the following tools:") {
		t.Error("tool section present for agent with no tools")
	}
	if strings.Contains(got, "\n\n\n") {
		t.Error("sections separated by more than one blank line")
	}
}

func TestAgent_SystemPrompt_Suffix(t *testing.T) {
	a := New(&config.AgentConfig{
		ID:           "writer",
		Role:         "Writer",
		Goal:         "Write well",
		Backstory:    "Prolific.",
		SystemSuffix: "Always answer in French.",
	})

	got := a.SystemPrompt()
	if !strings.HasSuffix(got, "\n\nAlways answer in French.") {
		t.Errorf("suffix not appended as its own section:\n%q", got)
	}
}

func TestAgent_SystemPromptWithTools(t *testing.T) {
	a := New(&config.AgentConfig{
		ID:        "researcher",
		Role:      "Researcher",
		Goal:      "Research",
		Backstory: "Curious.",
		Tools:     []string{"http_get", "file_read"},
	})

	got := a.SystemPromptWithTools([]string{"file_read"})
	if strings.Contains(got, "- http_get") {
		t.Error("overridden tool list still mentions declared tool")
	}
	if !strings.Contains(got, "- file_read") {
		t.Error("override tool missing from prompt")
	}
}

func TestAgent_UserPrompt(t *testing.T) {
	a := New(&config.AgentConfig{
		ID: "a", Role: "r", Goal: "g", Backstory: "b",
	})

	ec := &ExecutionContext{
		TaskDescription: "Summarize the findings",
		ExpectedOutput:  "A one-page summary",
	}
	want := "Task: Summarize the findings\nExpected Output: A one-page summary"
	if got := a.UserPrompt(ec); got != want {
		t.Errorf("UserPrompt() = %q, want %q", got, want)
	}
}

func TestAgent_UserPrompt_WithContext(t *testing.T) {
	a := New(&config.AgentConfig{
		ID: "a", Role: "r", Goal: "g", Backstory: "b",
	})

	ec := &ExecutionContext{
		TaskDescription: "Write the report",
		ExpectedOutput:  "A report",
		Context:         []string{"first finding", "second finding"},
	}

	got := a.UserPrompt(ec)
	want := "Task: Write the report\n" +
		"Expected Output: A report\n\n" +
		"Context from previous tasks:\n\n" +
		"--- Context 1 ---\nfirst finding\n\n" +
		"--- Context 2 ---\nsecond finding\n"
	if got != want {
		t.Errorf("UserPrompt() =\n%q\nwant\n%q", got, want)
	}

	// Numbering starts at 1 and follows input order.
	if strings.Index(got, "--- Context 1 ---") > strings.Index(got, "--- Context 2 ---") {
		t.Error("context entries out of order")
	}
}

func TestAgent_Memory(t *testing.T) {
	noMem := New(&config.AgentConfig{ID: "a", Role: "r", Goal: "g", Backstory: "b"})
	if noMem.Memory() != nil {
		t.Error("agent without memory config has a store")
	}

	withMem := New(&config.AgentConfig{
		ID: "a", Role: "r", Goal: "g", Backstory: "b",
		Memory: &config.MemoryConfig{Type: "short_term", MaxItems: 10},
	})
	if withMem.Memory() == nil {
		t.Fatal("agent with memory config has no store")
	}
	if err := withMem.Memory().Store("k", "v"); err != nil {
		t.Errorf("store: %v", err)
	}
	if _, ok := withMem.Memory().Retrieve("k"); !ok {
		t.Error("retrieve after store failed")
	}
}
