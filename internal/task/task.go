package task

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stxkxs/troupe/internal/config"
)

// Status is a task lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
	StatusCancelled  Status = "cancelled"
)

// ContextEntry is one prior task output carried into this task's prompt.
type ContextEntry struct {
	SourceTaskID string    `json:"source_task_id"`
	Text         string    `json:"text"`
	Success      bool      `json:"success"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Task is a unit of work with its own execution record. The executor drives
// the lifecycle; the task itself performs no I/O. Transitions follow
// pending → in_progress → {completed|failed|skipped|cancelled}, with
// failed → pending allowed via Reset while attempts remain.
type Task struct {
	cfg *config.TaskConfig

	mu sync.RWMutex // protects the execution record below

	status    Status
	attempts  int
	context   []ContextEntry
	output    *Output
	err       error
	startedAt time.Time
	endedAt   time.Time
}

// NewTask creates a pending task from configuration.
func NewTask(cfg *config.TaskConfig) *Task {
	return &Task{
		cfg:    cfg,
		status: StatusPending,
	}
}

// ID returns the task id.
func (t *Task) ID() string { return t.cfg.ID }

// Description returns the task description.
func (t *Task) Description() string { return t.cfg.Description }

// ExpectedOutput returns the expected output statement.
func (t *Task) ExpectedOutput() string { return t.cfg.ExpectedOutput }

// AgentID returns the assigned agent id, empty when unassigned.
func (t *Task) AgentID() string { return t.cfg.Agent }

// Dependencies returns the dependency task ids in declared order.
func (t *Task) Dependencies() []string { return t.cfg.Context }

// OutputFile returns the path the task result should be written to, if any.
func (t *Task) OutputFile() string { return t.cfg.OutputFile }

// Tools returns task-level tool overrides, nil when the agent's apply.
func (t *Task) Tools() []string { return t.cfg.Tools }

// MaxRetries returns the retry budget; 0 permits exactly one attempt.
func (t *Task) MaxRetries() int { return t.cfg.MaxRetries }

// TimeoutSeconds returns the per-task deadline in seconds, 0 for none.
func (t *Task) TimeoutSeconds() int { return t.cfg.TimeoutSeconds }

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Attempts returns how many times the task has been started.
func (t *Task) Attempts() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.attempts
}

// Output returns the task output; non-nil iff the task completed.
func (t *Task) Output() *Output {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.output
}

// Err returns the task error; non-nil iff the task failed.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// StartedAt returns when the current attempt began.
func (t *Task) StartedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.startedAt
}

// EndedAt returns when the task reached a terminal state.
func (t *Task) EndedAt() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.endedAt
}

// Duration returns how long the task ran.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.startedAt.IsZero() {
		return 0
	}
	if t.endedAt.IsZero() {
		return time.Since(t.startedAt)
	}
	return t.endedAt.Sub(t.startedAt)
}

// Context returns a copy of the accumulated context entries.
func (t *Task) Context() []ContextEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cp := make([]ContextEntry, len(t.context))
	copy(cp, t.context)
	return cp
}

// AddContext appends a prior task's output to this task's context.
func (t *Task) AddContext(sourceTaskID, text string, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.context = append(t.context, ContextEntry{
		SourceTaskID: sourceTaskID,
		Text:         text,
		Success:      success,
		CompletedAt:  time.Now(),
	})
}

// Start moves the task to in_progress and counts the attempt.
func (t *Task) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return fmt.Errorf("task %s: cannot start from %s", t.cfg.ID, t.status)
	}
	t.status = StatusInProgress
	t.startedAt = time.Now()
	t.attempts++
	return nil
}

// Complete records a successful outcome.
func (t *Task) Complete(output *Output) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusInProgress {
		return fmt.Errorf("task %s: cannot complete from %s", t.cfg.ID, t.status)
	}
	t.status = StatusCompleted
	t.endedAt = time.Now()
	t.output = output
	t.err = nil
	return nil
}

// Fail records a failed outcome.
func (t *Task) Fail(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusInProgress {
		return fmt.Errorf("task %s: cannot fail from %s", t.cfg.ID, t.status)
	}
	t.status = StatusFailed
	t.endedAt = time.Now()
	t.err = err
	t.output = nil
	return nil
}

// Skip marks a task that never ran, e.g. because a dependency is absent.
func (t *Task) Skip() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return fmt.Errorf("task %s: cannot skip from %s", t.cfg.ID, t.status)
	}
	t.status = StatusSkipped
	t.endedAt = time.Now()
	return nil
}

// Cancel aborts a task that has not finished, e.g. on crew timeout.
func (t *Task) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending && t.status != StatusInProgress {
		return fmt.Errorf("task %s: cannot cancel from %s", t.cfg.ID, t.status)
	}
	t.status = StatusCancelled
	t.endedAt = time.Now()
	return nil
}

// Reset returns a failed task to pending for another attempt. The accumulated
// context is kept so retries see the same prior outputs.
func (t *Task) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusFailed {
		return fmt.Errorf("task %s: cannot reset from %s", t.cfg.ID, t.status)
	}
	if t.attempts > t.cfg.MaxRetries {
		return fmt.Errorf("task %s: retry budget exhausted (%d attempts, max_retries %d)",
			t.cfg.ID, t.attempts, t.cfg.MaxRetries)
	}
	t.status = StatusPending
	t.err = nil
	t.endedAt = time.Time{}
	return nil
}

// CanRetry reports whether another attempt is within budget. max_retries=0
// permits exactly one attempt.
func (t *Task) CanRetry() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.attempts <= t.cfg.MaxRetries
}

// IsReady reports whether every dependency id is present in the completed
// set.
func (t *Task) IsReady(completed map[string]bool) bool {
	for _, dep := range t.cfg.Context {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// BuildPrompt renders the task into the prompt handed to the agent.
func (t *Task) BuildPrompt() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	b.WriteString("# Task\n")
	b.WriteString(t.cfg.Description)
	b.WriteString("\n\n# Expected Output\n")
	b.WriteString(t.cfg.ExpectedOutput)

	if len(t.context) > 0 {
		b.WriteString("\n\n# Context from Previous Tasks\n")
		for _, c := range t.context {
			fmt.Fprintf(&b, "\n## From Task: %s\n%s\n", c.SourceTaskID, c.Text)
		}
	}

	if t.cfg.ContextInstructions != "" {
		b.WriteString("\n\n# Additional Instructions\n")
		b.WriteString(t.cfg.ContextInstructions)
	}

	return b.String()
}
