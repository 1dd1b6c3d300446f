package event

import "time"

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Crew lifecycle
	CrewStarted   EventType = "crew.started"
	CrewCompleted EventType = "crew.completed"
	CrewFailed    EventType = "crew.failed"

	// Task lifecycle
	TaskStarted   EventType = "task.started"
	TaskCompleted EventType = "task.completed"
	TaskFailed    EventType = "task.failed"
	TaskSkipped   EventType = "task.skipped"
	TaskRetrying  EventType = "task.retrying"

	// Agent lifecycle
	AgentToolCall   EventType = "agent.tool.call"
	AgentToolResult EventType = "agent.tool.result"

	// Flow lifecycle
	FlowStarted     EventType = "flow.started"
	FlowStateEnter  EventType = "flow.state.enter"
	FlowStateExit   EventType = "flow.state.exit"
	FlowTransition  EventType = "flow.transition"
	FlowCompleted   EventType = "flow.completed"
	FlowFailed      EventType = "flow.failed"

	// Job pipeline
	JobEnqueued  EventType = "job.enqueued"
	JobStarted   EventType = "job.started"
	JobCompleted EventType = "job.completed"
	JobFailed    EventType = "job.failed"
)

// Event carries data about a lifecycle occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]interface{}) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}
