// Package state persists run history. Every crew, flow, and agent run
// produces a Record; drivers keep them in memory or in SQLite.
package state

import "time"

// RunKind classifies what produced a run record.
type RunKind string

const (
	KindCrew  RunKind = "crew"
	KindFlow  RunKind = "flow"
	KindAgent RunKind = "agent"
)

// RunStatus tracks a run through its lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Record is one run's history entry.
type Record struct {
	ID        string     `json:"id"`
	Kind      RunKind    `json:"kind"`
	Name      string     `json:"name"`
	Status    RunStatus  `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Error     string     `json:"error,omitempty"`
	Output    string     `json:"output,omitempty"`
}

// DurationMs reports the run's wall-clock duration, measured to now for runs
// that are still in flight.
func (r *Record) DurationMs() int64 {
	end := time.Now().UTC()
	if r.EndedAt != nil {
		end = *r.EndedAt
	}
	return end.Sub(r.StartedAt).Milliseconds()
}
