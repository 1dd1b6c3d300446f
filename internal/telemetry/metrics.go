package telemetry

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects runtime counters across crews, flows, and the job pipeline.
type Metrics struct {
	mu sync.RWMutex

	// Counters
	TasksStarted   int64
	TasksCompleted int64
	TasksFailed    int64
	TasksSkipped   int64
	ModelCalls     int64
	ToolCalls      int64
	JobsProcessed  int64
	JobsFailed     int64

	// Gauges
	ActiveTasks   int64
	ActiveWorkers int64

	// Histograms (simplified)
	taskDurations []time.Duration
	jobDurations  []time.Duration

	// Exporter (optional)
	exporter MetricsExporter
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		taskDurations: make([]time.Duration, 0, 1000),
		jobDurations:  make([]time.Duration, 0, 1000),
	}
}

// IncTasksStarted increments the tasks started counter
func (m *Metrics) IncTasksStarted() {
	atomic.AddInt64(&m.TasksStarted, 1)
	atomic.AddInt64(&m.ActiveTasks, 1)
}

// IncTasksCompleted increments the tasks completed counter
func (m *Metrics) IncTasksCompleted() {
	atomic.AddInt64(&m.TasksCompleted, 1)
	atomic.AddInt64(&m.ActiveTasks, -1)
}

// IncTasksFailed increments the tasks failed counter
func (m *Metrics) IncTasksFailed() {
	atomic.AddInt64(&m.TasksFailed, 1)
	atomic.AddInt64(&m.ActiveTasks, -1)
}

// IncTasksSkipped increments the tasks skipped counter
func (m *Metrics) IncTasksSkipped() {
	atomic.AddInt64(&m.TasksSkipped, 1)
}

// IncModelCalls increments the language model call counter
func (m *Metrics) IncModelCalls() {
	atomic.AddInt64(&m.ModelCalls, 1)
}

// IncToolCalls increments the tool calls counter
func (m *Metrics) IncToolCalls() {
	atomic.AddInt64(&m.ToolCalls, 1)
}

// IncJobsProcessed increments the jobs processed counter
func (m *Metrics) IncJobsProcessed() {
	atomic.AddInt64(&m.JobsProcessed, 1)
}

// IncJobsFailed increments the jobs failed counter
func (m *Metrics) IncJobsFailed() {
	atomic.AddInt64(&m.JobsFailed, 1)
}

// WorkerStarted marks a worker permit as taken.
func (m *Metrics) WorkerStarted() {
	atomic.AddInt64(&m.ActiveWorkers, 1)
}

// WorkerDone releases a worker permit.
func (m *Metrics) WorkerDone() {
	atomic.AddInt64(&m.ActiveWorkers, -1)
}

// RecordTaskDuration records a task duration
func (m *Metrics) RecordTaskDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.taskDurations = append(m.taskDurations, d)
}

// RecordJobDuration records a job handling duration
func (m *Metrics) RecordJobDuration(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobDurations = append(m.jobDurations, d)
}

// GetSummary returns a summary of collected metrics
func (m *Metrics) GetSummary() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summary := map[string]interface{}{
		"tasks_started":   atomic.LoadInt64(&m.TasksStarted),
		"tasks_completed": atomic.LoadInt64(&m.TasksCompleted),
		"tasks_failed":    atomic.LoadInt64(&m.TasksFailed),
		"tasks_skipped":   atomic.LoadInt64(&m.TasksSkipped),
		"model_calls":     atomic.LoadInt64(&m.ModelCalls),
		"tool_calls":      atomic.LoadInt64(&m.ToolCalls),
		"jobs_processed":  atomic.LoadInt64(&m.JobsProcessed),
		"jobs_failed":     atomic.LoadInt64(&m.JobsFailed),
		"active_tasks":    atomic.LoadInt64(&m.ActiveTasks),
		"active_workers":  atomic.LoadInt64(&m.ActiveWorkers),
	}

	if len(m.taskDurations) > 0 {
		var total time.Duration
		for _, d := range m.taskDurations {
			total += d
		}
		summary["avg_task_duration_ms"] = total.Milliseconds() / int64(len(m.taskDurations))
	}

	if len(m.jobDurations) > 0 {
		var total time.Duration
		for _, d := range m.jobDurations {
			total += d
		}
		summary["avg_job_duration_ms"] = total.Milliseconds() / int64(len(m.jobDurations))
	}

	return summary
}

// Reset resets all metrics
func (m *Metrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	atomic.StoreInt64(&m.TasksStarted, 0)
	atomic.StoreInt64(&m.TasksCompleted, 0)
	atomic.StoreInt64(&m.TasksFailed, 0)
	atomic.StoreInt64(&m.TasksSkipped, 0)
	atomic.StoreInt64(&m.ModelCalls, 0)
	atomic.StoreInt64(&m.ToolCalls, 0)
	atomic.StoreInt64(&m.JobsProcessed, 0)
	atomic.StoreInt64(&m.JobsFailed, 0)
	atomic.StoreInt64(&m.ActiveTasks, 0)
	atomic.StoreInt64(&m.ActiveWorkers, 0)

	m.taskDurations = m.taskDurations[:0]
	m.jobDurations = m.jobDurations[:0]
}

// SetExporter attaches a metrics exporter.
func (m *Metrics) SetExporter(e MetricsExporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exporter = e
}

// Flush exports the current metrics snapshot with the given event label.
func (m *Metrics) Flush(event string, labels map[string]string) {
	m.mu.RLock()
	exporter := m.exporter
	m.mu.RUnlock()

	if exporter == nil {
		return
	}

	snapshot := MetricsSnapshot{
		Timestamp: time.Now(),
		Event:     event,
		Metrics:   m.GetSummary(),
		Labels:    labels,
	}
	// Best-effort export.
	_ = exporter.Export(snapshot)
}
