// Package queue implements the asynchronous job pipeline: a Broker moves
// JSON-encoded jobs through named queues and tracks per-job status records,
// and a Workers pool drains the queues with bounded concurrency, dispatching
// each job to the handler registered for its queue.
//
// Delivery is at least once. Producers write a Pending status at enqueue
// time; the worker that pops a job writes Processing, then Completed or
// Failed. Status writes are idempotent and every write refreshes the key's
// TTL, so clients can poll a job for a full hour after its last update.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Queue names. Producers and workers agree on these exact strings; the
// broker prepends the configured prefix when building storage keys.
const (
	QueueChat  = "chat"
	QueueEmbed = "embed"
	QueueIndex = "index"
)

// Queues lists every known queue in pop order.
var Queues = []string{QueueChat, QueueEmbed, QueueIndex}

// StatusTTL is the lifetime of a job status key, refreshed on every write.
const StatusTTL = 3600 * time.Second

// JobStatus tracks a job through its lifecycle.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// ChatJob asks a worker to run one conversational turn through an agent or
// the configured chat crew.
type ChatJob struct {
	JobID          string `json:"job_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
}

// EmbedJob asks a worker to embed inline document content into the vector
// store.
type EmbedJob struct {
	JobID      string                 `json:"job_id"`
	DocumentID string                 `json:"document_id"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// IndexJob asks a worker to fetch a document from its source and index it
// for search.
type IndexJob struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
}

// JobResult is the record stored under a job's status key.
type JobResult struct {
	JobID       string                 `json:"job_id"`
	Status      JobStatus              `json:"status"`
	Result      map[string]interface{} `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}

// NewJobID returns a fresh job identifier.
func NewJobID() string {
	return uuid.New().String()
}

// Pending is the initial status record for a freshly enqueued job.
func Pending(jobID string) *JobResult {
	return &JobResult{JobID: jobID, Status: StatusPending}
}

// Processing marks a job as picked up by a worker.
func Processing(jobID string) *JobResult {
	return &JobResult{JobID: jobID, Status: StatusProcessing}
}

// Completed records a successful job with its result payload.
func Completed(jobID string, result map[string]interface{}) *JobResult {
	now := time.Now().UTC()
	return &JobResult{JobID: jobID, Status: StatusCompleted, Result: result, CompletedAt: &now}
}

// Failed records a failed job with the handler's error message.
func Failed(jobID, errMsg string) *JobResult {
	now := time.Now().UTC()
	return &JobResult{JobID: jobID, Status: StatusFailed, Error: errMsg, CompletedAt: &now}
}

// Done reports whether the job reached a terminal status.
func (r *JobResult) Done() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
