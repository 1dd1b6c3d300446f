package queue

import (
	"context"
	"errors"
	"time"

	"github.com/stxkxs/troupe/internal/config"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

// ErrNoJob is returned by Pop when the timeout elapsed with every queue
// empty.
var ErrNoJob = errors.New("queue: no job available")

// Broker moves jobs through named queues and tracks their status records.
// Push and pop use opposite ends of each queue, so delivery within a queue
// is FIFO.
type Broker interface {
	// Enqueue pushes a job onto the named queue and writes its initial
	// Pending status.
	Enqueue(ctx context.Context, queue, jobID string, job interface{}) error

	// Pop blocks up to timeout for a job from any of the named queues and
	// returns the queue it came from with the raw payload. ErrNoJob means
	// the timeout elapsed.
	Pop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error)

	// SetStatus stores a status record under the job's status key and
	// refreshes its TTL. Writes are idempotent.
	SetStatus(ctx context.Context, res *JobResult) error

	// Status loads a job's status record. The bool is false when the key
	// is missing or expired.
	Status(ctx context.Context, jobID string) (*JobResult, bool, error)

	// Depth reports how many jobs are waiting on the named queue.
	Depth(ctx context.Context, queue string) (int64, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// NewBroker selects a broker driver from configuration: "redis" for the
// shared Redis-backed broker, "memory" (or empty) for the in-process one.
func NewBroker(cfg config.QueueConfig) (Broker, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisBroker(cfg.RedisURL, cfg.Prefix)
	case "memory", "":
		return NewMemoryBroker(cfg.Prefix), nil
	default:
		return nil, troupeErrors.Newf(troupeErrors.CodeConfigInvalid, "unknown queue driver %q", cfg.Driver).
			WithSuggestion(`set queue.driver to "redis" or "memory"`)
	}
}

// queueKey builds the storage key for a queue, e.g. "troupe:chat".
func queueKey(prefix, queue string) string {
	if prefix == "" {
		return queue
	}
	return prefix + ":" + queue
}

// statusKey builds the storage key for a job's status record, e.g.
// "troupe:status:<job-id>".
func statusKey(prefix, jobID string) string {
	if prefix == "" {
		return "status:" + jobID
	}
	return prefix + ":status:" + jobID
}
