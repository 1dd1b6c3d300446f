package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// popPollInterval is how often a blocked Pop rechecks the queues.
const popPollInterval = 10 * time.Millisecond

// MemoryBroker is an in-process Broker with the same queue and status
// semantics as the Redis driver. It backs tests, `troupe run`, and
// single-process deployments that don't want a Redis dependency.
type MemoryBroker struct {
	prefix string

	mu       sync.Mutex
	queues   map[string][][]byte
	statuses map[string]statusEntry
	closed   bool

	now func() time.Time // injectable clock for TTL tests
}

type statusEntry struct {
	payload []byte
	expires time.Time
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker(prefix string) *MemoryBroker {
	return &MemoryBroker{
		prefix:   prefix,
		queues:   make(map[string][][]byte),
		statuses: make(map[string]statusEntry),
		now:      time.Now,
	}
}

func (b *MemoryBroker) Enqueue(ctx context.Context, queue, jobID string, job interface{}) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal %s job: %w", queue, err)
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return fmt.Errorf("queue: broker closed")
	}
	key := queueKey(b.prefix, queue)
	b.queues[key] = append(b.queues[key], payload)
	b.mu.Unlock()

	return b.SetStatus(ctx, Pending(jobID))
}

// Pop polls the named queues in order until a job shows up or the timeout
// elapses. Polling keeps the semantics identical to BRPOP without a
// condition variable that can't honor context cancellation.
func (b *MemoryBroker) Pop(ctx context.Context, queues []string, timeout time.Duration) (string, []byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		for _, q := range queues {
			key := queueKey(b.prefix, q)
			if items := b.queues[key]; len(items) > 0 {
				payload := items[0]
				b.queues[key] = items[1:]
				b.mu.Unlock()
				return q, payload, nil
			}
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return "", nil, fmt.Errorf("queue: broker closed")
		}
		if !time.Now().Before(deadline) {
			return "", nil, ErrNoJob
		}
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		case <-time.After(popPollInterval):
		}
	}
}

func (b *MemoryBroker) SetStatus(ctx context.Context, res *JobResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal job status: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.statuses[res.JobID] = statusEntry{payload: payload, expires: b.now().Add(StatusTTL)}
	return nil
}

func (b *MemoryBroker) Status(ctx context.Context, jobID string) (*JobResult, bool, error) {
	b.mu.Lock()
	entry, ok := b.statuses[jobID]
	if ok && b.now().After(entry.expires) {
		delete(b.statuses, jobID)
		ok = false
	}
	b.mu.Unlock()

	if !ok {
		return nil, false, nil
	}
	var res JobResult
	if err := json.Unmarshal(entry.payload, &res); err != nil {
		return nil, false, fmt.Errorf("unmarshal job status: %w", err)
	}
	return &res, true, nil
}

func (b *MemoryBroker) Depth(ctx context.Context, queue string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.queues[queueKey(b.prefix, queue)])), nil
}

func (b *MemoryBroker) Ping(ctx context.Context) error {
	return nil
}

func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
