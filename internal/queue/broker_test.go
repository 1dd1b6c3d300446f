package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stxkxs/troupe/internal/config"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

func popOne(t *testing.T, b Broker, queues ...string) (string, []byte) {
	t.Helper()
	queue, payload, err := b.Pop(context.Background(), queues, 2*time.Second)
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	return queue, payload
}

func TestMemoryBroker_FIFOOrder(t *testing.T) {
	b := NewMemoryBroker("test")
	ctx := context.Background()

	for _, msg := range []string{"first", "second", "third"} {
		job := ChatJob{JobID: NewJobID(), Message: msg}
		if err := b.Enqueue(ctx, QueueChat, job.JobID, job); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	for _, want := range []string{"first", "second", "third"} {
		queue, payload := popOne(t, b, QueueChat)
		if queue != QueueChat {
			t.Errorf("popped from queue %q, want %q", queue, QueueChat)
		}
		var job ChatJob
		if err := json.Unmarshal(payload, &job); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if job.Message != want {
			t.Errorf("popped message %q, want %q", job.Message, want)
		}
	}
}

func TestMemoryBroker_PopEmptyTimesOut(t *testing.T) {
	b := NewMemoryBroker("test")

	_, _, err := b.Pop(context.Background(), []string{QueueChat}, 30*time.Millisecond)
	if !errors.Is(err, ErrNoJob) {
		t.Fatalf("Pop on empty queue returned %v, want ErrNoJob", err)
	}
}

func TestMemoryBroker_PopHonorsQueueOrder(t *testing.T) {
	b := NewMemoryBroker("test")
	ctx := context.Background()

	if err := b.Enqueue(ctx, QueueIndex, "job-index", IndexJob{JobID: "job-index", DocumentID: "doc"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := b.Enqueue(ctx, QueueEmbed, "job-embed", EmbedJob{JobID: "job-embed", DocumentID: "doc", Content: "text"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	queue, _ := popOne(t, b, Queues...)
	if queue != QueueEmbed {
		t.Errorf("first pop came from %q, want %q (earlier queue wins)", queue, QueueEmbed)
	}
	queue, _ = popOne(t, b, Queues...)
	if queue != QueueIndex {
		t.Errorf("second pop came from %q, want %q", queue, QueueIndex)
	}
}

func TestMemoryBroker_PopHonorsContext(t *testing.T) {
	b := NewMemoryBroker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := b.Pop(ctx, []string{QueueChat}, 5*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Pop with canceled context returned %v, want context.Canceled", err)
	}
}

func TestMemoryBroker_EnqueueWritesPending(t *testing.T) {
	b := NewMemoryBroker("test")
	ctx := context.Background()

	jobID := NewJobID()
	if err := b.Enqueue(ctx, QueueChat, jobID, ChatJob{JobID: jobID, Message: "hi"}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	res, ok, err := b.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !ok {
		t.Fatal("status missing after Enqueue")
	}
	if res.Status != StatusPending {
		t.Errorf("status = %q, want %q", res.Status, StatusPending)
	}
	if res.Done() {
		t.Error("pending job reported as done")
	}
}

func TestMemoryBroker_StatusRoundTrip(t *testing.T) {
	b := NewMemoryBroker("test")
	ctx := context.Background()
	jobID := NewJobID()

	done := Completed(jobID, map[string]interface{}{"response": "hello there"})
	if err := b.SetStatus(ctx, done); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	res, ok, err := b.Status(ctx, jobID)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !ok {
		t.Fatal("status missing after SetStatus")
	}
	if res.Status != StatusCompleted {
		t.Errorf("status = %q, want %q", res.Status, StatusCompleted)
	}
	if res.Result["response"] != "hello there" {
		t.Errorf("result payload = %v, want response preserved", res.Result)
	}
	if res.CompletedAt == nil {
		t.Error("completed status lost its completed_at timestamp")
	}
	if !res.Done() {
		t.Error("completed job not reported as done")
	}
}

func TestMemoryBroker_SetStatusIdempotent(t *testing.T) {
	b := NewMemoryBroker("test")
	ctx := context.Background()
	jobID := NewJobID()

	done := Completed(jobID, map[string]interface{}{"n": "1"})
	if err := b.SetStatus(ctx, done); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	if err := b.SetStatus(ctx, done); err != nil {
		t.Fatalf("repeated SetStatus failed: %v", err)
	}

	res, ok, _ := b.Status(ctx, jobID)
	if !ok {
		t.Fatal("status missing")
	}
	if res.Status != StatusCompleted || res.Result["n"] != "1" {
		t.Errorf("repeated write changed the stored record: %+v", res)
	}
}

func TestMemoryBroker_StatusExpires(t *testing.T) {
	b := NewMemoryBroker("test")
	base := time.Now()
	offset := time.Duration(0)
	b.now = func() time.Time { return base.Add(offset) }
	ctx := context.Background()

	if err := b.SetStatus(ctx, Pending("job-ttl")); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}

	offset = StatusTTL - time.Minute
	if _, ok, _ := b.Status(ctx, "job-ttl"); !ok {
		t.Fatal("status expired before its TTL")
	}

	// A write inside the window refreshes the TTL.
	if err := b.SetStatus(ctx, Processing("job-ttl")); err != nil {
		t.Fatalf("SetStatus failed: %v", err)
	}
	offset = StatusTTL + StatusTTL/2
	res, ok, _ := b.Status(ctx, "job-ttl")
	if !ok {
		t.Fatal("refreshed status expired on the original schedule")
	}
	if res.Status != StatusProcessing {
		t.Errorf("status = %q, want %q", res.Status, StatusProcessing)
	}

	offset = 3 * StatusTTL
	if _, ok, _ := b.Status(ctx, "job-ttl"); ok {
		t.Fatal("status survived past its TTL")
	}
}

func TestMemoryBroker_StatusMissing(t *testing.T) {
	b := NewMemoryBroker("test")

	res, ok, err := b.Status(context.Background(), "no-such-job")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if ok || res != nil {
		t.Errorf("Status for unknown job = (%v, %v), want (nil, false)", res, ok)
	}
}

func TestMemoryBroker_Depth(t *testing.T) {
	b := NewMemoryBroker("test")
	ctx := context.Background()

	if n, _ := b.Depth(ctx, QueueChat); n != 0 {
		t.Fatalf("empty queue depth = %d, want 0", n)
	}
	for i := 0; i < 2; i++ {
		id := NewJobID()
		if err := b.Enqueue(ctx, QueueChat, id, ChatJob{JobID: id, Message: "x"}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	if n, _ := b.Depth(ctx, QueueChat); n != 2 {
		t.Fatalf("depth after two enqueues = %d, want 2", n)
	}
	popOne(t, b, QueueChat)
	if n, _ := b.Depth(ctx, QueueChat); n != 1 {
		t.Fatalf("depth after pop = %d, want 1", n)
	}
}

func TestMemoryBroker_ClosedRejectsWork(t *testing.T) {
	b := NewMemoryBroker("test")
	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := b.Enqueue(context.Background(), QueueChat, "j", ChatJob{JobID: "j", Message: "x"}); err == nil {
		t.Error("Enqueue on closed broker succeeded")
	}
	if _, _, err := b.Pop(context.Background(), []string{QueueChat}, 50*time.Millisecond); err == nil {
		t.Error("Pop on closed broker succeeded")
	}
}

func TestNewBroker_SelectsDriver(t *testing.T) {
	b, err := NewBroker(config.QueueConfig{Driver: "memory", Prefix: "test"})
	if err != nil {
		t.Fatalf("memory driver failed: %v", err)
	}
	if _, ok := b.(*MemoryBroker); !ok {
		t.Errorf("driver %q built %T, want *MemoryBroker", "memory", b)
	}
	b.Close()

	b, err = NewBroker(config.QueueConfig{Prefix: "test"})
	if err != nil {
		t.Fatalf("empty driver failed: %v", err)
	}
	if _, ok := b.(*MemoryBroker); !ok {
		t.Errorf("empty driver built %T, want *MemoryBroker", b)
	}
	b.Close()

	b, err = NewBroker(config.QueueConfig{Driver: "redis", RedisURL: "redis://localhost:6379/5", Prefix: "test"})
	if err != nil {
		t.Fatalf("redis driver failed: %v", err)
	}
	if _, ok := b.(*RedisBroker); !ok {
		t.Errorf("driver %q built %T, want *RedisBroker", "redis", b)
	}
	b.Close()

	if _, err := NewBroker(config.QueueConfig{Driver: "carrier-pigeon"}); troupeErrors.AsCode(err) != troupeErrors.CodeConfigInvalid {
		t.Errorf("unknown driver error = %v, want %s", err, troupeErrors.CodeConfigInvalid)
	}

	if _, err := NewRedisBroker("redis://[::1]:namedport", "test"); err == nil {
		t.Error("malformed redis URL accepted")
	}
}

func TestStorageKeys(t *testing.T) {
	if got := queueKey("troupe", QueueChat); got != "troupe:chat" {
		t.Errorf("queueKey = %q, want %q", got, "troupe:chat")
	}
	if got := queueKey("", QueueChat); got != "chat" {
		t.Errorf("unprefixed queueKey = %q, want %q", got, "chat")
	}
	if got := statusKey("troupe", "abc"); got != "troupe:status:abc" {
		t.Errorf("statusKey = %q, want %q", got, "troupe:status:abc")
	}
	if got := statusKey("", "abc"); got != "status:abc" {
		t.Errorf("unprefixed statusKey = %q, want %q", got, "status:abc")
	}
}

func TestJobResult_Lifecycle(t *testing.T) {
	id := NewJobID()

	if Pending(id).Done() || Processing(id).Done() {
		t.Error("non-terminal status reported as done")
	}

	failed := Failed(id, "model unreachable")
	if !failed.Done() {
		t.Error("failed job not reported as done")
	}
	if failed.Error != "model unreachable" {
		t.Errorf("failed error = %q", failed.Error)
	}
	if failed.CompletedAt == nil {
		t.Error("failed job missing completed_at")
	}
}
