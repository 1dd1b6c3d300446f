package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/telemetry"
)

// DefaultConcurrency bounds handler goroutines when no worker concurrency is
// configured.
const DefaultConcurrency = 4

// DefaultPopTimeout is how long one pop blocks before the loop rechecks for
// shutdown.
const DefaultPopTimeout = 1 * time.Second

// Handler processes one raw job payload popped from its queue. The returned
// map becomes the job's Completed result; an error marks the job Failed.
type Handler interface {
	// Queue names the queue this handler drains.
	Queue() string
	// Handle runs the job to completion.
	Handle(ctx context.Context, payload []byte) (map[string]interface{}, error)
}

// jobEnvelope extracts the job id common to every payload shape.
type jobEnvelope struct {
	JobID string `json:"job_id"`
}

// Workers drains job queues with bounded concurrency. One dispatcher
// goroutine pops jobs; each popped job runs in its own goroutine, gated by a
// semaphore of size concurrency. Handler errors and panics mark the job
// Failed and are logged; they never stop the loop.
type Workers struct {
	broker      Broker
	handlers    map[string]Handler
	queues      []string
	concurrency int
	popTimeout  time.Duration

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	bus     *event.Bus

	slots    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorkers builds a pool that drains the queues its handlers serve, in
// canonical queue order. Concurrency values below one fall back to
// DefaultConcurrency.
func NewWorkers(broker Broker, concurrency int, logger *telemetry.Logger, handlers ...Handler) *Workers {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if logger == nil {
		logger = telemetry.NewLogger(false)
	}

	w := &Workers{
		broker:      broker,
		handlers:    make(map[string]Handler, len(handlers)),
		concurrency: concurrency,
		popTimeout:  DefaultPopTimeout,
		logger:      logger,
		metrics:     telemetry.NewMetrics(),
		bus:         event.NewBus(logger),
		slots:       make(chan struct{}, concurrency),
		stopCh:      make(chan struct{}),
	}
	for _, h := range handlers {
		w.handlers[h.Queue()] = h
	}
	for q := range w.handlers {
		w.queues = append(w.queues, q)
	}
	sort.Slice(w.queues, func(i, j int) bool { return queueRank(w.queues[i]) < queueRank(w.queues[j]) })
	return w
}

func queueRank(q string) int {
	for i, known := range Queues {
		if q == known {
			return i
		}
	}
	return len(Queues)
}

// Events returns the pool's event bus for hook registration.
func (w *Workers) Events() *event.Bus {
	return w.bus
}

// Metrics returns the pool's counters.
func (w *Workers) Metrics() *telemetry.Metrics {
	return w.metrics
}

// Start launches the dispatcher and returns immediately. The context bounds
// pops and handler execution; call Stop for a graceful drain.
func (w *Workers) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop halts the dispatcher and waits for in-flight handlers to finish,
// bounded by the context's deadline.
func (w *Workers) Stop(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker shutdown grace period expired: %w", ctx.Err())
	}
}

func (w *Workers) run(ctx context.Context) {
	defer w.wg.Done()
	w.logger.Info("Worker pool started",
		"queues", strings.Join(w.queues, ","),
		"concurrency", w.concurrency,
	)

	for {
		if w.stopping(ctx) {
			return
		}

		// Take a slot before popping so a popped job always has a worker.
		select {
		case w.slots <- struct{}{}:
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}

		queue, payload, err := w.broker.Pop(ctx, w.queues, w.popTimeout)
		if err != nil {
			<-w.slots
			if errors.Is(err, ErrNoJob) {
				continue
			}
			if w.stopping(ctx) {
				return
			}
			w.logger.Warn("Queue pop failed", "error", err)
			select { // back off so an unreachable broker doesn't spin the loop
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(w.popTimeout):
			}
			continue
		}

		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer func() { <-w.slots }()
			w.process(ctx, queue, payload)
		}()
	}
}

func (w *Workers) stopping(ctx context.Context) bool {
	select {
	case <-w.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// process runs one popped job through its handler and records the outcome on
// the job's status key. Status writes survive context cancellation so a
// shutdown mid-job still lands a terminal status.
func (w *Workers) process(ctx context.Context, queue string, payload []byte) {
	w.metrics.WorkerStarted()
	defer w.metrics.WorkerDone()
	started := time.Now()

	var env jobEnvelope
	if err := json.Unmarshal(payload, &env); err != nil || env.JobID == "" {
		w.logger.Error("Discarding malformed job", "queue", queue, "error", err)
		w.metrics.IncJobsFailed()
		return
	}

	tc := telemetry.NewTraceContext(env.JobID).WithJob(env.JobID)
	ctx = telemetry.ContextWithTrace(ctx, tc)
	statusCtx := context.WithoutCancel(ctx)
	log := w.logger.WithTrace(ctx)

	handler, ok := w.handlers[queue]
	if !ok {
		w.setStatus(statusCtx, Failed(env.JobID, fmt.Sprintf("no handler for queue %q", queue)), log)
		w.metrics.IncJobsFailed()
		return
	}

	w.setStatus(statusCtx, Processing(env.JobID), log)
	w.emit(event.JobStarted, map[string]interface{}{"job_id": env.JobID, "queue": queue})
	log.Info("Job started", "queue", queue)

	result, err := w.invoke(ctx, handler, payload)
	durationMs := time.Since(started).Milliseconds()
	if err != nil {
		w.setStatus(statusCtx, Failed(env.JobID, err.Error()), log)
		w.emit(event.JobFailed, map[string]interface{}{"job_id": env.JobID, "queue": queue, "error": err.Error()})
		w.metrics.IncJobsFailed()
		w.metrics.Flush("job.failed", map[string]string{"queue": queue})
		log.Error("Job failed", "queue", queue, "error", err, "duration_ms", durationMs)
		return
	}

	w.setStatus(statusCtx, Completed(env.JobID, result), log)
	w.emit(event.JobCompleted, map[string]interface{}{"job_id": env.JobID, "queue": queue})
	w.metrics.IncJobsProcessed()
	w.metrics.RecordJobDuration(time.Since(started))
	w.metrics.Flush("job.completed", map[string]string{"queue": queue})
	log.Info("Job completed", "queue", queue, "duration_ms", durationMs)
}

// invoke shields the loop from handler panics.
func (w *Workers) invoke(ctx context.Context, h Handler, payload []byte) (result map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, payload)
}

func (w *Workers) setStatus(ctx context.Context, res *JobResult, log *telemetry.Logger) {
	if err := w.broker.SetStatus(ctx, res); err != nil {
		log.Warn("Status write failed", "job_id", res.JobID, "status", string(res.Status), "error", err)
	}
}

func (w *Workers) emit(t event.EventType, data map[string]interface{}) {
	if err := w.bus.EmitData(t, data); err != nil {
		w.logger.Warn("Event hook failed", "event", string(t), "error", err)
	}
}
