package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stxkxs/troupe/internal/agent"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/task"
	"github.com/stxkxs/troupe/internal/telemetry"
)

// run dispatches on the process type. Hierarchical and parallel crews fall
// back to the sequential schedule; their config is honored elsewhere
// (manager_model validation, retry and timeout policy).
func (e *Executor) run(ctx context.Context, res *Result) error {
	switch strings.ToLower(e.crewCfg.Process.Type) {
	case "", "sequential":
	case "hierarchical":
		e.logger.Warn("Hierarchical scheduling is not implemented; running tasks sequentially",
			"crew", e.crewCfg.Name,
			"manager_model", e.crewCfg.Process.ManagerModel,
		)
	case "parallel":
		e.logger.Warn("Parallel scheduling is not implemented; running tasks sequentially",
			"crew", e.crewCfg.Name,
		)
	default:
		return troupeErrors.Newf(troupeErrors.CodeConfigInvalid, "unknown process type %q", e.crewCfg.Process.Type).
			WithSuggestion("set process.type to sequential, hierarchical, or parallel")
	}
	return e.runSequential(ctx, res)
}

// runSequential executes tasks one at a time in declared order. Tasks whose
// dependencies did not complete are skipped, not failed. A task failure stops
// the run only when fail_fast is set; otherwise later tasks still execute.
func (e *Executor) runSequential(ctx context.Context, res *Result) error {
	log := e.logger.WithTrace(ctx)
	tasks := e.graph.Tasks()
	completed := make(map[string]bool, len(tasks))
	shared := make(map[string]interface{}, len(tasks))

	for i, t := range tasks {
		if ctx.Err() != nil {
			e.cancelFrom(tasks, i)
			return e.abortErr(ctx.Err())
		}

		if !t.IsReady(completed) {
			missing := missingDeps(t, completed)
			if err := t.Skip(); err != nil {
				return err
			}
			res.Stats.TasksSkipped++
			e.metrics.IncTasksSkipped()
			e.emit(event.TaskSkipped, map[string]interface{}{
				"crew":    e.crewCfg.Name,
				"task":    t.ID(),
				"missing": missing,
			})
			log.Info("Skipping task with unmet dependencies", "task", t.ID(), "missing", missing)
			continue
		}

		for _, dep := range t.Dependencies() {
			if out, ok := res.TaskOutputs[dep]; ok {
				t.AddContext(dep, out.Result, true)
			}
		}

		out, err := e.runTask(ctx, t, shared)
		if err != nil {
			res.Stats.TasksFailed++
			if ctx.Err() != nil {
				e.cancelFrom(tasks, i+1)
				return e.abortErr(ctx.Err())
			}
			if e.crewCfg.Process.FailFast {
				e.cancelFrom(tasks, i+1)
				return troupeErrors.Wrap(troupeErrors.CodeExecutionFailed, fmt.Sprintf("task %s failed", t.ID()), err)
			}
			continue
		}

		completed[t.ID()] = true
		res.TaskOutputs[t.ID()] = out
		shared[t.ID()] = out.Result
		res.Stats.TasksCompleted++
	}

	res.Output = e.joinOutputs(tasks, res.TaskOutputs)
	return nil
}

// runTask executes one task, retrying failed attempts while the crew's
// retry_failed policy and the task's retry budget allow. Context gathered
// from dependencies survives across attempts.
func (e *Executor) runTask(ctx context.Context, t *task.Task, shared map[string]interface{}) (*task.Output, error) {
	exec := e.agentFor(t)

	// Each task runs in its own span so every log line below carries the
	// task and agent without repeating them per call.
	if tc := telemetry.TraceFromContext(ctx); tc != nil {
		ctx = telemetry.ContextWithTrace(ctx, tc.ChildSpan().WithTask(t.ID()).WithAgent(exec.Agent().ID()))
	}
	log := e.logger.WithTrace(ctx)

	for {
		if err := t.Start(); err != nil {
			return nil, err
		}
		e.metrics.IncTasksStarted()
		e.emit(event.TaskStarted, map[string]interface{}{
			"crew":    e.crewCfg.Name,
			"task":    t.ID(),
			"agent":   exec.Agent().ID(),
			"attempt": t.Attempts(),
		})
		log.Info("Executing task", "attempt", t.Attempts())

		taskCtx := ctx
		var cancel context.CancelFunc
		if secs := t.TimeoutSeconds(); secs > 0 {
			taskCtx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		}

		result, err := exec.Execute(taskCtx, e.executionContext(t, exec, shared))
		if cancel != nil {
			cancel()
		}

		if err == nil {
			out := task.ParseOutput(result.Output)
			if cerr := t.Complete(out); cerr != nil {
				return nil, cerr
			}
			e.metrics.IncTasksCompleted()
			e.metrics.RecordTaskDuration(t.Duration())
			e.emit(event.TaskCompleted, map[string]interface{}{
				"crew":        e.crewCfg.Name,
				"task":        t.ID(),
				"duration_ms": t.Duration().Milliseconds(),
			})
			log.Info("Task completed", "duration", t.Duration())
			if e.crewCfg.Process.Verbose {
				log.Info("Task output", "output", snippet(out.Result, 200))
			}
			if e.crewMemory != nil {
				if merr := e.crewMemory.StoreShared("task:"+t.ID(), out.Result); merr != nil {
					log.Warn("Failed to store task output in crew memory", "error", merr)
				}
			}
			e.writeOutputFile(log, t, out)
			return out, nil
		}

		// A deadline on taskCtx but not ctx means the task's own timeout fired.
		if errors.Is(taskCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = troupeErrors.Wrap(troupeErrors.CodeTimeout,
				fmt.Sprintf("task %s timed out after %ds", t.ID(), t.TimeoutSeconds()), err)
		}
		if ferr := t.Fail(err); ferr != nil {
			return nil, ferr
		}
		e.metrics.IncTasksFailed()
		e.emit(event.TaskFailed, map[string]interface{}{
			"crew":    e.crewCfg.Name,
			"task":    t.ID(),
			"error":   err.Error(),
			"attempt": t.Attempts(),
		})
		log.Error("Task failed", "attempt", t.Attempts(), "error", err)

		if !e.crewCfg.Process.RetryFailed || !t.CanRetry() || ctx.Err() != nil {
			return nil, err
		}
		if rerr := t.Reset(); rerr != nil {
			return nil, err
		}
		e.emit(event.TaskRetrying, map[string]interface{}{
			"crew":    e.crewCfg.Name,
			"task":    t.ID(),
			"attempt": t.Attempts() + 1,
		})
		log.Warn("Retrying failed task", "next_attempt", t.Attempts()+1)
	}
}

// executionContext assembles the agent's view of a task: prompt inputs,
// dependency context in declared order, the tool override, and a snapshot of
// outputs completed so far.
func (e *Executor) executionContext(t *task.Task, exec *agent.Executor, shared map[string]interface{}) *agent.ExecutionContext {
	entries := t.Context()
	texts := make([]string, 0, len(entries))
	for _, entry := range entries {
		texts = append(texts, entry.Text)
	}

	names := append([]string(nil), t.Tools()...)
	if e.crewMemory != nil {
		if len(names) == 0 {
			names = append(names, exec.Agent().Tools()...)
		}
		names = appendUnique(names, "memory_search")
	}

	state := make(map[string]interface{}, len(shared))
	for k, v := range shared {
		state[k] = v
	}

	return &agent.ExecutionContext{
		TaskDescription: t.Description(),
		ExpectedOutput:  t.ExpectedOutput(),
		Context:         texts,
		AvailableTools:  names,
		SharedState:     state,
	}
}

// cancelFrom marks still-pending tasks as cancelled after an abort.
func (e *Executor) cancelFrom(tasks []*task.Task, start int) {
	for _, t := range tasks[start:] {
		if t.Status() == task.StatusPending {
			if err := t.Cancel(); err != nil {
				e.logger.Warn("Failed to cancel task", "task", t.ID(), "error", err)
			}
		}
	}
}

// abortErr converts a context error into the crew-level failure.
func (e *Executor) abortErr(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return troupeErrors.New(troupeErrors.CodeExecutionFailed, "timeout")
	}
	return troupeErrors.Wrap(troupeErrors.CodeExecutionFailed, "execution cancelled", cause)
}

func missingDeps(t *task.Task, completed map[string]bool) []string {
	var missing []string
	for _, dep := range t.Dependencies() {
		if !completed[dep] {
			missing = append(missing, dep)
		}
	}
	return missing
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
