package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stxkxs/troupe/internal/crew"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/telemetry"
)

// DefaultMaxIterations bounds flows that declare no cap of their own.
const DefaultMaxIterations = 100

// CrewRunner starts the crew a state names and returns its result. The
// engine treats a returned error as a flow-level failure (the crew could not
// start); an unsuccessful crew result feeds condition evaluation instead.
type CrewRunner interface {
	RunCrew(ctx context.Context, crewID string, vars map[string]interface{}) (*crew.Result, error)
}

// CrewRunnerFunc adapts a function to CrewRunner.
type CrewRunnerFunc func(ctx context.Context, crewID string, vars map[string]interface{}) (*crew.Result, error)

func (f CrewRunnerFunc) RunCrew(ctx context.Context, crewID string, vars map[string]interface{}) (*crew.Result, error) {
	return f(ctx, crewID, vars)
}

// RunResult is the outcome of one flow run. Run always returns a populated
// RunResult. Success means a final state was reached, regardless of whether
// that state's crew succeeded.
type RunResult struct {
	FlowName    string                  `json:"flow_name"`
	Success     bool                    `json:"success"`
	Error       string                  `json:"error,omitempty"`
	FinalState  string                  `json:"final_state,omitempty"`
	History     []string                `json:"history"`
	Iterations  int                     `json:"iterations"`
	Variables   map[string]interface{}  `json:"variables,omitempty"`
	CrewResults map[string]*crew.Result `json:"crew_results,omitempty"`
	StartedAt   time.Time               `json:"started_at"`
	CompletedAt time.Time               `json:"completed_at"`
	DurationMs  int64                   `json:"duration_ms"`
}

// Engine walks one flow. Construct a fresh Engine per run. Variables live on
// the engine: SetVariable calls made mid-run (from listeners or other
// goroutines) are visible to the next transition evaluation.
type Engine struct {
	flow   *Flow
	runner CrewRunner
	logger *telemetry.Logger
	bus    *event.Bus

	mu   sync.RWMutex
	vars map[string]interface{}

	maxIterations int
}

// NewEngine creates an engine seeded with the flow's variables.
func NewEngine(f *Flow, runner CrewRunner, logger *telemetry.Logger) *Engine {
	if logger == nil {
		logger = telemetry.NewLogger(false)
	}
	e := &Engine{
		flow:          f,
		runner:        runner,
		logger:        logger,
		bus:           event.NewBus(logger),
		vars:          f.Variables(),
		maxIterations: f.MaxIterations(),
	}
	if e.maxIterations <= 0 {
		e.maxIterations = DefaultMaxIterations
	}
	return e
}

// Events exposes the engine's event bus so callers can register hooks before
// Run. Hook failures are logged and never fail the run.
func (e *Engine) Events() *event.Bus {
	return e.bus
}

// GetVariable reads a flow variable.
func (e *Engine) GetVariable(name string) (interface{}, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[name]
	return v, ok
}

// SetVariable writes a flow variable. Safe to call while the flow runs.
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vars[name] = value
}

func (e *Engine) snapshotVars() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]interface{}, len(e.vars))
	for k, v := range e.vars {
		out[k] = v
	}
	return out
}

// Run walks the flow from its initial state until a final state, an
// exhausted iteration budget, a dead end, or context cancellation.
func (e *Engine) Run(ctx context.Context) *RunResult {
	startedAt := time.Now()
	res := &RunResult{
		FlowName:    e.flow.Name(),
		CrewResults: make(map[string]*crew.Result),
	}

	ctx, trace := telemetry.BeginTrace(ctx, uuid.New().String())
	log := e.logger.WithTrace(ctx)

	current := e.flow.Initial()
	res.History = append(res.History, current)

	log.Info("Starting flow", "flow", e.flow.Name(), "initial", current)
	e.emit(event.FlowStarted, map[string]interface{}{
		"flow":    e.flow.Name(),
		"initial": current,
	})

	var lastResult *crew.Result

	for {
		if err := ctx.Err(); err != nil {
			return e.finish(log, res, startedAt, e.abortErr(err))
		}

		res.Iterations++
		if res.Iterations > e.maxIterations {
			return e.finish(log, res, startedAt,
				troupeErrors.Newf(troupeErrors.CodeMaxIterations, "flow exceeded max iterations (%d)", e.maxIterations).
					WithSuggestion("check the transitions for a loop or raise max_iterations"))
		}

		state, ok := e.flow.State(current)
		if !ok {
			// Unreachable after validation; transitions only point at known states.
			return e.finish(log, res, startedAt, troupeErrors.Newf(troupeErrors.CodeFlowInvalid, "unknown state %q", current))
		}

		e.emit(event.FlowStateEnter, map[string]interface{}{
			"flow":  e.flow.Name(),
			"state": current,
		})
		log.Info("Entering state", "flow", e.flow.Name(), "state", current, "iteration", res.Iterations)

		if state.Crew != "" {
			// The state's crew inherits the flow trace tagged with this state.
			stateCtx := telemetry.ContextWithTrace(ctx, trace.WithFlowState(current))
			var cancel context.CancelFunc
			if state.TimeoutS > 0 {
				stateCtx, cancel = context.WithTimeout(stateCtx, time.Duration(state.TimeoutS)*time.Second)
			}
			cr, err := e.runner.RunCrew(stateCtx, state.Crew, e.snapshotVars())
			if cancel != nil {
				cancel()
			}
			if err != nil {
				return e.finish(log, res, startedAt, troupeErrors.Wrap(troupeErrors.CodeExecutionFailed,
					fmt.Sprintf("state %s: crew %s could not run", current, state.Crew), err))
			}
			lastResult = cr
			res.CrewResults[current] = cr
			if !cr.Success {
				log.Warn("State crew failed", "state", current, "crew", state.Crew, "error", cr.Error)
			}
		}

		exitData := map[string]interface{}{
			"flow":  e.flow.Name(),
			"state": current,
		}
		if lastResult != nil {
			exitData["success"] = lastResult.Success
		}
		e.emit(event.FlowStateExit, exitData)

		if state.IsFinal {
			res.FinalState = current
			return e.finish(log, res, startedAt, nil)
		}

		next := e.nextTransition(current, lastResult, res.History)
		if next == nil {
			return e.finish(log, res, startedAt,
				troupeErrors.Newf(troupeErrors.CodeExecutionFailed, "no valid transition from %s", current).
					WithSuggestion("add an always or on_failure transition to cover this outcome"))
		}

		e.emit(event.FlowTransition, map[string]interface{}{
			"flow":     e.flow.Name(),
			"from":     current,
			"to":       next.To,
			"priority": next.Priority,
		})
		log.Info("Transitioning", "flow", e.flow.Name(), "from", current, "to", next.To)

		current = next.To
		res.History = append(res.History, current)
	}
}

// nextTransition picks the highest-priority transition out of current whose
// condition holds; ties go to the transition declared first.
func (e *Engine) nextTransition(current string, lastResult *crew.Result, history []string) *Transition {
	tc := &TransitionContext{
		Variables: e.snapshotVars(),
		Current:   current,
		History:   history,
	}
	if lastResult != nil {
		tc.Output = lastResult.Output
		tc.Success = lastResult.Success
	}

	var best *Transition
	for i := range e.flow.transitions {
		tr := &e.flow.transitions[i]
		if tr.From != current {
			continue
		}
		if !tr.Condition.Evaluate(tc) {
			continue
		}
		if best == nil || tr.Priority > best.Priority {
			best = tr
		}
	}
	return best
}

func (e *Engine) finish(log *telemetry.Logger, res *RunResult, startedAt time.Time, err error) *RunResult {
	completedAt := time.Now()
	res.StartedAt = startedAt
	res.CompletedAt = completedAt
	res.DurationMs = completedAt.Sub(startedAt).Milliseconds()
	res.Variables = e.snapshotVars()

	if err != nil {
		res.Success = false
		res.Error = err.Error()
		e.emit(event.FlowFailed, map[string]interface{}{
			"flow":  e.flow.Name(),
			"error": err.Error(),
		})
		log.Error("Flow failed", "flow", e.flow.Name(), "error", err)
		return res
	}

	res.Success = true
	e.emit(event.FlowCompleted, map[string]interface{}{
		"flow":        e.flow.Name(),
		"final_state": res.FinalState,
		"iterations":  res.Iterations,
	})
	log.Info("Flow completed",
		"flow", e.flow.Name(),
		"final_state", res.FinalState,
		"iterations", res.Iterations,
	)
	return res
}

func (e *Engine) abortErr(cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		return troupeErrors.New(troupeErrors.CodeExecutionFailed, "timeout")
	}
	return troupeErrors.Wrap(troupeErrors.CodeExecutionFailed, "flow execution cancelled", cause)
}

func (e *Engine) emit(t event.EventType, data map[string]interface{}) {
	if err := e.bus.EmitData(t, data); err != nil {
		e.logger.Warn("Event hook failed", "event", string(t), "error", err)
	}
}
