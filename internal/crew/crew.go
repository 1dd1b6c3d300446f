// Package crew orchestrates multi-agent task execution. An Executor owns a
// set of agent executors and a task graph built from configuration, validates
// them as a unit, and runs the tasks to produce a Result.
//
// All process types currently execute with sequential semantics: tasks run
// one at a time in declared order. Hierarchical crews are validated (a
// manager model is required) and parallel crews are accepted, but neither is
// scheduled differently yet.
package crew

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stxkxs/troupe/internal/agent"
	"github.com/stxkxs/troupe/internal/config"
	troupeErrors "github.com/stxkxs/troupe/internal/errors"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/memory"
	"github.com/stxkxs/troupe/internal/provider"
	"github.com/stxkxs/troupe/internal/task"
	"github.com/stxkxs/troupe/internal/telemetry"
	"github.com/stxkxs/troupe/internal/tool"
	"github.com/stxkxs/troupe/internal/tool/builtin"
)

// Result is the outcome of a crew run. Kickoff always returns a populated
// Result, including on validation failure, timeout, and abort.
type Result struct {
	CrewName    string                  `json:"crew_name"`
	Success     bool                    `json:"success"`
	Error       string                  `json:"error,omitempty"`
	TaskOutputs map[string]*task.Output `json:"task_outputs"`
	Output      string                  `json:"output"`
	Stats       ExecutionStats          `json:"stats"`
}

// ExecutionStats summarizes a crew run.
type ExecutionStats struct {
	TasksTotal     int       `json:"tasks_total"`
	TasksCompleted int       `json:"tasks_completed"`
	TasksFailed    int       `json:"tasks_failed"`
	TasksSkipped   int       `json:"tasks_skipped"`
	DurationMs     int64     `json:"duration_ms"`
	StartedAt      time.Time `json:"started_at"`
	CompletedAt    time.Time `json:"completed_at"`
}

// Executor runs one crew. Construct a fresh Executor per run: task state
// (attempts, context, status) lives on the executor's task instances.
type Executor struct {
	cfg     *config.Config
	crewCfg *config.CrewConfig

	agents     map[string]*agent.Executor
	agentOrder []string
	graph      *task.Graph

	crewMemory *memory.CrewMemory
	bus        *event.Bus
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
}

// NewExecutor builds a crew executor from project configuration, creating a
// provider-backed agent executor for every agent the crew references.
func NewExecutor(cfg *config.Config, project *config.Project, crewCfg *config.CrewConfig, logger *telemetry.Logger) (*Executor, error) {
	return newExecutor(cfg, project, crewCfg, logger, func(agentCfg *config.AgentConfig) (*agent.Executor, error) {
		return agent.NewExecutor(cfg, agentCfg, logger)
	})
}

// NewExecutorWithProvider builds a crew executor whose agents all share the
// given provider. Used by tests and by callers that manage providers
// themselves.
func NewExecutorWithProvider(cfg *config.Config, project *config.Project, crewCfg *config.CrewConfig, p provider.Provider, logger *telemetry.Logger) (*Executor, error) {
	return newExecutor(cfg, project, crewCfg, logger, func(agentCfg *config.AgentConfig) (*agent.Executor, error) {
		return agent.NewExecutorWithProvider(agentCfg, p, logger)
	})
}

func newExecutor(cfg *config.Config, project *config.Project, crewCfg *config.CrewConfig, logger *telemetry.Logger, makeAgent func(*config.AgentConfig) (*agent.Executor, error)) (*Executor, error) {
	if logger == nil {
		logger = telemetry.NewLogger(false)
	}

	e := &Executor{
		cfg:     cfg,
		crewCfg: crewCfg,
		agents:  make(map[string]*agent.Executor),
		graph:   task.NewGraph(),
		bus:     event.NewBus(logger),
		logger:  logger,
		metrics: telemetry.NewMetrics(),
	}

	if crewCfg.Memory != nil {
		e.crewMemory = memory.NewCrewMemory(memory.Config{
			Type:          crewCfg.Memory.Type,
			MaxItems:      crewCfg.Memory.MaxItems,
			UseEmbeddings: crewCfg.Memory.UseEmbeddings,
			TTLSeconds:    crewCfg.Memory.TTLSeconds,
			Persist:       crewCfg.Memory.Persist,
			StoragePath:   crewCfg.Memory.StoragePath,
		})
	}

	agentIDs := crewCfg.Agents
	if len(agentIDs) == 0 {
		agentIDs = project.AgentOrder
	}
	for _, id := range agentIDs {
		agentCfg, ok := project.Agents[id]
		if !ok {
			return nil, troupeErrors.Newf(troupeErrors.CodeAgentNotFound, "crew %q references unknown agent %q", crewCfg.Name, id).
				WithSuggestion("define the agent in agents.yaml or remove it from the crew")
		}
		exec, err := makeAgent(agentCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create executor for agent %s: %w", id, err)
		}
		exec.SetEvents(e.bus)
		if e.crewMemory != nil {
			if exec.Agent().Memory() == nil {
				exec.Agent().AttachMemory(e.crewMemory.ForAgent(id))
			}
			exec.AddTools(map[string]tool.Tool{
				"memory_search": builtin.NewMemorySearchTool(e.crewMemory.Shared()),
			})
		}
		e.agents[id] = exec
		e.agentOrder = append(e.agentOrder, id)
	}

	for _, id := range crewCfg.Tasks {
		taskCfg, ok := project.Tasks[id]
		if !ok {
			return nil, troupeErrors.Newf(troupeErrors.CodeConfigInvalid, "crew %q references unknown task %q", crewCfg.Name, id).
				WithSuggestion("define the task in tasks.yaml or remove it from the crew")
		}
		// Clone so crew-level retry defaults don't leak into the project config.
		tc := *taskCfg
		if tc.MaxRetries == 0 && crewCfg.Process.RetryFailed {
			tc.MaxRetries = crewCfg.Process.MaxRetries
		}
		if err := e.graph.Add(task.NewTask(&tc)); err != nil {
			return nil, troupeErrors.Wrap(troupeErrors.CodeConfigInvalid, fmt.Sprintf("crew %q has an invalid task list", crewCfg.Name), err)
		}
	}

	return e, nil
}

// Validate checks the crew before any task starts: the crew has agents and
// tasks, every assigned agent resolves, the dependency graph is acyclic, and
// hierarchical crews name a manager model.
func (e *Executor) Validate() error {
	if len(e.agentOrder) == 0 {
		return troupeErrors.Newf(troupeErrors.CodeConfigInvalid, "crew %q has no agents", e.crewCfg.Name).
			WithSuggestion("list agent ids under 'agents' in the crew file or define agents in agents.yaml")
	}
	if e.graph.Len() == 0 {
		return troupeErrors.Newf(troupeErrors.CodeConfigInvalid, "crew %q has no tasks", e.crewCfg.Name).
			WithSuggestion("list task ids under 'tasks' in the crew file")
	}

	for _, t := range e.graph.Tasks() {
		if id := t.AgentID(); id != "" {
			if _, ok := e.agents[id]; !ok {
				return troupeErrors.Newf(troupeErrors.CodeAgentNotFound, "task %s references unknown agent %q", t.ID(), id).
					WithSuggestion("define the agent in agents.yaml and list it in the crew")
			}
		}
	}

	if err := e.graph.Validate(); err != nil {
		return err
	}

	if strings.EqualFold(e.crewCfg.Process.Type, "hierarchical") && e.crewCfg.Process.ManagerModel == "" {
		return troupeErrors.Newf(troupeErrors.CodeManagerRequired, "crew %q uses a hierarchical process without a manager model", e.crewCfg.Name).
			WithSuggestion("set process.manager_model in the crew file")
	}

	return nil
}

// Kickoff validates the crew and runs its tasks. It never returns nil: the
// Result carries success, the error message if any, per-task outputs, the
// joined output, and execution stats even when the run aborts early.
func (e *Executor) Kickoff(ctx context.Context) *Result {
	startedAt := time.Now()
	res := &Result{
		CrewName:    e.crewCfg.Name,
		TaskOutputs: make(map[string]*task.Output),
	}

	// Child span when running under a job or flow, fresh root otherwise.
	ctx, _ = telemetry.BeginTrace(ctx, uuid.New().String())
	log := e.logger.WithTrace(ctx)

	log.Info("Starting crew",
		"crew", e.crewCfg.Name,
		"process", e.crewCfg.Process.Type,
		"tasks", e.graph.Len(),
	)
	e.emit(event.CrewStarted, map[string]interface{}{
		"crew":  e.crewCfg.Name,
		"tasks": e.graph.Len(),
	})

	if err := e.Validate(); err != nil {
		return e.finish(log, res, startedAt, err)
	}

	runCtx := ctx
	if secs := e.crewCfg.Process.CrewTimeoutS; secs > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(secs)*time.Second)
		defer cancel()
	}

	return e.finish(log, res, startedAt, e.run(runCtx, res))
}

// finish stamps stats onto the result and emits the closing crew event.
func (e *Executor) finish(log *telemetry.Logger, res *Result, startedAt time.Time, err error) *Result {
	completedAt := time.Now()
	res.Stats.StartedAt = startedAt
	res.Stats.CompletedAt = completedAt
	res.Stats.DurationMs = completedAt.Sub(startedAt).Milliseconds()
	res.Stats.TasksTotal = e.graph.Len()

	if err != nil {
		res.Success = false
		res.Error = err.Error()
		e.emit(event.CrewFailed, map[string]interface{}{
			"crew":  e.crewCfg.Name,
			"error": err.Error(),
		})
		log.Error("Crew failed", "crew", e.crewCfg.Name, "error", err)
		return res
	}

	res.Success = res.Stats.TasksFailed == 0
	if !res.Success {
		res.Error = fmt.Sprintf("%d of %d tasks failed", res.Stats.TasksFailed, res.Stats.TasksTotal)
	}
	e.emit(event.CrewCompleted, map[string]interface{}{
		"crew":        e.crewCfg.Name,
		"duration_ms": res.Stats.DurationMs,
		"completed":   res.Stats.TasksCompleted,
		"failed":      res.Stats.TasksFailed,
		"skipped":     res.Stats.TasksSkipped,
	})
	log.Info("Crew completed",
		"crew", e.crewCfg.Name,
		"completed", res.Stats.TasksCompleted,
		"failed", res.Stats.TasksFailed,
		"skipped", res.Stats.TasksSkipped,
		"duration", time.Duration(res.Stats.DurationMs)*time.Millisecond,
	)
	return res
}

// Events exposes the crew's event bus so callers can register hooks before
// Kickoff. Hook failures are logged and never fail the run.
func (e *Executor) Events() *event.Bus {
	return e.bus
}

// Metrics exposes the crew's execution counters.
func (e *Executor) Metrics() *telemetry.Metrics {
	return e.metrics
}

// Tasks returns the crew's tasks in declared order.
func (e *Executor) Tasks() []*task.Task {
	return e.graph.Tasks()
}

// Close releases agent executors and crew memory.
func (e *Executor) Close() error {
	var firstErr error
	for _, id := range e.agentOrder {
		if err := e.agents[id].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.crewMemory != nil {
		if err := e.crewMemory.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Executor) emit(t event.EventType, data map[string]interface{}) {
	if err := e.bus.EmitData(t, data); err != nil {
		e.logger.Warn("Event hook failed", "event", string(t), "error", err)
	}
}

// agentFor resolves a task's agent. Unassigned tasks fall back to the first
// agent in the crew's declared order; Validate guarantees one exists.
func (e *Executor) agentFor(t *task.Task) *agent.Executor {
	if id := t.AgentID(); id != "" {
		if exec, ok := e.agents[id]; ok {
			return exec
		}
	}
	return e.agents[e.agentOrder[0]]
}

// joinOutputs concatenates completed task results in declared order, skipping
// tasks that produced no output.
func (e *Executor) joinOutputs(tasks []*task.Task, outputs map[string]*task.Output) string {
	parts := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if out, ok := outputs[t.ID()]; ok {
			parts = append(parts, out.Result)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// writeOutputFile persists a task's result when output_file is set. Write
// failures are noted on the output, not treated as task failure.
func (e *Executor) writeOutputFile(log *telemetry.Logger, t *task.Task, out *task.Output) {
	path := t.OutputFile()
	if path == "" {
		return
	}
	if !filepath.IsAbs(path) && e.cfg != nil && e.cfg.Workspace != "" {
		path = filepath.Join(e.cfg.Workspace, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Warn("Failed to create output directory", "path", path, "error", err)
		out.Notes = append(out.Notes, fmt.Sprintf("failed to write output file %s: %v", path, err))
		return
	}
	if err := os.WriteFile(path, []byte(out.Result), 0644); err != nil {
		log.Warn("Failed to write task output file", "path", path, "error", err)
		out.Notes = append(out.Notes, fmt.Sprintf("failed to write output file %s: %v", path, err))
		return
	}
	log.Info("Wrote task output", "path", path)
}
