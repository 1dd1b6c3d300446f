package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/crew"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/flow"
	"github.com/stxkxs/troupe/internal/queue"
	"github.com/stxkxs/troupe/internal/state"
	"github.com/stxkxs/troupe/internal/telemetry"
)

var (
	runInputs map[string]string
	runJSON   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a crew, flow, or agent",
	Long: `Run a crew, flow, or single agent directly, without the job queue.

Examples:
  troupe run crew research -i topic="embedded databases"
  troupe run flow review -i branch=main
  troupe run agent helper "summarize the latest release notes"`,
}

var runCrewCmd = &cobra.Command{
	Use:   "crew <name>",
	Short: "Run a crew to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runCrewE,
}

var runFlowCmd = &cobra.Command{
	Use:   "flow <name>",
	Short: "Run a flow to completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runFlowE,
}

var runAgentCmd = &cobra.Command{
	Use:   "agent <id> <message>",
	Short: "Send one message to an agent",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runAgentE,
}

func init() {
	runCmd.PersistentFlags().StringToStringVarP(&runInputs, "input", "i", nil, "input values (key=value)")
	runCmd.PersistentFlags().BoolVar(&runJSON, "json", false, "print the full result as JSON")

	runCmd.AddCommand(runCrewCmd)
	runCmd.AddCommand(runFlowCmd)
	runCmd.AddCommand(runAgentCmd)
}

// runContext is the light wiring the run commands need: no broker, no
// vector pipeline, just config and run history.
type runContext struct {
	cfg     *config.Config
	dir     string
	logger  *telemetry.Logger
	project *config.Project
	runs    *state.Manager
	hooks   []event.Hook
}

func newRunContext() (*runContext, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cfg)

	if err := registerTools(cfg); err != nil {
		return nil, err
	}

	hooks, err := event.HooksFromConfig(cfg.Hooks, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load hooks: %w", err)
	}

	project, err := config.LoadProject(projectDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}

	runs, err := state.NewManager(cfg.State.Driver, cfg.State.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize run history: %w", err)
	}

	return &runContext{cfg: cfg, dir: projectDir, logger: logger, project: project, runs: runs, hooks: hooks}, nil
}

func (rc *runContext) Close() {
	rc.runs.Close()
	rc.logger.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCrewE(cmd *cobra.Command, args []string) error {
	name := args[0]

	rc, err := newRunContext()
	if err != nil {
		return err
	}
	defer rc.Close()

	crewCfg, err := config.LoadCrew(rc.dir, name)
	if err != nil {
		return fmt.Errorf("failed to load crew %s: %w", name, err)
	}

	project := rc.project
	if len(runInputs) > 0 {
		project = project.WithInputs(runInputs)
	}

	exec, err := crew.NewExecutor(rc.cfg, project, crewCfg, rc.logger)
	if err != nil {
		return err
	}
	defer exec.Close()
	for _, h := range rc.hooks {
		exec.Events().Register(h)
	}

	ctx, stop := signalContext()
	defer stop()

	rec := rc.runs.Begin(state.KindCrew, name)
	// Root the trace at the history record so logs and /api/runs line up.
	ctx = telemetry.ContextWithTrace(ctx, telemetry.NewTraceContext(rec.ID))
	res := exec.Kickoff(ctx)
	if !res.Success {
		rc.runs.Fail(rec, errors.New(res.Error))
		if runJSON {
			printJSON(res)
		}
		return fmt.Errorf("crew %s failed: %s", name, res.Error)
	}
	rc.runs.Complete(rec, res.Output)

	if runJSON {
		return printJSON(res)
	}
	fmt.Println(res.Output)
	fmt.Printf("\n%d/%d tasks completed in %dms\n",
		res.Stats.TasksCompleted, res.Stats.TasksTotal, res.Stats.DurationMs)
	return nil
}

func runFlowE(cmd *cobra.Command, args []string) error {
	name := args[0]

	rc, err := newRunContext()
	if err != nil {
		return err
	}
	defer rc.Close()

	flowCfg, err := config.LoadFlow(rc.dir, name)
	if err != nil {
		return fmt.Errorf("failed to load flow %s: %w", name, err)
	}
	f, err := flow.New(flowCfg)
	if err != nil {
		return err
	}

	runner := flow.CrewRunnerFunc(crew.RunnerFor(rc.cfg, rc.project, rc.dir, rc.logger, rc.hooks...))
	engine := flow.NewEngine(f, runner, rc.logger)
	for _, h := range rc.hooks {
		engine.Events().Register(h)
	}
	for k, v := range runInputs {
		engine.SetVariable(k, v)
	}

	ctx, stop := signalContext()
	defer stop()

	rec := rc.runs.Begin(state.KindFlow, name)
	ctx = telemetry.ContextWithTrace(ctx, telemetry.NewTraceContext(rec.ID))
	res := engine.Run(ctx)
	if !res.Success {
		rc.runs.Fail(rec, errors.New(res.Error))
		if runJSON {
			printJSON(res)
		}
		return fmt.Errorf("flow %s failed: %s", name, res.Error)
	}
	rc.runs.Complete(rec, res.FinalState)

	if runJSON {
		return printJSON(res)
	}
	fmt.Printf("Flow %s finished in state %s after %d iterations\n", name, res.FinalState, res.Iterations)
	fmt.Printf("  path: %s\n", strings.Join(res.History, " -> "))
	return nil
}

func runAgentE(cmd *cobra.Command, args []string) error {
	agentID := args[0]
	message := strings.Join(args[1:], " ")

	rc, err := newRunContext()
	if err != nil {
		return err
	}
	defer rc.Close()

	ctx, stop := signalContext()
	defer stop()

	handler := queue.NewChatHandler(rc.cfg, rc.project, rc.dir, rc.runs, rc.logger)
	handler.SetHooks(rc.hooks)
	result, err := handler.Run(ctx, queue.ChatJob{
		JobID:   queue.NewJobID(),
		Message: message,
		AgentID: agentID,
	})
	if err != nil {
		return err
	}

	if runJSON {
		return printJSON(result)
	}
	fmt.Println(result["response"])
	return nil
}
