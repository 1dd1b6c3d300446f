// Package troupe provides a public API for the troupe orchestration runtime.
//
// Example usage:
//
//	import "github.com/stxkxs/troupe/pkg/troupe"
//
//	// Run a crew
//	result, err := troupe.Kickoff("research", map[string]string{
//		"topic": "embedded vector databases",
//	})
//
//	// Run a single agent
//	reply, err := troupe.RunAgent("helper", "Summarize the latest release notes")
//
// All functions load configuration from the current directory: troupe.yaml,
// agents.yaml, tasks.yaml, and the crews/ and flows/ directories.
package troupe

import (
	"context"
	"fmt"

	"github.com/stxkxs/troupe/internal/agent"
	"github.com/stxkxs/troupe/internal/config"
	internalCrew "github.com/stxkxs/troupe/internal/crew"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/flow"
	"github.com/stxkxs/troupe/internal/telemetry"
	"github.com/stxkxs/troupe/internal/tool"
)

// Result is the outcome of a crew run.
type Result = internalCrew.Result

// FlowResult is the outcome of a flow run.
type FlowResult = flow.RunResult

// Kickoff runs a crew to completion.
func Kickoff(crewName string, inputs map[string]string) (*Result, error) {
	return KickoffWithContext(context.Background(), crewName, inputs)
}

// KickoffWithContext runs a crew to completion under a context.
func KickoffWithContext(ctx context.Context, crewName string, inputs map[string]string) (*Result, error) {
	cfg, project, logger, hooks, err := load()
	if err != nil {
		return nil, err
	}

	crewCfg, err := config.LoadCrew(".", crewName)
	if err != nil {
		return nil, fmt.Errorf("failed to load crew: %w", err)
	}
	if len(inputs) > 0 {
		project = project.WithInputs(inputs)
	}

	exec, err := internalCrew.NewExecutor(cfg, project, crewCfg, logger)
	if err != nil {
		return nil, err
	}
	defer exec.Close()
	for _, h := range hooks {
		exec.Events().Register(h)
	}

	res := exec.Kickoff(ctx)
	if !res.Success {
		return res, fmt.Errorf("crew %s failed: %s", crewName, res.Error)
	}
	return res, nil
}

// RunFlow runs a flow to completion.
func RunFlow(flowName string, inputs map[string]string) (*FlowResult, error) {
	return RunFlowWithContext(context.Background(), flowName, inputs)
}

// RunFlowWithContext runs a flow to completion under a context.
func RunFlowWithContext(ctx context.Context, flowName string, inputs map[string]string) (*FlowResult, error) {
	cfg, project, logger, hooks, err := load()
	if err != nil {
		return nil, err
	}

	flowCfg, err := config.LoadFlow(".", flowName)
	if err != nil {
		return nil, fmt.Errorf("failed to load flow: %w", err)
	}
	f, err := flow.New(flowCfg)
	if err != nil {
		return nil, err
	}

	runner := flow.CrewRunnerFunc(internalCrew.RunnerFor(cfg, project, ".", logger, hooks...))
	engine := flow.NewEngine(f, runner, logger)
	for _, h := range hooks {
		engine.Events().Register(h)
	}
	for k, v := range inputs {
		engine.SetVariable(k, v)
	}

	res := engine.Run(ctx)
	if !res.Success {
		return res, fmt.Errorf("flow %s failed: %s", flowName, res.Error)
	}
	return res, nil
}

// RunAgent sends one message to an agent and returns its reply.
func RunAgent(agentID, message string) (string, error) {
	return RunAgentWithContext(context.Background(), agentID, message)
}

// RunAgentWithContext sends one message to an agent under a context.
func RunAgentWithContext(ctx context.Context, agentID, message string) (string, error) {
	cfg, project, logger, hooks, err := load()
	if err != nil {
		return "", err
	}

	agentCfg, ok := project.Agents[agentID]
	if !ok {
		return "", fmt.Errorf("unknown agent %q", agentID)
	}

	exec, err := agent.NewExecutor(cfg, agentCfg, logger)
	if err != nil {
		return "", err
	}
	defer exec.Close()
	if len(hooks) > 0 {
		bus := event.NewBus(logger)
		for _, h := range hooks {
			bus.Register(h)
		}
		exec.SetEvents(bus)
	}

	res, err := exec.Execute(ctx, &agent.ExecutionContext{
		TaskDescription: message,
		ExpectedOutput:  "A direct, helpful reply to the user's message.",
	})
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// ListAgents returns all agent ids defined in agents.yaml.
func ListAgents() ([]string, error) {
	return config.ListAgents(".")
}

// ListTasks returns all task ids defined in tasks.yaml.
func ListTasks() ([]string, error) {
	return config.ListTasks(".")
}

// ListCrews returns all crew names defined under crews/.
func ListCrews() ([]string, error) {
	return config.ListCrews(".")
}

// ListFlows returns all flow names defined under flows/.
func ListFlows() ([]string, error) {
	return config.ListFlows(".")
}

func load() (*config.Config, *config.Project, *telemetry.Logger, []event.Hook, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Workspace != "" {
		tool.RegisterBuiltins(cfg.Workspace)
	}
	if err := tool.RegisterFromConfig(cfg.Tools, cfg.Workspace); err != nil {
		return nil, nil, nil, nil, err
	}
	project, err := config.LoadProject(".")
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load project: %w", err)
	}
	logger := telemetry.NewLoggerWithOptions(cfg.Logging.Level, cfg.Logging.Format)
	hooks, err := event.HooksFromConfig(cfg.Hooks, logger)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to load hooks: %w", err)
	}
	return cfg, project, logger, hooks, nil
}
