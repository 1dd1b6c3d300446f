package crew

import (
	"context"
	"fmt"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/event"
	"github.com/stxkxs/troupe/internal/telemetry"
)

// RunnerFor returns a kickoff function that loads crews from dir by name and
// runs them against the project, passing the caller's variables through as
// string inputs. Flow engines and the API use it to run crews referenced
// only by name. Hooks are registered on every crew the runner starts, so
// observers attached to a flow engine also see the events of its state crews.
func RunnerFor(cfg *config.Config, project *config.Project, dir string, logger *telemetry.Logger, hooks ...event.Hook) func(ctx context.Context, crewName string, vars map[string]interface{}) (*Result, error) {
	return func(ctx context.Context, crewName string, vars map[string]interface{}) (*Result, error) {
		crewCfg, err := config.LoadCrew(dir, crewName)
		if err != nil {
			return nil, err
		}

		inputs := make(map[string]string, len(vars))
		for k, v := range vars {
			inputs[k] = fmt.Sprint(v)
		}

		exec, err := NewExecutor(cfg, project.WithInputs(inputs), crewCfg, logger)
		if err != nil {
			return nil, err
		}
		defer exec.Close()
		for _, h := range hooks {
			exec.Events().Register(h)
		}
		return exec.Kickoff(ctx), nil
	}
}
