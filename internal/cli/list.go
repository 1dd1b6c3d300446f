package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/state"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List project definitions",
}

var listAgentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents defined in agents.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := config.LoadProject(projectDir)
		if err != nil {
			return err
		}
		for _, id := range project.AgentOrder {
			fmt.Printf("%s\t%s\n", id, project.Agents[id].Role)
		}
		return nil
	},
}

var listTasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks defined in tasks.yaml",
	RunE: func(cmd *cobra.Command, args []string) error {
		project, err := config.LoadProject(projectDir)
		if err != nil {
			return err
		}
		for _, id := range project.TaskOrder {
			fmt.Printf("%s\t%s\n", id, project.Tasks[id].Agent)
		}
		return nil
	},
}

var listCrewsCmd = &cobra.Command{
	Use:   "crews",
	Short: "List crews defined under crews/",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printNames(config.ListCrews(projectDir))
	},
}

var listFlowsCmd = &cobra.Command{
	Use:   "flows",
	Short: "List flows defined under flows/",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printNames(config.ListFlows(projectDir))
	},
}

var listRunsLimit int

var listRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded crew and flow runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(projectDir)
		if err != nil {
			return err
		}
		runs, err := state.NewManager(cfg.State.Driver, cfg.State.Path, nil)
		if err != nil {
			return err
		}
		defer runs.Close()

		records, err := runs.List(listRunsLimit)
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%s\t%s\t%s\t%s\t%s\n",
				rec.ID, rec.Kind, rec.Name, rec.Status,
				rec.StartedAt.Format(time.RFC3339))
		}
		return nil
	},
}

func printNames(names []string, err error) error {
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

func init() {
	listRunsCmd.Flags().IntVarP(&listRunsLimit, "limit", "n", 20, "maximum records to show (0 for all)")

	listCmd.AddCommand(listAgentsCmd)
	listCmd.AddCommand(listTasksCmd)
	listCmd.AddCommand(listCrewsCmd)
	listCmd.AddCommand(listFlowsCmd)
	listCmd.AddCommand(listRunsCmd)
}
