package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stxkxs/troupe/internal/config"
	"github.com/stxkxs/troupe/internal/tool"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and test the tools agents can call",
	Long: `Inspect the tool registry agents resolve against: built-in tools plus
any declared under tools: in troupe.yaml. "test" checks a tool works in
this environment; "run" invokes one directly for debugging.`,
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List built-in and configured tools",
	RunE:  runToolsList,
}

var toolsTestCmd = &cobra.Command{
	Use:   "test <name>",
	Short: "Check that a tool is usable in this environment",
	Args:  cobra.ExactArgs(1),
	RunE:  runToolsTest,
}

var toolsRunCmd = &cobra.Command{
	Use:   "run <name> [json-args]",
	Short: "Invoke a tool directly with JSON arguments",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runToolsRun,
}

func init() {
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsTestCmd)
	toolsCmd.AddCommand(toolsRunCmd)
}

// loadTools registers the project's declared tools so the commands below see
// the same registry agents do.
func loadTools() error {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return err
	}
	return registerTools(cfg)
}

func runToolsList(cmd *cobra.Command, args []string) error {
	if err := loadTools(); err != nil {
		return err
	}

	fmt.Println("Built-in tools:")
	for _, info := range tool.ListBuiltins() {
		fmt.Printf("  %s\t%s\n", info.Name, info.Description)
	}

	header := false
	for _, t := range tool.List() {
		if tool.IsBuiltin(t.Name()) {
			continue
		}
		if !header {
			fmt.Println("\nConfigured tools:")
			header = true
		}
		fmt.Printf("  %s\t%s\n", t.Name(), t.Description())
	}
	return nil
}

func runToolsTest(cmd *cobra.Command, args []string) error {
	if err := loadTools(); err != nil {
		return err
	}

	t, err := tool.Get(args[0])
	if err != nil {
		return err
	}
	result, err := t.Test(cmd.Context())
	if err != nil {
		return fmt.Errorf("tool %s failed: %w", args[0], err)
	}
	fmt.Println(result)
	return nil
}

func runToolsRun(cmd *cobra.Command, args []string) error {
	if err := loadTools(); err != nil {
		return err
	}

	argsJSON := "{}"
	if len(args) == 2 {
		argsJSON = args[1]
	}
	out, err := tool.ExecuteTool(cmd.Context(), args[0], argsJSON)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}
