package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/stxkxs/troupe/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init [project-name]",
	Short: "Initialize a new troupe project",
	Long: `Initialize a troupe project: troupe.yaml, agents.yaml, tasks.yaml,
and example crew and flow definitions. Existing files are left alone.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := projectDir
	name := ""
	if len(args) > 0 {
		name = args[0]
		dir = filepath.Join(projectDir, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create project directory: %w", err)
		}
	}

	created, err := config.Scaffold(dir, name)
	if err != nil {
		return err
	}

	if len(created) == 0 {
		fmt.Println("Nothing to do: project files already exist.")
		return nil
	}
	fmt.Println("Created:")
	for _, f := range created {
		fmt.Printf("  %s\n", f)
	}
	fmt.Println("\nNext steps:")
	fmt.Println("  troupe run crew research -i topic=\"your topic\"")
	fmt.Println("  troupe serve")
	return nil
}
