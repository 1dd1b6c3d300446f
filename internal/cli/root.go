// Package cli implements the troupe command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	troupeErrors "github.com/stxkxs/troupe/internal/errors"
)

var (
	cfgFile    string
	verbose    bool
	projectDir string
)

var rootCmd = &cobra.Command{
	Use:   "troupe",
	Short: "Multi-agent orchestration runtime",
	Long: `troupe - agents, crews, and flows from YAML.

Define agents and tasks in YAML, group them into crews with dependency-aware
sequential execution, compose crews into event-driven flows, and serve the
whole thing behind an async job API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if hint := troupeErrors.Suggestion(err); hint != "" {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Version = Version

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./troupe.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&projectDir, "dir", "C", ".", "project directory")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(projectDir)
		viper.SetConfigName("troupe")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TROUPE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
