package cli

import (
	"fmt"
	goruntime "runtime"

	"github.com/spf13/cobra"
)

// Set at build time via ldflags, e.g.
// -ldflags "-X github.com/stxkxs/troupe/internal/cli.Version=v0.3.0".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionString())
	},
}

// versionString renders the full build identity, one field per line.
func versionString() string {
	return fmt.Sprintf("troupe %s\n  commit:  %s\n  built:   %s\n  go:      %s\n  os/arch: %s/%s",
		Version, GitCommit, BuildTime, goruntime.Version(), goruntime.GOOS, goruntime.GOARCH)
}
