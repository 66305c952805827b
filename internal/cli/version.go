package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, injected with -ldflags. Defaults identify a local
// source build.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show build version and commit",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("memlayer %s (commit: %s, built: %s)\n", Version, Commit, BuildDate)
	},
}

// VersionString is the short form reported by the health endpoint.
func VersionString() string {
	return fmt.Sprintf("%s (%s)", Version, Commit)
}
