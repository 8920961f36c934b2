package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-lathe/internal/frontend/javafront"
	"github.com/mvp-joe/project-lathe/internal/snapshot"
)

var (
	// Version information - typically set via ldflags at build time
	Version   = "dev"
	GitCommit = "none"
	BuildDate = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of Lathe",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Lathe %s\n", Version)
		fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
		fmt.Fprintf(out, "Build date: %s\n", BuildDate)
		fmt.Fprintf(out, "Compiler:   %s\n", javafront.Version)
		fmt.Fprintf(out, "Snapshot:   v%d\n", snapshot.CurrentVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
