package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var cleanQuietFlag bool

// cleanCmd represents the clean command
var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove build output and snapshots to force a full build",
	Long: `Clean removes every compiled artifact from the store and every committed
snapshot. The next 'lathe build' runs a full build.

The configuration file (.lathe/config.yml) and copied resources are preserved.

Use cases:
  - Corrupted store or snapshot data
  - Debugging incremental build issues

Examples:
  lathe clean
  lathe clean --quiet
`,
	RunE: runClean,
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVarP(&cleanQuietFlag, "quiet", "q", false, "Suppress output messages")
}

func runClean(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(projectDir)
	if err != nil {
		return err
	}
	return executeClean(root, cleanQuietFlag, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func executeClean(root string, quiet bool, out, errOut io.Writer) error {
	ws, err := openWorkspace(root, newLogger(errOut, verbose), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.engine.Clean(); err != nil {
		return fmt.Errorf("failed to clean: %w", err)
	}
	if !quiet {
		fmt.Fprintln(out, "✓ Removed build output and snapshots")
	}
	return nil
}
