package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// gcCmd represents the gc command
var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Delete artifacts no retained snapshot references",
	Long: `Gc collects the binary store against the retained snapshots: every
artifact that no retained snapshot's structural table references is
deleted. Builds collect automatically; gc is for stores that were left
behind by interrupted builds or reconfigured retention.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(projectDir)
		if err != nil {
			return err
		}
		return executeGC(root, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(gcCmd)
}

func executeGC(root string, out, errOut io.Writer) error {
	ws, err := openWorkspace(root, newLogger(errOut, verbose), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	report, err := ws.engine.Collect()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ %s live artifacts, %s deleted\n", formatNumber(report.Live), formatNumber(len(report.Deleted)))
	if verbose {
		for _, k := range report.Deleted {
			fmt.Fprintf(out, "  - %s\n", k)
		}
	}
	return nil
}
