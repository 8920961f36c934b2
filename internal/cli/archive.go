package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/project"
)

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive <file.jar>",
	Short: "Package the compiled types of the last build into an archive",
	Long: `Archive writes every type compiled by the last committed build into a
zip archive that other projects can list under classpath.archives.

Example:
  lathe archive dist/geo.jar
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot(projectDir)
		if err != nil {
			return err
		}
		dest := args[0]
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(root, dest)
		}
		return executeArchive(root, dest, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
}

func executeArchive(root, dest string, out, errOut io.Writer) error {
	ws, err := openWorkspace(root, newLogger(errOut, verbose), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	s, _, err := currentState(ws)
	if err != nil {
		return err
	}

	entries := s.Entries()
	types := make([]*classfile.Type, 0, len(entries))
	for _, e := range entries {
		data, err := ws.store.Get(e)
		if err != nil {
			return fmt.Errorf("failed to read artifact of %s: %w", e.Type, err)
		}
		t, err := classfile.Decode(data)
		if err != nil {
			return fmt.Errorf("failed to decode artifact of %s: %w", e.Type, err)
		}
		types = append(types, t)
	}
	if err := project.WriteArchive(dest, types); err != nil {
		return err
	}
	fmt.Fprintf(out, "✓ Wrote %s types to %s\n", formatNumber(len(types)), dest)
	return nil
}
