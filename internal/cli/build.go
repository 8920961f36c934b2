package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/project-lathe/internal/builder"
	"github.com/mvp-joe/project-lathe/internal/watcher"
)

var (
	buildFullFlag  bool
	buildWatchFlag bool
	buildQuietFlag bool
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Compile the project incrementally",
	Long: `Build scans the project, compares it with the last committed snapshot and
recompiles only the units affected by what changed. Without a usable
snapshot (first build, unreadable snapshot or changed configuration) a full
build runs instead.

A cancelled build (Ctrl+C) leaves the last committed snapshot in place.

Examples:
  # Incremental build
  lathe build

  # Recompile everything
  lathe build --full

  # Rebuild whenever sources, resources or archives change
  lathe build --watch
`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().BoolVar(&buildFullFlag, "full", false, "Ignore previous state and rebuild everything")
	buildCmd.Flags().BoolVarP(&buildWatchFlag, "watch", "w", false, "Keep running and rebuild on changes")
	buildCmd.Flags().BoolVarP(&buildQuietFlag, "quiet", "q", false, "Suppress progress output")
}

func runBuild(cmd *cobra.Command, args []string) error {
	root, err := resolveRoot(projectDir)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return executeBuild(ctx, root, buildOptions{
		full:    buildFullFlag,
		watch:   buildWatchFlag,
		quiet:   buildQuietFlag,
		verbose: verbose,
	}, out, cmd.ErrOrStderr())
}

type buildOptions struct {
	full    bool
	watch   bool
	quiet   bool
	verbose bool
}

// executeBuild runs one build, or a build followed by a watch loop.
func executeBuild(ctx context.Context, root string, opts buildOptions, out, errOut io.Writer) error {
	log := newLogger(errOut, opts.verbose)
	progress := NewCLIProgressReporter(ctx, out, opts.quiet)
	ws, err := openWorkspace(root, log, progress)
	if err != nil {
		return err
	}
	defer ws.Close()

	r := &rebuilder{ws: ws, progress: progress, out: out, quiet: opts.quiet}
	res, err := r.build(ctx, opts.full)
	if err != nil {
		return err
	}
	if !opts.watch {
		if res.Report.Errors > 0 {
			return fmt.Errorf("build finished with %d error(s)", res.Report.Errors)
		}
		return nil
	}

	files, err := watcher.NewFileWatcher(root, ws.scanner, 0, log)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", root, err)
	}
	if !opts.quiet {
		fmt.Fprintln(out, "Watching for changes (Ctrl+C to stop)...")
	}
	err = watcher.NewCoordinator(files, r, log).Start(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// rebuilder scans the project and runs one engine build.
type rebuilder struct {
	ws       *workspace
	progress *CLIProgressReporter
	out      io.Writer
	quiet    bool
}

func (r *rebuilder) build(ctx context.Context, full bool) (*builder.Result, error) {
	in, err := r.ws.scanner.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}
	res, err := r.ws.engine.Build(ctx, in, full)
	if err != nil {
		return nil, err
	}
	r.progress.OnComplete(res)
	if !r.quiet {
		printProblems(r.out, r.ws.catalog, res.State.Problems, r.ws.cfg.Locale)
	}
	return res, nil
}

// Rebuild implements watcher.Rebuilder.
func (r *rebuilder) Rebuild(ctx context.Context, changed []string) error {
	_, err := r.build(ctx, false)
	return err
}
