package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/project-lathe/internal/binstore"
	"github.com/mvp-joe/project-lathe/internal/builder"
	"github.com/mvp-joe/project-lathe/internal/config"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/frontend/javafront"
	"github.com/mvp-joe/project-lathe/internal/project"
)

// workspace is an opened project: its configuration, store, scanner and
// build engine.
type workspace struct {
	root    string
	cfg     *config.Config
	log     *logrus.Logger
	catalog *diagnostics.Catalog
	store   binstore.Store
	scanner *project.Scanner
	engine  *builder.Engine
}

// newLogger returns the CLI logger. Warnings and errors go to stderr;
// --verbose adds per-pass detail.
func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	log.SetLevel(logrus.WarnLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// resolveRoot returns the absolute project directory.
func resolveRoot(dir string) (string, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}
	return filepath.Abs(dir)
}

// openWorkspace loads the configuration under root and opens the store.
// progress may be nil.
func openWorkspace(root string, log *logrus.Logger, progress builder.Progress) (*workspace, error) {
	cfg, err := config.LoadConfigFromDir(root)
	if err != nil {
		return nil, err
	}

	storeOpts := cfg.StoreOptions(root)
	storeOpts.Log = log
	store, err := binstore.Open(storeOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	scanner, err := project.NewScanner(cfg.Layout(root), log)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("invalid layout: %w", err)
	}

	catalog := diagnostics.NewCatalog()
	engine := builder.NewEngine(cfg.StateDir(root), cfg.State.Retained, builder.Options{
		Compiler:    javafront.New(catalog, log),
		Store:       store,
		Progress:    progress,
		Log:         log,
		Catalog:     catalog,
		Fingerprint: cfg.Fingerprint(javafront.Version),
		ResourceDir: cfg.ResourceDir(root),
	})

	return &workspace{
		root:    root,
		cfg:     cfg,
		log:     log,
		catalog: catalog,
		store:   store,
		scanner: scanner,
		engine:  engine,
	}, nil
}

func (w *workspace) Close() error {
	return w.store.Close()
}
