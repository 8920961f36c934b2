package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/text/language"

	"github.com/mvp-joe/project-lathe/internal/binstore"
)

var (
	// ErrInvalidPattern indicates a glob pattern that does not compile
	ErrInvalidPattern = errors.New("invalid pattern")

	// ErrEmptySourceRoots indicates missing source roots
	ErrEmptySourceRoots = errors.New("empty source roots")

	// ErrInvalidSourceRoot indicates a source root outside the project
	ErrInvalidSourceRoot = errors.New("invalid source root")

	// ErrEmptyInclude indicates missing source patterns
	ErrEmptyInclude = errors.New("empty include patterns")

	// ErrEmptyOutputDir indicates a missing output directory
	ErrEmptyOutputDir = errors.New("empty output directory")

	// ErrInvalidStoreKind indicates an unsupported store backend
	ErrInvalidStoreKind = errors.New("invalid store kind")

	// ErrInvalidRetained indicates an invalid retained snapshot count
	ErrInvalidRetained = errors.New("invalid retained count")

	// ErrEmptyStateDir indicates a missing state directory
	ErrEmptyStateDir = errors.New("empty state directory")

	// ErrInvalidLocale indicates a locale that is not a BCP 47 tag
	ErrInvalidLocale = errors.New("invalid locale")
)

// Validate checks that the configuration is valid and complete.
func Validate(cfg *Config) error {
	var errs []error

	if err := validateSource(&cfg.Source); err != nil {
		errs = append(errs, err)
	}

	if err := validatePatterns("classpath.archives", cfg.Classpath.Archives); err != nil {
		errs = append(errs, err)
	}

	if strings.TrimSpace(cfg.Output.Dir) == "" {
		errs = append(errs, fmt.Errorf("%w: output.dir is required", ErrEmptyOutputDir))
	}

	if err := validateStore(&cfg.Store); err != nil {
		errs = append(errs, err)
	}

	if err := validateState(&cfg.State); err != nil {
		errs = append(errs, err)
	}

	if _, err := language.Parse(cfg.Locale); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLocale, cfg.Locale))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validateSource(cfg *SourceConfig) error {
	var errs []error

	if len(cfg.Roots) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one root required", ErrEmptySourceRoots))
	}

	for _, root := range cfg.Roots {
		clean := filepath.ToSlash(filepath.Clean(root))
		if strings.TrimSpace(root) == "" || filepath.IsAbs(root) || clean == ".." || strings.HasPrefix(clean, "../") {
			errs = append(errs, fmt.Errorf("%w: %q must be relative to the project root", ErrInvalidSourceRoot, root))
		}
	}

	if len(cfg.Include) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one include pattern required", ErrEmptyInclude))
	}

	for _, p := range []struct {
		key      string
		patterns []string
	}{
		{"source.include", cfg.Include},
		{"source.resources", cfg.Resources},
		{"source.ignore", cfg.Ignore},
	} {
		if err := validatePatterns(p.key, p.patterns); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

func validatePatterns(key string, patterns []string) error {
	var errs []error
	for _, p := range patterns {
		if _, err := glob.Compile(p, '/'); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s entry %q: %v", ErrInvalidPattern, key, p, err))
		}
	}
	if len(errs) > 0 {
		return joinErrors(errs)
	}
	return nil
}

func validateStore(cfg *StoreConfig) error {
	switch cfg.Kind {
	case binstore.KindDir, binstore.KindSQLite, binstore.KindBolt:
		return nil
	}
	return fmt.Errorf("%w: must be 'dir', 'sqlite' or 'bolt', got '%s'", ErrInvalidStoreKind, cfg.Kind)
}

func validateState(cfg *StateConfig) error {
	var errs []error

	if strings.TrimSpace(cfg.Dir) == "" {
		errs = append(errs, fmt.Errorf("%w: state.dir is required", ErrEmptyStateDir))
	}

	if cfg.Retained < 1 {
		errs = append(errs, fmt.Errorf("%w: retained must be at least 1, got %d", ErrInvalidRetained, cfg.Retained))
	}

	if len(errs) > 0 {
		return joinErrors(errs)
	}

	return nil
}

// joinErrors combines multiple errors into a single error. Every cause
// stays reachable through errors.Is.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		return errs[0]
	}

	return &validationError{errs: errs}
}

type validationError struct {
	errs []error
}

func (e *validationError) Error() string {
	var msgs []string
	for _, err := range e.errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

func (e *validationError) Unwrap() []error { return e.errs }
