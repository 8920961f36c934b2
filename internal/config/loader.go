package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
}

// NewLoader creates a new configuration loader for the given root directory.
func NewLoader(rootDir string) Loader {
	return &loader{
		rootDir: rootDir,
	}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (LATHE_*)
// 2. Config file (.lathe/config.yml or .lathe/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(l.rootDir, Dir))

	// LATHE_STORE_KIND overrides store.kind
	v.SetEnvPrefix("LATHE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"source.roots",
		"source.include",
		"source.resources",
		"source.ignore",
		"classpath.archives",
		"output.dir",
		"output.compress",
		"store.kind",
		"store.path",
		"store.content_addressed",
		"state.dir",
		"state.retained",
		"locale",
	} {
		v.BindEnv(key)
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file not found is acceptable - we'll use defaults + env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults configures viper with default values.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("source.roots", defaults.Source.Roots)
	v.SetDefault("source.include", defaults.Source.Include)
	v.SetDefault("source.resources", defaults.Source.Resources)
	v.SetDefault("source.ignore", defaults.Source.Ignore)

	v.SetDefault("classpath.archives", defaults.Classpath.Archives)

	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("output.compress", defaults.Output.Compress)

	v.SetDefault("store.kind", defaults.Store.Kind)
	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("store.content_addressed", defaults.Store.ContentAddressed)

	v.SetDefault("state.dir", defaults.State.Dir)
	v.SetDefault("state.retained", defaults.State.Retained)

	v.SetDefault("locale", defaults.Locale)
}

// LoadConfig is a convenience function that creates a loader and loads config.
// It uses the current working directory as the root.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}

// LoadConfigFromDir loads configuration from a specific directory.
func LoadConfigFromDir(rootDir string) (*Config, error) {
	return NewLoader(rootDir).Load()
}
