// Package config loads project configuration for lathe.
//
// Configuration is resolved in this order (highest priority first):
//  1. Environment variables (LATHE_*, nested keys joined with underscores)
//  2. Project config (.lathe/config.yml)
//  3. Built-in defaults
package config

import (
	"path/filepath"
	"sort"
	"strings"

	"lukechampine.com/blake3"

	"github.com/mvp-joe/project-lathe/internal/binstore"
	"github.com/mvp-joe/project-lathe/internal/project"
)

// Dir is the per-project tool directory holding config and state.
const Dir = ".lathe"

// Config represents the complete lathe configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Classpath ClasspathConfig `yaml:"classpath" mapstructure:"classpath"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	State     StateConfig     `yaml:"state" mapstructure:"state"`
	Locale    string          `yaml:"locale" mapstructure:"locale"`
}

// SourceConfig defines where compilation units and resources live.
type SourceConfig struct {
	Roots     []string `yaml:"roots" mapstructure:"roots"`
	Include   []string `yaml:"include" mapstructure:"include"`
	Resources []string `yaml:"resources" mapstructure:"resources"`
	Ignore    []string `yaml:"ignore" mapstructure:"ignore"`
}

// ClasspathConfig lists archive patterns, relative to the project root.
type ClasspathConfig struct {
	Archives []string `yaml:"archives" mapstructure:"archives"`
}

// OutputConfig defines where build output goes.
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Compress bool   `yaml:"compress" mapstructure:"compress"`
}

// StoreConfig selects the binary store backend.
type StoreConfig struct {
	Kind             string `yaml:"kind" mapstructure:"kind"` // dir, sqlite or bolt
	Path             string `yaml:"path" mapstructure:"path"` // empty means inside output.dir
	ContentAddressed bool   `yaml:"content_addressed" mapstructure:"content_addressed"`
}

// StateConfig defines where snapshots are kept and how many are retained.
type StateConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Retained int    `yaml:"retained" mapstructure:"retained"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Roots:     []string{"src"},
			Include:   []string{"**/*.java"},
			Resources: []string{"**/*.properties", "**/*.xml", "**/*.txt"},
			Ignore:    []string{"**/.git/**", "**/.idea/**"},
		},
		Classpath: ClasspathConfig{
			Archives: []string{"lib/**/*.jar"},
		},
		Output: OutputConfig{
			Dir:      "out",
			Compress: false,
		},
		Store: StoreConfig{
			Kind:             binstore.KindDir,
			ContentAddressed: false,
		},
		State: StateConfig{
			Dir:      filepath.Join(Dir, "state"),
			Retained: 3,
		},
		Locale: "en",
	}
}

// Layout maps the configuration onto a project layout rooted at root.
// The output and state directories are always ignored.
func (c *Config) Layout(root string) project.Layout {
	ignore := append([]string(nil), c.Source.Ignore...)
	for _, dir := range []string{c.Output.Dir, c.State.Dir} {
		if dir == "" || filepath.IsAbs(dir) {
			continue
		}
		ignore = append(ignore, filepath.ToSlash(filepath.Clean(dir))+"/**")
	}
	return project.Layout{
		Root:        root,
		SourceRoots: c.Source.Roots,
		Include:     c.Source.Include,
		Resources:   c.Source.Resources,
		Ignore:      ignore,
		Archives:    c.Classpath.Archives,
	}
}

// StoreOptions returns the binary store options for a project at root.
func (c *Config) StoreOptions(root string) binstore.Options {
	p := c.Store.Path
	if p == "" {
		switch c.Store.Kind {
		case binstore.KindSQLite:
			p = filepath.Join(c.Output.Dir, "artifacts.sqlite")
		case binstore.KindBolt:
			p = filepath.Join(c.Output.Dir, "artifacts.db")
		default:
			p = filepath.Join(c.Output.Dir, "classes")
		}
	}
	return binstore.Options{
		Kind:             c.Store.Kind,
		Path:             resolve(root, p),
		Compress:         c.Output.Compress,
		ContentAddressed: c.Store.ContentAddressed,
	}
}

// ResourceDir is where resources are copied.
func (c *Config) ResourceDir(root string) string {
	return resolve(root, filepath.Join(c.Output.Dir, "resources"))
}

// StateDir is the absolute snapshot directory.
func (c *Config) StateDir(root string) string {
	return resolve(root, c.State.Dir)
}

// Fingerprint identifies the build configuration. A snapshot written under
// a different fingerprint cannot seed an incremental build. Only settings
// that change what the compiler sees or what the store holds take part.
func (c *Config) Fingerprint(compilerVersion string) []byte {
	h := blake3.New(32, nil)
	write := func(key string, values ...string) {
		sorted := append([]string(nil), values...)
		sort.Strings(sorted)
		h.Write([]byte(key + "=" + strings.Join(sorted, ",") + "\n"))
	}
	write("compiler", compilerVersion)
	write("source.roots", c.Source.Roots...)
	write("source.include", c.Source.Include...)
	write("classpath.archives", c.Classpath.Archives...)
	write("store.kind", c.Store.Kind)
	write("store.content_addressed", boolString(c.Store.ContentAddressed))
	write("output.compress", boolString(c.Output.Compress))
	return h.Sum(nil)
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}
