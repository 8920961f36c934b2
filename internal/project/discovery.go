package project

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
)

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

func compileAll(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		out = append(out, compiledPattern{pattern: pattern, glob: g})
	}
	return out, nil
}

// Discovery finds source and resource files with glob patterns and ignore
// rules. Paths are matched relative to the directory being walked.
type Discovery struct {
	sourcePatterns   []compiledPattern
	resourcePatterns []compiledPattern
	ignorePatterns   []compiledPattern
}

// NewDiscovery compiles the given patterns.
func NewDiscovery(sourcePatterns, resourcePatterns, ignorePatterns []string) (*Discovery, error) {
	d := &Discovery{}
	var err error
	if d.sourcePatterns, err = compileAll(sourcePatterns); err != nil {
		return nil, err
	}
	if d.resourcePatterns, err = compileAll(resourcePatterns); err != nil {
		return nil, err
	}
	if d.ignorePatterns, err = compileAll(ignorePatterns); err != nil {
		return nil, err
	}
	return d, nil
}

// Discover walks root and returns the slash-separated relative paths of
// source and resource files, sorted. Ignored directories are not entered.
func (d *Discovery) Discover(root string) (sources, resources []string, err error) {
	sources = []string{}
	resources = []string{}

	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.ShouldIgnore(rel) {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() {
			return nil
		}
		switch {
		case matchesAnyPattern(rel, d.sourcePatterns):
			sources = append(sources, rel)
		case matchesAnyPattern(rel, d.resourcePatterns):
			resources = append(resources, rel)
		}
		return nil
	})
	sort.Strings(sources)
	sort.Strings(resources)
	return sources, resources, err
}

// IsSource reports whether rel matches a source pattern and no ignore
// pattern.
func (d *Discovery) IsSource(rel string) bool {
	return !d.ShouldIgnore(rel) && matchesAnyPattern(rel, d.sourcePatterns)
}

// IsResource reports whether rel is a resource file.
func (d *Discovery) IsResource(rel string) bool {
	return !d.ShouldIgnore(rel) && !matchesAnyPattern(rel, d.sourcePatterns) && matchesAnyPattern(rel, d.resourcePatterns)
}

// ShouldIgnore checks if a path matches any ignore pattern.
func (d *Discovery) ShouldIgnore(rel string) bool {
	// The tool's own directory never holds inputs.
	if strings.HasPrefix(rel, ".lathe/") || rel == ".lathe" {
		return true
	}
	if matchesAnyPattern(rel, d.ignorePatterns) {
		return true
	}
	// "build" matches "build/**"
	return matchesAnyPattern(rel+"/**", d.ignorePatterns)
}

// matchesAnyPattern checks if a path matches any of the given patterns.
func matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// A root-level path also matches patterns with their **/ prefix
	// removed, so "**/*.java" matches "Main.java".
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if !strings.HasPrefix(cp.pattern, "**/") {
				continue
			}
			if g, err := glob.Compile(strings.TrimPrefix(cp.pattern, "**/"), '/'); err == nil && g.Match(path) {
				return true
			}
		}
	}
	return false
}
