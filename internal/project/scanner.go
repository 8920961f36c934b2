// Package project maps a directory tree onto builder input: source units
// under source roots, resources next to them and classpath archives.
package project

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"lukechampine.com/blake3"

	"github.com/mvp-joe/project-lathe/internal/builder"
	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/frontend"
)

// Layout describes where the inputs of a project live. All paths are
// relative to Root.
type Layout struct {
	Root        string
	SourceRoots []string
	Include     []string // source patterns, relative to a source root
	Resources   []string // resource patterns, relative to a source root
	Ignore      []string
	Archives    []string // archive patterns, relative to Root
}

// stamp is what the scanner remembers about a file between scans.
type stamp struct {
	mod   time.Time
	size  int64
	hash  []byte
	types []*classfile.Type // archives only
}

// Scanner produces builder input from a layout. It caches content hashes
// keyed by modification time and size, so repeated scans only hash files
// that were touched. It is safe for concurrent use.
type Scanner struct {
	layout    Layout
	discovery *Discovery
	archives  *Discovery
	log       logrus.FieldLogger

	mu    sync.Mutex
	cache map[string]stamp
}

// NewScanner compiles the layout's patterns.
func NewScanner(layout Layout, log logrus.FieldLogger) (*Scanner, error) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	d, err := NewDiscovery(layout.Include, layout.Resources, layout.Ignore)
	if err != nil {
		return nil, errors.Wrap(err, "compile source patterns")
	}
	a, err := NewDiscovery(layout.Archives, nil, layout.Ignore)
	if err != nil {
		return nil, errors.Wrap(err, "compile archive patterns")
	}
	return &Scanner{
		layout:    layout,
		discovery: d,
		archives:  a,
		log:       log,
		cache:     make(map[string]stamp),
	}, nil
}

// Discovery returns the source discovery rules.
func (s *Scanner) Discovery() *Discovery { return s.discovery }

// Layout returns the scanned layout.
func (s *Scanner) Layout() Layout { return s.layout }

// Scan discovers every input of the project.
func (s *Scanner) Scan(ctx context.Context) (*builder.Input, error) {
	in := &builder.Input{}
	seen := make(map[element.UnitID]string)
	for _, sr := range s.layout.SourceRoots {
		rootDir := filepath.Join(s.layout.Root, filepath.FromSlash(sr))
		sources, resources, err := s.discovery.Discover(rootDir)
		if err != nil {
			return nil, errors.Wrapf(err, "discover %s", sr)
		}
		for _, rel := range sources {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			id := element.UnitID(path.Join(sr, rel))
			if other, dup := seen[id]; dup {
				s.log.WithFields(logrus.Fields{"unit": id, "root": other}).Warn("unit found under two source roots")
				continue
			}
			seen[id] = sr
			abs := filepath.Join(rootDir, filepath.FromSlash(rel))
			st, err := s.stat(abs, false)
			if err != nil {
				return nil, err
			}
			in.Sources = append(in.Sources, builder.Source{
				Unit: frontend.FileUnit(id, PackageOf(rel), abs),
				Root: sr,
				Hash: st.hash,
			})
		}
		for _, rel := range resources {
			in.Resources = append(in.Resources, builder.Resource{
				Path: rel,
				File: filepath.Join(rootDir, filepath.FromSlash(rel)),
			})
		}
	}

	archives, _, err := s.archives.Discover(s.layout.Root)
	if err != nil {
		return nil, errors.Wrap(err, "discover archives")
	}
	for _, rel := range archives {
		st, err := s.stat(filepath.Join(s.layout.Root, filepath.FromSlash(rel)), true)
		if err != nil {
			return nil, err
		}
		in.Archives = append(in.Archives, builder.Archive{ID: element.ArchiveID(rel), Hash: st.hash, Types: st.types})
	}
	s.log.WithFields(logrus.Fields{
		"sources":   len(in.Sources),
		"resources": len(in.Resources),
		"archives":  len(in.Archives),
	}).Debug("project scanned")
	return in, nil
}

// stat returns the cached stamp of a file, rehashing it when its
// modification time or size changed.
func (s *Scanner) stat(abs string, archive bool) (stamp, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return stamp{}, errors.Wrapf(err, "stat %s", abs)
	}
	s.mu.Lock()
	cached, ok := s.cache[abs]
	s.mu.Unlock()
	if ok && cached.mod.Equal(info.ModTime()) && cached.size == info.Size() {
		return cached, nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return stamp{}, errors.Wrapf(err, "read %s", abs)
	}
	sum := blake3.Sum256(data)
	st := stamp{mod: info.ModTime(), size: info.Size(), hash: sum[:]}
	if archive {
		if ok && string(cached.hash) == string(st.hash) {
			st.types = cached.types
		} else if st.types, err = ReadArchive(abs); err != nil {
			return stamp{}, err
		}
	}
	s.mu.Lock()
	s.cache[abs] = st
	s.mu.Unlock()
	return st, nil
}

// Relevant reports whether a change to the absolute path can affect the
// build: a source or resource under a source root, or an archive.
func (s *Scanner) Relevant(abs string) bool {
	rel, ok := s.rel(abs)
	if !ok {
		return false
	}
	if s.archives.IsSource(rel) {
		return true
	}
	for _, sr := range s.layout.SourceRoots {
		prefix := path.Clean(sr) + "/"
		if !strings.HasPrefix(rel, prefix) {
			continue
		}
		inner := strings.TrimPrefix(rel, prefix)
		if s.discovery.IsSource(inner) || s.discovery.IsResource(inner) {
			return true
		}
	}
	return false
}

// SkipDir reports whether the absolute directory is ignored by the layout.
func (s *Scanner) SkipDir(abs string) bool {
	rel, ok := s.rel(abs)
	return !ok || s.archives.ShouldIgnore(rel)
}

func (s *Scanner) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(s.layout.Root, abs)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// PackageOf derives the package of a unit from its path relative to its
// source root.
func PackageOf(rel string) element.PackageName {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return element.PackageName(strings.ReplaceAll(dir, "/", "."))
}
