// Package buildstate defines the product of one build pass: the package map,
// the source-element table, the structural table, problems and the
// dependency graph. A committed State is never mutated; the next pass works
// on a Copy.
package buildstate

import (
	"sort"

	"github.com/google/uuid"

	"github.com/mvp-joe/project-lathe/internal/depgraph"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// SourceKind distinguishes source files from binary inputs.
type SourceKind uint8

const (
	SourceFile SourceKind = iota + 1
	BinaryFile
)

func (k SourceKind) String() string {
	switch k {
	case SourceFile:
		return "source"
	case BinaryFile:
		return "binary"
	}
	return "unknown"
}

// SourceEntry is one element of the source table. Path is the unit ID (or
// archive path for binaries); Hash is the content hash seen at build time.
type SourceEntry struct {
	Path string
	Kind SourceKind
	Hash []byte
}

// State is one build state.
type State struct {
	ID          uuid.UUID
	Fingerprint []byte

	// Packages maps each package to the ordered classpath fragments
	// (source roots or archives) contributing to it.
	Packages map[element.PackageName][]string

	// Sources maps package -> path -> entry. Paths are unit IDs for
	// source files and archive paths for binaries, so files of the same
	// name under different roots never collide.
	Sources map[element.PackageName]map[string]SourceEntry

	// Types is the structural table.
	Types map[element.TypeName]element.Entry

	Problems []diagnostics.Problem
	Graph    *depgraph.Graph
}

// New returns an empty state with a fresh ID.
func New(fingerprint []byte) *State {
	return &State{
		ID:          uuid.New(),
		Fingerprint: append([]byte(nil), fingerprint...),
		Packages:    make(map[element.PackageName][]string),
		Sources:     make(map[element.PackageName]map[string]SourceEntry),
		Types:       make(map[element.TypeName]element.Entry),
		Graph:       depgraph.New(),
	}
}

// Copy returns a deep copy with a fresh ID. Mutating the copy never affects
// the receiver.
func (s *State) Copy() *State {
	c := New(s.Fingerprint)
	for p, frags := range s.Packages {
		c.Packages[p] = append([]string(nil), frags...)
	}
	for p, files := range s.Sources {
		m := make(map[string]SourceEntry, len(files))
		for f, e := range files {
			e.Hash = append([]byte(nil), e.Hash...)
			m[f] = e
		}
		c.Sources[p] = m
	}
	for t, e := range s.Types {
		c.Types[t] = e
	}
	c.Problems = append([]diagnostics.Problem(nil), s.Problems...)
	for i := range c.Problems {
		c.Problems[i].Args = append([]string(nil), c.Problems[i].Args...)
	}
	c.Graph = s.Graph.Copy()
	return c
}

// Entry returns the structural entry of t.
func (s *State) Entry(t element.TypeName) (element.Entry, bool) {
	e, ok := s.Types[t]
	return e, ok
}

// Entries returns every structural entry sorted by type name.
func (s *State) Entries() []element.Entry {
	out := make([]element.Entry, 0, len(s.Types))
	for _, e := range s.Types {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// TypesOf returns the types declared by u, sorted.
func (s *State) TypesOf(u element.UnitID) []element.TypeName {
	var out []element.TypeName
	for t, e := range s.Types {
		if e.Unit == u {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PutSource records a source entry under pkg, replacing any entry for the
// same path in another package.
func (s *State) PutSource(pkg element.PackageName, e SourceEntry) {
	if old, _, ok := s.Source(e.Path); ok && old != pkg {
		s.RemoveSource(e.Path)
	}
	files := s.Sources[pkg]
	if files == nil {
		files = make(map[string]SourceEntry)
		s.Sources[pkg] = files
	}
	files[e.Path] = e
}

// RemoveSource deletes the entry for path, pruning empty packages.
func (s *State) RemoveSource(p string) {
	pkg, e, ok := s.Source(p)
	if !ok {
		return
	}
	files := s.Sources[pkg]
	delete(files, e.Path)
	if len(files) == 0 {
		delete(s.Sources, pkg)
	}
}

// Source finds the entry recorded for path.
func (s *State) Source(p string) (element.PackageName, SourceEntry, bool) {
	for pkg, files := range s.Sources {
		if e, ok := files[p]; ok {
			return pkg, e, true
		}
	}
	return "", SourceEntry{}, false
}

// SourcePaths returns every recorded path of the given kind, sorted.
func (s *State) SourcePaths(kind SourceKind) []string {
	var out []string
	for _, files := range s.Sources {
		for _, e := range files {
			if e.Kind == kind {
				out = append(out, e.Path)
			}
		}
	}
	sort.Strings(out)
	return out
}

// AddFragment appends a classpath fragment to pkg unless already present.
func (s *State) AddFragment(pkg element.PackageName, fragment string) {
	for _, f := range s.Packages[pkg] {
		if f == fragment {
			return
		}
	}
	s.Packages[pkg] = append(s.Packages[pkg], fragment)
}

// SetProblems replaces the problems attached to u.
func (s *State) SetProblems(u element.UnitID, ps []diagnostics.Problem) {
	kept := s.Problems[:0:0]
	for _, p := range s.Problems {
		if p.Source != u {
			kept = append(kept, p)
		}
	}
	for _, p := range ps {
		p.Source = u
		kept = append(kept, p)
	}
	diagnostics.Sort(kept)
	s.Problems = kept
}

// ProblemsFor returns the problems attached to u.
func (s *State) ProblemsFor(u element.UnitID) []diagnostics.Problem {
	var out []diagnostics.Problem
	for _, p := range s.Problems {
		if p.Source == u {
			out = append(out, p)
		}
	}
	return out
}

// Stats summarizes the state.
type Stats struct {
	Packages int
	Sources  int
	Binaries int
	Types    int
	Problems int
	Errors   int
	Nodes    int
}

// Stats computes a summary.
func (s *State) Stats() Stats {
	st := Stats{
		Packages: len(s.Packages),
		Types:    len(s.Types),
		Problems: len(s.Problems),
		Errors:   diagnostics.CountErrors(s.Problems),
		Nodes:    s.Graph.Len(),
	}
	for _, files := range s.Sources {
		for _, e := range files {
			if e.Kind == BinaryFile {
				st.Binaries++
			} else {
				st.Sources++
			}
		}
	}
	return st
}
