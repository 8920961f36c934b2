// Package frontend defines the contract between the incremental builder and
// the compiler that turns one compilation unit into declared types,
// references and problems.
package frontend

import (
	"context"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// Unit is one compilation unit. Its contents are fetched once and cached
// for the lifetime of the unit since compilers ask for them repeatedly.
type Unit struct {
	ID element.UnitID
	// Package is the package the unit is expected to declare, derived from
	// its location under a source root.
	Package element.PackageName

	load     func() ([]byte, error)
	once     sync.Once
	contents []byte
	err      error
}

// NewUnit returns a unit whose contents come from load.
func NewUnit(id element.UnitID, pkg element.PackageName, load func() ([]byte, error)) *Unit {
	return &Unit{ID: id, Package: pkg, load: load}
}

// FileUnit returns a unit backed by the file at fsPath.
func FileUnit(id element.UnitID, pkg element.PackageName, fsPath string) *Unit {
	return NewUnit(id, pkg, func() ([]byte, error) {
		data, err := os.ReadFile(fsPath)
		return data, errors.Wrapf(err, "read %s", id)
	})
}

// SourceUnit returns a unit over in-memory contents.
func SourceUnit(id element.UnitID, pkg element.PackageName, src string) *Unit {
	return NewUnit(id, pkg, func() ([]byte, error) { return []byte(src), nil })
}

// Contents returns the unit's bytes, loading them on first use.
func (u *Unit) Contents() ([]byte, error) {
	u.once.Do(func() {
		u.contents, u.err = u.load()
	})
	return u.contents, u.err
}

// FileName is the base name of the unit.
func (u *Unit) FileName() string {
	return path.Base(string(u.ID))
}

// MainTypeName is the simple name of the type the unit is expected to
// declare: the file name without its extension.
func (u *Unit) MainTypeName() string {
	name := u.FileName()
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		return name[:i]
	}
	return name
}

// ExpectedType is the qualified main type name.
func (u *Unit) ExpectedType() element.TypeName {
	return element.Qualify(u.Package, u.MainTypeName())
}

// Environment answers name-resolution questions for the compiler.
type Environment interface {
	// TypeExists reports whether t is known, from sources or archives.
	TypeExists(t element.TypeName) bool
	// ArchiveOf returns the archive providing t, if t is a binary type.
	ArchiveOf(t element.TypeName) (element.ArchiveID, bool)
	// Structure returns the current structure of t when available.
	Structure(t element.TypeName) (*classfile.Type, bool)
}

// DeclaredType is one type produced by compiling a unit.
type DeclaredType struct {
	Structure *classfile.Type
	Artifact  []byte
}

// Name is the qualified name of the declared type.
func (d DeclaredType) Name() element.TypeName { return d.Structure.Name }

// References lists everything a unit depends on.
type References struct {
	Types    []element.TypeName
	Packages []element.PackageName
	Archives []element.ArchiveID
	// Names are the simple names (types and members) the unit mentions;
	// indictment keys are matched against them.
	Names []string
}

// Result is the output of compiling one unit.
type Result struct {
	Package  element.PackageName
	Types    []DeclaredType
	Refs     References
	Problems []diagnostics.Problem
}

// HasErrors reports whether any problem is an error.
func (r *Result) HasErrors() bool {
	return diagnostics.CountErrors(r.Problems) > 0
}

// Compiler compiles one unit at a time.
type Compiler interface {
	Compile(ctx context.Context, u *Unit, env Environment) (*Result, error)
}

// Declare encodes structure into a DeclaredType.
func Declare(t *classfile.Type) (DeclaredType, error) {
	data, err := classfile.Encode(t)
	if err != nil {
		return DeclaredType{}, err
	}
	return DeclaredType{Structure: t, Artifact: data}, nil
}

// Collector accumulates references without duplicates.
type Collector struct {
	types    map[element.TypeName]struct{}
	packages map[element.PackageName]struct{}
	archives map[element.ArchiveID]struct{}
	names    map[string]struct{}
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{
		types:    make(map[element.TypeName]struct{}),
		packages: make(map[element.PackageName]struct{}),
		archives: make(map[element.ArchiveID]struct{}),
		names:    make(map[string]struct{}),
	}
}

func (c *Collector) Type(t element.TypeName)       { c.types[t] = struct{}{} }
func (c *Collector) Package(p element.PackageName) { c.packages[p] = struct{}{} }
func (c *Collector) Archive(a element.ArchiveID)   { c.archives[a] = struct{}{} }

func (c *Collector) Name(n string) {
	if n != "" {
		c.names[n] = struct{}{}
	}
}

// References returns the collected references, sorted.
func (c *Collector) References() References {
	return References{
		Types:    sortedKeys(c.types),
		Packages: sortedKeys(c.packages),
		Archives: sortedKeys(c.archives),
		Names:    sortedKeys(c.names),
	}
}

func sortedKeys[K ~string](m map[K]struct{}) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
