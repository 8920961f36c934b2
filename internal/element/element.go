// Package element defines the identity keys shared by every layer of the
// incremental builder: type and package names, compilation unit and archive
// identities, and the structural snapshot entry that pairs a type with the
// unit that declared it.
package element

import (
	"fmt"
	"strings"
)

// TypeName is a fully qualified type name using dots between packages and
// '$' between an outer type and its nested types (e.g. "com.acme.Outer$Inner").
type TypeName string

// PackageName is a dotted package name. The default package is "".
type PackageName string

// UnitID identifies a compilation unit by its slash-separated path relative
// to the project root (e.g. "src/com/acme/Foo.java").
type UnitID string

// ArchiveID identifies a classpath archive by path.
type ArchiveID string

// Package returns the package portion of the type name.
func (t TypeName) Package() PackageName {
	s := string(t)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return PackageName(s[:i])
	}
	return ""
}

// SimpleName returns the innermost simple name ("Inner" for "a.Outer$Inner").
func (t TypeName) SimpleName() string {
	s := string(t)
	if i := strings.LastIndexAny(s, ".$"); i >= 0 {
		return s[i+1:]
	}
	return s
}

// TopLevel returns the top-level type enclosing t (t itself when not nested).
func (t TypeName) TopLevel() TypeName {
	s := string(t)
	if i := strings.IndexByte(s, '$'); i >= 0 {
		return TypeName(s[:i])
	}
	return t
}

// Path returns the slash-separated relative path stem for the type,
// e.g. "com/acme/Outer$Inner".
func (t TypeName) Path() string {
	return strings.ReplaceAll(string(t), ".", "/")
}

// Qualify joins a package and a simple (possibly nested) name.
func Qualify(pkg PackageName, name string) TypeName {
	if pkg == "" {
		return TypeName(name)
	}
	return TypeName(string(pkg) + "." + name)
}

// Entry is a structural snapshot entry: a type, the unit that declared it
// and an optional fingerprint of its compiled artifact (zero when absent).
// Entries are immutable values; one exists per type per build state.
type Entry struct {
	Unit        UnitID
	Type        TypeName
	Fingerprint uint32
}

// HasFingerprint reports whether the entry carries a content fingerprint.
func (e Entry) HasFingerprint() bool {
	return e.Fingerprint != 0
}

func (e Entry) String() string {
	if e.HasFingerprint() {
		return fmt.Sprintf("%s@%08x (%s)", e.Type, e.Fingerprint, e.Unit)
	}
	return fmt.Sprintf("%s (%s)", e.Type, e.Unit)
}
