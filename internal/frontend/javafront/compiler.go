// Package javafront is a structural Java compiler built on tree-sitter. It
// extracts declared types with their members and supertypes, resolves the
// names a unit references and reports syntax and resolution problems. The
// artifacts it produces are classfile structures, not bytecode.
package javafront

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	sitter "github.com/tree-sitter/go-tree-sitter"
	java "github.com/tree-sitter/tree-sitter-java/bindings/go"

	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/frontend"
)

// Version identifies the artifact format this compiler produces. It is
// part of the build identity, so changing it forces a batch build.
const Version = "javafront/1"

// Compiler compiles Java units. It is safe for sequential reuse.
type Compiler struct {
	language *sitter.Language
	catalog  *diagnostics.Catalog
	log      logrus.FieldLogger
}

// New returns a compiler. Problem messages are rendered with catalog in
// English; a nil catalog gets a fresh one.
func New(catalog *diagnostics.Catalog, log logrus.FieldLogger) *Compiler {
	if catalog == nil {
		catalog = diagnostics.NewCatalog()
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Compiler{
		language: sitter.NewLanguage(java.Language()),
		catalog:  catalog,
		log:      log,
	}
}

// Compile parses u and extracts its structure.
func (c *Compiler) Compile(ctx context.Context, u *frontend.Unit, env frontend.Environment) (*frontend.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source, err := u.Contents()
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(c.language); err != nil {
		return nil, fmt.Errorf("set java language: %w", err)
	}
	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s", u.ID)
	}
	defer tree.Close()

	cu := &unit{
		compiler: c,
		id:       u.ID,
		source:   source,
		env:      env,
		refs:     frontend.NewCollector(),
		single:   make(map[string]element.TypeName),
		local:    make(map[string]element.TypeName),
		params:   make(map[string]bool),
		structs:  make(map[element.TypeName]*classfile.Type),
	}
	root := tree.RootNode()
	cu.header(root)
	cu.syntaxErrors(root)
	cu.declarations(root)
	cu.references(root)
	cu.checkAbstracts()

	res := &frontend.Result{Package: cu.pkg, Problems: cu.problems, Refs: cu.refs.References()}
	for _, t := range cu.order {
		d, err := frontend.Declare(cu.structs[t])
		if err != nil {
			return nil, err
		}
		res.Types = append(res.Types, d)
	}
	diagnostics.Sort(res.Problems)
	c.log.WithFields(logrus.Fields{
		"unit":     u.ID,
		"types":    len(res.Types),
		"problems": len(res.Problems),
	}).Debug("compiled")
	return res, nil
}

// unit holds the per-compilation state.
type unit struct {
	compiler *Compiler
	id       element.UnitID
	source   []byte
	env      frontend.Environment

	pkg      element.PackageName
	single   map[string]element.TypeName // single-type imports by simple name
	onDemand []element.PackageName

	local   map[string]element.TypeName // simple name -> type declared here
	params  map[string]bool             // type parameter names
	order   []element.TypeName
	structs map[element.TypeName]*classfile.Type
	decls   map[element.TypeName]*sitter.Node
	seen    map[uint]bool // start offsets of type nodes already resolved

	refs     *frontend.Collector
	problems []diagnostics.Problem
}

func (cu *unit) problem(id int, sev diagnostics.Severity, node *sitter.Node, args ...string) {
	p := diagnostics.Problem{
		ID:       id,
		Severity: sev,
		Args:     args,
		Start:    int(node.StartByte()),
		End:      int(node.EndByte()),
		Line:     line(node),
		Source:   cu.id,
	}
	p.Message = cu.compiler.catalog.Format(p, "en")
	cu.problems = append(cu.problems, p)
}

// header reads the package and import declarations.
func (cu *unit) header(root *sitter.Node) {
	for i := 0; i < int(root.ChildCount()); i++ {
		n := root.Child(uint(i))
		switch n.Kind() {
		case "package_declaration":
			name := findChildByType(n, "scoped_identifier")
			if name == nil {
				name = findChildByType(n, "identifier")
			}
			cu.pkg = element.PackageName(nodeText(name, cu.source))
		case "import_declaration":
			cu.importDecl(n)
		}
	}
	cu.refs.Package(cu.pkg)
}

func (cu *unit) importDecl(n *sitter.Node) {
	if findChildByType(n, "static") != nil {
		// Static member imports name a type followed by a member.
		name := nodeText(findChildByType(n, "scoped_identifier"), cu.source)
		if i := strings.LastIndexByte(name, '.'); i > 0 && findChildByType(n, "asterisk") == nil {
			cu.refs.Name(name[i+1:])
			name = name[:i]
		}
		if t, ok := cu.qualified(strings.Split(name, ".")); ok {
			cu.depend(t)
		}
		return
	}
	name := findChildByType(n, "scoped_identifier")
	if name == nil {
		name = findChildByType(n, "identifier")
	}
	text := nodeText(name, cu.source)
	if findChildByType(n, "asterisk") != nil {
		cu.onDemand = append(cu.onDemand, element.PackageName(text))
		cu.refs.Package(element.PackageName(text))
		return
	}
	parts := strings.Split(text, ".")
	simple := parts[len(parts)-1]
	t, ok := cu.qualified(parts)
	if !ok {
		cu.problem(diagnostics.IDUnresolvedType, diagnostics.SeverityError, name, text)
		t = element.TypeName(text)
		cu.refs.Package(t.Package())
	} else {
		cu.depend(t)
	}
	cu.single[simple] = t
	cu.refs.Name(simple)
}

// syntaxErrors reports error and missing nodes.
func (cu *unit) syntaxErrors(root *sitter.Node) {
	if !root.HasError() {
		return
	}
	walkTree(root, func(n *sitter.Node) bool {
		switch {
		case n.IsMissing():
			cu.problem(diagnostics.IDSyntaxError, diagnostics.SeverityError, n, n.Kind())
			return false
		case n.IsError():
			near := strings.Join(strings.Fields(nodeText(n, cu.source)), " ")
			if len(near) > 24 {
				near = near[:24]
			}
			cu.problem(diagnostics.IDSyntaxError, diagnostics.SeverityError, n, near)
			return false
		}
		return n.HasError()
	})
}

// depend records a resolved type reference.
func (cu *unit) depend(t element.TypeName) {
	if _, own := cu.structs[t]; own {
		return
	}
	cu.refs.Type(t)
	if a, ok := cu.env.ArchiveOf(t); ok {
		cu.refs.Archive(a)
	}
}

// javaLang lists the implicitly imported names that never become
// dependencies.
var javaLang = map[string]bool{
	"Object": true, "String": true, "Integer": true, "Long": true, "Short": true,
	"Byte": true, "Character": true, "Boolean": true, "Double": true, "Float": true,
	"Number": true, "Math": true, "System": true, "Exception": true,
	"RuntimeException": true, "Error": true, "Throwable": true, "Override": true,
	"Deprecated": true, "SuppressWarnings": true, "FunctionalInterface": true,
	"Iterable": true, "Comparable": true, "Runnable": true, "Thread": true,
	"StringBuilder": true, "Enum": true, "Record": true, "Class": true, "Void": true,
	"IllegalArgumentException": true, "IllegalStateException": true,
	"NullPointerException": true, "UnsupportedOperationException": true,
	"AutoCloseable": true, "CharSequence": true, "Cloneable": true,
}

// simple resolves a simple type name. builtin reports a java.lang name.
func (cu *unit) simple(name string) (t element.TypeName, builtin, ok bool) {
	if l, found := cu.local[name]; found {
		return l, false, true
	}
	if s, found := cu.single[name]; found {
		return s, false, true
	}
	if q := element.Qualify(cu.pkg, name); cu.env.TypeExists(q) {
		return q, false, true
	}
	for _, p := range cu.onDemand {
		if q := element.Qualify(p, name); cu.env.TypeExists(q) {
			return q, false, true
		}
	}
	if javaLang[name] {
		return "", true, true
	}
	return "", false, false
}

// qualified resolves a dotted name that is either package-qualified or a
// nested type reached through its outer type.
func (cu *unit) qualified(parts []string) (element.TypeName, bool) {
	if len(parts) == 1 {
		t, builtin, ok := cu.simple(parts[0])
		return t, ok && !builtin
	}
	for i := len(parts) - 1; i >= 1; i-- {
		q := element.TypeName(strings.Join(parts[:i], ".") + "." + strings.Join(parts[i:], "$"))
		if cu.env.TypeExists(q) || cu.structs[q] != nil {
			return q, true
		}
	}
	if outer, builtin, ok := cu.simple(parts[0]); ok && !builtin {
		q := element.TypeName(string(outer) + "$" + strings.Join(parts[1:], "$"))
		if cu.env.TypeExists(q) || cu.structs[q] != nil {
			return q, true
		}
	}
	return "", false
}

// resolveType resolves an erased type name as written in a type position,
// reporting it when unresolved. Array suffixes are ignored.
func (cu *unit) resolveType(written string, at *sitter.Node, report bool) (element.TypeName, bool) {
	written = strings.TrimRight(written, "[]")
	if written == "" || cu.params[written] || isPrimitive(written) {
		return "", false
	}
	parts := strings.Split(written, ".")
	cu.refs.Name(parts[len(parts)-1])
	if len(parts) == 1 {
		if t, builtin, ok := cu.simple(written); ok {
			if !builtin {
				cu.depend(t)
			}
			return t, !builtin
		}
	} else if t, ok := cu.qualified(parts); ok {
		cu.depend(t)
		return t, true
	}
	if report {
		cu.problem(diagnostics.IDUnresolvedType, diagnostics.SeverityError, at, written)
	}
	return "", false
}

func isPrimitive(s string) bool {
	switch s {
	case "int", "long", "short", "byte", "char", "boolean", "float", "double", "void", "var":
		return true
	}
	return false
}
