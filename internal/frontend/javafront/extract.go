package javafront

import (
	"sort"
	"strings"
	"unicode"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/element"
)

var declKinds = map[string]classfile.Kind{
	"class_declaration":           classfile.KindClass,
	"record_declaration":          classfile.KindClass,
	"interface_declaration":       classfile.KindInterface,
	"annotation_type_declaration": classfile.KindInterface,
	"enum_declaration":            classfile.KindEnum,
}

// declarations extracts every type declared in the unit. Names are
// collected first so supertypes may refer to types declared later in the
// same file.
func (cu *unit) declarations(root *sitter.Node) {
	cu.decls = make(map[element.TypeName]*sitter.Node)
	cu.collect(root, "")
	walkTree(root, func(n *sitter.Node) bool {
		if n.Kind() == "type_parameter" {
			for i := 0; i < int(n.ChildCount()); i++ {
				c := n.Child(uint(i))
				if c.Kind() == "type_identifier" || c.Kind() == "identifier" {
					cu.params[nodeText(c, cu.source)] = true
					break
				}
			}
		}
		return true
	})
	for _, q := range cu.order {
		cu.build(q, cu.decls[q])
	}
}

func (cu *unit) collect(container *sitter.Node, outer element.TypeName) {
	for i := 0; i < int(container.ChildCount()); i++ {
		n := container.Child(uint(i))
		if _, ok := declKinds[n.Kind()]; !ok {
			if n.Kind() == "enum_body_declarations" {
				cu.collect(n, outer)
			}
			continue
		}
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nodeText(nameNode, cu.source)
		q := element.Qualify(cu.pkg, name)
		if outer != "" {
			q = element.TypeName(string(outer) + "$" + name)
		}
		if _, dup := cu.structs[q]; dup {
			cu.problem(diagnostics.IDDuplicateType, diagnostics.SeverityError, nameNode, string(q))
			continue
		}
		if _, seen := cu.local[name]; !seen {
			cu.local[name] = q
		}
		cu.structs[q] = &classfile.Type{Name: q}
		cu.decls[q] = n
		cu.order = append(cu.order, q)
		cu.collect(n.ChildByFieldName("body"), q)
	}
}

func (cu *unit) build(q element.TypeName, n *sitter.Node) {
	t := cu.structs[q]
	t.Kind = declKinds[n.Kind()]
	t.Modifiers = modifiers(n, cu.source)
	if n.Kind() == "record_declaration" {
		t.Modifiers |= classfile.Final
	}

	if sc := n.ChildByFieldName("superclass"); sc != nil {
		t.Super = cu.supertype(q, firstType(sc))
	}
	ifaces := n.ChildByFieldName("interfaces")
	if t.Kind == classfile.KindInterface {
		ifaces = findChildByType(n, "extends_interfaces")
	}
	for _, tn := range children(findChildByType(ifaces, "type_list"), typeKindList...) {
		if s := cu.supertype(q, tn); s != "" {
			t.Interfaces = append(t.Interfaces, s)
		}
	}

	body := n.ChildByFieldName("body")
	if t.Kind == classfile.KindEnum {
		for _, c := range children(body, "enum_constant") {
			t.Fields = append(t.Fields, classfile.Field{
				Name:      nodeText(c.ChildByFieldName("name"), cu.source),
				Type:      q.SimpleName(),
				Modifiers: classfile.Public | classfile.Static | classfile.Final,
			})
		}
		body = findChildByType(body, "enum_body_declarations")
	}
	if n.Kind() == "record_declaration" {
		for _, p := range children(n.ChildByFieldName("parameters"), "formal_parameter") {
			t.Fields = append(t.Fields, classfile.Field{
				Name:      nodeText(p.ChildByFieldName("name"), cu.source),
				Type:      erasure(p.ChildByFieldName("type"), cu.source),
				Modifiers: classfile.Private | classfile.Final,
			})
		}
	}
	cu.members(t, body)
}

var typeKindList = func() []string {
	var out []string
	for k := range typeKinds {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}()

// supertype resolves a supertype reference, reporting it when unresolved.
// Unresolved supertypes are recorded as if declared in the unit's package.
func (cu *unit) supertype(owner element.TypeName, tn *sitter.Node) element.TypeName {
	if tn == nil {
		return ""
	}
	cu.handled(tn)
	written := erasure(tn, cu.source)
	if t, ok := cu.resolveType(written, tn, false); ok {
		return t
	}
	if javaLang[written] {
		return ""
	}
	cu.problem(diagnostics.IDUnresolvedSuper, diagnostics.SeverityError, tn, owner.SimpleName(), written)
	if strings.Contains(written, ".") {
		return element.TypeName(written)
	}
	cu.refs.Package(cu.pkg)
	return element.Qualify(cu.pkg, written)
}

func (cu *unit) members(t *classfile.Type, body *sitter.Node) {
	iface := t.Kind == classfile.KindInterface
	for i := 0; body != nil && i < int(body.ChildCount()); i++ {
		n := body.Child(uint(i))
		switch n.Kind() {
		case "method_declaration":
			m := classfile.Method{
				Name:      nodeText(n.ChildByFieldName("name"), cu.source),
				Params:    cu.paramTypes(n.ChildByFieldName("parameters")),
				Return:    erasure(n.ChildByFieldName("type"), cu.source),
				Modifiers: modifiers(n, cu.source),
			}
			if iface {
				if m.Modifiers.Visibility() == 0 {
					m.Modifiers |= classfile.Public
				}
				if n.ChildByFieldName("body") == nil && !m.Modifiers.Has(classfile.Static) && !m.Modifiers.Has(classfile.Default) {
					m.Modifiers |= classfile.Abstract
				}
			}
			t.Methods = append(t.Methods, m)
		case "constructor_declaration", "compact_constructor_declaration":
			t.Methods = append(t.Methods, classfile.Method{
				Name:      "<init>",
				Params:    cu.paramTypes(n.ChildByFieldName("parameters")),
				Modifiers: modifiers(n, cu.source),
			})
		case "field_declaration", "constant_declaration":
			mods := modifiers(n, cu.source)
			if iface || n.Kind() == "constant_declaration" {
				mods |= classfile.Public | classfile.Static | classfile.Final
			}
			typ := erasure(n.ChildByFieldName("type"), cu.source)
			for _, d := range children(n, "variable_declarator") {
				f := classfile.Field{
					Name:      nodeText(d.ChildByFieldName("name"), cu.source),
					Type:      typ,
					Modifiers: mods,
				}
				if v := d.ChildByFieldName("value"); v != nil && mods.Has(classfile.Static|classfile.Final) {
					f.Constant = strings.Join(strings.Fields(nodeText(v, cu.source)), " ")
				}
				t.Fields = append(t.Fields, f)
			}
		}
	}
}

func (cu *unit) paramTypes(list *sitter.Node) []string {
	var out []string
	for i := 0; list != nil && i < int(list.ChildCount()); i++ {
		p := list.Child(uint(i))
		switch p.Kind() {
		case "formal_parameter":
			out = append(out, erasure(p.ChildByFieldName("type"), cu.source))
		case "spread_parameter":
			out = append(out, erasure(firstType(p), cu.source)+"[]")
		}
	}
	return out
}

// handled marks a type node already resolved during declaration
// extraction so the reference walk does not report it twice.
func (cu *unit) handled(tn *sitter.Node) {
	if cu.seen == nil {
		cu.seen = make(map[uint]bool)
	}
	cu.seen[tn.StartByte()] = true
}

// references resolves every type mentioned in the unit and records the
// member names it uses.
func (cu *unit) references(root *sitter.Node) {
	walkTree(root, func(n *sitter.Node) bool {
		switch n.Kind() {
		case "package_declaration", "import_declaration", "ERROR":
			return false
		case "type_identifier", "scoped_type_identifier":
			if !cu.seen[n.StartByte()] {
				cu.resolveType(erasure(n, cu.source), n, true)
			}
			return false
		case "method_invocation":
			cu.refs.Name(nodeText(n.ChildByFieldName("name"), cu.source))
			cu.maybeType(n.ChildByFieldName("object"))
		case "field_access":
			cu.refs.Name(nodeText(n.ChildByFieldName("field"), cu.source))
			cu.maybeType(n.ChildByFieldName("object"))
		case "method_reference":
			if first := n.Child(0); first != nil && first.Kind() == "identifier" {
				cu.maybeType(first)
			}
			if last := n.Child(n.ChildCount() - 1); last != nil && last.Kind() == "identifier" {
				cu.refs.Name(nodeText(last, cu.source))
			}
		}
		return true
	})
}

// maybeType treats a capitalized identifier in receiver position as a type
// name when it resolves to one.
func (cu *unit) maybeType(n *sitter.Node) {
	if n == nil || n.Kind() != "identifier" {
		return
	}
	name := nodeText(n, cu.source)
	if name == "" || !unicode.IsUpper(rune(name[0])) {
		return
	}
	cu.resolveType(name, n, false)
}

// checkAbstracts reports concrete types that leave inherited abstract
// methods unimplemented.
func (cu *unit) checkAbstracts() {
	for _, q := range cu.order {
		t := cu.structs[q]
		if t.IsAbstract() {
			continue
		}
		required := make(map[string]string)
		implemented := make(map[string]bool)
		for _, m := range t.Methods {
			if !m.IsAbstract() {
				implemented[overload(m)] = true
			}
		}
		visited := map[element.TypeName]bool{q: true}
		queue := t.Supertypes()
		for len(queue) > 0 {
			s := queue[0]
			queue = queue[1:]
			if visited[s] {
				continue
			}
			visited[s] = true
			st := cu.lookup(s)
			if st == nil {
				continue
			}
			for _, m := range st.Methods {
				abstract := m.IsAbstract() || (st.Kind == classfile.KindInterface &&
					!m.Modifiers.Has(classfile.Default) && !m.Modifiers.Has(classfile.Static))
				switch {
				case !abstract:
					implemented[overload(m)] = true
				case required[overload(m)] == "":
					required[overload(m)] = m.Signature()
				}
			}
			queue = append(queue, st.Supertypes()...)
		}

		var missing []string
		for k, sig := range required {
			if !implemented[k] {
				missing = append(missing, sig)
			}
		}
		sort.Strings(missing)
		at := cu.decls[q].ChildByFieldName("name")
		for _, sig := range missing {
			cu.problem(diagnostics.IDMissingAbstract, diagnostics.SeverityError, at, q.SimpleName(), sig)
		}
	}
}

// overload identifies a method by name and erased parameter types.
func overload(m classfile.Method) string {
	return m.Name + "(" + strings.Join(m.Params, ",") + ")"
}

func (cu *unit) lookup(t element.TypeName) *classfile.Type {
	if s, ok := cu.structs[t]; ok {
		return s
	}
	if s, ok := cu.env.Structure(t); ok {
		return s
	}
	return nil
}
