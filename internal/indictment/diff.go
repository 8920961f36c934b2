package indictment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// Diff compares two versions of the same type member by member. Methods are
// matched by name and arity, fields by name. A nil old or new yields no
// indictments: added and removed types are handled by their build-type
// record.
func Diff(old, new *classfile.Type) []Indictment {
	if old == nil || new == nil {
		return nil
	}
	owner := new.Name
	var out []Indictment

	if hierarchyChanged(old, new) {
		out = append(out, Hierarchy(owner))
	}

	oldMethods := groupMethods(old)
	newMethods := groupMethods(new)
	for _, key := range unionKeys(oldMethods, newMethods) {
		before, after := oldMethods[key], newMethods[key]
		if before.sig == after.sig {
			continue
		}
		name, arity := after.name, after.arity
		if after.sig == "" {
			name, arity = before.name, before.arity
		}
		out = append(out, Method(owner, name, arity))
		if new.IsAbstract() && gainsAbstract(before, after) {
			out = append(out, AbstractMethod(owner, name, arity))
		}
	}

	oldFields := groupFields(old)
	newFields := groupFields(new)
	for _, name := range unionKeys(oldFields, newFields) {
		if oldFields[name] != newFields[name] {
			out = append(out, Field(owner, name))
		}
	}

	sortIndictments(out)
	return out
}

// HierarchyChanged reports a change to the supertype list or to the
// class-level kind and modifiers.
func HierarchyChanged(old, new *classfile.Type) bool {
	if old == nil || new == nil {
		return true
	}
	return hierarchyChanged(old, new)
}

func hierarchyChanged(old, new *classfile.Type) bool {
	if old.Kind != new.Kind || old.Modifiers != new.Modifiers || old.Super != new.Super {
		return true
	}
	return !sameTypeSet(old.Interfaces, new.Interfaces)
}

func sameTypeSet(a, b []element.TypeName) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[element.TypeName]int, len(a))
	for _, t := range a {
		seen[t]++
	}
	for _, t := range b {
		if seen[t] == 0 {
			return false
		}
		seen[t]--
	}
	return true
}

type methodGroup struct {
	name     string
	arity    int
	sig      string          // every overload's signature and modifiers, sorted
	abstract map[string]bool // parameter lists of the abstract overloads
}

// gainsAbstract reports an abstract overload in after that before lacks.
func gainsAbstract(before, after methodGroup) bool {
	for params := range after.abstract {
		if !before.abstract[params] {
			return true
		}
	}
	return false
}

func groupMethods(t *classfile.Type) map[string]methodGroup {
	sigs := make(map[string][]string)
	out := make(map[string]methodGroup)
	for _, m := range t.Methods {
		k := m.Key()
		g := out[k]
		g.name, g.arity = m.Name, m.Arity()
		if isAbstractIn(t, m) {
			if g.abstract == nil {
				g.abstract = make(map[string]bool)
			}
			g.abstract[paramList(m)] = true
		}
		out[k] = g
		sigs[k] = append(sigs[k], fmt.Sprintf("%s#%04x", m.Signature(), uint16(m.Modifiers)))
	}
	for k, s := range sigs {
		sort.Strings(s)
		g := out[k]
		g.sig = strings.Join(s, ";")
		out[k] = g
	}
	return out
}

func paramList(m classfile.Method) string {
	return strings.Join(m.Params, ",")
}

func groupFields(t *classfile.Type) map[string]classfile.Field {
	out := make(map[string]classfile.Field, len(t.Fields))
	for _, f := range t.Fields {
		out[f.Name] = f
	}
	return out
}

// isAbstractIn reports whether m has no body in t. Interface methods are
// implicitly abstract unless default or static.
func isAbstractIn(t *classfile.Type, m classfile.Method) bool {
	if m.IsAbstract() {
		return true
	}
	return t.Kind == classfile.KindInterface &&
		!m.Modifiers.Has(classfile.Default) && !m.Modifiers.Has(classfile.Static)
}

func unionKeys[V any](a, b map[string]V) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
