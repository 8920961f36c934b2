package indictment

import (
	"sort"

	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/depgraph"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// StructureLookup returns the current structure of a type, if known.
type StructureLookup interface {
	Structure(t element.TypeName) (*classfile.Type, bool)
}

// StructureFunc adapts a function to StructureLookup.
type StructureFunc func(element.TypeName) (*classfile.Type, bool)

func (f StructureFunc) Structure(t element.TypeName) (*classfile.Type, bool) { return f(t) }

// Resolver maps indictments to the units that must recompile. Lookups are
// always scoped to the dependents of the indicted owner (or its package and
// subtypes), never global by name.
type Resolver struct {
	Graph *depgraph.Graph

	// Structures is consulted for abstract-method indictments to skip
	// subtypes that already implement the method. When nil, or when a
	// subtype is unknown, the subtype is indicted.
	Structures StructureLookup
}

// Resolve returns the affected units ordered by graph order then name.
// Units declaring an indicted owner are excluded.
func (r *Resolver) Resolve(s *Set) []element.UnitID {
	hits := make(map[element.UnitID]struct{})
	for _, owner := range s.Owners() {
		exclude := r.declaringUnits(owner)
		add := func(u element.UnitID) {
			if _, skip := exclude[u]; !skip {
				hits[u] = struct{}{}
			}
		}
		for _, ind := range s.For(owner) {
			r.resolveOne(ind, add)
		}
	}
	return r.ordered(hits)
}

func (r *Resolver) resolveOne(ind Indictment, add func(element.UnitID)) {
	g := r.Graph
	owner := depgraph.TypeKey(ind.Owner)

	switch ind.Kind {
	case KindType:
		r.unitDependents(owner, func(u depgraph.Key) { add(element.UnitID(u.Name)) })
		ns := depgraph.NamespaceKey(ind.Owner.Package())
		r.unitDependents(ns, func(u depgraph.Key) {
			if g.Refers(u, ind.Key) {
				add(element.UnitID(u.Name))
			}
		})

	case KindMethod, KindField:
		targets := append([]element.TypeName{ind.Owner}, g.TransitiveSubtypes(ind.Owner)...)
		for _, t := range targets {
			r.unitDependents(depgraph.TypeKey(t), func(u depgraph.Key) {
				if g.Refers(u, ind.Key) {
					add(element.UnitID(u.Name))
				}
			})
		}

	case KindHierarchy:
		r.unitDependents(owner, func(u depgraph.Key) { add(element.UnitID(u.Name)) })
		for _, sub := range g.TransitiveSubtypes(ind.Owner) {
			for u := range r.declaringUnits(sub) {
				add(u)
			}
			r.unitDependents(depgraph.TypeKey(sub), func(u depgraph.Key) { add(element.UnitID(u.Name)) })
		}

	case KindAbstractMethod:
		required := r.abstractOverloads(ind.Owner, ind.Key, ind.Arity)
		for _, sub := range g.TransitiveSubtypes(ind.Owner) {
			if r.implements(sub, ind.Key, ind.Arity, required) {
				continue
			}
			for u := range r.declaringUnits(sub) {
				add(u)
			}
		}
	}
}

// abstractOverloads returns the parameter lists of owner's abstract
// overloads of name/arity, or nil when owner's structure is unknown.
func (r *Resolver) abstractOverloads(owner element.TypeName, name string, arity int) []string {
	if r.Structures == nil {
		return nil
	}
	st, ok := r.Structures.Structure(owner)
	if !ok || st == nil {
		return nil
	}
	var out []string
	for _, m := range st.MethodsNamed(name, arity) {
		if isAbstractIn(st, m) {
			out = append(out, paramList(m))
		}
	}
	return out
}

// implements reports whether t declares a concrete overload of name/arity
// for every required parameter list. With no required lists any concrete
// overload of name/arity counts.
func (r *Resolver) implements(t element.TypeName, name string, arity int, required []string) bool {
	if r.Structures == nil {
		return false
	}
	st, ok := r.Structures.Structure(t)
	if !ok || st == nil {
		return false
	}
	concrete := make(map[string]bool)
	for _, m := range st.MethodsNamed(name, arity) {
		if !isAbstractIn(st, m) {
			concrete[paramList(m)] = true
		}
	}
	if len(required) == 0 {
		return len(concrete) > 0
	}
	for _, params := range required {
		if !concrete[params] {
			return false
		}
	}
	return true
}

func (r *Resolver) unitDependents(k depgraph.Key, fn func(depgraph.Key)) {
	for _, d := range r.Graph.DependentsOf(k) {
		if d.Kind == depgraph.KindUnit {
			fn(d)
		}
	}
}

// declaringUnits returns the units a type node depends on; a type depends
// on the unit that declares it.
func (r *Resolver) declaringUnits(t element.TypeName) map[element.UnitID]struct{} {
	out := make(map[element.UnitID]struct{})
	for _, d := range r.Graph.DependenciesOf(depgraph.TypeKey(t)) {
		if d.Kind == depgraph.KindUnit {
			out[element.UnitID(d.Name)] = struct{}{}
		}
	}
	return out
}

func (r *Resolver) ordered(hits map[element.UnitID]struct{}) []element.UnitID {
	out := make([]element.UnitID, 0, len(hits))
	for u := range hits {
		out = append(out, u)
	}
	order := make(map[element.UnitID]int, len(out))
	for _, u := range out {
		order[u] = r.Graph.Order(depgraph.UnitKey(u))
	}
	sort.Slice(out, func(i, j int) bool {
		if order[out[i]] != order[out[j]] {
			return order[out[i]] < order[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
