// Package indictment classifies structural deltas between two versions of a
// type and resolves them to the compilation units that must recompile.
package indictment

import (
	"fmt"
	"sort"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// Kind is the category of a structural change.
type Kind uint8

const (
	KindType Kind = iota + 1
	KindMethod
	KindField
	KindAbstractMethod
	KindHierarchy
)

func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	case KindAbstractMethod:
		return "abstract-method"
	case KindHierarchy:
		return "hierarchy"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Indictment records one structural change. Key is the simple name of the
// type (Type, Hierarchy) or the member name (Method, Field, AbstractMethod)
// as it appears in the names recorded by dependent units. Arity is only
// meaningful for method kinds.
type Indictment struct {
	Kind  Kind
	Key   string
	Owner element.TypeName
	Arity int
}

func (i Indictment) String() string {
	switch i.Kind {
	case KindMethod, KindAbstractMethod:
		return fmt.Sprintf("%s %s.%s/%d", i.Kind, i.Owner, i.Key, i.Arity)
	}
	return fmt.Sprintf("%s %s:%s", i.Kind, i.Owner, i.Key)
}

// identity is what two indictments of one owner are compared by.
type identity struct {
	kind  Kind
	key   string
	arity int
}

func (i Indictment) identity() identity {
	id := identity{kind: i.Kind, key: i.Key}
	if i.Kind == KindMethod || i.Kind == KindAbstractMethod {
		id.arity = i.Arity
	}
	return id
}

// Equal reports whether two indictments are interchangeable. Arity is only
// compared for method kinds; the owner is not part of equality.
func (i Indictment) Equal(o Indictment) bool {
	return i.identity() == o.identity()
}

// Type returns a type-level indictment for t.
func Type(t element.TypeName) Indictment {
	return Indictment{Kind: KindType, Key: t.SimpleName(), Owner: t}
}

// Hierarchy returns a hierarchy indictment for t.
func Hierarchy(t element.TypeName) Indictment {
	return Indictment{Kind: KindHierarchy, Key: t.SimpleName(), Owner: t}
}

// Method returns a method indictment for name/arity on owner.
func Method(owner element.TypeName, name string, arity int) Indictment {
	return Indictment{Kind: KindMethod, Key: name, Owner: owner, Arity: arity}
}

// AbstractMethod returns an abstract-method indictment for name/arity on owner.
func AbstractMethod(owner element.TypeName, name string, arity int) Indictment {
	return Indictment{Kind: KindAbstractMethod, Key: name, Owner: owner, Arity: arity}
}

// Field returns a field indictment for name on owner.
func Field(owner element.TypeName, name string) Indictment {
	return Indictment{Kind: KindField, Key: name, Owner: owner}
}

// Set holds indictments partitioned by owner type. The zero value is not
// usable; use NewSet.
type Set struct {
	byOwner map[element.TypeName]map[identity]Indictment
}

// NewSet returns an empty set containing the given indictments.
func NewSet(inds ...Indictment) *Set {
	s := &Set{byOwner: make(map[element.TypeName]map[identity]Indictment)}
	for _, i := range inds {
		s.Add(i)
	}
	return s
}

// Add inserts i, reporting whether it was new for its owner.
func (s *Set) Add(i Indictment) bool {
	m := s.byOwner[i.Owner]
	if m == nil {
		m = make(map[identity]Indictment)
		s.byOwner[i.Owner] = m
	}
	id := i.identity()
	if _, ok := m[id]; ok {
		return false
	}
	m[id] = i
	return true
}

// Merge adds every indictment of o.
func (s *Set) Merge(o *Set) {
	if o == nil {
		return
	}
	for _, m := range o.byOwner {
		for _, i := range m {
			s.Add(i)
		}
	}
}

// Has reports whether an equal indictment exists for i.Owner.
func (s *Set) Has(i Indictment) bool {
	_, ok := s.byOwner[i.Owner][i.identity()]
	return ok
}

// Len returns the total number of indictments.
func (s *Set) Len() int {
	n := 0
	for _, m := range s.byOwner {
		n += len(m)
	}
	return n
}

// Owners returns the indicted types, sorted.
func (s *Set) Owners() []element.TypeName {
	out := make([]element.TypeName, 0, len(s.byOwner))
	for t := range s.byOwner {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// For returns the indictments of owner in a stable order.
func (s *Set) For(owner element.TypeName) []Indictment {
	m := s.byOwner[owner]
	out := make([]Indictment, 0, len(m))
	for _, i := range m {
		out = append(out, i)
	}
	sortIndictments(out)
	return out
}

// All returns every indictment grouped by owner, owners sorted.
func (s *Set) All() []Indictment {
	var out []Indictment
	for _, t := range s.Owners() {
		out = append(out, s.For(t)...)
	}
	return out
}

func sortIndictments(inds []Indictment) {
	sort.Slice(inds, func(a, b int) bool {
		x, y := inds[a], inds[b]
		if x.Kind != y.Kind {
			return x.Kind < y.Kind
		}
		if x.Key != y.Key {
			return x.Key < y.Key
		}
		return x.Arity < y.Arity
	})
}
