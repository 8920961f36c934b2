// Package depgraph implements the dependency graph over compilation units,
// types, namespaces and archives that drives incremental invalidation.
//
// Nodes live in an arena addressed by Key; edges are ordered sets of arena
// indices kept symmetric in both directions (A depends on B iff B lists A as
// a dependent). A separate subtype index records the inheritance relation,
// which is walked independently of reference dependencies.
package depgraph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// ErrNamespaceLeaf is returned when a dependency is added from a namespace
// node. Namespaces only ever have dependents.
var ErrNamespaceLeaf = errors.New("namespace nodes cannot have dependencies")

// Graph is the dependency graph. It is not safe for concurrent mutation;
// a build pass owns its graph exclusively.
type Graph struct {
	nodes []*node
	index map[Key]int
	free  []int

	supers map[element.TypeName][]element.TypeName
	subs   map[element.TypeName]map[element.TypeName]struct{}

	order      map[int]int
	orderValid bool
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		index:  make(map[Key]int),
		supers: make(map[element.TypeName][]element.TypeName),
		subs:   make(map[element.TypeName]map[element.TypeName]struct{}),
	}
}

// Copy returns a structural clone. Keys compare equal across the copies but
// no node is shared, so mutating one graph never affects the other.
func (g *Graph) Copy() *Graph {
	c := &Graph{
		nodes:  make([]*node, len(g.nodes)),
		index:  make(map[Key]int, len(g.index)),
		free:   append([]int(nil), g.free...),
		supers: make(map[element.TypeName][]element.TypeName, len(g.supers)),
		subs:   make(map[element.TypeName]map[element.TypeName]struct{}, len(g.subs)),
	}
	for i, n := range g.nodes {
		if n != nil {
			c.nodes[i] = n.clone()
		}
	}
	for k, v := range g.index {
		c.index[k] = v
	}
	for t, s := range g.supers {
		c.supers[t] = append([]element.TypeName(nil), s...)
	}
	for t, s := range g.subs {
		m := make(map[element.TypeName]struct{}, len(s))
		for sub := range s {
			m[sub] = struct{}{}
		}
		c.subs[t] = m
	}
	return c
}

// Len returns the number of live nodes.
func (g *Graph) Len() int {
	return len(g.index)
}

// HasNode reports whether a node exists for k.
func (g *Graph) HasNode(k Key) bool {
	_, ok := g.index[k]
	return ok
}

// EnsureNode creates the node for k if it does not exist.
func (g *Graph) EnsureNode(k Key) {
	g.ensure(k)
}

func (g *Graph) ensure(k Key) int {
	if i, ok := g.index[k]; ok {
		return i
	}
	n := newNode(k)
	var i int
	if len(g.free) > 0 {
		i = g.free[len(g.free)-1]
		g.free = g.free[:len(g.free)-1]
		g.nodes[i] = n
	} else {
		i = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}
	g.index[k] = i
	g.orderValid = false
	return i
}

func (g *Graph) lookup(k Key) (*node, int, bool) {
	i, ok := g.index[k]
	if !ok {
		return nil, 0, false
	}
	return g.nodes[i], i, true
}

// RemoveNode deletes the node for k together with every incident edge.
// The subtype index is left untouched.
func (g *Graph) RemoveNode(k Key) {
	n, i, ok := g.lookup(k)
	if !ok {
		return
	}
	for _, d := range n.deps.items {
		g.nodes[d].dependents.remove(i)
	}
	for _, d := range n.dependents.items {
		g.nodes[d].deps.remove(i)
	}
	g.nodes[i] = nil
	delete(g.index, k)
	g.free = append(g.free, i)
	g.orderValid = false
}

// AddDependency records that from requires to, creating either node when
// missing. Adding an existing edge or a self edge is a no-op.
func (g *Graph) AddDependency(from, to Key) error {
	if from.Kind == KindNamespace {
		return fmt.Errorf("add dependency %s -> %s: %w", from, to, ErrNamespaceLeaf)
	}
	if from == to {
		return nil
	}
	fi := g.ensure(from)
	ti := g.ensure(to)
	if g.nodes[fi].deps.add(ti) {
		g.nodes[ti].dependents.add(fi)
		g.orderValid = false
	}
	return nil
}

// RemoveDependency deletes the edge from -> to; absent edges are ignored.
func (g *Graph) RemoveDependency(from, to Key) {
	fn, fi, ok := g.lookup(from)
	if !ok {
		return
	}
	tn, ti, ok := g.lookup(to)
	if !ok {
		return
	}
	if fn.deps.remove(ti) {
		tn.dependents.remove(fi)
		g.orderValid = false
	}
}

// ClearDependencies removes every outgoing edge of k.
func (g *Graph) ClearDependencies(k Key) {
	n, i, ok := g.lookup(k)
	if !ok {
		return
	}
	for _, d := range n.deps.items {
		g.nodes[d].dependents.remove(i)
	}
	n.deps = newIndexSet()
	g.orderValid = false
}

// DependentsOf returns the nodes that depend on k, in insertion order.
// The result is never nil.
func (g *Graph) DependentsOf(k Key) []Key {
	n, _, ok := g.lookup(k)
	if !ok {
		return []Key{}
	}
	return g.keys(n.dependents.items)
}

// DependenciesOf returns the nodes k depends on, in insertion order.
// The result is never nil.
func (g *Graph) DependenciesOf(k Key) []Key {
	n, _, ok := g.lookup(k)
	if !ok {
		return []Key{}
	}
	return g.keys(n.deps.items)
}

func (g *Graph) keys(idx []int) []Key {
	out := make([]Key, len(idx))
	for j, i := range idx {
		out[j] = g.nodes[i].key
	}
	return out
}

// Nodes returns every key of the given kind sorted by name.
func (g *Graph) Nodes(kind NodeKind) []Key {
	var out []Key
	for k := range g.index {
		if k.Kind == kind {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetDeclaredTypes records the types declared by a unit (or provided by an
// archive). Namespace nodes never declare types.
func (g *Graph) SetDeclaredTypes(k Key, types []element.TypeName) {
	if k.Kind == KindNamespace {
		return
	}
	i := g.ensure(k)
	g.nodes[i].types = append([]element.TypeName(nil), types...)
}

// DeclaredTypes returns the types declared by k.
func (g *Graph) DeclaredTypes(k Key) []element.TypeName {
	n, _, ok := g.lookup(k)
	if !ok {
		return nil
	}
	return append([]element.TypeName(nil), n.types...)
}

// SetReferences replaces the simple names recorded for k. These are the
// names indictment keys are matched against.
func (g *Graph) SetReferences(k Key, names []string) {
	i := g.ensure(k)
	refs := make(map[string]struct{}, len(names))
	for _, name := range names {
		refs[name] = struct{}{}
	}
	g.nodes[i].refs = refs
}

// References returns the recorded simple names of k, sorted.
func (g *Graph) References(k Key) []string {
	n, _, ok := g.lookup(k)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(n.refs))
	for r := range n.refs {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Refers reports whether k recorded a reference to name.
func (g *Graph) Refers(k Key, name string) bool {
	n, _, ok := g.lookup(k)
	if !ok {
		return false
	}
	_, found := n.refs[name]
	return found
}
