package depgraph

import (
	"fmt"
	"sort"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// Export is a compact, index-based description of a graph used for
// persistence. Dependencies refer to positions in Nodes; dependents are
// implied and rebuilt on import.
type Export struct {
	Nodes      []ExportNode
	Supertypes []SupertypeLink
}

// ExportNode is one node of an Export.
type ExportNode struct {
	Key          Key
	Dependencies []int
	Types        []element.TypeName
	References   []string
}

// SupertypeLink records the direct supertypes of one type.
type SupertypeLink struct {
	Type   element.TypeName
	Supers []element.TypeName
}

// Export produces a deterministic description of the graph: nodes sorted
// by key, dependency order preserved.
func (g *Graph) Export() *Export {
	keys := make([]Key, 0, len(g.index))
	for k := range g.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Kind != keys[j].Kind {
			return keys[i].Kind < keys[j].Kind
		}
		return keys[i].Name < keys[j].Name
	})
	pos := make(map[int]int, len(keys))
	for p, k := range keys {
		pos[g.index[k]] = p
	}

	out := &Export{Nodes: make([]ExportNode, len(keys))}
	for p, k := range keys {
		n := g.nodes[g.index[k]]
		deps := make([]int, len(n.deps.items))
		for j, d := range n.deps.items {
			deps[j] = pos[d]
		}
		out.Nodes[p] = ExportNode{
			Key:          k,
			Dependencies: deps,
			Types:        append([]element.TypeName(nil), n.types...),
			References:   g.References(k),
		}
	}

	types := make([]element.TypeName, 0, len(g.supers))
	for t := range g.supers {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	for _, t := range types {
		out.Supertypes = append(out.Supertypes, SupertypeLink{Type: t, Supers: g.Supertypes(t)})
	}
	return out
}

// Import rebuilds a graph from an Export.
func Import(e *Export) (*Graph, error) {
	g := New()
	for _, n := range e.Nodes {
		if g.HasNode(n.Key) {
			return nil, fmt.Errorf("duplicate node %s", n.Key)
		}
		g.ensure(n.Key)
	}
	for _, n := range e.Nodes {
		if len(n.Types) > 0 {
			g.SetDeclaredTypes(n.Key, n.Types)
		}
		if len(n.References) > 0 {
			g.SetReferences(n.Key, n.References)
		}
		for _, d := range n.Dependencies {
			if d < 0 || d >= len(e.Nodes) {
				return nil, fmt.Errorf("node %s: dependency index %d out of range", n.Key, d)
			}
			if err := g.AddDependency(n.Key, e.Nodes[d].Key); err != nil {
				return nil, err
			}
		}
	}
	for _, l := range e.Supertypes {
		g.SetSupertypes(l.Type, l.Supers)
	}
	return g, nil
}
