package depgraph

import (
	"sort"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// SetSupertypes replaces the direct supertypes of t in the subtype index.
// Passing nil removes t from the index as a subtype.
func (g *Graph) SetSupertypes(t element.TypeName, supers []element.TypeName) {
	for _, old := range g.supers[t] {
		if s := g.subs[old]; s != nil {
			delete(s, t)
			if len(s) == 0 {
				delete(g.subs, old)
			}
		}
	}
	if len(supers) == 0 {
		delete(g.supers, t)
		return
	}
	g.supers[t] = append([]element.TypeName(nil), supers...)
	for _, s := range supers {
		m := g.subs[s]
		if m == nil {
			m = make(map[element.TypeName]struct{})
			g.subs[s] = m
		}
		m[t] = struct{}{}
	}
}

// Supertypes returns the recorded direct supertypes of t.
func (g *Graph) Supertypes(t element.TypeName) []element.TypeName {
	return append([]element.TypeName(nil), g.supers[t]...)
}

// DirectSubtypes returns the types naming t as a direct supertype, sorted.
func (g *Graph) DirectSubtypes(t element.TypeName) []element.TypeName {
	return sortedTypes(g.subs[t])
}

// TransitiveSubtypes walks the subtype relation from t and returns every
// type reached, sorted. The walk tolerates cycles in malformed hierarchies
// and never includes t itself.
func (g *Graph) TransitiveSubtypes(t element.TypeName) []element.TypeName {
	visited := map[element.TypeName]struct{}{t: {}}
	queue := []element.TypeName{t}
	found := make(map[element.TypeName]struct{})
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for sub := range g.subs[cur] {
			if _, seen := visited[sub]; seen {
				continue
			}
			visited[sub] = struct{}{}
			found[sub] = struct{}{}
			queue = append(queue, sub)
		}
	}
	return sortedTypes(found)
}

func sortedTypes(m map[element.TypeName]struct{}) []element.TypeName {
	out := make([]element.TypeName, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
