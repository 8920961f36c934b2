package depgraph

import (
	"errors"
	"io"
	"sort"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// Order returns the position of k in a linearization where dependencies
// come before their dependents. Nodes on a cycle share one position. It is
// an optimization hint only; -1 is returned for unknown keys.
func (g *Graph) Order(k Key) int {
	i, ok := g.index[k]
	if !ok {
		return -1
	}
	if !g.orderValid {
		g.computeOrder()
	}
	return g.order[i]
}

// computeOrder condenses strongly connected components and sorts the
// resulting DAG topologically with a stable tie-break on arena index.
func (g *Graph) computeOrder() {
	dg := graph.New(graph.IntHash, graph.Directed())
	for _, i := range g.index {
		_ = dg.AddVertex(i)
	}
	for _, i := range g.index {
		for _, d := range g.nodes[i].deps.items {
			_ = dg.AddEdge(d, i)
		}
	}

	sccs, err := graph.StronglyConnectedComponents(dg)
	if err != nil {
		// Only possible for undirected graphs.
		g.fallbackOrder()
		return
	}
	for _, c := range sccs {
		sort.Ints(c)
	}
	sort.Slice(sccs, func(a, b int) bool { return sccs[a][0] < sccs[b][0] })

	comp := make(map[int]int, len(g.index))
	cg := graph.New(graph.IntHash, graph.Directed())
	for ci, c := range sccs {
		_ = cg.AddVertex(ci)
		for _, i := range c {
			comp[i] = ci
		}
	}
	for _, i := range g.index {
		for _, d := range g.nodes[i].deps.items {
			if comp[d] == comp[i] {
				continue
			}
			_ = cg.AddEdge(comp[d], comp[i])
		}
	}

	sorted, err := graph.StableTopologicalSort(cg, func(a, b int) bool { return a < b })
	if err != nil {
		g.fallbackOrder()
		return
	}
	pos := make(map[int]int, len(sorted))
	for p, ci := range sorted {
		pos[ci] = p
	}
	g.order = make(map[int]int, len(g.index))
	for i, ci := range comp {
		g.order[i] = pos[ci]
	}
	g.orderValid = true
}

func (g *Graph) fallbackOrder() {
	g.order = make(map[int]int, len(g.index))
	for _, i := range g.index {
		g.order[i] = i
	}
	g.orderValid = true
}

// WriteDOT renders the graph in Graphviz DOT format.
func (g *Graph) WriteDOT(w io.Writer) error {
	dg := graph.New(graph.StringHash, graph.Directed())
	keys := make([]Key, 0, len(g.index))
	for k := range g.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	for _, k := range keys {
		if err := dg.AddVertex(k.String(), graph.VertexAttribute("shape", shapeOf(k.Kind))); err != nil {
			return err
		}
	}
	for _, k := range keys {
		for _, d := range g.DependenciesOf(k) {
			if err := dg.AddEdge(k.String(), d.String()); err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
				return err
			}
		}
	}
	return draw.DOT(dg, w)
}

func shapeOf(kind NodeKind) string {
	switch kind {
	case KindUnit:
		return "box"
	case KindNamespace:
		return "folder"
	case KindArchive:
		return "cylinder"
	}
	return "ellipse"
}
