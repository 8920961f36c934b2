package depgraph

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// TEST PLAN: Dependency Graph
//
// 1. Edges are symmetric and idempotent
// 2. Removing an absent edge is a silent no-op
// 3. Namespace nodes reject outgoing dependencies
// 4. Queries on unknown nodes return empty, non-nil slices
// 5. Copy is independent of the original
// 6. RemoveNode drops incident edges and reuses the slot
// 7. Order places dependencies first and shares order within a cycle
// 8. Transitive subtype walk survives a malformed cycle
// 9. Export / Import round trip preserves edges, refs and subtypes
// 10. DOT output names every node

var (
	unitA = UnitKey("src/a/A.java")
	unitB = UnitKey("src/a/B.java")
	typeA = TypeKey("a.A")
	typeB = TypeKey("a.B")
	nsA   = NamespaceKey("a")
)

func TestGraph_SymmetricIdempotentEdges(t *testing.T) {
	t.Parallel()

	g := New()
	require.NoError(t, g.AddDependency(unitB, typeA))
	require.NoError(t, g.AddDependency(unitB, typeA))
	require.NoError(t, g.AddDependency(unitB, nsA))

	assert.Equal(t, []Key{typeA, nsA}, g.DependenciesOf(unitB))
	assert.Equal(t, []Key{unitB}, g.DependentsOf(typeA))
	assert.Equal(t, []Key{unitB}, g.DependentsOf(nsA))

	g.RemoveDependency(unitB, typeA)
	assert.Equal(t, []Key{nsA}, g.DependenciesOf(unitB))
	assert.Empty(t, g.DependentsOf(typeA))

	// Self edges never materialize.
	require.NoError(t, g.AddDependency(unitA, unitA))
	assert.Empty(t, g.DependenciesOf(unitA))
}

func TestGraph_RemoveAbsentEdge(t *testing.T) {
	t.Parallel()

	g := New()
	g.RemoveDependency(unitA, typeB)
	require.NoError(t, g.AddDependency(unitA, typeA))
	g.RemoveDependency(unitA, typeB)
	assert.Equal(t, []Key{typeA}, g.DependenciesOf(unitA))
}

func TestGraph_NamespaceLeaf(t *testing.T) {
	t.Parallel()

	g := New()
	err := g.AddDependency(nsA, typeA)
	assert.ErrorIs(t, err, ErrNamespaceLeaf)
	assert.False(t, g.HasNode(nsA))
}

func TestGraph_UnknownNodes(t *testing.T) {
	t.Parallel()

	g := New()
	deps := g.DependenciesOf(unitA)
	assert.NotNil(t, deps)
	assert.Empty(t, deps)
	assert.NotNil(t, g.DependentsOf(unitA))
	assert.Equal(t, -1, g.Order(unitA))
	assert.False(t, g.Refers(unitA, "A"))
}

func TestGraph_CopyIndependent(t *testing.T) {
	t.Parallel()

	g := New()
	require.NoError(t, g.AddDependency(unitB, typeA))
	g.SetReferences(unitB, []string{"A"})
	g.SetSupertypes("a.B", []element.TypeName{"a.A"})

	c := g.Copy()
	require.NoError(t, c.AddDependency(unitB, typeB))
	c.SetReferences(unitB, []string{"A", "m"})
	c.SetSupertypes("a.B", nil)

	assert.Equal(t, []Key{typeA}, g.DependenciesOf(unitB))
	assert.Equal(t, []string{"A"}, g.References(unitB))
	assert.Equal(t, []element.TypeName{"a.B"}, g.DirectSubtypes("a.A"))

	assert.Equal(t, []Key{typeA, typeB}, c.DependenciesOf(unitB))
	assert.Empty(t, c.DirectSubtypes("a.A"))
}

func TestGraph_RemoveNode(t *testing.T) {
	t.Parallel()

	g := New()
	require.NoError(t, g.AddDependency(unitA, typeB))
	require.NoError(t, g.AddDependency(unitB, typeA))
	require.NoError(t, g.AddDependency(unitA, typeA))

	g.RemoveNode(typeA)
	assert.False(t, g.HasNode(typeA))
	assert.Equal(t, []Key{typeB}, g.DependenciesOf(unitA))
	assert.Empty(t, g.DependenciesOf(unitB))

	// Freed slot is reused without leaking old edges.
	g.EnsureNode(NamespaceKey("b"))
	assert.Empty(t, g.DependentsOf(NamespaceKey("b")))
	assert.Equal(t, 4, g.Len())
}

func TestGraph_Order(t *testing.T) {
	t.Parallel()

	g := New()
	// unitA -> typeA, unitB -> typeB, and the two units depend on each other.
	require.NoError(t, g.AddDependency(unitA, typeA))
	require.NoError(t, g.AddDependency(unitB, typeB))
	require.NoError(t, g.AddDependency(unitA, unitB))
	require.NoError(t, g.AddDependency(unitB, unitA))

	assert.Less(t, g.Order(typeA), g.Order(unitA))
	assert.Less(t, g.Order(typeB), g.Order(unitB))
	assert.Equal(t, g.Order(unitA), g.Order(unitB))

	// Mutation invalidates the cached order.
	g.RemoveDependency(unitB, unitA)
	assert.Less(t, g.Order(unitB), g.Order(unitA))
}

func TestGraph_TransitiveSubtypes(t *testing.T) {
	t.Parallel()

	g := New()
	g.SetSupertypes("a.B", []element.TypeName{"a.A"})
	g.SetSupertypes("a.C", []element.TypeName{"a.B", "a.I"})
	g.SetSupertypes("a.D", []element.TypeName{"a.C"})

	assert.Equal(t, []element.TypeName{"a.B", "a.C", "a.D"}, g.TransitiveSubtypes("a.A"))
	assert.Equal(t, []element.TypeName{"a.C", "a.D"}, g.TransitiveSubtypes("a.I"))
	assert.Equal(t, []element.TypeName{"a.B"}, g.DirectSubtypes("a.A"))

	// Malformed hierarchy: A extends D closes a cycle.
	g.SetSupertypes("a.A", []element.TypeName{"a.D"})
	assert.Equal(t, []element.TypeName{"a.B", "a.C", "a.D"}, g.TransitiveSubtypes("a.A"))

	// Replacing supertypes drops stale links.
	g.SetSupertypes("a.C", []element.TypeName{"a.I"})
	assert.Equal(t, []element.TypeName{"a.B"}, g.TransitiveSubtypes("a.A"))
}

func TestGraph_ExportImport(t *testing.T) {
	t.Parallel()

	g := New()
	require.NoError(t, g.AddDependency(unitB, typeA))
	require.NoError(t, g.AddDependency(unitB, nsA))
	require.NoError(t, g.AddDependency(typeB, unitB))
	g.SetDeclaredTypes(unitB, []element.TypeName{"a.B"})
	g.SetReferences(unitB, []string{"A", "run"})
	g.SetSupertypes("a.B", []element.TypeName{"a.A"})
	g.EnsureNode(ArchiveKey("lib/x.jar"))

	got, err := Import(g.Export())
	require.NoError(t, err)

	assert.Equal(t, g.Len(), got.Len())
	for _, k := range []Key{unitB, typeA, typeB, nsA} {
		assert.ElementsMatch(t, g.DependentsOf(k), got.DependentsOf(k), k.String())
		assert.Equal(t, g.DependenciesOf(k), got.DependenciesOf(k), k.String())
	}
	assert.Equal(t, []element.TypeName{"a.B"}, got.DeclaredTypes(unitB))
	assert.True(t, got.Refers(unitB, "run"))
	assert.Equal(t, []element.TypeName{"a.B"}, got.DirectSubtypes("a.A"))
	assert.True(t, got.HasNode(ArchiveKey("lib/x.jar")))
}

func TestImport_BadIndex(t *testing.T) {
	t.Parallel()

	_, err := Import(&Export{Nodes: []ExportNode{{Key: unitA, Dependencies: []int{3}}}})
	assert.Error(t, err)

	_, err = Import(&Export{Nodes: []ExportNode{{Key: unitA}, {Key: unitA}}})
	assert.Error(t, err)
}

func TestGraph_WriteDOT(t *testing.T) {
	t.Parallel()

	g := New()
	require.NoError(t, g.AddDependency(unitB, typeA))
	require.NoError(t, g.AddDependency(unitB, nsA))

	var buf bytes.Buffer
	require.NoError(t, g.WriteDOT(&buf))
	out := buf.String()
	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, unitB.String())
	assert.Contains(t, out, typeA.String())
	assert.Contains(t, out, "folder")
}
