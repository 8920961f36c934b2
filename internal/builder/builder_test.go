package builder

import (
	"context"
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"lukechampine.com/blake3"

	"github.com/mvp-joe/project-lathe/internal/binstore"
	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/depgraph"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/frontend"
	"github.com/mvp-joe/project-lathe/internal/frontend/javafront"
)

// TEST PLAN: Image Builders
//
// 1. A batch build compiles every unit, reschedules units compiled before
//    their dependencies and leaves exactly one artifact per type
// 2. A no-op incremental build compiles nothing and keeps the structural
//    table identical
// 3. Adding a method to a concrete type recompiles only its unit
// 4. Adding an abstract method recompiles every non-implementing subtype,
//    transitively, and reports the missing implementation; overloads of
//    the same arity count separately
// 5. Removing a unit schedules its dependents and drops its types from the
//    state and the store
// 6. Adding a type recompiles units that referenced it unresolved
// 7. Archive changes and removals recompile the units that loaded types
//    from the archive
// 8. The old state is never mutated
// 9. Cancellation aborts the pass with ErrCancelled and keeps the store
//    intact; obsolete artifacts go only with Discard
// 10. Hierarchy rebuild restores the subtype index from artifacts

type files map[string]string

// input builds the project input for files keyed by unit ID; the package
// is derived from the path below src/.
func input(fs files) *Input {
	ids := make([]string, 0, len(fs))
	for id := range fs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	in := &Input{}
	for _, id := range ids {
		pkg := strings.ReplaceAll(strings.TrimPrefix(path.Dir(id), "src/"), "/", ".")
		sum := blake3.Sum256([]byte(fs[id]))
		in.Sources = append(in.Sources, Source{
			Unit: frontend.SourceUnit(element.UnitID(id), element.PackageName(pkg), fs[id]),
			Root: "src",
			Hash: sum[:],
		})
	}
	return in
}

func (fs files) with(id, src string) files {
	out := make(files, len(fs)+1)
	for k, v := range fs {
		out[k] = v
	}
	out[id] = src
	return out
}

func (fs files) without(id string) files {
	out := make(files, len(fs))
	for k, v := range fs {
		if k != id {
			out[k] = v
		}
	}
	return out
}

func options(t *testing.T) Options {
	t.Helper()
	store, err := binstore.NewDirStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return Options{Compiler: javafront.New(nil, nil), Store: store, Fingerprint: []byte("test")}
}

func batch(t *testing.T, opts Options, in *Input) *buildstate.State {
	t.Helper()
	s, _, err := NewBatchBuilder(opts).Build(context.Background(), in)
	require.NoError(t, err)
	return s
}

func incremental(t *testing.T, opts Options, old *buildstate.State, in *Input) (*buildstate.State, *Report) {
	t.Helper()
	s, r, err := NewIncrementalBuilder(opts).Build(context.Background(), old, in, nil)
	require.NoError(t, err)
	return s, r
}

func problemIDs(s *buildstate.State, u element.UnitID) []int {
	var ids []int
	for _, p := range s.ProblemsFor(u) {
		ids = append(ids, p.ID)
	}
	return ids
}

var hierarchy = files{
	"src/p/Foo.java": "package p;\npublic class Foo {}\n",
	"src/p/Bar.java": "package p;\npublic class Bar extends Foo {}\n",
	"src/p/Baz.java": "package p;\npublic class Baz { Foo f; }\n",
}

func TestBatch_BuildsEverything(t *testing.T) {
	t.Parallel()

	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	opts := options(t)
	opts.Log = log

	// An orphan from an earlier run must not survive the batch build.
	require.NoError(t, opts.Store.Put(element.Entry{Unit: "src/q/Old.java", Type: "q.Old", Fingerprint: 1}, []byte("stale")))

	s, r, err := NewBatchBuilder(opts).Build(context.Background(), input(hierarchy))
	require.NoError(t, err)

	assert.True(t, r.Full)
	assert.Equal(t, 3, r.Added)
	assert.Empty(t, s.Problems)
	assert.Equal(t, []string{"src"}, s.Packages["p"])
	assert.Equal(t, []byte("test"), s.Fingerprint)
	for _, name := range []element.TypeName{"p.Foo", "p.Bar", "p.Baz"} {
		e, ok := s.Entry(name)
		require.True(t, ok, name)
		assert.True(t, e.HasFingerprint())
	}

	storedTypes := func() []element.TypeName {
		keys, err := opts.Store.Keys()
		require.NoError(t, err)
		var stored []element.TypeName
		for _, k := range keys {
			stored = append(stored, k.Type)
		}
		return stored
	}
	// The orphan goes only once the result is discarded against.
	assert.ElementsMatch(t, []element.TypeName{"p.Foo", "p.Bar", "p.Baz", "q.Old"}, storedTypes())
	require.NoError(t, Discard(opts.Store, s, r))
	assert.ElementsMatch(t, []element.TypeName{"p.Foo", "p.Bar", "p.Baz"}, storedTypes())

	// Bar and Baz sort before Foo and depend on it.
	assert.Equal(t, 2, r.Rescheduled)
	var warned int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["action"] == "reschedule" {
			warned++
		}
	}
	assert.Equal(t, 2, warned)

	assert.Equal(t, []element.TypeName{"p.Bar"}, s.Graph.DirectSubtypes("p.Foo"))
	deps := s.Graph.DependentsOf(depgraph.TypeKey("p.Foo"))
	assert.Contains(t, deps, depgraph.UnitKey("src/p/Bar.java"))
	assert.Contains(t, deps, depgraph.UnitKey("src/p/Baz.java"))
}

func TestIncremental_NoOp(t *testing.T) {
	t.Parallel()

	opts := options(t)
	in := input(hierarchy)
	s := batch(t, opts, in)

	next, r := incremental(t, opts, s, in)
	assert.Empty(t, r.Compiled)
	assert.Equal(t, s.Types, next.Types)
	assert.ElementsMatch(t, s.Problems, next.Problems)
	assert.NotEqual(t, s.ID, next.ID)

	again, r := incremental(t, opts, next, in)
	assert.Empty(t, r.Compiled)
	assert.Equal(t, s.Types, again.Types)
}

func TestIncremental_ConcreteMethodAdded(t *testing.T) {
	t.Parallel()

	opts := options(t)
	s := batch(t, opts, input(hierarchy))

	changed := hierarchy.with("src/p/Foo.java", "package p;\npublic class Foo { void m() {} }\n")
	next, r := incremental(t, opts, s, input(changed))

	assert.Equal(t, []element.UnitID{"src/p/Foo.java"}, r.Compiled)
	assert.Equal(t, 1, r.Modified)
	assert.Equal(t, s.Types["p.Bar"], next.Types["p.Bar"])
	assert.NotEqual(t, s.Types["p.Foo"].Fingerprint, next.Types["p.Foo"].Fingerprint)
}

func TestIncremental_UnchangedStructure(t *testing.T) {
	t.Parallel()

	opts := options(t)
	s := batch(t, opts, input(hierarchy))

	changed := hierarchy.with("src/p/Foo.java", "package p;\n\n// reformatted\npublic class Foo {\n}\n")
	next, r := incremental(t, opts, s, input(changed))

	assert.Equal(t, []element.UnitID{"src/p/Foo.java"}, r.Compiled)
	assert.Equal(t, 1, r.Unchanged)
	assert.Zero(t, r.Modified)
	assert.Equal(t, s.Types, next.Types)
}

func TestIncremental_AbstractMethodAdded(t *testing.T) {
	t.Parallel()

	fs := files{
		"src/p/Foo.java":  "package p;\npublic abstract class Foo {}\n",
		"src/p/Bar.java":  "package p;\npublic class Bar extends Foo {}\n",
		"src/p/Mid.java":  "package p;\npublic abstract class Mid extends Foo {}\n",
		"src/p/Leaf.java": "package p;\npublic class Leaf extends Mid { public void m() {} }\n",
		"src/p/Deep.java": "package p;\npublic class Deep extends Mid {}\n",
	}
	opts := options(t)
	s := batch(t, opts, input(fs))
	require.Empty(t, s.Problems)

	changed := fs.with("src/p/Foo.java", "package p;\npublic abstract class Foo { public abstract void m(); }\n")
	next, r := incremental(t, opts, s, input(changed))

	assert.Contains(t, r.Compiled, element.UnitID("src/p/Bar.java"), "Bar never mentions m")
	assert.Contains(t, r.Compiled, element.UnitID("src/p/Deep.java"), "transitive subtype")
	assert.NotContains(t, r.Compiled, element.UnitID("src/p/Leaf.java"), "already implements m")

	assert.Equal(t, []int{diagnostics.IDMissingAbstract}, problemIDs(next, "src/p/Bar.java"))
	assert.Equal(t, []int{diagnostics.IDMissingAbstract}, problemIDs(next, "src/p/Deep.java"))
	assert.Empty(t, problemIDs(next, "src/p/Leaf.java"))
	assert.Equal(t, []string{"Bar", "m()void"}, next.ProblemsFor("src/p/Bar.java")[0].Args)

	// Implementing the method clears the problem.
	fixed := changed.with("src/p/Bar.java", "package p;\npublic class Bar extends Foo { public void m() {} }\n")
	final, _ := incremental(t, opts, next, input(fixed))
	assert.Empty(t, problemIDs(final, "src/p/Bar.java"))
}

func TestIncremental_AbstractOverloadAdded(t *testing.T) {
	t.Parallel()

	fs := files{
		"src/p/Foo.java":  "package p;\npublic abstract class Foo { public abstract void m(int x); }\n",
		"src/p/Bar.java":  "package p;\npublic class Bar extends Foo { public void m(int x) {} }\n",
		"src/p/Both.java": "package p;\npublic class Both extends Foo { public void m(int x) {} public void m(String s) {} }\n",
	}
	opts := options(t)
	s := batch(t, opts, input(fs))
	require.Empty(t, s.Problems)

	changed := fs.with("src/p/Foo.java", "package p;\npublic abstract class Foo { public abstract void m(int x); public abstract void m(String s); }\n")
	next, r := incremental(t, opts, s, input(changed))

	assert.Contains(t, r.Compiled, element.UnitID("src/p/Bar.java"), "m(int) does not implement m(String)")
	assert.NotContains(t, r.Compiled, element.UnitID("src/p/Both.java"))
	require.Equal(t, []int{diagnostics.IDMissingAbstract}, problemIDs(next, "src/p/Bar.java"))
	assert.Equal(t, []string{"Bar", "m(String)void"}, next.ProblemsFor("src/p/Bar.java")[0].Args)
	assert.Empty(t, problemIDs(next, "src/p/Both.java"))
}

func TestIncremental_RemoveUnit(t *testing.T) {
	t.Parallel()

	opts := options(t)
	s := batch(t, opts, input(hierarchy))
	foo := s.Types["p.Foo"]

	next, r := incremental(t, opts, s, input(hierarchy.without("src/p/Foo.java")))

	assert.ElementsMatch(t, []element.UnitID{"src/p/Bar.java", "src/p/Baz.java"}, r.Compiled)
	assert.Equal(t, 1, r.Removed)
	assert.Equal(t, []element.TypeName{"p.Foo"}, r.Obsolete)
	_, ok := next.Entry("p.Foo")
	assert.False(t, ok)

	// The artifact outlives the pass and goes with Discard.
	_, err := opts.Store.Get(foo)
	require.NoError(t, err)
	require.NoError(t, Discard(opts.Store, next, r))
	_, err = opts.Store.Get(foo)
	assert.ErrorIs(t, err, binstore.ErrNotFound)
	assert.False(t, next.Graph.HasNode(depgraph.UnitKey("src/p/Foo.java")))
	_, _, ok = next.Source("src/p/Foo.java")
	assert.False(t, ok)

	assert.Equal(t, []int{diagnostics.IDUnresolvedSuper}, problemIDs(next, "src/p/Bar.java"))
	assert.Equal(t, []int{diagnostics.IDUnresolvedType}, problemIDs(next, "src/p/Baz.java"))
}

func TestIncremental_MovedType(t *testing.T) {
	t.Parallel()

	opts := options(t)
	s := batch(t, opts, input(hierarchy))

	moved := hierarchy.
		with("src/p/Baz.java", "package p;\npublic class Baz { Foo f; }\nclass Helper {}\n").
		with("src/p/Foo.java", "package p;\npublic class Foo { Helper h; }\n")
	next, _ := incremental(t, opts, s, input(moved))
	require.Empty(t, next.Problems)
	assert.Equal(t, element.UnitID("src/p/Baz.java"), next.Types["p.Helper"].Unit)

	// Declaring it twice is a problem on the second unit compiled.
	twice := moved.with("src/p/Bar.java", "package p;\npublic class Bar extends Foo {}\nclass Helper {}\n")
	final, _ := incremental(t, opts, next, input(twice))
	assert.Equal(t, []int{diagnostics.IDDuplicateType}, problemIDs(final, "src/p/Bar.java"))
	assert.Equal(t, element.UnitID("src/p/Baz.java"), final.Types["p.Helper"].Unit)
}

func TestIncremental_AddedTypeResolvesReference(t *testing.T) {
	t.Parallel()

	fs := files{"src/p/Main.java": "package p;\npublic class Main { Later l; }\n"}
	opts := options(t)
	s := batch(t, opts, input(fs))
	require.Equal(t, []int{diagnostics.IDUnresolvedType}, problemIDs(s, "src/p/Main.java"))

	next, r := incremental(t, opts, s, input(fs.with("src/p/Later.java", "package p;\npublic class Later {}\n")))
	assert.ElementsMatch(t, []element.UnitID{"src/p/Later.java", "src/p/Main.java"}, r.Compiled)
	assert.Empty(t, next.Problems)
	assert.Contains(t, next.Graph.DependentsOf(depgraph.TypeKey("p.Later")), depgraph.UnitKey("src/p/Main.java"))
}

func utilArchive(hash string, methods ...classfile.Method) Archive {
	return Archive{
		ID:   "lib/util.jar",
		Hash: []byte(hash),
		Types: []*classfile.Type{{
			Name:      "lib.Util",
			Kind:      classfile.KindClass,
			Modifiers: classfile.Public,
			Methods:   methods,
		}},
	}
}

func TestIncremental_Archives(t *testing.T) {
	t.Parallel()

	fs := files{
		"src/p/Main.java":  "package p;\nimport lib.Util;\npublic class Main { Util u; }\n",
		"src/p/Other.java": "package p;\npublic class Other {}\n",
	}
	opts := options(t)
	in := input(fs)
	in.Archives = []Archive{utilArchive("v1")}
	s := batch(t, opts, in)
	require.Empty(t, s.Problems)
	assert.Contains(t, s.Graph.DependentsOf(depgraph.ArchiveKey("lib/util.jar")), depgraph.UnitKey("src/p/Main.java"))
	assert.Equal(t, []string{"lib/util.jar"}, s.Packages["lib"])
	_, e, ok := s.Source("lib/util.jar")
	require.True(t, ok)
	assert.Equal(t, buildstate.BinaryFile, e.Kind)

	in = input(fs)
	in.Archives = []Archive{utilArchive("v2", classfile.Method{Name: "run", Return: "void", Modifiers: classfile.Public})}
	next, r := incremental(t, opts, s, in)
	assert.Equal(t, []element.UnitID{"src/p/Main.java"}, r.Compiled)

	final, r := incremental(t, opts, next, input(fs))
	assert.Equal(t, []element.UnitID{"src/p/Main.java"}, r.Compiled)
	assert.Equal(t, []int{diagnostics.IDUnresolvedType}, problemIDs(final, "src/p/Main.java"))
	assert.False(t, final.Graph.HasNode(depgraph.ArchiveKey("lib/util.jar")))
}

func TestIncremental_OldStateUntouched(t *testing.T) {
	t.Parallel()

	opts := options(t)
	s := batch(t, opts, input(hierarchy))
	types := make(map[element.TypeName]element.Entry, len(s.Types))
	for k, v := range s.Types {
		types[k] = v
	}
	nodes := s.Graph.Len()
	problems := len(s.Problems)

	_, _ = incremental(t, opts, s, input(hierarchy.without("src/p/Foo.java")))

	assert.Equal(t, types, s.Types)
	assert.Equal(t, nodes, s.Graph.Len())
	assert.Equal(t, problems, len(s.Problems))
	assert.True(t, s.Graph.HasNode(depgraph.UnitKey("src/p/Foo.java")))
}

type cancelAfter struct {
	NopProgress
	limit, worked int
}

func (c *cancelAfter) Worked(n int)      { c.worked += n }
func (c *cancelAfter) IsCancelled() bool { return c.worked >= c.limit }

func TestBuild_Cancelled(t *testing.T) {
	t.Parallel()

	opts := options(t)
	opts.Progress = &cancelAfter{limit: 1}
	_, _, err := NewBatchBuilder(opts).Build(context.Background(), input(hierarchy))
	assert.ErrorIs(t, err, ErrCancelled)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts = options(t)
	s := batch(t, opts, input(hierarchy))
	_, _, err = NewBatchBuilder(opts).Build(ctx, input(hierarchy))
	assert.ErrorIs(t, err, ErrCancelled)
	_, _, err = NewIncrementalBuilder(opts).Build(ctx, s, input(hierarchy.without("src/p/Foo.java")), nil)
	assert.ErrorIs(t, err, ErrCancelled)

	// Cancelled passes leave every artifact of the previous state.
	for _, e := range s.Entries() {
		_, err := opts.Store.Get(e)
		assert.NoError(t, err, e.Type)
	}
}

func TestDetectChanges(t *testing.T) {
	t.Parallel()

	opts := options(t)
	in := input(hierarchy)
	in.Archives = []Archive{utilArchive("v1")}
	s := batch(t, opts, in)

	next := input(hierarchy.without("src/p/Baz.java").
		with("src/p/Foo.java", "package p;\npublic class Foo { int x; }\n").
		with("src/p/New.java", "package p;\nclass New {}\n"))
	ch := DetectChanges(s, next)
	assert.Equal(t, []element.UnitID{"src/p/New.java"}, ch.Added)
	assert.Equal(t, []element.UnitID{"src/p/Foo.java"}, ch.Modified)
	assert.Equal(t, []element.UnitID{"src/p/Baz.java"}, ch.Removed)
	assert.Equal(t, []element.ArchiveID{"lib/util.jar"}, ch.ArchivesRemoved)
	assert.Equal(t, 4, ch.Count())

	assert.True(t, DetectChanges(s, in).Empty())
}

func TestDetectChanges_SameNameDifferentRoots(t *testing.T) {
	t.Parallel()

	old := buildstate.New(nil)
	in := &Input{}
	for i, id := range []element.UnitID{"src/geo/Shape.java", "gen/geo/Shape.java"} {
		hash := []byte{byte(i + 1)}
		old.PutSource("geo", buildstate.SourceEntry{Path: string(id), Kind: buildstate.SourceFile, Hash: hash})
		in.Sources = append(in.Sources, Source{Unit: frontend.SourceUnit(id, "geo", ""), Root: "src", Hash: hash})
	}
	assert.True(t, DetectChanges(old, in).Empty())
}

func TestRebuildHierarchy(t *testing.T) {
	t.Parallel()

	opts := options(t)
	s := batch(t, opts, input(hierarchy))
	for _, name := range []element.TypeName{"p.Foo", "p.Bar", "p.Baz"} {
		s.Graph.SetSupertypes(name, nil)
	}
	require.Empty(t, s.Graph.DirectSubtypes("p.Foo"))

	require.NoError(t, RebuildHierarchy(s, opts.Store))
	assert.Equal(t, []element.TypeName{"p.Bar"}, s.Graph.DirectSubtypes("p.Foo"))

	require.NoError(t, opts.Store.Delete("p.Bar"))
	err := RebuildHierarchy(s, opts.Store)
	var ie *element.InternalError
	assert.ErrorAs(t, err, &ie)
}
