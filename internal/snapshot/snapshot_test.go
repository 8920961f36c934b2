package snapshot

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/depgraph"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// TEST PLAN: Build State Snapshot
//
// 1. Round trip (v6): package map, sources, structural table, problems
// 2. dependents-of queries identical before and after
// 3. Subtype index and recorded references survive
// 4. Version 5 files load with fingerprints, problem IDs and subtypes zero
// 5. Bad magic, unknown version, truncation, bad pool references and
//    trailing bytes all fail with MalformedError
// 6. Save is atomic and Load of a missing file reports not-exist
// 7. The constant pool stores each string once
// 8. Loading the same bytes twice yields the same state ID

func sampleState(t *testing.T) *buildstate.State {
	t.Helper()
	s := buildstate.New([]byte("build-identity"))
	s.AddFragment("a", "src")
	s.AddFragment("a", "lib/x.jar")
	s.AddFragment("b", "src")
	s.PutSource("a", buildstate.SourceEntry{Path: "src/a/Foo.java", Kind: buildstate.SourceFile, Hash: []byte{1, 2}})
	s.PutSource("a", buildstate.SourceEntry{Path: "src/a/Bar.java", Kind: buildstate.SourceFile, Hash: []byte{3, 4}})
	s.PutSource("b", buildstate.SourceEntry{Path: "src/b/Use.java", Kind: buildstate.SourceFile, Hash: []byte{5}})
	s.PutSource("", buildstate.SourceEntry{Path: "lib/x.jar", Kind: buildstate.BinaryFile, Hash: []byte{6}})

	s.Types["a.Foo"] = element.Entry{Unit: "src/a/Foo.java", Type: "a.Foo", Fingerprint: 0xA1}
	s.Types["a.Foo$Inner"] = element.Entry{Unit: "src/a/Foo.java", Type: "a.Foo$Inner", Fingerprint: 0xA2}
	s.Types["a.Bar"] = element.Entry{Unit: "src/a/Bar.java", Type: "a.Bar", Fingerprint: 0xB1}
	s.Types["b.Use"] = element.Entry{Unit: "src/b/Use.java", Type: "b.Use", Fingerprint: 0xC1}

	s.SetProblems("src/b/Use.java", []diagnostics.Problem{
		{ID: diagnostics.IDUnresolvedType, Severity: diagnostics.SeverityError, Message: "Missing cannot be resolved to a type", Args: []string{"Missing"}, Start: 10, End: 17, Line: 3},
		{ID: diagnostics.IDSyntaxError, Severity: diagnostics.SeverityWarning, Message: "odd", Start: 1, End: 2, Line: 1},
	})

	g := s.Graph
	declare := func(u element.UnitID, types ...element.TypeName) {
		g.SetDeclaredTypes(depgraph.UnitKey(u), types)
		for _, ty := range types {
			require.NoError(t, g.AddDependency(depgraph.TypeKey(ty), depgraph.UnitKey(u)))
		}
	}
	declare("src/a/Foo.java", "a.Foo", "a.Foo$Inner")
	declare("src/a/Bar.java", "a.Bar")
	declare("src/b/Use.java", "b.Use")
	require.NoError(t, g.AddDependency(depgraph.UnitKey("src/a/Bar.java"), depgraph.TypeKey("a.Foo")))
	require.NoError(t, g.AddDependency(depgraph.UnitKey("src/b/Use.java"), depgraph.TypeKey("a.Bar")))
	require.NoError(t, g.AddDependency(depgraph.UnitKey("src/b/Use.java"), depgraph.NamespaceKey("b")))
	require.NoError(t, g.AddDependency(depgraph.UnitKey("src/b/Use.java"), depgraph.ArchiveKey("lib/x.jar")))
	g.SetReferences(depgraph.UnitKey("src/a/Bar.java"), []string{"Foo"})
	g.SetReferences(depgraph.UnitKey("src/b/Use.java"), []string{"Bar", "Missing", "run"})
	g.SetSupertypes("a.Bar", []element.TypeName{"a.Foo"})
	return s
}

func roundTrip(t *testing.T, s *buildstate.State, version uint16) (*buildstate.State, []byte) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, encodeVersion(&buf, s, version))
	raw := append([]byte(nil), buf.Bytes()...)
	got, v, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, version, v)
	return got, raw
}

func TestRoundTrip_V6(t *testing.T) {
	t.Parallel()

	s := sampleState(t)
	got, _ := roundTrip(t, s, CurrentVersion)

	assert.Equal(t, s.Fingerprint, got.Fingerprint)
	assert.Equal(t, s.Packages, got.Packages)
	assert.Equal(t, s.Sources, got.Sources)
	assert.Equal(t, s.Types, got.Types)
	assert.Equal(t, s.Problems, got.Problems)
}

func TestRoundTrip_DependentsQueries(t *testing.T) {
	t.Parallel()

	s := sampleState(t)
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s))
	got, version, err := Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, CurrentVersion, version)

	kinds := []depgraph.NodeKind{depgraph.KindUnit, depgraph.KindType, depgraph.KindNamespace, depgraph.KindArchive}
	for _, kind := range kinds {
		want := s.Graph.Nodes(kind)
		require.Equal(t, want, got.Graph.Nodes(kind))
		for _, k := range want {
			assert.ElementsMatch(t, s.Graph.DependentsOf(k), got.Graph.DependentsOf(k), k.String())
			assert.ElementsMatch(t, s.Graph.DependenciesOf(k), got.Graph.DependenciesOf(k), k.String())
			assert.Equal(t, s.Graph.References(k), got.Graph.References(k), k.String())
			assert.Equal(t, s.Graph.DeclaredTypes(k), got.Graph.DeclaredTypes(k), k.String())
		}
	}
	assert.Equal(t, []element.TypeName{"a.Bar"}, got.Graph.DirectSubtypes("a.Foo"))
}

func TestRoundTrip_V5(t *testing.T) {
	t.Parallel()

	s := sampleState(t)
	got, _ := roundTrip(t, s, 5)

	assert.Equal(t, s.Packages, got.Packages)
	assert.Equal(t, s.Sources, got.Sources)
	for name, e := range s.Types {
		g, ok := got.Types[name]
		require.True(t, ok, name)
		assert.Equal(t, e.Unit, g.Unit)
		assert.Zero(t, g.Fingerprint)
	}
	require.Len(t, got.Problems, len(s.Problems))
	for i, p := range got.Problems {
		assert.Zero(t, p.ID)
		assert.Equal(t, s.Problems[i].Message, p.Message)
		assert.Equal(t, s.Problems[i].Line, p.Line)
	}
	assert.Empty(t, got.Graph.DirectSubtypes("a.Foo"))
	assert.ElementsMatch(t, s.Graph.DependentsOf(depgraph.TypeKey("a.Foo")), got.Graph.DependentsOf(depgraph.TypeKey("a.Foo")))
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleState(t)))
	good := buf.Bytes()

	mutate := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	cases := map[string][]byte{
		"empty":     {},
		"bad magic": mutate(func(b []byte) []byte { b[0] = 'X'; return b }),
		"unknown version": mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint16(b[4:6], 7)
			return b
		}),
		"truncated":      good[:len(good)-3],
		"trailing bytes": append(append([]byte(nil), good...), 0x00),
		"section overflow": mutate(func(b []byte) []byte {
			// First section frame follows the header and fingerprint.
			off := 8 + int(binary.BigEndian.Uint16(b[6:8]))
			binary.BigEndian.PutUint32(b[off:], 1<<30)
			return b
		}),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			s, _, err := Decode(bytes.NewReader(data))
			assert.Nil(t, s)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformed)
			var me *MalformedError
			assert.ErrorAs(t, err, &me)
		})
	}
}

func TestDecode_BadPoolReference(t *testing.T) {
	t.Parallel()

	s := buildstate.New(nil)
	s.Types["a.Foo"] = element.Entry{Unit: "a/Foo.java", Type: "a.Foo", Fingerprint: 1}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, s))
	data := buf.Bytes()

	// Replace the pool with an empty one: every reference is out of range.
	off := 8
	poolLen := int(binary.BigEndian.Uint32(data[off:]))
	empty := newRecord()
	empty.EncodeArrayLen(0)
	var patched []byte
	patched = append(patched, data[:off]...)
	patched = binary.BigEndian.AppendUint32(patched, uint32(len(empty.Bytes())))
	patched = append(patched, empty.Bytes()...)
	patched = append(patched, data[off+4+poolLen:]...)

	_, _, err := Decode(bytes.NewReader(patched))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestPool_Deduplicates(t *testing.T) {
	t.Parallel()

	p := newPool()
	assert.Equal(t, int64(0), p.ref("src"))
	assert.Equal(t, int64(1), p.ref("lib"))
	assert.Equal(t, int64(0), p.ref("src"))
	assert.Equal(t, []string{"src", "lib"}, p.strings)
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "state", "current.snap")

	_, _, err := Load(path)
	assert.True(t, os.IsNotExist(err))

	s := sampleState(t)
	require.NoError(t, Save(path, s))
	first, version, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, version)
	assert.Equal(t, s.Types, first.Types)

	second, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Overwrite with a different state; no temp files linger.
	s.Types["a.New"] = element.Entry{Unit: "src/a/New.java", Type: "a.New", Fingerprint: 9}
	require.NoError(t, Save(path, s))
	third, _, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, third.Types, element.TypeName("a.New"))
	assert.NotEqual(t, first.ID, third.ID)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoad_Malformed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.snap")
	require.NoError(t, os.WriteFile(path, []byte("not a snapshot at all"), 0o644))
	s, _, err := Load(path)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestEncode_RejectsUnknownVersion(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	assert.Error(t, encodeVersion(&buf, buildstate.New(nil), 4))
	assert.Equal(t, []uint16{5, 6}, SupportedVersions())
}
