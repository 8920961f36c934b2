package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-lathe/internal/element"
	"github.com/mvp-joe/project-lathe/internal/handle"
	"github.com/mvp-joe/project-lathe/internal/project"
)

// Test Plan for CLI commands:
// - build runs a full build first, then an incremental one that compiles nothing
// - build recompiles an edited unit and copies resources
// - build fails with the error count when problems are errors
// - problems renders messages in the requested locale
// - deps lists dependents of a type and dependencies of a unit
// - deps binds members of the last build and lists the units using them
// - read-only commands before the first build report a missing state
// - archive packages the compiled types for use as a classpath archive
// - clean removes snapshots so the next build is full
// - gc reports live and deleted artifacts
// - formatNumber inserts thousand separators

func build(t *testing.T, root string, opts buildOptions) string {
	t.Helper()
	var out, errOut bytes.Buffer
	require.NoError(t, executeBuild(context.Background(), root, opts, &out, &errOut), errOut.String())
	return out.String()
}

func openTestWorkspace(t *testing.T, root string) *workspace {
	t.Helper()
	ws, err := openWorkspace(root, newLogger(&bytes.Buffer{}, false), nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestBuild_FullThenIncremental(t *testing.T) {
	t.Parallel()

	root := setupProject(t)
	out := build(t, root, buildOptions{})
	assert.Contains(t, out, "Full build complete")
	assert.Contains(t, out, "Reason:      no previous state")
	assert.Contains(t, out, "3 added")

	out = build(t, root, buildOptions{})
	assert.Contains(t, out, "Incremental build complete: 0 units compiled")

	out = build(t, root, buildOptions{full: true})
	assert.Contains(t, out, "Reason:      full build requested")
}

func TestBuild_RecompilesEditedUnit(t *testing.T) {
	t.Parallel()

	root := setupProject(t)
	build(t, root, buildOptions{quiet: true})

	data, err := os.ReadFile(filepath.Join(root, "out", "resources", "app", "app.properties"))
	require.NoError(t, err)
	assert.Equal(t, "name=demo\n", string(data))

	writeProjectFile(t, root, "src/geo/Square.java",
		"package geo;\npublic class Square extends Shape {\n  double side;\n  public double area() { return side * side; }\n  public double perimeter() { return 4 * side; }\n}\n")
	build(t, root, buildOptions{quiet: true})

	ws := openTestWorkspace(t, root)
	s, _, err := currentState(ws)
	require.NoError(t, err)
	assert.Len(t, s.Types, 3)
	assert.Empty(t, s.Problems)
}

func TestBuild_FailsOnErrors(t *testing.T) {
	t.Parallel()

	root := setupProject(t)
	writeProjectFile(t, root, "src/app/Broken.java", "package app;\nclass Broken {\n  Missing m;\n}\n")

	var out, errOut bytes.Buffer
	err := executeBuild(context.Background(), root, buildOptions{}, &out, &errOut)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 error(s)")
	assert.Contains(t, out.String(), "src/app/Broken.java:3: error: Missing cannot be resolved to a type")

	// The failed build is still committed.
	var problems bytes.Buffer
	ws := openTestWorkspace(t, root)
	s, _, err := currentState(ws)
	require.NoError(t, err)
	printProblems(&problems, ws.catalog, s.Problems, "de-CH")
	assert.Contains(t, problems.String(), "Missing kann nicht in einen Typ aufgelöst werden")
}

func TestDeps(t *testing.T) {
	t.Parallel()

	root := setupProject(t)
	build(t, root, buildOptions{quiet: true})
	ws := openTestWorkspace(t, root)
	s, _, err := currentState(ws)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printDeps(&out, s, "geo.Shape", false))
	assert.Contains(t, out.String(), "Dependents of type:geo.Shape")
	assert.Contains(t, out.String(), "unit:src/app/Main.java")
	assert.Contains(t, out.String(), "Subtypes:   [geo.Square]")

	out.Reset()
	require.NoError(t, printDeps(&out, s, "src/app/Main.java", true))
	assert.Contains(t, out.String(), "type:geo.Square")

	assert.Error(t, printDeps(&out, s, "geo.Nothing", false))

	out.Reset()
	printGraphSummary(&out, s.Graph)
	assert.Regexp(t, `unit:\s+3\n`, out.String())
}

func TestDeps_Member(t *testing.T) {
	t.Parallel()

	root := setupProject(t)
	writeProjectFile(t, root, "src/app/Report.java",
		"package app;\nimport geo.Shape;\nclass Report {\n  double total(Shape s) { return s.area(); }\n}\n")
	build(t, root, buildOptions{quiet: true})
	ws := openTestWorkspace(t, root)
	s, _, err := currentState(ws)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, printMember(&out, s, ws.store, "geo.Shape#area/0", false))
	assert.Contains(t, out.String(), "method geo.Shape#area/0 (src/geo/Shape.java):")
	assert.Contains(t, out.String(), "  area()double")
	assert.Contains(t, out.String(), "Dependents of geo.Shape#area/0 (1):\n  unit:src/app/Report.java")
	assert.NotContains(t, out.String(), "Main.java")

	out.Reset()
	require.NoError(t, printMember(&out, s, ws.store, "geo.Square#side", true))
	assert.Contains(t, out.String(), "field geo.Square#side (src/geo/Square.java):\n  side double")
	assert.NotContains(t, out.String(), "Dependents")

	err = printMember(&out, s, ws.store, "geo.Shape#perimeter/0", false)
	assert.ErrorIs(t, err, element.ErrNotPresent)
	assert.Contains(t, err.Error(), "not present in the last build")

	err = printMember(&out, s, ws.store, "geo.Shape#area/x", false)
	assert.ErrorIs(t, err, handle.ErrSyntax)
}

func TestCommands_NoStateYet(t *testing.T) {
	t.Parallel()

	root := setupProject(t)
	ws := openTestWorkspace(t, root)
	_, _, err := currentState(ws)
	assert.ErrorIs(t, err, errNoState)

	err = executeArchive(root, filepath.Join(root, "dist", "x.jar"), &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorIs(t, err, errNoState)
}

func TestArchive(t *testing.T) {
	t.Parallel()

	root := setupProject(t)
	build(t, root, buildOptions{quiet: true})

	dest := filepath.Join(root, "dist", "geo.jar")
	var out bytes.Buffer
	require.NoError(t, executeArchive(root, dest, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "Wrote 3 types")

	types, err := project.ReadArchive(dest)
	require.NoError(t, err)
	require.Len(t, types, 3)
	assert.Equal(t, element.TypeName("app.Main"), types[0].Name)
	assert.Equal(t, element.TypeName("geo.Shape"), types[1].Name)
	assert.True(t, types[1].IsAbstract())
}

func TestCleanAndGC(t *testing.T) {
	t.Parallel()

	root := setupProject(t)
	build(t, root, buildOptions{quiet: true})

	var out bytes.Buffer
	require.NoError(t, executeGC(root, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "3 live artifacts, 0 deleted")

	out.Reset()
	require.NoError(t, executeClean(root, false, &out, &bytes.Buffer{}))
	assert.Contains(t, out.String(), "Removed build output and snapshots")

	ws := openTestWorkspace(t, root)
	_, _, err := currentState(ws)
	assert.ErrorIs(t, err, errNoState)

	assert.Contains(t, build(t, root, buildOptions{}), "Reason:      no previous state")
}

func TestFormatNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0", formatNumber(0))
	assert.Equal(t, "999", formatNumber(999))
	assert.Equal(t, "1,234", formatNumber(1234))
	assert.Equal(t, "1,234,567", formatNumber(1234567))
	assert.Equal(t, "-12,345", formatNumber(-12345))
}
