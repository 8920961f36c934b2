package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeProjectFile writes a file under the project root, creating parent
// directories.
func writeProjectFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

// setupProject creates a small project with the default layout: an
// abstract base, a subclass and a unit using both.
func setupProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeProjectFile(t, root, "src/geo/Shape.java", "package geo;\npublic abstract class Shape {\n  public abstract double area();\n}\n")
	writeProjectFile(t, root, "src/geo/Square.java", "package geo;\npublic class Square extends Shape {\n  double side;\n  public double area() { return side * side; }\n}\n")
	writeProjectFile(t, root, "src/app/Main.java", "package app;\nimport geo.Shape;\nimport geo.Square;\npublic class Main {\n  Shape s = new Square();\n}\n")
	writeProjectFile(t, root, "src/app/app.properties", "name=demo\n")
	return root
}
