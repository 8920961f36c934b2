package javafront

import (
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/mvp-joe/project-lathe/internal/classfile"
)

// nodeText returns the source text covered by node.
func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// walkTree visits node and its descendants depth-first; returning false
// from visit skips the children.
func walkTree(node *sitter.Node, visit func(*sitter.Node) bool) {
	if node == nil || !visit(node) {
		return
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		walkTree(node.Child(uint(i)), visit)
	}
}

// findChildByType returns the first direct child of the given kind.
func findChildByType(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		if child.Kind() == kind {
			return child
		}
	}
	return nil
}

// children returns the direct children of the given kinds.
func children(node *sitter.Node, kinds ...string) []*sitter.Node {
	if node == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		for _, k := range kinds {
			if child.Kind() == k {
				out = append(out, child)
				break
			}
		}
	}
	return out
}

func line(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

var typeKinds = map[string]bool{
	"type_identifier":        true,
	"scoped_type_identifier": true,
	"generic_type":           true,
	"array_type":             true,
	"integral_type":          true,
	"floating_point_type":    true,
	"boolean_type":           true,
	"void_type":              true,
	"annotated_type":         true,
}

// firstType returns the first direct child that is a type.
func firstType(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		if typeKinds[child.Kind()] {
			return child
		}
	}
	return nil
}

// erasure renders a type node without type arguments or annotations,
// e.g. "List<String>[]" becomes "List[]".
func erasure(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	switch node.Kind() {
	case "generic_type":
		return erasure(firstType(node), source)
	case "annotated_type":
		return erasure(node.NamedChild(node.NamedChildCount()-1), source)
	case "array_type":
		dims := strings.Count(nodeText(node.ChildByFieldName("dimensions"), source), "[")
		return erasure(node.ChildByFieldName("element"), source) + strings.Repeat("[]", dims)
	case "scoped_type_identifier":
		var parts []string
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(uint(i))
			if typeKinds[child.Kind()] {
				parts = append(parts, erasure(child, source))
			}
		}
		return strings.Join(parts, ".")
	}
	return strings.Join(strings.Fields(nodeText(node, source)), "")
}

// modifiers parses the modifiers child of a declaration. Annotations are
// ignored.
func modifiers(decl *sitter.Node, source []byte) classfile.Modifiers {
	var m classfile.Modifiers
	mods := findChildByType(decl, "modifiers")
	if mods == nil {
		return m
	}
	for i := 0; i < int(mods.ChildCount()); i++ {
		m |= classfile.ParseModifier(nodeText(mods.Child(uint(i)), source))
	}
	return m
}
