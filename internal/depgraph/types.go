package depgraph

import (
	"fmt"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// NodeKind is the kind of a dependency graph node.
type NodeKind uint8

const (
	KindUnit      NodeKind = iota + 1 // compilation unit
	KindType                          // type, source or binary
	KindNamespace                     // package
	KindArchive                       // classpath archive
)

func (k NodeKind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindType:
		return "type"
	case KindNamespace:
		return "namespace"
	case KindArchive:
		return "archive"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Key is the stable identity of a node.
type Key struct {
	Kind NodeKind
	Name string
}

func (k Key) String() string {
	return k.Kind.String() + ":" + k.Name
}

// UnitKey returns the key of a compilation unit node.
func UnitKey(u element.UnitID) Key { return Key{Kind: KindUnit, Name: string(u)} }

// TypeKey returns the key of a type node.
func TypeKey(t element.TypeName) Key { return Key{Kind: KindType, Name: string(t)} }

// NamespaceKey returns the key of a package node.
func NamespaceKey(p element.PackageName) Key { return Key{Kind: KindNamespace, Name: string(p)} }

// ArchiveKey returns the key of an archive node.
func ArchiveKey(a element.ArchiveID) Key { return Key{Kind: KindArchive, Name: string(a)} }

// indexSet is an insertion-ordered set of arena indices.
type indexSet struct {
	items []int
	pos   map[int]int
}

func newIndexSet() indexSet {
	return indexSet{pos: make(map[int]int)}
}

func (s *indexSet) has(i int) bool {
	_, ok := s.pos[i]
	return ok
}

func (s *indexSet) add(i int) bool {
	if s.has(i) {
		return false
	}
	s.pos[i] = len(s.items)
	s.items = append(s.items, i)
	return true
}

func (s *indexSet) remove(i int) bool {
	p, ok := s.pos[i]
	if !ok {
		return false
	}
	delete(s.pos, i)
	s.items = append(s.items[:p], s.items[p+1:]...)
	for j := p; j < len(s.items); j++ {
		s.pos[s.items[j]] = j
	}
	return true
}

func (s *indexSet) clone() indexSet {
	c := indexSet{
		items: append([]int(nil), s.items...),
		pos:   make(map[int]int, len(s.pos)),
	}
	for k, v := range s.pos {
		c.pos[k] = v
	}
	return c
}

// node is one arena slot.
type node struct {
	key        Key
	deps       indexSet // nodes this node depends on
	dependents indexSet // nodes depending on this node
	types      []element.TypeName
	refs       map[string]struct{}
}

func newNode(k Key) *node {
	return &node{
		key:        k,
		deps:       newIndexSet(),
		dependents: newIndexSet(),
	}
}

func (n *node) clone() *node {
	c := &node{
		key:        n.key,
		deps:       n.deps.clone(),
		dependents: n.dependents.clone(),
		types:      append([]element.TypeName(nil), n.types...),
	}
	if n.refs != nil {
		c.refs = make(map[string]struct{}, len(n.refs))
		for r := range n.refs {
			c.refs[r] = struct{}{}
		}
	}
	return c
}
