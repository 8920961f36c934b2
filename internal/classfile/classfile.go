// Package classfile defines the structural artifact produced for every
// compiled type: its kind, modifiers, supertypes and member signatures.
// Artifacts are what the binary store persists; the incremental builder
// decodes the previous artifact of a type to compare it against the newly
// compiled one.
package classfile

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// magic prefixes every encoded artifact.
var magic = []byte{0xCA, 0xFE, 0x1A, 0x7E}

// ErrBadArtifact is returned when decoding bytes that are not an artifact.
var ErrBadArtifact = errors.New("not a structural artifact")

// Kind is the declaration kind of a type.
type Kind uint8

const (
	KindClass Kind = iota + 1
	KindInterface
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindInterface:
		return "interface"
	case KindEnum:
		return "enum"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Modifiers is a bit set of declaration modifiers.
type Modifiers uint16

const (
	Public Modifiers = 1 << iota
	Protected
	Private
	Static
	Final
	Abstract
	Default // interface default method
)

// Has reports whether all bits of m2 are set.
func (m Modifiers) Has(m2 Modifiers) bool { return m&m2 == m2 }

// Visibility returns only the access bits.
func (m Modifiers) Visibility() Modifiers { return m & (Public | Protected | Private) }

// ParseModifier maps a Java modifier keyword to its bit, or 0.
func ParseModifier(word string) Modifiers {
	switch word {
	case "public":
		return Public
	case "protected":
		return Protected
	case "private":
		return Private
	case "static":
		return Static
	case "final":
		return Final
	case "abstract":
		return Abstract
	case "default":
		return Default
	}
	return 0
}

// Type is the structure of one compiled type.
type Type struct {
	Name       element.TypeName   `msgpack:"name"`
	Kind       Kind               `msgpack:"kind"`
	Modifiers  Modifiers          `msgpack:"mods"`
	Super      element.TypeName   `msgpack:"super,omitempty"`
	Interfaces []element.TypeName `msgpack:"ifaces,omitempty"`
	Methods    []Method           `msgpack:"methods,omitempty"`
	Fields     []Field            `msgpack:"fields,omitempty"`
}

// Method is a method signature with erased parameter types.
type Method struct {
	Name      string    `msgpack:"name"`
	Params    []string  `msgpack:"params,omitempty"`
	Return    string    `msgpack:"ret,omitempty"`
	Modifiers Modifiers `msgpack:"mods"`
}

// Field is a field declaration.
type Field struct {
	Name      string    `msgpack:"name"`
	Type      string    `msgpack:"type"`
	Modifiers Modifiers `msgpack:"mods"`
	Constant  string    `msgpack:"const,omitempty"` // initializer text of static final fields
}

// Arity is the number of parameters.
func (m Method) Arity() int { return len(m.Params) }

// Key identifies the method within its owner: name plus arity.
func (m Method) Key() string { return fmt.Sprintf("%s/%d", m.Name, len(m.Params)) }

// Signature renders name(params)return.
func (m Method) Signature() string {
	return fmt.Sprintf("%s(%s)%s", m.Name, strings.Join(m.Params, ","), m.Return)
}

// IsAbstract reports whether the method has no implementation.
func (m Method) IsAbstract() bool { return m.Modifiers.Has(Abstract) }

// IsAbstract reports whether the type may declare abstract methods.
func (t *Type) IsAbstract() bool {
	return t.Kind == KindInterface || t.Modifiers.Has(Abstract)
}

// Supertypes returns the superclass (if any) followed by the interfaces.
func (t *Type) Supertypes() []element.TypeName {
	supers := make([]element.TypeName, 0, len(t.Interfaces)+1)
	if t.Super != "" {
		supers = append(supers, t.Super)
	}
	return append(supers, t.Interfaces...)
}

// MethodsNamed returns every overload with the given name and arity.
func (t *Type) MethodsNamed(name string, arity int) []Method {
	var out []Method
	for _, m := range t.Methods {
		if m.Name == name && m.Arity() == arity {
			out = append(out, m)
		}
	}
	return out
}

// Field returns the field with the given name.
func (t *Type) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Clone returns a deep copy.
func (t *Type) Clone() *Type {
	c := *t
	c.Interfaces = append([]element.TypeName(nil), t.Interfaces...)
	c.Fields = append([]Field(nil), t.Fields...)
	c.Methods = make([]Method, len(t.Methods))
	for i, m := range t.Methods {
		m.Params = append([]string(nil), m.Params...)
		c.Methods[i] = m
	}
	return &c
}

// canonicalize sorts members so that declaration order does not affect the
// encoded bytes or the fingerprint.
func canonicalize(t *Type) *Type {
	c := t.Clone()
	sort.Slice(c.Methods, func(i, j int) bool {
		return c.Methods[i].Signature() < c.Methods[j].Signature()
	})
	sort.Slice(c.Fields, func(i, j int) bool { return c.Fields[i].Name < c.Fields[j].Name })
	sort.Slice(c.Interfaces, func(i, j int) bool { return c.Interfaces[i] < c.Interfaces[j] })
	return c
}

// Encode serializes the type into artifact bytes.
func Encode(t *Type) ([]byte, error) {
	body, err := msgpack.Marshal(canonicalize(t))
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", t.Name)
	}
	out := make([]byte, 0, len(magic)+len(body))
	out = append(out, magic...)
	return append(out, body...), nil
}

// Decode parses artifact bytes.
func Decode(data []byte) (*Type, error) {
	if !bytes.HasPrefix(data, magic) {
		return nil, ErrBadArtifact
	}
	var t Type
	if err := msgpack.Unmarshal(data[len(magic):], &t); err != nil {
		return nil, errors.Wrap(err, "decode artifact")
	}
	return &t, nil
}

// Fingerprint returns the 32-bit content checksum of artifact bytes. It is
// never zero so that zero can mean "no fingerprint".
func Fingerprint(data []byte) uint32 {
	sum := murmur3.Sum32(data)
	if sum == 0 {
		return 1
	}
	return sum
}
