// Package handle addresses types and members in two ways: a Descriptor names
// an entity independently of any build state, and a View is that descriptor
// bound to one state's structure. Views are produced only by Bind.
package handle

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// Kind is the kind of entity a handle refers to.
type Kind uint8

const (
	KindType Kind = iota + 1
	KindMethod
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindType:
		return "type"
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Ref is implemented by Descriptor and View.
type Ref interface {
	Descriptor() Descriptor
	// Entry returns the structural entry of the owner in the bound state.
	// Descriptors have no state and return a StateMismatchError.
	Entry() (element.Entry, error)
}

// Descriptor identifies a type, method or field without reference to any
// build state. It is a comparable value.
type Descriptor struct {
	Kind  Kind
	Owner element.TypeName
	Name  string // member name; empty for types
	Arity int    // parameter count for methods
}

// Type returns the descriptor of t.
func Type(t element.TypeName) Descriptor {
	return Descriptor{Kind: KindType, Owner: t}
}

// Method returns the descriptor of the name/arity overload set in owner.
func Method(owner element.TypeName, name string, arity int) Descriptor {
	return Descriptor{Kind: KindMethod, Owner: owner, Name: name, Arity: arity}
}

// Field returns the descriptor of a field of owner.
func Field(owner element.TypeName, name string) Descriptor {
	return Descriptor{Kind: KindField, Owner: owner, Name: name}
}

func (d Descriptor) String() string {
	switch d.Kind {
	case KindMethod:
		return fmt.Sprintf("%s#%s/%d", d.Owner, d.Name, d.Arity)
	case KindField:
		return fmt.Sprintf("%s#%s", d.Owner, d.Name)
	}
	return string(d.Owner)
}

// ErrSyntax is returned by Parse for malformed descriptors.
var ErrSyntax = errors.New("malformed descriptor")

// Parse reads the form produced by String: "pkg.Type", "pkg.Type#field" or
// "pkg.Type#method/arity".
func Parse(s string) (Descriptor, error) {
	owner, member, hasMember := strings.Cut(s, "#")
	if owner == "" || strings.ContainsAny(owner, " /#") {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if !hasMember {
		return Type(element.TypeName(owner)), nil
	}
	name, arity, isMethod := strings.Cut(member, "/")
	if name == "" || strings.ContainsAny(name, " .#") {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrSyntax, s)
	}
	if !isMethod {
		return Field(element.TypeName(owner), name), nil
	}
	n, err := strconv.Atoi(arity)
	if err != nil || n < 0 {
		return Descriptor{}, fmt.Errorf("%w: arity of %q", ErrSyntax, s)
	}
	return Method(element.TypeName(owner), name, n), nil
}

func (d Descriptor) Descriptor() Descriptor { return d }

func (d Descriptor) Entry() (element.Entry, error) {
	return element.Entry{}, &element.StateMismatchError{
		Op:     "entry of " + d.String(),
		Reason: "descriptor is not bound to a build state",
	}
}

// View is a descriptor pinned to one build state.
type View struct {
	desc      Descriptor
	state     uuid.UUID
	entry     element.Entry
	structure *classfile.Type
	methods   []classfile.Method
	field     classfile.Field
}

func (v View) Descriptor() Descriptor { return v.desc }

func (v View) Entry() (element.Entry, error) { return v.entry, nil }

// StateID is the ID of the state the view was bound in.
func (v View) StateID() uuid.UUID { return v.state }

// Structure returns the owner's structure in the bound state.
func (v View) Structure() *classfile.Type { return v.structure }

// Methods returns the overloads a method view resolved to.
func (v View) Methods() []classfile.Method { return v.methods }

// Field returns the field a field view resolved to.
func (v View) Field() classfile.Field { return v.field }

// In checks that the view belongs to s.
func (v View) In(s *buildstate.State) error {
	if s == nil || s.ID != v.state {
		return &element.StateMismatchError{
			Op:     "view of " + v.desc.String(),
			Reason: fmt.Sprintf("bound to state %s", v.state),
		}
	}
	return nil
}

// ArtifactSource supplies compiled artifacts; binstore.Store satisfies it.
type ArtifactSource interface {
	Get(e element.Entry) ([]byte, error)
}

// Bind resolves ref in state s, reading structure from src. It does not
// modify s. A View bound to another state yields a StateMismatchError; an
// entity that does not exist in s yields a NotPresentError.
func Bind(ref Ref, s *buildstate.State, src ArtifactSource) (View, error) {
	if v, ok := ref.(View); ok {
		if err := v.In(s); err != nil {
			return View{}, err
		}
		return v, nil
	}
	d := ref.Descriptor()

	entry, ok := s.Entry(d.Owner)
	if !ok {
		return View{}, &element.NotPresentError{What: "type", Name: string(d.Owner)}
	}
	data, err := src.Get(entry)
	if err != nil {
		return View{}, element.Internal("bind "+d.String(), err)
	}
	structure, err := classfile.Decode(data)
	if err != nil {
		return View{}, element.Internal("bind "+d.String(), err)
	}

	v := View{desc: d, state: s.ID, entry: entry, structure: structure}
	switch d.Kind {
	case KindMethod:
		v.methods = structure.MethodsNamed(d.Name, d.Arity)
		if len(v.methods) == 0 {
			return View{}, &element.NotPresentError{What: "method", Name: d.String()}
		}
	case KindField:
		f, ok := structure.Field(d.Name)
		if !ok {
			return View{}, &element.NotPresentError{What: "field", Name: d.String()}
		}
		v.field = f
	}
	return v, nil
}
