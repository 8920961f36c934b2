package handle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// TEST PLAN: Dual Handles
//
// 1. Descriptors are comparable values independent of any state
// 2. Bind resolves types, methods and fields in a state
// 3. Absent owner or member yields NotPresentError
// 4. Asking a descriptor for state data yields StateMismatchError
// 5. Rebinding a view to another state yields StateMismatchError
// 6. Store failures surface as InternalError
// 7. Bind never mutates the state
// 8. Parse reads what String writes and rejects malformed input

type memSource map[element.Entry][]byte

func (m memSource) Get(e element.Entry) ([]byte, error) {
	if b, ok := m[e]; ok {
		return b, nil
	}
	return nil, errors.New("missing artifact")
}

func fixture(t *testing.T) (*buildstate.State, memSource) {
	t.Helper()
	foo := &classfile.Type{
		Name: "a.Foo",
		Kind: classfile.KindClass,
		Methods: []classfile.Method{
			{Name: "run", Params: []string{"int"}, Return: "void"},
			{Name: "run", Params: []string{"long"}, Return: "void"},
			{Name: "stop", Return: "void"},
		},
		Fields: []classfile.Field{{Name: "count", Type: "int"}},
	}
	data, err := classfile.Encode(foo)
	require.NoError(t, err)

	s := buildstate.New(nil)
	e := element.Entry{Unit: "src/a/Foo.java", Type: "a.Foo", Fingerprint: classfile.Fingerprint(data)}
	s.Types[e.Type] = e
	return s, memSource{e: data}
}

func TestDescriptor_Identity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Method("a.Foo", "run", 1), Method("a.Foo", "run", 1))
	assert.NotEqual(t, Method("a.Foo", "run", 1), Method("a.Foo", "run", 2))
	assert.Equal(t, "a.Foo#run/1", Method("a.Foo", "run", 1).String())
	assert.Equal(t, "a.Foo#count", Field("a.Foo", "count").String())
	assert.Equal(t, "a.Foo", Type("a.Foo").String())
}

func TestBind_Resolves(t *testing.T) {
	t.Parallel()

	s, src := fixture(t)
	before := s.Entries()

	v, err := Bind(Type("a.Foo"), s, src)
	require.NoError(t, err)
	assert.Equal(t, s.ID, v.StateID())
	assert.Equal(t, element.TypeName("a.Foo"), v.Structure().Name)
	e, err := v.Entry()
	require.NoError(t, err)
	assert.Equal(t, "src/a/Foo.java", string(e.Unit))

	m, err := Bind(Method("a.Foo", "run", 1), s, src)
	require.NoError(t, err)
	assert.Len(t, m.Methods(), 2)

	f, err := Bind(Field("a.Foo", "count"), s, src)
	require.NoError(t, err)
	assert.Equal(t, "int", f.Field().Type)

	assert.Equal(t, before, s.Entries())
}

func TestBind_NotPresent(t *testing.T) {
	t.Parallel()

	s, src := fixture(t)
	cases := map[string]Descriptor{
		"owner":                  Type("a.Gone"),
		"method":                 Method("a.Foo", "run", 3),
		"field":                  Field("a.Foo", "missing"),
		"member of absent owner": Method("a.Gone", "run", 1),
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Bind(d, s, src)
			assert.ErrorIs(t, err, element.ErrNotPresent)
			var np *element.NotPresentError
			assert.ErrorAs(t, err, &np)
		})
	}
}

func TestDescriptor_StateDataMismatch(t *testing.T) {
	t.Parallel()

	_, err := Type("a.Foo").Entry()
	assert.ErrorIs(t, err, element.ErrStateMismatch)
}

func TestBind_ViewFromOtherState(t *testing.T) {
	t.Parallel()

	s, src := fixture(t)
	v, err := Bind(Type("a.Foo"), s, src)
	require.NoError(t, err)

	same, err := Bind(v, s, src)
	require.NoError(t, err)
	assert.Equal(t, v, same)

	other := s.Copy()
	_, err = Bind(v, other, src)
	assert.ErrorIs(t, err, element.ErrStateMismatch)
	assert.ErrorIs(t, v.In(other), element.ErrStateMismatch)

	// The descriptor itself rebinds fine.
	rebound, err := Bind(v.Descriptor(), other, src)
	require.NoError(t, err)
	assert.Equal(t, other.ID, rebound.StateID())
}

func TestBind_StoreFailureIsInternal(t *testing.T) {
	t.Parallel()

	s, _ := fixture(t)
	_, err := Bind(Type("a.Foo"), s, memSource{})
	var ie *element.InternalError
	require.ErrorAs(t, err, &ie)
	assert.NotNil(t, ie.Cause())
}

func TestParse(t *testing.T) {
	t.Parallel()

	for _, d := range []Descriptor{
		Type("a.Foo"),
		Method("a.Foo", "run", 1),
		Method("a.Foo", "stop", 0),
		Field("a.Foo", "count"),
	} {
		got, err := Parse(d.String())
		require.NoError(t, err, d.String())
		assert.Equal(t, d, got)
	}

	for _, bad := range []string{"", "#run/1", "a.Foo#", "a.Foo#run/x", "a.Foo#run/-1", "a.Foo#a.b", "src/a/Foo.java"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, ErrSyntax, bad)
	}
}
