package builder

import (
	"github.com/mvp-joe/project-lathe/internal/binstore"
	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/classfile"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// RebuildHierarchy restores the subtype index of a state read from a
// snapshot format that does not record it, by decoding every artifact of
// the structural table. Archive types are restored by the next pass's
// classpath analysis.
func RebuildHierarchy(s *buildstate.State, store binstore.Store) error {
	for _, e := range s.Entries() {
		data, err := store.Get(e)
		if err != nil {
			return element.Internal("rebuild hierarchy of "+string(e.Type), err)
		}
		t, err := classfile.Decode(data)
		if err != nil {
			return element.Internal("rebuild hierarchy of "+string(e.Type), err)
		}
		s.Graph.SetSupertypes(e.Type, t.Supertypes())
	}
	return nil
}
