package snapshot

import (
	"encoding/binary"
	"io"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/depgraph"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// Encode writes s in the current version.
func Encode(w io.Writer, s *buildstate.State) error {
	return encodeVersion(w, s, CurrentVersion)
}

func encodeVersion(w io.Writer, s *buildstate.State, version uint16) error {
	lay, ok := layouts[version]
	if !ok {
		return errors.Errorf("cannot write snapshot version %d", version)
	}
	if len(s.Fingerprint) > math.MaxUint16 {
		return errors.Errorf("build fingerprint too long (%d bytes)", len(s.Fingerprint))
	}

	// Sections first so the pool is complete before it is written.
	p := newPool()
	sections := [][]byte{
		encodePackages(p, s),
		encodeSources(p, s),
		encodeTypes(p, s, lay),
		encodeProblems(p, s, lay),
		encodeGraph(p, s.Graph, lay),
	}

	poolRec := newRecord()
	poolRec.EncodeArrayLen(len(p.strings))
	for _, str := range p.strings {
		poolRec.EncodeString(str)
	}

	header := make([]byte, 0, 8+len(s.Fingerprint))
	header = binary.BigEndian.AppendUint32(header, Magic)
	header = binary.BigEndian.AppendUint16(header, version)
	header = binary.BigEndian.AppendUint16(header, uint16(len(s.Fingerprint)))
	header = append(header, s.Fingerprint...)
	if _, err := w.Write(header); err != nil {
		return errors.Wrap(err, "write snapshot header")
	}
	if err := writeSection(w, poolRec.Bytes()); err != nil {
		return errors.Wrap(err, "write constant pool")
	}
	for i, body := range sections {
		if err := writeSection(w, body); err != nil {
			return errors.Wrapf(err, "write section %s", sectionNames[i])
		}
	}
	return nil
}

var sectionNames = []string{"packages", "sources", "types", "problems", "graph"}

func writeSection(w io.Writer, body []byte) error {
	if uint64(len(body)) > math.MaxUint32 {
		return errors.New("section too large")
	}
	var frame [4]byte
	binary.BigEndian.PutUint32(frame[:], uint32(len(body)))
	if _, err := w.Write(frame[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func sortedPackages[V any](m map[element.PackageName]V) []element.PackageName {
	out := make([]element.PackageName, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func encodePackages(p *pool, s *buildstate.State) []byte {
	r := newRecord()
	r.EncodeMapLen(len(s.Packages))
	for _, pkg := range sortedPackages(s.Packages) {
		r.encodeRef(p, string(pkg))
		frags := s.Packages[pkg]
		r.EncodeArrayLen(len(frags))
		for _, f := range frags {
			r.encodeRef(p, f)
		}
	}
	return r.Bytes()
}

func encodeSources(p *pool, s *buildstate.State) []byte {
	r := newRecord()
	r.EncodeMapLen(len(s.Sources))
	for _, pkg := range sortedPackages(s.Sources) {
		files := s.Sources[pkg]
		names := make([]string, 0, len(files))
		for n := range files {
			names = append(names, n)
		}
		sort.Strings(names)

		r.encodeRef(p, string(pkg))
		r.EncodeMapLen(len(files))
		for _, n := range names {
			e := files[n]
			r.encodeRef(p, n)
			r.encodeRef(p, e.Path)
			r.EncodeUint8(uint8(e.Kind))
			r.EncodeBytes(e.Hash)
		}
	}
	return r.Bytes()
}

func encodeTypes(p *pool, s *buildstate.State, lay layout) []byte {
	r := newRecord()
	entries := s.Entries()
	r.EncodeArrayLen(len(entries))
	for _, e := range entries {
		r.encodeRef(p, string(e.Type))
		r.encodeRef(p, string(e.Unit))
		if lay.fingerprints {
			r.EncodeUint32(e.Fingerprint)
		}
	}
	return r.Bytes()
}

func encodeProblems(p *pool, s *buildstate.State, lay layout) []byte {
	r := newRecord()
	r.EncodeArrayLen(len(s.Problems))
	for _, pr := range s.Problems {
		if lay.problemIDs {
			r.EncodeInt(int64(pr.ID))
		}
		r.EncodeUint8(uint8(pr.Severity))
		r.encodeRef(p, pr.Message)
		r.EncodeArrayLen(len(pr.Args))
		for _, a := range pr.Args {
			r.encodeRef(p, a)
		}
		r.EncodeInt(int64(pr.Start))
		r.EncodeInt(int64(pr.End))
		r.EncodeInt(int64(pr.Line))
		r.encodeRef(p, string(pr.Source))
	}
	return r.Bytes()
}

func encodeGraph(p *pool, g *depgraph.Graph, lay layout) []byte {
	r := newRecord()
	exp := g.Export()
	r.EncodeArrayLen(len(exp.Nodes))
	for _, n := range exp.Nodes {
		r.EncodeUint8(uint8(n.Key.Kind))
		r.encodeRef(p, n.Key.Name)
		r.EncodeArrayLen(len(n.Dependencies))
		for _, d := range n.Dependencies {
			r.EncodeInt(int64(d))
		}
		r.EncodeArrayLen(len(n.Types))
		for _, t := range n.Types {
			r.encodeRef(p, string(t))
		}
		r.EncodeArrayLen(len(n.References))
		for _, ref := range n.References {
			r.encodeRef(p, ref)
		}
	}
	if lay.subtypes {
		r.EncodeArrayLen(len(exp.Supertypes))
		for _, l := range exp.Supertypes {
			r.encodeRef(p, string(l.Type))
			r.EncodeArrayLen(len(l.Supers))
			for _, s := range l.Supers {
				r.encodeRef(p, string(s))
			}
		}
	}
	return r.Bytes()
}
