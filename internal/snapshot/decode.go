package snapshot

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/google/uuid"

	"github.com/mvp-joe/project-lathe/internal/buildstate"
	"github.com/mvp-joe/project-lathe/internal/depgraph"
	"github.com/mvp-joe/project-lathe/internal/diagnostics"
	"github.com/mvp-joe/project-lathe/internal/element"
)

// Decode reads a snapshot and returns the state with the version it was
// written in. The state ID is derived from the snapshot bytes, so loading
// the same file twice yields the same ID. Any defect yields a
// MalformedError and no state.
func Decode(r io.Reader) (*buildstate.State, uint16, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, malformed("read", err)
	}
	in := bytes.NewReader(data)

	var head [8]byte
	if _, err := io.ReadFull(in, head[:]); err != nil {
		return nil, 0, malformed("header", err)
	}
	if m := binary.BigEndian.Uint32(head[0:4]); m != Magic {
		return nil, 0, malformed("bad magic", nil)
	}
	version := binary.BigEndian.Uint16(head[4:6])
	lay, ok := layouts[version]
	if !ok {
		return nil, version, malformed("unsupported version", nil)
	}
	fp := make([]byte, binary.BigEndian.Uint16(head[6:8]))
	if _, err := io.ReadFull(in, fp); err != nil {
		return nil, version, malformed("fingerprint", err)
	}

	poolBody, err := readSection(in, "pool")
	if err != nil {
		return nil, version, err
	}
	strings, err := decodePool(poolBody)
	if err != nil {
		return nil, version, err
	}

	var bodies [5][]byte
	for i, name := range sectionNames {
		if bodies[i], err = readSection(in, name); err != nil {
			return nil, version, err
		}
	}
	if in.Len() != 0 {
		return nil, version, malformed("trailing bytes after last section", nil)
	}

	s := buildstate.New(fp)
	s.ID = uuid.NewSHA1(uuid.NameSpaceOID, data)
	steps := []func(*decoder) error{
		func(d *decoder) error { return decodePackages(d, s) },
		func(d *decoder) error { return decodeSources(d, s) },
		func(d *decoder) error { return decodeTypes(d, s, lay) },
		func(d *decoder) error { return decodeProblems(d, s, lay) },
		func(d *decoder) error { return decodeGraph(d, s, lay) },
	}
	for i, step := range steps {
		d := newDecoder(bodies[i], strings, sectionNames[i])
		if err := step(d); err != nil {
			return nil, version, err
		}
		if err := d.done(); err != nil {
			return nil, version, err
		}
	}
	return s, version, nil
}

func readSection(in *bytes.Reader, name string) ([]byte, error) {
	var frame [4]byte
	if _, err := io.ReadFull(in, frame[:]); err != nil {
		return nil, malformed(name+": section length", err)
	}
	n := binary.BigEndian.Uint32(frame[:])
	if int64(n) > int64(in.Len()) {
		return nil, malformed(name+": section exceeds file", nil)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(in, body); err != nil {
		return nil, malformed(name+": section body", err)
	}
	return body, nil
}

func decodePool(body []byte) ([]string, error) {
	d := newDecoder(body, nil, "pool")
	n, err := d.length("entries")
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		if out[i], err = d.DecodeString(); err != nil {
			return nil, d.fail("entry", err)
		}
	}
	return out, d.done()
}

func decodePackages(d *decoder, s *buildstate.State) error {
	n, err := d.mapLength("packages")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		pkg, err := d.ref()
		if err != nil {
			return err
		}
		m, err := d.length("fragments")
		if err != nil {
			return err
		}
		frags := make([]string, m)
		for j := range frags {
			if frags[j], err = d.ref(); err != nil {
				return err
			}
		}
		s.Packages[element.PackageName(pkg)] = frags
	}
	return nil
}

func decodeSources(d *decoder, s *buildstate.State) error {
	n, err := d.mapLength("packages")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		pkg, err := d.ref()
		if err != nil {
			return err
		}
		m, err := d.mapLength("files")
		if err != nil {
			return err
		}
		files := make(map[string]buildstate.SourceEntry, m)
		for j := 0; j < m; j++ {
			// Older writers keyed source files by base name; entries are
			// re-keyed by path.
			if _, err := d.ref(); err != nil {
				return err
			}
			var e buildstate.SourceEntry
			if e.Path, err = d.ref(); err != nil {
				return err
			}
			kind, err := d.DecodeUint8()
			if err != nil {
				return d.fail("source kind", err)
			}
			e.Kind = buildstate.SourceKind(kind)
			if e.Hash, err = d.DecodeBytes(); err != nil {
				return d.fail("source hash", err)
			}
			files[e.Path] = e
		}
		s.Sources[element.PackageName(pkg)] = files
	}
	return nil
}

func decodeTypes(d *decoder, s *buildstate.State, lay layout) error {
	n, err := d.length("entries")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		var e element.Entry
		t, err := d.ref()
		if err != nil {
			return err
		}
		u, err := d.ref()
		if err != nil {
			return err
		}
		e.Type, e.Unit = element.TypeName(t), element.UnitID(u)
		if lay.fingerprints {
			if e.Fingerprint, err = d.DecodeUint32(); err != nil {
				return d.fail("fingerprint", err)
			}
		}
		s.Types[e.Type] = e
	}
	return nil
}

func decodeProblems(d *decoder, s *buildstate.State, lay layout) error {
	n, err := d.length("problems")
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		var p diagnostics.Problem
		if lay.problemIDs {
			if p.ID, err = d.integer("problem id"); err != nil {
				return err
			}
		}
		sev, err := d.DecodeUint8()
		if err != nil {
			return d.fail("severity", err)
		}
		p.Severity = diagnostics.Severity(sev)
		if p.Message, err = d.ref(); err != nil {
			return err
		}
		m, err := d.length("arguments")
		if err != nil {
			return err
		}
		if m > 0 {
			p.Args = make([]string, m)
			for j := range p.Args {
				if p.Args[j], err = d.ref(); err != nil {
					return err
				}
			}
		}
		if p.Start, err = d.integer("start"); err != nil {
			return err
		}
		if p.End, err = d.integer("end"); err != nil {
			return err
		}
		if p.Line, err = d.integer("line"); err != nil {
			return err
		}
		src, err := d.ref()
		if err != nil {
			return err
		}
		p.Source = element.UnitID(src)
		s.Problems = append(s.Problems, p)
	}
	return nil
}

func decodeGraph(d *decoder, s *buildstate.State, lay layout) error {
	n, err := d.length("nodes")
	if err != nil {
		return err
	}
	exp := &depgraph.Export{Nodes: make([]depgraph.ExportNode, n)}
	for i := range exp.Nodes {
		node := &exp.Nodes[i]
		kind, err := d.DecodeUint8()
		if err != nil {
			return d.fail("node kind", err)
		}
		if kind < uint8(depgraph.KindUnit) || kind > uint8(depgraph.KindArchive) {
			return d.fail("unknown node kind", nil)
		}
		name, err := d.ref()
		if err != nil {
			return err
		}
		node.Key = depgraph.Key{Kind: depgraph.NodeKind(kind), Name: name}

		deps, err := d.length("dependencies")
		if err != nil {
			return err
		}
		node.Dependencies = make([]int, deps)
		for j := range node.Dependencies {
			if node.Dependencies[j], err = d.integer("dependency"); err != nil {
				return err
			}
		}
		if node.Types, err = decodeTypeList(d, "declared types"); err != nil {
			return err
		}
		refs, err := d.length("references")
		if err != nil {
			return err
		}
		node.References = make([]string, refs)
		for j := range node.References {
			if node.References[j], err = d.ref(); err != nil {
				return err
			}
		}
	}
	if lay.subtypes {
		links, err := d.length("subtype index")
		if err != nil {
			return err
		}
		exp.Supertypes = make([]depgraph.SupertypeLink, links)
		for i := range exp.Supertypes {
			t, err := d.ref()
			if err != nil {
				return err
			}
			exp.Supertypes[i].Type = element.TypeName(t)
			if exp.Supertypes[i].Supers, err = decodeTypeList(d, "supertypes"); err != nil {
				return err
			}
		}
	}
	g, err := depgraph.Import(exp)
	if err != nil {
		return d.fail("graph", err)
	}
	s.Graph = g
	return nil
}

func decodeTypeList(d *decoder, what string) ([]element.TypeName, error) {
	n, err := d.length(what)
	if err != nil {
		return nil, err
	}
	out := make([]element.TypeName, n)
	for i := range out {
		t, err := d.ref()
		if err != nil {
			return nil, err
		}
		out[i] = element.TypeName(t)
	}
	return out, nil
}
