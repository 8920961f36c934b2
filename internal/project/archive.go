package project

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/pkg/errors"

	"github.com/mvp-joe/project-lathe/internal/classfile"
)

// ClassExt is the extension of type entries inside an archive.
const ClassExt = ".class"

// ReadArchive loads the binary types of a zip archive. Entries ending in
// ClassExt hold classfile-encoded types; everything else is skipped.
func ReadArchive(path string) ([]*classfile.Type, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open archive %s", path)
	}
	defer r.Close()

	var types []*classfile.Type
	for _, f := range r.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(f.Name, ClassExt) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, errors.Wrapf(err, "open %s in %s", f.Name, path)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read %s in %s", f.Name, path)
		}
		t, err := classfile.Decode(data)
		if err != nil {
			return nil, errors.Wrapf(err, "decode %s in %s", f.Name, path)
		}
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].Name < types[j].Name })
	return types, nil
}

// WriteArchive packages types into a zip archive at path, one entry per
// type named after its binary path.
func WriteArchive(path string, types []*classfile.Type) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create archive directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create archive %s", path)
	}
	sorted := append([]*classfile.Type(nil), types...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	w := zip.NewWriter(f)
	for _, t := range sorted {
		data, err := classfile.Encode(t)
		if err != nil {
			f.Close()
			return errors.Wrapf(err, "encode %s", t.Name)
		}
		entry, err := w.Create(t.Name.Path() + ClassExt)
		if err != nil {
			f.Close()
			return errors.Wrapf(err, "add %s", t.Name)
		}
		if _, err := entry.Write(data); err != nil {
			f.Close()
			return errors.Wrapf(err, "write %s", t.Name)
		}
	}
	if err := w.Close(); err != nil {
		f.Close()
		return errors.Wrap(err, "finish archive")
	}
	return errors.Wrap(f.Close(), "close archive")
}
