package binstore

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/project-lathe/internal/element"
)

const (
	artifactExt   = ".class"
	compressedExt = ".class.zst"
	tempDirName   = ".tmp"
)

// DirStore keeps one artifact per type under
// <root>/<package path>/<Simple>.class, optionally zstd compressed.
type DirStore struct {
	root     string
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
	log      logrus.FieldLogger
}

// DirOption configures a DirStore.
type DirOption func(*DirStore)

// WithCompression stores artifacts zstd compressed.
func WithCompression(on bool) DirOption {
	return func(s *DirStore) { s.compress = on }
}

// WithDirLogger sets the logger.
func WithDirLogger(log logrus.FieldLogger) DirOption {
	return func(s *DirStore) { s.log = log }
}

// NewDirStore opens (creating if needed) a directory store.
func NewDirStore(root string, opts ...DirOption) (*DirStore, error) {
	s := &DirStore{root: root, log: discardLogger()}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(filepath.Join(root, tempDirName), 0o755); err != nil {
		return nil, errors.Wrap(err, "create output directory")
	}
	var err error
	if s.enc, err = zstd.NewWriter(nil); err != nil {
		return nil, errors.Wrap(err, "create zstd encoder")
	}
	if s.dec, err = zstd.NewReader(nil); err != nil {
		return nil, errors.Wrap(err, "create zstd decoder")
	}
	return s, nil
}

// Root returns the output directory.
func (s *DirStore) Root() string { return s.root }

func (s *DirStore) pathFor(t element.TypeName, compressed bool) string {
	ext := artifactExt
	if compressed {
		ext = compressedExt
	}
	return filepath.Join(s.root, filepath.FromSlash(t.Path())+ext)
}

// Put writes the artifact atomically (temp file + rename). A stale copy in
// the other encoding is removed.
func (s *DirStore) Put(e element.Entry, data []byte) error {
	final := s.pathFor(e.Type, s.compress)
	if s.compress {
		data = s.enc.EncodeAll(data, make([]byte, 0, len(data)))
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return errors.Wrapf(err, "create directory for %s", e.Type)
	}
	tmp, err := os.CreateTemp(filepath.Join(s.root, tempDirName), "artifact-*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", e.Type)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "write %s", e.Type)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "close %s", e.Type)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrapf(err, "rename %s", e.Type)
	}
	if err := os.Remove(s.pathFor(e.Type, !s.compress)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "remove stale %s", e.Type)
	}
	return nil
}

// Get reads the artifact of e in either encoding.
func (s *DirStore) Get(e element.Entry) ([]byte, error) {
	data, err := os.ReadFile(s.pathFor(e.Type, false))
	if err == nil {
		return data, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "read %s", e.Type)
	}
	data, err = os.ReadFile(s.pathFor(e.Type, true))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", e.Type)
	}
	out, err := s.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "decompress %s", e.Type)
	}
	return out, nil
}

// Delete removes the artifact of t in both encodings.
func (s *DirStore) Delete(t element.TypeName) error {
	var result error
	for _, p := range []string{s.pathFor(t, false), s.pathFor(t, true)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, errors.Wrapf(err, "delete %s", t))
		}
	}
	return result
}

// walk visits every artifact file with the type it stores.
func (s *DirStore) walk(fn func(path string, t element.TypeName) error) error {
	return filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == tempDirName {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		var stem string
		switch {
		case strings.HasSuffix(rel, compressedExt):
			stem = strings.TrimSuffix(rel, compressedExt)
		case strings.HasSuffix(rel, artifactExt):
			stem = strings.TrimSuffix(rel, artifactExt)
		default:
			return nil
		}
		return fn(p, element.TypeName(strings.ReplaceAll(stem, "/", ".")))
	})
}

// Keys lists stored types. Directory artifacts carry no fingerprint.
func (s *DirStore) Keys() ([]Key, error) {
	seen := make(map[element.TypeName]struct{})
	err := s.walk(func(_ string, t element.TypeName) error {
		seen[t] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "list artifacts")
	}
	keys := make([]Key, 0, len(seen))
	for t := range seen {
		keys = append(keys, Key{Type: t})
	}
	sortKeys(keys)
	return keys, nil
}

// GarbageCollect removes artifacts of types no live state names and prunes
// empty directories. Failures are collected, not fatal.
func (s *DirStore) GarbageCollect(live []EntrySource) (*GCReport, error) {
	keep := make(map[element.TypeName]struct{})
	for _, src := range live {
		for _, e := range src.Entries() {
			keep[e.Type] = struct{}{}
		}
	}
	report := &GCReport{Live: len(keep)}
	var result error
	err := s.walk(func(p string, t element.TypeName) error {
		if _, ok := keep[t]; ok {
			return nil
		}
		if err := os.Remove(p); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "collect %s", t))
			return nil
		}
		report.Deleted = append(report.Deleted, Key{Type: t})
		s.log.WithFields(logrus.Fields{"type": t, "action": "collect"}).Debug("artifact collected")
		return nil
	})
	if err != nil {
		result = multierror.Append(result, errors.Wrap(err, "walk output directory"))
	}
	if err := s.pruneEmptyDirs(); err != nil {
		result = multierror.Append(result, err)
	}
	sortKeys(report.Deleted)
	return report, result
}

// Scrub removes every artifact and directory below the root.
func (s *DirStore) Scrub() error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return errors.Wrap(err, "scrub output directory")
	}
	var result error
	for _, e := range entries {
		if e.Name() == tempDirName {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			result = multierror.Append(result, errors.Wrapf(err, "scrub %s", e.Name()))
		}
	}
	return result
}

func (s *DirStore) pruneEmptyDirs() error {
	var dirs []string
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && p != s.root {
			if d.Name() == tempDirName {
				return filepath.SkipDir
			}
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "prune output directory")
	}
	// Deepest first.
	for i := len(dirs) - 1; i >= 0; i-- {
		if entries, err := os.ReadDir(dirs[i]); err == nil && len(entries) == 0 {
			os.Remove(dirs[i])
		}
	}
	return nil
}

// Close releases the codec resources.
func (s *DirStore) Close() error {
	s.dec.Close()
	return s.enc.Close()
}
