package snapshot

import (
	"bufio"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/mvp-joe/project-lathe/internal/buildstate"
)

// Save writes s to path atomically: the snapshot is written to a temp file
// in the same directory, synced and renamed over path. A failed save leaves
// any previous file untouched.
func Save(path string, s *buildstate.State) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "create state directory")
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	w := bufio.NewWriter(tmp)
	if err := Encode(w, s); err != nil {
		cleanup()
		return err
	}
	if err := w.Flush(); err != nil {
		cleanup()
		return errors.Wrap(err, "flush snapshot")
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.Wrap(err, "sync snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "close snapshot")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return errors.Wrap(err, "rename snapshot")
	}
	return nil
}

// Load reads the snapshot at path. A missing file returns an error
// satisfying os.IsNotExist; anything unreadable is a MalformedError.
func Load(path string) (*buildstate.State, uint16, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, err
		}
		return nil, 0, errors.Wrap(err, "open snapshot")
	}
	defer f.Close()
	return Decode(bufio.NewReader(f))
}
