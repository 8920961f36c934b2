package builder

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Resource is a non-source file under a source root that is copied to the
// output unchanged.
type Resource struct {
	// Path is the destination relative to the resource directory.
	Path string
	// File is the absolute location of the original.
	File string
}

// copyResources mirrors every resource whose content differs from the
// copy already in the resource directory.
func (p *pass) copyResources() error {
	if p.opts.ResourceDir == "" || len(p.in.Resources) == 0 {
		return nil
	}
	p.opts.Progress.SubTask("copying resources")
	for _, r := range p.in.Resources {
		data, err := os.ReadFile(r.File)
		if err != nil {
			return errors.Wrapf(err, "read resource %s", r.File)
		}
		dest := filepath.Join(p.opts.ResourceDir, filepath.FromSlash(r.Path))
		if cur, err := os.ReadFile(dest); err == nil && bytes.Equal(cur, data) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errors.Wrap(err, "create resource directory")
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return errors.Wrapf(err, "write resource %s", dest)
		}
		p.report.Resources++
		p.log.WithFields(logrus.Fields{"resource": r.Path}).Debug("resource copied")
	}
	return nil
}
