package binstore

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Store kinds accepted by Open.
const (
	KindDir    = "dir"
	KindSQLite = "sqlite"
	KindBolt   = "bolt"
)

// Options selects and configures a store.
type Options struct {
	Kind string
	// Path is the output directory for KindDir and the database file
	// otherwise.
	Path             string
	Compress         bool
	ContentAddressed bool
	Log              logrus.FieldLogger
}

// Open builds the store described by o.
func Open(o Options) (Store, error) {
	if o.Log == nil {
		o.Log = discardLogger()
	}
	switch o.Kind {
	case KindDir, "":
		return NewDirStore(o.Path, WithCompression(o.Compress), WithDirLogger(o.Log))
	case KindSQLite, KindBolt:
		if err := os.MkdirAll(filepath.Dir(o.Path), 0o755); err != nil {
			return nil, errors.Wrap(err, "create store directory")
		}
		var (
			b   Broker
			err error
		)
		if o.Kind == KindSQLite {
			b, err = OpenSQLiteBroker(o.Path)
		} else {
			b, err = OpenBoltBroker(o.Path)
		}
		if err != nil {
			return nil, err
		}
		return NewBrokerStore(b, o.ContentAddressed, o.Log), nil
	}
	return nil, errors.Errorf("unknown store kind %q", o.Kind)
}
