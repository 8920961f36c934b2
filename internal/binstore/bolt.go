package binstore

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/mvp-joe/project-lathe/internal/element"
)

var artifactsBucket = []byte("artifacts")

// BoltBroker stores artifacts in a bbolt file. Keys are the type name, a
// zero byte and the big-endian fingerprint.
type BoltBroker struct {
	db *bolt.DB
}

// OpenBoltBroker opens (creating if needed) the bbolt file at path.
func OpenBoltBroker(path string) (*BoltBroker, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open artifact database")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(artifactsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create artifacts bucket")
	}
	return &BoltBroker{db: db}, nil
}

func encodeKey(k Key) []byte {
	out := make([]byte, 0, len(k.Type)+5)
	out = append(out, k.Type...)
	out = append(out, 0)
	return binary.BigEndian.AppendUint32(out, k.Fingerprint)
}

func decodeKey(raw []byte) (Key, error) {
	i := bytes.IndexByte(raw, 0)
	if i < 0 || len(raw)-i-1 != 4 {
		return Key{}, errors.Errorf("malformed artifact key %q", raw)
	}
	return Key{
		Type:        element.TypeName(raw[:i]),
		Fingerprint: binary.BigEndian.Uint32(raw[i+1:]),
	}, nil
}

func (b *BoltBroker) Put(k Key, data []byte) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(artifactsBucket).Put(encodeKey(k), data)
	})
	return errors.Wrapf(err, "put %s", k)
}

func (b *BoltBroker) Get(k Key) ([]byte, bool, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(artifactsBucket).Get(encodeKey(k)); v != nil {
			// Values are only valid inside the transaction.
			out = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", k)
	}
	return out, out != nil, nil
}

func (b *BoltBroker) Keys() ([]Key, error) {
	var keys []Key
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(artifactsBucket).ForEach(func(raw, _ []byte) error {
			k, err := decodeKey(raw)
			if err != nil {
				return err
			}
			keys = append(keys, k)
			return nil
		})
	})
	return keys, errors.Wrap(err, "list artifacts")
}

// GarbageCollect deletes unreferenced keys in one write transaction.
func (b *BoltBroker) GarbageCollect(inUse map[Key]struct{}) ([]Key, error) {
	var doomed []Key
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(artifactsBucket)
		// Deleting inside ForEach is not allowed; collect first.
		var raws [][]byte
		err := bucket.ForEach(func(raw, _ []byte) error {
			k, err := decodeKey(raw)
			if err != nil {
				return err
			}
			if _, ok := inUse[k]; !ok {
				raws = append(raws, append([]byte{}, raw...))
				doomed = append(doomed, k)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, raw := range raws {
			if err := bucket.Delete(raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "collect artifacts")
	}
	return doomed, nil
}

func (b *BoltBroker) Close() error {
	return b.db.Close()
}
