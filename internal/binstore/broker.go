package binstore

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// Broker is a content-addressed artifact store shared by build states.
type Broker interface {
	Put(k Key, data []byte) error
	// Get returns the artifact for k; found is false when absent.
	Get(k Key) (data []byte, found bool, err error)
	// GarbageCollect deletes every key not in inUse and returns the deleted
	// keys.
	GarbageCollect(inUse map[Key]struct{}) ([]Key, error)
	Keys() ([]Key, error)
	Close() error
}

// BrokerStore adapts a Broker to Store. With content addressing off every
// artifact is stored under a zero fingerprint, so a type has one artifact.
type BrokerStore struct {
	broker           Broker
	contentAddressed bool
	log              logrus.FieldLogger
}

// NewBrokerStore wraps b. log may be nil.
func NewBrokerStore(b Broker, contentAddressed bool, log logrus.FieldLogger) *BrokerStore {
	if log == nil {
		log = discardLogger()
	}
	return &BrokerStore{broker: b, contentAddressed: contentAddressed, log: log}
}

func (s *BrokerStore) key(e element.Entry) Key {
	k := Key{Type: e.Type}
	if s.contentAddressed {
		k.Fingerprint = e.Fingerprint
	}
	return k
}

func (s *BrokerStore) Put(e element.Entry, data []byte) error {
	return s.broker.Put(s.key(e), data)
}

func (s *BrokerStore) Get(e element.Entry) ([]byte, error) {
	data, ok, err := s.broker.Get(s.key(e))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Delete is a no-op: brokers only collect garbage.
func (s *BrokerStore) Delete(element.TypeName) error { return nil }

// Scrub is a no-op: artifacts may be shared with other states.
func (s *BrokerStore) Scrub() error { return nil }

func (s *BrokerStore) GarbageCollect(live []EntrySource) (*GCReport, error) {
	inUse := make(map[Key]struct{})
	for _, src := range live {
		for _, e := range src.Entries() {
			inUse[s.key(e)] = struct{}{}
		}
	}
	deleted, err := s.broker.GarbageCollect(inUse)
	sortKeys(deleted)
	for _, k := range deleted {
		s.log.WithFields(logrus.Fields{"type": k.Type, "action": "collect"}).Debug("artifact collected")
	}
	return &GCReport{Live: len(inUse), Deleted: deleted}, err
}

func (s *BrokerStore) Keys() ([]Key, error) {
	keys, err := s.broker.Keys()
	sortKeys(keys)
	return keys, err
}

func (s *BrokerStore) Close() error { return s.broker.Close() }

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
