// Package binstore persists compiled artifacts and garbage-collects those no
// live build state references.
//
// Two strategies exist: DirStore, a scrubbable directory tree holding one
// artifact per type, and BrokerStore, which delegates to a content-addressed
// Broker keyed by type and fingerprint. Brokers cannot delete single
// artifacts; they only collect garbage.
package binstore

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// ErrNotFound is returned by Get when no artifact exists for an entry.
var ErrNotFound = errors.New("artifact not found")

// Key addresses one artifact in a broker.
type Key struct {
	Type        element.TypeName
	Fingerprint uint32
}

func (k Key) String() string {
	return fmt.Sprintf("%s@%08x", k.Type, k.Fingerprint)
}

// EntrySource is anything exposing a structural table, typically a
// committed build state.
type EntrySource interface {
	Entries() []element.Entry
}

// Store is where compiled artifacts live.
type Store interface {
	// Put stores the artifact of e, replacing any previous one.
	Put(e element.Entry, data []byte) error
	// Get returns the artifact of e or ErrNotFound.
	Get(e element.Entry) ([]byte, error)
	// Delete removes every artifact of t. Broker-backed stores ignore it.
	Delete(t element.TypeName) error
	// GarbageCollect discards every artifact not reachable from the
	// structural table of one of the live states.
	GarbageCollect(live []EntrySource) (*GCReport, error)
	// Scrub removes every artifact. Broker-backed stores ignore it.
	Scrub() error
	// Keys lists the stored artifacts, sorted.
	Keys() ([]Key, error)
	Close() error
}

// GCReport summarizes one collection.
type GCReport struct {
	Live    int   // keys referenced by live states
	Deleted []Key // artifacts removed
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].Fingerprint < keys[j].Fingerprint
	})
}
