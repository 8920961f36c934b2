// Package snapshot persists build states in a versioned binary format:
//
//	magic      uint32  0x53544154 ("STAT")
//	version    uint16
//	fpLen      uint16
//	fp         [fpLen]byte   build-identity fingerprint
//	pool       section       deduplicated strings
//	packages   section
//	sources    section
//	types      section
//	problems   section
//	graph      section
//
// Every section is a uint32 big-endian length followed by a msgpack body.
// Bodies refer to strings by pool index. One reader exists per supported
// version; writing always emits CurrentVersion.
package snapshot

import (
	"errors"
	"fmt"
)

const (
	// Magic opens every snapshot file.
	Magic uint32 = 0x53544154

	// CurrentVersion is the version written by Encode.
	CurrentVersion uint16 = 6
)

// layout lists what a version carries beyond the common core.
type layout struct {
	fingerprints bool // structural entries carry fingerprints
	problemIDs   bool // problems carry catalog IDs
	subtypes     bool // graph section carries the subtype index
}

var layouts = map[uint16]layout{
	5: {},
	6: {fingerprints: true, problemIDs: true, subtypes: true},
}

// SupportedVersions lists the readable versions, oldest first.
func SupportedVersions() []uint16 { return []uint16{5, 6} }

// ErrMalformed matches any MalformedError via errors.Is.
var ErrMalformed = errors.New("malformed snapshot")

// MalformedError reports a snapshot that cannot be read. No state is
// constructed when it is returned.
type MalformedError struct {
	Reason string
	Err    error
}

func (e *MalformedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed snapshot: %s: %v", e.Reason, e.Err)
	}
	return "malformed snapshot: " + e.Reason
}

func (e *MalformedError) Unwrap() error { return e.Err }

func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func malformed(reason string, err error) error {
	return &MalformedError{Reason: reason, Err: err}
}
