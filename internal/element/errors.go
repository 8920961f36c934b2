package element

import (
	"errors"
	"fmt"
)

// ErrNotPresent matches any NotPresentError via errors.Is.
var ErrNotPresent = errors.New("element not present")

// ErrStateMismatch matches any StateMismatchError via errors.Is.
var ErrStateMismatch = errors.New("state mismatch")

// NotPresentError reports that a reference was resolved against a state in
// which the entity does not exist. Callers resolving handles are expected to
// treat the entity as absent.
type NotPresentError struct {
	What string // e.g. "type", "method", "field", "unit"
	Name string
}

func (e *NotPresentError) Error() string {
	return fmt.Sprintf("%s %s not present", e.What, e.Name)
}

func (e *NotPresentError) Is(target error) bool {
	return target == ErrNotPresent
}

// StateMismatchError reports a state-bound operation invoked on a
// state-independent reference, or a reference bound to a different state.
// It indicates a programming error in the caller.
type StateMismatchError struct {
	Op     string
	Reason string
}

func (e *StateMismatchError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

func (e *StateMismatchError) Is(target error) bool {
	return target == ErrStateMismatch
}

// InternalError wraps a lower-level failure the builder cannot recover from
// (I/O, malformed data). It aborts the current build pass; the previously
// committed state stays valid.
type InternalError struct {
	Op  string
	Err error
}

// Internal wraps err as an InternalError for op. Returns nil for nil err and
// leaves an existing InternalError untouched.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	var ie *InternalError
	if errors.As(err, &ie) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("internal error during %s: %v", e.Op, e.Err)
}

// Cause returns the original failure.
func (e *InternalError) Cause() error { return e.Err }

func (e *InternalError) Unwrap() error { return e.Err }
