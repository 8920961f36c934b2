// Package workqueue tracks the compilation units of one build pass and
// whether each still needs compiling.
package workqueue

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// Status of a unit in the queue.
type Status uint8

const (
	NeedsCompile Status = iota + 1
	Compiled
)

func (s Status) String() string {
	switch s {
	case NeedsCompile:
		return "needs-compile"
	case Compiled:
		return "compiled"
	}
	return "unknown"
}

// Queue is an insertion-ordered set of units pending compilation. It is
// owned by one single-threaded pass.
type Queue struct {
	status      map[element.UnitID]Status
	pending     []element.UnitID
	rescheduled int
	log         logrus.FieldLogger
}

// New creates an empty queue logging through log (nil discards).
func New(log logrus.FieldLogger) *Queue {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Queue{status: make(map[element.UnitID]Status), log: log}
}

// Schedule queues u for compilation. Scheduling a pending unit is a no-op;
// scheduling a compiled unit queues it again and logs a warning. Reports
// whether u was appended to the pending list.
func (q *Queue) Schedule(u element.UnitID) bool {
	switch q.status[u] {
	case NeedsCompile:
		return false
	case Compiled:
		q.rescheduled++
		q.log.WithFields(logrus.Fields{"unit": u, "action": "reschedule"}).Warn("unit compiled earlier in this pass is compiled again")
	}
	q.status[u] = NeedsCompile
	q.pending = append(q.pending, u)
	return true
}

// MarkCompiled records u as compiled and drops it from the pending list.
// Units that were never scheduled are recorded as compiled.
func (q *Queue) MarkCompiled(u element.UnitID) {
	if q.status[u] == NeedsCompile {
		for i, p := range q.pending {
			if p == u {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
	}
	q.status[u] = Compiled
}

// Pending returns a copy of the units still needing compilation in the
// order they were scheduled.
func (q *Queue) Pending() []element.UnitID {
	return append([]element.UnitID{}, q.pending...)
}

// Len returns the number of pending units.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Status returns the status of u and whether it was ever seen.
func (q *Queue) Status(u element.UnitID) (Status, bool) {
	s, ok := q.status[u]
	return s, ok
}

// IsCompiled reports whether u has been compiled in this pass.
func (q *Queue) IsCompiled(u element.UnitID) bool {
	return q.status[u] == Compiled
}

// CompiledCount returns how many distinct units have been compiled.
func (q *Queue) CompiledCount() int {
	n := 0
	for _, s := range q.status {
		if s == Compiled {
			n++
		}
	}
	return n
}

// Rescheduled returns how many times a compiled unit was queued again.
func (q *Queue) Rescheduled() int {
	return q.rescheduled
}
