package workqueue

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// TEST PLAN: Work Queue
//
// 1. Schedule deduplicates and preserves insertion order
// 2. MarkCompiled removes from pending; unscheduled units are tolerated
// 3. Rescheduling a compiled unit re-appends it and warns
// 4. Pending returns a copy that is safe to iterate while scheduling

func TestQueue_ScheduleOrder(t *testing.T) {
	t.Parallel()

	q := New(nil)
	assert.True(t, q.Schedule("b"))
	assert.True(t, q.Schedule("a"))
	assert.False(t, q.Schedule("b"))
	assert.True(t, q.Schedule("c"))

	assert.Equal(t, []element.UnitID{"b", "a", "c"}, q.Pending())
	assert.Equal(t, 3, q.Len())
	s, ok := q.Status("a")
	require.True(t, ok)
	assert.Equal(t, NeedsCompile, s)
}

func TestQueue_MarkCompiled(t *testing.T) {
	t.Parallel()

	q := New(nil)
	q.Schedule("a")
	q.Schedule("b")

	q.MarkCompiled("a")
	assert.Equal(t, []element.UnitID{"b"}, q.Pending())
	assert.True(t, q.IsCompiled("a"))

	q.MarkCompiled("never-scheduled")
	assert.True(t, q.IsCompiled("never-scheduled"))
	assert.Equal(t, []element.UnitID{"b"}, q.Pending())
	assert.Equal(t, 2, q.CompiledCount())
}

func TestQueue_Reschedule(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	q := New(logger)

	q.Schedule("a")
	q.MarkCompiled("a")
	assert.True(t, q.Schedule("a"))

	assert.Equal(t, []element.UnitID{"a"}, q.Pending())
	assert.Equal(t, 1, q.Rescheduled())
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, element.UnitID("a"), hook.LastEntry().Data["unit"])
}

func TestQueue_PendingIsCopy(t *testing.T) {
	t.Parallel()

	q := New(nil)
	q.Schedule("a")
	q.Schedule("b")

	var seen []element.UnitID
	for _, u := range q.Pending() {
		seen = append(seen, u)
		q.MarkCompiled(u)
		if u == "a" {
			q.Schedule("c")
		}
	}
	assert.Equal(t, []element.UnitID{"a", "b"}, seen)
	assert.Equal(t, []element.UnitID{"c"}, q.Pending())
}
