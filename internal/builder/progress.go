package builder

import "errors"

// ErrCancelled is returned when a pass is cancelled through its Progress or
// context. The previously committed state remains authoritative.
var ErrCancelled = errors.New("build cancelled")

// Progress receives progress reports and answers cancellation checks. It is
// consulted after classpath analysis, after each compiled unit and before
// the new state is returned.
type Progress interface {
	Begin(total int)
	Worked(amount int)
	SubTask(label string)
	IsCancelled() bool
}

// NopProgress reports nothing and never cancels.
type NopProgress struct{}

func (NopProgress) Begin(int)         {}
func (NopProgress) Worked(int)        {}
func (NopProgress) SubTask(string)    {}
func (NopProgress) IsCancelled() bool { return false }
