// Package diagnostics holds the problems reported by the compiler front end
// and formats them per locale.
package diagnostics

import (
	"fmt"
	"sort"

	"github.com/mvp-joe/project-lathe/internal/element"
)

// Severity of a problem.
type Severity uint8

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	}
	return fmt.Sprintf("severity(%d)", uint8(s))
}

// Problem IDs known to the message catalog.
const (
	IDUnknown         = 0
	IDSyntaxError     = 1001
	IDUnresolvedType  = 1002
	IDDuplicateType   = 1003
	IDMissingAbstract = 1004
	IDUnresolvedSuper = 1005
	IDTypeMismatch    = 1006
	IDInternal        = 9001
)

// Problem is one diagnostic attached to the unit that produced it. Start and
// End are byte offsets; Line is 1-based.
type Problem struct {
	ID       int
	Severity Severity
	Message  string
	Args     []string
	Start    int
	End      int
	Line     int
	Source   element.UnitID
}

func (p Problem) String() string {
	return fmt.Sprintf("%s:%d: %s: %s", p.Source, p.Line, p.Severity, p.Message)
}

// IsError reports whether p has error severity.
func (p Problem) IsError() bool {
	return p.Severity == SeverityError
}

// Sort orders problems by source, line, start offset and ID.
func Sort(ps []Problem) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.ID < b.ID
	})
}

// CountErrors returns the number of error-severity problems.
func CountErrors(ps []Problem) int {
	n := 0
	for _, p := range ps {
		if p.IsError() {
			n++
		}
	}
	return n
}
