package pipeline

import (
	"strings"
	"time"
)

// Unit identifies one unit of archive work: a species at a site, optionally
// narrowed to a single instrument. Combined datasets leave Instrument empty.
type Unit struct {
	Network    string
	Species    string
	Site       string
	Instrument string
}

// String renders the unit for log lines and error messages
func (u Unit) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{u.Network, u.Species, u.Site} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	s := strings.Join(parts, " ")
	if u.Instrument != "" {
		if s != "" {
			s += " "
		}
		s += "(" + u.Instrument + ")"
	}
	return s
}

// Key returns a stable identifier for the unit, used as ledger key and for
// de-duplication within a run
func (u Unit) Key() string {
	return strings.ToLower(strings.Join([]string{u.Network, u.Species, u.Site, u.Instrument}, "/"))
}

// Status represents the outcome of one unit within a batch run
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Result records the outcome of one unit in a batch run. Failed results carry
// the failure category and message; recovered panics additionally carry the
// stack trace. The batch runner appends one Result per unit and never aborts
// on a unit failure.
type Result struct {
	Unit     Unit
	Status   Status
	Kind     Kind   // set when Status is StatusFailed
	Message  string // failure or skip reason
	Files    []string
	Stack    string // set when a panic was recovered
	Duration time.Duration
	Finished time.Time
}

// Failed reports whether the unit ended in failure
func (r Result) Failed() bool {
	return r.Status == StatusFailed
}

// OK builds a success result for the unit
func OK(unit Unit, files []string, d time.Duration) Result {
	return Result{
		Unit:     unit,
		Status:   StatusOK,
		Files:    files,
		Duration: d,
		Finished: time.Now().UTC(),
	}
}

// Skip builds a skipped result for the unit with the given reason
func Skip(unit Unit, reason string) Result {
	return Result{
		Unit:     unit,
		Status:   StatusSkipped,
		Message:  reason,
		Finished: time.Now().UTC(),
	}
}

// Fail builds a failed result for the unit from err, classifying it via
// KindOf
func Fail(unit Unit, err error, d time.Duration) Result {
	return Result{
		Unit:     unit,
		Status:   StatusFailed,
		Kind:     KindOf(err),
		Message:  err.Error(),
		Duration: d,
		Finished: time.Now().UTC(),
	}
}
