package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure so callers can react to the category
// without parsing message text
type Kind string

const (
	// KindNotFound indicates a raw data source could not be located, or that
	// the match was ambiguous (several files matched a pattern that must
	// identify exactly one)
	KindNotFound Kind = "not_found"

	// KindMalformedInput indicates a located source was structurally invalid:
	// missing variables or columns, unparseable timestamps, truncated rows
	KindMalformedInput Kind = "malformed_input"

	// KindDuplicateTimestamp indicates repeated timestamps within a single
	// instrument record after UTC conversion
	KindDuplicateTimestamp Kind = "duplicate_timestamp"

	// KindUnknownInstrument indicates an instrument name absent from the
	// instrument registry
	KindUnknownInstrument Kind = "unknown_instrument"

	// KindConfiguration indicates missing or inconsistent configuration
	// tables for a requested operation
	KindConfiguration Kind = "configuration"

	// KindEmptyEpoch indicates an instrument epoch that selected zero samples
	KindEmptyEpoch Kind = "empty_epoch"

	// KindScaleMismatch indicates instruments resolved to different
	// calibration scales at combination time
	KindScaleMismatch Kind = "scale_mismatch"

	// KindMisalignedBaseline indicates the combined baseline record ended up
	// on a different time grid than the combined data record
	KindMisalignedBaseline Kind = "misaligned_baseline"

	// KindValidation indicates a dataset invariant violation detected before
	// output (non-monotonic time, length mismatch)
	KindValidation Kind = "validation"

	// KindInternal is the fallback category for errors that carry no Kind,
	// including recovered panics
	KindInternal Kind = "internal"
)

// Error is the failure type produced throughout the pipeline. It carries the
// failure category and the identity of the unit being processed, so batch
// reports can be assembled without string parsing. It supports errors.Is
// matching against sentinel values like &Error{Kind: KindNotFound}.
type Error struct {
	Kind Kind
	Unit Unit
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if u := e.Unit.String(); u != "" {
		msg = fmt.Sprintf("%s: %s", u, msg)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches target against this error. A target *Error matches when its
// Kind is empty or equal, and each of its non-empty Unit fields is equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	for _, f := range [][2]string{
		{t.Unit.Network, e.Unit.Network},
		{t.Unit.Species, e.Unit.Species},
		{t.Unit.Site, e.Unit.Site},
		{t.Unit.Instrument, e.Unit.Instrument},
	} {
		if f[0] != "" && f[0] != f[1] {
			return false
		}
	}
	return true
}

// Errorf creates an Error of the given kind with a formatted message
func Errorf(kind Kind, unit Unit, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Unit: unit, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches kind and unit context to err. It returns nil for a nil err.
// When err is already an *Error, the inner kind wins and only unset unit
// fields are filled in, so the origin of a failure is preserved through
// outer layers.
func Wrap(kind Kind, unit Unit, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		merged := pe.Unit
		if merged.Network == "" {
			merged.Network = unit.Network
		}
		if merged.Species == "" {
			merged.Species = unit.Species
		}
		if merged.Site == "" {
			merged.Site = unit.Site
		}
		if merged.Instrument == "" {
			merged.Instrument = unit.Instrument
		}
		return &Error{Kind: pe.Kind, Unit: merged, Err: err}
	}
	return &Error{Kind: kind, Unit: unit, Err: err}
}

// KindOf returns the failure category carried in err's chain, or
// KindInternal when the chain carries no *Error
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}
