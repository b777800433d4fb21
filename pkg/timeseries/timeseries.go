package timeseries

import (
	"math"
	"sort"
	"time"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

// Record is the canonical in-memory unit of measurement data: parallel
// slices over a shared time grid. Time is always UTC. MF is the mole
// fraction with NaN marking missing values.
//
// MF and MFRepeatability are nil on baseline-flag records, which carry only
// the Baseline slice. Baseline, MFVariability and InletHeight are nil when
// the source provides none. All non-nil slices must have the same length as
// Time.
type Record struct {
	Time            []time.Time
	MF              []float64
	MFRepeatability []float64
	MFVariability   []float64
	MFCount         []int
	Baseline        []int8
	SamplingPeriod  []int
	InletHeight     []float64
	InstrumentType  []int

	Attrs Attrs
}

// New allocates a record of length n with the always-present slices
// initialized: MF and MFRepeatability to NaN, MFCount to 1, SamplingPeriod
// and InstrumentType to zero
func New(n int) *Record {
	r := &Record{
		Time:            make([]time.Time, n),
		MF:              make([]float64, n),
		MFRepeatability: make([]float64, n),
		MFCount:         make([]int, n),
		SamplingPeriod:  make([]int, n),
		InstrumentType:  make([]int, n),
	}
	for i := 0; i < n; i++ {
		r.MF[i] = math.NaN()
		r.MFRepeatability[i] = math.NaN()
		r.MFCount[i] = 1
	}
	return r
}

// Len returns the number of samples
func (r *Record) Len() int {
	return len(r.Time)
}

// Validate checks the record invariants: all non-nil slices share the length
// of Time, and timestamps are strictly increasing (sorted and unique)
func (r *Record) Validate() error {
	n := len(r.Time)
	check := func(name string, l int, present bool) error {
		if present && l != n {
			return pipeline.Errorf(pipeline.KindValidation, pipeline.Unit{},
				"%s has %d values for %d timestamps", name, l, n)
		}
		return nil
	}
	for _, s := range []struct {
		name    string
		length  int
		present bool
	}{
		{"mf", len(r.MF), r.MF != nil},
		{"mf_repeatability", len(r.MFRepeatability), r.MFRepeatability != nil},
		{"mf_variability", len(r.MFVariability), r.MFVariability != nil},
		{"mf_count", len(r.MFCount), r.MFCount != nil},
		{"baseline", len(r.Baseline), r.Baseline != nil},
		{"sampling_period", len(r.SamplingPeriod), r.SamplingPeriod != nil},
		{"inlet_height", len(r.InletHeight), r.InletHeight != nil},
		{"instrument_type", len(r.InstrumentType), r.InstrumentType != nil},
	} {
		if err := check(s.name, s.length, s.present); err != nil {
			return err
		}
	}

	for i := 1; i < n; i++ {
		if !r.Time[i].After(r.Time[i-1]) {
			if r.Time[i].Equal(r.Time[i-1]) {
				return pipeline.Errorf(pipeline.KindDuplicateTimestamp, pipeline.Unit{},
					"duplicate timestamp %s", r.Time[i].UTC().Format(TimeFormat))
			}
			return pipeline.Errorf(pipeline.KindValidation, pipeline.Unit{},
				"timestamps not monotonically increasing at %s", r.Time[i].UTC().Format(TimeFormat))
		}
	}
	return nil
}

// Copy returns a deep copy of the record
func (r *Record) Copy() *Record {
	out := &Record{Attrs: r.Attrs.Copy()}
	out.Time = append([]time.Time(nil), r.Time...)
	if r.MF != nil {
		out.MF = append([]float64(nil), r.MF...)
	}
	if r.MFRepeatability != nil {
		out.MFRepeatability = append([]float64(nil), r.MFRepeatability...)
	}
	if r.MFVariability != nil {
		out.MFVariability = append([]float64(nil), r.MFVariability...)
	}
	if r.MFCount != nil {
		out.MFCount = append([]int(nil), r.MFCount...)
	}
	if r.Baseline != nil {
		out.Baseline = append([]int8(nil), r.Baseline...)
	}
	if r.SamplingPeriod != nil {
		out.SamplingPeriod = append([]int(nil), r.SamplingPeriod...)
	}
	if r.InletHeight != nil {
		out.InletHeight = append([]float64(nil), r.InletHeight...)
	}
	if r.InstrumentType != nil {
		out.InstrumentType = append([]int(nil), r.InstrumentType...)
	}
	return out
}

// take gathers the rows at idx, in order, into a new record
func (r *Record) take(idx []int) *Record {
	out := &Record{Attrs: r.Attrs.Copy()}
	out.Time = make([]time.Time, len(idx))
	for i, j := range idx {
		out.Time[i] = r.Time[j]
	}
	gatherF := func(src []float64) []float64 {
		if src == nil {
			return nil
		}
		dst := make([]float64, len(idx))
		for i, j := range idx {
			dst[i] = src[j]
		}
		return dst
	}
	gatherI := func(src []int) []int {
		if src == nil {
			return nil
		}
		dst := make([]int, len(idx))
		for i, j := range idx {
			dst[i] = src[j]
		}
		return dst
	}
	out.MF = gatherF(r.MF)
	out.MFRepeatability = gatherF(r.MFRepeatability)
	out.MFVariability = gatherF(r.MFVariability)
	out.InletHeight = gatherF(r.InletHeight)
	out.MFCount = gatherI(r.MFCount)
	out.SamplingPeriod = gatherI(r.SamplingPeriod)
	out.InstrumentType = gatherI(r.InstrumentType)
	if r.Baseline != nil {
		out.Baseline = make([]int8, len(idx))
		for i, j := range idx {
			out.Baseline[i] = r.Baseline[j]
		}
	}
	return out
}

// Select returns a new record holding the rows at idx, in the given order
func (r *Record) Select(idx []int) *Record {
	return r.take(idx)
}

// Sort reorders all slices so that timestamps ascend. The sort is stable, so
// samples sharing a timestamp keep their relative order.
func (r *Record) Sort() {
	n := r.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return r.Time[idx[a]].Before(r.Time[idx[b]])
	})

	sorted := false
	for i, j := range idx {
		if i != j {
			sorted = true
			break
		}
	}
	if !sorted {
		return
	}

	*r = *r.take(idx)
}

// Sorted reports whether timestamps are in non-decreasing order
func (r *Record) Sorted() bool {
	for i := 1; i < r.Len(); i++ {
		if r.Time[i].Before(r.Time[i-1]) {
			return false
		}
	}
	return true
}

// Slice returns the samples within [start, end], bounds inclusive. A zero
// start or end leaves that side open.
func (r *Record) Slice(start, end time.Time) *Record {
	idx := make([]int, 0, r.Len())
	for i, t := range r.Time {
		if !start.IsZero() && t.Before(start) {
			continue
		}
		if !end.IsZero() && t.After(end) {
			continue
		}
		idx = append(idx, i)
	}
	return r.take(idx)
}

// TimeRange returns the first and last timestamps. ok is false for an empty
// record.
func (r *Record) TimeRange() (first, last time.Time, ok bool) {
	if r.Len() == 0 {
		return time.Time{}, time.Time{}, false
	}
	return r.Time[0], r.Time[r.Len()-1], true
}

// Concat appends the records in the given order into a new record. The
// result carries the first record's attributes and is not sorted. Records
// must agree on which of the MF, MFRepeatability and Baseline slices they
// carry; the optional MFVariability and InletHeight slices are filled with
// NaN where absent.
func Concat(recs ...*Record) (*Record, error) {
	if len(recs) == 0 {
		return nil, pipeline.Errorf(pipeline.KindValidation, pipeline.Unit{},
			"no records to concatenate")
	}

	total := 0
	hasMF := recs[0].MF != nil
	hasRep := recs[0].MFRepeatability != nil
	hasBaseline := recs[0].Baseline != nil
	hasCount := recs[0].MFCount != nil
	hasPeriod := recs[0].SamplingPeriod != nil
	hasType := recs[0].InstrumentType != nil
	hasVar := false
	hasInlet := false
	for _, rec := range recs {
		total += rec.Len()
		if (rec.MF != nil) != hasMF || (rec.MFRepeatability != nil) != hasRep ||
			(rec.Baseline != nil) != hasBaseline || (rec.MFCount != nil) != hasCount ||
			(rec.SamplingPeriod != nil) != hasPeriod || (rec.InstrumentType != nil) != hasType {
			return nil, pipeline.Errorf(pipeline.KindValidation, pipeline.Unit{},
				"records carry inconsistent variables and cannot be concatenated")
		}
		if rec.MFVariability != nil {
			hasVar = true
		}
		if rec.InletHeight != nil {
			hasInlet = true
		}
	}

	out := &Record{Attrs: recs[0].Attrs.Copy()}
	out.Time = make([]time.Time, 0, total)
	if hasMF {
		out.MF = make([]float64, 0, total)
	}
	if hasRep {
		out.MFRepeatability = make([]float64, 0, total)
	}
	if hasBaseline {
		out.Baseline = make([]int8, 0, total)
	}
	if hasVar {
		out.MFVariability = make([]float64, 0, total)
	}
	if hasInlet {
		out.InletHeight = make([]float64, 0, total)
	}
	if hasCount {
		out.MFCount = make([]int, 0, total)
	}
	if hasPeriod {
		out.SamplingPeriod = make([]int, 0, total)
	}
	if hasType {
		out.InstrumentType = make([]int, 0, total)
	}

	appendFill := func(dst []float64, src []float64, n int) []float64 {
		if src != nil {
			return append(dst, src...)
		}
		for i := 0; i < n; i++ {
			dst = append(dst, math.NaN())
		}
		return dst
	}

	for _, rec := range recs {
		n := rec.Len()
		out.Time = append(out.Time, rec.Time...)
		if hasMF {
			out.MF = append(out.MF, rec.MF...)
		}
		if hasRep {
			out.MFRepeatability = append(out.MFRepeatability, rec.MFRepeatability...)
		}
		if hasBaseline {
			out.Baseline = append(out.Baseline, rec.Baseline...)
		}
		if hasVar {
			out.MFVariability = appendFill(out.MFVariability, rec.MFVariability, n)
		}
		if hasInlet {
			out.InletHeight = appendFill(out.InletHeight, rec.InletHeight, n)
		}
		if hasCount {
			out.MFCount = append(out.MFCount, rec.MFCount...)
		}
		if hasPeriod {
			out.SamplingPeriod = append(out.SamplingPeriod, rec.SamplingPeriod...)
		}
		if hasType {
			out.InstrumentType = append(out.InstrumentType, rec.InstrumentType...)
		}
	}
	return out, nil
}

// EqualGrids reports whether two records share an identical time grid
func EqualGrids(a, b *Record) bool {
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.Time {
		if !a.Time[i].Equal(b.Time[i]) {
			return false
		}
	}
	return true
}
