package timeseries

import (
	"math"
	"sort"
	"time"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

// Resample block-averages a sorted record onto a regular grid. Each output
// sample covers one period starting at the timestamp: the mole fraction is
// the NaN-ignoring mean over the block, variability the sample standard
// deviation, counts are summed and the baseline flag survives only if every
// sample in the block is baseline.
func (r *Record) Resample(period time.Duration) *Record {
	if r.MF == nil || r.Len() == 0 {
		return r.Copy()
	}

	type bin struct {
		start   time.Time
		mf      []float64
		rep     []float64
		inlet   []float64
		count   int
		base    int8
		hasBase bool
		insttyp int
	}

	var bins []*bin
	var cur *bin
	for i := 0; i < r.Len(); i++ {
		start := r.Time[i].Truncate(period)
		if cur == nil || !cur.start.Equal(start) {
			cur = &bin{start: start, base: 1, insttyp: r.instrumentCode(i)}
			bins = append(bins, cur)
		}
		cur.mf = append(cur.mf, r.MF[i])
		if r.MFRepeatability != nil {
			cur.rep = append(cur.rep, r.MFRepeatability[i])
		}
		if r.InletHeight != nil {
			cur.inlet = append(cur.inlet, r.InletHeight[i])
		}
		if !math.IsNaN(r.MF[i]) {
			if r.MFCount != nil {
				cur.count += r.MFCount[i]
			} else {
				cur.count++
			}
		}
		if r.Baseline != nil {
			cur.hasBase = true
			if r.Baseline[i] != 1 {
				cur.base = 0
			}
		}
	}

	out := &Record{Attrs: r.Attrs.Copy()}
	n := len(bins)
	out.Time = make([]time.Time, n)
	out.MF = make([]float64, n)
	out.MFVariability = make([]float64, n)
	out.MFCount = make([]int, n)
	out.SamplingPeriod = make([]int, n)
	out.InstrumentType = make([]int, n)
	if r.MFRepeatability != nil {
		out.MFRepeatability = make([]float64, n)
	}
	if r.InletHeight != nil {
		out.InletHeight = make([]float64, n)
	}
	if r.Baseline != nil {
		out.Baseline = make([]int8, n)
	}

	periodSeconds := int(period.Seconds())
	for i, b := range bins {
		out.Time[i] = b.start
		out.MF[i] = mean(b.mf)
		out.MFVariability[i] = stddev(b.mf)
		out.MFCount[i] = b.count
		out.SamplingPeriod[i] = periodSeconds
		out.InstrumentType[i] = b.insttyp
		if out.MFRepeatability != nil {
			out.MFRepeatability[i] = mean(b.rep)
		}
		if out.InletHeight != nil {
			out.InletHeight[i] = mean(b.inlet)
		}
		if out.Baseline != nil {
			out.Baseline[i] = b.base
		}
	}
	return out
}

// MedianSamplingInterval returns the median gap between successive
// timestamps, or zero for records shorter than two samples
func (r *Record) MedianSamplingInterval() time.Duration {
	n := r.Len()
	if n < 2 {
		return 0
	}
	deltas := make([]time.Duration, n-1)
	for i := 1; i < n; i++ {
		deltas[i-1] = r.Time[i].Sub(r.Time[i-1])
	}
	sort.Slice(deltas, func(a, b int) bool { return deltas[a] < deltas[b] })
	return deltas[len(deltas)/2]
}

// Monthly computes monthly means of the baseline-flagged samples in data.
// The two records must share an identical time grid. Output timestamps are
// the starts of calendar months, covering every month from the first
// baseline sample to the last; months without baseline samples hold NaN.
// Monthly variability is the sample standard deviation of the contributing
// mole fractions, and repeatability is the monthly mean repeatability
// divided by the square root of the number of contributing measurements.
func Monthly(data, baseline *Record) (*Record, error) {
	if !EqualGrids(data, baseline) {
		return nil, pipeline.Errorf(pipeline.KindMisalignedBaseline, pipeline.Unit{},
			"baseline and data records have different timestamps")
	}
	if baseline.Baseline == nil {
		return nil, pipeline.Errorf(pipeline.KindValidation, pipeline.Unit{},
			"baseline record carries no flags")
	}

	type bin struct {
		mf    []float64
		rep   []float64
		count int
	}
	bins := make(map[time.Time]*bin)
	var first, last time.Time
	for i := 0; i < data.Len(); i++ {
		if baseline.Baseline[i] != 1 {
			continue
		}
		m := monthStart(data.Time[i])
		b, ok := bins[m]
		if !ok {
			b = &bin{}
			bins[m] = b
			if first.IsZero() || m.Before(first) {
				first = m
			}
			if m.After(last) {
				last = m
			}
		}
		b.mf = append(b.mf, data.MF[i])
		if data.MFRepeatability != nil {
			b.rep = append(b.rep, data.MFRepeatability[i])
		}
		if !math.IsNaN(data.MF[i]) {
			if data.MFCount != nil {
				b.count += data.MFCount[i]
			} else {
				b.count++
			}
		}
	}

	out := &Record{Attrs: data.Attrs.Copy()}
	out.Attrs.Frequency = "monthly"
	if len(bins) == 0 {
		return out, nil
	}

	for m := first; !m.After(last); m = m.AddDate(0, 1, 0) {
		out.Time = append(out.Time, m)
		b := bins[m]
		if b == nil {
			out.MF = append(out.MF, math.NaN())
			out.MFVariability = append(out.MFVariability, math.NaN())
			out.MFRepeatability = append(out.MFRepeatability, math.NaN())
			out.MFCount = append(out.MFCount, 0)
			continue
		}
		out.MF = append(out.MF, mean(b.mf))
		out.MFVariability = append(out.MFVariability, stddev(b.mf))
		if b.count > 0 {
			out.MFRepeatability = append(out.MFRepeatability, mean(b.rep)/math.Sqrt(float64(b.count)))
		} else {
			out.MFRepeatability = append(out.MFRepeatability, math.NaN())
		}
		out.MFCount = append(out.MFCount, b.count)
	}
	return out, nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// mean returns the NaN-ignoring mean, or NaN when no values remain
func mean(vals []float64) float64 {
	sum, n := 0.0, 0
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// stddev returns the NaN-ignoring sample standard deviation, or zero when
// fewer than two values remain
func stddev(vals []float64) float64 {
	m := mean(vals)
	if math.IsNaN(m) {
		return 0
	}
	sum, n := 0.0, 0
	for _, v := range vals {
		if math.IsNaN(v) {
			continue
		}
		d := v - m
		sum += d * d
		n++
	}
	if n < 2 {
		return 0
	}
	return math.Sqrt(sum / float64(n-1))
}
