package timeseries

import "math"

// DropDuplicates resolves repeated timestamps in a sorted record.
// NaN mole fractions lose first: within a group of samples sharing a
// timestamp, if every value is NaN the first sample survives, otherwise the
// NaN samples are dropped. When more than one non-NaN sample remains, the
// survivor is the one whose instrument type appears earliest in the order
// the types first occur in the record.
//
// The same input always produces the same output, and the first-seen type
// order makes the choice independent of how the contributing instruments
// were ordered before sorting.
func (r *Record) DropDuplicates() *Record {
	n := r.Len()
	if !r.hasDuplicates() {
		return r.Copy()
	}

	// instrument type codes in order of first appearance
	order := make(map[int]int)
	for i := 0; i < n; i++ {
		c := r.instrumentCode(i)
		if _, seen := order[c]; !seen {
			order[c] = len(order)
		}
	}

	keep := make([]int, 0, n)
	for i := 0; i < n; {
		j := i + 1
		for j < n && r.Time[j].Equal(r.Time[i]) {
			j++
		}
		if j-i == 1 {
			keep = append(keep, i)
		} else {
			keep = append(keep, r.chooseSurvivor(i, j, order))
		}
		i = j
	}
	return r.take(keep)
}

// DropDuplicatesKeepFirst resolves repeated timestamps in a sorted record by
// keeping the first sample of each group. It serves single-instrument reads
// and baseline flag records, where there is no instrument changeover to
// arbitrate; on a baseline flag the survivor may therefore differ from the
// one DropDuplicates picks on the matching data record.
func (r *Record) DropDuplicatesKeepFirst() *Record {
	n := r.Len()
	if !r.hasDuplicates() {
		return r.Copy()
	}
	keep := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i == 0 || !r.Time[i].Equal(r.Time[i-1]) {
			keep = append(keep, i)
		}
	}
	return r.take(keep)
}

// DropNaN removes all samples whose mole fraction is NaN
func (r *Record) DropNaN() *Record {
	keep := make([]int, 0, r.Len())
	for i, v := range r.MF {
		if !math.IsNaN(v) {
			keep = append(keep, i)
		}
	}
	return r.take(keep)
}

func (r *Record) hasDuplicates() bool {
	for i := 1; i < r.Len(); i++ {
		if r.Time[i].Equal(r.Time[i-1]) {
			return true
		}
	}
	return false
}

func (r *Record) instrumentCode(i int) int {
	if r.InstrumentType == nil {
		return 0
	}
	return r.InstrumentType[i]
}

// chooseSurvivor picks the surviving row among the duplicate group [i, j)
func (r *Record) chooseSurvivor(i, j int, order map[int]int) int {
	notNaN := make([]int, 0, j-i)
	for k := i; k < j; k++ {
		if !math.IsNaN(r.MF[k]) {
			notNaN = append(notNaN, k)
		}
	}
	switch len(notNaN) {
	case 0:
		return i
	case 1:
		return notNaN[0]
	}
	best := notNaN[0]
	for _, k := range notNaN[1:] {
		if order[r.instrumentCode(k)] < order[r.instrumentCode(best)] {
			best = k
		}
	}
	return best
}
