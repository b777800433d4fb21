/*
Package timeseries holds the canonical measurement record and the grid
operations applied to it: sorting, slicing, concatenation, duplicate
resolution, block-average resampling and monthly aggregation.

A Record is a set of parallel slices over a shared UTC time grid. Readers
construct records, the selection filters and normalizer reshape them, and the
combiner concatenates per-instrument records into one. After normalization a
record satisfies Validate: equal slice lengths and strictly increasing,
unique timestamps.

# Duplicate resolution

Overlapping instruments introduce repeated timestamps when records are
concatenated. DropDuplicates resolves them deterministically: NaN mole
fractions lose first, and remaining ties keep the sample whose instrument
type appeared earliest in the record. Single-instrument reads and baseline
flag records have no changeover to arbitrate and use the simpler
DropDuplicatesKeepFirst.

Operations return new records; the input is never mutated except by Sort.
*/
package timeseries
