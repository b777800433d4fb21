package combiner

import (
	"sort"
	"strings"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/log"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/reader"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/selection"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// InstrumentSelection is the instrument_selection attribute carried by
// combined datasets, marking them as the station PIs' recommended product
const InstrumentSelection = "Recommended instrument(s) selected and combined by station PIs"

// Combine builds the recommended dataset for one species at a site. Each
// instrument epoch from the data combination table is read through the
// normal pipeline, filtered against the combined-scope exclusions and cut
// to its window; the pieces are concatenated, sorted and deduplicated, and
// the global attributes are rebuilt to describe every contributing source.
//
// Every epoch must resolve to the same calibration scale, either naturally
// or through the scale defaults table, and must retain at least one sample
// after cutting.
func Combine(r *reader.Reader, species, site string, opts reader.Options) (*timeseries.Record, error) {
	unit := pipeline.Unit{Network: r.Paths().Network, Species: species, Site: site}
	logger := log.WithUnit(species, site, "")

	epochs, err := r.Combination(site, species)
	if err != nil {
		return nil, err
	}
	if len(epochs) == 0 {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"no data combination entries for %s at %s", species, site)
	}

	rules, err := r.Exclusions(site)
	if err != nil {
		return nil, err
	}

	recs := make([]*timeseries.Record, 0, len(epochs))
	comments := make([]string, 0, len(epochs))
	networks := make([]string, 0, len(epochs))
	scales := make([]string, 0, len(epochs))
	var records []timeseries.InstrumentRecord

	for _, epoch := range epochs {
		rec, err := r.Read(species, site, epoch.Instrument, opts)
		if err != nil {
			return nil, err
		}

		// rules scoped to the combined record only take effect here,
		// on top of whatever the reader already removed
		if !opts.KeepExcluded {
			var applied int
			rec, applied = selection.ApplyExclusions(rec, rules, species, epoch.Instrument, true)
			if applied > 0 {
				logger.Debug().Str("instrument", epoch.Instrument).
					Int("rules", applied).Msg("applied combined-scope exclusions")
			}
		}

		comments = append(comments, rec.Attrs.Comment)
		networks = append(networks, rec.Attrs.Network)

		rec = rec.Slice(epoch.Start, epoch.End)
		if rec.Len() == 0 {
			return nil, pipeline.Errorf(pipeline.KindEmptyEpoch,
				pipeline.Unit{Network: unit.Network, Species: species, Site: site, Instrument: epoch.Instrument},
				"no data retained for %s %s %s, check dates in data_combination or omit this instrument",
				species, site, epoch.Instrument)
		}
		if rec.InstrumentType == nil {
			return nil, pipeline.Errorf(pipeline.KindValidation,
				pipeline.Unit{Network: unit.Network, Species: species, Site: site, Instrument: epoch.Instrument},
				"no instrument_type values in %s data", epoch.Instrument)
		}

		// provenance records without a date of their own inherit the
		// first day the instrument contributes
		date := rec.Time[0].UTC().Format(timeseries.DateFormat)
		for _, ir := range rec.Attrs.InstrumentRecords {
			if ir.Date == "" {
				ir.Date = date
			}
			records = append(records, ir)
		}

		// sources without measurement counts contribute one measurement
		// per time point
		if rec.MFCount == nil {
			rec.MFCount = ones(rec.Len())
		}

		scales = append(scales, rec.Attrs.CalibrationScale)
		recs = append(recs, rec)
	}

	if err := checkScales(unit, epochs, scales); err != nil {
		return nil, err
	}

	combined, err := timeseries.Concat(recs...)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindValidation, unit, err)
	}
	combined.Sort()

	combined.Attrs.Instrument = ""
	combined.Attrs.InstrumentRecords = records
	combined.Attrs.InstrumentSelection = InstrumentSelection
	combined.Attrs.Comment = formatting.CombinedComment(comments)

	combined = combined.DropDuplicates()
	if !opts.KeepNaN {
		combined = combined.DropNaN()
	}
	if combined.Len() == 0 {
		return nil, pipeline.Errorf(pipeline.KindValidation, unit,
			"no valid samples in combined record for %s at %s", species, site)
	}

	codes := uniqueSorted(combined.InstrumentType)
	combined.Attrs.InstrumentType = strings.Join(r.Registry().Names(codes), "/")
	combined.Attrs.Network = formatting.JoinUnique(networks, "/")
	combined.Attrs.SetTimeRange(combined.Time[0], combined.Time[combined.Len()-1])

	logger.Debug().Int("samples", combined.Len()).
		Str("instruments", combined.Attrs.InstrumentType).Msg("combined record assembled")
	return combined, nil
}

// CombineBaseline builds the baseline flag record matching Combine, over
// the same instrument epochs. The Georgia Tech flag is used throughout, as
// the only scheme available for every contributing network. Duplicate
// timestamps are resolved by keeping the first sample: the flags carry no
// instrument type to arbitrate with, so the survivor can in principle come
// from a different instrument than the one the data record kept.
func CombineBaseline(r *reader.Reader, species, site string, opts reader.Options) (*timeseries.Record, error) {
	unit := pipeline.Unit{Network: r.Paths().Network, Species: species, Site: site}

	epochs, err := r.Combination(site, species)
	if err != nil {
		return nil, err
	}
	if len(epochs) == 0 {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"no data combination entries for %s at %s", species, site)
	}

	recs := make([]*timeseries.Record, 0, len(epochs))
	for _, epoch := range epochs {
		rec, err := r.ReadBaseline(species, site, epoch.Instrument, reader.DefaultBaselineFlag, opts)
		if err != nil {
			return nil, err
		}

		rec = rec.Slice(epoch.Start, epoch.End)
		if rec.Len() == 0 {
			return nil, pipeline.Errorf(pipeline.KindEmptyEpoch,
				pipeline.Unit{Network: unit.Network, Species: species, Site: site, Instrument: epoch.Instrument},
				"no data retained for %s %s %s, check dates in data_combination or omit this instrument",
				species, site, epoch.Instrument)
		}
		recs = append(recs, rec)
	}

	combined, err := timeseries.Concat(recs...)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindValidation, unit, err)
	}
	combined.Sort()
	combined = combined.DropDuplicatesKeepFirst()

	combined.Attrs.InstrumentSelection = InstrumentSelection
	combined.Attrs.SetTimeRange(combined.Time[0], combined.Time[combined.Len()-1])
	return combined, nil
}

// checkScales errors unless every epoch resolved to one calibration scale
func checkScales(unit pipeline.Unit, epochs []selection.Epoch, scales []string) error {
	uniq := make(map[string]bool, len(scales))
	for _, s := range scales {
		uniq[s] = true
	}
	if len(uniq) <= 1 {
		return nil
	}
	pairs := make([]string, len(scales))
	for i, s := range scales {
		pairs[i] = epochs[i].Instrument + ":" + s
	}
	return pipeline.Errorf(pipeline.KindScaleMismatch, unit,
		"cannot combine calibration scales that do not match, specify a scale or add to scale_defaults.csv: %s",
		strings.Join(pairs, ", "))
}

func ones(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func uniqueSorted(vals []int) []int {
	seen := make(map[int]bool, len(vals))
	out := make([]int, 0, len(vals))
	for _, v := range vals {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out
}
