package reader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/instrument"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/log"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/netcdf"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/selection"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// Raw variable names used in GCWerks exports that differ from the published
// names
const (
	rawCountVar       = "mf_mean_N"
	rawVariabilityVar = "mf_mean_stdev"
)

// ReadNC reads the GCWerks netCDF export for one species, site and
// instrument and processes it into a publishable record: sampling metadata
// attached, excluded stretches removed, the release cutoff applied and the
// mole fraction converted onto the target calibration scale.
func (r *Reader) ReadNC(species, site, instrumentName string, opts Options) (*timeseries.Record, error) {
	rec, err := r.readNC(species, site, instrumentName, opts, "")
	if err != nil {
		return nil, err
	}
	return r.convertScale(rec, species, instrumentName, opts.Scale)
}

// openNC locates the GCWerks file for an instrument at a site. Exactly one
// file may match.
func (r *Reader) openNC(species, site, instrumentName string) ([]byte, string, error) {
	key, err := instrument.PathKey(instrumentName)
	if err != nil {
		return nil, "", err
	}
	store, sub, err := r.subStore(key, "")
	if err != nil {
		return nil, "", err
	}

	pattern := fmt.Sprintf("*-%s*_%s_%s.nc", instrumentName, site, formatting.SpeciesGCWerks(species))
	files, err := store.List(pattern, false)
	if err != nil {
		return nil, "", err
	}
	unit := r.unit(species, site, instrumentName)
	if len(files) == 0 {
		return nil, "", pipeline.Errorf(pipeline.KindNotFound, unit,
			"failed to find a file matching %s in data/%s/%s", pattern, r.paths.Network, sub)
	}
	if len(files) > 1 {
		return nil, "", pipeline.Errorf(pipeline.KindNotFound, unit,
			"found more than one file matching %s in data/%s/%s", pattern, r.paths.Network, sub)
	}
	data, err := store.Open(files[0])
	if err != nil {
		return nil, "", err
	}
	return data, files[0], nil
}

// readNC is the shared GCWerks pipeline. When baselineVar names a flag
// variable in the file, the decoded flag rides along on the record so that
// exclusions, the release cutoff and resampling treat it consistently with
// the data.
func (r *Reader) readNC(species, site, instrumentName string, opts Options, baselineVar string) (*timeseries.Record, error) {
	unit := r.unit(species, site, instrumentName)
	logger := log.WithUnit(species, site, instrumentName)

	data, name, err := r.openNC(species, site, instrumentName)
	if err != nil {
		return nil, err
	}
	logger.Debug().Str("file", name).Msg("reading GCWerks file")

	ds, err := netcdf.OpenBytes(data)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
	}
	rec, err := ds.Record()
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
	}
	if rec.MF == nil {
		return nil, pipeline.Errorf(pipeline.KindMalformedInput, unit,
			"no mf variable in %s", name)
	}
	n := rec.Len()

	// GCWerks names for the count and variability variables
	if rec.MFCount == nil && ds.Has(rawCountVar) {
		if rec.MFCount, err = ds.Ints(rawCountVar); err != nil {
			return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
		}
		if len(rec.MFCount) != n {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, unit,
				"variable %s has %d values for %d timestamps", rawCountVar, len(rec.MFCount), n)
		}
	}
	if rec.MFVariability == nil && ds.Has(rawVariabilityVar) {
		if rec.MFVariability, err = ds.Floats(rawVariabilityVar); err != nil {
			return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
		}
		if len(rec.MFVariability) != n {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, unit,
				"variable %s has %d values for %d timestamps", rawVariabilityVar, len(rec.MFVariability), n)
		}
	}

	// GCWerks timestamps the middle of the sampling period; shift to the
	// start. GCMD files don't record a sampling time, which is taken to be
	// 1s (Peter Salameh, pers. comm., 2023-07-06).
	period := 1
	if s := ds.Attr(netcdf.VarTime, "sampling_time_seconds"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, unit,
				"bad sampling_time_seconds attribute %q", s)
		}
		period = int(v)
		half := time.Duration(period) * time.Second / 2
		for i := range rec.Time {
			rec.Time[i] = rec.Time[i].Add(-half)
		}
	}
	rec.SamplingPeriod = make([]int, n)
	for i := range rec.SamplingPeriod {
		rec.SamplingPeriod[i] = period
	}

	if baselineVar != "" {
		flags, err := ds.Bytes(baselineVar)
		if err != nil {
			return nil, pipeline.Wrap(pipeline.KindNotFound, unit, err)
		}
		if len(flags) != n {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, unit,
				"variable %s has %d values for %d timestamps", baselineVar, len(flags), n)
		}
		rec.Baseline = make([]int8, n)
		for i, f := range flags {
			if f == 'B' {
				rec.Baseline[i] = 1
			}
		}
	}

	defaults, err := r.attributeDefaults()
	if err != nil {
		return nil, err
	}
	formatting.ApplyDefaults(&rec.Attrs, defaults)
	rec.Attrs.SiteCode = strings.ToUpper(site)
	rec.Attrs.Species = formatting.Species(species)
	rec.Attrs.Network = r.paths.Network
	rec.Attrs.ProductType = "mole fraction"
	rec.Attrs.InstrumentSelection = "Individual instruments"
	rec.Attrs.Frequency = "high-frequency"
	if len(rec.Attrs.InstrumentRecords) == 0 {
		rec.Attrs.Instrument = instrumentName
		rec.Attrs.InstrumentRecords = []timeseries.InstrumentRecord{{Instrument: instrumentName}}
	}
	rec.Attrs.CalibrationScale = formatting.Scale(rec.Attrs.CalibrationScale)
	rec.Attrs.Units = formatting.Units(rec.Attrs.Units)

	if !opts.KeepExcluded {
		rules, err := r.Exclusions(site)
		if err != nil {
			return nil, err
		}
		var applied int
		rec, applied = selection.ApplyExclusions(rec, rules, species, instrumentName, false)
		if applied > 0 {
			logger.Debug().Int("rules", applied).Msg("applied exclusions")
		}
	}

	rs, err := r.Schedule(instrumentName)
	if err != nil {
		return nil, err
	}
	cutoff, err := rs.Cutoff(species, site)
	if err != nil {
		return nil, err
	}
	rec = rec.Slice(time.Time{}, cutoff)

	if err := r.stampInstrumentType(rec, instrumentName); err != nil {
		return nil, err
	}

	if !rec.Sorted() {
		rec.Sort()
	}
	if !opts.NoResample {
		if avg, ok := instrument.MinimumAveragingPeriod(instrumentName); ok &&
			rec.Len() > 1 && rec.MedianSamplingInterval() < instrument.ResampleThreshold {
			logger.Debug().Dur("period", avg).Msg("resampling")
			rec = rec.Resample(avg)
		}
	}
	rec = rec.DropDuplicatesKeepFirst()
	if !opts.KeepNaN {
		rec = rec.DropNaN()
	}
	return rec, nil
}

// stampInstrumentType fills the instrument_type variable and attributes
// from the registry code for an instrument
func (r *Reader) stampInstrumentType(rec *timeseries.Record, instrumentName string) error {
	code, err := r.registry.Lookup(instrumentName)
	if err != nil {
		return err
	}
	name, err := r.registry.Name(code)
	if err != nil {
		return err
	}
	rec.InstrumentType = make([]int, rec.Len())
	for i := range rec.InstrumentType {
		rec.InstrumentType[i] = code
	}
	rec.Attrs.InstrumentType = name
	rec.Attrs.InstrumentTypeDefinition = r.registry.Definition()
	return nil
}
