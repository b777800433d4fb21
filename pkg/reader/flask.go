package reader

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/netcdf"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// FlaskInstrument is the only instrument flask files are published for
const FlaskInstrument = "GCMS-Medusa-flask"

// ReadFlask reads the Medusa flask record for one species at a site.
// Timestamps are shifted from the middle to the start of the sampling
// period, and simultaneous flasks are averaged into a single sample. Flask
// data stays on the default calibration scale; requesting any other scale
// is an error.
func (r *Reader) ReadFlask(species, site, instrumentName string, opts Options) (*timeseries.Record, error) {
	unit := r.unit(species, site, instrumentName)

	info, err := r.flaskSiteInfo(site)
	if err != nil {
		return nil, err
	}
	if info.SamplingPeriod == nil {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"sampling period not found in %s for %s", flaskSitesFile, site)
	}
	if info.InletHeight == nil {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"inlet height not found in %s for %s", flaskSitesFile, site)
	}
	if instrumentName != FlaskInstrument {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"only valid for instrument %s, not %s", FlaskInstrument, instrumentName)
	}
	if opts.Scale != "" && opts.Scale != DefaultScale {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"flask data must use the scale defaults file")
	}
	target, err := r.TargetScale(species, instrumentName, DefaultScale)
	if err != nil {
		return nil, err
	}

	store, _, err := r.subStore(config.GCMSFlaskPath, strings.ToLower(site))
	if err != nil {
		return nil, err
	}
	speciesSearch := formatting.Species(species)
	speciesFlask := formatting.SpeciesFlask(species)
	files, err := store.List(strings.ToLower(speciesFlask)+"_air.nc", true)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, pipeline.Errorf(pipeline.KindNotFound, unit,
			"no files found for %s in %s network", speciesSearch, r.paths.Network)
	}
	if len(files) > 1 {
		return nil, pipeline.Errorf(pipeline.KindNotFound, unit,
			"multiple files found for %s in %s network", speciesSearch, r.paths.Network)
	}
	data, err := store.Open(files[0])
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindNotFound, unit, err)
	}
	ds, err := netcdf.OpenBytes(data)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
	}

	mfVar := speciesFlask + "_C"
	repVar := speciesFlask + "_std_stdev"
	for _, name := range []string{mfVar, repVar, "sample_time"} {
		if !ds.Has(name) {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, unit,
				"no %s variable in %s", name, files[0])
		}
	}
	mf, err := ds.Floats(mfVar)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
	}
	rep, err := ds.Floats(repVar)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
	}
	sampleTime, err := ds.Floats("sample_time")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
	}
	n := len(mf)
	for _, v := range []struct {
		name   string
		length int
	}{{repVar, len(rep)}, {"sample_time", len(sampleTime)}} {
		if v.length != n {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, unit,
				"%s has %d values for %d samples in %s", v.name, v.length, n, files[0])
		}
	}

	period := *info.SamplingPeriod
	offset := float64(period) / 2
	rec := timeseries.New(n)
	rec.InletHeight = make([]float64, n)
	for i := 0; i < n; i++ {
		// sample_time is seconds since 1970-01-01 marking the middle of
		// the sampling period, shifted here to the start
		shifted := sampleTime[i] - offset
		sec := math.Floor(shifted)
		rec.Time[i] = time.Unix(int64(sec), int64((shifted-sec)*1e9)).UTC()
		rec.MF[i] = mf[i]
		rec.MFRepeatability[i] = rep[i]
		rec.SamplingPeriod[i] = period
		rec.InletHeight[i] = *info.InletHeight
	}
	rec.Sort()
	if len(duplicateTimes(rec.Time)) > 0 {
		rec = averageFlaskDuplicates(rec)
	}

	rec.Attrs.Comment = fmt.Sprintf("GCMS Medusa flask data for %s at %s.",
		speciesSearch, info.StationLongName)
	rec.Attrs.StationLongName = info.StationLongName
	rec.Attrs.InletLatitude = info.InletLatitude
	rec.Attrs.InletLongitude = info.InletLongitude
	rec.Attrs.InletBaseElevation = info.InletBaseElevation
	rec.Attrs.InletComment = info.InletComment
	rec.Attrs.DataOwner = info.DataOwner
	rec.Attrs.DataOwnerEmail = info.DataOwnerEmail

	defaults, err := r.attributeDefaults()
	if err != nil {
		return nil, err
	}
	formatting.ApplyDefaults(&rec.Attrs, defaults)

	rec.Attrs.SiteCode = site
	rec.Attrs.Species = speciesSearch
	rec.Attrs.Network = r.paths.Network
	rec.Attrs.CalibrationScale = target
	rec.Attrs.Units = formatting.Units("ppt")
	rec.Attrs.Instrument = instrumentName
	if err := r.stampInstrumentType(rec, instrumentName); err != nil {
		return nil, err
	}

	if !opts.KeepNaN {
		rec = rec.DropNaN()
	}
	return rec, nil
}

// averageFlaskDuplicates collapses groups of simultaneous flask samples
// into one: mole fraction and repeatability are averaged over the non-NaN
// members, the count records how many went in, and the variability is the
// sample standard deviation when a group has more than two members. The
// record must be sorted.
func averageFlaskDuplicates(rec *timeseries.Record) *timeseries.Record {
	n := rec.Len()
	out := &timeseries.Record{Attrs: rec.Attrs}
	for i := 0; i < n; {
		j := i + 1
		for j < n && rec.Time[j].Equal(rec.Time[i]) {
			j++
		}

		var mfSum, repSum float64
		var repCount int
		values := make([]float64, 0, j-i)
		for k := i; k < j; k++ {
			if !math.IsNaN(rec.MF[k]) {
				mfSum += rec.MF[k]
				values = append(values, rec.MF[k])
			}
			if !math.IsNaN(rec.MFRepeatability[k]) {
				repSum += rec.MFRepeatability[k]
				repCount++
			}
		}

		mfMean := math.NaN()
		variability := 0.0
		if len(values) > 0 {
			mfMean = mfSum / float64(len(values))
		}
		if len(values) > 2 {
			var ss float64
			for _, v := range values {
				ss += (v - mfMean) * (v - mfMean)
			}
			variability = math.Sqrt(ss / float64(len(values)-1))
		}
		repMean := math.NaN()
		if repCount > 0 {
			repMean = repSum / float64(repCount)
		}

		out.Time = append(out.Time, rec.Time[i])
		out.MF = append(out.MF, mfMean)
		out.MFRepeatability = append(out.MFRepeatability, repMean)
		out.MFVariability = append(out.MFVariability, variability)
		out.MFCount = append(out.MFCount, len(values))
		out.SamplingPeriod = append(out.SamplingPeriod, rec.SamplingPeriod[i])
		out.InletHeight = append(out.InletHeight, rec.InletHeight[i])
		out.InstrumentType = append(out.InstrumentType, rec.InstrumentType[i])
		i = j
	}
	return out
}
