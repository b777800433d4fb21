package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/archive"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/combiner"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/log"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/netcdf"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/reader"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// Archive sub-directories and filename markers for companion products.
const (
	individualSubDir = "individual-instruments"
	baselineSubDir   = "baseline-flags"
	monthlySubDir    = "monthly-baseline"

	baselineExtra = "git-baseline"
	monthlyExtra  = "monthly-baseline"
)

// skipExisting is the skip reason recorded when a unit's top-level file is
// already in the archive, normally because a combined product or an
// earlier instrument wrote it.
const skipExisting = "recommended file already in archive"

func (r *Runner) readOpts() reader.Options {
	return reader.Options{
		Scale:      reader.DefaultScale,
		NoResample: r.opts.NoResample,
	}
}

// processCombined builds the multi-instrument record for one species at
// one site and writes it at the top level of the species directory, with
// baseline flag and monthly mean companions when requested.
func (r *Runner) processCombined(w *archive.Writer, unit pipeline.Unit, species, site string) ([]string, string, error) {
	opts := r.readOpts()
	data, err := combiner.Combine(r.reader, species, site, opts)
	if err != nil {
		return nil, "", err
	}

	var baseline *timeseries.Record
	if r.opts.Baseline {
		baseline, err = combiner.CombineBaseline(r.reader, species, site, opts)
		if err != nil {
			return nil, "", err
		}
		if !timeseries.EqualGrids(data, baseline) {
			return nil, "", pipeline.Errorf(pipeline.KindMisalignedBaseline, unit,
				"data and baseline files for %s at %s have different timestamps", species, site)
		}
	}

	folder := data.Attrs.Species
	files := make([]string, 0, 3)
	name, err := r.writeDataset(w, unit, data, folder, "", "")
	if err != nil {
		return nil, "", err
	}
	files = append(files, name)

	if baseline != nil {
		name, err = r.writeDataset(w, unit, baseline, folder+"/"+baselineSubDir, "", baselineExtra)
		if err != nil {
			return files, "", err
		}
		files = append(files, name)
	}
	if r.opts.Monthly {
		monthly, err := timeseries.Monthly(data, baseline)
		if err != nil {
			return files, "", err
		}
		name, err = r.writeDataset(w, unit, monthly, folder+"/"+monthlySubDir, "", monthlyExtra)
		if err != nil {
			return files, "", err
		}
		files = append(files, name)
	}
	return files, "", nil
}

// processIndividual reads one instrument's record for a species at a site
// and writes it under individual-instruments. When the instrument is the
// only scheduled source for the species, the record is also written at the
// top level of the species directory, marked with the instrument selection
// note, unless a top-level file is already in the archive.
//
// Baseline and monthly companions follow each data file. Their write
// failures are logged and reported after the remaining folders have been
// processed, so a bad flag variable never blocks the data file itself.
func (r *Runner) processIndividual(w *archive.Writer, unit pipeline.Unit, species, site, instrumentName string) ([]string, string, error) {
	opts := r.readOpts()
	data, err := r.reader.Read(species, site, instrumentName, opts)
	if err != nil {
		return nil, "", err
	}

	entries, err := r.reader.Combination(site, species)
	if err != nil {
		return nil, "", err
	}
	var folders []string
	if !r.opts.TopLevelOnly {
		folders = append(folders, data.Attrs.Species+"/"+individualSubDir)
	}
	switch {
	case len(entries) <= 1:
		folders = append(folders, data.Attrs.Species)
	case r.opts.TopLevelOnly:
		return nil, "", pipeline.Errorf(pipeline.KindConfiguration, unit,
			"combined instruments are configured for %s at %s, cannot write top-level files only",
			species, site)
	}

	var baseline *timeseries.Record
	if r.opts.Baseline && !strings.EqualFold(instrumentName, reader.FlaskInstrument) {
		baseline, err = r.reader.ReadBaseline(species, site, instrumentName, reader.DefaultBaselineFlag, opts)
		if err != nil {
			return nil, "", err
		}
		if !timeseries.EqualGrids(data, baseline) {
			return nil, "", pipeline.Errorf(pipeline.KindMisalignedBaseline, unit,
				"data and baseline files for %s at %s have different timestamps", species, site)
		}
	}

	instrumentOut := outputInstrument(instrumentName)
	logger := log.WithUnit(species, site, instrumentName)

	var files []string
	var skip string
	var companionErr error
	for _, folder := range folders {
		top := !strings.Contains(folder, "/")
		name := instrumentOut
		if top {
			pattern := fmt.Sprintf("%s/%s_%s_%s*.nc", data.Attrs.Species,
				strings.ToLower(r.paths.Network), strings.ToLower(site), data.Attrs.Species)
			found, err := w.Match(pattern)
			if err != nil {
				return files, "", err
			}
			if found {
				logger.Debug().Msg(skipExisting)
				if len(files) == 0 {
					skip = skipExisting
				}
				continue
			}
			name = ""
			data.Attrs.InstrumentSelection = combiner.InstrumentSelection
			if baseline != nil {
				baseline.Attrs.InstrumentSelection = combiner.InstrumentSelection
			}
		}

		written, err := r.writeDataset(w, unit, data, folder, name, "")
		if err != nil {
			return files, "", err
		}
		files = append(files, written)

		if baseline == nil {
			continue
		}
		written, err = r.writeDataset(w, unit, baseline, folder+"/"+baselineSubDir, name, baselineExtra)
		if err != nil {
			logger.Error().Err(err).Msg("failed to write baseline file")
			companionErr = err
			continue
		}
		files = append(files, written)

		if !r.opts.Monthly {
			continue
		}
		monthly, err := timeseries.Monthly(data, baseline)
		if err == nil {
			written, err = r.writeDataset(w, unit, monthly, folder+"/"+monthlySubDir, name, monthlyExtra)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to write monthly baseline file")
			companionErr = err
			continue
		}
		files = append(files, written)
	}
	return files, skip, companionErr
}

// writeDataset stamps the creation time, encodes the record and writes it
// into the archive, returning the archive-relative path. Records with no
// samples left are rejected with a pointer at the release schedule.
func (r *Runner) writeDataset(w *archive.Writer, unit pipeline.Unit, rec *timeseries.Record, subPath, instrumentOut, extra string) (string, error) {
	filename := archive.OutputFilename(r.paths.Network, instrumentOut,
		rec.Attrs.SiteCode, rec.Attrs.Species, extra, rec.Attrs.Version)
	if rec.Len() == 0 {
		return "", pipeline.Errorf(pipeline.KindEmptyEpoch, unit,
			"no data retained for %s when trying to write %s, check dates in the release schedule or omit this instrument",
			rec.Attrs.Species, filename)
	}
	if err := rec.Validate(); err != nil {
		return "", pipeline.Wrap(pipeline.KindValidation, unit, err)
	}
	rec.Attrs.FileCreated = time.Now().UTC().Format(timeseries.TimeFormat)
	data, err := netcdf.Encode(rec)
	if err != nil {
		return "", err
	}
	if err := w.Write(subPath, filename, data); err != nil {
		return "", err
	}
	name := subPath + "/" + filename
	logger := log.WithUnit(rec.Attrs.Species, rec.Attrs.SiteCode, rec.Attrs.Instrument)
	logger.Debug().Str("file", name).Msg("wrote dataset")
	return name, nil
}

// outputInstrument returns the instrument token used in published file
// names. ALE and GAGE records were measured on GC-MD instruments, so their
// files carry the historic network name joined with the instrument class.
func outputInstrument(instrumentName string) string {
	switch strings.ToUpper(instrumentName) {
	case "ALE", "GAGE":
		return strings.ToLower(instrumentName) + "-gcmd"
	}
	return strings.ToLower(instrumentName)
}
