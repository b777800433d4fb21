package reader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/archive"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// Line announcing the Fortran format code in GCMS Magnum file headers. The
// column names are two lines further down and the data starts on the line
// after that.
const magnumFormatMarker = "You can use the following format in Fortran to read data in different columns,"

const magnumInstrumentComment = "GCMS ADS with Finnigan Magnum Iron Trap"

// ReadMagnum reads the GCMS Magnum record for one species. The calibration
// scale is whatever the files themselves declare, so no conversion is
// applied.
func (r *Reader) ReadMagnum(species, site, instrumentName string, opts Options) (*timeseries.Record, error) {
	rec, err := r.readMagnum(species, site, instrumentName, opts)
	if err != nil {
		return nil, err
	}
	rec.Baseline = nil
	return rec, nil
}

// readMagnum builds the full record including the pollution-derived
// baseline flag
func (r *Reader) readMagnum(species, site, instrumentName string, opts Options) (*timeseries.Record, error) {
	unit := r.unit(species, site, instrumentName)

	siteInfo, err := r.aleGageSiteInfo(site)
	if err != nil {
		return nil, err
	}
	spInfo, err := r.gatechSpeciesInfo(magnumSpeciesFile, species)
	if err != nil {
		return nil, err
	}

	tarName, err := r.paths.Sub(config.MagnumPath, "")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindConfiguration, unit, err)
	}
	data, err := r.rootFile(tarName)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindNotFound, unit, err)
	}
	members, err := archive.TarGzMembers(data, "")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
	}

	var times []time.Time
	var mf []float64
	var pollution []string
	var fileScale string
	for _, m := range members {
		ft, fmf, fpol, s, err := parseMagnumFile(m.Data, spInfo.SpeciesNameGatech)
		if err != nil {
			return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit,
				fmt.Errorf("failed to read %s: %v", m.Name, err))
		}
		times = append(times, ft...)
		mf = append(mf, fmf...)
		pollution = append(pollution, fpol...)
		fileScale = s
	}
	if len(times) == 0 {
		return nil, pipeline.Errorf(pipeline.KindNotFound, unit,
			"no data in %s", tarName)
	}

	times, mf, pollution = sortByTime(times, mf, pollution)
	if dups := duplicateTimes(times); len(dups) > 0 {
		return nil, pipeline.Errorf(pipeline.KindDuplicateTimestamp, unit,
			"duplicate timestamps found, check timestamp issues: %s", strings.Join(dups, ", "))
	}

	n := len(times)
	rec := timeseries.New(n)
	rec.Time = times
	rec.MFCount = nil
	rec.InletHeight = make([]float64, n)
	rec.Baseline = make([]int8, n)
	for i := 0; i < n; i++ {
		rec.MF[i] = mf[i]
		rec.MFRepeatability[i] = mf[i] * spInfo.RepeatabilityPercent / 100
		rec.SamplingPeriod[i] = 2400
		rec.InletHeight[i] = siteInfo.InletHeight
		if pollution[i] != "P" {
			rec.Baseline[i] = 1
		}
	}

	rec.Attrs.Comment = fmt.Sprintf("%s %s data from %s. %s",
		instrumentName, species, site, gatechProvenance)
	rec.Attrs.StationLongName = siteInfo.StationLongName
	rec.Attrs.DataOwner = siteInfo.DataOwner
	rec.Attrs.DataOwnerEmail = siteInfo.DataOwnerEmail
	rec.Attrs.InletBaseElevation = siteInfo.InletBaseElevation
	rec.Attrs.InletLatitude = siteInfo.Latitude
	rec.Attrs.InletLongitude = siteInfo.Longitude
	rec.Attrs.SetExtra("gcwerks_name", siteInfo.GCWerksName)
	rec.Attrs.SetExtra("inlet_height", strconv.FormatFloat(siteInfo.InletHeight, 'g', -1, 64))

	defaults, err := r.attributeDefaults()
	if err != nil {
		return nil, err
	}
	formatting.ApplyDefaults(&rec.Attrs, defaults)

	rec.Attrs.SiteCode = site
	rec.Attrs.Species = formatting.Species(species)
	rec.Attrs.Network = r.paths.Network
	rec.Attrs.ProductType = "mole fraction"
	rec.Attrs.InstrumentSelection = "Individual instruments"
	rec.Attrs.Frequency = "high-frequency"
	rec.Attrs.CalibrationScale = formatting.Scale(fileScale)
	rec.Attrs.Units = formatting.Units(spInfo.Units)
	rec.Attrs.Instrument = instrumentName
	rec.Attrs.InstrumentRecords = []timeseries.InstrumentRecord{{
		Instrument: instrumentName,
		Comment:    magnumInstrumentComment,
		Date:       rec.Time[0].UTC().Format(timeseries.DateFormat),
	}}
	if err := r.stampInstrumentType(rec, instrumentName); err != nil {
		return nil, err
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

	if !opts.KeepNaN {
		rec = rec.DropNaN()
	}
	return rec, nil
}

// parseMagnumFile reads one fixed-width monthly file. The layout is
// self-describing: a header line carries a Fortran format code, the line
// after it the per-column calibration scales, and the third line after it
// the column names. Returns the timestamps, mole fractions, pollution flags
// and the calibration scale declared for the species.
func parseMagnumFile(data []byte, gatechName string) ([]time.Time, []float64, []string, string, error) {
	lines := strings.Split(string(data), "\n")

	formatLine := -1
	var formatCode string
	for i, line := range lines {
		if j := strings.Index(line, magnumFormatMarker); j >= 0 {
			formatLine = i
			formatCode = line[j+len(magnumFormatMarker):]
			break
		}
	}
	if formatLine < 0 {
		return nil, nil, nil, "", fmt.Errorf("no Fortran format line in file")
	}
	if j := strings.IndexByte(formatCode, '\\'); j >= 0 {
		formatCode = formatCode[:j]
	}
	specs, err := ParseFortranFormat(strings.TrimSpace(formatCode))
	if err != nil {
		return nil, nil, nil, "", err
	}
	if len(lines) <= formatLine+4 {
		return nil, nil, nil, "", fmt.Errorf("file truncated after format line")
	}

	scales := cells(strings.TrimRight(lines[formatLine+1], "\r"), specs)
	names := cells(strings.TrimRight(lines[formatLine+3], "\r"), specs)

	// Unnamed columns are either pollution flags, which trail a named
	// column, or filler. Label filler first so that a flag following
	// filler is still recognisable as one.
	for ci := 1; ci < len(names); ci++ {
		if names[ci] == "" && names[ci-1] == "" {
			names[ci] = "missing" + strconv.Itoa(ci)
		}
	}
	for ci := 1; ci < len(names); ci++ {
		if names[ci] == "" && names[ci-1] != "" {
			names[ci] = names[ci-1] + "_pollution"
		}
	}

	columnIdx := func(name string) int {
		for i, n := range names {
			if n == name {
				return i
			}
		}
		return -1
	}
	absdaIdx := columnIdx("ABSDA")
	if absdaIdx < 0 {
		return nil, nil, nil, "", fmt.Errorf("no ABSDA column in file")
	}
	speciesIdx := columnIdx(gatechName)
	if speciesIdx < 0 {
		return nil, nil, nil, "", fmt.Errorf("no %s column in file", gatechName)
	}
	pollutionIdx := columnIdx(gatechName + "_pollution")
	if pollutionIdx < 0 {
		return nil, nil, nil, "", fmt.Errorf("no %s_pollution column in file", gatechName)
	}
	var dateIdx [5]int
	for k, name := range []string{"YYYY", "MM", "DD", "hh", "min"} {
		dateIdx[k] = columnIdx(name)
		if dateIdx[k] < 0 {
			return nil, nil, nil, "", fmt.Errorf("no %s column in file", name)
		}
	}

	fileScale := ""
	if speciesIdx < len(scales) {
		fileScale = scales[speciesIdx]
	}

	var times []time.Time
	var mf []float64
	var pollution []string
	for _, line := range lines[formatLine+4:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		row := cells(line, specs)

		var parts [5]int
		ok := true
		for k := range dateIdx {
			v, err := strconv.Atoi(row[dateIdx[k]])
			if err != nil {
				ok = false
				break
			}
			parts[k] = v
		}
		if !ok {
			continue
		}
		t := time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], 0, 0, time.UTC)
		if t.Year() != parts[0] || int(t.Month()) != parts[1] || t.Day() != parts[2] ||
			t.Hour() != parts[3] || t.Minute() != parts[4] {
			continue
		}

		value := math.NaN()
		if v, err := strconv.ParseFloat(row[speciesIdx], 64); err == nil {
			value = v
		}
		// Zeros in the data columns after ABSDA mean no measurement
		if speciesIdx > absdaIdx && value == 0 {
			value = math.NaN()
		}

		times = append(times, t)
		mf = append(mf, value)
		pollution = append(pollution, row[pollutionIdx])
	}

	return times, mf, pollution, fileScale, nil
}
