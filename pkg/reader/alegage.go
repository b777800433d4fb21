package reader

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/archive"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/log"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/selection"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// dupPolicy resolves repeated timestamps within one monthly file
type dupPolicy int

const (
	keepFirst dupPolicy = iota
	keepLast
	keepNone
)

// timestampIssues corrects known problems in the Georgia Tech files: bad
// timestamp strings are replaced one for one, and the duplicate policy says
// which of a file's repeated timestamps survive
type timestampIssues struct {
	policy       dupPolicy
	replacements map[string]string
}

// Missing value marker in ALE/GAGE files
const aleGageNA = -99.9

const gatechProvenance = "This data was originally processed by Georgia Institute " +
	"of Technology, from the original files and has now been reprocessed into netCDF format."

// ReadALEGAGE reads the Georgia Tech ALE or GAGE record for one species at
// a site, converted to UTC and onto the target calibration scale
func (r *Reader) ReadALEGAGE(species, site, instrumentName string, opts Options) (*timeseries.Record, error) {
	rec, err := r.readALEGAGE(species, site, instrumentName, opts)
	if err != nil {
		return nil, err
	}
	rec.Baseline = nil
	return r.convertScale(rec, species, instrumentName, opts.Scale)
}

// readALEGAGE builds the full record including the pollution-derived
// baseline flag
func (r *Reader) readALEGAGE(species, site, instrumentName string, opts Options) (*timeseries.Record, error) {
	unit := r.unit(species, site, instrumentName)
	logger := log.WithUnit(species, site, instrumentName)

	if !strings.Contains(r.paths.Network, "agage") {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"network must be agage or agage_test")
	}
	inst := strings.ToUpper(instrumentName)
	if inst != "ALE" && inst != "GAGE" {
		return nil, pipeline.Errorf(pipeline.KindUnknownInstrument, unit,
			"instrument must be ALE or GAGE")
	}

	siteInfo, err := r.aleGageSiteInfo(site)
	if err != nil {
		return nil, err
	}
	spInfo, err := r.gatechSpeciesInfo(aleGageSpeciesFile, species)
	if err != nil {
		return nil, err
	}
	issues, err := r.timestampIssueTable(inst, site)
	if err != nil {
		return nil, err
	}
	loc, err := fixedZone(siteInfo.TZ)
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindConfiguration, unit, err)
	}

	key := config.ALEPath
	if inst == "GAGE" {
		key = config.GAGEPath
	}
	store, _, err := r.subStore(key, "")
	if err != nil {
		return nil, err
	}
	tarName := siteInfo.GCWerksName + "_sio1993.gtar.gz"
	data, err := store.Open(tarName)
	if err != nil {
		return nil, err
	}
	members, err := archive.TarGzMembers(data, "")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit, err)
	}

	var times []time.Time
	var mf []float64
	var pollution []string
	for _, m := range members {
		ft, fmf, fpol, err := parseALEGAGEFile(m.Data, spInfo.SpeciesNameGatech, issues, loc, logger)
		if err != nil {
			return nil, pipeline.Wrap(pipeline.KindMalformedInput, unit,
				fmt.Errorf("failed to read %s: %v", m.Name, err))
		}
		times = append(times, ft...)
		mf = append(mf, fmf...)
		pollution = append(pollution, fpol...)
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
	pct := spInfo.ALERepeatabilityPercent
	if inst == "GAGE" {
		pct = spInfo.GAGERepeatabilityPercent
	}

	rec := timeseries.New(n)
	rec.Time = times
	rec.MFCount = nil
	rec.InletHeight = make([]float64, n)
	rec.Baseline = make([]int8, n)
	for i := 0; i < n; i++ {
		rec.MF[i] = mf[i]
		rec.MFRepeatability[i] = mf[i] * pct / 100
		rec.SamplingPeriod[i] = 1
		rec.InletHeight[i] = siteInfo.InletHeight
		if pollution[i] != "P" {
			rec.Baseline[i] = 1
		}
	}

	rec.Attrs.Comment = fmt.Sprintf("%s %s data from %s. %s",
		inst, species, siteInfo.StationLongName, gatechProvenance)
	rec.Attrs.DataOwner = siteInfo.DataOwner
	rec.Attrs.DataOwnerEmail = siteInfo.DataOwnerEmail
	rec.Attrs.StationLongName = siteInfo.StationLongName
	rec.Attrs.InletBaseElevation = siteInfo.InletBaseElevation
	rec.Attrs.InletLatitude = siteInfo.Latitude
	rec.Attrs.InletLongitude = siteInfo.Longitude

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
	rec.Attrs.CalibrationScale = formatting.Scale(spInfo.Scale)
	rec.Attrs.Units = formatting.Units(spInfo.Units)
	record := timeseries.InstrumentRecord{Instrument: inst + "_GCMD"}
	if inst == "ALE" {
		record.Comment = "NOTE: Some data points may have been removed from the original dataset " +
			"because they were not felt to be representative of the baseline air masses " +
			"(Paul Fraser, pers. comm.). "
	}
	rec.Attrs.Instrument = record.Instrument
	rec.Attrs.InstrumentRecords = []timeseries.InstrumentRecord{record}
	if err := r.stampInstrumentType(rec, inst); err != nil {
		return nil, err
	}

	if !opts.KeepExcluded {
		rules, err := r.Exclusions(site)
		if err != nil {
			return nil, err
		}
		var applied int
		rec, applied = selection.ApplyExclusions(rec, rules, species, inst, false)
		if applied > 0 {
			logger.Debug().Int("rules", applied).Msg("applied exclusions")
		}
	}

	rs, err := r.Schedule(inst)
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

// parseALEGAGEFile reads one fixed-width monthly file. The first line holds
// the site code, two-digit year and month name; the second names the
// columns; each data row carries a day, a time of day and a
// (value, pollution flag) pair per species.
func parseALEGAGEFile(data []byte, gatechName string, issues timestampIssues,
	loc *time.Location, logger zerolog.Logger) ([]time.Time, []float64, []string, error) {

	lines := strings.Split(string(data), "\n")
	if len(lines) < 3 {
		return nil, nil, nil, nil
	}
	meta := strings.TrimSpace(strings.TrimRight(lines[0], "\r"))
	var year, month string
	if len(meta) >= 7 {
		year, month = meta[2:4], meta[4:7]
	}

	header := strings.Fields(strings.TrimRight(lines[1], "\r"))
	speciesIdx := -1
	if len(header) > 3 {
		for k, name := range header[3:] {
			if strings.ReplaceAll(name, "'", "") == gatechName {
				speciesIdx = k
				break
			}
		}
	}

	var times []time.Time
	var mf []float64
	var pollution []string
	for _, line := range lines[2:] {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		day, err1 := strconv.Atoi(strings.TrimSpace(lineField(line, 0, 3)))
		tod, err2 := strconv.Atoi(strings.TrimSpace(lineField(line, 3, 8)))
		if err1 != nil || err2 != nil {
			return nil, nil, nil, fmt.Errorf("failed to parse day and time in row %q", line)
		}

		ts := fmt.Sprintf("%02d-%s-%s %04d", day, month, year, tod)
		if fixed, ok := issues.replacements[ts]; ok {
			logger.Info().Str("from", ts).Str("to", fixed).Msg("corrected timestamp issue")
			ts = fixed
		}
		t, err := parseGatechTimestamp(ts, loc)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to parse timestamp %q, check timestamp issues: %v", ts, err)
		}

		value := math.NaN()
		flag := ""
		if speciesIdx >= 0 {
			start := 15 + speciesIdx*8
			cell := strings.TrimSpace(lineField(line, start, start+7))
			if v, err := strconv.ParseFloat(cell, 64); err == nil && v != aleGageNA {
				value = v
			}
			flag = strings.TrimSpace(lineField(line, start+7, start+8))
		}

		times = append(times, t)
		mf = append(mf, value)
		pollution = append(pollution, flag)
	}

	times, mf, pollution = applyDupPolicy(times, mf, pollution, issues.policy)
	return times, mf, pollution, nil
}

// applyDupPolicy drops repeated timestamps within one file according to the
// site's configured policy
func applyDupPolicy(times []time.Time, mf []float64, pollution []string,
	policy dupPolicy) ([]time.Time, []float64, []string) {

	keep := make([]bool, len(times))
	switch policy {
	case keepFirst:
		seen := make(map[time.Time]bool, len(times))
		for i, t := range times {
			if !seen[t] {
				keep[i] = true
				seen[t] = true
			}
		}
	case keepLast:
		last := make(map[time.Time]int, len(times))
		for i, t := range times {
			last[t] = i
		}
		for i, t := range times {
			keep[i] = last[t] == i
		}
	case keepNone:
		counts := make(map[time.Time]int, len(times))
		for _, t := range times {
			counts[t]++
		}
		for i, t := range times {
			keep[i] = counts[t] == 1
		}
	}

	outT := times[:0]
	outM := mf[:0]
	outP := pollution[:0]
	for i := range times {
		if keep[i] {
			outT = append(outT, times[i])
			outM = append(outM, mf[i])
			outP = append(outP, pollution[i])
		}
	}
	return outT, outM, outP
}

// parseGatechTimestamp parses a DD-MON-YY HHMM timestamp in the site's
// local time and converts it to UTC. Month names in the files are upper
// case, which the reference-layout parser rejects as written.
func parseGatechTimestamp(s string, loc *time.Location) (time.Time, error) {
	if len(s) >= 6 {
		s = s[:3] + monthTitleCase(s[3:6]) + s[6:]
	}
	t, err := time.ParseInLocation("02-Jan-06 1504", s, loc)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func monthTitleCase(m string) string {
	if m == "" {
		return m
	}
	return strings.ToUpper(m[:1]) + strings.ToLower(m[1:])
}

// fixedZone builds a fixed-offset location from a site timezone entry such
// as UTC-10
func fixedZone(tz string) (*time.Location, error) {
	_, off, ok := strings.Cut(tz, "UTC")
	if !ok {
		return nil, fmt.Errorf("failed to parse timezone %q", tz)
	}
	if off == "" {
		return time.UTC, nil
	}
	hours, err := strconv.Atoi(off)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timezone %q: %v", tz, err)
	}
	return time.FixedZone(tz, hours*3600), nil
}

// lineField slices a fixed-width field, tolerating short lines
func lineField(line string, start, end int) string {
	if start > len(line) {
		start = len(line)
	}
	if end > len(line) {
		end = len(line)
	}
	return line[start:end]
}

// sortByTime stably sorts the three parallel slices by timestamp
func sortByTime(times []time.Time, mf []float64, pollution []string) ([]time.Time, []float64, []string) {
	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]].Before(times[idx[b]]) })

	outT := make([]time.Time, len(times))
	outM := make([]float64, len(times))
	outP := make([]string, len(times))
	for i, j := range idx {
		outT[i] = times[j]
		outM[i] = mf[j]
		outP[i] = pollution[j]
	}
	return outT, outM, outP
}

// duplicateTimes lists every occurrence of a repeated timestamp in a sorted
// slice
func duplicateTimes(times []time.Time) []string {
	var out []string
	for i := 0; i < len(times); {
		j := i + 1
		for j < len(times) && times[j].Equal(times[i]) {
			j++
		}
		if j-i > 1 {
			for k := i; k < j; k++ {
				out = append(out, times[k].UTC().Format(timeseries.TimeFormat))
			}
		}
		i = j
	}
	return out
}
