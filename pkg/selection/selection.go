package selection

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// GeneralReleaseDate is the header keyword carrying a sheet-wide release
// date, written as a "# GENERAL RELEASE DATE: <date>" comment line
const GeneralReleaseDate = "GENERAL RELEASE DATE"

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
}

// ParseDate parses a date cell in any of the layouts the selection tables
// use, from bare year-month down to full timestamps
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse date %q", s)
}

// ReleaseSchedule is one instrument's release table: species rows against
// site columns, each cell holding the date after which data is withheld from
// publication. A cell of "x" marks the pair as not released at all, and an
// empty cell falls back to the sheet's general release date.
type ReleaseSchedule struct {
	instrument string
	general    time.Time
	sites      []string
	species    []string
	cells      map[string]string
}

// ReadReleaseSchedule parses a release schedule table for one instrument
func ReadReleaseSchedule(r io.Reader, instrument string) (*ReleaseSchedule, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read release schedule: %v", err)
	}

	rs := &ReleaseSchedule{
		instrument: instrument,
		cells:      make(map[string]string),
	}

	var data []string
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			data = append(data, line)
			continue
		}
		key, value, found := strings.Cut(strings.TrimLeft(trimmed, "# "), ":")
		if !found {
			continue
		}
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(key)), "GENERAL") {
			t, err := ParseDate(value)
			if err != nil {
				return nil, pipeline.Errorf(pipeline.KindConfiguration,
					pipeline.Unit{Instrument: instrument},
					"bad general release date in schedule: %v", err)
			}
			rs.general = t
		}
	}

	cr := csv.NewReader(strings.NewReader(strings.Join(data, "\n")))
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse release schedule: %v", err)
	}
	if len(rows) < 2 || len(rows[0]) < 2 {
		return nil, pipeline.Errorf(pipeline.KindConfiguration,
			pipeline.Unit{Instrument: instrument},
			"release schedule has no species rows or site columns")
	}

	for _, site := range rows[0][1:] {
		rs.sites = append(rs.sites, strings.ToUpper(strings.TrimSpace(site)))
	}
	for _, row := range rows[1:] {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		species := formatting.Species(row[0])
		rs.species = append(rs.species, species)
		for i, cell := range row[1:] {
			if i >= len(rs.sites) {
				break
			}
			rs.cells[species+"|"+rs.sites[i]] = strings.TrimSpace(cell)
		}
	}
	return rs, nil
}

// Instrument returns the instrument this schedule belongs to
func (rs *ReleaseSchedule) Instrument() string {
	return rs.instrument
}

// Species returns the species rows in table order
func (rs *ReleaseSchedule) Species() []string {
	return rs.species
}

// Sites returns the site columns in table order
func (rs *ReleaseSchedule) Sites() []string {
	return rs.sites
}

// Excluded reports whether a species and site pair is marked "x", meaning it
// must not be processed. Pairs absent from the table are also excluded.
func (rs *ReleaseSchedule) Excluded(species, site string) bool {
	cell, ok := rs.cells[formatting.Species(species)+"|"+strings.ToUpper(site)]
	if !ok {
		return true
	}
	return strings.EqualFold(cell, "x")
}

// Cutoff returns the release cutoff date for a species and site. Empty
// cells inherit the sheet's general release date; a pair that is absent,
// marked "x", or left without any date is a configuration error.
func (rs *ReleaseSchedule) Cutoff(species, site string) (time.Time, error) {
	unit := pipeline.Unit{Species: species, Site: site, Instrument: rs.instrument}
	cell, ok := rs.cells[formatting.Species(species)+"|"+strings.ToUpper(site)]
	if !ok {
		return time.Time{}, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"no release schedule entry")
	}
	if strings.EqualFold(cell, "x") {
		return time.Time{}, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"marked as not for release")
	}
	if cell == "" {
		if rs.general.IsZero() {
			return time.Time{}, pipeline.Errorf(pipeline.KindConfiguration, unit,
				"no release date and no general release date in schedule")
		}
		return rs.general, nil
	}
	t, err := ParseDate(cell)
	if err != nil {
		return time.Time{}, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"bad release date: %v", err)
	}
	return t, nil
}

// Epoch assigns one instrument to a window of a combined record. A zero
// Start or End leaves that side of the window open.
type Epoch struct {
	Instrument string
	Start      time.Time
	End        time.Time
}

type combinationRow struct {
	species    string
	instrument string
	start, end time.Time
}

func parseCombination(r io.Reader) ([]combinationRow, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse data combination table: %v", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols, err := columnIndex(rows[0], "Species", "Instrument", "Start", "End")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindConfiguration, pipeline.Unit{}, err)
	}

	var out []combinationRow
	for _, row := range rows[1:] {
		species := cell(row, cols["Species"])
		instrument := cell(row, cols["Instrument"])
		if species == "" || instrument == "" {
			continue
		}
		c := combinationRow{
			species:    formatting.Species(species),
			instrument: instrument,
		}
		if c.start, err = optionalDate(cell(row, cols["Start"])); err != nil {
			return nil, pipeline.Wrap(pipeline.KindConfiguration, pipeline.Unit{Species: species}, err)
		}
		if c.end, err = optionalDate(cell(row, cols["End"])); err != nil {
			return nil, pipeline.Wrap(pipeline.KindConfiguration, pipeline.Unit{Species: species}, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// ReadCombination parses a site's instrument combination table and returns
// the epochs configured for one species, in file row order. Row order
// defines epoch order, which the combiner preserves.
func ReadCombination(r io.Reader, species string) ([]Epoch, error) {
	rows, err := parseCombination(r)
	if err != nil {
		return nil, err
	}
	want := formatting.Species(species)
	var epochs []Epoch
	for _, row := range rows {
		if row.species != want {
			continue
		}
		epochs = append(epochs, Epoch{
			Instrument: row.instrument,
			Start:      row.start,
			End:        row.end,
		})
	}
	return epochs, nil
}

// CombinationSpecies lists the species named in a combination table, in
// first-appearance order
func CombinationSpecies(r io.Reader) ([]string, error) {
	rows, err := parseCombination(r)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var species []string
	for _, row := range rows {
		if seen[row.species] {
			continue
		}
		seen[row.species] = true
		species = append(species, row.species)
	}
	return species, nil
}

// Exclusion is one operator-flagged stretch of bad data. An interval whose
// start equals its end names a single timestamp; CombinedOnly rules apply
// only when building combined records.
type Exclusion struct {
	Species      string
	Instrument   string
	Start        time.Time
	End          time.Time
	CombinedOnly bool
}

// point reports whether the exclusion names one exact timestamp
func (e Exclusion) point() bool {
	return !e.Start.IsZero() && e.Start.Equal(e.End)
}

func (e Exclusion) contains(t time.Time) bool {
	if !e.Start.IsZero() && t.Before(e.Start) {
		return false
	}
	if !e.End.IsZero() && t.After(e.End) {
		return false
	}
	return true
}

// ReadExclusions parses a site's data exclusion table. The Scope column is
// optional; rows scoped "combined" become CombinedOnly.
func ReadExclusions(r io.Reader) ([]Exclusion, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse data exclusion table: %v", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	cols, err := columnIndex(rows[0], "Species", "Instrument", "Start", "End")
	if err != nil {
		return nil, pipeline.Wrap(pipeline.KindConfiguration, pipeline.Unit{}, err)
	}
	scope := -1
	for i, name := range rows[0] {
		if strings.EqualFold(strings.TrimSpace(name), "Scope") {
			scope = i
		}
	}

	var out []Exclusion
	for _, row := range rows[1:] {
		species := cell(row, cols["Species"])
		if species == "" {
			continue
		}
		e := Exclusion{
			Species:    formatting.Species(species),
			Instrument: cell(row, cols["Instrument"]),
		}
		if e.Start, err = optionalDate(cell(row, cols["Start"])); err != nil {
			return nil, pipeline.Wrap(pipeline.KindConfiguration, pipeline.Unit{Species: species}, err)
		}
		if e.End, err = optionalDate(cell(row, cols["End"])); err != nil {
			return nil, pipeline.Wrap(pipeline.KindConfiguration, pipeline.Unit{Species: species}, err)
		}
		if scope >= 0 {
			e.CombinedOnly = strings.EqualFold(cell(row, scope), "combined")
		}
		out = append(out, e)
	}
	return out, nil
}

// ApplyExclusions removes or blanks the excluded stretches of a record and
// reports how many rules matched. Interval rules are inclusive at both ends
// and delete whole rows; point rules blank the mole fraction and its
// repeatability at the exact timestamp. Rules for other species or
// instruments are ignored, as are combined-only rules unless combined is
// set. The input record is not modified.
func ApplyExclusions(rec *timeseries.Record, rules []Exclusion, species, instrument string, combined bool) (*timeseries.Record, int) {
	want := formatting.Species(species)
	var active []Exclusion
	for _, rule := range rules {
		if rule.Species != want {
			continue
		}
		if !strings.EqualFold(rule.Instrument, instrument) {
			continue
		}
		if rule.CombinedOnly && !combined {
			continue
		}
		active = append(active, rule)
	}
	if len(active) == 0 {
		return rec, 0
	}

	out := rec.Copy()
	for _, rule := range active {
		if !rule.point() {
			continue
		}
		for i, t := range out.Time {
			if !t.Equal(rule.Start) {
				continue
			}
			if out.MF != nil {
				out.MF[i] = math.NaN()
			}
			if out.MFRepeatability != nil {
				out.MFRepeatability[i] = math.NaN()
			}
		}
	}

	keep := make([]int, 0, out.Len())
	for i, t := range out.Time {
		drop := false
		for _, rule := range active {
			if rule.point() {
				continue
			}
			if rule.contains(t) {
				drop = true
				break
			}
		}
		if !drop {
			keep = append(keep, i)
		}
	}
	if len(keep) < out.Len() {
		out = out.Select(keep)
	}
	return out, len(active)
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	cols := make(map[string]int)
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	out := make(map[string]int)
	for _, name := range required {
		i, ok := cols[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("missing column %s", name)
		}
		out[name] = i
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func optionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return ParseDate(s)
}
