package scale

import (
	"encoding/csv"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// Converter applies calibration scale conversions. It is built from a ratio
// table whose columns are named "TO/FROM" and hold per-species
// multiplicative factors, e.g.:
//
//	Species,SIO-98/SIO-93,SIO-05/SIO-98
//	cfc-11,1.0082,0.9945
//
// Conversions follow the shortest chain of table factors between two scales,
// inverting factors as needed, so converting to a scale and back is the
// identity up to float rounding.
type Converter struct {
	// factors[species]["FROM->TO"] = multiplier
	factors map[string]map[string]float64
	// edges[species][FROM] = reachable TO scales, insertion ordered
	edges map[string]map[string][]string
}

// NewConverter parses a scale conversion table
func NewConverter(r io.Reader) (*Converter, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse scale conversion table: %v", err)
	}
	if len(rows) < 1 || len(rows[0]) < 2 || rows[0][0] != "Species" {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, pipeline.Unit{},
			"scale conversion table must have a Species column followed by TO/FROM ratio columns")
	}

	type ratio struct{ to, from string }
	ratios := make([]ratio, 0, len(rows[0])-1)
	for _, col := range rows[0][1:] {
		parts := strings.Split(col, "/")
		if len(parts) != 2 {
			return nil, pipeline.Errorf(pipeline.KindConfiguration, pipeline.Unit{},
				"ratio column %q is not of the form TO/FROM", col)
		}
		ratios = append(ratios, ratio{
			to:   formatting.Scale(strings.TrimSpace(parts[0])),
			from: formatting.Scale(strings.TrimSpace(parts[1])),
		})
	}

	c := &Converter{
		factors: make(map[string]map[string]float64),
		edges:   make(map[string]map[string][]string),
	}
	for _, row := range rows[1:] {
		if len(row) == 0 || row[0] == "" {
			continue
		}
		species := formatting.Species(row[0])
		for i, cell := range row[1:] {
			cell = strings.TrimSpace(cell)
			if cell == "" || i >= len(ratios) {
				continue
			}
			f, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, pipeline.Errorf(pipeline.KindConfiguration, pipeline.Unit{Species: species},
					"bad conversion factor %q in column %s/%s", cell, ratios[i].to, ratios[i].from)
			}
			c.addFactor(species, ratios[i].from, ratios[i].to, f)
			c.addFactor(species, ratios[i].to, ratios[i].from, 1/f)
		}
	}
	return c, nil
}

func (c *Converter) addFactor(species, from, to string, f float64) {
	if c.factors[species] == nil {
		c.factors[species] = make(map[string]float64)
		c.edges[species] = make(map[string][]string)
	}
	key := from + "->" + to
	if _, exists := c.factors[species][key]; exists {
		return
	}
	c.factors[species][key] = f
	c.edges[species][from] = append(c.edges[species][from], to)
}

// factor finds the multiplier from one scale to another by breadth-first
// search over the table's ratio chain
func (c *Converter) factor(species, from, to string) (float64, bool) {
	edges, ok := c.edges[species]
	if !ok {
		return 0, false
	}

	type node struct {
		scale  string
		factor float64
	}
	visited := map[string]bool{from: true}
	queue := []node{{scale: from, factor: 1}}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if n.scale == to {
			return n.factor, true
		}
		for _, next := range edges[n.scale] {
			if visited[next] {
				continue
			}
			visited[next] = true
			queue = append(queue, node{
				scale:  next,
				factor: n.factor * c.factors[species][n.scale+"->"+next],
			})
		}
	}
	return 0, false
}

// Convert rescales a record onto the target calibration scale. Only the mole
// fraction and its repeatability change; all other slices and the time grid
// pass through untouched. An empty target or a target equal to the record's
// scale returns the record unchanged.
func (c *Converter) Convert(rec *timeseries.Record, target string) (*timeseries.Record, error) {
	if target == "" {
		return rec, nil
	}
	from := formatting.Scale(rec.Attrs.CalibrationScale)
	to := formatting.Scale(target)
	if from == to {
		return rec, nil
	}
	if from == "" {
		return nil, pipeline.Errorf(pipeline.KindConfiguration,
			pipeline.Unit{Species: rec.Attrs.Species},
			"record carries no calibration scale, cannot convert to %s", to)
	}

	species := formatting.Species(rec.Attrs.Species)
	f, ok := c.factor(species, from, to)
	if !ok {
		return nil, pipeline.Errorf(pipeline.KindConfiguration,
			pipeline.Unit{Species: rec.Attrs.Species},
			"no conversion from %s to %s in scale conversion table", from, to)
	}

	out := rec.Copy()
	for i := range out.MF {
		out.MF[i] *= f
	}
	for i := range out.MFRepeatability {
		out.MFRepeatability[i] *= f
	}
	out.Attrs.CalibrationScale = to
	return out, nil
}

// Defaults holds the target calibration scale per species
type Defaults struct {
	scales map[string]string
}

// NewDefaults parses a scale defaults table of Species,Scale rows
func NewDefaults(r io.Reader) (*Defaults, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse scale defaults table: %v", err)
	}

	d := &Defaults{scales: make(map[string]string)}
	for i, row := range rows {
		if i == 0 && strings.EqualFold(row[0], "Species") {
			continue
		}
		if len(row) < 2 || row[0] == "" {
			continue
		}
		d.scales[formatting.Species(row[0])] = strings.TrimSpace(row[1])
	}
	return d, nil
}

// Scale returns the default calibration scale for a species
func (d *Defaults) Scale(species string) (string, error) {
	s, ok := d.scales[formatting.Species(species)]
	if !ok {
		return "", pipeline.Errorf(pipeline.KindConfiguration,
			pipeline.Unit{Species: species},
			"species %s not found in scale defaults table", formatting.Species(species))
	}
	return formatting.Scale(s), nil
}

// DefaultsFileName picks the scale defaults table for an instrument from a
// network's file listing: scale_defaults-<instrument>.csv when such a
// variant exists, otherwise the shared scale_defaults.csv
func DefaultsFileName(files []string, instrument string) string {
	variant := fmt.Sprintf("scale_defaults-%s.csv", strings.ToLower(instrument))
	for _, f := range files {
		if path.Base(f) == variant {
			return variant
		}
	}
	return "scale_defaults.csv"
}
