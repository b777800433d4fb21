package instrument

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

// Undefined is the code for sources whose instrument cannot be determined
const Undefined = -1

// UndefinedName is the registry name paired with the Undefined code
const UndefinedName = "UNDEFINED"

// Instruments measuring more often than their minimum averaging period are
// block-averaged onto it. The threshold guards against resampling data that
// is already averaged: only records whose median sampling interval is below
// it are resampled.
const ResampleThreshold = 10 * time.Minute

var minimumAveragingPeriods = map[string]time.Duration{
	"Picarro": time.Hour,
}

// Registry maps instrument names to the numeric codes used in the
// instrument_type variable of output datasets. Codes derive from the sorted
// enumeration of release schedule files, so the same file set always yields
// the same codes. A Registry is immutable once built.
type Registry struct {
	network string
	codes   map[string]int
	names   []string
}

// NewRegistry builds a registry for a network from its release schedule file
// listing. Each file contributes one instrument, named by the last
// underscore-separated component of the file name; codes are assigned
// 0, 1, 2... over the sorted file names, with UNDEFINED fixed at -1.
func NewRegistry(network string, scheduleFiles []string) (*Registry, error) {
	if len(scheduleFiles) == 0 {
		return nil, pipeline.Errorf(pipeline.KindConfiguration,
			pipeline.Unit{Network: network},
			"no data release schedule files found")
	}

	sorted := append([]string(nil), scheduleFiles...)
	sort.Strings(sorted)

	r := &Registry{
		network: network,
		codes:   map[string]int{UndefinedName: Undefined},
		names:   []string{UndefinedName},
	}
	for _, f := range sorted {
		name := instrumentFromFilename(f)
		if name == "" {
			return nil, pipeline.Errorf(pipeline.KindConfiguration,
				pipeline.Unit{Network: network},
				"cannot determine instrument from release schedule file %s", f)
		}
		if _, dup := r.codes[name]; dup {
			continue
		}
		r.codes[name] = len(r.names) - 1
		r.names = append(r.names, name)
	}
	return r, nil
}

// instrumentFromFilename extracts the instrument name from a release
// schedule file name such as data_release_schedule_GCMD.csv
func instrumentFromFilename(f string) string {
	base := path.Base(strings.ReplaceAll(f, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	i := strings.LastIndex(base, "_")
	if i < 0 || i == len(base)-1 {
		return ""
	}
	return base[i+1:]
}

// Network returns the network the registry was built for
func (r *Registry) Network() string {
	return r.network
}

// Instruments returns the registered instrument names, excluding UNDEFINED,
// in code order
func (r *Registry) Instruments() []string {
	return append([]string(nil), r.names[1:]...)
}

// Lookup returns the code for an instrument name. Exact matches win; failing
// that, the first registered name contained in the queried name matches, so
// variants like Picarro-1 resolve to the Picarro code.
func (r *Registry) Lookup(instrument string) (int, error) {
	if len(instrument) <= 1 {
		return Undefined, pipeline.Errorf(pipeline.KindUnknownInstrument,
			pipeline.Unit{Network: r.network},
			"instrument name %q too short", instrument)
	}
	if code, ok := r.codes[instrument]; ok {
		return code, nil
	}
	for _, name := range r.names {
		if strings.Contains(instrument, name) {
			return r.codes[name], nil
		}
	}
	return Undefined, pipeline.Errorf(pipeline.KindUnknownInstrument,
		pipeline.Unit{Network: r.network, Instrument: instrument},
		"instrument %s not found in release schedule", instrument)
}

// Name returns the instrument name for a code
func (r *Registry) Name(code int) (string, error) {
	for name, c := range r.codes {
		if c == code {
			return name, nil
		}
	}
	return "", pipeline.Errorf(pipeline.KindUnknownInstrument,
		pipeline.Unit{Network: r.network},
		"no instrument with code %d", code)
}

// Names returns the registered names carrying any of the given codes, in
// registry order. Used to summarize the instruments present in a combined
// record.
func (r *Registry) Names(codes []int) []string {
	want := make(map[int]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}
	var out []string
	for _, name := range r.names {
		if want[r.codes[name]] {
			out = append(out, name)
		}
	}
	return out
}

// Definition renders the full code table for the instrument_type variable
// comment, e.g. "UNDEFINED=-1, ALE=0, GAGE=1"
func (r *Registry) Definition() string {
	parts := make([]string, len(r.names))
	for i, name := range r.names {
		parts[i] = fmt.Sprintf("%s=%d", name, r.codes[name])
	}
	return strings.Join(parts, ", ")
}

// MinimumAveragingPeriod returns the configured averaging period for an
// instrument, matching on name containment
func MinimumAveragingPeriod(instrument string) (time.Duration, bool) {
	for name, period := range minimumAveragingPeriods {
		if strings.Contains(instrument, name) {
			return period, true
		}
	}
	return 0, false
}

// Instrument families routed to each raw data sub-path
var (
	mdInstruments      = []string{"GCMD", "GCECD", "GCPDD"}
	opticalInstruments = []string{"Picarro", "LGR"}
	gcmsInstruments    = []string{"GCMS-ADS", "GCMS-Medusa", "GCMS-MteCimone", "GCTOFMS", "GCMS"}
)

// PathKey returns the config sub-path key holding raw GCWerks files for the
// instrument
func PathKey(instrument string) (string, error) {
	for _, m := range mdInstruments {
		if strings.Contains(instrument, m) {
			return config.MDPath, nil
		}
	}
	for _, o := range opticalInstruments {
		if strings.Contains(instrument, o) {
			return config.OpticalPath, nil
		}
	}
	for _, g := range gcmsInstruments {
		if strings.Contains(instrument, g) {
			return config.GCMSPath, nil
		}
	}
	return "", pipeline.Errorf(pipeline.KindUnknownInstrument,
		pipeline.Unit{Instrument: instrument},
		"instrument must be one of %v %v %v", mdInstruments, opticalInstruments, gcmsInstruments)
}
