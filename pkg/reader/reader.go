package reader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/archive"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/instrument"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/scale"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/selection"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// Tables at the top of the network data directory
const (
	attributesFile      = "attributes.json"
	aleGageSitesFile    = "ale_gage_sites.json"
	aleGageSpeciesFile  = "ale_gage_species.json"
	magnumSpeciesFile   = "gcms-magnum_species.json"
	timestampIssuesFile = "ale_gage_timestamp_issues.json"
	flaskSitesFile      = "attributes_site.json"
	scaleConvertFile    = "scale_convert.csv"
)

// Sub-directories holding the per-instrument and per-site selection tables
const (
	ScheduleDir    = "data_release_schedule"
	CombinationDir = "data_combination"
	ExcludeDir     = "data_exclude"
)

// DefaultScale requests the calibration scale recorded in the network's
// scale defaults table
const DefaultScale = "defaults"

// Options adjust how a dataset is read. The zero value gives the standard
// pipeline: exclusions applied, resampling allowed, NaN mole fractions
// dropped and the calibration scale taken from the defaults table.
type Options struct {
	// Scale is the target calibration scale. Empty or DefaultScale reads
	// the per-species target from the scale defaults table; a value of the
	// form defaults-<suffix> selects the scale_defaults-<suffix>.csv
	// variant; anything else is used directly.
	Scale string

	// KeepExcluded skips the data_exclude tables
	KeepExcluded bool

	// NoResample keeps the native time resolution for instruments that
	// would otherwise be averaged onto a coarser grid
	NoResample bool

	// KeepNaN keeps time points whose mole fraction is NaN
	KeepNaN bool
}

// aleGageSite describes one station in ale_gage_sites.json
type aleGageSite struct {
	GCWerksName        string  `json:"gcwerks_name"`
	TZ                 string  `json:"tz"`
	StationLongName    string  `json:"station_long_name"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	InletBaseElevation float64 `json:"inlet_base_elevation_masl"`
	InletHeight        float64 `json:"inlet_height"`
	DataOwner          string  `json:"data_owner"`
	DataOwnerEmail     string  `json:"data_owner_email"`
}

// gatechSpecies describes one species in ale_gage_species.json or
// gcms-magnum_species.json. The repeatability fields differ between the two
// tables, so the struct carries the union.
type gatechSpecies struct {
	SpeciesNameGatech        string  `json:"species_name_gatech"`
	Scale                    string  `json:"scale"`
	Units                    string  `json:"units"`
	ALERepeatabilityPercent  float64 `json:"ale_repeatability_percent"`
	GAGERepeatabilityPercent float64 `json:"gage_repeatability_percent"`
	RepeatabilityPercent     float64 `json:"repeatability_percent"`
}

// flaskSite describes one station in attributes_site.json. SamplingPeriod
// and InletHeight are pointers so that missing entries can be told apart
// from zero values.
type flaskSite struct {
	StationLongName    string   `json:"station_long_name"`
	InletLatitude      float64  `json:"inlet_latitude"`
	InletLongitude     float64  `json:"inlet_longitude"`
	InletBaseElevation float64  `json:"inlet_base_elevation_masl"`
	InletComment       string   `json:"inlet_comment"`
	DataOwner          string   `json:"data_owner"`
	DataOwnerEmail     string   `json:"data_owner_email"`
	SamplingPeriod     *int     `json:"sampling_period"`
	InletHeight        *float64 `json:"inlet_height"`
}

// Reader reads raw instrument data for one network. It resolves file
// locations through the configured sub-paths and caches the selection and
// attribute tables it loads along the way. Safe for concurrent use.
type Reader struct {
	paths    *config.Paths
	registry *instrument.Registry

	mu            sync.Mutex
	defaults      map[string]string
	schedules     map[string]*selection.ReleaseSchedule
	exclusions    map[string][]selection.Exclusion
	scaleDefaults map[string]*scale.Defaults
	converter     *scale.Converter
	sites         map[string]aleGageSite
	speciesTables map[string]map[string]gatechSpecies
	issues        map[string]map[string]map[string]interface{}
	flaskSites    map[string]flaskSite
}

// New builds a reader for a network, registering the instruments found in
// its release schedule tables
func New(paths *config.Paths) (*Reader, error) {
	files, err := archive.NewStore(paths.Root()).List(path.Join(ScheduleDir, "*.csv"), false)
	if err != nil {
		return nil, err
	}
	registry, err := instrument.NewRegistry(paths.Network, files)
	if err != nil {
		return nil, err
	}
	return &Reader{paths: paths, registry: registry}, nil
}

// Paths returns the path set the reader was built with
func (r *Reader) Paths() *config.Paths {
	return r.paths
}

// Registry returns the instrument registry built from the release schedules
func (r *Reader) Registry() *instrument.Registry {
	return r.registry
}

// Read reads one species at one site from the named instrument, dispatching
// to the reader for that instrument's raw format
func (r *Reader) Read(species, site, instrumentName string, opts Options) (*timeseries.Record, error) {
	switch {
	case isALEGAGE(instrumentName):
		return r.ReadALEGAGE(species, site, instrumentName, opts)
	case isMagnum(instrumentName):
		return r.ReadMagnum(species, site, instrumentName, opts)
	case isFlask(instrumentName):
		return r.ReadFlask(species, site, instrumentName, opts)
	default:
		return r.ReadNC(species, site, instrumentName, opts)
	}
}

func isALEGAGE(instrumentName string) bool {
	u := strings.ToUpper(instrumentName)
	return u == "ALE" || u == "GAGE"
}

func isMagnum(instrumentName string) bool {
	return strings.EqualFold(instrumentName, "GCMS-Magnum")
}

func isFlask(instrumentName string) bool {
	return strings.EqualFold(instrumentName, FlaskInstrument)
}

func (r *Reader) unit(species, site, instrumentName string) pipeline.Unit {
	return pipeline.Unit{
		Network:    r.paths.Network,
		Species:    species,
		Site:       site,
		Instrument: instrumentName,
	}
}

// rootFile reads one file from the top of the network data directory
func (r *Reader) rootFile(name string) ([]byte, error) {
	return archive.NewStore(r.paths.Root()).Open(name)
}

// subStore opens the store behind one of the configured sub-paths. The
// sub-path may point at a directory or at a zip or tar.gz archive.
func (r *Reader) subStore(key, site string) (*archive.Store, string, error) {
	sub, err := r.paths.Sub(key, site)
	if err != nil {
		return nil, "", err
	}
	full := filepath.Join(r.paths.Root(), filepath.FromSlash(sub))
	return archive.NewStore(full), sub, nil
}

// attributeDefaults loads attributes.json, the network-wide attribute
// values stamped onto every output dataset
func (r *Reader) attributeDefaults() (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.defaults != nil {
		return r.defaults, nil
	}
	data, err := r.rootFile(attributesFile)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, pipeline.Errorf(pipeline.KindMalformedInput,
			pipeline.Unit{Network: r.paths.Network},
			"failed to parse %s: %v", attributesFile, err)
	}
	defaults := make(map[string]string, len(raw))
	for k, v := range raw {
		defaults[k] = jsonString(v)
	}
	r.defaults = defaults
	return defaults, nil
}

// jsonString renders a JSON value the way it would appear as a netCDF
// string attribute
func jsonString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Schedule loads the release schedule table for an instrument
func (r *Reader) Schedule(instrumentName string) (*selection.ReleaseSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rs, ok := r.schedules[instrumentName]; ok {
		return rs, nil
	}
	name := path.Join(ScheduleDir, fmt.Sprintf("%s_%s.csv", ScheduleDir, instrumentName))
	data, err := r.rootFile(name)
	if err != nil {
		return nil, err
	}
	rs, err := selection.ReadReleaseSchedule(bytes.NewReader(data), instrumentName)
	if err != nil {
		return nil, err
	}
	if r.schedules == nil {
		r.schedules = make(map[string]*selection.ReleaseSchedule)
	}
	r.schedules[instrumentName] = rs
	return rs, nil
}

// Exclusions loads the data_exclude table for a site. Sites without a
// table have nothing excluded.
func (r *Reader) Exclusions(site string) ([]selection.Exclusion, error) {
	key := strings.ToUpper(site)
	r.mu.Lock()
	defer r.mu.Unlock()
	if rules, ok := r.exclusions[key]; ok {
		return rules, nil
	}
	if r.exclusions == nil {
		r.exclusions = make(map[string][]selection.Exclusion)
	}
	name := path.Join(ExcludeDir, fmt.Sprintf("%s_%s.csv", ExcludeDir, key))
	data, err := r.rootFile(name)
	if err != nil {
		if pipeline.KindOf(err) == pipeline.KindNotFound {
			r.exclusions[key] = nil
			return nil, nil
		}
		return nil, err
	}
	rules, err := selection.ReadExclusions(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	r.exclusions[key] = rules
	return rules, nil
}

// Combination returns the instrument epochs combined for one species at a
// site, in table row order. Sites without a combination table combine
// nothing.
func (r *Reader) Combination(site, species string) ([]selection.Epoch, error) {
	data, err := r.combinationFile(site)
	if err != nil || data == nil {
		return nil, err
	}
	return selection.ReadCombination(bytes.NewReader(data), species)
}

// CombinationSpecies lists the species in a site's combination table
func (r *Reader) CombinationSpecies(site string) ([]string, error) {
	data, err := r.combinationFile(site)
	if err != nil || data == nil {
		return nil, err
	}
	return selection.CombinationSpecies(bytes.NewReader(data))
}

func (r *Reader) combinationFile(site string) ([]byte, error) {
	name := path.Join(CombinationDir,
		fmt.Sprintf("%s_%s.csv", CombinationDir, strings.ToUpper(site)))
	data, err := r.rootFile(name)
	if err != nil {
		if pipeline.KindOf(err) == pipeline.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

// CombinationSites lists the sites that have combination tables, from the
// table file names
func (r *Reader) CombinationSites() ([]string, error) {
	files, err := archive.NewStore(r.paths.Root()).List(path.Join(CombinationDir, "*.csv"), false)
	if err != nil {
		if pipeline.KindOf(err) == pipeline.KindNotFound {
			return nil, nil
		}
		return nil, err
	}
	sites := make([]string, 0, len(files))
	for _, f := range files {
		base := path.Base(f)
		name, _, _ := strings.Cut(base, ".")
		i := strings.LastIndex(name, "_")
		if i < 0 || i == len(name)-1 {
			continue
		}
		sites = append(sites, name[i+1:])
	}
	return sites, nil
}

// aleGageSiteInfo returns the ale_gage_sites.json entry for a site
func (r *Reader) aleGageSiteInfo(site string) (aleGageSite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sites == nil {
		data, err := r.rootFile(aleGageSitesFile)
		if err != nil {
			return aleGageSite{}, err
		}
		if err := json.Unmarshal(data, &r.sites); err != nil {
			return aleGageSite{}, pipeline.Errorf(pipeline.KindMalformedInput,
				pipeline.Unit{Network: r.paths.Network},
				"failed to parse %s: %v", aleGageSitesFile, err)
		}
	}
	info, ok := r.sites[site]
	if !ok {
		return aleGageSite{}, pipeline.Errorf(pipeline.KindNotFound,
			pipeline.Unit{Network: r.paths.Network, Site: site},
			"site %s not found in %s", site, aleGageSitesFile)
	}
	return info, nil
}

// gatechSpeciesInfo returns one species entry from ale_gage_species.json or
// gcms-magnum_species.json
func (r *Reader) gatechSpeciesInfo(file, species string) (gatechSpecies, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	table, ok := r.speciesTables[file]
	if !ok {
		data, err := r.rootFile(file)
		if err != nil {
			return gatechSpecies{}, err
		}
		if err := json.Unmarshal(data, &table); err != nil {
			return gatechSpecies{}, pipeline.Errorf(pipeline.KindMalformedInput,
				pipeline.Unit{Network: r.paths.Network},
				"failed to parse %s: %v", file, err)
		}
		if r.speciesTables == nil {
			r.speciesTables = make(map[string]map[string]gatechSpecies)
		}
		r.speciesTables[file] = table
	}
	info, ok := table[formatting.Species(species)]
	if !ok {
		return gatechSpecies{}, pipeline.Errorf(pipeline.KindNotFound,
			pipeline.Unit{Network: r.paths.Network, Species: species},
			"species %s not found in %s", formatting.Species(species), file)
	}
	return info, nil
}

// timestampIssueTable returns the timestamp corrections for one instrument
// and site from ale_gage_timestamp_issues.json. Sites without issues return
// an empty table.
func (r *Reader) timestampIssueTable(instrumentName, site string) (timestampIssues, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.issues == nil {
		data, err := r.rootFile(timestampIssuesFile)
		if err != nil {
			if pipeline.KindOf(err) == pipeline.KindNotFound {
				r.issues = map[string]map[string]map[string]interface{}{}
			} else {
				return timestampIssues{}, err
			}
		} else if err := json.Unmarshal(data, &r.issues); err != nil {
			return timestampIssues{}, pipeline.Errorf(pipeline.KindMalformedInput,
				pipeline.Unit{Network: r.paths.Network},
				"failed to parse %s: %v", timestampIssuesFile, err)
		}
	}
	raw := r.issues[strings.ToUpper(instrumentName)][site]
	issues := timestampIssues{policy: keepFirst, replacements: make(map[string]string)}
	for k, v := range raw {
		if k == "duplicates" {
			switch t := v.(type) {
			case string:
				if t == "last" {
					issues.policy = keepLast
				}
			case bool:
				if !t {
					issues.policy = keepNone
				}
			}
			continue
		}
		if s, ok := v.(string); ok {
			issues.replacements[k] = s
		}
	}
	return issues, nil
}

// flaskSiteInfo returns the attributes_site.json entry for a site
func (r *Reader) flaskSiteInfo(site string) (flaskSite, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.flaskSites == nil {
		data, err := r.rootFile(flaskSitesFile)
		if err != nil {
			return flaskSite{}, err
		}
		if err := json.Unmarshal(data, &r.flaskSites); err != nil {
			return flaskSite{}, pipeline.Errorf(pipeline.KindMalformedInput,
				pipeline.Unit{Network: r.paths.Network},
				"failed to parse %s: %v", flaskSitesFile, err)
		}
	}
	info, ok := r.flaskSites[site]
	if !ok {
		return flaskSite{}, pipeline.Errorf(pipeline.KindNotFound,
			pipeline.Unit{Network: r.paths.Network, Site: site},
			"site %s not found in %s", site, flaskSitesFile)
	}
	return info, nil
}

// scaleDefaultsTable loads one scale defaults table by file name
func (r *Reader) scaleDefaultsTable(name string) (*scale.Defaults, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.scaleDefaults[name]; ok {
		return d, nil
	}
	data, err := r.rootFile(name)
	if err != nil {
		return nil, err
	}
	d, err := scale.NewDefaults(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if r.scaleDefaults == nil {
		r.scaleDefaults = make(map[string]*scale.Defaults)
	}
	r.scaleDefaults[name] = d
	return d, nil
}

// scaleConverter loads the calibration scale conversion table
func (r *Reader) scaleConverter() (*scale.Converter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.converter != nil {
		return r.converter, nil
	}
	data, err := r.rootFile(scaleConvertFile)
	if err != nil {
		return nil, err
	}
	c, err := scale.NewConverter(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	r.converter = c
	return c, nil
}

// TargetScale resolves the calibration scale a species should be published
// on. Empty and DefaultScale requests look the species up in the
// instrument's scale defaults table; defaults-<suffix> requests select the
// scale_defaults-<suffix>.csv variant; any other request is returned as the
// target itself.
func (r *Reader) TargetScale(species, instrumentName, requested string) (string, error) {
	switch {
	case requested == "" || requested == DefaultScale:
		files, err := archive.NewStore(r.paths.Root()).List("scale_defaults*.csv", false)
		if err != nil {
			return "", err
		}
		d, err := r.scaleDefaultsTable(scale.DefaultsFileName(files, instrumentName))
		if err != nil {
			return "", err
		}
		return d.Scale(species)
	case strings.HasPrefix(requested, DefaultScale+"-"):
		name := fmt.Sprintf("scale_defaults-%s.csv", strings.TrimPrefix(requested, DefaultScale+"-"))
		d, err := r.scaleDefaultsTable(name)
		if err != nil {
			return "", err
		}
		return d.Scale(species)
	default:
		return formatting.Scale(requested), nil
	}
}

// convertScale rescales a record onto the resolved target scale. A record
// already on the target passes through without loading the conversion
// table.
func (r *Reader) convertScale(rec *timeseries.Record, species, instrumentName, requested string) (*timeseries.Record, error) {
	target, err := r.TargetScale(species, instrumentName, requested)
	if err != nil {
		return nil, err
	}
	if target == "" || formatting.Scale(rec.Attrs.CalibrationScale) == target {
		return rec, nil
	}
	c, err := r.scaleConverter()
	if err != nil {
		return nil, err
	}
	return c.Convert(rec, target)
}
