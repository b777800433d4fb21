package reader

import (
	"strings"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// DefaultBaselineFlag names the Georgia Tech statistical filtering flag,
// the only baseline scheme available for ALE, GAGE and GCMS Magnum data
const DefaultBaselineFlag = "git_pollution_flag"

// ReadBaseline reads the baseline flag for one species at a site as a
// record of its own, carrying the flag values and the provenance of the
// filtering scheme. GCWerks files may offer flags beyond the default, such
// as met_office_baseline_flag.
func (r *Reader) ReadBaseline(species, site, instrumentName, flagName string, opts Options) (*timeseries.Record, error) {
	unit := r.unit(species, site, instrumentName)
	if flagName == "" {
		flagName = DefaultBaselineFlag
	}

	var rec *timeseries.Record
	var err error
	switch {
	case isALEGAGE(instrumentName):
		if flagName != DefaultBaselineFlag {
			return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
				"only %s is available for ALE/GAGE data", DefaultBaselineFlag)
		}
		rec, err = r.readALEGAGE(species, site, instrumentName, opts)
	case isMagnum(instrumentName):
		if flagName != DefaultBaselineFlag {
			return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
				"only %s is available for %s data", DefaultBaselineFlag, instrumentName)
		}
		rec, err = r.readMagnum(species, site, instrumentName, opts)
	default:
		rec, err = r.readNC(species, site, instrumentName, opts, flagName)
	}
	if err != nil {
		return nil, err
	}
	if rec.Baseline == nil {
		return nil, pipeline.Errorf(pipeline.KindMisalignedBaseline, unit,
			"no %s flag in %s data", flagName, instrumentName)
	}

	flagAttrs, ok := formatting.BaselineFlagAttrs(flagName)
	if !ok {
		return nil, pipeline.Errorf(pipeline.KindConfiguration, unit,
			"no attributes defined for baseline flag %s", flagName)
	}

	data := rec.Attrs
	out := &timeseries.Record{Time: rec.Time, Baseline: rec.Baseline}
	out.Attrs.Comment = flagAttrs["comment"]
	out.Attrs.SetExtra("citation", flagAttrs["citation"])
	out.Attrs.SetExtra("contact", flagAttrs["contact"])
	out.Attrs.SetExtra("contact_email", flagAttrs["contact_email"])
	out.Attrs.SetExtra("baseline_flag", flagName)

	out.Attrs.InletLatitude = data.InletLatitude
	out.Attrs.InletLongitude = data.InletLongitude
	out.Attrs.InletBaseElevation = data.InletBaseElevation
	out.Attrs.StationLongName = data.StationLongName
	out.Attrs.FileCreatedBy = data.FileCreatedBy
	for _, key := range []string{"doi", "processing_code_url", "processing_code_version"} {
		if v := data.GetExtra(key); v != "" {
			out.Attrs.SetExtra(key, v)
		}
	}

	code, err := r.registry.Lookup(instrumentName)
	if err != nil {
		return nil, err
	}
	typeName, err := r.registry.Name(code)
	if err != nil {
		return nil, err
	}
	defaults, err := r.attributeDefaults()
	if err != nil {
		return nil, err
	}

	out.Attrs.SiteCode = strings.ToUpper(site)
	out.Attrs.Species = formatting.Species(species)
	out.Attrs.Network = r.paths.Network
	out.Attrs.Instrument = instrumentName
	out.Attrs.InstrumentType = typeName
	out.Attrs.ProductType = "baseline flag"
	out.Attrs.InstrumentSelection = "Individual instruments"
	out.Attrs.Frequency = "high-frequency"
	out.Attrs.Version = defaults["version"]
	if out.Len() > 0 {
		out.Attrs.SetTimeRange(out.Time[0], out.Time[out.Len()-1])
	}
	return out, nil
}
