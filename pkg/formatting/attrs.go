package formatting

import (
	"fmt"
	"strconv"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// SetAttr assigns a global attribute to its field by dataset attribute name.
// Numeric fields are parsed from their string form; names without a fixed
// field land in Extra.
func SetAttr(attrs *timeseries.Attrs, name, value string) {
	switch name {
	case "species":
		attrs.Species = value
	case "site_code":
		attrs.SiteCode = value
	case "network":
		attrs.Network = value
	case "instrument":
		attrs.Instrument = value
	case "instrument_type":
		attrs.InstrumentType = value
	case "calibration_scale":
		attrs.CalibrationScale = value
	case "units":
		attrs.Units = value
	case "comment":
		attrs.Comment = value
	case "station_long_name":
		attrs.StationLongName = value
	case "inlet_latitude":
		attrs.InletLatitude = parseFloat(value)
	case "inlet_longitude":
		attrs.InletLongitude = parseFloat(value)
	case "inlet_base_elevation_masl":
		attrs.InletBaseElevation = parseFloat(value)
	case "inlet_comment":
		attrs.InletComment = value
	case "data_owner":
		attrs.DataOwner = value
	case "data_owner_email":
		attrs.DataOwnerEmail = value
	case "version":
		attrs.Version = value
	case "frequency":
		attrs.Frequency = value
	case "product_type":
		attrs.ProductType = value
	case "instrument_selection":
		attrs.InstrumentSelection = value
	case "file_created":
		attrs.FileCreated = value
	case "file_created_by":
		attrs.FileCreatedBy = value
	case "start_date":
		attrs.StartDate = value
	case "end_date":
		attrs.EndDate = value
	default:
		attrs.SetExtra(name, value)
	}
}

// ApplyDefaults applies a network's default attribute table, such as the
// contents of attributes.json
func ApplyDefaults(attrs *timeseries.Attrs, defaults map[string]string) {
	for name, value := range defaults {
		SetAttr(attrs, name, value)
	}
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// FlattenInstrumentRecords renders instrument provenance records into
// numbered attributes. The first record occupies the unnumbered instrument,
// instrument_date and instrument_comment names; later records carry an
// index suffix. Empty values are omitted.
func FlattenInstrumentRecords(records []timeseries.InstrumentRecord) map[string]string {
	out := make(map[string]string)
	for i, rec := range records {
		prefix := "instrument"
		if i > 0 {
			prefix = fmt.Sprintf("instrument_%d", i)
		}
		if rec.Instrument != "" {
			out[prefix] = rec.Instrument
		}
		if rec.Date != "" {
			out[prefix+"_date"] = rec.Date
		}
		if rec.Comment != "" {
			out[prefix+"_comment"] = rec.Comment
		}
	}
	return out
}

// ParseInstrumentRecords reassembles numbered instrument records from a raw
// attribute map, the inverse of FlattenInstrumentRecords
func ParseInstrumentRecords(attrs map[string]string) []timeseries.InstrumentRecord {
	var records []timeseries.InstrumentRecord
	for i := 0; ; i++ {
		prefix := "instrument"
		if i > 0 {
			prefix = fmt.Sprintf("instrument_%d", i)
		}
		rec := timeseries.InstrumentRecord{
			Instrument: attrs[prefix],
			Date:       attrs[prefix+"_date"],
			Comment:    attrs[prefix+"_comment"],
		}
		if rec.Instrument == "" && rec.Date == "" && rec.Comment == "" {
			break
		}
		records = append(records, rec)
	}
	return records
}
