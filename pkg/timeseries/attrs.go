package timeseries

import "time"

// Attribute timestamp layouts
const (
	TimeFormat = "2006-01-02 15:04:05"
	DateFormat = "2006-01-02"
)

// InstrumentRecord documents one instrument contributing to a record. Date is
// the first day covered by the instrument within a combined record.
type InstrumentRecord struct {
	Instrument string
	Date       string
	Comment    string
}

// Attrs holds the global attributes carried through the pipeline and written
// to output datasets. Extra holds free-form attributes that have no fixed
// field, such as doi or processing_code_url.
type Attrs struct {
	Species             string
	SiteCode            string
	Network             string
	Instrument          string
	InstrumentType      string
	CalibrationScale    string
	Units               string
	Comment             string
	StationLongName     string
	InletLatitude       float64
	InletLongitude      float64
	InletBaseElevation  float64
	InletComment        string
	DataOwner           string
	DataOwnerEmail      string
	Version             string
	Frequency           string
	ProductType         string
	InstrumentSelection string
	FileCreated         string
	FileCreatedBy       string
	StartDate           string
	EndDate             string
	InstrumentRecords   []InstrumentRecord
	Extra               map[string]string

	// InstrumentTypeDefinition maps instrument_type codes to names. It is
	// written as a comment on the instrument_type variable rather than as
	// a global attribute.
	InstrumentTypeDefinition string
}

// Copy returns a deep copy of the attributes
func (a Attrs) Copy() Attrs {
	out := a
	if a.InstrumentRecords != nil {
		out.InstrumentRecords = make([]InstrumentRecord, len(a.InstrumentRecords))
		copy(out.InstrumentRecords, a.InstrumentRecords)
	}
	if a.Extra != nil {
		out.Extra = make(map[string]string, len(a.Extra))
		for k, v := range a.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// SetExtra records a free-form attribute, allocating the map on first use
func (a *Attrs) SetExtra(key, value string) {
	if a.Extra == nil {
		a.Extra = make(map[string]string)
	}
	a.Extra[key] = value
}

// GetExtra returns a free-form attribute, or "" when unset
func (a Attrs) GetExtra(key string) string {
	if a.Extra == nil {
		return ""
	}
	return a.Extra[key]
}

// SetTimeRange stamps the start_date and end_date attributes from the first
// and last timestamps of a record
func (a *Attrs) SetTimeRange(first, last time.Time) {
	a.StartDate = first.UTC().Format(TimeFormat)
	a.EndDate = last.UTC().Format(TimeFormat)
}
