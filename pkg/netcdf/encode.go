package netcdf

import (
	"fmt"
	"sort"

	"github.com/ctessum/cdf"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// BaselineFlagLongName and friends annotate the baseline flag variable
const (
	BaselineFlagLongName = "baseline_flag"
	BaselineFlagValues   = "0, 1"
	BaselineFlagMeanings = "not_baseline, baseline"
)

// Encode renders a record as a netCDF classic file image. Variables are laid
// out on a single fixed time dimension; only the slices present on the
// record are written.
func Encode(rec *timeseries.Record) ([]byte, error) {
	n := rec.Len()
	if n == 0 {
		return nil, pipeline.Errorf(pipeline.KindValidation, pipeline.Unit{},
			"refusing to write a dataset with no samples")
	}

	h := cdf.NewHeader([]string{"time"}, []int{n})

	species := formatting.Species(rec.Attrs.Species)
	units := rec.Attrs.Units

	type variable struct {
		name string
		data interface{}
	}
	var vars []variable
	addVar := func(name string, sample, data interface{}, attrs [][2]string) {
		h.AddVariable(name, []string{"time"}, sample)
		for _, a := range attrs {
			if a[1] != "" {
				h.AddAttribute(name, a[0], a[1])
			}
		}
		vars = append(vars, variable{name: name, data: data})
	}

	times := make([]float64, n)
	for i, t := range rec.Time {
		times[i] = float64(t.Unix()) + float64(t.Nanosecond())/1e9
	}
	addVar(VarTime, []float64{0}, times, [][2]string{
		{"long_name", "time"},
		{"units", TimeUnits},
		{"comment", "Timestamp is the start of the sampling period in UTC"},
	})

	if rec.MF != nil {
		addVar(VarMF, []float64{0}, rec.MF, [][2]string{
			{"long_name", fmt.Sprintf("mole_fraction_of_%s_in_air", species)},
			{"units", units},
			{"calibration_scale", rec.Attrs.CalibrationScale},
		})
	}
	if rec.MFRepeatability != nil {
		addVar(VarMFRepeatability, []float64{0}, rec.MFRepeatability, [][2]string{
			{"long_name", fmt.Sprintf("repeatability_of_%s_mole_fraction", species)},
			{"units", units},
		})
	}
	if rec.MFVariability != nil {
		addVar(VarMFVariability, []float64{0}, rec.MFVariability, [][2]string{
			{"long_name", fmt.Sprintf("variability_of_%s_mole_fraction", species)},
			{"units", units},
		})
	}
	if rec.MFCount != nil {
		counts := make([]int32, n)
		for i, c := range rec.MFCount {
			counts[i] = int32(c)
		}
		addVar(VarMFCount, []int32{0}, counts, [][2]string{
			{"long_name", "Number of data points in mean"},
		})
	}
	if rec.Baseline != nil {
		// cdf stores netCDF BYTE variables as []byte
		flags := make([]byte, n)
		for i, f := range rec.Baseline {
			flags[i] = byte(f)
		}
		addVar(VarBaseline, []byte{0}, flags, [][2]string{
			{"long_name", BaselineFlagLongName},
			{"flag_values", BaselineFlagValues},
			{"flag_meanings", BaselineFlagMeanings},
		})
	}
	if rec.SamplingPeriod != nil {
		periods := make([]int32, n)
		for i, p := range rec.SamplingPeriod {
			periods[i] = int32(p)
		}
		addVar(VarSamplingPeriod, []int32{0}, periods, [][2]string{
			{"long_name", "sampling_period"},
			{"units", "s"},
		})
	}
	if rec.InletHeight != nil {
		addVar(VarInletHeight, []float64{0}, rec.InletHeight, [][2]string{
			{"long_name", "inlet_height"},
			{"units", "m"},
		})
	}
	if rec.InstrumentType != nil {
		codes := make([]int32, n)
		for i, c := range rec.InstrumentType {
			codes[i] = int32(c)
		}
		addVar(VarInstrumentType, []int32{0}, codes, [][2]string{
			{"long_name", "ALE/GAGE/AGAGE instrument type"},
			{"comment", rec.Attrs.InstrumentTypeDefinition},
		})
	}

	encodeGlobals(h, &rec.Attrs)
	h.Define()

	buf := &seekBuffer{}
	f, err := cdf.Create(buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create netCDF file: %v", err)
	}
	for _, v := range vars {
		end := f.Header.Lengths(v.name)
		start := make([]int, len(end))
		w := f.Writer(v.name, start, end)
		if _, err := w.Write(v.data); err != nil {
			return nil, fmt.Errorf("failed to write variable %s: %v", v.name, err)
		}
	}
	return buf.Bytes(), nil
}

func encodeGlobals(h *cdf.Header, attrs *timeseries.Attrs) {
	written := make(map[string]bool)
	add := func(name, value string) {
		if value == "" || written[name] {
			return
		}
		written[name] = true
		h.AddAttribute("", name, value)
	}
	addFloat := func(name string, value float64) {
		if value == 0 || written[name] {
			return
		}
		written[name] = true
		h.AddAttribute("", name, []float64{value})
	}

	records := formatting.FlattenInstrumentRecords(attrs.InstrumentRecords)
	recordNames := make([]string, 0, len(records))
	for name := range records {
		recordNames = append(recordNames, name)
	}
	sort.Strings(recordNames)

	add("species", formatting.Species(attrs.Species))
	add("site_code", attrs.SiteCode)
	add("network", attrs.Network)
	if len(records) == 0 {
		add("instrument", attrs.Instrument)
	}
	add("instrument_type", attrs.InstrumentType)
	add("calibration_scale", attrs.CalibrationScale)
	add("units", attrs.Units)
	add("comment", attrs.Comment)
	add("station_long_name", attrs.StationLongName)
	addFloat("inlet_latitude", attrs.InletLatitude)
	addFloat("inlet_longitude", attrs.InletLongitude)
	addFloat("inlet_base_elevation_masl", attrs.InletBaseElevation)
	add("inlet_comment", attrs.InletComment)
	add("data_owner", attrs.DataOwner)
	add("data_owner_email", attrs.DataOwnerEmail)
	add("version", attrs.Version)
	add("frequency", attrs.Frequency)
	add("product_type", attrs.ProductType)
	add("instrument_selection", attrs.InstrumentSelection)
	add("file_created", attrs.FileCreated)
	add("file_created_by", attrs.FileCreatedBy)
	add("start_date", attrs.StartDate)
	add("end_date", attrs.EndDate)

	for _, name := range recordNames {
		add(name, records[name])
	}

	extras := make([]string, 0, len(attrs.Extra))
	for name := range attrs.Extra {
		extras = append(extras, name)
	}
	sort.Strings(extras)
	for _, name := range extras {
		add(name, attrs.Extra[name])
	}
}
