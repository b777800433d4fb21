package netcdf

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ctessum/cdf"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

// Standard variable names used by archive datasets
const (
	VarTime            = "time"
	VarMF              = "mf"
	VarMFRepeatability = "mf_repeatability"
	VarMFVariability   = "mf_variability"
	VarMFCount         = "mf_count"
	VarBaseline        = "baseline"
	VarSamplingPeriod  = "sampling_period"
	VarInletHeight     = "inlet_height"
	VarInstrumentType  = "instrument_type"
)

// TimeUnits is the epoch declaration written on the time variable
const TimeUnits = "seconds since 1970-01-01 00:00:00"

// Dataset is a decoded netCDF file
type Dataset struct {
	file *cdf.File
}

// readOnlyAt adapts an io.ReaderAt to the cdf.ReaderWriterAt storage
// interface for decoding, which never writes
type readOnlyAt struct {
	io.ReaderAt
}

func (readOnlyAt) WriteAt([]byte, int64) (int, error) {
	return 0, fmt.Errorf("netcdf: dataset is read-only")
}

// Open decodes a netCDF file from a random access reader
func Open(r io.ReaderAt) (*Dataset, error) {
	f, err := cdf.Open(readOnlyAt{r})
	if err != nil {
		return nil, pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
			"failed to parse netCDF file: %v", err)
	}
	return &Dataset{file: f}, nil
}

// OpenBytes decodes a netCDF file held in memory, which is how files pulled
// out of zip and tar archives arrive
func OpenBytes(b []byte) (*Dataset, error) {
	return Open(bytes.NewReader(b))
}

// Has reports whether the dataset contains a variable
func (d *Dataset) Has(name string) bool {
	return len(d.file.Header.Lengths(name)) > 0
}

// Len returns the number of elements of a variable, or 0 if absent
func (d *Dataset) Len(name string) int {
	lengths := d.file.Header.Lengths(name)
	if len(lengths) == 0 {
		return 0
	}
	n := 1
	for _, l := range lengths {
		n *= l
	}
	return n
}

func (d *Dataset) read(name string) (interface{}, error) {
	if !d.Has(name) {
		return nil, pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
			"variable %s not in file", name)
	}
	r := d.file.Reader(name, nil, nil)
	buf := r.Zero(d.Len(name))
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read variable %s: %v", name, err)
	}
	return buf, nil
}

// Floats reads a numeric variable, widening to float64
func (d *Dataset) Floats(name string) ([]float64, error) {
	buf, err := d.read(name)
	if err != nil {
		return nil, err
	}
	switch v := buf.(type) {
	case []float64:
		return v, nil
	case []float32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int32:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int16:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	case []int8:
		out := make([]float64, len(v))
		for i, x := range v {
			out[i] = float64(x)
		}
		return out, nil
	}
	return nil, pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
		"variable %s is not numeric", name)
}

// Ints reads a numeric variable, truncating to int
func (d *Dataset) Ints(name string) ([]int, error) {
	f, err := d.Floats(name)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(f))
	for i, x := range f {
		out[i] = int(x)
	}
	return out, nil
}

// Bytes reads a small integer or character variable as int8, as used by
// flag variables
func (d *Dataset) Bytes(name string) ([]int8, error) {
	buf, err := d.read(name)
	if err != nil {
		return nil, err
	}
	if v, ok := buf.([]byte); ok {
		out := make([]int8, len(v))
		for i, x := range v {
			out[i] = int8(x)
		}
		return out, nil
	}
	f, err := d.Floats(name)
	if err != nil {
		return nil, err
	}
	out := make([]int8, len(f))
	for i, x := range f {
		out[i] = int8(x)
	}
	return out, nil
}

// Times reads the time variable, decoding it against its units attribute.
// A missing units attribute is taken as seconds since the Unix epoch.
func (d *Dataset) Times(name string) ([]time.Time, error) {
	values, err := d.Floats(name)
	if err != nil {
		return nil, err
	}
	epoch, step := time.Unix(0, 0).UTC(), time.Second
	if units := d.Attr(name, "units"); units != "" {
		epoch, step, err = parseTimeUnits(units)
		if err != nil {
			return nil, pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
				"bad units on variable %s: %v", name, err)
		}
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		// split whole units from the fraction so that epoch offsets past
		// 2^53 nanoseconds stay exact
		whole := math.Floor(v)
		off := time.Duration(int64(whole))*step + time.Duration((v-whole)*float64(step))
		out[i] = epoch.Add(off).UTC()
	}
	return out, nil
}

// parseTimeUnits interprets a CF-style "seconds since 1970-01-01 00:00:00"
// units string
func parseTimeUnits(units string) (time.Time, time.Duration, error) {
	fields := strings.Fields(strings.ReplaceAll(units, "T", " "))
	if len(fields) < 3 || !strings.EqualFold(fields[1], "since") {
		return time.Time{}, 0, fmt.Errorf("failed to parse time units %q", units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSuffix(fields[0], "s")) {
	case "nanosecond":
		step = time.Nanosecond
	case "second", "sec":
		step = time.Second
	case "minute", "min":
		step = time.Minute
	case "hour":
		step = time.Hour
	case "day":
		step = 24 * time.Hour
	default:
		return time.Time{}, 0, fmt.Errorf("unsupported time unit %q", fields[0])
	}

	date := strings.Join(fields[2:], " ")
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.UTC(), step, nil
		}
	}
	return time.Time{}, 0, fmt.Errorf("failed to parse epoch %q", date)
}

// Attr returns an attribute as a string, or "" when absent. Numeric
// attribute values are formatted from their first element. Pass an empty
// variable name for global attributes.
func (d *Dataset) Attr(varName, name string) string {
	return attrString(d.file.Header.GetAttribute(varName, name))
}

// AttrFloat returns a numeric attribute and whether it was present
func (d *Dataset) AttrFloat(varName, name string) (float64, bool) {
	switch v := d.file.Header.GetAttribute(varName, name).(type) {
	case []float64:
		if len(v) > 0 {
			return v[0], true
		}
	case []float32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int32:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case []int16:
		if len(v) > 0 {
			return float64(v[0]), true
		}
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

// GlobalAttrs returns all global attributes as strings
func (d *Dataset) GlobalAttrs() map[string]string {
	out := make(map[string]string)
	for _, name := range d.file.Header.Attributes("") {
		out[name] = d.Attr("", name)
	}
	return out
}

// Variables lists the variables in the dataset
func (d *Dataset) Variables() []string {
	return d.file.Header.Variables()
}

func attrString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []float64:
		if len(t) > 0 {
			return strconv.FormatFloat(t[0], 'g', -1, 64)
		}
	case []float32:
		if len(t) > 0 {
			return strconv.FormatFloat(float64(t[0]), 'g', -1, 32)
		}
	case []int32:
		if len(t) > 0 {
			return strconv.FormatInt(int64(t[0]), 10)
		}
	case []int16:
		if len(t) > 0 {
			return strconv.FormatInt(int64(t[0]), 10)
		}
	case []int8:
		if len(t) > 0 {
			return strconv.FormatInt(int64(t[0]), 10)
		}
	}
	return ""
}

// isInstrumentRecordAttr reports whether a global attribute belongs to the
// numbered instrument provenance scheme rather than to a fixed field
func isInstrumentRecordAttr(name string) bool {
	if name == "instrument_date" || name == "instrument_comment" {
		return true
	}
	rest, ok := strings.CutPrefix(name, "instrument_")
	if !ok {
		return false
	}
	digits, _, _ := strings.Cut(rest, "_")
	if digits == "" {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Record decodes a dataset laid out with the standard variable names into a
// time series record
func (d *Dataset) Record() (*timeseries.Record, error) {
	times, err := d.Times(VarTime)
	if err != nil {
		return nil, err
	}
	rec := &timeseries.Record{Time: times}
	n := len(times)

	check := func(name string, got int) error {
		if got != n {
			return pipeline.Errorf(pipeline.KindMalformedInput, pipeline.Unit{},
				"variable %s has %d values for %d timestamps", name, got, n)
		}
		return nil
	}

	if d.Has(VarMF) {
		if rec.MF, err = d.Floats(VarMF); err != nil {
			return nil, err
		}
		if err := check(VarMF, len(rec.MF)); err != nil {
			return nil, err
		}
	}
	if d.Has(VarMFRepeatability) {
		if rec.MFRepeatability, err = d.Floats(VarMFRepeatability); err != nil {
			return nil, err
		}
		if err := check(VarMFRepeatability, len(rec.MFRepeatability)); err != nil {
			return nil, err
		}
	}
	if d.Has(VarMFVariability) {
		if rec.MFVariability, err = d.Floats(VarMFVariability); err != nil {
			return nil, err
		}
		if err := check(VarMFVariability, len(rec.MFVariability)); err != nil {
			return nil, err
		}
	}
	if d.Has(VarMFCount) {
		if rec.MFCount, err = d.Ints(VarMFCount); err != nil {
			return nil, err
		}
		if err := check(VarMFCount, len(rec.MFCount)); err != nil {
			return nil, err
		}
	}
	if d.Has(VarBaseline) {
		if rec.Baseline, err = d.Bytes(VarBaseline); err != nil {
			return nil, err
		}
		if err := check(VarBaseline, len(rec.Baseline)); err != nil {
			return nil, err
		}
	}
	if d.Has(VarSamplingPeriod) {
		if rec.SamplingPeriod, err = d.Ints(VarSamplingPeriod); err != nil {
			return nil, err
		}
		if err := check(VarSamplingPeriod, len(rec.SamplingPeriod)); err != nil {
			return nil, err
		}
	}
	if d.Has(VarInletHeight) {
		if rec.InletHeight, err = d.Floats(VarInletHeight); err != nil {
			return nil, err
		}
		if err := check(VarInletHeight, len(rec.InletHeight)); err != nil {
			return nil, err
		}
	}
	if d.Has(VarInstrumentType) {
		if rec.InstrumentType, err = d.Ints(VarInstrumentType); err != nil {
			return nil, err
		}
		if err := check(VarInstrumentType, len(rec.InstrumentType)); err != nil {
			return nil, err
		}
		rec.Attrs.InstrumentTypeDefinition = d.Attr(VarInstrumentType, "comment")
	}

	raw := d.GlobalAttrs()
	rec.Attrs.InstrumentRecords = formatting.ParseInstrumentRecords(raw)
	for name, value := range raw {
		if isInstrumentRecordAttr(name) {
			continue
		}
		formatting.SetAttr(&rec.Attrs, name, value)
	}
	return rec, nil
}

// ReadRecord decodes a standard dataset held in memory
func ReadRecord(b []byte) (*timeseries.Record, error) {
	d, err := OpenBytes(b)
	if err != nil {
		return nil, err
	}
	return d.Record()
}
