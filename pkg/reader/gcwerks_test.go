package reader

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/netcdf"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

func newGCMDReader(t *testing.T, files map[string][]byte) *Reader {
	t.Helper()
	base := map[string][]byte{
		"data_release_schedule/data_release_schedule_GCMD.csv": []byte(testScheduleGCMD),
		"attributes.json":    []byte(testAttributesJSON),
		"scale_defaults.csv": []byte("Species,Scale\nCH3CCl3,TU-87\nch4,SIO-05\n"),
	}
	for name, data := range files {
		base[name] = data
	}
	return newTestReader(t, "agage_test", map[string]string{"md_path": "data-gcmd"}, base)
}

func TestReadNC(t *testing.T) {
	// GCWerks stamps the middle of the 40 second sampling period
	mid := func(minute int) float64 {
		return float64(time.Date(2020, 1, 1, 0, minute, 20, 0, time.UTC).Unix())
	}
	nc := encodeTestNC(t, 4, []ncVar{
		{name: "time", data: []float64{mid(0), mid(10), mid(20), mid(30)},
			attrs: map[string]string{
				"units":                 netcdf.TimeUnits,
				"sampling_time_seconds": "40",
			}},
		{name: "mf", data: []float64{300, math.NaN(), 302, 303}},
		{name: "mf_repeatability", data: []float64{1.5, 1.5, 1.5, 1.5}},
		{name: "mf_mean_N", data: []int32{2, 3, 4, 5}},
		{name: "mf_mean_stdev", data: []float64{0.1, 0.2, 0.3, 0.4}},
	}, map[string]interface{}{
		"units":             "ppt",
		"calibration_scale": "TU1987",
		"station_long_name": "Cape Grim, Tasmania",
		"inlet_latitude":    []float64{-40.683},
		"data_owner":        "Paul Krummel",
	})
	r := newGCMDReader(t, map[string][]byte{
		"data-gcmd/AGAGE-GCMD_CGO_ch3ccl3.nc": nc,
		"data_exclude/data_exclude_CGO.csv": []byte(
			"Species,Instrument,Start,End\nch3ccl3,GCMD,2020-01-01 00:15,2020-01-01 00:25\n"),
	})

	rec, err := r.ReadNC("CH3CCl3", "CGO", "GCMD", Options{})
	require.NoError(t, err)

	// the NaN at 00:10 drops and 00:20 is operator-excluded
	require.Equal(t, 2, rec.Len())
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), rec.Time[0])
	assert.Equal(t, time.Date(2020, 1, 1, 0, 30, 0, 0, time.UTC), rec.Time[1])
	assert.Equal(t, []float64{300, 303}, rec.MF)
	assert.Equal(t, []float64{1.5, 1.5}, rec.MFRepeatability)
	assert.Equal(t, []int{2, 5}, rec.MFCount)
	assert.Equal(t, []float64{0.1, 0.4}, rec.MFVariability)
	assert.Equal(t, []int{40, 40}, rec.SamplingPeriod)
	assert.Equal(t, []int{0, 0}, rec.InstrumentType)
	assert.Nil(t, rec.Baseline)

	a := rec.Attrs
	assert.Equal(t, "CGO", a.SiteCode)
	assert.Equal(t, "ch3ccl3", a.Species)
	assert.Equal(t, "agage_test", a.Network)
	assert.Equal(t, "GCMD", a.Instrument)
	assert.Equal(t, "GCMD", a.InstrumentType)
	assert.Equal(t, "TU-87", a.CalibrationScale)
	assert.Equal(t, "1e-12", a.Units)
	assert.Equal(t, "Cape Grim, Tasmania", a.StationLongName)
	assert.InDelta(t, -40.683, a.InletLatitude, 1e-9)
	assert.Equal(t, "mole fraction", a.ProductType)
	assert.Equal(t, "Individual instruments", a.InstrumentSelection)
	assert.Equal(t, "high-frequency", a.Frequency)
	assert.Equal(t, "2.0", a.Version)
	require.Len(t, a.InstrumentRecords, 1)
	assert.Equal(t, "GCMD", a.InstrumentRecords[0].Instrument)

	rec, err = r.ReadNC("CH3CCl3", "CGO", "GCMD", Options{KeepExcluded: true})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Len())

	rec, err = r.ReadNC("CH3CCl3", "CGO", "GCMD", Options{KeepNaN: true})
	require.NoError(t, err)
	assert.Equal(t, 3, rec.Len())
}

func TestReadNCDefaultSamplingPeriod(t *testing.T) {
	// GCMD files carry no sampling_time_seconds: the period is 1s and the
	// timestamps are used as they are
	day := func(d int) float64 {
		return float64(time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC).Unix())
	}
	nc := encodeTestNC(t, 3, []ncVar{
		{name: "time", data: []float64{day(1), day(2), day(3)},
			attrs: map[string]string{"units": netcdf.TimeUnits}},
		{name: "mf", data: []float64{1800, 1801, 1802}},
		{name: "mf_repeatability", data: []float64{2, 2, 2}},
	}, map[string]interface{}{
		"units":             "ppb",
		"calibration_scale": "SIO-05",
	})
	r := newGCMDReader(t, map[string][]byte{
		"data-gcmd/AGAGE-GCMD_CGO_ch4.nc": nc,
		"data_release_schedule/data_release_schedule_GCMD.csv": []byte(
			"# GENERAL RELEASE DATE: 2030-01-01\nSpecies,CGO\nch4,2020-01-02\n"),
	})

	rec, err := r.ReadNC("ch4", "CGO", "GCMD", Options{})
	require.NoError(t, err)

	// the release cutoff is inclusive, so the sample on the date survives
	require.Equal(t, 2, rec.Len())
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), rec.Time[0])
	assert.Equal(t, time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC), rec.Time[1])
	assert.Equal(t, []int{1, 1}, rec.SamplingPeriod)
	assert.Equal(t, "1e-9", rec.Attrs.Units)
	assert.Equal(t, "SIO-05", rec.Attrs.CalibrationScale)
	assert.Nil(t, rec.MFCount)
	assert.Nil(t, rec.MFVariability)
}

func TestReadNCResample(t *testing.T) {
	// minute-spaced optical data resamples onto the hourly grid
	n := 120
	times := make([]float64, n)
	mf := make([]float64, n)
	rep := make([]float64, n)
	start := time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		times[i] = float64(start.Add(time.Duration(i) * time.Minute).Unix())
		mf[i] = 400
		if i >= 60 {
			mf[i] = 410
		}
		rep[i] = 0.2
	}
	nc := encodeTestNC(t, n, []ncVar{
		{name: "time", data: times, attrs: map[string]string{"units": netcdf.TimeUnits}},
		{name: "mf", data: mf},
		{name: "mf_repeatability", data: rep},
	}, map[string]interface{}{
		"units":             "ppb",
		"calibration_scale": "WMO-X2004A",
	})
	r := newTestReader(t, "agage_test",
		map[string]string{"optical_path": "data-picarro"},
		map[string][]byte{
			"data_release_schedule/data_release_schedule_Picarro.csv": []byte(
				"# GENERAL RELEASE DATE: 2030-01-01\nSpecies,THD\nch4,\n"),
			"attributes.json":    []byte(testAttributesJSON),
			"scale_defaults.csv": []byte("Species,Scale\nch4,WMO-X2004A\n"),
			"data-picarro/AGAGE-Picarro_THD_ch4.nc": nc,
		})

	rec, err := r.ReadNC("ch4", "THD", "Picarro", Options{})
	require.NoError(t, err)

	require.Equal(t, 2, rec.Len())
	assert.Equal(t, start, rec.Time[0])
	assert.Equal(t, start.Add(time.Hour), rec.Time[1])
	assert.InDelta(t, 400, rec.MF[0], 1e-9)
	assert.InDelta(t, 410, rec.MF[1], 1e-9)
	assert.Equal(t, []int{60, 60}, rec.MFCount)
	assert.Equal(t, []int{3600, 3600}, rec.SamplingPeriod)
	assert.InDelta(t, 0.2, rec.MFRepeatability[0], 1e-9)

	rec, err = r.ReadNC("ch4", "THD", "Picarro", Options{NoResample: true})
	require.NoError(t, err)
	assert.Equal(t, n, rec.Len())
	assert.Equal(t, []int{1, 1}, rec.SamplingPeriod[:2])
}

func TestReadNCFileLookup(t *testing.T) {
	placeholder := []byte("placeholder")
	r := newGCMDReader(t, map[string][]byte{
		"data-gcmd/AGAGE-GCMD_CGO_ch3ccl3.nc":   placeholder,
		"data-gcmd/AGAGE-GCMD-2_CGO_ch3ccl3.nc": placeholder,
		"data-gcmd/AGAGE-GCMD_MHD_cfc-11.nc":    placeholder,
	})

	_, err := r.ReadNC("CH3CCl3", "MHD", "GCMD", Options{})
	require.Error(t, err)
	assert.Equal(t, pipeline.KindNotFound, pipeline.KindOf(err))
	assert.Contains(t, err.Error(), "failed to find a file matching")

	_, err = r.ReadNC("CH3CCl3", "CGO", "GCMD", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found more than one file matching")
}
