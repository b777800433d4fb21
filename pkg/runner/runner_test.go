package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ctessum/cdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/combiner"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/ledger"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/netcdf"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/timeseries"
)

const testAttributesJSON = `{
	"version": "2.0",
	"file_created_by": "Test User"
}`

const testScheduleGCMD = `# Release schedule for GCMD
# GENERAL RELEASE DATE: 2030-01-01
Species,CGO
CH3CCl3,
`

const testScheduleMedusa = `# Release schedule for GCMS-Medusa
# GENERAL RELEASE DATE: 2030-01-01
Species,CGO
CH3CCl3,
`

const testCombinationCGO = `# Instrument selection for CGO
Species,Instrument,Start,End
CH3CCl3,GCMD,,2000-01-02
CH3CCl3,GCMS-Medusa,2000-01-02,
`

type ncVar struct {
	name  string
	data  interface{}
	attrs map[string]string
}

// encodeNC renders a netCDF file with a single time dimension of n
// elements, mimicking the files GCWerks publishes
func encodeNC(t *testing.T, n int, vars []ncVar, globals map[string]interface{}) []byte {
	t.Helper()

	h := cdf.NewHeader([]string{"time"}, []int{n})
	for _, v := range vars {
		var sample interface{}
		switch v.data.(type) {
		case []float64:
			sample = []float64{0}
		case []int8:
			// cdf stores netCDF BYTE variables as []byte
			sample = []byte{0}
		default:
			t.Fatalf("unsupported variable type %T", v.data)
		}
		h.AddVariable(v.name, []string{"time"}, sample)
		for name, value := range v.attrs {
			h.AddAttribute(v.name, name, value)
		}
	}
	for name, value := range globals {
		h.AddAttribute("", name, value)
	}
	h.Define()

	f, err := os.Create(filepath.Join(t.TempDir(), "fixture.nc"))
	require.NoError(t, err)
	defer f.Close()
	cf, err := cdf.Create(f, h)
	require.NoError(t, err)
	for _, v := range vars {
		data := v.data
		if flags, ok := data.([]int8); ok {
			b := make([]byte, len(flags))
			for i, f := range flags {
				b[i] = byte(f)
			}
			data = b
		}
		w := cf.Writer(v.name, []int{0}, []int{n})
		_, err := w.Write(data)
		require.NoError(t, err)
	}

	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	return data
}

func epochSeconds(times []time.Time) []float64 {
	out := make([]float64, len(times))
	for i, ts := range times {
		out[i] = float64(ts.Unix())
	}
	return out
}

func gcmdFixture(t *testing.T) []byte {
	t0 := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{t0, t0.Add(6 * time.Hour), t0.Add(12 * time.Hour), t0.Add(24 * time.Hour)}
	return encodeNC(t, 4,
		[]ncVar{
			{name: "time", data: epochSeconds(times),
				attrs: map[string]string{"units": "seconds since 1970-01-01 00:00:00"}},
			{name: "mf", data: []float64{50, 51, 52, 53},
				attrs: map[string]string{"units": "1e-12", "calibration_scale": "SIO-05"}},
			{name: "mf_repeatability", data: []float64{0.5, 0.5, 0.5, 0.5}},
			{name: "git_pollution_flag", data: []int8{'B', 'B', '.', 'B'}},
		},
		map[string]interface{}{
			"species":           "ch3ccl3",
			"units":             "1e-12",
			"calibration_scale": "SIO-05",
			"comment":           "GCMD CH3CCl3 data from Cape Grim.",
			"station_long_name": "Cape Grim, Tasmania",
			"data_owner":        "Paul Krummel",
			"data_owner_email":  "paul.krummel@example.org",
		})
}

func medusaFixture(t *testing.T) []byte {
	t0 := time.Date(2000, 1, 2, 0, 0, 0, 0, time.UTC)
	times := []time.Time{t0, t0.Add(12 * time.Hour), t0.Add(24 * time.Hour)}
	return encodeNC(t, 3,
		[]ncVar{
			{name: "time", data: epochSeconds(times),
				attrs: map[string]string{"units": "seconds since 1970-01-01 00:00:00"}},
			{name: "mf", data: []float64{153, 154, 155},
				attrs: map[string]string{"units": "1e-12", "calibration_scale": "SIO-05"}},
			{name: "mf_repeatability", data: []float64{1.5, 1.5, 1.5}},
			{name: "git_pollution_flag", data: []int8{'.', 'B', 'B'}},
		},
		map[string]interface{}{
			"species":           "ch3ccl3",
			"units":             "1e-12",
			"calibration_scale": "SIO-05",
			"comment":           "Medusa CH3CCl3 data from Cape Grim.",
			"station_long_name": "Cape Grim, Tasmania",
			"data_owner":        "Paul Krummel",
			"data_owner_email":  "paul.krummel@example.org",
		})
}

// newTestConfig writes a two-instrument network tree into a temp directory
// and returns the loaded configuration with the network root. extra
// entries override or add files under the network root; withCombination
// controls whether CGO gets an instrument combination table.
func newTestConfig(t *testing.T, withCombination bool, extra map[string][]byte) (*config.Config, string) {
	t.Helper()

	files := map[string][]byte{
		"data_release_schedule/data_release_schedule_GCMD.csv":        []byte(testScheduleGCMD),
		"data_release_schedule/data_release_schedule_GCMS-Medusa.csv": []byte(testScheduleMedusa),
		"attributes.json":    []byte(testAttributesJSON),
		"scale_defaults.csv": []byte("Species,Scale\nCH3CCl3,SIO-05\n"),
		"README.md":          []byte("# AGAGE test archive\n"),
		"data-gcmd/AGAGE-GCMD_CGO_ch3ccl3.nc":               gcmdFixture(t),
		"data-gcms-medusa/AGAGE-GCMS-Medusa_CGO_ch3ccl3.nc": medusaFixture(t),
	}
	if withCombination {
		files["data_combination/data_combination_CGO.csv"] = []byte(testCombinationCGO)
	}
	for name, content := range extra {
		files[name] = content
	}

	dir := t.TempDir()
	cfgText := "user:\n  name: Test User\npaths:\n  agage_test:\n" +
		"    md_path: data-gcmd\n    gcms_path: data-gcms-medusa\n    output_path: output\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfgText), 0o644))

	root := filepath.Join(dir, "data", "agage_test")
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, content, 0o644))
	}

	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	return cfg, root
}

func newTestRunner(t *testing.T, withCombination bool, extra map[string][]byte, opts Options) (*Runner, string) {
	t.Helper()
	cfg, root := newTestConfig(t, withCombination, extra)
	r, err := New(cfg, "agage_test", opts)
	require.NoError(t, err)
	return r, root
}

func readArchived(t *testing.T, root, name string) *timeseries.Record {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, "output", filepath.FromSlash(name)))
	require.NoError(t, err)
	rec, err := netcdf.ReadRecord(data)
	require.NoError(t, err)
	return rec
}

func TestRunAll(t *testing.T) {
	r, root := newTestRunner(t, true, nil, Options{Baseline: true, Monthly: true})

	rep, err := r.RunAll()
	require.NoError(t, err)
	require.NoError(t, r.Close())

	assert.Equal(t, ModeAll, rep.Run.Mode)
	assert.Equal(t, 3, rep.Run.Units)
	assert.Equal(t, 0, rep.Run.Failed)
	assert.Equal(t, 0, rep.Run.Skipped)
	require.Len(t, rep.Results, 3)

	// combined product first, so single-instrument species can find it
	assert.Equal(t, "", rep.Results[0].Unit.Instrument)
	for _, res := range rep.Results {
		assert.Equal(t, pipeline.StatusOK, res.Status, res.Unit.Key())
		assert.Len(t, res.Files, 3)
	}

	for _, name := range []string{
		"ch3ccl3/agage_test_cgo_ch3ccl3_2.0.nc",
		"ch3ccl3/baseline-flags/agage_test_cgo_ch3ccl3_git-baseline-2.0.nc",
		"ch3ccl3/monthly-baseline/agage_test_cgo_ch3ccl3_monthly-baseline-2.0.nc",
		"ch3ccl3/individual-instruments/agage_test-gcmd_cgo_ch3ccl3_2.0.nc",
		"ch3ccl3/individual-instruments/baseline-flags/agage_test-gcmd_cgo_ch3ccl3_git-baseline-2.0.nc",
		"ch3ccl3/individual-instruments/monthly-baseline/agage_test-gcmd_cgo_ch3ccl3_monthly-baseline-2.0.nc",
		"ch3ccl3/individual-instruments/agage_test-gcms-medusa_cgo_ch3ccl3_2.0.nc",
		"README.md",
	} {
		_, err := os.Stat(filepath.Join(root, "output", filepath.FromSlash(name)))
		assert.NoError(t, err, name)
	}

	// the changeover timestamp appears in both sources; the earlier
	// instrument keeps it
	combined := readArchived(t, root, "ch3ccl3/agage_test_cgo_ch3ccl3_2.0.nc")
	require.Equal(t, 6, combined.Len())
	assert.Equal(t, []float64{50, 51, 52, 53, 154, 155}, combined.MF)
	assert.Equal(t, combiner.InstrumentSelection, combined.Attrs.InstrumentSelection)
	assert.Equal(t, "ch3ccl3", combined.Attrs.Species)
	assert.NotEmpty(t, combined.Attrs.FileCreated)
	// flags live in the baseline file, never in the data file
	assert.Nil(t, combined.Baseline)

	baseline := readArchived(t, root, "ch3ccl3/baseline-flags/agage_test_cgo_ch3ccl3_git-baseline-2.0.nc")
	assert.Equal(t, []int8{1, 1, 0, 1, 1, 1}, baseline.Baseline)
	assert.Equal(t, "baseline flag", baseline.Attrs.ProductType)

	monthly := readArchived(t, root, "ch3ccl3/monthly-baseline/agage_test_cgo_ch3ccl3_monthly-baseline-2.0.nc")
	require.Equal(t, 1, monthly.Len())
	assert.Equal(t, "monthly", monthly.Attrs.Frequency)
	assert.InDelta(t, 92.6, monthly.MF[0], 1e-9)

	// no unit failed, so no error logs
	_, err = os.Stat(filepath.Join(root, ledger.ErrorLogIndividual))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, ledger.ErrorLogCombined))
	assert.True(t, os.IsNotExist(err))

	// the run survives in the ledger after the runner is gone
	led, err := ledger.Open(filepath.Join(root, LedgerFile))
	require.NoError(t, err)
	defer led.Close()
	last, err := led.LastRun("agage_test")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, rep.Run.ID, last.ID)
	assert.Equal(t, 3, last.Units)
}

func TestRunAllWritesTopLevelForSingleInstrument(t *testing.T) {
	// without a combination table each instrument is its species' only
	// source, so the first one also claims the top-level file
	r, root := newTestRunner(t, false, nil, Options{Baseline: true, Monthly: true})

	rep, err := r.RunAll()
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 2, rep.Run.Units)
	assert.Equal(t, 0, rep.Run.Failed)
	assert.Equal(t, 0, rep.Run.Skipped)
	require.Len(t, rep.Results, 2)

	gcmd, medusa := rep.Results[0], rep.Results[1]
	assert.Equal(t, "GCMD", gcmd.Unit.Instrument)
	assert.Len(t, gcmd.Files, 6)
	assert.Equal(t, "GCMS-Medusa", medusa.Unit.Instrument)
	assert.Equal(t, pipeline.StatusOK, medusa.Status)
	assert.Len(t, medusa.Files, 3)

	top := readArchived(t, root, "ch3ccl3/agage_test_cgo_ch3ccl3_2.0.nc")
	assert.Equal(t, 4, top.Len())
	assert.Equal(t, []float64{50, 51, 52, 53}, top.MF)
	assert.Equal(t, combiner.InstrumentSelection, top.Attrs.InstrumentSelection)
	assert.Nil(t, top.Baseline)

	// only the GCMD file made it to the top level
	matches, err := filepath.Glob(filepath.Join(root, "output", "ch3ccl3", "*.nc"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestRunInstrumentSkipsExistingTopLevel(t *testing.T) {
	cfg, root := newTestConfig(t, false, nil)

	first, err := New(cfg, "agage_test", Options{})
	require.NoError(t, err)
	rep, err := first.RunInstrument("GCMD")
	require.NoError(t, err)
	require.NoError(t, first.Close())
	assert.Equal(t, ModeIndividual, rep.Run.Mode)
	assert.Equal(t, 0, rep.Run.Failed)

	second, err := New(cfg, "agage_test", Options{TopLevelOnly: true})
	require.NoError(t, err)
	defer second.Close()
	rep, err = second.RunInstrument("GCMS-Medusa")
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Run.Units)
	assert.Equal(t, 1, rep.Run.Skipped)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, pipeline.StatusSkipped, rep.Results[0].Status)
	assert.Equal(t, "recommended file already in archive", rep.Results[0].Message)

	matches, err := filepath.Glob(filepath.Join(root, "output", "ch3ccl3", "*medusa*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRunAllContinuesOnFailure(t *testing.T) {
	// a corrupt Medusa file fails its individual unit and the combined
	// unit that reads it, but GCMD must still be archived
	r, root := newTestRunner(t, true, map[string][]byte{
		"data-gcms-medusa/AGAGE-GCMS-Medusa_CGO_ch3ccl3.nc": []byte("not a netcdf file"),
	}, Options{})

	rep, err := r.RunAll()
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 3, rep.Run.Units)
	assert.Equal(t, 2, rep.Run.Failed)

	byInstrument := make(map[string]pipeline.Result)
	for _, res := range rep.Results {
		byInstrument[res.Unit.Instrument] = res
	}
	assert.True(t, byInstrument[""].Failed())
	assert.True(t, byInstrument["GCMS-Medusa"].Failed())
	assert.Equal(t, pipeline.StatusOK, byInstrument["GCMD"].Status)

	_, err = os.Stat(filepath.Join(root, "output",
		"ch3ccl3", "individual-instruments", "agage_test-gcmd_cgo_ch3ccl3_2.0.nc"))
	assert.NoError(t, err)

	individual, err := os.ReadFile(filepath.Join(root, ledger.ErrorLogIndividual))
	require.NoError(t, err)
	assert.Contains(t, string(individual), "CGO CH3CCl3: ")
	combined, err := os.ReadFile(filepath.Join(root, ledger.ErrorLogCombined))
	require.NoError(t, err)
	assert.Contains(t, string(combined), "CGO CH3CCl3: ")
}

func TestRunAllDeleteResetsArchive(t *testing.T) {
	cfg, root := newTestConfig(t, true, nil)
	stale := filepath.Join(root, "output", "stale.txt")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old run"), 0o644))
	staleLog := filepath.Join(root, ledger.ErrorLogIndividual)
	require.NoError(t, os.WriteFile(staleLog, []byte("old errors"), 0o644))

	r, err := New(cfg, "agage_test", Options{Delete: true})
	require.NoError(t, err)
	defer r.Close()
	rep, err := r.RunAll()
	require.NoError(t, err)

	assert.Equal(t, 0, rep.Run.Failed)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(staleLog)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(root, "output", "ch3ccl3", "agage_test_cgo_ch3ccl3_2.0.nc"))
	assert.NoError(t, err)
}

func TestRunAllMissingOutputPath(t *testing.T) {
	files := map[string][]byte{
		"data_release_schedule/data_release_schedule_GCMD.csv": []byte(testScheduleGCMD),
		"attributes.json": []byte(testAttributesJSON),
	}
	dir := t.TempDir()
	cfgText := "user:\n  name: Test User\npaths:\n  agage_test:\n    md_path: data-gcmd\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(cfgText), 0o644))
	root := filepath.Join(dir, "data", "agage_test")
	for name, content := range files {
		full := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, content, 0o644))
	}
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	r, err := New(cfg, "agage_test", Options{})
	require.NoError(t, err)
	defer r.Close()

	_, err = r.RunAll()
	require.Error(t, err)
	assert.Equal(t, pipeline.KindConfiguration, pipeline.KindOf(err))
}

func TestNewMonthlyRequiresBaseline(t *testing.T) {
	cfg, _ := newTestConfig(t, false, nil)
	_, err := New(cfg, "agage_test", Options{Monthly: true})
	require.Error(t, err)
	assert.Equal(t, pipeline.KindConfiguration, pipeline.KindOf(err))
	assert.Contains(t, err.Error(), "baseline flag")
}

func TestRunInstrumentExcludedCells(t *testing.T) {
	// MHD is marked "x", so it must be passed over without an attempted
	// read that would fail on the missing data file
	r, _ := newTestRunner(t, false, map[string][]byte{
		"data_release_schedule/data_release_schedule_GCMD.csv": []byte(
			"# GENERAL RELEASE DATE: 2030-01-01\nSpecies,CGO,MHD\nCH3CCl3,,x\n"),
	}, Options{})
	defer r.Close()

	rep, err := r.RunInstrument("GCMD")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Run.Units)
	assert.Equal(t, 0, rep.Run.Failed)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, "CGO", rep.Results[0].Unit.Site)
}

func TestRunAllInstrumentFilters(t *testing.T) {
	t.Run("include", func(t *testing.T) {
		r, _ := newTestRunner(t, false, nil, Options{Include: []string{"GCMD"}})
		defer r.Close()
		rep, err := r.RunAll()
		require.NoError(t, err)
		require.Len(t, rep.Results, 1)
		assert.Equal(t, "GCMD", rep.Results[0].Unit.Instrument)
	})

	t.Run("exclude is case-insensitive", func(t *testing.T) {
		r, _ := newTestRunner(t, false, nil, Options{Exclude: []string{"gcmd"}})
		defer r.Close()
		rep, err := r.RunAll()
		require.NoError(t, err)
		require.Len(t, rep.Results, 1)
		assert.Equal(t, "GCMS-Medusa", rep.Results[0].Unit.Instrument)
	})

	t.Run("unknown instrument fails its unit only", func(t *testing.T) {
		r, _ := newTestRunner(t, false, nil, Options{Include: []string{"CRDS"}})
		defer r.Close()
		rep, err := r.RunAll()
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Run.Failed)
		require.Len(t, rep.Results, 1)
		assert.Equal(t, "CRDS", rep.Results[0].Unit.Instrument)
		assert.True(t, rep.Results[0].Failed())
	})
}

func TestRunInstrumentSelectionFilters(t *testing.T) {
	t.Run("species name is formatted before matching", func(t *testing.T) {
		r, _ := newTestRunner(t, false, nil, Options{Species: []string{"CH3CCl3"}})
		defer r.Close()
		rep, err := r.RunInstrument("GCMD")
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Run.Units)
	})

	t.Run("other species leaves nothing to do", func(t *testing.T) {
		r, _ := newTestRunner(t, false, nil, Options{Species: []string{"cfc-11"}})
		defer r.Close()
		rep, err := r.RunInstrument("GCMD")
		require.NoError(t, err)
		assert.Equal(t, 0, rep.Run.Units)
		assert.Empty(t, rep.Results)
	})

	t.Run("site filter", func(t *testing.T) {
		r, _ := newTestRunner(t, false, nil, Options{Sites: []string{"MHD"}})
		defer r.Close()
		rep, err := r.RunInstrument("GCMD")
		require.NoError(t, err)
		assert.Equal(t, 0, rep.Run.Units)
	})
}
