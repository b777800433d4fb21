package instrument

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

var scheduleFiles = []string{
	"data_release_schedule/data_release_schedule_GCMD.csv",
	"data_release_schedule/data_release_schedule_ALE.csv",
	"data_release_schedule/data_release_schedule_Picarro.csv",
	"data_release_schedule/data_release_schedule_GCMS-Medusa.csv",
}

func TestNewRegistryCodes(t *testing.T) {
	r, err := NewRegistry("agage", scheduleFiles)
	require.NoError(t, err)

	// codes follow the sorted file names, not the input order
	tests := []struct {
		instrument string
		code       int
	}{
		{"ALE", 0},
		{"GCMD", 1},
		{"GCMS-Medusa", 2},
		{"Picarro", 3},
		{"UNDEFINED", -1},
	}
	for _, tt := range tests {
		code, err := r.Lookup(tt.instrument)
		require.NoError(t, err, tt.instrument)
		assert.Equal(t, tt.code, code, tt.instrument)
	}
}

func TestRegistryStableAcrossInputOrder(t *testing.T) {
	shuffled := []string{scheduleFiles[2], scheduleFiles[0], scheduleFiles[3], scheduleFiles[1]}

	a, err := NewRegistry("agage", scheduleFiles)
	require.NoError(t, err)
	b, err := NewRegistry("agage", shuffled)
	require.NoError(t, err)

	for _, name := range a.Instruments() {
		ca, err := a.Lookup(name)
		require.NoError(t, err)
		cb, err := b.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, ca, cb, name)
	}
}

func TestNewRegistryEmpty(t *testing.T) {
	_, err := NewRegistry("agage", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &pipeline.Error{Kind: pipeline.KindConfiguration}))
}

func TestLookupPartialMatch(t *testing.T) {
	r, err := NewRegistry("agage", scheduleFiles)
	require.NoError(t, err)

	code, err := r.Lookup("Picarro-2")
	require.NoError(t, err)
	assert.Equal(t, 3, code)

	_, err = r.Lookup("Medusa-GC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, &pipeline.Error{Kind: pipeline.KindUnknownInstrument}))

	_, err = r.Lookup("")
	require.Error(t, err)
	_, err = r.Lookup("X")
	require.Error(t, err)
}

func TestNameAndNames(t *testing.T) {
	r, err := NewRegistry("agage", scheduleFiles)
	require.NoError(t, err)

	name, err := r.Name(0)
	require.NoError(t, err)
	assert.Equal(t, "ALE", name)

	name, err = r.Name(-1)
	require.NoError(t, err)
	assert.Equal(t, "UNDEFINED", name)

	_, err = r.Name(99)
	assert.Error(t, err)

	// names come back in registry order regardless of the code order given
	assert.Equal(t, []string{"ALE", "Picarro"}, r.Names([]int{3, 0}))
}

func TestDefinition(t *testing.T) {
	r, err := NewRegistry("agage", scheduleFiles)
	require.NoError(t, err)
	assert.Equal(t, "UNDEFINED=-1, ALE=0, GCMD=1, GCMS-Medusa=2, Picarro=3", r.Definition())
}

func TestPathKey(t *testing.T) {
	tests := []struct {
		instrument string
		want       string
		wantErr    bool
	}{
		{instrument: "GCMD", want: config.MDPath},
		{instrument: "GCECD", want: config.MDPath},
		{instrument: "Picarro", want: config.OpticalPath},
		{instrument: "LGR", want: config.OpticalPath},
		{instrument: "GCMS-Medusa", want: config.GCMSPath},
		{instrument: "GCTOFMS", want: config.GCMSPath},
		{instrument: "ALE", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.instrument, func(t *testing.T) {
			got, err := PathKey(tt.instrument)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, &pipeline.Error{Kind: pipeline.KindUnknownInstrument}))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMinimumAveragingPeriod(t *testing.T) {
	period, ok := MinimumAveragingPeriod("Picarro")
	assert.True(t, ok)
	assert.Equal(t, time.Hour, period)

	_, ok = MinimumAveragingPeriod("GCMD")
	assert.False(t, ok)
}
