package pipeline

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnitString(t *testing.T) {
	tests := []struct {
		name string
		unit Unit
		want string
	}{
		{
			name: "combined unit",
			unit: Unit{Network: "agage", Species: "cfc-11", Site: "CGO"},
			want: "agage cfc-11 CGO",
		},
		{
			name: "individual unit",
			unit: Unit{Network: "agage", Species: "ch4", Site: "MHD", Instrument: "GCMD"},
			want: "agage ch4 MHD (GCMD)",
		},
		{
			name: "instrument only",
			unit: Unit{Instrument: "Picarro"},
			want: "(Picarro)",
		},
		{
			name: "empty",
			unit: Unit{},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.unit.String())
		})
	}
}

func TestUnitKey(t *testing.T) {
	u := Unit{Network: "agage", Species: "CFC-11", Site: "CGO", Instrument: "GCMD"}
	assert.Equal(t, "agage/cfc-11/cgo/gcmd", u.Key())

	// keys for combined units keep the trailing separator so they never
	// collide with an instrument unit
	c := Unit{Network: "agage", Species: "cfc-11", Site: "cgo"}
	assert.Equal(t, "agage/cfc-11/cgo/", c.Key())
}

func TestErrorIs(t *testing.T) {
	err := Errorf(KindNotFound, Unit{Network: "agage", Species: "cfc-11", Site: "CGO"},
		"no file matching %q", "AGAGE-GCMD_CGO_cfc-11.nc")

	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound}))
	assert.True(t, errors.Is(err, &Error{Kind: KindNotFound, Unit: Unit{Site: "CGO"}}))
	assert.False(t, errors.Is(err, &Error{Kind: KindMalformedInput}))
	assert.False(t, errors.Is(err, &Error{Kind: KindNotFound, Unit: Unit{Site: "MHD"}}))
}

func TestErrorMatchesThroughWrapping(t *testing.T) {
	inner := Errorf(KindEmptyEpoch, Unit{Species: "ch4", Site: "THD", Instrument: "GCMD"},
		"epoch 2 selected no samples")
	outer := fmt.Errorf("failed to combine: %w", inner)

	assert.True(t, errors.Is(outer, &Error{Kind: KindEmptyEpoch}))

	var pe *Error
	require.True(t, errors.As(outer, &pe))
	assert.Equal(t, "GCMD", pe.Unit.Instrument)
	assert.Equal(t, KindEmptyEpoch, KindOf(outer))
}

func TestWrap(t *testing.T) {
	t.Run("nil error", func(t *testing.T) {
		assert.NoError(t, Wrap(KindNotFound, Unit{}, nil))
	})

	t.Run("plain error gains kind and unit", func(t *testing.T) {
		err := Wrap(KindMalformedInput, Unit{Species: "sf6", Site: "GSN"}, errors.New("short row"))
		assert.Equal(t, KindMalformedInput, KindOf(err))
		assert.True(t, errors.Is(err, &Error{Unit: Unit{Site: "GSN"}}))
	})

	t.Run("inner kind wins and unit fields merge", func(t *testing.T) {
		inner := Errorf(KindScaleMismatch, Unit{Instrument: "GCMS-Medusa"}, "SIO-05 vs SIO-98")
		err := Wrap(KindConfiguration, Unit{Network: "agage", Species: "hfc-134a", Site: "RPB"}, inner)

		assert.Equal(t, KindScaleMismatch, KindOf(err))
		var pe *Error
		require.True(t, errors.As(err, &pe))
		assert.Equal(t, "agage", pe.Unit.Network)
		assert.Equal(t, "GCMS-Medusa", pe.Unit.Instrument)
	})
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("disk full")))
}

func TestResultConstructors(t *testing.T) {
	unit := Unit{Network: "agage", Species: "n2o", Site: "SMO", Instrument: "GCMD"}

	ok := OK(unit, []string{"n2o/agage-gcmd_smo_n2o_20250401.nc"}, 2*time.Second)
	assert.Equal(t, StatusOK, ok.Status)
	assert.False(t, ok.Failed())
	assert.Len(t, ok.Files, 1)

	skip := Skip(unit, "recommended file already present")
	assert.Equal(t, StatusSkipped, skip.Status)
	assert.False(t, skip.Failed())

	fail := Fail(unit, Errorf(KindNotFound, unit, "no raw file"), time.Second)
	assert.True(t, fail.Failed())
	assert.Equal(t, KindNotFound, fail.Kind)
	assert.Contains(t, fail.Message, "no raw file")
}
