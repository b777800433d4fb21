package metrics

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

func TestObserveResult(t *testing.T) {
	unit := pipeline.Unit{Network: "agage", Species: "ch3ccl3", Site: "CGO", Instrument: "GCMD"}

	okBefore := testutil.ToFloat64(UnitsTotal.WithLabelValues("individual", "ok"))
	filesBefore := testutil.ToFloat64(FilesWritten)
	ObserveResult("individual", pipeline.OK(unit, []string{"a.nc", "b.nc"}, time.Second))
	assert.Equal(t, okBefore+1, testutil.ToFloat64(UnitsTotal.WithLabelValues("individual", "ok")))
	assert.Equal(t, filesBefore+2, testutil.ToFloat64(FilesWritten))

	failedBefore := testutil.ToFloat64(UnitsTotal.WithLabelValues("combined", "failed"))
	kindBefore := testutil.ToFloat64(FailuresTotal.WithLabelValues("not_found"))
	ObserveResult("combined", pipeline.Fail(unit,
		pipeline.Errorf(pipeline.KindNotFound, unit, "failed to find a file"), time.Second))
	assert.Equal(t, failedBefore+1, testutil.ToFloat64(UnitsTotal.WithLabelValues("combined", "failed")))
	assert.Equal(t, kindBefore+1, testutil.ToFloat64(FailuresTotal.WithLabelValues("not_found")))

	skippedBefore := testutil.ToFloat64(UnitsTotal.WithLabelValues("individual", "skipped"))
	ObserveResult("individual", pipeline.Skip(unit, "recommended file already in archive"))
	assert.Equal(t, skippedBefore+1, testutil.ToFloat64(UnitsTotal.WithLabelValues("individual", "skipped")))
}

func TestLogSummary(t *testing.T) {
	unit := pipeline.Unit{Network: "agage", Species: "cfc-11", Site: "MHD"}
	ObserveResult("combined", pipeline.OK(unit, []string{"cfc-11/agage_mhd_cfc-11.nc"}, time.Second))
	LastRunTimestamp.Set(float64(time.Now().Unix()))

	var buf bytes.Buffer
	LogSummary(zerolog.New(&buf))

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, "agage_units_total")
	assert.Contains(t, out, "agage_files_written_total")
	assert.Contains(t, out, "agage_last_run_timestamp_seconds")
	// runtime families stay out of the run log
	assert.NotContains(t, out, "go_goroutines")
}
