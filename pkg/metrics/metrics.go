package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
)

var (
	// Batch run metrics
	UnitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agage_units_total",
			Help: "Total number of archive units processed by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	UnitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agage_unit_duration_seconds",
			Help:    "Per-unit processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	FailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agage_failures_total",
			Help: "Total number of failed units by failure category",
		},
		[]string{"kind"},
	)

	FilesWritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agage_files_written_total",
			Help: "Total number of dataset files written to the output archive",
		},
	)

	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agage_last_run_timestamp_seconds",
			Help: "Unix timestamp of the most recently finished run",
		},
	)
)

func init() {
	prometheus.MustRegister(UnitsTotal)
	prometheus.MustRegister(UnitDuration)
	prometheus.MustRegister(FailuresTotal)
	prometheus.MustRegister(FilesWritten)
	prometheus.MustRegister(LastRunTimestamp)
}

// ObserveResult records the outcome of one unit. Skipped units count
// towards the unit totals but not the duration histogram.
func ObserveResult(mode string, res pipeline.Result) {
	UnitsTotal.WithLabelValues(mode, string(res.Status)).Inc()
	if res.Status != pipeline.StatusSkipped {
		UnitDuration.WithLabelValues(mode).Observe(res.Duration.Seconds())
	}
	if res.Failed() {
		FailuresTotal.WithLabelValues(string(res.Kind)).Inc()
	}
	if n := len(res.Files); n > 0 {
		FilesWritten.Add(float64(n))
	}
}

// LogSummary flushes the current values of the archive metrics into the
// logger, one line per metric child. Families outside the agage namespace
// are skipped.
func LogSummary(logger zerolog.Logger) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		logger.Warn().Err(err).Msg("failed to gather metrics")
		return
	}

	for _, fam := range families {
		name := fam.GetName()
		if !strings.HasPrefix(name, "agage_") {
			continue
		}
		for _, m := range fam.GetMetric() {
			ev := logger.Info().Str("name", name)
			for _, lp := range m.GetLabel() {
				ev = ev.Str(lp.GetName(), lp.GetValue())
			}
			switch {
			case m.GetCounter() != nil:
				ev = ev.Float64("value", m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				ev = ev.Float64("value", m.GetGauge().GetValue())
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				ev = ev.Uint64("count", h.GetSampleCount()).Float64("sum", h.GetSampleSum())
			}
			ev.Msg("metric")
		}
	}
}
