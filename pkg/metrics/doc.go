/*
Package metrics instruments the batch pipeline with Prometheus metrics.

The archive build is a batch process, so there is no scrape endpoint:
counters and histograms accumulate in-process while units are processed
and are flushed into the run log by LogSummary when the run finishes.
Units are counted by mode and outcome, failures additionally by category,
and per-unit wall time feeds a duration histogram.
*/
package metrics
