/*
Package log provides structured logging for the archive pipeline using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging
with component-specific loggers, configurable log levels, and helper functions
for common logging patterns. Console output is the default for interactive
runs; JSON output suits scheduled archive rebuilds whose logs are collected.

# Usage

Initializing the Logger:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: false,
		Output:     os.Stdout,
	})

Simple Logging:

	log.Info("archive rebuild starting")
	log.Warn("errors occurred during processing, see error log")

Structured Logging:

	log.Logger.Info().
		Str("species", "ch3ccl3").
		Str("site", "MHD").
		Msg("combining instrument records")

Context Loggers:

	runLog := log.WithComponent("runner")
	runLog.Info().Msg("processing release schedule")

	unitLog := log.WithUnit("cfc-11", "CGO", "GCMD")
	unitLog.Debug().Msg("reading raw dataset")

The --verbose CLI flag maps to DebugLevel; per-sample detail (timestamp
corrections, file matches) is logged at debug so that default runs stay
readable across thousands of units.
*/
package log
