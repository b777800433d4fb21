package runner

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/archive"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/formatting"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/ledger"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/log"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/metrics"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/pipeline"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/reader"
)

// LedgerFile is the BoltDB file holding run outcomes, kept in the network
// data directory alongside the error logs.
const LedgerFile = "run_ledger.db"

// Ledger run modes. Metric labels use the per-unit modes, so a full run
// counts its units under "combined" and "individual".
const (
	ModeAll        = "all"
	ModeCombined   = "combined"
	ModeIndividual = "individual"
)

// Options control which units a run processes and which companion products
// it writes.
type Options struct {
	// Species restricts processing to the named species. Names are
	// matched after formatting, so "CFC-11" and "cfc11" select the same
	// species. Empty means every species the tables define.
	Species []string

	// Sites restricts processing to the named sites, case-insensitively.
	// Empty means every site.
	Sites []string

	// Include restricts full runs to the named instruments. Empty means
	// every instrument with a release schedule.
	Include []string

	// Exclude drops the named instruments from full runs.
	Exclude []string

	// Baseline writes a baseline flag file next to each data file.
	Baseline bool

	// Monthly writes monthly baseline means next to each data file.
	// Requires Baseline.
	Monthly bool

	// TopLevelOnly suppresses the individual-instruments directories and
	// writes only the top-level species files.
	TopLevelOnly bool

	// Delete removes the existing archive at the start of a full run.
	Delete bool

	// NoResample keeps the native time resolution for instruments that
	// would otherwise be averaged onto a coarser grid.
	NoResample bool
}

// Runner processes archive units for one network.
type Runner struct {
	paths  *config.Paths
	reader *reader.Reader
	ledger *ledger.Ledger
	opts   Options
	logger zerolog.Logger
}

// Report summarises a finished run: the ledger entry with its tallies and
// the per-unit results in processing order.
type Report struct {
	Run     *ledger.Run
	Results []pipeline.Result
}

// New builds a Runner for the named network. The caller must Close the
// Runner to release the run ledger.
func New(cfg *config.Config, network string, opts Options) (*Runner, error) {
	if opts.Monthly && !opts.Baseline {
		return nil, pipeline.Errorf(pipeline.KindConfiguration,
			pipeline.Unit{Network: network},
			"monthly baseline files can only be produced if the baseline flag is specified")
	}
	paths, err := cfg.Network(network)
	if err != nil {
		return nil, err
	}
	rd, err := reader.New(paths)
	if err != nil {
		return nil, err
	}
	led, err := ledger.Open(filepath.Join(paths.Root(), LedgerFile))
	if err != nil {
		return nil, err
	}
	return &Runner{
		paths:  paths,
		reader: rd,
		ledger: led,
		opts:   opts,
		logger: log.WithNetwork(paths.Network),
	}, nil
}

// Close releases the run ledger.
func (r *Runner) Close() error {
	return r.ledger.Close()
}

// RunAll rebuilds the archive: combined units first, then every scheduled
// instrument, then the release notes. Combined products go in first so
// that single-instrument species can detect an existing top-level file.
// Unit failures are recorded in the ledger and do not stop the batch; only
// setup and archive finalisation errors abort the run.
func (r *Runner) RunAll() (*Report, error) {
	out, err := r.outputPath()
	if err != nil {
		return nil, err
	}
	if err := ledger.ClearErrorLogs(r.paths.Root()); err != nil {
		return nil, fmt.Errorf("failed to clear error logs: %v", err)
	}
	if r.opts.Delete {
		if err := archive.Delete(out, r.paths.Data, r.paths.Network); err != nil {
			return nil, err
		}
	}
	if err := archive.CreateEmpty(out); err != nil {
		return nil, err
	}
	w, err := archive.NewWriter(out)
	if err != nil {
		return nil, err
	}
	run, err := r.ledger.Begin(r.paths.Network, ModeAll)
	if err != nil {
		return nil, err
	}
	instruments := r.instrumentList()
	r.logger.Info().
		Str("run_id", run.ID).
		Str("archive", out).
		Strs("instruments", instruments).
		Msg("starting full run")

	results := r.runCombinedUnits(w, run.ID)
	for _, name := range instruments {
		results = append(results, r.runInstrumentUnits(w, run.ID, name)...)
	}
	r.copyReleaseNotes(w)
	if err := w.Close(); err != nil {
		return nil, err
	}
	return r.finishRun(run.ID, results)
}

// RunCombined processes only the combined units, appending to the archive
// and creating it when absent.
func (r *Runner) RunCombined() (*Report, error) {
	out, err := r.outputPath()
	if err != nil {
		return nil, err
	}
	w, err := archive.NewWriter(out)
	if err != nil {
		return nil, err
	}
	run, err := r.ledger.Begin(r.paths.Network, ModeCombined)
	if err != nil {
		return nil, err
	}
	results := r.runCombinedUnits(w, run.ID)
	if err := w.Close(); err != nil {
		return nil, err
	}
	return r.finishRun(run.ID, results)
}

// RunInstrument processes the individual units of one instrument,
// appending to the archive and creating it when absent.
func (r *Runner) RunInstrument(instrumentName string) (*Report, error) {
	out, err := r.outputPath()
	if err != nil {
		return nil, err
	}
	w, err := archive.NewWriter(out)
	if err != nil {
		return nil, err
	}
	run, err := r.ledger.Begin(r.paths.Network, ModeIndividual)
	if err != nil {
		return nil, err
	}
	results := r.runInstrumentUnits(w, run.ID, instrumentName)
	if err := w.Close(); err != nil {
		return nil, err
	}
	return r.finishRun(run.ID, results)
}

// runCombinedUnits walks the sites with combination tables and processes
// every selected species they name.
func (r *Runner) runCombinedUnits(w *archive.Writer, runID string) []pipeline.Result {
	sites, err := r.reader.CombinationSites()
	if err != nil {
		unit := pipeline.Unit{Network: r.paths.Network}
		return []pipeline.Result{r.record(runID, ModeCombined, pipeline.Fail(unit, err, 0))}
	}
	var results []pipeline.Result
	for _, site := range sites {
		if !r.siteSelected(site) {
			continue
		}
		speciesList, err := r.reader.CombinationSpecies(site)
		if err != nil {
			unit := pipeline.Unit{Network: r.paths.Network, Site: site}
			results = append(results, r.record(runID, ModeCombined, pipeline.Fail(unit, err, 0)))
			continue
		}
		for _, species := range speciesList {
			if !r.speciesSelected(species) {
				continue
			}
			unit := pipeline.Unit{Network: r.paths.Network, Species: species, Site: site}
			results = append(results, r.runUnit(runID, ModeCombined, unit,
				func() ([]string, string, error) {
					return r.processCombined(w, unit, species, site)
				}))
		}
	}
	return results
}

// runInstrumentUnits walks one instrument's release schedule and processes
// every selected species and site pair that is cleared for release. A
// missing or unreadable schedule fails as a single unit so the rest of a
// full run still proceeds.
func (r *Runner) runInstrumentUnits(w *archive.Writer, runID, instrumentName string) []pipeline.Result {
	sched, err := r.reader.Schedule(instrumentName)
	if err != nil {
		unit := pipeline.Unit{Network: r.paths.Network, Instrument: instrumentName}
		return []pipeline.Result{r.record(runID, ModeIndividual, pipeline.Fail(unit, err, 0))}
	}
	logger := r.logger.With().Str("instrument", instrumentName).Logger()
	var results []pipeline.Result
	for _, species := range sched.Species() {
		if !r.speciesSelected(species) {
			continue
		}
		for _, site := range sched.Sites() {
			if !r.siteSelected(site) {
				continue
			}
			if sched.Excluded(species, site) {
				logger.Debug().
					Str("species", species).
					Str("site", site).
					Msg("not scheduled for release")
				continue
			}
			unit := pipeline.Unit{
				Network:    r.paths.Network,
				Species:    species,
				Site:       site,
				Instrument: instrumentName,
			}
			results = append(results, r.runUnit(runID, ModeIndividual, unit,
				func() ([]string, string, error) {
					return r.processIndividual(w, unit, species, site, instrumentName)
				}))
		}
	}
	return results
}

// runUnit executes one unit and records its outcome.
func (r *Runner) runUnit(runID, mode string, unit pipeline.Unit, fn func() ([]string, string, error)) pipeline.Result {
	return r.record(runID, mode, executeUnit(unit, fn))
}

// executeUnit turns a unit's return values into a Result, recovering
// panics so a corrupt input file cannot take the batch down.
func executeUnit(unit pipeline.Unit, fn func() ([]string, string, error)) (res pipeline.Result) {
	timer := metrics.NewTimer()
	defer func() {
		if p := recover(); p != nil {
			res = pipeline.Fail(unit, fmt.Errorf("panic: %v", p), timer.Duration())
			res.Stack = string(debug.Stack())
		}
	}()
	files, skip, err := fn()
	switch {
	case err != nil:
		return pipeline.Fail(unit, err, timer.Duration())
	case skip != "":
		return pipeline.Skip(unit, skip)
	default:
		return pipeline.OK(unit, files, timer.Duration())
	}
}

// record observes, stores and logs one unit result. Ledger write failures
// are logged and do not fail the unit.
func (r *Runner) record(runID, mode string, res pipeline.Result) pipeline.Result {
	metrics.ObserveResult(mode, res)
	if err := r.ledger.Record(runID, res); err != nil {
		r.logger.Warn().Err(err).Str("unit", res.Unit.Key()).Msg("failed to record unit outcome")
	}
	logger := log.WithUnit(res.Unit.Species, res.Unit.Site, res.Unit.Instrument)
	switch {
	case res.Failed():
		logger.Error().Str("kind", string(res.Kind)).Msg(res.Message)
	case res.Status == pipeline.StatusSkipped:
		logger.Info().Str("reason", res.Message).Msg("unit skipped")
	default:
		logger.Info().
			Int("files", len(res.Files)).
			Dur("duration", res.Duration).
			Msg("unit processed")
	}
	return res
}

// finishRun closes out the ledger entry, flushes the error logs and emits
// the end-of-run summary.
func (r *Runner) finishRun(runID string, results []pipeline.Result) (*Report, error) {
	run, err := r.ledger.Finish(runID)
	if err != nil {
		return nil, err
	}
	individual, combined, err := r.ledger.WriteErrorLogs(runID, r.paths.Root())
	if err != nil {
		return nil, err
	}
	if individual > 0 {
		r.logger.Warn().Int("errors", individual).
			Msg("errors while processing individual instruments, see " + ledger.ErrorLogIndividual)
	}
	if combined > 0 {
		r.logger.Warn().Int("errors", combined).
			Msg("errors while processing combined instruments, see " + ledger.ErrorLogCombined)
	}
	metrics.LastRunTimestamp.Set(float64(run.Finished.Unix()))
	metrics.LogSummary(r.logger)
	r.logger.Info().
		Str("run_id", run.ID).
		Int("units", run.Units).
		Int("failed", run.Failed).
		Int("skipped", run.Skipped).
		Msg("run finished")
	return &Report{Run: run, Results: results}, nil
}

// instrumentList resolves the instruments a full run covers: the registry
// order, unless Include replaces it, minus any Exclude entries.
func (r *Runner) instrumentList() []string {
	names := r.reader.Registry().Instruments()
	if len(r.opts.Include) > 0 {
		names = r.opts.Include
	}
	if len(r.opts.Exclude) == 0 {
		return names
	}
	kept := make([]string, 0, len(names))
	for _, name := range names {
		if !containsFold(r.opts.Exclude, name) {
			kept = append(kept, name)
		}
	}
	return kept
}

// copyReleaseNotes copies the network README and CHANGELOG into the
// archive so the published bundle documents its own provenance.
func (r *Runner) copyReleaseNotes(w *archive.Writer) {
	for _, name := range []string{"README.md", "CHANGELOG.md"} {
		src := filepath.Join(r.paths.Root(), name)
		if _, err := os.Stat(src); err != nil {
			r.logger.Warn().Str("file", name).Msg("no release notes file found")
			continue
		}
		if err := w.CopyIn(src); err != nil {
			r.logger.Error().Err(err).Str("file", name).Msg("failed to copy release notes into archive")
		}
	}
}

// outputPath resolves the archive location under the network data
// directory. A missing output_path entry aborts a run before any unit is
// processed.
func (r *Runner) outputPath() (string, error) {
	sub, err := r.paths.Output()
	if err != nil {
		return "", err
	}
	return filepath.Join(r.paths.Root(), filepath.FromSlash(sub)), nil
}

func (r *Runner) speciesSelected(species string) bool {
	if len(r.opts.Species) == 0 {
		return true
	}
	for _, s := range r.opts.Species {
		if formatting.Species(s) == formatting.Species(species) {
			return true
		}
	}
	return false
}

func (r *Runner) siteSelected(site string) bool {
	return len(r.opts.Sites) == 0 || containsFold(r.opts.Sites, site)
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
