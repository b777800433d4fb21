package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/config"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/ledger"
	"github.com/AGAGE-atmosphere/agage-archive/pkg/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Rebuild the archive: combined products, then every instrument",
	Long: `Run the full archival pipeline for a network. Combined products are
written first, then every instrument with a release schedule. Unit
failures are recorded in the error logs and do not stop the run or fail
the process; only setup errors such as a missing output path do.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		rep, err := r.RunAll()
		if err != nil {
			return err
		}
		printSummary(rep)
		return nil
	},
}

var individualCmd = &cobra.Command{
	Use:   "individual INSTRUMENT",
	Short: "Process one instrument's species and sites",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		rep, err := r.RunInstrument(args[0])
		if err != nil {
			return err
		}
		printSummary(rep)
		return nil
	},
}

var combinedCmd = &cobra.Command{
	Use:   "combined",
	Short: "Process the combined multi-instrument products",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newRunner(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		rep, err := r.RunCombined()
		if err != nil {
			return err
		}
		printSummary(rep)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, individualCmd, combinedCmd} {
		cmd.Flags().StringSlice("species", nil, "Restrict processing to these species")
		cmd.Flags().StringSlice("site", nil, "Restrict processing to these sites")
		cmd.Flags().Bool("baseline", false, "Write baseline flag files")
		cmd.Flags().Bool("monthly", false, "Write monthly baseline means (requires --baseline)")
		cmd.Flags().Bool("no-resample", false, "Keep the native time resolution")
	}
	for _, cmd := range []*cobra.Command{runCmd, individualCmd} {
		cmd.Flags().Bool("top-level-only", false, "Write only the top-level species files")
	}
	runCmd.Flags().Bool("delete", false, "Delete the existing archive before the run")
	runCmd.Flags().StringSlice("include", nil, "Process only these instruments")
	runCmd.Flags().StringSlice("exclude", nil, "Skip these instruments")
}

// newRunner loads the configuration and builds a runner from the command's
// flags.
func newRunner(cmd *cobra.Command) (*runner.Runner, error) {
	initLogging(cmd)

	cfgPath, _ := cmd.Flags().GetString("config")
	network, _ := cmd.Flags().GetString("network")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	return runner.New(cfg, network, runOptions(cmd))
}

func runOptions(cmd *cobra.Command) runner.Options {
	flags := cmd.Flags()
	species, _ := flags.GetStringSlice("species")
	sites, _ := flags.GetStringSlice("site")
	baseline, _ := flags.GetBool("baseline")
	monthly, _ := flags.GetBool("monthly")
	noResample, _ := flags.GetBool("no-resample")
	topLevelOnly, _ := flags.GetBool("top-level-only")
	del, _ := flags.GetBool("delete")
	include, _ := flags.GetStringSlice("include")
	exclude, _ := flags.GetStringSlice("exclude")

	return runner.Options{
		Species:      species,
		Sites:        sites,
		Include:      include,
		Exclude:      exclude,
		Baseline:     baseline,
		Monthly:      monthly,
		TopLevelOnly: topLevelOnly,
		Delete:       del,
		NoResample:   noResample,
	}
}

func printSummary(rep *runner.Report) {
	run := rep.Run
	ok := run.Units - run.Failed - run.Skipped
	fmt.Printf("Processed %d units: %d ok, %d skipped, %d failed\n",
		run.Units, ok, run.Skipped, run.Failed)
	if run.Failed > 0 {
		fmt.Printf("See %s and %s in the network data directory\n",
			ledger.ErrorLogIndividual, ledger.ErrorLogCombined)
	}
}
