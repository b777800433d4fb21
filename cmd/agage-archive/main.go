package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AGAGE-atmosphere/agage-archive/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agage-archive",
	Short: "AGAGE data processing and archival",
	Long: `agage-archive harmonizes raw AGAGE instrument data into a public
release archive: per-instrument files, recommended multi-instrument
combinations, baseline flags and monthly baseline means, all written as
netCDF into a versioned zip or directory archive.

Processing is driven by the release schedule and instrument combination
tables in the network data directory. Failures are per species, site and
instrument: one bad input never stops a release run.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"agage-archive version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "config.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().String("network", "agage", "Network to process")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("json", false, "Log in JSON instead of console format")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(individualCmd)
	rootCmd.AddCommand(combinedCmd)
}

// initLogging configures the global logger from the persistent flags.
func initLogging(cmd *cobra.Command) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	jsonOut, _ := cmd.Flags().GetBool("json")

	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	log.Init(log.Config{
		Level:      level,
		JSONOutput: jsonOut,
	})
}
