package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	envload "github.com/lumascope/acquire/internal"
)

var rootCmd = &cobra.Command{
	Use:   "acquired",
	Short: "Acquisition engine for laboratory detectors",
	Long: `acquired drives a detector acquisition engine: a per-source scheduler
that arbitrates idle/view/record sessions on a single worker, assembles
partially delivered frames, and publishes calibrated channel records.
It ships with a simulated detector for bring-up and soak testing.`,
}

var (
	rootSourceID  string
	rootAliasFile string
)

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	rootCmd.PersistentFlags().StringVar(&rootSourceID, "source-id", "simulated_detector", "hardware source identifier")
	rootCmd.PersistentFlags().StringVar(&rootAliasFile, "alias-file", "", "YAML alias file (overrides ACQ_ALIAS_FILE)")
	rootCmd.AddCommand(
		newRunCmd(),
		newSnapCmd(),
	)
	_ = envload.Ensure()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("acquired command failed")
	}
}
