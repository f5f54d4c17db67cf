package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/ftl/channelizer/scope"
	"github.com/ftl/channelizer/tci"
)

var tciFlags = struct {
	host       string
	trx        int
	sampleRate int
	traceTCI   bool
}{}

var tciCmd = &cobra.Command{
	Use:   "tci",
	Short: "select channels from a TCI IQ stream",
	Long: `Select channels from the IQ stream of a TCI capable SDR application.

The tuner follows the DDS frequency of the TRX. At least one --channel must be given.`,
	Run: runWithCtx(runTCI),
}

func init() {
	rootCmd.AddCommand(tciCmd)

	tciCmd.Flags().StringVar(&tciFlags.host, "host", "localhost:40001", "the TCI host and port")
	tciCmd.Flags().IntVar(&tciFlags.trx, "trx", 0, "the zero-based index of the TCI trx")
	tciCmd.Flags().IntVar(&tciFlags.sampleRate, "iq-rate", 192000, "the IQ sample rate: 48000 | 96000 | 192000 | 384000")
	tciCmd.Flags().BoolVar(&tciFlags.traceTCI, "trace-tci", false, "trace the TCI communication on the console")
}

func runTCI(ctx context.Context, scope scope.Scope, cmd *cobra.Command, args []string) {
	if len(rootFlags.channels) == 0 {
		log.Fatal("at least one --channel is required")
	}
	frequencies, err := channelFrequencies(0)
	if err != nil {
		log.Fatal(err)
	}

	tuner, err := tci.Open(tciFlags.host, tciFlags.trx, tciFlags.sampleRate, tciFlags.traceTCI, mustTunerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer tuner.Close()

	runChannels(ctx, scope, tuner, frequencies)
}
