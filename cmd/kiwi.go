package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/ftl/channelizer/cli"
	"github.com/ftl/channelizer/kiwi"
	"github.com/ftl/channelizer/scope"
)

var kiwiFlags = struct {
	host            string
	username        string
	password        string
	centerFrequency string
	bandwidth       int
}{}

var kiwiCmd = &cobra.Command{
	Use:   "kiwi",
	Short: "select channels from a KiwiSDR IQ stream",
	Run:   runWithCtx(runKiwi),
}

func init() {
	rootCmd.AddCommand(kiwiCmd)

	kiwiCmd.Flags().StringVar(&kiwiFlags.host, "host", "localhost:8073", "the KiwiSDR host and port")
	kiwiCmd.Flags().StringVar(&kiwiFlags.username, "username", "", "the KiwiSDR username")
	kiwiCmd.Flags().StringVar(&kiwiFlags.password, "password", "", "the KiwiSDR password")
	kiwiCmd.Flags().StringVar(&kiwiFlags.centerFrequency, "center", "7020k", "the center frequency")
	kiwiCmd.Flags().IntVar(&kiwiFlags.bandwidth, "iq-bandwidth", kiwi.MaxBandwidth, "the bandwidth of the IQ stream (max 12000)")
}

func runKiwi(ctx context.Context, scope scope.Scope, cmd *cobra.Command, args []string) {
	centerFrequency, err := cli.ParseFrequency(kiwiFlags.centerFrequency)
	if err != nil {
		log.Fatal(err)
	}
	frequencies, err := channelFrequencies(centerFrequency)
	if err != nil {
		log.Fatal(err)
	}

	tuner, err := kiwi.Open(kiwiFlags.host, kiwiFlags.username, kiwiFlags.password, centerFrequency, kiwiFlags.bandwidth, mustTunerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer tuner.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-tuner.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	runChannels(ctx, scope, tuner, frequencies)
}
