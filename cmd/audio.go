package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/ftl/channelizer/audio"
	"github.com/ftl/channelizer/cli"
	"github.com/ftl/channelizer/scope"
)

var audioFlags = struct {
	source          string
	centerFrequency string
	fragmentSize    int
	swapIQ          bool
}{}

var audioCmd = &cobra.Command{
	Use:   "audio",
	Short: "select channels from the I/Q signal of a stereo Pulseaudio source",
	Run:   runWithCtx(runAudio),
}

func init() {
	rootCmd.AddCommand(audioCmd)

	audioCmd.Flags().StringVar(&audioFlags.source, "source", "", "Pulseaudio source ID to use")
	audioCmd.Flags().StringVar(&audioFlags.centerFrequency, "center", "7074k", "the frequency the I/Q hardware is tuned to")
	audioCmd.Flags().IntVar(&audioFlags.fragmentSize, "fragment", 2048, "the number of stereo frames per recorded buffer")
	audioCmd.Flags().BoolVar(&audioFlags.swapIQ, "swap-iq", false, "the right channel carries I, the left channel Q")
}

func runAudio(ctx context.Context, scope scope.Scope, cmd *cobra.Command, args []string) {
	centerFrequency, err := cli.ParseFrequency(audioFlags.centerFrequency)
	if err != nil {
		log.Fatal(err)
	}
	frequencies, err := channelFrequencies(centerFrequency)
	if err != nil {
		log.Fatal(err)
	}

	tuner, err := audio.Open(audioFlags.source, centerFrequency, audioFlags.fragmentSize, audioFlags.swapIQ, mustTunerConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer tuner.Close()
	tuner.Start()

	runChannels(ctx, scope, tuner, frequencies)
}
