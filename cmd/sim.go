package cmd

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftl/channelizer/cli"
	"github.com/ftl/channelizer/scope"
	"github.com/ftl/channelizer/sim"
)

var simFlags = struct {
	frequency  string
	sampleRate int
	period     time.Duration
	signals    []string
	amplitude  float64
	noise      float64
}{}

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "select channels from a simulated tuner",
	Run:   runWithCtx(runSim),
}

func init() {
	rootCmd.AddCommand(simCmd)

	simCmd.Flags().StringVar(&simFlags.frequency, "frequency", "100M", "the center frequency of the simulated tuner")
	simCmd.Flags().IntVar(&simFlags.sampleRate, "sample-rate", 2_400_000, "the sample rate of the simulated tuner in Hz")
	simCmd.Flags().DurationVar(&simFlags.period, "buffer-period", 10*time.Millisecond, "the period of the simulated sample buffers")
	simCmd.Flags().StringSliceVar(&simFlags.signals, "signal", []string{"100.012M"}, "the frequency of a simulated carrier (repeatable)")
	simCmd.Flags().Float64Var(&simFlags.amplitude, "amplitude", 0.1, "the amplitude of the simulated carriers")
	simCmd.Flags().Float64Var(&simFlags.noise, "noise", 0.01, "the standard deviation of the simulated noise")
}

func runSim(ctx context.Context, scope scope.Scope, cmd *cobra.Command, args []string) {
	centerFrequency, err := cli.ParseFrequency(simFlags.frequency)
	if err != nil {
		log.Fatal(err)
	}
	signals := make([]sim.Signal, 0, len(simFlags.signals))
	for _, arg := range simFlags.signals {
		f, err := cli.ParseFrequency(arg)
		if err != nil {
			log.Fatal(err)
		}
		signals = append(signals, sim.Signal{Frequency: f, Amplitude: float32(simFlags.amplitude)})
	}
	defaultChannel := centerFrequency
	if len(signals) > 0 {
		defaultChannel = signals[0].Frequency
	}
	frequencies, err := channelFrequencies(defaultChannel)
	if err != nil {
		log.Fatal(err)
	}

	tuner := sim.New(centerFrequency, simFlags.sampleRate, mustTunerConfig(), signals...)
	tuner.SetNoise(simFlags.noise)
	tuner.Start(simFlags.period)
	defer tuner.Close()

	runChannels(ctx, scope, tuner, frequencies)
}
