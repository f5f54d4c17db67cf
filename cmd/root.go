package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ftl/channelizer/dsp"
	"github.com/ftl/channelizer/scope"
	"github.com/ftl/channelizer/tuner"
)

var (
	version   string = "develop"
	gitCommit string = "-"
	buildTime string = "-"
)

var rootFlags = struct {
	pprof        bool
	debug        bool
	scope        bool
	scopeAddress string
	httpAddress  string

	channels         []string
	bandwidth        int
	channelRate      int
	passBand         int
	attenuation      float64
	window           string
	queueCapacity    int
	resetThreshold   int
	processingPeriod time.Duration
	batchSize        int

	traceContext     string
	traceDestination string
}{}

var rootCmd = &cobra.Command{
	Use:   "channelizer",
	Short: "Channelizer - select narrowband channels from the IQ stream of a wideband SDR",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func init() {
	defaults := tuner.DefaultConfig()

	rootCmd.PersistentFlags().BoolVar(&rootFlags.pprof, "pprof", false, "enable pprof")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&rootFlags.scope, "scope", false, "enable the scope server for insights into the inner workings")
	rootCmd.PersistentFlags().StringVar(&rootFlags.scopeAddress, "scope-address", ":35369", "listening address and port for the scope server")
	rootCmd.PersistentFlags().StringVar(&rootFlags.httpAddress, "http-address", "", "listening address and port for the channel status (e.g. :8080)")

	rootCmd.PersistentFlags().StringSliceVar(&rootFlags.channels, "channel", nil, "the frequency of a channel, e.g. 7074k or 100.012M (repeatable)")
	rootCmd.PersistentFlags().IntVar(&rootFlags.bandwidth, "bandwidth", 12_500, "the bandwidth of each channel in Hz")
	rootCmd.PersistentFlags().IntVar(&rootFlags.channelRate, "channel-rate", defaults.ChannelRate, "the sample rate of the channels in Hz")
	rootCmd.PersistentFlags().IntVar(&rootFlags.passBand, "pass-band", defaults.PassBand, "the one-sided pass band of the decimation filter in Hz")
	rootCmd.PersistentFlags().Float64Var(&rootFlags.attenuation, "attenuation", defaults.StopBandAttenuation, "the stop band attenuation of the decimation filter in dB")
	rootCmd.PersistentFlags().StringVar(&rootFlags.window, "window", defaults.Window.String(), "the window of the decimation filter: hamming | hann | blackman | bartlett | flattop | rectangular")
	rootCmd.PersistentFlags().IntVar(&rootFlags.queueCapacity, "queue", defaults.QueueCapacity, "the number of wideband buffers each channel can hold")
	rootCmd.PersistentFlags().IntVar(&rootFlags.resetThreshold, "queue-reset", defaults.ResetThreshold, "the queue length that ends an overflow")
	rootCmd.PersistentFlags().DurationVar(&rootFlags.processingPeriod, "period", defaults.ProcessingPeriod, "the period of the decimation")
	rootCmd.PersistentFlags().IntVar(&rootFlags.batchSize, "batch", defaults.BatchSize, "the maximum number of buffers per decimation period")

	rootCmd.PersistentFlags().StringVar(&rootFlags.traceContext, "trace", "", "events | baseband")
	rootCmd.PersistentFlags().StringVar(&rootFlags.traceDestination, "trace-to", "", "file:<filename> | udp:<host:port>")

	rootCmd.PersistentFlags().MarkHidden("pprof")
	rootCmd.PersistentFlags().MarkHidden("scope")
	rootCmd.PersistentFlags().MarkHidden("scope-address")
	rootCmd.PersistentFlags().MarkHidden("queue")
	rootCmd.PersistentFlags().MarkHidden("queue-reset")
	rootCmd.PersistentFlags().MarkHidden("period")
	rootCmd.PersistentFlags().MarkHidden("batch")
}

func runWithCtx(f func(ctx context.Context, scope scope.Scope, cmd *cobra.Command, args []string)) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if !rootFlags.debug {
			log.SetOutput(&nopWriter{})
		}

		log.Printf("Channelizer Version %s", formatVersion())

		if rootFlags.pprof {
			go func() {
				log.Printf("starting pprof on http://localhost:6060/debug/pprof")
				log.Println(http.ListenAndServe("localhost:6060", nil))
			}()
		}

		var scopeServer *scope.ScopeServer
		var s scope.Scope = scope.NewNullScope()
		if rootFlags.scope {
			scopeServer = scope.NewScopeServer(rootFlags.scopeAddress)
			err := scopeServer.Start()
			if err != nil {
				log.Fatalf("cannot start scope server: %v", err)
			}
			s = scopeServer
		}

		ctx, cancel := context.WithCancel(context.Background())
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
		go handleCancelation(signals, cancel)

		f(ctx, s, cmd, args)

		if scopeServer != nil {
			scopeServer.Stop()
		}
	}
}

// tunerConfig builds the channel configuration from the command line flags.
func tunerConfig() (tuner.Config, error) {
	window, err := dsp.ParseWindowType(rootFlags.window)
	if err != nil {
		return tuner.Config{}, err
	}

	result := tuner.Config{
		ChannelRate:         rootFlags.channelRate,
		PassBand:            rootFlags.passBand,
		StopBandAttenuation: rootFlags.attenuation,
		Window:              window,
		QueueCapacity:       rootFlags.queueCapacity,
		ResetThreshold:      rootFlags.resetThreshold,
		ProcessingPeriod:    rootFlags.processingPeriod,
		BatchSize:           rootFlags.batchSize,
	}
	return result, result.Validate()
}

func mustTunerConfig() tuner.Config {
	result, err := tunerConfig()
	if err != nil {
		log.Fatalf("invalid channel configuration: %v", err)
	}
	return result
}

func formatVersion() string {
	if gitCommit == "-" && buildTime == "-" {
		return version
	}
	return fmt.Sprintf("%s_%s_%s", version, gitCommit, buildTime)
}

func handleCancelation(signals <-chan os.Signal, cancel context.CancelFunc) {
	count := 0
	for range signals {
		count++
		if count == 1 {
			cancel()
		} else {
			log.Fatal("hard shutdown")
		}
	}
}

type nopWriter struct{}

func (w *nopWriter) Write(p []byte) (n int, err error) { return len(p), nil }
