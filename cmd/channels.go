package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ftl/channelizer/cli"
	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/monitor"
	"github.com/ftl/channelizer/schedule"
	"github.com/ftl/channelizer/scope"
	"github.com/ftl/channelizer/trace"
	"github.com/ftl/channelizer/tuner"
)

const tunerPollingInterval = 200 * time.Millisecond

type channelProvider interface {
	Channel(channel tuner.Channel) (*tuner.ChannelSource, error)
}

// channelFrequencies parses the --channel flags. Without channels, the given default is used.
func channelFrequencies(defaultFrequency int64) ([]int64, error) {
	if len(rootFlags.channels) == 0 {
		return []int64{defaultFrequency}, nil
	}

	result := make([]int64, 0, len(rootFlags.channels))
	for _, arg := range rootFlags.channels {
		f, err := cli.ParseFrequency(arg)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	return result, nil
}

// requestChannel waits until the tuner is available and returns the channel source for the given
// channel.
func requestChannel(ctx context.Context, provider channelProvider, channel tuner.Channel) (*tuner.ChannelSource, error) {
	ticker := time.NewTicker(tunerPollingInterval)
	defer ticker.Stop()
	for {
		source, err := provider.Channel(channel)
		if !errors.Is(err, tuner.ErrTunerUnavailable) {
			return source, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func newTracer() (trace.Tracer, error) {
	if rootFlags.traceContext == "" {
		return new(trace.NoTracer), nil
	}
	if rootFlags.traceDestination == "" {
		return nil, fmt.Errorf("--trace-to is missing")
	}
	return trace.Parse(rootFlags.traceContext, rootFlags.traceDestination)
}

// runChannels requests the channels from the given tuner and runs them until the context is done.
func runChannels(ctx context.Context, scope scope.Scope, provider channelProvider, frequencies []int64) {
	tracer, err := newTracer()
	if err != nil {
		log.Fatal(err)
	}
	tracer.Start()
	defer tracer.Stop()

	pool := schedule.NewPool(len(frequencies))
	defer pool.Shutdown()

	mon := monitor.New(scope)
	if rootFlags.httpAddress != "" {
		go func() {
			err := mon.Serve(ctx, rootFlags.httpAddress)
			if err != nil {
				log.Printf("cannot serve the channel status: %v", err)
			}
		}()
	}

	sources := make([]*tuner.ChannelSource, 0, len(frequencies))
	defer func() {
		for _, source := range sources {
			mon.Detach(source.ID())
			source.Stop()
			source.Dispose()
		}
	}()

	for i, f := range frequencies {
		source, err := requestChannel(ctx, provider, tuner.Channel{Frequency: f, Bandwidth: rootFlags.bandwidth})
		if errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			log.Fatalf("cannot open channel %dHz: %v", f, err)
		}

		channelTracer := tracer
		if i > 0 && tracer.Context() == trace.BasebandContext {
			// the baseband trace contains only the first channel
			channelTracer = new(trace.NoTracer)
		}
		tap := trace.NewTap(channelTracer, nil, &eventLogger{source: source})
		mon.Attach(source, tap, tap)
		if err := source.Start(pool); err != nil {
			log.Fatalf("cannot start channel %dHz: %v", f, err)
		}
		sources = append(sources, source)
		log.Printf("channel %s at %dHz, decimation %d", source.ID(), f, source.Decimation())
	}
	log.Printf("running %d channels", len(sources))

	<-ctx.Done()
}

type eventLogger struct {
	source *tuner.ChannelSource
}

func (l *eventLogger) FrequencyChanged(event frequency.Event) {
	log.Printf("channel %s: %v", l.source.ID(), event)
}
