// Package audio provides a stereo sound card input as tuner, e.g. for SDR hardware that
// outputs its I/Q signal as analog left and right channels.
package audio

import (
	"fmt"
	"log"

	"github.com/jfreymuth/pulse"

	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/tuner"
)

const applicationName = "channelizer"

// Tuner records a stereo Pulseaudio source. The left channel carries I, the right channel Q.
type Tuner struct {
	*tuner.Feed
	swapIQ bool

	client *pulse.Client
	stream *pulse.RecordStream
}

// Open the Pulseaudio source with the given ID, or the default source if the ID is empty.
// The center frequency is the frequency the I/Q hardware is tuned to.
func Open(sourceID string, centerFrequency int64, fragmentSize int, swapIQ bool, config tuner.Config) (*Tuner, error) {
	client, err := pulse.NewClient(pulse.ClientApplicationName(applicationName))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to Pulseaudio: %w", err)
	}

	var source *pulse.Source
	if sourceID == "" {
		source, err = client.DefaultSource()
	} else {
		source, err = client.SourceByID(sourceID)
	}
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("cannot open audio source: %w", err)
	}

	result := newTuner(centerFrequency, source.SampleRate(), swapIQ, config)
	result.client = client
	result.stream, err = client.NewRecord(
		pulse.Float32Writer(result.write),
		pulse.RecordSource(source),
		pulse.RecordStereo,
		pulse.RecordSampleRate(source.SampleRate()),
		pulse.RecordBufferFragmentSize(uint32(2*fragmentSize)),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("cannot record from %s: %w", source.ID(), err)
	}
	if result.stream.Channels() != 2 {
		result.Close()
		return nil, fmt.Errorf("audio source %s must provide two channels: %d", source.ID(), result.stream.Channels())
	}
	result.SetSampleRate(result.stream.SampleRate())
	log.Printf("recording I/Q from %s at %dHz", source.ID(), result.stream.SampleRate())

	return result, nil
}

func newTuner(centerFrequency int64, sampleRate int, swapIQ bool, config tuner.Config) *Tuner {
	return &Tuner{
		Feed:   tuner.NewFeed(centerFrequency, sampleRate, config),
		swapIQ: swapIQ,
	}
}

func (t *Tuner) Start() {
	t.stream.Start()
}

func (t *Tuner) Close() {
	if t.stream != nil {
		t.stream.Stop()
		t.stream.Close()
	}
	if t.client != nil {
		t.client.Close()
	}
}

// write receives interleaved left/right frames from the record stream. The recording buffer
// is reused by Pulseaudio, the samples are copied into a new buffer.
func (t *Tuner) write(data []float32) (int, error) {
	count := len(data) - len(data)%2
	if count == 0 {
		return len(data), nil
	}

	samples := make([]float32, count)
	if t.swapIQ {
		for i := 0; i < count; i += 2 {
			samples[i] = data[i+1]
			samples[i+1] = data[i]
		}
	} else {
		copy(samples, data[:count])
	}
	t.Receive(sample.NewComplexBuffer(samples))

	return len(data), nil
}
