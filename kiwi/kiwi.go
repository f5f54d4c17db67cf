// Package kiwi provides a KiwiSDR receiver as tuner. The KiwiSDR streams the IQ samples of one
// receiver channel, the channel sources then select narrower channels within this bandwidth.
package kiwi

import (
	"fmt"
	"log"
	"sync"

	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/tuner"
)

// MaxBandwidth of the KiwiSDR IQ mode.
const MaxBandwidth = 12_000

// Tuner feeds the IQ stream of a KiwiSDR into channel sources. The sample rate is unknown until
// the KiwiSDR reports its audio rate; until then, no channels can be requested.
type Tuner struct {
	*tuner.Feed
	client *Client

	lock         sync.Mutex
	bandwidth    int
	lastSequence uint32
	lastRSSI     float32
	disconnected chan struct{}
}

// Open a connection to the KiwiSDR at the given host and tune it to the given center frequency.
func Open(host string, username string, password string, centerFrequency int64, bandwidth int, config tuner.Config) (*Tuner, error) {
	if bandwidth <= 0 || bandwidth > MaxBandwidth {
		return nil, fmt.Errorf("bandwidth must be within (0, %d]: %d", MaxBandwidth, bandwidth)
	}

	result := newTuner(centerFrequency, bandwidth, config)
	client, err := newClient(host, true, result)
	if err != nil {
		return nil, err
	}
	conn, err := client.dial()
	if err != nil {
		return nil, fmt.Errorf("cannot open KiwiSDR client: %w", err)
	}
	log.Printf("connected to KiwiSDR %s", host)

	result.client = client
	client.start(conn, username, password, centerFrequency, bandwidth)

	return result, nil
}

func newTuner(centerFrequency int64, bandwidth int, config tuner.Config) *Tuner {
	return &Tuner{
		Feed:         tuner.NewFeed(centerFrequency, 0, config),
		bandwidth:    bandwidth,
		disconnected: make(chan struct{}),
	}
}

func (t *Tuner) Close() {
	if t.client != nil {
		t.client.Close()
	}
}

// Done is closed when the connection to the KiwiSDR is lost.
func (t *Tuner) Done() <-chan struct{} {
	return t.disconnected
}

// Tune the KiwiSDR to a new center frequency.
func (t *Tuner) Tune(centerFrequency int64) {
	if t.client != nil {
		t.client.tune(centerFrequency, t.bandwidth)
	}
	t.SetFrequency(centerFrequency)
}

func (t *Tuner) RSSI() float32 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.lastRSSI
}

func (t *Tuner) Connected(sampleRate int) {
	log.Printf("KiwiSDR streams IQ data at %dHz", sampleRate)
	t.SetSampleRate(sampleRate)
}

func (t *Tuner) IQData(sampleRate int, frame iqFrame) {
	t.lock.Lock()
	if t.lastSequence != 0 && frame.Sequence != t.lastSequence+1 {
		log.Printf("KiwiSDR lost %d IQ frames", frame.Sequence-t.lastSequence-1)
	}
	t.lastSequence = frame.Sequence
	t.lastRSSI = frame.RSSI
	t.lock.Unlock()

	t.SetSampleRate(sampleRate)
	t.Receive(sample.NewComplexBuffer(frame.Samples))
}

func (t *Tuner) Disconnected(err error) {
	log.Printf("KiwiSDR disconnected: %v", err)
	t.SetSampleRate(0)
	close(t.disconnected)
}
