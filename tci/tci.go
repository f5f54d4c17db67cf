// Package tci provides the IQ stream of a TCI capable SDR application (e.g. ExpertSDR) as tuner.
package tci

import (
	"fmt"
	"log"
	"slices"
	"time"

	tci "github.com/ftl/tci/client"

	"github.com/ftl/channelizer/cli"
	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/tuner"
)

const (
	defaultHostname = "localhost"
	defaultPort     = 40001
	timeout         = 10 * time.Second
)

// SupportedSampleRates of the TCI IQ stream.
var SupportedSampleRates = []int{48000, 96000, 192000, 384000}

// iqControl is the part of the TCI protocol that controls the IQ stream.
type iqControl interface {
	Connected() bool
	StartIQ(trx int)
	StopIQ(trx int)
	SetIQSampleRate(sampleRate int)
}

// Tuner receives the IQ stream of one TRX. The center frequency follows the DDS frequency
// of the TRX.
type Tuner struct {
	*tuner.Feed
	control    iqControl
	trx        int
	sampleRate int

	opAsync chan func()
	close   chan struct{}
	closed  chan struct{}
}

// Open a TCI connection to the given host and stream the IQ data of the given TRX. The connection
// is kept open and re-established if it gets lost.
func Open(host string, trx int, sampleRate int, traceTCI bool, config tuner.Config) (*Tuner, error) {
	tcpHost, err := cli.ParseTCPAddrArg(host, defaultHostname, defaultPort)
	if err != nil {
		return nil, fmt.Errorf("invalid TCI host: %w", err)
	}
	if tcpHost.Port == 0 {
		tcpHost.Port = defaultPort
	}

	if !slices.Contains(SupportedSampleRates, sampleRate) {
		return nil, fmt.Errorf("unsupported TCI IQ sample rate %dHz, use one of %v", sampleRate, SupportedSampleRates)
	}

	client := tci.KeepOpen(tcpHost, timeout, traceTCI)
	result := newTuner(&clientControl{client: client}, trx, sampleRate, config)
	client.Notify(&tciListener{tuner: result})
	return result, nil
}

type clientControl struct {
	client *tci.Client
}

func (c *clientControl) Connected() bool {
	return c.client.Connected()
}

func (c *clientControl) StartIQ(trx int) {
	if err := c.client.StartIQ(trx); err != nil {
		log.Printf("cannot start the IQ stream of TRX %d: %v", trx, err)
	}
}

func (c *clientControl) StopIQ(trx int) {
	if err := c.client.StopIQ(trx); err != nil {
		log.Printf("cannot stop the IQ stream of TRX %d: %v", trx, err)
	}
}

func (c *clientControl) SetIQSampleRate(sampleRate int) {
	if err := c.client.SetIQSampleRate(tci.IQSampleRate(sampleRate)); err != nil {
		log.Printf("cannot set the IQ sample rate to %dHz: %v", sampleRate, err)
	}
}

func newTuner(control iqControl, trx int, sampleRate int, config tuner.Config) *Tuner {
	result := &Tuner{
		Feed:       tuner.NewFeed(0, 0, config),
		control:    control,
		trx:        trx,
		sampleRate: sampleRate,
		opAsync:    make(chan func(), 10),
		close:      make(chan struct{}),
		closed:     make(chan struct{}),
	}
	go result.run()
	return result
}

func (t *Tuner) run() {
	defer close(t.closed)
	for {
		select {
		case op := <-t.opAsync:
			op()
		case <-t.close:
			if t.control.Connected() {
				t.control.StopIQ(t.trx)
			}
			return
		}
	}
}

func (t *Tuner) doAsync(f func()) {
	select {
	case t.opAsync <- f:
	case <-t.close:
	}
}

func (t *Tuner) Close() {
	select {
	case <-t.close:
		return
	default:
		close(t.close)
		<-t.closed
	}
}

func (t *Tuner) onConnected(connected bool) {
	if !connected {
		log.Print("TCI disconnected")
		t.SetSampleRate(0)
		return
	}

	t.doAsync(func() {
		t.control.SetIQSampleRate(t.sampleRate)
		t.control.StartIQ(t.trx)
	})
}

func (t *Tuner) onIQData(sampleRate int, data []float32) {
	if len(data)%2 != 0 {
		log.Printf("TCI sent an incomplete IQ block of %d values", len(data))
		return
	}

	t.SetSampleRate(sampleRate)

	samples := make([]float32, len(data))
	copy(samples, data)
	t.Receive(sample.NewComplexBuffer(samples))
}

type tciListener struct {
	tuner *Tuner
}

func (l *tciListener) Connected(connected bool) {
	l.tuner.onConnected(connected)
}

func (l *tciListener) SetDDS(trx int, frequency int) {
	if trx != l.tuner.trx {
		return
	}
	l.tuner.SetFrequency(int64(frequency))
}

func (l *tciListener) IQData(trx int, sampleRate tci.IQSampleRate, data []float32) {
	if trx != l.tuner.trx {
		return
	}
	l.tuner.onIQData(int(sampleRate), data)
}
