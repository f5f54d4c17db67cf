// Package monitor keeps statistics about the running channel sources. It streams the channel
// power and spectrum to a scope and reports the status of all channels as JSON over HTTP.
package monitor

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ftl/channelizer/frequency"
	"github.com/ftl/channelizer/sample"
	"github.com/ftl/channelizer/scope"
	"github.com/ftl/channelizer/tuner"
)

const (
	defaultFrameInterval = 100 * time.Millisecond
	shutdownTimeout      = 5 * time.Second
)

// ChannelStatus is the JSON representation of a channel's statistics.
type ChannelStatus struct {
	ID              string  `json:"id"`
	Frequency       int64   `json:"frequency"`
	Band            string  `json:"band,omitempty"`
	Bandwidth       int     `json:"bandwidth"`
	SampleRate      int     `json:"sampleRate"`
	TunerSampleRate int     `json:"tunerSampleRate"`
	Decimation      int     `json:"decimation"`
	MixerFrequency  int64   `json:"mixerFrequency"`
	Correction      int64   `json:"correction"`
	State           string  `json:"state"`
	QueueLength     int     `json:"queueLength"`
	Overflow        bool    `json:"overflow"`
	Overflows       int64   `json:"overflows"`
	Heartbeats      int64   `json:"heartbeats"`
	Buffers         int64   `json:"buffers"`
	TunerEvents     int64   `json:"tunerEvents"`
	ChannelEvents   int64   `json:"channelEvents"`
	LastTunerEvent  string  `json:"lastTunerEvent,omitempty"`
	LastEvent       string  `json:"lastEvent,omitempty"`
	PowerdB         float64 `json:"powerdB"`
}

type Monitor struct {
	scope         scope.Scope
	frameInterval time.Duration
	clock         func() time.Time

	lock   sync.Mutex
	probes map[uuid.UUID]*Probe
}

func New(scope scope.Scope) *Monitor {
	return &Monitor{
		scope:         scope,
		frameInterval: defaultFrameInterval,
		clock:         time.Now,
		probes:        make(map[uuid.UUID]*Probe),
	}
}

// Attach a probe to the given channel source. The probe takes the places of the source's sample
// listener and frequency change listener and passes everything on to the given listeners. Both
// may be nil.
func (m *Monitor) Attach(source *tuner.ChannelSource, nextSamples sample.Listener, nextEvents frequency.Listener) *Probe {
	m.lock.Lock()
	defer m.lock.Unlock()

	if probe, ok := m.probes[source.ID()]; ok {
		log.Printf("channel source %s is already monitored", source.ID())
		return probe
	}

	probe := newProbe(m, source, nextSamples, nextEvents)
	probe.attach()
	m.probes[source.ID()] = probe
	return probe
}

// Detach the probe from the channel source with the given ID.
func (m *Monitor) Detach(id uuid.UUID) {
	m.lock.Lock()
	defer m.lock.Unlock()

	probe, ok := m.probes[id]
	if !ok {
		return
	}
	probe.detach()
	delete(m.probes, id)
}

// Status of all monitored channels, ordered by frequency.
func (m *Monitor) Status() []ChannelStatus {
	m.lock.Lock()
	probes := make([]*Probe, 0, len(m.probes))
	for _, probe := range m.probes {
		probes = append(probes, probe)
	}
	m.lock.Unlock()

	result := make([]ChannelStatus, 0, len(probes))
	for _, probe := range probes {
		result = append(result, probe.Status())
	}
	slices.SortFunc(result, func(a, b ChannelStatus) int {
		if a.Frequency != b.Frequency {
			return cmp.Compare(a.Frequency, b.Frequency)
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return result
}

func (m *Monitor) ChannelStatus(id uuid.UUID) (ChannelStatus, bool) {
	m.lock.Lock()
	probe, ok := m.probes[id]
	m.lock.Unlock()

	if !ok {
		return ChannelStatus{}, false
	}
	return probe.Status(), true
}

// Handler returns the HTTP handler that serves the channel status.
func (m *Monitor) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/channels", m.getChannels)
	router.GET("/channels/:id", m.getChannel)

	return router
}

func (m *Monitor) getChannels(c *gin.Context) {
	c.JSON(http.StatusOK, m.Status())
}

func (m *Monitor) getChannel(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid channel ID: %v", err)})
		return
	}

	status, ok := m.ChannelStatus(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown channel %s", id)})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Serve the channel status on the given address until the context is done.
func (m *Monitor) Serve(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:    address,
		Handler: m.Handler(),
	}

	serverResult := make(chan error, 1)
	go func() {
		serverResult <- server.ListenAndServe()
	}()
	log.Printf("serving channel status on %s", address)

	select {
	case err := <-serverResult:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		<-serverResult
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
