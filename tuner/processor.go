package tuner

import (
	"log"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/ftl/channelizer/sample"
)

// processor is the periodic decimation task of a channel source. Each run drains a batch of
// wideband buffers from the queue, shifts them to baseband and passes them through the
// decimation filter.
type processor struct {
	source     *ChannelSource
	processing atomic.Bool
	buffers    []*sample.ComplexBuffer
}

func newProcessor(source *ChannelSource) *processor {
	return &processor{
		source:  source,
		buffers: make([]*sample.ComplexBuffer, 0, source.config.BatchSize),
	}
}

func (p *processor) start() {
	p.processing.Store(true)
}

// shutdown stops the processing as soon as possible. Buffers that are already drained from the
// queue are discarded.
func (p *processor) shutdown() {
	p.processing.Store(false)
}

func (p *processor) run() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("code error in the decimation of channel source %s: %+v", p.source.id, errors.Errorf("%v", r))
		}
		if !p.processing.Load() {
			p.source.queue.Clear()
		}
		clear(p.buffers)
		p.buffers = p.buffers[:0]
	}()

	if !p.processing.Load() {
		return
	}

	p.source.sendHeartbeat()

	p.buffers = p.source.queue.DrainTo(p.buffers[:0], p.source.config.BatchSize)
	for _, buffer := range p.buffers {
		if !p.processing.Load() {
			return
		}

		samples := buffer.Samples()
		translated := make([]float32, len(samples))
		p.source.oscillator.Translate(translated, samples)

		if !p.processing.Load() {
			return
		}
		filter := p.source.filter.Load()
		err := filter.Receive(sample.NewComplexBuffer(translated))
		if err != nil {
			log.Printf("channel source %s cannot decimate buffer: %v", p.source.id, err)
		}
	}
}
