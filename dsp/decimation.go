package dsp

import (
	"fmt"
	"slices"
	"sync/atomic"

	"gonum.org/v1/gonum/floats"

	"github.com/ftl/channelizer/sample"
)

// FilterConfig describes the output of a decimation filter.
type FilterConfig struct {
	OutputRate          int
	PassBand            int
	StopBandAttenuation float64
	Window              WindowType
}

// DecimationFilter low-pass filters a complex sample stream and reduces its sample rate by
// an integer factor. The decimation is split into stages, one per prime factor, largest
// first. Each stage only needs to suppress what would alias into the final passband, which
// keeps the early stages at high rates short.
//
// The filter state is kept between calls of Receive, so consecutive buffers are treated as
// one continuous stream. Receive must not be called concurrently.
type DecimationFilter struct {
	inputRate  int
	outputRate int
	decimation int
	stages     []*decimationStage
	listener   atomic.Pointer[listenerSlot]
}

type listenerSlot struct {
	listener sample.Listener
}

// NewDecimationFilter builds a decimation filter for the given input rate.
func NewDecimationFilter(inputRate int, config FilterConfig) (*DecimationFilter, error) {
	if inputRate <= 0 {
		return nil, fmt.Errorf("input rate must be positive: %d", inputRate)
	}
	if config.OutputRate <= 0 {
		return nil, fmt.Errorf("output rate must be positive: %d", config.OutputRate)
	}
	if inputRate%config.OutputRate != 0 {
		return nil, fmt.Errorf("input rate %d is not an integer multiple of the output rate %d", inputRate, config.OutputRate)
	}
	if config.PassBand <= 0 || 2*config.PassBand >= config.OutputRate {
		return nil, fmt.Errorf("pass band %d must be within (0, %d)", config.PassBand, config.OutputRate/2)
	}
	if config.StopBandAttenuation <= 0 {
		return nil, fmt.Errorf("stop band attenuation must be positive: %f", config.StopBandAttenuation)
	}

	decimation := inputRate / config.OutputRate
	factors := primeFactors(decimation)
	if len(factors) == 0 {
		factors = []int{1}
	}

	result := &DecimationFilter{
		inputRate:  inputRate,
		outputRate: config.OutputRate,
		decimation: decimation,
		stages:     make([]*decimationStage, 0, len(factors)),
	}

	passBand := float64(config.PassBand)
	rate := inputRate
	for i, factor := range factors {
		stageOutputRate := rate / factor
		var stopBand float64
		if i == len(factors)-1 {
			stopBand = float64(config.OutputRate) / 2
		} else {
			stopBand = float64(stageOutputRate) - passBand
		}
		length := EstimateTaps(rate, passBand, stopBand, config.StopBandAttenuation)
		cutoff := (passBand + stopBand) / 2 / float64(rate)
		taps := LowpassTaps(length, cutoff, config.Window)
		result.stages = append(result.stages, newDecimationStage(factor, taps))
		rate = stageOutputRate
	}

	return result, nil
}

// primeFactors returns the prime factors of n in descending order.
func primeFactors(n int) []int {
	var result []int
	for p := 2; p*p <= n; p++ {
		for n%p == 0 {
			result = append(result, p)
			n /= p
		}
	}
	if n > 1 {
		result = append(result, n)
	}
	slices.Reverse(result)
	return result
}

func (f *DecimationFilter) InputRate() int {
	return f.inputRate
}

func (f *DecimationFilter) OutputRate() int {
	return f.outputRate
}

// Decimation is the overall integer decimation factor.
func (f *DecimationFilter) Decimation() int {
	return f.decimation
}

// Stages returns the decimation factor of each stage.
func (f *DecimationFilter) Stages() []int {
	result := make([]int, len(f.stages))
	for i, stage := range f.stages {
		result[i] = stage.factor
	}
	return result
}

// Taps returns the number of taps of each stage.
func (f *DecimationFilter) Taps() []int {
	result := make([]int, len(f.stages))
	for i, stage := range f.stages {
		result[i] = len(stage.taps)
	}
	return result
}

// SetListener sets the listener that receives the decimated buffers.
func (f *DecimationFilter) SetListener(listener sample.Listener) {
	if listener == nil {
		f.listener.Store(nil)
		return
	}
	f.listener.Store(&listenerSlot{listener: listener})
}

func (f *DecimationFilter) RemoveListener() {
	f.listener.Store(nil)
}

// Receive filters and decimates the given buffer and passes the result on to the listener.
// Every emitted buffer is newly allocated and owned by the listener.
func (f *DecimationFilter) Receive(buffer *sample.ComplexBuffer) error {
	samples := buffer.Samples()
	if len(samples)%2 != 0 {
		return fmt.Errorf("odd number of I/Q values: %d", len(samples))
	}

	last := len(f.stages) - 1
	for i, stage := range f.stages {
		if i == last {
			samples = stage.process(make([]float32, 0, stage.outputCapacity(len(samples))), samples)
		} else {
			stage.scratch = stage.process(stage.scratch[:0], samples)
			samples = stage.scratch
		}
	}

	if len(samples) == 0 {
		return nil
	}
	slot := f.listener.Load()
	if slot != nil {
		slot.listener.Receive(sample.NewComplexBuffer(samples))
	}
	return nil
}

// decimationStage is one FIR low-pass stage that keeps every factor-th output.
type decimationStage struct {
	factor int
	taps   []float64 // reversed, oldest sample first

	// the history is stored twice to always have a contiguous window of the last len(taps) samples
	historyI  []float64
	historyQ  []float64
	position  int
	countDown int

	scratch []float32
}

func newDecimationStage(factor int, taps []float32) *decimationStage {
	reversed := make([]float64, len(taps))
	for i, tap := range taps {
		reversed[len(taps)-1-i] = float64(tap)
	}
	return &decimationStage{
		factor:   factor,
		taps:     reversed,
		historyI: make([]float64, 2*len(taps)),
		historyQ: make([]float64, 2*len(taps)),
	}
}

func (s *decimationStage) outputCapacity(inputValues int) int {
	return 2 * (inputValues/(2*s.factor) + 1)
}

func (s *decimationStage) process(dst []float32, src []float32) []float32 {
	length := len(s.taps)
	for i := 0; i+1 < len(src); i += 2 {
		inphase := float64(src[i])
		quadrature := float64(src[i+1])
		s.historyI[s.position] = inphase
		s.historyI[s.position+length] = inphase
		s.historyQ[s.position] = quadrature
		s.historyQ[s.position+length] = quadrature
		s.position = (s.position + 1) % length

		if s.countDown > 0 {
			s.countDown--
			continue
		}
		s.countDown = s.factor - 1

		windowI := s.historyI[s.position : s.position+length]
		windowQ := s.historyQ[s.position : s.position+length]
		dst = append(dst, float32(floats.Dot(s.taps, windowI)), float32(floats.Dot(s.taps, windowQ)))
	}
	return dst
}
