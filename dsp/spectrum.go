package dsp

import (
	"fmt"
	"math"

	"github.com/mjibson/go-dsp/fft"
)

var minimumdB = -200.0

// Spectrum calculates the power spectrum of blocks of interleaved I/Q samples. The result is
// ordered from the lowest to the highest frequency, DC is in the center bin.
type Spectrum[T Number] struct {
	blockSize int
	window    []float64
	samples   []complex128
}

// NewSpectrum returns a new spectrum calculator for the given number of complex samples per
// block. Each block is shaped with the given window before the FFT.
func NewSpectrum[T Number](blockSize int, windowType WindowType) *Spectrum[T] {
	return &Spectrum[T]{
		blockSize: blockSize,
		window:    windowType.Coefficients(blockSize),
		samples:   make([]complex128, blockSize),
	}
}

func (s *Spectrum[T]) BlockSize() int {
	return s.blockSize
}

// IQToSpectrum writes the spectrum of the given I/Q block into spectrum, projected with the
// given function. The block must contain exactly BlockSize complex samples.
func (s *Spectrum[T]) IQToSpectrum(spectrum []T, iqSamples []T, projection func(complex128, int) T) {
	if len(iqSamples) != 2*s.blockSize {
		panic(fmt.Sprintf("the I/Q block must contain %d values: %d", 2*s.blockSize, len(iqSamples)))
	}
	if len(spectrum) != s.blockSize {
		panic(fmt.Sprintf("the spectrum slice must have the block size: %d", s.blockSize))
	}

	for i := range s.samples {
		inphase := float64(iqSamples[2*i]) * s.window[i]
		quadrature := float64(iqSamples[2*i+1]) * s.window[i]
		s.samples[i] = complex(inphase, quadrature)
	}

	for i, value := range fft.FFT(s.samples) {
		spectrum[binToSpectrumIndex(i, s.blockSize)] = projection(value, s.blockSize)
	}
}

// PeakBin returns the index of the strongest bin of the given spectrum.
func PeakBin[T Number](spectrum []T) int {
	result := 0
	for i, value := range spectrum {
		if value > spectrum[result] {
			result = i
		}
	}
	return result
}

// BinFrequency returns the frequency offset from the center of the spectrum of the given bin.
func BinFrequency(bin int, blockSize int, sampleRate int) float64 {
	binSize := float64(sampleRate) / float64(blockSize)
	return float64(bin-blockSize/2) * binSize
}

func binToSpectrumIndex(bin int, blockSize int) int {
	centerBin := blockSize / 2
	return (bin + centerBin) % blockSize
}

func PSD[T Number](fftValue complex128, blockSize int) T {
	return T(real(fftValue)*real(fftValue) + imag(fftValue)*imag(fftValue))
}

func MagnitudeIndB[T Number](fftValue complex128, blockSize int) T {
	psd := real(fftValue)*real(fftValue) + imag(fftValue)*imag(fftValue)
	dB := minimumdB
	if psd > 0 {
		dB = max(minimumdB, 10.0*math.Log10(psd/math.Pow(float64(blockSize), 2)))
	}
	return T(dB)
}
