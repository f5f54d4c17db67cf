package dsp

import (
	"fmt"
	"math"
	"strings"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/floats"
)

// WindowType selects the window function that is used to design FIR filters.
type WindowType int

const (
	Hamming WindowType = iota
	Hann
	Blackman
	Bartlett
	FlatTop
	Rectangular
)

var windowNames = map[WindowType]string{
	Hamming:     "hamming",
	Hann:        "hann",
	Blackman:    "blackman",
	Bartlett:    "bartlett",
	FlatTop:     "flattop",
	Rectangular: "rectangular",
}

func (t WindowType) String() string {
	name, ok := windowNames[t]
	if !ok {
		return fmt.Sprintf("window(%d)", int(t))
	}
	return name
}

// ParseWindowType returns the window type with the given name.
func ParseWindowType(s string) (WindowType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for t, name := range windowNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown window type %q", s)
}

// Coefficients returns the window of the given length.
func (t WindowType) Coefficients(length int) []float64 {
	switch t {
	case Hamming:
		return window.Hamming(length)
	case Hann:
		return window.Hann(length)
	case Blackman:
		return window.Blackman(length)
	case Bartlett:
		return window.Bartlett(length)
	case FlatTop:
		return window.FlatTop(length)
	default:
		return window.Rectangular(length)
	}
}

// EstimateTaps estimates the number of taps a low-pass filter requires for the given
// attenuation (dB) and transition band. Uses the harris approximation. The result is always
// odd and at least 3.
func EstimateTaps(sampleRate int, passBand, stopBand float64, attenuation float64) int {
	transition := stopBand - passBand
	if transition <= 0 {
		panic(fmt.Sprintf("stop band %f must be above pass band %f", stopBand, passBand))
	}
	taps := int(math.Ceil(attenuation * float64(sampleRate) / (22 * transition)))
	if taps%2 == 0 {
		taps++
	}
	return max(3, taps)
}

// LowpassTaps designs a windowed-sinc low-pass filter. The cutoff is given relative to the
// sample rate (0 < cutoff < 0.5). The coefficients are normalized to unity gain at DC.
func LowpassTaps(length int, cutoff float64, windowType WindowType) []float32 {
	if length%2 == 0 {
		panic("FIR length must be odd")
	}

	coefficients := windowType.Coefficients(length)
	center := (length - 1) / 2
	for i := range coefficients {
		t := float64(i - center)
		coefficients[i] *= 2 * cutoff * sinc(2*cutoff*t)
	}
	floats.Scale(1/floats.Sum(coefficients), coefficients)

	result := make([]float32, length)
	for i, c := range coefficients {
		result[i] = float32(c)
	}
	return result
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	return math.Sin(math.Pi*x) / (math.Pi * x)
}
