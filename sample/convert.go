package sample

import (
	"encoding/binary"
	"math"
)

// Signed16LE converts float samples in the range [-1, 1] into little-endian signed 16-bit
// samples. Values outside of the range are clipped.
func Signed16LE(samples []float32) []byte {
	result := make([]byte, 2*len(samples))
	for i, s := range samples {
		s = max(-1, min(s, 1))
		binary.LittleEndian.PutUint16(result[2*i:], uint16(int16(s*math.MaxInt16)))
	}
	return result
}
