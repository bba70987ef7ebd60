package audio

import (
	"encoding/binary"
	"math"
)

// ScaleLinear16 scales little-endian 16-bit PCM samples in place. Volume is
// clamped to [0, 1]; a trailing odd byte is left untouched.
func ScaleLinear16(samples []byte, volume float64) {
	volume = max(0, min(1, volume))
	if volume == 1 {
		return
	}

	for i := 0; i+1 < len(samples); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(samples[i:]))
		scaled := math.Round(float64(sample) * volume)
		binary.LittleEndian.PutUint16(samples[i:], uint16(int16(scaled)))
	}
}
