package audio

import (
	"encoding/binary"
	"math"
)

// DecodePCM16 converts little-endian signed 16-bit PCM bytes (the format
// ffmpeg's "s16le" output uses) to float32 samples normalized to [-1, 1].
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(s) / math.MaxInt16
	}
	return samples
}
