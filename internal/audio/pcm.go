package audio

import (
	"encoding/base64"
	"encoding/binary"
)

// PCM16FromFloat32 converts mono float32 samples in [-1, 1] to 16-bit
// little-endian PCM. Out-of-range samples are clamped rather than wrapped.
func PCM16FromFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// Float32FromPCM16 converts 16-bit little-endian PCM back to float32
// samples. Odd trailing bytes are ignored.
func Float32FromPCM16(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(v) / 32767
	}
	return out
}

// Chunk is one fixed-size block of microphone audio, already converted to
// the wire format the live session expects. It is immutable once built.
type Chunk struct {
	PCM        []byte
	SampleRate int
}

// Base64 returns the chunk payload encoded for JSON transport.
func (c Chunk) Base64() string {
	return base64.StdEncoding.EncodeToString(c.PCM)
}
