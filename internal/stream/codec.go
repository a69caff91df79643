package stream

import (
	"encoding/binary"
	"math"
)

func float32bits(v float32) uint32   { return math.Float32bits(v) }
func float32frombits(b uint32) float32 { return math.Float32frombits(b) }

// decodeInterleaved converts raw little-endian bytes in the stream's wire
// format into interleaved float32 samples in [-1, 1], truncating to n
// samples.
func decodeInterleaved(f Format, raw []byte, n int) []float32 {
	out := make([]float32, n)
	switch f {
	case FormatS16LE:
		for i := 0; i < n && (i+1)*2 <= len(raw); i++ {
			v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			out[i] = float32(v) / 32768.0
		}
	case FormatS32LE:
		for i := 0; i < n && (i+1)*4 <= len(raw); i++ {
			v := int32(binary.LittleEndian.Uint32(raw[i*4:]))
			out[i] = float32(v) / 2147483648.0
		}
	case FormatFloat32LE:
		for i := 0; i < n && (i+1)*4 <= len(raw); i++ {
			bits := binary.LittleEndian.Uint32(raw[i*4:])
			out[i] = math.Float32frombits(bits)
		}
	}
	return out
}

// encodeInterleaved is the inverse of decodeInterleaved, writing as many
// samples as fit in dst.
func encodeInterleaved(f Format, dst []byte, samples []float32) {
	switch f {
	case FormatS16LE:
		for i := 0; i < len(samples) && (i+1)*2 <= len(dst); i++ {
			v := clampS16(samples[i])
			binary.LittleEndian.PutUint16(dst[i*2:], uint16(v))
		}
	case FormatS32LE:
		for i := 0; i < len(samples) && (i+1)*4 <= len(dst); i++ {
			v := clampS32(samples[i])
			binary.LittleEndian.PutUint32(dst[i*4:], uint32(v))
		}
	case FormatFloat32LE:
		for i := 0; i < len(samples) && (i+1)*4 <= len(dst); i++ {
			binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(samples[i]))
		}
	}
}

func clampS16(v float32) int16 {
	f := v * 32768.0
	if f > 32767 {
		return 32767
	}
	if f < -32768 {
		return -32768
	}
	return int16(f)
}

func clampS32(v float32) int32 {
	f := float64(v) * 2147483648.0
	if f > 2147483647 {
		return 2147483647
	}
	if f < -2147483648 {
		return -2147483648
	}
	return int32(f)
}
