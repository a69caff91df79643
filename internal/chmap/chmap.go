// Package chmap implements the channel-map mixer (C4): mixing a client's
// interleaved float frames into the device's double-precision accumulator
// on playback, and demixing the device's float buffer into a client's
// buffer on capture, through a translation matrix.
package chmap

import "fmt"

// Kind records how a Map was built, resolved at install time.
type Kind int

const (
	// Simple is an identity mapping of contiguous channels (device and
	// client channel counts match one-to-one).
	Simple Kind = iota
	// Multi is a one-to-many expansion (e.g. a mono client fed to every
	// device channel).
	Multi
	// General is an arbitrary matrix, either supplied directly or derived
	// from enumerated channel positions.
	General
)

// Map is the translation between a client's channel layout and the
// device's. Matrix[i][j] is the playback gain from client channel j into
// device channel i (spec's M[i,j]); the same matrix is read in the other
// direction — Matrix[i][j] as the capture gain from device channel i into
// client channel j (spec's M'[i,j]) — since a channel-map translation is
// symmetric in which channels correspond, only the contraction direction
// differs between playback and capture.
type Map struct {
	Kind           Kind
	DeviceChannels int
	ClientChannels int
	Matrix         [][]float64 // [DeviceChannels][ClientChannels]
}

// NewSimple returns an identity map for matching channel counts: device
// channel i reads only client channel i and vice versa.
func NewSimple(channels int) *Map {
	m := newZero(Simple, channels, channels)
	for i := 0; i < channels; i++ {
		m.Matrix[i][i] = 1.0
	}
	return m
}

// NewMulti expands clientChannels channels into deviceChannels by fanning
// each client channel c out to every device channel listed in fanout[c].
// Unlisted client channels contribute nothing.
func NewMulti(deviceChannels, clientChannels int, fanout [][]int) *Map {
	m := newZero(Multi, deviceChannels, clientChannels)
	for c, targets := range fanout {
		if c >= clientChannels {
			break
		}
		for _, d := range targets {
			if d >= 0 && d < deviceChannels {
				m.Matrix[d][c] = 1.0
			}
		}
	}
	return m
}

// NewGeneral wraps a caller-supplied arbitrary gain matrix.
func NewGeneral(matrix [][]float64) *Map {
	device := len(matrix)
	client := 0
	if device > 0 {
		client = len(matrix[0])
	}
	return &Map{Kind: General, DeviceChannels: device, ClientChannels: client, Matrix: matrix}
}

// DeriveFromPositions builds a General map from enumerated channel
// position codes (e.g. front-left, front-right, lfe, ...), matching
// identical positions 1:1 and leaving everything else at zero gain. This
// is the path taken for a client that only supplied an enumerated map: a
// matrix is derived against the device's channel map.
func DeriveFromPositions(devicePositions, clientPositions []int) *Map {
	m := newZero(General, len(devicePositions), len(clientPositions))
	for i, dp := range devicePositions {
		for j, cp := range clientPositions {
			if dp == cp {
				m.Matrix[i][j] = 1.0
			}
		}
	}
	return m
}

func newZero(kind Kind, deviceChannels, clientChannels int) *Map {
	matrix := make([][]float64, deviceChannels)
	for i := range matrix {
		matrix[i] = make([]float64, clientChannels)
	}
	return &Map{Kind: kind, DeviceChannels: deviceChannels, ClientChannels: clientChannels, Matrix: matrix}
}

// MixPlayback mixes frames of interleaved client float32 samples into dst,
// an interleaved float64 device accumulator, accumulating
// (dst[i] += in[j]*volume*M[i,j]) for every frame. dst must already hold
// frames*DeviceChannels valid float64 slots to accumulate into.
func (m *Map) MixPlayback(dst []float64, src []float32, frames int, volume float32) {
	dc, cc := m.DeviceChannels, m.ClientChannels
	if len(dst) < frames*dc || len(src) < frames*cc {
		panic(fmt.Sprintf("chmap: buffer too small for %d frames", frames))
	}
	vol := float64(volume)
	for f := 0; f < frames; f++ {
		dOff := f * dc
		sOff := f * cc
		for i := 0; i < dc; i++ {
			row := m.Matrix[i]
			var acc float64
			for j := 0; j < cc; j++ {
				g := row[j]
				if g == 0 {
					continue
				}
				acc += float64(src[sOff+j]) * vol * g
			}
			dst[dOff+i] += acc
		}
	}
}

// DemixCapture demixes frames of interleaved device float32 samples from
// src into dst, an interleaved client float32 buffer, overwriting
// (dst[j] = src[i]*volume*M[i,j] summed over i) for every frame.
func (m *Map) DemixCapture(dst []float32, src []float32, frames int, volume float32) {
	dc, cc := m.DeviceChannels, m.ClientChannels
	if len(dst) < frames*cc || len(src) < frames*dc {
		panic(fmt.Sprintf("chmap: buffer too small for %d frames", frames))
	}
	vol := float32(volume)
	for f := 0; f < frames; f++ {
		dOff := f * dc
		sOff := f * cc
		for j := 0; j < cc; j++ {
			var acc float32
			for i := 0; i < dc; i++ {
				g := m.Matrix[i][j]
				if g == 0 {
					continue
				}
				acc += src[dOff+i] * vol * float32(g)
			}
			dst[sOff+j] = acc
		}
	}
}
