// Package stream implements the client stream state (C5): the per-direction
// record of a client's negotiated parameters, ring buffer, status mailbox,
// volume, resampler and channel map, plus the control operations a client
// issues against it and the device-invoked operations the engine issues
// against it.
package stream

import "fmt"

// Direction distinguishes a client's playback half from its capture half.
// A Client (internal/client) holds at most one StreamState of each.
type Direction int

const (
	Playback Direction = iota
	Capture
)

func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// Format mirrors the handful of sample encodings the mixer core cares
// about; anything else is rejected at Validate time rather than carried
// as an opaque host constant.
type Format int

const (
	FormatS16LE Format = iota
	FormatS32LE
	FormatFloat32LE
)

// BytesPerSample returns the on-the-wire sample width for f.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatS16LE:
		return 2
	case FormatS32LE, FormatFloat32LE:
		return 4
	default:
		return 0
	}
}

// Params is the negotiated configuration of one stream direction. Buffer
// and Fragment are expressed in frames.
type Params struct {
	Direction  Direction
	Format     Format
	Channels   int
	Rate       int
	Buffer     uint32
	Fragment   uint32
	MinLatency uint32 // frames
	MaxLatency uint32 // frames
	MinDMA     uint32 // frames; back-end's minimum contiguous transfer
}

// Validate checks the invariants a connect/set-params call must hold before
// a StreamState can be built from Params.
func (p Params) Validate() error {
	if p.Channels < 1 || p.Channels > 32 {
		return fmt.Errorf("stream: channels %d out of range", p.Channels)
	}
	if p.Rate < 1000 || p.Rate > 384000 {
		return fmt.Errorf("stream: rate %d out of range", p.Rate)
	}
	if p.Format.BytesPerSample() == 0 {
		return fmt.Errorf("stream: unknown format %d", p.Format)
	}
	if p.Buffer == 0 {
		return fmt.Errorf("stream: buffer size must be nonzero")
	}
	if p.Fragment == 0 || p.Fragment > p.Buffer {
		return fmt.Errorf("stream: fragment size %d invalid for buffer %d", p.Fragment, p.Buffer)
	}
	if p.MinLatency > p.MaxLatency {
		return fmt.Errorf("stream: min latency %d exceeds max latency %d", p.MinLatency, p.MaxLatency)
	}
	return nil
}

// FrameBytes returns the byte size of one interleaved frame.
func (p Params) FrameBytes() int {
	return p.Format.BytesPerSample() * p.Channels
}
