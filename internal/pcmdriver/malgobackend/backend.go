// Package malgobackend implements pcmdriver.Device on top of
// github.com/gen2brain/malgo (a cgo-free binding to miniaudio), the
// concrete PCM back-end wired into SPEC_FULL's domain stack.
//
// malgo's device callback runs on miniaudio's own audio thread and is
// push-style (it hands you a buffer and you fill or drain it
// immediately), whereas pcmdriver.Device is pull-style (the device I/O
// thread calls MMapBegin/MMapCommit on its own schedule). Backend bridges
// the two with an internal ring buffer: the malgo callback is the
// producer (capture) or consumer (playback) of that ring, and
// MMapBegin/MMapCommit operate on the same ring from the owning device
// thread.
package malgobackend

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/agalue/audiomuxd/internal/pcmdriver"
	"github.com/agalue/audiomuxd/internal/pcmerr"
	"github.com/agalue/audiomuxd/internal/ringbuf"
	"github.com/agalue/audiomuxd/internal/stream"
)

// Direction selects whether a Backend drives playback or capture.
type Direction int

const (
	Playback Direction = iota
	Capture
)

// Backend is a malgo-backed pcmdriver.Device for one direction of one
// physical device.
type Backend struct {
	ctx       *malgo.AllocatedContext
	device    *malgo.Device
	direction Direction

	params pcmdriver.Params

	mu         sync.Mutex
	ring       *ringbuf.Ring
	applPtr    atomic.Uint64
	hwPtr      atomic.Uint64
	startedAt  atomic.Int64
	running    atomic.Bool
	volumeBits atomic.Uint32
}

// New opens a malgo device for the requested direction and parameters.
// name selects the backend device by its host-reported name; pass "" for
// the system default.
func New(ctx *malgo.AllocatedContext, direction Direction, params pcmdriver.Params, name string) (*Backend, error) {
	b := &Backend{ctx: ctx, direction: direction, params: params}
	b.volumeBits.Store(float32bits(1.0))

	frameBytes := malgoFrameBytes(params.Format) * params.Channels
	cap := nextPow2(uint32(params.BufferSize) * uint32(frameBytes))
	b.ring = ringbuf.New(cap)

	deviceType := malgo.Playback
	if direction == Capture {
		deviceType = malgo.Capture
	}
	cfg := malgo.DefaultDeviceConfig(deviceType)
	cfg.SampleRate = uint32(params.Rate)
	cfg.PeriodSizeInFrames = params.FragSize
	if direction == Capture {
		cfg.Capture.Format = malgoFormat(params.Format)
		cfg.Capture.Channels = uint32(params.Channels)
	} else {
		cfg.Playback.Format = malgoFormat(params.Format)
		cfg.Playback.Channels = uint32(params.Channels)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: b.onData,
	}
	dev, err := malgo.InitDevice(ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("malgobackend: init device: %w", err)
	}
	b.device = dev
	return b, nil
}

// onData is malgo's audio-thread callback: for playback it drains the
// ring into output; for capture it feeds input into the ring.
func (b *Backend) onData(output, input []byte, frameCount uint32) {
	if b.direction == Playback {
		n := copy(output, b.drain(len(output)))
		if n < len(output) {
			// Underrun: hand the hardware silence rather than stale data.
			for i := n; i < len(output); i++ {
				output[i] = 0
			}
			b.ring.SetError(pcmerr.ErrPipe)
		}
		b.hwPtr.Add(uint64(frameCount))
		return
	}
	b.feed(input)
	b.hwPtr.Add(uint64(frameCount))
}

func (b *Backend) drain(maxBytes int) []byte {
	out := make([]byte, 0, maxBytes)
	for len(out) < maxBytes {
		chunk := b.ring.ReadBegin(uint32(maxBytes - len(out)))
		if len(chunk) == 0 {
			break
		}
		out = append(out, chunk...)
		b.ring.ReadCommit(uint32(len(chunk)))
	}
	return out
}

func (b *Backend) feed(in []byte) {
	written := 0
	for written < len(in) {
		chunk := b.ring.WriteBegin(uint32(len(in) - written))
		if len(chunk) == 0 {
			b.ring.SetError(pcmerr.ErrPipe) // capture overrun: no room
			break
		}
		n := copy(chunk, in[written:])
		b.ring.WriteCommit(uint32(n))
		written += n
	}
}

func (b *Backend) MMapBegin(maxFrames uint32) (buf []byte, err error) {
	frameBytes := uint32(malgoFrameBytes(b.params.Format) * b.params.Channels)
	if b.direction == Playback {
		return b.ring.WriteBegin(maxFrames * frameBytes), nil
	}
	return b.ring.ReadBegin(maxFrames * frameBytes), nil
}

func (b *Backend) MMapCommit(frames uint32) (committed uint32, err error) {
	frameBytes := uint32(malgoFrameBytes(b.params.Format) * b.params.Channels)
	n := frames * frameBytes
	if b.direction == Playback {
		b.ring.WriteCommit(n)
	} else {
		b.ring.ReadCommit(n)
	}
	b.applPtr.Add(uint64(frames))
	return frames, nil
}

func (b *Backend) Prepare() error {
	b.ring.ClearError()
	return nil
}

func (b *Backend) Start() error {
	if b.running.Load() {
		return nil
	}
	if err := b.device.Start(); err != nil {
		return fmt.Errorf("malgobackend: start: %w", err)
	}
	b.running.Store(true)
	b.startedAt.Store(time.Now().UnixNano())
	return nil
}

func (b *Backend) Drop() error {
	if !b.running.Load() {
		return nil
	}
	if err := b.device.Stop(); err != nil {
		return fmt.Errorf("malgobackend: stop: %w", err)
	}
	b.running.Store(false)
	return nil
}

func (b *Backend) Recover() error {
	if err := b.Drop(); err != nil {
		return err
	}
	return b.Prepare()
}

func (b *Backend) Status(hwsync bool) (pcmdriver.Status, error) {
	frameBytes := uint32(malgoFrameBytes(b.params.Format) * b.params.Channels)
	fill := b.ring.Fill() / frameBytes
	space := b.ring.Space() / frameBytes
	return pcmdriver.Status{
		ApplPtr:     b.applPtr.Load(),
		HWPtr:       b.hwPtr.Load(),
		Fill:        fill,
		Space:       space,
		TimestampNs: time.Now().UnixNano(),
		DelayFrames: fill,
		Err:         b.ring.Err(),
	}, nil
}

func (b *Backend) Rewind(frames uint32) (committed uint32, err error) {
	frameBytes := uint32(malgoFrameBytes(b.params.Format) * b.params.Channels)
	b.ring.Rewind(frames * frameBytes)
	return frames, nil
}

func (b *Backend) Forward(frames uint32) (committed uint32, err error) {
	frameBytes := uint32(malgoFrameBytes(b.params.Format) * b.params.Channels)
	b.ring.Forward(frames * frameBytes)
	return frames, nil
}

func (b *Backend) Rewindable() (frames uint32, err error) {
	frameBytes := uint32(malgoFrameBytes(b.params.Format) * b.params.Channels)
	return b.ring.Fill() / frameBytes, nil
}

func (b *Backend) AdjustPointer(signedFrames int32) error {
	b.applPtr.Add(uint64(int64(signedFrames)))
	return nil
}

func (b *Backend) SetVolume(linear float32) error {
	b.volumeBits.Store(float32bits(linear))
	return nil
}

func (b *Backend) SetLatency(bufferFrames, periodHint uint32) (actualBufferFrames uint32, err error) {
	// miniaudio negotiates buffer size at Init time; report what we
	// already have rather than re-opening the device mid-stream.
	frameBytes := uint32(malgoFrameBytes(b.params.Format) * b.params.Channels)
	return b.ring.Capacity() / frameBytes, nil
}

func (b *Backend) GetParams() (pcmdriver.Params, error) {
	return b.params, nil
}

func (b *Backend) GetChannelMap() (pcmdriver.ChannelPositions, error) {
	positions := make(pcmdriver.ChannelPositions, b.params.Channels)
	for i := range positions {
		positions[i] = i + 1
	}
	return positions, nil
}

func (b *Backend) TranslateChannelMap(in pcmdriver.ChannelPositions) (pcmdriver.ChannelPositions, error) {
	return nil, pcmerr.ErrNotSupported
}

func (b *Backend) CreateChannelMap(channels int) (pcmdriver.ChannelPositions, error) {
	return nil, pcmerr.ErrNotSupported
}

func (b *Backend) PollDescriptors() ([]pcmdriver.PollDescriptor, error) {
	// miniaudio's device thread is internal to the library; there is no
	// exposed pollable fd, so the scheduler falls back to its timer-based
	// wakeup for this back-end.
	return nil, nil
}

func (b *Backend) PollRevents(fds []pcmdriver.PollDescriptor) (revents uint32, err error) {
	return 0, nil
}

func (b *Backend) IOPending(mask uint32) (uint32, error) {
	return mask, nil
}

func (b *Backend) IOCtl(req uint32, in, out []byte) (int, error) {
	return 0, pcmerr.ErrNotSupported
}

func (b *Backend) Close() error {
	if b.device != nil {
		b.device.Uninit()
	}
	return nil
}

func nextPow2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func malgoFormat(f stream.Format) malgo.FormatType {
	switch f {
	case stream.FormatS16LE:
		return malgo.FormatS16
	case stream.FormatS32LE:
		return malgo.FormatS32
	default:
		return malgo.FormatF32
	}
}

func malgoFrameBytes(f stream.Format) int {
	return f.BytesPerSample()
}

func float32bits(v float32) uint32 {
	return math.Float32bits(v)
}
