// Package pcmdriver defines the abstract PCM back-end driver interface:
// the function-pointer table a hardware or virtual device
// implements, consumed exclusively by the device I/O thread. Concrete
// back-ends (see the malgobackend subpackage) implement Device; the engine
// (internal/device) never imports a specific back-end directly.
package pcmdriver

import "github.com/agalue/audiomuxd/internal/stream"

// Status is the snapshot a back-end reports on demand.
type Status struct {
	ApplPtr     uint64
	HWPtr       uint64
	Fill        uint32
	Space       uint32
	TimestampNs int64
	DelayFrames uint32
	Err         error
}

// Params describes a back-end's negotiated hardware configuration.
type Params struct {
	Format     stream.Format
	Channels   int
	Rate       int
	BufferSize uint32
	FragSize   uint32
	MinLatency uint32
	MaxLatency uint32
	MinDMA     uint32
	Name       string
	Desc       string
	Bus        string
	Addr       string
}

// ChannelPositions enumerates a back-end's physical channel layout by
// position code (front-left, front-right, lfe, ...), the same vocabulary
// internal/chmap.DeriveFromPositions consumes.
type ChannelPositions []int

// PollDescriptor is one fd/events pair a back-end wants polled.
type PollDescriptor struct {
	FD     int
	Events uint32
}

// Device is the PCM back-end driver interface. All methods run
// only on the owning device's I/O thread.
type Device interface {
	// MMapBegin returns a writable (playback) or readable (capture)
	// contiguous byte region of up to maxFrames frames at the current
	// pointer, in the back-end's native interleaved format. The returned
	// slice collapses the host interface's separate pointer+offset+frames
	// triple into a single Go slice, the same shape as
	// internal/ringbuf.Ring's Begin/Commit pair.
	MMapBegin(maxFrames uint32) (buf []byte, err error)
	// MMapCommit publishes (playback) or releases (capture) frames
	// previously returned by MMapBegin.
	MMapCommit(frames uint32) (committed uint32, err error)

	Prepare() error
	Start() error
	Drop() error
	Recover() error

	// Status fills a snapshot; hwsync forces a hardware resync rather than
	// returning a cached value.
	Status(hwsync bool) (Status, error)

	Rewind(frames uint32) (committed uint32, err error)
	Forward(frames uint32) (committed uint32, err error)
	Rewindable() (frames uint32, err error)

	// AdjustPointer moves the application pointer without touching
	// hardware data, signed so it can move either direction.
	AdjustPointer(signedFrames int32) error

	SetVolume(linear float32) error
	// SetLatency requests a buffer/period pair in frames and returns what
	// the back-end actually configured.
	SetLatency(bufferFrames, periodHint uint32) (actualBufferFrames uint32, err error)

	GetParams() (Params, error)
	GetChannelMap() (ChannelPositions, error)
	// TranslateChannelMap and CreateChannelMap are optional; back-ends that
	// don't support them return ErrNotSupported.
	TranslateChannelMap(in ChannelPositions) (ChannelPositions, error)
	CreateChannelMap(channels int) (ChannelPositions, error)

	PollDescriptors() ([]PollDescriptor, error)
	PollRevents(fds []PollDescriptor) (revents uint32, err error)

	// IOPending reports which of a requested mask of async operations
	// (prepare/recover) have completed.
	IOPending(mask uint32) (uint32, error)

	// IOCtl is the pass-through fallthrough for requests the dispatch
	// layer doesn't recognize itself.
	IOCtl(req uint32, in, out []byte) (int, error)

	// Close is the back-end destructor.
	Close() error
}
