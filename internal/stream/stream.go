package stream

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/agalue/audiomuxd/internal/chmap"
	"github.com/agalue/audiomuxd/internal/pcmerr"
	"github.com/agalue/audiomuxd/internal/resample"
	"github.com/agalue/audiomuxd/internal/ringbuf"
	"github.com/agalue/audiomuxd/internal/vctrl"
)

// State is the stream state machine: Closed -> Prepared -> Running ->
// {XRun, Suspended, Paused, Disconnected}. Recover re-prepares a stream from
// any state, but transitions do not all pass through it: Start, Stop, Pause,
// Connect, Disconnect and ChangeRoute set the state directly, and Start
// moves an XRun stream straight to Running.
type State int

const (
	Closed State = iota
	Prepared
	Running
	Paused
	XRun
	Suspended
	Disconnected
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Prepared:
		return "prepared"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case XRun:
		return "xrun"
	case Suspended:
		return "suspended"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// StreamState is the per-direction client stream (C5): its negotiated
// params, ring buffer, status mailbox, volume, resampler and channel map.
// Control operations (invoked by the control thread, under the owning
// client's rw-lock) and device-invoked operations (invoked by the device
// engine, under the client's srv-lock) are kept as separate method sets on
// the same type, matching its two distinct callers.
type StreamState struct {
	mu sync.Mutex // guards everything below except Ring/Mailbox (self-synchronizing) and Volume (atomic)

	params   Params
	state    State
	volume   atomic.Uint32 // float32 bits, [0,1]
	resample resample.Resampler
	userMap  *chmap.Map // client-channel-layout side of the translation
	devMap   *chmap.Map // device-channel-layout side

	ring    *ringbuf.Ring
	mailbox *ringbuf.StatusMailbox

	startCount   uint32
	triggerAtNs  int64
	hasTrigger   bool
	deviceIndex  int
	attached     bool
	exclusiveReq bool
	minLatency   uint32 // current requested latency, frames; may be lowered by SetParams/SetSWParams
	deviceRate   int    // device's negotiated rate, once known; 0 until SetDeviceRate is called

	ctrl        *vctrl.List // non-nil once the device engine binds this stream to a mixer control
	ctrlEventID uint64
	ctrlSlot    vctrl.Slot
}

// New builds a StreamState for a direction, allocating a ring buffer sized
// to the next power of two at or above params.Buffer frames.
func New(params Params, quality resample.Quality) (*StreamState, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	cap := nextPow2(params.Buffer * uint32(params.FrameBytes()))
	s := &StreamState{
		params:     params,
		state:      Closed,
		resample:   resample.New(quality, params.Channels),
		userMap:    chmap.NewSimple(params.Channels),
		devMap:     chmap.NewSimple(params.Channels),
		ring:       ringbuf.New(cap),
		mailbox:    ringbuf.NewStatusMailbox(),
		minLatency: params.MinLatency,
	}
	s.volume.Store(float32bits(1.0))
	return s, nil
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

// ---- control operations (caller holds the owning client's rw-lock) ----

// Start transitions Prepared -> Running. It is a no-op if already running.
func (s *StreamState) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Running:
		return nil
	case Prepared, Paused, XRun:
		s.state = Running
		return nil
	default:
		return fmt.Errorf("stream: cannot start from state %s", s.state)
	}
}

// Stop transitions back to Prepared, clearing any trigger.
func (s *StreamState) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed || s.state == Disconnected {
		return fmt.Errorf("stream: cannot stop from state %s", s.state)
	}
	s.state = Prepared
	s.hasTrigger = false
	return nil
}

// Pause toggles between Running and Paused.
func (s *StreamState) Pause(pause bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pause {
		if s.state != Running {
			return fmt.Errorf("stream: cannot pause from state %s", s.state)
		}
		s.state = Paused
		return nil
	}
	if s.state != Paused {
		return fmt.Errorf("stream: cannot resume from state %s", s.state)
	}
	s.state = Running
	return nil
}

// SetParams updates the negotiated rate/format, rebuilding the resampler.
// Channel count must not change; use SetChannelMap for routing changes.
func (s *StreamState) SetParams(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.Channels != s.params.Channels {
		return fmt.Errorf("stream: channel count change requires reconnect")
	}
	s.params = p
	if s.deviceRate != 0 {
		if p.Direction == Capture {
			s.resample.SetRates(s.deviceRate, p.Rate)
		} else {
			s.resample.SetRates(p.Rate, s.deviceRate)
		}
	}
	s.resample.Reset()
	s.minLatency = p.MinLatency
	return nil
}

// SetVolume stores a new linear gain in [0,1], read by the mixer without
// taking the stream's lock. If a mixer control is bound (BindControl), its
// value is pushed through too, so the vctrl enumeration stays in sync with
// what the mixer actually applies.
func (s *StreamState) SetVolume(v float32) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	s.volume.Store(float32bits(v))

	s.mu.Lock()
	ctrl, eventID, slot := s.ctrl, s.ctrlEventID, s.ctrlSlot
	s.mu.Unlock()
	if ctrl != nil {
		_ = ctrl.SetValue(eventID, slot, int64(v*vctrl.VCtrlMax))
	}
}

// Volume returns the current linear gain.
func (s *StreamState) Volume() float32 {
	return float32frombits(s.volume.Load())
}

// BindControl attaches this stream's volume to a registered vctrl entry.
// Called by the device engine on Attach; unbinding happens implicitly when
// the stream is detached and the control unregistered.
func (s *StreamState) BindControl(list *vctrl.List, eventID uint64, slot vctrl.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl = list
	s.ctrlEventID = eventID
	s.ctrlSlot = slot
}

// ControlEventID returns the bound control's event id and slot, if any.
func (s *StreamState) ControlEventID() (eventID uint64, slot vctrl.Slot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrlEventID, s.ctrlSlot, s.ctrl != nil
}

// SetDeviceRate configures the resampler against the device's negotiated
// rate. Nothing in this tree calls it; until it is called the resampler
// runs at ratio 1 (no conversion).
func (s *StreamState) SetDeviceRate(rate int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceRate = rate
	if s.params.Direction == Capture {
		s.resample.SetRates(rate, s.params.Rate)
	} else {
		s.resample.SetRates(s.params.Rate, rate)
	}
}

// SetChannelMap installs new user/device translation maps.
func (s *StreamState) SetChannelMap(user, dev *chmap.Map) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userMap = user
	s.devMap = dev
}

// Connect marks the stream attached to a device and moves it to Prepared.
func (s *StreamState) Connect(deviceIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attached {
		return fmt.Errorf("stream: already attached to device %d", s.deviceIndex)
	}
	s.deviceIndex = deviceIndex
	s.attached = true
	s.state = Prepared
	s.startCount++
	s.ring.ClearError()
	return nil
}

// Disconnect detaches the stream from its device, marking it Disconnected.
// The ring buffer's sticky error is set so blocked readers/writers unblock.
func (s *StreamState) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = false
	s.state = Disconnected
	s.ring.SetError(pcmerr.ErrNoDev)
}

// ChangeRoute migrates the stream to a different device, optionally
// restarting it.
func (s *StreamState) ChangeRoute(newDeviceIndex int, restart bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return fmt.Errorf("stream: cannot change route while detached")
	}
	s.deviceIndex = newDeviceIndex
	if restart {
		s.state = Prepared
		s.startCount++
		s.hasTrigger = false
	}
	return nil
}

// Reserve holds a device slot without attaching.
func (s *StreamState) Reserve(deviceIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceIndex = deviceIndex
}

// SetSWParams updates the avail-min hint used by the scheduler's early-wake
// path; stored as the low bound on MinLatency without touching hw params.
func (s *StreamState) SetSWParams(availMin uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.minLatency = availMin
}

// SetTrigger arms an atomic start-at-timestamp.
func (s *StreamState) SetTrigger(tstampNs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerAtNs = tstampNs
	s.hasTrigger = true
}

// ---- device-invoked operations (caller holds the client's srv-lock) ----

// GetPlaybackStatus reports the application pointer the client wants, its
// start generation and its current minimum latency. errAgain signals the
// device engine to retry next cycle instead of mixing now.
func (s *StreamState) GetPlaybackStatus() (applPtr uint64, startCount uint32, minLatency uint32, errAgain bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running {
		return 0, s.startCount, s.minLatency, true
	}
	return uint64(s.ring.OutPtr()), s.startCount, s.minLatency, false
}

// PlaybackXfer mixes up to frames of the client's ring data into dst (an
// interleaved float64 device accumulator), through the resampler and
// channel map, then publishes an updated status snapshot.
func (s *StreamState) PlaybackXfer(dst []float64, frames int, status ringbuf.Status) (mixed int, err error) {
	if rerr := s.ring.Err(); rerr != nil {
		return 0, rerr
	}
	s.mu.Lock()
	vol := s.Volume()
	userMap := s.userMap
	s.mu.Unlock()

	frameBytes := s.params.FrameBytes()
	avail := s.ring.Fill() / uint32(frameBytes)
	if avail == 0 {
		return 0, nil
	}
	n := frames
	if uint32(n) > avail {
		n = int(avail)
	}

	raw := s.ring.ReadBegin(uint32(n) * uint32(frameBytes))
	inFrames := len(raw) / frameBytes
	clientSamples := decodeInterleaved(s.params.Format, raw, inFrames*s.params.Channels)

	outSamples := make([]float32, n*s.params.Channels)
	inN, outN, rerr := s.resample.Process(false, clientSamples, outSamples)
	if rerr != nil {
		return 0, rerr
	}

	userMap.MixPlayback(dst[:outN*userMap.DeviceChannels], outSamples[:outN*s.params.Channels], outN, vol)
	consumedBytes := uint32(inN * frameBytes)
	s.ring.ReadCommit(consumedBytes)

	s.mailbox.Publish(status)
	return outN, nil
}

// GetCaptureStatus is the capture-direction counterpart of
// GetPlaybackStatus.
func (s *StreamState) GetCaptureStatus() (applPtr uint64, startCount uint32, minLatency uint32, errAgain bool) {
	return s.GetPlaybackStatus()
}

// CaptureXfer demixes frames of device capture data into the client's ring.
func (s *StreamState) CaptureXfer(src []float32, frames int, status ringbuf.Status) (written int, err error) {
	if rerr := s.ring.Err(); rerr != nil {
		return 0, rerr
	}
	s.mu.Lock()
	vol := s.Volume()
	devMap := s.devMap
	s.mu.Unlock()

	frameBytes := s.params.FrameBytes()
	space := s.ring.Space() / uint32(frameBytes)
	n := frames
	if uint32(n) > space {
		n = int(space)
	}
	if n == 0 {
		return 0, nil
	}

	demixed := make([]float32, n*devMap.ClientChannels)
	devMap.DemixCapture(demixed, src[:frames*devMap.DeviceChannels], n, vol)

	resampled := make([]float32, n*s.params.Channels)
	_, outN, rerr := s.resample.Process(false, demixed, resampled)
	if rerr != nil {
		return 0, rerr
	}

	buf := s.ring.WriteBegin(uint32(outN * frameBytes))
	encodeInterleaved(s.params.Format, buf, resampled[:len(buf)/frameBytes*s.params.Channels])
	s.ring.WriteCommit(uint32(len(buf)))

	s.mailbox.Publish(status)
	return outN, nil
}

// Error is invoked when the device thread detects a fault for this client,
// or during SIGBUS-style recovery.
func (s *StreamState) Error(errno error) {
	if errno == pcmerr.ErrFault {
		// EFAULT during recovery does not mark the ring: the client may
		// still observe in-flight data once the shared mapping heals.
		return
	}
	s.ring.SetError(errno)
}

// Recover resets start_count and clears status, then re-prepares the
// stream from whatever state it is in. It is not the only way the state
// changes; see State.
func (s *StreamState) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCount++
	s.hasTrigger = false
	s.ring.ClearError()
	s.state = Prepared
}

// Snapshot accessors used by the device engine and tests.

func (s *StreamState) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *StreamState) Params() Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *StreamState) Ring() *ringbuf.Ring { return s.ring }

func (s *StreamState) Mailbox() *ringbuf.StatusMailbox { return s.mailbox }

func (s *StreamState) StartCount() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startCount
}

func (s *StreamState) Trigger() (tstampNs int64, armed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.triggerAtNs, s.hasTrigger
}
