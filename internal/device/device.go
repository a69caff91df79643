// Package device implements the device engine (C8): the per-cycle
// playback/capture mixing loop, glitch correction, latency negotiation and
// exclusive-access rules that sit between the I/O scheduler
// (internal/sched) and a back-end (internal/pcmdriver).
package device

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/agalue/audiomuxd/internal/client"
	"github.com/agalue/audiomuxd/internal/clock"
	"github.com/agalue/audiomuxd/internal/lock"
	"github.com/agalue/audiomuxd/internal/pcmdriver"
	"github.com/agalue/audiomuxd/internal/pcmerr"
	"github.com/agalue/audiomuxd/internal/ringbuf"
	"github.com/agalue/audiomuxd/internal/stream"
	"github.com/agalue/audiomuxd/internal/syncgroup"
	"github.com/agalue/audiomuxd/internal/syncstart"
	"github.com/agalue/audiomuxd/internal/vctrl"
)

// GlitchPolicy governs how the engine reacts to an underrun.
type GlitchPolicy int

const (
	GlitchOff GlitchPolicy = iota
	GlitchOn
	GlitchLatch
	GlitchAuto
)

// safetyMarginFrames is the "stays ~10ms ahead of hw_ptr" rewind safety
// margin: runPlaybackCycle never rewinds closer to hw_ptr than this, so a
// starting client's remix can't undo frames about to be played.
const safetyMarginFrames = 480 // ~10ms at 48kHz

// maxExtrapolatedCycles bounds how many consecutive cycles the clock
// interpolator's extrapolation is trusted before a real Status() call is
// forced, limiting how far drift can accumulate unchecked.
const maxExtrapolatedCycles = 4

// attachedClient is one slot in the device's attach table.
type attachedClient struct {
	client *client.Client
}

// Device is the engine owning one physical device's playback and/or
// capture direction: the back-end handles for each direction (either may
// be absent), since the per-client StreamStates live on the clients
// themselves.
type Device struct {
	Index int

	playback pcmdriver.Device
	capture  pcmdriver.Device

	channels int
	rate     int

	mu           sync.Mutex // reg-lock: serializes attach table + register mutations
	reg          ControlRegister
	clients      []attachedClient
	configs      []ClientConfig
	highWaterP   int
	highWaterC   int
	exclusive    *lock.ExclusiveLock
	minLatency   uint32
	maxLatency   uint32
	glitchPolicy GlitchPolicy
	glitchThresh uint32
	glitched     bool
	onLockChange func(q *lock.Queue)

	// lastPlaybackStart records each attached client's most recently
	// observed stream generation, so runPlaybackCycle can tell a freshly
	// (re)started client from one that's simply continuing.
	lastPlaybackStart map[*client.Client]uint32

	playbackClock       *clock.Interpolator
	captureClock        *clock.Interpolator
	playbackStatusCache pcmdriver.Status
	playbackStatusAge   int
	captureStatusCache  pcmdriver.Status
	captureStatusAge    int

	vctrl              *vctrl.List
	masterPlaybackCtrl uint64
	masterCaptureCtrl  uint64

	syncGroups *syncgroup.Registry

	started bool
	errMu   sync.Mutex
	err     error
}

// New builds a Device around the given back-end(s); either may be nil for
// a playback-only or capture-only device.
func New(index int, playback, capture pcmdriver.Device, channels, rate int, minLatency, maxLatency uint32) *Device {
	d := &Device{
		Index:             index,
		playback:          playback,
		capture:           capture,
		channels:          channels,
		rate:              rate,
		exclusive:         lock.NewExclusiveLock(),
		minLatency:        minLatency,
		maxLatency:        maxLatency,
		lastPlaybackStart: make(map[*client.Client]uint32),
		vctrl:             vctrl.New(),
		syncGroups:        syncgroup.New(func() int64 { return time.Now().UnixNano() }),
	}
	if rate > 0 {
		d.playbackClock = clock.New(rate, 2.0)
		d.captureClock = clock.New(rate, 2.0)
	}
	d.masterPlaybackCtrl = d.vctrl.Register(fmt.Sprintf("device-%d-playback-volume", index))
	d.masterCaptureCtrl = d.vctrl.Register(fmt.Sprintf("device-%d-capture-volume", index))
	return d
}

// SetGlitchPolicy installs the underrun-recovery policy.
func (d *Device) SetGlitchPolicy(p GlitchPolicy) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.glitchPolicy = p
}

// Close releases both back-ends. Safe to call once all attached clients
// have been detached and the owning scheduler has stopped.
func (d *Device) Close() error {
	d.vctrl.Close()
	var firstErr error
	if d.playback != nil {
		if err := d.playback.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if d.capture != nil {
		if err := d.capture.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Attach registers a client on the device, returning its attach-table
// slot. The caller is responsible for having already connected the
// client's StreamState(s) to this device index.
func (d *Device) Attach(c *client.Client) (slot int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if holder := d.exclusive.Holder(); holder != -1 && holder != c.Index {
		return 0, pcmerr.ErrBusy
	}

	slot = len(d.clients)
	d.clients = append(d.clients, attachedClient{client: c})
	d.configs = append(d.configs, NewClientConfig(true, c.Playback != nil, c.Capture != nil, 0))
	if c.Playback != nil && slot+1 > d.highWaterP {
		d.highWaterP = slot + 1
	}
	if c.Capture != nil && slot+1 > d.highWaterC {
		d.highWaterC = slot + 1
	}
	d.reg.SetPlaybackHighWater(uint16(d.highWaterP))
	d.reg.SetCaptureHighWater(uint16(d.highWaterC))

	if c.Playback != nil {
		id := d.vctrl.Register(fmt.Sprintf("client-%d-playback-volume", c.Index))
		c.Playback.BindControl(d.vctrl, id, vctrl.SlotPlayback)
		d.vctrl.SetValue(id, vctrl.SlotPlayback, int64(c.Playback.Volume()*vctrl.VCtrlMax)) //nolint:errcheck
	}
	if c.Capture != nil {
		id := d.vctrl.Register(fmt.Sprintf("client-%d-capture-volume", c.Index))
		c.Capture.BindControl(d.vctrl, id, vctrl.SlotCapture)
		d.vctrl.SetValue(id, vctrl.SlotCapture, int64(c.Capture.Volume()*vctrl.VCtrlMax)) //nolint:errcheck
	}

	return slot, nil
}

// Detach removes a client from the attach table, recomputing the
// high-water marks.
func (d *Device) Detach(c *client.Client) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := -1
	for i, ac := range d.clients {
		if ac.client == c {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("device: client %d not attached", c.Index)
	}
	d.clients = append(d.clients[:idx], d.clients[idx+1:]...)
	d.configs = append(d.configs[:idx], d.configs[idx+1:]...)
	delete(d.lastPlaybackStart, c)

	if c.Playback != nil {
		if id, _, ok := c.Playback.ControlEventID(); ok {
			d.vctrl.Unregister(id) //nolint:errcheck
		}
	}
	if c.Capture != nil {
		if id, _, ok := c.Capture.ControlEventID(); ok {
			d.vctrl.Unregister(id) //nolint:errcheck
		}
	}

	d.highWaterP, d.highWaterC = 0, 0
	for i, ac := range d.clients {
		if ac.client.Playback != nil {
			d.highWaterP = i + 1
		}
		if ac.client.Capture != nil {
			d.highWaterC = i + 1
		}
	}
	d.reg.SetPlaybackHighWater(uint16(d.highWaterP))
	d.reg.SetCaptureHighWater(uint16(d.highWaterC))

	if d.glitchPolicy == GlitchAuto && len(d.clients) == 0 {
		d.glitched = false
	}
	return nil
}

// ClientConfigAt returns the packed per-client config byte for an
// attach-table slot, used by the dispatch layer's diagnostic queries.
func (d *Device) ClientConfigAt(slot int) (ClientConfig, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || slot >= len(d.configs) {
		return 0, false
	}
	return d.configs[slot], true
}

// OnLockChange installs a callback invoked with the current holder's notify
// queue whenever exclusive access changes hands (nil on release), so a
// scheduler can install/clear it as an extra wake source (C10).
func (d *Device) OnLockChange(fn func(q *lock.Queue)) {
	d.mu.Lock()
	d.onLockChange = fn
	d.mu.Unlock()
}

// Lock grants clientIndex exclusive access to the device.
func (d *Device) Lock(clientIndex int) (cookie uint64, queue *lock.Queue, err error) {
	d.mu.Lock()
	cookie, queue, err = d.exclusive.Attach(clientIndex)
	cb := d.onLockChange
	d.mu.Unlock()
	if err == nil && cb != nil {
		cb(queue)
	}
	return cookie, queue, err
}

// Unlock releases exclusive access.
func (d *Device) Unlock(clientIndex int) error {
	d.mu.Lock()
	err := d.exclusive.Release(clientIndex)
	cb := d.onLockChange
	d.mu.Unlock()
	if err == nil && cb != nil {
		cb(nil)
	}
	return err
}

// NegotiateLatency recomputes the device's advertised latency from the
// minimum of all attached clients' requested latencies, clamped to
// [min_latency, max_latency] and rounded to a power of two.
// If glitch correction has raised the floor (glitched == true), that floor
// participates in the clamp too.
//
// Exclusive access additionally locks the negotiated latency: once a
// client holds the device, any other client requesting a latency lower
// than what's currently advertised is rejected with pcmerr.ErrTime rather
// than silently granted, since honoring it would shorten the holder's
// buffer out from under it.
func (d *Device) NegotiateLatency(clientIndex int, requested []uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	floor := d.minLatency
	if d.glitched && d.glitchThresh > floor {
		floor = d.glitchThresh
	}

	target := d.maxLatency
	for _, r := range requested {
		if r < target {
			target = r
		}
	}

	if holder := d.exclusive.Holder(); holder != -1 && holder != clientIndex {
		current := uint32(1) << d.reg.LatencyExponent()
		if target < current {
			return 0, pcmerr.ErrTime
		}
	}

	if target < floor {
		target = floor
	}
	if target > d.maxLatency {
		target = d.maxLatency
	}

	rounded := nextPow2(target)
	if rounded > d.maxLatency {
		rounded = prevPow2(d.maxLatency)
	}
	d.reg.SetLatencyExponent(log2(rounded))
	return rounded, nil
}

// HandleUnderrun applies the glitch-correction policy on an XRun:
// Off leaves the buffer size alone; On/Latch/Auto raise the effective buffer
// to glitchThreshold (power of two >= 10ms, bounded by max_latency).
// Under every policy the clock interpolators are reset.
func (d *Device) HandleUnderrun() {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.glitchPolicy {
	case GlitchOn, GlitchLatch, GlitchAuto:
		tenMs := uint32(d.rate) / 100
		thresh := nextPow2(tenMs)
		if thresh > d.maxLatency {
			thresh = prevPow2(d.maxLatency)
		}
		d.glitchThresh = thresh
		d.glitched = true
	}
	// An xrun invalidates any drift estimate built from the samples
	// leading up to it; force a real Status() call next cycle.
	if d.playbackClock != nil {
		d.playbackClock.Reset()
	}
	if d.captureClock != nil {
		d.captureClock.Reset()
	}
	d.playbackStatusAge = 0
	d.captureStatusAge = 0
}

// Glitched reports whether glitch correction is currently raising the
// latency floor.
func (d *Device) Glitched() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.glitched
}

// SetError marks the device with a fatal error and notifies every
// attached client with ENODEV, mirroring abort()'s drain-then-notify
// contract.
func (d *Device) SetError(err error) {
	d.errMu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.errMu.Unlock()

	d.mu.Lock()
	clients := make([]*client.Client, len(d.clients))
	for i, ac := range d.clients {
		clients[i] = ac.client
	}
	d.mu.Unlock()

	for _, c := range clients {
		c.NotifyError(pcmerr.ErrNoDev)
	}
}

func (d *Device) Error() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// RunCycle performs one iteration of playback and capture mixing and
// satisfies sched.Engine.
func (d *Device) RunCycle(ctx context.Context) (fillFrames uint32, framesPerSec uint32, idle bool, err error) {
	if e := d.Error(); e != nil {
		return 0, uint32(d.rate), true, e
	}

	var fill uint32
	if d.playback != nil {
		f, err := d.runPlaybackCycle()
		if err != nil {
			return 0, uint32(d.rate), false, err
		}
		fill = f
	}
	if d.capture != nil {
		if err := d.runCaptureCycle(); err != nil {
			return 0, uint32(d.rate), false, err
		}
	}

	d.mu.Lock()
	idle = len(d.clients) == 0
	d.mu.Unlock()

	return fill, uint32(d.rate), idle, nil
}

func (d *Device) runPlaybackCycle() (fillFrames uint32, err error) {
	status, err := d.nextPlaybackStatus()
	if err != nil {
		return 0, d.recoverFromBackendError(err)
	}
	nowNs := status.TimestampNs

	d.mu.Lock()
	snapshot := make([]attachedClient, d.highWaterP)
	copy(snapshot, d.clients[:min(d.highWaterP, len(d.clients))])
	d.mu.Unlock()

	rewound := d.rewindForStartingClients(snapshot, status, nowNs)

	const periodFrames = 1024
	buf, err := d.playback.MMapBegin(periodFrames + rewound)
	if err != nil {
		return 0, d.recoverFromBackendError(err)
	}
	frames := uint32(len(buf)) / uint32(d.channels*4)
	if frames == 0 {
		return status.Fill, nil
	}

	acc := make([]float64, int(frames)*d.channels)

	for _, ac := range snapshot {
		c := ac.client
		if c == nil || c.Playback == nil || c.Trigger()&client.TriggerPlayback == 0 {
			continue
		}
		if !d.syncGateOK(c, syncstart.Playback, nowNs) {
			continue // synchronized start requested for a later instant
		}
		if !c.TryLockSrv() {
			continue // skip-this-cycle contention policy
		}
		_, startCount, _, errAgain := c.Playback.GetPlaybackStatus()
		if errAgain {
			c.UnlockSrv()
			continue
		}
		perClientStatus := ringbuf.Status{
			HWPtr:       status.HWPtr,
			ApplPtr:     status.ApplPtr,
			Fill:        status.Fill,
			Space:       status.Space,
			TimestampNs: status.TimestampNs,
			DelayFrames: status.DelayFrames,
			CycleLength: frames,
			StartCount:  startCount,
		}
		_, err := c.Playback.PlaybackXfer(acc, int(frames), perClientStatus)
		c.UnlockSrv()
		if err != nil && err != pcmerr.ErrAgain {
			c.NotifyError(err)
		}
	}

	encodeDeviceFloat64(buf, acc, stream.FormatFloat32LE)

	committed, err := d.playback.MMapCommit(frames)
	if err != nil {
		return 0, d.recoverFromBackendError(err)
	}
	d.mu.Lock()
	d.playbackStatusCache.ApplPtr += uint64(committed)
	d.mu.Unlock()

	if !d.started {
		if err := d.playback.Start(); err != nil {
			return 0, d.recoverFromBackendError(err)
		}
		d.started = true
	}

	return status.Fill + committed, nil
}

func (d *Device) runCaptureCycle() error {
	status, err := d.nextCaptureStatus()
	if err != nil {
		return d.recoverFromBackendError(err)
	}
	nowNs := status.TimestampNs

	const periodFrames = 1024
	buf, err := d.capture.MMapBegin(periodFrames)
	if err != nil {
		return d.recoverFromBackendError(err)
	}
	frames := uint32(len(buf)) / uint32(d.channels*4)
	if frames == 0 {
		return nil
	}

	src := decodeDeviceBytes(buf, stream.FormatFloat32LE)

	d.mu.Lock()
	snapshot := make([]attachedClient, d.highWaterC)
	copy(snapshot, d.clients[:min(d.highWaterC, len(d.clients))])
	d.mu.Unlock()

	for _, ac := range snapshot {
		c := ac.client
		if c == nil || c.Capture == nil || c.Trigger()&client.TriggerCapture == 0 {
			continue
		}
		if !d.syncGateOK(c, syncstart.Capture, nowNs) {
			continue
		}
		if !c.TryLockSrv() {
			continue
		}
		_, startCount, _, errAgain := c.Capture.GetCaptureStatus()
		if errAgain {
			c.UnlockSrv()
			continue
		}
		perClientStatus := ringbuf.Status{
			HWPtr:       status.HWPtr,
			ApplPtr:     status.ApplPtr,
			Fill:        status.Fill,
			Space:       status.Space,
			TimestampNs: status.TimestampNs,
			DelayFrames: status.DelayFrames,
			CycleLength: frames,
			StartCount:  startCount,
		}
		_, err := c.Capture.CaptureXfer(src, int(frames), perClientStatus)
		c.UnlockSrv()
		if err != nil && err != pcmerr.ErrAgain {
			c.NotifyError(err)
		}
	}

	committed, err := d.capture.MMapCommit(frames)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.captureStatusCache.ApplPtr += uint64(committed)
	d.mu.Unlock()
	return nil
}

// nextPlaybackStatus returns the playback back-end's status, extrapolating
// from the clock interpolator instead of calling Status(false) when a
// recent real sample is still within its trust window (C2); this is what
// lets the engine skip a redundant back-end round trip on most cycles.
func (d *Device) nextPlaybackStatus() (pcmdriver.Status, error) {
	now := time.Now().UnixNano()

	d.mu.Lock()
	cached := d.playbackStatusCache
	age := d.playbackStatusAge
	d.mu.Unlock()

	if age > 0 && age <= maxExtrapolatedCycles && d.playbackClock != nil {
		if dtNs := now - cached.TimestampNs; dtNs > 0 {
			advance := d.playbackClock.Frames(dtNs)
			extrapolated := cached
			extrapolated.HWPtr += advance
			extrapolated.TimestampNs = now
			if advance < uint64(extrapolated.Fill) {
				extrapolated.Fill -= uint32(advance)
				extrapolated.Space += uint32(advance)
			}
			d.mu.Lock()
			d.playbackStatusAge++
			d.mu.Unlock()
			return extrapolated, nil
		}
	}

	status, err := d.playback.Status(false)
	if err != nil {
		return status, err
	}
	if d.playbackClock != nil {
		d.playbackClock.Update(status.TimestampNs, status.HWPtr)
	}
	d.mu.Lock()
	d.playbackStatusCache = status
	d.playbackStatusAge = 1
	d.mu.Unlock()
	return status, nil
}

// nextCaptureStatus is the capture-direction counterpart of
// nextPlaybackStatus.
func (d *Device) nextCaptureStatus() (pcmdriver.Status, error) {
	now := time.Now().UnixNano()

	d.mu.Lock()
	cached := d.captureStatusCache
	age := d.captureStatusAge
	d.mu.Unlock()

	if age > 0 && age <= maxExtrapolatedCycles && d.captureClock != nil {
		if dtNs := now - cached.TimestampNs; dtNs > 0 {
			advance := d.captureClock.Frames(dtNs)
			extrapolated := cached
			extrapolated.HWPtr += advance
			extrapolated.TimestampNs = now
			if advance < uint64(extrapolated.Fill) {
				extrapolated.Fill -= uint32(advance)
				extrapolated.Space += uint32(advance)
			}
			d.mu.Lock()
			d.captureStatusAge++
			d.mu.Unlock()
			return extrapolated, nil
		}
	}

	status, err := d.capture.Status(false)
	if err != nil {
		return status, err
	}
	if d.captureClock != nil {
		d.captureClock.Update(status.TimestampNs, status.HWPtr)
	}
	d.mu.Lock()
	d.captureStatusCache = status
	d.captureStatusAge = 1
	d.mu.Unlock()
	return status, nil
}

// syncGateOK reports whether dir is clear to mix this cycle: either the
// client has no pending synchronized start for dir, or the mailbox's
// timestamp for it has already arrived. This is the device thread's only
// consumer of a client's sync-start mailbox (C6).
func (d *Device) syncGateOK(c *client.Client, dir syncstart.StreamBit, nowNs int64) bool {
	snap := c.SyncMailbox().Load()
	if snap.ActiveStreams&dir == 0 {
		return true
	}
	if dir == syncstart.Playback {
		return nowNs >= snap.PlaybackTstamp
	}
	return nowNs >= snap.CaptureTstamp
}

// rewindForStartingClients implements the rewind-on-mix protocol: a client
// whose stream generation changed since it was last mixed (a fresh
// Connect/Recover, or a synchronized start whose gate just opened) has
// nothing in the frames the back-end already holds. Rewinding the back-end
// by the gap between its application and hardware pointers — bounded by
// what's actually rewindable and by safetyMarginFrames ahead of hw_ptr —
// lets this cycle's mix reach back far enough to cover that client's first
// contribution instead of starting it with a gap of silence.
func (d *Device) rewindForStartingClients(snapshot []attachedClient, status pcmdriver.Status, nowNs int64) uint32 {
	var want uint32
	for _, ac := range snapshot {
		c := ac.client
		if c == nil || c.Playback == nil || c.Trigger()&client.TriggerPlayback == 0 {
			continue
		}
		if !d.syncGateOK(c, syncstart.Playback, nowNs) {
			continue
		}
		if !c.TryLockSrv() {
			continue
		}
		_, startCount, _, errAgain := c.Playback.GetPlaybackStatus()
		c.UnlockSrv()
		if errAgain {
			continue
		}

		d.mu.Lock()
		last, seen := d.lastPlaybackStart[c]
		d.lastPlaybackStart[c] = startCount
		d.mu.Unlock()
		if seen && last == startCount {
			continue
		}

		if status.ApplPtr > status.HWPtr {
			if gap := uint32(status.ApplPtr - status.HWPtr); gap > want {
				want = gap
			}
		}
	}
	if want == 0 {
		return 0
	}

	rewindable, err := d.playback.Rewindable()
	if err != nil || rewindable == 0 {
		return 0
	}
	if want > rewindable {
		want = rewindable
	}
	if status.Fill <= safetyMarginFrames {
		return 0
	}
	if headroom := status.Fill - safetyMarginFrames; want > headroom {
		want = headroom
	}
	if want == 0 {
		return 0
	}

	committed, err := d.playback.Rewind(want)
	if err != nil || committed == 0 {
		return 0
	}
	d.mu.Lock()
	d.playbackStatusCache.ApplPtr -= uint64(committed)
	d.mu.Unlock()
	return committed
}

// recoverFromBackendError maps a back-end error to the engine's recovery
// policy: Pipe triggers glitch-correction bookkeeping and a back-end
// Recover; StrPipe (suspend) gets a back-end Recover only; anything else
// propagates.
func (d *Device) recoverFromBackendError(err error) error {
	switch err {
	case pcmerr.ErrPipe:
		d.HandleUnderrun()
		if d.playback != nil {
			_ = d.playback.Recover()
		}
		if d.capture != nil {
			_ = d.capture.Recover()
		}
		return nil
	case pcmerr.ErrStrPipe:
		if d.playback != nil {
			_ = d.playback.Recover()
		}
		if d.capture != nil {
			_ = d.capture.Recover()
		}
		return nil
	default:
		return err
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
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

func prevPow2(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	p := uint32(1)
	for p<<1 <= n {
		p <<= 1
	}
	return p
}

func log2(n uint32) uint8 {
	var e uint8
	for n > 1 {
		n >>= 1
		e++
	}
	return e
}

func encodeDeviceFloat64(dst []byte, src []float64, format stream.Format) {
	n := len(dst) / 4
	if n > len(src) {
		n = len(src)
	}
	for i := 0; i < n; i++ {
		v := float32(src[i])
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(v))
	}
}

func decodeDeviceBytes(raw []byte, format stream.Format) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}
