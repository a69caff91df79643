package device

import (
	"context"
	"testing"

	"github.com/agalue/audiomuxd/internal/client"
	"github.com/agalue/audiomuxd/internal/pcmdriver"
	"github.com/agalue/audiomuxd/internal/pcmerr"
	"github.com/agalue/audiomuxd/internal/resample"
	"github.com/agalue/audiomuxd/internal/stream"
	"github.com/stretchr/testify/require"
)

// fakeBackend is a minimal in-memory pcmdriver.Device for engine tests.
type fakeBackend struct {
	buf       []byte
	applPtr   uint64
	hwPtr     uint64
	started   bool
	statusErr error
}

func newFakeBackend(channels int, frames int) *fakeBackend {
	return &fakeBackend{buf: make([]byte, frames*channels*4)}
}

func (f *fakeBackend) MMapBegin(maxFrames uint32) ([]byte, error) { return f.buf, f.statusErr }
func (f *fakeBackend) MMapCommit(frames uint32) (uint32, error) {
	f.applPtr += uint64(frames)
	return frames, nil
}
func (f *fakeBackend) Prepare() error { return nil }
func (f *fakeBackend) Start() error   { f.started = true; return nil }
func (f *fakeBackend) Drop() error    { f.started = false; return nil }
func (f *fakeBackend) Recover() error { return nil }
func (f *fakeBackend) Status(hwsync bool) (pcmdriver.Status, error) {
	return pcmdriver.Status{ApplPtr: f.applPtr, HWPtr: f.hwPtr}, f.statusErr
}
func (f *fakeBackend) Rewind(frames uint32) (uint32, error)  { return frames, nil }
func (f *fakeBackend) Forward(frames uint32) (uint32, error) { return frames, nil }
func (f *fakeBackend) Rewindable() (uint32, error)           { return 0, nil }
func (f *fakeBackend) AdjustPointer(signedFrames int32) error { return nil }
func (f *fakeBackend) SetVolume(linear float32) error         { return nil }
func (f *fakeBackend) SetLatency(buffer, hint uint32) (uint32, error) { return buffer, nil }
func (f *fakeBackend) GetParams() (pcmdriver.Params, error)   { return pcmdriver.Params{}, nil }
func (f *fakeBackend) GetChannelMap() (pcmdriver.ChannelPositions, error) { return nil, nil }
func (f *fakeBackend) TranslateChannelMap(in pcmdriver.ChannelPositions) (pcmdriver.ChannelPositions, error) {
	return nil, nil
}
func (f *fakeBackend) CreateChannelMap(channels int) (pcmdriver.ChannelPositions, error) {
	return nil, nil
}
func (f *fakeBackend) PollDescriptors() ([]pcmdriver.PollDescriptor, error) { return nil, nil }
func (f *fakeBackend) PollRevents(fds []pcmdriver.PollDescriptor) (uint32, error) {
	return 0, nil
}
func (f *fakeBackend) IOPending(mask uint32) (uint32, error)        { return mask, nil }
func (f *fakeBackend) IOCtl(req uint32, in, out []byte) (int, error) { return 0, nil }
func (f *fakeBackend) Close() error                                  { return nil }

func newTestClient(t *testing.T, index int) *client.Client {
	t.Helper()
	p, err := stream.New(stream.Params{
		Direction: stream.Playback, Format: stream.FormatFloat32LE,
		Channels: 2, Rate: 48000, Buffer: 4096, Fragment: 1024, MaxLatency: 8192,
	}, resample.QualityLinear)
	require.NoError(t, err)
	c := client.New(index, client.Credentials{}, p, nil)
	require.NoError(t, p.Connect(0))
	require.NoError(t, p.Start())
	c.SetTrigger(client.TriggerPlayback, true)
	return c
}

func TestAttachDetachUpdatesHighWaterMarks(t *testing.T) {
	pb := newFakeBackend(2, 1024)
	d := New(0, pb, nil, 2, 48000, 256, 8192)

	c1 := newTestClient(t, 1)
	c2 := newTestClient(t, 2)

	slot1, err := d.Attach(c1)
	require.NoError(t, err)
	require.Equal(t, 0, slot1)
	slot2, err := d.Attach(c2)
	require.NoError(t, err)
	require.Equal(t, 1, slot2)

	_, pHW, _ := Unpack(d.reg.Load())
	require.Equal(t, uint16(2), pHW)

	require.NoError(t, d.Detach(c1))
	_, pHW, _ = Unpack(d.reg.Load())
	require.Equal(t, uint16(1), pHW)
}

func TestExclusiveAttachBlocksOtherClients(t *testing.T) {
	pb := newFakeBackend(2, 1024)
	d := New(0, pb, nil, 2, 48000, 256, 8192)

	c1 := newTestClient(t, 1)
	c2 := newTestClient(t, 2)
	_, err := d.Attach(c1)
	require.NoError(t, err)

	_, _, err = d.Lock(c1.Index)
	require.NoError(t, err)

	_, err = d.Attach(c2)
	require.Error(t, err)

	require.NoError(t, d.Unlock(c1.Index))
	_, err = d.Attach(c2)
	require.NoError(t, err)
}

// TestNegotiateLatencyRoundsToPowerOfTwoWithinBounds matches scenario S2:
// the device's advertised latency must be a power of two within
// [min_latency, max_latency].
func TestNegotiateLatencyRoundsToPowerOfTwoWithinBounds(t *testing.T) {
	pb := newFakeBackend(2, 1024)
	d := New(0, pb, nil, 2, 48000, 256, 8192)

	got, err := d.NegotiateLatency(0, []uint32{300})
	require.NoError(t, err)
	require.Equal(t, uint32(512), got) // nextPow2(300) = 512, within bounds

	got, err = d.NegotiateLatency(0, []uint32{10})
	require.NoError(t, err)
	require.Equal(t, uint32(256), got) // clamped to min_latency=256 first, pow2(256)=256

	got, err = d.NegotiateLatency(0, []uint32{100000})
	require.NoError(t, err)
	require.LessOrEqual(t, got, uint32(8192)) // clamped to max_latency
}

// TestNegotiateLatencyRejectsBelowLockedValueForNonHolder matches the
// exclusive-lock latency rule: once a client holds the device, any other
// client asking for a shorter latency gets ErrTime instead of silently
// shrinking the holder's buffer.
func TestNegotiateLatencyRejectsBelowLockedValueForNonHolder(t *testing.T) {
	pb := newFakeBackend(2, 1024)
	d := New(0, pb, nil, 2, 48000, 256, 8192)

	c1 := newTestClient(t, 1)
	_, err := d.Attach(c1)
	require.NoError(t, err)

	got, err := d.NegotiateLatency(c1.Index, []uint32{2048})
	require.NoError(t, err)
	require.Equal(t, uint32(2048), got)

	_, _, err = d.Lock(c1.Index)
	require.NoError(t, err)

	_, err = d.NegotiateLatency(99, []uint32{256})
	require.ErrorIs(t, err, pcmerr.ErrTime)

	got, err = d.NegotiateLatency(99, []uint32{4096})
	require.NoError(t, err)
	require.Equal(t, uint32(4096), got)
}

func TestHandleUnderrunEntersGlitchedStateForLatchAndAuto(t *testing.T) {
	pb := newFakeBackend(2, 1024)
	d := New(0, pb, nil, 2, 48000, 256, 8192)
	d.SetGlitchPolicy(GlitchOff)
	d.HandleUnderrun()
	require.False(t, d.Glitched())

	d.SetGlitchPolicy(GlitchLatch)
	d.HandleUnderrun()
	require.True(t, d.Glitched())

	d2 := New(0, newFakeBackend(2, 1024), nil, 2, 48000, 256, 8192)
	d2.SetGlitchPolicy(GlitchAuto)
	d2.HandleUnderrun()
	require.True(t, d2.Glitched())
}

func TestAutoGlitchClearsWhenAllClientsDisconnect(t *testing.T) {
	pb := newFakeBackend(2, 1024)
	d := New(0, pb, nil, 2, 48000, 256, 8192)
	d.SetGlitchPolicy(GlitchAuto)

	c1 := newTestClient(t, 1)
	_, err := d.Attach(c1)
	require.NoError(t, err)
	d.HandleUnderrun()
	require.True(t, d.Glitched())

	require.NoError(t, d.Detach(c1))
	require.False(t, d.Glitched())
}

func TestRunCycleMixesAttachedPlaybackClient(t *testing.T) {
	pb := newFakeBackend(2, 1024)
	d := New(0, pb, nil, 2, 48000, 256, 8192)
	c := newTestClient(t, 1)
	_, err := d.Attach(c)
	require.NoError(t, err)

	frameBytes := c.Playback.Params().FrameBytes()
	raw := c.Playback.Ring().WriteBegin(uint32(4 * frameBytes))
	for i := range raw {
		raw[i] = 0
	}
	c.Playback.Ring().WriteCommit(uint32(len(raw)))

	_, _, idle, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.False(t, idle)
	require.True(t, pb.started)
}

func TestRunCycleReportsIdleWithNoClients(t *testing.T) {
	pb := newFakeBackend(2, 1024)
	d := New(0, pb, nil, 2, 48000, 256, 8192)
	_, _, idle, err := d.RunCycle(context.Background())
	require.NoError(t, err)
	require.True(t, idle)
}
