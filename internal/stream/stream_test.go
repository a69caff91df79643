package stream

import (
	"testing"

	"github.com/agalue/audiomuxd/internal/resample"
	"github.com/agalue/audiomuxd/internal/ringbuf"
	"github.com/stretchr/testify/require"
)

func testParams() Params {
	return Params{
		Direction:  Playback,
		Format:     FormatFloat32LE,
		Channels:   2,
		Rate:       48000,
		Buffer:     4096,
		Fragment:   1024,
		MinLatency: 256,
		MaxLatency: 8192,
	}
}

func TestNewRejectsInvalidParams(t *testing.T) {
	p := testParams()
	p.Channels = 0
	_, err := New(p, resample.QualityLinear)
	require.Error(t, err)
}

func TestStartStopStateMachine(t *testing.T) {
	s, err := New(testParams(), resample.QualityLinear)
	require.NoError(t, err)
	require.Equal(t, Closed, s.State())
	require.NoError(t, s.Connect(0))
	require.Equal(t, Prepared, s.State())
	require.NoError(t, s.Start())
	require.Equal(t, Running, s.State())
	require.NoError(t, s.Pause(true))
	require.Equal(t, Paused, s.State())
	require.NoError(t, s.Pause(false))
	require.Equal(t, Running, s.State())
	require.NoError(t, s.Stop())
	require.Equal(t, Prepared, s.State())
}

func TestConnectTwiceFails(t *testing.T) {
	s, err := New(testParams(), resample.QualityLinear)
	require.NoError(t, err)
	require.NoError(t, s.Connect(0))
	require.Error(t, s.Connect(1))
}

func TestDisconnectSetsStickyRingError(t *testing.T) {
	s, err := New(testParams(), resample.QualityLinear)
	require.NoError(t, err)
	require.NoError(t, s.Connect(0))
	s.Disconnect()
	require.Equal(t, Disconnected, s.State())
	require.Error(t, s.Ring().Err())
}

func TestVolumeClamped(t *testing.T) {
	s, err := New(testParams(), resample.QualityLinear)
	require.NoError(t, err)
	s.SetVolume(2.0)
	require.Equal(t, float32(1.0), s.Volume())
	s.SetVolume(-1.0)
	require.Equal(t, float32(0.0), s.Volume())
}

func TestPlaybackXferMixesWrittenFrames(t *testing.T) {
	s, err := New(testParams(), resample.QualityLinear)
	require.NoError(t, err)
	require.NoError(t, s.Connect(0))
	require.NoError(t, s.Start())
	s.SetVolume(1.0)

	frameBytes := s.Params().FrameBytes()
	raw := s.Ring().WriteBegin(uint32(4 * frameBytes))
	encodeInterleaved(FormatFloat32LE, raw, []float32{0.5, -0.5, 0.25, -0.25, 0.1, -0.1, 0.2, -0.2})
	s.Ring().WriteCommit(uint32(4 * frameBytes))

	dst := make([]float64, 4*2)
	mixed, err := s.PlaybackXfer(dst, 4, ringbuf.Status{})
	require.NoError(t, err)
	require.Equal(t, 4, mixed)
	require.InDelta(t, 0.5, dst[0], 1e-4)
	require.InDelta(t, -0.5, dst[1], 1e-4)
}

func TestGetPlaybackStatusAgainWhenNotRunning(t *testing.T) {
	s, err := New(testParams(), resample.QualityLinear)
	require.NoError(t, err)
	_, _, _, again := s.GetPlaybackStatus()
	require.True(t, again)
}

func TestRecoverBumpsStartCountAndClearsError(t *testing.T) {
	s, err := New(testParams(), resample.QualityLinear)
	require.NoError(t, err)
	require.NoError(t, s.Connect(0))
	before := s.StartCount()
	s.Disconnect()
	require.Error(t, s.Ring().Err())
	s.Recover()
	require.Greater(t, s.StartCount(), before)
	require.NoError(t, s.Ring().Err())
	require.Equal(t, Prepared, s.State())
}

func TestSetTriggerArmsTimestamp(t *testing.T) {
	s, err := New(testParams(), resample.QualityLinear)
	require.NoError(t, err)
	_, armed := s.Trigger()
	require.False(t, armed)
	s.SetTrigger(12345)
	ts, armed := s.Trigger()
	require.True(t, armed)
	require.Equal(t, int64(12345), ts)
}
