package device

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		exp := uint8(rapid.IntRange(0, 31).Draw(rt, "exp"))
		pHW := uint16(rapid.IntRange(0, 511).Draw(rt, "pHW"))
		cHW := uint16(rapid.IntRange(0, 511).Draw(rt, "cHW"))

		word := Pack(exp, pHW, cHW)
		gotExp, gotP, gotC := Unpack(word)
		require.Equal(rt, exp, gotExp)
		require.Equal(rt, pHW, gotP)
		require.Equal(rt, cHW, gotC)
	})
}

func TestControlRegisterFieldUpdatesArePreserved(t *testing.T) {
	var r ControlRegister
	r.Store(Pack(3, 100, 200))

	r.SetLatencyExponent(7)
	exp, pHW, cHW := Unpack(r.Load())
	require.Equal(t, uint8(7), exp)
	require.Equal(t, uint16(100), pHW)
	require.Equal(t, uint16(200), cHW)

	r.SetPlaybackHighWater(50)
	exp, pHW, cHW = Unpack(r.Load())
	require.Equal(t, uint8(7), exp)
	require.Equal(t, uint16(50), pHW)
	require.Equal(t, uint16(200), cHW)

	r.SetCaptureHighWater(60)
	exp, pHW, cHW = Unpack(r.Load())
	require.Equal(t, uint8(7), exp)
	require.Equal(t, uint16(50), pHW)
	require.Equal(t, uint16(60), cHW)
}

func TestClientConfigPacking(t *testing.T) {
	c := NewClientConfig(true, true, false, 12)
	require.True(t, c.Present())
	require.True(t, c.TriggerPlayback())
	require.False(t, c.TriggerCapture())
	require.Equal(t, uint8(12), c.LatencyExponent())
}
