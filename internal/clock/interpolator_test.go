package clock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInterpolatorConvergesOnSteadyDrift(t *testing.T) {
	const rate = 48000
	c := New(rate, 5) // +/-5% clamp

	// Hardware is actually running 1% fast: every "nominal" interval it
	// produces slightly more frames than expected.
	nominalPerFrame := 1e9 / float64(rate)
	actualPerFrame := nominalPerFrame * 0.99

	var tstamp int64
	var hwPtr uint64
	for i := 0; i < 200; i++ {
		framesThisStep := uint64(1000)
		tstamp += int64(float64(framesThisStep) * actualPerFrame)
		hwPtr += framesThisStep
		c.Update(tstamp, hwPtr)
	}

	require.Negative(t, c.DriftNsPerFrame(), "hardware running fast should yield negative ns/frame drift")
	require.InDelta(t, actualPerFrame-nominalPerFrame, c.DriftNsPerFrame(), 0.05)
}

func TestInterpolatorDriftClamped(t *testing.T) {
	const rate = 48000
	c := New(rate, 1) // tight +/-1% clamp
	nominalPerFrame := 1e9 / float64(rate)
	maxDiff := nominalPerFrame * 0.01

	var tstamp int64
	var hwPtr uint64
	// Hardware wildly fast (50% faster) should still clamp to +/-1%.
	for i := 0; i < 500; i++ {
		tstamp += int64(1000 * nominalPerFrame * 0.5)
		hwPtr += 1000
		c.Update(tstamp, hwPtr)
	}

	require.LessOrEqual(t, c.DriftNsPerFrame(), maxDiff+1e-9)
	require.GreaterOrEqual(t, c.DriftNsPerFrame(), -maxDiff-1e-9)
}

func TestInterpolatorResetClearsDrift(t *testing.T) {
	c := New(48000, 5)
	c.Update(1_000_000, 48)
	c.Update(2_000_000, 100)
	require.NotZero(t, c.DriftNsPerFrame())
	c.Reset()
	require.Zero(t, c.DriftNsPerFrame())
	require.Zero(t, c.Frames(0))
}

func TestFramesAndTimeForRoundTrip(t *testing.T) {
	c := New(48000, 5)
	// With no drift, Frames/TimeFor should match the nominal rate closely.
	frames := c.Frames(1_000_000_000) // 1 second
	require.InDelta(t, 48000, frames, 1)
	ns := c.TimeFor(48000)
	require.InDelta(t, 1_000_000_000, ns, 1e6)
}
