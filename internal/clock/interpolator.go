// Package clock implements the per-stream clock interpolator (C2): it turns
// successive (timestamp, hw_ptr) samples into a drift estimate so the
// scheduler and engine can extrapolate position between device status
// reads instead of calling the back-end on every cycle.
package clock

import (
	"math"
	"sync/atomic"
)

// Interpolator tracks a stream's observed frame rate against its nominal
// rate and extrapolates frame counts / timestamps between samples.
type Interpolator struct {
	sampleTimeNs float64 // nominal ns per frame: 1e9 / rate
	maxDiffNs    float64 // clamp bound for drift, ns per frame

	// driftBits stores the signed ns-per-frame drift estimate as a float64
	// bit pattern so Update/reset can be called from the device thread while
	// Frames/TimeFor are read from elsewhere without a mutex.
	driftBits atomic.Uint64

	lastTstampNs int64
	lastHWPtr    uint64
	haveSample   bool
}

// New returns an interpolator for a stream running at rate Hz. maxDiffPct
// bounds the drift estimate to +/- maxDiffPct percent of the nominal
// sample time (dspd's "maxdiff").
func New(rate int, maxDiffPct float64) *Interpolator {
	sampleTimeNs := 1e9 / float64(rate)
	c := &Interpolator{
		sampleTimeNs: sampleTimeNs,
		maxDiffNs:    sampleTimeNs * (maxDiffPct / 100),
	}
	return c
}

// Update folds in a new (timestamp, hw_ptr) sample, refining the drift
// estimate. Must only be called by the device thread that owns this
// stream's status reads.
func (c *Interpolator) Update(tstampNs int64, hwPtr uint64) {
	if !c.haveSample {
		c.lastTstampNs = tstampNs
		c.lastHWPtr = hwPtr
		c.haveSample = true
		return
	}

	dtNs := tstampNs - c.lastTstampNs
	dFrames := hwPtr - c.lastHWPtr
	c.lastTstampNs = tstampNs
	c.lastHWPtr = hwPtr

	if dtNs <= 0 || dFrames == 0 {
		return
	}

	observedNsPerFrame := float64(dtNs) / float64(dFrames)
	drift := observedNsPerFrame - c.sampleTimeNs
	if drift > c.maxDiffNs {
		drift = c.maxDiffNs
	} else if drift < -c.maxDiffNs {
		drift = -c.maxDiffNs
	}

	// Light exponential smoothing: a single bad sample (e.g. a scheduling
	// hiccup) shouldn't swing the estimate to its clamp in one step.
	const alpha = 0.25
	prev := loadFloat(&c.driftBits)
	drift = prev + alpha*(drift-prev)
	storeFloat(&c.driftBits, drift)
}

// Frames estimates how many frames elapse over dt nanoseconds at the
// current drift-corrected rate.
func (c *Interpolator) Frames(dtNs int64) uint64 {
	perFrame := c.sampleTimeNs + loadFloat(&c.driftBits)
	if perFrame <= 0 {
		return 0
	}
	f := float64(dtNs) / perFrame
	if f < 0 {
		return 0
	}
	return uint64(f)
}

// TimeFor estimates the nanoseconds needed to produce/consume frames at the
// current drift-corrected rate.
func (c *Interpolator) TimeFor(frames uint64) int64 {
	perFrame := c.sampleTimeNs + loadFloat(&c.driftBits)
	return int64(float64(frames) * perFrame)
}

// Reset clears the drift estimate and sample history, used on stream
// (re)prepare (start_count change).
func (c *Interpolator) Reset() {
	storeFloat(&c.driftBits, 0)
	c.haveSample = false
}

// DriftNsPerFrame reports the current signed drift estimate, mostly useful
// for tests and diagnostics.
func (c *Interpolator) DriftNsPerFrame() float64 {
	return loadFloat(&c.driftBits)
}

func loadFloat(a *atomic.Uint64) float64 {
	return math.Float64frombits(a.Load())
}

func storeFloat(a *atomic.Uint64, v float64) {
	a.Store(math.Float64bits(v))
}
