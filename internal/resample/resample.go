// Package resample implements the per-stream resampler wrapper (C3). It
// abstracts over interchangeable resampling algorithms so a back-end
// resampler library could be swapped in later without touching callers;
// this package defines the small interface and ships two reference
// qualities (linear and polyphase filters, generalized here from mono to
// N interleaved channels).
package resample

import "fmt"

// Quality selects which algorithm New constructs.
type Quality int

const (
	// QualityLinear is cheap linear interpolation, adequate when upsampling
	// or when CPU budget is tight.
	QualityLinear Quality = iota
	// QualityPolyphase uses a windowed-sinc FIR filter, needed to avoid
	// aliasing when downsampling.
	QualityPolyphase
)

// Resampler converts interleaved float32 frames between a client's rate and
// the device's rate. A separate instance exists per stream direction.
// SetRates reuses the existing buffers when they are large enough and
// allocates only when they must grow.
type Resampler interface {
	// SetRates configures (or reconfigures) the conversion ratio.
	SetRates(inRate, outRate int)

	// Process consumes up to len(in)/channels input frames and produces up
	// to len(out)/channels output frames, both interleaved. It returns how
	// many frames of each it actually used, and may legitimately return
	// fewer than requested on either side — callers loop until their
	// accounting is satisfied. Output stops at the end of the supplied
	// input whether or not eof is set: neither implementation holds back
	// frames, so eof adds no output (polyphase carries its filter history
	// into the next call).
	Process(eof bool, in []float32, out []float32) (inFrames, outFrames int, err error)

	// Reset clears retained filter history / phase accumulator state,
	// used when a stream restarts (start_count changes).
	Reset()
}

// New constructs a Resampler of the requested quality for the given channel
// count. Channels must be >= 1.
func New(quality Quality, channels int) Resampler {
	if channels < 1 {
		panic(fmt.Sprintf("resample: invalid channel count %d", channels))
	}
	switch quality {
	case QualityPolyphase:
		return newPolyphase(channels)
	default:
		return newLinear(channels)
	}
}

// linear is a per-channel linear-interpolation resampler, extended from a
// single-channel design to N interleaved channels by keeping one phase
// accumulator and one "last sample per channel" history shared across
// channels (all channels share the same timing).
type linear struct {
	channels   int
	inRate     int
	outRate    int
	ratio      float64 // outRate / inRate
	phase      float64 // fractional output position not yet produced, in input-sample units
	lastSample []float32
}

func newLinear(channels int) *linear {
	return &linear{channels: channels, ratio: 1, lastSample: make([]float32, channels)}
}

func (r *linear) SetRates(inRate, outRate int) {
	r.inRate, r.outRate = inRate, outRate
	if inRate > 0 {
		r.ratio = float64(outRate) / float64(inRate)
	} else {
		r.ratio = 1
	}
	r.phase = 0
}

func (r *linear) Reset() {
	r.phase = 0
	for i := range r.lastSample {
		r.lastSample[i] = 0
	}
}

func (r *linear) Process(eof bool, in []float32, out []float32) (inFrames, outFrames int, err error) {
	ch := r.channels
	if ch == 0 || r.ratio == 0 {
		return 0, 0, nil
	}
	inN := len(in) / ch
	outCap := len(out) / ch
	if r.ratio == 1 {
		n := inN
		if n > outCap {
			n = outCap
		}
		copy(out[:n*ch], in[:n*ch])
		if n > 0 {
			for c := 0; c < ch; c++ {
				r.lastSample[c] = in[(n-1)*ch+c]
			}
		}
		return n, n, nil
	}

	produced := 0
	srcPos := r.phase // position in input frames, fractional
	for produced < outCap {
		srcIdx := int(srcPos)
		if srcIdx >= inN {
			break
		}
		frac := float32(srcPos - float64(srcIdx))
		for c := 0; c < ch; c++ {
			s0 := r.lastSample[c]
			if srcIdx >= 0 && srcIdx < inN {
				s0 = in[srcIdx*ch+c]
			}
			s1 := s0
			if srcIdx+1 < inN {
				s1 = in[(srcIdx+1)*ch+c]
			}
			out[produced*ch+c] = s0 + (s1-s0)*frac
		}
		produced++
		srcPos += 1.0 / r.ratio
	}

	consumed := int(srcPos)
	if consumed > inN {
		consumed = inN
	}
	if consumed > 0 {
		for c := 0; c < ch; c++ {
			r.lastSample[c] = in[(consumed-1)*ch+c]
		}
	}
	r.phase = srcPos - float64(consumed)
	if r.phase < 0 {
		r.phase = 0
	}
	return consumed, produced, nil
}
