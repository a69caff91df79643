package resample

import "math"

// polyphase is a per-channel windowed-sinc FIR resampler (a 64-tap
// Hamming-windowed sinc low-pass), extended from a single channel to N
// interleaved channels, each carrying its own filter history so one
// channel's transient doesn't bleed into another's.
type polyphase struct {
	channels  int
	inRate    int
	outRate   int
	ratio     float64
	filterLen int
	filter    []float32
	history   [][]float32 // per-channel trailing samples from the previous call
	linear    *linear      // upsampling falls back to plain linear interpolation
}

func newPolyphase(channels int) *polyphase {
	p := &polyphase{
		channels: channels,
		ratio:    1,
		linear:   newLinear(channels),
	}
	p.history = make([][]float32, channels)
	return p
}

func (p *polyphase) SetRates(inRate, outRate int) {
	p.inRate, p.outRate = inRate, outRate
	if inRate > 0 {
		p.ratio = float64(outRate) / float64(inRate)
	} else {
		p.ratio = 1
	}
	p.linear.SetRates(inRate, outRate)

	const taps = 64
	cutoff := 0.5
	if p.ratio < 1.0 {
		cutoff = p.ratio * 0.5
	}
	filter := p.filter
	if cap(filter) < taps {
		filter = make([]float32, taps)
	}
	filter = filter[:taps]
	for i := 0; i < taps; i++ {
		n := float64(i) - float64(taps-1)/2.0
		if n == 0 {
			filter[i] = float32(2.0 * cutoff)
		} else {
			sinc := math.Sin(2.0*math.Pi*cutoff*n) / (math.Pi * n)
			window := 0.54 - 0.46*math.Cos(2.0*math.Pi*float64(i)/float64(taps-1))
			filter[i] = float32(sinc * window)
		}
	}
	var sum float32
	for _, f := range filter {
		sum += f
	}
	if sum != 0 {
		for i := range filter {
			filter[i] /= sum
		}
	}
	p.filterLen = taps
	p.filter = filter
	for c := range p.history {
		if cap(p.history[c]) < taps {
			p.history[c] = make([]float32, taps)
		}
		p.history[c] = p.history[c][:taps]
		clear(p.history[c])
	}
}

func (p *polyphase) Reset() {
	p.linear.Reset()
	for c := range p.history {
		for i := range p.history[c] {
			p.history[c][i] = 0
		}
	}
}

func (p *polyphase) Process(eof bool, in []float32, out []float32) (inFrames, outFrames int, err error) {
	if p.ratio >= 1.0 {
		// Upsampling doesn't need anti-aliasing; linear interpolation is
		// sufficient and cheaper.
		return p.linear.Process(eof, in, out)
	}
	return p.downsample(in, out)
}

func (p *polyphase) downsample(in []float32, out []float32) (inFrames, outFrames int, err error) {
	ch := p.channels
	inN := len(in) / ch
	outCap := len(out) / ch
	outN := int(float64(inN) * p.ratio)
	if outN > outCap {
		outN = outCap
		// Only consume as much input as this many output frames need.
		inN = int(float64(outN)/p.ratio) + 1
		if inN*ch > len(in) {
			inN = len(in) / ch
		}
	}

	for c := 0; c < ch; c++ {
		combined := make([]float32, len(p.history[c])+inN)
		copy(combined, p.history[c])
		for i := 0; i < inN; i++ {
			combined[len(p.history[c])+i] = in[i*ch+c]
		}

		for i := 0; i < outN; i++ {
			srcPos := float64(i) / p.ratio
			srcIdx := int(srcPos) + len(p.history[c])
			var sample float32
			for j := 0; j < p.filterLen; j++ {
				idx := srcIdx - p.filterLen + 1 + j
				if idx >= 0 && idx < len(combined) {
					sample += combined[idx] * p.filter[j]
				}
			}
			out[i*ch+c] = sample
		}

		copy(p.history[c], combined[len(combined)-p.filterLen:])
	}

	return inN, outN, nil
}
