package resample

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLinearIdentityRateCopiesThrough(t *testing.T) {
	r := New(QualityLinear, 2)
	r.SetRates(48000, 48000)
	in := []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6}
	out := make([]float32, len(in))
	inN, outN, err := r.Process(true, in, out)
	require.NoError(t, err)
	require.Equal(t, 3, inN)
	require.Equal(t, 3, outN)
	require.Equal(t, in, out)
}

// TestLinearUpsamplePreservesFrameAccounting mirrors scenario S3: converting
// 44100 -> 48000 over a 1-second window should land within one frame.
func TestLinearUpsamplePreservesFrameAccounting(t *testing.T) {
	r := New(QualityLinear, 1)
	r.SetRates(44100, 48000)

	inTotal := 44100
	in := make([]float32, inTotal)
	for i := range in {
		in[i] = float32(i%100) / 100
	}

	out := make([]float32, 48000+16)
	totalOut := 0
	consumed := 0
	for consumed < inTotal {
		n, o, err := r.Process(false, in[consumed:], out)
		require.NoError(t, err)
		if n == 0 && o == 0 {
			break
		}
		consumed += n
		totalOut += o
	}
	// Flush any remaining phase at eof.
	n, o, err := r.Process(true, nil, out)
	require.NoError(t, err)
	consumed += n
	totalOut += o

	require.InDelta(t, 48000, totalOut, 1)
}

func TestPolyphaseDownsampleProducesExpectedFrameCount(t *testing.T) {
	r := New(QualityPolyphase, 1)
	r.SetRates(48000, 16000)

	in := make([]float32, 48000)
	out := make([]float32, 16000+16)
	inN, outN, err := r.Process(true, in, out)
	require.NoError(t, err)
	require.Equal(t, 48000, inN)
	require.InDelta(t, 16000, outN, 1)
}

func TestPolyphaseChannelsAreIndependent(t *testing.T) {
	r := New(QualityPolyphase, 2)
	r.SetRates(48000, 24000)

	frames := 4096
	in := make([]float32, frames*2)
	for i := 0; i < frames; i++ {
		in[i*2] = 1.0   // left: constant DC
		in[i*2+1] = -1.0 // right: constant DC, opposite sign
	}
	out := make([]float32, frames+16)
	// First pass primes the filter history (which starts at zero and would
	// otherwise bias the leading edge of the output); check the steady
	// state reached on the second pass over the same constant signal.
	_, _, err := r.Process(true, in, out)
	require.NoError(t, err)
	_, outN, err := r.Process(true, in, out)
	require.NoError(t, err)
	for i := 0; i < outN; i++ {
		require.InDelta(t, 1.0, out[i*2], 0.05)
		require.InDelta(t, -1.0, out[i*2+1], 0.05)
	}
}
