package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestRingWriteReadRoundTrip(t *testing.T) {
	r := New(16)
	dst := r.WriteBegin(4)
	require.Len(t, dst, 4)
	copy(dst, []byte{1, 2, 3, 4})
	r.WriteCommit(4)
	require.EqualValues(t, 4, r.Fill())
	require.EqualValues(t, 12, r.Space())

	src := r.ReadBegin(4)
	require.Equal(t, []byte{1, 2, 3, 4}, src)
	r.ReadCommit(4)
	require.EqualValues(t, 0, r.Fill())
}

func TestRingWriteBeginClampsToContiguousRun(t *testing.T) {
	r := New(8)
	// Fill to offset 6 so only 2 contiguous bytes remain before wraparound.
	r.WriteCommit(6)
	r.ReadCommit(6)
	dst := r.WriteBegin(8)
	require.Len(t, dst, 2, "WriteBegin must not return a run that wraps past the backing array")
}

func TestRingStickyError(t *testing.T) {
	r := New(8)
	require.NoError(t, r.Err())
	sentinel := errUnderrun
	r.SetError(sentinel)
	require.ErrorIs(t, r.Err(), sentinel)
	// first error wins
	r.SetError(errOther)
	require.ErrorIs(t, r.Err(), sentinel)
}

// TestRingRewindIdempotence checks that after rewind(n), the region at
// the new position observes the prior contents written there.
func TestRingRewindIdempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := uint32(1 << rapid.IntRange(2, 8).Draw(t, "log2cap"))
		r := New(capacity)
		n := rapid.Uint32Range(0, capacity).Draw(t, "n")

		dst := r.WriteBegin(n)
		data := rapid.SliceOfN(rapid.Byte(), int(n), int(n)).Draw(t, "data")
		copy(dst, data)
		r.WriteCommit(n)
		r.ReadCommit(n / 2) // consumer trails behind by design

		rewindBy := rapid.Uint32Range(0, n/2).Draw(t, "rewindBy")
		r.Rewind(rewindBy)

		// Re-reading from the rewound position must reproduce what was
		// written there originally.
		got := r.WriteBegin(rewindBy)
		want := data[n-rewindBy:]
		if len(want) > len(got) {
			want = want[:len(got)]
		}
		require.Equal(t, want, got[:len(want)])
	})
}

var errUnderrun = &testErr{"underrun"}
var errOther = &testErr{"other"}

type testErr struct{ s string }

func (e *testErr) Error() string { return e.s }
