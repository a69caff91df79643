package dispatch

import (
	"testing"

	"github.com/agalue/audiomuxd/internal/pcmdriver"
	"github.com/agalue/audiomuxd/internal/pcmerr"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	pcmdriver.Device
	ioctlN   int
	ioctlErr error
}

func (s *stubBackend) IOCtl(req uint32, in, out []byte) (int, error) {
	return s.ioctlN, s.ioctlErr
}

func TestDispatchRejectsUndersizedBuffers(t *testing.T) {
	tbl := NewTable()
	tbl.Register(Entry{
		Request:             1,
		RequiredInBufSize:   4,
		RequiredOutBufSize:  0,
		Handler: func(rctx Rctx, in, out []byte) (int, error) {
			return len(in), nil
		},
	})

	_, err := tbl.Dispatch(Rctx{Flags: FlagLocal}, nil, 1, []byte{1, 2}, nil)
	require.ErrorIs(t, err, pcmerr.ErrInval)
}

func TestDispatchInvokesHandlerWhenSizesSatisfied(t *testing.T) {
	tbl := NewTable()
	tbl.Register(Entry{
		Request:            1,
		RequiredInBufSize:  4,
		RequiredOutBufSize: 4,
		Handler: func(rctx Rctx, in, out []byte) (int, error) {
			copy(out, in)
			return len(in), nil
		},
	})

	in := []byte{1, 2, 3, 4}
	out := make([]byte, 4)
	n, err := tbl.Dispatch(Rctx{Flags: FlagLocal}, nil, 1, in, out)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, in, out)
}

func TestDispatchEnforcesRequiredAndExcludedFlags(t *testing.T) {
	tbl := NewTable()
	tbl.Register(Entry{
		Request:       1,
		RequiredFlags: FlagCredentialsOK,
		ExcludedFlags: FlagRemote,
		Handler:       func(rctx Rctx, in, out []byte) (int, error) { return 0, nil },
	})

	_, err := tbl.Dispatch(Rctx{Flags: FlagLocal}, nil, 1, nil, nil)
	require.ErrorIs(t, err, pcmerr.ErrInval) // missing required flag

	_, err = tbl.Dispatch(Rctx{Flags: FlagRemote | FlagCredentialsOK}, nil, 1, nil, nil)
	require.ErrorIs(t, err, pcmerr.ErrInval) // has excluded flag

	_, err = tbl.Dispatch(Rctx{Flags: FlagLocal | FlagCredentialsOK}, nil, 1, nil, nil)
	require.NoError(t, err)
}

func TestDispatchFallsThroughToBackendIOCtlForUnknownRequest(t *testing.T) {
	tbl := NewTable()
	tbl.Fallthrough = DefaultIOCtlFallthrough
	backend := &stubBackend{ioctlN: 7}

	n, err := tbl.Dispatch(Rctx{Flags: FlagLocal}, backend, 999, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 7, n)
}

func TestDispatchUnknownRequestWithoutFallthroughOrBackendErrors(t *testing.T) {
	tbl := NewTable()
	_, err := tbl.Dispatch(Rctx{Flags: FlagLocal}, nil, 999, nil, nil)
	require.ErrorIs(t, err, pcmerr.ErrInval)

	tbl.Fallthrough = DefaultIOCtlFallthrough
	_, err = tbl.Dispatch(Rctx{Flags: FlagLocal}, nil, 999, nil, nil)
	require.ErrorIs(t, err, pcmerr.ErrNoDev)
}
