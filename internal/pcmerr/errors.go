// Package pcmerr defines the sentinel errors the engine uses to talk about
// device and stream failures, mirroring the host error codes a PCM back-end
// reports (EPIPE, ESTRPIPE, ...) without depending on any particular OS.
package pcmerr

import "errors"

var (
	// ErrPipe means an underrun or overrun (xrun) occurred.
	ErrPipe = errors.New("pcmerr: xrun (pipe)")
	// ErrStrPipe means the device is suspended and needs resume+prepare.
	ErrStrPipe = errors.New("pcmerr: suspended")
	// ErrAgain means the operation should be retried; no progress was made.
	ErrAgain = errors.New("pcmerr: try again")
	// ErrNoDev means the device is gone (disconnected, fatal).
	ErrNoDev = errors.New("pcmerr: no such device")
	// ErrBusy means the device is exclusively locked by another client.
	ErrBusy = errors.New("pcmerr: device busy")
	// ErrTime means a latency request was rejected by a locked latency.
	ErrTime = errors.New("pcmerr: timer error / latency locked")
	// ErrInval means a request had a bad size, flags, or parameter.
	ErrInval = errors.New("pcmerr: invalid argument")
	// ErrNoSpace means a resource (slot, memory) could not be allocated.
	ErrNoSpace = errors.New("pcmerr: no space left")
	// ErrFault means a client's shared memory mapping faulted (SIGBUS class).
	ErrFault = errors.New("pcmerr: bad address")
	// ErrNotSupported means an optional back-end capability isn't
	// implemented (e.g. TranslateChannelMap).
	ErrNotSupported = errors.New("pcmerr: not supported")
)
