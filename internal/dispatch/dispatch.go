// Package dispatch implements the request dispatch contract:
// a uniform 32-bit-request/input-buffer/output-buffer operation surface
// with a declarative handler table, so the transport layer (not built
// here) can route decoded requests without knowing their semantics.
package dispatch

import (
	"fmt"

	"github.com/agalue/audiomuxd/internal/pcmdriver"
	"github.com/agalue/audiomuxd/internal/pcmerr"
)

// Flags are the caller capabilities and request modifiers carried in an
// Rctx: local vs remote, credential-passing ok, fd-passing ok.
type Flags uint32

const (
	FlagLocal Flags = 1 << iota
	FlagRemote
	FlagCredentialsOK
	FlagFDPassingOK
)

// Rctx is the per-call request context a Handler receives.
type Rctx struct {
	Flags       Flags
	TargetIndex int
}

// HasAll reports whether every bit in want is set in the context's flags.
func (r Rctx) HasAll(want Flags) bool { return r.Flags&want == want }

// HasAny reports whether the context's flags intersect want at all.
func (r Rctx) HasAny(want Flags) bool { return r.Flags&want != 0 }

// Handler processes one request given validated input/output buffers.
type Handler func(rctx Rctx, in []byte, out []byte) (n int, err error)

// Entry is one row of the handler table: the sizes a request
// must satisfy and the flag constraints on the caller.
type Entry struct {
	Request            uint32
	RequiredInBufSize  int
	RequiredOutBufSize int
	ExcludedFlags      Flags
	RequiredFlags      Flags
	Handler            Handler
}

// Table is the daemon's full handler table, keyed by request number.
type Table struct {
	entries map[uint32]Entry
	// Fallthrough is invoked for any request not in entries: unknown
	// requests on a stream object are forwarded to the target's back-end
	// ioctl dispatcher.
	Fallthrough func(rctx Rctx, dev pcmdriver.Device, req uint32, in, out []byte) (int, error)
}

// NewTable builds an empty handler table.
func NewTable() *Table {
	return &Table{entries: make(map[uint32]Entry)}
}

// Register adds (or replaces) a handler table entry.
func (t *Table) Register(e Entry) {
	t.entries[e.Request] = e
}

// Len reports how many requests are registered, for diagnostics and tests.
func (t *Table) Len() int { return len(t.entries) }

// Dispatch validates rctx/in/out against the matching entry and invokes
// its handler. A request with no entry goes to t.Fallthrough when one is
// set (dev is passed on as given, nil included); otherwise it fails with
// ErrInval.
func (t *Table) Dispatch(rctx Rctx, dev pcmdriver.Device, req uint32, in, out []byte) (int, error) {
	e, ok := t.entries[req]
	if !ok {
		if t.Fallthrough != nil {
			return t.Fallthrough(rctx, dev, req, in, out)
		}
		return 0, fmt.Errorf("dispatch: unknown request %d: %w", req, pcmerr.ErrInval)
	}

	if rctx.HasAny(e.ExcludedFlags) {
		return 0, fmt.Errorf("dispatch: request %d forbidden for caller flags %#x: %w", req, rctx.Flags, pcmerr.ErrInval)
	}
	if !rctx.HasAll(e.RequiredFlags) {
		return 0, fmt.Errorf("dispatch: request %d requires flags %#x, caller has %#x: %w", req, e.RequiredFlags, rctx.Flags, pcmerr.ErrInval)
	}
	if len(in) < e.RequiredInBufSize {
		return 0, fmt.Errorf("dispatch: request %d needs >= %d input bytes, got %d: %w", req, e.RequiredInBufSize, len(in), pcmerr.ErrInval)
	}
	if len(out) < e.RequiredOutBufSize {
		return 0, fmt.Errorf("dispatch: request %d needs >= %d output bytes, got %d: %w", req, e.RequiredOutBufSize, len(out), pcmerr.ErrInval)
	}

	return e.Handler(rctx, in, out)
}

// DefaultIOCtlFallthrough forwards an unrecognized request straight to the
// target device's back-end IOCtl.
func DefaultIOCtlFallthrough(rctx Rctx, dev pcmdriver.Device, req uint32, in, out []byte) (int, error) {
	if dev == nil {
		return 0, fmt.Errorf("dispatch: no back-end for fallthrough request %d: %w", req, pcmerr.ErrNoDev)
	}
	return dev.IOCtl(req, in, out)
}
