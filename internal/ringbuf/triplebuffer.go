package ringbuf

import "sync/atomic"

// slot indices packed into a state word: 2 bits each for write/read/last;
// last == 3 means nothing has been published since the reader's previous
// Load. Three concurrent slot identities are enough
// to guarantee a writer never overwrites what the reader is looking at and
// a reader never observes a half-written snapshot.
const tbNone = 3

func tbPack(write, read, last uint32) uint32 {
	return write | read<<2 | last<<4
}

func tbUnpack(state uint32) (write, read, last uint32) {
	return state & 0x3, (state >> 2) & 0x3, (state >> 4) & 0x3
}

// TripleBuffer publishes values of type T from a single writer to a single
// reader without ever blocking either side (C1/C6: "this guarantees
// wait-free reads and writes with at most three concurrent slot
// identities"). It backs both the per-stream status mailbox and the
// sync-start mailbox — the same primitive, parameterized by payload type.
type TripleBuffer[T any] struct {
	slots [3]T
	state atomic.Uint32
}

// NewTripleBuffer returns a triple buffer with all three slots initialized
// to the zero value of T.
func NewTripleBuffer[T any]() *TripleBuffer[T] {
	tb := &TripleBuffer[T]{}
	tb.state.Store(tbPack(0, 1, 2))
	return tb
}

// Write claims a free slot, lets fn populate it, and publishes it as the
// most recent snapshot. Must only be called by the single writer.
func (tb *TripleBuffer[T]) Write(fn func(*T)) {
	for {
		state := tb.state.Load()
		write, read, _ := tbUnpack(state)
		// write is already the slot not currently read and not last-published
		// from the previous iteration; claim it.
		fn(&tb.slots[write])
		// The next write slot is the one neither just published nor held
		// by the reader (slot indices 0+1+2 sum to 3).
		newState := tbPack(3-write-read, read, write)
		if tb.state.CompareAndSwap(state, newState) {
			return
		}
		// The reader's Load changed the state word in between; write is
		// unchanged, so retrying refills the same slot.
	}
}

// Publish is a convenience wrapper around Write for simple value types.
func (tb *TripleBuffer[T]) Publish(v T) {
	tb.Write(func(slot *T) { *slot = v })
}

// Load returns a copy of the most-recently published slot. Must only be
// called by the single reader.
func (tb *TripleBuffer[T]) Load() T {
	for {
		state := tb.state.Load()
		write, read, last := tbUnpack(state)
		if last == tbNone {
			return tb.slots[read]
		}
		newState := tbPack(write, last, tbNone)
		if tb.state.CompareAndSwap(state, newState) {
			return tb.slots[last]
		}
	}
}
