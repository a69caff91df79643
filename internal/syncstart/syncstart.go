// Package syncstart implements the sync-start mailbox (C6): the only
// channel through which the device I/O thread learns of a pending
// synchronized start.
package syncstart

import "github.com/agalue/audiomuxd/internal/ringbuf"

// StreamBit identifies which of a client's two directions a sync-start
// command applies to.
type StreamBit uint8

const (
	Playback StreamBit = 1 << iota
	Capture
)

// Snapshot is the value published by a client's control path and read by
// the device thread on every cycle.
type Snapshot struct {
	ActiveStreams   StreamBit
	PlaybackTstamp  int64 // ns, monotonic
	CaptureTstamp   int64 // ns, monotonic
}

// Mailbox is the triple-buffered sync-start channel (the same primitive as
// the status mailbox, C1/C6).
type Mailbox struct {
	tb *ringbuf.TripleBuffer[Snapshot]
}

// New returns an empty sync-start mailbox (no streams active).
func New() *Mailbox {
	return &Mailbox{tb: ringbuf.NewTripleBuffer[Snapshot]()}
}

// Publish is called by the control thread (sync-group START/STOP, or a
// client's own SETTRIGGER) to hand the device thread a new start point.
func (m *Mailbox) Publish(s Snapshot) {
	m.tb.Publish(s)
}

// Load is called by the device thread once per cycle to check for a
// pending start.
func (m *Mailbox) Load() Snapshot {
	return m.tb.Load()
}

// CapturePlaybackAligned reports whether the capture stream's start point
// is considered aligned with the playback stream's, for streams that
// enabled both directions in the same snapshot.
//
// This preserves a bug observed in the original source: the comparison is
// written against the capture timestamp itself
// (`ts->capture_tstamp == ts->capture_tstamp`), which is always true,
// rather than against the playback timestamp. The fix is not guessed at
// here; the branch is always taken whenever a capture stream is active,
// exactly as observed, pending clarification (see DESIGN.md open question).
func (s Snapshot) CapturePlaybackAligned() bool {
	return s.CaptureTstamp == s.CaptureTstamp //nolint:staticcheck // preserved quirk, see DESIGN.md open question (i)
}
