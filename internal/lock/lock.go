// Package lock implements the exclusive-lock / low-latency notify channel
// (C10): a client's LOCK request gets a cookie-guarded notify queue the
// device scheduler polls as an extra event source, plus a wakeup-count
// governor that throttles a misbehaving client's spurious notifies.
package lock

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

const queueDepth = 4

// NewCookie mints a 64-bit lock cookie, unique enough across process
// lifetime that a stale message from a previous lock holder is never
// mistaken for a current one. Derived from a uuid rather than a counter so
// it survives daemon restarts without needing persisted state.
func NewCookie() uint64 {
	id := uuid.New()
	b := id[:]
	return binary.BigEndian.Uint64(b[:8]) ^ binary.BigEndian.Uint64(b[8:])
}

// Queue is an exclusive client's notify channel: a short, bounded message
// queue the device thread polls alongside its timer/device fds. Writers
// that find it full drop the message — a wakeup that's already pending
// needs no duplicate message depth. The channel carries the notifying
// client's cookie directly so a scheduler can select on it and validate
// after waking, rather than only through the polling Poll() wrapper.
type Queue struct {
	cookie uint64
	ch     chan uint64
	gov    *Governor
}

// NewQueue allocates a notify queue for a newly locked client.
func NewQueue(cookie uint64) *Queue {
	return &Queue{cookie: cookie, ch: make(chan uint64, queueDepth), gov: NewGovernor()}
}

// Notify is called by the client to request device-thread attention. A
// full queue silently drops the extra wakeup.
func (q *Queue) Notify(cookie uint64) {
	select {
	case q.ch <- cookie:
	default:
	}
}

// Channel exposes the queue's notify channel for a scheduler select
// statement. A received cookie must be passed to Validate.
func (q *Queue) Channel() <-chan uint64 { return q.ch }

// Validate checks a cookie received off Channel() against the queue's own,
// feeding the governor: a mismatch counts as a spurious notify.
func (q *Queue) Validate(cookie uint64) bool {
	if cookie != q.cookie {
		q.gov.Spurious()
		return false
	}
	q.gov.Valid()
	return true
}

// Poll is called by the device scheduler once per cycle (or whenever the
// queue's readiness fd fires). It validates the cookie and feeds the
// governor; spurious notifies (wrong cookie) count against the governor
// without waking the device for real work.
func (q *Queue) Poll() (valid bool, ok bool) {
	select {
	case cookie := <-q.ch:
		return q.Validate(cookie), true
	default:
		return false, false
	}
}

// Governor returns the queue's wakeup-count governor, so the scheduler can
// check Enabled() before even bothering to poll.
func (q *Queue) Governor() *Governor { return q.gov }

// Governor implements the queue's abuse throttle: after two spurious
// notifies, polling is disabled for two scheduler cycles, then re-enabled.
type Governor struct {
	spuriousStreak int
	disabledCycles int
}

const spuriousThreshold = 2
const disableCycles = 2

// NewGovernor returns a governor with polling enabled.
func NewGovernor() *Governor { return &Governor{} }

// Spurious records an invalid notify; after spuriousThreshold consecutive
// ones, it disables polling for disableCycles scheduler cycles.
func (g *Governor) Spurious() {
	g.spuriousStreak++
	if g.spuriousStreak >= spuriousThreshold {
		g.disabledCycles = disableCycles
		g.spuriousStreak = 0
	}
}

// Valid records a legitimate notify, resetting the spurious streak.
func (g *Governor) Valid() {
	g.spuriousStreak = 0
}

// Tick advances one scheduler cycle, counting down any active
// disablement. Call once per device cycle regardless of whether a notify
// occurred.
func (g *Governor) Tick() {
	if g.disabledCycles > 0 {
		g.disabledCycles--
	}
}

// Enabled reports whether the scheduler should poll this queue this cycle.
func (g *Governor) Enabled() bool { return g.disabledCycles == 0 }

// Attach grants a client exclusive access to a device, returning an error
// if it's already held. Callers are expected to guard this with the
// device's own reg-lock; Attach itself is not safe to call
// concurrently for the same ExclusiveLock.
type ExclusiveLock struct {
	holder int // client index, or -1 if free
	cookie uint64
	queue  *Queue
}

// NewExclusiveLock returns a free (unheld) exclusive lock slot for one
// device.
func NewExclusiveLock() *ExclusiveLock {
	return &ExclusiveLock{holder: -1}
}

// Attach grants clientIndex exclusive access, minting a fresh cookie and
// notify queue.
func (l *ExclusiveLock) Attach(clientIndex int) (cookie uint64, queue *Queue, err error) {
	if l.holder != -1 {
		return 0, nil, fmt.Errorf("lock: device already held by client %d", l.holder)
	}
	l.holder = clientIndex
	l.cookie = NewCookie()
	l.queue = NewQueue(l.cookie)
	return l.cookie, l.queue, nil
}

// Release frees the lock if held by clientIndex.
func (l *ExclusiveLock) Release(clientIndex int) error {
	if l.holder != clientIndex {
		return fmt.Errorf("lock: client %d does not hold this lock", clientIndex)
	}
	l.holder = -1
	l.cookie = 0
	l.queue = nil
	return nil
}

// Holder returns the current exclusive holder's client index, or -1.
func (l *ExclusiveLock) Holder() int { return l.holder }

// Queue returns the current holder's notify queue, or nil if unheld.
func (l *ExclusiveLock) Queue() *Queue { return l.queue }
