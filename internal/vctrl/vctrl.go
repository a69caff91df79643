// Package vctrl implements the virtual control list (C11): a flat,
// index-dense registry of mixer-style controls (volume knobs, switches)
// with coalesced add/remove/change notifications dispatched off a
// dedicated thread so subscribers can safely take client locks.
package vctrl

import (
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// VCtrlMax is the ceiling of a control's value range, [0, VCtrlMax].
const VCtrlMax = 1 << 16

// EventMask selects which notification kinds a subscriber wants.
type EventMask uint32

const (
	EventAdd EventMask = 1 << iota
	EventRemove
	EventValue
	EventInfo
	EventTLV
	EventChanged
)

// Slot designates which device-facing half of a control a value targets.
// A control may have at most one playback slot and one capture slot, never
// both device- and client-facing at once.
type Slot int

const (
	SlotPlayback Slot = iota
	SlotCapture
)

// Control is one entry in the list.
type Control struct {
	EventID uint64 // stable identity, survives index compaction
	Name    string
	Value   [2]int64 // indexed by Slot
	HasSlot [2]bool
}

// change is a coalesced notification, queued for the dispatch thread.
type change struct {
	mask    EventMask
	eventID uint64
	control Control
}

// List is the virtual control registry. index maps a stable EventID to its
// current dense slot in controls, preserving registration order for
// iteration so mixer-style queries can walk the list in a stable order.
type List struct {
	mu       sync.Mutex
	controls []Control
	index    *orderedmap.OrderedMap[uint64, int] // EventID -> slot in controls
	nextID   uint64

	subMu       sync.Mutex
	subscribers map[int]subscriber
	nextSubID   int

	notifyCh chan change
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

type subscriber struct {
	mask EventMask
	fn   func(mask EventMask, eventID uint64, c Control)
}

// New builds an empty list and starts its notify dispatch thread.
func New() *List {
	l := &List{
		index:       orderedmap.New[uint64, int](),
		subscribers: make(map[int]subscriber),
		notifyCh:    make(chan change, 64),
		stopCh:      make(chan struct{}),
	}
	l.wg.Add(1)
	go l.dispatchLoop()
	return l
}

// Close stops the dispatch thread. Pending notifications are dropped.
func (l *List) Close() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *List) dispatchLoop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case ch := <-l.notifyCh:
			l.subMu.Lock()
			subs := make([]subscriber, 0, len(l.subscribers))
			for _, s := range l.subscribers {
				if s.mask&ch.mask != 0 {
					subs = append(subs, s)
				}
			}
			l.subMu.Unlock()
			// Dispatched with no list mutex held: subscribers may take
			// client locks, so holding it here would risk deadlock.
			for _, s := range subs {
				s.fn(ch.mask, ch.eventID, ch.control)
			}
		}
	}
}

// Subscribe registers a callback for the given mask and returns a token
// for Unsubscribe.
func (l *List) Subscribe(mask EventMask, fn func(mask EventMask, eventID uint64, c Control)) int {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	id := l.nextSubID
	l.nextSubID++
	l.subscribers[id] = subscriber{mask: mask, fn: fn}
	return id
}

// Unsubscribe removes a previously registered callback.
func (l *List) Unsubscribe(token int) {
	l.subMu.Lock()
	defer l.subMu.Unlock()
	delete(l.subscribers, token)
}

func (l *List) queue(mask EventMask, eventID uint64, c Control) {
	select {
	case l.notifyCh <- change{mask: mask, eventID: eventID, control: c}:
	default:
		// Notify channel is full; a slow subscriber loses a coalescing
		// opportunity rather than blocking the control thread.
	}
}

// Register adds a new control, returning its stable event id.
func (l *List) Register(name string) uint64 {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	c := Control{EventID: id, Name: name}
	l.controls = append(l.controls, c)
	l.index.Set(id, len(l.controls)-1)
	l.mu.Unlock()

	l.queue(EventAdd, id, c)
	return id
}

// Unregister removes a control by event id, compacting the dense index.
func (l *List) Unregister(eventID uint64) error {
	l.mu.Lock()
	slot, ok := l.index.Get(eventID)
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("vctrl: unknown control %d", eventID)
	}
	removed := l.controls[slot]
	l.controls = append(l.controls[:slot], l.controls[slot+1:]...)
	l.index.Delete(eventID)
	for i := slot; i < len(l.controls); i++ {
		l.index.Set(l.controls[i].EventID, i)
	}
	l.mu.Unlock()

	l.queue(EventRemove, eventID, removed)
	return nil
}

// SetValue updates a control's value for the given slot. Percentages
// should be pre-scaled to [0, VCtrlMax] by the caller.
func (l *List) SetValue(eventID uint64, slot Slot, value int64) error {
	if value < 0 || value > VCtrlMax {
		return fmt.Errorf("vctrl: value %d out of range", value)
	}
	l.mu.Lock()
	idx, ok := l.index.Get(eventID)
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("vctrl: unknown control %d", eventID)
	}
	l.controls[idx].Value[slot] = value
	l.controls[idx].HasSlot[slot] = true
	c := l.controls[idx]
	l.mu.Unlock()

	l.queue(EventValue|EventChanged, eventID, c)
	return nil
}

// Get returns a copy of a control by event id.
func (l *List) Get(eventID uint64) (Control, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx, ok := l.index.Get(eventID)
	if !ok {
		return Control{}, false
	}
	return l.controls[idx], true
}

// Len returns the number of registered controls.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.controls)
}

// Each calls fn for every control in dense-index order, for mixer-style
// enumeration. fn must not call back into List (Register/Unregister/
// SetValue would deadlock on l.mu).
func (l *List) Each(fn func(Control)) {
	l.mu.Lock()
	snapshot := make([]Control, len(l.controls))
	copy(snapshot, l.controls)
	l.mu.Unlock()
	for _, c := range snapshot {
		fn(c)
	}
}
