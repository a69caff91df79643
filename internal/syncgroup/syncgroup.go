// Package syncgroup implements the sync-group registry (C9): synchronized
// start/stop across multiple clients sharing one monotonic timestamp.
package syncgroup

import (
	"fmt"
	"sync"
)

const maxSlots = 256

// Member receives a synchronized start/stop command. Client implements
// this by writing tstampNs into its own sync-start mailbox and updating its
// trigger bitmap.
type Member interface {
	SyncStart(streams uint8, tstampNs int64)
	SyncStop(streams uint8)
}

// ID is a 32-bit group identifier: low byte is the slot, the rest is a
// counter bumped every time that slot is reused, so a stale id from a
// destroyed group can never alias a newly created one in the same slot.
type ID uint32

func (id ID) slot() uint8 { return uint8(id) }

type group struct {
	mu      sync.Mutex
	id      ID
	members map[int]Member // keyed by caller-supplied member key (e.g. client index)
}

// Registry allocates and tracks sync groups.
type Registry struct {
	mu       sync.RWMutex
	counters [maxSlots]uint32
	groups   map[uint8]*group

	now func() int64 // injected monotonic clock source, for tests
}

// New returns an empty registry. now supplies the monotonic timestamp used
// by Start; callers wire this to their own clock source (spec leaves the
// clock abstract, per its external-interfaces boundary).
func New(now func() int64) *Registry {
	return &Registry{groups: make(map[uint8]*group), now: now}
}

// Create finds a free slot and returns its id, :
// "(new_slot_counter << 8) | slot".
func (r *Registry) Create() (ID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for slot := 0; slot < maxSlots; slot++ {
		s := uint8(slot)
		if _, busy := r.groups[s]; busy {
			continue
		}
		r.counters[s]++
		id := ID(r.counters[s]<<8 | uint32(s))
		r.groups[s] = &group{id: id, members: make(map[int]Member)}
		return id, nil
	}
	return 0, fmt.Errorf("syncgroup: no free slots")
}

// Destroy frees a group's slot, allowing it to be reallocated (with a
// bumped counter so old ids don't alias).
func (r *Registry) Destroy(id ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.groups[id.slot()]
	if !ok || g.id != id {
		return fmt.Errorf("syncgroup: unknown group %d", id)
	}
	delete(r.groups, id.slot())
	return nil
}

func (r *Registry) lookup(id ID) (*group, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.groups[id.slot()]
	if !ok || g.id != id {
		return nil, fmt.Errorf("syncgroup: unknown group %d", id)
	}
	return g, nil
}

// Add registers a member under key (the caller's own identifier for it,
// e.g. a client index) so it can later be removed without holding onto
// the Member value itself.
func (r *Registry) Add(id ID, key int, m Member) error {
	g, err := r.lookup(id)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[key] = m
	return nil
}

// Remove drops a member from a group.
func (r *Registry) Remove(id ID, key int) error {
	g, err := r.lookup(id)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, key)
	return nil
}

// Start captures a common timestamp and invokes SyncStart(streams, ts) on
// every member. The timestamp is returned so callers (tests,
// logging) can observe what was used.
func (r *Registry) Start(id ID, streams uint8) (tstampNs int64, err error) {
	g, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	ts := r.now()
	g.mu.Lock()
	members := make([]Member, 0, len(g.members))
	for _, m := range g.members {
		members = append(members, m)
	}
	g.mu.Unlock()
	for _, m := range members {
		m.SyncStart(streams, ts)
	}
	return ts, nil
}

// Stop is the symmetric broadcast for ending synchronized streams.
func (r *Registry) Stop(id ID, streams uint8) error {
	g, err := r.lookup(id)
	if err != nil {
		return err
	}
	g.mu.Lock()
	members := make([]Member, 0, len(g.members))
	for _, m := range g.members {
		members = append(members, m)
	}
	g.mu.Unlock()
	for _, m := range members {
		m.SyncStop(streams)
	}
	return nil
}

// MemberCount reports how many members a group currently has, for tests
// and diagnostics.
func (r *Registry) MemberCount(id ID) (int, error) {
	g, err := r.lookup(id)
	if err != nil {
		return 0, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members), nil
}
