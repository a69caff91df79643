// Package client implements the Client aggregate: a connected peer's two
// stream directions plus the bookkeeping the device engine and control
// thread share about it (trigger bitmap, lock/sync-group membership,
// credentials).
package client

import (
	"sync"
	"sync/atomic"

	"github.com/agalue/audiomuxd/internal/stream"
	"github.com/agalue/audiomuxd/internal/syncstart"
)

func atomicAdd(addr *int32, delta int32) int32 {
	return atomic.AddInt32(addr, delta)
}

// TriggerBit marks which directions of a client the I/O scheduler should
// service this cycle.
type TriggerBit uint8

const (
	TriggerPlayback TriggerBit = 1 << iota
	TriggerCapture
)

// Credentials identifies the peer that opened this client, as reported by
// the transport.
type Credentials struct {
	PID         int32
	UID         uint32
	GID         uint32
	DisplayName string
}

// RouteChangeFunc is invoked when a client's device assignment changes
// (migration, exclusive preemption).
type RouteChangeFunc func(c *Client, newDeviceIndex int)

// ErrorFunc is invoked when the device thread detects a fault for this
// client.
type ErrorFunc func(c *Client, err error)

// Client is a connected peer: up to one playback and one capture
// StreamState, plus device-thread-visible trigger state and control-thread
// membership (lock, sync group).
type Client struct {
	Index int

	rw  sync.RWMutex // writers: control operations; readers: device engine status inspection
	srv sync.Mutex   // held by the device thread while mixing this client

	Playback *stream.StreamState
	Capture  *stream.StreamState

	deviceIndex int
	trigger     TriggerBit
	refcount    int32

	creds       Credentials
	lockCookie  uint64
	locked      bool
	syncGroupID uint32
	inSyncGroup bool

	syncMailbox *syncstart.Mailbox

	onRouteChange RouteChangeFunc
	onError       ErrorFunc
}

// New builds a Client around whichever of playback/capture are non-nil; a
// client may have one or both directions, either may be absent.
func New(index int, creds Credentials, playback, capture *stream.StreamState) *Client {
	return &Client{
		Index:       index,
		Playback:    playback,
		Capture:     capture,
		deviceIndex: -1,
		creds:       creds,
		syncMailbox: syncstart.New(),
	}
}

// SyncMailbox returns this client's sync-start mailbox (C6), the channel
// through which a synchronized start command reaches the device thread.
func (c *Client) SyncMailbox() *syncstart.Mailbox { return c.syncMailbox }

// SyncStart implements syncgroup.Member: it publishes the synchronized
// start point into this client's own sync-start mailbox and arms the
// requested directions' trigger bits. The device thread still gates actual
// mixing on the mailbox's timestamp each cycle, so a start requested for a
// future instant doesn't get mixed early just because the trigger is set.
func (c *Client) SyncStart(streams uint8, tstampNs int64) {
	bits := syncstart.StreamBit(streams)
	c.syncMailbox.Publish(syncstart.Snapshot{
		ActiveStreams:  bits,
		PlaybackTstamp: tstampNs,
		CaptureTstamp:  tstampNs,
	})
	if bits&syncstart.Playback != 0 {
		c.SetTrigger(TriggerPlayback, true)
	}
	if bits&syncstart.Capture != 0 {
		c.SetTrigger(TriggerCapture, true)
	}
}

// SyncStop implements syncgroup.Member: it clears the sync-start mailbox
// and the requested directions' trigger bits.
func (c *Client) SyncStop(streams uint8) {
	bits := syncstart.StreamBit(streams)
	c.syncMailbox.Publish(syncstart.Snapshot{})
	if bits&syncstart.Playback != 0 {
		c.SetTrigger(TriggerPlayback, false)
	}
	if bits&syncstart.Capture != 0 {
		c.SetTrigger(TriggerCapture, false)
	}
}

// Lock acquires the control-thread rw-lock for a control operation.
func (c *Client) Lock()   { c.rw.Lock() }
func (c *Client) Unlock() { c.rw.Unlock() }

// RLock acquires the device-engine read lock for status inspection.
func (c *Client) RLock()   { c.rw.RLock() }
func (c *Client) RUnlock() { c.rw.RUnlock() }

// TryLockSrv attempts to acquire the device thread's mixing lock for this
// client without blocking: a busy client is skipped for this cycle rather
// than stalling the whole device.
func (c *Client) TryLockSrv() bool { return c.srv.TryLock() }

// UnlockSrv releases the device thread's mixing lock.
func (c *Client) UnlockSrv() { c.srv.Unlock() }

// DeviceIndex returns the device this client is currently attached/reserved
// to, or -1 if none.
func (c *Client) DeviceIndex() int {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.deviceIndex
}

// SetDeviceIndex updates the device assignment and fires the route-change
// callback, if any.
func (c *Client) SetDeviceIndex(idx int) {
	c.rw.Lock()
	c.deviceIndex = idx
	cb := c.onRouteChange
	c.rw.Unlock()
	if cb != nil {
		cb(c, idx)
	}
}

// SetTrigger sets or clears bits in the trigger bitmap the device scheduler
// consults each cycle.
func (c *Client) SetTrigger(bits TriggerBit, on bool) {
	c.rw.Lock()
	defer c.rw.Unlock()
	if on {
		c.trigger |= bits
	} else {
		c.trigger &^= bits
	}
}

// Trigger returns the current trigger bitmap.
func (c *Client) Trigger() TriggerBit {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.trigger
}

// Retain/Release implement simple reference counting so a client object
// outlives the last in-flight device-thread cycle that touched it.
func (c *Client) Retain()  { atomicAdd(&c.refcount, 1) }
func (c *Client) Release() int32 { return atomicAdd(&c.refcount, -1) }

// Credentials returns the peer identity this client was opened with.
func (c *Client) Credentials() Credentials { return c.creds }

// SetLock records the exclusive-lock cookie assigned at LOCK time;
// the cookie is validated by the device thread on every notify.
func (c *Client) SetLock(cookie uint64) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.lockCookie = cookie
	c.locked = true
}

// ClearLock releases the exclusive lock.
func (c *Client) ClearLock() {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.locked = false
	c.lockCookie = 0
}

// Locked reports whether this client currently holds device exclusivity,
// and its cookie if so.
func (c *Client) Locked() (cookie uint64, ok bool) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.lockCookie, c.locked
}

// JoinSyncGroup/LeaveSyncGroup record sync-group membership;
// the registry itself owns the member list, this is just the client's
// back-pointer used to route SGCMD_START/STOP into the right mailbox.
func (c *Client) JoinSyncGroup(id uint32) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.syncGroupID = id
	c.inSyncGroup = true
}

func (c *Client) LeaveSyncGroup() {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.inSyncGroup = false
	c.syncGroupID = 0
}

func (c *Client) SyncGroup() (id uint32, ok bool) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.syncGroupID, c.inSyncGroup
}

// OnRouteChange installs the route-change callback.
func (c *Client) OnRouteChange(fn RouteChangeFunc) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.onRouteChange = fn
}

// OnError installs the fault callback.
func (c *Client) OnError(fn ErrorFunc) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.onError = fn
}

// NotifyError marks both stream directions and fires the fault callback.
// Called by the device thread outside any client lock, so a client faulting
// mid-cycle can't block the thread that's reporting the fault.
func (c *Client) NotifyError(err error) {
	c.rw.RLock()
	cb := c.onError
	c.rw.RUnlock()
	if c.Playback != nil {
		c.Playback.Error(err)
	}
	if c.Capture != nil {
		c.Capture.Error(err)
	}
	if cb != nil {
		cb(c, err)
	}
}
