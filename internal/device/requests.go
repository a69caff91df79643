package device

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/agalue/audiomuxd/internal/client"
	"github.com/agalue/audiomuxd/internal/dispatch"
	"github.com/agalue/audiomuxd/internal/pcmerr"
	"github.com/agalue/audiomuxd/internal/syncgroup"
)

// Request numbers for the control operations a device exposes through its
// dispatch table (§4.5's "uniform operation surface", §4.11).
const (
	ReqLock uint32 = iota + 1
	ReqUnlock
	ReqSetVolume
	ReqSetTrigger
	ReqGetStatus
	ReqSyncGroupCreate
	ReqSyncGroupDestroy
	ReqSyncGroupJoin
	ReqSyncGroupLeave
	ReqSyncGroupStart
	ReqSyncGroupStop
)

// clientAt returns the attached client in attach-table slot, or false if
// the slot is out of range or empty.
func (d *Device) clientAt(slot int) (*client.Client, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || slot >= len(d.clients) || d.clients[slot].client == nil {
		return nil, false
	}
	return d.clients[slot].client, true
}

// BuildDispatchTable assembles this device's request handler table,
// binding the operations clients actually invoke (lock/unlock, volume,
// trigger, status, sync-group membership) to its attach table, exclusive
// lock and sync-group registry.
func (d *Device) BuildDispatchTable() *dispatch.Table {
	t := dispatch.NewTable()
	t.Fallthrough = dispatch.DefaultIOCtlFallthrough

	t.Register(dispatch.Entry{Request: ReqLock, RequiredInBufSize: 4, RequiredOutBufSize: 8, Handler: d.handleLock})
	t.Register(dispatch.Entry{Request: ReqUnlock, RequiredInBufSize: 4, Handler: d.handleUnlock})
	t.Register(dispatch.Entry{Request: ReqSetVolume, RequiredInBufSize: 9, Handler: d.handleSetVolume})
	t.Register(dispatch.Entry{Request: ReqSetTrigger, RequiredInBufSize: 6, Handler: d.handleSetTrigger})
	t.Register(dispatch.Entry{Request: ReqGetStatus, RequiredInBufSize: 5, RequiredOutBufSize: 16, Handler: d.handleGetStatus})
	t.Register(dispatch.Entry{Request: ReqSyncGroupCreate, RequiredOutBufSize: 4, Handler: d.handleSyncGroupCreate})
	t.Register(dispatch.Entry{Request: ReqSyncGroupDestroy, RequiredInBufSize: 4, Handler: d.handleSyncGroupDestroy})
	t.Register(dispatch.Entry{Request: ReqSyncGroupJoin, RequiredInBufSize: 8, Handler: d.handleSyncGroupJoin})
	t.Register(dispatch.Entry{Request: ReqSyncGroupLeave, RequiredInBufSize: 8, Handler: d.handleSyncGroupLeave})
	t.Register(dispatch.Entry{Request: ReqSyncGroupStart, RequiredInBufSize: 5, RequiredOutBufSize: 8, Handler: d.handleSyncGroupStart})
	t.Register(dispatch.Entry{Request: ReqSyncGroupStop, RequiredInBufSize: 5, Handler: d.handleSyncGroupStop})

	return t
}

// handleLock wraps Lock: in = client slot (4 bytes LE); out = cookie
// (8 bytes LE).
func (d *Device) handleLock(_ dispatch.Rctx, in, out []byte) (int, error) {
	slot := int(binary.LittleEndian.Uint32(in[0:4]))
	c, ok := d.clientAt(slot)
	if !ok {
		return 0, fmt.Errorf("device: no client at slot %d: %w", slot, pcmerr.ErrInval)
	}
	cookie, _, err := d.Lock(c.Index)
	if err != nil {
		return 0, err
	}
	c.SetLock(cookie)
	binary.LittleEndian.PutUint64(out[0:8], cookie)
	return 8, nil
}

// handleUnlock wraps Unlock: in = client slot (4 bytes LE).
func (d *Device) handleUnlock(_ dispatch.Rctx, in, _ []byte) (int, error) {
	slot := int(binary.LittleEndian.Uint32(in[0:4]))
	c, ok := d.clientAt(slot)
	if !ok {
		return 0, fmt.Errorf("device: no client at slot %d: %w", slot, pcmerr.ErrInval)
	}
	if err := d.Unlock(c.Index); err != nil {
		return 0, err
	}
	c.ClearLock()
	return 0, nil
}

// handleSetVolume: in = client slot (4), direction (1: 0=playback,
// 1=capture), linear gain as float32 bits (4).
func (d *Device) handleSetVolume(_ dispatch.Rctx, in, _ []byte) (int, error) {
	slot := int(binary.LittleEndian.Uint32(in[0:4]))
	dir := in[4]
	vol := math.Float32frombits(binary.LittleEndian.Uint32(in[5:9]))

	c, ok := d.clientAt(slot)
	if !ok {
		return 0, fmt.Errorf("device: no client at slot %d: %w", slot, pcmerr.ErrInval)
	}
	switch dir {
	case 0:
		if c.Playback == nil {
			return 0, pcmerr.ErrInval
		}
		c.Playback.SetVolume(vol)
	case 1:
		if c.Capture == nil {
			return 0, pcmerr.ErrInval
		}
		c.Capture.SetVolume(vol)
	default:
		return 0, pcmerr.ErrInval
	}
	return 0, nil
}

// handleSetTrigger: in = client slot (4), trigger bits (1), on/off (1).
func (d *Device) handleSetTrigger(_ dispatch.Rctx, in, _ []byte) (int, error) {
	slot := int(binary.LittleEndian.Uint32(in[0:4]))
	bits := client.TriggerBit(in[4])
	on := in[5] != 0

	c, ok := d.clientAt(slot)
	if !ok {
		return 0, fmt.Errorf("device: no client at slot %d: %w", slot, pcmerr.ErrInval)
	}
	c.SetTrigger(bits, on)
	return 0, nil
}

// handleGetStatus: in = client slot (4), direction (1); out = appl_ptr (8),
// start_count (4), min_latency (4).
func (d *Device) handleGetStatus(_ dispatch.Rctx, in, out []byte) (int, error) {
	slot := int(binary.LittleEndian.Uint32(in[0:4]))
	dir := in[4]

	c, ok := d.clientAt(slot)
	if !ok {
		return 0, fmt.Errorf("device: no client at slot %d: %w", slot, pcmerr.ErrInval)
	}

	var applPtr uint64
	var startCount, minLatency uint32
	var errAgain bool
	switch dir {
	case 0:
		if c.Playback == nil {
			return 0, pcmerr.ErrInval
		}
		applPtr, startCount, minLatency, errAgain = c.Playback.GetPlaybackStatus()
	case 1:
		if c.Capture == nil {
			return 0, pcmerr.ErrInval
		}
		applPtr, startCount, minLatency, errAgain = c.Capture.GetCaptureStatus()
	default:
		return 0, pcmerr.ErrInval
	}
	if errAgain {
		return 0, pcmerr.ErrAgain
	}

	binary.LittleEndian.PutUint64(out[0:8], applPtr)
	binary.LittleEndian.PutUint32(out[8:12], startCount)
	binary.LittleEndian.PutUint32(out[12:16], minLatency)
	return 16, nil
}

func (d *Device) handleSyncGroupCreate(_ dispatch.Rctx, _ []byte, out []byte) (int, error) {
	id, err := d.syncGroups.Create()
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint32(out[0:4], uint32(id))
	return 4, nil
}

func (d *Device) handleSyncGroupDestroy(_ dispatch.Rctx, in, _ []byte) (int, error) {
	id := syncgroup.ID(binary.LittleEndian.Uint32(in[0:4]))
	return 0, d.syncGroups.Destroy(id)
}

// handleSyncGroupJoin: in = group id (4), client slot (4).
func (d *Device) handleSyncGroupJoin(_ dispatch.Rctx, in, _ []byte) (int, error) {
	id := syncgroup.ID(binary.LittleEndian.Uint32(in[0:4]))
	slot := int(binary.LittleEndian.Uint32(in[4:8]))
	c, ok := d.clientAt(slot)
	if !ok {
		return 0, fmt.Errorf("device: no client at slot %d: %w", slot, pcmerr.ErrInval)
	}
	if err := d.syncGroups.Add(id, c.Index, c); err != nil {
		return 0, err
	}
	c.JoinSyncGroup(uint32(id))
	return 0, nil
}

func (d *Device) handleSyncGroupLeave(_ dispatch.Rctx, in, _ []byte) (int, error) {
	id := syncgroup.ID(binary.LittleEndian.Uint32(in[0:4]))
	slot := int(binary.LittleEndian.Uint32(in[4:8]))
	c, ok := d.clientAt(slot)
	if !ok {
		return 0, fmt.Errorf("device: no client at slot %d: %w", slot, pcmerr.ErrInval)
	}
	if err := d.syncGroups.Remove(id, c.Index); err != nil {
		return 0, err
	}
	c.LeaveSyncGroup()
	return 0, nil
}

// handleSyncGroupStart: in = group id (4), stream bits (1); out = the
// shared start timestamp (8 bytes LE).
func (d *Device) handleSyncGroupStart(_ dispatch.Rctx, in, out []byte) (int, error) {
	id := syncgroup.ID(binary.LittleEndian.Uint32(in[0:4]))
	streams := in[4]
	ts, err := d.syncGroups.Start(id, streams)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint64(out[0:8], uint64(ts))
	return 8, nil
}

func (d *Device) handleSyncGroupStop(_ dispatch.Rctx, in, _ []byte) (int, error) {
	id := syncgroup.ID(binary.LittleEndian.Uint32(in[0:4]))
	streams := in[4]
	return 0, d.syncGroups.Stop(id, streams)
}
