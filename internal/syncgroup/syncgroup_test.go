package syncgroup

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recordingMember struct {
	starts []struct {
		streams uint8
		ts      int64
	}
	stops []uint8
}

func (m *recordingMember) SyncStart(streams uint8, ts int64) {
	m.starts = append(m.starts, struct {
		streams uint8
		ts      int64
	}{streams, ts})
}

func (m *recordingMember) SyncStop(streams uint8) {
	m.stops = append(m.stops, streams)
}

func fixedClock(ts int64) func() int64 {
	return func() int64 { return ts }
}

func TestCreateAssignsDistinctSlots(t *testing.T) {
	r := New(fixedClock(100))
	a, err := r.Create()
	require.NoError(t, err)
	b, err := r.Create()
	require.NoError(t, err)
	require.NotEqual(t, a.slot(), b.slot())
}

func TestStartBroadcastsCommonTimestampToAllMembers(t *testing.T) {
	r := New(fixedClock(424242))
	id, err := r.Create()
	require.NoError(t, err)

	m1, m2 := &recordingMember{}, &recordingMember{}
	require.NoError(t, r.Add(id, 1, m1))
	require.NoError(t, r.Add(id, 2, m2))

	ts, err := r.Start(id, 0x3)
	require.NoError(t, err)
	require.Equal(t, int64(424242), ts)
	require.Len(t, m1.starts, 1)
	require.Len(t, m2.starts, 1)
	require.Equal(t, uint8(0x3), m1.starts[0].streams)
	require.Equal(t, ts, m1.starts[0].ts)
	require.Equal(t, m1.starts[0].ts, m2.starts[0].ts)
}

func TestStopBroadcastsToRemainingMembersOnly(t *testing.T) {
	r := New(fixedClock(1))
	id, err := r.Create()
	require.NoError(t, err)
	m1, m2 := &recordingMember{}, &recordingMember{}
	require.NoError(t, r.Add(id, 1, m1))
	require.NoError(t, r.Add(id, 2, m2))
	require.NoError(t, r.Remove(id, 2))

	require.NoError(t, r.Stop(id, 0x1))
	require.Len(t, m1.stops, 1)
	require.Len(t, m2.stops, 0)
}

func TestDestroyedGroupIDCannotBeReused(t *testing.T) {
	r := New(fixedClock(1))
	id, err := r.Create()
	require.NoError(t, err)
	require.NoError(t, r.Destroy(id))
	_, err = r.Start(id, 0x1)
	require.Error(t, err)
}

// TestSlotReuseBumpsCounterSoStaleIDsAreRejected checks the low byte of a
// group ID (the slot; at most one group per slot) together with the
// counter half that guards against ABA reuse.
func TestSlotReuseBumpsCounterSoStaleIDsAreRejected(t *testing.T) {
	r := New(fixedClock(1))
	first, err := r.Create()
	require.NoError(t, err)
	require.NoError(t, r.Destroy(first))

	second, err := r.Create()
	require.NoError(t, err)
	require.Equal(t, first.slot(), second.slot())
	require.NotEqual(t, first, second)

	_, err = r.MemberCount(first)
	require.Error(t, err)
}

// TestAllocatedSlotsAreAlwaysUniqueAndInRange is a property test over
// random create/destroy sequences: at every point, live groups occupy
// distinct slots in [0, maxSlots).
func TestAllocatedSlotsAreAlwaysUniqueAndInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		r := New(fixedClock(1))
		live := make(map[ID]bool)

		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if len(live) > 0 && rapid.Bool().Draw(rt, "destroy") {
				var victim ID
				for id := range live {
					victim = id
					break
				}
				require.NoError(rt, r.Destroy(victim))
				delete(live, victim)
				continue
			}
			id, err := r.Create()
			if err != nil {
				continue // registry full; acceptable, just skip
			}
			live[id] = true
		}

		seen := make(map[uint8]bool)
		for id := range live {
			slot := id.slot()
			require.False(rt, seen[slot], "slot %d double-allocated", slot)
			seen[slot] = true
		}
	})
}
