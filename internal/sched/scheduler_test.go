package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	cycles atomic.Int32
	fill   uint32
	rate   uint32
	idle   bool
}

func (e *fakeEngine) RunCycle(ctx context.Context) (uint32, uint32, bool, error) {
	e.cycles.Add(1)
	return e.fill, e.rate, e.idle, nil
}

func TestSchedulerRunsCyclesUntilStopped(t *testing.T) {
	eng := &fakeEngine{fill: 48, rate: 48000} // 1ms fill -> fast loop
	s := New(eng, time.Millisecond, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	time.Sleep(30 * time.Millisecond)
	s.Stop()
	require.Greater(t, eng.cycles.Load(), int32(1))
}

func TestTriggerWakesLoopEarly(t *testing.T) {
	eng := &fakeEngine{fill: 48000, rate: 48000, idle: false} // ~1s fill -> long sleep
	s := New(eng, time.Millisecond, 2*time.Second)

	woke := make(chan WakeSource, 4)
	s.OnWake(func(src WakeSource) { woke <- src })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	// Let the first cycle run and enter its long sleep.
	time.Sleep(20 * time.Millisecond)
	s.Trigger()

	select {
	case src := <-woke:
		require.Equal(t, WakeTrigger, src)
	case <-time.After(time.Second):
		t.Fatal("trigger did not wake scheduler")
	}
	s.Stop()
}

func TestFillToSleepMonotonicRegions(t *testing.T) {
	low := fillToSleep(10, 48000, time.Microsecond, time.Second) // <=1ms fill
	mid := fillToSleep(48000/20, 48000, time.Microsecond, time.Second) // 50ms fill
	high := fillToSleep(48000, 48000, time.Microsecond, time.Second) // 1s fill -> 2/3 s, under the 1s cap

	require.Less(t, low, mid)
	require.LessOrEqual(t, high, time.Second)
}
