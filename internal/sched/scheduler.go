// Package sched implements the device I/O scheduler (C7): the single
// cooperative wake/sleep/trigger loop that drives one device's periodic
// work, plus the real-time thread priority control the original daemon
// applies to its I/O and service threads (lib/daemon.c
// dspd_daemon_set_thread_nice).
package sched

import (
	"context"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/agalue/audiomuxd/internal/lock"
)

// Policy selects a POSIX scheduling policy for the calling OS thread,
// named the way the original daemon's config file spells them
// ("SCHED_FIFO" / "SCHED_RR" / "SCHED_OTHER").
type Policy int

const (
	PolicyOther Policy = iota
	PolicyFIFO
	PolicyRR
)

// SetThreadPriority locks the calling goroutine to its OS thread and
// applies policy at the given priority. Call from the goroutine that will
// run the device I/O loop, before entering Scheduler.Run. Priority is
// ignored for PolicyOther.
func SetThreadPriority(policy Policy, priority int) error {
	runtime.LockOSThread()
	if policy == PolicyOther {
		return unix.SchedSetscheduler(0, unix.SCHED_OTHER, &unix.SchedParam{})
	}
	p := unix.SCHED_FIFO
	if policy == PolicyRR {
		p = unix.SCHED_RR
	}
	return unix.SchedSetscheduler(0, p, &unix.SchedParam{Priority: int32(priority)})
}

// WakeSource identifies why one scheduler iteration ran, for callers that
// want to distinguish a timer wakeup from an explicit trigger.
type WakeSource int

const (
	WakeTimer WakeSource = iota
	WakeTrigger
	WakeStop
	WakeNotify
)

// Engine is the periodic work a Scheduler drives: a device's per-cycle
// mixing (internal/device.Device satisfies this).
type Engine interface {
	// RunCycle performs one iteration of playback/capture mixing and
	// returns the current buffer fill in frames, used to compute the next
	// sleep interval, and whether the device is idle (no attached
	// clients) so the scheduler can fall back to a long sleep.
	RunCycle(ctx context.Context) (fillFrames uint32, framesPerSec uint32, idle bool, err error)
}

// Scheduler runs one Engine's cooperative loop on a dedicated goroutine.
// Trigger wakes the loop early, e.g. after a control operation changes the
// trigger bitmap or posts to the sync-start mailbox.
type Scheduler struct {
	engine  Engine
	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}

	minSleep time.Duration
	maxSleep time.Duration

	onIdle func()
	onWake func(WakeSource)

	notifyMu    sync.Mutex
	notifyQueue *lock.Queue
}

// New builds a Scheduler for engine. minSleep/maxSleep bound the
// fill-to-sleep curve (default 1ms/500ms if zero).
func New(engine Engine, minSleep, maxSleep time.Duration) *Scheduler {
	if minSleep <= 0 {
		minSleep = time.Millisecond
	}
	if maxSleep <= 0 {
		maxSleep = 500 * time.Millisecond
	}
	return &Scheduler{
		engine:   engine,
		trigger:  make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		minSleep: minSleep,
		maxSleep: maxSleep,
	}
}

// OnWake installs an observer called once per loop iteration (tests and
// logging).
func (s *Scheduler) OnWake(fn func(WakeSource)) { s.onWake = fn }

// OnIdle installs an observer called whenever RunCycle reports the device
// idle, before the loop falls back to its longest sleep.
func (s *Scheduler) OnIdle(fn func()) { s.onIdle = fn }

// SetNotifyQueue installs (or clears, with nil) the exclusive client's
// low-latency notify queue as an extra wake source for Run's select, wired
// from the device's lock-change callback (C10's scheduler-facing half).
func (s *Scheduler) SetNotifyQueue(q *lock.Queue) {
	s.notifyMu.Lock()
	s.notifyQueue = q
	s.notifyMu.Unlock()
}

func (s *Scheduler) currentNotifyQueue() *lock.Queue {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	return s.notifyQueue
}

// Trigger wakes the scheduler early from the control thread. Non-blocking:
// a pending trigger coalesces.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop signals the loop to exit after its current cycle and blocks until
// it has: shutdown triggers the scheduler, and the device thread exits
// after running its destructor.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// Run is the scheduler's cooperative loop. It blocks until
// Stop is called or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		fill, rate, idle, err := s.engine.RunCycle(ctx)
		if err != nil {
			return err
		}

		sleep := s.maxSleep
		if idle {
			if s.onIdle != nil {
				s.onIdle()
			}
		} else {
			sleep = fillToSleep(fill, rate, s.minSleep, s.maxSleep)
		}

		nq := s.currentNotifyQueue()
		var notifyCh <-chan uint64
		if nq != nil {
			nq.Governor().Tick()
			if nq.Governor().Enabled() {
				notifyCh = nq.Channel()
			}
		}

		timer := time.NewTimer(sleep)
		var src WakeSource
		select {
		case <-s.stop:
			timer.Stop()
			return nil
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-s.trigger:
			timer.Stop()
			src = WakeTrigger
		case cookie := <-notifyCh:
			timer.Stop()
			if nq.Validate(cookie) {
				src = WakeNotify
			} else {
				src = WakeTimer
			}
		case <-timer.C:
			src = WakeTimer
		}
		if s.onWake != nil {
			s.onWake(src)
		}
	}
}

// fillToSleep implements the fill-to-sleep curve: <=1ms fill -> 1/3
// fill, middle -> interpolated, >=100ms fill -> 2/3 fill, capped at
// maxSleep.
func fillToSleep(fillFrames, framesPerSec uint32, minSleep, maxSleep time.Duration) time.Duration {
	if framesPerSec == 0 {
		return maxSleep
	}
	fillDur := time.Duration(float64(fillFrames) / float64(framesPerSec) * float64(time.Second))

	const lowMark = time.Millisecond
	const highMark = 100 * time.Millisecond

	var sleep time.Duration
	switch {
	case fillDur <= lowMark:
		sleep = fillDur / 3
	case fillDur >= highMark:
		sleep = (fillDur * 2) / 3
	default:
		// Linear interpolation between 1/3 at lowMark and 2/3 at highMark.
		frac := float64(fillDur-lowMark) / float64(highMark-lowMark)
		ratio := 1.0/3.0 + frac*(2.0/3.0-1.0/3.0)
		sleep = time.Duration(float64(fillDur) * ratio)
	}
	if sleep < minSleep {
		sleep = minSleep
	}
	if sleep > maxSleep {
		sleep = maxSleep
	}
	return sleep
}
