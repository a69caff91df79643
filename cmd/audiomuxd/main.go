// audiomuxd is a userspace audio multiplexing daemon: it owns one or more
// PCM devices and mixes many concurrent client streams onto them, with
// per-client rate conversion, volume, and synchronized start/stop.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/agalue/audiomuxd/internal/config"
	"github.com/agalue/audiomuxd/internal/device"
	"github.com/agalue/audiomuxd/internal/dispatch"
	"github.com/agalue/audiomuxd/internal/logging"
	"github.com/agalue/audiomuxd/internal/pcmdriver"
	"github.com/agalue/audiomuxd/internal/pcmdriver/malgobackend"
	"github.com/agalue/audiomuxd/internal/sched"
	"github.com/agalue/audiomuxd/internal/stream"
)

// deviceUnit bundles one opened device with the scheduler driving it and
// the control-request table a transport would dispatch client calls through.
type deviceUnit struct {
	dev   *device.Device
	sch   *sched.Scheduler
	table *dispatch.Table
}

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := logging.New("audiomuxd", cfg.Verbose)
	logger.Infof("🔊 audiomuxd starting, listen=%s", cfg.ListenAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatalf("failed to initialize audio context: %v", err)
	}
	defer malgoCtx.Uninit() //nolint:errcheck

	units, err := openDevices(cfg, malgoCtx, logger)
	if err != nil {
		log.Fatalf("failed to open devices: %v", err)
	}
	if len(units) == 0 {
		log.Fatalf("no devices opened")
	}

	var wg sync.WaitGroup
	for i, u := range units {
		wg.Add(1)
		go func(idx int, unit deviceUnit) {
			defer wg.Done()
			if cfg.RTPriority > 0 {
				if err := sched.SetThreadPriority(sched.PolicyFIFO, cfg.RTPriority); err != nil {
					logger.Warnf("device %d: RT priority unavailable, staying SCHED_OTHER: %v", idx, err)
				}
			}
			if err := unit.sch.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Errorf("device %d scheduler exited: %v", idx, err)
			}
		}(i, u)
	}

	logger.Infof("✅ %d device(s) running, Ctrl+C to quit", len(units))

	<-sigChan
	logger.Infof("🛑 shutting down...")
	cancel()
	for _, u := range units {
		u.sch.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Infof("✅ shutdown complete")
	case <-time.After(5 * time.Second):
		logger.Warnf("⚠️ shutdown timeout, forcing exit")
	}

	for i, u := range units {
		if err := closeDevice(u.dev); err != nil {
			logger.Errorf("device %d close: %v", i, err)
		}
	}
}

// openDevices builds one device.Device + sched.Scheduler pair per entry in
// cfg.Devices (or a single platform-default pair when empty), each backed
// by a malgo playback and capture stream.
func openDevices(cfg *config.Config, malgoCtx *malgo.AllocatedContext, logger logging.Logger) ([]deviceUnit, error) {
	names := cfg.Devices
	if len(names) == 0 {
		names = []string{""}
	}

	channels := 2
	rate := 48000

	var units []deviceUnit
	for idx, name := range names {
		pbParams := pcmdriver.Params{
			Format: stream.FormatFloat32LE, Channels: channels, Rate: rate,
			BufferSize: cfg.DefaultMaxLatency, FragSize: cfg.DefaultMaxLatency / 4,
			MinLatency: cfg.DefaultMinLatency, MaxLatency: cfg.DefaultMaxLatency,
			Name: name,
		}
		playback, err := malgobackend.New(malgoCtx, malgobackend.Playback, pbParams, name)
		if err != nil {
			return nil, err
		}

		capParams := pbParams
		capture, err := malgobackend.New(malgoCtx, malgobackend.Capture, capParams, name)
		if err != nil {
			playback.Close() //nolint:errcheck
			return nil, err
		}

		dev := device.New(idx, playback, capture, channels, rate, cfg.DefaultMinLatency, cfg.DefaultMaxLatency)
		dev.SetGlitchPolicy(cfg.GlitchPolicy)

		sc := sched.New(dev, time.Millisecond, 100*time.Millisecond)
		sc.OnWake(func(src sched.WakeSource) {
			if src == sched.WakeTrigger {
				logger.Debugf("device %d woke on client trigger", idx)
			} else if src == sched.WakeNotify {
				logger.Debugf("device %d woke on lock notify", idx)
			}
		})
		dev.OnLockChange(sc.SetNotifyQueue)

		table := dev.BuildDispatchTable()
		logger.Debugf("device %d: %d control requests registered", idx, table.Len())

		units = append(units, deviceUnit{dev: dev, sch: sc, table: table})
	}

	return units, nil
}

func closeDevice(d *device.Device) error {
	return d.Close()
}
