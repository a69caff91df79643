// Package config provides process-level configuration for the audio
// daemon: CLI flags for the daemon itself, plus an optional per-device
// profile loaded from a YAML file for the device/client data model a real
// deployment would carry.
package config

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/agalue/audiomuxd/internal/device"
)

// Config holds the daemon's process-level settings: how it listens, which
// devices it opens, and the defaults new streams negotiate against.
type Config struct {
	// ListenAddr is the control-socket bind address (external transport
	// is out of scope; this is carried so a real listener has somewhere
	// to read it from).
	ListenAddr string

	// ConfigFile, if set, points at a YAML device-profile file loaded
	// into DeviceProfiles.
	ConfigFile string

	// Devices lists the backend device names to open, in order; empty
	// means "open the platform default only".
	Devices []string

	DefaultMinLatency uint32
	DefaultMaxLatency uint32

	// RTPriority, when > 0, requests SCHED_FIFO at this priority for
	// each device I/O thread (internal/sched.SetThreadPriority).
	RTPriority int

	GlitchPolicy device.GlitchPolicy

	Verbose bool

	// DeviceProfiles is populated from ConfigFile when set; callers that
	// don't need a persisted device/client data model can leave it nil
	// and drive Devices/DefaultMinLatency/DefaultMaxLatency directly.
	DeviceProfiles []DeviceProfile
}

// DeviceProfile is one physical device's persisted configuration: the
// device/client data model a real daemon loads from disk rather than
// requiring on every CLI invocation. Nothing in internal/config or
// internal/device depends on this being populated.
type DeviceProfile struct {
	Name       string `yaml:"name"`
	Channels   int    `yaml:"channels"`
	Rate       int    `yaml:"rate"`
	MinLatency uint32 `yaml:"min_latency"`
	MaxLatency uint32 `yaml:"max_latency"`
	Glitch     string `yaml:"glitch_policy"`
}

// GlitchPolicy parses the profile's glitch_policy string the way
// ParseGlitchPolicy parses the CLI flag.
func (p DeviceProfile) GlitchPolicy() (device.GlitchPolicy, error) {
	return ParseGlitchPolicy(p.Glitch)
}

// ParseGlitchPolicy converts a flag/YAML value to a device.GlitchPolicy.
func ParseGlitchPolicy(s string) (device.GlitchPolicy, error) {
	switch s {
	case "", "off":
		return device.GlitchOff, nil
	case "on":
		return device.GlitchOn, nil
	case "latch":
		return device.GlitchLatch, nil
	case "auto":
		return device.GlitchAuto, nil
	default:
		return device.GlitchOff, fmt.Errorf("config: invalid glitch policy %q (want off|on|latch|auto)", s)
	}
}

func glitchPolicyString(p device.GlitchPolicy) string {
	switch p {
	case device.GlitchOn:
		return "on"
	case device.GlitchLatch:
		return "latch"
	case device.GlitchAuto:
		return "auto"
	default:
		return "off"
	}
}

// Default returns a Config with sensible defaults for a single default
// device, with latency bounds of 256..8192 frames.
func Default() *Config {
	return &Config{
		ListenAddr:        "unix:///run/audiomuxd/control.sock",
		DefaultMinLatency: 256,
		DefaultMaxLatency: 8192,
		RTPriority:        0,
		GlitchPolicy:      device.GlitchAuto,
	}
}

// ParseFlags parses os.Args[1:] into a Config, loading -config's YAML file
// (if given) into DeviceProfiles.
func ParseFlags() (*Config, error) {
	cfg := Default()

	flag.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "control-socket bind address")
	flag.StringVar(&cfg.ConfigFile, "config", "", "optional YAML file with per-device profiles")
	devices := flag.String("devices", "", "comma-separated back-end device names to open (empty = platform default)")
	minLatency := flag.Uint64("min-latency", uint64(cfg.DefaultMinLatency), "default minimum stream latency in frames")
	maxLatency := flag.Uint64("max-latency", uint64(cfg.DefaultMaxLatency), "default maximum stream latency in frames")
	flag.IntVar(&cfg.RTPriority, "rt-priority", cfg.RTPriority, "SCHED_FIFO priority for device I/O threads (0 = don't request realtime scheduling)")
	glitchStr := flag.String("glitch-policy", glitchPolicyString(cfg.GlitchPolicy), "underrun recovery policy: off, on, latch, auto")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "enable debug logging")

	flag.Parse()

	cfg.DefaultMinLatency = uint32(*minLatency)
	cfg.DefaultMaxLatency = uint32(*maxLatency)

	if *devices != "" {
		cfg.Devices = splitNonEmpty(*devices, ',')
	}

	policy, err := ParseGlitchPolicy(*glitchStr)
	if err != nil {
		return nil, err
	}
	cfg.GlitchPolicy = policy

	if cfg.ConfigFile != "" {
		profiles, err := loadDeviceProfiles(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.DeviceProfiles = profiles
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DefaultMinLatency == 0 || c.DefaultMaxLatency == 0 {
		return fmt.Errorf("config: min/max latency must be > 0")
	}
	if c.DefaultMinLatency > c.DefaultMaxLatency {
		return fmt.Errorf("config: min-latency (%d) exceeds max-latency (%d)", c.DefaultMinLatency, c.DefaultMaxLatency)
	}
	for _, p := range c.DeviceProfiles {
		if _, err := p.GlitchPolicy(); err != nil {
			return fmt.Errorf("config: device profile %q: %w", p.Name, err)
		}
	}
	return nil
}

func loadDeviceProfiles(path string) ([]DeviceProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc struct {
		Devices []DeviceProfile `yaml:"devices"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return doc.Devices, nil
}

func splitNonEmpty(s string, sep byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == sep {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

