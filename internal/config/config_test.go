package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agalue/audiomuxd/internal/device"
	"github.com/stretchr/testify/require"
)

func TestParseGlitchPolicyRoundTrip(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want device.GlitchPolicy
	}{
		{"", device.GlitchOff},
		{"off", device.GlitchOff},
		{"on", device.GlitchOn},
		{"latch", device.GlitchLatch},
		{"auto", device.GlitchAuto},
	} {
		got, err := ParseGlitchPolicy(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := ParseGlitchPolicy("bogus")
	require.Error(t, err)
}

func TestGlitchPolicyStringRoundTripsThroughParse(t *testing.T) {
	for _, p := range []device.GlitchPolicy{device.GlitchOff, device.GlitchOn, device.GlitchLatch, device.GlitchAuto} {
		got, err := ParseGlitchPolicy(glitchPolicyString(p))
		require.NoError(t, err)
		require.Equal(t, p, got)
	}
}

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().validate())
}

func TestValidateRejectsInvertedLatencyBounds(t *testing.T) {
	cfg := Default()
	cfg.DefaultMinLatency = 8192
	cfg.DefaultMaxLatency = 256
	require.Error(t, cfg.validate())
}

func TestLoadDeviceProfilesFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "devices.yaml")
	const doc = `
devices:
  - name: hw:0
    channels: 2
    rate: 48000
    min_latency: 256
    max_latency: 8192
    glitch_policy: auto
  - name: hw:1
    channels: 1
    rate: 16000
    min_latency: 128
    max_latency: 4096
    glitch_policy: latch
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	profiles, err := loadDeviceProfiles(path)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	require.Equal(t, "hw:0", profiles[0].Name)
	require.Equal(t, 2, profiles[0].Channels)
	policy, err := profiles[1].GlitchPolicy()
	require.NoError(t, err)
	require.Equal(t, device.GlitchLatch, policy)
}

func TestValidateRejectsBadProfileGlitchPolicy(t *testing.T) {
	cfg := Default()
	cfg.DeviceProfiles = []DeviceProfile{{Name: "x", Glitch: "nonsense"}}
	require.Error(t, cfg.validate())
}

func TestSplitNonEmptyIgnoresEmptyFields(t *testing.T) {
	require.Equal(t, []string{"a", "b"}, splitNonEmpty("a,,b,", ','))
	require.Nil(t, splitNonEmpty("", ','))
}
