package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadMergesCoralEnvVars(t *testing.T) {
	t.Setenv("CORAL_PLATFORM", "jetson")
	t.Setenv("CORAL_STREAM_MANAGER_QUEUE_TIMEOUT", "2.5")
	t.Setenv("CORAL_ENABLE_WEBRTC_PATCH", "true")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	d, err := Load(fs, nil, false)
	require.NoError(t, err)

	require.Equal(t, "jetson", d.Platform)
	require.Equal(t, 2500*time.Millisecond, d.Tunables.QueueTimeout)
	require.True(t, d.Tunables.QueueTimeout > 0)
	require.True(t, d.EnableWebRTCPatch)
}

func TestLoadNoEnvFlagDisablesEnvMerge(t *testing.T) {
	t.Setenv("CORAL_PLATFORM", "jetson")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	d, err := Load(fs, []string{"--no-env"}, false)
	require.NoError(t, err)
	require.Equal(t, DefaultDescriptor().Platform, d.Platform)
}

func TestLoadSetOverridesEnv(t *testing.T) {
	t.Setenv("CORAL_PLATFORM", "jetson")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	d, err := Load(fs, []string{"--set", "platform=rockchip"}, false)
	require.NoError(t, err)
	require.Equal(t, "rockchip", d.Platform)
}
