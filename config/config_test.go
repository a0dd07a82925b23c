package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	require.Equal(t, time.Second, cfg.Heartbeat.Interval)
	require.Equal(t, 3, cfg.Heartbeat.FailFactor)
	require.Equal(t, 3*time.Second, cfg.FailAfter())
	require.Equal(t, 2*time.Second, cfg.Probe.Timeout)
	require.Equal(t, 256, cfg.Hub.MailboxSize)
	require.Equal(t, ".", cfg.Data.Dir)
	require.Equal(t, 3*time.Second, cfg.Client.RetryDelay)
	require.Empty(t, cfg.Client.Servers)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courier.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
heartbeat:
  interval: 500ms
  fail_factor: 5
data:
  dir: /var/lib/courier
client:
  servers:
    - 10.0.0.1:5001
    - 10.0.0.2:5001
  retry_delay: 1s
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 500*time.Millisecond, cfg.Heartbeat.Interval)
	require.Equal(t, 5, cfg.Heartbeat.FailFactor)
	require.Equal(t, 2500*time.Millisecond, cfg.FailAfter())
	require.Equal(t, "/var/lib/courier", cfg.Data.Dir)
	require.Equal(t, []string{"10.0.0.1:5001", "10.0.0.2:5001"}, cfg.Client.Servers)
	require.Equal(t, time.Second, cfg.Client.RetryDelay)

	// Untouched keys keep their defaults.
	require.Equal(t, 2*time.Second, cfg.Probe.Timeout)
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
