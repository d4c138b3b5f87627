package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("INSTANCE_ID", "gw-test")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	req.Equal("8080", cfg.AppPort)
	req.Equal("gw-test", cfg.InstanceID)
	req.Equal("kv://127.0.0.1:6379/0", cfg.BrokerURL)
	req.Equal(cfg.BrokerURL, cfg.PresenceURL, "presence falls back to a kv broker url")
	req.Equal(60*time.Second, cfg.PresenceTTL)
	req.Equal(30*time.Second, cfg.HeartbeatInterval())
	req.Equal(120*time.Second, cfg.IdleTimeout())
	req.Equal(4096, cfg.MaxContentBytes)
}

func TestLoadConfig_Environment(t *testing.T) {
	req := require.New(t)
	t.Setenv("BROKER_URL", "nats://127.0.0.1:4222")
	t.Setenv("PRESENCE_TTL", "10s")
	t.Setenv("SEND_BUFFER", "not-a-number")
	t.Setenv("PRESENCE_URL", "")

	cfg := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	req.Equal("nats://127.0.0.1:4222", cfg.BrokerURL)
	req.Empty(cfg.PresenceURL, "a nats broker has no presence store to share")
	req.Equal(10*time.Second, cfg.PresenceTTL)
	req.Equal(256, cfg.SendBuffer)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("APP_PORT=9999\nJWT_SECRET=from-file\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("APP_PORT")
		os.Unsetenv("JWT_SECRET")
	})

	cfg := LoadConfig(path)
	require.Equal(t, "9999", cfg.AppPort)
	require.Equal(t, "from-file", cfg.JWTSecret)
}

func TestIsKVURL(t *testing.T) {
	require.True(t, IsKVURL("kv://localhost:6379"))
	require.True(t, IsKVURL("rediss://cache:6380/1"))
	require.False(t, IsKVURL("nats://localhost:4222"))
	require.False(t, IsKVURL("memory://"))
}
