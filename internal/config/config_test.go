package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nostr-relaypool/internal/types"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "file", cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.EmitGrace)
	assert.Equal(t, 256, cfg.SinkBuffer)
	assert.Zero(t, cfg.LedgerSize)
	assert.False(t, cfg.Reconnect)
	assert.Len(t, cfg.PoolOptions(), 6)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RELAYPOOL_STORE", "memory")
	t.Setenv("RELAYPOOL_SHUTDOWN_TIMEOUT", "250ms")
	t.Setenv("RELAYPOOL_LEDGER_SIZE", "1000")
	t.Setenv("RELAYPOOL_RECONNECT", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, 250*time.Millisecond, cfg.ShutdownTimeout)
	assert.Equal(t, 1000, cfg.LedgerSize)
	assert.True(t, cfg.Reconnect)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Len(t, cfg.PoolOptions(), 7)
	assert.Equal(t, "memory", cfg.StoreOptions().Backend)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown store", map[string]string{"RELAYPOOL_STORE": "sqlite"}},
		{"redis without url", map[string]string{"RELAYPOOL_STORE": "redis"}},
		{"zero shutdown timeout", map[string]string{"RELAYPOOL_SHUTDOWN_TIMEOUT": "0s"}},
		{"bad duration", map[string]string{"RELAYPOOL_EMIT_GRACE": "soon"}},
		{"negative ledger", map[string]string{"RELAYPOOL_LEDGER_SIZE": "-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, err := Load()
			if err == nil {
				err = cfg.Validate()
			}
			assert.Error(t, err)
		})
	}
}

func TestLoadRelays(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relays.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"defaultRelays": ["wss://a.example.com", "wss://b.example.com"],
		"publishRelays": ["wss://b.example.com", "wss://c.example.com"]
	}`), 0o644))

	rc := LoadRelays(path)
	assert.Equal(t, []types.RelayEndpoint{
		{URL: "wss://a.example.com", Read: true},
		{URL: "wss://b.example.com", Read: true, Write: true},
		{URL: "wss://c.example.com", Write: true},
	}, rc.Endpoints())
}

func TestLoadRelaysFallsBack(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, DefaultRelaysConfig(), LoadRelays(filepath.Join(dir, "missing.json")))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	assert.Equal(t, DefaultRelaysConfig(), LoadRelays(bad))

	partial := filepath.Join(dir, "partial.json")
	require.NoError(t, os.WriteFile(partial, []byte(`{"defaultRelays":["wss://only.example.com"]}`), 0o644))
	rc := LoadRelays(partial)
	assert.Equal(t, []string{"wss://only.example.com"}, rc.DefaultRelays)
	assert.Equal(t, DefaultRelaysConfig().PublishRelays, rc.PublishRelays)
}
