package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 64, cfg.Broker.QueueSize)
	assert.Equal(t, 2*time.Second, cfg.Broker.DeliveryTimeout)
	assert.Equal(t, 256, cfg.Watch.MaxWatchers)
	assert.Empty(t, cfg.Metrics.Addr)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "burrow.yaml")
	data := `
log:
  level: debug
  json: true
broker:
  queue_size: 128
  delivery_timeout: 500ms
  pid: 42
arena:
  max_bytes: 1048576
watch:
  ignore_hidden: true
metrics:
  addr: 127.0.0.1:9090
watches:
  - path: /srv/data
    recursive: true
    events: [create, delete]
  - path: /etc
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, log.Config{Level: log.DebugLevel, JSONOutput: true}, cfg.LogSettings())
	assert.Equal(t, 1048576, cfg.Arena.MaxBytes)
	assert.Equal(t, "127.0.0.1:9090", cfg.Metrics.Addr)

	bc := cfg.BrokerSettings()
	assert.Equal(t, types.PID(42), bc.PID)
	assert.Equal(t, 128, bc.QueueSize)
	assert.Equal(t, 500*time.Millisecond, bc.DeliveryTimeout)
	assert.Equal(t, 256, bc.Watch.MaxWatchers, "unset keys keep their defaults")
	assert.True(t, bc.Watch.IgnoreHidden)

	require.Len(t, cfg.Watches, 2)
	mask, err := cfg.Watches[0].Mask()
	require.NoError(t, err)
	assert.Equal(t, types.EventCreate|types.EventDelete, mask)
	mask, err = cfg.Watches[1].Mask()
	require.NoError(t, err)
	assert.Equal(t, types.EventAll, mask)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "log: [unterminated"},
		{"bad level", "log:\n  level: loud\n"},
		{"negative queue", "broker:\n  queue_size: -1\n"},
		{"negative timeout", "broker:\n  delivery_timeout: -1s\n"},
		{"negative arena", "arena:\n  max_bytes: -5\n"},
		{"negative watchers", "watch:\n  max_watchers: -1\n"},
		{"watch without path", "watches:\n  - recursive: true\n"},
		{"relative watch path", "watches:\n  - path: data\n"},
		{"unknown event", "watches:\n  - path: /data\n    events: [explode]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
