package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, "memory", cfg.Storage.Type)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen_addr: ":9000"
log_level: debug
tick_interval: 250ms
storage:
  type: badger
  path: /var/lib/nodeflow
openai:
  model: gpt-4o
`), 0o644))

	t.Setenv("LISTEN_ADDR", ":9100")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, "badger", cfg.Storage.Type)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero tick", func(c *Config) { c.TickInterval = 0 }, "tick_interval"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "floppy" }, "unknown storage type"},
		{"badger without path", func(c *Config) { c.Storage.Type = "badger" }, "path is required"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "invalid log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_BadTickIntervalEnv(t *testing.T) {
	t.Setenv("TICK_INTERVAL", "soon")

	_, err := Load("")

	assert.ErrorContains(t, err, "TICK_INTERVAL")
}
