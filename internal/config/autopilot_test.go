package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "autopilot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Overlay(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
tick_interval: 20ms
paths:
  dir: /var/lib/autopilot
follower:
  reach_radius: 1.5
archive:
  driver: pgx
  dsn: postgres://u:p@localhost/autopilot
http:
  port: 9000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 20*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, "/var/lib/autopilot", cfg.Paths.Dir)
	assert.Equal(t, 1.5, cfg.Follower.ReachRadius)
	// Незаданные ключи сохраняют значения по умолчанию
	assert.Equal(t, 300*time.Millisecond, cfg.Follower.StepInterval)
	assert.Equal(t, "pgx", cfg.Archive.Driver)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr())
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "tick_interval: [oops"))
	require.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"zero tick", "tick_interval: 0s"},
		{"negative radius", "follower:\n  reach_radius: -1"},
		{"unknown driver", "archive:\n  driver: mysql"},
		{"driver without dsn", "archive:\n  driver: sqlite\n  dsn: \"\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestArchiveDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, "archive:\n  driver: \"\"\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Archive.Enabled())
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv(EnvPath, "")
	assert.Equal(t, DefaultPath, PathFromEnv())

	t.Setenv(EnvPath, "/etc/autopilot.yaml")
	assert.Equal(t, "/etc/autopilot.yaml", PathFromEnv())
}
