package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/backend/internal/pomodoro"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 72*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSOrigins)
	assert.Equal(t, pomodoro.DefaultConfig(), cfg.Pomodoro)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_PATH", "/tmp/ff.db")
	t.Setenv("TOKEN_TTL_HOURS", "2")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("POMODORO_WORK_MINUTES", "50")
	t.Setenv("POMODORO_SESSIONS_BEFORE_LONG_BREAK", "2")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "/tmp/ff.db", cfg.DBPath)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 50, cfg.Pomodoro.WorkMinutes)
	assert.Equal(t, 2, cfg.Pomodoro.SessionsBeforeLongBreak)
	assert.Equal(t, pomodoro.DefaultShortBreakMinutes, cfg.Pomodoro.ShortBreakMinutes)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "focusflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "7000"
cors_origins:
  - https://app.example
pomodoro:
  work_minutes: 45
  short_break_minutes: 10
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7000", cfg.Port)
	assert.Equal(t, []string{"https://app.example"}, cfg.CORSOrigins)
	assert.Equal(t, 45, cfg.Pomodoro.WorkMinutes)
	assert.Equal(t, 10, cfg.Pomodoro.ShortBreakMinutes)
	assert.Equal(t, pomodoro.DefaultLongBreakMinutes, cfg.Pomodoro.LongBreakMinutes)
}

func TestLoadRejectsInvalidPomodoro(t *testing.T) {
	t.Setenv("POMODORO_LONG_BREAK_MINUTES", "-5")

	_, err := Load("")
	require.Error(t, err)
	assert.ErrorIs(t, err, pomodoro.ErrInvalidConfig)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "focusflow.yaml")
	require.NoError(t, WriteDefault(path, false))
	require.Error(t, WriteDefault(path, false))
	require.NoError(t, WriteDefault(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, pomodoro.DefaultConfig(), cfg.Pomodoro)
	assert.Equal(t, "./migrations", cfg.MigrationsDir)
}
