package localstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/backend/internal/pomodoro"
)

func TestLoadMissingFileUsesFallback(t *testing.T) {
	store := New(filepath.Join(t.TempDir(), "timer.toml"))

	state, found, err := store.Load(pomodoro.DefaultConfig())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, pomodoro.DefaultConfig(), state.Config)
	assert.Empty(t, state.Snapshot.History)
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "timer.toml")
	store := New(path)
	completedAt := time.Date(2026, 3, 2, 9, 25, 0, 0, time.UTC)

	saved := State{
		Config: pomodoro.Config{WorkMinutes: 30, ShortBreakMinutes: 6, LongBreakMinutes: 20, SessionsBeforeLongBreak: 3},
		Snapshot: pomodoro.Snapshot{
			SessionType:           pomodoro.ShortBreak,
			SessionMinutes:        6,
			SecondsRemaining:      200,
			CompletedWorkSessions: 1,
			History: []pomodoro.CompletedSession{
				{ID: "a", Type: pomodoro.Work, DurationMinutes: 30, CompletedAt: completedAt},
			},
		},
		SavedAt: completedAt.Add(time.Minute),
	}
	require.NoError(t, store.Save(saved))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "work_minutes = 30")
	assert.Contains(t, string(raw), "[[history]]")

	loaded, found, err := store.Load(pomodoro.DefaultConfig())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, saved.Config, loaded.Config)
	assert.Equal(t, saved.Snapshot.SessionType, loaded.Snapshot.SessionType)
	assert.Equal(t, 200, loaded.Snapshot.SecondsRemaining)
	require.Len(t, loaded.Snapshot.History, 1)
	assert.True(t, completedAt.Equal(loaded.Snapshot.History[0].CompletedAt))
	assert.Equal(t, pomodoro.Work, loaded.Snapshot.History[0].Type)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"version": "version = 7\n",
		"config":  "version = 1\n[config]\nwork_minutes = 0\nshort_break_minutes = 5\nlong_break_minutes = 15\nsessions_before_long_break = 4\n",
		"session": "version = 1\n[config]\nwork_minutes = 25\nshort_break_minutes = 5\nlong_break_minutes = 15\nsessions_before_long_break = 4\n[current]\nsession_type = \"nap\"\n",
		"syntax":  "version = = 1",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".toml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, _, err := New(path).Load(pomodoro.DefaultConfig())
			assert.Error(t, err)
		})
	}

	_, _, err := New(filepath.Join(dir, "version.toml")).Load(pomodoro.DefaultConfig())
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}
