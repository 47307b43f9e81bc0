package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/backend/internal/db"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/pomodoro"
	"focusflow/backend/internal/repository"
)

func openRepos(t *testing.T) (*repository.UserRepository, *repository.PomodoroRepository, func(query string, args ...any) error) {
	t.Helper()
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), database, filepath.Join("..", "..", "migrations")))

	exec := func(query string, args ...any) error {
		_, err := database.Exec(query, args...)
		return err
	}
	return repository.NewUserRepository(database), repository.NewPomodoroRepository(database), exec
}

func createUser(t *testing.T, users *repository.UserRepository, id, email string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, users.Create(context.Background(), &model.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
}

func TestUserRepositoryDuplicateEmail(t *testing.T) {
	users, _, _ := openRepos(t)
	createUser(t, users, "u1", "a@example.com")

	now := time.Now().UTC()
	err := users.Create(context.Background(), &model.User{ID: "u2", Email: "a@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, repository.ErrDuplicateEmail)

	got, err := users.GetByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	_, err = users.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestInitialStateAndSettings(t *testing.T) {
	users, repo, _ := openRepos(t)
	createUser(t, users, "u1", "a@example.com")
	ctx := context.Background()

	cfg := pomodoro.Config{WorkMinutes: 30, ShortBreakMinutes: 5, LongBreakMinutes: 20, SessionsBeforeLongBreak: 3}
	require.NoError(t, repo.CreateInitialState(ctx, "u1", cfg))

	settings, err := repo.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, cfg, settings.Config())

	state, err := repo.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, pomodoro.Work, state.SessionType)
	assert.Equal(t, 1800, state.SecondsRemaining)
	assert.Equal(t, 30, state.SessionMinutes)
	assert.Equal(t, 1, state.Version)
	assert.False(t, state.Running)

	_, err = repo.GetState(ctx, "nobody")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	cfg.WorkMinutes = 50
	require.NoError(t, repo.SaveSettings(ctx, model.SettingsFromConfig("u1", cfg, time.Now())))
	settings, err = repo.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, settings.WorkMinutes)
}

func TestRecordCompletionAppendsHistory(t *testing.T) {
	users, repo, exec := openRepos(t)
	createUser(t, users, "u1", "a@example.com")
	createUser(t, users, "u2", "b@example.com")
	ctx := context.Background()
	require.NoError(t, repo.CreateInitialState(ctx, "u1", pomodoro.DefaultConfig()))

	base := time.Date(2026, 5, 6, 8, 0, 0, 0, time.UTC)
	types := []pomodoro.SessionType{pomodoro.Work, pomodoro.ShortBreak, pomodoro.Work}
	for i, typ := range types {
		session := model.PomodoroSession{
			ID:              "s" + string(rune('a'+i)),
			UserID:          "u1",
			SessionType:     typ,
			DurationMinutes: 25,
			CompletedAt:     base.Add(time.Duration(i) * 30 * time.Minute),
		}
		state := model.PomodoroState{
			UserID:                "u1",
			SessionType:           pomodoro.ShortBreak,
			SessionMinutes:        5,
			SecondsRemaining:      300,
			CompletedWorkSessions: i + 1,
			Version:               i + 2,
			UpdatedAt:             session.CompletedAt,
		}
		require.NoError(t, repo.RecordCompletion(ctx, session, state))
	}

	history, err := repo.History(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "sa", history[0].ID)
	assert.Equal(t, "sc", history[2].ID)
	assert.Equal(t, base, history[0].CompletedAt)

	recent, err := repo.ListSessions(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "sc", recent[0].ID)
	assert.Equal(t, "sb", recent[1].ID)

	since, err := repo.ListSessionsSince(ctx, "u1", base.Add(30*time.Minute))
	require.NoError(t, err)
	require.Len(t, since, 2)
	assert.Equal(t, "sb", since[0].ID)

	count, minutes, err := repo.WorkTotals(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 50, minutes)

	other, err := repo.History(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, other)

	state, err := repo.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3, state.CompletedWorkSessions)
	assert.Equal(t, 4, state.Version)

	err = exec(`UPDATE pomodoro_sessions SET duration_minutes = 1 WHERE id = 'sa'`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestRecordCompletionIsAtomic(t *testing.T) {
	users, repo, _ := openRepos(t)
	createUser(t, users, "u1", "a@example.com")
	ctx := context.Background()
	require.NoError(t, repo.CreateInitialState(ctx, "u1", pomodoro.DefaultConfig()))

	session := model.PomodoroSession{ID: "dup", UserID: "u1", SessionType: pomodoro.Work, DurationMinutes: 25, CompletedAt: time.Now()}
	state := model.PomodoroState{UserID: "u1", SessionType: pomodoro.ShortBreak, SessionMinutes: 5, SecondsRemaining: 300, CompletedWorkSessions: 1, Version: 2, UpdatedAt: time.Now()}
	require.NoError(t, repo.RecordCompletion(ctx, session, state))

	state.Version = 3
	require.Error(t, repo.RecordCompletion(ctx, session, state))

	stored, err := repo.GetState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}
