package service_test

import (
	"context"
	"database/sql"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusflow/backend/internal/clock"
	"focusflow/backend/internal/db"
	"focusflow/backend/internal/eventbus"
	"focusflow/backend/internal/pomodoro"
	"focusflow/backend/internal/repository"
	"focusflow/backend/internal/service"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fixture struct {
	db       *sql.DB
	users    *repository.UserRepository
	pomodoro *repository.PomodoroRepository
	auth     *service.AuthService
	clock    *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.RunMigrations(context.Background(), database, filepath.Join("..", "..", "migrations")))

	users := repository.NewUserRepository(database)
	pomodoroRepo := repository.NewPomodoroRepository(database)
	return &fixture{
		db:       database,
		users:    users,
		pomodoro: pomodoroRepo,
		auth:     service.NewAuthService(users, pomodoroRepo, "test-secret", time.Hour, pomodoro.DefaultConfig()),
		clock:    clock.NewFake(testStart),
	}
}

func (f *fixture) newPomodoroService(t *testing.T) *service.PomodoroService {
	t.Helper()
	svc := service.NewPomodoroService(f.pomodoro, eventbus.New(nil), f.clock, nil)
	t.Cleanup(svc.Shutdown)
	return svc
}

func (f *fixture) register(t *testing.T, email string) string {
	t.Helper()
	result, apiErr := f.auth.Register(context.Background(), email, "123456")
	require.Nil(t, apiErr)
	return result.User.ID
}

func TestAuthRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	registered, apiErr := f.auth.Register(ctx, "  Alice@Example.com ", "123456")
	require.Nil(t, apiErr)
	assert.Equal(t, "alice@example.com", registered.User.Email)
	assert.Empty(t, registered.User.PasswordHash)

	userID, apiErr := f.auth.ParseToken(registered.Token)
	require.Nil(t, apiErr)
	assert.Equal(t, registered.User.ID, userID)

	_, apiErr = f.auth.Register(ctx, "alice@example.com", "abcdef")
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "email_exists", apiErr.Code)

	_, apiErr = f.auth.Register(ctx, "bob@example.com", "123")
	require.NotNil(t, apiErr)
	assert.Equal(t, "invalid_password", apiErr.Code)

	_, apiErr = f.auth.Login(ctx, "alice@example.com", "wrong-password")
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)

	loggedIn, apiErr := f.auth.Login(ctx, "ALICE@example.com", "123456")
	require.Nil(t, apiErr)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)

	_, apiErr = f.auth.ParseToken(loggedIn.Token + "x")
	assert.NotNil(t, apiErr)
}

func TestPomodoroLifecyclePersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := f.newPomodoroService(t)

	state, apiErr := svc.GetState(ctx, userID)
	require.Nil(t, apiErr)
	assert.Equal(t, 1, state.Version)
	assert.Equal(t, pomodoro.Work, state.SessionType)
	assert.Equal(t, "paused", state.Status)
	assert.Equal(t, "25:00", state.Remaining)

	state, apiErr = svc.Start(ctx, userID, 1)
	require.Nil(t, apiErr)
	assert.Equal(t, "running", state.Status)
	assert.Equal(t, 2, state.Version)

	f.clock.Advance(25 * time.Minute)

	state, apiErr = svc.GetState(ctx, userID)
	require.Nil(t, apiErr)
	assert.Equal(t, pomodoro.ShortBreak, state.SessionType)
	assert.Equal(t, "paused", state.Status)
	assert.Equal(t, 300, state.RemainingSeconds)
	assert.Equal(t, 1, state.CompletedWorkSessions)
	assert.Equal(t, 3, state.Version)

	_, apiErr = svc.Pause(ctx, userID, 2)
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "state_conflict", apiErr.Code)
	details, ok := apiErr.Details.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 3, details["state"].(service.StateView).Version)

	history, apiErr := svc.GetHistory(ctx, userID, 0)
	require.Nil(t, apiErr)
	require.Len(t, history, 1)
	assert.Equal(t, pomodoro.Work, history[0].SessionType)
	assert.Equal(t, 25, history[0].DurationMinutes)
	assert.Equal(t, testStart.Add(25*time.Minute), history[0].CompletedAt)

	stored, err := f.pomodoro.GetState(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Version)
	assert.Equal(t, pomodoro.ShortBreak, stored.SessionType)

	// A fresh service restores from the database.
	restored := f.newPomodoroService(t)
	state, apiErr = restored.GetState(ctx, userID)
	require.Nil(t, apiErr)
	assert.Equal(t, pomodoro.ShortBreak, state.SessionType)
	assert.Equal(t, 1, state.CompletedWorkSessions)
	assert.Equal(t, 3, state.Version)
}

func TestPomodoroPauseKeepsCountdownAcrossRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := f.newPomodoroService(t)

	_, apiErr := svc.Start(ctx, userID, 0)
	require.Nil(t, apiErr)
	f.clock.Advance(90 * time.Second)
	state, apiErr := svc.Pause(ctx, userID, 0)
	require.Nil(t, apiErr)
	assert.Equal(t, 1410, state.RemainingSeconds)
	assert.Equal(t, "23:30", state.Remaining)

	restored := f.newPomodoroService(t)
	state, apiErr = restored.GetState(ctx, userID)
	require.Nil(t, apiErr)
	assert.Equal(t, 1410, state.RemainingSeconds)
	assert.Equal(t, "paused", state.Status)
}

func TestPomodoroUpdateSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := f.newPomodoroService(t)

	_, apiErr := svc.UpdateSettings(ctx, userID, service.UpdateSettingsInput{
		Settings: pomodoro.Config{WorkMinutes: 0, ShortBreakMinutes: 5, LongBreakMinutes: 15, SessionsBeforeLongBreak: 4},
	})
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid_settings", apiErr.Code)

	cfg := pomodoro.Config{WorkMinutes: 50, ShortBreakMinutes: 10, LongBreakMinutes: 30, SessionsBeforeLongBreak: 2}
	state, apiErr := svc.UpdateSettings(ctx, userID, service.UpdateSettingsInput{BaseVersion: 1, Settings: cfg})
	require.Nil(t, apiErr)
	assert.Equal(t, cfg, state.Settings)
	assert.Nil(t, state.PendingSettings)
	assert.Equal(t, 3000, state.RemainingSeconds)
	assert.Equal(t, 2, state.Version)

	_, apiErr = svc.Start(ctx, userID, 2)
	require.Nil(t, apiErr)
	f.clock.Advance(time.Minute)

	next := cfg
	next.WorkMinutes = 20
	state, apiErr = svc.UpdateSettings(ctx, userID, service.UpdateSettingsInput{BaseVersion: 3, Settings: next})
	require.Nil(t, apiErr)
	require.NotNil(t, state.PendingSettings)
	assert.Equal(t, next, *state.PendingSettings)
	assert.Equal(t, 50, state.SessionMinutes)

	settings, err := f.pomodoro.GetSettings(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, next, settings.Config())
}

func TestPomodoroStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := f.newPomodoroService(t)

	for i := 0; i < 3; i++ {
		_, apiErr := svc.Start(ctx, userID, 0)
		require.Nil(t, apiErr)
		state, apiErr := svc.GetState(ctx, userID)
		require.Nil(t, apiErr)
		f.clock.Advance(time.Duration(state.RemainingSeconds) * time.Second)
	}

	stats, apiErr := svc.GetStats(ctx, userID, f.clock.Now())
	require.Nil(t, apiErr)
	assert.Equal(t, 3, stats.TodaySessions)
	assert.Equal(t, 50, stats.TodayFocusMinutes)
	assert.Equal(t, 50, stats.TotalFocusMinutes)
	assert.Equal(t, 2, stats.CompletedWorkSessions)
	require.Len(t, stats.RecentSessions, 3)
	assert.Equal(t, pomodoro.Work, stats.RecentSessions[0].SessionType)
	assert.Equal(t, pomodoro.ShortBreak, stats.RecentSessions[1].SessionType)

	tomorrow, apiErr := svc.GetStats(ctx, userID, f.clock.Now().Add(24*time.Hour))
	require.Nil(t, apiErr)
	assert.Zero(t, tomorrow.TodaySessions)
	assert.Empty(t, tomorrow.RecentSessions)
	assert.Equal(t, 2, tomorrow.CompletedWorkSessions)
}

func TestPomodoroSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := f.newPomodoroService(t)

	events, cancel, apiErr := svc.Subscribe(ctx, userID)
	require.Nil(t, apiErr)
	defer cancel()

	_, apiErr = svc.Start(ctx, userID, 1)
	require.Nil(t, apiErr)
	f.clock.Advance(time.Second)

	started := <-events
	view := svc.EventView(started)
	assert.Equal(t, pomodoro.EventStarted, view.Type)
	assert.Equal(t, 2, view.State.Version)
	assert.Equal(t, "running", view.State.Status)

	tick := <-events
	assert.Equal(t, pomodoro.EventTick, tick.Type)
	assert.Equal(t, 2, tick.Version)
	assert.Equal(t, "24:59", svc.EventView(tick).State.Remaining)

	_, _, apiErr = svc.Subscribe(ctx, "nobody")
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestPomodoroShutdownPersistsRunningTimers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := service.NewPomodoroService(f.pomodoro, eventbus.New(nil), f.clock, nil)

	_, apiErr := svc.Start(ctx, userID, 0)
	require.Nil(t, apiErr)
	f.clock.Advance(10 * time.Second)

	svc.Shutdown()
	assert.Zero(t, f.clock.Subscribers())

	stored, err := f.pomodoro.GetState(ctx, userID)
	require.NoError(t, err)
	assert.False(t, stored.Running)
	assert.Equal(t, 1490, stored.SecondsRemaining)

	_, apiErr = svc.GetState(ctx, userID)
	require.NotNil(t, apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

func TestPomodoroStartRejectsStaleVersionAfterCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := f.newPomodoroService(t)

	_, apiErr := svc.Start(ctx, userID, 1)
	require.Nil(t, apiErr)
	f.clock.Advance(25 * time.Minute)

	// A client that last saw version 2 must not start the break.
	_, apiErr = svc.Start(ctx, userID, 2)
	require.NotNil(t, apiErr)
	assert.Equal(t, "state_conflict", apiErr.Code)

	state, apiErr := svc.GetState(ctx, userID)
	require.Nil(t, apiErr)
	assert.Equal(t, "paused", state.Status)
	assert.Equal(t, pomodoro.ShortBreak, state.SessionType)
	assert.Equal(t, 3, state.Version)
	assert.Zero(t, f.clock.Subscribers())
}

func TestPomodoroRetriesFailedSaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := f.newPomodoroService(t)

	_, err := f.db.Exec(`CREATE TRIGGER reject_sessions BEFORE INSERT ON pomodoro_sessions
		BEGIN SELECT RAISE(ABORT, 'disk full'); END`)
	require.NoError(t, err)

	_, apiErr := svc.Start(ctx, userID, 1)
	require.Nil(t, apiErr)
	f.clock.Advance(25 * time.Minute)

	state, apiErr := svc.GetState(ctx, userID)
	require.Nil(t, apiErr)
	assert.Equal(t, pomodoro.ShortBreak, state.SessionType)
	assert.Equal(t, 3, state.Version)
	assert.Contains(t, state.SyncError, "disk full")

	stored, err := f.pomodoro.GetState(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	history, err := f.pomodoro.History(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = f.db.Exec(`DROP TRIGGER reject_sessions`)
	require.NoError(t, err)

	// The next change writes the queued completion before its own state.
	state, apiErr = svc.Start(ctx, userID, 3)
	require.Nil(t, apiErr)
	assert.Equal(t, 4, state.Version)
	assert.Empty(t, state.SyncError)

	history, err = f.pomodoro.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, pomodoro.Work, history[0].SessionType)
	stored, err = f.pomodoro.GetState(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 4, stored.Version)
	assert.True(t, stored.Running)
}

func TestPomodoroGetStateRetriesFailedSaves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "alice@example.com")
	svc := f.newPomodoroService(t)

	_, err := f.db.Exec(`CREATE TRIGGER reject_states BEFORE UPDATE ON pomodoro_states
		BEGIN SELECT RAISE(ABORT, 'locked'); END`)
	require.NoError(t, err)

	state, apiErr := svc.Start(ctx, userID, 1)
	require.Nil(t, apiErr)
	assert.Contains(t, state.SyncError, "locked")

	_, err = f.db.Exec(`DROP TRIGGER reject_states`)
	require.NoError(t, err)

	state, apiErr = svc.GetState(ctx, userID)
	require.Nil(t, apiErr)
	assert.Empty(t, state.SyncError)

	restored := f.newPomodoroService(t)
	state, apiErr = restored.GetState(ctx, userID)
	require.Nil(t, apiErr)
	assert.Equal(t, 2, state.Version)
}
