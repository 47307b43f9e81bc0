package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"focusflow/backend/internal/model"
	"focusflow/backend/internal/pomodoro"
)

type PomodoroRepository struct {
	db *sql.DB
}

func NewPomodoroRepository(db *sql.DB) *PomodoroRepository {
	return &PomodoroRepository{db: db}
}

func (r *PomodoroRepository) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return tx, nil
}

// CreateInitialState seeds settings and a fresh, paused work session.
func (r *PomodoroRepository) CreateInitialState(ctx context.Context, userID string, cfg pomodoro.Config) error {
	now := time.Now().UTC()
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.SaveSettingsTx(ctx, tx, model.SettingsFromConfig(userID, cfg, now)); err != nil {
		return fmt.Errorf("create initial settings: %w", err)
	}
	state := model.PomodoroState{
		UserID:           userID,
		SessionType:      pomodoro.Work,
		SessionMinutes:   cfg.WorkMinutes,
		SecondsRemaining: cfg.WorkMinutes * 60,
		Version:          1,
		UpdatedAt:        now,
	}
	if err := r.SaveStateTx(ctx, tx, state); err != nil {
		return fmt.Errorf("create initial state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit initial state: %w", err)
	}
	return nil
}

func (r *PomodoroRepository) GetSettings(ctx context.Context, userID string) (*model.PomodoroSettings, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT user_id, work_minutes, short_break_minutes, long_break_minutes,
		        sessions_before_long_break, updated_at
		 FROM pomodoro_settings WHERE user_id = ?`,
		userID,
	)

	var settings model.PomodoroSettings
	var updatedAt string
	err := row.Scan(
		&settings.UserID,
		&settings.WorkMinutes,
		&settings.ShortBreakMinutes,
		&settings.LongBreakMinutes,
		&settings.SessionsBeforeLongBreak,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse settings updated_at: %w", err)
	}
	settings.UpdatedAt = parsedUpdatedAt
	return &settings, nil
}

func (r *PomodoroRepository) SaveSettings(ctx context.Context, settings model.PomodoroSettings) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.SaveSettingsTx(ctx, tx, settings); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settings: %w", err)
	}
	return nil
}

func (r *PomodoroRepository) SaveSettingsTx(ctx context.Context, tx *sql.Tx, settings model.PomodoroSettings) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO pomodoro_settings (
			user_id, work_minutes, short_break_minutes, long_break_minutes,
			sessions_before_long_break, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			work_minutes = excluded.work_minutes,
			short_break_minutes = excluded.short_break_minutes,
			long_break_minutes = excluded.long_break_minutes,
			sessions_before_long_break = excluded.sessions_before_long_break,
			updated_at = excluded.updated_at`,
		settings.UserID,
		settings.WorkMinutes,
		settings.ShortBreakMinutes,
		settings.LongBreakMinutes,
		settings.SessionsBeforeLongBreak,
		formatTime(settings.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *PomodoroRepository) GetState(ctx context.Context, userID string) (*model.PomodoroState, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT user_id, session_type, session_minutes, seconds_remaining, running,
		        completed_work_sessions, version, updated_at
		 FROM pomodoro_states WHERE user_id = ?`,
		userID,
	)
	return scanPomodoroState(row)
}

func (r *PomodoroRepository) SaveState(ctx context.Context, state model.PomodoroState) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.SaveStateTx(ctx, tx, state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	return nil
}

func (r *PomodoroRepository) SaveStateTx(ctx context.Context, tx *sql.Tx, state model.PomodoroState) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO pomodoro_states (
			user_id, session_type, session_minutes, seconds_remaining, running,
			completed_work_sessions, version, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_type = excluded.session_type,
			session_minutes = excluded.session_minutes,
			seconds_remaining = excluded.seconds_remaining,
			running = excluded.running,
			completed_work_sessions = excluded.completed_work_sessions,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		state.UserID,
		string(state.SessionType),
		state.SessionMinutes,
		state.SecondsRemaining,
		state.Running,
		state.CompletedWorkSessions,
		state.Version,
		formatTime(state.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// AppendSessionTx inserts one completed session. History rows are never
// updated; the table rejects updates.
func (r *PomodoroRepository) AppendSessionTx(ctx context.Context, tx *sql.Tx, session model.PomodoroSession) error {
	_, err := tx.ExecContext(
		ctx,
		`INSERT INTO pomodoro_sessions (id, user_id, session_type, duration_minutes, completed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		session.ID,
		session.UserID,
		string(session.SessionType),
		session.DurationMinutes,
		formatTime(session.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("append session: %w", err)
	}
	return nil
}

// RecordCompletion appends the session and stores the post-transition state
// atomically.
func (r *PomodoroRepository) RecordCompletion(ctx context.Context, session model.PomodoroSession, state model.PomodoroState) error {
	tx, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := r.AppendSessionTx(ctx, tx, session); err != nil {
		return err
	}
	if err := r.SaveStateTx(ctx, tx, state); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit completion: %w", err)
	}
	return nil
}

// ListSessions returns the most recent sessions first.
func (r *PomodoroRepository) ListSessions(ctx context.Context, userID string, limit int) ([]model.PomodoroSession, error) {
	return r.querySessions(
		ctx,
		`SELECT seq, id, user_id, session_type, duration_minutes, completed_at
		 FROM pomodoro_sessions
		 WHERE user_id = ?
		 ORDER BY seq DESC
		 LIMIT ?`,
		userID,
		limit,
	)
}

// History returns every session of the user in completion order.
func (r *PomodoroRepository) History(ctx context.Context, userID string) ([]model.PomodoroSession, error) {
	return r.querySessions(
		ctx,
		`SELECT seq, id, user_id, session_type, duration_minutes, completed_at
		 FROM pomodoro_sessions
		 WHERE user_id = ?
		 ORDER BY seq ASC`,
		userID,
	)
}

// ListSessionsSince returns sessions completed at or after since, oldest first.
func (r *PomodoroRepository) ListSessionsSince(ctx context.Context, userID string, since time.Time) ([]model.PomodoroSession, error) {
	return r.querySessions(
		ctx,
		`SELECT seq, id, user_id, session_type, duration_minutes, completed_at
		 FROM pomodoro_sessions
		 WHERE user_id = ? AND completed_at >= ?
		 ORDER BY seq ASC`,
		userID,
		formatTime(since),
	)
}

// WorkTotals reports the number of completed work sessions and their summed
// minutes.
func (r *PomodoroRepository) WorkTotals(ctx context.Context, userID string) (int, int, error) {
	var count, minutes int
	if err := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1), COALESCE(SUM(duration_minutes), 0)
		 FROM pomodoro_sessions WHERE user_id = ? AND session_type = ?`,
		userID,
		string(pomodoro.Work),
	).Scan(&count, &minutes); err != nil {
		return 0, 0, fmt.Errorf("sum work sessions: %w", err)
	}
	return count, minutes, nil
}

func (r *PomodoroRepository) querySessions(ctx context.Context, query string, args ...interface{}) ([]model.PomodoroSession, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]model.PomodoroSession, 0)
	for rows.Next() {
		session, scanErr := scanPomodoroSession(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		sessions = append(sessions, *session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPomodoroState(s scanner) (*model.PomodoroState, error) {
	state := model.PomodoroState{}
	var sessionType string
	var updatedAt string
	err := s.Scan(
		&state.UserID,
		&sessionType,
		&state.SessionMinutes,
		&state.SecondsRemaining,
		&state.Running,
		&state.CompletedWorkSessions,
		&state.Version,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan state: %w", err)
	}

	parsedType, err := pomodoro.ParseSessionType(sessionType)
	if err != nil {
		return nil, fmt.Errorf("parse state session_type: %w", err)
	}
	state.SessionType = parsedType

	parsedUpdatedAt, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse state updated_at: %w", err)
	}
	state.UpdatedAt = parsedUpdatedAt
	return &state, nil
}

func scanPomodoroSession(s scanner) (*model.PomodoroSession, error) {
	session := model.PomodoroSession{}
	var sessionType string
	var completedAt string
	err := s.Scan(
		&session.Seq,
		&session.ID,
		&session.UserID,
		&sessionType,
		&session.DurationMinutes,
		&completedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	parsedType, err := pomodoro.ParseSessionType(sessionType)
	if err != nil {
		return nil, fmt.Errorf("parse session type: %w", err)
	}
	session.SessionType = parsedType

	parsedCompletedAt, err := parseTime(completedAt)
	if err != nil {
		return nil, fmt.Errorf("parse session completed_at: %w", err)
	}
	session.CompletedAt = parsedCompletedAt

	return &session, nil
}
