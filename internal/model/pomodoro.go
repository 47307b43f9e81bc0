package model

import (
	"time"

	"focusflow/backend/internal/pomodoro"
)

// PomodoroSettings are the per-user interval lengths in minutes.
type PomodoroSettings struct {
	UserID                  string    `json:"userId"`
	WorkMinutes             int       `json:"workMinutes"`
	ShortBreakMinutes       int       `json:"shortBreakMinutes"`
	LongBreakMinutes        int       `json:"longBreakMinutes"`
	SessionsBeforeLongBreak int       `json:"sessionsBeforeLongBreak"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

func (s PomodoroSettings) Config() pomodoro.Config {
	return pomodoro.Config{
		WorkMinutes:             s.WorkMinutes,
		ShortBreakMinutes:       s.ShortBreakMinutes,
		LongBreakMinutes:        s.LongBreakMinutes,
		SessionsBeforeLongBreak: s.SessionsBeforeLongBreak,
	}
}

func SettingsFromConfig(userID string, cfg pomodoro.Config, now time.Time) PomodoroSettings {
	return PomodoroSettings{
		UserID:                  userID,
		WorkMinutes:             cfg.WorkMinutes,
		ShortBreakMinutes:       cfg.ShortBreakMinutes,
		LongBreakMinutes:        cfg.LongBreakMinutes,
		SessionsBeforeLongBreak: cfg.SessionsBeforeLongBreak,
		UpdatedAt:               now,
	}
}

// PomodoroState is the persisted countdown position of a user's scheduler.
// A stored state is always resumed paused.
type PomodoroState struct {
	UserID                string               `json:"userId"`
	SessionType           pomodoro.SessionType `json:"sessionType"`
	SessionMinutes        int                  `json:"sessionMinutes"`
	SecondsRemaining      int                  `json:"secondsRemaining"`
	Running               bool                 `json:"running"`
	CompletedWorkSessions int                  `json:"completedWorkSessions"`
	Version               int                  `json:"version"`
	UpdatedAt             time.Time            `json:"updatedAt"`
}

// PomodoroSession is one row of the append-only completion history.
type PomodoroSession struct {
	ID              string               `json:"id"`
	UserID          string               `json:"userId"`
	Seq             int64                `json:"seq"`
	SessionType     pomodoro.SessionType `json:"sessionType"`
	DurationMinutes int                  `json:"durationMinutes"`
	CompletedAt     time.Time            `json:"completedAt"`
}

func SessionFromCompleted(userID string, c pomodoro.CompletedSession) PomodoroSession {
	return PomodoroSession{
		ID:              c.ID,
		UserID:          userID,
		SessionType:     c.Type,
		DurationMinutes: c.DurationMinutes,
		CompletedAt:     c.CompletedAt,
	}
}

func (s PomodoroSession) Completed() pomodoro.CompletedSession {
	return pomodoro.CompletedSession{
		ID:              s.ID,
		Type:            s.SessionType,
		DurationMinutes: s.DurationMinutes,
		CompletedAt:     s.CompletedAt,
	}
}
