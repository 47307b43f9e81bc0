package pomodoro

import (
	"fmt"
	"time"
)

type SessionType string

const (
	Work       SessionType = "work"
	ShortBreak SessionType = "short_break"
	LongBreak  SessionType = "long_break"
)

func (t SessionType) Valid() bool {
	return t == Work || t == ShortBreak || t == LongBreak
}

func (t SessionType) String() string {
	return string(t)
}

// Label is the human readable name of the session type.
func (t SessionType) Label() string {
	switch t {
	case ShortBreak:
		return "Short break"
	case LongBreak:
		return "Long break"
	default:
		return "Focus"
	}
}

func ParseSessionType(raw string) (SessionType, error) {
	t := SessionType(raw)
	if !t.Valid() {
		return "", fmt.Errorf("unknown session type %q", raw)
	}
	return t, nil
}

// CompletedSession records one interval that counted down to zero.
type CompletedSession struct {
	ID              string      `json:"id" toml:"id"`
	Type            SessionType `json:"type" toml:"type"`
	DurationMinutes int         `json:"durationMinutes" toml:"duration_minutes"`
	CompletedAt     time.Time   `json:"completedAt" toml:"completed_at"`
}

// State is a point-in-time view of a scheduler.
type State struct {
	SessionType           SessionType `json:"sessionType"`
	SessionMinutes        int         `json:"sessionMinutes"`
	SecondsRemaining      int         `json:"secondsRemaining"`
	Running               bool        `json:"running"`
	CompletedWorkSessions int         `json:"completedWorkSessions"`
	HistoryLen            int         `json:"historyLength"`
	Config                Config      `json:"config"`
	Pending               *Config     `json:"pendingConfig,omitempty"`
	Revision              int         `json:"revision"`
}

// Remaining renders SecondsRemaining as MM:SS.
func (s State) Remaining() string {
	return FormatRemaining(s.SecondsRemaining)
}

// EffectiveConfig is the configuration the next session will be entered with.
func (s State) EffectiveConfig() Config {
	if s.Pending != nil {
		return *s.Pending
	}
	return s.Config
}

// Snapshot is the durable part of a scheduler, used to resume it later.
type Snapshot struct {
	SessionType           SessionType        `json:"sessionType" toml:"session_type"`
	SessionMinutes        int                `json:"sessionMinutes" toml:"session_minutes"`
	SecondsRemaining      int                `json:"secondsRemaining" toml:"seconds_remaining"`
	CompletedWorkSessions int                `json:"completedWorkSessions" toml:"completed_work_sessions"`
	History               []CompletedSession `json:"history" toml:"history"`
	Revision              int                `json:"revision" toml:"revision"`
}

// FormatRemaining renders seconds as zero-padded MM:SS. Minutes do not wrap at
// 60, so 5400 renders as "90:00".
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
