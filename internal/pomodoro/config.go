package pomodoro

import (
	"errors"
	"fmt"
)

var ErrInvalidConfig = errors.New("invalid pomodoro configuration")

const (
	DefaultWorkMinutes             = 25
	DefaultShortBreakMinutes       = 5
	DefaultLongBreakMinutes        = 15
	DefaultSessionsBeforeLongBreak = 4
)

// Config holds the interval lengths, in minutes, and the long break cadence.
type Config struct {
	WorkMinutes             int `json:"workMinutes" toml:"work_minutes" mapstructure:"work_minutes" yaml:"work_minutes"`
	ShortBreakMinutes       int `json:"shortBreakMinutes" toml:"short_break_minutes" mapstructure:"short_break_minutes" yaml:"short_break_minutes"`
	LongBreakMinutes        int `json:"longBreakMinutes" toml:"long_break_minutes" mapstructure:"long_break_minutes" yaml:"long_break_minutes"`
	SessionsBeforeLongBreak int `json:"sessionsBeforeLongBreak" toml:"sessions_before_long_break" mapstructure:"sessions_before_long_break" yaml:"sessions_before_long_break"`
}

func DefaultConfig() Config {
	return Config{
		WorkMinutes:             DefaultWorkMinutes,
		ShortBreakMinutes:       DefaultShortBreakMinutes,
		LongBreakMinutes:        DefaultLongBreakMinutes,
		SessionsBeforeLongBreak: DefaultSessionsBeforeLongBreak,
	}
}

func (c Config) Validate() error {
	switch {
	case c.WorkMinutes <= 0:
		return fmt.Errorf("%w: work duration must be positive, got %d", ErrInvalidConfig, c.WorkMinutes)
	case c.ShortBreakMinutes <= 0:
		return fmt.Errorf("%w: short break must be positive, got %d", ErrInvalidConfig, c.ShortBreakMinutes)
	case c.LongBreakMinutes <= 0:
		return fmt.Errorf("%w: long break must be positive, got %d", ErrInvalidConfig, c.LongBreakMinutes)
	case c.SessionsBeforeLongBreak < 1:
		return fmt.Errorf("%w: sessions before long break must be at least 1, got %d", ErrInvalidConfig, c.SessionsBeforeLongBreak)
	}
	return nil
}

// Minutes returns the configured length of a session type.
func (c Config) Minutes(t SessionType) int {
	switch t {
	case ShortBreak:
		return c.ShortBreakMinutes
	case LongBreak:
		return c.LongBreakMinutes
	default:
		return c.WorkMinutes
	}
}
