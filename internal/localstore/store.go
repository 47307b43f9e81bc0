// Package localstore keeps the offline timer's configuration and progress in
// a TOML file.
package localstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"focusflow/backend/internal/pomodoro"
)

const (
	schemaVersion   = 1
	fileMode        = 0o600
	dirMode         = 0o700
	tempFilePattern = ".timer-*.toml.tmp"
)

var ErrUnsupportedVersion = errors.New("unsupported timer state version")

// State is everything needed to resume the offline timer.
type State struct {
	Config   pomodoro.Config
	Snapshot pomodoro.Snapshot
	SavedAt  time.Time
}

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

type fileSchema struct {
	Version int            `toml:"version"`
	SavedAt time.Time      `toml:"saved_at"`
	Config  configSchema   `toml:"config"`
	Current currentSchema  `toml:"current"`
	History []recordSchema `toml:"history"`
}

type configSchema struct {
	WorkMinutes             int `toml:"work_minutes"`
	ShortBreakMinutes       int `toml:"short_break_minutes"`
	LongBreakMinutes        int `toml:"long_break_minutes"`
	SessionsBeforeLongBreak int `toml:"sessions_before_long_break"`
}

type currentSchema struct {
	SessionType           string `toml:"session_type"`
	SessionMinutes        int    `toml:"session_minutes"`
	SecondsRemaining      int    `toml:"seconds_remaining"`
	CompletedWorkSessions int    `toml:"completed_work_sessions"`
}

type recordSchema struct {
	ID              string    `toml:"id"`
	SessionType     string    `toml:"session_type"`
	DurationMinutes int       `toml:"duration_minutes"`
	CompletedAt     time.Time `toml:"completed_at"`
}

// Load reads the state file. A missing file yields the fallback configuration
// and an empty snapshot; found reports whether the file existed.
func (s *Store) Load(fallback pomodoro.Config) (State, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{Config: fallback}, false, nil
		}
		return State{}, false, fmt.Errorf("read timer state: %w", err)
	}

	var file fileSchema
	if err := toml.Unmarshal(data, &file); err != nil {
		return State{}, false, fmt.Errorf("decode timer state: %w", err)
	}
	if file.Version != schemaVersion {
		return State{}, false, fmt.Errorf("%w: %d", ErrUnsupportedVersion, file.Version)
	}

	state := State{
		Config: pomodoro.Config{
			WorkMinutes:             file.Config.WorkMinutes,
			ShortBreakMinutes:       file.Config.ShortBreakMinutes,
			LongBreakMinutes:        file.Config.LongBreakMinutes,
			SessionsBeforeLongBreak: file.Config.SessionsBeforeLongBreak,
		},
		SavedAt: file.SavedAt,
	}
	if err := state.Config.Validate(); err != nil {
		return State{}, false, fmt.Errorf("timer state config: %w", err)
	}

	sessionType, err := pomodoro.ParseSessionType(file.Current.SessionType)
	if err != nil {
		return State{}, false, fmt.Errorf("timer state current session: %w", err)
	}
	state.Snapshot = pomodoro.Snapshot{
		SessionType:           sessionType,
		SessionMinutes:        file.Current.SessionMinutes,
		SecondsRemaining:      file.Current.SecondsRemaining,
		CompletedWorkSessions: file.Current.CompletedWorkSessions,
		History:               make([]pomodoro.CompletedSession, 0, len(file.History)),
	}
	for i, record := range file.History {
		recordType, err := pomodoro.ParseSessionType(record.SessionType)
		if err != nil {
			return State{}, false, fmt.Errorf("timer state history[%d]: %w", i, err)
		}
		state.Snapshot.History = append(state.Snapshot.History, pomodoro.CompletedSession{
			ID:              record.ID,
			Type:            recordType,
			DurationMinutes: record.DurationMinutes,
			CompletedAt:     record.CompletedAt,
		})
	}
	return state, true, nil
}

// Save replaces the state file atomically.
func (s *Store) Save(state State) error {
	file := fileSchema{
		Version: schemaVersion,
		SavedAt: state.SavedAt.UTC(),
		Config: configSchema{
			WorkMinutes:             state.Config.WorkMinutes,
			ShortBreakMinutes:       state.Config.ShortBreakMinutes,
			LongBreakMinutes:        state.Config.LongBreakMinutes,
			SessionsBeforeLongBreak: state.Config.SessionsBeforeLongBreak,
		},
		Current: currentSchema{
			SessionType:           string(state.Snapshot.SessionType),
			SessionMinutes:        state.Snapshot.SessionMinutes,
			SecondsRemaining:      state.Snapshot.SecondsRemaining,
			CompletedWorkSessions: state.Snapshot.CompletedWorkSessions,
		},
		History: make([]recordSchema, 0, len(state.Snapshot.History)),
	}
	for _, record := range state.Snapshot.History {
		file.History = append(file.History, recordSchema{
			ID:              record.ID,
			SessionType:     string(record.Type),
			DurationMinutes: record.DurationMinutes,
			CompletedAt:     record.CompletedAt.UTC(),
		})
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode timer state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create timer state directory: %w", err)
	}

	tempFile, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp timer state: %w", err)
	}
	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp timer state: %w", err)
	}
	if err := tempFile.Chmod(fileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp timer state: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp timer state: %w", err)
	}
	if err := os.Rename(tempName, s.path); err != nil {
		return fmt.Errorf("replace timer state: %w", err)
	}
	cleanup = false
	return nil
}
