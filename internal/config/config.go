package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"focusflow/backend/internal/pomodoro"
)

type Config struct {
	Port           string
	DBPath         string
	JWTSecret      string
	TokenTTL       time.Duration
	CORSOrigins    []string
	MigrationsDir  string
	TimerStatePath string
	Pomodoro       pomodoro.Config
}

// fileConfig is the on-disk YAML shape. Keys match the viper keys, and the
// environment variables are the upper-cased keys with dots replaced by
// underscores (DB_PATH, POMODORO_WORK_MINUTES, ...).
type fileConfig struct {
	Port           string          `yaml:"port"`
	DBPath         string          `yaml:"db_path"`
	JWTSecret      string          `yaml:"jwt_secret"`
	TokenTTLHours  int             `yaml:"token_ttl_hours"`
	CORSOrigins    []string        `yaml:"cors_origins"`
	MigrationsDir  string          `yaml:"migrations_dir"`
	TimerStatePath string          `yaml:"timer_state_path"`
	Pomodoro       pomodoro.Config `yaml:"pomodoro"`
}

func defaults() fileConfig {
	return fileConfig{
		Port:           "8080",
		DBPath:         "./data/focusflow.db",
		JWTSecret:      "change-this-secret",
		TokenTTLHours:  72,
		CORSOrigins:    []string{"http://localhost:5173", "http://127.0.0.1:5173"},
		MigrationsDir:  "./migrations",
		TimerStatePath: defaultTimerStatePath(),
		Pomodoro:       pomodoro.DefaultConfig(),
	}
}

// Load merges defaults, the optional YAML file at path and the environment.
func Load(path string) (Config, error) {
	def := defaults()

	v := viper.New()
	v.SetDefault("port", def.Port)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("jwt_secret", def.JWTSecret)
	v.SetDefault("token_ttl_hours", def.TokenTTLHours)
	v.SetDefault("cors_origins", def.CORSOrigins)
	v.SetDefault("migrations_dir", def.MigrationsDir)
	v.SetDefault("timer_state_path", def.TimerStatePath)
	v.SetDefault("pomodoro.work_minutes", def.Pomodoro.WorkMinutes)
	v.SetDefault("pomodoro.short_break_minutes", def.Pomodoro.ShortBreakMinutes)
	v.SetDefault("pomodoro.long_break_minutes", def.Pomodoro.LongBreakMinutes)
	v.SetDefault("pomodoro.sessions_before_long_break", def.Pomodoro.SessionsBeforeLongBreak)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Config{
		Port:           nonEmpty(v.GetString("port"), def.Port),
		DBPath:         nonEmpty(v.GetString("db_path"), def.DBPath),
		JWTSecret:      nonEmpty(v.GetString("jwt_secret"), def.JWTSecret),
		TokenTTL:       time.Duration(positive(v.GetInt("token_ttl_hours"), def.TokenTTLHours)) * time.Hour,
		CORSOrigins:    toList(v.Get("cors_origins"), def.CORSOrigins),
		MigrationsDir:  nonEmpty(v.GetString("migrations_dir"), def.MigrationsDir),
		TimerStatePath: nonEmpty(v.GetString("timer_state_path"), def.TimerStatePath),
		Pomodoro: pomodoro.Config{
			WorkMinutes:             v.GetInt("pomodoro.work_minutes"),
			ShortBreakMinutes:       v.GetInt("pomodoro.short_break_minutes"),
			LongBreakMinutes:        v.GetInt("pomodoro.long_break_minutes"),
			SessionsBeforeLongBreak: v.GetInt("pomodoro.sessions_before_long_break"),
		},
	}
	if err := cfg.Pomodoro.Validate(); err != nil {
		return Config{}, fmt.Errorf("pomodoro defaults: %w", err)
	}
	return cfg, nil
}

// WriteDefault writes the default configuration as YAML. An existing file is
// only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s", path)
		}
	}

	data, err := yaml.Marshal(defaults())
	if err != nil {
		return fmt.Errorf("encode default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func defaultTimerStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "focusflow-timer.toml"
	}
	return filepath.Join(home, ".focusflow", "timer.toml")
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func positive(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// toList accepts a YAML list or a comma separated environment value.
func toList(raw interface{}, fallback []string) []string {
	var parts []string
	switch value := raw.(type) {
	case string:
		parts = strings.Split(value, ",")
	case []string:
		parts = value
	case []interface{}:
		for _, item := range value {
			parts = append(parts, fmt.Sprint(item))
		}
	}

	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
