package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"focusflow/backend/internal/config"
	"focusflow/backend/internal/localstore"
	"focusflow/backend/internal/pomodoro"
	"focusflow/backend/internal/tui"
)

type timerOptions struct {
	statePath  string
	logPath    string
	work       int
	shortBreak int
	longBreak  int
	every      int
}

func newTimerCmd(root *rootOptions) *cobra.Command {
	opts := &timerOptions{}
	cmd := &cobra.Command{
		Use:   "timer",
		Short: "Run the pomodoro timer in the terminal",
		Long: "Run a local pomodoro timer. Progress and history are kept in a TOML\n" +
			"file and the timer resumes, paused, where it was left.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if opts.statePath == "" {
				opts.statePath = cfg.TimerStatePath
			}

			store := localstore.New(opts.statePath)
			saved, found, err := store.Load(cfg.Pomodoro)
			if err != nil {
				return err
			}
			timerCfg := applyDurationFlags(cmd, opts, saved.Config)
			if err := timerCfg.Validate(); err != nil {
				return err
			}

			logger, closeLog, err := timerLogger(opts.logPath)
			if err != nil {
				return err
			}
			defer closeLog()

			schedulerOpts := []pomodoro.Option{pomodoro.WithLogger(logger)}
			if found {
				schedulerOpts = append(schedulerOpts, pomodoro.WithRestore(saved.Snapshot))
			}
			scheduler, err := pomodoro.New(timerCfg, schedulerOpts...)
			if err != nil {
				return err
			}
			defer scheduler.Close()

			save := func() error {
				return store.Save(localstore.State{
					Config:   scheduler.State().EffectiveConfig(),
					Snapshot: scheduler.Snapshot(),
					SavedAt:  time.Now(),
				})
			}
			if err := tui.Run(cmd.Context(), scheduler, save, tea.WithAltScreen()); err != nil {
				return err
			}

			state := scheduler.State()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s left, %d focus sessions completed (saved to %s)\n",
				state.SessionType.Label(), state.Remaining(), state.CompletedWorkSessions, store.Path())
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.statePath, "state", "", "timer state file (default from config timer_state_path)")
	cmd.Flags().StringVar(&opts.logPath, "log-file", "", "write timer logs to this file")
	cmd.Flags().IntVar(&opts.work, "work", 0, "focus minutes")
	cmd.Flags().IntVar(&opts.shortBreak, "short-break", 0, "short break minutes")
	cmd.Flags().IntVar(&opts.longBreak, "long-break", 0, "long break minutes")
	cmd.Flags().IntVar(&opts.every, "long-break-every", 0, "focus sessions before a long break")
	return cmd
}

// applyDurationFlags overrides only the flags given on the command line.
func applyDurationFlags(cmd *cobra.Command, opts *timerOptions, cfg pomodoro.Config) pomodoro.Config {
	flags := cmd.Flags()
	if flags.Changed("work") {
		cfg.WorkMinutes = opts.work
	}
	if flags.Changed("short-break") {
		cfg.ShortBreakMinutes = opts.shortBreak
	}
	if flags.Changed("long-break") {
		cfg.LongBreakMinutes = opts.longBreak
	}
	if flags.Changed("long-break-every") {
		cfg.SessionsBeforeLongBreak = opts.every
	}
	return cfg
}

// timerLogger keeps log lines off the terminal the TUI is drawing on.
func timerLogger(path string) (pslog.Logger, func(), error) {
	if path == "" {
		return pslog.NewWithOptions(io.Discard, pslog.Options{Mode: pslog.ModeStructured, NoColor: true}), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := pslog.NewWithOptions(file, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.DebugLevel,
		VerboseFields: true,
	})
	return logger, func() { _ = file.Close() }, nil
}
