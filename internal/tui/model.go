// Package tui renders a single pomodoro scheduler in the terminal.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"focusflow/backend/internal/pomodoro"
)

const (
	eventBuffer = 256
	barWidth    = 30
)

type eventMsg pomodoro.Event

// SaveFunc persists the scheduler. It is called after every completion, pause
// and reset, and when the user quits.
type SaveFunc func() error

type Model struct {
	scheduler *pomodoro.Scheduler
	events    <-chan pomodoro.Event
	save      SaveFunc
	styles    styles

	state    pomodoro.State
	last     *pomodoro.CompletedSession
	quitting bool
	saveErr  error
}

// New builds a model fed by events, which should carry the scheduler's
// events. save may be nil.
func New(scheduler *pomodoro.Scheduler, events <-chan pomodoro.Event, save SaveFunc) Model {
	if save == nil {
		save = func() error { return nil }
	}
	return Model{
		scheduler: scheduler,
		events:    events,
		save:      save,
		styles:    newStyles(),
		state:     scheduler.State(),
	}
}

// Err reports the most recent save failure.
func (m Model) Err() error {
	return m.saveErr
}

func (m Model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func waitForEvent(events <-chan pomodoro.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(event)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case " ", "s":
			if m.scheduler.State().Running {
				m.scheduler.Pause()
			} else {
				m.scheduler.Start()
			}
		case "r":
			m.scheduler.Reset()
		case "q", "ctrl+c", "esc":
			m.scheduler.Pause()
			m.saveErr = m.save()
			m.quitting = true
			m.state = m.scheduler.State()
			return m, tea.Quit
		}
		m.state = m.scheduler.State()
		return m, nil
	case eventMsg:
		m.state = msg.State
		if msg.Completed != nil {
			completed := *msg.Completed
			m.last = &completed
		}
		switch msg.Type {
		case pomodoro.EventCompleted, pomodoro.EventPaused, pomodoro.EventReset:
			m.saveErr = m.save()
		}
		return m, waitForEvent(m.events)
	default:
		return m, nil
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	s := m.styles
	state := m.state

	status := "paused"
	if state.Running {
		status = "running"
	}

	lines := []string{
		s.title.Render("focusflow") + "  " + s.session(state.SessionType).Render(state.SessionType.Label()),
		s.clock.Render(pomodoro.FormatRemaining(state.SecondsRemaining)) + "  " + s.status.Render(status),
		m.progressBar(),
		s.detail.Render(m.cycleLine()),
	}
	if m.last != nil {
		lines = append(lines, s.detail.Render(fmt.Sprintf(
			"last: %s, %d min at %s",
			m.last.Type.Label(),
			m.last.DurationMinutes,
			m.last.CompletedAt.Local().Format("15:04"),
		)))
	}
	if state.Pending != nil {
		lines = append(lines, s.status.Render(fmt.Sprintf(
			"new durations from next session: %d/%d/%d min",
			state.Pending.WorkMinutes,
			state.Pending.ShortBreakMinutes,
			state.Pending.LongBreakMinutes,
		)))
	}
	if m.saveErr != nil {
		lines = append(lines, s.err.Render("save failed: "+m.saveErr.Error()))
	}
	lines = append(lines, s.help.Render("space/s start-pause · r reset · q quit"))

	return s.frame.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func (m Model) progressBar() string {
	total := m.state.SessionMinutes * 60
	if total <= 0 {
		return ""
	}
	elapsed := total - m.state.SecondsRemaining
	filled := elapsed * barWidth / total
	if filled < 0 {
		filled = 0
	}
	if filled > barWidth {
		filled = barWidth
	}
	return m.styles.barFill.Render(strings.Repeat("█", filled)) +
		m.styles.barEmpty.Render(strings.Repeat("░", barWidth-filled))
}

func (m Model) cycleLine() string {
	every := m.state.Config.SessionsBeforeLongBreak
	done := m.state.CompletedWorkSessions
	if every <= 0 {
		return fmt.Sprintf("completed focus sessions: %d", done)
	}
	untilLong := every - done%every
	return fmt.Sprintf("completed focus sessions: %d · long break after %d more", done, untilLong)
}

// Run drives the scheduler from the terminal until the user quits or ctx is
// cancelled. The scheduler is paused and saved on exit.
func Run(ctx context.Context, scheduler *pomodoro.Scheduler, save SaveFunc, opts ...tea.ProgramOption) error {
	events := make(chan pomodoro.Event, eventBuffer)
	unsubscribe := scheduler.Subscribe(func(event pomodoro.Event) {
		select {
		case events <- event:
		default:
		}
	})
	defer unsubscribe()

	model := New(scheduler, events, save)
	options := append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	_, err := tea.NewProgram(model, options...).Run()
	scheduler.Pause()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		err = nil
	}
	if err != nil {
		return err
	}
	if saveErr := model.save(); saveErr != nil {
		return fmt.Errorf("save timer state: %w", saveErr)
	}
	return nil
}
