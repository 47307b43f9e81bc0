package tui

import (
	"github.com/charmbracelet/lipgloss"

	"focusflow/backend/internal/pomodoro"
)

type styles struct {
	title      lipgloss.Style
	work       lipgloss.Style
	shortBreak lipgloss.Style
	longBreak  lipgloss.Style
	clock      lipgloss.Style
	status     lipgloss.Style
	detail     lipgloss.Style
	barFill    lipgloss.Style
	barEmpty   lipgloss.Style
	help       lipgloss.Style
	err        lipgloss.Style
	frame      lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:      lipgloss.NewStyle().Bold(true),
		work:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		shortBreak: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("78")),
		longBreak:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		clock:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252")).MarginTop(1),
		status:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		detail:     lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		barFill:    lipgloss.NewStyle().Foreground(lipgloss.Color("159")),
		barEmpty:   lipgloss.NewStyle().Foreground(lipgloss.Color("238")),
		help:       lipgloss.NewStyle().Faint(true).MarginTop(1),
		err:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		frame:      lipgloss.NewStyle().Padding(1, 2),
	}
}

func (s styles) session(t pomodoro.SessionType) lipgloss.Style {
	switch t {
	case pomodoro.ShortBreak:
		return s.shortBreak
	case pomodoro.LongBreak:
		return s.longBreak
	default:
		return s.work
	}
}
