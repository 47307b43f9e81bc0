package pomodoro

import "time"

type EventType string

const (
	EventStarted      EventType = "started"
	EventPaused       EventType = "paused"
	EventTick         EventType = "tick"
	EventCompleted    EventType = "completed"
	EventReset        EventType = "reset"
	EventReconfigured EventType = "reconfigured"
)

// Event describes one state change. State is the scheduler state right after
// the change; Completed is set only for EventCompleted.
type Event struct {
	Type      EventType         `json:"type"`
	State     State             `json:"state"`
	Completed *CompletedSession `json:"completed,omitempty"`
	At        time.Time         `json:"at"`
}

// Listener receives scheduler events in the order they happened.
type Listener func(Event)
