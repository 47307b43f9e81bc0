// Package pomodoro implements the work/break countdown scheduler.
//
// A Scheduler owns one countdown. It cycles work -> short break -> work, and
// replaces the short break with a long break after every
// SessionsBeforeLongBreak completed work sessions. Each countdown that reaches
// zero appends a CompletedSession to the history and leaves the scheduler
// paused at the start of the next session.
package pomodoro

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"pkt.systems/pslog"

	"focusflow/backend/internal/clock"
)

const tickInterval = time.Second

// ErrStaleRevision is returned by Apply when the scheduler is no longer at the
// expected revision.
var ErrStaleRevision = errors.New("pomodoro: scheduler revision changed")

type Option func(*Scheduler)

func WithClock(c clock.Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(logger pslog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithIDFunc overrides how completed session ids are generated.
func WithIDFunc(fn func(time.Time) string) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithRestore resumes from a previously taken snapshot. The restored scheduler
// is always paused.
func WithRestore(snapshot Snapshot) Option {
	return func(s *Scheduler) {
		s.restore = &snapshot
	}
}

// WithListener registers a listener before any event can be emitted.
func WithListener(fn Listener) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.subscribe(fn)
		}
	}
}

type listenerEntry struct {
	id int
	fn Listener
}

type Scheduler struct {
	mu sync.Mutex

	clock   clock.Clock
	log     pslog.Logger
	newID   func(time.Time) string
	restore *Snapshot

	cfg            Config
	pending        *Config
	sessionType    SessionType
	sessionMinutes int
	remaining      int
	running        bool
	completedWork  int
	history        []CompletedSession

	// revision counts every event except ticks.
	revision int

	// gen changes whenever the ticker subscription is torn down, so ticks
	// delivered late by an old subscription are ignored.
	gen      uint64
	stopTick func()
	closed   bool

	listeners   []listenerEntry
	nextID      int
	queue       []Event
	dispatching bool
}

func New(cfg Config, opts ...Option) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		clock: clock.Real{},
		log:   pslog.Ctx(context.Background()),
		newID: func(time.Time) string { return uuid.NewString() },
		cfg:   cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.enter(Work)
	if s.restore != nil {
		s.applySnapshot(*s.restore)
		s.restore = nil
	}
	return s, nil
}

func (s *Scheduler) applySnapshot(snap Snapshot) {
	if snap.SessionType.Valid() {
		s.enter(snap.SessionType)
	}
	if snap.SessionMinutes > 0 {
		s.sessionMinutes = snap.SessionMinutes
		s.remaining = snap.SessionMinutes * 60
	}
	if snap.SecondsRemaining > 0 && snap.SecondsRemaining <= s.sessionMinutes*60 {
		s.remaining = snap.SecondsRemaining
	}
	if snap.CompletedWorkSessions > 0 {
		s.completedWork = snap.CompletedWorkSessions
	}
	s.history = append([]CompletedSession(nil), snap.History...)
	if snap.Revision > 0 {
		s.revision = snap.Revision
	}
}

// Command is a scheduler mutation run by Apply under the scheduler lock.
type Command struct {
	run func(*Scheduler) error
}

func StartCommand() Command {
	return Command{run: func(s *Scheduler) error { s.startLocked(); return nil }}
}

func PauseCommand() Command {
	return Command{run: func(s *Scheduler) error { s.pauseLocked(); return nil }}
}

func ResetCommand() Command {
	return Command{run: func(s *Scheduler) error { s.resetLocked(); return nil }}
}

func ReconfigureCommand(cfg Config) Command {
	return Command{run: func(s *Scheduler) error { return s.reconfigureLocked(cfg) }}
}

// Apply runs cmd if the scheduler is at revision want. A want of zero or less
// skips the check. The returned state is the one cmd left behind, even when
// listeners are still being notified by another goroutine.
func (s *Scheduler) Apply(want int, cmd Command) (State, error) {
	s.mu.Lock()
	if want > 0 && want != s.revision {
		state := s.stateLocked()
		s.mu.Unlock()
		return state, fmt.Errorf("%w: at %d, expected %d", ErrStaleRevision, state.Revision, want)
	}
	err := cmd.run(s)
	state := s.stateLocked()
	s.mu.Unlock()
	s.flush()
	return state, err
}

// Start begins counting down. It is a no-op while already running.
func (s *Scheduler) Start() {
	_, _ = s.Apply(0, StartCommand())
}

func (s *Scheduler) startLocked() {
	if s.running || s.closed {
		return
	}
	s.running = true
	s.gen++
	gen := s.gen
	s.stopTick = s.clock.Every(tickInterval, func() { s.tick(gen, true) })
	s.log.Debug("pomodoro started", "session", s.sessionType, "remaining", s.remaining)
	s.enqueue(EventStarted, nil)
}

// Pause stops the countdown and keeps the remaining time. It is a no-op while
// already paused.
func (s *Scheduler) Pause() {
	_, _ = s.Apply(0, PauseCommand())
}

func (s *Scheduler) pauseLocked() {
	if !s.running {
		return
	}
	s.halt()
	s.log.Debug("pomodoro paused", "session", s.sessionType, "remaining", s.remaining)
	s.enqueue(EventPaused, nil)
}

// Reset returns to a full, paused work session. History and the completed
// work session count are kept.
func (s *Scheduler) Reset() {
	_, _ = s.Apply(0, ResetCommand())
}

func (s *Scheduler) resetLocked() {
	s.halt()
	s.applyPending()
	s.enter(Work)
	s.log.Debug("pomodoro reset", "remaining", s.remaining)
	s.enqueue(EventReset, nil)
}

// Tick advances the countdown by one second. It does nothing while paused.
// When the countdown reaches zero the completion transition runs before Tick
// returns.
func (s *Scheduler) Tick() {
	s.tick(0, false)
}

func (s *Scheduler) tick(gen uint64, fromTicker bool) {
	s.mu.Lock()
	if fromTicker && gen != s.gen {
		s.mu.Unlock()
		return
	}
	if !s.running || s.remaining <= 0 {
		s.mu.Unlock()
		return
	}

	s.remaining--
	if s.remaining == 0 {
		s.complete()
	} else {
		s.enqueue(EventTick, nil)
	}
	s.mu.Unlock()
	s.flush()
}

// complete runs with s.mu held.
func (s *Scheduler) complete() {
	now := s.clock.Now()
	record := CompletedSession{
		ID:              s.newID(now),
		Type:            s.sessionType,
		DurationMinutes: s.sessionMinutes,
		CompletedAt:     now,
	}
	s.history = append(s.history, record)

	s.applyPending()
	next := Work
	if s.sessionType == Work {
		s.completedWork++
		if s.completedWork%s.cfg.SessionsBeforeLongBreak == 0 {
			next = LongBreak
		} else {
			next = ShortBreak
		}
	}
	s.halt()
	s.enter(next)

	s.log.Info("pomodoro session completed",
		"session", record.Type,
		"minutes", record.DurationMinutes,
		"completed_work", s.completedWork,
		"next", next,
	)
	s.enqueue(EventCompleted, &record)
}

// Reconfigure replaces the durations. The new configuration takes effect when
// the next session is entered; if the current session has not started
// counting yet it is resized immediately.
func (s *Scheduler) Reconfigure(cfg Config) error {
	_, err := s.Apply(0, ReconfigureCommand(cfg))
	return err
}

func (s *Scheduler) reconfigureLocked(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !s.running && s.remaining == s.sessionMinutes*60 {
		s.cfg = cfg
		s.pending = nil
		s.enter(s.sessionType)
	} else {
		pending := cfg
		s.pending = &pending
	}
	s.log.Debug("pomodoro reconfigured", "work", cfg.WorkMinutes, "short_break", cfg.ShortBreakMinutes, "long_break", cfg.LongBreakMinutes, "every", cfg.SessionsBeforeLongBreak, "deferred", s.pending != nil)
	s.enqueue(EventReconfigured, nil)
	return nil
}

// Close stops the ticker. A closed scheduler can no longer be started.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halt()
	s.closed = true
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Remaining renders the current countdown as MM:SS.
func (s *Scheduler) Remaining() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FormatRemaining(s.remaining)
}

// History returns a copy of the completed sessions in completion order.
func (s *Scheduler) History() []CompletedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompletedSession(nil), s.history...)
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionType:           s.sessionType,
		SessionMinutes:        s.sessionMinutes,
		SecondsRemaining:      s.remaining,
		CompletedWorkSessions: s.completedWork,
		History:               append([]CompletedSession(nil), s.history...),
		Revision:              s.revision,
	}
}

// Subscribe registers fn for all future events and returns a function that
// removes it.
func (s *Scheduler) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.subscribe(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, entry := range s.listeners {
			if entry.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Scheduler) subscribe(fn Listener) int {
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: s.nextID, fn: fn})
	return s.nextID
}

func (s *Scheduler) stateLocked() State {
	state := State{
		SessionType:           s.sessionType,
		SessionMinutes:        s.sessionMinutes,
		SecondsRemaining:      s.remaining,
		Running:               s.running,
		CompletedWorkSessions: s.completedWork,
		HistoryLen:            len(s.history),
		Config:                s.cfg,
		Revision:              s.revision,
	}
	if s.pending != nil {
		pending := *s.pending
		state.Pending = &pending
	}
	return state
}

func (s *Scheduler) enter(t SessionType) {
	s.sessionType = t
	s.sessionMinutes = s.cfg.Minutes(t)
	s.remaining = s.sessionMinutes * 60
}

func (s *Scheduler) applyPending() {
	if s.pending == nil {
		return
	}
	s.cfg = *s.pending
	s.pending = nil
}

func (s *Scheduler) halt() {
	s.running = false
	s.gen++
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
}

func (s *Scheduler) enqueue(t EventType, completed *CompletedSession) {
	if t != EventTick {
		s.revision++
	}
	s.queue = append(s.queue, Event{
		Type:      t,
		State:     s.stateLocked(),
		Completed: completed,
		At:        s.clock.Now(),
	})
}

// flush delivers queued events outside the lock. Only one goroutine delivers
// at a time; events queued meanwhile, including by listeners themselves, are
// picked up by the active deliverer in order.
func (s *Scheduler) flush() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true
	for len(s.queue) > 0 {
		batch := s.queue
		s.queue = nil
		listeners := append([]listenerEntry(nil), s.listeners...)
		s.mu.Unlock()
		for _, event := range batch {
			for _, entry := range listeners {
				entry.fn(event)
			}
		}
		s.mu.Lock()
	}
	s.dispatching = false
	s.mu.Unlock()
}
