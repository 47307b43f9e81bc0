package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"

	"focusflow/backend/internal/clock"
	apperrors "focusflow/backend/internal/errors"
	"focusflow/backend/internal/eventbus"
	"focusflow/backend/internal/model"
	"focusflow/backend/internal/pomodoro"
	"focusflow/backend/internal/repository"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	recentSessionsLimit = 5
	persistTimeout      = 5 * time.Second
)

// PomodoroService keeps one live scheduler per user, restored from the
// database on first use and persisted on every state change.
type PomodoroService struct {
	repo  *repository.PomodoroRepository
	bus   *eventbus.Bus
	clock clock.Clock
	log   pslog.Logger

	mu     sync.Mutex
	timers map[string]*userTimer
	closed bool
}

// userTimer is one user's live scheduler. The scheduler revision is the
// state version clients send back as baseVersion.
type userTimer struct {
	userID    string
	scheduler *pomodoro.Scheduler

	// ops keeps a settings write in the same order as the reconfiguration
	// it records.
	ops sync.Mutex

	// saveMu serializes writes of the pending changes below.
	saveMu sync.Mutex

	mu        sync.Mutex
	updatedAt time.Time
	unsaved   []model.PomodoroSession
	latest    *model.PomodoroState
	saveErr   error
}

// queue records a state change that still has to reach the database.
func (t *userTimer) queue(event pomodoro.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.updatedAt = event.At.UTC()
	if event.Type == pomodoro.EventCompleted && event.Completed != nil {
		t.unsaved = append(t.unsaved, model.SessionFromCompleted(t.userID, *event.Completed))
	}
	t.latest = &model.PomodoroState{
		UserID:                t.userID,
		SessionType:           event.State.SessionType,
		SessionMinutes:        event.State.SessionMinutes,
		SecondsRemaining:      event.State.SecondsRemaining,
		Running:               event.State.Running,
		CompletedWorkSessions: event.State.CompletedWorkSessions,
		Version:               event.State.Revision,
		UpdatedAt:             t.updatedAt,
	}
}

func (t *userTimer) pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest != nil
}

func (t *userTimer) status() (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updatedAt, t.saveErr
}

type StateView struct {
	UserID                string               `json:"userId"`
	SessionType           pomodoro.SessionType `json:"sessionType"`
	SessionLabel          string               `json:"sessionLabel"`
	Status                string               `json:"status"`
	SessionMinutes        int                  `json:"sessionMinutes"`
	RemainingSeconds      int                  `json:"remainingSeconds"`
	Remaining             string               `json:"remaining"`
	CompletedWorkSessions int                  `json:"completedWorkSessions"`
	Settings              pomodoro.Config      `json:"settings"`
	PendingSettings       *pomodoro.Config     `json:"pendingSettings,omitempty"`
	Version               int                  `json:"version"`
	UpdatedAt             time.Time            `json:"updatedAt"`
	ServerTime            time.Time            `json:"serverTime"`

	// SyncError is set while changes are waiting to be written after a
	// failed save.
	SyncError string `json:"syncError,omitempty"`
}

// EventView is the payload of one streamed scheduler event.
type EventView struct {
	Type      pomodoro.EventType     `json:"type"`
	State     StateView              `json:"state"`
	Completed *model.PomodoroSession `json:"completed,omitempty"`
}

type UpdateSettingsInput struct {
	BaseVersion int
	Settings    pomodoro.Config
}

type Stats struct {
	TodaySessions         int                     `json:"todaySessions"`
	TodayFocusMinutes     int                     `json:"todayFocusMinutes"`
	TotalFocusMinutes     int                     `json:"totalFocusMinutes"`
	CompletedWorkSessions int                     `json:"completedWorkSessions"`
	RecentSessions        []model.PomodoroSession `json:"recentSessions"`
}

func NewPomodoroService(
	repo *repository.PomodoroRepository,
	bus *eventbus.Bus,
	clk clock.Clock,
	logger pslog.Logger,
) *PomodoroService {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &PomodoroService{
		repo:   repo,
		bus:    bus,
		clock:  clk,
		log:    logger,
		timers: make(map[string]*userTimer),
	}
}

// Now is the service clock.
func (s *PomodoroService) Now() time.Time {
	return s.clock.Now()
}

// GetState returns the live state. Changes left unsaved by an earlier write
// failure are retried first.
func (s *PomodoroService) GetState(ctx context.Context, userID string) (*StateView, *apperrors.APIError) {
	t, apiErr := s.timer(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}
	if t.pending() {
		if err := s.savePending(t); err != nil {
			s.log.Warn("retry pomodoro save", "user_id", userID, "error", err)
		}
	}
	view := s.view(t, t.scheduler.State())
	return &view, nil
}

func (s *PomodoroService) Start(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.mutate(ctx, userID, baseVersion, pomodoro.StartCommand(), nil)
}

func (s *PomodoroService) Pause(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.mutate(ctx, userID, baseVersion, pomodoro.PauseCommand(), nil)
}

func (s *PomodoroService) Reset(ctx context.Context, userID string, baseVersion int) (*StateView, *apperrors.APIError) {
	return s.mutate(ctx, userID, baseVersion, pomodoro.ResetCommand(), nil)
}

// UpdateSettings hands the new durations to the scheduler, which applies them
// from the next session on, and stores them as the user's settings.
func (s *PomodoroService) UpdateSettings(ctx context.Context, userID string, input UpdateSettingsInput) (*StateView, *apperrors.APIError) {
	if err := input.Settings.Validate(); err != nil {
		return nil, apperrors.InvalidSettings(err)
	}

	return s.mutate(ctx, userID, input.BaseVersion, pomodoro.ReconfigureCommand(input.Settings), func() *apperrors.APIError {
		settings := model.SettingsFromConfig(userID, input.Settings, s.clock.Now().UTC())
		if err := s.repo.SaveSettings(ctx, settings); err != nil {
			return apperrors.Internal("failed to save settings", err)
		}
		return nil
	})
}

// GetHistory returns completed sessions, most recent first.
func (s *PomodoroService) GetHistory(ctx context.Context, userID string, limit int) ([]model.PomodoroSession, *apperrors.APIError) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	sessions, err := s.repo.ListSessions(ctx, userID, limit)
	if err != nil {
		return nil, apperrors.Internal("failed to get history", err)
	}
	return sessions, nil
}

// GetStats summarizes the history. "Today" starts at midnight in now's
// location.
func (s *PomodoroService) GetStats(ctx context.Context, userID string, now time.Time) (*Stats, *apperrors.APIError) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	today, err := s.repo.ListSessionsSince(ctx, userID, dayStart)
	if err != nil {
		return nil, apperrors.Internal("failed to get today's sessions", err)
	}
	workCount, workMinutes, err := s.repo.WorkTotals(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to get totals", err)
	}

	stats := &Stats{
		TodaySessions:         len(today),
		TotalFocusMinutes:     workMinutes,
		CompletedWorkSessions: workCount,
		RecentSessions:        make([]model.PomodoroSession, 0, recentSessionsLimit),
	}
	for _, session := range today {
		if session.SessionType == pomodoro.Work {
			stats.TodayFocusMinutes += session.DurationMinutes
		}
	}
	for i := len(today) - 1; i >= 0 && len(stats.RecentSessions) < recentSessionsLimit; i-- {
		stats.RecentSessions = append(stats.RecentSessions, today[i])
	}
	return stats, nil
}

// Subscribe streams the user's scheduler events until cancel is called.
func (s *PomodoroService) Subscribe(ctx context.Context, userID string) (<-chan eventbus.Event, func(), *apperrors.APIError) {
	if _, apiErr := s.timer(ctx, userID); apiErr != nil {
		return nil, nil, apiErr
	}
	events, cancel := s.bus.Subscribe(userID)
	return events, cancel, nil
}

func (s *PomodoroService) EventView(event eventbus.Event) EventView {
	view := EventView{
		Type:  event.Type,
		State: toStateView(event.UserID, event.State, event.Version, event.At.UTC(), s.clock.Now().UTC()),
	}
	if event.Completed != nil {
		session := model.SessionFromCompleted(event.UserID, *event.Completed)
		view.Completed = &session
	}
	return view
}

// Shutdown pauses every live timer, which persists its countdown, stops their
// tickers and ends all event streams. Later calls fail with 503.
func (s *PomodoroService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	timers := s.timers
	s.timers = make(map[string]*userTimer)
	s.mu.Unlock()

	for _, t := range timers {
		t.ops.Lock()
		t.scheduler.Pause()
		t.scheduler.Close()
		t.ops.Unlock()
		if t.pending() {
			if err := s.savePending(t); err != nil {
				s.log.Error("pomodoro state lost at shutdown", "user_id", t.userID, "error", err)
			}
		}
	}
	s.bus.Close()
	s.log.Info("pomodoro timers stopped", "count", len(timers))
}

// mutate applies cmd if the scheduler is still at baseVersion, then runs
// after. The version check and the command are atomic with respect to
// ticker-driven completions.
func (s *PomodoroService) mutate(
	ctx context.Context,
	userID string,
	baseVersion int,
	cmd pomodoro.Command,
	after func() *apperrors.APIError,
) (*StateView, *apperrors.APIError) {
	t, apiErr := s.timer(ctx, userID)
	if apiErr != nil {
		return nil, apiErr
	}

	t.ops.Lock()
	defer t.ops.Unlock()

	state, err := t.scheduler.Apply(baseVersion, cmd)
	switch {
	case errors.Is(err, pomodoro.ErrStaleRevision):
		return nil, apperrors.Conflict("state_conflict", "state changed on another device", map[string]interface{}{
			"state": s.view(t, state),
		})
	case errors.Is(err, pomodoro.ErrInvalidConfig):
		return nil, apperrors.InvalidSettings(err)
	case err != nil:
		return nil, apperrors.Internal("failed to update timer", err)
	}
	if after != nil {
		if apiErr := after(); apiErr != nil {
			return nil, apiErr
		}
	}

	view := s.view(t, state)
	return &view, nil
}

// timer returns the user's live scheduler, restoring it from the database on
// first use. Restored schedulers are paused.
func (s *PomodoroService) timer(ctx context.Context, userID string) (*userTimer, *apperrors.APIError) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, apperrors.Unavailable("pomodoro service is shutting down")
	}
	if t, ok := s.timers[userID]; ok {
		return t, nil
	}

	settings, err := s.repo.GetSettings(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("state_not_found", "pomodoro state not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get settings", err)
	}
	state, err := s.repo.GetState(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("state_not_found", "pomodoro state not found")
	}
	if err != nil {
		return nil, apperrors.Internal("failed to get state", err)
	}
	sessions, err := s.repo.History(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to get history", err)
	}

	history := make([]pomodoro.CompletedSession, 0, len(sessions))
	for _, session := range sessions {
		history = append(history, session.Completed())
	}

	t := &userTimer{userID: userID, updatedAt: state.UpdatedAt}
	scheduler, err := pomodoro.New(
		settings.Config(),
		pomodoro.WithClock(s.clock),
		pomodoro.WithLogger(s.log.With("user_id", userID)),
		pomodoro.WithRestore(pomodoro.Snapshot{
			SessionType:           state.SessionType,
			SessionMinutes:        state.SessionMinutes,
			SecondsRemaining:      state.SecondsRemaining,
			CompletedWorkSessions: state.CompletedWorkSessions,
			History:               history,
			Revision:              state.Version,
		}),
		pomodoro.WithListener(s.persist(t)),
	)
	if err != nil {
		return nil, apperrors.Internal("failed to restore timer", err)
	}
	t.scheduler = scheduler
	s.timers[userID] = t

	s.log.Debug("pomodoro timer restored", "user_id", userID, "version", state.Version, "history", len(history))
	return t, nil
}

// persist queues every state change for the database and forwards all events
// to the bus. Ticks only reach the bus; the countdown is saved on pause and on
// transitions. A failed write stays queued and is retried with the next
// change or state read.
func (s *PomodoroService) persist(t *userTimer) pomodoro.Listener {
	return func(event pomodoro.Event) {
		if event.Type != pomodoro.EventTick {
			t.queue(event)
			if err := s.savePending(t); err != nil {
				s.log.Error("persist pomodoro state", "user_id", t.userID, "event", event.Type, "version", event.State.Revision, "error", err)
			}
		}
		s.bus.Publish(t.userID, event.State.Revision, event)
	}
}

// savePending writes queued completions in order, then the latest state.
// Whatever fails stays queued.
func (s *PomodoroService) savePending(t *userTimer) error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	sessions := append([]model.PomodoroSession(nil), t.unsaved...)
	latest := t.latest
	t.mu.Unlock()
	if latest == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	saved := 0
	var err error
	for _, session := range sessions {
		if err = s.repo.RecordCompletion(ctx, session, *latest); err != nil {
			break
		}
		saved++
	}
	if err == nil && saved == 0 {
		err = s.repo.SaveState(ctx, *latest)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.unsaved = t.unsaved[saved:]
	t.saveErr = err
	if err == nil && t.latest == latest {
		t.latest = nil
	}
	return err
}

func (s *PomodoroService) view(t *userTimer, state pomodoro.State) StateView {
	updatedAt, saveErr := t.status()
	view := toStateView(t.userID, state, state.Revision, updatedAt, s.clock.Now().UTC())
	if saveErr != nil {
		view.SyncError = "changes not saved yet: " + saveErr.Error()
	}
	return view
}

func toStateView(userID string, state pomodoro.State, version int, updatedAt, now time.Time) StateView {
	status := "paused"
	if state.Running {
		status = "running"
	}
	view := StateView{
		UserID:                userID,
		SessionType:           state.SessionType,
		SessionLabel:          state.SessionType.Label(),
		Status:                status,
		SessionMinutes:        state.SessionMinutes,
		RemainingSeconds:      state.SecondsRemaining,
		Remaining:             pomodoro.FormatRemaining(state.SecondsRemaining),
		CompletedWorkSessions: state.CompletedWorkSessions,
		Settings:              state.Config,
		Version:               version,
		UpdatedAt:             updatedAt,
		ServerTime:            now,
	}
	if state.Pending != nil {
		pending := *state.Pending
		view.PendingSettings = &pending
	}
	return view
}
