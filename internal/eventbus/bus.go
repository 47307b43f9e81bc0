// Package eventbus fans pomodoro events out to per-user stream subscribers.
package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"

	"focusflow/backend/internal/pomodoro"
)

// Event is a scheduler event addressed to one user.
type Event struct {
	UserID  string
	Version int
	pomodoro.Event
}

// Bus delivers events to every subscriber of the event's user. Slow
// subscribers lose events rather than block the publisher.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]struct{}
	log    pslog.Logger
	depth  int
	closed bool
}

func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[string]map[chan Event]struct{}),
		log:   logger,
		depth: 64,
	}
}

// Subscribe registers a subscriber for the user and returns a channel + cancel.
func (b *Bus) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	userSubs := b.subs[userID]
	if userSubs == nil {
		userSubs = make(map[chan Event]struct{})
		b.subs[userID] = userSubs
	}
	userSubs[ch] = struct{}{}
	count := len(userSubs)
	b.mu.Unlock()
	b.log.With("user", userID).Debug("eventbus subscribe", "subs", count)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[userID]
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			if len(subs) == 0 {
				delete(b.subs, userID)
			}
			close(ch)
			b.log.With("user", userID).Debug("eventbus unsubscribe")
		})
	}
}

// Publish sends the event, stamped with the state version it produced, to the
// user's subscribers.
func (b *Bus) Publish(userID string, version int, event pomodoro.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	userSubs := b.subs[userID]
	if len(userSubs) == 0 {
		return
	}
	dropped := 0
	for sub := range userSubs {
		select {
		case sub <- Event{UserID: userID, Version: version, Event: event}:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.log.With("user", userID).Trace("eventbus dropped", "count", dropped, "event", event.Type)
	}
}

// Subscribers reports the number of live subscriptions for a user.
func (b *Bus) Subscribers(userID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[userID])
}

// Close ends every subscription. Later subscriptions receive a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	count := 0
	for userID, subs := range b.subs {
		for ch := range subs {
			close(ch)
			count++
		}
		delete(b.subs, userID)
	}
	b.log.Debug("eventbus closed", "subs", count)
}
