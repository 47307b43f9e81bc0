// Package clock abstracts wall time and recurring callbacks so timer logic can
// be driven by synthetic time in tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock provides the current time and recurring callbacks.
type Clock interface {
	Now() time.Time
	// Every invokes fn once per interval until stop is called. stop never
	// blocks on a callback that is currently running.
	Every(interval time.Duration, fn func()) (stop func())
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC()
}

func (Real) Every(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}

// Fake is a manually advanced clock. Callbacks registered with Every fire
// synchronously from Advance, in due-time order.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	subs   map[int]*fakeSub
}

type fakeSub struct {
	id       int
	interval time.Duration
	next     time.Time
	fn       func()
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start, subs: make(map[int]*fakeSub)}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Every(interval time.Duration, fn func()) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs[id] = &fakeSub{id: id, interval: interval, next: f.now.Add(interval), fn: fn}
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Subscribers reports how many recurring callbacks are registered.
func (f *Fake) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Advance moves the clock forward by d, firing every callback whose due time
// falls within the window. A callback may stop itself or others while firing.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		due := f.nextDue(target)
		if due == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = due.next
		due.next = due.next.Add(due.interval)
		fn := due.fn
		f.mu.Unlock()
		fn()
	}
}

func (f *Fake) nextDue(target time.Time) *fakeSub {
	candidates := make([]*fakeSub, 0, len(f.subs))
	for _, sub := range f.subs {
		if !sub.next.After(target) {
			candidates = append(candidates, sub)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].next.Equal(candidates[j].next) {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].next.Before(candidates[j].next)
	})
	return candidates[0]
}
