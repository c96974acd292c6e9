// Package timeutil puts the guidance loop's timers behind an interface so
// tests can drive countdowns and timeouts by hand.
package timeutil

import (
	"sync"
	"time"
)

// Clock is the time source used by the guidance machine and recorders.
type Clock interface {
	Now() time.Time
	// NewTimer fires once, after d.
	NewTimer(d time.Duration) Timer
	// NewTicker fires every d until stopped.
	NewTicker(d time.Duration) Ticker
}

type Timer interface {
	C() <-chan time.Time
	// Stop reports whether the timer was still armed.
	Stop() bool
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer { return realTimer{time.NewTimer(d)} }

func (RealClock) NewTicker(d time.Duration) Ticker { return realTicker{time.NewTicker(d)} }

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock only moves when Advance is called. Every alarm channel holds at
// most one pending value, so advancing past several ticker periods at once
// delivers a single tick.
type MockClock struct {
	mu     sync.Mutex
	now    time.Time
	alarms []*mockAlarm
}

func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves time forward by d and fires whatever came due.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := append([]*mockAlarm(nil), c.alarms...)
	c.mu.Unlock()

	for _, a := range due {
		a.fire(now)
	}

	c.mu.Lock()
	live := c.alarms[:0]
	for _, a := range c.alarms {
		if a.armed() {
			live = append(live, a)
		}
	}
	c.alarms = live
	c.mu.Unlock()
}

// Active counts timers and tickers that can still fire.
func (c *MockClock) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.alarms {
		if a.armed() {
			n++
		}
	}
	return n
}

func (c *MockClock) add(d, every time.Duration) *mockAlarm {
	c.mu.Lock()
	defer c.mu.Unlock()
	a := &mockAlarm{ch: make(chan time.Time, 1), next: c.now.Add(d), every: every}
	c.alarms = append(c.alarms, a)
	return a
}

func (c *MockClock) NewTimer(d time.Duration) Timer {
	return mockTimer{c.add(d, 0)}
}

func (c *MockClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("timeutil: non-positive interval for NewTicker")
	}
	return mockTicker{c.add(d, d)}
}

// mockAlarm is a timer when every is zero and a ticker otherwise.
type mockAlarm struct {
	mu    sync.Mutex
	ch    chan time.Time
	next  time.Time
	every time.Duration
	done  bool
}

func (a *mockAlarm) armed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.done
}

func (a *mockAlarm) stop() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	was := !a.done
	a.done = true
	return was
}

func (a *mockAlarm) fire(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.done || now.Before(a.next) {
		return
	}
	select {
	case a.ch <- now:
	default:
	}
	if a.every == 0 {
		a.done = true
		return
	}
	for !a.next.After(now) {
		a.next = a.next.Add(a.every)
	}
}

type mockTimer struct{ *mockAlarm }

func (t mockTimer) C() <-chan time.Time { return t.ch }
func (t mockTimer) Stop() bool          { return t.stop() }

type mockTicker struct{ *mockAlarm }

func (t mockTicker) C() <-chan time.Time { return t.ch }
func (t mockTicker) Stop()               { t.stop() }
