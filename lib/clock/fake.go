// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given time. Time moves only
// when Advance is called; every timer, ticker, and sleep registers a
// pending event that fires when the clock crosses its deadline.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests. Heartbeat pacing,
// liveness scans, and journal pruning all run against it so their
// timing behavior can be asserted exactly.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	changed *sync.Cond

	// pending is sorted by deadline, soonest first. Events with equal
	// deadlines keep registration order.
	pending []*event
}

// event is one pending timer, ticker, or sleep.
type event struct {
	when time.Time
	ch   chan time.Time

	// period reschedules the event after each fire. Zero for the
	// one-shot After and Sleep events.
	period time.Duration

	// stopped marks a ticker whose Stop was called. Stopped events
	// never fire and fall off the pending list lazily.
	stopped bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives the deadline once the clock
// advances past it. A non-positive d delivers immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.insertLocked(&event{when: c.now.Add(d), ch: ch})
	return ch
}

// NewTicker returns a Ticker firing every d of fake time. Panics if
// d <= 0, matching time.NewTicker.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	e := &event{when: c.now.Add(d), ch: ch, period: d}
	c.insertLocked(e)

	return &Ticker{
		C: ch,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			e.stopped = true
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past the
// deadline. A non-positive d returns immediately.
func (c *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-c.After(d)
}

// Advance moves the clock forward by d, firing every pending event
// whose deadline falls within the new window. Events fire one at a
// time in deadline order, and each delivers its own deadline, the way
// a real ticker delivers the tick's scheduled time rather than the
// moment the consumer reads it. A ticker crossed several times fires
// once per period; ticks that find the channel buffer full are
// dropped, matching time.Ticker.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.now.Add(d)
	for {
		e := c.popDueLocked(target)
		if e == nil {
			break
		}
		c.now = e.when
		select {
		case e.ch <- e.when:
		default:
		}
		if e.period > 0 {
			e.when = e.when.Add(e.period)
			c.insertLocked(e)
		}
	}
	c.now = target
}

// popDueLocked removes and returns the soonest live event with a
// deadline at or before target, discarding stopped events on the way.
// Returns nil when nothing else is due. Must be called with c.mu held.
func (c *FakeClock) popDueLocked(target time.Time) *event {
	for len(c.pending) > 0 {
		e := c.pending[0]
		if e.stopped {
			c.pending = c.pending[1:]
			continue
		}
		if e.when.After(target) {
			return nil
		}
		c.pending = c.pending[1:]
		return e
	}
	return nil
}

// insertLocked places e in deadline order, after any event with the
// same deadline. Must be called with c.mu held.
func (c *FakeClock) insertLocked(e *event) {
	i := sort.Search(len(c.pending), func(i int) bool {
		return c.pending[i].when.After(e.when)
	})
	c.pending = append(c.pending, nil)
	copy(c.pending[i+1:], c.pending[i:])
	c.pending[i] = e
	c.changed.Broadcast()
}

// WaitForTimers blocks until at least n events are pending. It closes
// the race between a goroutine registering its timer and the test
// advancing the clock: wait for the registration, then advance.
//
//	go func() { fakeClock.Sleep(5 * time.Second) }()
//	fakeClock.WaitForTimers(1)
//	fakeClock.Advance(5 * time.Second)
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.livePendingLocked() < n {
		c.changed.Wait()
	}
}

// PendingCount reports how many live events are waiting to fire.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.livePendingLocked()
}

// livePendingLocked counts pending events that have not been stopped.
// Must be called with c.mu held.
func (c *FakeClock) livePendingLocked() int {
	count := 0
	for _, e := range c.pending {
		if !e.stopped {
			count++
		}
	}
	return count
}
