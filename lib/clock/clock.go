// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source injected into everything that paces,
// expires, or timestamps: heartbeat rate limiting, the session
// liveness watch, journal timestamps and retention pruning. Production
// wiring passes Real(); tests pass a Fake and advance it explicitly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once duration d has
	// elapsed. A non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker that delivers on its C channel every
	// d. Panics if d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep blocks the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Call Stop when done with it.
//
// C is buffered with capacity 1, matching time.Ticker: a consumer
// that falls behind loses ticks instead of accumulating a backlog.
type Ticker struct {
	// C delivers the ticks.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. No tick is delivered after Stop returns.
// Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }
