// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so timing behavior
// can be tested without waiting for it.
//
// The agent's timing surface is small but load-bearing: heartbeat
// rate limiting, the liveness watch that cancels silent sessions, and
// journal retention pruning. All of it takes a [Clock] instead of
// calling the time package, so tests can drive these paths with a
// [FakeClock] and assert deadlines exactly.
//
// # Wiring Pattern
//
// Structs carry a Clock field, filled with Real() in production:
//
//	dispatcher, err := session.NewDispatcher(session.DispatcherConfig{
//	    Clock: clock.Real(),
//	    // ...
//	})
//
// and a Fake in tests:
//
//	fc := clock.Fake(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
//	// ... start the code under test ...
//	fc.WaitForTimers(1)
//	fc.Advance(5 * time.Second)
//
// # Synchronizing With the Fake
//
// Registering a timer and advancing the clock race when they happen
// on different goroutines. [FakeClock.WaitForTimers] closes that
// race: it blocks until the expected number of timers is registered,
// after which Advance fires them deterministically. Tests built this
// way contain no real sleeps at all.
package clock
