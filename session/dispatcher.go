// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sarvex/rrg/lib/budget"
	"github.com/sarvex/rrg/lib/clock"
	"github.com/sarvex/rrg/protocol"
)

// Action is the dispatcher's view of one catalog entry: decode the raw
// arguments, then run the handler. The action package provides the
// implementation; the indirection keeps this package free of decode
// details.
type Action interface {
	// Decode parses the raw CBOR arguments into the action's typed
	// argument value.
	Decode(args []byte) (any, error)

	// Run executes the handler with arguments previously produced by
	// Decode.
	Run(ctx context.Context, s *Session, args any) error
}

// Catalog resolves action IDs to runnable entries.
type Catalog interface {
	Lookup(id protocol.ActionID) (Action, bool)
}

// Journal records request lifecycle events for crash detection and
// audit. Implementations must absorb their own failures: the
// dispatcher never blocks or fails a request on journaling.
type Journal interface {
	// Begin records an accepted request before its handler starts.
	Begin(sessionID uint64, action protocol.ActionID, received time.Time)

	// Finish completes the record started by Begin.
	Finish(sessionID uint64, status protocol.Status, replies, bytes uint64, finished time.Time)

	// Reject records a request that never got a session: unknown
	// action, or a session ID already in flight.
	Reject(sessionID uint64, action protocol.ActionID, reason string, at time.Time)
}

// DispatcherConfig holds the parameters for creating a Dispatcher.
type DispatcherConfig struct {
	// Catalog resolves incoming action IDs. Required.
	Catalog Catalog

	// Sender receives everything the dispatcher and its sessions
	// emit. Required.
	Sender Sender

	// Budgets resolves the per-action output ceilings. Nil means
	// unlimited for every action.
	Budgets *budget.Table

	// HeartbeatInterval is the minimum spacing between wire
	// heartbeats of one session. Zero disables rate limiting.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout is how long a session may go without any
	// liveness signal (reply or heartbeat) before Watch cancels it.
	// Zero disables the liveness watch.
	HeartbeatTimeout time.Duration

	// PollInterval is the liveness watch's scan cadence. Zero
	// disables the liveness watch.
	PollInterval time.Duration

	// Clock provides the current time. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. Defaults to discard.
	Logger *slog.Logger

	// Journal records request lifecycles. Nil disables journaling.
	Journal Journal
}

// Dispatcher routes request envelopes to action handlers through
// sessions. It guarantees the engine's output contract: every accepted
// request terminates in exactly one status, unknown actions are
// rejected without a session, and a session ID is never live twice.
type Dispatcher struct {
	catalog           Catalog
	sender            Sender
	budgets           *budget.Table
	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	pollInterval      time.Duration
	clock             clock.Clock
	logger            *slog.Logger
	journal           Journal

	mu       sync.Mutex
	inFlight map[uint64]*Session
}

// NewDispatcher creates a Dispatcher from cfg.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("dispatcher: Catalog is required")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("dispatcher: Sender is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		catalog:           cfg.Catalog,
		sender:            cfg.Sender,
		budgets:           cfg.Budgets,
		heartbeatInterval: cfg.HeartbeatInterval,
		heartbeatTimeout:  cfg.HeartbeatTimeout,
		pollInterval:      cfg.PollInterval,
		clock:             clk,
		logger:            logger,
		journal:           cfg.Journal,
		inFlight:          make(map[uint64]*Session),
	}, nil
}

// Handle executes one request envelope to completion: resolve the
// action, create the session, decode the arguments, run the handler,
// and emit the terminal status. It blocks until the request is done;
// the caller decides concurrency by invoking it from worker
// goroutines.
//
// The ctx parameter is the parent of the session's context: cancelling
// it revokes the session like a controller cancel would.
func (d *Dispatcher) Handle(ctx context.Context, envelope protocol.RequestEnvelope) {
	act, ok := d.catalog.Lookup(envelope.Action)
	if !ok {
		d.rejectUnknown(envelope)
		return
	}

	var b budget.Budget
	if d.budgets != nil {
		b = d.budgets.Lookup(envelope.Action)
	}

	d.mu.Lock()
	if _, exists := d.inFlight[envelope.SessionID]; exists {
		d.mu.Unlock()
		// The live session still owes the single status for this ID;
		// emitting another here would double-terminate it.
		d.logger.Warn("session id already in flight, dropping request",
			"session_id", envelope.SessionID,
			"action", envelope.Action.String(),
		)
		if d.journal != nil {
			d.journal.Reject(envelope.SessionID, envelope.Action, "session id already in flight", d.clock.Now())
		}
		return
	}
	s := New(ctx, Config{
		SessionID:         envelope.SessionID,
		Action:            envelope.Action,
		Sender:            d.sender,
		Budget:            b,
		HeartbeatInterval: d.heartbeatInterval,
		Clock:             d.clock,
		Logger:            d.logger,
	})
	d.inFlight[envelope.SessionID] = s
	d.mu.Unlock()
	defer d.untrack(envelope.SessionID)

	if d.journal != nil {
		d.journal.Begin(s.id, s.action, d.clock.Now())
	}

	// Argument decoding happens after session creation so that a
	// malformed request still terminates in a correctly-sequenced
	// status.
	var outcome error
	args, decodeErr := act.Decode(envelope.Args)
	if decodeErr != nil {
		outcome = fmt.Errorf("%w: %v", errMalformedArguments, decodeErr)
	} else {
		outcome = d.runHandler(act, s, args)
	}

	status, err := s.finish(outcome)
	if err != nil {
		return
	}
	if !status.OK {
		d.logger.Info("session failed",
			"session_id", s.id,
			"action", s.action.String(),
			"class", status.Class.String(),
			"error", status.Error,
		)
	}
	if d.journal != nil {
		replies, bytes := s.stats()
		d.journal.Finish(s.id, status, replies, bytes, d.clock.Now())
	}
}

// runHandler invokes the handler with panic containment. A panicking
// handler must not take the agent down; it becomes an internal-error
// status like any other engine failure.
func (d *Dispatcher) runHandler(act Action, s *Session, args any) (outcome error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("handler panic",
				"session_id", s.id,
				"action", s.action.String(),
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			outcome = fmt.Errorf("%w: handler panic: %v", errInternal, recovered)
		}
	}()
	return act.Run(s.ctx, s, args)
}

// rejectUnknown reports an unresolvable action ID. No session exists,
// but the controller still gets its terminal status for the envelope.
func (d *Dispatcher) rejectUnknown(envelope protocol.RequestEnvelope) {
	d.logger.Warn("unknown action",
		"session_id", envelope.SessionID,
		"action_id", uint32(envelope.Action),
	)
	status := protocol.Status{
		SessionID: envelope.SessionID,
		Seq:       1,
		Class:     protocol.ClassUnknownAction,
		Error:     fmt.Sprintf("unknown action id %d", uint32(envelope.Action)),
	}
	if err := d.sender.SendStatus(status); err != nil {
		d.logger.Error("status send failed",
			"session_id", envelope.SessionID,
			"error", err,
		)
	}
	if d.journal != nil {
		d.journal.Reject(envelope.SessionID, envelope.Action, "unknown action", d.clock.Now())
	}
}

// untrack removes a finished session from the in-flight map.
func (d *Dispatcher) untrack(sessionID uint64) {
	d.mu.Lock()
	delete(d.inFlight, sessionID)
	d.mu.Unlock()
}

// Cancel revokes the in-flight session with the given ID. The request
// keeps its single terminal status: the handler winds down and the
// normal finish path classifies the outcome as Cancelled. Unknown IDs
// are ignored, since the session may have finished on its own before
// the cancel arrived.
func (d *Dispatcher) Cancel(sessionID uint64, cause error) {
	d.mu.Lock()
	s, ok := d.inFlight[sessionID]
	d.mu.Unlock()
	if !ok {
		return
	}
	d.logger.Info("cancelling session",
		"session_id", sessionID,
		"action", s.action.String(),
	)
	s.cancel(cause)
}

// CancelAll revokes every in-flight session. Used at shutdown.
func (d *Dispatcher) CancelAll(cause error) {
	d.mu.Lock()
	sessions := make([]*Session, 0, len(d.inFlight))
	for _, s := range d.inFlight {
		sessions = append(sessions, s)
	}
	d.mu.Unlock()
	for _, s := range sessions {
		s.cancel(cause)
	}
}

// InFlight returns the number of sessions currently executing.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inFlight)
}

// Watch cancels sessions whose handlers have gone silent: no reply and
// no heartbeat for longer than the heartbeat timeout. It scans at the
// poll interval and blocks until ctx is done. Returns immediately when
// the timeout or the interval is zero.
//
// Cancellation here is cooperative like everywhere else: a stale
// handler's goroutine is only reclaimed when it next touches its
// session or context.
func (d *Dispatcher) Watch(ctx context.Context) {
	if d.heartbeatTimeout <= 0 || d.pollInterval <= 0 {
		return
	}
	ticker := d.clock.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cancelStale()
		}
	}
}

// cancelStale revokes every session whose last liveness signal is
// older than the heartbeat timeout.
func (d *Dispatcher) cancelStale() {
	now := d.clock.Now()
	d.mu.Lock()
	var stale []*Session
	for _, s := range d.inFlight {
		if now.Sub(s.liveness()) > d.heartbeatTimeout {
			stale = append(stale, s)
		}
	}
	d.mu.Unlock()
	for _, s := range stale {
		d.logger.Warn("session liveness timeout",
			"session_id", s.id,
			"action", s.action.String(),
			"timeout", d.heartbeatTimeout,
		)
		s.cancel(fmt.Errorf("%w: no liveness signal for %v", ErrCancelled, d.heartbeatTimeout))
	}
}
