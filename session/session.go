// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package session mediates everything between a running action handler
// and the controller: ordered replies, liveness heartbeats, cooperative
// cancellation, and output budgets. The Dispatcher in this package owns
// the session lifecycle; handlers only ever see the Session's reply
// surface.
//
// The package is organized around the request lifecycle:
//
//   - session.go: the per-request Session and its reply/budget rules
//   - dispatcher.go: envelope routing, session tracking, liveness watch
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sarvex/rrg/lib/budget"
	"github.com/sarvex/rrg/lib/clock"
	"github.com/sarvex/rrg/lib/codec"
	"github.com/sarvex/rrg/protocol"
)

// Sentinel errors returned by Session methods. Handlers treat
// ErrCancelled and ErrBudgetExceeded as wind-down signals: stop
// producing, release resources, and return promptly. Returning the
// error unchanged (or wrapped) yields the correct terminal status.
var (
	// ErrCancelled is returned once the session has been revoked.
	ErrCancelled = errors.New("session cancelled")

	// ErrBudgetExceeded is returned when a reply would cross the
	// session's reply-count or payload-byte ceiling. The violation
	// latches: every later Reply fails the same way without encoding
	// or sending anything.
	ErrBudgetExceeded = errors.New("session budget exceeded")

	// ErrFinished is returned when the session has already emitted
	// its terminal status.
	ErrFinished = errors.New("session already finished")
)

// errMalformedArguments classifies argument decode failures. The
// dispatcher wraps the decode error with it so the terminal status
// lands in the right category.
var errMalformedArguments = errors.New("malformed arguments")

// errInternal classifies failures of the engine around the handler
// (panics) rather than the handler's own errors.
var errInternal = errors.New("internal error")

// Sender is the transport-facing side of a session: everything a
// session emits goes through it. Implementations must serialize
// concurrent calls; per-session ordering is already guaranteed by the
// session's own lock.
type Sender interface {
	SendReply(protocol.Reply) error
	SendStatus(protocol.Status) error
	SendHeartbeat(protocol.Heartbeat) error
}

// Session is the mediator for one accepted request. It enforces the
// output contract: replies carry gap-free 1-based sequence numbers,
// budgets bound total output, and after the terminal status nothing
// else leaves the session.
//
// A Session is safe for concurrent use, though a typical handler calls
// it from a single goroutine.
type Session struct {
	id     uint64
	action protocol.ActionID

	sender            Sender
	budget            budget.Budget
	heartbeatInterval time.Duration
	clock             clock.Clock
	logger            *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc

	mu             sync.Mutex
	replies        uint64 // replies emitted; the next reply gets Seq replies+1
	bytes          uint64 // cumulative encoded payload bytes
	lastLiveness   time.Time
	lastHeartbeat  time.Time // last wire heartbeat, for rate limiting
	budgetViolated bool
	cancelObserved bool // a session call reported ErrCancelled to the handler
	finished       bool
}

// Config holds the parameters for creating a Session outside the
// dispatcher (handler tests, mainly; production sessions are created
// by Dispatcher.Handle).
type Config struct {
	// SessionID ties replies and the status to the originating
	// request.
	SessionID uint64

	// Action is the catalog entry this session executes. Used in
	// logging only.
	Action protocol.ActionID

	// Sender receives everything the session emits. Required.
	Sender Sender

	// Budget bounds the session's output. The zero value means
	// unlimited.
	Budget budget.Budget

	// HeartbeatInterval is the minimum spacing between wire
	// heartbeats. Zero sends one for every Heartbeat call.
	HeartbeatInterval time.Duration

	// Clock provides the current time. Defaults to clock.Real().
	Clock clock.Clock

	// Logger receives operational messages. Defaults to discard.
	Logger *slog.Logger
}

// New creates a Session whose context is derived from ctx. Panics if
// cfg.Sender is nil.
func New(ctx context.Context, cfg Config) *Session {
	if cfg.Sender == nil {
		panic("session: Config.Sender is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sessionCtx, cancel := context.WithCancelCause(ctx)
	return &Session{
		id:                cfg.SessionID,
		action:            cfg.Action,
		sender:            cfg.Sender,
		budget:            cfg.Budget,
		heartbeatInterval: cfg.HeartbeatInterval,
		clock:             clk,
		logger:            logger,
		ctx:               sessionCtx,
		cancel:            cancel,
		lastLiveness:      clk.Now(),
	}
}

// ID returns the controller-assigned session identifier.
func (s *Session) ID() uint64 { return s.id }

// Action returns the catalog entry this session executes.
func (s *Session) Action() protocol.ActionID { return s.action }

// Context returns the session's context. It is cancelled together with
// the session, so handlers can pass it to blocking calls.
func (s *Session) Context() context.Context { return s.ctx }

// Reply encodes value and emits it as the session's next reply.
//
// The reply-count ceiling is checked before encoding and the byte
// ceiling against the encoded size before anything reaches the
// transport, so a reply that would cross a ceiling is never partially
// sent. Returns ErrCancelled, ErrBudgetExceeded, or ErrFinished as
// wind-down signals; encoding and transport failures are wrapped.
func (s *Session) Reply(value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return ErrFinished
	}
	if err := s.checkCancelledLocked(); err != nil {
		return err
	}
	if s.budgetViolated {
		return ErrBudgetExceeded
	}
	if s.budget.MaxReplies > 0 && s.replies >= s.budget.MaxReplies {
		s.budgetViolated = true
		return ErrBudgetExceeded
	}

	payload, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	if s.budget.MaxBytes > 0 && s.bytes+uint64(len(payload)) > s.budget.MaxBytes {
		s.budgetViolated = true
		return ErrBudgetExceeded
	}

	reply := protocol.Reply{
		SessionID: s.id,
		Seq:       s.replies + 1,
		Payload:   payload,
	}
	if err := s.sender.SendReply(reply); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	s.replies++
	s.bytes += uint64(len(payload))
	s.lastLiveness = s.clock.Now()
	return nil
}

// Heartbeat signals liveness without producing output. Long-running
// handlers call it from their inner loops; the session rate-limits the
// wire traffic to one heartbeat per configured interval, so calling it
// every iteration is cheap. Returns ErrCancelled once the session has
// been revoked, making the hot loop's cancellation poll and its
// liveness signal the same call.
func (s *Session) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return ErrFinished
	}
	if err := s.checkCancelledLocked(); err != nil {
		return err
	}

	now := s.clock.Now()
	s.lastLiveness = now
	if !s.lastHeartbeat.IsZero() && now.Sub(s.lastHeartbeat) < s.heartbeatInterval {
		return nil
	}
	if err := s.sender.SendHeartbeat(protocol.Heartbeat{SessionID: s.id}); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	s.lastHeartbeat = now
	return nil
}

// IsCancelled reports whether the session has been revoked. Handlers
// with natural checkpoints (per directory, per chunk) poll it and wind
// down when it turns true.
func (s *Session) IsCancelled() bool {
	if s.ctx.Err() == nil {
		return false
	}
	s.mu.Lock()
	s.cancelObserved = true
	s.mu.Unlock()
	return true
}

// checkCancelledLocked records that the handler has observed
// cancellation and returns ErrCancelled if the session is revoked.
// Must be called with s.mu held.
func (s *Session) checkCancelledLocked() error {
	if s.ctx.Err() != nil {
		s.cancelObserved = true
		return ErrCancelled
	}
	return nil
}

// liveness returns the time of the session's last interaction, for the
// dispatcher's liveness watch.
func (s *Session) liveness() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLiveness
}

// stats returns the emitted reply count and cumulative payload bytes.
func (s *Session) stats() (replies, bytes uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replies, s.bytes
}

// finish derives the terminal status from the handler outcome and
// emits it. Exactly one finish succeeds per session; later calls
// return ErrFinished and emit nothing. After finish, Reply and
// Heartbeat fail with ErrFinished.
//
// Classification of a non-nil outcome follows errors.Is in order:
// malformed arguments, internal, budget, cancelled, then handler
// error. A nil outcome is still Cancelled if the handler observed
// cancellation through a session call, and BudgetExceeded if a ceiling
// violation latched; otherwise it is OK.
func (s *Session) finish(outcome error) (protocol.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return protocol.Status{}, ErrFinished
	}
	s.finished = true

	status := s.statusLocked(outcome)
	if err := s.sender.SendStatus(status); err != nil {
		s.logger.Error("status send failed",
			"session_id", s.id,
			"action", s.action.String(),
			"error", err,
		)
	}
	s.cancel(nil)
	return status, nil
}

// statusLocked builds the terminal status for the given outcome. Must
// be called with s.mu held.
func (s *Session) statusLocked(outcome error) protocol.Status {
	status := protocol.Status{
		SessionID: s.id,
		Seq:       s.replies + 1,
	}
	switch {
	case outcome == nil && s.cancelObserved:
		status.Class = protocol.ClassCancelled
		status.Error = s.cancelCauseLocked()
	case outcome == nil && s.budgetViolated:
		status.Class = protocol.ClassBudgetExceeded
		status.Error = ErrBudgetExceeded.Error()
	case outcome == nil:
		status.OK = true
	case errors.Is(outcome, errMalformedArguments):
		status.Class = protocol.ClassMalformedArguments
		status.Error = outcome.Error()
	case errors.Is(outcome, errInternal):
		status.Class = protocol.ClassInternalError
		status.Error = outcome.Error()
	case errors.Is(outcome, ErrBudgetExceeded):
		status.Class = protocol.ClassBudgetExceeded
		status.Error = outcome.Error()
	case errors.Is(outcome, ErrCancelled):
		status.Class = protocol.ClassCancelled
		status.Error = outcome.Error()
	default:
		status.Class = protocol.ClassHandlerError
		status.Error = outcome.Error()
	}
	return status
}

// cancelCauseLocked renders the cancellation cause for a status
// message. Must be called with s.mu held.
func (s *Session) cancelCauseLocked() string {
	cause := context.Cause(s.ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return ErrCancelled.Error()
	}
	return cause.Error()
}
