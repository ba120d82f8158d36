// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "github.com/sarvex/rrg/lib/codec"

// RequestEnvelope is a single action request from the controller,
// relayed by the transport daemon. Args stays raw until the dispatcher
// has resolved the action; only the action's own decoder knows its
// shape.
type RequestEnvelope struct {
	// SessionID is the controller-assigned identifier tying every
	// reply and the final status back to this request. The controller
	// guarantees it is not reused while this request is in flight.
	SessionID uint64 `cbor:"session_id"`

	// Action selects the catalog entry to execute.
	Action ActionID `cbor:"action"`

	// Args is the CBOR-encoded action arguments. Empty for actions
	// that take none.
	Args codec.RawMessage `cbor:"args,omitempty"`
}

// Reply is one result item of a session. A session emits zero or more
// replies followed by exactly one Status.
type Reply struct {
	SessionID uint64 `cbor:"session_id"`

	// Seq is 1-based and strictly increasing within the session. The
	// terminating status consumes the sequence number after the last
	// reply, so a gap-free sequence proves nothing was dropped.
	Seq uint64 `cbor:"seq"`

	// Payload is the CBOR-encoded result item. Its shape is
	// action-specific.
	Payload codec.RawMessage `cbor:"payload"`
}

// Status terminates a session. Exactly one is emitted per accepted
// request, after that session's last reply.
type Status struct {
	SessionID uint64 `cbor:"session_id"`

	// Seq continues the session's reply sequence.
	Seq uint64 `cbor:"seq"`

	// OK is true when the action ran to completion.
	OK bool `cbor:"ok"`

	// Class is the failure category when OK is false; ClassNone
	// otherwise.
	Class Classification `cbor:"class,omitempty"`

	// Error is the human-readable failure description. Only set
	// when OK is false.
	Error string `cbor:"error,omitempty"`
}

// Heartbeat proves that a long-running session is still alive without
// producing output. The daemon forwards it to the controller's
// liveness tracking.
type Heartbeat struct {
	SessionID uint64 `cbor:"session_id"`
}

// CancelRequest revokes an in-flight session. Cancellation is
// cooperative: the agent flags the session and the handler winds down
// at its next session interaction.
type CancelRequest struct {
	SessionID uint64 `cbor:"session_id"`
}

// StartupInfo announces the agent to the daemon once per connection,
// before any request is served.
type StartupInfo struct {
	// AgentVersion is the full version string of the running build.
	AgentVersion string `cbor:"agent_version"`

	// BootTimeUnixMS is when the host booted, in milliseconds since
	// the Unix epoch. Zero when the boot time could not be read.
	BootTimeUnixMS int64 `cbor:"boot_time_unix_ms,omitempty"`

	// Actions lists the catalog names this agent will serve.
	Actions []string `cbor:"actions"`
}
