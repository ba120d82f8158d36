// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Classification is the failure taxonomy carried by a failed Status.
// The controller branches on these values, so they are wire constants:
// once assigned, a value is never reused for a different category.
type Classification uint8

const (
	// ClassNone marks a successful status. Never carried alongside an
	// error message.
	ClassNone Classification = 0

	// ClassUnknownAction: the requested action ID is not in this
	// agent's catalog. Reported without creating a session.
	ClassUnknownAction Classification = 1

	// ClassMalformedArguments: the action is known but its serialized
	// arguments do not decode to the expected shape.
	ClassMalformedArguments Classification = 2

	// ClassBudgetExceeded: the session hit its reply-count or
	// payload-byte ceiling before the handler finished.
	ClassBudgetExceeded Classification = 3

	// ClassCancelled: the session was revoked (controller cancel,
	// shutdown, or liveness timeout) and the handler wound down.
	ClassCancelled Classification = 4

	// ClassHandlerError: the handler itself failed; the status message
	// carries the handler's error text.
	ClassHandlerError Classification = 5

	// ClassInternalError: the engine failed around the handler
	// (panic, or termination without a recorded outcome).
	ClassInternalError Classification = 6
)

// String returns the snake_case name of the classification, matching
// what the journal stores and logs print.
func (c Classification) String() string {
	switch c {
	case ClassNone:
		return "ok"
	case ClassUnknownAction:
		return "unknown_action"
	case ClassMalformedArguments:
		return "malformed_arguments"
	case ClassBudgetExceeded:
		return "budget_exceeded"
	case ClassCancelled:
		return "cancelled"
	case ClassHandlerError:
		return "handler_error"
	case ClassInternalError:
		return "internal_error"
	}
	return fmt.Sprintf("classification(%d)", uint8(c))
}
