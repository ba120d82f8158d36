// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package action defines the executable form of the agent's request
// handlers. A Descriptor pairs an action identifier with a typed
// argument decoder and a run function; a Registry collects descriptors
// and serves catalog lookups during dispatch.
//
// Handler packages (stat, listdir, timeline, and the rest) each expose
// a constructor returning a Descriptor. The catalog package assembles
// them into the registry the agent serves.
package action

import (
	"context"
	"fmt"

	"github.com/sarvex/rrg/lib/codec"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Descriptor is one catalog entry: an action identifier bound to its
// argument type and handler. Construct with New; the zero value is not
// usable.
type Descriptor struct {
	id     protocol.ActionID
	decode func(args []byte) (any, error)
	run    func(ctx context.Context, s *session.Session, args any) error
}

// New builds a Descriptor for id whose arguments decode into A. Empty
// argument bytes decode to A's zero value, so actions whose arguments
// are all optional accept a bare request. New panics if run is nil.
func New[A any](id protocol.ActionID, run func(ctx context.Context, s *session.Session, args A) error) Descriptor {
	if run == nil {
		panic(fmt.Sprintf("action: nil run function for %v", id))
	}
	return Descriptor{
		id: id,
		decode: func(raw []byte) (any, error) {
			var args A
			if len(raw) > 0 {
				if err := codec.Unmarshal(raw, &args); err != nil {
					return nil, err
				}
			}
			return args, nil
		},
		run: func(ctx context.Context, s *session.Session, args any) error {
			return run(ctx, s, args.(A))
		},
	}
}

// ID returns the action identifier this descriptor serves.
func (d Descriptor) ID() protocol.ActionID {
	return d.id
}

// Name returns the wire name of the action.
func (d Descriptor) Name() string {
	return d.id.String()
}

// Decode parses raw argument bytes into the descriptor's argument
// type.
func (d Descriptor) Decode(args []byte) (any, error) {
	return d.decode(args)
}

// Run executes the handler. The args value must come from Decode on
// the same descriptor.
func (d Descriptor) Run(ctx context.Context, s *session.Session, args any) error {
	return d.run(ctx, s, args)
}
