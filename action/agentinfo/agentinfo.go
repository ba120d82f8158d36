// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentinfo implements the metadata action: a single reply
// identifying the agent build to the controller.
package agentinfo

import (
	"context"
	"runtime"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/lib/version"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args is empty: the action takes no parameters.
type Args struct{}

// Metadata is the single reply payload.
type Metadata struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoOS      string `json:"go_os"`
	GoArch    string `json:"go_arch"`
}

// Action returns the catalog descriptor.
func Action() action.Descriptor {
	return action.New(protocol.ActionGetAgentMetadata, run)
}

func run(ctx context.Context, s *session.Session, args Args) error {
	return s.Reply(Metadata{
		Name:      "rrg",
		Version:   version.Short(),
		Commit:    version.Commit(),
		BuildTime: version.BuildTime,
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	})
}
