// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package interfaces implements the interfaces action: one reply per
// network interface in kernel index order, with addresses in CIDR
// notation.
package interfaces

import (
	"context"
	"fmt"
	"net"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args is empty: the action takes no parameters.
type Args struct{}

// Interface is one reply.
type Interface struct {
	Name  string   `json:"name"`
	Index int      `json:"index"`
	MAC   string   `json:"mac,omitempty"`
	Flags []string `json:"flags,omitempty"`
	Addrs []string `json:"addrs,omitempty"`
}

// Action returns the catalog descriptor.
func Action() action.Descriptor {
	return action.New(protocol.ActionListInterfaces, run)
}

func run(ctx context.Context, s *session.Session, args Args) error {
	interfaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("enumerating interfaces: %w", err)
	}
	for _, iface := range interfaces {
		record := Interface{
			Name:  iface.Name,
			Index: iface.Index,
			MAC:   iface.HardwareAddr.String(),
			Flags: flagNames(iface.Flags),
		}
		// Address enumeration can fail for an interface that is being
		// torn down; report it without addresses.
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				record.Addrs = append(record.Addrs, addr.String())
			}
		}
		if err := s.Reply(record); err != nil {
			return err
		}
	}
	return nil
}

var knownFlags = []struct {
	flag net.Flags
	name string
}{
	{net.FlagUp, "up"},
	{net.FlagBroadcast, "broadcast"},
	{net.FlagLoopback, "loopback"},
	{net.FlagPointToPoint, "pointtopoint"},
	{net.FlagMulticast, "multicast"},
	{net.FlagRunning, "running"},
}

func flagNames(flags net.Flags) []string {
	var names []string
	for _, known := range knownFlags {
		if flags&known.flag != 0 {
			names = append(names, known.name)
		}
	}
	return names
}
