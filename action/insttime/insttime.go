// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package insttime implements the insttime action: estimate when the
// operating system was installed. Linux keeps no authoritative record,
// so the handler probes a fixed list of artifacts from most to least
// specific and reports the first that resolves.
package insttime

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args is empty: the action takes no parameters.
type Args struct{}

// InstallTime is the single reply payload. Source names the artifact
// the estimate came from.
type InstallTime struct {
	InstallTimeUnixMS int64  `json:"install_time_unix_ms"`
	Source            string `json:"source"`
}

// Action returns the catalog descriptor, probing the real filesystem
// root.
func Action() action.Descriptor {
	return actionAt("/")
}

func actionAt(root string) action.Descriptor {
	return action.New(protocol.ActionGetInstallTime, func(ctx context.Context, s *session.Session, args Args) error {
		estimate, err := Discover(root)
		if err != nil {
			return err
		}
		return s.Reply(estimate)
	})
}

// Discover probes install-time artifacts under root, in order:
// the Debian/Ubuntu installer log directory mtime, the machine-id
// mtime (written once at first boot), the root filesystem's
// lost+found ctime (set by mkfs), and finally the ctime of root
// itself. Returns an error when no artifact resolves.
//
// Exported because the system metadata action includes the same
// estimate in its reply.
func Discover(root string) (InstallTime, error) {
	probes := []struct {
		path    string
		source  string
		useCtim bool
	}{
		{filepath.Join(root, "var/log/installer"), "installer_log", false},
		{filepath.Join(root, "etc/machine-id"), "machine_id", false},
		{filepath.Join(root, "lost+found"), "lost_found", true},
		{root, "root_ctime", true},
	}
	for _, probe := range probes {
		var stat unix.Stat_t
		if err := unix.Stat(probe.path, &stat); err != nil {
			continue
		}
		spec := stat.Mtim
		if probe.useCtim {
			spec = stat.Ctim
		}
		when := time.Unix(spec.Unix())
		if when.UnixMilli() <= 0 {
			continue
		}
		return InstallTime{
			InstallTimeUnixMS: when.UnixMilli(),
			Source:            probe.source,
		}, nil
	}
	return InstallTime{}, errors.New("no install time artifact found")
}
