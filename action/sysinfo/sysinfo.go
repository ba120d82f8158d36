// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package sysinfo implements the get_system_metadata action: a single
// reply describing the monitored host. Collection never fails outright;
// missing or unreadable sources produce zero-valued fields, because a
// minimal container without an os-release file is still a host worth
// describing.
package sysinfo

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/action/insttime"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args is empty: the action takes no parameters.
type Args struct{}

// SystemMetadata is the single reply payload.
type SystemMetadata struct {
	Kind              string `json:"kind"`
	Hostname          string `json:"hostname,omitempty"`
	FQDN              string `json:"fqdn,omitempty"`
	KernelRelease     string `json:"kernel_release,omitempty"`
	KernelVersion     string `json:"kernel_version,omitempty"`
	Arch              string `json:"arch,omitempty"`
	OSName            string `json:"os_name,omitempty"`
	OSVersion         string `json:"os_version,omitempty"`
	BootTimeUnixMS    int64  `json:"boot_time_unix_ms,omitempty"`
	InstallTimeUnixMS int64  `json:"install_time_unix_ms,omitempty"`
}

// Action returns the catalog descriptor, collecting from the real
// filesystem root.
func Action() action.Descriptor {
	return actionFrom("/")
}

// BootTimeUnixMS reports the host boot time from /proc/stat, or zero
// when unavailable. The agent announces it in its startup frame.
func BootTimeUnixMS() int64 {
	return readBootTime("/proc/stat")
}

func actionFrom(root string) action.Descriptor {
	return action.New(protocol.ActionGetSystemMetadata, func(ctx context.Context, s *session.Session, args Args) error {
		return s.Reply(collectFrom(root))
	})
}

// collectFrom gathers host metadata with root-relative paths so tests
// can point at synthetic filesystems. uname(2) and the hostname are
// host-global and ignore root.
func collectFrom(root string) SystemMetadata {
	info := SystemMetadata{Kind: "linux"}

	info.Hostname, _ = os.Hostname()
	if strings.Contains(info.Hostname, ".") {
		info.FQDN = info.Hostname
	}

	var uts unix.Utsname
	if err := unix.Uname(&uts); err == nil {
		info.KernelRelease = nulTerminated(uts.Release[:])
		info.KernelVersion = nulTerminated(uts.Version[:])
		info.Arch = nulTerminated(uts.Machine[:])
	}

	name, version := readOSRelease(
		filepath.Join(root, "etc/os-release"),
		filepath.Join(root, "usr/lib/os-release"),
	)
	info.OSName = name
	info.OSVersion = version

	info.BootTimeUnixMS = readBootTime(filepath.Join(root, "proc/stat"))

	if estimate, err := insttime.Discover(root); err == nil {
		info.InstallTimeUnixMS = estimate.InstallTimeUnixMS
	}

	return info
}

// nulTerminated converts a fixed-size uname field to a string, stopping
// at the first null byte.
func nulTerminated(field []byte) string {
	for i, value := range field {
		if value == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}

// readOSRelease parses the first readable os-release file from paths
// and returns the NAME and VERSION_ID values. The format is KEY=VALUE
// lines with optional single or double quoting.
func readOSRelease(paths ...string) (name, version string) {
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			continue
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			value = strings.Trim(value, `"'`)
			switch key {
			case "NAME":
				name = value
			case "VERSION_ID":
				version = value
			}
		}
		return name, version
	}
	return "", ""
}

// readBootTime extracts the btime line (boot time in epoch seconds)
// from a /proc/stat file. Returns 0 when absent or unparsable.
func readBootTime(path string) int64 {
	file, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 2 || fields[0] != "btime" {
			continue
		}
		seconds, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0
		}
		return time.Unix(seconds, 0).UnixMilli()
	}
	return 0
}
