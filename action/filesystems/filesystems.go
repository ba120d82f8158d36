// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package filesystems implements the filesystems action: one reply per
// mounted filesystem, combining the mount table with statfs usage
// numbers. Usage stays zeroed for mounts that refuse statfs (virtual
// filesystems, stale NFS handles) rather than failing the listing.
package filesystems

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args is empty: the action takes no parameters.
type Args struct{}

// Filesystem is one reply: a row of the mount table plus usage.
type Filesystem struct {
	Device         string `json:"device"`
	MountPoint     string `json:"mount_point"`
	FSType         string `json:"fs_type"`
	Options        string `json:"options,omitempty"`
	TotalBytes     uint64 `json:"total_bytes,omitempty"`
	FreeBytes      uint64 `json:"free_bytes,omitempty"`
	AvailableBytes uint64 `json:"available_bytes,omitempty"`
	TotalFiles     uint64 `json:"total_files,omitempty"`
	FreeFiles      uint64 `json:"free_files,omitempty"`
}

// Action returns the catalog descriptor, reading the kernel's mount
// table for this process.
func Action() action.Descriptor {
	return actionFrom("/proc/self/mounts")
}

func actionFrom(mountsPath string) action.Descriptor {
	return action.New(protocol.ActionListFilesystems, func(ctx context.Context, s *session.Session, args Args) error {
		mounts, err := parseMounts(mountsPath)
		if err != nil {
			return err
		}
		for _, mount := range mounts {
			fillUsage(&mount)
			if err := s.Reply(mount); err != nil {
				return err
			}
		}
		return nil
	})
}

// parseMounts reads a /proc/self/mounts style file: one mount per
// line, fields separated by spaces, with octal escapes in the device
// and mount point. Malformed lines are skipped.
func parseMounts(path string) ([]Filesystem, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	defer file.Close()

	var mounts []Filesystem
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 {
			continue
		}
		mounts = append(mounts, Filesystem{
			Device:     unescapeMountField(fields[0]),
			MountPoint: unescapeMountField(fields[1]),
			FSType:     fields[2],
			Options:    fields[3],
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading mount table: %w", err)
	}
	return mounts, nil
}

// fillUsage adds statfs numbers to a mount entry. Errors leave the
// usage fields zero.
func fillUsage(mount *Filesystem) {
	var stat unix.Statfs_t
	if err := unix.Statfs(mount.MountPoint, &stat); err != nil {
		return
	}
	blockSize := uint64(stat.Bsize)
	mount.TotalBytes = stat.Blocks * blockSize
	mount.FreeBytes = stat.Bfree * blockSize
	mount.AvailableBytes = stat.Bavail * blockSize
	mount.TotalFiles = stat.Files
	mount.FreeFiles = stat.Ffree
}

// unescapeMountField decodes the \NNN octal escapes the kernel uses
// for whitespace in device names and mount points ("\040" for space).
func unescapeMountField(field string) string {
	if !strings.Contains(field, `\`) {
		return field
	}
	var builder strings.Builder
	for i := 0; i < len(field); i++ {
		if field[i] == '\\' && i+3 < len(field) &&
			isOctal(field[i+1]) && isOctal(field[i+2]) && isOctal(field[i+3]) {
			value := (field[i+1]-'0')<<6 | (field[i+2]-'0')<<3 | (field[i+3] - '0')
			builder.WriteByte(value)
			i += 3
			continue
		}
		builder.WriteByte(field[i])
	}
	return builder.String()
}

func isOctal(b byte) bool {
	return b >= '0' && b <= '7'
}
