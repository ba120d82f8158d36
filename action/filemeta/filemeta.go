// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package filemeta implements the get_file_metadata action: one reply
// describing a single filesystem object. Symlinks are described as
// themselves (the link, not the target) with the target path included.
package filemeta

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/action/stat"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args names the file. The path must be absolute.
type Args struct {
	Path string `json:"path"`
}

// Metadata is the single reply payload. Timestamps are milliseconds
// since the epoch; Mode is the raw st_mode word.
type Metadata struct {
	Path             string            `json:"path"`
	Size             int64             `json:"size"`
	Mode             uint32            `json:"mode"`
	OwnerUID         uint32            `json:"owner_uid"`
	OwnerGID         uint32            `json:"owner_gid"`
	AccessTimeUnixMS int64             `json:"access_time_unix_ms,omitempty"`
	ModifyTimeUnixMS int64             `json:"modify_time_unix_ms,omitempty"`
	ChangeTimeUnixMS int64             `json:"change_time_unix_ms,omitempty"`
	SymlinkTarget    string            `json:"symlink_target,omitempty"`
	Xattrs           map[string]string `json:"xattrs,omitempty"`
}

// Action returns the catalog descriptor.
func Action() action.Descriptor {
	return action.New(protocol.ActionGetFileMetadata, run)
}

func run(ctx context.Context, s *session.Session, args Args) error {
	if !filepath.IsAbs(args.Path) {
		return fmt.Errorf("path %q is not absolute", args.Path)
	}
	result, err := stat.Collect(args.Path, false)
	if err != nil {
		if errors.Is(err, unix.ENOENT) {
			return fmt.Errorf("%s: not found", args.Path)
		}
		return err
	}

	metadata := Metadata{
		Path:             args.Path,
		Size:             result.Size,
		Mode:             result.Mode,
		OwnerUID:         result.UID,
		OwnerGID:         result.GID,
		AccessTimeUnixMS: result.AtimeNS / int64(1e6),
		ModifyTimeUnixMS: result.MtimeNS / int64(1e6),
		ChangeTimeUnixMS: result.CtimeNS / int64(1e6),
	}
	if result.Mode&unix.S_IFMT == unix.S_IFLNK {
		if target, err := os.Readlink(args.Path); err == nil {
			metadata.SymlinkTarget = target
		}
	}
	if xattrs, err := stat.Xattrs(args.Path, false); err == nil && len(xattrs) > 0 {
		metadata.Xattrs = xattrs
	}
	return s.Reply(metadata)
}
