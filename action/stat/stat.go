// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package stat implements the stat action and provides the filesystem
// metadata primitives shared by the directory, search, and file
// metadata actions.
//
// The package is organized around three pieces: Stat, the numeric
// metadata record of one filesystem object; Collect and Xattrs, the
// syscall wrappers that fill it; and the action descriptor that serves
// a single stat request.
package stat

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args selects the file and the collection mode.
type Args struct {
	Path            string `json:"path"`
	FollowSymlink   bool   `json:"follow_symlink,omitempty"`
	CollectExtAttrs bool   `json:"collect_ext_attrs,omitempty"`
}

// Stat is the numeric metadata of one filesystem object, taken
// directly from stat(2). Mode is the raw st_mode word (file type and
// permission bits). Timestamps are nanoseconds since the epoch.
type Stat struct {
	Dev     uint64 `json:"dev"`
	Inode   uint64 `json:"inode"`
	Mode    uint32 `json:"mode"`
	Nlink   uint64 `json:"nlink"`
	UID     uint32 `json:"uid"`
	GID     uint32 `json:"gid"`
	Rdev    uint64 `json:"rdev,omitempty"`
	Size    int64  `json:"size"`
	Blksize int64  `json:"blksize,omitempty"`
	Blocks  int64  `json:"blocks,omitempty"`
	AtimeNS int64  `json:"atime_ns,omitempty"`
	MtimeNS int64  `json:"mtime_ns,omitempty"`
	CtimeNS int64  `json:"ctime_ns,omitempty"`
}

// FileStat is the single reply payload of the stat action.
type FileStat struct {
	Path   string            `json:"path"`
	Stat   Stat              `json:"stat"`
	Xattrs map[string]string `json:"xattrs,omitempty"`
}

// Action returns the catalog descriptor.
func Action() action.Descriptor {
	return action.New(protocol.ActionStatFile, run)
}

func run(ctx context.Context, s *session.Session, args Args) error {
	if !filepath.IsAbs(args.Path) {
		return fmt.Errorf("path %q is not absolute", args.Path)
	}
	result, err := Collect(args.Path, args.FollowSymlink)
	if err != nil {
		return err
	}
	reply := FileStat{Path: args.Path, Stat: result}
	if args.CollectExtAttrs {
		// Extended attributes are best-effort: the stat numerics are
		// the primary result and still go out when listing fails.
		if xattrs, err := Xattrs(args.Path, args.FollowSymlink); err == nil {
			reply.Xattrs = xattrs
		}
	}
	return s.Reply(reply)
}

// Collect stats path and returns its metadata. With followSymlink the
// target of a symlink is described instead of the link itself.
func Collect(path string, followSymlink bool) (Stat, error) {
	var stat unix.Stat_t
	var err error
	if followSymlink {
		err = unix.Stat(path, &stat)
	} else {
		err = unix.Lstat(path, &stat)
	}
	if err != nil {
		return Stat{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FromStatT(stat), nil
}

// FromStatT converts a raw kernel stat record.
func FromStatT(stat unix.Stat_t) Stat {
	return Stat{
		Dev:     uint64(stat.Dev),
		Inode:   uint64(stat.Ino),
		Mode:    uint32(stat.Mode),
		Nlink:   uint64(stat.Nlink),
		UID:     uint32(stat.Uid),
		GID:     uint32(stat.Gid),
		Rdev:    uint64(stat.Rdev),
		Size:    int64(stat.Size),
		Blksize: int64(stat.Blksize),
		Blocks:  int64(stat.Blocks),
		AtimeNS: stat.Atim.Nano(),
		MtimeNS: stat.Mtim.Nano(),
		CtimeNS: stat.Ctim.Nano(),
	}
}

// Xattrs reads the extended attributes of path into a name to
// hex-encoded value map. Values are hex because xattr content is
// arbitrary bytes. Filesystems without xattr support yield an empty
// map rather than an error.
func Xattrs(path string, followSymlink bool) (map[string]string, error) {
	names, err := listXattrNames(path, followSymlink)
	if err != nil {
		if err == unix.ENOTSUP || err == unix.EOPNOTSUPP {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("listing xattrs of %s: %w", path, err)
	}

	xattrs := make(map[string]string, len(names))
	for _, name := range names {
		value, err := getXattr(path, name, followSymlink)
		if err != nil {
			// The attribute vanished between list and get, or needs
			// privileges we lack. Skip it.
			continue
		}
		xattrs[name] = hex.EncodeToString(value)
	}
	return xattrs, nil
}

// listXattrNames returns the attribute names of path. The kernel API
// is two-phase (size query, then fill); a concurrent writer can grow
// the list between the calls, so retry on ERANGE.
func listXattrNames(path string, followSymlink bool) ([]string, error) {
	list := unix.Llistxattr
	if followSymlink {
		list = unix.Listxattr
	}
	for attempt := 0; attempt < 3; attempt++ {
		size, err := list(path, nil)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return nil, nil
		}
		buffer := make([]byte, size)
		size, err = list(path, buffer)
		if err == unix.ERANGE {
			continue
		}
		if err != nil {
			return nil, err
		}
		return splitNulList(buffer[:size]), nil
	}
	return nil, unix.ERANGE
}

// getXattr reads one attribute value with the same two-phase protocol.
func getXattr(path, name string, followSymlink bool) ([]byte, error) {
	get := unix.Lgetxattr
	if followSymlink {
		get = unix.Getxattr
	}
	for attempt := 0; attempt < 3; attempt++ {
		size, err := get(path, name, nil)
		if err != nil {
			return nil, err
		}
		if size == 0 {
			return nil, nil
		}
		buffer := make([]byte, size)
		size, err = get(path, name, buffer)
		if err == unix.ERANGE {
			continue
		}
		if err != nil {
			return nil, err
		}
		return buffer[:size], nil
	}
	return nil, unix.ERANGE
}

// splitNulList splits a NUL-separated name list as returned by
// listxattr(2).
func splitNulList(buffer []byte) []string {
	var names []string
	start := 0
	for i, b := range buffer {
		if b == 0 {
			if i > start {
				names = append(names, string(buffer[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(buffer) {
		names = append(names, string(buffer[start:]))
	}
	return names
}
