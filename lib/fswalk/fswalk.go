// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package fswalk provides the depth-first filesystem walker behind the
// streaming collection actions. The walker is error-tolerant: an
// unreadable directory or a vanished entry skips that subtree and the
// walk continues, because on a live forensic target partial coverage
// beats no coverage.
package fswalk

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Options control a walk.
type Options struct {
	// MaxDepth limits descent: entries deeper than MaxDepth below the
	// root are not visited. Zero means unlimited. The root is depth 0.
	MaxDepth int

	// SameDevice stops descent at mount points: directories on a
	// different device than the root are reported but not entered.
	SameDevice bool

	// FollowSymlinks descends into directories reached through
	// symlinks. Entries are still reported with their lstat record
	// (the link itself). Directory cycles are detected and skipped.
	FollowSymlinks bool

	// OnSkip, when set, observes every skipped path and the error
	// that caused the skip.
	OnSkip func(path string, err error)
}

// Entry is one visited filesystem object. Stat is the lstat record:
// symlinks describe themselves, not their targets.
type Entry struct {
	Path  string
	Depth int
	Stat  unix.Stat_t
}

// WalkFunc receives each visited entry in depth-first preorder,
// children in lexicographic name order. Returning an error aborts the
// walk and propagates to the Walk caller.
type WalkFunc func(entry Entry) error

// Walk visits root and its descendants. The walk fails only when root
// itself is unusable or fn returns an error.
func Walk(root string, options Options, fn WalkFunc) error {
	var rootStat unix.Stat_t
	if err := unix.Lstat(root, &rootStat); err != nil {
		return fmt.Errorf("walk root %s: %w", root, err)
	}
	walker := &walker{options: options, fn: fn, rootDevice: uint64(rootStat.Dev)}
	if options.FollowSymlinks {
		walker.visited = make(map[deviceInode]struct{})
	}
	return walker.visit(root, rootStat, 0)
}

type deviceInode struct {
	device uint64
	inode  uint64
}

type walker struct {
	options    Options
	fn         WalkFunc
	rootDevice uint64
	visited    map[deviceInode]struct{}
}

func (w *walker) visit(path string, lstat unix.Stat_t, depth int) error {
	if err := w.fn(Entry{Path: path, Depth: depth, Stat: lstat}); err != nil {
		return err
	}

	descend, descendStat := w.descendTarget(path, lstat)
	if !descend {
		return nil
	}
	if w.options.MaxDepth > 0 && depth >= w.options.MaxDepth {
		return nil
	}
	if w.options.SameDevice && uint64(descendStat.Dev) != w.rootDevice {
		return nil
	}
	if w.visited != nil {
		key := deviceInode{uint64(descendStat.Dev), uint64(descendStat.Ino)}
		if _, seen := w.visited[key]; seen {
			return nil
		}
		w.visited[key] = struct{}{}
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		w.skip(path, err)
		return nil
	}
	for _, entry := range entries {
		childPath := filepath.Join(path, entry.Name())
		var childStat unix.Stat_t
		if err := unix.Lstat(childPath, &childStat); err != nil {
			w.skip(childPath, err)
			continue
		}
		if err := w.visit(childPath, childStat, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// descendTarget decides whether path is a directory to walk into, and
// with which stat record. A symlink counts only under FollowSymlinks,
// and then the target's record drives the device and cycle checks.
func (w *walker) descendTarget(path string, lstat unix.Stat_t) (bool, unix.Stat_t) {
	switch lstat.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		return true, lstat
	case unix.S_IFLNK:
		if !w.options.FollowSymlinks {
			return false, lstat
		}
		var target unix.Stat_t
		if err := unix.Stat(path, &target); err != nil {
			w.skip(path, err)
			return false, lstat
		}
		if target.Mode&unix.S_IFMT != unix.S_IFDIR {
			return false, lstat
		}
		return true, target
	}
	return false, lstat
}

func (w *walker) skip(path string, err error) {
	if w.options.OnSkip != nil {
		w.options.OnSkip(path, err)
	}
}
