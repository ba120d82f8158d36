// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package finder implements the file search action: a depth-first walk
// over one or more roots with glob and metadata conditions, streaming
// one reply per matching filesystem object. Conditions evaluate the
// lstat record, so symlinks are matched as themselves even when the
// walk follows them into directories.
package finder

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/action/stat"
	"github.com/sarvex/rrg/lib/fswalk"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args are the finder action arguments. All conditions are optional
// and combine with AND; an absent condition matches everything.
type Args struct {
	// Roots are the absolute paths of the trees to search. Every root
	// must exist, so a typo fails the request instead of silently
	// returning nothing.
	Roots []string `json:"roots"`

	// NameGlob filters by base name with filepath.Match syntax.
	NameGlob string `json:"name_glob,omitempty"`

	// MaxDepth limits descent below each root. Zero means unlimited.
	MaxDepth int `json:"max_depth,omitempty"`

	// MinSize is the inclusive lower size bound in bytes.
	MinSize int64 `json:"min_size,omitempty"`

	// MaxSize is the inclusive upper size bound in bytes. A pointer
	// because zero is a meaningful bound (empty files only).
	MaxSize *int64 `json:"max_size,omitempty"`

	// ModifiedAfterUnixMS and ModifiedBeforeUnixMS bound the
	// modification time, inclusive. Zero means unbounded.
	ModifiedAfterUnixMS  int64 `json:"modified_after_unix_ms,omitempty"`
	ModifiedBeforeUnixMS int64 `json:"modified_before_unix_ms,omitempty"`

	// FollowSymlinks descends into directories reached through
	// symlinks.
	FollowSymlinks bool `json:"follow_symlinks,omitempty"`
}

// Match is one reply: a filesystem object that passed every condition.
type Match struct {
	Path string    `json:"path"`
	Stat stat.Stat `json:"stat"`
}

// Action returns the finder action descriptor.
func Action() action.Descriptor {
	return action.New(protocol.ActionFindFiles, run)
}

func run(ctx context.Context, s *session.Session, args Args) error {
	if len(args.Roots) == 0 {
		return fmt.Errorf("at least one search root is required")
	}
	for _, root := range args.Roots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("root path must be absolute, got %q", root)
		}
		var probe unix.Stat_t
		if err := unix.Lstat(root, &probe); err != nil {
			return fmt.Errorf("search root %s: %w", root, err)
		}
	}
	if args.NameGlob != "" {
		if _, err := filepath.Match(args.NameGlob, "probe"); err != nil {
			return fmt.Errorf("name glob %q: %w", args.NameGlob, err)
		}
	}

	match := newMatcher(args)
	options := fswalk.Options{
		MaxDepth:       args.MaxDepth,
		FollowSymlinks: args.FollowSymlinks,
	}
	for _, root := range args.Roots {
		err := fswalk.Walk(root, options, func(entry fswalk.Entry) error {
			if err := s.Heartbeat(); err != nil {
				return err
			}
			if !match.matches(entry.Path, &entry.Stat) {
				return nil
			}
			return s.Reply(Match{Path: entry.Path, Stat: stat.FromStatT(entry.Stat)})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// matcher holds the compiled conditions. The glob is validated before
// the walk starts, so matches never reports a pattern error.
type matcher struct {
	glob     string
	minSize  int64
	maxSize  *int64
	afterMS  int64
	beforeMS int64
}

func newMatcher(args Args) matcher {
	return matcher{
		glob:     args.NameGlob,
		minSize:  args.MinSize,
		maxSize:  args.MaxSize,
		afterMS:  args.ModifiedAfterUnixMS,
		beforeMS: args.ModifiedBeforeUnixMS,
	}
}

func (m matcher) matches(path string, st *unix.Stat_t) bool {
	if m.glob != "" {
		ok, err := filepath.Match(m.glob, filepath.Base(path))
		if err != nil || !ok {
			return false
		}
	}
	if st.Size < m.minSize {
		return false
	}
	if m.maxSize != nil && st.Size > *m.maxSize {
		return false
	}
	if m.afterMS != 0 || m.beforeMS != 0 {
		mtimeMS := st.Mtim.Nano() / int64(time.Millisecond)
		if m.afterMS != 0 && mtimeMS < m.afterMS {
			return false
		}
		if m.beforeMS != 0 && mtimeMS > m.beforeMS {
			return false
		}
	}
	return true
}
