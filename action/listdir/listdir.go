// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package listdir implements the listdir action: one reply per direct
// entry of a directory, in lexicographic name order. Entries that
// cannot be statted (permission races, vanished files) are still
// reported by name with zeroed metadata so the controller sees the
// complete listing.
package listdir

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/action/stat"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args names the directory. The path must be absolute.
type Args struct {
	Path string `json:"path"`
}

// Entry is one reply: a directory entry with its lstat metadata.
type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Stat stat.Stat `json:"stat"`
}

// Action returns the catalog descriptor.
func Action() action.Descriptor {
	return action.New(protocol.ActionListDirectory, run)
}

func run(ctx context.Context, s *session.Session, args Args) error {
	if !filepath.IsAbs(args.Path) {
		return fmt.Errorf("path %q is not absolute", args.Path)
	}
	entries, err := os.ReadDir(args.Path)
	if err != nil {
		return fmt.Errorf("reading directory: %w", err)
	}

	// os.ReadDir returns entries sorted by name, which is the reply
	// order the controller expects.
	for _, entry := range entries {
		fullPath := filepath.Join(args.Path, entry.Name())
		record := Entry{Name: entry.Name(), Path: fullPath}
		if result, err := stat.Collect(fullPath, false); err == nil {
			record.Stat = result
		}
		if err := s.Reply(record); err != nil {
			return err
		}
	}
	return nil
}
