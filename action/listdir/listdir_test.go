// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package listdir

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/sarvex/rrg/lib/budget"
	"github.com/sarvex/rrg/lib/codec"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

type replySink struct {
	mu      sync.Mutex
	replies []protocol.Reply
}

func (r *replySink) SendReply(reply protocol.Reply) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replies = append(r.replies, reply)
	return nil
}

func (r *replySink) SendStatus(protocol.Status) error       { return nil }
func (r *replySink) SendHeartbeat(protocol.Heartbeat) error { return nil }

func (r *replySink) entries(t *testing.T) []Entry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, len(r.replies))
	for i, reply := range r.replies {
		if err := codec.Unmarshal(reply.Payload, &entries[i]); err != nil {
			t.Fatalf("Unmarshal reply %d: %v", i, err)
		}
	}
	return entries
}

func newSession(t *testing.T, sink *replySink, b budget.Budget) *session.Session {
	t.Helper()
	return session.New(context.Background(), session.Config{
		SessionID: 1,
		Action:    protocol.ActionListDirectory,
		Sender:    sink,
		Budget:    b,
	})
}

func TestRunListsEntriesInOrder(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	sink := &replySink{}

	if err := run(context.Background(), newSession(t, sink, budget.Budget{}), Args{Path: dir}); err != nil {
		t.Fatalf("run: %v", err)
	}

	entries := sink.entries(t)
	if len(entries) != 4 {
		t.Fatalf("entry count: got %d, want 4", len(entries))
	}
	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	if !sort.StringsAreSorted(names) {
		t.Errorf("entries not sorted: %v", names)
	}
	for _, entry := range entries {
		if entry.Path != filepath.Join(dir, entry.Name) {
			t.Errorf("entry %q path: got %q", entry.Name, entry.Path)
		}
		if entry.Stat.Inode == 0 {
			t.Errorf("entry %q has zero inode", entry.Name)
		}
	}
	for _, entry := range entries {
		if entry.Name == "alpha" && entry.Stat.Size != 5 {
			t.Errorf("alpha size: got %d, want 5", entry.Stat.Size)
		}
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	t.Parallel()
	sink := &replySink{}

	if err := run(context.Background(), newSession(t, sink, budget.Budget{}), Args{Path: t.TempDir()}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := len(sink.entries(t)); got != 0 {
		t.Errorf("entry count: got %d, want 0", got)
	}
}

func TestRunMissingDirectory(t *testing.T) {
	t.Parallel()
	sink := &replySink{}

	err := run(context.Background(), newSession(t, sink, budget.Budget{}), Args{
		Path: filepath.Join(t.TempDir(), "absent"),
	})
	if err == nil {
		t.Fatal("run on a missing directory succeeded")
	}
	if !strings.Contains(err.Error(), "reading directory") {
		t.Errorf("error: %v", err)
	}
}

func TestRunRelativePath(t *testing.T) {
	t.Parallel()
	sink := &replySink{}

	err := run(context.Background(), newSession(t, sink, budget.Budget{}), Args{Path: "home"})
	if err == nil || !strings.Contains(err.Error(), "not absolute") {
		t.Fatalf("relative path: got %v, want not-absolute error", err)
	}
}

func TestRunStopsAtReplyBudget(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	sink := &replySink{}

	err := run(context.Background(), newSession(t, sink, budget.Budget{MaxReplies: 2}), Args{Path: dir})
	if !errors.Is(err, session.ErrBudgetExceeded) {
		t.Fatalf("run: got %v, want ErrBudgetExceeded", err)
	}
	if got := len(sink.entries(t)); got != 2 {
		t.Errorf("entry count: got %d, want 2 (the ceiling)", got)
	}
}
