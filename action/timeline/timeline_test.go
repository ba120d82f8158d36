// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package timeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/sarvex/rrg/lib/budget"
	"github.com/sarvex/rrg/lib/chunked"
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

func newTestSession(t *testing.T, sink *replySink, b budget.Budget) *session.Session {
	t.Helper()
	return session.New(context.Background(), session.Config{
		SessionID: 7,
		Action:    protocol.ActionTimeline,
		Sender:    sink,
		Budget:    b,
	})
}

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("creating directory for %s: %v", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// decodeParts decodes every reply into a Part, verifies each part
// digest against the decompressed bytes, and unpacks the framed
// entries.
func decodeParts(t *testing.T, replies []protocol.Reply) ([]Part, []Entry) {
	t.Helper()
	var parts []Part
	var entries []Entry
	for i, reply := range replies {
		var part Part
		if err := codec.Unmarshal(reply.Payload, &part); err != nil {
			t.Fatalf("Unmarshal part %d: %v", i, err)
		}
		parts = append(parts, part)

		compression, err := chunked.ParseCompression(part.Compression)
		if err != nil {
			t.Fatalf("part %d compression %q: %v", i, part.Compression, err)
		}
		raw, err := chunked.Decompress(part.Data, compression)
		if err != nil {
			t.Fatalf("Decompress part %d: %v", i, err)
		}
		digest := PartDigest(raw)
		if !bytes.Equal(digest[:], part.Digest) {
			t.Fatalf("part %d digest does not match its contents", i)
		}

		reader := bytes.NewReader(raw)
		var count uint64
		for {
			chunk, err := chunked.ReadChunk(reader)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("ReadChunk in part %d: %v", i, err)
			}
			var entry Entry
			if err := codec.Unmarshal(chunk, &entry); err != nil {
				t.Fatalf("Unmarshal entry in part %d: %v", i, err)
			}
			entries = append(entries, entry)
			count++
		}
		if count != part.EntryCount {
			t.Fatalf("part %d frames %d entries, header says %d", i, count, part.EntryCount)
		}
	}
	return parts, entries
}

func TestTimelineStreamsAllEntries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "a.txt", "alpha")
	writeFile(t, root, "sub/b.txt", "beta")
	writeFile(t, root, "sub/deeper/c.txt", "gamma")

	sink := &replySink{}
	s := newTestSession(t, sink, budget.Budget{})
	if err := run(context.Background(), s, Args{Root: root}); err != nil {
		t.Fatalf("run: %v", err)
	}

	_, entries := decodeParts(t, sink.replies)
	paths := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		paths[string(entry.Path)] = entry
	}

	want := []string{
		root,
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub"),
		filepath.Join(root, "sub", "b.txt"),
		filepath.Join(root, "sub", "deeper"),
		filepath.Join(root, "sub", "deeper", "c.txt"),
	}
	if len(entries) != len(want) {
		t.Fatalf("entry count: got %d, want %d", len(entries), len(want))
	}
	for _, path := range want {
		if _, ok := paths[path]; !ok {
			t.Errorf("missing entry for %s", path)
		}
	}

	file := paths[filepath.Join(root, "a.txt")]
	if file.Mode&unix.S_IFMT != unix.S_IFREG {
		t.Errorf("a.txt mode %#o, want a regular file record", file.Mode)
	}
	if file.Size != int64(len("alpha")) {
		t.Errorf("a.txt size: got %d, want %d", file.Size, len("alpha"))
	}
	if file.Inode == 0 {
		t.Error("a.txt inode is zero")
	}
	if file.MtimeNS == 0 {
		t.Error("a.txt mtime is zero")
	}
	dir := paths[filepath.Join(root, "sub")]
	if dir.Mode&unix.S_IFMT != unix.S_IFDIR {
		t.Errorf("sub mode %#o, want a directory record", dir.Mode)
	}
}

func TestTimelineDefaultCompressionIsGzip(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "f.txt", "x")

	sink := &replySink{}
	s := newTestSession(t, sink, budget.Budget{})
	if err := run(context.Background(), s, Args{Root: root}); err != nil {
		t.Fatalf("run: %v", err)
	}
	parts, _ := decodeParts(t, sink.replies)
	if len(parts) != 1 {
		t.Fatalf("part count: got %d, want 1", len(parts))
	}
	if parts[0].Compression != "gzip" {
		t.Errorf("compression: got %q, want gzip", parts[0].Compression)
	}
}

func TestTimelineCompressionVariants(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"none", "gzip", "zstd", "lz4"} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			writeFile(t, root, "f.txt", "payload")

			sink := &replySink{}
			s := newTestSession(t, sink, budget.Budget{})
			if err := run(context.Background(), s, Args{Root: root, Compression: name}); err != nil {
				t.Fatalf("run: %v", err)
			}
			parts, entries := decodeParts(t, sink.replies)
			if len(parts) != 1 {
				t.Fatalf("part count: got %d, want 1", len(parts))
			}
			if parts[0].Compression != name {
				t.Errorf("compression: got %q, want %q", parts[0].Compression, name)
			}
			if len(entries) != 2 {
				t.Errorf("entry count: got %d, want 2", len(entries))
			}
		})
	}
}

func TestTimelineUnknownCompression(t *testing.T) {
	t.Parallel()

	sink := &replySink{}
	s := newTestSession(t, sink, budget.Budget{})
	err := run(context.Background(), s, Args{Root: t.TempDir(), Compression: "brotli"})
	if err == nil {
		t.Fatal("expected an error for unknown compression")
	}
	if !strings.Contains(err.Error(), "brotli") {
		t.Fatalf("error = %v, want it to name the algorithm", err)
	}
	if len(sink.replies) != 0 {
		t.Fatalf("reply count: got %d, want 0", len(sink.replies))
	}
}

func TestTimelineRelativeRootRejected(t *testing.T) {
	t.Parallel()

	sink := &replySink{}
	s := newTestSession(t, sink, budget.Budget{})
	err := run(context.Background(), s, Args{Root: "etc/passwd"})
	if err == nil {
		t.Fatal("expected an error for a relative root")
	}
	if !strings.Contains(err.Error(), "absolute") {
		t.Fatalf("error = %v, want it to mention absolute paths", err)
	}
}

func TestTimelineMissingRoot(t *testing.T) {
	t.Parallel()

	sink := &replySink{}
	s := newTestSession(t, sink, budget.Budget{})
	err := run(context.Background(), s, Args{Root: filepath.Join(t.TempDir(), "absent")})
	if err == nil {
		t.Fatal("expected an error for a missing root")
	}
	if len(sink.replies) != 0 {
		t.Fatalf("reply count: got %d, want 0", len(sink.replies))
	}
}

// bulkEntry builds an entry whose encoded size is large enough to fill
// parts quickly without creating thousands of files.
func bulkEntry(index int, pathBytes int) Entry {
	path := bytes.Repeat([]byte{'p'}, pathBytes)
	return Entry{Path: path, Inode: uint64(index + 1), Size: 1}
}

func TestPartBuilderSplitsAtTargetSize(t *testing.T) {
	t.Parallel()

	sink := &replySink{}
	s := newTestSession(t, sink, budget.Budget{})
	builder := &partBuilder{session: s, compression: chunked.CompressionNone}

	const entryBytes = 200 << 10
	const total = 8
	for i := 0; i < total; i++ {
		if err := builder.add(bulkEntry(i, entryBytes)); err != nil {
			t.Fatalf("add entry %d: %v", i, err)
		}
	}
	if err := builder.flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	parts, entries := decodeParts(t, sink.replies)
	if len(parts) < 2 {
		t.Fatalf("part count: got %d, want at least 2", len(parts))
	}
	if len(entries) != total {
		t.Fatalf("entry count: got %d, want %d", len(entries), total)
	}
	var fromHeaders uint64
	for _, part := range parts {
		fromHeaders += part.EntryCount
	}
	if fromHeaders != total {
		t.Fatalf("summed EntryCount: got %d, want %d", fromHeaders, total)
	}
}

func TestPartBuilderPropagatesBudget(t *testing.T) {
	t.Parallel()

	sink := &replySink{}
	s := newTestSession(t, sink, budget.Budget{MaxReplies: 1})
	builder := &partBuilder{session: s, compression: chunked.CompressionNone}

	const entryBytes = 200 << 10
	var err error
	for i := 0; i < 16; i++ {
		if err = builder.add(bulkEntry(i, entryBytes)); err != nil {
			break
		}
	}
	if !errors.Is(err, session.ErrBudgetExceeded) {
		t.Fatalf("add error = %v, want ErrBudgetExceeded", err)
	}
	if len(sink.replies) != 1 {
		t.Fatalf("reply count: got %d, want 1", len(sink.replies))
	}
}

func TestEntryFromStatRecordsIdentity(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, root, "f.txt", "twelve bytes")
	path := filepath.Join(root, "f.txt")

	var stat unix.Stat_t
	if err := unix.Lstat(path, &stat); err != nil {
		t.Fatalf("Lstat: %v", err)
	}
	entry := entryFromStat(path, &stat)

	if string(entry.Path) != path {
		t.Errorf("Path: got %q, want %q", entry.Path, path)
	}
	if entry.Size != int64(len("twelve bytes")) {
		t.Errorf("Size: got %d, want %d", entry.Size, len("twelve bytes"))
	}
	if entry.UID != uint32(os.Getuid()) {
		t.Errorf("UID: got %d, want %d", entry.UID, os.Getuid())
	}
	if entry.Inode != stat.Ino {
		t.Errorf("Inode: got %d, want %d", entry.Inode, stat.Ino)
	}
	if entry.MtimeNS != stat.Mtim.Nano() {
		t.Errorf("MtimeNS: got %d, want %d", entry.MtimeNS, stat.Mtim.Nano())
	}
}
