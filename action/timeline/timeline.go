// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeline implements the timeline action: a depth-first walk
// of a directory tree that streams one compact record per filesystem
// object. Records are CBOR-encoded, length-prefix framed, packed into
// parts of roughly a megabyte, and each part is compressed and emitted
// as one reply. The controller reassembles the parts into the full
// timeline and verifies each part against its digest.
package timeline

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/zeebo/blake3"
	"golang.org/x/sys/unix"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/lib/chunked"
	"github.com/sarvex/rrg/lib/codec"
	"github.com/sarvex/rrg/lib/fswalk"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args are the timeline action arguments.
type Args struct {
	// Root is the absolute path of the tree to walk.
	Root string `json:"root"`

	// Compression selects the part compression: "gzip", "zstd", "lz4"
	// or "none". Empty means gzip.
	Compression string `json:"compression,omitempty"`
}

// Entry is one filesystem object in the timeline stream. Path is raw
// bytes: Linux paths have no mandated encoding, and forcing them
// through a string round-trip would corrupt non-UTF-8 names.
type Entry struct {
	Path    []byte `json:"path"`
	Mode    uint32 `json:"mode"`
	Size    int64  `json:"size"`
	UID     uint32 `json:"uid"`
	GID     uint32 `json:"gid"`
	Dev     uint64 `json:"dev"`
	Inode   uint64 `json:"ino"`
	AtimeNS int64  `json:"atime_ns"`
	MtimeNS int64  `json:"mtime_ns"`
	CtimeNS int64  `json:"ctime_ns"`
}

// Part is one reply: a batch of framed entries, compressed as a unit.
type Part struct {
	// Digest is the keyed BLAKE3 hash of the uncompressed part bytes.
	// Hashing before compression keeps the digest stable across
	// compression algorithm changes.
	Digest []byte `json:"digest"`

	// Compression names the algorithm applied to Data.
	Compression string `json:"compression"`

	// EntryCount is the number of entries framed inside the part.
	EntryCount uint64 `json:"entry_count"`

	// Data is the compressed part payload.
	Data []byte `json:"data"`
}

// partDomainKey is the BLAKE3 key for part digests. The byte values
// are the ASCII encoding of the domain name, zero-padded to 32 bytes,
// so the key is readable in hex dumps without losing any cryptographic
// property.
var partDomainKey = [32]byte{
	'r', 'r', 'g', '.', 't', 'i', 'm', 'e', 'l', 'i', 'n', 'e', '.',
	'p', 'a', 'r', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// partTargetSize is the uncompressed size at which a part is closed
// and emitted. Parts can exceed it by one entry's framing.
const partTargetSize = 1 << 20

// PartDigest computes the digest of one uncompressed part.
func PartDigest(data []byte) [32]byte {
	hasher, err := blake3.NewKeyed(partDomainKey[:])
	if err != nil {
		panic("timeline: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var digest [32]byte
	copy(digest[:], hasher.Sum(nil))
	return digest
}

// Action returns the timeline action descriptor.
func Action() action.Descriptor {
	return action.New(protocol.ActionTimeline, run)
}

func run(ctx context.Context, s *session.Session, args Args) error {
	if !filepath.IsAbs(args.Root) {
		return fmt.Errorf("root path must be absolute, got %q", args.Root)
	}
	compression, err := chunked.ParseCompression(args.Compression)
	if err != nil {
		return err
	}

	builder := &partBuilder{session: s, compression: compression}
	err = fswalk.Walk(args.Root, fswalk.Options{}, func(entry fswalk.Entry) error {
		if err := s.Heartbeat(); err != nil {
			return err
		}
		return builder.add(entryFromStat(entry.Path, &entry.Stat))
	})
	if err != nil {
		return err
	}
	return builder.flush()
}

// entryFromStat converts a raw stat record into a timeline entry.
func entryFromStat(path string, stat *unix.Stat_t) Entry {
	return Entry{
		Path:    []byte(path),
		Mode:    stat.Mode,
		Size:    stat.Size,
		UID:     stat.Uid,
		GID:     stat.Gid,
		Dev:     uint64(stat.Dev),
		Inode:   stat.Ino,
		AtimeNS: stat.Atim.Nano(),
		MtimeNS: stat.Mtim.Nano(),
		CtimeNS: stat.Ctim.Nano(),
	}
}

// partBuilder accumulates framed entries and emits a part whenever the
// buffer reaches the target size. Reply errors (budget, cancellation)
// propagate to the walk and abort it.
type partBuilder struct {
	session     *session.Session
	compression chunked.Compression
	buffer      bytes.Buffer
	entryCount  uint64
}

func (b *partBuilder) add(entry Entry) error {
	encoded, err := codec.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode timeline entry: %w", err)
	}
	if err := chunked.WriteChunk(&b.buffer, encoded); err != nil {
		return fmt.Errorf("frame timeline entry: %w", err)
	}
	b.entryCount++
	if b.buffer.Len() >= partTargetSize {
		return b.flush()
	}
	return nil
}

// flush emits the buffered entries as one part. A no-op when the
// buffer is empty, so the final flush after the walk is safe even when
// the last entry already closed a part.
func (b *partBuilder) flush() error {
	if b.entryCount == 0 {
		return nil
	}
	raw := b.buffer.Bytes()
	digest := PartDigest(raw)
	data, err := chunked.Compress(raw, b.compression)
	if err != nil {
		return fmt.Errorf("compress timeline part: %w", err)
	}
	part := Part{
		Digest:      digest[:],
		Compression: b.compression.String(),
		EntryCount:  b.entryCount,
		Data:        data,
	}
	if err := b.session.Reply(part); err != nil {
		return err
	}
	b.buffer.Reset()
	b.entryCount = 0
	return nil
}
