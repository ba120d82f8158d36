// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package chunked

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"
)

func TestChunkStreamRoundtrip(t *testing.T) {
	t.Parallel()
	chunks := [][]byte{
		[]byte("first"),
		{},
		bytes.Repeat([]byte{0xab}, 4096),
		[]byte("last"),
	}

	var buffer bytes.Buffer
	for i, chunk := range chunks {
		if err := WriteChunk(&buffer, chunk); err != nil {
			t.Fatalf("WriteChunk %d: %v", i, err)
		}
	}

	for i, want := range chunks {
		got, err := ReadChunk(&buffer)
		if err != nil {
			t.Fatalf("ReadChunk %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("chunk %d: got %d bytes, want %d", i, len(got), len(want))
		}
	}
	if _, err := ReadChunk(&buffer); err != io.EOF {
		t.Fatalf("end of stream: got %v, want io.EOF", err)
	}
}

func TestReadChunkTruncated(t *testing.T) {
	t.Parallel()

	// Partial length prefix.
	if _, err := ReadChunk(bytes.NewReader([]byte{0, 0, 0})); err == nil || err == io.EOF {
		t.Errorf("partial prefix: got %v, want error", err)
	}

	// Complete prefix, missing body.
	var buffer bytes.Buffer
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], 100)
	buffer.Write(header[:])
	buffer.WriteString("short")
	if _, err := ReadChunk(&buffer); err == nil {
		t.Error("truncated body accepted")
	}
}

func TestReadChunkOversizedLength(t *testing.T) {
	t.Parallel()
	var header [8]byte
	binary.BigEndian.PutUint64(header[:], MaxChunkLength+1)

	_, err := ReadChunk(bytes.NewReader(header[:]))
	if err == nil {
		t.Fatal("oversized length accepted")
	}
	if !strings.Contains(err.Error(), "exceeds limit") {
		t.Errorf("error: %v", err)
	}
}

func TestWriteChunkOversized(t *testing.T) {
	t.Parallel()
	var buffer bytes.Buffer
	chunk := make([]byte, MaxChunkLength+1)
	if err := WriteChunk(&buffer, chunk); err == nil {
		t.Fatal("oversized chunk accepted")
	}
	if buffer.Len() != 0 {
		t.Errorf("partial frame written: %d bytes", buffer.Len())
	}
}

func TestCompressRoundtrip(t *testing.T) {
	t.Parallel()
	// Chunk-stream-shaped input: repetitive structured bytes.
	var part bytes.Buffer
	for i := 0; i < 200; i++ {
		WriteChunk(&part, []byte("/var/log/syslog entry with shared prefix material"))
	}
	original := part.Bytes()

	for _, compression := range []Compression{
		CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4,
	} {
		t.Run(compression.String(), func(t *testing.T) {
			t.Parallel()
			compressed, err := Compress(original, compression)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}
			if compression != CompressionNone && len(compressed) >= len(original) {
				t.Errorf("no size reduction: %d -> %d", len(original), len(compressed))
			}
			decompressed, err := Decompress(compressed, compression)
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(decompressed, original) {
				t.Error("roundtrip mismatch")
			}
		})
	}
}

func TestCompressEmptyPart(t *testing.T) {
	t.Parallel()
	for _, compression := range []Compression{
		CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4,
	} {
		compressed, err := Compress(nil, compression)
		if err != nil {
			t.Fatalf("Compress(%v): %v", compression, err)
		}
		decompressed, err := Decompress(compressed, compression)
		if err != nil {
			t.Fatalf("Decompress(%v): %v", compression, err)
		}
		if len(decompressed) != 0 {
			t.Errorf("%v: got %d bytes, want 0", compression, len(decompressed))
		}
	}
}

func TestDecompressCorruptInput(t *testing.T) {
	t.Parallel()
	garbage := []byte("definitely not a compressed stream")
	for _, compression := range []Compression{
		CompressionGzip, CompressionZstd, CompressionLZ4,
	} {
		if _, err := Decompress(garbage, compression); err == nil {
			t.Errorf("%v accepted garbage", compression)
		}
	}
}

func TestParseCompression(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		want    Compression
		wantErr bool
	}{
		{"empty selects default", "", CompressionGzip, false},
		{"gzip", "gzip", CompressionGzip, false},
		{"none", "none", CompressionNone, false},
		{"zstd", "zstd", CompressionZstd, false},
		{"lz4", "lz4", CompressionLZ4, false},
		{"unknown", "brotli", 0, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseCompression(test.input)
			if test.wantErr {
				if err == nil {
					t.Fatalf("ParseCompression(%q) succeeded", test.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseCompression(%q): %v", test.input, err)
			}
			if got != test.want {
				t.Errorf("ParseCompression(%q): got %v, want %v", test.input, got, test.want)
			}
		})
	}
}

func TestCompressionStringRoundtrip(t *testing.T) {
	t.Parallel()
	for _, compression := range []Compression{
		CompressionNone, CompressionGzip, CompressionZstd, CompressionLZ4,
	} {
		parsed, err := ParseCompression(compression.String())
		if err != nil {
			t.Fatalf("ParseCompression(%q): %v", compression.String(), err)
		}
		if parsed != compression {
			t.Errorf("roundtrip: %v -> %q -> %v", compression, compression.String(), parsed)
		}
	}
	if got := Compression(42).String(); !strings.Contains(got, "42") {
		t.Errorf("unknown tag String: %q", got)
	}
}
