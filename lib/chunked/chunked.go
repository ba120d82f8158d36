// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunked implements the blob format used by streaming
// collection actions: a sequence of length-prefixed chunks, packed
// into parts that are compressed as a whole.
//
// Each chunk is framed by an 8-byte big-endian length. Parts use
// self-describing compression formats (gzip member, zstd frame, lz4
// frame), so decompression needs no out-of-band size.
package chunked

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the part compression algorithm. The values
// travel in reply payloads by name (see String), not by number, but
// they are stable anyway.
type Compression uint8

const (
	// CompressionNone passes parts through uncompressed.
	CompressionNone Compression = 0

	// CompressionGzip is the default: universally decodable and a
	// good ratio on filesystem metadata streams.
	CompressionGzip Compression = 1

	// CompressionZstd trades a newer decoder requirement for better
	// ratio and speed.
	CompressionZstd Compression = 2

	// CompressionLZ4 (frame format) favors throughput on hosts where
	// collection must stay cheap.
	CompressionLZ4 Compression = 3
)

// String returns the wire name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression maps a wire name back to its algorithm. The empty
// string selects the gzip default.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "gzip":
		return CompressionGzip, nil
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// MaxChunkLength bounds a single chunk. Reads reject larger length
// prefixes before allocating, so adversarial input cannot balloon
// memory.
const MaxChunkLength = 64 << 20

const lengthPrefixSize = 8

// WriteChunk frames one chunk onto w.
func WriteChunk(w io.Writer, chunk []byte) error {
	if len(chunk) > MaxChunkLength {
		return fmt.Errorf("chunk length %d exceeds limit %d", len(chunk), MaxChunkLength)
	}
	var header [lengthPrefixSize]byte
	binary.BigEndian.PutUint64(header[:], uint64(len(chunk)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing chunk length: %w", err)
	}
	if _, err := w.Write(chunk); err != nil {
		return fmt.Errorf("writing chunk body: %w", err)
	}
	return nil
}

// ReadChunk reads the next chunk from r. A clean end of stream
// returns io.EOF; a stream truncated mid-chunk returns an error.
func ReadChunk(r io.Reader) ([]byte, error) {
	var header [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading chunk length: %w", err)
	}
	length := binary.BigEndian.Uint64(header[:])
	if length > MaxChunkLength {
		return nil, fmt.Errorf("chunk length %d exceeds limit %d", length, MaxChunkLength)
	}
	chunk := make([]byte, length)
	if _, err := io.ReadFull(r, chunk); err != nil {
		return nil, fmt.Errorf("reading chunk body: %w", err)
	}
	return chunk, nil
}

// zstdEncoder and zstdDecoder are shared across calls; both are safe
// for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("chunked: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("chunked: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress compresses one whole part.
func Compress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil

	case CompressionGzip:
		var buffer bytes.Buffer
		writer := gzip.NewWriter(&buffer)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("gzip compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("gzip compress: %w", err)
		}
		return buffer.Bytes(), nil

	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, nil), nil

	case CompressionLZ4:
		var buffer bytes.Buffer
		writer := lz4.NewWriter(&buffer)
		if _, err := writer.Write(data); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if err := writer.Close(); err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		return buffer.Bytes(), nil

	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}

// Decompress reverses Compress.
func Decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return data, nil

	case CompressionGzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		if err := reader.Close(); err != nil {
			return nil, fmt.Errorf("gzip decompress: %w", err)
		}
		return decompressed, nil

	case CompressionZstd:
		decompressed, err := zstdDecoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return decompressed, nil

	case CompressionLZ4:
		decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return decompressed, nil

	default:
		return nil, fmt.Errorf("unsupported compression %d", compression)
	}
}
