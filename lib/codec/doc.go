// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the agent's standard CBOR encoding
// configuration.
//
// The agent uses two serialization formats with a clear boundary:
//
//   - CBOR for everything on the wire: daemon socket frames, request
//     envelopes, reply payloads, statuses, and timeline stream parts.
//   - JSON only at the development edges: rrg-run accepts action
//     arguments as JSON and prints reply payloads as JSON lines.
//
// This package provides the shared CBOR encoding and decoding modes so
// that every package encodes identically without duplicating
// configuration. The encoder uses Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. Same logical data always produces identical
// bytes, which keeps timeline part digests reproducible.
//
// For buffer-oriented operations (arguments, payloads):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets, chunked streams):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// # Struct Tag Rules
//
// The struct tag on a type documents its serialization format:
//
//   - `cbor` tag: this type is ONLY ever serialized as CBOR. It never
//     appears in JSON output. Examples: the protocol frame envelope
//     types (requests, replies, statuses, heartbeats, startup).
//   - `json` tag: this type may be serialized as BOTH JSON and CBOR.
//     fxamacker/cbor v2 reads `json` tags as fallback when `cbor`
//     tags are absent, so a single `json` tag controls field naming
//     and omitempty for both formats. Examples: action argument and
//     reply payload types, which rrg-run accepts and prints as JSON.
//
// Never use both `cbor` and `json` tags on the same field. The tag
// choice documents whether a type participates in JSON serialization.
package codec
