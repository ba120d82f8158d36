// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire contract between the agent and the
// local transport daemon: the framed binary stream, the request and
// cancel messages flowing daemon→agent, and the reply, status, heartbeat,
// and startup messages flowing agent→daemon.
//
// The package is organized around the message lifecycle:
//
//   - frame.go: framed binary stream (5-byte header + CBOR payload)
//   - envelope.go: request, reply, status, and control message bodies
//   - action.go: the action catalog enumeration
//   - classification.go: failure taxonomy carried by status messages
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/sarvex/rrg/lib/codec"
)

// Frame type constants for the daemon stream wire format. Each frame is
// a 5-byte header (1 byte type + 4 byte big-endian payload length)
// followed by a CBOR-encoded payload.
const (
	// FrameRequest carries a RequestEnvelope. Daemon→agent only.
	FrameRequest byte = 0x01

	// FrameCancel carries a CancelRequest revoking an in-flight
	// session. Daemon→agent only.
	FrameCancel byte = 0x02

	// FrameReply carries a Reply with one result item. Agent→daemon
	// only.
	FrameReply byte = 0x11

	// FrameStatus carries a Status terminating a session. Agent→daemon
	// only, exactly one per accepted request, always after that
	// session's last reply.
	FrameStatus byte = 0x12

	// FrameHeartbeat carries a Heartbeat proving a long-running session
	// is still alive. Agent→daemon only.
	FrameHeartbeat byte = 0x13

	// FrameStartup carries a StartupInfo. Agent→daemon only, sent once
	// immediately after the agent connects.
	FrameStartup byte = 0x14
)

// frameHeaderLength is the fixed size of a frame header: 1 byte type
// + 4 bytes payload length.
const frameHeaderLength = 5

// maxPayloadLength is the maximum allowed payload size. Replies are
// budget-bounded well below this; 16 MB leaves headroom for timeline
// parts and guards against corrupt length fields.
const maxPayloadLength = 16 * 1024 * 1024

// Frame is a single message on the daemon stream.
type Frame struct {
	Type    byte
	Payload []byte
}

// EncodeFrame builds a frame of the given type around the CBOR encoding
// of body.
func EncodeFrame(frameType byte, body any) (Frame, error) {
	payload, err := codec.Marshal(body)
	if err != nil {
		return Frame{}, fmt.Errorf("encode frame payload: %w", err)
	}
	return Frame{Type: frameType, Payload: payload}, nil
}

// DecodeFrame parses a frame's CBOR payload into value. The caller has
// already matched the frame type to the value's shape.
func DecodeFrame(frame Frame, value any) error {
	if err := codec.Unmarshal(frame.Payload, value); err != nil {
		return fmt.Errorf("decode frame payload: %w", err)
	}
	return nil
}

// WriteFrame writes a framed message to w. The frame format is:
// [1 byte type] [4 bytes payload length, big-endian uint32] [payload].
func WriteFrame(w io.Writer, frame Frame) error {
	if len(frame.Payload) > maxPayloadLength {
		return fmt.Errorf("payload length %d exceeds maximum %d", len(frame.Payload), maxPayloadLength)
	}
	var header [frameHeaderLength]byte
	header[0] = frame.Type
	binary.BigEndian.PutUint32(header[1:5], uint32(len(frame.Payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(frame.Payload) > 0 {
		if _, err := w.Write(frame.Payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

// ReadFrame reads a framed message from r. Returns an error if the
// stream is malformed or the payload exceeds maxPayloadLength. Unknown
// frame types are returned as-is; interpretation is the caller's.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("read frame header: %w", err)
	}
	frameType := header[0]
	payloadLength := binary.BigEndian.Uint32(header[1:5])
	if payloadLength > maxPayloadLength {
		return Frame{}, fmt.Errorf("payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return Frame{Type: frameType, Payload: payload}, nil
}
