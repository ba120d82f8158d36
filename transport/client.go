// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport is the agent's client side of the local daemon
// socket: a framed binary stream over a Unix socket. Inbound frames
// (requests, cancels) arrive through Receive; outbound frames (replies,
// statuses, heartbeats, the startup announcement) go through the Send
// methods, which serialize on one mutex so concurrent sessions never
// interleave partial frames.
package transport

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/sarvex/rrg/protocol"
)

// aLongTimeAgo is a time in the past. Setting it as a read deadline
// aborts a blocked read immediately.
var aLongTimeAgo = time.Unix(1, 0)

// Inbound is one daemon-to-agent message. Exactly one field is set.
type Inbound struct {
	Request *protocol.RequestEnvelope
	Cancel  *protocol.CancelRequest
}

// Conn is a connection to the transport daemon. Receive must be called
// from a single goroutine; the Send methods are safe for concurrent
// use from any number of sessions.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	logger *slog.Logger

	writeMu sync.Mutex
}

// Dial connects to the daemon's Unix socket. A nil logger discards
// operational messages.
func Dial(socketPath string, timeout time.Duration, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	conn, err := net.DialTimeout("unix", socketPath, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial transport socket %s: %w", socketPath, err)
	}
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
		logger: logger,
	}, nil
}

// Receive blocks until the next request or cancel arrives. Frame types
// this agent does not understand are logged and skipped, so a newer
// daemon can extend the protocol without breaking older agents.
// Returns ctx.Err() when the context is cancelled while waiting.
func (c *Conn) Receive(ctx context.Context) (Inbound, error) {
	for {
		frame, err := c.readFrame(ctx)
		if err != nil {
			return Inbound{}, err
		}
		switch frame.Type {
		case protocol.FrameRequest:
			var request protocol.RequestEnvelope
			if err := protocol.DecodeFrame(frame, &request); err != nil {
				return Inbound{}, fmt.Errorf("request frame: %w", err)
			}
			return Inbound{Request: &request}, nil
		case protocol.FrameCancel:
			var cancel protocol.CancelRequest
			if err := protocol.DecodeFrame(frame, &cancel); err != nil {
				return Inbound{}, fmt.Errorf("cancel frame: %w", err)
			}
			return Inbound{Cancel: &cancel}, nil
		default:
			c.logger.Debug("skipping unknown inbound frame",
				"frame_type", frame.Type,
				"payload_bytes", len(frame.Payload),
			)
		}
	}
}

// readFrame reads one frame, honoring ctx by poisoning the read
// deadline when the context is cancelled mid-read.
func (c *Conn) readFrame(ctx context.Context) (protocol.Frame, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Frame{}, err
	}
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(aLongTimeAgo)
	})
	frame, err := protocol.ReadFrame(c.reader)
	if !stop() {
		// The cancel hook ran; clear the poisoned deadline so a later
		// Receive on this connection is not stillborn.
		c.conn.SetReadDeadline(time.Time{})
	}
	if err != nil {
		if ctx.Err() != nil {
			return protocol.Frame{}, ctx.Err()
		}
		return protocol.Frame{}, err
	}
	return frame, nil
}

// SendStartup announces the agent to the daemon. Called once, before
// the receive loop starts.
func (c *Conn) SendStartup(info protocol.StartupInfo) error {
	return c.send(protocol.FrameStartup, info)
}

// SendReply emits one session reply.
func (c *Conn) SendReply(reply protocol.Reply) error {
	return c.send(protocol.FrameReply, reply)
}

// SendStatus emits a session's terminal status.
func (c *Conn) SendStatus(status protocol.Status) error {
	return c.send(protocol.FrameStatus, status)
}

// SendHeartbeat emits a session liveness heartbeat.
func (c *Conn) SendHeartbeat(heartbeat protocol.Heartbeat) error {
	return c.send(protocol.FrameHeartbeat, heartbeat)
}

func (c *Conn) send(frameType byte, body any) error {
	frame, err := protocol.EncodeFrame(frameType, body)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteFrame(c.conn, frame)
}

// Close tears down the connection. A blocked Receive returns with an
// error.
func (c *Conn) Close() error {
	return c.conn.Close()
}
