// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package network implements the network action: one reply per socket
// parsed from the kernel's /proc/net tables. The hex address encoding
// in those tables is little-endian within each 32-bit group; the
// parser undoes that before formatting addresses.
package network

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Args selects protocols and address families. Absent fields default
// to true, so a bare request lists everything.
type Args struct {
	TCP  *bool `json:"tcp,omitempty"`
	UDP  *bool `json:"udp,omitempty"`
	IPv4 *bool `json:"ipv4,omitempty"`
	IPv6 *bool `json:"ipv6,omitempty"`
}

// Connection is one reply: a socket table row.
type Connection struct {
	Protocol   string `json:"protocol"`
	LocalIP    string `json:"local_ip"`
	LocalPort  uint16 `json:"local_port"`
	RemoteIP   string `json:"remote_ip"`
	RemotePort uint16 `json:"remote_port"`
	State      string `json:"state,omitempty"`
	UID        uint32 `json:"uid"`
	Inode      uint64 `json:"inode,omitempty"`
}

// Action returns the catalog descriptor, reading the real /proc/net.
func Action() action.Descriptor {
	return actionFrom("/proc/net")
}

func actionFrom(procNetDir string) action.Descriptor {
	return action.New(protocol.ActionListConnections, run(procNetDir))
}

func run(procNetDir string) func(ctx context.Context, s *session.Session, args Args) error {
	return func(ctx context.Context, s *session.Session, args Args) error {
		sources := []struct {
			file     string
			protocol string
			wanted   bool
		}{
			{"tcp", "tcp", wanted(args.TCP) && wanted(args.IPv4)},
			{"tcp6", "tcp6", wanted(args.TCP) && wanted(args.IPv6)},
			{"udp", "udp", wanted(args.UDP) && wanted(args.IPv4)},
			{"udp6", "udp6", wanted(args.UDP) && wanted(args.IPv6)},
		}

		var readable int
		var lastErr error
		for _, source := range sources {
			if !source.wanted {
				continue
			}
			// A missing table is normal (IPv6 disabled kernels have no
			// tcp6); only report failure when nothing was readable.
			connections, err := parseTable(filepath.Join(procNetDir, source.file), source.protocol)
			if err != nil {
				lastErr = err
				continue
			}
			readable++
			for _, connection := range connections {
				if err := s.Reply(connection); err != nil {
					return err
				}
			}
		}
		if readable == 0 && lastErr != nil {
			return lastErr
		}
		return nil
	}
}

// wanted interprets an optional selector: nil means true.
func wanted(selector *bool) bool {
	return selector == nil || *selector
}

// tcpStates maps the st column to conventional state names.
var tcpStates = map[uint64]string{
	0x01: "ESTABLISHED",
	0x02: "SYN_SENT",
	0x03: "SYN_RECV",
	0x04: "FIN_WAIT1",
	0x05: "FIN_WAIT2",
	0x06: "TIME_WAIT",
	0x07: "CLOSE",
	0x08: "CLOSE_WAIT",
	0x09: "LAST_ACK",
	0x0a: "LISTEN",
	0x0b: "CLOSING",
	0x0c: "NEW_SYN_RECV",
}

// parseTable reads one /proc/net socket table. Rows that do not parse
// are skipped; the kernel occasionally exposes transient garbage while
// sockets churn, and one bad row must not hide the rest.
func parseTable(path, protocol string) ([]Connection, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading socket table: %w", err)
	}
	defer file.Close()

	isTCP := strings.HasPrefix(protocol, "tcp")

	var connections []Connection
	scanner := bufio.NewScanner(file)
	scanner.Scan() // header row
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		localIP, localPort, err := parseHexAddr(fields[1])
		if err != nil {
			continue
		}
		remoteIP, remotePort, err := parseHexAddr(fields[2])
		if err != nil {
			continue
		}
		state, err := strconv.ParseUint(fields[3], 16, 8)
		if err != nil {
			continue
		}
		uid, err := strconv.ParseUint(fields[7], 10, 32)
		if err != nil {
			continue
		}
		inode, _ := strconv.ParseUint(fields[9], 10, 64)

		connection := Connection{
			Protocol:   protocol,
			LocalIP:    localIP.String(),
			LocalPort:  localPort,
			RemoteIP:   remoteIP.String(),
			RemotePort: remotePort,
			UID:        uint32(uid),
			Inode:      inode,
		}
		if isTCP {
			connection.State = tcpStates[state]
		}
		connections = append(connections, connection)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading socket table: %w", err)
	}
	return connections, nil
}

// parseHexAddr splits an "IP:PORT" column where the IP is hex in
// little-endian 32-bit groups and the port is big-endian hex.
func parseHexAddr(addr string) (net.IP, uint16, error) {
	ipHex, portHex, found := strings.Cut(addr, ":")
	if !found {
		return nil, 0, fmt.Errorf("address %q has no port separator", addr)
	}
	ip, err := parseHexIP(ipHex)
	if err != nil {
		return nil, 0, err
	}
	port, err := strconv.ParseUint(portHex, 16, 16)
	if err != nil {
		return nil, 0, fmt.Errorf("port %q: %w", portHex, err)
	}
	return ip, uint16(port), nil
}

func parseHexIP(ipHex string) (net.IP, error) {
	raw, err := hex.DecodeString(ipHex)
	if err != nil {
		return nil, fmt.Errorf("ip %q: %w", ipHex, err)
	}
	switch len(raw) {
	case net.IPv4len:
		return net.IP{raw[3], raw[2], raw[1], raw[0]}, nil
	case net.IPv6len:
		ip := make(net.IP, net.IPv6len)
		for group := 0; group < 4; group++ {
			for i := 0; i < 4; i++ {
				ip[group*4+i] = raw[group*4+3-i]
			}
		}
		return ip, nil
	}
	return nil, fmt.Errorf("ip %q: unexpected length %d", ipHex, len(raw))
}
