// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Rrg-agent is the endpoint forensic agent. It connects to the local
// transport daemon's Unix socket, announces its catalog, and serves
// controller requests until the connection drops or the process is
// signalled.
//
// # Startup
//
// The agent loads its YAML configuration (--config flag, RRG_CONFIG
// environment variable, or built-in defaults), builds the action
// catalog from the enabled-action list, and dials the daemon socket.
// Before serving it sends a startup frame carrying the agent version,
// host boot time, and catalog names so the controller knows what this
// endpoint can do.
//
// When a journal path is configured, startup also recovers from the
// previous run: rows left open by a crash are closed out and logged,
// and entries past the retention window are pruned.
//
// # Request Handling
//
// A single receive loop reads frames from the daemon. Each request
// runs in its own goroutine through the session dispatcher, bounded
// by session.max_concurrent; excess requests queue in arrival order.
// Cancel frames take effect immediately, even when every worker slot
// is busy.
//
// # Shutdown
//
// SIGINT or SIGTERM cancels every in-flight session, which makes the
// handlers wind down and emit their terminal statuses. The agent
// exits zero on a signalled shutdown and non-zero when the daemon
// connection fails, so a supervisor restarts it.
package main
