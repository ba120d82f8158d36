// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for RRG binaries.
// It centralizes the one legitimate raw-I/O pattern that exists before
// the structured logger: fatal error reporting from main() when run()
// returns. Everything after logger setup reports through slog.
package process
