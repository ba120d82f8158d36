// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the agent.
//
// Configuration comes from a single file named by either the
// RRG_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no ~/.config discovery and no automatic
// file search; an agent given no file runs on [Default]. Environment
// variables never override file values, so capturing the file captures
// the deployment.
//
// Key exports:
//
//   - [Config] -- top-level struct: Transport, Session, Actions, Journal, Log
//   - [Default] -- the stock agent configuration
//   - [LoadFile] -- Default overlaid with one YAML file
//   - [Config.Validate] -- field checks, all failures joined into one error
package config
