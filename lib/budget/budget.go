// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package budget defines per-session output ceilings and resolves the
// per-action budget table.
//
// Budgets bound how much a single request may send back: a reply-count
// ceiling and a cumulative payload-byte ceiling. The defaults ship as
// an embedded JSONC profile keyed by action name (streaming actions get
// generous byte budgets, single-reply actions tiny ones); deployments
// override them through the agent configuration.
package budget

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/sarvex/rrg/protocol"
)

// Budget bounds the output of one session. The zero value means
// unlimited on both axes.
type Budget struct {
	// MaxReplies is the reply-count ceiling. 0 means unlimited.
	MaxReplies uint64 `json:"max_replies" yaml:"max_replies"`

	// MaxBytes is the cumulative encoded-payload ceiling in bytes.
	// 0 means unlimited.
	MaxBytes uint64 `json:"max_bytes" yaml:"max_bytes"`
}

// profilesJSONC is the shipped per-action budget profile. JSONC so the
// numbers can carry their rationale inline.
//
//go:embed profiles.jsonc
var profilesJSONC []byte

// defaultProfiles is parsed once at startup. A malformed embed is a
// build defect, so parsing failures panic.
var defaultProfiles map[string]Budget

func init() {
	profiles, err := parseProfiles(profilesJSONC)
	if err != nil {
		panic("budget: embedded profiles are malformed: " + err.Error())
	}
	defaultProfiles = profiles
}

// parseProfiles strips JSONC comments and trailing commas from data,
// then unmarshals the result into a name-keyed budget map. Every key
// must be a known action name.
func parseProfiles(data []byte) (map[string]Budget, error) {
	stripped := jsonc.ToJSON(data)

	var profiles map[string]Budget
	if err := json.Unmarshal(stripped, &profiles); err != nil {
		return nil, fmt.Errorf("parsing budget profiles: %w", err)
	}
	for name := range profiles {
		if _, err := protocol.ParseActionName(name); err != nil {
			return nil, fmt.Errorf("budget profile: %w", err)
		}
	}
	return profiles, nil
}

// DefaultProfiles returns a copy of the shipped per-action budgets,
// keyed by action name.
func DefaultProfiles() map[string]Budget {
	profiles := make(map[string]Budget, len(defaultProfiles))
	for name, b := range defaultProfiles {
		profiles[name] = b
	}
	return profiles
}

// Table resolves the budget for an action: a per-action entry when one
// exists, the fallback otherwise.
type Table struct {
	fallback  Budget
	perAction map[protocol.ActionID]Budget
}

// NewTable builds a Table from a fallback budget and zero or more
// name-keyed profile maps. Later maps override earlier ones, so the
// caller passes the shipped defaults first and deployment overrides
// last. Unknown action names are an error.
func NewTable(fallback Budget, profiles ...map[string]Budget) (*Table, error) {
	perAction := make(map[protocol.ActionID]Budget)
	for _, profile := range profiles {
		for name, b := range profile {
			id, err := protocol.ParseActionName(name)
			if err != nil {
				return nil, fmt.Errorf("budget table: %w", err)
			}
			perAction[id] = b
		}
	}
	return &Table{fallback: fallback, perAction: perAction}, nil
}

// Lookup returns the budget for the given action.
func (t *Table) Lookup(id protocol.ActionID) Budget {
	if b, ok := t.perAction[id]; ok {
		return b
	}
	return t.fallback
}
