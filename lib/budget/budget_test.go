// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package budget

import (
	"testing"

	"github.com/sarvex/rrg/protocol"
)

func TestDefaultProfilesCoverKnownActions(t *testing.T) {
	t.Parallel()
	profiles := DefaultProfiles()
	if len(profiles) == 0 {
		t.Fatal("embedded profiles are empty")
	}
	for name := range profiles {
		if _, err := protocol.ParseActionName(name); err != nil {
			t.Errorf("profile key %q: %v", name, err)
		}
	}
}

func TestDefaultProfilesReturnsCopy(t *testing.T) {
	t.Parallel()
	first := DefaultProfiles()
	first["timeline"] = Budget{MaxReplies: 1}

	second := DefaultProfiles()
	if second["timeline"].MaxReplies == 1 {
		t.Error("mutating the returned map leaked into the shipped profiles")
	}
}

func TestTableLookupFallback(t *testing.T) {
	t.Parallel()
	fallback := Budget{MaxReplies: 100, MaxBytes: 1 << 20}
	table, err := NewTable(fallback)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	if got := table.Lookup(protocol.ActionTimeline); got != fallback {
		t.Errorf("Lookup without profiles: got %+v, want fallback %+v", got, fallback)
	}
}

func TestTableLookupOverrideOrder(t *testing.T) {
	t.Parallel()
	fallback := Budget{MaxReplies: 100}
	shipped := map[string]Budget{
		"timeline": {MaxBytes: 1 << 30},
		"listdir":  {MaxReplies: 1000},
	}
	deployment := map[string]Budget{
		"timeline": {MaxBytes: 1 << 20},
	}

	table, err := NewTable(fallback, shipped, deployment)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	if got := table.Lookup(protocol.ActionTimeline); got.MaxBytes != 1<<20 {
		t.Errorf("deployment override not applied: got %+v", got)
	}
	if got := table.Lookup(protocol.ActionListDirectory); got.MaxReplies != 1000 {
		t.Errorf("shipped profile not applied: got %+v", got)
	}
	if got := table.Lookup(protocol.ActionStatFile); got != fallback {
		t.Errorf("unprofiled action: got %+v, want fallback %+v", got, fallback)
	}
}

func TestTableRejectsUnknownActionName(t *testing.T) {
	t.Parallel()
	_, err := NewTable(Budget{}, map[string]Budget{"transmogrify": {}})
	if err == nil {
		t.Fatal("expected error for unknown action name")
	}
}

func TestParseProfilesRejectsUnknownKey(t *testing.T) {
	t.Parallel()
	_, err := parseProfiles([]byte(`{"not_an_action": {"max_replies": 1}}`))
	if err == nil {
		t.Fatal("expected error for unknown profile key")
	}
}

func TestParseProfilesAcceptsComments(t *testing.T) {
	t.Parallel()
	input := []byte(`{
		// streaming collector
		"timeline": {"max_replies": 0, "max_bytes": 1024}, // trailing comma next
	}`)
	profiles, err := parseProfiles(input)
	if err != nil {
		t.Fatalf("parseProfiles: %v", err)
	}
	if got := profiles["timeline"].MaxBytes; got != 1024 {
		t.Errorf("max_bytes: got %d, want 1024", got)
	}
}
