// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog is the single place that knows every action the
// agent implements. The agent binary builds its registry here, either
// the full table or the subset a deployment enables in its
// configuration.
package catalog

import (
	"fmt"
	"strings"

	"github.com/sarvex/rrg/action"
	"github.com/sarvex/rrg/action/agentinfo"
	"github.com/sarvex/rrg/action/filemeta"
	"github.com/sarvex/rrg/action/filesystems"
	"github.com/sarvex/rrg/action/finder"
	"github.com/sarvex/rrg/action/insttime"
	"github.com/sarvex/rrg/action/interfaces"
	"github.com/sarvex/rrg/action/listdir"
	"github.com/sarvex/rrg/action/network"
	"github.com/sarvex/rrg/action/stat"
	"github.com/sarvex/rrg/action/sysinfo"
	"github.com/sarvex/rrg/action/timeline"
)

// All returns a descriptor for every implemented action, in identifier
// order.
func All() []action.Descriptor {
	return []action.Descriptor{
		agentinfo.Action(),
		sysinfo.Action(),
		filemeta.Action(),
		stat.Action(),
		listdir.Action(),
		filesystems.Action(),
		interfaces.Action(),
		network.Action(),
		insttime.Action(),
		timeline.Action(),
		finder.Action(),
	}
}

// Names returns the wire names of every implemented action, in
// identifier order.
func Names() []string {
	all := All()
	names := make([]string, len(all))
	for i, descriptor := range all {
		names[i] = descriptor.Name()
	}
	return names
}

// Build returns a registry serving the named actions. An empty list
// enables everything. Unknown and repeated names are configuration
// errors; the unknown-name error lists the valid names so a config
// typo is diagnosable from the log alone.
func Build(enabled []string) (*action.Registry, error) {
	all := All()
	if len(enabled) == 0 {
		return action.NewRegistry(all...), nil
	}

	byName := make(map[string]action.Descriptor, len(all))
	for _, descriptor := range all {
		byName[descriptor.Name()] = descriptor
	}

	selected := make([]action.Descriptor, 0, len(enabled))
	seen := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		if seen[name] {
			return nil, fmt.Errorf("action %q enabled twice", name)
		}
		seen[name] = true
		descriptor, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown action %q (valid: %s)",
				name, strings.Join(Names(), ", "))
		}
		selected = append(selected, descriptor)
	}
	return action.NewRegistry(selected...), nil
}
