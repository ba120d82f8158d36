// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// ActionID identifies an action in the agent's catalog. Wire values are
// part of the protocol: once assigned, an ID is never reused for a
// different action.
type ActionID uint32

const (
	// ActionGetAgentMetadata reports the agent build itself: name,
	// version, build time, platform.
	ActionGetAgentMetadata ActionID = 1

	// ActionGetSystemMetadata reports the host operating system:
	// kind, version, hostname, boot time.
	ActionGetSystemMetadata ActionID = 2

	// ActionGetFileMetadata reports metadata of a single file without
	// following symlinks, including extended attributes.
	ActionGetFileMetadata ActionID = 3

	// ActionStatFile reports the full stat record of a filesystem
	// object, optionally following symlinks.
	ActionStatFile ActionID = 4

	// ActionListDirectory streams the direct children of a directory
	// in lexicographic order.
	ActionListDirectory ActionID = 5

	// ActionListFilesystems streams the mounted filesystems with
	// usage figures.
	ActionListFilesystems ActionID = 6

	// ActionListInterfaces streams the network interfaces with their
	// addresses.
	ActionListInterfaces ActionID = 7

	// ActionListConnections streams TCP and UDP connections from the
	// kernel tables.
	ActionListConnections ActionID = 8

	// ActionGetInstallTime reports an estimate of when the operating
	// system was installed.
	ActionGetInstallTime ActionID = 9

	// ActionTimeline streams a recursive filesystem timeline as
	// compressed, digest-verified parts.
	ActionTimeline ActionID = 10

	// ActionFindFiles streams files matching name and attribute
	// conditions under a set of roots.
	ActionFindFiles ActionID = 11
)

// actionNames maps each ActionID to its catalog name. These names are
// the controller-facing identifiers: they appear in configuration,
// logging, and the journal, never on the request wire (requests carry
// the numeric ID).
var actionNames = map[ActionID]string{
	ActionGetAgentMetadata:  "metadata",
	ActionGetSystemMetadata: "get_system_metadata",
	ActionGetFileMetadata:   "get_file_metadata",
	ActionStatFile:          "stat",
	ActionListDirectory:     "listdir",
	ActionListFilesystems:   "filesystems",
	ActionListInterfaces:    "interfaces",
	ActionListConnections:   "network",
	ActionGetInstallTime:    "insttime",
	ActionTimeline:          "timeline",
	ActionFindFiles:         "finder",
}

// String returns the catalog name of the action, or a decimal rendering
// for IDs outside the catalog.
func (a ActionID) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", uint32(a))
}

// ParseActionName resolves a catalog name to its ActionID. Used by the
// configuration layer's enabled-action list.
func ParseActionName(name string) (ActionID, error) {
	for id, candidate := range actionNames {
		if candidate == name {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown action name %q", name)
}

// ActionNames returns the catalog names of all actions, sorted by ID.
func ActionNames() []string {
	names := make([]string, 0, len(actionNames))
	for id := ActionGetAgentMetadata; id <= ActionFindFiles; id++ {
		names = append(names, actionNames[id])
	}
	return names
}
