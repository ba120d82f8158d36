// Copyright 2026 The RRG Authors
// SPDX-License-Identifier: Apache-2.0

package action

import (
	"fmt"
	"slices"

	"github.com/sarvex/rrg/protocol"
	"github.com/sarvex/rrg/session"
)

// Registry is an immutable set of descriptors keyed by action
// identifier. It satisfies the dispatcher's catalog interface. Lookups
// take no locks; build the registry once at startup.
type Registry struct {
	actions map[protocol.ActionID]Descriptor
}

// NewRegistry collects descriptors into a registry. Registering two
// descriptors for the same action identifier is a programmer error and
// panics.
func NewRegistry(descriptors ...Descriptor) *Registry {
	actions := make(map[protocol.ActionID]Descriptor, len(descriptors))
	for _, descriptor := range descriptors {
		if _, exists := actions[descriptor.id]; exists {
			panic(fmt.Sprintf("action: duplicate descriptor for %v", descriptor.id))
		}
		actions[descriptor.id] = descriptor
	}
	return &Registry{actions: actions}
}

// Lookup returns the descriptor for id, or false if the registry does
// not serve it.
func (r *Registry) Lookup(id protocol.ActionID) (session.Action, bool) {
	descriptor, ok := r.actions[id]
	if !ok {
		return nil, false
	}
	return descriptor, true
}

// IDs returns the registered action identifiers in ascending order.
func (r *Registry) IDs() []protocol.ActionID {
	ids := make([]protocol.ActionID, 0, len(r.actions))
	for id := range r.actions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Names returns the wire names of the registered actions, ordered by
// identifier. The agent announces this list in its startup frame.
func (r *Registry) Names() []string {
	ids := r.IDs()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return names
}

// Len returns the number of registered actions.
func (r *Registry) Len() int {
	return len(r.actions)
}
