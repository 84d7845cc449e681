// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"log/slog"
	"sync"
	"time"
)

// Registry holds the live machine instances, one per round id.
//
// # Description
//
// HTTP requests for the same round must observe the same machine, or
// the at-most-one-in-flight guarantee would only hold per request. The
// registry is the process-local home for that shared instance. Machines
// are created on first touch and swept once stale; a swept round that
// gets touched again simply re-enters Loading, and the store decides
// whether it still exists. The sweep horizon therefore must not
// undercut the store's round TTL, or a settled round would come back
// loadable and resolve a second time.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	machines map[string]*Machine
	deps     Deps
}

// NewRegistry creates an empty registry. All machines it creates share
// the given dependencies.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		machines: make(map[string]*Machine),
		deps:     deps.withDefaults(),
	}
}

// Machine returns the machine for roundID, creating it in Loading if
// this is the round's first touch. query is only used on creation;
// subsequent touches keep the original.
func (r *Registry) Machine(roundID, query string) *Machine {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.machines[roundID]; ok {
		return m
	}
	m := NewMachine(roundID, query, r.deps)
	r.machines[roundID] = m
	return m
}

// Len returns the number of live machines.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.machines)
}

// Sweep drops machines untouched for longer than maxIdle, returning
// how many were removed. Resolving machines are never swept: the
// in-flight lock must survive until the call settles. Terminal machines
// get the same idle horizon as everything else - their store entry can
// outlive them, and a settled round swept too early would rebuild as a
// fresh machine, re-present, and issue a second resolution call for a
// round that already consumed its one. Callers keep the two horizons
// aligned by sweeping with the store's round TTL.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	now := r.deps.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, m := range r.machines {
		if m.State() == StateResolving {
			continue
		}
		if now.Sub(m.LastTouched()) > maxIdle {
			delete(r.machines, id)
			removed++
		}
	}
	if removed > 0 {
		slog.Debug("swept disambiguation machines",
			"removed", removed, "remaining", len(r.machines))
	}
	return removed
}
