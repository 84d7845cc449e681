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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/datatypes"
)

func TestRegistry_SameMachinePerRound(t *testing.T) {
	reg := NewRegistry(Deps{Store: newFakeStore(), Client: &fakeClient{}})

	a := reg.Machine("t1", "Dove")
	b := reg.Machine("t1", "ignored on second touch")
	c := reg.Machine("t2", "Nutella")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, "Dove", b.Query())
	assert.Equal(t, 2, reg.Len())
}

func TestRegistry_SweepRemovesIdleTerminal(t *testing.T) {
	now := time.Now()
	s := newFakeStore()
	seedRound(t, s, "t1", "Dove", doveOptions())
	client := &fakeClient{outcome: datatypes.ResolvedOutcome("Dove Soap", "")}
	reg := NewRegistry(Deps{
		Store:  s,
		Client: client,
		Now:    func() time.Time { return now },
	})

	m := reg.Machine("t1", "Dove")
	m.Load(context.Background())
	_, err := m.Choose(context.Background(), "e1")
	require.NoError(t, err)
	require.True(t, m.State().Terminal())

	// A freshly settled machine is not sweepable yet.
	assert.Equal(t, 0, reg.Sweep(30*time.Minute))
	assert.Equal(t, 1, reg.Len())

	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, reg.Sweep(30*time.Minute))
	assert.Equal(t, 0, reg.Len())
}

// TestRegistry_SweepNeverReopensSettledRound: while a settled round's
// store entry is still live, a sweep must keep its machine around, so a
// re-touch replays the existing decision instead of rebuilding a fresh
// machine that would re-present and resolve the same round twice.
func TestRegistry_SweepNeverReopensSettledRound(t *testing.T) {
	s := newFakeStore()
	seedRound(t, s, "t1", "Dove", doveOptions())
	client := &fakeClient{outcome: datatypes.ResolvedOutcome("Dove Soap", "")}
	reg := NewRegistry(Deps{Store: s, Client: client})

	m := reg.Machine("t1", "Dove")
	m.Load(context.Background())
	_, err := m.Choose(context.Background(), "e1")
	require.NoError(t, err)
	first := m.Load(context.Background())
	require.True(t, first.State.Terminal())

	reg.Sweep(30 * time.Minute)

	again := reg.Machine("t1", "Dove")
	assert.Same(t, m, again)
	assert.True(t, again.State().Terminal())

	res, err := again.Choose(context.Background(), "e2")
	require.NoError(t, err)
	assert.False(t, res.Accepted)
	assert.Equal(t, first.Navigation, res.Snapshot.Navigation)
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestRegistry_SweepRemovesStale(t *testing.T) {
	now := time.Now()
	deps := Deps{
		Store:  newFakeStore(),
		Client: &fakeClient{},
		Now:    func() time.Time { return now },
	}
	reg := NewRegistry(deps)
	reg.Machine("t1", "Dove")

	// Nothing is stale yet.
	assert.Equal(t, 0, reg.Sweep(30*time.Minute))

	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, reg.Sweep(30*time.Minute))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_SweepSkipsResolving(t *testing.T) {
	s := newFakeStore()
	seedRound(t, s, "t1", "Dove", doveOptions())
	client := &fakeClient{
		outcome: datatypes.ResolvedOutcome("Dove Soap", ""),
		block:   make(chan struct{}),
	}
	reg := NewRegistry(Deps{Store: s, Client: client})

	m := reg.Machine("t1", "Dove")
	m.Load(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Choose(context.Background(), "e1")
	}()
	for client.calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// The in-flight lock must survive any sweep.
	assert.Equal(t, 0, reg.Sweep(0))
	assert.Equal(t, 1, reg.Len())

	close(client.block)
	<-done
}
