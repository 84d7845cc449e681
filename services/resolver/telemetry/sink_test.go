// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached within deadline")
}

func TestHTTPSink_PostsEventAsJSON(t *testing.T) {
	received := make(chan Event, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var e Event
		require.NoError(t, json.NewDecoder(r.Body).Decode(&e))
		received <- e
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sink := NewHTTPSink(server.URL, nil)
	sink.Emit(context.Background(), ViewEvent("Nescafe", 3))

	select {
	case e := <-received:
		assert.Equal(t, "disambiguation_view", e.Name)
		assert.Equal(t, "Nescafe", e.Fields["query"])
		assert.EqualValues(t, 3, e.Fields["option_count"])
		assert.NotZero(t, e.TS)
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
	}
}

func TestHTTPSink_EmitDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	sink := NewHTTPSink(server.URL, nil)

	start := time.Now()
	sink.Emit(context.Background(), ChooseEvent("Nescafe", "e1", 0))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestHTTPSink_DropCountedOnCollectorError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var drops atomic.Int64
	sink := NewHTTPSink(server.URL, func() { drops.Add(1) })
	sink.Emit(context.Background(), CopyLinkEvent("Nescafe", "e1"))

	waitFor(t, func() bool { return drops.Load() == 1 })
}

func TestHTTPSink_DropCountedOnUnreachableCollector(t *testing.T) {
	// Port reserved then closed, so nothing is listening.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := server.URL
	server.Close()

	var drops atomic.Int64
	sink := NewHTTPSink(endpoint, func() { drops.Add(1) })
	sink.Emit(context.Background(), ViewEvent("Nescafe", 2))

	waitFor(t, func() bool { return drops.Load() == 1 })
}

func TestCaptureSink_RecordsInOrder(t *testing.T) {
	sink := &CaptureSink{}
	sink.Emit(context.Background(), ViewEvent("Nescafe", 2))
	sink.Emit(context.Background(), ChooseEvent("Nescafe", "e1", 1))

	assert.Equal(t, []string{"disambiguation_view", "disambiguation_choose"}, sink.Names())

	events := sink.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "e1", events[1].Fields["entity_id"])
	assert.Equal(t, 1, events[1].Fields["index"])
}

func TestNopSink_Discards(t *testing.T) {
	var sink Sink = NopSink{}
	// Must simply not panic or block.
	sink.Emit(context.Background(), ViewEvent("Nescafe", 1))
}
