// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry delivers structured event notifications at the
// protocol's transition points.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Event is one flat key/value telemetry record.
type Event struct {
	Name   string         `json:"event"`
	Fields map[string]any `json:"fields,omitempty"`
	TS     int64          `json:"ts"`
}

// ViewEvent records a disambiguation round reaching Presenting.
func ViewEvent(query string, optionCount int) Event {
	return Event{
		Name: "disambiguation_view",
		Fields: map[string]any{
			"query":        query,
			"option_count": optionCount,
		},
		TS: time.Now().UnixMilli(),
	}
}

// ChooseEvent records a candidate selection.
func ChooseEvent(query, entityID string, index int) Event {
	return Event{
		Name: "disambiguation_choose",
		Fields: map[string]any{
			"query":     query,
			"entity_id": entityID,
			"index":     index,
		},
		TS: time.Now().UnixMilli(),
	}
}

// CopyLinkEvent records a round's share link being copied.
func CopyLinkEvent(query, entityID string) Event {
	return Event{
		Name: "disambiguation_copy_link",
		Fields: map[string]any{
			"query":     query,
			"entity_id": entityID,
		},
		TS: time.Now().UnixMilli(),
	}
}

// Sink receives telemetry events.
//
// # Description
//
// Delivery is best-effort and explicitly decoupled from the critical
// path: Emit never returns an error and implementations must never let
// a delivery failure alter a protocol decision. Implementations must be
// safe for concurrent use.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NopSink discards all events. The default when no analytics endpoint
// is configured.
type NopSink struct{}

func (NopSink) Emit(context.Context, Event) {}

// HTTPSink posts events to an analytics collector.
//
// Delivery happens on a background goroutine with its own timeout so a
// slow collector cannot stall a transition. Failures are logged at
// debug level and dropped.
type HTTPSink struct {
	endpoint   string
	httpClient *http.Client
	onDrop     func()
}

// NewHTTPSink creates a sink posting to the given endpoint. onDrop is
// invoked once per undelivered event (used for a drop counter); it may
// be nil.
func NewHTTPSink(endpoint string, onDrop func()) *HTTPSink {
	return &HTTPSink{
		endpoint:   strings.TrimSuffix(endpoint, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		onDrop:     onDrop,
	}
}

// Emit sends the event without blocking the caller.
func (s *HTTPSink) Emit(_ context.Context, event Event) {
	go s.deliver(event)
}

func (s *HTTPSink) deliver(event Event) {
	err := s.post(event)
	if err != nil {
		slog.Debug("telemetry event dropped", "event", event.Name, "error", err)
		if s.onDrop != nil {
			s.onDrop()
		}
	}
}

func (s *HTTPSink) post(event Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Deliberately not the caller's context: the emitting request may
	// finish long before the collector answers.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("collector returned status %d", resp.StatusCode)
	}
	return nil
}

// CaptureSink records events in memory for tests.
type CaptureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *CaptureSink) Emit(_ context.Context, event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

// Events returns a copy of everything emitted so far.
func (s *CaptureSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Names returns the event names in emission order.
func (s *CaptureSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.Name)
	}
	return names
}

// FailingSink panics on every emit. Used in tests to prove sink
// failures cannot reach a protocol decision.
type FailingSink struct{}

func (FailingSink) Emit(context.Context, Event) {
	panic("telemetry sink failure")
}
