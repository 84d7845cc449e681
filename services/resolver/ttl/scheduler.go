// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl provides lifetime housekeeping for disambiguation rounds:
// a background sweeper over the protocol registry. Expiry is advisory
// only; round identifiers are never reused, so an expired round has no
// correctness impact beyond surfacing the usual missing-data path.
package ttl

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// SweepFunc performs one cleanup cycle and returns how many items it
// removed.
type SweepFunc func() int

// Scheduler runs a sweep function on a fixed interval.
//
// # Description
//
// Used to drop settled and abandoned machine instances from the
// protocol registry. Store entries need no scheduler of their own:
// BadgerDB expires them via per-entry TTL.
//
// # Thread Safety
//
// Start and Stop are safe to call from any goroutine. Start is
// idempotent; Stop blocks until the sweep goroutine exits.
type Scheduler struct {
	interval time.Duration
	sweep    SweepFunc

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewScheduler creates a stopped scheduler. interval must be positive.
func NewScheduler(interval time.Duration, sweep SweepFunc) *Scheduler {
	return &Scheduler{
		interval: interval,
		sweep:    sweep,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins periodic sweeping.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.run()
	})
}

// Stop halts sweeping and waits for the goroutine to finish. Calling
// Stop on a never-started scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.started.Load() {
			<-s.doneCh
		}
	})
}

func (s *Scheduler) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			removed := s.sweep()
			if removed > 0 {
				slog.Debug("round sweep cycle completed", "removed", removed)
			}
		}
	}
}
