// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol implements the disambiguation state machine: the
// core that drives one round of candidate presentation to exactly one
// of a confirmed result, a further round, or a terminal failure.
//
// # State Model
//
// Loading -> Presenting -> Resolving -> {NavigatingToResult |
// NavigatingToNextRound | NavigatingToError}. Loading and the
// Navigating states are transient; Presenting and Resolving are the
// only states with user-observable duration.
//
// # Concurrency
//
// User interactions and network completions arrive as discrete events
// (Load, Choose, Widen). The sole mutual-exclusion requirement in the
// protocol - at most one resolution call in flight per round - is
// enforced by the state tag under the machine's mutex: a Choose that
// observes Resolving or a terminal state is a no-op, never a second
// call. The mutex is NOT held across the resolution call itself; the
// Resolving tag is the lock.
package protocol

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/datatypes"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/navigate"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/observability"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/research"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/store"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/telemetry"
)

// State is the machine's closed state set.
type State string

const (
	StateLoading               State = "loading"
	StatePresenting            State = "presenting"
	StateResolving             State = "resolving"
	StateNavigatingToResult    State = "navigating_to_result"
	StateNavigatingToNextRound State = "navigating_to_next_round"
	StateNavigatingToError     State = "navigating_to_error"
)

// Terminal reports whether s admits no further transitions.
func (s State) Terminal() bool {
	switch s {
	case StateNavigatingToResult, StateNavigatingToNextRound, StateNavigatingToError:
		return true
	}
	return false
}

// ErrNotPresenting is returned by Choose and Widen when the round has
// not reached Presenting (it is still Loading, or loading failed).
var ErrNotPresenting = errors.New("round is not presenting")

// ErrUnknownCandidate is returned by Choose when the entity id does not
// name a candidate of this round.
var ErrUnknownCandidate = errors.New("unknown candidate for round")

// Deps are the machine's injectable collaborators. Store and Client are
// required; Sink, Metrics, Now and NewRoundID default when unset.
type Deps struct {
	Store   store.RoundStore
	Client  research.Client
	Sink    telemetry.Sink
	Metrics *observability.ProtocolMetrics

	// Now and NewRoundID exist for deterministic tests.
	Now        func() time.Time
	NewRoundID func() string
}

func (d Deps) withDefaults() Deps {
	if d.Sink == nil {
		d.Sink = telemetry.NopSink{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewRoundID == nil {
		d.NewRoundID = uuid.NewString
	}
	return d
}

// Machine drives one disambiguation round.
//
// A machine is bound to a single round id for its whole life. Once the
// round enters Resolving it never returns to Presenting; re-presenting
// options always happens under a fresh round id on a fresh machine.
type Machine struct {
	mu sync.Mutex

	roundID string
	query   string
	state   State

	options  []datatypes.Candidate
	selected *datatypes.Candidate
	decision *navigate.Navigation

	createdAt   time.Time
	lastTouched time.Time

	deps Deps
}

// NewMachine constructs a machine in Loading for the given round.
// roundID and query typically arrive via the disambiguation view's URL
// parameters.
func NewMachine(roundID, query string, deps Deps) *Machine {
	deps = deps.withDefaults()
	now := deps.Now()
	return &Machine{
		roundID:     roundID,
		query:       query,
		state:       StateLoading,
		createdAt:   now,
		lastTouched: now,
		deps:        deps,
	}
}

// RoundID returns the round this machine is bound to.
func (m *Machine) RoundID() string {
	return m.roundID
}

// Query returns the original search string for this round.
func (m *Machine) Query() string {
	return m.query
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Snapshot is the machine's externally visible condition after an event.
type Snapshot struct {
	RoundID string
	Query   string
	State   State

	// Options is populated while Presenting.
	Options []datatypes.Candidate

	// Selected names the locked candidate from Resolving onward.
	Selected *datatypes.Candidate

	// Navigation is the terminal/continuation decision, set once the
	// machine reaches a Navigating state.
	Navigation *navigate.Navigation
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		RoundID:    m.roundID,
		Query:      m.query,
		State:      m.state,
		Selected:   m.selected,
		Navigation: m.decision,
	}
	if m.state == StatePresenting {
		s.Options = m.options
	}
	return s
}

// Load drives Loading -> Presenting by reading the round from the
// session store.
//
// # Description
//
// A round that is missing, corrupt, or expired transitions straight to
// NavigatingToError with missing_session_data; a round whose candidate
// list is empty transitions there with no_options_available. Presenting
// is only reachable with a non-empty candidate list. Calling Load again
// after the first call returns the current snapshot without re-reading
// the store.
func (m *Machine) Load(ctx context.Context) Snapshot {
	m.mu.Lock()
	if m.state != StateLoading {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap
	}
	m.touchLocked()
	m.mu.Unlock()

	payload, err := m.deps.Store.Get(ctx, m.roundID)

	m.mu.Lock()
	defer m.mu.Unlock()

	// A concurrent Load may have settled the state while the store read
	// was in progress.
	if m.state != StateLoading {
		return m.snapshotLocked()
	}

	switch {
	case err != nil:
		slog.Warn("no disambiguation data for round",
			"round_id", m.roundID, "error", err)
		m.deps.Metrics.RecordRoundLoad(observability.LoadMissing)
		m.failLocked(datatypes.CodeMissingSessionData)

	case len(payload.Options) == 0:
		slog.Warn("round has no candidates", "round_id", m.roundID)
		m.deps.Metrics.RecordRoundLoad(observability.LoadEmpty)
		m.failLocked(datatypes.CodeNoOptions)

	default:
		m.options = payload.Options
		if m.query == "" {
			m.query = payload.BrandQuery
		}
		m.state = StatePresenting
		m.deps.Metrics.RecordRoundLoad(observability.LoadPresented)
		m.emit(telemetry.ViewEvent(m.query, len(m.options)))
		slog.Info("presenting disambiguation round",
			"round_id", m.roundID, "query", m.query, "option_count", len(m.options))
	}
	return m.snapshotLocked()
}

// ChooseResult is the outcome of one Choose event.
type ChooseResult struct {
	// Accepted is true only for the selection that actually issued the
	// resolution call. Duplicate selections while Resolving, and
	// selections after the round settled, come back with Accepted false
	// and the current snapshot.
	Accepted bool
	Snapshot Snapshot
}

// Choose locks in one candidate and drives Presenting -> Resolving ->
// a Navigating state.
//
// # Description
//
// The precondition is state == Presenting: a second selection while a
// resolution is in flight is a no-op, not a re-entrant call. Exactly
// one resolution request is issued per round, ever. The classified
// outcome fully determines the navigation:
//
//   - Resolved: NavigatingToResult carrying the brand.
//   - StillAmbiguous: the next round is durably written under a NEW
//     round id first; only then NavigatingToNextRound. A failed write
//     aborts the continuation and yields NavigatingToError instead.
//   - Failed: NavigatingToError carrying the code.
//
// # Outputs
//
//   - ChooseResult: Always carries a snapshot; Accepted marks the
//     winning selection.
//   - error: ErrNotPresenting if the round never presented,
//     ErrUnknownCandidate if entityID is not in this round's options.
//     Neither consumes the round.
func (m *Machine) Choose(ctx context.Context, entityID string) (ChooseResult, error) {
	m.mu.Lock()

	switch m.state {
	case StatePresenting:
		// fall through to the selection below
	case StateLoading:
		m.mu.Unlock()
		return ChooseResult{}, ErrNotPresenting
	default:
		// Resolving or terminal: the guard. No second call is issued.
		m.deps.Metrics.RecordChooseRejected()
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return ChooseResult{Accepted: false, Snapshot: snap}, nil
	}

	idx := -1
	for i := range m.options {
		if m.options[i].ID == entityID {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.mu.Unlock()
		return ChooseResult{}, ErrUnknownCandidate
	}

	selected := m.options[idx]
	m.selected = &selected
	m.state = StateResolving
	m.touchLocked()
	m.deps.Metrics.ResolutionStarted()
	m.emit(telemetry.ChooseEvent(m.query, selected.ID, idx))
	slog.Info("resolving selected candidate",
		"round_id", m.roundID, "entity_id", selected.ID, "query", selected.ResolutionQuery())
	m.mu.Unlock()

	// The resolution call runs without the mutex; the Resolving tag is
	// what rejects concurrent selections. The call settles in bounded
	// time (client-side timeout) and classification is total, so the
	// tag is always released into a terminal state.
	started := m.deps.Now()
	outcome := m.deps.Client.Resolve(ctx, selected.ResolutionQuery())
	elapsed := m.deps.Now().Sub(started).Seconds()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.deps.Metrics.ResolutionEnded()
	m.deps.Metrics.RecordResolution(string(outcome.Kind), elapsed)
	m.settleLocked(ctx, outcome)

	return ChooseResult{Accepted: true, Snapshot: m.snapshotLocked()}, nil
}

// settleLocked applies a classified outcome. Caller holds the mutex and
// has verified state == Resolving.
func (m *Machine) settleLocked(ctx context.Context, outcome datatypes.ResolutionOutcome) {
	switch outcome.Kind {
	case datatypes.OutcomeResolved:
		nav := navigate.ToResult(outcome.Brand, outcome.EntityID)
		m.decision = &nav
		m.state = StateNavigatingToResult
		slog.Info("round resolved", "round_id", m.roundID, "brand", outcome.Brand)

	case datatypes.OutcomeStillAmbiguous:
		m.settleAmbiguousLocked(ctx, outcome)

	case datatypes.OutcomeFailed:
		m.failLocked(outcome.Code)

	default:
		// A client honoring its contract never gets here.
		slog.Error("unclassified resolution outcome",
			"round_id", m.roundID, "kind", string(outcome.Kind))
		m.failLocked(datatypes.CodeLookupFailed)
	}
}

// settleAmbiguousLocked writes the next round and only then navigates
// into it. The next round always gets a round id distinct from the
// current one, even if the pipeline echoed ours back.
func (m *Machine) settleAmbiguousLocked(ctx context.Context, outcome datatypes.ResolutionOutcome) {
	nextID := outcome.RoundID
	if nextID == "" || nextID == m.roundID {
		nextID = m.deps.NewRoundID()
	}

	payload := datatypes.NewRoundPayload(outcome.Options, outcome.Query, m.deps.Now())
	if err := m.deps.Store.Put(ctx, nextID, payload); err != nil {
		// An unwritten round must never be navigated to: the next
		// machine would load nothing. Abort into the error view.
		slog.Error("failed to store next disambiguation round",
			"round_id", m.roundID, "next_round_id", nextID, "error", err)
		m.failLocked(datatypes.CodeStorageError)
		return
	}

	nav := navigate.ToNextRound(nextID, outcome.Query)
	m.decision = &nav
	m.state = StateNavigatingToNextRound
	slog.Info("round still ambiguous, starting next round",
		"round_id", m.roundID, "next_round_id", nextID,
		"option_count", len(outcome.Options))
}

func (m *Machine) failLocked(code string) {
	nav := navigate.ToError(code)
	m.decision = &nav
	m.state = StateNavigatingToError
	slog.Info("round failed", "round_id", m.roundID, "code", code)
}

// Widen is the "not sure" exit: available only from Presenting, it
// produces the navigation back to the search surface with the widen
// flag and consumes no resolution call. The round stays Presenting, so
// a user returning via history can still choose.
func (m *Machine) Widen() (navigate.Navigation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePresenting {
		return navigate.Navigation{}, ErrNotPresenting
	}
	m.touchLocked()
	slog.Info("widening search", "round_id", m.roundID, "query", m.query)
	return navigate.ToWiden(m.query), nil
}

// ShareLink returns the canonical URL for this round and records the
// copy-link telemetry event. Valid from Presenting onward.
func (m *Machine) ShareLink(entityID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateLoading {
		return "", ErrNotPresenting
	}
	m.emit(telemetry.CopyLinkEvent(m.query, entityID))
	return navigate.RoundURL(m.roundID, m.query), nil
}

// LastTouched returns the time of the most recent event, for the
// registry's sweep policy.
func (m *Machine) LastTouched() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastTouched
}

func (m *Machine) touchLocked() {
	m.lastTouched = m.deps.Now()
}

// emit delivers a telemetry event without letting the sink near the
// transition decision. A misbehaving sink is logged and ignored.
func (m *Machine) emit(event telemetry.Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("telemetry sink panic", "event", event.Name, "panic", r)
			m.deps.Metrics.RecordTelemetryDropped()
		}
	}()
	m.deps.Sink.Emit(context.Background(), event)
}
