// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the session store: ephemeral keyed persistence
// that carries disambiguation round data between navigations.
//
// # Description
//
// Each round is written exactly once under "disambig:{roundId}" and read
// exactly once by the machine instance presenting it. Rounds are never
// mutated in place and never explicitly deleted; entries carry a TTL and
// self-evict. A structurally invalid or corrupt value is indistinguishable
// from a missing one - both surface ErrNotFound, and both drive the same
// missing_session_data failure path upstream.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. Cross-round
// contention does not exist by construction: no round ever touches
// another round's key.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/datatypes"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/storage/badger"
)

// keyPrefix scopes round entries within the shared database.
const keyPrefix = "disambig:"

// ErrNotFound is returned by Get when a round was never written, has
// expired, or its stored value cannot be decoded into a valid payload.
var ErrNotFound = errors.New("round not found")

// RoundStore is the session store contract consumed by the protocol layer.
//
// Put must not return until the write is durably acknowledged (or has
// failed): the navigation effector orders the next-round navigation
// strictly after a successful Put.
type RoundStore interface {
	Put(ctx context.Context, roundID string, payload datatypes.RoundPayload) error
	Get(ctx context.Context, roundID string) (datatypes.RoundPayload, error)
}

// BadgerStore is the BadgerDB-backed RoundStore.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
}

// NewBadgerStore wraps an open database. ttl is the advisory round
// lifetime; zero disables expiry (entries then live until the database
// is dropped).
func NewBadgerStore(db *badger.DB, ttl time.Duration) *BadgerStore {
	return &BadgerStore{db: db, ttl: ttl}
}

func roundKey(roundID string) []byte {
	return []byte(keyPrefix + roundID)
}

// Put serializes the payload and writes it under the round's key.
//
// # Outputs
//
//   - error: Non-nil when the store is unavailable or the write fails.
//     Surfaced to the caller, never swallowed: an unwritten round must
//     abort the navigation that would otherwise point at it.
func (s *BadgerStore) Put(ctx context.Context, roundID string, payload datatypes.RoundPayload) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if roundID == "" {
		return errors.New("round id is required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal round %s: %w", roundID, err)
	}

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		entry := badgerdb.NewEntry(roundKey(roundID), raw)
		if s.ttl > 0 {
			entry = entry.WithTTL(s.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("write round %s: %w", roundID, err)
	}

	slog.Debug("stored disambiguation round",
		"round_id", roundID, "option_count", len(payload.Options))
	return nil
}

// Get reads and decodes the round's payload.
//
// A missing key, an expired entry, a value that is not valid JSON, and a
// value that decodes but fails structural validation all return
// ErrNotFound. Callers do not get to distinguish them.
func (s *BadgerStore) Get(ctx context.Context, roundID string) (datatypes.RoundPayload, error) {
	var payload datatypes.RoundPayload

	if err := ctx.Err(); err != nil {
		return payload, fmt.Errorf("context cancelled: %w", err)
	}

	var raw []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(roundKey(roundID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return payload, ErrNotFound
	}
	if err != nil {
		return payload, fmt.Errorf("read round %s: %w", roundID, err)
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		slog.Warn("corrupt round payload in session store", "round_id", roundID, "error", err)
		return datatypes.RoundPayload{}, ErrNotFound
	}
	if err := payload.Validate(); err != nil {
		slog.Warn("structurally invalid round payload", "round_id", roundID, "error", err)
		return datatypes.RoundPayload{}, ErrNotFound
	}
	return payload, nil
}

// ListIDs returns the ids of all live (unexpired) rounds. An inspection
// surface for roundctl; the protocol layer never enumerates rounds.
func (s *BadgerStore) ListIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	var ids []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, key[len(keyPrefix):])
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	return ids, nil
}

// Delete removes a round ahead of its TTL. Deleting a round that does
// not exist is not an error.
func (s *BadgerStore) Delete(ctx context.Context, roundID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if roundID == "" {
		return errors.New("round id is required")
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Delete(roundKey(roundID))
	})
	if err != nil {
		return fmt.Errorf("delete round %s: %w", roundID, err)
	}
	return nil
}
