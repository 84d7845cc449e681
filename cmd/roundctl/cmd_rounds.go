// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/datatypes"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/storage/badger"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/store"
)

// openStore opens the session store read-write with TTL disabled:
// roundctl must be able to inspect rounds without refreshing their
// expiry on accident.
func openStore() (*store.BadgerStore, func(), error) {
	cfg := badger.DefaultConfig()
	cfg.Path = storePath
	cfg.GCInterval = 0

	db, err := badger.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store at %s: %w", storePath, err)
	}
	return store.NewBadgerStore(db, 0), func() { _ = db.Close() }, nil
}

func runListRounds(cmd *cobra.Command, _ []string) error {
	s, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	ids, err := s.ListIDs(context.Background())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no rounds stored")
		return nil
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runGetRound(cmd *cobra.Command, args []string) error {
	s, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	payload, err := s.Get(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("round %s: %w", args[0], err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

func runPutRound(cmd *cobra.Command, args []string) error {
	var raw []byte
	var err error
	if inputFile != "" {
		raw, err = os.ReadFile(inputFile)
	} else {
		raw, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read candidate list: %w", err)
	}

	var options []datatypes.Candidate
	if err := json.Unmarshal(raw, &options); err != nil {
		return fmt.Errorf("parse candidate list: %w", err)
	}

	payload := datatypes.NewRoundPayload(options, query, time.Now())
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid round payload: %w", err)
	}

	s, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := s.Put(context.Background(), args[0], payload); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "stored round %s with %d options\n",
		args[0], len(options))
	return nil
}

func runDeleteRound(cmd *cobra.Command, args []string) error {
	s, closeStore, err := openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if err := s.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted round %s\n", args[0])
	return nil
}
