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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	storePath string
	inputFile string
	query     string

	rootCmd = &cobra.Command{
		Use:   "roundctl",
		Short: "Inspect and seed the OwnerTrace resolver session store",
		Long: `roundctl operates directly on the resolver's BadgerDB directory.
Run it against a stopped resolver or a copied store.`,
	}

	roundsCmd = &cobra.Command{
		Use:   "rounds",
		Short: "Manage stored disambiguation rounds",
	}

	listRoundsCmd = &cobra.Command{
		Use:   "list",
		Short: "List the ids of all live rounds",
		RunE:  runListRounds, // Defined in cmd_rounds.go
	}

	getRoundCmd = &cobra.Command{
		Use:   "get [roundId]",
		Short: "Print a round's stored payload as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runGetRound, // Defined in cmd_rounds.go
	}

	putRoundCmd = &cobra.Command{
		Use:   "put [roundId]",
		Short: "Seed a round from a JSON candidate list (file or stdin)",
		Args:  cobra.ExactArgs(1),
		RunE:  runPutRound, // Defined in cmd_rounds.go
	}

	deleteRoundCmd = &cobra.Command{
		Use:   "delete [roundId]",
		Short: "Remove a round ahead of its TTL",
		Args:  cobra.ExactArgs(1),
		RunE:  runDeleteRound, // Defined in cmd_rounds.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "./data/rounds",
		"Path to the resolver's BadgerDB directory")

	rootCmd.AddCommand(roundsCmd)
	roundsCmd.AddCommand(listRoundsCmd)
	roundsCmd.AddCommand(getRoundCmd)
	roundsCmd.AddCommand(putRoundCmd)
	roundsCmd.AddCommand(deleteRoundCmd)

	putRoundCmd.Flags().StringVarP(&inputFile, "file", "f", "",
		"JSON file holding the candidate list (default: stdin)")
	putRoundCmd.Flags().StringVarP(&query, "query", "q", "",
		"The product query this round disambiguates")
}
