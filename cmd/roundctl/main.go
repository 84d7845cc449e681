// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command roundctl inspects and seeds the resolver's session store.
//
// roundctl operates directly on the BadgerDB directory, so it is meant
// for a stopped resolver or a copied store. Typical uses are seeding a
// disambiguation round during development and inspecting what a user's
// round actually contained.
//
// # Usage
//
//	roundctl rounds list --store ./data/rounds
//	roundctl rounds get <roundId> --store ./data/rounds
//	roundctl rounds put <roundId> --file round.json --store ./data/rounds
//	roundctl rounds delete <roundId> --store ./data/rounds
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
