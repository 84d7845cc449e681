// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// OutcomeKind tags the three-way classification of a resolution call.
type OutcomeKind string

const (
	// OutcomeResolved means a single entity was confirmed.
	OutcomeResolved OutcomeKind = "resolved"

	// OutcomeStillAmbiguous means the chosen candidate is itself an
	// umbrella entity and a new round of disambiguation must begin.
	OutcomeStillAmbiguous OutcomeKind = "still_ambiguous"

	// OutcomeFailed is terminal; Code carries the machine-readable reason.
	OutcomeFailed OutcomeKind = "failed"
)

// Error codes the resolver itself generates. Codes reported by the
// research pipeline are passed through verbatim alongside these.
const (
	// CodeMissingSessionData covers a round that was never written,
	// has expired, or is corrupt in the session store.
	CodeMissingSessionData = "missing_session_data"

	// CodeNoOptions means the round loaded but its candidate list is empty.
	CodeNoOptions = "no_options_available"

	// CodeNetworkError covers transport failures and timeouts during
	// the resolution call.
	CodeNetworkError = "network_error"

	// CodeLookupFailed is the generic pipeline-reported failure with no
	// disambiguation path and no specific code.
	CodeLookupFailed = "lookup_failed"

	// CodeStorageError means the next round could not be durably written,
	// which aborts the next-round navigation.
	CodeStorageError = "storage_error"
)

// ResolutionOutcome is the classified result of one resolution call.
//
// # Description
//
// A tagged union: Kind selects which of the remaining fields are
// meaningful. Resolution clients must return exactly one outcome for
// every possible pipeline response, including malformed bodies and
// transport errors - classification is total.
//
// # Fields
//
//   - Brand: Set when Kind is OutcomeResolved.
//   - EntityID: Optional entity identifier accompanying a resolved brand.
//   - RoundID, Query, Options: Set when Kind is OutcomeStillAmbiguous;
//     they describe the next round.
//   - Code: Set when Kind is OutcomeFailed.
type ResolutionOutcome struct {
	Kind OutcomeKind `json:"kind"`

	Brand    string `json:"brand,omitempty"`
	EntityID string `json:"entity_id,omitempty"`

	RoundID string      `json:"round_id,omitempty"`
	Query   string      `json:"query,omitempty"`
	Options []Candidate `json:"options,omitempty"`

	Code string `json:"code,omitempty"`
}

// ResolvedOutcome builds the success outcome.
func ResolvedOutcome(brand, entityID string) ResolutionOutcome {
	return ResolutionOutcome{Kind: OutcomeResolved, Brand: brand, EntityID: entityID}
}

// AmbiguousOutcome builds the continuation outcome for a fresh round.
func AmbiguousOutcome(roundID, query string, options []Candidate) ResolutionOutcome {
	return ResolutionOutcome{
		Kind:    OutcomeStillAmbiguous,
		RoundID: roundID,
		Query:   query,
		Options: options,
	}
}

// FailedOutcome builds the terminal failure outcome.
func FailedOutcome(code string) ResolutionOutcome {
	if code == "" {
		code = CodeLookupFailed
	}
	return ResolutionOutcome{Kind: OutcomeFailed, Code: code}
}
