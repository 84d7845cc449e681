// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the data model shared by the resolver service:
// disambiguation rounds, candidate entities, and classified resolution
// outcomes.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. validator.Validate is
// thread-safe and caches struct metadata, so a single instance serves
// the whole package.
var validate = validator.New()

// CandidateSource identifies where a candidate entity was discovered.
type CandidateSource string

const (
	SourceRegistry CandidateSource = "registry"
	SourceWeb      CandidateSource = "web"
	SourceAI       CandidateSource = "ai"
)

// Candidate is one disambiguation option: a possible entity match for a
// product-ownership query.
//
// # Description
//
// The protocol layer interprets only ID, Name and NormalizedName. Every
// other field is display or provenance metadata carried through untouched
// for the picker UI.
//
// # Fields
//
//   - ID: Unique within its round. Echoed back by the picker on selection.
//   - Name: Display name of the entity.
//   - NormalizedName: Canonical form used for the resolution query.
//     Falls back to Name when empty.
//   - Confidence: Optional match confidence (0-100).
//   - Source: Provenance tag (registry, web, ai). Opaque to the protocol.
type Candidate struct {
	ID             string          `json:"id" validate:"required"`
	Name           string          `json:"name" validate:"required"`
	NormalizedName string          `json:"normalized_name,omitempty"`
	Country        string          `json:"country,omitempty"`
	CountryFlag    string          `json:"country_flag,omitempty"`
	Confidence     *float64        `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=100"`
	Source         CandidateSource `json:"source,omitempty" validate:"omitempty,oneof=registry web ai"`

	// Descriptive pass-through payload, not interpreted by the protocol.
	Description          string `json:"description,omitempty"`
	ProductName          string `json:"product_name,omitempty"`
	FinancialBeneficiary string `json:"financial_beneficiary,omitempty"`
}

// ResolutionQuery returns the string sent to the research pipeline when
// this candidate is chosen: the normalized name when present, otherwise
// the display name.
func (c Candidate) ResolutionQuery() string {
	if c.NormalizedName != "" {
		return c.NormalizedName
	}
	return c.Name
}

// RoundPayload is the serialized form of a disambiguation round as it
// lives in the session store under "disambig:{roundId}".
//
// # Description
//
// Written exactly once when a round is created and read exactly once by
// the machine instance that presents it. TS is diagnostic only; round
// expiry is handled by the store's entry TTL, never by comparing TS.
type RoundPayload struct {
	Options    []Candidate `json:"options" validate:"dive"`
	BrandQuery string      `json:"brand_query,omitempty"`
	TS         int64       `json:"ts"`
}

// Validate reports whether the payload is structurally sound. A payload
// that fails validation is treated by callers exactly like a missing
// store entry.
func (p *RoundPayload) Validate() error {
	return validate.Struct(p)
}

// DisambiguationRound is the in-memory view of one round: a candidate
// list being driven to an outcome for a given query.
type DisambiguationRound struct {
	RoundID   string      `json:"round_id"`
	Query     string      `json:"query"`
	Options   []Candidate `json:"options"`
	CreatedAt time.Time   `json:"created_at"`
}

// NewRoundPayload builds a store payload for a fresh round.
func NewRoundPayload(options []Candidate, query string, now time.Time) RoundPayload {
	return RoundPayload{
		Options:    options,
		BrandQuery: query,
		TS:         now.UnixMilli(),
	}
}
