// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package navigate turns protocol decisions into the SPA's URL contract.
//
// The resolver never redirects the browser itself; it hands the picker a
// Navigation record and the picker performs the page transition. For the
// next-round case the round payload is durably written before the
// Navigation is ever constructed - see the protocol package.
package navigate

import (
	"net/url"
)

// Kind tags the four navigation targets.
type Kind string

const (
	// KindResult navigates to the result view for a confirmed brand.
	KindResult Kind = "result"

	// KindNextRound restarts disambiguation for a freshly written round.
	KindNextRound Kind = "next_round"

	// KindError navigates to the error view with a machine-readable code.
	KindError Kind = "error"

	// KindWiden returns to the search surface with the original query
	// and the widen flag set.
	KindWiden Kind = "widen"
)

// errorSentinelBrand is the result-view path segment that marks the
// error view.
const errorSentinelBrand = "unknown"

// Navigation is one page-transition decision.
type Navigation struct {
	Kind Kind `json:"kind"`

	// Brand and EntityID are set for KindResult.
	Brand    string `json:"brand,omitempty"`
	EntityID string `json:"entity_id,omitempty"`

	// RoundID is set for KindNextRound.
	RoundID string `json:"round_id,omitempty"`

	// Query is set for KindNextRound and KindWiden.
	Query string `json:"query,omitempty"`

	// Code is set for KindError.
	Code string `json:"code,omitempty"`

	// URL is the resolved destination, filled by the constructors.
	URL string `json:"url"`
}

// ToResult builds the navigation to the result view.
func ToResult(brand, entityID string) Navigation {
	n := Navigation{Kind: KindResult, Brand: brand, EntityID: entityID}
	n.URL = n.buildURL()
	return n
}

// ToNextRound builds the navigation into a fresh disambiguation round.
// Callers must have written the round to the session store first.
func ToNextRound(roundID, query string) Navigation {
	n := Navigation{Kind: KindNextRound, RoundID: roundID, Query: query}
	n.URL = n.buildURL()
	return n
}

// ToError builds the navigation to the error view.
func ToError(code string) Navigation {
	n := Navigation{Kind: KindError, Code: code}
	n.URL = n.buildURL()
	return n
}

// ToWiden builds the navigation back to the search surface.
func ToWiden(query string) Navigation {
	n := Navigation{Kind: KindWiden, Query: query}
	n.URL = n.buildURL()
	return n
}

// RoundURL is the canonical disambiguation-view URL for a round, used
// both for next-round navigation and for share links.
func RoundURL(roundID, query string) string {
	q := url.Values{}
	q.Set("trace", roundID)
	q.Set("q", query)
	return "/disambiguate?" + q.Encode()
}

func (n Navigation) buildURL() string {
	switch n.Kind {
	case KindResult:
		q := url.Values{}
		q.Set("success", "true")
		if n.EntityID != "" {
			q.Set("entityId", n.EntityID)
		}
		return "/result/" + url.PathEscape(n.Brand) + "?" + q.Encode()

	case KindNextRound:
		return RoundURL(n.RoundID, n.Query)

	case KindError:
		q := url.Values{}
		q.Set("success", "false")
		q.Set("error", n.Code)
		return "/result/" + errorSentinelBrand + "?" + q.Encode()

	case KindWiden:
		q := url.Values{}
		q.Set("q", n.Query)
		q.Set("wider", "1")
		return "/search?" + q.Encode()
	}
	return "/"
}
