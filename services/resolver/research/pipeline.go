// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package research

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/datatypes"
)

var tracer = otel.Tracer("ownertrace.resolver.research")

// actionDisambiguate is the pipeline's marker for a needs-disambiguation
// response.
const actionDisambiguate = "disambiguate"

// maxResponseBytes caps how much of a pipeline response is read.
const maxResponseBytes = 4 << 20

// PipelineClient resolves queries against the brand-research pipeline
// over HTTP.
type PipelineClient struct {
	httpClient *http.Client
	baseURL    string
}

// lookupRequest is the pipeline wire request.
type lookupRequest struct {
	Brand string `json:"brand"`
}

// lookupResponse is the superset of the pipeline's three response shapes,
// distinguished by Success plus either a resolved brand, a disambiguation
// action with options, or an error code.
type lookupResponse struct {
	Success    bool                  `json:"success"`
	Brand      string                `json:"brand,omitempty"`
	EntityID   string                `json:"entity_id,omitempty"`
	Action     string                `json:"action,omitempty"`
	TraceID    string                `json:"trace_id,omitempty"`
	BrandQuery string                `json:"brand_query,omitempty"`
	Options    []datatypes.Candidate `json:"options,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// NewPipelineClient builds a client from the environment.
//
// # Environment Variables
//
//   - RESEARCH_PIPELINE_URL: Base URL of the pipeline (required).
//   - RESOLVE_TIMEOUT_SECONDS: Per-call timeout (default: 30).
func NewPipelineClient() (*PipelineClient, error) {
	baseURL := os.Getenv("RESEARCH_PIPELINE_URL")
	if baseURL == "" {
		return nil, fmt.Errorf("RESEARCH_PIPELINE_URL environment variable not set")
	}

	timeout := 30 * time.Second
	if raw := os.Getenv("RESOLVE_TIMEOUT_SECONDS"); raw != "" {
		secs, err := strconv.Atoi(raw)
		if err != nil || secs <= 0 {
			slog.Warn("invalid RESOLVE_TIMEOUT_SECONDS, using default", "value", raw)
		} else {
			timeout = time.Duration(secs) * time.Second
		}
	}
	return NewPipelineClientWithConfig(baseURL, timeout), nil
}

// NewPipelineClientWithConfig builds a client with explicit settings.
// The timeout bounds the whole resolution call; exceeding it classifies
// as network_error like any other transport failure.
func NewPipelineClientWithConfig(baseURL string, timeout time.Duration) *PipelineClient {
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing research pipeline client", "base_url", baseURL, "timeout", timeout)
	return &PipelineClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// Resolve implements the Client interface.
//
// # Description
//
// Performs one POST to the pipeline's lookup endpoint and classifies the
// response three ways:
//
//   - success with a brand: OutcomeResolved
//   - not success, action "disambiguate" with a non-empty options list:
//     OutcomeStillAmbiguous (a fresh round id is generated when the
//     pipeline does not supply one)
//   - anything else: OutcomeFailed, with the pipeline's error code when
//     present, lookup_failed otherwise
//
// Transport failures, timeouts, and unreadable bodies classify as
// OutcomeFailed with network_error.
func (p *PipelineClient) Resolve(ctx context.Context, query string) datatypes.ResolutionOutcome {
	ctx, span := tracer.Start(ctx, "PipelineClient.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("research.query", query))

	outcome := p.doResolve(ctx, query)

	span.SetAttributes(attribute.String("research.outcome", string(outcome.Kind)))
	if outcome.Kind == datatypes.OutcomeFailed {
		span.SetStatus(codes.Error, outcome.Code)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return outcome
}

func (p *PipelineClient) doResolve(ctx context.Context, query string) datatypes.ResolutionOutcome {
	body, err := json.Marshal(lookupRequest{Brand: query})
	if err != nil {
		// Marshalling a two-field struct cannot realistically fail, but
		// classification must stay total.
		slog.Error("failed to encode lookup request", "error", err)
		return datatypes.FailedOutcome(datatypes.CodeNetworkError)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/v1/lookup", bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build lookup request", "error", err)
		return datatypes.FailedOutcome(datatypes.CodeNetworkError)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Warn("research pipeline unreachable", "error", err)
		return datatypes.FailedOutcome(datatypes.CodeNetworkError)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		slog.Warn("failed to read pipeline response", "error", err)
		return datatypes.FailedOutcome(datatypes.CodeNetworkError)
	}

	var parsed lookupResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("malformed pipeline response",
			"status", resp.StatusCode, "error", err)
		return datatypes.FailedOutcome(datatypes.CodeNetworkError)
	}

	return classify(parsed, query)
}

// classify applies the three-way classification rule. Kept free of
// transport concerns so the rule is testable on its own.
func classify(resp lookupResponse, originalQuery string) datatypes.ResolutionOutcome {
	if resp.Success && resp.Brand != "" {
		return datatypes.ResolvedOutcome(resp.Brand, resp.EntityID)
	}

	if !resp.Success && resp.Action == actionDisambiguate && len(resp.Options) > 0 {
		roundID := resp.TraceID
		if roundID == "" {
			roundID = uuid.NewString()
		}
		nextQuery := resp.BrandQuery
		if nextQuery == "" {
			nextQuery = originalQuery
		}
		return datatypes.AmbiguousOutcome(roundID, nextQuery, resp.Options)
	}

	// Everything else is terminal: a reported code passes through
	// verbatim, any other shape collapses to lookup_failed.
	return datatypes.FailedOutcome(resp.Error)
}
