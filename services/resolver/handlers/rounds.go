// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/datatypes"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/navigate"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/protocol"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/store"
)

// createRoundRequest is the ingest payload: the upstream pipeline or
// the search surface hands over a candidate list for presentation.
type createRoundRequest struct {
	RoundID string                `json:"round_id"`
	Query   string                `json:"query" binding:"required"`
	Options []datatypes.Candidate `json:"options" binding:"required"`
}

// CreateRound writes a new disambiguation round and answers with the
// view URL the caller should navigate to. The write completes before
// the URL is ever handed out, which is what keeps the subsequent view
// load from racing an unwritten round.
func CreateRound(rounds store.RoundStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRoundRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		payload := datatypes.NewRoundPayload(req.Options, req.Query, time.Now())
		if err := payload.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		roundID := req.RoundID
		if roundID == "" {
			roundID = uuid.NewString()
		}

		if err := rounds.Put(c.Request.Context(), roundID, payload); err != nil {
			slog.Error("failed to store ingested round", "round_id", roundID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store round"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"round_id": roundID,
			"url":      navigate.RoundURL(roundID, req.Query),
		})
	}
}

// GetRound mounts the disambiguation view: it drives the round's
// machine through Loading and returns either the candidate list or the
// error navigation.
//
// Query parameters mirror the view URL contract: the round id arrives
// as the path parameter and the original query as "q".
func GetRound(reg *protocol.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		roundID := c.Param("roundId")
		query := c.Query("q")

		m := reg.Machine(roundID, query)
		snap := m.Load(c.Request.Context())

		if snap.State == protocol.StateNavigatingToError {
			c.JSON(http.StatusNotFound, gin.H{
				"state":      snap.State,
				"navigation": snap.Navigation,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"round_id": snap.RoundID,
			"query":    snap.Query,
			"state":    snap.State,
			"options":  snap.Options,
		})
	}
}

// chooseRequest names the selected candidate.
type chooseRequest struct {
	EntityID string `json:"entity_id" binding:"required"`
}

// ChooseCandidate drives the core transition: lock the round, resolve
// the selection, answer with the navigation decision.
//
// A selection that loses the in-flight race is a no-op: the response
// carries accepted=false and whatever the round's current condition is,
// including the settled navigation once the winner finishes.
func ChooseCandidate(reg *protocol.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		roundID := c.Param("roundId")

		var req chooseRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		m := reg.Machine(roundID, c.Query("q"))

		// A direct POST without a prior view mount still works: the
		// machine loads first, then chooses. A load that fails here
		// means the round never presented, so the error navigation is
		// the whole answer.
		if m.State() == protocol.StateLoading {
			snap := m.Load(c.Request.Context())
			if snap.State == protocol.StateNavigatingToError {
				c.JSON(http.StatusNotFound, gin.H{
					"state":      snap.State,
					"navigation": snap.Navigation,
				})
				return
			}
		}

		res, err := m.Choose(c.Request.Context(), req.EntityID)
		switch {
		case errors.Is(err, protocol.ErrUnknownCandidate):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown entity_id for round"})
			return
		case errors.Is(err, protocol.ErrNotPresenting):
			c.JSON(http.StatusNotFound, gin.H{"error": "round has no presentable data"})
			return
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"accepted":   res.Accepted,
			"state":      res.Snapshot.State,
			"navigation": res.Snapshot.Navigation,
		})
	}
}

// WidenSearch is the "not sure" exit back to the search surface.
func WidenSearch(reg *protocol.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		roundID := c.Param("roundId")
		m := reg.Machine(roundID, c.Query("q"))

		if m.State() == protocol.StateLoading {
			m.Load(c.Request.Context())
		}

		nav, err := m.Widen()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "round is not presenting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"navigation": nav})
	}
}

// shareRequest optionally names the candidate being shared.
type shareRequest struct {
	EntityID string `json:"entity_id"`
}

// ShareLink returns the canonical round URL for copy-to-clipboard and
// records the copy-link event.
func ShareLink(reg *protocol.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		roundID := c.Param("roundId")

		var req shareRequest
		// Body is optional; ignore bind errors from an empty body.
		_ = c.ShouldBindJSON(&req)

		m := reg.Machine(roundID, c.Query("q"))
		if m.State() == protocol.StateLoading {
			if snap := m.Load(c.Request.Context()); snap.State == protocol.StateNavigatingToError {
				c.JSON(http.StatusNotFound, gin.H{
					"state":      snap.State,
					"navigation": snap.Navigation,
				})
				return
			}
		}

		url, err := m.ShareLink(req.EntityID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "round has no presentable data"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}
