// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/handlers"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/middleware"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/protocol"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/store"
)

// SetupRoutes mounts the resolver's HTTP surface.
//
// The ingest endpoint (round creation) is the only guarded route:
// ingestAPIKey empty leaves it open for local deployments. The
// interactive round endpoints are driven by the picker UI and carry no
// credentials.
func SetupRoutes(router *gin.Engine, rounds store.RoundStore, reg *protocol.Registry,
	ingestAPIKey string) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.POST("/rounds", middleware.RequireAPIKey(ingestAPIKey), handlers.CreateRound(rounds))

		roundsGroup := v1.Group("/rounds/:roundId")
		{
			roundsGroup.GET("", handlers.GetRound(reg))
			roundsGroup.POST("/choose", handlers.ChooseCandidate(reg))
			roundsGroup.POST("/widen", handlers.WidenSearch(reg))
			roundsGroup.POST("/share", handlers.ShareLink(reg))
		}
	}
}
