// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the resolver service.
//
// # Authentication Flow
//
// The ingest surface (round creation) can be guarded with a shared API
// key. The middleware extracts a bearer token from the Authorization
// header and compares it against the configured key in constant time.
// The interactive round endpoints are never guarded; the picker UI
// holds no credentials.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// RequireAPIKey creates a Gin middleware that rejects requests whose
// bearer token does not match apiKey.
//
// # Description
//
// An empty apiKey disables the guard entirely: the middleware becomes a
// pass-through. This keeps local single-user deployments free of any
// authentication infrastructure while letting shared deployments set
// RESOLVER_INGEST_API_KEY.
//
// # Inputs
//
//   - apiKey: The shared secret. Empty disables the check.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware ready for use with Gin.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RequireAPIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		token := extractBearerToken(c)
		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Next()
	}
}

// extractBearerToken extracts the token from the Authorization header.
// Expected format is "Bearer <token>"; the scheme is case-insensitive
// per RFC 7235. Returns empty string if the header is missing or
// malformed.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
