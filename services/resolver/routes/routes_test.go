// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// Tests for route registration

package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/datatypes"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/protocol"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memStore struct {
	rounds map[string]datatypes.RoundPayload
}

func newMemStore() *memStore {
	return &memStore{rounds: make(map[string]datatypes.RoundPayload)}
}

func (s *memStore) Put(_ context.Context, roundID string, payload datatypes.RoundPayload) error {
	s.rounds[roundID] = payload
	return nil
}

func (s *memStore) Get(_ context.Context, roundID string) (datatypes.RoundPayload, error) {
	p, ok := s.rounds[roundID]
	if !ok {
		return datatypes.RoundPayload{}, store.ErrNotFound
	}
	return p, nil
}

type stubClient struct{}

func (stubClient) Resolve(_ context.Context, _ string) datatypes.ResolutionOutcome {
	return datatypes.ResolvedOutcome("Nestle", "ent-1")
}

func newRouter(apiKey string) (*gin.Engine, *memStore) {
	s := newMemStore()
	reg := protocol.NewRegistry(protocol.Deps{Store: s, Client: stubClient{}})
	r := gin.New()
	SetupRoutes(r, s, reg, apiKey)
	return r, s
}

func TestSetupRoutes_HealthAndMetricsMounted(t *testing.T) {
	r, _ := newRouter("")

	for _, path := range []string{"/health", "/metrics"} {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", path, nil)
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSetupRoutes_RoundLifecycle(t *testing.T) {
	r, s := newRouter("")
	require.NoError(t, s.Put(context.Background(), "r1", datatypes.NewRoundPayload(
		[]datatypes.Candidate{{ID: "e1", Name: "Nestle S.A."}}, "Nescafe", time.Now())))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/rounds/r1?q=Nescafe", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	body, _ := json.Marshal(gin.H{"entity_id": "e1"})
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/v1/rounds/r1/choose", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "navigating_to_result")
}

func TestSetupRoutes_IngestGuardedWhenKeyConfigured(t *testing.T) {
	r, _ := newRouter("secret")

	body, _ := json.Marshal(gin.H{
		"query":   "Nescafe",
		"options": []gin.H{{"id": "e1", "name": "Nestle S.A."}},
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/rounds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("POST", "/v1/rounds", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer secret")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSetupRoutes_ViewEndpointsUnguarded(t *testing.T) {
	r, _ := newRouter("secret")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/rounds/ghost?q=x", nil)
	r.ServeHTTP(w, req)
	// 404 with error navigation, not 401: the guard covers ingest only.
	assert.Equal(t, http.StatusNotFound, w.Code)
}
