package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptoctl/tradeengine/internal/bootstrap"
	"github.com/cryptoctl/tradeengine/internal/breaker"
	"github.com/cryptoctl/tradeengine/internal/db"
	"github.com/cryptoctl/tradeengine/internal/db/testhelpers"
)

func TestHTTPServer_HandleHealth(t *testing.T) {
	h := &HTTPServer{port: 0}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "orchestrator", body["service"])
}

func TestHTTPServer_HandleLiveness(t *testing.T) {
	h := &HTTPServer{port: 0}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/liveness", nil)
	h.handleLiveness(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body["status"])
}

func TestHTTPServer_HandleReadiness(t *testing.T) {
	tc := testhelpers.SetupTestDatabase(t)
	require.NoError(t, tc.ApplyMigrationsLegacy())

	ctx := context.Background()
	breakerStore := db.NewBreakerStore(tc.DB.Pool())
	mgr := breaker.NewManager(breaker.Thresholds{}, breakerStore, zerolog.Nop())
	require.NoError(t, mgr.Restore(ctx))

	h := &HTTPServer{engine: &engine{stack: &bootstrap.Stack{DB: tc.DB, BreakerMgr: mgr}}}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readiness", nil)
	h.handleReadiness(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}
