package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// HTTPServer exposes Kubernetes-style health/readiness/liveness probes
// and the Prometheus scrape endpoint for the orchestrator process,
// separate from the API gateway's own /health (spec.md §6).
type HTTPServer struct {
	server *http.Server
	engine *engine
	port   int
}

// NewHTTPServer builds a health/metrics server bound to the given
// engine, whose db/breaker/adapter state back the readiness checks.
func NewHTTPServer(port int, eng *engine) *HTTPServer {
	return &HTTPServer{engine: eng, port: port}
}

// Start starts the HTTP server in a goroutine.
func (h *HTTPServer) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/readiness", h.handleReadiness)
	mux.HandleFunc("/liveness", h.handleLiveness)
	mux.Handle("/metrics", promhttp.Handler())

	h.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", h.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", h.port).Msg("orchestrator health/metrics server started")
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("orchestrator HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (h *HTTPServer) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	log.Info().Msg("shutting down orchestrator health/metrics server")
	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "orchestrator",
	})
}

func (h *HTTPServer) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "alive"})
}

// handleReadiness reports whether the database is reachable and the
// circuit breakers have been restored, the two preconditions the Risk
// Gateway requires before accepting its first order (spec.md §4.1/§4.4).
func (h *HTTPServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := h.engine.stack.BreakerMgr.GetStatus()
	dbErr := h.engine.stack.DB.Ping(ctx)

	ready := dbErr == nil
	body := map[string]interface{}{
		"status": "ready",
		"checks": map[string]interface{}{
			"database":        dbErr == nil,
			"system_breaker":  status.System.Status,
			"account_breaker": status.Account.Status,
		},
	}
	if !ready {
		body["status"] = "not ready"
		if dbErr != nil {
			body["database_error"] = dbErr.Error()
		}
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
