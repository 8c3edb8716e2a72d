// Copyright 2025 Certen Protocol
//
// HTTP Health/Readiness and Metrics Surface
// Provides the gateway's ambient operational endpoints: liveness,
// readiness, and a Prometheus scrape target. Handler style follows the
// teacher's pkg/server handlers (plain net/http, manual JSON encoding,
// http.Error on failure) trimmed to the gateway's much smaller surface.

package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Checker reports whether a dependency the gateway relies on is
// currently reachable. Implementations should be cheap and
// non-blocking; Server calls every registered checker on each
// /readyz request.
type Checker func() error

// Server exposes /healthz and /readyz on one ServeMux and /metrics on a
// second, so each can be bound to its own listen address (HEALTH_ADDR,
// METRICS_ADDR) and never rate-limited or authenticated alongside
// application traffic.
type Server struct {
	mu         sync.RWMutex
	checkers   map[string]Checker
	healthMux  *http.ServeMux
	metricsMux *http.ServeMux
}

// New builds a Server. registry is typically the dispatcher's private
// prometheus registry, scraped at /metrics.
func New(registry *prometheus.Registry) *Server {
	s := &Server{
		checkers:   make(map[string]Checker),
		healthMux:  http.NewServeMux(),
		metricsMux: http.NewServeMux(),
	}
	s.healthMux.HandleFunc("/healthz", s.handleHealthz)
	s.healthMux.HandleFunc("/readyz", s.handleReadyz)
	s.metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return s
}

// Handler returns the health/readiness handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.healthMux
}

// MetricsHandler returns the /metrics handler for use with http.Server.
func (s *Server) MetricsHandler() http.Handler {
	return s.metricsMux
}

// RegisterChecker adds a named readiness check. All registered checkers
// must return nil for /readyz to report ready.
func (s *Server) RegisterChecker(name string, check Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = check
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	s.mu.RLock()
	checks := make(map[string]Checker, len(s.checkers))
	for name, c := range s.checkers {
		checks[name] = c
	}
	s.mu.RUnlock()

	failures := map[string]string{}
	for name, check := range checks {
		if err := check(); err != nil {
			failures[name] = err.Error()
		}
	}

	if len(failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "not ready", "failures": failures})
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}
