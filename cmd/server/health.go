package main

import (
	"context"
	"net/http"
	"time"

	"github.com/lychee-technology/formflow/internal"
	"go.uber.org/zap"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// healthChecks pings the store and every optional backend that can be pinged.
func (s *Server) healthChecks() map[string]internal.HealthCheck {
	checks := map[string]internal.HealthCheck{"storage": s.store.Ping}
	if p, ok := s.analytics.(pinger); ok {
		checks["analytics"] = p.Ping
	}
	if p, ok := s.archiver.(pinger); ok {
		checks["archive"] = p.Ping
	}
	return checks
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report := internal.CheckHealth(r.Context(), s.healthChecks(), 5*time.Second)
	status := http.StatusOK
	if !report.Healthy() {
		zap.S().Warnw("health check failed", "checks", report.Checks)
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
