package handler

import (
	"context"
	"net/http"
	"time"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler manages health check endpoints.
type HealthHandler struct {
	checks []namedCheck
}

type namedCheck struct {
	name    string
	checker HealthChecker
}

// NewHealthHandler creates a new HealthHandler.
// A nil store or redis checker is reported as "not configured".
func NewHealthHandler(store, redis HealthChecker) *HealthHandler {
	return &HealthHandler{checks: []namedCheck{
		{name: "store", checker: store},
		{name: "redis", checker: redis},
	}}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Healthz is the liveness check. It never touches dependencies.
//
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Readyz pings every configured dependency and returns 503 if any fails.
//
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	healthy := true

	for _, c := range h.checks {
		if c.checker == nil {
			checks[c.name] = "not configured"
			continue
		}
		if err := c.checker.Ping(ctx); err != nil {
			checks[c.name] = "error: " + err.Error()
			healthy = false
			continue
		}
		checks[c.name] = "ok"
	}

	resp := HealthResponse{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
