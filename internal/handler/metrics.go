package handler

import (
	"net/http"
)

// MetricsHandler exposes the metrics registry.
type MetricsHandler struct {
	exporter http.Handler
}

// NewMetricsHandler wraps an exposition handler such as
// (*metrics.PrometheusRecorder).Handler(). exporter may be nil.
func NewMetricsHandler(exporter http.Handler) *MetricsHandler {
	return &MetricsHandler{exporter: exporter}
}

// Metrics serves GET /metrics.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "metrics disabled"})
		return
	}
	h.exporter.ServeHTTP(w, r)
}
