package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatmeter"

// PrometheusRecorder exports metrics through a dedicated registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	chats           *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	authCache       *prometheus.CounterVec
	authFailures    prometheus.Counter
	registrations   prometheus.Counter
	logins          *prometheus.CounterVec
	events          *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheus registers all collectors, plus Go runtime and process
// collectors, on a fresh registry.
func NewPrometheus() *PrometheusRecorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &PrometheusRecorder{
		registry: reg,
		chats: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_requests_total",
			Help:      "Chat requests by terminal outcome.",
		}, []string{"outcome"}),
		gatewayDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_duration_seconds",
			Help:      "Upstream generation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"status"}),
		authCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_cache_lookups_total",
			Help:      "Credential cache lookups by result.",
		}, []string{"result"}),
		authFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Presented credentials that matched nothing.",
		}),
		registrations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Accounts created.",
		}),
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metering_events_published_total",
			Help:      "Metering events by publish status.",
		}, []string{"status"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusRecorder) IncChatCommitted() { p.chats.WithLabelValues("committed").Inc() }
func (p *PrometheusRecorder) IncChatRejected() { p.chats.WithLabelValues("rejected").Inc() }
func (p *PrometheusRecorder) IncChatRolledBack() { p.chats.WithLabelValues("rolled_back").Inc() }
func (p *PrometheusRecorder) IncRollbackFailed() { p.chats.WithLabelValues("rollback_failed").Inc() }
func (p *PrometheusRecorder) IncPersistFailed() { p.chats.WithLabelValues("persist_failed").Inc() }

// ObserveGatewayDuration records one upstream call.
func (p *PrometheusRecorder) ObserveGatewayDuration(duration time.Duration, ok bool) {
	status := "ok"
	if !ok {
		status = "error"
	}
	p.gatewayDuration.WithLabelValues(status).Observe(duration.Seconds())
}

func (p *PrometheusRecorder) IncAuthCacheHit() { p.authCache.WithLabelValues("hit").Inc() }
func (p *PrometheusRecorder) IncAuthCacheMiss() { p.authCache.WithLabelValues("miss").Inc() }
func (p *PrometheusRecorder) IncAuthFailure() { p.authFailures.Inc() }
func (p *PrometheusRecorder) IncRegistration() { p.registrations.Inc() }

// IncLogin counts a login attempt by result.
func (p *PrometheusRecorder) IncLogin(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	p.logins.WithLabelValues(result).Inc()
}

// IncEventPublished counts a metering event by publish status.
func (p *PrometheusRecorder) IncEventPublished(status string) {
	p.events.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest records a served request. route is the chi route
// pattern, not the raw path, to keep label cardinality bounded.
func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
