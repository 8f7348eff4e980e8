package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arklim/identity-token-service/internal/infra/config"
)

// Metrics holds the service's Prometheus instruments on a private registry
// so repeated construction in tests never collides.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	tokenGrants     *prometheus.CounterVec
	refreshConsumed prometheus.Counter
}

// NewMetrics builds the instrument set under the configured namespace.
func NewMetrics(cfg config.TelemetrySettings) (*Metrics, error) {
	if cfg.Namespace == "" {
		return nil, fmt.Errorf("telemetry namespace is required")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		tokenGrants: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "token_grants_total",
			Help:      "Token requests by grant type and result",
		}, []string{"grant_type", "result"}),
		refreshConsumed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "refresh_tokens_consumed_total",
			Help:      "Refresh tokens redeemed and rotated",
		}),
	}, nil
}

// Registry exposes the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, route, status string, seconds float64) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(seconds)
}

// ObserveGrant records the result of one token request.
func (m *Metrics) ObserveGrant(grantType, result string) {
	m.tokenGrants.WithLabelValues(grantType, result).Inc()
}

// ObserveRefreshConsumed records one successful refresh rotation.
func (m *Metrics) ObserveRefreshConsumed() {
	m.refreshConsumed.Inc()
}
