// Package metrics defines the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nourhub"

// Metrics groups the collectors so tests can use a private registry.
type Metrics struct {
	Logins         *prometheus.CounterVec
	TenantSwitches *prometheus.CounterVec
	StaleResponses prometheus.Counter
	ModeChanges    *prometheus.CounterVec
	ActiveStores   prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		TenantSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenant_switches_total",
			Help:      "Tenant switch requests by outcome.",
		}, []string{"outcome"}),
		StaleResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tenancy_stale_responses_total",
			Help:      "Tenant loads discarded because a newer request superseded them.",
		}),
		ModeChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_mode_changes_total",
			Help:      "Access mode transitions by target mode.",
		}, []string{"mode"}),
		ActiveStores: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tenancy_active_stores",
			Help:      "Device stores currently held in memory.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Logins,
			m.TenantSwitches,
			m.StaleResponses,
			m.ModeChanges,
			m.ActiveStores,
			m.HTTPRequests,
			m.HTTPDuration,
		)
	}
	return m
}

// NewNop returns unregistered collectors.
func NewNop() *Metrics {
	return New(nil)
}
