// Package metrics holds the prometheus collectors scout records into.
// Collectors are owned by an instance so tests can use a private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups scout's collectors.
type Metrics struct {
	// Requests counts backend exchanges by endpoint and outcome
	// (ok | transport | protocol | decode).
	Requests *prometheus.CounterVec
	// Retries counts extra attempts made by CallWithRetry.
	Retries *prometheus.CounterVec
	// RequestDuration observes one HTTP exchange.
	RequestDuration *prometheus.HistogramVec
	// Searches counts orchestrated searches by mode and outcome
	// (succeeded | failed | rejected | busy | stale).
	Searches *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what most tests want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_requests_total",
				Help: "Backend requests by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		),
		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_request_retries_total",
				Help: "Retry attempts by endpoint.",
			},
			[]string{"endpoint"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_request_duration_seconds",
				Help:    "Backend request latency in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		Searches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_searches_total",
				Help: "Orchestrated searches by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.Retries, m.RequestDuration, m.Searches)
	}
	return m
}
