// Package metrics exposes Prometheus counters for the automation loop.
//
// All recording methods are safe to call on a nil *Metrics so that
// components can be built without metrics in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reciprocity_bot"

// Retry reasons reported by the request client.
const (
	RetryRateLimit      = "rate_limit"
	RetrySecondaryLimit = "secondary_limit"
	RetryTransient      = "transient"
)

// Follow-check outcomes.
const (
	FollowCheckYes   = "yes"
	FollowCheckNo    = "no"
	FollowCheckError = "error"
)

// Metrics holds every collector the bot records into.
type Metrics struct {
	registry *prometheus.Registry

	stars          *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	followChecks   *prometheus.CounterVec
	retries        *prometheus.CounterVec
	candidates     prometheus.Counter
	cycles         prometheus.Counter
	pending        prometheus.Gauge
	lastCycleEnded prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry, including
// the standard Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stars: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stars_total",
			Help:      "Star attempts by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Tracked engagements leaving the pending state, by kind.",
		}, []string{"kind"}),
		followChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "follow_checks_total",
			Help:      "Follow-relationship checks by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_retries_total",
			Help:      "API requests retried by the client, by reason.",
		}, []string{"reason"}),
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_discovered_total",
			Help:      "Repositories returned by discovery.",
		}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed automation cycles.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_engagements",
			Help:      "Tracked engagements awaiting reciprocity.",
		}),
		lastCycleEnded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cycle_timestamp_seconds",
			Help:      "Unix time at which the last cycle finished.",
		}),
	}

	m.registry.MustRegister(
		m.stars, m.transitions, m.followChecks, m.retries,
		m.candidates, m.cycles, m.pending, m.lastCycleEnded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Star records one star attempt.
func (m *Metrics) Star(ok bool) {
	if m == nil {
		return
	}
	result := "starred"
	if !ok {
		result = "failed"
	}
	m.stars.WithLabelValues(result).Inc()
}

// Transition records a record leaving the pending state.
func (m *Metrics) Transition(kind string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(kind).Inc()
}

// FollowCheck records the outcome of one follow-relationship query.
func (m *Metrics) FollowCheck(outcome string) {
	if m == nil {
		return
	}
	m.followChecks.WithLabelValues(outcome).Inc()
}

// Retry records a request retried for the given reason.
func (m *Metrics) Retry(reason string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(reason).Inc()
}

// Discovered adds n to the discovered-candidates counter.
func (m *Metrics) Discovered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.candidates.Add(float64(n))
}

// SetPending sets the pending-engagements gauge.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

// CycleCompleted marks the end of a cycle.
func (m *Metrics) CycleCompleted(at time.Time) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.lastCycleEnded.Set(float64(at.Unix()))
}
