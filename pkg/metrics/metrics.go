// Package metrics holds the Prometheus collectors for the QA service and
// exposes them on /metrics. A nil *Metrics is valid and records nothing, so
// engine packages can take one as an optional dependency.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "congressqa"

// Metrics bundles every collector the service records into.
type Metrics struct {
	reg *prometheus.Registry

	answers       *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	providerCalls *prometheus.CounterVec
	evidence      prometheus.Histogram
	requests      *prometheus.HistogramVec
	breaker       *prometheus.GaugeVec
	reindexed     *prometheus.CounterVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers returned, by answering method.",
		}, []string{"method"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_transitions_total",
			Help:      "Fallback tier transitions.",
		}, []string{"from", "to", "reason"}),
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "External provider calls by outcome.",
		}, []string{"provider", "op", "outcome"}),
		evidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieval_evidence_items",
			Help:      "Evidence items returned per retrieval.",
			Buckets:   []float64{0, 1, 2, 5, 10, 15, 20},
		}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "code"}),
		breaker: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per provider (0 closed, 1 open, 2 half-open).",
		}, []string{"name"}),
		reindexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reindex_items_total",
			Help:      "Entities processed by bulk re-embed, by outcome.",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(
		m.answers, m.transitions, m.providerCalls, m.evidence,
		m.requests, m.breaker, m.reindexed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Answer counts an answer returned with the given method.
func (m *Metrics) Answer(method string) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(method).Inc()
}

// Transition counts a fallback tier transition.
func (m *Metrics) Transition(from, to, reason string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to, reason).Inc()
}

// ProviderCall counts an embedding or generation call.
func (m *Metrics) ProviderCall(provider, op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerCalls.WithLabelValues(provider, op, outcome).Inc()
}

// Evidence observes the size of a merged evidence list.
func (m *Metrics) Evidence(n int) {
	if m == nil {
		return
	}
	m.evidence.Observe(float64(n))
}

// Request observes one HTTP request.
func (m *Metrics) Request(route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Observe(d.Seconds())
}

// BreakerState records a circuit breaker's current state.
func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.breaker.WithLabelValues(name).Set(float64(state))
}

// Reindexed counts bulk re-embed outcomes.
func (m *Metrics) Reindexed(success, failed int) {
	if m == nil {
		return
	}
	m.reindexed.WithLabelValues("success").Add(float64(success))
	m.reindexed.WithLabelValues("failed").Add(float64(failed))
}
