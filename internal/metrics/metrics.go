// Package metrics exposes the Prometheus instrumentation for the
// analysis pipeline. A nil *Metrics is valid and records nothing, so
// tests and the CLI can run without a registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	providerAttempts *prometheus.CounterVec
	ticketsCreated   *prometheus.CounterVec
	evidenceFetched  *prometheus.CounterVec
}

// New registers the pipeline metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causekit_runs_total",
			Help: "Completed analysis runs by outcome status.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "causekit_run_duration_seconds",
			Help:    "End-to-end analysis run duration.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		providerAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causekit_provider_attempts_total",
			Help: "Provider call attempts by provider and result.",
		}, []string{"provider", "result"}),
		ticketsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causekit_tickets_total",
			Help: "Follow-up ticket attempts by kind and result.",
		}, []string{"kind", "result"}),
		evidenceFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "causekit_evidence_fetches_total",
			Help: "Evidence fetches by source kind and result.",
		}, []string{"source", "result"}),
	}
	reg.MustRegister(m.runsTotal, m.runDuration, m.providerAttempts, m.ticketsCreated, m.evidenceFetched)
	return m
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(seconds)
}

// CountProviderAttempt records one provider call attempt. result is
// "success" or the error kind.
func (m *Metrics) CountProviderAttempt(provider, result string) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, result).Inc()
}

// CountTicket records one ticket-creation attempt.
func (m *Metrics) CountTicket(kind, result string) {
	if m == nil {
		return
	}
	m.ticketsCreated.WithLabelValues(kind, result).Inc()
}

// CountEvidence records one evidence fetch.
func (m *Metrics) CountEvidence(source, result string) {
	if m == nil {
		return
	}
	m.evidenceFetched.WithLabelValues(source, result).Inc()
}
