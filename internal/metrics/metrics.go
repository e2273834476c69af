// Package metrics holds the Prometheus collectors exported on /metrics.
//
// All methods are nil-safe so components can be built without metrics in
// tests and CLI one-shots.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "eventdesk"

type Metrics struct {
	registry *prometheus.Registry

	registrationOutcomes *prometheus.CounterVec
	dateParseFailures    prometheus.Counter
	feedImports          *prometheus.CounterVec
	notifyFailures       prometheus.Counter
	waitlistPromotions   prometheus.Counter
}

// New builds a private registry with the process and Go collectors plus the
// application collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		registrationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_outcomes_total",
			Help:      "Registration attempts by outcome.",
		}, []string{"outcome"}),
		dateParseFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "date_parse_failures_total",
			Help:      "Event dates that could not be parsed and sorted as epoch.",
		}),
		feedImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_imports_total",
			Help:      "ICS feed import runs by feed and result.",
		}, []string{"feed", "result"}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Registration notices that could not be published.",
		}),
		waitlistPromotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_promotions_total",
			Help:      "Waitlisted registrations promoted after a spot freed up.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.registrationOutcomes,
		m.dateParseFailures,
		m.feedImports,
		m.notifyFailures,
		m.waitlistPromotions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RegistrationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.registrationOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) DateParseFailure() {
	if m == nil {
		return
	}
	m.dateParseFailures.Inc()
}

func (m *Metrics) FeedImport(feed, result string) {
	if m == nil {
		return
	}
	m.feedImports.WithLabelValues(feed, result).Inc()
}

func (m *Metrics) NotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}

func (m *Metrics) WaitlistPromotions(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.waitlistPromotions.Add(float64(n))
}
