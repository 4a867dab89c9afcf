// Package metrics exposes anchoring metrics through prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "agentattest"

const (
	subsystemAnchor = "anchor"
	subsystemChain  = "chain"
)

// PromMetrics records anchor submissions and chain lookups.
type PromMetrics struct {
	submissions    *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec
	lookups        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg uses the default registerer.
func New(reg prometheus.Registerer) (*PromMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	pm := &PromMetrics{
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemAnchor,
			Name:      "submissions_total",
			Help:      "Anchor transactions submitted, by kind and final state.",
		}, []string{"kind", "outcome"}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: subsystemAnchor,
			Name:      "submit_duration_seconds",
			Help:      "The time (in seconds) from submission to a final state.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"kind"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemChain,
			Name:      "lookups_total",
			Help:      "Transaction lookups against the ledger, by outcome.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{pm.submissions, pm.submitDuration, pm.lookups} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return pm, nil
}

// ObserveSubmission records one submission and its duration.
func (pm *PromMetrics) ObserveSubmission(kind, outcome string, d time.Duration) {
	pm.submissions.WithLabelValues(kind, outcome).Inc()
	pm.submitDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveLookup records one transaction lookup.
func (pm *PromMetrics) ObserveLookup(outcome string) {
	pm.lookups.WithLabelValues(outcome).Inc()
}

// Handler serves the metrics gathered by g in the prometheus text format.
// A nil g uses the default gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
