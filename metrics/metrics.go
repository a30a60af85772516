// Package metrics holds the prometheus collectors shared by the resolver
// and the dispatcher.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Query outcomes
const (
	OutcomeBlocked     = "blocked"
	OutcomeCached      = "cached"
	OutcomeForwarded   = "forwarded"
	OutcomeServfail    = "servfail"
	OutcomeFormerr     = "formerr"
	OutcomePassthrough = "passthrough"
	OutcomeFailed      = "failed"
)

// Drop reasons
const (
	DropAccessList = "accesslist"
	DropRateLimit  = "ratelimit"
	DropError      = "error"
)

// Metrics type
type Metrics struct {
	queries  *prometheus.CounterVec
	qtypes   *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	upstream prometheus.Histogram
}

// New registers the collectors with reg, prometheus.DefaultRegisterer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &Metrics{
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dns_queries_total",
				Help: "How many DNS queries processed, by outcome",
			},
			[]string{"outcome"},
		),
		qtypes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dns_query_types_total",
				Help: "How many DNS queries received, by question type",
			},
			[]string{"qtype"},
		),
		dropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dns_dropped_total",
				Help: "How many datagrams were dropped without a reply",
			},
			[]string{"reason"},
		),
		upstream: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dns_upstream_duration_seconds",
				Help:    "Round trip time of upstream exchanges",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
	}
}

// Query counts a resolved query.
func (m *Metrics) Query(outcome string) {
	if m == nil {
		return
	}
	m.queries.WithLabelValues(outcome).Inc()
}

// QueryType counts a received question type.
func (m *Metrics) QueryType(qtype string) {
	if m == nil {
		return
	}
	m.qtypes.WithLabelValues(qtype).Inc()
}

// Dropped counts a datagram dropped for reason.
func (m *Metrics) Dropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// Upstream observes the duration of one upstream exchange.
func (m *Metrics) Upstream(d time.Duration) {
	if m == nil {
		return
	}
	m.upstream.Observe(d.Seconds())
}

// Count returns the current value of the outcome counter.
func (m *Metrics) Count(outcome string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.queries.WithLabelValues(outcome))
}

// DropCount returns the current value of the drop counter for reason.
func (m *Metrics) DropCount(reason string) float64 {
	if m == nil {
		return 0
	}
	return counterValue(m.dropped.WithLabelValues(reason))
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
