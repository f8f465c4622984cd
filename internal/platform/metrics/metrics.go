// Package metrics registers the Prometheus instruments for the verification
// server. Methods are nil-tolerant so tests can pass a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the verification server.
type Metrics struct {
	// Verification requests by outcome
	Requests *prometheus.CounterVec

	// Replies that could not be routed back (missing reply_to)
	RepliesDropped prometheus.Counter

	// Reply publishes that errored at the broker
	PublishFailures prometheus.Counter

	// Registry lookup latency, request decode to reply encode
	LookupLatency prometheus.Histogram

	// Deliveries currently being worked on
	Inflight prometheus.Gauge
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		Requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "reniec_requests_total",
			Help: "Total verification requests by outcome",
		}, []string{"outcome"}), // outcome: "found", "not_found", "invalid", "error"

		RepliesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reniec_replies_dropped_total",
			Help: "Replies dropped because the request carried no reply_to",
		}),

		PublishFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "reniec_reply_publish_failures_total",
			Help: "Reply publishes rejected or errored at the broker",
		}),

		LookupLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "reniec_lookup_duration_seconds",
			Help:    "Duration of one verification, decode through reply",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),

		Inflight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "reniec_inflight_deliveries",
			Help: "Deliveries currently being processed",
		}),
	}
}

// IncrementRequest records one verification outcome.
func (m *Metrics) IncrementRequest(outcome string) {
	if m != nil {
		m.Requests.WithLabelValues(outcome).Inc()
	}
}

// IncrementDroppedReply records a reply skipped for want of a reply_to.
func (m *Metrics) IncrementDroppedReply() {
	if m != nil {
		m.RepliesDropped.Inc()
	}
}

// IncrementPublishFailure records a failed reply publish.
func (m *Metrics) IncrementPublishFailure() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

// ObserveLookupLatency records the duration of one verification.
func (m *Metrics) ObserveLookupLatency(d time.Duration) {
	if m != nil {
		m.LookupLatency.Observe(d.Seconds())
	}
}

// DeliveryStarted marks a delivery in flight.
func (m *Metrics) DeliveryStarted() {
	if m != nil {
		m.Inflight.Inc()
	}
}

// DeliveryFinished marks a delivery done.
func (m *Metrics) DeliveryFinished() {
	if m != nil {
		m.Inflight.Dec()
	}
}
