package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics: HTTP traffic and the
// outbox relay.
type Metrics struct {
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	OutboxPublished     *prometheus.CounterVec
	OutboxFailed        *prometheus.CounterVec
	OutboxBatchDuration prometheus.Histogram
}

// New registers metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers metrics with reg. Tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_http_requests_total",
			Help: "HTTP requests by route pattern, method and status code",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "medcourier_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		OutboxPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_outbox_published_total",
			Help: "Outbox rows published to Kafka by topic",
		}, []string{"topic"}),
		OutboxFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_outbox_failed_total",
			Help: "Outbox rows that failed to publish by topic",
		}, []string{"topic"}),
		OutboxBatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcourier_outbox_batch_duration_seconds",
			Help:    "Time spent claiming, producing and settling one outbox batch",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) ObserveHTTPRequest(route, method, status string, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, method, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) IncOutboxPublished(topic string) {
	m.OutboxPublished.WithLabelValues(topic).Inc()
}

func (m *Metrics) IncOutboxFailed(topic string) {
	m.OutboxFailed.WithLabelValues(topic).Inc()
}

func (m *Metrics) ObserveOutboxBatch(d time.Duration) {
	m.OutboxBatchDuration.Observe(d.Seconds())
}
