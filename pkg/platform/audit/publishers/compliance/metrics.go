package compliance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "medcourier/pkg/platform/audit"
)

// Metrics tracks compliance audit writes by action.
type Metrics struct {
	Events          *prometheus.CounterVec
	PersistDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_audit_compliance_events_total",
			Help: "Compliance audit writes by action and result",
		}, []string{"action", "result"}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcourier_audit_compliance_persist_duration_seconds",
			Help:    "Duration of synchronous compliance audit writes",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
	}
}

// observe is safe on a nil receiver.
func (m *Metrics) observe(action audit.AuditEvent, ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "persisted"
	if !ok {
		result = "failed"
	}
	m.Events.WithLabelValues(string(action), result).Inc()
	m.PersistDuration.Observe(d.Seconds())
}
