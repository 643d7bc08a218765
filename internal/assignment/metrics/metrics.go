package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for assignment batches.
type Metrics struct {
	Batches           *prometheus.CounterVec
	RejectionReasons  *prometheus.CounterVec
	ShipmentsAssigned prometheus.Counter
	Unassignments     prometheus.Counter
	BatchSize         prometheus.Histogram
	BatchDuration     prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_assignment_batches_total",
			Help: "Assignment batches by outcome (committed, rejected, error)",
		}, []string{"outcome"}),
		RejectionReasons: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_assignment_rejections_total",
			Help: "Failing shipments in rejected batches by reason",
		}, []string{"reason"}),
		ShipmentsAssigned: f.NewCounter(prometheus.CounterOpts{
			Name: "medcourier_shipments_assigned_total",
			Help: "Shipments assigned to a driver",
		}),
		Unassignments: f.NewCounter(prometheus.CounterOpts{
			Name: "medcourier_shipments_unassigned_total",
			Help: "Shipments released from a driver before pickup",
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcourier_assignment_batch_size",
			Help:    "Number of shipments requested per batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		BatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcourier_assignment_batch_duration_seconds",
			Help:    "Duration of a batch including the transaction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

func (m *Metrics) ObserveBatch(outcome string, size int, start time.Time) {
	m.Batches.WithLabelValues(outcome).Inc()
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncRejection(reason string) {
	m.RejectionReasons.WithLabelValues(reason).Inc()
}

func (m *Metrics) AddAssigned(n int) {
	m.ShipmentsAssigned.Add(float64(n))
}

func (m *Metrics) IncUnassigned() {
	m.Unassignments.Inc()
}
