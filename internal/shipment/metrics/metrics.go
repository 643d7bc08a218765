package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the shipment module.
type Metrics struct {
	ShipmentsCreated      prometheus.Counter
	Transitions           *prometheus.CounterVec
	TransitionsRejected   *prometheus.CounterVec
	RestrictedEdits       prometheus.Counter
	TemperatureExceptions *prometheus.CounterVec
	HardDeletes           prometheus.Counter
	TransitionDuration    prometheus.Histogram
}

// New registers the shipment metrics with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ShipmentsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "medcourier_shipments_created_total",
			Help: "Total number of shipments created",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_shipment_transitions_total",
			Help: "Committed shipment status transitions by from and to status",
		}, []string{"from", "to"}),
		TransitionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_shipment_transitions_rejected_total",
			Help: "Rejected status transition requests by current status",
		}, []string{"from"}),
		RestrictedEdits: f.NewCounter(prometheus.CounterOpts{
			Name: "medcourier_shipment_restricted_edits_total",
			Help: "Update requests rejected for touching locked fields",
		}),
		TemperatureExceptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_shipment_temperature_exceptions_total",
			Help: "Accepted temperature readings outside the shipment band by checkpoint",
		}, []string{"checkpoint"}),
		HardDeletes: f.NewCounter(prometheus.CounterOpts{
			Name: "medcourier_shipment_hard_deletes_total",
			Help: "Forced hard deletions of cancelled shipments",
		}),
		TransitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcourier_shipment_transition_duration_seconds",
			Help:    "Duration of status-changing operations including the transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncShipmentCreated() {
	m.ShipmentsCreated.Inc()
}

func (m *Metrics) IncTransition(from, to string) {
	m.Transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) IncTransitionRejected(from string) {
	m.TransitionsRejected.WithLabelValues(from).Inc()
}

func (m *Metrics) IncRestrictedEdit() {
	m.RestrictedEdits.Inc()
}

func (m *Metrics) IncTemperatureException(checkpoint string) {
	m.TemperatureExceptions.WithLabelValues(checkpoint).Inc()
}

func (m *Metrics) IncHardDelete() {
	m.HardDeletes.Inc()
}

// ObserveTransition records the duration of a status-changing operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(start time.Time) {
	m.TransitionDuration.Observe(time.Since(start).Seconds())
}
