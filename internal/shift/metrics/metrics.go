package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for shift clock-in and clock-out.
type Metrics struct {
	ClockIns   *prometheus.CounterVec
	ClockOuts  *prometheus.CounterVec
	ShiftHours prometheus.Histogram
	OpenShifts prometheus.Gauge
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ClockIns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_shift_clock_ins_total",
			Help: "Clock-in attempts by outcome (opened, conflict, rejected)",
		}, []string{"outcome"}),
		ClockOuts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_shift_clock_outs_total",
			Help: "Clock-out attempts by outcome (closed, in_custody, rejected)",
		}, []string{"outcome"}),
		ShiftHours: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "medcourier_shift_hours",
			Help:    "Length of closed shifts in hours",
			Buckets: []float64{1, 2, 4, 6, 8, 10, 12, 16},
		}),
		OpenShifts: f.NewGauge(prometheus.GaugeOpts{
			Name: "medcourier_shifts_open",
			Help: "Shifts opened minus shifts closed by this process",
		}),
	}
}

func (m *Metrics) IncClockIn(outcome string) {
	m.ClockIns.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOpened {
		m.OpenShifts.Inc()
	}
}

func (m *Metrics) IncClockOut(outcome string) {
	m.ClockOuts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveClosed(hours float64) {
	m.ClockOuts.WithLabelValues(OutcomeClosed).Inc()
	m.ShiftHours.Observe(hours)
	m.OpenShifts.Dec()
}

const (
	OutcomeOpened    = "opened"
	OutcomeClosed    = "closed"
	OutcomeConflict  = "conflict"
	OutcomeInCustody = "in_custody"
	OutcomeRejected  = "rejected"
)
