package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for fleet compliance.
type Metrics struct {
	ComplianceVerdicts  *prometheus.CounterVec
	MaintenanceLogged   *prometheus.CounterVec
	VehiclesDeactivated prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ComplianceVerdicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_vehicle_compliance_verdicts_total",
			Help: "Vehicle compliance evaluations by check and resulting status",
		}, []string{"check", "status"}),
		MaintenanceLogged: f.NewCounterVec(prometheus.CounterOpts{
			Name: "medcourier_maintenance_logs_total",
			Help: "Maintenance log entries recorded by type",
		}, []string{"type"}),
		VehiclesDeactivated: f.NewCounter(prometheus.CounterOpts{
			Name: "medcourier_vehicles_deactivated_total",
			Help: "Vehicles taken out of service",
		}),
	}
}

func (m *Metrics) IncVerdict(check, status string) {
	m.ComplianceVerdicts.WithLabelValues(check, status).Inc()
}

func (m *Metrics) IncMaintenanceLogged(typ string) {
	m.MaintenanceLogged.WithLabelValues(typ).Inc()
}

func (m *Metrics) IncVehicleDeactivated() {
	m.VehiclesDeactivated.Inc()
}
