package compliance

import (
	"time"

	id "medcourier/pkg/domain"
)

// VehicleSnapshot is the raw vehicle state compliance is computed from. It is
// loaded fresh for every evaluation; verdicts are never persisted.
type VehicleSnapshot struct {
	VehicleID              id.VehicleID
	IsActive               bool
	RegistrationExpiryDate *time.Time
	CurrentOdometer        int
	RefrigerationCapable   bool

	// Most recent oil change. Nil when the vehicle has never been serviced.
	LastOilChangeOdometer *int
	LastOilChangeAt       *time.Time
}

type RegistrationStatus string

const (
	RegistrationValid    RegistrationStatus = "VALID"
	RegistrationExpiring RegistrationStatus = "EXPIRING"
	RegistrationExpired  RegistrationStatus = "EXPIRED"
	RegistrationMissing  RegistrationStatus = "MISSING"
	RegistrationInactive RegistrationStatus = "INACTIVE"
)

type MaintenanceStatus string

const (
	MaintenanceValid   MaintenanceStatus = "VALID"
	MaintenanceWarning MaintenanceStatus = "WARNING"
	MaintenanceDue     MaintenanceStatus = "DUE"
)

// AssignmentKind distinguishes new assignment attempts from shipments already
// in progress on a vehicle.
type AssignmentKind int

const (
	AssignmentNew AssignmentKind = iota
	AssignmentActive
)

// RegistrationVerdict is the registration half of a compliance evaluation.
type RegistrationVerdict struct {
	Status          RegistrationStatus `json:"status"`
	Message         string             `json:"message"`
	DaysUntilExpiry *int               `json:"days_until_expiry,omitempty"`
	ReminderTier    int                `json:"reminder_tier,omitempty"`
}

// Compliant is true for VALID and EXPIRING only.
func (v RegistrationVerdict) Compliant() bool {
	return v.Status == RegistrationValid || v.Status == RegistrationExpiring
}

// MaintenanceVerdict is the maintenance-mileage half of a compliance evaluation.
type MaintenanceVerdict struct {
	Status            MaintenanceStatus `json:"status"`
	Message           string            `json:"message"`
	MilesSinceService int               `json:"miles_since_service"`
	LastServiceAt     *time.Time        `json:"last_service_at,omitempty"`
}

// Compliant is false only when service is DUE.
func (v MaintenanceVerdict) Compliant() bool {
	return v.Status != MaintenanceDue
}

// BlocksAssignment reports whether the verdict blocks the given kind of
// assignment. A DUE vehicle blocks new assignments only; shipments already in
// progress on it are never blocked.
func (v MaintenanceVerdict) BlocksAssignment(kind AssignmentKind) bool {
	return kind == AssignmentNew && v.Status == MaintenanceDue
}

// Verdict combines both evaluations for one vehicle.
type Verdict struct {
	VehicleID    id.VehicleID        `json:"vehicle_id"`
	Registration RegistrationVerdict `json:"registration"`
	Maintenance  MaintenanceVerdict  `json:"maintenance"`
	EvaluatedAt  time.Time           `json:"evaluated_at"`
}

// Compliant reports whether the vehicle may take a new assignment.
func (v Verdict) Compliant() bool {
	return v.Registration.Compliant() && !v.Maintenance.BlocksAssignment(AssignmentNew)
}
