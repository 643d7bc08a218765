package models

import (
	"slices"
	"strings"
	"time"

	"medcourier/internal/compliance"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

const (
	maxNameLength  = 120
	maxPlateLength = 16
	maxNotesLength = 2000
)

// Driver is a courier who may hold shipments. Certifications gate which
// commodities the driver may carry.
type Driver struct {
	ID                    id.DriverID        `json:"id"`
	Name                  string             `json:"name"`
	OptedOutOfAssignments bool               `json:"opted_out_of_assignments"`
	Certifications        []id.Certification `json:"certifications"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

func NewDriver(driverID id.DriverID, name string, certs []id.Certification, now time.Time) (*Driver, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "driver name is required")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "driver name is too long")
	}
	held := slices.Clone(certs)
	slices.Sort(held)
	return &Driver{
		ID:             driverID,
		Name:           name,
		Certifications: slices.Compact(held),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AddCertification records c. Returns false when the driver already holds it.
func (d *Driver) AddCertification(c id.Certification, now time.Time) bool {
	if slices.Contains(d.Certifications, c) {
		return false
	}
	d.Certifications = append(d.Certifications, c)
	slices.Sort(d.Certifications)
	d.UpdatedAt = now
	return true
}

func (d *Driver) SetAssignmentOptOut(optedOut bool, now time.Time) {
	d.OptedOutOfAssignments = optedOut
	d.UpdatedAt = now
}

// Vehicle belongs to exactly one driver. Compliance is never stored on it;
// it is evaluated from these raw fields on every read.
type Vehicle struct {
	ID                     id.VehicleID `json:"id"`
	DriverID               id.DriverID  `json:"driver_id"`
	Plate                  string       `json:"plate"`
	IsActive               bool         `json:"is_active"`
	RegistrationExpiryDate *time.Time   `json:"registration_expiry_date,omitempty"`
	CurrentOdometer        int          `json:"current_odometer"`
	RefrigerationCapable   bool         `json:"refrigeration_capable"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// VehicleDraft holds the caller-supplied fields of a new vehicle.
type VehicleDraft struct {
	Plate                  string
	RegistrationExpiryDate *time.Time
	CurrentOdometer        int
	RefrigerationCapable   bool
}

func NewVehicle(vehicleID id.VehicleID, driverID id.DriverID, d VehicleDraft, now time.Time) (*Vehicle, error) {
	plate := strings.ToUpper(strings.TrimSpace(d.Plate))
	if plate == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "plate is required")
	}
	if len(plate) > maxPlateLength {
		return nil, dErrors.New(dErrors.CodeValidation, "plate is too long")
	}
	if d.CurrentOdometer < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "odometer cannot be negative")
	}
	return &Vehicle{
		ID:                     vehicleID,
		DriverID:               driverID,
		Plate:                  plate,
		IsActive:               true,
		RegistrationExpiryDate: d.RegistrationExpiryDate,
		CurrentOdometer:        d.CurrentOdometer,
		RefrigerationCapable:   d.RefrigerationCapable,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

func (v *Vehicle) CanDeactivate() error {
	if !v.IsActive {
		return dErrors.New(dErrors.CodeConflict, "vehicle is already inactive")
	}
	return nil
}

func (v *Vehicle) ApplyDeactivation(now time.Time) {
	v.IsActive = false
	v.UpdatedAt = now
}

// AdvanceOdometer raises the odometer to reading. Lower readings are ignored
// and reported as false; the odometer never moves backwards.
func (v *Vehicle) AdvanceOdometer(reading int, now time.Time) bool {
	if reading <= v.CurrentOdometer {
		return false
	}
	v.CurrentOdometer = reading
	v.UpdatedAt = now
	return true
}

// Snapshot builds the compliance input. lastOilChange may be nil.
func (v *Vehicle) Snapshot(lastOilChange *MaintenanceLog) compliance.VehicleSnapshot {
	snap := compliance.VehicleSnapshot{
		VehicleID:              v.ID,
		IsActive:               v.IsActive,
		RegistrationExpiryDate: v.RegistrationExpiryDate,
		CurrentOdometer:        v.CurrentOdometer,
		RefrigerationCapable:   v.RefrigerationCapable,
	}
	if lastOilChange != nil {
		odo := lastOilChange.Odometer
		at := lastOilChange.PerformedAt
		snap.LastOilChangeOdometer = &odo
		snap.LastOilChangeAt = &at
	}
	return snap
}

type MaintenanceType string

const (
	MaintenanceOilChange    MaintenanceType = "oil_change"
	MaintenanceTireRotation MaintenanceType = "tire_rotation"
	MaintenanceInspection   MaintenanceType = "inspection"
	MaintenanceRepair       MaintenanceType = "repair"
	MaintenanceOther        MaintenanceType = "other"
)

var validMaintenanceTypes = map[MaintenanceType]bool{
	MaintenanceOilChange:    true,
	MaintenanceTireRotation: true,
	MaintenanceInspection:   true,
	MaintenanceRepair:       true,
	MaintenanceOther:        true,
}

func ParseMaintenanceType(s string) (MaintenanceType, error) {
	t := MaintenanceType(strings.ToLower(strings.TrimSpace(s)))
	if !validMaintenanceTypes[t] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported maintenance type: "+s)
	}
	return t, nil
}

// MaintenanceLog is an immutable service record.
type MaintenanceLog struct {
	ID          id.MaintenanceLogID `json:"id"`
	VehicleID   id.VehicleID        `json:"vehicle_id"`
	Type        MaintenanceType     `json:"type"`
	Odometer    int                 `json:"odometer"`
	CostCents   *int64              `json:"cost_cents,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	PerformedAt time.Time           `json:"performed_at"`
	CreatedAt   time.Time           `json:"created_at"`
}

// MaintenanceDraft holds the caller-supplied fields of a log entry.
type MaintenanceDraft struct {
	Type        MaintenanceType
	Odometer    int
	CostCents   *int64
	Notes       string
	PerformedAt time.Time
}

func NewMaintenanceLog(logID id.MaintenanceLogID, vehicleID id.VehicleID, d MaintenanceDraft, now time.Time) (*MaintenanceLog, error) {
	if !validMaintenanceTypes[d.Type] {
		return nil, dErrors.New(dErrors.CodeValidation, "maintenance type is required")
	}
	if d.Odometer < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "odometer cannot be negative")
	}
	if d.CostCents != nil && *d.CostCents < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "cost cannot be negative")
	}
	notes := strings.TrimSpace(d.Notes)
	if len(notes) > maxNotesLength {
		return nil, dErrors.New(dErrors.CodeValidation, "notes are too long")
	}
	performedAt := d.PerformedAt
	if performedAt.IsZero() {
		performedAt = now
	}
	if performedAt.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "maintenance cannot be logged in the future")
	}
	return &MaintenanceLog{
		ID:          logID,
		VehicleID:   vehicleID,
		Type:        d.Type,
		Odometer:    d.Odometer,
		CostCents:   d.CostCents,
		Notes:       notes,
		PerformedAt: performedAt,
		CreatedAt:   now,
	}, nil
}
