package models

import (
	"time"

	"medcourier/internal/custody"
	"medcourier/internal/shipment/lifecycle"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

const (
	maxCommodityDescriptionLength = 500
	maxInstructionsLength         = 1000
	maxPONumberLength             = 64
)

type Priority string

const (
	PriorityStandard Priority = "standard"
	PriorityUrgent   Priority = "urgent"
	PriorityStat     Priority = "stat"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(s); p {
	case "":
		return PriorityStandard, nil
	case PriorityStandard, PriorityUrgent, PriorityStat:
		return p, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported priority: "+s)
	}
}

// Checkpoint is the proof of custody captured at pickup or delivery.
type Checkpoint struct {
	SignatureBlob              []byte     `json:"-"`
	SignatureDigest            string     `json:"signature_digest,omitempty"`
	SignerName                 string     `json:"signer_name,omitempty"`
	SignatureUnavailableReason string     `json:"signature_unavailable_reason,omitempty"`
	Temperature                *float64   `json:"temperature,omitempty"`
	TemperatureException       bool       `json:"temperature_exception"`
	RecordedBy                 string     `json:"recorded_by,omitempty"`
	RecordedAt                 *time.Time `json:"recorded_at,omitempty"`
}

// IsRecorded reports whether the checkpoint has been captured.
func (c Checkpoint) IsRecorded() bool {
	return c.RecordedAt != nil
}

// Shipment is the aggregate root for one regulated load.
//
// Invariants:
//   - TrackingCode and ShipperID never change after construction
//   - Status only changes through ApplyTransition after lifecycle validation
//   - Descriptive fields are frozen once lifecycle.IsLocked(Status)
//   - DriverID and VehicleID are set together or not at all
type Shipment struct {
	ID           id.ShipmentID    `json:"id"`
	TrackingCode id.TrackingCode  `json:"tracking_code"`
	ShipperID    id.ShipperID     `json:"shipper_id"`
	Status       lifecycle.Status `json:"status"`

	CommodityDescription string              `json:"commodity_description"`
	SpecimenCategory     id.SpecimenCategory `json:"specimen_category"`
	TemperatureKind      id.TemperatureKind  `json:"temperature_requirement"`
	TemperatureMin       *float64            `json:"temperature_min,omitempty"`
	TemperatureMax       *float64            `json:"temperature_max,omitempty"`
	ReadyTime            *time.Time          `json:"ready_time,omitempty"`
	DeliveryDeadline     *time.Time          `json:"delivery_deadline,omitempty"`
	AccessInstructions   string              `json:"access_instructions,omitempty"`
	DriverInstructions   string              `json:"driver_instructions,omitempty"`
	Priority             Priority            `json:"priority"`
	PONumber             string              `json:"po_number,omitempty"`
	EstimatedContainers  *int                `json:"estimated_containers,omitempty"`
	EstimatedWeightKg    *float64            `json:"estimated_weight_kg,omitempty"`
	DeclaredValueCents   *int64              `json:"declared_value_cents,omitempty"`
	Notes                string              `json:"notes,omitempty"`

	QuoteAmountCents       *int64 `json:"quote_amount_cents,omitempty"`
	DriverQuoteAmountCents *int64 `json:"driver_quote_amount_cents,omitempty"`

	DriverID  *id.DriverID  `json:"driver_id,omitempty"`
	VehicleID *id.VehicleID `json:"vehicle_id,omitempty"`

	Pickup   Checkpoint `json:"pickup"`
	Delivery Checkpoint `json:"delivery"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Draft holds the shipper-supplied fields of a new shipment.
type Draft struct {
	ShipperID            id.ShipperID
	CommodityDescription string
	SpecimenCategory     id.SpecimenCategory
	TemperatureKind      id.TemperatureKind
	TemperatureMin       *float64
	TemperatureMax       *float64
	ReadyTime            *time.Time
	DeliveryDeadline     *time.Time
	AccessInstructions   string
	DriverInstructions   string
	Priority             Priority
	PONumber             string
	EstimatedContainers  *int
	EstimatedWeightKg    *float64
	DeclaredValueCents   *int64
	Notes                string
}

// NewShipment constructs a shipment in status NEW.
func NewShipment(shipmentID id.ShipmentID, code id.TrackingCode, d Draft, now time.Time) (*Shipment, error) {
	if shipmentID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "shipment id is required")
	}
	if code == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "tracking code is required")
	}
	if d.ShipperID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "shipper id is required")
	}
	if d.Priority == "" {
		d.Priority = PriorityStandard
	}
	if d.SpecimenCategory == "" {
		d.SpecimenCategory = id.SpecimenNone
	}
	s := &Shipment{
		ID:           shipmentID,
		TrackingCode: code,
		ShipperID:    d.ShipperID,
		Status:       lifecycle.StatusNew,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.applyDraft(d)
	if err := s.validateDescriptive(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Shipment) applyDraft(d Draft) {
	s.CommodityDescription = d.CommodityDescription
	s.SpecimenCategory = d.SpecimenCategory
	s.TemperatureKind = d.TemperatureKind
	s.TemperatureMin = d.TemperatureMin
	s.TemperatureMax = d.TemperatureMax
	s.ReadyTime = d.ReadyTime
	s.DeliveryDeadline = d.DeliveryDeadline
	s.AccessInstructions = d.AccessInstructions
	s.DriverInstructions = d.DriverInstructions
	s.Priority = d.Priority
	s.PONumber = d.PONumber
	s.EstimatedContainers = d.EstimatedContainers
	s.EstimatedWeightKg = d.EstimatedWeightKg
	s.DeclaredValueCents = d.DeclaredValueCents
	s.Notes = d.Notes
}

// validateDescriptive checks the descriptive fields as a whole. It runs at
// construction and after every patch.
func (s *Shipment) validateDescriptive() error {
	if s.CommodityDescription == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "commodity description is required")
	}
	if len(s.CommodityDescription) > maxCommodityDescriptionLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "commodity description is too long")
	}
	if s.TemperatureKind == "" {
		return dErrors.New(dErrors.CodeInvariantViolation, "temperature requirement is required")
	}
	if len(s.AccessInstructions) > maxInstructionsLength || len(s.DriverInstructions) > maxInstructionsLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "instructions are too long")
	}
	if len(s.PONumber) > maxPONumberLength {
		return dErrors.New(dErrors.CodeInvariantViolation, "po number is too long")
	}
	if s.TemperatureMin != nil && s.TemperatureMax != nil && *s.TemperatureMin > *s.TemperatureMax {
		return dErrors.New(dErrors.CodeInvariantViolation, "temperature_min must not exceed temperature_max")
	}
	if s.ReadyTime != nil && s.DeliveryDeadline != nil && !s.DeliveryDeadline.After(*s.ReadyTime) {
		return dErrors.New(dErrors.CodeInvariantViolation, "delivery deadline must be after ready time")
	}
	if s.EstimatedContainers != nil && *s.EstimatedContainers < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "estimated containers cannot be negative")
	}
	if s.EstimatedWeightKg != nil && *s.EstimatedWeightKg < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "estimated weight cannot be negative")
	}
	if s.DeclaredValueCents != nil && *s.DeclaredValueCents < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "declared value cannot be negative")
	}
	return nil
}

// IsLocked reports whether descriptive fields are frozen.
func (s *Shipment) IsLocked() bool {
	return lifecycle.IsLocked(s.Status)
}

func (s *Shipment) IsAssigned() bool {
	return s.DriverID != nil
}

// TemperatureBand resolves the configured band, falling back to the standard
// band for the temperature requirement.
func (s *Shipment) TemperatureBand() custody.TemperatureBand {
	return custody.TemperatureBand{Min: s.TemperatureMin, Max: s.TemperatureMax}.Resolve(s.TemperatureKind)
}

// CanTransition checks the requested status against the current one.
func (s *Shipment) CanTransition(to lifecycle.Status) error {
	return lifecycle.ValidateTransition(s.Status, to)
}

// CanTransitionDirect is CanTransition for status changes requested without a
// custody capture. PICKED_UP and DELIVERED are entered only through
// RecordPickup and RecordDelivery, and nothing may skip past an unrecorded
// pickup.
func (s *Shipment) CanTransitionDirect(to lifecycle.Status) error {
	if err := s.CanTransition(to); err != nil {
		return err
	}
	switch {
	case to == pickedUp || to == delivered:
		return dErrors.Newf(dErrors.CodeValidation, "status %s requires a custody capture", to)
	case lifecycle.IsLocked(to) && !s.Pickup.IsRecorded():
		return dErrors.Newf(dErrors.CodeValidation, "status %s requires a recorded pickup", to)
	}
	return nil
}

// ApplyTransition sets the status. Call CanTransition first.
func (s *Shipment) ApplyTransition(to lifecycle.Status, now time.Time) {
	s.Status = to
	s.UpdatedAt = now
}

const (
	pickedUp  = lifecycle.StatusPickedUp
	delivered = lifecycle.StatusDelivered
)

// Assignable statuses accept a driver. Later statuses already have one or are
// in custody.
var assignable = map[lifecycle.Status]bool{
	lifecycle.StatusRequested:            true,
	lifecycle.StatusQuoted:               true,
	lifecycle.StatusQuoteAccepted:        true,
	lifecycle.StatusDriverQuoteSubmitted: true,
	lifecycle.StatusScheduled:            true,
}

// IsAssignableStatus reports whether a shipment in status st may be assigned.
func IsAssignableStatus(st lifecycle.Status) bool {
	return assignable[st]
}

// AssignableStatuses lists the statuses accepted by assignment.
func AssignableStatuses() []lifecycle.Status {
	out := make([]lifecycle.Status, 0, len(assignable))
	for _, st := range lifecycle.Ordered {
		if assignable[st] {
			out = append(out, st)
		}
	}
	return out
}

// CanAssign checks that the shipment is unassigned and in an assignable status.
func (s *Shipment) CanAssign() error {
	if s.IsAssigned() {
		return dErrors.New(dErrors.CodeConflict, "shipment is already assigned")
	}
	if !assignable[s.Status] {
		return dErrors.Newf(dErrors.CodeValidation, "shipment in status %s cannot be assigned", s.Status)
	}
	return nil
}

// ApplyAssignment records the driver and vehicle. When the lifecycle allows,
// the shipment moves to SCHEDULED. Returns whether the status changed.
func (s *Shipment) ApplyAssignment(driverID id.DriverID, vehicleID id.VehicleID, now time.Time) bool {
	s.DriverID = &driverID
	s.VehicleID = &vehicleID
	s.UpdatedAt = now
	if lifecycle.CanTransition(s.Status, lifecycle.StatusScheduled) {
		s.Status = lifecycle.StatusScheduled
		return true
	}
	return false
}

// CanUnassign checks that a driver is assigned and the shipment is not yet in
// custody.
func (s *Shipment) CanUnassign() error {
	if !s.IsAssigned() {
		return dErrors.New(dErrors.CodeValidation, "shipment has no assigned driver")
	}
	if s.IsLocked() || s.Status.IsTerminal() {
		return dErrors.Newf(dErrors.CodeValidation, "shipment in status %s cannot be unassigned", s.Status)
	}
	return nil
}

func (s *Shipment) ApplyUnassignment(now time.Time) {
	s.DriverID = nil
	s.VehicleID = nil
	s.UpdatedAt = now
}

// CanHardDelete allows removal only for cancelled shipments with an explicit
// override.
func (s *Shipment) CanHardDelete(force bool) error {
	if s.Status != lifecycle.StatusCancelled {
		return dErrors.Newf(dErrors.CodeValidation, "only cancelled shipments can be deleted, status is %s", s.Status)
	}
	if !force {
		return dErrors.New(dErrors.CodeValidation, "hard delete requires force=true")
	}
	return nil
}
