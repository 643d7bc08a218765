package audit

import (
	"time"
)

// EventCategory classifies audit events by their primary purpose. The
// category picks the retention policy and the outbox topic.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: chain of
	// custody, assignment decisions, record removal.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers policy violations and suspicious activity.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	CategoryOperations EventCategory = "operations"
)

// Event is the stored form of every audit entry. Keep it transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	Category    EventCategory
	Timestamp   time.Time
	SubjectType string
	SubjectID   string
	Action      string
	Decision    string
	Reason      string
	RequestID   string
	ActorID     string
}

type AuditEvent string

const (
	// Shipment events
	EventShipmentHardDeleted  AuditEvent = "shipment_hard_deleted"
	EventTemperatureExcursion AuditEvent = "temperature_excursion"
	EventRestrictedFieldEdit  AuditEvent = "restricted_field_edit_rejected"

	// Assignment events
	EventShipmentsAssigned      AuditEvent = "shipments_assigned"
	EventShipmentUnassigned     AuditEvent = "shipment_unassigned"
	EventBulkAssignmentRejected AuditEvent = "bulk_assignment_rejected"

	// Fleet events
	EventVehicleDeactivated AuditEvent = "vehicle_deactivated"
	EventMaintenanceLogged  AuditEvent = "maintenance_logged"
	EventAssignmentOptOut   AuditEvent = "assignment_opt_out_changed"

	// Shift events
	EventClockInConflict    AuditEvent = "clock_in_conflict"
	EventCustodyClockOut    AuditEvent = "clock_out_blocked_in_custody"
	EventOdometerRegression AuditEvent = "odometer_regression_rejected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventShipmentHardDeleted:    CategoryCompliance,
	EventTemperatureExcursion:   CategoryCompliance,
	EventShipmentsAssigned:      CategoryCompliance,
	EventShipmentUnassigned:     CategoryCompliance,
	EventBulkAssignmentRejected: CategoryCompliance,
	EventVehicleDeactivated:     CategoryCompliance,
	EventMaintenanceLogged:      CategoryCompliance,
	EventAssignmentOptOut:       CategoryCompliance,

	EventRestrictedFieldEdit: CategorySecurity,
	EventClockInConflict:     CategorySecurity,
	EventCustodyClockOut:     CategorySecurity,
	EventOdometerRegression:  CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// ComplianceEvent captures regulatory-significant actions requiring guaranteed
// persistence. Use with the compliance publisher for fail-closed semantics.
type ComplianceEvent struct {
	Timestamp   time.Time
	SubjectType string // "shipment", "driver", "vehicle"
	SubjectID   string
	Action      AuditEvent
	Decision    string
	Reason      string
	RequestID   string
	ActorID     string
}

// Category returns CategoryCompliance (always).
func (e ComplianceEvent) Category() EventCategory { return CategoryCompliance }

// ToEvent converts to the stored form.
func (e ComplianceEvent) ToEvent() Event {
	return Event{
		Category:    CategoryCompliance,
		Timestamp:   e.Timestamp,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Action:      string(e.Action),
		Decision:    e.Decision,
		Reason:      e.Reason,
		RequestID:   e.RequestID,
		ActorID:     e.ActorID,
	}
}

// SecurityEvent captures policy violations. Events are processed
// asynchronously with buffering; losing one never fails the request.
type SecurityEvent struct {
	Timestamp   time.Time
	SubjectType string
	SubjectID   string
	Action      AuditEvent
	Reason      string
	RequestID   string
	ActorID     string
	Severity    Severity
}

// Severity levels for security events.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Category returns CategorySecurity (always).
func (e SecurityEvent) Category() EventCategory { return CategorySecurity }

// ToEvent converts to the stored form. Severity travels in Decision.
func (e SecurityEvent) ToEvent() Event {
	return Event{
		Category:    CategorySecurity,
		Timestamp:   e.Timestamp,
		SubjectType: e.SubjectType,
		SubjectID:   e.SubjectID,
		Action:      string(e.Action),
		Decision:    string(e.Severity),
		Reason:      e.Reason,
		RequestID:   e.RequestID,
		ActorID:     e.ActorID,
	}
}
