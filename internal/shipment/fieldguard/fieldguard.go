// Package fieldguard decides which shipment fields an update may touch given
// the shipment's current status.
package fieldguard

import (
	"slices"
	"strings"

	"medcourier/internal/shipment/lifecycle"
	dErrors "medcourier/pkg/domain-errors"
)

// Field is the wire name of an updatable shipment attribute.
type Field string

const (
	FieldCommodityDescription Field = "commodity_description"
	FieldSpecimenCategory     Field = "specimen_category"
	FieldTemperatureKind      Field = "temperature_requirement"
	FieldTemperatureMin       Field = "temperature_min"
	FieldTemperatureMax       Field = "temperature_max"
	FieldReadyTime            Field = "ready_time"
	FieldDeliveryDeadline     Field = "delivery_deadline"
	FieldAccessInstructions   Field = "access_instructions"
	FieldDriverInstructions   Field = "driver_instructions"
	FieldPriority             Field = "priority"
	FieldPONumber             Field = "po_number"
	FieldEstimatedContainers  Field = "estimated_containers"
	FieldEstimatedWeight      Field = "estimated_weight_kg"
	FieldDeclaredValue        Field = "declared_value_cents"
	FieldShipperID            Field = "shipper_id"
	FieldNotes                Field = "notes"
	FieldQuoteAmount          Field = "quote_amount_cents"
	FieldDriverQuoteAmount    Field = "driver_quote_amount_cents"
	FieldStatus               Field = "status"
)

type editability int

const (
	// editable at any status
	editableAlways editability = iota
	// editable until the shipment is locked or has left the main path
	editableUntilLocked
	// never editable after creation
	immutable
)

// table is the complete allow-list. A field missing here is unknown and is
// treated as restricted.
var table = map[Field]editability{
	FieldCommodityDescription: editableUntilLocked,
	FieldSpecimenCategory:     editableUntilLocked,
	FieldTemperatureKind:      editableUntilLocked,
	FieldTemperatureMin:       editableUntilLocked,
	FieldTemperatureMax:       editableUntilLocked,
	FieldReadyTime:            editableUntilLocked,
	FieldDeliveryDeadline:     editableUntilLocked,
	FieldAccessInstructions:   editableUntilLocked,
	FieldDriverInstructions:   editableUntilLocked,
	FieldPriority:             editableUntilLocked,
	FieldPONumber:             editableUntilLocked,
	FieldEstimatedContainers:  editableUntilLocked,
	FieldEstimatedWeight:      editableUntilLocked,
	FieldDeclaredValue:        editableUntilLocked,
	FieldShipperID:            immutable,
	FieldNotes:                editableAlways,
	FieldQuoteAmount:          editableAlways,
	FieldDriverQuoteAmount:    editableAlways,
	FieldStatus:               editableAlways,
}

// IsKnown reports whether f appears in the allow-list.
func IsKnown(f Field) bool {
	_, ok := table[f]
	return ok
}

// Decision is the guard's answer. Restricted is sorted and deduplicated.
type Decision struct {
	Status     lifecycle.Status
	Restricted []Field
}

func (d Decision) Allowed() bool {
	return len(d.Restricted) == 0
}

// Err returns nil when allowed, otherwise a *RestrictedFieldsError.
func (d Decision) Err() error {
	if d.Allowed() {
		return nil
	}
	return newRestrictedFieldsError(d.Status, d.Restricted)
}

// CheckFieldEditable reports whether a single field may change at status.
func CheckFieldEditable(status lifecycle.Status, f Field) bool {
	rule, ok := table[f]
	if !ok {
		return false
	}
	switch rule {
	case editableAlways:
		return true
	case editableUntilLocked:
		return !lifecycle.IsLocked(status) && !status.IsSideTerminal()
	default:
		return false
	}
}

// Check evaluates every field an update touches.
func Check(status lifecycle.Status, fields []Field) Decision {
	var restricted []Field
	for _, f := range fields {
		if !CheckFieldEditable(status, f) {
			restricted = append(restricted, f)
		}
	}
	slices.Sort(restricted)
	return Decision{Status: status, Restricted: slices.Compact(restricted)}
}

// RestrictedFieldsError names every field the update may not touch.
type RestrictedFieldsError struct {
	Status lifecycle.Status
	Fields []Field
	err    *dErrors.Error
}

func newRestrictedFieldsError(status lifecycle.Status, fields []Field) *RestrictedFieldsError {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return &RestrictedFieldsError{
		Status: status,
		Fields: fields,
		err: dErrors.Newf(dErrors.CodeRestrictedField,
			"fields cannot be modified in status %s: %s", status, strings.Join(names, ", ")),
	}
}

func (e *RestrictedFieldsError) Error() string {
	return e.err.Error()
}

func (e *RestrictedFieldsError) Unwrap() error {
	return e.err
}

// Details exposes the rejected fields in error responses.
func (e *RestrictedFieldsError) Details() any {
	return map[string]any{
		"status":            e.Status,
		"restricted_fields": e.Fields,
	}
}
