package models

import (
	"fmt"

	"medcourier/internal/shipment/lifecycle"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

// Reason codes for a shipment that cannot join a batch. Driver eligibility
// failures use the eligibility reason codes verbatim.
const (
	ReasonShipmentNotFound = "shipment_not_found"
	ReasonAlreadyAssigned  = "already_assigned"
	ReasonNotAssignable    = "status_not_assignable"
)

// Outcome is the per-shipment result of validating a batch.
type Outcome struct {
	ShipmentID id.ShipmentID `json:"shipment_id"`
	Passed     bool          `json:"passed"`
	Reason     string        `json:"reason,omitempty"`
	Message    string        `json:"message,omitempty"`

	VehicleID id.VehicleID `json:"-"`
}

// Assigned describes one shipment written by a successful batch.
type Assigned struct {
	ShipmentID id.ShipmentID    `json:"shipment_id"`
	VehicleID  id.VehicleID     `json:"vehicle_id"`
	Status     lifecycle.Status `json:"status"`
}

// BulkResult is returned when every shipment in a batch was assigned.
type BulkResult struct {
	DriverID  id.DriverID `json:"driver_id"`
	Shipments []Assigned  `json:"shipments"`
}

// BulkValidationError rejects a whole batch. It lists an outcome for every
// requested shipment, passing ones included, so callers can fix the batch in
// one round trip.
type BulkValidationError struct {
	Outcomes []Outcome
	err      *dErrors.Error
}

func NewBulkValidationError(outcomes []Outcome) *BulkValidationError {
	failed := 0
	for _, o := range outcomes {
		if !o.Passed {
			failed++
		}
	}
	return &BulkValidationError{
		Outcomes: outcomes,
		err: dErrors.New(dErrors.CodeBulkValidationFailed,
			fmt.Sprintf("%d of %d shipments failed validation; nothing was assigned", failed, len(outcomes))),
	}
}

func (e *BulkValidationError) Error() string {
	return e.err.Error()
}

func (e *BulkValidationError) Unwrap() error {
	return e.err
}

// Failed returns the failing outcomes in request order.
func (e *BulkValidationError) Failed() []Outcome {
	var out []Outcome
	for _, o := range e.Outcomes {
		if !o.Passed {
			out = append(out, o)
		}
	}
	return out
}

func (e *BulkValidationError) Details() any {
	return map[string]any{"outcomes": e.Outcomes}
}
