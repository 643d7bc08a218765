package handler

import (
	"strings"

	"medcourier/internal/assignment/service"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

const maxReasonLength = 1000

// BulkAssignRequest assigns a batch of shipments to one driver.
type BulkAssignRequest struct {
	DriverID    string   `json:"driver_id"`
	ShipmentIDs []string `json:"shipment_ids"`

	driverID    id.DriverID
	shipmentIDs []id.ShipmentID
}

func (r *BulkAssignRequest) Validate() error {
	driverID, err := id.ParseDriverID(strings.TrimSpace(r.DriverID))
	if err != nil {
		return err
	}
	if len(r.ShipmentIDs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "shipment_ids is required")
	}
	if len(r.ShipmentIDs) > service.MaxBatchSize {
		return dErrors.Newf(dErrors.CodeValidation, "shipment_ids may hold at most %d entries", service.MaxBatchSize)
	}
	ids := make([]id.ShipmentID, 0, len(r.ShipmentIDs))
	for _, raw := range r.ShipmentIDs {
		shipmentID, err := id.ParseShipmentID(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		ids = append(ids, shipmentID)
	}
	r.driverID = driverID
	r.shipmentIDs = ids
	return nil
}

// AssignRequest assigns the shipment named in the path.
type AssignRequest struct {
	DriverID string `json:"driver_id"`

	driverID id.DriverID
}

func (r *AssignRequest) Validate() error {
	driverID, err := id.ParseDriverID(strings.TrimSpace(r.DriverID))
	if err != nil {
		return err
	}
	r.driverID = driverID
	return nil
}

// UnassignRequest releases the shipment named in the path.
type UnassignRequest struct {
	Reason string `json:"reason"`
}

func (r *UnassignRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}
