package handler

import (
	"medcourier/internal/shipment/models"
	id "medcourier/pkg/domain"
)

// ListResponse is the body of GET /shipments.
type ListResponse struct {
	Shipments []*models.Shipment `json:"shipments"`
	Count     int                `json:"count"`
}

// EventsResponse is the body of GET /shipments/{id}/events.
type EventsResponse struct {
	ShipmentID id.ShipmentID           `json:"shipment_id"`
	Events     []*models.TrackingEvent `json:"events"`
}
