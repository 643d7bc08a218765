// Package ports defines the shipment persistence boundary. The interfaces
// live here because the shipment, assignment and shift services all consume
// them.
package ports

import (
	"context"

	"medcourier/internal/shipment/lifecycle"
	"medcourier/internal/shipment/models"
	id "medcourier/pkg/domain"
	"medcourier/pkg/platform/audit"
)

// Filter narrows List. Zero fields do not filter.
type Filter struct {
	ShipperID *id.ShipperID
	DriverID  *id.DriverID
	Statuses  []lifecycle.Status
	Limit     int
}

// ShipmentStore persists shipment aggregates. Lookups return
// sentinel.ErrNotFound for unknown ids.
type ShipmentStore interface {
	Create(ctx context.Context, s *models.Shipment) error
	FindByID(ctx context.Context, shipmentID id.ShipmentID) (*models.Shipment, error)
	FindByTrackingCode(ctx context.Context, code id.TrackingCode) (*models.Shipment, error)
	List(ctx context.Context, f Filter) ([]*models.Shipment, error)
	Update(ctx context.Context, s *models.Shipment) error
	Delete(ctx context.Context, shipmentID id.ShipmentID) error

	// FindByIDForUpdate locks the row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, shipmentID id.ShipmentID) (*models.Shipment, error)

	// FindByIDsForUpdate locks every found row in id order. Unknown ids are
	// omitted from the result rather than failing the call.
	FindByIDsForUpdate(ctx context.Context, ids []id.ShipmentID) ([]*models.Shipment, error)

	// CountInCustody counts the driver's shipments that are PICKED_UP or IN_TRANSIT.
	CountInCustody(ctx context.Context, driverID id.DriverID) (int, error)
}

// EventStore is the append-only tracking event log.
type EventStore interface {
	Append(ctx context.Context, e *models.TrackingEvent) error
	ListByShipment(ctx context.Context, shipmentID id.ShipmentID) ([]*models.TrackingEvent, error)
}

// Stores groups the stores a transaction hands to its callback.
type Stores struct {
	Shipments ShipmentStore
	Events    EventStore
}

// Tx runs fn inside one transaction. The ctx passed to fn carries the
// transaction so other participants (the audit outbox) join it. Any error
// from fn rolls back everything fn wrote.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// AuditPublisher emits compliance audit events with fail-closed semantics.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// SecurityPublisher emits policy-violation events. Emission is best effort
// and never fails the caller.
type SecurityPublisher interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}
