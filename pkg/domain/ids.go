package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "medcourier/pkg/domain-errors"
)

// Typed identifiers. Each wraps a UUID so a DriverID can never be passed where
// a VehicleID is expected.
type (
	ShipmentID       uuid.UUID
	DriverID         uuid.UUID
	VehicleID        uuid.UUID
	ShipperID        uuid.UUID
	ShiftID          uuid.UUID
	MaintenanceLogID uuid.UUID
	EventID          uuid.UUID
)

const maxIDLength = 64

func parseUUID(kind, s string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be empty")
	}
	if len(s) > maxIDLength {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is too long")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" cannot be nil")
	}
	return u, nil
}

func ParseShipmentID(s string) (ShipmentID, error) {
	u, err := parseUUID("shipment id", s)
	return ShipmentID(u), err
}

func ParseDriverID(s string) (DriverID, error) {
	u, err := parseUUID("driver id", s)
	return DriverID(u), err
}

func ParseVehicleID(s string) (VehicleID, error) {
	u, err := parseUUID("vehicle id", s)
	return VehicleID(u), err
}

func ParseShipperID(s string) (ShipperID, error) {
	u, err := parseUUID("shipper id", s)
	return ShipperID(u), err
}

func ParseShiftID(s string) (ShiftID, error) {
	u, err := parseUUID("shift id", s)
	return ShiftID(u), err
}

func NewShipmentID() ShipmentID             { return ShipmentID(uuid.New()) }
func NewDriverID() DriverID                 { return DriverID(uuid.New()) }
func NewVehicleID() VehicleID               { return VehicleID(uuid.New()) }
func NewShipperID() ShipperID               { return ShipperID(uuid.New()) }
func NewShiftID() ShiftID                   { return ShiftID(uuid.New()) }
func NewMaintenanceLogID() MaintenanceLogID { return MaintenanceLogID(uuid.New()) }
func NewEventID() EventID                   { return EventID(uuid.New()) }

func (id ShipmentID) String() string       { return uuid.UUID(id).String() }
func (id DriverID) String() string         { return uuid.UUID(id).String() }
func (id VehicleID) String() string        { return uuid.UUID(id).String() }
func (id ShipperID) String() string        { return uuid.UUID(id).String() }
func (id ShiftID) String() string          { return uuid.UUID(id).String() }
func (id MaintenanceLogID) String() string { return uuid.UUID(id).String() }
func (id EventID) String() string          { return uuid.UUID(id).String() }

func (id ShipmentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DriverID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id VehicleID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ShipperID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ShiftID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

func (id ShipmentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id DriverID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }
func (id VehicleID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ShipperID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id ShiftID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id MaintenanceLogID) MarshalText() ([]byte, error) {
	return uuid.UUID(id).MarshalText()
}

// TrackingCode is the shipper-facing unique shipment code. It is opaque to the
// lifecycle engine; generation is delegated to a CodeGenerator.
type TrackingCode string

func (c TrackingCode) String() string { return string(c) }
