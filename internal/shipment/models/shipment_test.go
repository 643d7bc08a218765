package models

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medcourier/internal/custody"
	"medcourier/internal/shipment/fieldguard"
	"medcourier/internal/shipment/lifecycle"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

type ShipmentSuite struct {
	suite.Suite
	now time.Time
}

func TestShipmentSuite(t *testing.T) {
	suite.Run(t, new(ShipmentSuite))
}

func (s *ShipmentSuite) SetupTest() {
	s.now = time.Date(2025, 5, 10, 8, 0, 0, 0, time.UTC)
}

func (s *ShipmentSuite) newShipment(kind id.TemperatureKind) *Shipment {
	sh, err := NewShipment(id.NewShipmentID(), "MC-TEST-1", Draft{
		ShipperID:            id.NewShipperID(),
		CommodityDescription: "blood panels",
		SpecimenCategory:     id.SpecimenUN3373,
		TemperatureKind:      kind,
	}, s.now)
	s.Require().NoError(err)
	return sh
}

func (s *ShipmentSuite) signature() custody.Signature {
	return custody.Signature{Blob: bytes.Repeat([]byte{0x89}, custody.MinSignatureBytes), SignerName: "R. Okafor"}
}

func ptr[T any](v T) *T { return &v }

func (s *ShipmentSuite) TestNewShipment() {
	s.Run("starts NEW and unassigned", func() {
		sh := s.newShipment(id.TemperatureAmbient)
		s.Equal(lifecycle.StatusNew, sh.Status)
		s.Equal(PriorityStandard, sh.Priority)
		s.False(sh.IsAssigned())
		s.False(sh.IsLocked())
	})

	s.Run("rejects missing shipper", func() {
		_, err := NewShipment(id.NewShipmentID(), "MC-1", Draft{CommodityDescription: "x", TemperatureKind: id.TemperatureAmbient}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects inverted band", func() {
		_, err := NewShipment(id.NewShipmentID(), "MC-1", Draft{
			ShipperID:            id.NewShipperID(),
			CommodityDescription: "x",
			TemperatureKind:      id.TemperatureRefrigerated,
			TemperatureMin:       ptr(8.0),
			TemperatureMax:       ptr(2.0),
		}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func (s *ShipmentSuite) TestAssignment() {
	sh := s.newShipment(id.TemperatureAmbient)

	s.Run("NEW is not assignable", func() {
		s.True(dErrors.HasCode(sh.CanAssign(), dErrors.CodeValidation))
	})

	sh.ApplyTransition(lifecycle.StatusQuoteAccepted, s.now)
	s.Require().NoError(sh.CanAssign())
	s.True(sh.ApplyAssignment(id.NewDriverID(), id.NewVehicleID(), s.now))
	s.Equal(lifecycle.StatusScheduled, sh.Status)

	s.Run("already assigned is a conflict", func() {
		s.True(dErrors.HasCode(sh.CanAssign(), dErrors.CodeConflict))
	})

	s.Run("unassign before pickup", func() {
		s.Require().NoError(sh.CanUnassign())
		sh.ApplyUnassignment(s.now)
		s.False(sh.IsAssigned())
		s.Nil(sh.VehicleID)
	})
}

func (s *ShipmentSuite) TestPatchGuard() {
	sh := s.newShipment(id.TemperatureAmbient)
	sh.ApplyTransition(lifecycle.StatusPickedUp, s.now)

	s.Run("locked field with legal status change is rejected for the field", func() {
		p := Patch{Priority: ptr(PriorityStat), Status: ptr(lifecycle.StatusInTransit)}
		err := sh.CanApplyPatch(p)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeRestrictedField))
	})

	s.Run("notes stay editable", func() {
		p := Patch{Notes: ptr("left at dock 3")}
		s.Require().NoError(sh.CanApplyPatch(p))
		s.Require().NoError(sh.ApplyPatch(p, s.now))
		s.Equal("left at dock 3", sh.Notes)
	})

	s.Run("unknown keys are listed", func() {
		p := Patch{Unknown: []string{"internal_cost"}}
		s.Equal([]fieldguard.Field{"internal_cost"}, p.Fields())
		s.Error(sh.CanApplyPatch(p))
	})
}

func (s *ShipmentSuite) TestApplyPatchIsAtomic() {
	sh := s.newShipment(id.TemperatureAmbient)
	err := sh.ApplyPatch(Patch{
		PONumber:             ptr("PO-1"),
		CommodityDescription: ptr(""),
	}, s.now)
	s.Require().Error(err)
	s.Empty(sh.PONumber)
	s.Equal("blood panels", sh.CommodityDescription)
}

func (s *ShipmentSuite) TestRecordPickup() {
	s.Run("requires an assigned driver", func() {
		sh := s.newShipment(id.TemperatureAmbient)
		sh.ApplyTransition(lifecycle.StatusScheduled, s.now)
		err := sh.RecordPickup(Capture{Signature: s.signature()}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("temperature-controlled shipment needs a reading", func() {
		sh := s.newShipment(id.TemperatureRefrigerated)
		sh.ApplyTransition(lifecycle.StatusQuoteAccepted, s.now)
		sh.ApplyAssignment(id.NewDriverID(), id.NewVehicleID(), s.now)

		err := sh.RecordPickup(Capture{Signature: s.signature()}, s.now)
		s.Require().Error(err)
		s.Equal(lifecycle.StatusScheduled, sh.Status)
		s.False(sh.Pickup.IsRecorded())
	})

	s.Run("excursion is flagged, not rejected", func() {
		sh := s.newShipment(id.TemperatureRefrigerated)
		sh.ApplyTransition(lifecycle.StatusQuoteAccepted, s.now)
		sh.ApplyAssignment(id.NewDriverID(), id.NewVehicleID(), s.now)

		err := sh.RecordPickup(Capture{Signature: s.signature(), Temperature: ptr(11.0), ActorID: "driver-1"}, s.now)
		s.Require().NoError(err)
		s.Equal(lifecycle.StatusPickedUp, sh.Status)
		s.True(sh.Pickup.TemperatureException)
		s.NotEmpty(sh.Pickup.SignatureDigest)
		s.True(sh.IsLocked())
	})

	s.Run("delivery requires pickup", func() {
		sh := s.newShipment(id.TemperatureAmbient)
		sh.ApplyTransition(lifecycle.StatusInTransit, s.now)
		err := sh.RecordDelivery(Capture{Signature: custody.Signature{UnavailableReason: "recipient refused"}}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ShipmentSuite) TestHardDelete() {
	sh := s.newShipment(id.TemperatureAmbient)
	s.Error(sh.CanHardDelete(true))
	sh.ApplyTransition(lifecycle.StatusCancelled, s.now)
	s.Error(sh.CanHardDelete(false))
	s.NoError(sh.CanHardDelete(true))
}

func (s *ShipmentSuite) TestCanTransitionDirect() {
	sh := s.newShipment(id.TemperatureAmbient)
	sh.ApplyTransition(lifecycle.StatusScheduled, s.now)

	s.Run("custody statuses need a capture", func() {
		s.True(dErrors.HasCode(sh.CanTransitionDirect(lifecycle.StatusPickedUp), dErrors.CodeValidation))
		s.True(dErrors.HasCode(sh.CanTransitionDirect(lifecycle.StatusDelivered), dErrors.CodeValidation))
	})

	s.Run("cannot skip past an unrecorded pickup", func() {
		s.True(dErrors.HasCode(sh.CanTransitionDirect(lifecycle.StatusInTransit), dErrors.CodeValidation))
	})

	s.Run("side terminal is a plain transition", func() {
		s.NoError(sh.CanTransitionDirect(lifecycle.StatusCancelled))
	})

	s.Run("in transit after a recorded pickup", func() {
		sh.DriverID = ptr(id.NewDriverID())
		sh.VehicleID = ptr(id.NewVehicleID())
		s.Require().NoError(sh.RecordPickup(Capture{Signature: s.signature(), ActorID: "d"}, s.now))
		s.NoError(sh.CanTransitionDirect(lifecycle.StatusInTransit))
	})
}
