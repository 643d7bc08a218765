package models

import (
	"time"

	"medcourier/internal/custody"
	dErrors "medcourier/pkg/domain-errors"
)

// Capture is the validated proof of custody for one checkpoint.
type Capture struct {
	Signature   custody.Signature
	Temperature *float64
	ActorID     string
}

// buildCheckpoint validates the capture against the shipment's requirement and
// band. Out-of-band readings are kept and flagged.
func (s *Shipment) buildCheckpoint(c Capture, now time.Time) (Checkpoint, error) {
	if err := custody.ValidateSignature(c.Signature); err != nil {
		return Checkpoint{}, err
	}
	reading, err := custody.ValidateTemperatureReading(
		c.Temperature, s.TemperatureKind, custody.RequiresReading(s.TemperatureKind), s.TemperatureBand())
	if err != nil {
		return Checkpoint{}, err
	}
	cp := Checkpoint{
		SignerName:                 c.Signature.SignerName,
		SignatureUnavailableReason: c.Signature.UnavailableReason,
		Temperature:                reading.Value,
		TemperatureException:       reading.Exception,
		RecordedBy:                 c.ActorID,
		RecordedAt:                 &now,
	}
	if c.Signature.HasArtifact() {
		cp.SignatureBlob = c.Signature.Blob
		cp.SignatureDigest = custody.SignatureDigest(c.Signature.Blob)
	}
	return cp, nil
}

// RecordPickup validates the capture and the move to PICKED_UP, then applies
// both. On error the shipment is unchanged.
func (s *Shipment) RecordPickup(c Capture, now time.Time) error {
	if !s.IsAssigned() {
		return dErrors.New(dErrors.CodeValidation, "shipment has no assigned driver")
	}
	if err := s.CanTransition(pickedUp); err != nil {
		return err
	}
	cp, err := s.buildCheckpoint(c, now)
	if err != nil {
		return err
	}
	s.Pickup = cp
	s.ApplyTransition(pickedUp, now)
	return nil
}

// RecordDelivery validates the capture and the move to DELIVERED, then
// applies both.
func (s *Shipment) RecordDelivery(c Capture, now time.Time) error {
	if !s.Pickup.IsRecorded() {
		return dErrors.New(dErrors.CodeValidation, "pickup has not been recorded")
	}
	if err := s.CanTransition(delivered); err != nil {
		return err
	}
	cp, err := s.buildCheckpoint(c, now)
	if err != nil {
		return err
	}
	s.Delivery = cp
	s.ApplyTransition(delivered, now)
	return nil
}
