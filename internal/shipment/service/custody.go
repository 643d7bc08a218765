package service

import (
	"context"
	"strconv"
	"time"

	"medcourier/internal/shipment/lifecycle"
	"medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/requestcontext"
)

const (
	checkpointPickup   = "pickup"
	checkpointDelivery = "delivery"
)

// RecordPickup validates the pickup capture and moves the shipment to
// PICKED_UP. Only the assigned driver or an administrator may record it.
func (s *Service) RecordPickup(ctx context.Context, shipmentID id.ShipmentID, c models.Capture) (*models.Shipment, error) {
	return s.recordCheckpoint(ctx, shipmentID, c, checkpointPickup)
}

// RecordDelivery validates the delivery capture and moves the shipment to
// DELIVERED. The pickup must already be recorded.
func (s *Service) RecordDelivery(ctx context.Context, shipmentID id.ShipmentID, c models.Capture) (*models.Shipment, error) {
	return s.recordCheckpoint(ctx, shipmentID, c, checkpointDelivery)
}

func (s *Service) recordCheckpoint(ctx context.Context, shipmentID id.ShipmentID, c models.Capture, checkpoint string) (sh *models.Shipment, err error) {
	ctx, span := startSpan(ctx, "shipment.Record_"+checkpoint, shipmentID)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	now := requestcontext.Now(ctx)
	actor := requestcontext.Actor(ctx)
	c.ActorID = actor.ID

	var from lifecycle.Status
	var cp models.Checkpoint
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		current, err := st.Shipments.FindByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		if err := authorizeCustody(actor, current); err != nil {
			return err
		}
		from = current.Status

		eventType := models.EventPickupRecorded
		if checkpoint == checkpointPickup {
			err = current.RecordPickup(c, now)
			cp = current.Pickup
		} else {
			eventType = models.EventDeliveryRecorded
			err = current.RecordDelivery(c, now)
			cp = current.Delivery
		}
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeValidation) {
				s.incTransitionRejected(from)
			}
			return err
		}

		if err := s.audit.emitExcursion(ctx, current, checkpoint, cp); err != nil {
			return err
		}
		if err := st.Shipments.Update(ctx, current); err != nil {
			return err
		}
		ev := models.NewTrackingEvent(current, eventType, from, actor.ID, "", now).
			WithMetadata("signature_digest", cp.SignatureDigest).
			WithMetadata("signer_name", cp.SignerName).
			WithMetadata("signature_unavailable_reason", cp.SignatureUnavailableReason)
		if cp.Temperature != nil {
			ev.WithMetadata("temperature_c", formatCelsius(*cp.Temperature))
		}
		if cp.TemperatureException {
			ev.WithMetadata("temperature_exception", "true")
		}
		if err := st.Events.Append(ctx, ev); err != nil {
			return err
		}
		sh = current
		return nil
	})
	if err != nil {
		return nil, wrapShipmentErr(err, "failed to record "+checkpoint)
	}

	if cp.TemperatureException {
		s.logger.WarnContext(ctx, "temperature excursion recorded",
			"request_id", requestcontext.RequestID(ctx),
			"shipment_id", sh.ID,
			"checkpoint", checkpoint,
		)
		if s.metrics != nil {
			s.metrics.IncTemperatureException(checkpoint)
		}
	}
	s.recordTransition(ctx, sh, from, start)
	return sh, nil
}

// authorizeCustody allows the assigned driver and administrators.
func authorizeCustody(actor requestcontext.ActorInfo, sh *models.Shipment) error {
	switch actor.Role {
	case requestcontext.RoleAdmin:
		return nil
	case requestcontext.RoleDriver:
		if sh.DriverID != nil && sh.DriverID.String() == actor.ID {
			return nil
		}
		return dErrors.New(dErrors.CodeForbidden, "only the assigned driver may record custody")
	default:
		return dErrors.New(dErrors.CodeForbidden, "custody may only be recorded by the assigned driver")
	}
}

func formatCelsius(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64) + "C"
}
