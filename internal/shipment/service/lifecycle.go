package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"medcourier/internal/shipment/fieldguard"
	"medcourier/internal/shipment/lifecycle"
	"medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/audit"
	"medcourier/pkg/platform/sentinel"
	"medcourier/pkg/requestcontext"
)

const maxCodeAttempts = 3

// Create stores a new shipment in status NEW with a fresh tracking code.
// Shippers may only create shipments for themselves.
func (s *Service) Create(ctx context.Context, d models.Draft) (*models.Shipment, error) {
	actor := requestcontext.Actor(ctx)
	if actor.Role == requestcontext.RoleShipper && actor.ID != d.ShipperID.String() {
		return nil, dErrors.New(dErrors.CodeForbidden, "shippers may only create their own shipments")
	}
	now := requestcontext.Now(ctx)

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate tracking code")
		}
		sh, err := models.NewShipment(id.NewShipmentID(), code, d, now)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return nil, dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return nil, err
		}

		err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
			if err := st.Shipments.Create(ctx, sh); err != nil {
				return err
			}
			return st.Events.Append(ctx, models.NewTrackingEvent(sh, models.EventCreated, "", actor.ID, "", now))
		})
		if errors.Is(err, sentinel.ErrAlreadyUsed) {
			s.logger.WarnContext(ctx, "tracking code collision, retrying",
				"request_id", requestcontext.RequestID(ctx),
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return nil, wrapShipmentErr(err, "failed to create shipment")
		}

		s.logger.InfoContext(ctx, "shipment created",
			"request_id", requestcontext.RequestID(ctx),
			"shipment_id", sh.ID,
			"tracking_code", sh.TrackingCode,
		)
		if s.metrics != nil {
			s.metrics.IncShipmentCreated()
		}
		return sh, nil
	}
	return nil, dErrors.New(dErrors.CodeInternal, "failed to allocate a unique tracking code")
}

// Update applies a field patch and an optional status change. The field guard
// runs first against the stored status, so a restricted edit fails even when
// the same request also asks for a legal status change.
func (s *Service) Update(ctx context.Context, shipmentID id.ShipmentID, p models.Patch) (sh *models.Shipment, err error) {
	ctx, span := startSpan(ctx, "shipment.Update", shipmentID)
	defer func() { endSpan(span, err) }()

	if p.IsEmpty() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "no fields to update")
	}
	if err := authorizePatch(requestcontext.Actor(ctx), p); err != nil {
		return nil, err
	}
	start := time.Now()
	now := requestcontext.Now(ctx)
	actorID := requestcontext.Actor(ctx).ID

	var from lifecycle.Status
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		current, err := st.Shipments.FindByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		from = current.Status

		if err := current.CanApplyPatch(p); err != nil {
			var rfe *fieldguard.RestrictedFieldsError
			if errors.As(err, &rfe) {
				s.audit.emitRestrictedEdit(ctx, current, rfe)
				s.incRestrictedEdit()
			}
			return err
		}
		if p.Status != nil {
			if err := current.CanTransitionDirect(*p.Status); err != nil {
				s.incTransitionRejected(from)
				return err
			}
		}
		if err := current.ApplyPatch(p, now); err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvariantViolation) {
				return dErrors.New(dErrors.CodeValidation, err.Error())
			}
			return err
		}
		if p.Status != nil {
			current.ApplyTransition(*p.Status, now)
		}

		if err := st.Shipments.Update(ctx, current); err != nil {
			return err
		}
		if fields := attributeFields(p); fields != "" {
			ev := models.NewTrackingEvent(current, models.EventUpdated, "", actorID, "", now).
				WithMetadata("fields", fields)
			if err := st.Events.Append(ctx, ev); err != nil {
				return err
			}
		}
		if p.Status != nil {
			if err := st.Events.Append(ctx, models.NewTrackingEvent(current, models.EventStatusChanged, from, actorID, "", now)); err != nil {
				return err
			}
		}
		sh = current
		return nil
	})
	if err != nil {
		return nil, wrapShipmentErr(err, "failed to update shipment")
	}

	if p.Status != nil {
		s.recordTransition(ctx, sh, from, start)
	}
	return sh, nil
}

// Transition moves a shipment to the requested status. Custody statuses are
// reached through RecordPickup and RecordDelivery instead.
func (s *Service) Transition(ctx context.Context, shipmentID id.ShipmentID, to lifecycle.Status, reason string) (sh *models.Shipment, err error) {
	ctx, span := startSpan(ctx, "shipment.Transition", shipmentID)
	span.SetAttributes(attribute.String("shipment.requested_status", string(to)))
	defer func() { endSpan(span, err) }()

	if !to.IsValid() {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unknown status %q", to)
	}
	start := time.Now()
	now := requestcontext.Now(ctx)
	actorID := requestcontext.Actor(ctx).ID

	var from lifecycle.Status
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		current, err := st.Shipments.FindByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		from = current.Status
		if err := current.CanTransitionDirect(to); err != nil {
			s.incTransitionRejected(from)
			return err
		}
		current.ApplyTransition(to, now)
		if err := st.Shipments.Update(ctx, current); err != nil {
			return err
		}
		ev := models.NewTrackingEvent(current, models.EventStatusChanged, from, actorID, strings.TrimSpace(reason), now)
		if err := st.Events.Append(ctx, ev); err != nil {
			return err
		}
		sh = current
		return nil
	})
	if err != nil {
		return nil, wrapShipmentErr(err, "failed to change shipment status")
	}

	s.recordTransition(ctx, sh, from, start)
	return sh, nil
}

// Cancel moves a pre-pickup shipment to CANCELLED.
func (s *Service) Cancel(ctx context.Context, shipmentID id.ShipmentID, reason string) (*models.Shipment, error) {
	return s.Transition(ctx, shipmentID, lifecycle.StatusCancelled, reason)
}

// Deny moves a pre-pickup shipment to DENIED.
func (s *Service) Deny(ctx context.Context, shipmentID id.ShipmentID, reason string) (*models.Shipment, error) {
	return s.Transition(ctx, shipmentID, lifecycle.StatusDenied, reason)
}

// HardDelete removes a cancelled shipment. It requires an admin and an
// explicit force flag. The compliance record is written in the same
// transaction before the row goes; tracking events are kept.
func (s *Service) HardDelete(ctx context.Context, shipmentID id.ShipmentID, force bool, reason string) (err error) {
	ctx, span := startSpan(ctx, "shipment.HardDelete", shipmentID)
	defer func() { endSpan(span, err) }()

	if requestcontext.Actor(ctx).Role != requestcontext.RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "only administrators may delete shipments")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return dErrors.New(dErrors.CodeValidation, "a reason is required to delete a shipment")
	}

	var deleted *models.Shipment
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		sh, err := st.Shipments.FindByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		if err := sh.CanHardDelete(force); err != nil {
			return err
		}
		if err := s.audit.emitCompliance(ctx, sh, audit.EventShipmentHardDeleted, "forced", reason); err != nil {
			return err
		}
		if err := st.Shipments.Delete(ctx, shipmentID); err != nil {
			return err
		}
		deleted = sh
		return nil
	})
	if err != nil {
		return wrapShipmentErr(err, "failed to delete shipment")
	}

	s.logger.WarnContext(ctx, "shipment hard deleted",
		"request_id", requestcontext.RequestID(ctx),
		"shipment_id", deleted.ID,
		"tracking_code", deleted.TrackingCode,
		"actor_id", requestcontext.Actor(ctx).ID,
	)
	if s.metrics != nil {
		s.metrics.IncHardDelete()
	}
	return nil
}

// authorizePatch keeps pricing and status changes with administrators. The
// one exception is a shipper cancelling their own load, which /cancel allows.
func authorizePatch(actor requestcontext.ActorInfo, p models.Patch) error {
	if actor.Role == requestcontext.RoleAdmin {
		return nil
	}
	var denied []string
	if p.QuoteAmountCents != nil {
		denied = append(denied, string(fieldguard.FieldQuoteAmount))
	}
	if p.DriverQuoteAmountCents != nil {
		denied = append(denied, string(fieldguard.FieldDriverQuoteAmount))
	}
	if p.Status != nil && !(actor.Role == requestcontext.RoleShipper && *p.Status == lifecycle.StatusCancelled) {
		denied = append(denied, string(fieldguard.FieldStatus))
	}
	if len(denied) > 0 {
		return dErrors.Newf(dErrors.CodeForbidden, "only administrators may change %s", strings.Join(denied, ", "))
	}
	return nil
}

// attributeFields lists the non-status fields a patch touches.
func attributeFields(p models.Patch) string {
	var names []string
	for _, f := range p.Fields() {
		if f != fieldguard.FieldStatus {
			names = append(names, string(f))
		}
	}
	return strings.Join(names, ",")
}

func (s *Service) recordTransition(ctx context.Context, sh *models.Shipment, from lifecycle.Status, start time.Time) {
	s.logger.InfoContext(ctx, "shipment status changed",
		"request_id", requestcontext.RequestID(ctx),
		"shipment_id", sh.ID,
		"from", from,
		"to", sh.Status,
	)
	if s.metrics != nil {
		s.metrics.IncTransition(string(from), string(sh.Status))
		s.metrics.ObserveTransition(start)
	}
}

func (s *Service) incTransitionRejected(from lifecycle.Status) {
	if s.metrics != nil {
		s.metrics.IncTransitionRejected(string(from))
	}
}

func (s *Service) incRestrictedEdit() {
	if s.metrics != nil {
		s.metrics.IncRestrictedEdit()
	}
}
