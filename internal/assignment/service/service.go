// Package service assigns shipments to drivers. A batch is all or nothing:
// every shipment is validated under row locks and nothing is written unless
// all of them pass.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	assignmentmetrics "medcourier/internal/assignment/metrics"
	"medcourier/internal/assignment/models"
	"medcourier/internal/eligibility"
	shipmentmodels "medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/audit"
	"medcourier/pkg/platform/sentinel"
	"medcourier/pkg/requestcontext"
)

const (
	// MaxBatchSize bounds one bulk request.
	MaxBatchSize = 100

	evaluationConcurrency = 8
	subjectShipment       = "shipment"
)

var tracer = otel.Tracer("medcourier/internal/assignment/service")

// DriverSource loads the eligibility input for a driver. Implementations
// must read through the ctx so a Postgres source joins the batch transaction.
type DriverSource interface {
	DriverSnapshot(ctx context.Context, driverID id.DriverID) (eligibility.DriverSnapshot, error)
}

type Service struct {
	tx      ports.Tx
	drivers DriverSource
	checker *eligibility.Checker
	logger  *slog.Logger
	metrics *assignmentmetrics.Metrics
	auditor ports.AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *assignmentmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithChecker(c *eligibility.Checker) Option {
	return func(s *Service) {
		s.checker = c
	}
}

func New(tx ports.Tx, drivers DriverSource, opts ...Option) *Service {
	s := &Service{tx: tx, drivers: drivers}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.checker == nil {
		s.checker = eligibility.NewChecker(nil)
	}
	return s
}

// Assign assigns one shipment. It is a batch of one.
func (s *Service) Assign(ctx context.Context, shipmentID id.ShipmentID, driverID id.DriverID) (*models.BulkResult, error) {
	return s.BulkAssign(ctx, driverID, []id.ShipmentID{shipmentID})
}

// BulkAssign assigns every shipment to driverID or none of them. On a
// validation failure the error is a *models.BulkValidationError listing an
// outcome per requested shipment.
func (s *Service) BulkAssign(ctx context.Context, driverID id.DriverID, shipmentIDs []id.ShipmentID) (result *models.BulkResult, err error) {
	ctx, span := tracer.Start(ctx, "assignment.BulkAssign", trace.WithAttributes(
		attribute.String("driver.id", driverID.String()),
		attribute.Int("assignment.batch_size", len(shipmentIDs)),
	))
	start := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	if requestcontext.Actor(ctx).Role != requestcontext.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators may assign shipments")
	}
	ids, err := normalizeBatch(shipmentIDs)
	if err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	actorID := requestcontext.Actor(ctx).ID

	var outcomes []models.Outcome
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		driver, err := s.drivers.DriverSnapshot(ctx, driverID)
		if err != nil {
			return err
		}
		locked, err := st.Shipments.FindByIDsForUpdate(ctx, ids)
		if err != nil {
			return err
		}
		byID := make(map[id.ShipmentID]*shipmentmodels.Shipment, len(locked))
		for _, sh := range locked {
			byID[sh.ID] = sh
		}

		outcomes, err = s.evaluate(ctx, driver, ids, byID, now)
		if err != nil {
			return err
		}
		for _, o := range outcomes {
			if !o.Passed {
				return models.NewBulkValidationError(outcomes)
			}
		}

		result = &models.BulkResult{DriverID: driverID, Shipments: make([]models.Assigned, 0, len(ids))}
		for _, o := range outcomes {
			sh := byID[o.ShipmentID]
			from := sh.Status
			if err := s.emit(ctx, sh.ID.String(), audit.EventShipmentsAssigned, "assigned",
				"driver "+driverID.String()+" vehicle "+o.VehicleID.String()); err != nil {
				return err
			}
			sh.ApplyAssignment(driverID, o.VehicleID, now)
			if err := st.Shipments.Update(ctx, sh); err != nil {
				return err
			}
			ev := shipmentmodels.NewTrackingEvent(sh, shipmentmodels.EventAssigned, from, actorID, "", now).
				WithMetadata("driver_id", driverID.String()).
				WithMetadata("vehicle_id", o.VehicleID.String())
			if err := st.Events.Append(ctx, ev); err != nil {
				return err
			}
			result.Shipments = append(result.Shipments, models.Assigned{
				ShipmentID: sh.ID,
				VehicleID:  o.VehicleID,
				Status:     sh.Status,
			})
		}
		return nil
	})

	var bve *models.BulkValidationError
	switch {
	case errors.As(err, &bve):
		s.recordRejection(ctx, driverID, bve)
		s.observe("rejected", len(ids), start)
		return nil, bve
	case err != nil:
		s.observe("error", len(ids), start)
		return nil, wrapAssignErr(err)
	}

	s.logger.InfoContext(ctx, "shipments assigned",
		"request_id", requestcontext.RequestID(ctx),
		"driver_id", driverID,
		"count", len(result.Shipments),
	)
	s.observe("committed", len(ids), start)
	if s.metrics != nil {
		s.metrics.AddAssigned(len(result.Shipments))
	}
	return result, nil
}

// evaluate checks every requested shipment in parallel. Checks are pure, so
// the only shared state is the outcomes slice, written at distinct indexes.
func (s *Service) evaluate(ctx context.Context, driver eligibility.DriverSnapshot, ids []id.ShipmentID,
	byID map[id.ShipmentID]*shipmentmodels.Shipment, now time.Time) ([]models.Outcome, error) {
	outcomes := make([]models.Outcome, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(evaluationConcurrency)
	for i, shipmentID := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			outcomes[i] = s.check(driver, shipmentID, byID[shipmentID], now)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "assignment evaluation aborted")
	}
	return outcomes, nil
}

func (s *Service) check(driver eligibility.DriverSnapshot, shipmentID id.ShipmentID, sh *shipmentmodels.Shipment, now time.Time) models.Outcome {
	out := models.Outcome{ShipmentID: shipmentID}
	if sh == nil {
		out.Reason = models.ReasonShipmentNotFound
		out.Message = "shipment not found"
		return out
	}
	if err := sh.CanAssign(); err != nil {
		out.Reason = models.ReasonNotAssignable
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			out.Reason = models.ReasonAlreadyAssigned
		}
		out.Message = err.Error()
		return out
	}
	res := s.checker.Check(driver, eligibility.Requirements{
		TemperatureKind:  sh.TemperatureKind,
		SpecimenCategory: sh.SpecimenCategory,
		ReadyTime:        sh.ReadyTime,
		DeliveryDeadline: sh.DeliveryDeadline,
	}, now)
	if !res.Eligible {
		out.Reason = string(res.Reason)
		out.Message = res.Message
		return out
	}
	out.Passed = true
	out.VehicleID = res.Vehicle.VehicleID
	return out
}

// Unassign releases a shipment's driver and vehicle before pickup. The status
// is left as is; a SCHEDULED shipment without a driver can be reassigned.
func (s *Service) Unassign(ctx context.Context, shipmentID id.ShipmentID, reason string) (sh *shipmentmodels.Shipment, err error) {
	ctx, span := tracer.Start(ctx, "assignment.Unassign", trace.WithAttributes(
		attribute.String("shipment.id", shipmentID.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	if requestcontext.Actor(ctx).Role != requestcontext.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "only administrators may unassign shipments")
	}
	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context, st ports.Stores) error {
		current, err := st.Shipments.FindByIDForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		if err := current.CanUnassign(); err != nil {
			return err
		}
		previous := current.DriverID.String()
		if err := s.emit(ctx, shipmentID.String(), audit.EventShipmentUnassigned, "unassigned", reason); err != nil {
			return err
		}
		current.ApplyUnassignment(now)
		if err := st.Shipments.Update(ctx, current); err != nil {
			return err
		}
		ev := shipmentmodels.NewTrackingEvent(current, shipmentmodels.EventUnassigned, current.Status,
			requestcontext.Actor(ctx).ID, reason, now).WithMetadata("driver_id", previous)
		if err := st.Events.Append(ctx, ev); err != nil {
			return err
		}
		sh = current
		return nil
	})
	if err != nil {
		return nil, wrapAssignErr(err)
	}
	s.logger.InfoContext(ctx, "shipment unassigned",
		"request_id", requestcontext.RequestID(ctx),
		"shipment_id", shipmentID,
	)
	if s.metrics != nil {
		s.metrics.IncUnassigned()
	}
	return sh, nil
}

// recordRejection audits a rejected batch once the rolled-back transaction is
// gone. A failure here is logged; the caller already has its answer.
func (s *Service) recordRejection(ctx context.Context, driverID id.DriverID, bve *models.BulkValidationError) {
	failed := bve.Failed()
	s.logger.WarnContext(ctx, "bulk assignment rejected",
		"request_id", requestcontext.RequestID(ctx),
		"driver_id", driverID,
		"requested", len(bve.Outcomes),
		"failed", len(failed),
	)
	if s.metrics != nil {
		for _, o := range failed {
			s.metrics.IncRejection(o.Reason)
		}
	}
	for _, o := range failed {
		if err := s.emit(ctx, o.ShipmentID.String(), audit.EventBulkAssignmentRejected, o.Reason, o.Message); err != nil {
			s.logger.ErrorContext(ctx, "failed to audit rejected assignment",
				"request_id", requestcontext.RequestID(ctx),
				"shipment_id", o.ShipmentID,
				"error", err,
			)
		}
	}
}

func (s *Service) emit(ctx context.Context, subjectID string, action audit.AuditEvent, decision, reason string) error {
	if s.auditor == nil {
		return nil
	}
	err := s.auditor.Emit(ctx, audit.ComplianceEvent{
		Timestamp:   requestcontext.Now(ctx),
		SubjectType: subjectShipment,
		SubjectID:   subjectID,
		Action:      action,
		Decision:    decision,
		Reason:      reason,
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx).ID,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record compliance audit event")
	}
	return nil
}

func (s *Service) observe(outcome string, size int, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveBatch(outcome, size, start)
	}
}

// normalizeBatch rejects empty and oversized batches and drops duplicate ids,
// keeping first-seen order.
func normalizeBatch(ids []id.ShipmentID) ([]id.ShipmentID, error) {
	if len(ids) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one shipment is required")
	}
	seen := make(map[id.ShipmentID]bool, len(ids))
	out := make([]id.ShipmentID, 0, len(ids))
	for _, x := range ids {
		if x.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, "shipment id cannot be empty")
		}
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	if len(out) > MaxBatchSize {
		return nil, dErrors.Newf(dErrors.CodeValidation, "a batch may hold at most %d shipments", MaxBatchSize)
	}
	return out, nil
}

func wrapAssignErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "driver or shipment not found")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign shipments")
	}
}
