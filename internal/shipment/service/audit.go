package service

import (
	"context"
	"log/slog"
	"strings"

	"medcourier/internal/shipment/fieldguard"
	"medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/audit"
	"medcourier/pkg/requestcontext"
)

const subjectShipment = "shipment"

// auditEmitter centralises audit emission for the service. Compliance events
// fail the operation when they cannot be written; security events never do.
type auditEmitter struct {
	logger     *slog.Logger
	compliance ports.AuditPublisher
	security   ports.SecurityPublisher
}

func newAuditEmitter(logger *slog.Logger, compliance ports.AuditPublisher, security ports.SecurityPublisher) *auditEmitter {
	return &auditEmitter{logger: logger, compliance: compliance, security: security}
}

func (e *auditEmitter) emitCompliance(ctx context.Context, sh *models.Shipment, action audit.AuditEvent, decision, reason string) error {
	if e.compliance == nil {
		return nil
	}
	err := e.compliance.Emit(ctx, audit.ComplianceEvent{
		Timestamp:   requestcontext.Now(ctx),
		SubjectType: subjectShipment,
		SubjectID:   sh.ID.String(),
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

func (e *auditEmitter) emitExcursion(ctx context.Context, sh *models.Shipment, checkpoint string, cp models.Checkpoint) error {
	if !cp.TemperatureException {
		return nil
	}
	band := sh.TemperatureBand()
	reason := checkpoint + " reading outside configured band"
	if cp.Temperature != nil && band.Min != nil && band.Max != nil {
		reason = checkpoint + " reading " + formatCelsius(*cp.Temperature) +
			" outside " + formatCelsius(*band.Min) + ".." + formatCelsius(*band.Max)
	}
	return e.emitCompliance(ctx, sh, audit.EventTemperatureExcursion, "accepted_with_exception", reason)
}

func (e *auditEmitter) emitRestrictedEdit(ctx context.Context, sh *models.Shipment, rfe *fieldguard.RestrictedFieldsError) {
	names := make([]string, len(rfe.Fields))
	for i, f := range rfe.Fields {
		names[i] = string(f)
	}
	e.logger.WarnContext(ctx, "restricted field edit rejected",
		"request_id", requestcontext.RequestID(ctx),
		"shipment_id", sh.ID,
		"status", rfe.Status,
		"fields", names,
	)
	if e.security == nil {
		return
	}
	e.security.Emit(ctx, audit.SecurityEvent{
		Timestamp:   requestcontext.Now(ctx),
		SubjectType: subjectShipment,
		SubjectID:   sh.ID.String(),
		Action:      audit.EventRestrictedFieldEdit,
		Reason:      "status " + string(rfe.Status) + ": " + strings.Join(names, ","),
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx).ID,
		Severity:    audit.SeverityWarning,
	})
}
