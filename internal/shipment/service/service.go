package service

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	shipmentmetrics "medcourier/internal/shipment/metrics"
	"medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/sentinel"
)

var tracer = otel.Tracer("medcourier/internal/shipment/service")

// Service orchestrates the shipment lifecycle. Every status change runs in
// one transaction together with its tracking event and any compliance audit
// record.
type Service struct {
	shipments ports.ShipmentStore
	events    ports.EventStore
	tx        ports.Tx
	codes     CodeGenerator
	logger    *slog.Logger
	metrics   *shipmentmetrics.Metrics
	audit     *auditEmitter
}

type serviceConfig struct {
	logger     *slog.Logger
	metrics    *shipmentmetrics.Metrics
	compliance ports.AuditPublisher
	security   ports.SecurityPublisher
	codes      CodeGenerator
}

type Option func(*serviceConfig)

func WithLogger(logger *slog.Logger) Option {
	return func(c *serviceConfig) {
		c.logger = logger
	}
}

func WithMetrics(m *shipmentmetrics.Metrics) Option {
	return func(c *serviceConfig) {
		c.metrics = m
	}
}

// WithAuditPublisher sets the fail-closed compliance publisher.
func WithAuditPublisher(p ports.AuditPublisher) Option {
	return func(c *serviceConfig) {
		c.compliance = p
	}
}

// WithSecurityPublisher sets the buffered publisher for rejected edits.
func WithSecurityPublisher(p ports.SecurityPublisher) Option {
	return func(c *serviceConfig) {
		c.security = p
	}
}

func WithCodeGenerator(g CodeGenerator) Option {
	return func(c *serviceConfig) {
		c.codes = g
	}
}

func New(shipments ports.ShipmentStore, events ports.EventStore, tx ports.Tx, opts ...Option) *Service {
	cfg := &serviceConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	codes := cfg.codes
	if codes == nil {
		codes = RandomCodeGenerator{}
	}
	return &Service{
		shipments: shipments,
		events:    events,
		tx:        tx,
		codes:     codes,
		logger:    logger,
		metrics:   cfg.metrics,
		audit:     newAuditEmitter(logger, cfg.compliance, cfg.security),
	}
}

// Get returns one shipment.
func (s *Service) Get(ctx context.Context, shipmentID id.ShipmentID) (*models.Shipment, error) {
	sh, err := s.shipments.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, wrapShipmentErr(err, "failed to load shipment")
	}
	return sh, nil
}

// GetByTrackingCode returns the shipment with the given code.
func (s *Service) GetByTrackingCode(ctx context.Context, code id.TrackingCode) (*models.Shipment, error) {
	if code == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "tracking code is required")
	}
	sh, err := s.shipments.FindByTrackingCode(ctx, code)
	if err != nil {
		return nil, wrapShipmentErr(err, "failed to load shipment")
	}
	return sh, nil
}

func (s *Service) List(ctx context.Context, f ports.Filter) ([]*models.Shipment, error) {
	out, err := s.shipments.List(ctx, f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list shipments")
	}
	return out, nil
}

// Events returns the tracking history of a shipment, oldest first. History
// survives a hard delete, so an unknown shipment yields its remaining events.
func (s *Service) Events(ctx context.Context, shipmentID id.ShipmentID) ([]*models.TrackingEvent, error) {
	out, err := s.events.ListByShipment(ctx, shipmentID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tracking events")
	}
	return out, nil
}

// wrapShipmentErr maps store sentinels to coded errors and passes coded
// errors through.
func wrapShipmentErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "shipment not found")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}

func startSpan(ctx context.Context, name string, shipmentID id.ShipmentID) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("shipment.id", shipmentID.String()),
	))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}
