package service

//go:generate mockgen -source=../ports/ports.go -destination=../ports/mocks/mocks.go -package=mocks

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"medcourier/internal/custody"
	"medcourier/internal/shipment/fieldguard"
	"medcourier/internal/shipment/lifecycle"
	shipmentmetrics "medcourier/internal/shipment/metrics"
	"medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports/mocks"
	"medcourier/internal/shipment/store"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/audit"
	"medcourier/pkg/requestcontext"
)

// sequenceCodes hands out codes in order, repeating the last one.
type sequenceCodes struct {
	codes []id.TrackingCode
	n     int
}

func (g *sequenceCodes) Generate() (id.TrackingCode, error) {
	c := g.codes[min(g.n, len(g.codes)-1)]
	g.n++
	return c, nil
}

type ShipmentServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	compliance *mocks.MockAuditPublisher
	security   *mocks.MockSecurityPublisher
	shipments  *store.InMemoryShipmentStore
	events     *store.InMemoryEventStore
	metrics    *shipmentmetrics.Metrics
	service    *Service

	now     time.Time
	shipper id.ShipperID
	driver  id.DriverID
}

func TestShipmentServiceSuite(t *testing.T) {
	suite.Run(t, new(ShipmentServiceSuite))
}

func (s *ShipmentServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.compliance = mocks.NewMockAuditPublisher(s.ctrl)
	s.security = mocks.NewMockSecurityPublisher(s.ctrl)
	s.shipments = store.NewInMemoryShipmentStore()
	s.events = store.NewInMemoryEventStore()
	s.metrics = shipmentmetrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(s.shipments, s.events, store.NewInMemoryTx(s.shipments, s.events),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditPublisher(s.compliance),
		WithSecurityPublisher(s.security),
	)
	s.now = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	s.shipper = id.NewShipperID()
	s.driver = id.NewDriverID()
}

func (s *ShipmentServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ShipmentServiceSuite) ctxAs(role requestcontext.Role, actorID string) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithRequestID(ctx, "req-1")
	return requestcontext.WithActor(ctx, requestcontext.ActorInfo{ID: actorID, Role: role})
}

func (s *ShipmentServiceSuite) adminCtx() context.Context {
	return s.ctxAs(requestcontext.RoleAdmin, "admin-1")
}

func (s *ShipmentServiceSuite) driverCtx() context.Context {
	return s.ctxAs(requestcontext.RoleDriver, s.driver.String())
}

func (s *ShipmentServiceSuite) draft(kind id.TemperatureKind) models.Draft {
	return models.Draft{
		ShipperID:            s.shipper,
		CommodityDescription: "CBC panels, 12 tubes",
		SpecimenCategory:     id.SpecimenUN3373,
		TemperatureKind:      kind,
	}
}

func (s *ShipmentServiceSuite) create(kind id.TemperatureKind) *models.Shipment {
	sh, err := s.service.Create(s.adminCtx(), s.draft(kind))
	s.Require().NoError(err)
	return sh
}

// scheduled stores a shipment assigned to s.driver in status SCHEDULED.
func (s *ShipmentServiceSuite) scheduled(kind id.TemperatureKind) *models.Shipment {
	sh := s.create(kind)
	sh.ApplyTransition(lifecycle.StatusQuoteAccepted, s.now)
	sh.ApplyAssignment(s.driver, id.NewVehicleID(), s.now)
	s.Require().Equal(lifecycle.StatusScheduled, sh.Status)
	s.Require().NoError(s.shipments.Update(context.Background(), sh))
	return sh
}

func (s *ShipmentServiceSuite) signature() custody.Signature {
	return custody.Signature{Blob: bytes.Repeat([]byte{0x89}, custody.MinSignatureBytes), SignerName: "A. Lindqvist"}
}

func (s *ShipmentServiceSuite) stored(shipmentID id.ShipmentID) *models.Shipment {
	sh, err := s.shipments.FindByID(context.Background(), shipmentID)
	s.Require().NoError(err)
	return sh
}

func (s *ShipmentServiceSuite) eventTypes(shipmentID id.ShipmentID) []models.EventType {
	evs, err := s.service.Events(context.Background(), shipmentID)
	s.Require().NoError(err)
	out := make([]models.EventType, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func (s *ShipmentServiceSuite) TestCreate() {
	s.Run("stores NEW shipment with created event", func() {
		sh := s.create(id.TemperatureAmbient)
		s.Equal(lifecycle.StatusNew, sh.Status)
		s.Regexp(`^MC-[0-9A-Z]{10}$`, string(sh.TrackingCode))
		s.Equal(s.now, sh.CreatedAt)
		s.Equal([]models.EventType{models.EventCreated}, s.eventTypes(sh.ID))

		byCode, err := s.service.GetByTrackingCode(context.Background(), sh.TrackingCode)
		s.Require().NoError(err)
		s.Equal(sh.ID, byCode.ID)
	})

	s.Run("shipper cannot create for another shipper", func() {
		_, err := s.service.Create(s.ctxAs(requestcontext.RoleShipper, id.NewShipperID().String()), s.draft(id.TemperatureAmbient))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("invalid draft is a validation error", func() {
		d := s.draft(id.TemperatureRefrigerated)
		d.TemperatureMin, d.TemperatureMax = ptr(8.0), ptr(2.0)
		_, err := s.service.Create(s.adminCtx(), d)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("tracking code collision is retried", func() {
		codes := &sequenceCodes{codes: []id.TrackingCode{"MC-DUPLICATE", "MC-DUPLICATE", "MC-FRESH"}}
		svc := New(s.shipments, s.events, store.NewInMemoryTx(s.shipments, s.events), WithCodeGenerator(codes))

		first, err := svc.Create(s.adminCtx(), s.draft(id.TemperatureAmbient))
		s.Require().NoError(err)
		s.Equal(id.TrackingCode("MC-DUPLICATE"), first.TrackingCode)

		second, err := svc.Create(s.adminCtx(), s.draft(id.TemperatureAmbient))
		s.Require().NoError(err)
		s.Equal(id.TrackingCode("MC-FRESH"), second.TrackingCode)
	})
}

func (s *ShipmentServiceSuite) TestUpdate() {
	s.Run("pre-pickup edit applies fields and status together", func() {
		sh := s.create(id.TemperatureAmbient)
		updated, err := s.service.Update(s.adminCtx(), sh.ID, models.Patch{
			Notes:  ptr("dock 4"),
			Status: ptr(lifecycle.StatusRequested),
		})
		s.Require().NoError(err)
		s.Equal("dock 4", updated.Notes)
		s.Equal(lifecycle.StatusRequested, updated.Status)
		s.Equal([]models.EventType{models.EventCreated, models.EventUpdated, models.EventStatusChanged}, s.eventTypes(sh.ID))
	})

	s.Run("restricted edit after pickup fails even with a legal status change", func() {
		sh := s.scheduled(id.TemperatureAmbient)
		_, err := s.service.RecordPickup(s.driverCtx(), sh.ID, models.Capture{Signature: s.signature()})
		s.Require().NoError(err)

		s.security.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev audit.SecurityEvent) {
				s.Equal(audit.EventRestrictedFieldEdit, ev.Action)
				s.Equal(sh.ID.String(), ev.SubjectID)
				s.Contains(ev.Reason, "commodity_description")
			})

		_, err = s.service.Update(s.adminCtx(), sh.ID, models.Patch{
			CommodityDescription: ptr("swapped"),
			Status:               ptr(lifecycle.StatusInTransit),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeRestrictedField))
		var rfe *fieldguard.RestrictedFieldsError
		s.Require().ErrorAs(err, &rfe)
		s.Equal([]fieldguard.Field{fieldguard.FieldCommodityDescription}, rfe.Fields)

		after := s.stored(sh.ID)
		s.Equal(lifecycle.StatusPickedUp, after.Status, "status change must not apply")
		s.Equal("CBC panels, 12 tubes", after.CommodityDescription)
		s.InDelta(1, testutil.ToFloat64(s.metrics.RestrictedEdits), 0)
	})

	s.Run("always-editable fields stay editable after pickup", func() {
		sh := s.scheduled(id.TemperatureAmbient)
		_, err := s.service.RecordPickup(s.driverCtx(), sh.ID, models.Capture{Signature: s.signature()})
		s.Require().NoError(err)

		updated, err := s.service.Update(s.adminCtx(), sh.ID, models.Patch{Notes: ptr("left at reception")})
		s.Require().NoError(err)
		s.Equal("left at reception", updated.Notes)
	})

	s.Run("backward status is rejected", func() {
		sh := s.scheduled(id.TemperatureAmbient)
		_, err := s.service.Update(s.adminCtx(), sh.ID, models.Patch{Status: ptr(lifecycle.StatusQuoted)})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Contains(err.Error(), "SCHEDULED -> QUOTED")
	})

	s.Run("unknown field is restricted", func() {
		sh := s.create(id.TemperatureAmbient)
		s.security.EXPECT().Emit(gomock.Any(), gomock.Any())
		_, err := s.service.Update(s.adminCtx(), sh.ID, models.Patch{Unknown: []string{"tracking_code"}})
		s.True(dErrors.HasCode(err, dErrors.CodeRestrictedField))
	})

	s.Run("cancelled load keeps its descriptive fields", func() {
		sh := s.create(id.TemperatureAmbient)
		_, err := s.service.Cancel(s.adminCtx(), sh.ID, "shipper withdrew")
		s.Require().NoError(err)

		s.security.EXPECT().Emit(gomock.Any(), gomock.Any())
		_, err = s.service.Update(s.adminCtx(), sh.ID, models.Patch{PONumber: ptr("PO-9")})
		s.True(dErrors.HasCode(err, dErrors.CodeRestrictedField))
		s.Empty(s.stored(sh.ID).PONumber)

		got, err := s.service.Update(s.adminCtx(), sh.ID, models.Patch{Notes: ptr("refund issued")})
		s.Require().NoError(err)
		s.Equal("refund issued", got.Notes)
	})

	s.Run("empty patch", func() {
		_, err := s.service.Update(s.adminCtx(), id.NewShipmentID(), models.Patch{})
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("unknown shipment", func() {
		_, err := s.service.Update(s.adminCtx(), id.NewShipmentID(), models.Patch{Notes: ptr("x")})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ShipmentServiceSuite) TestUpdatePricingAndStatusAreAdminOnly() {
	shipperCtx := func() context.Context { return s.ctxAs(requestcontext.RoleShipper, s.shipper.String()) }

	s.Run("shipper cannot deny their load or set its quote", func() {
		sh := s.create(id.TemperatureAmbient)
		_, err := s.service.Update(shipperCtx(), sh.ID, models.Patch{
			Status:           ptr(lifecycle.StatusDenied),
			QuoteAmountCents: ptr(int64(1)),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Contains(err.Error(), "quote_amount_cents")
		s.Contains(err.Error(), "status")

		after := s.stored(sh.ID)
		s.Equal(lifecycle.StatusNew, after.Status)
		s.Nil(after.QuoteAmountCents)
	})

	s.Run("shipper cannot schedule a load", func() {
		sh := s.create(id.TemperatureAmbient)
		_, err := s.service.Update(shipperCtx(), sh.ID, models.Patch{Status: ptr(lifecycle.StatusScheduled)})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(lifecycle.StatusNew, s.stored(sh.ID).Status)
	})

	s.Run("shipper cannot set the driver quote", func() {
		sh := s.create(id.TemperatureAmbient)
		_, err := s.service.Update(shipperCtx(), sh.ID, models.Patch{DriverQuoteAmountCents: ptr(int64(4200))})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Nil(s.stored(sh.ID).DriverQuoteAmountCents)
	})

	s.Run("shipper may cancel and edit descriptive fields", func() {
		sh := s.create(id.TemperatureAmbient)
		updated, err := s.service.Update(shipperCtx(), sh.ID, models.Patch{
			PONumber: ptr("PO-7781"),
			Status:   ptr(lifecycle.StatusCancelled),
		})
		s.Require().NoError(err)
		s.Equal("PO-7781", updated.PONumber)
		s.Equal(lifecycle.StatusCancelled, updated.Status)
	})

	s.Run("driver cannot change status", func() {
		sh := s.scheduled(id.TemperatureAmbient)
		_, err := s.service.Update(s.driverCtx(), sh.ID, models.Patch{Status: ptr(lifecycle.StatusCancelled)})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin sets the quote", func() {
		sh := s.create(id.TemperatureAmbient)
		updated, err := s.service.Update(s.adminCtx(), sh.ID, models.Patch{QuoteAmountCents: ptr(int64(12500))})
		s.Require().NoError(err)
		s.Require().NotNil(updated.QuoteAmountCents)
		s.Equal(int64(12500), *updated.QuoteAmountCents)
	})
}

func (s *ShipmentServiceSuite) TestTransition() {
	s.Run("forward move records event with reason", func() {
		sh := s.create(id.TemperatureAmbient)
		got, err := s.service.Transition(s.adminCtx(), sh.ID, lifecycle.StatusQuoteRequested, "customer asked")
		s.Require().NoError(err)
		s.Equal(lifecycle.StatusQuoteRequested, got.Status)

		evs, err := s.service.Events(context.Background(), sh.ID)
		s.Require().NoError(err)
		last := evs[len(evs)-1]
		s.Equal(models.EventStatusChanged, last.Type)
		s.Equal(lifecycle.StatusNew, last.FromStatus)
		s.Equal(lifecycle.StatusQuoteRequested, last.ToStatus)
		s.Equal("customer asked", last.Note)
		s.Equal("admin-1", last.ActorID)
		s.InDelta(1, testutil.ToFloat64(s.metrics.Transitions.WithLabelValues("NEW", "QUOTE_REQUESTED")), 0)
	})

	s.Run("same state is rejected not ignored", func() {
		sh := s.create(id.TemperatureAmbient)
		_, err := s.service.Transition(s.adminCtx(), sh.ID, lifecycle.StatusNew, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Len(s.eventTypes(sh.ID), 1)
	})

	s.Run("custody statuses need the capture operations", func() {
		sh := s.scheduled(id.TemperatureAmbient)
		_, err := s.service.Transition(s.adminCtx(), sh.ID, lifecycle.StatusPickedUp, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.Transition(s.adminCtx(), sh.ID, lifecycle.StatusInTransit, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("cancel before pickup, not after", func() {
		pre := s.scheduled(id.TemperatureAmbient)
		got, err := s.service.Cancel(s.adminCtx(), pre.ID, "shipper withdrew")
		s.Require().NoError(err)
		s.Equal(lifecycle.StatusCancelled, got.Status)

		post := s.scheduled(id.TemperatureAmbient)
		_, err = s.service.RecordPickup(s.driverCtx(), post.ID, models.Capture{Signature: s.signature()})
		s.Require().NoError(err)
		_, err = s.service.Deny(s.adminCtx(), post.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("unknown status", func() {
		_, err := s.service.Transition(s.adminCtx(), id.NewShipmentID(), lifecycle.Status("LOST"), "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ShipmentServiceSuite) TestRecordPickupAndDelivery() {
	s.Run("only the assigned driver records custody", func() {
		sh := s.scheduled(id.TemperatureAmbient)
		other := s.ctxAs(requestcontext.RoleDriver, id.NewDriverID().String())
		_, err := s.service.RecordPickup(other, sh.ID, models.Capture{Signature: s.signature()})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.RecordPickup(s.ctxAs(requestcontext.RoleShipper, s.shipper.String()), sh.ID, models.Capture{Signature: s.signature()})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("full custody chain", func() {
		sh := s.scheduled(id.TemperatureRefrigerated)

		picked, err := s.service.RecordPickup(s.driverCtx(), sh.ID, models.Capture{Signature: s.signature(), Temperature: ptr(4.5)})
		s.Require().NoError(err)
		s.Equal(lifecycle.StatusPickedUp, picked.Status)
		s.Equal(s.driver.String(), picked.Pickup.RecordedBy)
		s.NotEmpty(picked.Pickup.SignatureDigest)
		s.False(picked.Pickup.TemperatureException)

		_, err = s.service.Transition(s.driverCtx(), sh.ID, lifecycle.StatusInTransit, "")
		s.Require().NoError(err)

		delivered, err := s.service.RecordDelivery(s.driverCtx(), sh.ID, models.Capture{
			Signature:   custody.Signature{UnavailableReason: "recipient gloved, verbal confirmation"},
			Temperature: ptr(5.0),
		})
		s.Require().NoError(err)
		s.Equal(lifecycle.StatusDelivered, delivered.Status)

		s.Equal([]models.EventType{
			models.EventCreated, models.EventPickupRecorded, models.EventStatusChanged, models.EventDeliveryRecorded,
		}, s.eventTypes(sh.ID))
	})

	s.Run("missing reading on refrigerated load is rejected and nothing changes", func() {
		sh := s.scheduled(id.TemperatureRefrigerated)
		_, err := s.service.RecordPickup(s.driverCtx(), sh.ID, models.Capture{Signature: s.signature()})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(lifecycle.StatusScheduled, s.stored(sh.ID).Status)
	})

	s.Run("excursion is accepted, flagged and audited", func() {
		sh := s.scheduled(id.TemperatureRefrigerated)
		s.compliance.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev audit.ComplianceEvent) error {
				s.Equal(audit.EventTemperatureExcursion, ev.Action)
				s.Equal(sh.ID.String(), ev.SubjectID)
				s.Equal("req-1", ev.RequestID)
				return nil
			})

		picked, err := s.service.RecordPickup(s.driverCtx(), sh.ID, models.Capture{Signature: s.signature(), Temperature: ptr(11.2)})
		s.Require().NoError(err)
		s.True(picked.Pickup.TemperatureException)
		s.InDelta(1, testutil.ToFloat64(s.metrics.TemperatureExceptions.WithLabelValues("pickup")), 0)

		evs, err := s.service.Events(context.Background(), sh.ID)
		s.Require().NoError(err)
		s.Equal("true", evs[len(evs)-1].Metadata["temperature_exception"])
	})

	s.Run("audit failure fails the pickup", func() {
		sh := s.scheduled(id.TemperatureRefrigerated)
		s.compliance.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("outbox unavailable"))

		_, err := s.service.RecordPickup(s.driverCtx(), sh.ID, models.Capture{Signature: s.signature(), Temperature: ptr(-3.0)})
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.Equal(lifecycle.StatusScheduled, s.stored(sh.ID).Status)
	})

	s.Run("delivery before pickup", func() {
		sh := s.scheduled(id.TemperatureAmbient)
		_, err := s.service.RecordDelivery(s.driverCtx(), sh.ID, models.Capture{Signature: s.signature()})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ShipmentServiceSuite) TestHardDelete() {
	s.Run("requires admin", func() {
		err := s.service.HardDelete(s.driverCtx(), id.NewShipmentID(), true, "duplicate")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("requires cancelled status and force", func() {
		sh := s.create(id.TemperatureAmbient)
		err := s.service.HardDelete(s.adminCtx(), sh.ID, true, "duplicate")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = s.service.Cancel(s.adminCtx(), sh.ID, "")
		s.Require().NoError(err)
		err = s.service.HardDelete(s.adminCtx(), sh.ID, false, "duplicate")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("audits then deletes and keeps history", func() {
		sh := s.create(id.TemperatureAmbient)
		_, err := s.service.Cancel(s.adminCtx(), sh.ID, "")
		s.Require().NoError(err)

		s.compliance.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, ev audit.ComplianceEvent) error {
				s.Equal(audit.EventShipmentHardDeleted, ev.Action)
				s.Equal("duplicate entry", ev.Reason)
				s.Equal("admin-1", ev.ActorID)
				return nil
			})
		s.Require().NoError(s.service.HardDelete(s.adminCtx(), sh.ID, true, "duplicate entry"))

		_, err = s.service.Get(context.Background(), sh.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Len(s.eventTypes(sh.ID), 2)
	})

	s.Run("audit failure keeps the shipment", func() {
		sh := s.create(id.TemperatureAmbient)
		_, err := s.service.Cancel(s.adminCtx(), sh.ID, "")
		s.Require().NoError(err)

		s.compliance.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("down"))
		s.Error(s.service.HardDelete(s.adminCtx(), sh.ID, true, "duplicate"))

		_, err = s.service.Get(context.Background(), sh.ID)
		s.NoError(err)
	})
}

func (s *ShipmentServiceSuite) TestStoreErrorsAreInternal() {
	shipments := mocks.NewMockShipmentStore(s.ctrl)
	svc := New(shipments, s.events, store.NewInMemoryTx(shipments, s.events))

	shipments.EXPECT().FindByID(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused"))
	_, err := svc.Get(context.Background(), id.NewShipmentID())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
