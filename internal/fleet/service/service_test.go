package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"medcourier/internal/compliance"
	"medcourier/internal/eligibility"
	fleetmetrics "medcourier/internal/fleet/metrics"
	"medcourier/internal/fleet/models"
	"medcourier/internal/fleet/store"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/audit"
	compliancepub "medcourier/pkg/platform/audit/publishers/compliance"
	auditmemory "medcourier/pkg/platform/audit/store/memory"
	"medcourier/pkg/requestcontext"
)

type FleetServiceSuite struct {
	suite.Suite
	store   *store.InMemoryStore
	audit   *auditmemory.InMemoryStore
	metrics *fleetmetrics.Metrics
	service *Service
	now     time.Time
}

func TestFleetServiceSuite(t *testing.T) {
	suite.Run(t, new(FleetServiceSuite))
}

func (s *FleetServiceSuite) SetupTest() {
	s.store = store.NewInMemoryStore()
	s.audit = auditmemory.NewInMemoryStore()
	s.metrics = fleetmetrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithAuditPublisher(compliancepub.New(s.audit)),
	)
	s.now = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
}

func (s *FleetServiceSuite) ctxAs(role requestcontext.Role, actorID string) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithActor(ctx, requestcontext.ActorInfo{ID: actorID, Role: role})
}

func (s *FleetServiceSuite) adminCtx() context.Context {
	return s.ctxAs(requestcontext.RoleAdmin, "admin-1")
}

func (s *FleetServiceSuite) registerDriverWithVehicle(odometer int) (*models.Driver, *models.Vehicle) {
	d, err := s.service.RegisterDriver(s.adminCtx(), "Ana Ruiz", []id.Certification{id.CertUN3373})
	s.Require().NoError(err)
	expiry := s.now.AddDate(1, 0, 0)
	v, err := s.service.AddVehicle(s.adminCtx(), d.ID, models.VehicleDraft{
		Plate:                  "MC-001",
		RegistrationExpiryDate: &expiry,
		CurrentOdometer:        odometer,
	})
	s.Require().NoError(err)
	return d, v
}

func (s *FleetServiceSuite) TestAddVehicleRequiresDriver() {
	_, err := s.service.AddVehicle(s.adminCtx(), id.NewDriverID(), models.VehicleDraft{Plate: "X1"})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *FleetServiceSuite) TestSetAssignmentOptOut() {
	d, _ := s.registerDriverWithVehicle(0)

	s.Run("driver toggles own flag", func() {
		updated, err := s.service.SetAssignmentOptOut(s.ctxAs(requestcontext.RoleDriver, d.ID.String()), d.ID, true)
		s.Require().NoError(err)
		s.True(updated.OptedOutOfAssignments)

		events := s.audit.ListByAction(context.Background(), audit.EventAssignmentOptOut)
		s.Require().Len(events, 1)
		s.Equal("true", events[0].Decision)
		s.Equal(d.ID.String(), events[0].ActorID)
	})

	s.Run("another driver is forbidden", func() {
		_, err := s.service.SetAssignmentOptOut(s.ctxAs(requestcontext.RoleDriver, id.NewDriverID().String()), d.ID, false)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *FleetServiceSuite) TestLogMaintenanceAdvancesOdometer() {
	_, v := s.registerDriverWithVehicle(5200)

	_, err := s.service.LogMaintenance(s.adminCtx(), v.ID, models.MaintenanceDraft{
		Type: models.MaintenanceOilChange, Odometer: 5300, PerformedAt: s.now.Add(-time.Hour),
	})
	s.Require().NoError(err)

	stored, err := s.store.FindVehicle(context.Background(), v.ID)
	s.Require().NoError(err)
	s.Equal(5300, stored.CurrentOdometer)

	_, err = s.service.LogMaintenance(s.adminCtx(), v.ID, models.MaintenanceDraft{
		Type: models.MaintenanceInspection, Odometer: 100, PerformedAt: s.now.AddDate(-1, 0, 0),
	})
	s.Require().NoError(err)
	stored, err = s.store.FindVehicle(context.Background(), v.ID)
	s.Require().NoError(err)
	s.Equal(5300, stored.CurrentOdometer, "older readings never lower the odometer")

	history, err := s.service.MaintenanceHistory(s.adminCtx(), v.ID)
	s.Require().NoError(err)
	s.Len(history, 2)
	s.Len(s.audit.ListByAction(context.Background(), audit.EventMaintenanceLogged), 2)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.MaintenanceLogged.WithLabelValues("oil_change")))
}

func (s *FleetServiceSuite) TestVehicleComplianceIsEvaluatedOnRead() {
	_, v := s.registerDriverWithVehicle(5200)

	verdict, err := s.service.VehicleCompliance(s.adminCtx(), v.ID)
	s.Require().NoError(err)
	s.Equal(compliance.MaintenanceDue, verdict.Maintenance.Status, "no oil change anchors at odometer zero")
	s.False(verdict.Compliant())

	_, err = s.service.LogMaintenance(s.adminCtx(), v.ID, models.MaintenanceDraft{
		Type: models.MaintenanceOilChange, Odometer: 5200,
	})
	s.Require().NoError(err)

	verdict, err = s.service.VehicleCompliance(s.adminCtx(), v.ID)
	s.Require().NoError(err)
	s.Equal(compliance.MaintenanceValid, verdict.Maintenance.Status)
	s.Equal(compliance.RegistrationValid, verdict.Registration.Status)
	s.True(verdict.Compliant())
}

func (s *FleetServiceSuite) TestDeactivateVehicle() {
	_, v := s.registerDriverWithVehicle(0)

	deactivated, err := s.service.DeactivateVehicle(s.adminCtx(), v.ID, "sold")
	s.Require().NoError(err)
	s.False(deactivated.IsActive)

	_, err = s.service.DeactivateVehicle(s.adminCtx(), v.ID, "sold")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	events := s.audit.ListByAction(context.Background(), audit.EventVehicleDeactivated)
	s.Require().Len(events, 1)
	s.Equal("sold", events[0].Reason)
}

func (s *FleetServiceSuite) TestDriverSnapshotFeedsEligibility() {
	d, v := s.registerDriverWithVehicle(1200)

	snap, err := s.service.DriverSnapshot(s.adminCtx(), d.ID)
	s.Require().NoError(err)
	s.Require().Len(snap.Vehicles, 1)
	s.Equal(v.ID, snap.Vehicles[0].VehicleID)

	result := eligibility.NewChecker(nil).Check(snap, eligibility.Requirements{
		SpecimenCategory: id.SpecimenUN3373,
		TemperatureKind:  id.TemperatureAmbient,
	}, s.now)
	s.True(result.Eligible, result.Message)

	_, err = s.service.DriverSnapshot(s.adminCtx(), id.NewDriverID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *FleetServiceSuite) TestCorrectOdometer() {
	d, v := s.registerDriverWithVehicle(3000)

	active, err := s.service.ActiveVehicle(s.adminCtx(), d.ID)
	s.Require().NoError(err)
	s.Equal(v.ID, active.ID)

	_, err = s.service.CorrectOdometer(s.adminCtx(), v.ID, 2999)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	updated, err := s.service.CorrectOdometer(s.adminCtx(), v.ID, 3150)
	s.Require().NoError(err)
	s.Equal(3150, updated.CurrentOdometer)

	_, err = s.service.DeactivateVehicle(s.adminCtx(), v.ID, "sold")
	s.Require().NoError(err)
	_, err = s.service.ActiveVehicle(s.adminCtx(), d.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}
