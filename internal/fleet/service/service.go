// Package service manages drivers, their vehicles and maintenance history,
// and evaluates vehicle compliance from that raw state on every read.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"medcourier/internal/compliance"
	"medcourier/internal/eligibility"
	fleetmetrics "medcourier/internal/fleet/metrics"
	"medcourier/internal/fleet/models"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/audit"
	"medcourier/pkg/platform/sentinel"
	"medcourier/pkg/requestcontext"
)

type DriverStore interface {
	CreateDriver(ctx context.Context, d *models.Driver) error
	FindDriver(ctx context.Context, driverID id.DriverID) (*models.Driver, error)
	UpdateDriver(ctx context.Context, d *models.Driver) error
}

type VehicleStore interface {
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	FindVehicle(ctx context.Context, vehicleID id.VehicleID) (*models.Vehicle, error)
	ListVehiclesByDriver(ctx context.Context, driverID id.DriverID) ([]*models.Vehicle, error)
	UpdateVehicle(ctx context.Context, v *models.Vehicle) error
}

// MaintenanceStore is append-only.
type MaintenanceStore interface {
	AppendMaintenance(ctx context.Context, l *models.MaintenanceLog) error
	LatestMaintenance(ctx context.Context, vehicleID id.VehicleID, typ models.MaintenanceType) (*models.MaintenanceLog, error)
	ListMaintenance(ctx context.Context, vehicleID id.VehicleID) ([]*models.MaintenanceLog, error)
}

// Store is the full persistence surface of the fleet module.
type Store interface {
	DriverStore
	VehicleStore
	MaintenanceStore
}

// TxRunner runs fn in one transaction carried by the ctx it receives.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.ComplianceEvent) error
}

// Service owns fleet records. Compliance verdicts are computed, never stored.
type Service struct {
	store     Store
	runInTx   TxRunner
	evaluator *compliance.Evaluator
	logger    *slog.Logger
	metrics   *fleetmetrics.Metrics
	auditor   AuditPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *fleetmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditor = p
	}
}

func WithTxRunner(run TxRunner) Option {
	return func(s *Service) {
		s.runInTx = run
	}
}

// WithEvaluator overrides the compliance thresholds in use.
func WithEvaluator(e *compliance.Evaluator) Option {
	return func(s *Service) {
		s.evaluator = e
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.evaluator == nil {
		s.evaluator = compliance.NewEvaluator(compliance.DefaultThresholds())
	}
	if s.runInTx == nil {
		s.runInTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}
	}
	return s
}

func (s *Service) RegisterDriver(ctx context.Context, name string, certs []id.Certification) (*models.Driver, error) {
	d, err := models.NewDriver(id.NewDriverID(), name, certs, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateDriver(ctx, d); err != nil {
		return nil, wrapFleetErr(err, "driver", "failed to register driver")
	}
	s.logger.InfoContext(ctx, "driver registered",
		"request_id", requestcontext.RequestID(ctx),
		"driver_id", d.ID,
	)
	return d, nil
}

func (s *Service) GetDriver(ctx context.Context, driverID id.DriverID) (*models.Driver, error) {
	if err := authorizeDriverAccess(ctx, driverID); err != nil {
		return nil, err
	}
	d, err := s.store.FindDriver(ctx, driverID)
	if err != nil {
		return nil, wrapFleetErr(err, "driver", "failed to load driver")
	}
	return d, nil
}

// SetAssignmentOptOut toggles whether the driver takes new assignments. A
// driver may change their own flag.
func (s *Service) SetAssignmentOptOut(ctx context.Context, driverID id.DriverID, optedOut bool) (*models.Driver, error) {
	if err := authorizeDriverAccess(ctx, driverID); err != nil {
		return nil, err
	}
	var d *models.Driver
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.store.FindDriver(ctx, driverID)
		if err != nil {
			return err
		}
		d.SetAssignmentOptOut(optedOut, requestcontext.Now(ctx))
		if err := s.store.UpdateDriver(ctx, d); err != nil {
			return err
		}
		return s.emit(ctx, "driver", driverID.String(), audit.EventAssignmentOptOut, strconv.FormatBool(optedOut), "")
	})
	if err != nil {
		return nil, wrapFleetErr(err, "driver", "failed to update driver")
	}
	s.logger.InfoContext(ctx, "assignment opt-out changed",
		"request_id", requestcontext.RequestID(ctx),
		"driver_id", driverID,
		"opted_out", optedOut,
	)
	return d, nil
}

func (s *Service) AddCertification(ctx context.Context, driverID id.DriverID, cert id.Certification) (*models.Driver, error) {
	var d *models.Driver
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.store.FindDriver(ctx, driverID)
		if err != nil {
			return err
		}
		if !d.AddCertification(cert, requestcontext.Now(ctx)) {
			return nil
		}
		return s.store.UpdateDriver(ctx, d)
	})
	if err != nil {
		return nil, wrapFleetErr(err, "driver", "failed to add certification")
	}
	return d, nil
}

func (s *Service) AddVehicle(ctx context.Context, driverID id.DriverID, draft models.VehicleDraft) (*models.Vehicle, error) {
	v, err := models.NewVehicle(id.NewVehicleID(), driverID, draft, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateVehicle(ctx, v); err != nil {
		return nil, wrapFleetErr(err, "driver", "failed to add vehicle")
	}
	s.logger.InfoContext(ctx, "vehicle added",
		"request_id", requestcontext.RequestID(ctx),
		"driver_id", driverID,
		"vehicle_id", v.ID,
	)
	return v, nil
}

func (s *Service) ListVehicles(ctx context.Context, driverID id.DriverID) ([]*models.Vehicle, error) {
	if err := authorizeDriverAccess(ctx, driverID); err != nil {
		return nil, err
	}
	out, err := s.store.ListVehiclesByDriver(ctx, driverID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list vehicles")
	}
	return out, nil
}

// DeactivateVehicle takes a vehicle out of service. Shipments already
// assigned to it keep their assignment.
func (s *Service) DeactivateVehicle(ctx context.Context, vehicleID id.VehicleID, reason string) (*models.Vehicle, error) {
	var v *models.Vehicle
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.store.FindVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if err := v.CanDeactivate(); err != nil {
			return err
		}
		if err := s.emit(ctx, "vehicle", vehicleID.String(), audit.EventVehicleDeactivated, "deactivated", reason); err != nil {
			return err
		}
		v.ApplyDeactivation(requestcontext.Now(ctx))
		return s.store.UpdateVehicle(ctx, v)
	})
	if err != nil {
		return nil, wrapFleetErr(err, "vehicle", "failed to deactivate vehicle")
	}
	s.logger.InfoContext(ctx, "vehicle deactivated",
		"request_id", requestcontext.RequestID(ctx),
		"vehicle_id", vehicleID,
	)
	if s.metrics != nil {
		s.metrics.IncVehicleDeactivated()
	}
	return v, nil
}

// LogMaintenance appends an immutable log entry and advances the vehicle
// odometer when the entry reads higher.
func (s *Service) LogMaintenance(ctx context.Context, vehicleID id.VehicleID, draft models.MaintenanceDraft) (*models.MaintenanceLog, error) {
	now := requestcontext.Now(ctx)
	entry, err := models.NewMaintenanceLog(id.NewMaintenanceLogID(), vehicleID, draft, now)
	if err != nil {
		return nil, err
	}
	err = s.runInTx(ctx, func(ctx context.Context) error {
		v, err := s.store.FindVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if err := s.emit(ctx, "vehicle", vehicleID.String(), audit.EventMaintenanceLogged, string(entry.Type), ""); err != nil {
			return err
		}
		if err := s.store.AppendMaintenance(ctx, entry); err != nil {
			return err
		}
		if v.AdvanceOdometer(entry.Odometer, now) {
			return s.store.UpdateVehicle(ctx, v)
		}
		return nil
	})
	if err != nil {
		return nil, wrapFleetErr(err, "vehicle", "failed to log maintenance")
	}
	if s.metrics != nil {
		s.metrics.IncMaintenanceLogged(string(entry.Type))
	}
	return entry, nil
}

func (s *Service) MaintenanceHistory(ctx context.Context, vehicleID id.VehicleID) ([]*models.MaintenanceLog, error) {
	if _, err := s.store.FindVehicle(ctx, vehicleID); err != nil {
		return nil, wrapFleetErr(err, "vehicle", "failed to load vehicle")
	}
	out, err := s.store.ListMaintenance(ctx, vehicleID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list maintenance")
	}
	return out, nil
}

// ActiveVehicle returns the driver's oldest active vehicle.
func (s *Service) ActiveVehicle(ctx context.Context, driverID id.DriverID) (*models.Vehicle, error) {
	vehicles, err := s.store.ListVehiclesByDriver(ctx, driverID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list vehicles")
	}
	for _, v := range vehicles {
		if v.IsActive {
			return v, nil
		}
	}
	return nil, dErrors.New(dErrors.CodeValidation, "driver has no active vehicle")
}

// CorrectOdometer applies a manually entered reading. A reading below the
// stored odometer is rejected; an equal one is a no-op.
func (s *Service) CorrectOdometer(ctx context.Context, vehicleID id.VehicleID, reading int) (*models.Vehicle, error) {
	var v *models.Vehicle
	err := s.runInTx(ctx, func(ctx context.Context) error {
		var err error
		v, err = s.store.FindVehicle(ctx, vehicleID)
		if err != nil {
			return err
		}
		if reading < v.CurrentOdometer {
			return dErrors.Newf(dErrors.CodeValidation,
				"odometer reading %d is below the recorded %d", reading, v.CurrentOdometer)
		}
		if v.AdvanceOdometer(reading, requestcontext.Now(ctx)) {
			return s.store.UpdateVehicle(ctx, v)
		}
		return nil
	})
	if err != nil {
		return nil, wrapFleetErr(err, "vehicle", "failed to record odometer")
	}
	return v, nil
}

// VehicleCompliance evaluates registration and maintenance from the stored
// raw state at request time.
func (s *Service) VehicleCompliance(ctx context.Context, vehicleID id.VehicleID) (compliance.Verdict, error) {
	v, err := s.store.FindVehicle(ctx, vehicleID)
	if err != nil {
		return compliance.Verdict{}, wrapFleetErr(err, "vehicle", "failed to load vehicle")
	}
	snap, err := s.snapshot(ctx, v)
	if err != nil {
		return compliance.Verdict{}, err
	}
	verdict := s.evaluator.Evaluate(snap, requestcontext.Now(ctx))
	if s.metrics != nil {
		s.metrics.IncVerdict("registration", string(verdict.Registration.Status))
		s.metrics.IncVerdict("maintenance", string(verdict.Maintenance.Status))
	}
	return verdict, nil
}

// DriverSnapshot assembles the eligibility input for a driver: flags,
// certifications and every vehicle with its last oil change.
func (s *Service) DriverSnapshot(ctx context.Context, driverID id.DriverID) (eligibility.DriverSnapshot, error) {
	d, err := s.store.FindDriver(ctx, driverID)
	if err != nil {
		return eligibility.DriverSnapshot{}, wrapFleetErr(err, "driver", "failed to load driver")
	}
	vehicles, err := s.store.ListVehiclesByDriver(ctx, driverID)
	if err != nil {
		return eligibility.DriverSnapshot{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list vehicles")
	}
	snap := eligibility.DriverSnapshot{
		DriverID:              d.ID,
		OptedOutOfAssignments: d.OptedOutOfAssignments,
		Certifications:        d.Certifications,
		Vehicles:              make([]compliance.VehicleSnapshot, 0, len(vehicles)),
	}
	for _, v := range vehicles {
		vs, err := s.snapshot(ctx, v)
		if err != nil {
			return eligibility.DriverSnapshot{}, err
		}
		snap.Vehicles = append(snap.Vehicles, vs)
	}
	return snap, nil
}

func (s *Service) snapshot(ctx context.Context, v *models.Vehicle) (compliance.VehicleSnapshot, error) {
	last, err := s.store.LatestMaintenance(ctx, v.ID, models.MaintenanceOilChange)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return compliance.VehicleSnapshot{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load maintenance history")
	}
	return v.Snapshot(last), nil
}

func (s *Service) emit(ctx context.Context, subjectType, subjectID string, action audit.AuditEvent, decision, reason string) error {
	if s.auditor == nil {
		return nil
	}
	err := s.auditor.Emit(ctx, audit.ComplianceEvent{
		Timestamp:   requestcontext.Now(ctx),
		SubjectType: subjectType,
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

// authorizeDriverAccess lets admins through and drivers only to themselves.
func authorizeDriverAccess(ctx context.Context, driverID id.DriverID) error {
	actor := requestcontext.Actor(ctx)
	switch {
	case actor.Role == requestcontext.RoleAdmin:
		return nil
	case actor.Role == requestcontext.RoleDriver && actor.ID == driverID.String():
		return nil
	default:
		return dErrors.New(dErrors.CodeForbidden, "not permitted to access this driver")
	}
}

func wrapFleetErr(err error, subject, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, subject+" not found")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, subject+" already exists")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
