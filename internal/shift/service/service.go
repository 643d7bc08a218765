// Package service opens and closes driver shifts. A driver has at most one
// open shift, and cannot clock out while carrying a picked up or in-transit
// shipment.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	fleetmodels "medcourier/internal/fleet/models"
	platformredis "medcourier/internal/platform/redis"
	shiftmetrics "medcourier/internal/shift/metrics"
	"medcourier/internal/shift/models"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
	"medcourier/pkg/platform/audit"
	"medcourier/pkg/platform/sentinel"
	"medcourier/pkg/requestcontext"
)

const (
	defaultLockTTL      = 10 * time.Second
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
	subjectDriver       = "driver"
)

// Store persists shifts. Create fails with sentinel.ErrAlreadyUsed when the
// driver already has an open shift; Close fails with sentinel.ErrInvalidState
// when the shift is no longer open.
type Store interface {
	Create(ctx context.Context, sh *models.Shift) error
	FindOpen(ctx context.Context, driverID id.DriverID) (*models.Shift, error)
	Close(ctx context.Context, sh *models.Shift) error
	ListByDriver(ctx context.Context, driverID id.DriverID, limit int) ([]*models.Shift, error)
}

// CustodyCounter counts the shipments a driver currently holds.
type CustodyCounter interface {
	CountInCustody(ctx context.Context, driverID id.DriverID) (int, error)
}

// Fleet is the driver and vehicle state a shift touches.
type Fleet interface {
	GetDriver(ctx context.Context, driverID id.DriverID) (*fleetmodels.Driver, error)
	ActiveVehicle(ctx context.Context, driverID id.DriverID) (*fleetmodels.Vehicle, error)
	CorrectOdometer(ctx context.Context, vehicleID id.VehicleID, reading int) (*fleetmodels.Vehicle, error)
}

// Locker serializes clock-in and clock-out per driver across instances.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

type SecurityPublisher interface {
	Emit(ctx context.Context, event audit.SecurityEvent)
}

// TxRunner runs fn in one transaction carried by the ctx it receives.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	store    Store
	custody  CustodyCounter
	fleet    Fleet
	locker   Locker
	lockTTL  time.Duration
	runInTx  TxRunner
	logger   *slog.Logger
	metrics  *shiftmetrics.Metrics
	security SecurityPublisher
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *shiftmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLocker enables the distributed per-driver lock.
func WithLocker(l Locker) Option {
	return func(s *Service) {
		s.locker = l
	}
}

// WithLockTTL bounds how long a crashed request can hold a driver's lock.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.lockTTL = ttl
	}
}

func WithTxRunner(run TxRunner) Option {
	return func(s *Service) {
		s.runInTx = run
	}
}

func WithSecurityPublisher(p SecurityPublisher) Option {
	return func(s *Service) {
		s.security = p
	}
}

func New(store Store, custody CustodyCounter, fleet Fleet, opts ...Option) *Service {
	s := &Service{store: store, custody: custody, fleet: fleet}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.runInTx == nil {
		s.runInTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}
	}
	return s
}

// ClockIn opens a shift. An optional odometer reading corrects the driver's
// active vehicle and must not be lower than its stored odometer.
func (s *Service) ClockIn(ctx context.Context, driverID id.DriverID, odometer *int) (*models.Shift, error) {
	if err := s.authorize(ctx, driverID); err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, driverID)
	if err != nil {
		s.rejectClockIn(ctx, driverID, "clock-in already in progress")
		return nil, err
	}
	defer release()

	var sh *models.Shift
	err = s.runInTx(ctx, func(ctx context.Context) error {
		_, err := s.store.FindOpen(ctx, driverID)
		switch {
		case err == nil:
			return errOpenShift
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}
		vehicle, err := s.odometerTarget(ctx, driverID, odometer)
		if err != nil {
			return err
		}
		var vehicleID *id.VehicleID
		if vehicle != nil {
			vehicleID = &vehicle.ID
		}
		sh = models.Open(id.NewShiftID(), driverID, vehicleID, odometer, requestcontext.Now(ctx))
		if err := s.store.Create(ctx, sh); err != nil {
			return err
		}
		return s.correctOdometer(ctx, vehicle, odometer)
	})
	if err != nil {
		err = wrapShiftErr(err, "failed to clock in")
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			s.rejectClockIn(ctx, driverID, "driver already has an open shift")
		} else {
			s.count(func(m *shiftmetrics.Metrics) { m.IncClockIn(shiftmetrics.OutcomeRejected) })
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "shift opened",
		"request_id", requestcontext.RequestID(ctx),
		"driver_id", driverID,
		"shift_id", sh.ID,
	)
	s.count(func(m *shiftmetrics.Metrics) { m.IncClockIn(shiftmetrics.OutcomeOpened) })
	return sh, nil
}

// ClockOut closes the driver's open shift and records its length.
func (s *Service) ClockOut(ctx context.Context, driverID id.DriverID, odometer *int) (*models.Shift, error) {
	if err := s.authorize(ctx, driverID); err != nil {
		return nil, err
	}
	release, err := s.lock(ctx, driverID)
	if err != nil {
		return nil, err
	}
	defer release()

	var sh *models.Shift
	outcome := shiftmetrics.OutcomeRejected
	err = s.runInTx(ctx, func(ctx context.Context) error {
		open, err := s.store.FindOpen(ctx, driverID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeValidation, "driver has no open shift")
		}
		if err != nil {
			return err
		}
		held, err := s.custody.CountInCustody(ctx, driverID)
		if err != nil {
			return err
		}
		if held > 0 {
			outcome = shiftmetrics.OutcomeInCustody
			s.emitSecurity(ctx, driverID, audit.EventCustodyClockOut, "driver has shipments in custody", audit.SeverityWarning)
			return dErrors.Newf(dErrors.CodeValidation,
				"cannot clock out with %d shipment(s) picked up or in transit", held)
		}
		vehicle, err := s.odometerTarget(ctx, driverID, odometer)
		if err != nil {
			return err
		}
		if err := open.Close(requestcontext.Now(ctx), odometer); err != nil {
			return err
		}
		if err := s.store.Close(ctx, open); err != nil {
			return err
		}
		if err := s.correctOdometer(ctx, vehicle, odometer); err != nil {
			return err
		}
		sh = open
		return nil
	})
	if err != nil {
		s.count(func(m *shiftmetrics.Metrics) { m.IncClockOut(outcome) })
		return nil, wrapShiftErr(err, "failed to clock out")
	}

	s.logger.InfoContext(ctx, "shift closed",
		"request_id", requestcontext.RequestID(ctx),
		"driver_id", driverID,
		"shift_id", sh.ID,
		"total_hours", *sh.TotalHours,
	)
	s.count(func(m *shiftmetrics.Metrics) { m.ObserveClosed(*sh.TotalHours) })
	return sh, nil
}

// Current returns the driver's open shift.
func (s *Service) Current(ctx context.Context, driverID id.DriverID) (*models.Shift, error) {
	if err := s.authorize(ctx, driverID); err != nil {
		return nil, err
	}
	sh, err := s.store.FindOpen(ctx, driverID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "driver has no open shift")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load shift")
	}
	return sh, nil
}

// History lists the driver's shifts, newest first.
func (s *Service) History(ctx context.Context, driverID id.DriverID, limit int) ([]*models.Shift, error) {
	if err := s.authorize(ctx, driverID); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	out, err := s.store.ListByDriver(ctx, driverID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list shifts")
	}
	return out, nil
}

var errOpenShift = dErrors.New(dErrors.CodeConflict, "driver already has an open shift")

// odometerTarget checks a manual reading against the driver's active vehicle
// and returns that vehicle, or nil when there is no reading. It writes
// nothing; correctOdometer runs only after the shift write succeeds.
func (s *Service) odometerTarget(ctx context.Context, driverID id.DriverID, reading *int) (*fleetmodels.Vehicle, error) {
	if reading == nil {
		return nil, nil
	}
	if *reading < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "odometer cannot be negative")
	}
	v, err := s.fleet.ActiveVehicle(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if *reading < v.CurrentOdometer {
		s.emitSecurity(ctx, driverID, audit.EventOdometerRegression, "odometer entry below recorded value", audit.SeverityInfo)
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"odometer reading %d is below the vehicle's recorded %d", *reading, v.CurrentOdometer)
	}
	return v, nil
}

func (s *Service) correctOdometer(ctx context.Context, v *fleetmodels.Vehicle, reading *int) error {
	if v == nil || reading == nil {
		return nil
	}
	_, err := s.fleet.CorrectOdometer(ctx, v.ID, *reading)
	return err
}

// authorize lets admins act for any driver and drivers only for themselves,
// and confirms the driver exists.
func (s *Service) authorize(ctx context.Context, driverID id.DriverID) error {
	_, err := s.fleet.GetDriver(ctx, driverID)
	return err
}

// lock takes the per-driver lock when one is configured. A lock held by
// another request is a conflict. When Redis is unreachable the request goes
// ahead and the store's one-open-shift guarantee still applies.
func (s *Service) lock(ctx context.Context, driverID id.DriverID) (func(), error) {
	noop := func() {}
	if s.locker == nil {
		return noop, nil
	}
	release, err := s.locker.Acquire(ctx, "shift:"+driverID.String(), s.lockTTL)
	if errors.Is(err, platformredis.ErrLockHeld) {
		return nil, dErrors.New(dErrors.CodeConflict, "another clock-in or clock-out for this driver is in progress")
	}
	if err != nil {
		s.logger.WarnContext(ctx, "shift lock unavailable, relying on store constraint",
			"request_id", requestcontext.RequestID(ctx),
			"driver_id", driverID,
			"error", err,
		)
		return noop, nil
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release shift lock",
				"request_id", requestcontext.RequestID(ctx),
				"driver_id", driverID,
				"error", err,
			)
		}
	}, nil
}

func (s *Service) rejectClockIn(ctx context.Context, driverID id.DriverID, reason string) {
	s.logger.WarnContext(ctx, "clock-in rejected",
		"request_id", requestcontext.RequestID(ctx),
		"driver_id", driverID,
		"reason", reason,
	)
	s.emitSecurity(ctx, driverID, audit.EventClockInConflict, reason, audit.SeverityWarning)
	s.count(func(m *shiftmetrics.Metrics) { m.IncClockIn(shiftmetrics.OutcomeConflict) })
}

func (s *Service) emitSecurity(ctx context.Context, driverID id.DriverID, action audit.AuditEvent, reason string, sev audit.Severity) {
	if s.security == nil {
		return
	}
	s.security.Emit(ctx, audit.SecurityEvent{
		Timestamp:   requestcontext.Now(ctx),
		SubjectType: subjectDriver,
		SubjectID:   driverID.String(),
		Action:      action,
		Reason:      reason,
		RequestID:   requestcontext.RequestID(ctx),
		ActorID:     requestcontext.Actor(ctx).ID,
		Severity:    sev,
	})
}

func (s *Service) count(fn func(m *shiftmetrics.Metrics)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

func wrapShiftErr(err error, msg string) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.New(dErrors.CodeConflict, "driver already has an open shift")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, "shift was closed by another request")
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "driver not found")
	case errors.As(err, &de):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
