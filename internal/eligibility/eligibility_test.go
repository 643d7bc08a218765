package eligibility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"medcourier/internal/compliance"
	id "medcourier/pkg/domain"
)

type CheckerSuite struct {
	suite.Suite
	checker *Checker
	now     time.Time
}

func TestCheckerSuite(t *testing.T) {
	suite.Run(t, new(CheckerSuite))
}

func (s *CheckerSuite) SetupTest() {
	s.checker = NewChecker(nil)
	s.now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *CheckerSuite) vehicle(odometer int) compliance.VehicleSnapshot {
	expiry := s.now.AddDate(1, 0, 0)
	service := odometer - 1000
	return compliance.VehicleSnapshot{
		VehicleID:              id.NewVehicleID(),
		IsActive:               true,
		RegistrationExpiryDate: &expiry,
		CurrentOdometer:        odometer,
		LastOilChangeOdometer:  &service,
		RefrigerationCapable:   true,
	}
}

func (s *CheckerSuite) driver(vehicles ...compliance.VehicleSnapshot) DriverSnapshot {
	return DriverSnapshot{
		DriverID:       id.NewDriverID(),
		Certifications: []id.Certification{id.CertUN3373, id.CertTemperatureControlled},
		Vehicles:       vehicles,
	}
}

func (s *CheckerSuite) ambient() Requirements {
	return Requirements{TemperatureKind: id.TemperatureAmbient, SpecimenCategory: id.SpecimenNone}
}

func (s *CheckerSuite) TestHappyPath() {
	v := s.vehicle(20_000)
	res := s.checker.Check(s.driver(v), s.ambient(), s.now)
	s.True(res.Eligible)
	s.Equal(ReasonNone, res.Reason)
	s.Require().NotNil(res.Vehicle)
	s.Equal(v.VehicleID, res.Vehicle.VehicleID)
}

func (s *CheckerSuite) TestRuleOrder() {
	s.Run("opted out wins over missing vehicles", func() {
		d := s.driver()
		d.OptedOutOfAssignments = true
		s.Equal(ReasonOptedOut, s.checker.Check(d, s.ambient(), s.now).Reason)
	})

	s.Run("no active vehicle", func() {
		v := s.vehicle(20_000)
		v.IsActive = false
		s.Equal(ReasonNoActiveVehicle, s.checker.Check(s.driver(v), s.ambient(), s.now).Reason)
	})

	s.Run("all active vehicles overdue for service is a hard failure", func() {
		v := s.vehicle(20_000)
		anchor := 14_000
		v.LastOilChangeOdometer = &anchor
		res := s.checker.Check(s.driver(v), s.ambient(), s.now)
		s.False(res.Eligible)
		s.Equal(ReasonNoCompliantVehicle, res.Reason)
	})

	s.Run("one serviceable vehicle is enough", func() {
		overdue := s.vehicle(20_000)
		anchor := 10_000
		overdue.LastOilChangeOdometer = &anchor
		ok := s.vehicle(30_000)
		res := s.checker.Check(s.driver(overdue, ok), s.ambient(), s.now)
		s.True(res.Eligible)
		s.Equal(ok.VehicleID, res.Vehicle.VehicleID)
	})

	s.Run("expired registration", func() {
		v := s.vehicle(20_000)
		past := s.now.AddDate(0, 0, -1)
		v.RegistrationExpiryDate = &past
		s.Equal(ReasonRegistrationNoncompliant, s.checker.Check(s.driver(v), s.ambient(), s.now).Reason)
	})
}

func (s *CheckerSuite) TestCertifications() {
	s.Run("UN3373 specimens need certification", func() {
		d := s.driver(s.vehicle(20_000))
		d.Certifications = []id.Certification{id.CertTemperatureControlled}
		req := Requirements{TemperatureKind: id.TemperatureAmbient, SpecimenCategory: id.SpecimenUN3373}
		s.Equal(ReasonCertificationMismatch, s.checker.Check(d, req, s.now).Reason)
	})

	s.Run("temperature control needs certification", func() {
		d := s.driver(s.vehicle(20_000))
		d.Certifications = nil
		req := Requirements{TemperatureKind: id.TemperatureRefrigerated}
		s.Equal(ReasonCertificationMismatch, s.checker.Check(d, req, s.now).Reason)
	})

	s.Run("temperature control needs a refrigerated vehicle", func() {
		v := s.vehicle(20_000)
		v.RefrigerationCapable = false
		req := Requirements{TemperatureKind: id.TemperatureFrozen}
		s.Equal(ReasonCertificationMismatch, s.checker.Check(s.driver(v), req, s.now).Reason)
	})
}

func (s *CheckerSuite) TestTiming() {
	d := s.driver(s.vehicle(20_000))

	s.Run("deadline in the past", func() {
		past := s.now.Add(-time.Hour)
		req := s.ambient()
		req.DeliveryDeadline = &past
		s.Equal(ReasonTimingInfeasible, s.checker.Check(d, req, s.now).Reason)
	})

	s.Run("deadline before ready time", func() {
		ready := s.now.Add(4 * time.Hour)
		deadline := s.now.Add(2 * time.Hour)
		req := s.ambient()
		req.ReadyTime = &ready
		req.DeliveryDeadline = &deadline
		s.Equal(ReasonTimingInfeasible, s.checker.Check(d, req, s.now).Reason)
	})

	s.Run("feasible window", func() {
		ready := s.now.Add(time.Hour)
		deadline := s.now.Add(5 * time.Hour)
		req := s.ambient()
		req.ReadyTime = &ready
		req.DeliveryDeadline = &deadline
		s.True(s.checker.Check(d, req, s.now).Eligible)
	})
}
