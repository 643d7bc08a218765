// Package eligibility decides whether a driver, with the vehicles they own, may
// take a shipment. Checks are pure: callers load fresh snapshots and pass the
// evaluation time explicitly.
package eligibility

import (
	"fmt"
	"slices"
	"time"

	"medcourier/internal/compliance"
	id "medcourier/pkg/domain"
)

// DriverSnapshot is the driver state eligibility is computed from.
type DriverSnapshot struct {
	DriverID              id.DriverID
	OptedOutOfAssignments bool
	Certifications        []id.Certification
	Vehicles              []compliance.VehicleSnapshot
}

// HasCertification reports whether the driver holds c.
func (d DriverSnapshot) HasCertification(c id.Certification) bool {
	return slices.Contains(d.Certifications, c)
}

// Requirements are the shipment-side inputs to an eligibility check.
type Requirements struct {
	TemperatureKind  id.TemperatureKind
	SpecimenCategory id.SpecimenCategory
	ReadyTime        *time.Time
	DeliveryDeadline *time.Time
}

// Reason is a machine-readable eligibility failure.
type Reason string

const (
	ReasonNone                     Reason = ""
	ReasonOptedOut                 Reason = "driver_opted_out"
	ReasonNoActiveVehicle          Reason = "no_active_vehicle"
	ReasonNoCompliantVehicle       Reason = "no_compliant_vehicle"
	ReasonRegistrationNoncompliant Reason = "registration_noncompliant"
	ReasonCertificationMismatch    Reason = "certification_mismatch"
	ReasonTimingInfeasible         Reason = "timing_infeasible"
)

// Result is the outcome of a check. Eligible results carry the vehicle that
// satisfies every requirement.
type Result struct {
	Eligible bool
	Reason   Reason
	Message  string
	Vehicle  *compliance.VehicleSnapshot
}

func fail(reason Reason, msg string) Result {
	return Result{Reason: reason, Message: msg}
}

// Checker runs eligibility checks with a shared compliance evaluator.
type Checker struct {
	evaluator *compliance.Evaluator
}

func NewChecker(evaluator *compliance.Evaluator) *Checker {
	if evaluator == nil {
		evaluator = compliance.NewEvaluator(compliance.DefaultThresholds())
	}
	return &Checker{evaluator: evaluator}
}

// Check applies the rules in order and stops at the first failure. There is no
// partial credit: any unmet requirement fails the whole check.
func (c *Checker) Check(driver DriverSnapshot, req Requirements, now time.Time) Result {
	if driver.OptedOutOfAssignments {
		return fail(ReasonOptedOut, "driver has opted out of assignments")
	}

	var active []compliance.VehicleSnapshot
	for _, v := range driver.Vehicles {
		if v.IsActive {
			active = append(active, v)
		}
	}
	if len(active) == 0 {
		return fail(ReasonNoActiveVehicle, "driver has no active vehicle")
	}

	var serviceable []compliance.VehicleSnapshot
	for _, v := range active {
		if !c.evaluator.Maintenance(v).BlocksAssignment(compliance.AssignmentNew) {
			serviceable = append(serviceable, v)
		}
	}
	if len(serviceable) == 0 {
		return fail(ReasonNoCompliantVehicle, "no active vehicle is maintenance-compliant")
	}

	var registered []compliance.VehicleSnapshot
	for _, v := range serviceable {
		if c.evaluator.Registration(v, now).Compliant() {
			registered = append(registered, v)
		}
	}
	if len(registered) == 0 {
		return fail(ReasonRegistrationNoncompliant, "no maintenance-compliant vehicle has a valid registration")
	}

	for _, cert := range id.RequiredCertifications(req.SpecimenCategory, req.TemperatureKind) {
		if !driver.HasCertification(cert) {
			return fail(ReasonCertificationMismatch, fmt.Sprintf("driver lacks %s certification", cert))
		}
	}

	candidates := registered
	if req.TemperatureKind.RequiresTemperatureControl() {
		candidates = slices.DeleteFunc(slices.Clone(registered), func(v compliance.VehicleSnapshot) bool {
			return !v.RefrigerationCapable
		})
		if len(candidates) == 0 {
			return fail(ReasonCertificationMismatch, fmt.Sprintf("no compliant vehicle can carry %s shipments", req.TemperatureKind))
		}
	}

	if req.DeliveryDeadline != nil {
		if req.DeliveryDeadline.Before(now) {
			return fail(ReasonTimingInfeasible, "delivery deadline has already passed")
		}
		if req.ReadyTime != nil && !req.DeliveryDeadline.After(*req.ReadyTime) {
			return fail(ReasonTimingInfeasible, "delivery deadline is not after the ready time")
		}
	}

	vehicle := candidates[0]
	return Result{Eligible: true, Vehicle: &vehicle}
}
