package compliance

import (
	"fmt"
	"time"
)

// Evaluator turns vehicle snapshots into verdicts. It holds no state besides
// its thresholds and is safe for concurrent use.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator builds an evaluator; zero threshold fields take defaults.
func NewEvaluator(t Thresholds) *Evaluator {
	return &Evaluator{thresholds: t.withDefaults()}
}

// Thresholds returns the effective thresholds.
func (e *Evaluator) Thresholds() Thresholds {
	return e.thresholds
}

// Evaluate runs both registration and maintenance evaluation.
func (e *Evaluator) Evaluate(v VehicleSnapshot, now time.Time) Verdict {
	return Verdict{
		VehicleID:    v.VehicleID,
		Registration: e.Registration(v, now),
		Maintenance:  e.Maintenance(v),
		EvaluatedAt:  now,
	}
}

// Registration evaluates registration compliance. Missing data is a failure,
// never an implicit pass.
func (e *Evaluator) Registration(v VehicleSnapshot, now time.Time) RegistrationVerdict {
	if !v.IsActive {
		return RegistrationVerdict{
			Status:  RegistrationInactive,
			Message: "vehicle is inactive",
		}
	}
	if v.RegistrationExpiryDate == nil {
		return RegistrationVerdict{
			Status:  RegistrationMissing,
			Message: "registration expiry date is missing",
		}
	}

	days := daysUntil(*v.RegistrationExpiryDate, now)
	switch {
	case days < 0:
		return RegistrationVerdict{
			Status:          RegistrationExpired,
			Message:         fmt.Sprintf("registration expired %d day(s) ago", -days),
			DaysUntilExpiry: &days,
			ReminderTier:    ReminderTier(days),
		}
	case days <= e.thresholds.RegistrationExpiringDays:
		msg := fmt.Sprintf("registration expires in %d day(s)", days)
		if days == 0 {
			msg = "registration expires today"
		}
		return RegistrationVerdict{
			Status:          RegistrationExpiring,
			Message:         msg,
			DaysUntilExpiry: &days,
			ReminderTier:    ReminderTier(days),
		}
	default:
		return RegistrationVerdict{
			Status:          RegistrationValid,
			Message:         "registration is valid",
			DaysUntilExpiry: &days,
		}
	}
}

// Maintenance evaluates miles driven since the most recent oil change. A
// vehicle with no oil change on record counts its whole odometer.
func (e *Evaluator) Maintenance(v VehicleSnapshot) MaintenanceVerdict {
	anchor := 0
	if v.LastOilChangeOdometer != nil {
		anchor = *v.LastOilChangeOdometer
	}
	miles := v.CurrentOdometer - anchor
	if miles < 0 {
		miles = 0
	}

	verdict := MaintenanceVerdict{
		MilesSinceService: miles,
		LastServiceAt:     v.LastOilChangeAt,
	}
	switch {
	case miles > e.thresholds.MaintenanceDueMiles:
		verdict.Status = MaintenanceDue
		verdict.Message = fmt.Sprintf("oil change overdue: %d miles since last service (limit %d)", miles, e.thresholds.MaintenanceDueMiles)
	case miles > e.thresholds.MaintenanceWarningMiles:
		verdict.Status = MaintenanceWarning
		verdict.Message = fmt.Sprintf("oil change due soon: %d miles since last service", miles)
	default:
		verdict.Status = MaintenanceValid
		verdict.Message = "maintenance is current"
	}
	return verdict
}

// daysUntil counts whole calendar days (UTC) from now to the expiry date.
func daysUntil(expiry, now time.Time) int {
	e := truncateDay(expiry)
	n := truncateDay(now)
	return int(e.Sub(n).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var defaultEvaluator = NewEvaluator(DefaultThresholds())

// EvaluateRegistration evaluates with default thresholds.
func EvaluateRegistration(v VehicleSnapshot, now time.Time) RegistrationVerdict {
	return defaultEvaluator.Registration(v, now)
}

// EvaluateMaintenance evaluates with default thresholds.
func EvaluateMaintenance(v VehicleSnapshot) MaintenanceVerdict {
	return defaultEvaluator.Maintenance(v)
}
