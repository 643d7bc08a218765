package compliance

// Named thresholds. Everything that reads a threshold goes through Thresholds
// so tests and tuning never depend on scattered literals.
const (
	// DefaultRegistrationExpiringDays flags registrations expiring within this
	// many days as EXPIRING (still compliant).
	DefaultRegistrationExpiringDays = 30

	// Reminder tiers for expiring registrations.
	ReminderTierMonth = 30
	ReminderTierWeek  = 7
	ReminderTierDay   = 1

	// DefaultMaintenanceWarningMiles is Tier A: soft flag.
	DefaultMaintenanceWarningMiles = 4500
	// DefaultMaintenanceDueMiles is Tier B: hard block on new assignments.
	DefaultMaintenanceDueMiles = 5000
)

// Thresholds configures the evaluator.
type Thresholds struct {
	RegistrationExpiringDays int
	MaintenanceWarningMiles  int
	MaintenanceDueMiles      int
}

// DefaultThresholds returns the production thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RegistrationExpiringDays: DefaultRegistrationExpiringDays,
		MaintenanceWarningMiles:  DefaultMaintenanceWarningMiles,
		MaintenanceDueMiles:      DefaultMaintenanceDueMiles,
	}
}

// withDefaults fills zero fields so a partially populated config is usable.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.RegistrationExpiringDays <= 0 {
		t.RegistrationExpiringDays = d.RegistrationExpiringDays
	}
	if t.MaintenanceWarningMiles <= 0 {
		t.MaintenanceWarningMiles = d.MaintenanceWarningMiles
	}
	if t.MaintenanceDueMiles <= 0 {
		t.MaintenanceDueMiles = d.MaintenanceDueMiles
	}
	return t
}

// ReminderTier returns the registration reminder tier (30, 7 or 1 days) that
// daysUntilExpiry falls into, or 0 when no reminder is due. Expired
// registrations (negative days) fall in the 1-day tier.
func ReminderTier(daysUntilExpiry int) int {
	switch {
	case daysUntilExpiry <= ReminderTierDay:
		return ReminderTierDay
	case daysUntilExpiry <= ReminderTierWeek:
		return ReminderTierWeek
	case daysUntilExpiry <= ReminderTierMonth:
		return ReminderTierMonth
	default:
		return 0
	}
}
