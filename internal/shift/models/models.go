package models

import (
	"math"
	"time"

	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

// Shift is one clock-in to clock-out span of a driver. A shift with no
// ClockOut is open; a driver has at most one open shift. Closed shifts are
// never changed.
type Shift struct {
	ID            id.ShiftID    `json:"id"`
	DriverID      id.DriverID   `json:"driver_id"`
	VehicleID     *id.VehicleID `json:"vehicle_id,omitempty"`
	ClockIn       time.Time     `json:"clock_in"`
	ClockOut      *time.Time    `json:"clock_out,omitempty"`
	TotalHours    *float64      `json:"total_hours,omitempty"`
	StartOdometer *int          `json:"start_odometer,omitempty"`
	EndOdometer   *int          `json:"end_odometer,omitempty"`
}

// Open starts a shift at now.
func Open(shiftID id.ShiftID, driverID id.DriverID, vehicleID *id.VehicleID, odometer *int, now time.Time) *Shift {
	return &Shift{
		ID:            shiftID,
		DriverID:      driverID,
		VehicleID:     vehicleID,
		ClockIn:       now,
		StartOdometer: odometer,
	}
}

func (s *Shift) IsOpen() bool {
	return s.ClockOut == nil
}

// Close ends the shift at now and records the elapsed hours rounded to two
// decimals.
func (s *Shift) Close(now time.Time, odometer *int) error {
	if !s.IsOpen() {
		return dErrors.New(dErrors.CodeValidation, "shift is already closed")
	}
	if now.Before(s.ClockIn) {
		return dErrors.New(dErrors.CodeValidation, "clock-out cannot precede clock-in")
	}
	hours := round2(now.Sub(s.ClockIn).Hours())
	s.ClockOut = &now
	s.TotalHours = &hours
	s.EndOdometer = odometer
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
