package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

var now = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)

func TestNewDriver(t *testing.T) {
	d, err := NewDriver(id.NewDriverID(), "  Ana Ruiz ", []id.Certification{
		id.CertUN3373, id.CertTemperatureControlled, id.CertUN3373,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Ana Ruiz", d.Name)
	assert.Equal(t, []id.Certification{id.CertTemperatureControlled, id.CertUN3373}, d.Certifications)

	_, err = NewDriver(id.NewDriverID(), " ", nil, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDriverAddCertification(t *testing.T) {
	d, err := NewDriver(id.NewDriverID(), "Ana Ruiz", nil, now)
	require.NoError(t, err)

	assert.True(t, d.AddCertification(id.CertUN3373, now.Add(time.Hour)))
	assert.False(t, d.AddCertification(id.CertUN3373, now.Add(2*time.Hour)))
	assert.Equal(t, now.Add(time.Hour), d.UpdatedAt)
}

func TestVehicleOdometer(t *testing.T) {
	v, err := NewVehicle(id.NewVehicleID(), id.NewDriverID(), VehicleDraft{Plate: "ab-123", CurrentOdometer: 1000}, now)
	require.NoError(t, err)
	assert.Equal(t, "AB-123", v.Plate)
	assert.True(t, v.IsActive)

	assert.False(t, v.AdvanceOdometer(900, now), "odometer never moves backwards")
	assert.Equal(t, 1000, v.CurrentOdometer)
	assert.True(t, v.AdvanceOdometer(1200, now))
	assert.Equal(t, 1200, v.CurrentOdometer)

	_, err = NewVehicle(id.NewVehicleID(), id.NewDriverID(), VehicleDraft{Plate: "X", CurrentOdometer: -1}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestVehicleDeactivation(t *testing.T) {
	v, err := NewVehicle(id.NewVehicleID(), id.NewDriverID(), VehicleDraft{Plate: "AB-123"}, now)
	require.NoError(t, err)

	require.NoError(t, v.CanDeactivate())
	v.ApplyDeactivation(now)
	assert.False(t, v.IsActive)
	assert.True(t, dErrors.HasCode(v.CanDeactivate(), dErrors.CodeConflict))
}

func TestVehicleSnapshot(t *testing.T) {
	v, err := NewVehicle(id.NewVehicleID(), id.NewDriverID(), VehicleDraft{Plate: "AB-123", CurrentOdometer: 6200}, now)
	require.NoError(t, err)

	snap := v.Snapshot(nil)
	assert.Nil(t, snap.LastOilChangeOdometer)
	assert.Equal(t, 6200, snap.CurrentOdometer)

	oil := &MaintenanceLog{Type: MaintenanceOilChange, Odometer: 5000, PerformedAt: now.AddDate(0, -1, 0)}
	snap = v.Snapshot(oil)
	require.NotNil(t, snap.LastOilChangeOdometer)
	assert.Equal(t, 5000, *snap.LastOilChangeOdometer)
}

func TestNewMaintenanceLog(t *testing.T) {
	vehicleID := id.NewVehicleID()

	log, err := NewMaintenanceLog(id.NewMaintenanceLogID(), vehicleID, MaintenanceDraft{Type: MaintenanceOilChange, Odometer: 4000}, now)
	require.NoError(t, err)
	assert.Equal(t, now, log.PerformedAt, "performed_at defaults to now")

	_, err = NewMaintenanceLog(id.NewMaintenanceLogID(), vehicleID, MaintenanceDraft{
		Type: MaintenanceOilChange, Odometer: 4000, PerformedAt: now.Add(time.Hour),
	}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	negative := int64(-5)
	_, err = NewMaintenanceLog(id.NewMaintenanceLogID(), vehicleID, MaintenanceDraft{
		Type: MaintenanceRepair, Odometer: 4000, CostCents: &negative,
	}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = ParseMaintenanceType("wash")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
