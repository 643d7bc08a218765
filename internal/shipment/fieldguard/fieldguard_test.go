package fieldguard

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medcourier/internal/shipment/lifecycle"
	dErrors "medcourier/pkg/domain-errors"
)

var protected = []Field{
	FieldCommodityDescription,
	FieldSpecimenCategory,
	FieldTemperatureKind,
	FieldTemperatureMin,
	FieldTemperatureMax,
	FieldReadyTime,
	FieldDeliveryDeadline,
	FieldAccessInstructions,
	FieldDriverInstructions,
	FieldPriority,
	FieldPONumber,
	FieldEstimatedContainers,
	FieldEstimatedWeight,
	FieldDeclaredValue,
}

func TestProtectedFieldsLockAtPickup(t *testing.T) {
	for _, st := range lifecycle.All {
		want := !lifecycle.IsLocked(st) && !st.IsSideTerminal()
		for _, f := range protected {
			assert.Equal(t, want, CheckFieldEditable(st, f), "%s at %s", f, st)
		}
	}
}

func TestCancelledAndDeniedFreezeDescriptiveFields(t *testing.T) {
	for _, st := range []lifecycle.Status{lifecycle.StatusCancelled, lifecycle.StatusDenied} {
		d := Check(st, []Field{FieldPONumber, FieldNotes, FieldCommodityDescription})
		require.False(t, d.Allowed(), st)
		assert.Equal(t, []Field{FieldCommodityDescription, FieldPONumber}, d.Restricted, st)
		assert.True(t, CheckFieldEditable(st, FieldNotes), st)
		assert.True(t, CheckFieldEditable(st, FieldStatus), st)
	}
}

func TestShipperIsAlwaysRestricted(t *testing.T) {
	for _, st := range lifecycle.All {
		assert.False(t, CheckFieldEditable(st, FieldShipperID), st)
	}
}

func TestUnknownFieldsAreRestricted(t *testing.T) {
	d := Check(lifecycle.StatusNew, []Field{"internal_cost", FieldNotes})
	assert.False(t, d.Allowed())
	assert.Equal(t, []Field{"internal_cost"}, d.Restricted)
}

func TestCheckReturnsSortedRestrictedSubset(t *testing.T) {
	d := Check(lifecycle.StatusInTransit, []Field{
		FieldPriority, FieldNotes, FieldCommodityDescription, FieldStatus, FieldPriority,
	})
	require.False(t, d.Allowed())
	assert.Equal(t, []Field{FieldCommodityDescription, FieldPriority}, d.Restricted)

	err := d.Err()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeRestrictedField))
	assert.Contains(t, err.Error(), "commodity_description, priority")

	var rfe *RestrictedFieldsError
	require.True(t, errors.As(err, &rfe))
	assert.Equal(t, lifecycle.StatusInTransit, rfe.Status)
}

func TestAllowedBeforePickup(t *testing.T) {
	d := Check(lifecycle.StatusScheduled, append([]Field{FieldStatus}, protected...))
	assert.True(t, d.Allowed())
	assert.NoError(t, d.Err())
}
