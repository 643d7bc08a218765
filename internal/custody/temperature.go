package custody

import (
	"fmt"
	"math"

	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

// Plausible absolute range for a recorded temperature in °C. Readings outside
// it are data-entry or sensor errors and are rejected, independent of the
// shipment's own band.
const (
	MinPlausibleCelsius = -100.0
	MaxPlausibleCelsius = 100.0
)

// TemperatureBand is the shipment's configured safe range. Nil bounds fall
// back to the standard band of the temperature kind.
type TemperatureBand struct {
	Min *float64
	Max *float64
}

// standardBands are used when a shipment carries no explicit band.
var standardBands = map[id.TemperatureKind][2]float64{
	id.TemperatureRefrigerated:   {2, 8},
	id.TemperatureFrozen:         {-25, -15},
	id.TemperatureControlledRoom: {15, 25},
	id.TemperatureDryIce:         {-80, -60},
}

// Resolve fills missing bounds from the kind's standard band.
func (b TemperatureBand) Resolve(kind id.TemperatureKind) TemperatureBand {
	std, ok := standardBands[kind]
	if !ok {
		return b
	}
	if b.Min == nil {
		lo := std[0]
		b.Min = &lo
	}
	if b.Max == nil {
		hi := std[1]
		b.Max = &hi
	}
	return b
}

// Contains reports whether v is within the band. Missing bounds are open.
func (b TemperatureBand) Contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// Reading is an accepted temperature observation.
type Reading struct {
	Value *float64
	// Exception marks an excursion outside the shipment's band. The reading is
	// kept and flagged for compliance review rather than rejected.
	Exception bool
}

// ValidateTemperatureReading checks a reading captured at a checkpoint.
// required is true at checkpoints where the kind demands a reading.
func ValidateTemperatureReading(value *float64, kind id.TemperatureKind, required bool, band TemperatureBand) (Reading, error) {
	if value == nil {
		if required {
			return Reading{}, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("temperature reading is required for %s shipments", kind))
		}
		return Reading{}, nil
	}

	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Reading{}, dErrors.New(dErrors.CodeValidation, "temperature reading is not a number")
	}
	if v < MinPlausibleCelsius || v > MaxPlausibleCelsius {
		return Reading{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("temperature reading %.1f°C is outside the plausible range [%.0f, %.0f]", v, MinPlausibleCelsius, MaxPlausibleCelsius))
	}

	return Reading{
		Value:     &v,
		Exception: !band.Resolve(kind).Contains(v),
	}, nil
}

// RequiresReading reports whether a checkpoint reading is mandatory.
func RequiresReading(kind id.TemperatureKind) bool {
	return kind.RequiresTemperatureControl()
}
