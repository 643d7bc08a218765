package models

import (
	"time"

	"medcourier/internal/shipment/fieldguard"
	"medcourier/internal/shipment/lifecycle"
	id "medcourier/pkg/domain"
)

// Patch is an explicit partial update. Nil pointers are untouched fields.
// Unknown carries raw field names the caller sent that map to no attribute;
// the field guard rejects them.
type Patch struct {
	CommodityDescription   *string
	SpecimenCategory       *id.SpecimenCategory
	TemperatureKind        *id.TemperatureKind
	TemperatureMin         *float64
	TemperatureMax         *float64
	ReadyTime              *time.Time
	DeliveryDeadline       *time.Time
	AccessInstructions     *string
	DriverInstructions     *string
	Priority               *Priority
	PONumber               *string
	EstimatedContainers    *int
	EstimatedWeightKg      *float64
	DeclaredValueCents     *int64
	ShipperID              *id.ShipperID
	Notes                  *string
	QuoteAmountCents       *int64
	DriverQuoteAmountCents *int64
	Status                 *lifecycle.Status
	Unknown                []string
}

// Fields lists every field the patch touches.
func (p Patch) Fields() []fieldguard.Field {
	var fs []fieldguard.Field
	add := func(set bool, f fieldguard.Field) {
		if set {
			fs = append(fs, f)
		}
	}
	add(p.CommodityDescription != nil, fieldguard.FieldCommodityDescription)
	add(p.SpecimenCategory != nil, fieldguard.FieldSpecimenCategory)
	add(p.TemperatureKind != nil, fieldguard.FieldTemperatureKind)
	add(p.TemperatureMin != nil, fieldguard.FieldTemperatureMin)
	add(p.TemperatureMax != nil, fieldguard.FieldTemperatureMax)
	add(p.ReadyTime != nil, fieldguard.FieldReadyTime)
	add(p.DeliveryDeadline != nil, fieldguard.FieldDeliveryDeadline)
	add(p.AccessInstructions != nil, fieldguard.FieldAccessInstructions)
	add(p.DriverInstructions != nil, fieldguard.FieldDriverInstructions)
	add(p.Priority != nil, fieldguard.FieldPriority)
	add(p.PONumber != nil, fieldguard.FieldPONumber)
	add(p.EstimatedContainers != nil, fieldguard.FieldEstimatedContainers)
	add(p.EstimatedWeightKg != nil, fieldguard.FieldEstimatedWeight)
	add(p.DeclaredValueCents != nil, fieldguard.FieldDeclaredValue)
	add(p.ShipperID != nil, fieldguard.FieldShipperID)
	add(p.Notes != nil, fieldguard.FieldNotes)
	add(p.QuoteAmountCents != nil, fieldguard.FieldQuoteAmount)
	add(p.DriverQuoteAmountCents != nil, fieldguard.FieldDriverQuoteAmount)
	add(p.Status != nil, fieldguard.FieldStatus)
	for _, u := range p.Unknown {
		fs = append(fs, fieldguard.Field(u))
	}
	return fs
}

// IsEmpty reports whether the patch touches nothing.
func (p Patch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// CanApplyPatch runs the field guard against the current status.
func (s *Shipment) CanApplyPatch(p Patch) error {
	return fieldguard.Check(s.Status, p.Fields()).Err()
}

// ApplyPatch writes the attribute fields of p and revalidates the aggregate.
// Status is not applied here; the service routes it through the transition
// validator. On error the shipment is left unchanged.
func (s *Shipment) ApplyPatch(p Patch, now time.Time) error {
	next := *s
	if p.CommodityDescription != nil {
		next.CommodityDescription = *p.CommodityDescription
	}
	if p.SpecimenCategory != nil {
		next.SpecimenCategory = *p.SpecimenCategory
	}
	if p.TemperatureKind != nil {
		next.TemperatureKind = *p.TemperatureKind
	}
	if p.TemperatureMin != nil {
		next.TemperatureMin = p.TemperatureMin
	}
	if p.TemperatureMax != nil {
		next.TemperatureMax = p.TemperatureMax
	}
	if p.ReadyTime != nil {
		next.ReadyTime = p.ReadyTime
	}
	if p.DeliveryDeadline != nil {
		next.DeliveryDeadline = p.DeliveryDeadline
	}
	if p.AccessInstructions != nil {
		next.AccessInstructions = *p.AccessInstructions
	}
	if p.DriverInstructions != nil {
		next.DriverInstructions = *p.DriverInstructions
	}
	if p.Priority != nil {
		next.Priority = *p.Priority
	}
	if p.PONumber != nil {
		next.PONumber = *p.PONumber
	}
	if p.EstimatedContainers != nil {
		next.EstimatedContainers = p.EstimatedContainers
	}
	if p.EstimatedWeightKg != nil {
		next.EstimatedWeightKg = p.EstimatedWeightKg
	}
	if p.DeclaredValueCents != nil {
		next.DeclaredValueCents = p.DeclaredValueCents
	}
	if p.Notes != nil {
		next.Notes = *p.Notes
	}
	if p.QuoteAmountCents != nil {
		next.QuoteAmountCents = p.QuoteAmountCents
	}
	if p.DriverQuoteAmountCents != nil {
		next.DriverQuoteAmountCents = p.DriverQuoteAmountCents
	}
	if err := next.validateDescriptive(); err != nil {
		return err
	}
	next.UpdatedAt = now
	*s = next
	return nil
}
