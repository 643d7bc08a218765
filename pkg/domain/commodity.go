package domain

import dErrors "medcourier/pkg/domain-errors"

// TemperatureKind is a shipment's temperature handling requirement.
//
// Usage: construct via ParseTemperatureKind at trust boundaries; direct
// casting bypasses the allow-list.
type TemperatureKind string

const (
	TemperatureAmbient        TemperatureKind = "ambient"
	TemperatureRefrigerated   TemperatureKind = "refrigerated"
	TemperatureFrozen         TemperatureKind = "frozen"
	TemperatureControlledRoom TemperatureKind = "controlled_room"
	TemperatureDryIce         TemperatureKind = "dry_ice"
	TemperatureOther          TemperatureKind = "other"
)

var validTemperatureKinds = map[TemperatureKind]bool{
	TemperatureAmbient:        true,
	TemperatureRefrigerated:   true,
	TemperatureFrozen:         true,
	TemperatureControlledRoom: true,
	TemperatureDryIce:         true,
	TemperatureOther:          true,
}

func ParseTemperatureKind(s string) (TemperatureKind, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "temperature requirement cannot be empty")
	}
	k := TemperatureKind(s)
	if !validTemperatureKinds[k] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported temperature requirement: "+s)
	}
	return k, nil
}

// RequiresTemperatureControl is true for everything except ambient and other.
func (k TemperatureKind) RequiresTemperatureControl() bool {
	return k != TemperatureAmbient && k != TemperatureOther && k != ""
}

// SpecimenCategory is the regulatory category of the shipment contents.
type SpecimenCategory string

const (
	SpecimenNone           SpecimenCategory = "none"
	SpecimenUN3373         SpecimenCategory = "un3373"
	SpecimenExempt         SpecimenCategory = "exempt_human_specimen"
	SpecimenPharmaceutical SpecimenCategory = "pharmaceutical"
)

var validSpecimenCategories = map[SpecimenCategory]bool{
	SpecimenNone:           true,
	SpecimenUN3373:         true,
	SpecimenExempt:         true,
	SpecimenPharmaceutical: true,
}

func ParseSpecimenCategory(s string) (SpecimenCategory, error) {
	if s == "" {
		return SpecimenNone, nil
	}
	c := SpecimenCategory(s)
	if !validSpecimenCategories[c] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported specimen category: "+s)
	}
	return c, nil
}

// Certification is a driver capability required by some shipments.
type Certification string

const (
	CertUN3373                Certification = "un3373"
	CertTemperatureControlled Certification = "temperature_controlled"
)

func ParseCertification(s string) (Certification, error) {
	switch c := Certification(s); c {
	case CertUN3373, CertTemperatureControlled:
		return c, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported certification: "+s)
	}
}

// RequiredCertifications lists the certifications a driver needs to carry a
// shipment with this category and temperature requirement.
func RequiredCertifications(category SpecimenCategory, kind TemperatureKind) []Certification {
	var certs []Certification
	if category == SpecimenUN3373 {
		certs = append(certs, CertUN3373)
	}
	if kind.RequiresTemperatureControl() {
		certs = append(certs, CertTemperatureControlled)
	}
	return certs
}
