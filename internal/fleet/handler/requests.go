package handler

import (
	"strings"
	"time"

	"medcourier/internal/fleet/models"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

const dateLayout = "2006-01-02"

type RegisterDriverRequest struct {
	Name           string   `json:"name"`
	Certifications []string `json:"certifications,omitempty"`

	certs []id.Certification
}

func (r *RegisterDriverRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	r.certs = r.certs[:0]
	for _, raw := range r.Certifications {
		c, err := id.ParseCertification(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		r.certs = append(r.certs, c)
	}
	return nil
}

type OptOutRequest struct {
	OptedOut bool `json:"opted_out"`
}

func (r *OptOutRequest) Validate() error { return nil }

type CertificationRequest struct {
	Certification string `json:"certification"`

	cert id.Certification
}

func (r *CertificationRequest) Validate() error {
	c, err := id.ParseCertification(strings.TrimSpace(r.Certification))
	if err != nil {
		return err
	}
	r.cert = c
	return nil
}

// AddVehicleRequest carries the registration expiry as a calendar date.
type AddVehicleRequest struct {
	Plate                  string `json:"plate"`
	RegistrationExpiryDate string `json:"registration_expiry_date,omitempty"`
	CurrentOdometer        int    `json:"current_odometer"`
	RefrigerationCapable   bool   `json:"refrigeration_capable"`

	expiry *time.Time
}

func (r *AddVehicleRequest) Validate() error {
	if strings.TrimSpace(r.Plate) == "" {
		return dErrors.New(dErrors.CodeValidation, "plate is required")
	}
	if r.RegistrationExpiryDate != "" {
		t, err := time.Parse(dateLayout, r.RegistrationExpiryDate)
		if err != nil {
			return dErrors.New(dErrors.CodeInvalidInput, "registration_expiry_date must be YYYY-MM-DD")
		}
		r.expiry = &t
	}
	return nil
}

func (r *AddVehicleRequest) Draft() models.VehicleDraft {
	return models.VehicleDraft{
		Plate:                  r.Plate,
		RegistrationExpiryDate: r.expiry,
		CurrentOdometer:        r.CurrentOdometer,
		RefrigerationCapable:   r.RefrigerationCapable,
	}
}

type DeactivateVehicleRequest struct {
	Reason string `json:"reason"`
}

func (r *DeactivateVehicleRequest) Validate() error {
	if strings.TrimSpace(r.Reason) == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return nil
}

type LogMaintenanceRequest struct {
	Type        string     `json:"type"`
	Odometer    int        `json:"odometer"`
	CostCents   *int64     `json:"cost_cents,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	PerformedAt *time.Time `json:"performed_at,omitempty"`

	typ models.MaintenanceType
}

func (r *LogMaintenanceRequest) Validate() error {
	t, err := models.ParseMaintenanceType(r.Type)
	if err != nil {
		return err
	}
	r.typ = t
	return nil
}

func (r *LogMaintenanceRequest) Draft() models.MaintenanceDraft {
	d := models.MaintenanceDraft{
		Type:      r.typ,
		Odometer:  r.Odometer,
		CostCents: r.CostCents,
		Notes:     r.Notes,
	}
	if r.PerformedAt != nil {
		d.PerformedAt = *r.PerformedAt
	}
	return d
}
