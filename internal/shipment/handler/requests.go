package handler

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"medcourier/internal/custody"
	"medcourier/internal/shipment/fieldguard"
	"medcourier/internal/shipment/lifecycle"
	"medcourier/internal/shipment/models"
	id "medcourier/pkg/domain"
	dErrors "medcourier/pkg/domain-errors"
)

const maxReasonLength = 1000

// CreateShipmentRequest is the create payload. Validate parses it into a Draft.
type CreateShipmentRequest struct {
	ShipperID              string     `json:"shipper_id"`
	CommodityDescription   string     `json:"commodity_description"`
	SpecimenCategory       string     `json:"specimen_category"`
	TemperatureRequirement string     `json:"temperature_requirement"`
	TemperatureMin         *float64   `json:"temperature_min,omitempty"`
	TemperatureMax         *float64   `json:"temperature_max,omitempty"`
	ReadyTime              *time.Time `json:"ready_time,omitempty"`
	DeliveryDeadline       *time.Time `json:"delivery_deadline,omitempty"`
	AccessInstructions     string     `json:"access_instructions,omitempty"`
	DriverInstructions     string     `json:"driver_instructions,omitempty"`
	Priority               string     `json:"priority,omitempty"`
	PONumber               string     `json:"po_number,omitempty"`
	EstimatedContainers    *int       `json:"estimated_containers,omitempty"`
	EstimatedWeightKg      *float64   `json:"estimated_weight_kg,omitempty"`
	DeclaredValueCents     *int64     `json:"declared_value_cents,omitempty"`
	Notes                  string     `json:"notes,omitempty"`

	draft models.Draft
}

func (r *CreateShipmentRequest) Validate() error {
	shipperID, err := id.ParseShipperID(strings.TrimSpace(r.ShipperID))
	if err != nil {
		return dErrors.New(dErrors.CodeValidation, "shipper_id must be a valid id")
	}
	category, err := id.ParseSpecimenCategory(r.SpecimenCategory)
	if err != nil {
		return err
	}
	kind, err := id.ParseTemperatureKind(r.TemperatureRequirement)
	if err != nil {
		return err
	}
	priority, err := models.ParsePriority(r.Priority)
	if err != nil {
		return err
	}
	r.draft = models.Draft{
		ShipperID:            shipperID,
		CommodityDescription: strings.TrimSpace(r.CommodityDescription),
		SpecimenCategory:     category,
		TemperatureKind:      kind,
		TemperatureMin:       r.TemperatureMin,
		TemperatureMax:       r.TemperatureMax,
		ReadyTime:            r.ReadyTime,
		DeliveryDeadline:     r.DeliveryDeadline,
		AccessInstructions:   strings.TrimSpace(r.AccessInstructions),
		DriverInstructions:   strings.TrimSpace(r.DriverInstructions),
		Priority:             priority,
		PONumber:             strings.TrimSpace(r.PONumber),
		EstimatedContainers:  r.EstimatedContainers,
		EstimatedWeightKg:    r.EstimatedWeightKg,
		DeclaredValueCents:   r.DeclaredValueCents,
		Notes:                strings.TrimSpace(r.Notes),
	}
	return nil
}

// Draft returns the parsed draft. Call Validate first.
func (r *CreateShipmentRequest) Draft() models.Draft {
	return r.draft
}

// TransitionRequest asks for a status change.
type TransitionRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`

	status lifecycle.Status
}

func (r *TransitionRequest) Validate() error {
	st, err := lifecycle.ParseStatus(strings.TrimSpace(r.Status))
	if err != nil {
		return err
	}
	r.status = st
	return nil
}

func (r *TransitionRequest) Target() lifecycle.Status {
	return r.status
}

// ReasonRequest carries the free-text reason for cancel and deny.
type ReasonRequest struct {
	Reason string `json:"reason"`
}

func (r *ReasonRequest) Validate() error {
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}

// CaptureRequest is a pickup or delivery capture. The signature image travels
// base64-encoded.
type CaptureRequest struct {
	Signature                  []byte   `json:"signature,omitempty"`
	SignerName                 string   `json:"signer_name,omitempty"`
	SignatureUnavailableReason string   `json:"signature_unavailable_reason,omitempty"`
	Temperature                *float64 `json:"temperature,omitempty"`
}

// Validate leaves the custody rules to the domain; it only bounds the name.
func (r *CaptureRequest) Validate() error {
	if len(r.SignerName) > custody.MaxSignerNameLength {
		return dErrors.New(dErrors.CodeValidation, "signer_name is too long")
	}
	return nil
}

func (r *CaptureRequest) Capture() models.Capture {
	return models.Capture{
		Signature: custody.Signature{
			Blob:              r.Signature,
			SignerName:        r.SignerName,
			UnavailableReason: r.SignatureUnavailableReason,
		},
		Temperature: r.Temperature,
	}
}

// DecodePatch builds a Patch from raw JSON members. Keys that are not known
// fields are kept in Patch.Unknown so the field guard rejects them rather
// than silently dropping them. Null values are rejected.
func DecodePatch(raw map[string]json.RawMessage) (models.Patch, error) {
	var p models.Patch
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		msg := raw[key]
		if bytes.Equal(bytes.TrimSpace(msg), []byte("null")) {
			return models.Patch{}, dErrors.Newf(dErrors.CodeValidation, "%s cannot be null", key)
		}
		var err error
		switch fieldguard.Field(key) {
		case fieldguard.FieldCommodityDescription:
			p.CommodityDescription, err = decodeField[string](msg)
		case fieldguard.FieldSpecimenCategory:
			p.SpecimenCategory, err = decodeParsed(msg, id.ParseSpecimenCategory)
		case fieldguard.FieldTemperatureKind:
			p.TemperatureKind, err = decodeParsed(msg, id.ParseTemperatureKind)
		case fieldguard.FieldTemperatureMin:
			p.TemperatureMin, err = decodeField[float64](msg)
		case fieldguard.FieldTemperatureMax:
			p.TemperatureMax, err = decodeField[float64](msg)
		case fieldguard.FieldReadyTime:
			p.ReadyTime, err = decodeField[time.Time](msg)
		case fieldguard.FieldDeliveryDeadline:
			p.DeliveryDeadline, err = decodeField[time.Time](msg)
		case fieldguard.FieldAccessInstructions:
			p.AccessInstructions, err = decodeField[string](msg)
		case fieldguard.FieldDriverInstructions:
			p.DriverInstructions, err = decodeField[string](msg)
		case fieldguard.FieldPriority:
			p.Priority, err = decodeParsed(msg, models.ParsePriority)
		case fieldguard.FieldPONumber:
			p.PONumber, err = decodeField[string](msg)
		case fieldguard.FieldEstimatedContainers:
			p.EstimatedContainers, err = decodeField[int](msg)
		case fieldguard.FieldEstimatedWeight:
			p.EstimatedWeightKg, err = decodeField[float64](msg)
		case fieldguard.FieldDeclaredValue:
			p.DeclaredValueCents, err = decodeField[int64](msg)
		case fieldguard.FieldShipperID:
			p.ShipperID, err = decodeParsed(msg, id.ParseShipperID)
		case fieldguard.FieldNotes:
			p.Notes, err = decodeField[string](msg)
		case fieldguard.FieldQuoteAmount:
			p.QuoteAmountCents, err = decodeField[int64](msg)
		case fieldguard.FieldDriverQuoteAmount:
			p.DriverQuoteAmountCents, err = decodeField[int64](msg)
		case fieldguard.FieldStatus:
			p.Status, err = decodeParsed(msg, lifecycle.ParseStatus)
		default:
			p.Unknown = append(p.Unknown, key)
		}
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
				return models.Patch{}, err
			}
			return models.Patch{}, dErrors.Wrap(err, dErrors.CodeValidation, "invalid value for "+key)
		}
	}
	return p, nil
}

func decodeField[T any](msg json.RawMessage) (*T, error) {
	var v T
	if err := json.Unmarshal(msg, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeParsed[T any](msg json.RawMessage, parse func(string) (T, error)) (*T, error) {
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return nil, err
	}
	v, err := parse(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
