package models

import (
	"time"

	"medcourier/internal/shipment/lifecycle"
	id "medcourier/pkg/domain"
)

type EventType string

const (
	EventCreated          EventType = "created"
	EventUpdated          EventType = "updated"
	EventStatusChanged    EventType = "status_changed"
	EventAssigned         EventType = "assigned"
	EventUnassigned       EventType = "unassigned"
	EventPickupRecorded   EventType = "pickup_recorded"
	EventDeliveryRecorded EventType = "delivery_recorded"
)

// TrackingEvent is an append-only chain-of-custody entry. Events are never
// updated or deleted while their shipment exists.
type TrackingEvent struct {
	ID         id.EventID        `json:"id"`
	ShipmentID id.ShipmentID     `json:"shipment_id"`
	Type       EventType         `json:"type"`
	FromStatus lifecycle.Status  `json:"from_status,omitempty"`
	ToStatus   lifecycle.Status  `json:"to_status,omitempty"`
	ActorID    string            `json:"actor_id,omitempty"`
	Note       string            `json:"note,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// NewTrackingEvent builds an event for s recording a move from one status to
// the shipment's current status.
func NewTrackingEvent(s *Shipment, typ EventType, from lifecycle.Status, actorID, note string, now time.Time) *TrackingEvent {
	return &TrackingEvent{
		ID:         id.NewEventID(),
		ShipmentID: s.ID,
		Type:       typ,
		FromStatus: from,
		ToStatus:   s.Status,
		ActorID:    actorID,
		Note:       note,
		CreatedAt:  now,
	}
}

// WithMetadata sets a metadata key and returns the event.
func (e *TrackingEvent) WithMetadata(key, value string) *TrackingEvent {
	if value == "" {
		return e
	}
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
