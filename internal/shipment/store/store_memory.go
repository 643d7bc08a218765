package store

import (
	"context"
	"slices"
	"sync"

	"medcourier/internal/shipment/models"
	"medcourier/internal/shipment/ports"
	id "medcourier/pkg/domain"
	"medcourier/pkg/platform/sentinel"
)

// InMemoryShipmentStore keeps shipments in a map. Values are copied on the way
// in and out so callers never share state with the store.
type InMemoryShipmentStore struct {
	mu        sync.RWMutex
	shipments map[id.ShipmentID]*models.Shipment
	order     []id.ShipmentID
}

func NewInMemoryShipmentStore() *InMemoryShipmentStore {
	return &InMemoryShipmentStore{shipments: make(map[id.ShipmentID]*models.Shipment)}
}

func clone(s *models.Shipment) *models.Shipment {
	c := *s
	return &c
}

func (s *InMemoryShipmentStore) Create(_ context.Context, sh *models.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shipments[sh.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	for _, existing := range s.shipments {
		if existing.TrackingCode == sh.TrackingCode {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.shipments[sh.ID] = clone(sh)
	s.order = append(s.order, sh.ID)
	return nil
}

func (s *InMemoryShipmentStore) FindByID(_ context.Context, shipmentID id.ShipmentID) (*models.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shipments[shipmentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(sh), nil
}

// FindByIDForUpdate relies on the surrounding transaction for locking.
func (s *InMemoryShipmentStore) FindByIDForUpdate(ctx context.Context, shipmentID id.ShipmentID) (*models.Shipment, error) {
	return s.FindByID(ctx, shipmentID)
}

func (s *InMemoryShipmentStore) FindByIDsForUpdate(_ context.Context, ids []id.ShipmentID) ([]*models.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Shipment, 0, len(ids))
	for _, shipmentID := range ids {
		if sh, ok := s.shipments[shipmentID]; ok {
			out = append(out, clone(sh))
		}
	}
	return out, nil
}

func (s *InMemoryShipmentStore) FindByTrackingCode(_ context.Context, code id.TrackingCode) (*models.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sh := range s.shipments {
		if sh.TrackingCode == code {
			return clone(sh), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryShipmentStore) List(_ context.Context, f ports.Filter) ([]*models.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Shipment
	for _, shipmentID := range s.order {
		sh, ok := s.shipments[shipmentID]
		if !ok || !matches(sh, f) {
			continue
		}
		out = append(out, clone(sh))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func matches(sh *models.Shipment, f ports.Filter) bool {
	if f.ShipperID != nil && sh.ShipperID != *f.ShipperID {
		return false
	}
	if f.DriverID != nil && (sh.DriverID == nil || *sh.DriverID != *f.DriverID) {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, sh.Status) {
		return false
	}
	return true
}

func (s *InMemoryShipmentStore) Update(_ context.Context, sh *models.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shipments[sh.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.shipments[sh.ID] = clone(sh)
	return nil
}

func (s *InMemoryShipmentStore) Delete(_ context.Context, shipmentID id.ShipmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.shipments[shipmentID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.shipments, shipmentID)
	s.order = slices.DeleteFunc(s.order, func(x id.ShipmentID) bool { return x == shipmentID })
	return nil
}

func (s *InMemoryShipmentStore) CountInCustody(_ context.Context, driverID id.DriverID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, sh := range s.shipments {
		if sh.DriverID != nil && *sh.DriverID == driverID && sh.Status.InCustody() {
			n++
		}
	}
	return n, nil
}

// InMemoryEventStore is the append-only tracking log.
type InMemoryEventStore struct {
	mu     sync.RWMutex
	events map[id.ShipmentID][]*models.TrackingEvent
}

func NewInMemoryEventStore() *InMemoryEventStore {
	return &InMemoryEventStore{events: make(map[id.ShipmentID][]*models.TrackingEvent)}
}

func (s *InMemoryEventStore) Append(_ context.Context, e *models.TrackingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *e
	s.events[e.ShipmentID] = append(s.events[e.ShipmentID], &c)
	return nil
}

// ListByShipment returns events in creation order.
func (s *InMemoryEventStore) ListByShipment(_ context.Context, shipmentID id.ShipmentID) ([]*models.TrackingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TrackingEvent, 0, len(s.events[shipmentID]))
	for _, e := range s.events[shipmentID] {
		c := *e
		out = append(out, &c)
	}
	return out, nil
}
